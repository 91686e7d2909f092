package openrouter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"receipt-ocr/api/internal/ocr"
	"receipt-ocr/api/internal/util"
)

type capturedBody struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content []struct {
			Type     string `json:"type"`
			Text     string `json:"text"`
			ImageURL struct {
				URL string `json:"url"`
			} `json:"image_url"`
		} `json:"content"`
	} `json:"messages"`
	Temperature    float64 `json:"temperature"`
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
}

func reply(w http.ResponseWriter, text string) {
	_ = json.NewEncoder(w).Encode(map[string]any{
		"choices": []any{
			map[string]any{"message": map[string]any{"content": text}},
		},
	})
}

func TestInvokeSendsMultimodalTurn(t *testing.T) {
	var got capturedBody
	var auth, referer, title string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		referer = r.Header.Get("HTTP-Referer")
		title = r.Header.Get("X-Title")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		reply(w, `{"amount": 9.5}`)
	}))
	defer srv.Close()

	c := New("test-key", srv.URL, "https://example.app", "receipt-ocr", util.NewNopLogger())
	out, err := c.Invoke(context.Background(), ocr.InvokeRequest{
		Model:        "openai/gpt-4o-mini",
		Image:        []byte{0x89, 0x50, 0x4E, 0x47},
		MIME:         "image/png",
		Prompt:       "read the receipt",
		Temperature:  0.1,
		Timeout:      5 * time.Second,
		ContentOrder: ocr.ImageFirst,
	})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	if auth != "Bearer test-key" {
		t.Errorf("auth = %q", auth)
	}
	if referer != "https://example.app" || title != "receipt-ocr" {
		t.Errorf("identification headers = %q / %q", referer, title)
	}
	if got.Model != "openai/gpt-4o-mini" || got.Temperature != 0.1 {
		t.Errorf("model/temperature = %q / %v", got.Model, got.Temperature)
	}
	if got.ResponseFormat.Type != "text" {
		t.Errorf("response_format = %q", got.ResponseFormat.Type)
	}
	if len(got.Messages) != 1 || got.Messages[0].Role != "user" {
		t.Fatalf("messages = %+v", got.Messages)
	}
	content := got.Messages[0].Content
	if len(content) != 2 || content[0].Type != "image_url" || content[1].Type != "text" {
		t.Fatalf("content order = %+v", content)
	}
	if !strings.HasPrefix(content[0].ImageURL.URL, "data:image/png;base64,") {
		t.Errorf("image url = %q", content[0].ImageURL.URL)
	}
	if content[1].Text != "read the receipt" {
		t.Errorf("prompt = %q", content[1].Text)
	}

	if out.Text != `{"amount": 9.5}` || out.Model != "openai/gpt-4o-mini" {
		t.Errorf("result = %+v", out)
	}
	if out.Raw == "" {
		t.Error("raw body missing")
	}
}

func TestInvokeTextFirstOrder(t *testing.T) {
	var got capturedBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		reply(w, "ok text")
	}))
	defer srv.Close()

	c := New("k", srv.URL, "", "", util.NewNopLogger())
	if _, err := c.Invoke(context.Background(), ocr.InvokeRequest{
		Model:        "anthropic/claude-3.5-sonnet",
		Image:        []byte{1},
		MIME:         "image/jpeg",
		Prompt:       "p",
		ContentOrder: ocr.TextFirst,
	}); err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	content := got.Messages[0].Content
	if content[0].Type != "text" || content[1].Type != "image_url" {
		t.Errorf("content order = %+v", content)
	}
}

func TestInvokeNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New("k", srv.URL, "", "", util.NewNopLogger())
	_, err := c.Invoke(context.Background(), ocr.InvokeRequest{Model: "m", Image: []byte{1}, MIME: "image/png"})
	if err == nil {
		t.Fatal("want error on 503")
	}
	var mie *ocr.ModelInvocationError
	if !errors.As(err, &mie) {
		t.Fatalf("error type = %T", err)
	}
	if mie.Status != http.StatusServiceUnavailable || !strings.Contains(mie.Body, "overloaded") {
		t.Errorf("error = %+v", mie)
	}
}

func TestInvokeTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		reply(w, "too late")
	}))
	defer srv.Close()

	c := New("k", srv.URL, "", "", util.NewNopLogger())
	_, err := c.Invoke(context.Background(), ocr.InvokeRequest{
		Model: "m", Image: []byte{1}, MIME: "image/png", Timeout: 30 * time.Millisecond,
	})
	if err == nil {
		t.Fatal("want timeout error")
	}
	var mie *ocr.ModelInvocationError
	if !errors.As(err, &mie) {
		t.Fatalf("error type = %T", err)
	}
}

func TestInvokeMissingKey(t *testing.T) {
	c := New("", "http://127.0.0.1:0", "", "", util.NewNopLogger())
	_, err := c.Invoke(context.Background(), ocr.InvokeRequest{Model: "m"})
	if !errors.Is(err, errMissingKey) {
		t.Errorf("err = %v, want missing-key", err)
	}
}

func TestInvokeEmptyTextIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reply(w, "")
	}))
	defer srv.Close()

	c := New("k", srv.URL, "", "", util.NewNopLogger())
	out, err := c.Invoke(context.Background(), ocr.InvokeRequest{Model: "m", Image: []byte{1}, MIME: "image/png"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if out.Text != "" {
		t.Errorf("text = %q, want empty", out.Text)
	}
}
