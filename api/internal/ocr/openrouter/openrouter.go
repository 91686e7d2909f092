// Package openrouter adapts the OpenRouter chat-completions API to the
// ocr.Invoker contract: one multimodal user turn, one attempt, one
// timeout.
package openrouter

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"receipt-ocr/api/internal/ocr"
	"receipt-ocr/api/internal/util"
)

const DefaultBaseURL = "https://openrouter.ai/api/v1"

var errMissingKey = errors.New("OPENROUTER_API_KEY is empty")

type Client struct {
	APIKey  string
	BaseURL string
	Referer string
	Title   string
	httpc   *http.Client
	log     *util.Logger
}

func New(apiKey, baseURL, referer, title string, log *util.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second, // TCP connect
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: 10 * time.Second,
		// First headers can lag well behind connect on busy models
		ResponseHeaderTimeout: 120 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   100,
	}

	return &Client{
		APIKey:  strings.TrimSpace(apiKey),
		BaseURL: strings.TrimRight(baseURL, "/"),
		Referer: referer,
		Title:   title,
		// Timeout=0: the per-request context owns the deadline
		httpc: &http.Client{
			Timeout:   0,
			Transport: tr,
		},
		log: log,
	}
}

// WithHTTPClient overrides the internal HTTP client (e.g., for custom timeouts or tracing).
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	if hc != nil {
		c.httpc = hc
	}
	return c
}

func (c *Client) Name() string { return ocr.ProviderOpenRouter }

func (c *Client) Invoke(ctx context.Context, in ocr.InvokeRequest) (ocr.InvokeResult, error) {
	if c.APIKey == "" {
		return ocr.InvokeResult{}, &ocr.ModelInvocationError{
			Provider: c.Name(), Model: in.Model,
			Err: errMissingKey,
		}
	}

	if in.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, in.Timeout)
		defer cancel()
	}

	b64 := base64.StdEncoding.EncodeToString(in.Image)
	imagePart := map[string]any{
		"type":      "image_url",
		"image_url": map[string]any{"url": util.MakeDataURL(in.MIME, b64)},
	}
	textPart := map[string]any{"type": "text", "text": in.Prompt}

	content := []any{imagePart, textPart}
	if in.ContentOrder == ocr.TextFirst {
		content = []any{textPart, imagePart}
	}

	body := map[string]any{
		"model": in.Model,
		"messages": []any{
			map[string]any{"role": "user", "content": content},
		},
		"temperature":     in.Temperature,
		"response_format": map[string]any{"type": "text"},
	}
	payload, _ := json.Marshal(body)

	req, _ := http.NewRequestWithContext(ctx, "POST", c.BaseURL+"/chat/completions", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	if c.Referer != "" {
		req.Header.Set("HTTP-Referer", c.Referer)
	}
	if c.Title != "" {
		req.Header.Set("X-Title", c.Title)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return ocr.InvokeResult{}, &ocr.ModelInvocationError{Provider: c.Name(), Model: in.Model, Err: err}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return ocr.InvokeResult{}, &ocr.ModelInvocationError{
			Provider: c.Name(),
			Model:    in.Model,
			Status:   resp.StatusCode,
			Body:     util.Truncate(strings.TrimSpace(string(raw)), 1024),
		}
	}

	var env struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return ocr.InvokeResult{}, &ocr.ModelInvocationError{Provider: c.Name(), Model: in.Model, Err: err}
	}

	text := ""
	if len(env.Choices) > 0 {
		text = env.Choices[0].Message.Content
	}
	// Empty text is a valid-but-useless answer; the router escalates.
	if strings.TrimSpace(text) == "" {
		c.log.Warn("openrouter returned empty text", "model", in.Model)
	}

	return ocr.InvokeResult{Text: text, Raw: string(raw), Model: in.Model}, nil
}
