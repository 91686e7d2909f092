// Package gemini adapts Google's native Generative AI API to the
// ocr.Invoker contract, for models not reachable through OpenRouter.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"receipt-ocr/api/internal/ocr"
	"receipt-ocr/api/internal/util"
)

var errMissingKey = errors.New("GEMINI_API_KEY is empty")

type Client struct {
	APIKey string
	log    *util.Logger
}

func New(apiKey string, log *util.Logger) *Client {
	return &Client{APIKey: strings.TrimSpace(apiKey), log: log}
}

func (c *Client) Name() string { return ocr.ProviderGemini }

// Invoke is a single attempt with a single timeout. Transient upstream
// failures surface as errors for the router to escalate past.
func (c *Client) Invoke(ctx context.Context, in ocr.InvokeRequest) (ocr.InvokeResult, error) {
	if c.APIKey == "" {
		return ocr.InvokeResult{}, &ocr.ModelInvocationError{Provider: c.Name(), Model: in.Model, Err: errMissingKey}
	}

	if in.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, in.Timeout)
		defer cancel()
	}

	cl, err := genai.NewClient(ctx, option.WithAPIKey(c.APIKey))
	if err != nil {
		return ocr.InvokeResult{}, &ocr.ModelInvocationError{Provider: c.Name(), Model: in.Model, Err: err}
	}
	defer cl.Close()

	m := cl.GenerativeModel(strings.TrimSpace(in.Model))
	m.GenerationConfig = genai.GenerationConfig{
		Temperature:      ptrFloat32(in.Temperature),
		ResponseMIMEType: "application/json",
	}

	image := &genai.Blob{MIMEType: in.MIME, Data: in.Image}
	text := genai.Text(in.Prompt)
	parts := []genai.Part{image, text}
	if in.ContentOrder == ocr.TextFirst {
		parts = []genai.Part{text, image}
	}

	resp, err := m.GenerateContent(ctx, parts...)
	if err != nil {
		return ocr.InvokeResult{}, &ocr.ModelInvocationError{Provider: c.Name(), Model: in.Model, Err: err}
	}

	txt := firstText(resp)
	if strings.TrimSpace(txt) == "" {
		c.log.Warn("gemini returned empty text", "model", in.Model)
	}

	raw, _ := json.Marshal(resp)
	return ocr.InvokeResult{Text: txt, Raw: string(raw), Model: in.Model}, nil
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				return string(t)
			}
		}
	}
	return ""
}

func ptrFloat32(v float32) *float32 { return &v }
