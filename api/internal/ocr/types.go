// Package ocr routes receipt images to vision models: it resolves the
// analyzer's strategy to a model chain, builds the strategy prompt,
// invokes providers with escalation, and parses model output into a
// normalized receipt result.
package ocr

import (
	"context"
	"time"

	"receipt-ocr/api/internal/analysis"
)

// ContentOrder controls modality order inside the single user turn.
// Some models read the image more reliably when it precedes the text.
type ContentOrder string

const (
	ImageFirst ContentOrder = "image-first"
	TextFirst  ContentOrder = "text-first"
)

const (
	ProviderOpenRouter = "openrouter"
	ProviderGemini     = "gemini"
)

// ModelRef names one model on one provider plus its invocation tuning.
type ModelRef struct {
	Provider     string
	Model        string
	Temperature  float32
	Timeout      time.Duration
	ContentOrder ContentOrder
}

// StrategyEntry is the routing row a strategy resolves to: a primary
// model and an ordered escalation list. Entries are static data shared
// read-only across requests.
type StrategyEntry struct {
	Strategy analysis.Strategy
	Primary  ModelRef
	Escalate []ModelRef
}

// chain returns primary plus escalations in invocation order.
func (e StrategyEntry) chain() []ModelRef {
	out := make([]ModelRef, 0, 1+len(e.Escalate))
	out = append(out, e.Primary)
	out = append(out, e.Escalate...)
	return out
}

type InvokeRequest struct {
	Model        string
	Image        []byte
	MIME         string
	Prompt       string
	Temperature  float32
	Timeout      time.Duration
	ContentOrder ContentOrder
}

type InvokeResult struct {
	Text  string
	Raw   string
	Model string
}

// Invoker is one vision provider. A single call, a single timeout:
// retries and escalation belong to the Router.
type Invoker interface {
	Name() string
	Invoke(ctx context.Context, in InvokeRequest) (InvokeResult, error)
}

// Providers maps provider name to its adapter.
type Providers map[string]Invoker

func (p Providers) Get(name string) (Invoker, bool) {
	inv, ok := p[name]
	return inv, ok
}

// Validation is the field-level verdict attached to every result.
// Errors flag the result invalid; warnings never block returning data.
type Validation struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// Result is the normalized outcome of one routed scan.
type Result struct {
	Amount           float64           `json:"amount"`
	Date             time.Time         `json:"date"`
	Description      string            `json:"description"`
	Category         string            `json:"category"`
	MerchantName     string            `json:"merchantName"`
	Confidence       float64           `json:"confidence"`
	Strategy         analysis.Strategy `json:"strategy"`
	Model            string            `json:"model"`
	ProcessingTimeMs int64             `json:"processingTimeMs"`
	ModelTimeMs      int64             `json:"modelTimeMs"`
	RawResponse      string            `json:"rawResponse"`
	Note             string            `json:"note,omitempty"`
	Validation       Validation        `json:"validation"`
}

// AllowedCategories is the closed set a result's category is drawn
// from. Anything the model invents outside it collapses to
// "other-expense".
var AllowedCategories = []string{
	"groceries",
	"dining",
	"transport",
	"fuel",
	"shopping",
	"entertainment",
	"health",
	"utilities",
	"travel",
	"other-expense",
}

const CategoryOther = "other-expense"

func AllowedCategory(c string) bool {
	for _, a := range AllowedCategories {
		if c == a {
			return true
		}
	}
	return false
}
