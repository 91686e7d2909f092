package ocr

import (
	"strings"
	"time"

	"receipt-ocr/api/internal/analysis"
)

// Registry resolves a strategy to its model chain. Read-only after
// construction, safe to share without locking.
type Registry struct {
	entries map[analysis.Strategy]StrategyEntry
}

// Overrides swap the primary model id of a strategy without touching
// its tuning or escalation chain. Empty fields keep the default.
type Overrides struct {
	Lightweight string
	Standard    string
	Handwriting string
	Batch       string
	Mixed       string
	Fallback    string
}

func NewRegistry(o Overrides) *Registry {
	or := func(model string, temp float32, timeout time.Duration, order ContentOrder) ModelRef {
		return ModelRef{Provider: ProviderOpenRouter, Model: model, Temperature: temp, Timeout: timeout, ContentOrder: order}
	}
	gm := func(model string, temp float32, timeout time.Duration) ModelRef {
		return ModelRef{Provider: ProviderGemini, Model: model, Temperature: temp, Timeout: timeout, ContentOrder: ImageFirst}
	}

	entries := map[analysis.Strategy]StrategyEntry{
		analysis.StrategyLightweight: {
			Strategy: analysis.StrategyLightweight,
			Primary:  or("qwen/qwen-2.5-vl-7b-instruct", 0, 20*time.Second, ImageFirst),
			Escalate: []ModelRef{
				or("openai/gpt-4o-mini", 0.1, 25*time.Second, ImageFirst),
			},
		},
		analysis.StrategyStandard: {
			Strategy: analysis.StrategyStandard,
			Primary:  or("openai/gpt-4o-mini", 0.1, 25*time.Second, ImageFirst),
			Escalate: []ModelRef{
				gm("gemini-1.5-flash", 0, 25*time.Second),
				or("anthropic/claude-3.5-sonnet", 0.1, 30*time.Second, TextFirst),
			},
		},
		analysis.StrategyHandwriting: {
			Strategy: analysis.StrategyHandwriting,
			Primary:  or("anthropic/claude-3.5-sonnet", 0.2, 40*time.Second, TextFirst),
			Escalate: []ModelRef{
				or("openai/gpt-4o", 0.2, 40*time.Second, ImageFirst),
				gm("gemini-1.5-pro", 0.1, 45*time.Second),
			},
		},
		analysis.StrategyBatch: {
			Strategy: analysis.StrategyBatch,
			Primary:  or("openai/gpt-4o", 0.1, 45*time.Second, ImageFirst),
			Escalate: []ModelRef{
				or("anthropic/claude-3.5-sonnet", 0.1, 45*time.Second, TextFirst),
			},
		},
		analysis.StrategyMixed: {
			Strategy: analysis.StrategyMixed,
			Primary:  or("openai/gpt-4o", 0.1, 35*time.Second, ImageFirst),
			Escalate: []ModelRef{
				gm("gemini-1.5-pro", 0.1, 40*time.Second),
				or("anthropic/claude-3.5-sonnet", 0.2, 40*time.Second, TextFirst),
			},
		},
		analysis.StrategyFallback: {
			Strategy: analysis.StrategyFallback,
			Primary:  gm("gemini-1.5-flash", 0, 20*time.Second),
			Escalate: []ModelRef{
				or("openai/gpt-4o-mini", 0.1, 25*time.Second, ImageFirst),
			},
		},
	}

	override := func(s analysis.Strategy, model string) {
		if model == "" {
			return
		}
		e := entries[s]
		e.Primary.Model = model
		e.Primary.Provider = providerFor(model)
		entries[s] = e
	}
	override(analysis.StrategyLightweight, o.Lightweight)
	override(analysis.StrategyStandard, o.Standard)
	override(analysis.StrategyHandwriting, o.Handwriting)
	override(analysis.StrategyBatch, o.Batch)
	override(analysis.StrategyMixed, o.Mixed)
	override(analysis.StrategyFallback, o.Fallback)

	return &Registry{entries: entries}
}

// Resolve never errors: an unknown strategy maps to the fallback entry.
func (r *Registry) Resolve(s analysis.Strategy) StrategyEntry {
	if e, ok := r.entries[s]; ok {
		return e
	}
	return r.entries[analysis.StrategyFallback]
}

// providerFor guesses the provider from the model id shape: bare
// gemini-* ids go to the native API, everything else (vendor/model) to
// OpenRouter.
func providerFor(model string) string {
	if strings.HasPrefix(model, "gemini-") && !strings.Contains(model, "/") {
		return ProviderGemini
	}
	return ProviderOpenRouter
}
