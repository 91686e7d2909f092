package ocr

import (
	"context"
	"errors"
	"strings"
	"time"

	"receipt-ocr/api/internal/analysis"
	"receipt-ocr/api/internal/util"
)

var (
	errUnknownProvider = errors.New("provider is not configured")
	errAllModelsEmpty  = errors.New("every model in the chain returned empty text")
)

// Router drives one scan end to end: analyze, resolve the model chain,
// invoke with escalation, parse, and annotate timings.
type Router struct {
	analyzer  *analysis.Analyzer
	registry  *Registry
	providers Providers
	log       *util.Logger
}

func NewRouter(analyzer *analysis.Analyzer, registry *Registry, providers Providers, log *util.Logger) *Router {
	return &Router{
		analyzer:  analyzer,
		registry:  registry,
		providers: providers,
		log:       log,
	}
}

// Route analyzes the image and runs its recommended strategy.
func (r *Router) Route(ctx context.Context, image []byte, mime string) (*Result, error) {
	a := r.analyzer.Analyze(image)
	return r.routeWith(ctx, image, mime, r.registry.Resolve(a.RecommendedStrategy), a)
}

// RouteStrategy forces a strategy regardless of the recommendation.
// The analyzer still runs so the prompt carries a real image summary.
func (r *Router) RouteStrategy(ctx context.Context, image []byte, mime string, s analysis.Strategy) (*Result, error) {
	a := r.analyzer.Analyze(image)
	return r.routeWith(ctx, image, mime, r.registry.Resolve(s), a)
}

func (r *Router) routeWith(ctx context.Context, image []byte, mime string, entry StrategyEntry, a *analysis.Result) (*Result, error) {
	start := time.Now()
	prompt := BuildPrompt(entry.Strategy, a)
	chain := entry.chain()

	// Walk the chain until a model yields non-trivial text. Timeouts
	// and upstream failures read the same as empty output here.
	var (
		modelMs int64
		out     InvokeResult
		lastErr error
	)
	used := -1
	for i, ref := range chain {
		res, err := r.invoke(ctx, ref, image, mime, prompt, &modelMs)
		if err != nil {
			lastErr = err
			r.log.Warn("model invocation failed, escalating",
				"strategy", entry.Strategy, "provider", ref.Provider, "model", ref.Model, "err", err)
			continue
		}
		if len(strings.TrimSpace(res.Text)) < 2 {
			r.log.Warn("model returned trivial text, escalating",
				"strategy", entry.Strategy, "provider", ref.Provider, "model", ref.Model)
			continue
		}
		out = res
		used = i
		break
	}
	if used < 0 {
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, &ModelInvocationError{
			Provider: entry.Primary.Provider,
			Model:    entry.Primary.Model,
			Err:      errAllModelsEmpty,
		}
	}

	res := parseAndValidate(out.Text, out.Raw)

	// A parsed-but-zero amount is worth one more pass over the models
	// the first walk never reached.
	if res.Amount <= 0 {
		for _, ref := range chain[used+1:] {
			alt, err := r.invoke(ctx, ref, image, mime, prompt, &modelMs)
			if err != nil || len(strings.TrimSpace(alt.Text)) < 2 {
				continue
			}
			if cand := parseAndValidate(alt.Text, alt.Raw); cand.Amount > 0 {
				res = cand
				out = alt
				break
			}
		}
	}

	res.Strategy = entry.Strategy
	res.Model = out.Model
	res.ProcessingTimeMs = time.Since(start).Milliseconds()
	res.ModelTimeMs = modelMs
	return res, nil
}

// invoke calls one provider and accrues model-only time, which is
// tracked apart from wall time since escalation adds parse and network
// overhead outside the model call.
func (r *Router) invoke(ctx context.Context, ref ModelRef, image []byte, mime, prompt string, modelMs *int64) (InvokeResult, error) {
	inv, ok := r.providers.Get(ref.Provider)
	if !ok {
		return InvokeResult{}, &ModelInvocationError{Provider: ref.Provider, Model: ref.Model, Err: errUnknownProvider}
	}

	t0 := time.Now()
	out, err := inv.Invoke(ctx, InvokeRequest{
		Model:        ref.Model,
		Image:        image,
		MIME:         mime,
		Prompt:       prompt,
		Temperature:  ref.Temperature,
		Timeout:      ref.Timeout,
		ContentOrder: ref.ContentOrder,
	})
	*modelMs += time.Since(t0).Milliseconds()
	return out, err
}
