package ocr

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"receipt-ocr/api/internal/analysis"
	"receipt-ocr/api/internal/util"
)

type stubInvoker struct {
	calls   int
	byModel map[string]InvokeResult
	err     error
}

func (s *stubInvoker) Name() string { return "stub" }

func (s *stubInvoker) Invoke(_ context.Context, in InvokeRequest) (InvokeResult, error) {
	s.calls++
	if s.err != nil {
		return InvokeResult{}, s.err
	}
	out := s.byModel[in.Model]
	out.Model = in.Model
	return out, nil
}

func stubRef(model string) ModelRef {
	return ModelRef{Provider: "stub", Model: model, Timeout: time.Second, ContentOrder: ImageFirst}
}

// stubRegistry maps every strategy to the same stub-backed chain so
// Route lands on it no matter what the analyzer recommends.
func stubRegistry(primary string, escalate ...string) *Registry {
	entries := map[analysis.Strategy]StrategyEntry{}
	for _, s := range analysis.Strategies() {
		e := StrategyEntry{Strategy: s, Primary: stubRef(primary)}
		for _, m := range escalate {
			e.Escalate = append(e.Escalate, stubRef(m))
		}
		entries[s] = e
	}
	return &Registry{entries: entries}
}

func testRouter(reg *Registry, inv Invoker) *Router {
	return NewRouter(analysis.New().WithSeed(1), reg, Providers{"stub": inv}, util.NewNopLogger())
}

func whitePNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.White)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestRouteEscalatesOnEmptyPrimary(t *testing.T) {
	inv := &stubInvoker{byModel: map[string]InvokeResult{
		"m-primary":  {Text: ""},
		"m-escalate": {Text: `{"amount": 12.5, "description": "Taxi to airport", "category": "transport"}`},
	}}
	r := testRouter(stubRegistry("m-primary", "m-escalate"), inv)

	res, err := r.Route(context.Background(), whitePNG(t), "image/png")
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if res.Amount != 12.5 {
		t.Errorf("amount = %v, want 12.5", res.Amount)
	}
	if res.Model != "m-escalate" {
		t.Errorf("model = %q, want the escalation id", res.Model)
	}
	if inv.calls != 2 {
		t.Errorf("calls = %d, want 2", inv.calls)
	}
	if res.Strategy != analysis.StrategyLightweight {
		t.Errorf("strategy = %q, want lightweight for a blank image", res.Strategy)
	}
}

func TestRouteZeroAmountRetriesRemainingChain(t *testing.T) {
	inv := &stubInvoker{byModel: map[string]InvokeResult{
		"m-primary":  {Text: `{"amount": 0, "description": "Unreadable column"}`},
		"m-escalate": {Text: `{"amount": 20, "description": "Lunch", "category": "dining"}`},
	}}
	r := testRouter(stubRegistry("m-primary", "m-escalate"), inv)

	res, err := r.Route(context.Background(), whitePNG(t), "image/png")
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if res.Amount != 20 {
		t.Errorf("amount = %v, want 20 from retry", res.Amount)
	}
	if res.Model != "m-escalate" {
		t.Errorf("model = %q, want retry model", res.Model)
	}
	if inv.calls != 2 {
		t.Errorf("calls = %d, want 2", inv.calls)
	}
}

func TestRouteKeepsZeroAmountWhenChainExhausted(t *testing.T) {
	inv := &stubInvoker{byModel: map[string]InvokeResult{
		"m-only": {Text: `{"amount": 0, "description": "Faded thermal paper"}`},
	}}
	r := testRouter(stubRegistry("m-only"), inv)

	res, err := r.Route(context.Background(), whitePNG(t), "image/png")
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if res.Amount != 0 {
		t.Errorf("amount = %v, want best-effort 0", res.Amount)
	}
	if res.Validation.Valid {
		t.Error("zero-amount result must be flagged invalid")
	}
	if inv.calls != 1 {
		t.Errorf("calls = %d, want 1", inv.calls)
	}
}

func TestRouteFailsWhenChainErrors(t *testing.T) {
	inv := &stubInvoker{err: &ModelInvocationError{Provider: "stub", Model: "m", Status: 503, Body: "overloaded"}}
	r := testRouter(stubRegistry("m-primary", "m-escalate"), inv)

	_, err := r.Route(context.Background(), whitePNG(t), "image/png")
	if err == nil {
		t.Fatal("want error when every model fails")
	}
	var mie *ModelInvocationError
	if !errors.As(err, &mie) {
		t.Errorf("error type = %T", err)
	}
	if inv.calls != 2 {
		t.Errorf("calls = %d, want the whole chain tried", inv.calls)
	}
}

func TestRouteFailsWhenChainStaysEmpty(t *testing.T) {
	inv := &stubInvoker{byModel: map[string]InvokeResult{
		"m-primary":  {Text: " "},
		"m-escalate": {Text: "x"},
	}}
	r := testRouter(stubRegistry("m-primary", "m-escalate"), inv)

	_, err := r.Route(context.Background(), whitePNG(t), "image/png")
	if err == nil {
		t.Fatal("want error when no model yields non-trivial text")
	}
}

func TestRouteProseRecovery(t *testing.T) {
	inv := &stubInvoker{byModel: map[string]InvokeResult{
		"m-only": {Text: "Total: ₹45.00 on 2024-01-15 at ACME Store"},
	}}
	r := testRouter(stubRegistry("m-only"), inv)

	res, err := r.Route(context.Background(), whitePNG(t), "image/png")
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if res.Amount != 45 {
		t.Errorf("amount = %v, want 45", res.Amount)
	}
	if res.Confidence != 0.5 || res.Note == "" {
		t.Errorf("confidence = %v note = %q, want recovery markers", res.Confidence, res.Note)
	}
}

func TestRouteStrategyForcesEntry(t *testing.T) {
	entries := map[analysis.Strategy]StrategyEntry{}
	for _, s := range analysis.Strategies() {
		entries[s] = StrategyEntry{Strategy: s, Primary: stubRef("m-" + string(s))}
	}
	inv := &stubInvoker{byModel: map[string]InvokeResult{
		"m-fallback": {Text: `{"amount": 5, "description": "Last resort scan"}`},
	}}
	r := testRouter(&Registry{entries: entries}, inv)

	res, err := r.RouteStrategy(context.Background(), whitePNG(t), "image/png", analysis.StrategyFallback)
	if err != nil {
		t.Fatalf("RouteStrategy: %v", err)
	}
	if res.Strategy != analysis.StrategyFallback {
		t.Errorf("strategy = %q, want forced fallback", res.Strategy)
	}
	if res.Model != "m-fallback" {
		t.Errorf("model = %q, want m-fallback", res.Model)
	}
}

func TestRouteUnknownProvider(t *testing.T) {
	entries := map[analysis.Strategy]StrategyEntry{}
	for _, s := range analysis.Strategies() {
		entries[s] = StrategyEntry{Strategy: s, Primary: ModelRef{Provider: "nope", Model: "m", Timeout: time.Second}}
	}
	r := testRouter(&Registry{entries: entries}, &stubInvoker{})

	_, err := r.Route(context.Background(), whitePNG(t), "image/png")
	if !errors.Is(err, errUnknownProvider) {
		t.Errorf("err = %v, want unknown-provider", err)
	}
}
