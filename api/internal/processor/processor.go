// Package processor is the outward face of the scanning pipeline. It
// screens uploads, delegates to the router, enriches what comes back,
// and owns the only mutable shared state: the result cache and the
// running metrics.
package processor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"receipt-ocr/api/internal/analysis"
	"receipt-ocr/api/internal/ocr"
	"receipt-ocr/api/internal/util"
)

// MaxUploadBytes bounds a single upload. Larger files are rejected
// before any model call.
const MaxUploadBytes = 10 << 20

// DefaultBatchConcurrency caps concurrent outbound model calls during a
// batch run; chunks of this size are awaited fully before the next one
// starts so upstream rate limits stay intact.
const DefaultBatchConcurrency = 3

const (
	// fallbackConfidence is pinned on results rescued through the
	// fallback strategy after adaptive routing failed.
	fallbackConfidence = 0.3
	// successConfidenceMin is the score a result must clear to count as
	// a success in the metrics.
	successConfidenceMin = 0.5
)

// OCRRouter is the slice of the router the processor drives.
type OCRRouter interface {
	Route(ctx context.Context, image []byte, mime string) (*ocr.Result, error)
	RouteStrategy(ctx context.Context, image []byte, mime string, s analysis.Strategy) (*ocr.Result, error)
}

// Upload is one receipt image handed to the processor.
type Upload struct {
	Name string
	MIME string
	Data []byte
}

// Options tunes a single scan.
type Options struct {
	UseCache bool
}

// BatchOptions tunes a batch run. Zero MaxConcurrency falls back to the
// processor's configured default.
type BatchOptions struct {
	MaxConcurrency int
	UseCache       bool
}

// BatchItemError pairs a failed upload with the failure text.
type BatchItemError struct {
	File  string `json:"file"`
	Error string `json:"error"`
}

// BatchResult aggregates a batch run. One item's failure never aborts
// its siblings.
type BatchResult struct {
	Successful       []*EnrichedResult `json:"successful"`
	Failed           []BatchItemError  `json:"failed"`
	Total            int               `json:"total"`
	SuccessRate      float64           `json:"successRate"`
	ProcessingTimeMs int64             `json:"processingTimeMs"`
}

type Processor struct {
	router    OCRRouter
	cache     *resultCache
	metrics   *metricsState
	batchConc int
	log       *util.Logger
}

func New(router OCRRouter, cacheCapacity int, log *util.Logger) *Processor {
	if log == nil {
		log = util.NewNopLogger()
	}
	return &Processor{
		router:  router,
		cache:   newResultCache(cacheCapacity),
		metrics: newMetricsState(),
		log:     log,
	}
}

// WithBatchConcurrency sets the batch default used when a request does
// not ask for one. Non-positive values keep DefaultBatchConcurrency.
func (p *Processor) WithBatchConcurrency(n int) *Processor {
	if n > 0 {
		p.batchConc = n
	}
	return p
}

var allowedMIME = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
	"image/webp": true,
}

// ProcessReceipt runs the single-item pipeline: screen, route, enrich,
// account. A routing failure is rescued once through the fallback
// strategy; only when that also fails does the caller see the terminal
// ProcessingFailedError.
func (p *Processor) ProcessReceipt(ctx context.Context, up Upload, opts Options) (*EnrichedResult, error) {
	if len(up.Data) == 0 {
		return nil, &InvalidInputError{Reason: "empty file"}
	}

	key := util.SHA256Hex(up.Data)
	if opts.UseCache {
		if hit, ok := p.cache.get(key); ok {
			p.log.Debug("cache hit", "file", up.Name, "key", key[:12])
			return hit, nil
		}
	}

	if err := p.prevalidate(up); err != nil {
		return nil, err
	}

	start := time.Now()
	var enriched *EnrichedResult
	res, err := p.router.Route(ctx, up.Data, up.MIME)
	if err != nil {
		p.log.Warn("adaptive routing failed, trying fallback strategy", "file", up.Name, "err", err)
		fb, fbErr := p.router.RouteStrategy(ctx, up.Data, up.MIME, analysis.StrategyFallback)
		if fbErr != nil {
			return nil, &ProcessingFailedError{Err: fmt.Errorf("adaptive: %v; fallback: %w", err, fbErr)}
		}
		fb.Confidence = fallbackConfidence
		enriched = enrich(fb)
		enriched.ConfidenceScore = fallbackConfidence
		enriched.IsFallback = true
	} else {
		enriched = enrich(res)
	}

	// Wall time for the whole pipeline replaces the router's own figure;
	// ModelTimeMs still isolates time spent inside model calls.
	enriched.ProcessingTimeMs = time.Since(start).Milliseconds()

	p.metrics.record(enriched.Strategy, enriched.ProcessingTimeMs, enriched.ConfidenceScore > successConfidenceMin)
	if opts.UseCache {
		p.cache.put(key, enriched)
	}
	return enriched, nil
}

// prevalidate enforces size and declared type. A magic-byte mismatch is
// logged but never blocks: over-rejection is worse than attempting a
// decode the analyzer already degrades gracefully from.
func (p *Processor) prevalidate(up Upload) error {
	if len(up.Data) > MaxUploadBytes {
		return &InvalidInputError{Reason: fmt.Sprintf("file too large: %d bytes (max %d)", len(up.Data), MaxUploadBytes)}
	}
	mime := strings.ToLower(strings.TrimSpace(up.MIME))
	if !allowedMIME[mime] {
		return &InvalidInputError{Reason: fmt.Sprintf("unsupported media type %q", up.MIME)}
	}
	if sniffed := util.SniffImageMIME(up.Data); sniffed != "" && sniffed != normalizeMIME(mime) {
		p.log.Warn("magic bytes disagree with declared type",
			"file", up.Name, "declared", up.MIME, "sniffed", sniffed)
	}
	return nil
}

func normalizeMIME(mime string) string {
	if mime == "image/jpg" {
		return "image/jpeg"
	}
	return mime
}

// ProcessBatch fans the uploads out in fixed-size chunks, awaiting each
// chunk fully before starting the next. Items run the single-item
// pipeline and update metrics individually.
func (p *Processor) ProcessBatch(ctx context.Context, uploads []Upload, opts BatchOptions) *BatchResult {
	start := time.Now()
	conc := opts.MaxConcurrency
	if conc <= 0 {
		conc = p.batchConc
	}
	if conc <= 0 {
		conc = DefaultBatchConcurrency
	}

	results := make([]*EnrichedResult, len(uploads))
	errs := make([]error, len(uploads))

	for base := 0; base < len(uploads); base += conc {
		end := min(base+conc, len(uploads))
		var wg sync.WaitGroup
		for i := base; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				defer func() {
					if r := recover(); r != nil {
						errs[i] = fmt.Errorf("panic while processing: %v", r)
					}
				}()
				results[i], errs[i] = p.ProcessReceipt(ctx, uploads[i], Options{UseCache: opts.UseCache})
			}(i)
		}
		wg.Wait()
	}

	out := &BatchResult{Total: len(uploads)}
	for i, up := range uploads {
		if errs[i] != nil {
			out.Failed = append(out.Failed, BatchItemError{File: up.Name, Error: errs[i].Error()})
			continue
		}
		out.Successful = append(out.Successful, results[i])
	}
	if out.Total > 0 {
		out.SuccessRate = float64(len(out.Successful)) / float64(out.Total)
	}
	out.ProcessingTimeMs = time.Since(start).Milliseconds()
	return out
}

// Metrics returns a point-in-time copy of the running counters.
func (p *Processor) Metrics() MetricsSnapshot { return p.metrics.snapshot() }

// ResetMetrics zeroes the counters and stamps the reset time.
func (p *Processor) ResetMetrics() { p.metrics.reset() }

// ClearCache drops every cached result.
func (p *Processor) ClearCache() { p.cache.clear() }

// CacheLen reports how many results are currently cached.
func (p *Processor) CacheLen() int { return p.cache.len() }
