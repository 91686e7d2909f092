// Command scan runs the receipt pipeline over local image files and
// prints one JSON result per file to stdout.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"receipt-ocr/api/internal/analysis"
	"receipt-ocr/api/internal/config"
	"receipt-ocr/api/internal/ocr"
	"receipt-ocr/api/internal/ocr/gemini"
	"receipt-ocr/api/internal/ocr/openrouter"
	"receipt-ocr/api/internal/processor"
	"receipt-ocr/api/internal/util"
)

func main() {
	timeout := flag.Duration("timeout", 3*time.Minute, "per-file processing timeout")
	noCache := flag.Bool("no-cache", false, "bypass the result cache")
	pretty := flag.Bool("pretty", false, "indent JSON output")
	flag.Parse()

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: scan [flags] <image> [image...]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	cfg := config.Load()
	logger := util.NewLogger(cfg.LogLevel)

	providers := ocr.Providers{
		ocr.ProviderOpenRouter: openrouter.New(cfg.OpenRouterAPIKey, cfg.OpenRouterBaseURL, cfg.OpenRouterReferer, cfg.OpenRouterTitle, logger),
		ocr.ProviderGemini:     gemini.New(cfg.GeminiAPIKey, logger),
	}
	registry := ocr.NewRegistry(ocr.Overrides{
		Lightweight: cfg.ModelLightweight,
		Standard:    cfg.ModelStandard,
		Handwriting: cfg.ModelHandwriting,
		Batch:       cfg.ModelBatch,
		Mixed:       cfg.ModelMixed,
		Fallback:    cfg.ModelFallback,
	})
	router := ocr.NewRouter(analysis.New(), registry, providers, logger)
	proc := processor.New(router, cfg.CacheCapacity, logger)

	enc := json.NewEncoder(os.Stdout)
	if *pretty {
		enc.SetIndent("", "  ")
	}

	failed := 0
	for _, path := range flag.Args() {
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			failed++
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), *timeout)
		res, err := proc.ProcessReceipt(ctx, processor.Upload{
			Name: filepath.Base(path),
			MIME: util.PickMIME("", "", data),
			Data: data,
		}, processor.Options{UseCache: !*noCache})
		cancel()
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			failed++
			continue
		}

		if err := enc.Encode(res); err != nil {
			fmt.Fprintf(os.Stderr, "%s: encode: %v\n", path, err)
			failed++
		}
	}
	if failed > 0 {
		os.Exit(1)
	}
}
