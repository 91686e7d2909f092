package main

import (
	"context"
	"database/sql"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver

	"receipt-ocr/api/internal/analysis"
	"receipt-ocr/api/internal/config"
	"receipt-ocr/api/internal/handle"
	"receipt-ocr/api/internal/ocr"
	"receipt-ocr/api/internal/ocr/gemini"
	"receipt-ocr/api/internal/ocr/openrouter"
	"receipt-ocr/api/internal/processor"
	"receipt-ocr/api/internal/store"
	"receipt-ocr/api/internal/util"
)

func main() {
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
	proc := processor.New(router, cfg.CacheCapacity, logger).
		WithBatchConcurrency(cfg.MaxConcurrency)

	// --- Postgres (optional) ---
	var (
		rec    handle.ScanRecorder
		pinger handle.Pinger
	)
	if dsn := resolveDSN(); dsn != "" {
		db, err := sql.Open("pgx", dsn)
		if err != nil {
			logger.Fatal("sql.Open failed", "err", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(1 * time.Hour)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = db.PingContext(ctx)
		cancel()
		if err != nil {
			logger.Fatal("db ping failed", "err", err)
		}
		logger.Info("db connected", "dsn", safeDSNSummary(dsn))

		repo := store.NewScanRepo(db)
		rec, pinger = repo, db

		retention := time.Duration(cfg.ScanRetentionDays) * 24 * time.Hour
		if n, err := repo.PurgeOlderThan(context.Background(), retention); err != nil {
			logger.Warn("scan purge failed", "err", err)
		} else if n > 0 {
			logger.Info("purged old scan rows", "rows", n, "retentionDays", cfg.ScanRetentionDays)
		}
	} else {
		logger.Info("no database configured, scan history disabled")
	}

	h := handle.New(proc, rec, pinger, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.Healthz)
	mux.HandleFunc("/v1/receipts/scan", h.Scan)
	mux.HandleFunc("/v1/receipts/scan/batch", h.ScanBatch)
	mux.HandleFunc("/v1/receipts/metrics", h.Metrics)
	mux.HandleFunc("/v1/receipts/metrics/reset", h.ResetMetrics)
	mux.HandleFunc("/v1/receipts/cache/clear", h.ClearCache)

	addr := ":" + cfg.Port
	logger.Info("receipt-ocr listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Fatal("server stopped", "err", err)
	}
}

// resolveDSN prefers DATABASE_URL, then builds one from POSTGRES_*/PG*
// env vars. Empty means the service runs without persistence.
func resolveDSN() string {
	if v := strings.TrimSpace(os.Getenv("DATABASE_URL")); v != "" {
		return v
	}
	host := getenvDefault("PGHOST", "")
	if host == "" {
		return ""
	}
	user := getenvDefault("POSTGRES_USER", "receipts")
	pass := os.Getenv("POSTGRES_PASSWORD")
	port := getenvDefault("PGPORT", "5432")
	name := getenvDefault("POSTGRES_DB", "receipts")

	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(user, pass),
		Host:     net.JoinHostPort(host, port),
		Path:     "/" + name,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

func getenvDefault(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

// safeDSNSummary keeps credentials out of the logs.
func safeDSNSummary(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "dsn: parse error"
	}
	host := u.Host
	port := ""
	if h, p, err := net.SplitHostPort(u.Host); err == nil {
		host, port = h, p
	}
	name := strings.TrimPrefix(u.Path, "/")
	if port == "" {
		return "host=" + host + " db=" + name + " user=" + u.User.Username()
	}
	return "host=" + host + " port=" + port + " db=" + name + " user=" + u.User.Username()
}
