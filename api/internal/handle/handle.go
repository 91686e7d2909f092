// Package handle is the HTTP surface over the processor: receipt scan,
// batch scan, metrics and cache administration, health.
package handle

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"receipt-ocr/api/internal/processor"
	"receipt-ocr/api/internal/util"
)

// defaultTimeout bounds one scan request end to end. A fully escalated
// chain stays well inside it.
const defaultTimeout = 180 * time.Second

// ScanRecorder persists finished scans. Saving is best-effort: a nil
// recorder or a failed insert never blocks the response.
type ScanRecorder interface {
	Save(ctx context.Context, imageHash, fileName string, res *processor.EnrichedResult) error
}

// Pinger is the slice of *sql.DB that healthz needs.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type Handle struct {
	proc *processor.Processor
	rec  ScanRecorder
	db   Pinger
	log  *util.Logger
}

// New wires the handler set. rec and db may be nil: the service runs
// without persistence.
func New(proc *processor.Processor, rec ScanRecorder, db Pinger, log *util.Logger) *Handle {
	if log == nil {
		log = util.NewNopLogger()
	}
	return &Handle{proc: proc, rec: rec, db: db, log: log}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// requestTimeout reads X-Request-Timeout (seconds) or the timeoutSec
// query parameter, defaulting to defaultTimeout.
func requestTimeout(r *http.Request) time.Duration {
	if ts := r.Header.Get("X-Request-Timeout"); ts != "" {
		if v, _ := strconv.Atoi(ts); v > 0 {
			return time.Duration(v) * time.Second
		}
	}
	if ts := r.URL.Query().Get("timeoutSec"); ts != "" {
		if v, _ := strconv.Atoi(ts); v > 0 {
			return time.Duration(v) * time.Second
		}
	}
	return defaultTimeout
}
