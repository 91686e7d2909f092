package handle

import (
	"context"
	"net/http"
	"time"
)

func (h *Handle) Metrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, "GET only")
		return
	}
	writeJSON(w, http.StatusOK, h.proc.Metrics())
}

func (h *Handle) ResetMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	h.proc.ResetMetrics()
	writeJSON(w, http.StatusOK, map[string]string{"status": "metrics reset"})
}

func (h *Handle) ClearCache(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	n := h.proc.CacheLen()
	h.proc.ClearCache()
	writeJSON(w, http.StatusOK, map[string]any{"status": "cache cleared", "entries": n})
}

// Healthz answers plain "ok", checking the database first when one is
// wired.
func (h *Handle) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("db: not ok\n" + err.Error()))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
