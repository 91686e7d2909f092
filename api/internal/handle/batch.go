package handle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"receipt-ocr/api/internal/processor"
	"receipt-ocr/api/internal/util"
)

type BatchFile struct {
	Name     string `json:"name"`
	MIME     string `json:"mime"`
	ImageB64 string `json:"image_b64"`
}

type BatchScanRequest struct {
	Files          []BatchFile `json:"files"`
	MaxConcurrency int         `json:"max_concurrency"`
	UseCache       *bool       `json:"use_cache"`
}

// ScanBatch fans a list of files through the pipeline. The response is
// always 200: per-item failures ride inside the BatchResult body.
func (h *Handle) ScanBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	var req BatchScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "bad json: "+err.Error())
		return
	}
	if len(req.Files) == 0 {
		writeErr(w, http.StatusBadRequest, "files is empty")
		return
	}

	uploads := make([]processor.Upload, 0, len(req.Files))
	for i, f := range req.Files {
		// A broken base64 entry keeps its slot; the pipeline reports it
		// as a failed item instead of rejecting the whole batch.
		data, hint, err := util.DecodeBase64MaybeDataURL(f.ImageB64)
		if err != nil {
			data = nil
		}
		name := f.Name
		if name == "" {
			name = fmt.Sprintf("file-%d", i+1)
		}
		uploads = append(uploads, processor.Upload{
			Name: name,
			MIME: util.PickMIME(f.MIME, hint, data),
			Data: data,
		})
	}

	useCache := true
	if req.UseCache != nil {
		useCache = *req.UseCache
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout(r))
	defer cancel()

	res := h.proc.ProcessBatch(ctx, uploads, processor.BatchOptions{
		MaxConcurrency: req.MaxConcurrency,
		UseCache:       useCache,
	})
	writeJSON(w, http.StatusOK, res)
}
