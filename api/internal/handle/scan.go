package handle

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"receipt-ocr/api/internal/processor"
	"receipt-ocr/api/internal/util"
)

// formOverhead leaves room for multipart boundaries and small form
// fields on top of the image itself.
const formOverhead = 64 << 10

// ScanRequest is the JSON alternative to a multipart upload.
type ScanRequest struct {
	Name     string `json:"name"`
	MIME     string `json:"mime"`
	ImageB64 string `json:"image_b64"`
	UseCache *bool  `json:"use_cache"`
}

// Scan runs one receipt through the pipeline. Accepts multipart
// form-data with a "file" part or a JSON body with base64 image data.
func (h *Handle) Scan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, "POST only")
		return
	}

	up, opts, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout(r))
	defer cancel()

	res, err := h.proc.ProcessReceipt(ctx, up, opts)
	if err != nil {
		code, msg := scanStatus(err)
		writeErr(w, code, msg)
		return
	}

	h.record(ctx, up, res)
	writeJSON(w, http.StatusOK, res)
}

// scanStatus maps pipeline errors onto HTTP codes: rejected input is
// the client's fault, everything terminal is an upstream failure.
func scanStatus(err error) (int, string) {
	var inv *processor.InvalidInputError
	if errors.As(err, &inv) {
		return http.StatusBadRequest, inv.Reason
	}
	return http.StatusBadGateway, err.Error()
}

func (h *Handle) readUpload(w http.ResponseWriter, r *http.Request) (processor.Upload, processor.Options, bool) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		return h.readMultipart(w, r)
	}
	return h.readJSON(w, r)
}

func (h *Handle) readMultipart(w http.ResponseWriter, r *http.Request) (processor.Upload, processor.Options, bool) {
	none := processor.Upload{}
	if r.ContentLength > processor.MaxUploadBytes+formOverhead {
		writeErr(w, http.StatusRequestEntityTooLarge, "file exceeds the 10MB limit")
		return none, processor.Options{}, false
	}
	r.Body = http.MaxBytesReader(w, r.Body, processor.MaxUploadBytes+formOverhead)
	if err := r.ParseMultipartForm(processor.MaxUploadBytes); err != nil {
		if strings.Contains(err.Error(), "request body too large") {
			writeErr(w, http.StatusRequestEntityTooLarge, "file exceeds the 10MB limit")
			return none, processor.Options{}, false
		}
		writeErr(w, http.StatusBadRequest, "bad form: "+err.Error())
		return none, processor.Options{}, false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeErr(w, http.StatusBadRequest, "no file provided")
		return none, processor.Options{}, false
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, processor.MaxUploadBytes+1))
	if err != nil {
		writeErr(w, http.StatusBadRequest, "failed to read file")
		return none, processor.Options{}, false
	}
	if len(data) > processor.MaxUploadBytes {
		writeErr(w, http.StatusRequestEntityTooLarge, "file exceeds the 10MB limit")
		return none, processor.Options{}, false
	}

	useCache := true
	if v := r.FormValue("use_cache"); v != "" {
		useCache = v != "false" && v != "0"
	}

	// Clients that never set a part type send octet-stream; let the
	// magic bytes speak instead.
	declared := header.Header.Get("Content-Type")
	if declared == "application/octet-stream" {
		declared = ""
	}
	up := processor.Upload{
		Name: header.Filename,
		MIME: util.PickMIME(declared, "", data),
		Data: data,
	}
	return up, processor.Options{UseCache: useCache}, true
}

func (h *Handle) readJSON(w http.ResponseWriter, r *http.Request) (processor.Upload, processor.Options, bool) {
	none := processor.Upload{}
	var req ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "bad json: "+err.Error())
		return none, processor.Options{}, false
	}

	data, hint, err := util.DecodeBase64MaybeDataURL(req.ImageB64)
	if err != nil || len(data) == 0 {
		writeErr(w, http.StatusBadRequest, "bad image_b64")
		return none, processor.Options{}, false
	}
	if len(data) > processor.MaxUploadBytes {
		writeErr(w, http.StatusRequestEntityTooLarge, "file exceeds the 10MB limit")
		return none, processor.Options{}, false
	}

	useCache := true
	if req.UseCache != nil {
		useCache = *req.UseCache
	}
	name := req.Name
	if name == "" {
		name = "upload"
	}
	up := processor.Upload{
		Name: name,
		MIME: util.PickMIME(req.MIME, hint, data),
		Data: data,
	}
	return up, processor.Options{UseCache: useCache}, true
}

// record persists the scan when a recorder is wired. Failures are
// logged, never surfaced: history is best-effort by contract.
func (h *Handle) record(ctx context.Context, up processor.Upload, res *processor.EnrichedResult) {
	if h.rec == nil {
		return
	}
	if err := h.rec.Save(ctx, util.SHA256Hex(up.Data), up.Name, res); err != nil {
		h.log.Warn("scan history save failed", "file", up.Name, "err", err)
	}
}
