// Package server exposes the analyzer over HTTP and gRPC.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/joseph-ayodele/illustration-analyzer/internal/common"
	"github.com/joseph-ayodele/illustration-analyzer/internal/export"
	"github.com/joseph-ayodele/illustration-analyzer/internal/pipeline"
	"github.com/joseph-ayodele/illustration-analyzer/internal/telemetry"
)

const (
	uploadField  = "files"
	xlsxMIME     = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	maxPolicyLen = 1 << 20
)

// HTTPConfig carries the transport knobs from common.ServerConfig.
type HTTPConfig struct {
	MaxUploadMB    int
	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int
	Provider       string
}

// HTTPHandler serves the REST API.
type HTTPHandler struct {
	cfg     HTTPConfig
	batch   *pipeline.Batch
	proc    *pipeline.Processor
	export  *export.Service
	metrics *telemetry.Metrics
	logger  *slog.Logger
	access  *zap.Logger
	limiter *RateLimiter
}

func NewHTTPHandler(cfg HTTPConfig, proc *pipeline.Processor, batch *pipeline.Batch, exp *export.Service, m *telemetry.Metrics, logger *slog.Logger, access *zap.Logger) *HTTPHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if access == nil {
		access = zap.NewNop()
	}
	if cfg.MaxUploadMB <= 0 {
		cfg.MaxUploadMB = 50
	}
	if exp == nil {
		exp = export.NewService(logger)
	}
	h := &HTTPHandler{
		cfg:     cfg,
		batch:   batch,
		proc:    proc,
		export:  exp,
		metrics: m,
		logger:  logger,
		access:  access,
	}
	if cfg.RateLimitRPS > 0 {
		h.limiter = NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
	return h
}

// Close stops background work owned by the handler.
func (h *HTTPHandler) Close() {
	if h.limiter != nil {
		h.limiter.Stop()
	}
}

// Routes builds the mux with the middleware chain applied.
func (h *HTTPHandler) Routes() http.Handler {
	mux := http.NewServeMux()
	limited := func(route string, fn http.HandlerFunc) http.Handler {
		return instrument(h.metrics, route, RateLimitMiddleware(h.limiter, fn))
	}
	mux.Handle("POST /api/analyze", limited("/api/analyze", h.analyze))
	mux.Handle("POST /api/analyze/xlsx", limited("/api/analyze/xlsx", h.analyzeXLSX))
	mux.Handle("POST /api/metrics/compute", limited("/api/metrics/compute", h.compute))
	mux.Handle("GET /healthz", instrument(h.metrics, "/healthz", http.HandlerFunc(h.healthz)))
	mux.Handle("GET /metrics", h.metrics.Handler())

	var handler http.Handler = mux
	handler = CORS(h.cfg.CORSOrigins, handler)
	handler = Recover(h.access, handler)
	handler = AccessLog(h.access, handler)
	handler = RequestID(handler)
	return handler
}

func (h *HTTPHandler) analyze(w http.ResponseWriter, r *http.Request) {
	results, ok := h.runUploads(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (h *HTTPHandler) analyzeXLSX(w http.ResponseWriter, r *http.Request) {
	results, ok := h.runUploads(w, r)
	if !ok {
		return
	}
	out, err := h.export.ExportComparisonXLSX(r.Context(), results)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", xlsxMIME)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="illustrations-%s.xlsx"`, time.Now().UTC().Format("20060102-150405")))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

func (h *HTTPHandler) compute(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPolicyLen))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	rec, err := pipeline.DecodePolicy(body)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.proc.Compute(rec)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *HTTPHandler) healthz(w http.ResponseWriter, _ *http.Request) {
	provider := h.cfg.Provider
	if provider == "" {
		provider = common.ProviderNone
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "provider": provider})
}

// runUploads reads every part named "files" and analyzes them as one batch.
// ok is false when a response has already been written.
func (h *HTTPHandler) runUploads(w http.ResponseWriter, r *http.Request) ([]pipeline.Result, bool) {
	limit := int64(h.cfg.MaxUploadMB) << 20
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge), strings.Contains(err.Error(), "request body too large"):
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d MB", h.cfg.MaxUploadMB))
		case errors.Is(err, http.ErrNotMultipart):
			writeError(w, http.StatusUnprocessableEntity, "No files uploaded")
		default:
			writeError(w, http.StatusBadRequest, "invalid multipart form")
		}
		return nil, false
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	headers := r.MultipartForm.File[uploadField]
	if len(headers) == 0 {
		writeError(w, http.StatusUnprocessableEntity, "No files uploaded")
		return nil, false
	}
	docs := make([]pipeline.Document, 0, len(headers))
	for _, fh := range headers {
		data, err := readPart(fh)
		if err != nil {
			h.logger.Warn("http.upload.read_failed", "file", fh.Filename, "error", err)
			writeError(w, http.StatusBadRequest, "cannot read upload "+fh.Filename)
			return nil, false
		}
		docs = append(docs, pipeline.Document{Name: fh.Filename, Data: data})
	}
	common.LoggerFrom(r.Context(), h.logger).Info("http.analyze.start", "files", len(docs))
	return h.batch.Run(r.Context(), docs), true
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return io.ReadAll(f)
}

func (h *HTTPHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := common.HTTPStatus(err)
	if status >= 500 {
		common.LoggerFrom(r.Context(), h.logger).Error("http.request.failed", "path", r.URL.Path, "error", err)
	}
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
