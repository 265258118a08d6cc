package httpadapter

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/selfcanonical/csvmerge/internal/config"
	"github.com/selfcanonical/csvmerge/internal/core/ports"
)

type Router struct {
	cfg     config.Config
	creator ports.JobCreator
	reader  ports.JobReader
	storage ports.ObjectStorage

	onJobCreated func(files int, totalBytes int64)
}

func NewRouter(
	cfg config.Config,
	creator ports.JobCreator,
	reader ports.JobReader,
	storage ports.ObjectStorage,
) *Router {
	return &Router{
		cfg:     cfg,
		creator: creator,
		reader:  reader,
		storage: storage,
	}
}

// OnJobCreated registers an observation hook for accepted jobs.
func (rt *Router) OnJobCreated(fn func(files int, totalBytes int64)) {
	rt.onJobCreated = fn
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/merge-jobs", rt.createJob)
	mux.HandleFunc("/v1/merge-jobs/", rt.jobSubresource)

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxInFlight, defaultBackpressureWait)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) createJob(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	if rt.cfg.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, rt.cfg.MaxUploadBytes)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart form with 'files' parts is required"})
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "at least one 'files' part is required"})
		return
	}

	uploads := make([]ports.Upload, 0, len(headers))
	var totalBytes int64
	closers := make([]io.Closer, 0, len(headers))
	defer func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}()
	for _, header := range headers {
		file, err := header.Open()
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable multipart part: " + header.Filename})
			return
		}
		closers = append(closers, file)
		totalBytes += header.Size
		uploads = append(uploads, ports.Upload{Name: header.Filename, Body: file})
	}

	job, err := rt.creator.CreateJob(r.Context(), uploads)
	if err != nil {
		writeError(w, err)
		return
	}

	if rt.onJobCreated != nil {
		rt.onJobCreated(len(job.Files), totalBytes)
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (rt *Router) jobSubresource(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/v1/merge-jobs/")
	if id, ok := strings.CutSuffix(rest, "/download"); ok {
		rt.downloadWorkbook(w, r, id)
		return
	}
	rt.getJob(w, r, rest)
}

func (rt *Router) getJob(w http.ResponseWriter, r *http.Request, id string) {
	if id == "" || strings.Contains(id, "/") {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "job id is required"})
		return
	}

	job, err := rt.reader.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (rt *Router) downloadWorkbook(w http.ResponseWriter, r *http.Request, id string) {
	if id == "" || strings.Contains(id, "/") {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "job id is required"})
		return
	}

	job, err := rt.reader.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if job.WorkbookPath == "" {
		writeJSON(w, http.StatusConflict, map[string]string{
			"error":  "workbook not ready",
			"status": string(job.Status),
		})
		return
	}

	workbook, err := rt.storage.Open(r.Context(), job.WorkbookPath)
	if err != nil {
		writeError(w, err)
		return
	}
	defer workbook.Close()

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="merged_output.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, workbook)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}
