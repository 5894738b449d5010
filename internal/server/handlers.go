package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/maauso/mediatools-api/internal/engine"
	"github.com/maauso/mediatools-api/internal/job"
	"github.com/maauso/mediatools-api/internal/metrics"
	"github.com/maauso/mediatools-api/internal/result"
	"github.com/maauso/mediatools-api/internal/tools"
)

// multipartMemory is how much of an upload ParseMultipartForm keeps in memory
// before spilling to temporary files.
const multipartMemory = 32 << 20

// formOverhead is the allowance for multipart framing and text fields on top
// of the file size limit.
const formOverhead = 1 << 20

// JobService is the job use case the handlers drive. *job.Service satisfies it.
type JobService interface {
	Submit(ctx context.Context, req job.Request) (*job.Job, error)
	GetJob(ctx context.Context, id string) (*job.Job, error)
	ListJobs(ctx context.Context) ([]*job.Job, error)
	DeleteJob(ctx context.Context, id string) error
	Subscribe(ctx context.Context, id string) (<-chan job.Event, func(), error)
	IsBusy() bool
}

// ResultService serves published results. *result.Materializer satisfies it.
type ResultService interface {
	Get(id string) (result.Handle, error)
	Open(ctx context.Context, id string) (result.Handle, []byte, error)
	Release(ctx context.Context, h result.Handle) error
}

// EngineStatus reports engine readiness. *engine.Session satisfies it.
type EngineStatus interface {
	Status() engine.Status
}

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	jobs      JobService
	results   ResultService
	engine    EngineStatus
	validator *validator.Validate
	logger    *slog.Logger
	maxUpload int64
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithMaxUploadBytes caps the size of uploaded input files.
func WithMaxUploadBytes(n int64) HandlerOption {
	return func(h *Handlers) {
		if n > 0 {
			h.maxUpload = n
		}
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(jobs JobService, results ResultService, eng EngineStatus, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		jobs:      jobs,
		results:   results,
		engine:    eng,
		validator: validator.New(),
		logger:    logger,
		maxUpload: tools.MaxInputSize,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Engine handles GET /engine requests.
func (h *Handlers) Engine(w http.ResponseWriter, r *http.Request) {
	st := h.engine.Status()
	metrics.SetEngineReady(st.Ready)
	writeJSON(w, http.StatusOK, EngineResponse{
		State: string(st.State),
		Ready: st.Ready,
		Tier:  string(st.Tier),
		Busy:  h.jobs.IsBusy(),
		Error: st.Error,
	})
}

// ListTools handles GET /tools requests.
func (h *Handlers) ListTools(w http.ResponseWriter, r *http.Request) {
	defs := tools.All()
	resp := ToolListResponse{Tools: make([]ToolResponse, 0, len(defs))}
	for _, def := range defs {
		resp.Tools = append(resp.Tools, newToolResponse(def))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetTool handles GET /tools/{tool} requests.
func (h *Handlers) GetTool(w http.ResponseWriter, r *http.Request) {
	def, err := tools.Lookup(tools.Tool(chi.URLParam(r, "tool")))
	if err != nil {
		writeError(w, http.StatusNotFound, "tool not found", "TOOL_NOT_FOUND")
		return
	}
	writeJSON(w, http.StatusOK, newToolResponse(def))
}

// CreateJob handles POST /tools/{tool}/jobs requests. The body is a
// multipart form with a "file" part and optional "format", "quality" and
// "segments" (JSON array) fields.
func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	tool := chi.URLParam(r, "tool")
	if _, err := tools.Lookup(tools.Tool(tool)); err != nil {
		writeError(w, http.StatusNotFound, "tool not found", "TOOL_NOT_FOUND")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+formOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds the size limit", "PAYLOAD_TOO_LARGE")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form", "INVALID_FORM")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	form := CreateJobForm{
		Tool:    tool,
		Format:  r.FormValue("format"),
		Quality: r.FormValue("quality"),
	}
	if raw := r.FormValue("segments"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &form.Segments); err != nil {
			writeError(w, http.StatusBadRequest, "segments must be a JSON array", "VALIDATION_ERROR")
			return
		}
	}

	// Validate request
	if err := h.validator.Struct(form); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required", "VALIDATION_ERROR")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.logger.Error("failed to read upload", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, "failed to read file", "INVALID_FORM")
		return
	}

	req := job.Request{
		Tool:      tools.Tool(tool),
		Format:    form.Format,
		Quality:   form.Quality,
		InputName: header.Filename,
		MimeType:  header.Header.Get("Content-Type"),
		Input:     data,
	}
	for _, s := range form.Segments {
		req.Segments = append(req.Segments, tools.Segment{Start: s.Start, End: s.End, Name: s.Name})
	}

	created, err := h.jobs.Submit(r.Context(), req)
	if err != nil {
		h.writeSubmitError(w, err)
		return
	}

	h.logger.Info("job created",
		slog.String("job_id", created.ID),
		slog.String("tool", tool),
		slog.String("input", header.Filename),
	)

	w.Header().Set("Location", "/jobs/"+created.ID)
	writeJSON(w, http.StatusAccepted, CreateJobResponse{
		ID:     created.ID,
		Status: string(created.Status),
	})
}

// writeSubmitError maps a submission failure to the error envelope.
func (h *Handlers) writeSubmitError(w http.ResponseWriter, err error) {
	var jobErr *job.Error
	switch {
	case errors.Is(err, job.ErrJobAlreadyRunning):
		writeError(w, http.StatusConflict, err.Error(), "JOB_ALREADY_RUNNING")
	case errors.Is(err, tools.ErrUnsupportedInput):
		writeError(w, http.StatusUnsupportedMediaType, err.Error(), "UNSUPPORTED_INPUT")
	case errors.Is(err, tools.ErrUnsupportedFormat),
		errors.Is(err, tools.ErrUnsupportedQuality),
		errors.Is(err, tools.ErrInvalidSegment),
		errors.Is(err, tools.ErrInvalidTimestamp),
		errors.Is(err, tools.ErrNoSegments):
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
	case errors.As(err, &jobErr) && jobErr.Kind == job.KindInitialization:
		h.logger.Error("engine not ready", slog.String("error", err.Error()))
		writeError(w, http.StatusServiceUnavailable, job.DisplayMessage(err), "ENGINE_NOT_READY")
	default:
		h.logger.Error("failed to create job", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to create job", "JOB_CREATION_FAILED")
	}
}

// ListJobs handles GET /jobs requests.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.jobs.ListJobs(r.Context())
	if err != nil {
		h.logger.Error("failed to list jobs", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list jobs", "JOB_FETCH_FAILED")
		return
	}
	resp := JobListResponse{Jobs: make([]JobResponse, 0, len(jobs))}
	for _, j := range jobs {
		resp.Jobs = append(resp.Jobs, newJobResponse(j))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetJob handles GET /jobs/{id} requests.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")

	foundJob, err := h.jobs.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
			return
		}
		h.logger.Error("failed to get job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get job", "JOB_FETCH_FAILED")
		return
	}

	writeJSON(w, http.StatusOK, newJobResponse(foundJob))
}

// DeleteJob handles DELETE /jobs/{id} requests. The job's results are
// released with it.
func (h *Handlers) DeleteJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")

	err := h.jobs.DeleteJob(r.Context(), jobID)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, job.ErrJobNotFound):
		writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
	case errors.Is(err, job.ErrJobNotFinished):
		writeError(w, http.StatusConflict, err.Error(), "JOB_NOT_FINISHED")
	default:
		h.logger.Error("failed to delete job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to delete job", "JOB_DELETE_FAILED")
	}
}

// JobEvents handles GET /jobs/{id}/events requests with a server-sent event
// stream. Each event is named after its phase and carries the event as JSON.
// A finished job yields a single event with its final state.
func (h *Handlers) JobEvents(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")

	ch, unsubscribe, err := h.jobs.Subscribe(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
			return
		}
		h.logger.Error("failed to subscribe to job", slog.String("job_id", jobID), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to get job", "JOB_FETCH_FAILED")
		return
	}
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Disable write timeout for long-lived SSE connections.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		h.logger.Warn("set write deadline for SSE", slog.String("error", err.Error()))
	}

	w.WriteHeader(http.StatusOK)
	flusher, canFlush := w.(http.Flusher)
	if canFlush {
		flusher.Flush()
	}

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				// Stream closed: report the final state from the repository,
				// which also covers jobs that finished before we subscribed.
				if final, err := h.jobs.GetJob(r.Context(), jobID); err == nil {
					_ = writeSSEEvent(w, "done", newJobResponse(final))
				}
				if canFlush {
					flusher.Flush()
				}
				return
			}
			if err := writeSSEEvent(w, string(ev.Phase), ev); err != nil {
				return // Write failed (e.g. client gone).
			}
			if canFlush {
				flusher.Flush()
			}
		case <-r.Context().Done():
			return // Client disconnected.
		}
	}
}

// GetResult handles GET /results/{id} requests by streaming the result bytes.
func (h *Handlers) GetResult(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	handle, data, err := h.results.Open(r.Context(), id)
	if err != nil {
		if errors.Is(err, result.ErrNotFound) {
			writeError(w, http.StatusNotFound, "result not found", "RESULT_NOT_FOUND")
			return
		}
		h.logger.Error("failed to open result", slog.String("result_id", id), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to open result", "RESULT_FETCH_FAILED")
		return
	}

	w.Header().Set("Content-Type", handle.MimeType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", handle.Name))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		h.logger.Warn("failed to write result", slog.String("result_id", id), slog.String("error", err.Error()))
	}
}

// DeleteResult handles DELETE /results/{id} requests. Releasing an unknown
// or already released result is not an error.
func (h *Handlers) DeleteResult(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	handle, err := h.results.Get(id)
	if err != nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err := h.results.Release(r.Context(), handle); err != nil {
		h.logger.Error("failed to release result", slog.String("result_id", id), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to release result", "RESULT_RELEASE_FAILED")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// writeSSEEvent writes a named SSE event whose data is v encoded as JSON.
func writeSSEEvent(w io.Writer, eventType string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, data)
	return err
}
