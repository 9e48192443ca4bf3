package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/clipmaster/clipmaster-api/internal/job"
	"github.com/clipmaster/clipmaster-api/internal/youtube"
)

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	service   *job.Service
	validator *validator.Validate
	logger    *slog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(service *job.Service, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		service:   service,
		validator: validator.New(),
		logger:    logger,
	}
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// CreateJob handles POST /jobs requests.
func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}

	// Validate request
	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	input := job.CreateJobInput{
		SourceURL: req.SourceURL,
		Options: job.Options{
			CaptionStyle: job.CaptionStyle(req.Options.CaptionStyle),
			MusicEnabled: req.Options.MusicEnabled,
			SfxEnabled:   req.Options.SfxEnabled,
			MaxClips:     req.Options.MaxClips,
			MinDuration:  req.Options.MinDuration,
			MaxDuration:  req.Options.MaxDuration,
		},
	}

	created, err := h.service.CreateJob(r.Context(), OwnerID(r.Context()), input)
	if err != nil {
		switch {
		case errors.Is(err, job.ErrInvalidSourceURL):
			writeError(w, http.StatusBadRequest, "invalid source URL", "INVALID_SOURCE_URL")
		case errors.Is(err, job.ErrSourceNotFound):
			writeError(w, http.StatusNotFound, "source video not found or private", "SOURCE_NOT_FOUND")
		case errors.Is(err, job.ErrGatewaySubmit):
			// The failed job was persisted; hand the caller its id so the
			// failure remains queryable.
			h.logger.Error("gateway submission failed",
				slog.String("job_id", created.ID),
				slog.String("error", err.Error()),
			)
			writeJSON(w, http.StatusInternalServerError, ErrorResponse{
				Error: "processing service unavailable",
				Code:  "GATEWAY_UNAVAILABLE",
				JobID: created.ID,
			})
		default:
			h.logger.Error("failed to create job",
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to create job", "JOB_CREATION_FAILED")
		}
		return
	}

	writeJSON(w, http.StatusCreated, toJobResponse(created))
}

// GetJobStatus handles GET /jobs/{id}/status requests. Every read passes
// through reconciliation, so the response reflects the remote job's current
// state and the deadline policy.
func (h *Handlers) GetJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return
	}

	found, err := h.service.GetJobStatus(r.Context(), OwnerID(r.Context()), jobID)
	if err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
			return
		}
		h.logger.Error("failed to get job status",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get job status", "JOB_FETCH_FAILED")
		return
	}

	writeJSON(w, http.StatusOK, toJobResponse(found))
}

// CancelJob handles POST /jobs/{id}/cancel requests. Idempotent: cancelling
// an already-terminal job reports success without side effects.
func (h *Handlers) CancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return
	}

	cancelled, err := h.service.CancelJob(r.Context(), OwnerID(r.Context()), jobID)
	if err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
			return
		}
		h.logger.Error("failed to cancel job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to cancel job", "JOB_CANCEL_FAILED")
		return
	}

	writeJSON(w, http.StatusOK, JobResponse{
		JobID:  cancelled.ID,
		Status: string(cancelled.Status),
		Stage:  cancelled.Stage,
	})
}

// ListJobs handles GET /jobs requests.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.service.ListJobs(r.Context(), OwnerID(r.Context()))
	if err != nil {
		h.logger.Error("failed to list jobs", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list jobs", "JOB_LIST_FAILED")
		return
	}

	resp := JobListResponse{Jobs: make([]JobResponse, 0, len(jobs))}
	for _, j := range jobs {
		resp.Jobs = append(resp.Jobs, toJobResponse(j))
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListClips handles GET /clips requests.
func (h *Handlers) ListClips(w http.ResponseWriter, r *http.Request) {
	clips, err := h.service.ListClips(r.Context(), OwnerID(r.Context()))
	if err != nil {
		h.logger.Error("failed to list clips", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list clips", "CLIP_LIST_FAILED")
		return
	}

	resp := ClipListResponse{Clips: make([]ClipResponse, 0, len(clips))}
	for _, c := range clips {
		resp.Clips = append(resp.Clips, toClipResponse(c))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetMetadata handles GET /metadata?url= requests, the pre-flight video
// preview before a job is created.
func (h *Handlers) GetMetadata(w http.ResponseWriter, r *http.Request) {
	sourceURL := r.URL.Query().Get("url")
	if sourceURL == "" {
		writeError(w, http.StatusBadRequest, "url query parameter is required", "MISSING_URL")
		return
	}

	video, err := h.service.GetMetadata(r.Context(), sourceURL)
	if err != nil {
		switch {
		case errors.Is(err, job.ErrInvalidSourceURL):
			writeError(w, http.StatusBadRequest, "invalid source URL", "INVALID_SOURCE_URL")
		case errors.Is(err, job.ErrSourceNotFound):
			writeError(w, http.StatusNotFound, "source video not found or private", "SOURCE_NOT_FOUND")
		case errors.Is(err, youtube.ErrUnavailable):
			writeError(w, http.StatusBadGateway, "metadata provider unavailable", "METADATA_UNAVAILABLE")
		default:
			h.logger.Error("failed to fetch metadata", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "failed to fetch metadata", "METADATA_FAILED")
		}
		return
	}

	writeJSON(w, http.StatusOK, videoToMetadataResponse(video))
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
