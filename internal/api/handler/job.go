package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hszk-dev/abrpack/internal/domain/model"
	"github.com/hszk-dev/abrpack/internal/domain/repository"
	"github.com/hszk-dev/abrpack/internal/usecase"
)

// Request/Response types

type SubmitJobRequest struct {
	SourcePath     string   `json:"source_path"`
	OwnerID        string   `json:"owner_id"`
	BaseName       string   `json:"base_name"`
	RequestedTiers []string `json:"requested_tiers"`
}

type RenditionResponse struct {
	Tier        string `json:"tier"`
	Status      string `json:"status"`
	ManifestURL string `json:"manifest_url,omitempty"`
	StorageKey  string `json:"storage_key,omitempty"`
	Error       string `json:"error,omitempty"`
}

type ThumbnailResponse struct {
	Status        string `json:"status"`
	OffsetSeconds int    `json:"offset_seconds"`
	URL           string `json:"url,omitempty"`
	Error         string `json:"error,omitempty"`
}

type ConditionResponse struct {
	Kind    string `json:"kind"`
	Message string `json:"message,omitempty"`
}

type JobResponse struct {
	ID              string              `json:"id"`
	OwnerID         string              `json:"owner_id"`
	BaseName        string              `json:"base_name"`
	SourcePath      string              `json:"source_path"`
	RequestedTiers  []string            `json:"requested_tiers"`
	Status          string              `json:"status"`
	DurationSeconds int                 `json:"duration_seconds"`
	Renditions      []RenditionResponse `json:"renditions"`
	Thumbnail       *ThumbnailResponse  `json:"thumbnail,omitempty"`
	Conditions      []ConditionResponse `json:"conditions,omitempty"`
	FailureReason   string              `json:"failure_reason,omitempty"`
	CreatedAt       string              `json:"created_at"`
	UpdatedAt       string              `json:"updated_at"`
}

type TierLocationResponse struct {
	ManifestURL string `json:"manifest_url"`
	StorageKey  string `json:"storage_key"`
}

type JobResultResponse struct {
	Tier720         *TierLocationResponse `json:"tier720"`
	Tier1080        *TierLocationResponse `json:"tier1080"`
	ThumbnailURL    *string               `json:"thumbnail_url"`
	DurationSeconds int                   `json:"duration_seconds"`
	OverallStatus   string                `json:"overall_status"`
}

// JobHandler handles transcode job HTTP requests.
type JobHandler struct {
	svc usecase.JobService
}

// NewJobHandler creates a new JobHandler.
func NewJobHandler(svc usecase.JobService) *JobHandler {
	return &JobHandler{svc: svc}
}

// Submit handles POST /v1/jobs
func (h *JobHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req SubmitJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}

	if req.SourcePath == "" {
		Error(w, http.StatusBadRequest, "invalid_source", "Source path is required")
		return
	}

	job, err := h.svc.SubmitJob(r.Context(), usecase.SubmitJobInput{
		SourcePath: req.SourcePath,
		OwnerID:    req.OwnerID,
		BaseName:   req.BaseName,
		Tiers:      req.RequestedTiers,
	})
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	w.Header().Set("Location", "/v1/jobs/"+job.ID.String())
	JSON(w, http.StatusAccepted, toJobResponse(job))
}

// Get handles GET /v1/jobs/{id}
func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request) {
	jobID, ok := parseJobID(w, r)
	if !ok {
		return
	}

	job, err := h.svc.GetJob(r.Context(), jobID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	JSON(w, http.StatusOK, toJobResponse(job))
}

// Result handles GET /v1/jobs/{id}/result
func (h *JobHandler) Result(w http.ResponseWriter, r *http.Request) {
	jobID, ok := parseJobID(w, r)
	if !ok {
		return
	}

	res, err := h.svc.GetResult(r.Context(), jobID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	JSON(w, http.StatusOK, toJobResultResponse(res))
}

func parseJobID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	jobID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid_job_id", "Job ID must be a valid UUID")
		return uuid.Nil, false
	}
	return jobID, true
}

func (h *JobHandler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrJobNotFound):
		Error(w, http.StatusNotFound, "job_not_found", "Job not found")
	case errors.Is(err, model.ErrNoTiers):
		Error(w, http.StatusBadRequest, "invalid_tiers", "At least one tier is required")
	case errors.Is(err, model.ErrUnknownTier), errors.Is(err, model.ErrDuplicateTier):
		Error(w, http.StatusBadRequest, "invalid_tiers", err.Error())
	case errors.Is(err, model.ErrInvalidSource):
		Error(w, http.StatusBadRequest, "invalid_source", err.Error())
	case errors.Is(err, usecase.ErrJobNotFinished):
		Error(w, http.StatusConflict, "job_not_finished", "Job has not finished yet")
	case errors.Is(err, repository.ErrDuplicateJob):
		Error(w, http.StatusConflict, "duplicate_job", "Job already exists")
	default:
		Error(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}

func toJobResponse(j *model.TranscodeJob) JobResponse {
	resp := JobResponse{
		ID:              j.ID.String(),
		OwnerID:         j.Source.OwnerID,
		BaseName:        j.Source.BaseName,
		SourcePath:      j.Source.Path,
		RequestedTiers:  make([]string, 0, len(j.RequestedTiers)),
		Status:          j.Status.String(),
		DurationSeconds: j.DurationSeconds,
		Renditions:      make([]RenditionResponse, 0, len(j.Renditions)),
		FailureReason:   j.FailureReason,
		CreatedAt:       j.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       j.UpdatedAt.Format(time.RFC3339),
	}

	for _, t := range j.RequestedTiers {
		resp.RequestedTiers = append(resp.RequestedTiers, t.Label)
	}

	for _, r := range j.Renditions {
		rr := RenditionResponse{
			Tier:   r.Tier.Label,
			Status: string(r.Status),
		}
		if r.Succeeded() {
			rr.ManifestURL = r.PublicURL
			rr.StorageKey = r.StorageKey
		} else if r.Err != nil {
			rr.Error = r.Err.Error()
		}
		resp.Renditions = append(resp.Renditions, rr)
	}

	if j.Thumbnail.Status != "" {
		thumb := &ThumbnailResponse{
			Status:        string(j.Thumbnail.Status),
			OffsetSeconds: j.Thumbnail.OffsetSeconds,
		}
		if j.Thumbnail.Succeeded() {
			thumb.URL = j.Thumbnail.PublicURL
		} else if j.Thumbnail.Err != nil {
			thumb.Error = j.Thumbnail.Err.Error()
		}
		resp.Thumbnail = thumb
	}

	for _, c := range j.Conditions {
		resp.Conditions = append(resp.Conditions, ConditionResponse{
			Kind:    string(c.Kind),
			Message: c.Message,
		})
	}

	return resp
}

func toJobResultResponse(res *model.JobResult) JobResultResponse {
	return JobResultResponse{
		Tier720:         toTierLocationResponse(res.Tier720),
		Tier1080:        toTierLocationResponse(res.Tier1080),
		ThumbnailURL:    res.ThumbnailURL,
		DurationSeconds: res.DurationSeconds,
		OverallStatus:   res.OverallStatus.String(),
	}
}

func toTierLocationResponse(loc *model.TierLocation) *TierLocationResponse {
	if loc == nil {
		return nil
	}
	return &TierLocationResponse{
		ManifestURL: loc.ManifestURL,
		StorageKey:  loc.StorageKey,
	}
}
