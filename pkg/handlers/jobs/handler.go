package jobs

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/metricbridge/core/pkg/database"
	"github.com/metricbridge/core/pkg/logger"
	"github.com/metricbridge/core/pkg/models"
	"github.com/metricbridge/core/pkg/models/api"
	"github.com/metricbridge/core/pkg/scheduler"
	"github.com/metricbridge/core/pkg/utils"
	"github.com/metricbridge/core/pkg/validation"
)

const notFoundMessage = "Object not found"

// Handler exposes the job lifecycle over HTTP
type Handler struct {
	store      database.JobStore
	validator  *validation.Validator
	dispatcher scheduler.Dispatcher
	logger     *logger.Logger
}

// NewHandler creates a new jobs handler
func NewHandler(store database.JobStore, validator *validation.Validator, dispatcher scheduler.Dispatcher, log *logger.Logger) *Handler {
	return &Handler{
		store:      store,
		validator:  validator,
		dispatcher: dispatcher,
		logger:     log,
	}
}

// log returns the request-scoped logger installed by the middleware, so
// handler log lines carry the request's correlation id.
func (h *Handler) log(r *http.Request) *logger.Logger {
	return logger.WithContext(r.Context(), h.logger)
}

// Collection handles /api/jobs: POST creates, GET lists
func (h *Handler) Collection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.create(w, r)
	case http.MethodGet:
		h.list(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// Item handles /api/jobs/{id} and /api/jobs/{id}/cancel
func (h *Handler) Item(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	idStr, action, _ := strings.Cut(rest, "/")

	id, err := uuid.Parse(idStr)
	if err != nil {
		http.Error(w, "Invalid job ID", http.StatusBadRequest)
		return
	}

	switch {
	case action == "cancel" && r.Method == http.MethodPost:
		h.cancel(w, r, id)
	case action == "" && r.Method == http.MethodGet:
		h.get(w, r, id)
	case action == "" && r.Method == http.MethodDelete:
		h.delete(w, r, id)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// create handles POST /api/jobs. The job is validated, persisted PENDING and
// handed to the dispatcher; the caller gets the persisted job back without
// waiting for any execution.
func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	job := &models.Job{
		Name:                 req.Name,
		Slug:                 utils.GenerateJobSlug(req.Name),
		SourceProfileID:      req.SourceProfileID,
		DestinationProfileID: req.DestinationProfileID,
		Config:               req.Config,
		OwnerID:              r.Header.Get("X-User-ID"),
		Status:               models.JobStatusPending,
		Active:               true,
	}
	if req.RepeatPeriod != nil {
		job.RepeatPeriod = *req.RepeatPeriod
	}
	if req.StartTime != nil {
		job.StartTime = time.UnixMilli(*req.StartTime).UTC()
	} else {
		// Absent start time means "run as soon as possible".
		job.StartTime = time.Now().UTC()
	}
	if req.IncludePreviousData != nil {
		job.IncludePreviousData = *req.IncludePreviousData
	}

	result, err := h.validator.Validate(ctx, job)
	if err != nil {
		h.log(r).Error().Err(err).Str("action", "validate_failed").Msg("Job validation aborted")
		http.Error(w, "Failed to validate job", http.StatusInternalServerError)
		return
	}
	if !result.Empty() {
		writeJSON(w, http.StatusBadRequest, api.Response{Success: false, Errors: result})
		return
	}

	if err := h.store.Save(ctx, job); err != nil {
		if errors.Is(err, database.ErrDuplicateName) {
			writeJSON(w, http.StatusBadRequest, api.Response{
				Success: false,
				Errors:  map[string]string{"name": "Job already exists"},
			})
			return
		}
		h.log(r).Error().Err(err).Str("action", "save_failed").Msg("Failed to persist job")
		http.Error(w, "Failed to create job", http.StatusInternalServerError)
		return
	}

	// Hand off to the scheduling side; an error here does not fail the
	// request since the persisted PENDING job is picked up by recovery.
	if err := h.dispatcher.Accept(job); err != nil {
		h.log(r).Error().
			Err(err).
			Str("job_id", job.ID.String()).
			Str("action", "dispatch_failed").
			Msg("Scheduler refused job, recovery will re-arm it")
	}

	writeJSON(w, http.StatusCreated, api.Response{Success: true, Data: job})
}

// cancel handles POST /api/jobs/{id}/cancel
func (h *Handler) cancel(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	job, err := h.dispatcher.Cancel(r.Context(), id)
	if err != nil {
		var transitionErr *models.InvalidTransitionError
		switch {
		case errors.Is(err, database.ErrNotFound):
			http.Error(w, notFoundMessage, http.StatusNotFound)
		case errors.As(err, &transitionErr):
			http.Error(w, "Job already completed.", http.StatusBadRequest)
		default:
			h.log(r).Error().Err(err).Str("job_id", id.String()).Msg("Failed to cancel job")
			http.Error(w, "Failed to cancel job", http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, api.Response{Success: true, Data: job})
}

// delete handles DELETE /api/jobs/{id}. Only jobs in a terminal state can be
// deleted; pending or running work must be canceled first.
func (h *Handler) delete(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	ctx := r.Context()

	job, err := h.store.FindByID(ctx, id)
	if err != nil {
		h.log(r).Error().Err(err).Str("job_id", id.String()).Msg("Failed to load job")
		http.Error(w, "Failed to delete job", http.StatusInternalServerError)
		return
	}
	if job == nil {
		http.Error(w, notFoundMessage, http.StatusNotFound)
		return
	}
	if !job.IsTerminal() {
		http.Error(w, "Job has pending status and cannot be deleted.", http.StatusBadRequest)
		return
	}

	if err := h.store.Delete(ctx, id); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			http.Error(w, notFoundMessage, http.StatusNotFound)
			return
		}
		h.log(r).Error().Err(err).Str("job_id", id.String()).Msg("Failed to delete job")
		http.Error(w, "Failed to delete job", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, api.Response{Success: true})
}

// get handles GET /api/jobs/{id}
func (h *Handler) get(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	job, err := h.store.FindByID(r.Context(), id)
	if err != nil {
		h.log(r).Error().Err(err).Str("job_id", id.String()).Msg("Failed to load job")
		http.Error(w, "Failed to fetch job", http.StatusInternalServerError)
		return
	}
	if job == nil {
		http.Error(w, notFoundMessage, http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, api.Response{Success: true, Data: job})
}

// list handles GET /api/jobs
func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter := database.ListFilter{
		Count:   queryInt(r, "count"),
		Page:    queryInt(r, "page"),
		OrderBy: r.URL.Query().Get("order_by"),
	}
	if strings.EqualFold(r.URL.Query().Get("order_dir"), "asc") {
		filter.OrderDir = database.OrderAsc
	}

	jobs, err := h.store.List(r.Context(), filter)
	if err != nil {
		h.log(r).Error().Err(err).Msg("Failed to list jobs")
		http.Error(w, "Failed to fetch jobs", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, api.Response{
		Success: true,
		Data:    jobs,
		Meta: map[string]interface{}{
			"count": len(jobs),
			"page":  filter.Page,
		},
	})
}

// Count handles GET /api/jobs/count
func (h *Handler) Count(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	total, err := h.store.Count(r.Context())
	if err != nil {
		h.log(r).Error().Err(err).Msg("Failed to count jobs")
		http.Error(w, "Failed to count jobs", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, api.Response{Success: true, Data: total})
}

func queryInt(r *http.Request, key string) int {
	if value := r.URL.Query().Get(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return 0
}

func writeJSON(w http.ResponseWriter, status int, body api.Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
