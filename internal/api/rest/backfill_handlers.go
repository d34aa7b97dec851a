package rest

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"github.com/fortuna/pennant/internal/backfill"
	"github.com/fortuna/pennant/internal/ingest"
	"github.com/fortuna/pennant/internal/league"
	"github.com/fortuna/pennant/internal/scheduler"
)

// BackfillQueue is the job surface of the backfill service.
type BackfillQueue interface {
	Enqueue(ctx context.Context, req backfill.Request) (*backfill.Job, error)
	GetJob(ctx context.Context, jobID int64) (*backfill.Job, error)
	GetStatus(ctx context.Context) (*backfill.StatusSummary, error)
}

// SchedulerControl exposes the orchestrator to operators.
type SchedulerControl interface {
	GetStatus() scheduler.Status
	TriggerManualIngestion(ctx context.Context, date time.Time, mode ingest.Mode) (ingest.DateResult, error)
}

// BackfillHandler proxies API calls to the backfill service and the scheduler.
type BackfillHandler struct {
	service   BackfillQueue
	scheduler SchedulerControl
	validate  *validator.Validate
}

// NewBackfillHandler wires the REST layer to the backfill service. sched may be nil.
func NewBackfillHandler(service BackfillQueue, sched SchedulerControl) *BackfillHandler {
	return &BackfillHandler{
		service:   service,
		scheduler: sched,
		validate:  validator.New(),
	}
}

type apiBackfillRequest struct {
	StartDate string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
	Mode      string `json:"mode" validate:"omitempty,oneof=merge replace"`
}

type apiIngestRequest struct {
	Date string `json:"date" validate:"required,datetime=2006-01-02"`
	Mode string `json:"mode" validate:"omitempty,oneof=merge replace"`
}

// HandleBackfillRequest handles POST /api/v1/backfill
func (h *BackfillHandler) HandleBackfillRequest(w http.ResponseWriter, r *http.Request) {
	var req apiBackfillRequest
	if err := h.decode(r, &req); err != nil {
		respondError(w, err)
		return
	}

	start, err := league.ParseDate(req.StartDate)
	if err != nil {
		respondError(w, err)
		return
	}
	end := start
	if req.EndDate != "" {
		if end, err = league.ParseDate(req.EndDate); err != nil {
			respondError(w, err)
			return
		}
	}

	job, err := h.service.Enqueue(r.Context(), backfill.Request{
		StartDate: start,
		EndDate:   end,
		Mode:      req.Mode,
	})
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"job": jobPayload(job),
	})
}

// HandleBackfillStatus handles GET /api/v1/backfill/status
func (h *BackfillHandler) HandleBackfillStatus(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.GetStatus(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, buildStatusPayload(summary))
}

// HandleBackfillJob handles GET /api/v1/backfill/{jobID}
func (h *BackfillHandler) HandleBackfillJob(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["jobID"], 10, 64)
	if err != nil || id <= 0 {
		respondError(w, errors.Wrap(league.ErrInvalidInput, "job id must be a positive integer"))
		return
	}

	job, err := h.service.GetJob(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"job": jobPayload(job),
	})
}

// HandleSchedulerStatus handles GET /api/v1/scheduler/status
func (h *BackfillHandler) HandleSchedulerStatus(w http.ResponseWriter, r *http.Request) {
	if h.scheduler == nil {
		respondJSON(w, http.StatusOK, map[string]interface{}{"enabled": false})
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"enabled": true,
		"status":  h.scheduler.GetStatus(),
	})
}

// HandleManualIngest handles POST /api/v1/scheduler/ingest and runs one date inline.
func (h *BackfillHandler) HandleManualIngest(w http.ResponseWriter, r *http.Request) {
	if h.scheduler == nil {
		respondError(w, errors.Wrap(league.ErrDependencyUnavailable, "scheduler disabled"))
		return
	}

	var req apiIngestRequest
	if err := h.decode(r, &req); err != nil {
		respondError(w, err)
		return
	}
	date, err := league.ParseDate(req.Date)
	if err != nil {
		respondError(w, err)
		return
	}
	mode, err := ingest.ParseMode(req.Mode)
	if err != nil {
		respondError(w, err)
		return
	}

	res, err := h.scheduler.TriggerManualIngestion(r.Context(), date, mode)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (h *BackfillHandler) decode(r *http.Request, dest interface{}) error {
	if err := sonic.ConfigDefault.NewDecoder(r.Body).Decode(dest); err != nil {
		return errors.Wrapf(league.ErrInvalidInput, "invalid request body: %v", err)
	}
	if err := h.validate.Struct(dest); err != nil {
		return errors.Wrapf(league.ErrInvalidInput, "%v", err)
	}
	return nil
}

func buildStatusPayload(summary *backfill.StatusSummary) map[string]interface{} {
	response := map[string]interface{}{
		"status":  "idle",
		"message": "No active jobs",
		"history": []map[string]interface{}{},
	}

	if summary.ActiveJob != nil {
		response["status"] = summary.ActiveJob.Status
		if summary.ActiveJob.StatusMessage.Valid {
			response["message"] = summary.ActiveJob.StatusMessage.String
		}
		response["active_job"] = jobPayload(summary.ActiveJob)
	}

	history := make([]map[string]interface{}, 0, len(summary.History))
	for _, job := range summary.History {
		history = append(history, jobPayload(job))
	}

	response["history"] = history
	return response
}

func jobPayload(job *backfill.Job) map[string]interface{} {
	if job == nil {
		return nil
	}

	payload := map[string]interface{}{
		"job_id":           job.JobID,
		"mode":             job.Mode,
		"status":           job.Status,
		"start_date":       job.StartDate.Format(league.DateLayout),
		"end_date":         job.EndDate.Format(league.DateLayout),
		"progress_current": job.ProgressCurrent,
		"progress_total":   job.ProgressTotal,
		"games_accepted":   job.GamesAccepted,
		"blocks_dropped":   job.BlocksDropped,
		"created_at":       job.CreatedAt,
		"updated_at":       job.UpdatedAt,
	}

	if job.StatusMessage.Valid {
		payload["status_message"] = job.StatusMessage.String
	}
	if job.StartedAt.Valid {
		payload["started_at"] = job.StartedAt.Time
	}
	if job.CompletedAt.Valid {
		payload["completed_at"] = job.CompletedAt.Time
	}
	if job.LastError.Valid {
		payload["last_error"] = job.LastError.String
	}

	return payload
}
