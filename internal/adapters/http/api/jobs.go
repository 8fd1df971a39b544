package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/okian/pitwall/internal/adapters/repository"
	"github.com/okian/pitwall/internal/domain/model"
)

// JobDependencies submits and reads asynchronous optimization jobs.
type JobDependencies interface {
	// SubmitJob enqueues a job. A repeated idempotency key returns the
	// original job with Duplicate set. A full queue yields ErrBackpressure.
	SubmitJob(ctx context.Context, sessionID, idempotencyKey string) (JobReceipt, error)
	GetJob(ctx context.Context, id string) (repository.JobRecord, error)
}

// JobReceipt acknowledges a job submission.
type JobReceipt struct {
	JobID     string          `json:"job_id"`
	Status    model.JobStatus `json:"status"`
	Duplicate bool            `json:"duplicate"`
}

// JobsHandler handles job requests.
type JobsHandler struct {
	deps JobDependencies
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(deps JobDependencies) *JobsHandler {
	return &JobsHandler{deps: deps}
}

type jobRequest struct {
	SessionID      string `json:"session_id"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

type jobResponse struct {
	ID        string          `json:"job_id"`
	SessionID string          `json:"session_id"`
	Status    model.JobStatus `json:"status"`
	Error     string          `json:"error,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// HandleSubmit handles POST /v1/jobs. The idempotency key may also be sent
// in the Idempotency-Key header.
func (h *JobsHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	const op = "api.submit_job"
	raw, err := readBody(op, r)
	if err != nil {
		writeFailure(w, err)
		return
	}
	var req jobRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		writeFailure(w, WrapKind(op, ErrBadRequest, errors.New("missing session_id")))
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = r.Header.Get("Idempotency-Key")
	}

	receipt, err := h.deps.SubmitJob(r.Context(), req.SessionID, req.IdempotencyKey)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	status := http.StatusAccepted
	if receipt.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, receipt)
}

// HandleGet handles GET /v1/jobs/{id}.
func (h *JobsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_job"
	rec, err := h.deps.GetJob(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, jobResponse{
		ID:        rec.ID,
		SessionID: rec.SessionID,
		Status:    rec.Status,
		Error:     rec.Error,
		Result:    rec.Result,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	})
}
