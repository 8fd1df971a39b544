package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/okian/pitwall/internal/domain/optimizer"
)

// OptimizeDependencies runs the engine.
type OptimizeDependencies interface {
	// Optimize runs on an inline document. prefs may be nil.
	Optimize(ctx context.Context, doc []byte, isYAML bool, prefs []byte) (*optimizer.Result, error)
	// OptimizeSession runs on a stored session with its latest preferences.
	OptimizeSession(ctx context.Context, sessionID string) (*optimizer.Result, error)
}

// OptimizeHandler handles synchronous optimization requests.
type OptimizeHandler struct {
	deps OptimizeDependencies
}

// NewOptimizeHandler creates a new optimize handler.
func NewOptimizeHandler(deps OptimizeDependencies) *OptimizeHandler {
	return &OptimizeHandler{deps: deps}
}

type optimizeRequest struct {
	Session     json.RawMessage `json:"session"`
	Preferences json.RawMessage `json:"preferences,omitempty"`
}

// HandleOptimize handles POST /v1/optimize.
func (h *OptimizeHandler) HandleOptimize(w http.ResponseWriter, r *http.Request) {
	const op = "api.optimize"
	raw, err := readBody(op, r)
	if err != nil {
		writeFailure(w, err)
		return
	}
	var req optimizeRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	if len(req.Session) == 0 || string(req.Session) == "null" {
		writeFailure(w, WrapKind(op, ErrBadRequest, errors.New("missing session")))
		return
	}
	var prefs []byte
	if len(req.Preferences) > 0 && string(req.Preferences) != "null" {
		prefs = req.Preferences
	}

	res, err := h.deps.Optimize(r.Context(), req.Session, false, prefs)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleOptimizeSession handles POST /v1/sessions/{id}/optimize.
func (h *OptimizeHandler) HandleOptimizeSession(w http.ResponseWriter, r *http.Request) {
	const op = "api.optimize_session"
	res, err := h.deps.OptimizeSession(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, res)
}
