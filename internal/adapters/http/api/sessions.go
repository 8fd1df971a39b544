package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/okian/pitwall/internal/adapters/repository"
	"github.com/okian/pitwall/internal/domain/preferences"
)

// SessionDependencies stores and reads session documents and preferences.
type SessionDependencies interface {
	CreateSession(ctx context.Context, raw []byte, isYAML bool) (repository.SessionSummary, error)
	ListSessions(ctx context.Context) ([]repository.SessionSummary, error)
	GetSession(ctx context.Context, id string) (repository.SessionRecord, error)
	SubmitPreferences(ctx context.Context, sessionID string, raw []byte) (PreferenceReceipt, error)
}

// PreferenceReceipt acknowledges a stored questionnaire submission.
type PreferenceReceipt struct {
	ID          string                      `json:"preference_id"`
	SessionID   string                      `json:"session_id"`
	Preferences preferences.UserPreferences `json:"preferences"`
}

// SessionsHandler handles session requests.
type SessionsHandler struct {
	deps SessionDependencies
}

// NewSessionsHandler creates a new sessions handler.
func NewSessionsHandler(deps SessionDependencies) *SessionsHandler {
	return &SessionsHandler{deps: deps}
}

type createSessionResponse struct {
	SessionID string `json:"session_id"`
	repository.SessionSummary
}

type sessionResponse struct {
	ID        string          `json:"id"`
	Track     string          `json:"track"`
	Session   string          `json:"session"`
	Turns     int             `json:"turns"`
	CreatedAt time.Time       `json:"created_at"`
	Document  json.RawMessage `json:"document"`
}

// HandleCreate handles POST /v1/sessions. YAML bodies are accepted when the
// content type says so.
func (h *SessionsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_session"
	raw, err := readBody(op, r)
	if err != nil {
		writeFailure(w, err)
		return
	}
	sum, err := h.deps.CreateSession(r.Context(), raw, isYAML(r))
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusCreated, createSessionResponse{SessionID: sum.ID, SessionSummary: sum})
}

// HandleList handles GET /v1/sessions.
func (h *SessionsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_sessions"
	list, err := h.deps.ListSessions(r.Context())
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// HandleGet handles GET /v1/sessions/{id}.
func (h *SessionsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_session"
	rec, err := h.deps.GetSession(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		ID:        rec.ID,
		Track:     rec.Track,
		Session:   rec.Session,
		Turns:     rec.Turns,
		CreatedAt: rec.CreatedAt,
		Document:  rec.Document,
	})
}

// HandlePreferences handles POST /v1/sessions/{id}/preferences.
func (h *SessionsHandler) HandlePreferences(w http.ResponseWriter, r *http.Request) {
	const op = "api.submit_preferences"
	raw, err := readBody(op, r)
	if err != nil {
		writeFailure(w, err)
		return
	}
	receipt, err := h.deps.SubmitPreferences(r.Context(), r.PathValue("id"), raw)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusCreated, receipt)
}

func isYAML(r *http.Request) bool {
	ct := strings.ToLower(r.Header.Get("Content-Type"))
	return strings.Contains(ct, "yaml") || r.URL.Query().Get("format") == "yaml"
}
