package api

import (
	"context"
	"net/http"

	"github.com/okian/pitwall/internal/domain/recovery"
)

// ReportDependencies builds driver recovery reports.
type ReportDependencies interface {
	RecoveryReport(ctx context.Context, raw []byte) (recovery.Report, error)
}

// ReportsHandler handles report requests.
type ReportsHandler struct {
	deps ReportDependencies
}

// NewReportsHandler creates a new reports handler.
func NewReportsHandler(deps ReportDependencies) *ReportsHandler {
	return &ReportsHandler{deps: deps}
}

// HandleRecovery handles POST /v1/reports/recovery.
func (h *ReportsHandler) HandleRecovery(w http.ResponseWriter, r *http.Request) {
	const op = "api.recovery_report"
	raw, err := readBody(op, r)
	if err != nil {
		writeFailure(w, err)
		return
	}
	report, err := h.deps.RecoveryReport(r.Context(), raw)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, report)
}
