package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/toolate/internal/apperr"
	"github.com/nikhilbhutani/toolate/internal/audit"
	"github.com/nikhilbhutani/toolate/internal/auth"
	"github.com/nikhilbhutani/toolate/internal/models"
	"github.com/nikhilbhutani/toolate/internal/tenant"
)

type AuditReader interface {
	List(ctx context.Context, orgID uuid.UUID, q audit.Query) ([]models.AuditLog, error)
}

type MemberLookup interface {
	GetMember(ctx context.Context, orgID, userID uuid.UUID) (*models.OrganizationMember, error)
}

// AdminHandler serves the organization audit trail to owners and admins.
type AdminHandler struct {
	audit   AuditReader
	members MemberLookup
}

func NewAdminHandler(auditLog AuditReader, members MemberLookup) *AdminHandler {
	return &AdminHandler{audit: auditLog, members: members}
}

const msgNoAuditAccess = "You do not have permission to view the audit log"

func (h *AdminHandler) AuditLogs(w http.ResponseWriter, r *http.Request) {
	orgID, err := uuidParam(r, "orgID", "Invalid organization id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	u := tenant.UserFromContext(r.Context())
	if u == nil {
		writeError(w, r, apperr.New(apperr.Unauthenticated, "You must be logged in"))
		return
	}
	m, err := h.members.GetMember(r.Context(), orgID, u.ID)
	if apperr.Is(err, apperr.NotFound) || (err == nil && !auth.CanViewAudit(m.Role)) {
		writeError(w, r, apperr.New(apperr.PermissionDenied, msgNoAuditAccess))
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	query := r.URL.Query()
	q := audit.Query{Action: query.Get("action")}
	q.Limit, _ = strconv.Atoi(query.Get("limit"))
	q.Offset, _ = strconv.Atoi(query.Get("offset"))
	if q.Limit <= 0 {
		q.Limit = 50
	}
	if s := query.Get("start_date"); s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			q.StartDate = &t
		}
	}
	if s := query.Get("end_date"); s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			q.EndDate = &t
		}
	}

	logs, err := h.audit.List(r.Context(), orgID, q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if logs == nil {
		logs = []models.AuditLog{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"audit_logs": logs, "count": len(logs)})
}
