package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nikhilbhutani/toolate/internal/membership"
	"github.com/nikhilbhutani/toolate/internal/models"
)

type Reconciler interface {
	ListMembers(ctx context.Context, orgID uuid.UUID) ([]membership.MemberView, error)
	Invite(ctx context.Context, req membership.InviteRequest) (*membership.InviteResult, error)
	UpdateMemberRole(ctx context.Context, orgID uuid.UUID, ref membership.MemberRef, role models.OrgRole) error
	RemoveMember(ctx context.Context, orgID uuid.UUID, ref membership.MemberRef) error
	Resend(ctx context.Context, invitationID uuid.UUID) (*membership.ResendResult, error)
	AcceptInvitations(ctx context.Context) (*membership.AcceptResult, error)
	ListBranchMembers(ctx context.Context, orgID uuid.UUID) ([]membership.BranchMemberView, error)
	AddBranchMember(ctx context.Context, req membership.AddBranchMemberRequest) (*models.BranchMember, error)
	RemoveBranchMember(ctx context.Context, branchID, memberID uuid.UUID) error
}

type MemberHandler struct {
	svc Reconciler
}

func NewMemberHandler(svc Reconciler) *MemberHandler {
	return &MemberHandler{svc: svc}
}

func (h *MemberHandler) List(w http.ResponseWriter, r *http.Request) {
	orgID, err := uuidParam(r, "orgID", "Invalid organization id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	members, err := h.svc.ListMembers(r.Context(), orgID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"members": members, "count": len(members)})
}

type inviteBody struct {
	Email string         `json:"email"`
	Role  models.OrgRole `json:"role"`
}

func (h *MemberHandler) Invite(w http.ResponseWriter, r *http.Request) {
	orgID, err := uuidParam(r, "orgID", "Invalid organization id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var body inviteBody
	if err := decode(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.svc.Invite(r.Context(), membership.InviteRequest{
		OrganizationID: orgID,
		Email:          body.Email,
		Role:           body.Role,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	fields := map[string]any{}
	if res.Direct {
		fields["direct"] = true
		fields["member_id"] = res.MemberID
	} else {
		fields["invitationSent"] = true
		fields["invitation_id"] = res.InvitationID
	}
	writeOK(w, http.StatusCreated, fields)
}

func (h *MemberHandler) memberRef(r *http.Request) (uuid.UUID, membership.MemberRef, error) {
	orgID, err := uuidParam(r, "orgID", "Invalid organization id")
	if err != nil {
		return uuid.Nil, membership.MemberRef{}, err
	}
	ref, err := membership.ParseMemberRef(chi.URLParam(r, "memberID"))
	return orgID, ref, err
}

func (h *MemberHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	orgID, ref, err := h.memberRef(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var body struct {
		Role models.OrgRole `json:"role"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.svc.UpdateMemberRole(r.Context(), orgID, ref, body.Role); err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, nil)
}

func (h *MemberHandler) Remove(w http.ResponseWriter, r *http.Request) {
	orgID, ref, err := h.memberRef(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.svc.RemoveMember(r.Context(), orgID, ref); err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, nil)
}

func (h *MemberHandler) Resend(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "invitationID", "Invitation not found")
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.svc.Resend(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"message": res.Message, "invitation": res.Invitation, "joined": res.Joined})
}

func (h *MemberHandler) Accept(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.AcceptInvitations(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"joined": res.Joined})
}

func (h *MemberHandler) ListBranchMembers(w http.ResponseWriter, r *http.Request) {
	orgID, err := uuidParam(r, "orgID", "Invalid organization id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	views, err := h.svc.ListBranchMembers(r.Context(), orgID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"branch_members": views, "count": len(views)})
}

func (h *MemberHandler) AddBranchMember(w http.ResponseWriter, r *http.Request) {
	branchID, err := uuidParam(r, "branchID", "Invalid branch id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var body struct {
		Email string            `json:"email"`
		Role  models.BranchRole `json:"role"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	m, err := h.svc.AddBranchMember(r.Context(), membership.AddBranchMemberRequest{
		BranchID: branchID,
		Email:    body.Email,
		Role:     body.Role,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusCreated, map[string]any{"branch_member": m})
}

func (h *MemberHandler) RemoveBranchMember(w http.ResponseWriter, r *http.Request) {
	branchID, err := uuidParam(r, "branchID", "Invalid branch id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	memberID, err := uuidParam(r, "memberID", "Invalid member id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.svc.RemoveBranchMember(r.Context(), branchID, memberID); err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, nil)
}
