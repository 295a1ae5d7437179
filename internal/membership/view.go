package membership

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/toolate/internal/apperr"
	"github.com/nikhilbhutani/toolate/internal/models"
)

// RefKind distinguishes the two rows a member listing can contain.
type RefKind int

const (
	KindMember RefKind = iota + 1
	KindPending
)

func (k RefKind) String() string {
	switch k {
	case KindMember:
		return "member"
	case KindPending:
		return "pending"
	}
	return "unknown"
}

// pendingPrefix marks invitation ids on the wire.
const pendingPrefix = "inv-"

// MemberRef addresses one row of the member listing.
type MemberRef struct {
	Kind RefKind
	ID   uuid.UUID
}

// ParseMemberRef reads the wire form: a membership id, or "inv-" followed by
// an invitation id.
func ParseMemberRef(s string) (MemberRef, error) {
	kind := KindMember
	if rest, ok := strings.CutPrefix(s, pendingPrefix); ok {
		kind, s = KindPending, rest
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return MemberRef{}, apperr.Wrap(apperr.Validation, "Invalid member id", err)
	}
	return MemberRef{Kind: kind, ID: id}, nil
}

func (r MemberRef) String() string {
	if r.Kind == KindPending {
		return pendingPrefix + r.ID.String()
	}
	return r.ID.String()
}

// MemberView is one row of an organization's member listing: either a
// RealMember or a PendingMember.
type MemberView interface {
	Ref() MemberRef
	Role() models.OrgRole
	DisplayEmail() string
	memberView()
}

type RealMember struct {
	Membership models.OrganizationMember
	Email      string
}

func (m RealMember) Ref() MemberRef       { return MemberRef{Kind: KindMember, ID: m.Membership.ID} }
func (m RealMember) Role() models.OrgRole { return m.Membership.Role }
func (m RealMember) DisplayEmail() string { return m.Email }
func (RealMember) memberView()            {}

func (m RealMember) MarshalJSON() ([]byte, error) {
	var email *string
	if m.Email != "" {
		email = &m.Email
	}
	return json.Marshal(struct {
		ID             string         `json:"id"`
		Kind           string         `json:"kind"`
		OrganizationID uuid.UUID      `json:"organization_id"`
		UserID         uuid.UUID      `json:"user_id"`
		Role           models.OrgRole `json:"role"`
		JoinedAt       time.Time      `json:"joined_at"`
		InvitedBy      *uuid.UUID     `json:"invited_by,omitempty"`
		UserEmail      *string        `json:"user_email"`
	}{
		ID:             m.Ref().String(),
		Kind:           KindMember.String(),
		OrganizationID: m.Membership.OrganizationID,
		UserID:         m.Membership.UserID,
		Role:           m.Membership.Role,
		JoinedAt:       m.Membership.JoinedAt,
		InvitedBy:      m.Membership.InvitedBy,
		UserEmail:      email,
	})
}

type PendingMember struct {
	Invitation models.Invitation
}

func (p PendingMember) Ref() MemberRef       { return MemberRef{Kind: KindPending, ID: p.Invitation.ID} }
func (p PendingMember) Role() models.OrgRole { return p.Invitation.Role }
func (p PendingMember) DisplayEmail() string { return p.Invitation.Email + " (pending)" }
func (PendingMember) memberView()            {}

func (p PendingMember) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID             string         `json:"id"`
		Kind           string         `json:"kind"`
		OrganizationID uuid.UUID      `json:"organization_id"`
		UserID         *uuid.UUID     `json:"user_id"`
		Role           models.OrgRole `json:"role"`
		CreatedAt      time.Time      `json:"created_at"`
		UserEmail      string         `json:"user_email"`
	}{
		ID:             p.Ref().String(),
		Kind:           KindPending.String(),
		OrganizationID: p.Invitation.OrganizationID,
		Role:           p.Invitation.Role,
		CreatedAt:      p.Invitation.CreatedAt,
		UserEmail:      p.DisplayEmail(),
	})
}

// BranchMemberView is a branch membership with the details the staff page
// shows.
type BranchMemberView struct {
	models.BranchMember
	UserEmail  string `json:"user_email"`
	BranchName string `json:"branch_name"`
}
