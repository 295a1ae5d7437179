package membership

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/toolate/internal/apperr"
	"github.com/nikhilbhutani/toolate/internal/audit"
	"github.com/nikhilbhutani/toolate/internal/identity"
	"github.com/nikhilbhutani/toolate/internal/models"
)

// orgWith seeds an organization with an owner plus the given extra members
// and returns the owner's context.
func orgWith(h *harness, extra map[string]models.OrgRole) (uuid.UUID, context.Context, map[string]models.Account) {
	owner, ownerCtx := h.user("owner@acme.test")
	accounts := map[string]models.Account{"owner@acme.test": owner}
	roles := map[uuid.UUID]models.OrgRole{owner.ID: models.OrgRoleOwner}
	order := []uuid.UUID{owner.ID}
	for email, role := range extra {
		a, _ := h.user(email)
		accounts[email] = a
		roles[a.ID] = role
		order = append(order, a.ID)
	}
	return h.w.seedOrg("Acme", roles, order...), ownerCtx, accounts
}

func assertKind(t *testing.T, err error, want apperr.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", want)
	}
	if got := apperr.KindOf(err); got != want {
		t.Fatalf("expected kind %s, got %s (%v)", want, got, err)
	}
}

func TestInviteNewAccountRecordsPendingInvitation(t *testing.T) {
	h := newHarness(true)
	orgID, ownerCtx, _ := orgWith(h, nil)

	res, err := h.svc.Invite(ownerCtx, InviteRequest{OrganizationID: orgID, Email: " New@Acme.test ", Role: models.OrgRoleMember})
	if err != nil {
		t.Fatalf("invite: %v", err)
	}
	if !res.InvitationSent || res.Direct || res.InvitationID == nil {
		t.Fatalf("expected invitation path, got %+v", res)
	}
	if n := h.w.pendingCount(orgID, "new@acme.test"); n != 1 {
		t.Fatalf("expected 1 pending invitation, got %d", n)
	}
	if len(h.dir.provisioned) != 1 || h.dir.provisioned[0] != "new@acme.test" {
		t.Fatalf("expected account provisioned for new@acme.test, got %v", h.dir.provisioned)
	}
	if len(h.sink.invitations) != 0 {
		t.Fatalf("directory delivery should not use the sink, got %d emails", len(h.sink.invitations))
	}

	views, err := h.svc.ListMembers(ownerCtx, orgID)
	if err != nil {
		t.Fatalf("list members: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("expected owner and one pending row, got %d", len(views))
	}
	pending, ok := views[1].(PendingMember)
	if !ok {
		t.Fatalf("expected second row to be pending, got %T", views[1])
	}
	if pending.DisplayEmail() != "new@acme.test (pending)" {
		t.Errorf("unexpected pending email %q", pending.DisplayEmail())
	}
	if pending.Ref().String() != "inv-"+res.InvitationID.String() {
		t.Errorf("unexpected pending ref %q", pending.Ref())
	}
}

func TestInviteExistingAccountAddsMemberDirectly(t *testing.T) {
	h := newHarness(true)
	orgID, ownerCtx, _ := orgWith(h, nil)
	existing, _ := h.user("exists@acme.test")

	res, err := h.svc.Invite(ownerCtx, InviteRequest{OrganizationID: orgID, Email: "exists@acme.test", Role: models.OrgRoleAdmin})
	if err != nil {
		t.Fatalf("invite: %v", err)
	}
	if !res.Direct || res.MemberID == nil {
		t.Fatalf("expected direct add, got %+v", res)
	}
	if n := h.w.pendingCount(orgID, "exists@acme.test"); n != 0 {
		t.Fatalf("expected no invitation, got %d", n)
	}

	var found *models.OrganizationMember
	for _, m := range h.w.membersOf(orgID) {
		if m.UserID == existing.ID {
			found = &m
		}
	}
	if found == nil || found.Role != models.OrgRoleAdmin {
		t.Fatalf("expected admin membership, got %+v", found)
	}

	_, err = h.svc.Invite(ownerCtx, InviteRequest{OrganizationID: orgID, Email: "exists@acme.test", Role: models.OrgRoleMember})
	assertKind(t, err, apperr.Conflict)
}

func TestInviteTwiceIsDuplicate(t *testing.T) {
	h := newHarness(true)
	orgID, ownerCtx, _ := orgWith(h, nil)

	req := InviteRequest{OrganizationID: orgID, Email: "new@acme.test", Role: models.OrgRoleMember}
	if _, err := h.svc.Invite(ownerCtx, req); err != nil {
		t.Fatalf("first invite: %v", err)
	}
	_, err := h.svc.Invite(ownerCtx, req)
	assertKind(t, err, apperr.DuplicateInvitation)
	if apperr.Message(err) != "Invitation already sent" {
		t.Errorf("unexpected message %q", apperr.Message(err))
	}
	if n := h.w.pendingCount(orgID, "new@acme.test"); n != 1 {
		t.Fatalf("expected 1 pending invitation, got %d", n)
	}
}

func TestInviteByPlainMemberIsDenied(t *testing.T) {
	h := newHarness(true)
	orgID, _, accounts := orgWith(h, map[string]models.OrgRole{"staff@acme.test": models.OrgRoleMember})

	_, err := h.svc.Invite(signedIn(accounts["staff@acme.test"]), InviteRequest{
		OrganizationID: orgID, Email: "new@acme.test", Role: models.OrgRoleMember,
	})
	assertKind(t, err, apperr.PermissionDenied)
	if n := h.w.pendingCount(orgID, "new@acme.test"); n != 0 {
		t.Fatalf("expected no invitation, got %d", n)
	}
	if len(h.dir.provisioned) != 0 {
		t.Fatalf("expected no provisioning, got %v", h.dir.provisioned)
	}
}

func TestInviteValidation(t *testing.T) {
	h := newHarness(true)
	orgID, ownerCtx, _ := orgWith(h, nil)

	tests := []struct {
		name string
		req  InviteRequest
		msg  string
	}{
		{"missing email", InviteRequest{OrganizationID: orgID, Role: models.OrgRoleMember}, "All fields are required"},
		{"missing role", InviteRequest{OrganizationID: orgID, Email: "a@b.co"}, "All fields are required"},
		{"bad email", InviteRequest{OrganizationID: orgID, Email: "not-an-email", Role: models.OrgRoleMember}, "Invalid email"},
		{"bad role", InviteRequest{OrganizationID: orgID, Email: "a@b.co", Role: "janitor"}, "Invalid role"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.Invite(ownerCtx, tt.req)
			assertKind(t, err, apperr.Validation)
			if apperr.Message(err) != tt.msg {
				t.Errorf("expected %q, got %q", tt.msg, apperr.Message(err))
			}
		})
	}

	_, err := h.svc.Invite(context.Background(), InviteRequest{OrganizationID: orgID, Email: "a@b.co", Role: models.OrgRoleMember})
	assertKind(t, err, apperr.Unauthenticated)
}

func TestInviteRoleCeiling(t *testing.T) {
	h := newHarness(true)
	orgID, _, accounts := orgWith(h, map[string]models.OrgRole{
		"mgr@acme.test":   models.OrgRoleManager,
		"admin@acme.test": models.OrgRoleAdmin,
	})

	_, err := h.svc.Invite(signedIn(accounts["mgr@acme.test"]), InviteRequest{
		OrganizationID: orgID, Email: "new@acme.test", Role: models.OrgRoleAdmin,
	})
	assertKind(t, err, apperr.PermissionDenied)

	_, err = h.svc.Invite(signedIn(accounts["admin@acme.test"]), InviteRequest{
		OrganizationID: orgID, Email: "new@acme.test", Role: models.OrgRoleOwner,
	})
	assertKind(t, err, apperr.PermissionDenied)

	if _, err := h.svc.Invite(signedIn(accounts["mgr@acme.test"]), InviteRequest{
		OrganizationID: orgID, Email: "new@acme.test", Role: models.OrgRoleManager,
	}); err != nil {
		t.Fatalf("manager inviting a manager: %v", err)
	}
}

func TestInviteLock(t *testing.T) {
	h := newHarness(true)
	orgID, ownerCtx, _ := orgWith(h, nil)

	release, ok, _ := h.locker.Acquire(context.Background(), orgID.String(), "new@acme.test")
	if !ok {
		t.Fatal("expected to take the lock")
	}
	_, err := h.svc.Invite(ownerCtx, InviteRequest{OrganizationID: orgID, Email: "new@acme.test", Role: models.OrgRoleMember})
	assertKind(t, err, apperr.DuplicateInvitation)
	release()

	h.locker.err = errors.New("redis down")
	if _, err := h.svc.Invite(ownerCtx, InviteRequest{OrganizationID: orgID, Email: "new@acme.test", Role: models.OrgRoleMember}); err != nil {
		t.Fatalf("invite with locker outage: %v", err)
	}
}

func TestInviteCompensatesWhenProvisioningFails(t *testing.T) {
	h := newHarness(true)
	orgID, ownerCtx, _ := orgWith(h, nil)
	h.dir.provisionErr = errors.New("auth service unavailable")

	_, err := h.svc.Invite(ownerCtx, InviteRequest{OrganizationID: orgID, Email: "new@acme.test", Role: models.OrgRoleMember})
	assertKind(t, err, apperr.ProvisioningFailed)
	if apperr.Message(err) != "Failed to create user" {
		t.Errorf("unexpected message %q", apperr.Message(err))
	}
	if n := h.w.pendingCount(orgID, "new@acme.test"); n != 0 {
		t.Fatalf("expected invitation to be removed, got %d", n)
	}
	for _, a := range h.auditor.actions() {
		if a == audit.ActionMemberInvited {
			t.Fatal("failed invite should not be audited as invited")
		}
	}
}

func TestInviteSinkFailureIsNotSurfaced(t *testing.T) {
	h := newHarness(true)
	h.dir.delivery = identity.DeliverBySink
	h.sink.err = errors.New("smtp refused")
	orgID, ownerCtx, _ := orgWith(h, nil)

	res, err := h.svc.Invite(ownerCtx, InviteRequest{OrganizationID: orgID, Email: "new@acme.test", Role: models.OrgRoleMember})
	if err != nil {
		t.Fatalf("invite: %v", err)
	}
	if !res.InvitationSent {
		t.Fatalf("expected invitation path, got %+v", res)
	}
	if n := h.w.pendingCount(orgID, "new@acme.test"); n != 1 {
		t.Fatalf("expected 1 pending invitation, got %d", n)
	}
}

func TestInviteSinkDeliveryCarriesActionLink(t *testing.T) {
	h := newHarness(true)
	h.dir.delivery = identity.DeliverBySink
	orgID, ownerCtx, _ := orgWith(h, nil)

	if _, err := h.svc.Invite(ownerCtx, InviteRequest{OrganizationID: orgID, Email: "new@acme.test", Role: models.OrgRoleManager}); err != nil {
		t.Fatalf("invite: %v", err)
	}
	if len(h.sink.invitations) != 1 {
		t.Fatalf("expected one invitation email, got %d", len(h.sink.invitations))
	}
	msg := h.sink.invitations[0]
	if msg.To != "new@acme.test" || msg.OrganizationName != "Acme" || msg.Role != models.OrgRoleManager {
		t.Errorf("unexpected email %+v", msg)
	}
	if msg.InviterName != "owner@acme.test" {
		t.Errorf("expected inviter to fall back to email, got %q", msg.InviterName)
	}
	if msg.AcceptURL == "" {
		t.Error("expected action link in email")
	}
}

func TestResendReplacesInvitation(t *testing.T) {
	h := newHarness(true)
	orgID, ownerCtx, _ := orgWith(h, nil)

	res, err := h.svc.Invite(ownerCtx, InviteRequest{OrganizationID: orgID, Email: "new@acme.test", Role: models.OrgRoleMember})
	if err != nil {
		t.Fatalf("invite: %v", err)
	}

	first, err := h.svc.Resend(ownerCtx, *res.InvitationID)
	if err != nil {
		t.Fatalf("first resend: %v", err)
	}
	second, err := h.svc.Resend(ownerCtx, first.Invitation.ID)
	if err != nil {
		t.Fatalf("second resend: %v", err)
	}
	if second.Message != "Invitation resent successfully" {
		t.Errorf("unexpected message %q", second.Message)
	}
	if first.Invitation.ID == *res.InvitationID || second.Invitation.ID == first.Invitation.ID {
		t.Fatal("expected a fresh invitation id on each resend")
	}
	if n := h.w.pendingCount(orgID, "new@acme.test"); n != 1 {
		t.Fatalf("expected exactly 1 pending invitation, got %d", n)
	}
	if len(h.dir.resent) != 2 {
		t.Fatalf("expected two magic links for the existing account, got %d", len(h.dir.resent))
	}

	_, err = h.svc.Resend(ownerCtx, *res.InvitationID)
	assertKind(t, err, apperr.NotFound)
}

func TestResendAfterAutoJoinReportsMembership(t *testing.T) {
	h := newHarness(true)
	orgID, ownerCtx, accounts := orgWith(h, nil)
	owner := accounts["owner@acme.test"]

	inv := &models.Invitation{OrganizationID: orgID, Email: "late@acme.test", Role: models.OrgRoleMember, InvitedBy: &owner.ID}
	if err := (fakeInvitations{h.w}).Create(context.Background(), inv); err != nil {
		t.Fatalf("seed invitation: %v", err)
	}
	h.dir.onProvision = func(a models.Account) {
		ctx := context.Background()
		pending, _ := fakeInvitations{h.w}.ListPendingByEmail(ctx, a.Email)
		for i := range pending {
			if _, err := (fakeMembers{h.w}).JoinFromInvitation(ctx, &pending[i], a.ID); err != nil {
				t.Errorf("auto join: %v", err)
			}
			_ = fakeInvitations{h.w}.Resolve(ctx, pending[i].ID)
		}
	}

	res, err := h.svc.Resend(ownerCtx, inv.ID)
	if err != nil {
		t.Fatalf("resend: %v", err)
	}
	if !res.Joined || res.Invitation != nil {
		t.Fatalf("expected joined result without invitation, got %+v", res)
	}
	if n := h.w.pendingCount(orgID, "late@acme.test"); n != 0 {
		t.Fatalf("expected no pending invitation, got %d", n)
	}
	acct, _ := h.dir.FindByEmail(context.Background(), "late@acme.test")
	if acct == nil {
		t.Fatal("expected provisioned account")
	}
	if _, err := (fakeMembers{h.w}).GetMember(context.Background(), orgID, acct.ID); err != nil {
		t.Fatalf("expected membership: %v", err)
	}
}

func TestResendStillFailsWhenNobodyJoined(t *testing.T) {
	h := newHarness(true)
	orgID, ownerCtx, accounts := orgWith(h, nil)
	owner := accounts["owner@acme.test"]

	inv := &models.Invitation{OrganizationID: orgID, Email: "gone@acme.test", Role: models.OrgRoleMember, InvitedBy: &owner.ID}
	if err := (fakeInvitations{h.w}).Create(context.Background(), inv); err != nil {
		t.Fatalf("seed invitation: %v", err)
	}
	// The invitation is cancelled elsewhere while the account is provisioned.
	h.dir.onProvision = func(models.Account) {
		_ = fakeInvitations{h.w}.Delete(context.Background(), inv.ID)
	}

	_, err := h.svc.Resend(ownerCtx, inv.ID)
	assertKind(t, err, apperr.NotFound)
}

func TestInviteAcceptRoundTrip(t *testing.T) {
	h := newHarness(true)
	orgID, ownerCtx, _ := orgWith(h, nil)

	if _, err := h.svc.Invite(ownerCtx, InviteRequest{OrganizationID: orgID, Email: "new@acme.test", Role: models.OrgRoleManager}); err != nil {
		t.Fatalf("invite: %v", err)
	}
	account, _ := h.dir.FindByEmail(context.Background(), "new@acme.test")
	if account == nil {
		t.Fatal("expected provisioned account")
	}
	newCtx := signedIn(*account)

	res, err := h.svc.AcceptInvitations(newCtx)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if len(res.Joined) != 1 || res.Joined[0] != orgID {
		t.Fatalf("expected to join %s, got %v", orgID, res.Joined)
	}
	if n := h.w.pendingCount(orgID, "new@acme.test"); n != 0 {
		t.Fatalf("expected no pending invitations, got %d", n)
	}

	count := 0
	for _, m := range h.w.membersOf(orgID) {
		if m.UserID == account.ID {
			count++
			if m.Role != models.OrgRoleManager {
				t.Errorf("expected manager role, got %s", m.Role)
			}
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one membership, got %d", count)
	}
	if len(h.sink.welcomes) != 1 || h.sink.welcomes[0].DashboardURL != "https://app.example/dashboard" {
		t.Fatalf("expected one welcome email, got %+v", h.sink.welcomes)
	}

	again, err := h.svc.AcceptInvitations(newCtx)
	if err != nil {
		t.Fatalf("second accept: %v", err)
	}
	if len(again.Joined) != 0 {
		t.Fatalf("expected nothing to join, got %v", again.Joined)
	}
}

func TestRemovePendingInvitation(t *testing.T) {
	h := newHarness(true)
	orgID, ownerCtx, _ := orgWith(h, map[string]models.OrgRole{"staff@acme.test": models.OrgRoleMember})

	res, err := h.svc.Invite(ownerCtx, InviteRequest{OrganizationID: orgID, Email: "new@acme.test", Role: models.OrgRoleMember})
	if err != nil {
		t.Fatalf("invite: %v", err)
	}
	before := len(h.w.membersOf(orgID))

	ref, err := ParseMemberRef("inv-" + res.InvitationID.String())
	if err != nil {
		t.Fatalf("parse ref: %v", err)
	}
	if err := h.svc.RemoveMember(ownerCtx, orgID, ref); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if n := h.w.pendingCount(orgID, "new@acme.test"); n != 0 {
		t.Fatalf("expected invitation gone, got %d", n)
	}
	if after := len(h.w.membersOf(orgID)); after != before {
		t.Fatalf("memberships changed: %d -> %d", before, after)
	}
}

func TestRemovePendingFromAnotherOrganization(t *testing.T) {
	h := newHarness(true)
	orgID, ownerCtx, _ := orgWith(h, nil)
	res, err := h.svc.Invite(ownerCtx, InviteRequest{OrganizationID: orgID, Email: "new@acme.test", Role: models.OrgRoleMember})
	if err != nil {
		t.Fatalf("invite: %v", err)
	}

	other, otherCtx := h.user("other@beta.test")
	otherOrg := h.w.seedOrg("Beta", map[uuid.UUID]models.OrgRole{other.ID: models.OrgRoleOwner}, other.ID)

	err = h.svc.RemoveMember(otherCtx, otherOrg, MemberRef{Kind: KindPending, ID: *res.InvitationID})
	assertKind(t, err, apperr.NotFound)
	if n := h.w.pendingCount(orgID, "new@acme.test"); n != 1 {
		t.Fatalf("expected invitation untouched, got %d", n)
	}
}

func TestMemberGuards(t *testing.T) {
	h := newHarness(true)
	orgID, ownerCtx, accounts := orgWith(h, map[string]models.OrgRole{
		"admin@acme.test": models.OrgRoleAdmin,
		"mgr@acme.test":   models.OrgRoleManager,
		"staff@acme.test": models.OrgRoleMember,
	})
	memberRef := func(email string) MemberRef {
		for _, m := range h.w.membersOf(orgID) {
			if m.UserID == accounts[email].ID {
				return MemberRef{Kind: KindMember, ID: m.ID}
			}
		}
		t.Fatalf("no membership for %s", email)
		return MemberRef{}
	}
	mgrCtx := signedIn(accounts["mgr@acme.test"])
	adminCtx := signedIn(accounts["admin@acme.test"])

	t.Run("manager cannot touch admin", func(t *testing.T) {
		err := h.svc.RemoveMember(mgrCtx, orgID, memberRef("admin@acme.test"))
		assertKind(t, err, apperr.PermissionDenied)
		err = h.svc.UpdateMemberRole(mgrCtx, orgID, memberRef("admin@acme.test"), models.OrgRoleMember)
		assertKind(t, err, apperr.PermissionDenied)
	})

	t.Run("member cannot manage", func(t *testing.T) {
		err := h.svc.RemoveMember(signedIn(accounts["staff@acme.test"]), orgID, memberRef("mgr@acme.test"))
		assertKind(t, err, apperr.PermissionDenied)
	})

	t.Run("own role is fixed", func(t *testing.T) {
		err := h.svc.UpdateMemberRole(adminCtx, orgID, memberRef("admin@acme.test"), models.OrgRoleMember)
		assertKind(t, err, apperr.PermissionDenied)
	})

	t.Run("admin cannot grant owner", func(t *testing.T) {
		err := h.svc.UpdateMemberRole(adminCtx, orgID, memberRef("staff@acme.test"), models.OrgRoleOwner)
		assertKind(t, err, apperr.PermissionDenied)
	})

	t.Run("last owner stays", func(t *testing.T) {
		err := h.svc.RemoveMember(ownerCtx, orgID, memberRef("owner@acme.test"))
		assertKind(t, err, apperr.Conflict)
		if apperr.Message(err) != "An organization must keep at least one owner" {
			t.Errorf("unexpected message %q", apperr.Message(err))
		}
	})

	t.Run("manager promotes member to manager", func(t *testing.T) {
		if err := h.svc.UpdateMemberRole(mgrCtx, orgID, memberRef("staff@acme.test"), models.OrgRoleManager); err != nil {
			t.Fatalf("update: %v", err)
		}
	})

	t.Run("second owner can leave", func(t *testing.T) {
		if err := h.svc.UpdateMemberRole(ownerCtx, orgID, memberRef("admin@acme.test"), models.OrgRoleOwner); err != nil {
			t.Fatalf("promote: %v", err)
		}
		if err := h.svc.UpdateMemberRole(adminCtx, orgID, memberRef("owner@acme.test"), models.OrgRoleAdmin); err != nil {
			t.Fatalf("demote original owner: %v", err)
		}
	})
}

func TestUpdatePendingRole(t *testing.T) {
	h := newHarness(true)
	orgID, ownerCtx, _ := orgWith(h, nil)
	res, err := h.svc.Invite(ownerCtx, InviteRequest{OrganizationID: orgID, Email: "new@acme.test", Role: models.OrgRoleMember})
	if err != nil {
		t.Fatalf("invite: %v", err)
	}

	ref := MemberRef{Kind: KindPending, ID: *res.InvitationID}
	if err := h.svc.UpdateMemberRole(ownerCtx, orgID, ref, models.OrgRoleAdmin); err != nil {
		t.Fatalf("update: %v", err)
	}
	inv, _ := h.svc.invitations.Get(context.Background(), *res.InvitationID)
	if inv.Role != models.OrgRoleAdmin {
		t.Fatalf("expected admin, got %s", inv.Role)
	}
}

func TestListMembersOrderingAndSessionEmail(t *testing.T) {
	h := newHarness(true)
	orgID, ownerCtx, accounts := orgWith(h, map[string]models.OrgRole{"admin@acme.test": models.OrgRoleAdmin})

	// A member whose profile email the directory cannot see.
	ghost := uuid.New()
	h.w.mu.Lock()
	h.w.members = append(h.w.members, models.OrganizationMember{
		ID: uuid.New(), OrganizationID: orgID, UserID: ghost, Role: models.OrgRoleMember, JoinedAt: h.w.tick(),
	})
	h.w.mu.Unlock()

	views, err := h.svc.ListMembers(ownerCtx, orgID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(views) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(views))
	}
	for i := 1; i < len(views); i++ {
		prev := views[i-1].(RealMember).Membership.JoinedAt
		cur := views[i].(RealMember).Membership.JoinedAt
		if cur.Before(prev) {
			t.Fatalf("row %d joined before row %d", i, i-1)
		}
	}
	if views[2].DisplayEmail() != "" {
		t.Errorf("expected unknown email, got %q", views[2].DisplayEmail())
	}

	h.dir.emailsErr = errors.New("profiles unavailable")
	views, err = h.svc.ListMembers(signedIn(accounts["admin@acme.test"]), orgID)
	if err != nil {
		t.Fatalf("list with failing lookup: %v", err)
	}
	for _, v := range views {
		rm := v.(RealMember)
		want := ""
		if rm.Membership.UserID == accounts["admin@acme.test"].ID {
			want = "admin@acme.test"
		}
		if rm.Email != want {
			t.Errorf("member %s: expected email %q, got %q", rm.Membership.UserID, want, rm.Email)
		}
	}

	_, outsiderCtx := h.user("outsider@else.test")
	_, err = h.svc.ListMembers(outsiderCtx, orgID)
	assertKind(t, err, apperr.PermissionDenied)
}

func TestCreateOrganizationOwnsIt(t *testing.T) {
	for _, transactional := range []bool{true, false} {
		h := newHarness(transactional)
		founder, ctx := h.user("founder@acme.test")

		org, err := h.svc.CreateOrganization(ctx, CreateOrganizationRequest{Name: " Acme Foods ", Slug: "Acme-Foods", Type: "restaurant"})
		if err != nil {
			t.Fatalf("transactional=%v: create: %v", transactional, err)
		}
		if org.Slug != "acme-foods" || org.Name != "Acme Foods" {
			t.Errorf("transactional=%v: unexpected org %+v", transactional, org)
		}
		members := h.w.membersOf(org.ID)
		if len(members) != 1 || members[0].UserID != founder.ID || members[0].Role != models.OrgRoleOwner {
			t.Fatalf("transactional=%v: expected founder as sole owner, got %+v", transactional, members)
		}
	}
}

func TestCreateOrganizationCompensatesFailedMembership(t *testing.T) {
	h := newHarness(false)
	_, ctx := h.user("founder@acme.test")
	h.w.failAddMember = apperr.New(apperr.PermissionDenied, "denied by policy")

	_, err := h.svc.CreateOrganization(ctx, CreateOrganizationRequest{Name: "Acme", Slug: "acme", Type: "restaurant"})
	assertKind(t, err, apperr.PermissionDenied)
	if apperr.Message(err) != "Failed to create organization membership" {
		t.Errorf("unexpected message %q", apperr.Message(err))
	}
	if len(h.w.orgs) != 0 {
		t.Fatalf("expected organization to be deleted, %d left", len(h.w.orgs))
	}

	h.w.failAddMember = errors.New("connection reset")
	_, err = h.svc.CreateOrganization(ctx, CreateOrganizationRequest{Name: "Acme", Slug: "acme", Type: "restaurant"})
	assertKind(t, err, apperr.Conflict)
	if len(h.w.orgs) != 0 {
		t.Fatalf("expected organization to be deleted, %d left", len(h.w.orgs))
	}
}

func TestCreateOrganizationValidation(t *testing.T) {
	h := newHarness(true)
	_, ctx := h.user("founder@acme.test")

	tests := []struct {
		req CreateOrganizationRequest
		msg string
	}{
		{CreateOrganizationRequest{Name: "A", Slug: "acme", Type: "cafe"}, "Organization name must be at least 2 characters"},
		{CreateOrganizationRequest{Name: "Acme", Slug: "a", Type: "cafe"}, "Slug must be at least 2 characters"},
		{CreateOrganizationRequest{Name: "Acme", Slug: "acme"}, "Please select an organization type"},
		{CreateOrganizationRequest{Name: "Acme", Slug: "acme foods", Type: "cafe"}, "Slug can only contain lowercase letters, numbers, and hyphens"},
	}
	for _, tt := range tests {
		_, err := h.svc.CreateOrganization(ctx, tt.req)
		assertKind(t, err, apperr.Validation)
		if apperr.Message(err) != tt.msg {
			t.Errorf("%+v: expected %q, got %q", tt.req, tt.msg, apperr.Message(err))
		}
	}

	if _, err := h.svc.CreateOrganization(ctx, CreateOrganizationRequest{Name: "Acme", Slug: "acme", Type: "cafe"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err := h.svc.CreateOrganization(ctx, CreateOrganizationRequest{Name: "Acme 2", Slug: "acme", Type: "cafe"})
	assertKind(t, err, apperr.Conflict)
}

func TestStorePermissionDeniedPassesThrough(t *testing.T) {
	h := newHarness(true)
	orgID, ownerCtx, _ := orgWith(h, nil)
	h.user("exists@acme.test")
	h.w.failAddMember = apperr.New(apperr.PermissionDenied, "You do not have permission to perform this action")

	_, err := h.svc.Invite(ownerCtx, InviteRequest{OrganizationID: orgID, Email: "exists@acme.test", Role: models.OrgRoleMember})
	assertKind(t, err, apperr.PermissionDenied)
}

func TestBranchMembers(t *testing.T) {
	h := newHarness(true)
	orgID, ownerCtx, accounts := orgWith(h, map[string]models.OrgRole{
		"lead@acme.test":  models.OrgRoleMember,
		"staff@acme.test": models.OrgRoleMember,
	})
	branchID := uuid.New()
	h.w.branches[branchID] = models.Branch{ID: branchID, OrganizationID: orgID, Name: "Downtown", Code: "DT1"}

	_, err := h.svc.AddBranchMember(ownerCtx, AddBranchMemberRequest{BranchID: branchID, Email: "nobody@acme.test", Role: models.BranchRoleStaff})
	assertKind(t, err, apperr.NotFound)
	if apperr.Message(err) != "User must sign up first" {
		t.Errorf("unexpected message %q", apperr.Message(err))
	}

	_, err = h.svc.AddBranchMember(signedIn(accounts["staff@acme.test"]), AddBranchMemberRequest{BranchID: branchID, Email: "lead@acme.test", Role: models.BranchRoleManager})
	assertKind(t, err, apperr.PermissionDenied)

	if _, err := h.svc.AddBranchMember(ownerCtx, AddBranchMemberRequest{BranchID: branchID, Email: "lead@acme.test", Role: models.BranchRoleManager}); err != nil {
		t.Fatalf("owner adds lead: %v", err)
	}
	bm, err := h.svc.AddBranchMember(signedIn(accounts["lead@acme.test"]), AddBranchMemberRequest{BranchID: branchID, Email: "Staff@Acme.test", Role: models.BranchRoleStaff})
	if err != nil {
		t.Fatalf("branch member adds staff: %v", err)
	}

	_, err = h.svc.AddBranchMember(ownerCtx, AddBranchMemberRequest{BranchID: branchID, Email: "staff@acme.test", Role: models.BranchRoleViewer})
	assertKind(t, err, apperr.Conflict)

	views, err := h.svc.ListBranchMembers(ownerCtx, orgID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("expected 2 branch members, got %d", len(views))
	}
	if views[1].UserEmail != "staff@acme.test" || views[1].BranchName != "Downtown" {
		t.Errorf("unexpected view %+v", views[1])
	}

	if err := h.svc.RemoveBranchMember(ownerCtx, branchID, bm.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	views, _ = h.svc.ListBranchMembers(ownerCtx, orgID)
	if len(views) != 1 {
		t.Fatalf("expected 1 branch member after removal, got %d", len(views))
	}
}

func TestAuditTrail(t *testing.T) {
	h := newHarness(true)
	orgID, ownerCtx, _ := orgWith(h, nil)
	h.user("exists@acme.test")

	if _, err := h.svc.Invite(ownerCtx, InviteRequest{OrganizationID: orgID, Email: "exists@acme.test", Role: models.OrgRoleMember}); err != nil {
		t.Fatalf("direct add: %v", err)
	}
	if _, err := h.svc.Invite(ownerCtx, InviteRequest{OrganizationID: orgID, Email: "new@acme.test", Role: models.OrgRoleMember}); err != nil {
		t.Fatalf("invite: %v", err)
	}

	got := h.auditor.actions()
	want := []string{audit.ActionMemberAdded, audit.ActionMemberInvited}
	if len(got) != len(want) {
		t.Fatalf("expected actions %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("action %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}
