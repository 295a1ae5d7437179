package membership

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/toolate/internal/apperr"
	"github.com/nikhilbhutani/toolate/internal/audit"
	"github.com/nikhilbhutani/toolate/internal/identity"
	"github.com/nikhilbhutani/toolate/internal/models"
	"github.com/nikhilbhutani/toolate/internal/notify"
	"github.com/nikhilbhutani/toolate/internal/store"
	"github.com/nikhilbhutani/toolate/internal/tenant"
)

// world is the shared in-memory state behind every fake port.
type world struct {
	mu            sync.Mutex
	now           time.Time
	orgs          map[uuid.UUID]models.Organization
	members       []models.OrganizationMember
	invitations   []models.Invitation
	branches      map[uuid.UUID]models.Branch
	branchMembers []models.BranchMember

	failAddMember error
	failOrgDelete error
}

func newWorld() *world {
	return &world{
		now:      time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		orgs:     map[uuid.UUID]models.Organization{},
		branches: map[uuid.UUID]models.Branch{},
	}
}

func (w *world) tick() time.Time {
	w.now = w.now.Add(time.Minute)
	return w.now
}

func (w *world) pendingCount(orgID uuid.UUID, email string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, inv := range w.invitations {
		if inv.OrganizationID == orgID && inv.Email == email && inv.Status == models.InvitationPending {
			n++
		}
	}
	return n
}

func (w *world) membersOf(orgID uuid.UUID) []models.OrganizationMember {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []models.OrganizationMember
	for _, m := range w.members {
		if m.OrganizationID == orgID {
			out = append(out, m)
		}
	}
	return out
}

// seedOrg creates an organization with the given members.
func (w *world) seedOrg(name string, roles map[uuid.UUID]models.OrgRole, order ...uuid.UUID) uuid.UUID {
	w.mu.Lock()
	defer w.mu.Unlock()
	id := uuid.New()
	w.orgs[id] = models.Organization{ID: id, Name: name, Slug: strings.ToLower(name), Type: "restaurant"}
	for _, uid := range order {
		w.members = append(w.members, models.OrganizationMember{
			ID: uuid.New(), OrganizationID: id, UserID: uid, Role: roles[uid], JoinedAt: w.tick(),
		})
	}
	return id
}

type fakeOrgs struct{ w *world }

func (f fakeOrgs) GetByID(_ context.Context, id uuid.UUID) (*models.Organization, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	o, ok := f.w.orgs[id]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "Organization not found")
	}
	return &o, nil
}

func (f fakeOrgs) Create(_ context.Context, org *models.Organization) error {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	for _, o := range f.w.orgs {
		if o.Slug == org.Slug {
			return apperr.New(apperr.Conflict, "This organization URL is already taken. Please choose another.")
		}
	}
	org.CreatedAt = f.w.tick()
	f.w.orgs[org.ID] = *org
	return nil
}

func (f fakeOrgs) Delete(_ context.Context, id uuid.UUID) error {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	if f.w.failOrgDelete != nil {
		return f.w.failOrgDelete
	}
	delete(f.w.orgs, id)
	return nil
}

// txOrgs adds the single-transaction create path.
type txOrgs struct{ fakeOrgs }

func (f txOrgs) CreateWithOwner(ctx context.Context, org *models.Organization, ownerID uuid.UUID) error {
	if err := f.Create(ctx, org); err != nil {
		return err
	}
	if err := (fakeMembers{f.w}).AddMember(ctx, &models.OrganizationMember{
		OrganizationID: org.ID, UserID: ownerID, Role: models.OrgRoleOwner,
	}); err != nil {
		f.w.mu.Lock()
		delete(f.w.orgs, org.ID)
		f.w.mu.Unlock()
		return err
	}
	return nil
}

type fakeMembers struct{ w *world }

func (f fakeMembers) GetMember(_ context.Context, orgID, userID uuid.UUID) (*models.OrganizationMember, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	for _, m := range f.w.members {
		if m.OrganizationID == orgID && m.UserID == userID {
			return &m, nil
		}
	}
	return nil, apperr.New(apperr.NotFound, "Member not found")
}

func (f fakeMembers) GetMemberByID(_ context.Context, orgID, id uuid.UUID) (*models.OrganizationMember, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	for _, m := range f.w.members {
		if m.OrganizationID == orgID && m.ID == id {
			return &m, nil
		}
	}
	return nil, apperr.New(apperr.NotFound, "Member not found")
}

func (f fakeMembers) ListMembers(ctx context.Context, orgID uuid.UUID) ([]models.OrganizationMember, error) {
	return f.w.membersOf(orgID), nil
}

func (f fakeMembers) AddMember(_ context.Context, m *models.OrganizationMember) error {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	if f.w.failAddMember != nil {
		return f.w.failAddMember
	}
	for _, existing := range f.w.members {
		if existing.OrganizationID == m.OrganizationID && existing.UserID == m.UserID {
			return apperr.New(apperr.Conflict, "This record already exists")
		}
	}
	m.ID = uuid.New()
	m.JoinedAt = f.w.tick()
	f.w.members = append(f.w.members, *m)
	return nil
}

func (f fakeMembers) JoinFromInvitation(_ context.Context, inv *models.Invitation, userID uuid.UUID) (bool, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	for _, existing := range f.w.members {
		if existing.OrganizationID == inv.OrganizationID && existing.UserID == userID {
			return false, nil
		}
	}
	f.w.members = append(f.w.members, models.OrganizationMember{
		ID: uuid.New(), OrganizationID: inv.OrganizationID, UserID: userID,
		Role: inv.Role, InvitedBy: inv.InvitedBy, JoinedAt: f.w.tick(),
	})
	return true, nil
}

func (f fakeMembers) UpdateMemberRole(_ context.Context, orgID, id uuid.UUID, role models.OrgRole) error {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	for i, m := range f.w.members {
		if m.OrganizationID == orgID && m.ID == id {
			f.w.members[i].Role = role
			return nil
		}
	}
	return apperr.New(apperr.NotFound, "Member not found")
}

func (f fakeMembers) RemoveMember(_ context.Context, orgID, id uuid.UUID) error {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	for i, m := range f.w.members {
		if m.OrganizationID == orgID && m.ID == id {
			f.w.members = append(f.w.members[:i], f.w.members[i+1:]...)
			return nil
		}
	}
	return apperr.New(apperr.NotFound, "Member not found")
}

func (f fakeMembers) CountOwners(_ context.Context, orgID uuid.UUID) (int, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	n := 0
	for _, m := range f.w.members {
		if m.OrganizationID == orgID && m.Role == models.OrgRoleOwner {
			n++
		}
	}
	return n, nil
}

func (f fakeMembers) GetBranchMember(_ context.Context, branchID, userID uuid.UUID) (*models.BranchMember, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	for _, m := range f.w.branchMembers {
		if m.BranchID == branchID && m.UserID == userID {
			return &m, nil
		}
	}
	return nil, apperr.New(apperr.NotFound, "Branch member not found")
}

func (f fakeMembers) ListBranchMembers(_ context.Context, orgID uuid.UUID) ([]store.BranchMemberRow, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	var out []store.BranchMemberRow
	for _, m := range f.w.branchMembers {
		b := f.w.branches[m.BranchID]
		if b.OrganizationID == orgID {
			out = append(out, store.BranchMemberRow{BranchMember: m, BranchName: b.Name})
		}
	}
	return out, nil
}

func (f fakeMembers) AddBranchMember(_ context.Context, m *models.BranchMember) error {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	for _, existing := range f.w.branchMembers {
		if existing.BranchID == m.BranchID && existing.UserID == m.UserID {
			return apperr.New(apperr.Conflict, "This record already exists")
		}
	}
	m.ID = uuid.New()
	m.JoinedAt = f.w.tick()
	f.w.branchMembers = append(f.w.branchMembers, *m)
	return nil
}

func (f fakeMembers) RemoveBranchMember(_ context.Context, branchID, id uuid.UUID) error {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	for i, m := range f.w.branchMembers {
		if m.BranchID == branchID && m.ID == id {
			f.w.branchMembers = append(f.w.branchMembers[:i], f.w.branchMembers[i+1:]...)
			return nil
		}
	}
	return apperr.New(apperr.NotFound, "Branch member not found")
}

type fakeInvitations struct{ w *world }

func (f fakeInvitations) FindPending(_ context.Context, orgID uuid.UUID, email string) (*models.Invitation, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	for _, inv := range f.w.invitations {
		if inv.OrganizationID == orgID && inv.Email == email && inv.Status == models.InvitationPending {
			return &inv, nil
		}
	}
	return nil, nil
}

func (f fakeInvitations) list(match func(models.Invitation) bool) []models.Invitation {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	var out []models.Invitation
	for _, inv := range f.w.invitations {
		if inv.Status == models.InvitationPending && match(inv) {
			out = append(out, inv)
		}
	}
	return out
}

func (f fakeInvitations) ListPending(_ context.Context, orgID uuid.UUID) ([]models.Invitation, error) {
	return f.list(func(inv models.Invitation) bool { return inv.OrganizationID == orgID }), nil
}

func (f fakeInvitations) ListPendingByEmail(_ context.Context, email string) ([]models.Invitation, error) {
	return f.list(func(inv models.Invitation) bool { return inv.Email == email }), nil
}

func (f fakeInvitations) Get(_ context.Context, id uuid.UUID) (*models.Invitation, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	for _, inv := range f.w.invitations {
		if inv.ID == id {
			return &inv, nil
		}
	}
	return nil, apperr.New(apperr.NotFound, "Invitation not found")
}

// insert mirrors the partial unique index on pending invitations.
func (f fakeInvitations) insert(inv *models.Invitation) error {
	for _, existing := range f.w.invitations {
		if existing.OrganizationID == inv.OrganizationID && existing.Email == inv.Email &&
			existing.Status == models.InvitationPending {
			return apperr.New(apperr.DuplicateInvitation, "Invitation already sent")
		}
	}
	inv.ID = uuid.New()
	inv.Status = models.InvitationPending
	inv.CreatedAt = f.w.tick()
	f.w.invitations = append(f.w.invitations, *inv)
	return nil
}

func (f fakeInvitations) Create(_ context.Context, inv *models.Invitation) error {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	return f.insert(inv)
}

func (f fakeInvitations) Replace(_ context.Context, oldID uuid.UUID, next *models.Invitation) error {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	idx := -1
	for i, inv := range f.w.invitations {
		if inv.ID == oldID && inv.Status == models.InvitationPending {
			idx = i
		}
	}
	if idx < 0 {
		return apperr.New(apperr.NotFound, "Invitation not found")
	}
	saved := append([]models.Invitation(nil), f.w.invitations...)
	f.w.invitations = append(f.w.invitations[:idx], f.w.invitations[idx+1:]...)
	if err := f.insert(next); err != nil {
		f.w.invitations = saved
		return err
	}
	return nil
}

func (f fakeInvitations) Delete(_ context.Context, id uuid.UUID) error {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	for i, inv := range f.w.invitations {
		if inv.ID == id {
			f.w.invitations = append(f.w.invitations[:i], f.w.invitations[i+1:]...)
			return nil
		}
	}
	return apperr.New(apperr.NotFound, "Invitation not found")
}

func (f fakeInvitations) UpdateRole(_ context.Context, id uuid.UUID, role models.OrgRole) error {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	for i, inv := range f.w.invitations {
		if inv.ID == id && inv.Status == models.InvitationPending {
			f.w.invitations[i].Role = role
			return nil
		}
	}
	return apperr.New(apperr.NotFound, "Invitation not found")
}

func (f fakeInvitations) Resolve(_ context.Context, id uuid.UUID) error {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	for i, inv := range f.w.invitations {
		if inv.ID == id && inv.Status == models.InvitationPending {
			f.w.invitations[i].Status = models.InvitationResolved
		}
	}
	return nil
}

type fakeBranches struct{ w *world }

func (f fakeBranches) Get(_ context.Context, id uuid.UUID) (*models.Branch, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	b, ok := f.w.branches[id]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "Branch not found")
	}
	return &b, nil
}

type fakeDirectory struct {
	mu           sync.Mutex
	accounts     map[string]models.Account
	names        map[uuid.UUID]string
	delivery     identity.Delivery
	provisionErr error
	emailsErr    error
	provisioned  []string
	resent       []string
	// onProvision runs after an account is created, like the database
	// trigger that fires when the account is confirmed on creation.
	onProvision func(models.Account)
}

func newDirectory() *fakeDirectory {
	return &fakeDirectory{
		accounts: map[string]models.Account{},
		names:    map[uuid.UUID]string{},
		delivery: identity.DeliverByDirectory,
	}
}

func (d *fakeDirectory) addAccount(email string) models.Account {
	d.mu.Lock()
	defer d.mu.Unlock()
	a := models.Account{ID: uuid.New(), Email: email}
	d.accounts[email] = a
	return a
}

func (d *fakeDirectory) FindByEmail(_ context.Context, email string) (*models.Account, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, ok := d.accounts[email]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (d *fakeDirectory) Emails(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.emailsErr != nil {
		return nil, d.emailsErr
	}
	out := map[uuid.UUID]string{}
	for _, a := range d.accounts {
		for _, id := range ids {
			if a.ID == id {
				out[id] = a.Email
			}
		}
	}
	return out, nil
}

func (d *fakeDirectory) FullName(_ context.Context, id uuid.UUID) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.names[id], nil
}

func (d *fakeDirectory) Provision(_ context.Context, email string, _ identity.ProvisionMeta) (*identity.Provisioned, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.provisionErr != nil {
		return nil, d.provisionErr
	}
	if _, ok := d.accounts[email]; ok {
		return nil, identity.ErrAccountExists
	}
	a := models.Account{ID: uuid.New(), Email: email}
	d.accounts[email] = a
	d.provisioned = append(d.provisioned, email)
	if d.onProvision != nil {
		d.onProvision(a)
	}
	p := &identity.Provisioned{UserID: a.ID}
	if d.delivery == identity.DeliverBySink {
		p.ActionLink = "https://auth.example/verify?email=" + email
	}
	return p, nil
}

func (d *fakeDirectory) Resend(_ context.Context, email string) (*identity.Provisioned, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resent = append(d.resent, email)
	p := &identity.Provisioned{}
	if d.delivery == identity.DeliverBySink {
		p.ActionLink = "https://auth.example/magic?email=" + email
	}
	return p, nil
}

type fakeSink struct {
	mu          sync.Mutex
	invitations []notify.InvitationEmail
	welcomes    []notify.WelcomeEmail
	err         error
}

func (s *fakeSink) SendInvitation(_ context.Context, msg notify.InvitationEmail) (notify.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return notify.Outcome{}, s.err
	}
	s.invitations = append(s.invitations, msg)
	return notify.Outcome{OK: true}, nil
}

func (s *fakeSink) SendWelcome(_ context.Context, msg notify.WelcomeEmail) (notify.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return notify.Outcome{}, s.err
	}
	s.welcomes = append(s.welcomes, msg)
	return notify.Outcome{OK: true}, nil
}

type fakeLocker struct {
	mu   sync.Mutex
	held map[string]bool
	err  error
}

func (l *fakeLocker) Acquire(_ context.Context, orgID, email string) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return func() {}, false, l.err
	}
	key := orgID + ":" + email
	if l.held[key] {
		return func() {}, false, nil
	}
	if l.held == nil {
		l.held = map[string]bool{}
	}
	l.held[key] = true
	return func() {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
	}, true, nil
}

type fakeAuditor struct {
	mu      sync.Mutex
	entries []audit.LogEntry
}

func (a *fakeAuditor) Log(_ context.Context, e audit.LogEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
	return nil
}

func (a *fakeAuditor) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.entries))
	for i, e := range a.entries {
		out[i] = e.Action
	}
	return out
}

// harness wires a Service to fresh fakes.
type harness struct {
	w       *world
	dir     *fakeDirectory
	sink    *fakeSink
	locker  *fakeLocker
	auditor *fakeAuditor
	svc     *Service
}

func newHarness(transactional bool) *harness {
	h := &harness{
		w:       newWorld(),
		dir:     newDirectory(),
		sink:    &fakeSink{},
		locker:  &fakeLocker{},
		auditor: &fakeAuditor{},
	}
	var orgs Organizations = fakeOrgs{h.w}
	if transactional {
		orgs = txOrgs{fakeOrgs{h.w}}
	}
	h.svc = NewService(Deps{
		Organizations: orgs,
		Memberships:   fakeMembers{h.w},
		Invitations:   fakeInvitations{h.w},
		Branches:      fakeBranches{h.w},
		Directory:     h.dir,
		Sink:          h.sink,
		Locker:        h.locker,
		Auditor:       h.auditor,
		AppURL:        "https://app.example",
	})
	return h
}

// user registers an account and returns a context signed in as it.
func (h *harness) user(email string) (models.Account, context.Context) {
	a := h.dir.addAccount(email)
	ctx := tenant.WithUser(context.Background(), &models.User{ID: a.ID, Email: email})
	return a, ctx
}

func signedIn(a models.Account) context.Context {
	return tenant.WithUser(context.Background(), &models.User{ID: a.ID, Email: a.Email})
}
