package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/realty-crm/internal/model"
	"github.com/iliyamo/realty-crm/internal/repository"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type recordingNotifier struct {
	notices []ResetNotice
	err     error
}

func (n *recordingNotifier) PasswordResetRequested(_ context.Context, notice ResetNotice) error {
	n.notices = append(n.notices, notice)
	return n.err
}

type fixture struct {
	auth     *Auth
	store    *repository.MemoryStore
	clock    *fakeClock
	notifier *recordingNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := repository.NewMemoryStore()
	clock := &fakeClock{t: time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)}
	notifier := &recordingNotifier{}
	cfg := Config{
		JWTSecret:  []byte("test-secret"),
		AccessTTL:  30 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
		ResetTTL:   time.Hour,
		BcryptCost: bcrypt.MinCost,
		CSRFSecret: []byte("csrf-secret"),
		CSRFMaxAge: time.Hour,
	}
	a := New(store, cfg, notifier, clock.Now, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := a.SeedRoles(context.Background()); err != nil {
		t.Fatalf("SeedRoles() error: %v", err)
	}
	return &fixture{auth: a, store: store, clock: clock, notifier: notifier}
}

var testClient = ClientInfo{IP: "10.1.2.3", UserAgent: "go-test", Device: model.DeviceInfo{UserAgent: "go-test"}}

func (f *fixture) register(t *testing.T, email, role string) UserSummary {
	t.Helper()
	u, err := f.auth.Register(context.Background(), RegisterInput{
		Email: email, Password: "Abcdef1!", FirstName: "Test", LastName: "User", Role: role,
	}, testClient)
	if err != nil {
		t.Fatalf("Register(%s) error: %v", email, err)
	}
	return u
}

func (f *fixture) login(t *testing.T, login, password string) LoginResult {
	t.Helper()
	res, err := f.auth.Authenticate(context.Background(), login, password, testClient)
	if err != nil {
		t.Fatalf("Authenticate(%s) error: %v", login, err)
	}
	return res
}

func (f *fixture) auditActions(t *testing.T, action string) []model.AuditLogEntry {
	t.Helper()
	entries, err := f.auth.Audit.List(context.Background(), model.AuditFilter{Action: action})
	if err != nil {
		t.Fatalf("Audit.List() error: %v", err)
	}
	return entries
}

func TestRegisterLoginCurrentUserLogout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reg := f.register(t, "a@x.com", model.RoleClient)
	if reg.Username != "a@x.com" {
		t.Fatalf("expected username to default to email, got %q", reg.Username)
	}
	if len(reg.Roles) != 1 || reg.Roles[0] != model.RoleClient {
		t.Fatalf("unexpected roles: %v", reg.Roles)
	}

	res := f.login(t, "a@x.com", "Abcdef1!")
	if res.Tokens.TokenType != "bearer" || res.Tokens.ExpiresIn != 1800 {
		t.Fatalf("unexpected token pair: %+v", res.Tokens)
	}
	if res.User.LastLogin == nil {
		t.Fatalf("expected last_login to be set")
	}

	me, err := f.auth.CurrentUser(ctx, res.Tokens.AccessToken)
	if err != nil {
		t.Fatalf("CurrentUser() error: %v", err)
	}
	if me.ID != reg.ID {
		t.Fatalf("CurrentUser returned %d, want %d", me.ID, reg.ID)
	}

	revoked, err := f.auth.Logout(ctx, res.Tokens.AccessToken, testClient)
	if err != nil || !revoked {
		t.Fatalf("Logout() = %v, %v", revoked, err)
	}
	if _, err := f.auth.CurrentUser(ctx, res.Tokens.AccessToken); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated after logout, got %v", err)
	}

	for _, action := range []string{ActionUserRegistered, ActionLoginSuccess, ActionLogout} {
		if got := f.auditActions(t, action); len(got) != 1 {
			t.Errorf("expected one %s entry, got %d", action, len(got))
		}
	}
}

func TestLoginByUsername(t *testing.T) {
	f := newFixture(t)
	_, err := f.auth.Register(context.Background(), RegisterInput{
		Email: "b@x.com", Username: "bob", Password: "Abcdef1!",
	}, testClient)
	if err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	res := f.login(t, "bob", "Abcdef1!")
	if res.User.Email != "b@x.com" {
		t.Fatalf("unexpected user: %+v", res.User)
	}
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t)
	f.register(t, "dup@x.com", "")

	tests := []struct {
		name string
		in   RegisterInput
		want error
	}{
		{"bad email", RegisterInput{Email: "not-an-email", Password: "Abcdef1!"}, ErrInvalidInput},
		{"display name email", RegisterInput{Email: "Bob <bob@x.com>", Password: "Abcdef1!"}, ErrInvalidInput},
		{"weak password", RegisterInput{Email: "w@x.com", Password: "abc"}, ErrWeakPassword},
		{"unknown role", RegisterInput{Email: "r@x.com", Password: "Abcdef1!", Role: "owner"}, ErrInvalidInput},
		{"duplicate email", RegisterInput{Email: "DUP@x.com", Password: "Abcdef1!", Username: "other"}, ErrConflict},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.auth.Register(context.Background(), tc.in, testClient)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	var weak *WeakPasswordError
	_, err := f.auth.Register(context.Background(), RegisterInput{Email: "w@x.com", Password: "abcdefgh"}, testClient)
	if !errors.As(err, &weak) || len(weak.Errors) != 3 {
		t.Fatalf("expected three strength violations, got %v", err)
	}
}

func TestLoginFailureIsAudited(t *testing.T) {
	f := newFixture(t)
	f.register(t, "a@x.com", "")

	_, err := f.auth.Authenticate(context.Background(), "a@x.com", "wrong", testClient)
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	_, err = f.auth.Authenticate(context.Background(), "nobody@x.com", "Abcdef1!", testClient)
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	entries := f.auditActions(t, ActionLoginFailed)
	if len(entries) != 2 {
		t.Fatalf("expected 2 login_failed entries, got %d", len(entries))
	}
	if entries[0].UserID != nil || entries[0].IPAddress != testClient.IP {
		t.Fatalf("unexpected entry: %+v", entries[0])
	}
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.register(t, "a@x.com", "")
	other := f.login(t, "a@x.com", "Abcdef1!")
	current := f.login(t, "a@x.com", "Abcdef1!")
	keep := current.Tokens.AccessToken

	err := f.auth.ChangePassword(ctx, u.ID, "wrong", "Newpass1!", keep, testClient)
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	err = f.auth.ChangePassword(ctx, u.ID, "Abcdef1!", "weak", keep, testClient)
	if !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}
	if _, err := f.auth.CurrentUser(ctx, other.Tokens.AccessToken); err != nil {
		t.Fatalf("rejected change must not close sessions: %v", err)
	}

	if err := f.auth.ChangePassword(ctx, u.ID, "Abcdef1!", "Newpass1!", keep, testClient); err != nil {
		t.Fatalf("ChangePassword() error: %v", err)
	}
	if _, err := f.auth.CurrentUser(ctx, other.Tokens.AccessToken); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("other session should be closed, got %v", err)
	}
	if _, err := f.auth.CurrentUser(ctx, keep); err != nil {
		t.Fatalf("calling session should survive: %v", err)
	}
	live, err := f.auth.Sessions.ListActive(ctx, u.ID, keep)
	if err != nil || len(live) != 1 || !live[0].Current {
		t.Fatalf("expected only the current session, got %+v, %v", live, err)
	}

	f.login(t, "a@x.com", "Newpass1!")
	got := f.auditActions(t, ActionPasswordChanged)
	if len(got) != 1 {
		t.Fatalf("expected one password_changed entry, got %d", len(got))
	}
	if n, _ := got[0].Details["sessions_revoked"].(int64); n != 1 {
		t.Fatalf("sessions_revoked = %v, want 1", got[0].Details["sessions_revoked"])
	}
}

func TestRegisterSelfServiceRoles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.auth.cfg.SelfServiceRoles = []string{model.RoleClient, model.RoleAgent}

	in := RegisterInput{Email: "boss@x.com", Password: "Abcdef1!", Role: model.RoleAdmin}
	if _, err := f.auth.Register(ctx, in, testClient); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for admin signup, got %v", err)
	}
	if got := f.auditActions(t, ActionUserRegistered); len(got) != 0 {
		t.Fatalf("rejected signup was audited: %d entries", len(got))
	}
	if _, err := f.auth.Authenticate(ctx, "boss@x.com", "Abcdef1!", testClient); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("rejected signup created an account: %v", err)
	}

	if u := f.register(t, "agent@x.com", model.RoleAgent); len(u.Roles) != 1 || u.Roles[0] != model.RoleAgent {
		t.Fatalf("unexpected roles %v", u.Roles)
	}
	if u := f.register(t, "c@x.com", ""); len(u.Roles) != 1 || u.Roles[0] != model.RoleClient {
		t.Fatalf("default role should stay client, got %v", u.Roles)
	}
}

func TestChangePasswordWithoutKeptSessionClosesAll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.register(t, "a@x.com", "")
	res := f.login(t, "a@x.com", "Abcdef1!")

	if err := f.auth.ChangePassword(ctx, u.ID, "Abcdef1!", "Newpass1!", "", testClient); err != nil {
		t.Fatalf("ChangePassword() error: %v", err)
	}
	if _, err := f.auth.CurrentUser(ctx, res.Tokens.AccessToken); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestDeactivateUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.register(t, "admin@x.com", model.RoleAdmin)
	target := f.register(t, "t@x.com", "")
	res := f.login(t, "t@x.com", "Abcdef1!")

	if err := f.auth.DeactivateUser(ctx, target.ID, admin.ID, testClient); err != nil {
		t.Fatalf("DeactivateUser() error: %v", err)
	}
	if _, err := f.auth.CurrentUser(ctx, res.Tokens.AccessToken); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	if _, err := f.auth.Authenticate(ctx, "t@x.com", "Abcdef1!", testClient); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if err := f.auth.DeactivateUser(ctx, 9999, admin.ID, testClient); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	entries := f.auditActions(t, ActionUserDeactivated)
	if len(entries) != 1 || *entries[0].UserID != admin.ID {
		t.Fatalf("unexpected audit entries: %+v", entries)
	}
}

func TestListUsersFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "c1@x.com", model.RoleClient)
	f.register(t, "a1@x.com", model.RoleAgent)
	f.register(t, "a2@x.com", model.RoleAgent)

	agents, err := f.auth.ListUsers(ctx, model.UserFilter{Role: model.RoleAgent})
	if err != nil {
		t.Fatalf("ListUsers() error: %v", err)
	}
	if len(agents) != 2 {
		t.Fatalf("expected 2 agents, got %d", len(agents))
	}
	page, err := f.auth.ListUsers(ctx, model.UserFilter{Offset: 1, Limit: 1})
	if err != nil {
		t.Fatalf("ListUsers() error: %v", err)
	}
	if len(page) != 1 || page[0].Email != "a1@x.com" {
		t.Fatalf("unexpected page: %+v", page)
	}
}

func TestSeedRolesIsIdempotent(t *testing.T) {
	f := newFixture(t)
	if err := f.auth.SeedRoles(context.Background()); err != nil {
		t.Fatalf("second SeedRoles() error: %v", err)
	}
	u := f.register(t, "adm@x.com", model.RoleAdmin)
	if len(u.Permissions) != len(DefaultRoles[3].Permissions) {
		t.Fatalf("admin has %d permissions, want %d", len(u.Permissions), len(DefaultRoles[3].Permissions))
	}
}
