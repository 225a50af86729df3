package repository

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/realty-crm/internal/model"
)

// MemoryStore is an in-process Store used for local runs without MySQL and
// by tests.  Transactions are serialized by a mutex; a failed transaction
// restores the snapshot taken when it began.
type MemoryStore struct {
	mu    sync.Mutex
	state memState
}

type memState struct {
	users     []model.User
	roles     []model.Role
	perms     []model.Permission
	userRoles map[uint64][]uint64 // user id -> role ids
	grants    map[uint64][]uint64 // role id -> permission ids
	sessions  []model.Session
	resets    []model.PasswordResetToken
	audit     []model.AuditLogEntry
	seq       uint64
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: memState{
		userRoles: map[uint64][]uint64{},
		grants:    map[uint64][]uint64{},
	}}
}

// InTx runs fn with exclusive access to the store.
func (m *MemoryStore) InTx(ctx context.Context, fn func(tx Tx) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.state.clone()
	defer func() {
		if p := recover(); p != nil {
			m.state = snapshot
			panic(p)
		}
		if err != nil {
			m.state = snapshot
		}
	}()
	return fn(&memTx{s: &m.state})
}

func (s memState) clone() memState {
	c := memState{
		users:     slices.Clone(s.users),
		roles:     slices.Clone(s.roles),
		perms:     slices.Clone(s.perms),
		sessions:  slices.Clone(s.sessions),
		resets:    slices.Clone(s.resets),
		audit:     slices.Clone(s.audit),
		userRoles: make(map[uint64][]uint64, len(s.userRoles)),
		grants:    make(map[uint64][]uint64, len(s.grants)),
		seq:       s.seq,
	}
	for k, v := range s.userRoles {
		c.userRoles[k] = slices.Clone(v)
	}
	for k, v := range s.grants {
		c.grants[k] = slices.Clone(v)
	}
	return c
}

func (s *memState) next() uint64 {
	s.seq++
	return s.seq
}

type memTx struct{ s *memState }

// ----- users -----

func (t *memTx) CreateUser(_ context.Context, u *model.User) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	for _, ex := range t.s.users {
		if ex.Email == u.Email || ex.Username == u.Username || (u.UUID != "" && ex.UUID == u.UUID) {
			return fmt.Errorf("repository.CreateUser: %w", ErrConflict)
		}
	}
	u.ID = t.s.next()
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	t.s.users = append(t.s.users, *u)
	return nil
}

func (t *memTx) user(id uint64) *model.User {
	for i := range t.s.users {
		if t.s.users[i].ID == id {
			return &t.s.users[i]
		}
	}
	return nil
}

func (t *memTx) UserByID(_ context.Context, id uint64) (model.User, error) {
	if u := t.user(id); u != nil {
		return *u, nil
	}
	return model.User{}, fmt.Errorf("repository.UserByID: %w", ErrNotFound)
}

func (t *memTx) ActiveUserByLogin(_ context.Context, login string) (model.User, error) {
	login = strings.TrimSpace(login)
	for _, u := range t.s.users {
		if u.IsActive && (u.Email == strings.ToLower(login) || u.Username == login) {
			return u, nil
		}
	}
	return model.User{}, fmt.Errorf("repository.ActiveUserByLogin: %w", ErrNotFound)
}

func (t *memTx) ActiveUserByEmail(_ context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range t.s.users {
		if u.IsActive && u.Email == email {
			return u, nil
		}
	}
	return model.User{}, fmt.Errorf("repository.ActiveUserByEmail: %w", ErrNotFound)
}

func (t *memTx) TouchLastLogin(_ context.Context, id uint64, at time.Time) error {
	if u := t.user(id); u != nil {
		at = at.UTC()
		u.LastLogin = &at
	}
	return nil
}

func (t *memTx) UpdatePasswordHash(_ context.Context, id uint64, hash string) error {
	u := t.user(id)
	if u == nil {
		return fmt.Errorf("repository.UpdatePasswordHash: %w", ErrNotFound)
	}
	u.PasswordHash = hash
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (t *memTx) DeactivateUser(_ context.Context, id uint64) (bool, error) {
	u := t.user(id)
	if u == nil {
		return false, nil
	}
	u.IsActive = false
	return true, nil
}

func (t *memTx) ListUsers(_ context.Context, f model.UserFilter) ([]model.User, error) {
	var out []model.User
	for _, u := range t.s.users {
		if f.IsActive != nil && u.IsActive != *f.IsActive {
			continue
		}
		if f.Role != "" && !slices.Contains(t.roleNames(u.ID), f.Role) {
			continue
		}
		out = append(out, u)
	}
	return page(out, f.Offset, f.Limit), nil
}

// ----- roles -----

func (t *memTx) RoleByName(_ context.Context, name string) (model.Role, error) {
	for _, r := range t.s.roles {
		if r.Name == name {
			return r, nil
		}
	}
	return model.Role{}, fmt.Errorf("repository.RoleByName: %w", ErrNotFound)
}

func (t *memTx) AssignRole(_ context.Context, userID, roleID uint64) error {
	if !slices.Contains(t.s.userRoles[userID], roleID) {
		t.s.userRoles[userID] = append(t.s.userRoles[userID], roleID)
	}
	return nil
}

func (t *memTx) roleNames(userID uint64) []string {
	var names []string
	for _, rid := range t.s.userRoles[userID] {
		for _, r := range t.s.roles {
			if r.ID == rid {
				names = append(names, r.Name)
			}
		}
	}
	sort.Strings(names)
	return names
}

func (t *memTx) UserRoles(_ context.Context, userID uint64) ([]string, error) {
	return t.roleNames(userID), nil
}

func (t *memTx) UserPermissions(_ context.Context, userID uint64) ([]model.Permission, error) {
	seen := map[uint64]bool{}
	var out []model.Permission
	for _, rid := range t.s.userRoles[userID] {
		for _, pid := range t.s.grants[rid] {
			if seen[pid] {
				continue
			}
			seen[pid] = true
			for _, p := range t.s.perms {
				if p.ID == pid {
					out = append(out, p)
				}
			}
		}
	}
	return out, nil
}

func (t *memTx) SeedCatalogue(ctx context.Context, perms []model.Permission, roles []model.RoleGrant) error {
	byName := map[string]uint64{}
	for _, p := range t.s.perms {
		byName[p.Name] = p.ID
	}
	for _, p := range perms {
		if id, ok := byName[p.Name]; ok {
			for i := range t.s.perms {
				if t.s.perms[i].ID == id {
					t.s.perms[i].Resource, t.s.perms[i].Action = p.Resource, p.Action
				}
			}
			continue
		}
		p.ID = t.s.next()
		byName[p.Name] = p.ID
		t.s.perms = append(t.s.perms, p)
	}
	for _, g := range roles {
		role, err := t.RoleByName(ctx, g.Role.Name)
		if err != nil {
			role = g.Role
			role.ID = t.s.next()
			t.s.roles = append(t.s.roles, role)
		} else {
			for i := range t.s.roles {
				if t.s.roles[i].ID == role.ID {
					t.s.roles[i].DisplayName, t.s.roles[i].Description = g.Role.DisplayName, g.Role.Description
				}
			}
		}
		var ids []uint64
		for _, name := range g.Permissions {
			if id, ok := byName[name]; ok {
				ids = append(ids, id)
			}
		}
		t.s.grants[role.ID] = ids
	}
	return nil
}

// ----- sessions -----

func (t *memTx) CreateSession(_ context.Context, s *model.Session) error {
	for _, ex := range t.s.sessions {
		if ex.AccessToken == s.AccessToken || ex.RefreshToken == s.RefreshToken {
			return fmt.Errorf("repository.CreateSession: %w", ErrConflict)
		}
	}
	s.ID = t.s.next()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	if s.LastAccessed.IsZero() {
		s.LastAccessed = s.CreatedAt
	}
	t.s.sessions = append(t.s.sessions, *s)
	return nil
}

func (t *memTx) findSession(match func(model.Session) bool) *model.Session {
	for i := range t.s.sessions {
		if match(t.s.sessions[i]) {
			return &t.s.sessions[i]
		}
	}
	return nil
}

func (t *memTx) ActiveSessionByAccessToken(_ context.Context, token string, now time.Time) (model.Session, error) {
	s := t.findSession(func(s model.Session) bool { return s.AccessToken == token && s.Live(now) })
	if s == nil {
		return model.Session{}, fmt.Errorf("repository.ActiveSessionByAccessToken: %w", ErrNotFound)
	}
	return *s, nil
}

func (t *memTx) ActiveSessionByRefreshToken(_ context.Context, token string, userID uint64, now time.Time) (model.Session, error) {
	s := t.findSession(func(s model.Session) bool {
		return s.RefreshToken == token && s.UserID == userID && s.Live(now)
	})
	if s == nil {
		return model.Session{}, fmt.Errorf("repository.ActiveSessionByRefreshToken: %w", ErrNotFound)
	}
	return *s, nil
}

func (t *memTx) TouchSession(_ context.Context, id uint64, at time.Time) error {
	if s := t.findSession(func(s model.Session) bool { return s.ID == id }); s != nil {
		s.LastAccessed = at.UTC()
	}
	return nil
}

func (t *memTx) DeactivateSession(_ context.Context, id uint64) (bool, error) {
	s := t.findSession(func(s model.Session) bool { return s.ID == id && s.IsActive })
	if s == nil {
		return false, nil
	}
	s.IsActive = false
	return true, nil
}

func (t *memTx) DeactivateOwnedSession(_ context.Context, sessionID, userID uint64) (bool, error) {
	s := t.findSession(func(s model.Session) bool { return s.ID == sessionID && s.UserID == userID && s.IsActive })
	if s == nil {
		return false, nil
	}
	s.IsActive = false
	return true, nil
}

func (t *memTx) DeactivateUserSessions(_ context.Context, userID uint64, exceptAccessToken string) (int64, error) {
	var n int64
	for i := range t.s.sessions {
		s := &t.s.sessions[i]
		if s.UserID != userID || !s.IsActive {
			continue
		}
		if exceptAccessToken != "" && s.AccessToken == exceptAccessToken {
			continue
		}
		s.IsActive = false
		n++
	}
	return n, nil
}

func (t *memTx) ListActiveSessions(_ context.Context, userID uint64, now time.Time) ([]model.Session, error) {
	var out []model.Session
	for _, s := range t.s.sessions {
		if s.UserID == userID && s.Live(now) {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].LastAccessed.Equal(out[j].LastAccessed) {
			return out[i].ID > out[j].ID
		}
		return out[i].LastAccessed.After(out[j].LastAccessed)
	})
	return out, nil
}

// ----- password resets -----

func (t *memTx) CreateResetToken(_ context.Context, r *model.PasswordResetToken) error {
	r.ID = t.s.next()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	t.s.resets = append(t.s.resets, *r)
	return nil
}

func (t *memTx) RedeemableResetToken(_ context.Context, token string, now time.Time) (model.PasswordResetToken, error) {
	for _, r := range t.s.resets {
		if r.Token == token && r.Redeemable(now) {
			return r, nil
		}
	}
	return model.PasswordResetToken{}, fmt.Errorf("repository.RedeemableResetToken: %w", ErrNotFound)
}

func (t *memTx) MarkResetTokenUsed(_ context.Context, id uint64) (bool, error) {
	for i := range t.s.resets {
		if t.s.resets[i].ID == id && !t.s.resets[i].Used {
			t.s.resets[i].Used = true
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) SupersedeResetTokens(_ context.Context, userID uint64) (int64, error) {
	var n int64
	for i := range t.s.resets {
		if t.s.resets[i].UserID == userID && !t.s.resets[i].Used {
			t.s.resets[i].Used = true
			n++
		}
	}
	return n, nil
}

// ----- audit -----

func (t *memTx) InsertAuditEntry(_ context.Context, e *model.AuditLogEntry) error {
	e.ID = t.s.next()
	t.s.audit = append(t.s.audit, *e)
	return nil
}

func (t *memTx) ListAuditEntries(_ context.Context, f model.AuditFilter) ([]model.AuditLogEntry, error) {
	var out []model.AuditLogEntry
	for i := len(t.s.audit) - 1; i >= 0; i-- {
		e := t.s.audit[i]
		if f.UserID != nil && (e.UserID == nil || *e.UserID != *f.UserID) {
			continue
		}
		if f.Action != "" && e.Action != f.Action {
			continue
		}
		out = append(out, e)
	}
	return page(out, f.Offset, f.Limit), nil
}

func page[T any](items []T, offset, limit int) []T {
	offset = max(offset, 0)
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if l := limitOrDefault(limit); l < len(items) {
		items = items[:l]
	}
	return items
}
