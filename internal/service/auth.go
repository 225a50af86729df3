// Package service holds the authentication and session core: token
// issuance and rotation, password lifecycle, permission resolution, session
// revocation, password reset and audit logging.  Every mutation runs in one
// repository transaction together with its audit entry.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/realty-crm/internal/model"
	"github.com/iliyamo/realty-crm/internal/repository"
	"github.com/iliyamo/realty-crm/internal/utils"
)

// Config holds the tunables of the auth core.
type Config struct {
	JWTSecret  []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	ResetTTL   time.Duration
	BcryptCost int
	CSRFSecret []byte
	CSRFMaxAge time.Duration

	// SelfServiceRoles limits the roles Register may grant.  Empty allows
	// every seeded role, admin included.
	SelfServiceRoles []string
}

// Auth is the facade route handlers talk to.
type Auth struct {
	store repository.Store
	cfg   Config
	now   func() time.Time
	log   *slog.Logger

	Tokens      *Tokens
	Permissions *Permissions
	Sessions    *Sessions
	Resets      *Resets
	Audit       *AuditLog
	CSRF        *CSRF
}

// New wires the components over one store and clock.  notifier may be nil.
func New(store repository.Store, cfg Config, notifier Notifier, now func() time.Time, log *slog.Logger) *Auth {
	if now == nil {
		now = time.Now
	}
	audit := NewAuditLog(store, now, log)
	return &Auth{
		store:       store,
		cfg:         cfg,
		now:         now,
		log:         log,
		Tokens:      NewTokens(store, TokenConfig{Secret: cfg.JWTSecret, AccessTTL: cfg.AccessTTL, RefreshTTL: cfg.RefreshTTL}, audit, now, log),
		Permissions: NewPermissions(store),
		Sessions:    NewSessions(store, audit, now),
		Resets:      NewResets(store, audit, notifier, cfg.ResetTTL, cfg.BcryptCost, now, log),
		Audit:       audit,
		CSRF:        NewCSRF(cfg.CSRFSecret, cfg.CSRFMaxAge, now),
	}
}

// RegisterInput is a self-service signup.  Role defaults to client and
// Username to Email.
type RegisterInput struct {
	Email     string
	Username  string
	Password  string
	FirstName string
	LastName  string
	Phone     string
	Company   string
	JobTitle  string
	Role      string
}

// UserSummary is the user view returned on login, registration and /me.
type UserSummary struct {
	ID          uint64     `json:"id"`
	UUID        string     `json:"uuid"`
	Email       string     `json:"email"`
	Username    string     `json:"username"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	FullName    string     `json:"full_name"`
	Company     string     `json:"company,omitempty"`
	JobTitle    string     `json:"job_title,omitempty"`
	IsActive    bool       `json:"is_active"`
	IsVerified  bool       `json:"is_verified"`
	LastLogin   *time.Time `json:"last_login,omitempty"`
	Roles       []string   `json:"roles"`
	Permissions []string   `json:"permissions"`
}

// LoginResult is returned by Authenticate.
type LoginResult struct {
	User   UserSummary `json:"user"`
	Tokens TokenPair   `json:"tokens"`
}

// Register creates an active, unverified user holding one role.
func (a *Auth) Register(ctx context.Context, in RegisterInput, client ClientInfo) (UserSummary, error) {
	const op = "service.Auth.Register"

	email := strings.ToLower(strings.TrimSpace(in.Email))
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return UserSummary{}, fmt.Errorf("%s: invalid email format: %w", op, ErrInvalidInput)
	}
	if report := utils.ValidatePasswordStrength(in.Password); !report.Valid {
		return UserSummary{}, fmt.Errorf("%s: %w", op, &WeakPasswordError{Errors: report.Errors})
	}
	roleName := strings.TrimSpace(in.Role)
	if roleName == "" {
		roleName = model.RoleClient
	}
	if len(a.cfg.SelfServiceRoles) > 0 && !slices.Contains(a.cfg.SelfServiceRoles, roleName) {
		return UserSummary{}, fmt.Errorf("%s: role %q is not open to registration: %w", op, roleName, ErrInvalidInput)
	}
	username := strings.TrimSpace(in.Username)
	if username == "" {
		username = email
	}
	hash, err := utils.HashPassword(in.Password, a.cfg.BcryptCost)
	if err != nil {
		return UserSummary{}, fmt.Errorf("%s: %w", op, err)
	}

	user := model.User{
		UUID:         uuid.NewString(),
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Phone:        in.Phone,
		Company:      in.Company,
		JobTitle:     in.JobTitle,
		IsActive:     true,
	}
	var summary UserSummary
	err = a.store.InTx(ctx, func(tx repository.Tx) error {
		role, err := tx.RoleByName(ctx, roleName)
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("role %q not found: %w", roleName, ErrInvalidInput)
		}
		if err != nil {
			return err
		}
		if err := tx.CreateUser(ctx, &user); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return fmt.Errorf("user with this email or username: %w", ErrConflict)
			}
			return err
		}
		if err := tx.AssignRole(ctx, user.ID, role.ID); err != nil {
			return err
		}
		if summary, err = summarize(ctx, tx, user); err != nil {
			return err
		}
		return a.Audit.Record(ctx, tx, Event{
			UserID:       userRef(user.ID),
			Action:       ActionUserRegistered,
			ResourceType: "user",
			ResourceID:   user.UUID,
			Details:      map[string]any{"role": roleName, "email": email},
			Client:       client,
		})
	})
	if err != nil {
		return UserSummary{}, fmt.Errorf("%s: %w", op, err)
	}
	a.log.Info("user registered", slog.String("op", op), slog.Uint64("user_id", user.ID), slog.String("role", roleName))
	return summary, nil
}

// Authenticate checks a login (email or username) and password and opens a
// session.  Failed attempts are audited and committed before
// ErrInvalidCredentials is returned.
func (a *Auth) Authenticate(ctx context.Context, login, password string, client ClientInfo) (LoginResult, error) {
	const op = "service.Auth.Authenticate"

	var (
		res    LoginResult
		failed bool
	)
	err := a.store.InTx(ctx, func(tx repository.Tx) error {
		user, err := tx.ActiveUserByLogin(ctx, login)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		if err != nil || !utils.VerifyPassword(user.PasswordHash, password) {
			failed = true
			return a.Audit.Record(ctx, tx, Event{
				Action:  ActionLoginFailed,
				Details: map[string]any{"email": login, "reason": "invalid_credentials"},
				Client:  client,
			})
		}

		now := a.now().UTC()
		if err := tx.TouchLastLogin(ctx, user.ID, now); err != nil {
			return err
		}
		user.LastLogin = &now
		if res.Tokens, err = a.Tokens.Issue(ctx, tx, user.ID, client); err != nil {
			return err
		}
		if res.User, err = summarize(ctx, tx, user); err != nil {
			return err
		}
		return a.Audit.Record(ctx, tx, Event{
			UserID:  userRef(user.ID),
			Action:  ActionLoginSuccess,
			Details: map[string]any{"device_info": client.Device},
			Client:  client,
		})
	})
	if err != nil {
		return LoginResult{}, fmt.Errorf("%s: %w", op, err)
	}
	if failed {
		a.log.Info("login failed", slog.String("op", op), slog.String("ip", client.IP))
		return LoginResult{}, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}
	return res, nil
}

// Refresh rotates a refresh token into a new pair.
func (a *Auth) Refresh(ctx context.Context, refresh string, client ClientInfo) (TokenPair, error) {
	return a.Tokens.Rotate(ctx, refresh, client)
}

// CurrentUser resolves an access token to its active user.
func (a *Auth) CurrentUser(ctx context.Context, access string) (model.User, error) {
	const op = "service.Auth.CurrentUser"

	claims, err := a.Tokens.Verify(ctx, access, utils.TokenAccess)
	if err != nil {
		return model.User{}, err
	}
	var user model.User
	err = a.store.InTx(ctx, func(tx repository.Tx) error {
		user, err = tx.UserByID(ctx, claims.UserID)
		return err
	})
	if errors.Is(err, repository.ErrNotFound) || (err == nil && !user.IsActive) {
		return model.User{}, fmt.Errorf("%s: %w", op, ErrUnauthenticated)
	}
	if err != nil {
		return model.User{}, fmt.Errorf("%s: %w", op, err)
	}
	return user, nil
}

// Summary builds the client view of user with roles and permissions.
func (a *Auth) Summary(ctx context.Context, user model.User) (UserSummary, error) {
	var out UserSummary
	err := a.store.InTx(ctx, func(tx repository.Tx) error {
		var err error
		out, err = summarize(ctx, tx, user)
		return err
	})
	if err != nil {
		return UserSummary{}, fmt.Errorf("service.Auth.Summary: %w", err)
	}
	return out, nil
}

// Logout deactivates the session behind access.
func (a *Auth) Logout(ctx context.Context, access string, client ClientInfo) (bool, error) {
	return a.Tokens.RevokeByAccessToken(ctx, access, client)
}

// ChangePassword replaces the password of userID after checking the current
// one.  Every other session of the user is closed; the session whose access
// token is keepAccess stays live.
func (a *Auth) ChangePassword(ctx context.Context, userID uint64, current, next, keepAccess string, client ClientInfo) error {
	const op = "service.Auth.ChangePassword"

	err := a.store.InTx(ctx, func(tx repository.Tx) error {
		user, err := tx.UserByID(ctx, userID)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if !utils.VerifyPassword(user.PasswordHash, current) {
			return fmt.Errorf("current password is incorrect: %w", ErrInvalidInput)
		}
		if report := utils.ValidatePasswordStrength(next); !report.Valid {
			return &WeakPasswordError{Errors: report.Errors}
		}
		hash, err := utils.HashPassword(next, a.cfg.BcryptCost)
		if err != nil {
			return err
		}
		if err := tx.UpdatePasswordHash(ctx, userID, hash); err != nil {
			return err
		}
		n, err := tx.DeactivateUserSessions(ctx, userID, keepAccess)
		if err != nil {
			return err
		}
		return a.Audit.Record(ctx, tx, Event{
			UserID:  userRef(userID),
			Action:  ActionPasswordChanged,
			Details: map[string]any{"sessions_revoked": n},
			Client:  client,
		})
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// DeactivateUser disables targetID and all of its sessions.  The audit row
// is attributed to adminID.
func (a *Auth) DeactivateUser(ctx context.Context, targetID, adminID uint64, client ClientInfo) error {
	const op = "service.Auth.DeactivateUser"

	err := a.store.InTx(ctx, func(tx repository.Tx) error {
		found, err := tx.DeactivateUser(ctx, targetID)
		if err != nil {
			return err
		}
		if !found {
			return ErrNotFound
		}
		n, err := tx.DeactivateUserSessions(ctx, targetID, "")
		if err != nil {
			return err
		}
		return a.Audit.Record(ctx, tx, Event{
			UserID:       userRef(adminID),
			Action:       ActionUserDeactivated,
			ResourceType: "user",
			ResourceID:   fmt.Sprint(targetID),
			Details:      map[string]any{"deactivated_user_id": targetID, "sessions_revoked": n},
			Client:       client,
		})
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	a.log.Info("user deactivated", slog.String("op", op), slog.Uint64("user_id", targetID), slog.Uint64("admin_id", adminID))
	return nil
}

// ListUsers pages through users for the admin surface.
func (a *Auth) ListUsers(ctx context.Context, f model.UserFilter) ([]UserSummary, error) {
	const op = "service.Auth.ListUsers"

	var out []UserSummary
	err := a.store.InTx(ctx, func(tx repository.Tx) error {
		users, err := tx.ListUsers(ctx, f)
		if err != nil {
			return err
		}
		out = make([]UserSummary, 0, len(users))
		for _, u := range users {
			s, err := summarize(ctx, tx, u)
			if err != nil {
				return err
			}
			out = append(out, s)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

// SeedRoles upserts the default permission catalogue and roles.
func (a *Auth) SeedRoles(ctx context.Context) error {
	const op = "service.Auth.SeedRoles"

	err := a.store.InTx(ctx, func(tx repository.Tx) error {
		return tx.SeedCatalogue(ctx, DefaultPermissions, DefaultRoles)
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	a.log.Info("roles seeded", slog.String("op", op), slog.Int("roles", len(DefaultRoles)), slog.Int("permissions", len(DefaultPermissions)))
	return nil
}

func summarize(ctx context.Context, tx repository.Tx, u model.User) (UserSummary, error) {
	roles, err := tx.UserRoles(ctx, u.ID)
	if err != nil {
		return UserSummary{}, err
	}
	perms, err := tx.UserPermissions(ctx, u.ID)
	if err != nil {
		return UserSummary{}, err
	}
	if roles == nil {
		roles = []string{}
	}
	return UserSummary{
		ID:          u.ID,
		UUID:        u.UUID,
		Email:       u.Email,
		Username:    u.Username,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		FullName:    u.FullName(),
		Company:     u.Company,
		JobTitle:    u.JobTitle,
		IsActive:    u.IsActive,
		IsVerified:  u.IsVerified,
		LastLogin:   u.LastLogin,
		Roles:       roles,
		Permissions: model.NewPermissionSet(perms).Sorted(),
	}, nil
}
