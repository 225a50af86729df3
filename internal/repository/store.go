package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/iliyamo/realty-crm/internal/model"
)

// UserStore covers the users table.
type UserStore interface {
	CreateUser(ctx context.Context, u *model.User) error
	UserByID(ctx context.Context, id uint64) (model.User, error)
	// ActiveUserByLogin matches an active user by email or username.
	ActiveUserByLogin(ctx context.Context, login string) (model.User, error)
	ActiveUserByEmail(ctx context.Context, email string) (model.User, error)
	TouchLastLogin(ctx context.Context, id uint64, at time.Time) error
	UpdatePasswordHash(ctx context.Context, id uint64, hash string) error
	// DeactivateUser reports whether a row existed.
	DeactivateUser(ctx context.Context, id uint64) (bool, error)
	ListUsers(ctx context.Context, f model.UserFilter) ([]model.User, error)
}

// RoleStore covers roles, permissions and both join tables.
type RoleStore interface {
	RoleByName(ctx context.Context, name string) (model.Role, error)
	AssignRole(ctx context.Context, userID, roleID uint64) error
	UserRoles(ctx context.Context, userID uint64) ([]string, error)
	UserPermissions(ctx context.Context, userID uint64) ([]model.Permission, error)
	// SeedCatalogue upserts permissions and roles and replaces each role's
	// grants with the given set.
	SeedCatalogue(ctx context.Context, perms []model.Permission, roles []model.RoleGrant) error
}

// SessionStore covers user_sessions.  Deactivation methods only touch rows
// that are still active and report how many rows they flipped, so two
// racing requests cannot both transition the same row.
type SessionStore interface {
	CreateSession(ctx context.Context, s *model.Session) error
	ActiveSessionByAccessToken(ctx context.Context, token string, now time.Time) (model.Session, error)
	// ActiveSessionByRefreshToken locks the matching row for the rest of the
	// transaction.
	ActiveSessionByRefreshToken(ctx context.Context, token string, userID uint64, now time.Time) (model.Session, error)
	TouchSession(ctx context.Context, id uint64, at time.Time) error
	DeactivateSession(ctx context.Context, id uint64) (bool, error)
	DeactivateOwnedSession(ctx context.Context, sessionID, userID uint64) (bool, error)
	// DeactivateUserSessions skips the session whose access token equals
	// exceptAccessToken when it is non-empty.
	DeactivateUserSessions(ctx context.Context, userID uint64, exceptAccessToken string) (int64, error)
	ListActiveSessions(ctx context.Context, userID uint64, now time.Time) ([]model.Session, error)
}

// ResetStore covers password_resets.
type ResetStore interface {
	CreateResetToken(ctx context.Context, t *model.PasswordResetToken) error
	// RedeemableResetToken locks an unused, unexpired row.
	RedeemableResetToken(ctx context.Context, token string, now time.Time) (model.PasswordResetToken, error)
	MarkResetTokenUsed(ctx context.Context, id uint64) (bool, error)
	// SupersedeResetTokens marks every unused token of userID used.
	SupersedeResetTokens(ctx context.Context, userID uint64) (int64, error)
}

// AuditStore covers audit_logs.  There is no update or delete.
type AuditStore interface {
	InsertAuditEntry(ctx context.Context, e *model.AuditLogEntry) error
	ListAuditEntries(ctx context.Context, f model.AuditFilter) ([]model.AuditLogEntry, error)
}

// Tx is the unit of work handed to InTx callbacks.
type Tx interface {
	UserStore
	RoleStore
	SessionStore
	ResetStore
	AuditStore
}

// Store opens transactions.  InTx commits when fn returns nil and rolls back
// on any error or panic.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// MySQLStore implements Store on database/sql with the MySQL driver.
type MySQLStore struct{ db *sql.DB }

// NewMySQLStore wraps an open pool.
func NewMySQLStore(db *sql.DB) *MySQLStore { return &MySQLStore{db: db} }

// DB exposes the pool for health checks.
func (s *MySQLStore) DB() *sql.DB { return s.db }

// InTx runs fn inside a transaction.
func (s *MySQLStore) InTx(ctx context.Context, fn func(tx Tx) error) (err error) {
	const op = "repository.InTx"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin: %w", op, err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(&sqlTx{tx: tx}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}
	return nil
}

// sqlTx implements Tx on a *sql.Tx.  Its methods live in the per-table
// files of this package.
type sqlTx struct{ tx *sql.Tx }

func limitOrDefault(limit int) int {
	if limit <= 0 || limit > 500 {
		return 100
	}
	return limit
}
