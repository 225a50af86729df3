package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/iliyamo/realty-crm/internal/model"
	"github.com/iliyamo/realty-crm/internal/repository"
	"github.com/iliyamo/realty-crm/internal/utils"
)

// ResetNotice is handed to the Notifier after a reset token is stored.
type ResetNotice struct {
	UserID    uint64
	Email     string
	Name      string
	Token     string
	ExpiresAt time.Time
}

// Notifier delivers reset tokens out of band.
type Notifier interface {
	PasswordResetRequested(ctx context.Context, n ResetNotice) error
}

// Resets runs the one-time password reset flow.
type Resets struct {
	store      repository.Store
	audit      *AuditLog
	notifier   Notifier
	ttl        time.Duration
	bcryptCost int
	now        func() time.Time
	log        *slog.Logger

	// NewToken generates the opaque reset token.
	NewToken func() (string, error)
}

func NewResets(store repository.Store, audit *AuditLog, notifier Notifier, ttl time.Duration, bcryptCost int,
	now func() time.Time, log *slog.Logger) *Resets {
	return &Resets{
		store:      store,
		audit:      audit,
		notifier:   notifier,
		ttl:        ttl,
		bcryptCost: bcryptCost,
		now:        now,
		log:        log,
		NewToken:   func() (string, error) { return utils.RandomToken(32) },
	}
}

// Request stores a reset token for the active user owning email.  Earlier
// unused tokens of the user are superseded in the same transaction, so only
// the newest one is redeemable.  An unknown email returns ("", nil) and
// writes nothing.
func (r *Resets) Request(ctx context.Context, email string, client ClientInfo) (string, error) {
	const op = "service.Resets.Request"

	email = strings.ToLower(strings.TrimSpace(email))
	var notice ResetNotice
	err := r.store.InTx(ctx, func(tx repository.Tx) error {
		user, err := tx.ActiveUserByEmail(ctx, email)
		if err != nil {
			return err
		}
		token, err := r.NewToken()
		if err != nil {
			return err
		}
		superseded, err := tx.SupersedeResetTokens(ctx, user.ID)
		if err != nil {
			return err
		}
		now := r.now().UTC()
		row := &model.PasswordResetToken{
			UserID:    user.ID,
			Token:     token,
			ExpiresAt: now.Add(r.ttl),
			CreatedAt: now,
		}
		if err := tx.CreateResetToken(ctx, row); err != nil {
			return err
		}
		notice = ResetNotice{UserID: user.ID, Email: user.Email, Name: user.FullName(), Token: token, ExpiresAt: row.ExpiresAt}
		return r.audit.Record(ctx, tx, Event{
			UserID:       userRef(user.ID),
			Action:       ActionPasswordResetRequested,
			ResourceType: "password_reset",
			ResourceID:   fmt.Sprint(row.ID),
			Details:      map[string]any{"superseded": superseded},
			Client:       client,
		})
	})
	if errors.Is(err, repository.ErrNotFound) {
		r.log.Info("password reset requested for unknown email", slog.String("op", op))
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	if r.notifier != nil {
		if err := r.notifier.PasswordResetRequested(ctx, notice); err != nil {
			r.log.Warn("reset notification failed", slog.String("op", op), slog.Uint64("user_id", notice.UserID), slog.Any("err", err))
		}
	}
	return notice.Token, nil
}

// Redeem sets a new password with a reset token.  The hash update, the used
// flag and the session sweep commit together or not at all.
func (r *Resets) Redeem(ctx context.Context, token, newPassword string, client ClientInfo) error {
	const op = "service.Resets.Redeem"

	err := r.store.InTx(ctx, func(tx repository.Tx) error {
		row, err := tx.RedeemableResetToken(ctx, token, r.now())
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidOrExpiredToken
		}
		if err != nil {
			return err
		}
		if report := utils.ValidatePasswordStrength(newPassword); !report.Valid {
			return &WeakPasswordError{Errors: report.Errors}
		}
		hash, err := utils.HashPassword(newPassword, r.bcryptCost)
		if err != nil {
			return err
		}
		if err := tx.UpdatePasswordHash(ctx, row.UserID, hash); err != nil {
			return err
		}
		used, err := tx.MarkResetTokenUsed(ctx, row.ID)
		if err != nil {
			return err
		}
		if !used {
			return ErrInvalidOrExpiredToken
		}
		n, err := tx.DeactivateUserSessions(ctx, row.UserID, "")
		if err != nil {
			return err
		}
		return r.audit.Record(ctx, tx, Event{
			UserID:       userRef(row.UserID),
			Action:       ActionPasswordResetCompleted,
			ResourceType: "password_reset",
			ResourceID:   fmt.Sprint(row.ID),
			Details:      map[string]any{"sessions_revoked": n},
			Client:       client,
		})
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
