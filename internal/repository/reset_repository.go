package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/realty-crm/internal/model"
)

// CreateResetToken stores a one-time password reset token.
func (r *sqlTx) CreateResetToken(ctx context.Context, t *model.PasswordResetToken) error {
	const op = "repository.CreateResetToken"

	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	res, err := r.tx.ExecContext(ctx,
		"INSERT INTO password_resets (user_id, reset_token, expires_at, used, created_at) VALUES (?,?,?,?,?)",
		t.UserID, t.Token, t.ExpiresAt.UTC(), t.Used, t.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	t.ID = uint64(id)
	return nil
}

// RedeemableResetToken locks the row so a concurrent redemption waits for
// this transaction and then sees used=1.
func (r *sqlTx) RedeemableResetToken(ctx context.Context, token string, now time.Time) (model.PasswordResetToken, error) {
	const op = "repository.RedeemableResetToken"

	var t model.PasswordResetToken
	err := r.tx.QueryRowContext(ctx,
		`SELECT id, user_id, reset_token, expires_at, used, created_at FROM password_resets
		 WHERE reset_token=? AND used=0 AND expires_at>? LIMIT 1 FOR UPDATE`,
		token, now.UTC()).Scan(&t.ID, &t.UserID, &t.Token, &t.ExpiresAt, &t.Used, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.PasswordResetToken{}, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if err != nil {
		return model.PasswordResetToken{}, fmt.Errorf("%s: %w", op, err)
	}
	return t, nil
}

func (r *sqlTx) SupersedeResetTokens(ctx context.Context, userID uint64) (int64, error) {
	const op = "repository.SupersedeResetTokens"

	res, err := r.tx.ExecContext(ctx, "UPDATE password_resets SET used=1 WHERE user_id=? AND used=0", userID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

// MarkResetTokenUsed flips used; false means another redemption won.
func (r *sqlTx) MarkResetTokenUsed(ctx context.Context, id uint64) (bool, error) {
	return r.execFlip(ctx, "repository.MarkResetTokenUsed",
		"UPDATE password_resets SET used=1 WHERE id=? AND used=0", id)
}
