package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/realty-crm/internal/model"
)

const sessionColumns = "id,user_id,session_token,refresh_token,device_info,ip_address,is_active,expires_at,created_at,last_accessed"

// CreateSession inserts an active session row keyed by the raw token strings.
func (r *sqlTx) CreateSession(ctx context.Context, s *model.Session) error {
	const op = "repository.CreateSession"

	device, err := json.Marshal(s.Device)
	if err != nil {
		return fmt.Errorf("%s: marshal device: %w", op, err)
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	if s.LastAccessed.IsZero() {
		s.LastAccessed = s.CreatedAt
	}
	res, err := r.tx.ExecContext(ctx,
		`INSERT INTO user_sessions (user_id,session_token,refresh_token,device_info,ip_address,is_active,expires_at,created_at,last_accessed)
		 VALUES (?,?,?,?,?,?,?,?,?)`,
		s.UserID, s.AccessToken, s.RefreshToken, device, s.IPAddress, s.IsActive,
		s.ExpiresAt.UTC(), s.CreatedAt.UTC(), s.LastAccessed.UTC())
	if err != nil {
		if isDuplicate(err) {
			return fmt.Errorf("%s: %w", op, ErrConflict)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.ID = uint64(id)
	return nil
}

func (r *sqlTx) ActiveSessionByAccessToken(ctx context.Context, token string, now time.Time) (model.Session, error) {
	return r.scanSession(ctx, "repository.ActiveSessionByAccessToken",
		"SELECT "+sessionColumns+" FROM user_sessions WHERE session_token=? AND is_active=1 AND expires_at>? LIMIT 1",
		token, now.UTC())
}

func (r *sqlTx) ActiveSessionByRefreshToken(ctx context.Context, token string, userID uint64, now time.Time) (model.Session, error) {
	return r.scanSession(ctx, "repository.ActiveSessionByRefreshToken",
		"SELECT "+sessionColumns+" FROM user_sessions WHERE refresh_token=? AND user_id=? AND is_active=1 AND expires_at>? LIMIT 1 FOR UPDATE",
		token, userID, now.UTC())
}

func (r *sqlTx) TouchSession(ctx context.Context, id uint64, at time.Time) error {
	if _, err := r.tx.ExecContext(ctx, "UPDATE user_sessions SET last_accessed=? WHERE id=?", at.UTC(), id); err != nil {
		return fmt.Errorf("repository.TouchSession: %w", err)
	}
	return nil
}

// DeactivateSession flips an active row; false means it was already inert.
func (r *sqlTx) DeactivateSession(ctx context.Context, id uint64) (bool, error) {
	return r.execFlip(ctx, "repository.DeactivateSession",
		"UPDATE user_sessions SET is_active=0 WHERE id=? AND is_active=1", id)
}

func (r *sqlTx) DeactivateOwnedSession(ctx context.Context, sessionID, userID uint64) (bool, error) {
	return r.execFlip(ctx, "repository.DeactivateOwnedSession",
		"UPDATE user_sessions SET is_active=0 WHERE id=? AND user_id=? AND is_active=1", sessionID, userID)
}

func (r *sqlTx) DeactivateUserSessions(ctx context.Context, userID uint64, exceptAccessToken string) (int64, error) {
	const op = "repository.DeactivateUserSessions"

	q := "UPDATE user_sessions SET is_active=0 WHERE user_id=? AND is_active=1"
	args := []interface{}{userID}
	if exceptAccessToken != "" {
		q += " AND session_token<>?"
		args = append(args, exceptAccessToken)
	}
	res, err := r.tx.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

// ListActiveSessions returns live sessions, most recently used first.
func (r *sqlTx) ListActiveSessions(ctx context.Context, userID uint64, now time.Time) ([]model.Session, error) {
	const op = "repository.ListActiveSessions"

	rows, err := r.tx.QueryContext(ctx,
		"SELECT "+sessionColumns+" FROM user_sessions WHERE user_id=? AND is_active=1 AND expires_at>? ORDER BY last_accessed DESC, id DESC",
		userID, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []model.Session
	for rows.Next() {
		s, err := scanSessionRow(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s (rows): %w", op, err)
	}
	return out, nil
}

func (r *sqlTx) execFlip(ctx context.Context, op, query string, args ...interface{}) (bool, error) {
	res, err := r.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return n == 1, nil
}

func (r *sqlTx) scanSession(ctx context.Context, op, query string, args ...interface{}) (model.Session, error) {
	s, err := scanSessionRow(r.tx.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Session{}, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if err != nil {
		return model.Session{}, fmt.Errorf("%s: %w", op, err)
	}
	return s, nil
}

func scanSessionRow(row rowScanner) (model.Session, error) {
	var (
		s      model.Session
		device []byte
		ip     sql.NullString
	)
	err := row.Scan(&s.ID, &s.UserID, &s.AccessToken, &s.RefreshToken, &device, &ip,
		&s.IsActive, &s.ExpiresAt, &s.CreatedAt, &s.LastAccessed)
	if err != nil {
		return model.Session{}, err
	}
	s.IPAddress = ip.String
	if len(device) > 0 {
		if err := json.Unmarshal(device, &s.Device); err != nil {
			return model.Session{}, fmt.Errorf("unmarshal device_info: %w", err)
		}
	}
	return s, nil
}
