package service

import (
	"context"
	"fmt"
	"time"

	"github.com/iliyamo/realty-crm/internal/model"
	"github.com/iliyamo/realty-crm/internal/repository"
)

// SessionSummary is the client-facing view of a session row.  Token strings
// are never exposed.
type SessionSummary struct {
	ID           uint64           `json:"id"`
	Device       model.DeviceInfo `json:"device_info"`
	IPAddress    string           `json:"ip_address"`
	CreatedAt    time.Time        `json:"created_at"`
	LastAccessed time.Time        `json:"last_accessed"`
	ExpiresAt    time.Time        `json:"expires_at"`
	Current      bool             `json:"is_current"`
}

// Sessions lists and revokes a user's sessions.
type Sessions struct {
	store repository.Store
	audit *AuditLog
	now   func() time.Time
}

func NewSessions(store repository.Store, audit *AuditLog, now func() time.Time) *Sessions {
	return &Sessions{store: store, audit: audit, now: now}
}

// ListActive returns the user's live sessions, most recently used first.
// currentAccess marks the caller's own session and may be empty.
func (s *Sessions) ListActive(ctx context.Context, userID uint64, currentAccess string) ([]SessionSummary, error) {
	const op = "service.Sessions.ListActive"

	var rows []model.Session
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		var err error
		rows, err = tx.ListActiveSessions(ctx, userID, s.now())
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	out := make([]SessionSummary, 0, len(rows))
	for _, r := range rows {
		out = append(out, SessionSummary{
			ID:           r.ID,
			Device:       r.Device,
			IPAddress:    r.IPAddress,
			CreatedAt:    r.CreatedAt,
			LastAccessed: r.LastAccessed,
			ExpiresAt:    r.ExpiresAt,
			Current:      currentAccess != "" && r.AccessToken == currentAccess,
		})
	}
	return out, nil
}

// RevokeOne deactivates sessionID if it belongs to userID and is still
// active.
func (s *Sessions) RevokeOne(ctx context.Context, sessionID, userID uint64, client ClientInfo) (bool, error) {
	const op = "service.Sessions.RevokeOne"

	var revoked bool
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		var err error
		if revoked, err = tx.DeactivateOwnedSession(ctx, sessionID, userID); err != nil || !revoked {
			return err
		}
		return s.audit.Record(ctx, tx, Event{
			UserID:       userRef(userID),
			Action:       ActionSessionRevoked,
			ResourceType: "session",
			ResourceID:   fmt.Sprint(sessionID),
			Client:       client,
		})
	})
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return revoked, nil
}

// RevokeAll deactivates every active session of userID except the one
// whose access token is exceptAccess, and returns how many were flipped.
func (s *Sessions) RevokeAll(ctx context.Context, userID uint64, exceptAccess string, client ClientInfo) (int64, error) {
	const op = "service.Sessions.RevokeAll"

	var n int64
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		var err error
		if n, err = tx.DeactivateUserSessions(ctx, userID, exceptAccess); err != nil {
			return err
		}
		return s.audit.Record(ctx, tx, Event{
			UserID:  userRef(userID),
			Action:  ActionAllSessionsRevoked,
			Details: map[string]any{"count": n, "kept_current": exceptAccess != ""},
			Client:  client,
		})
	})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}
