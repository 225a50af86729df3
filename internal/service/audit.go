package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/iliyamo/realty-crm/internal/model"
	"github.com/iliyamo/realty-crm/internal/repository"
)

// Audit action names.
const (
	ActionUserRegistered         = "user_registered"
	ActionLoginSuccess           = "login_success"
	ActionLoginFailed            = "login_failed"
	ActionLogout                 = "logout"
	ActionTokenRefreshed         = "token_refreshed"
	ActionPasswordChanged        = "password_changed"
	ActionPasswordResetRequested = "password_reset_requested"
	ActionPasswordResetCompleted = "password_reset_completed"
	ActionSessionRevoked         = "session_revoked"
	ActionAllSessionsRevoked     = "all_sessions_revoked"
	ActionUserDeactivated        = "user_deactivated"
)

// ClientInfo is the request metadata attached to sessions and audit rows.
type ClientInfo struct {
	IP        string
	UserAgent string
	Device    model.DeviceInfo
}

// Event is one auditable occurrence.
type Event struct {
	UserID       *uint64
	Action       string
	ResourceType string
	ResourceID   string
	Details      map[string]any
	Client       ClientInfo
}

// AuditLog appends security events.  Record always writes through the
// caller's transaction, so a failed insert rolls back the operation being
// logged.
type AuditLog struct {
	store repository.Store
	now   func() time.Time
	log   *slog.Logger
}

func NewAuditLog(store repository.Store, now func() time.Time, log *slog.Logger) *AuditLog {
	return &AuditLog{store: store, now: now, log: log}
}

// Record inserts ev inside tx.
func (a *AuditLog) Record(ctx context.Context, tx repository.Tx, ev Event) error {
	const op = "service.AuditLog.Record"

	entry := &model.AuditLogEntry{
		UserID:       ev.UserID,
		Action:       ev.Action,
		ResourceType: ev.ResourceType,
		ResourceID:   ev.ResourceID,
		Details:      ev.Details,
		IPAddress:    ev.Client.IP,
		UserAgent:    ev.Client.UserAgent,
		Timestamp:    a.now().UTC(),
	}
	if err := tx.InsertAuditEntry(ctx, entry); err != nil {
		a.log.Error("audit insert failed", slog.String("op", op), slog.String("action", ev.Action), slog.Any("err", err))
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// List returns entries matching f, newest first.
func (a *AuditLog) List(ctx context.Context, f model.AuditFilter) ([]model.AuditLogEntry, error) {
	const op = "service.AuditLog.List"

	var out []model.AuditLogEntry
	err := a.store.InTx(ctx, func(tx repository.Tx) error {
		var err error
		out, err = tx.ListAuditEntries(ctx, f)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

func userRef(id uint64) *uint64 { return &id }
