// Package queue defines message payloads exchanged over the message broker.
package queue

import (
	"time"

	"github.com/iliyamo/realty-crm/internal/service"
)

// PasswordResetRequestedEvent is published after a reset token is stored.
// The consumer renders it into the notification log, standing in for an
// outbound mailer.
type PasswordResetRequestedEvent struct {
	UserID      uint64 `json:"user_id"`
	Email       string `json:"email"`
	Name        string `json:"name"`
	Token       string `json:"token"`
	ExpiresAt   string `json:"expires_at"`
	RequestedAt string `json:"requested_at"`
}

func newResetEvent(n service.ResetNotice, now time.Time) PasswordResetRequestedEvent {
	return PasswordResetRequestedEvent{
		UserID:      n.UserID,
		Email:       n.Email,
		Name:        n.Name,
		Token:       n.Token,
		ExpiresAt:   n.ExpiresAt.UTC().Format(time.RFC3339),
		RequestedAt: now.UTC().Format(time.RFC3339),
	}
}
