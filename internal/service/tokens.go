package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/iliyamo/realty-crm/internal/model"
	"github.com/iliyamo/realty-crm/internal/repository"
	"github.com/iliyamo/realty-crm/internal/utils"
)

// TokenConfig carries the signing secret and lifetimes.
type TokenConfig struct {
	Secret     []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// TokenPair is the wire shape returned on login and refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    string `json:"expires_at"`
}

// Tokens issues, verifies and rotates JWT pairs backed by session rows.
type Tokens struct {
	store repository.Store
	cfg   TokenConfig
	audit *AuditLog
	now   func() time.Time
	log   *slog.Logger
}

func NewTokens(store repository.Store, cfg TokenConfig, audit *AuditLog, now func() time.Time, log *slog.Logger) *Tokens {
	return &Tokens{store: store, cfg: cfg, audit: audit, now: now, log: log}
}

// Issue signs a new pair for userID and persists its session row inside tx.
// The session lives as long as the refresh token.
func (t *Tokens) Issue(ctx context.Context, tx repository.Tx, userID uint64, client ClientInfo) (TokenPair, error) {
	const op = "service.Tokens.Issue"

	now := t.now()
	access, err := utils.NewToken(t.cfg.Secret, utils.TokenAccess, userID, now, t.cfg.AccessTTL)
	if err != nil {
		return TokenPair{}, fmt.Errorf("%s: sign access: %w", op, err)
	}
	refresh, err := utils.NewToken(t.cfg.Secret, utils.TokenRefresh, userID, now, t.cfg.RefreshTTL)
	if err != nil {
		return TokenPair{}, fmt.Errorf("%s: sign refresh: %w", op, err)
	}

	sess := &model.Session{
		UserID:       userID,
		AccessToken:  access.Token,
		RefreshToken: refresh.Token,
		Device:       client.Device,
		IPAddress:    client.IP,
		IsActive:     true,
		ExpiresAt:    refresh.Exp,
		CreatedAt:    now.UTC(),
		LastAccessed: now.UTC(),
	}
	if err := tx.CreateSession(ctx, sess); err != nil {
		return TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	return TokenPair{
		AccessToken:  access.Token,
		RefreshToken: refresh.Token,
		TokenType:    "bearer",
		ExpiresIn:    int64(t.cfg.AccessTTL / time.Second),
		ExpiresAt:    access.Exp.Format(time.RFC3339),
	}, nil
}

// Verify validates raw as a token of the given kind.  Access tokens must also
// match a live session row, whose last_accessed is bumped.
func (t *Tokens) Verify(ctx context.Context, raw, kind string) (*utils.Claims, error) {
	const op = "service.Tokens.Verify"

	claims, err := utils.ParseToken(t.cfg.Secret, raw, kind, t.now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", op, ErrUnauthenticated, err)
	}
	if kind != utils.TokenAccess {
		return claims, nil
	}

	err = t.store.InTx(ctx, func(tx repository.Tx) error {
		now := t.now()
		sess, err := tx.ActiveSessionByAccessToken(ctx, raw, now)
		if err != nil {
			return err
		}
		if sess.UserID != claims.UserID {
			return repository.ErrNotFound
		}
		return tx.TouchSession(ctx, sess.ID, now)
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w: no live session", op, ErrUnauthenticated)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return claims, nil
}

// Rotate trades a refresh token for a new pair.  The old session row is
// deactivated under a row lock, so each refresh token rotates at most once.
func (t *Tokens) Rotate(ctx context.Context, refresh string, client ClientInfo) (TokenPair, error) {
	const op = "service.Tokens.Rotate"

	claims, err := utils.ParseToken(t.cfg.Secret, refresh, utils.TokenRefresh, t.now)
	if err != nil {
		return TokenPair{}, fmt.Errorf("%s: %w", op, ErrInvalidOrExpiredToken)
	}

	var pair TokenPair
	err = t.store.InTx(ctx, func(tx repository.Tx) error {
		sess, err := tx.ActiveSessionByRefreshToken(ctx, refresh, claims.UserID, t.now())
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidOrExpiredToken
		}
		if err != nil {
			return err
		}
		flipped, err := tx.DeactivateSession(ctx, sess.ID)
		if err != nil {
			return err
		}
		if !flipped {
			return ErrInvalidOrExpiredToken
		}
		user, err := tx.UserByID(ctx, claims.UserID)
		if errors.Is(err, repository.ErrNotFound) || (err == nil && !user.IsActive) {
			return ErrInvalidOrExpiredToken
		}
		if err != nil {
			return err
		}

		pair, err = t.Issue(ctx, tx, claims.UserID, client)
		if err != nil {
			return err
		}
		return t.audit.Record(ctx, tx, Event{
			UserID:       userRef(claims.UserID),
			Action:       ActionTokenRefreshed,
			ResourceType: "session",
			ResourceID:   fmt.Sprint(sess.ID),
			Client:       client,
		})
	})
	if err != nil {
		return TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}
	t.log.Debug("token rotated", slog.String("op", op), slog.Uint64("user_id", claims.UserID))
	return pair, nil
}

// RevokeByAccessToken deactivates the session behind access and records a
// logout.  It reports whether a live session existed.
func (t *Tokens) RevokeByAccessToken(ctx context.Context, access string, client ClientInfo) (bool, error) {
	const op = "service.Tokens.RevokeByAccessToken"

	claims, err := utils.ParseToken(t.cfg.Secret, access, utils.TokenAccess, t.now)
	if err != nil {
		return false, fmt.Errorf("%s: %w: %v", op, ErrUnauthenticated, err)
	}

	var revoked bool
	err = t.store.InTx(ctx, func(tx repository.Tx) error {
		sess, err := tx.ActiveSessionByAccessToken(ctx, access, t.now())
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if sess.UserID != claims.UserID {
			return nil
		}
		if revoked, err = tx.DeactivateSession(ctx, sess.ID); err != nil || !revoked {
			return err
		}
		return t.audit.Record(ctx, tx, Event{
			UserID:       userRef(claims.UserID),
			Action:       ActionLogout,
			ResourceType: "session",
			ResourceID:   fmt.Sprint(sess.ID),
			Client:       client,
		})
	})
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return revoked, nil
}
