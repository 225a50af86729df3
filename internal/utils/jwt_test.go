package utils

import (
	"errors"
	"strings"
	"testing"
	"time"
)

var testSecret = []byte("abcdefghijklmnopqrstuvwxyz123456")

func TestNewTokenAndParse(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	access, err := NewToken(testSecret, TokenAccess, 42, now, 30*time.Minute)
	if err != nil {
		t.Fatalf("NewToken: %v", err)
	}
	if !access.Exp.Equal(now.Add(30 * time.Minute)) {
		t.Fatalf("exp = %v", access.Exp)
	}
	claims, err := ParseToken(testSecret, access.Token, TokenAccess, clock)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.UserID != 42 || claims.Type != TokenAccess || claims.ID == "" {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	if _, err := ParseToken(testSecret, access.Token, TokenRefresh, clock); !errors.Is(err, ErrTokenType) {
		t.Fatalf("expected type mismatch, got %v", err)
	}
	if _, err := ParseToken([]byte("another-secret-another-secret-xx"), access.Token, TokenAccess, clock); err == nil {
		t.Fatal("expected signature failure")
	}
	later := func() time.Time { return now.Add(31 * time.Minute) }
	if _, err := ParseToken(testSecret, access.Token, TokenAccess, later); err == nil {
		t.Fatal("expected expiry failure")
	}
}

func TestNewTokenIsUniquePerCall(t *testing.T) {
	now := time.Now()
	a, _ := NewToken(testSecret, TokenAccess, 1, now, time.Minute)
	b, _ := NewToken(testSecret, TokenAccess, 1, now, time.Minute)
	if a.Token == b.Token {
		t.Fatal("tokens minted in the same instant must differ")
	}
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"", "not-a-jwt", "a.b.c", strings.Repeat("x", 4096)} {
		if _, err := ParseToken(testSecret, raw, TokenAccess, time.Now); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestRandomToken(t *testing.T) {
	a, err := RandomToken(32)
	if err != nil {
		t.Fatalf("RandomToken: %v", err)
	}
	if len(a) != 43 {
		t.Fatalf("len = %d, want 43", len(a))
	}
	b, _ := RandomToken(32)
	if a == b {
		t.Fatal("expected distinct tokens")
	}
}
