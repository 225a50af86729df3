package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/iliyamo/realty-crm/internal/ratelimit"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("STORE", StoreMemory)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Env != "local" || cfg.Port != "8080" {
		t.Fatalf("unexpected app defaults: %+v", cfg)
	}
	if cfg.Auth.AccessTTL != 30*time.Minute || cfg.Auth.RefreshTTL != 7*24*time.Hour || cfg.Auth.ResetTTL != time.Hour {
		t.Fatalf("unexpected token lifetimes: %+v", cfg.Auth)
	}
	if cfg.Auth.CSRFSecret != "s3cret" {
		t.Fatalf("CSRF secret should fall back to JWT secret, got %q", cfg.Auth.CSRFSecret)
	}
	if len(cfg.Auth.SelfServiceRoles) != 0 {
		t.Fatalf("self-service roles should default to unrestricted, got %v", cfg.Auth.SelfServiceRoles)
	}
	want := map[string]ratelimit.Policy{
		ratelimit.BucketGeneral: {PerMinute: 60, PerHour: 1000},
		ratelimit.BucketAuth:    {PerMinute: 10, PerHour: 100},
	}
	got := cfg.RateLimit.Policies()
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("policy %s = %+v, want %+v", k, got[k], v)
		}
	}
}

func TestLoadRequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("STORE", StoreMemory)
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error without JWT_SECRET")
	}
}

func TestLoadRequiresDBUserForMySQL(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("STORE", StoreMySQL)
	t.Setenv("DB_USER", "")
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error without DB_USER")
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := map[string]map[string]string{
		"store":       {"STORE": "sqlite"},
		"bcrypt":      {"BCRYPT_COST": "2"},
		"limit store": {"RATE_LIMIT_STORE": "etcd"},
		"limit cap":   {"RATE_LIMIT_AUTH_PER_MINUTE": "0"},
	}
	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			t.Setenv("JWT_SECRET", "s3cret")
			t.Setenv("STORE", StoreMemory)
			for k, v := range env {
				t.Setenv(k, v)
			}
			if _, err := Load(""); err == nil {
				t.Fatalf("expected error for %v", env)
			}
		})
	}
}

func TestLoadSelfServiceRoles(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("STORE", StoreMemory)
	t.Setenv("SELF_SERVICE_ROLES", "client,agent")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	got := cfg.Auth.SelfServiceRoles
	if len(got) != 2 || got[0] != "client" || got[1] != "agent" {
		t.Fatalf("SelfServiceRoles = %v", got)
	}
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("JWT_SECRET=from-file\nSTORE=memory\nACCESS_TOKEN_TTL=5m\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	// t.Setenv registers restoration of the variables the file sets.
	t.Setenv("JWT_SECRET", "")
	t.Setenv("STORE", "")
	t.Setenv("ACCESS_TOKEN_TTL", "")
	os.Unsetenv("JWT_SECRET")
	os.Unsetenv("STORE")
	os.Unsetenv("ACCESS_TOKEN_TTL")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Auth.JWTSecret != "from-file" || cfg.Auth.AccessTTL != 5*time.Minute {
		t.Fatalf("env file not applied: %+v", cfg.Auth)
	}

	if _, err := Load(filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("missing env file should be ignored: %v", err)
	}
}

func TestNewRedisClient(t *testing.T) {
	m := miniredis.RunT(t)
	client, err := NewRedisClient(RedisConfig{Addr: m.Addr()})
	if err != nil {
		t.Fatalf("NewRedisClient() error: %v", err)
	}
	defer client.Close()
	if err := client.Set(context.Background(), "k", "v", 0).Err(); err != nil {
		t.Fatalf("Set() error: %v", err)
	}

	if _, err := NewRedisClient(RedisConfig{Addr: "127.0.0.1:1"}); err == nil {
		t.Fatalf("expected dial error")
	}
}

func TestRedisAddressPrecedence(t *testing.T) {
	c := RedisConfig{Addr: "a:1", Host: "h", Port: "2"}
	if c.Address() != "h:2" {
		t.Fatalf("Address() = %q", c.Address())
	}
	c.Host = ""
	if c.Address() != "a:1" {
		t.Fatalf("Address() = %q", c.Address())
	}
}
