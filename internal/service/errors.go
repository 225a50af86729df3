package service

import (
	"errors"
	"strings"
)

// Failures surfaced to the route layer.  Callers match them with errors.Is;
// the handler package maps each to a transport status.
var (
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrUnauthenticated       = errors.New("unauthenticated")
	ErrForbidden             = errors.New("forbidden")
	ErrWeakPassword          = errors.New("password does not meet requirements")
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")
	ErrInvalidInput          = errors.New("invalid input")
	ErrConflict              = errors.New("already exists")
	ErrNotFound              = errors.New("not found")
	ErrRateLimited           = errors.New("rate limit exceeded")
)

// WeakPasswordError lists every strength rule a candidate password broke.
type WeakPasswordError struct {
	Errors []string
}

func (e *WeakPasswordError) Error() string {
	return ErrWeakPassword.Error() + ": " + strings.Join(e.Errors, "; ")
}

// Is lets errors.Is(err, ErrWeakPassword) match.
func (e *WeakPasswordError) Is(target error) bool { return target == ErrWeakPassword }
