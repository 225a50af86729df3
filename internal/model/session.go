package model

import "time"

// DeviceInfo is the client metadata captured at login or refresh.  It is
// stored as JSON in user_sessions.device_info.
type DeviceInfo struct {
	UserAgent      string `json:"user_agent,omitempty"`
	AcceptLanguage string `json:"accept_language,omitempty"`
	Referer        string `json:"referer,omitempty"`
}

// Session models one issued token pair.  Rows are deactivated, never
// deleted, so they remain available for audit.
type Session struct {
	ID           uint64     // user_sessions.id
	UserID       uint64     // user_sessions.user_id
	AccessToken  string     // user_sessions.session_token
	RefreshToken string     // user_sessions.refresh_token
	Device       DeviceInfo // user_sessions.device_info (JSON)
	IPAddress    string     // user_sessions.ip_address
	IsActive     bool       // user_sessions.is_active
	ExpiresAt    time.Time  // user_sessions.expires_at
	CreatedAt    time.Time  // user_sessions.created_at
	LastAccessed time.Time  // user_sessions.last_accessed
}

// Live reports whether the session still authorizes requests at now.
func (s Session) Live(now time.Time) bool {
	return s.IsActive && s.ExpiresAt.After(now)
}

// PasswordResetToken mirrors the password_resets table.
type PasswordResetToken struct {
	ID        uint64
	UserID    uint64
	Token     string
	ExpiresAt time.Time
	Used      bool
	CreatedAt time.Time
}

// Redeemable reports whether the token can still be used at now.
func (t PasswordResetToken) Redeemable(now time.Time) bool {
	return !t.Used && t.ExpiresAt.After(now)
}
