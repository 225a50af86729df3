package model

import "time"

// AuditLogEntry is an append-only record in the audit_logs table.
type AuditLogEntry struct {
	ID           uint64
	UserID       *uint64
	Action       string
	ResourceType string
	ResourceID   string
	Details      map[string]any
	IPAddress    string
	UserAgent    string
	Timestamp    time.Time
}

// AuditFilter narrows audit log listings.  Entries are returned newest first.
type AuditFilter struct {
	UserID *uint64
	Action string
	Offset int
	Limit  int
}
