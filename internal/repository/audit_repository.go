package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/iliyamo/realty-crm/internal/model"
)

// InsertAuditEntry appends one audit row.
func (r *sqlTx) InsertAuditEntry(ctx context.Context, e *model.AuditLogEntry) error {
	const op = "repository.InsertAuditEntry"

	details := e.Details
	if details == nil {
		details = map[string]any{}
	}
	payload, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("%s: marshal details: %w", op, err)
	}
	res, err := r.tx.ExecContext(ctx,
		`INSERT INTO audit_logs (user_id, action, resource_type, resource_id, details, ip_address, user_agent, timestamp)
		 VALUES (?,?,?,?,?,?,?,?)`,
		nullableID(e.UserID), e.Action, nullString(e.ResourceType), nullString(e.ResourceID),
		payload, nullString(e.IPAddress), nullString(e.UserAgent), e.Timestamp.UTC())
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	e.ID = uint64(id)
	return nil
}

// ListAuditEntries pages through audit entries, newest first.
func (r *sqlTx) ListAuditEntries(ctx context.Context, f model.AuditFilter) ([]model.AuditLogEntry, error) {
	const op = "repository.ListAuditEntries"

	q := "SELECT id, user_id, action, resource_type, resource_id, details, ip_address, user_agent, timestamp FROM audit_logs"
	var where []string
	var args []interface{}
	if f.UserID != nil {
		where = append(where, "user_id = ?")
		args = append(args, *f.UserID)
	}
	if f.Action != "" {
		where = append(where, "action = ?")
		args = append(args, f.Action)
	}
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY timestamp DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, limitOrDefault(f.Limit), max(f.Offset, 0))

	rows, err := r.tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []model.AuditLogEntry
	for rows.Next() {
		var (
			e                      model.AuditLogEntry
			userID                 sql.NullInt64
			resType, resID, ip, ua sql.NullString
			details                []byte
		)
		if err := rows.Scan(&e.ID, &userID, &e.Action, &resType, &resID, &details, &ip, &ua, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if userID.Valid {
			id := uint64(userID.Int64)
			e.UserID = &id
		}
		e.ResourceType, e.ResourceID, e.IPAddress, e.UserAgent = resType.String, resID.String, ip.String, ua.String
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, fmt.Errorf("%s: unmarshal details: %w", op, err)
			}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s (rows): %w", op, err)
	}
	return out, nil
}

func nullableID(id *uint64) interface{} {
	if id == nil {
		return nil
	}
	return *id
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
