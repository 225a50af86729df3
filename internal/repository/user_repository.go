package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/realty-crm/internal/model"
)

const userColumns = "id,uuid,email,username,password_hash,first_name,last_name,phone,company,job_title,is_active,is_verified,last_login,created_at,updated_at"

// CreateUser inserts u and populates its ID and timestamps.
func (r *sqlTx) CreateUser(ctx context.Context, u *model.User) error {
	const op = "repository.CreateUser"

	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	res, err := r.tx.ExecContext(ctx,
		`INSERT INTO users (uuid,email,username,password_hash,first_name,last_name,phone,company,job_title,is_active,is_verified)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		u.UUID, u.Email, u.Username, u.PasswordHash, u.FirstName, u.LastName,
		u.Phone, u.Company, u.JobTitle, u.IsActive, u.IsVerified)
	if err != nil {
		if isDuplicate(err) {
			return fmt.Errorf("%s: %w", op, ErrConflict)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	u.ID = uint64(id)
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	return nil
}

// UserByID fetches a user regardless of the active flag.
func (r *sqlTx) UserByID(ctx context.Context, id uint64) (model.User, error) {
	return r.scanUser(ctx, "repository.UserByID",
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id)
}

// ActiveUserByLogin fetches an active user by email or username.
func (r *sqlTx) ActiveUserByLogin(ctx context.Context, login string) (model.User, error) {
	login = strings.TrimSpace(login)
	return r.scanUser(ctx, "repository.ActiveUserByLogin",
		"SELECT "+userColumns+" FROM users WHERE (email=? OR username=?) AND is_active=1 LIMIT 1",
		strings.ToLower(login), login)
}

// ActiveUserByEmail fetches an active user by normalized email.
func (r *sqlTx) ActiveUserByEmail(ctx context.Context, email string) (model.User, error) {
	return r.scanUser(ctx, "repository.ActiveUserByEmail",
		"SELECT "+userColumns+" FROM users WHERE email=? AND is_active=1 LIMIT 1",
		strings.ToLower(strings.TrimSpace(email)))
}

func (r *sqlTx) TouchLastLogin(ctx context.Context, id uint64, at time.Time) error {
	if _, err := r.tx.ExecContext(ctx, "UPDATE users SET last_login=? WHERE id=?", at.UTC(), id); err != nil {
		return fmt.Errorf("repository.TouchLastLogin: %w", err)
	}
	return nil
}

func (r *sqlTx) UpdatePasswordHash(ctx context.Context, id uint64, hash string) error {
	const op = "repository.UpdatePasswordHash"

	res, err := r.tx.ExecContext(ctx, "UPDATE users SET password_hash=? WHERE id=?", hash, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}

// DeactivateUser clears the active flag.  A user that is already inactive
// still counts as found.
func (r *sqlTx) DeactivateUser(ctx context.Context, id uint64) (bool, error) {
	const op = "repository.DeactivateUser"

	var exists int
	err := r.tx.QueryRowContext(ctx, "SELECT 1 FROM users WHERE id=? FOR UPDATE", id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if _, err := r.tx.ExecContext(ctx, "UPDATE users SET is_active=0 WHERE id=?", id); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return true, nil
}

// ListUsers pages through users, optionally filtered by role and active flag.
func (r *sqlTx) ListUsers(ctx context.Context, f model.UserFilter) ([]model.User, error) {
	const op = "repository.ListUsers"

	q := "SELECT DISTINCT " + prefixColumns("u.", userColumns) + " FROM users u"
	var where []string
	var args []interface{}
	if f.Role != "" {
		q += " JOIN user_roles ur ON ur.user_id = u.id JOIN roles r ON r.id = ur.role_id"
		where = append(where, "r.name = ?")
		args = append(args, f.Role)
	}
	if f.IsActive != nil {
		where = append(where, "u.is_active = ?")
		args = append(args, *f.IsActive)
	}
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY u.id LIMIT ? OFFSET ?"
	args = append(args, limitOrDefault(f.Limit), max(f.Offset, 0))

	rows, err := r.tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUserRow(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s (rows): %w", op, err)
	}
	return users, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *sqlTx) scanUser(ctx context.Context, op, query string, args ...interface{}) (model.User, error) {
	u, err := scanUserRow(r.tx.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if err != nil {
		return model.User{}, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

func scanUserRow(row rowScanner) (model.User, error) {
	var (
		u         model.User
		phone     sql.NullString
		company   sql.NullString
		jobTitle  sql.NullString
		lastLogin sql.NullTime
	)
	err := row.Scan(&u.ID, &u.UUID, &u.Email, &u.Username, &u.PasswordHash,
		&u.FirstName, &u.LastName, &phone, &company, &jobTitle,
		&u.IsActive, &u.IsVerified, &lastLogin, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return model.User{}, err
	}
	u.Phone, u.Company, u.JobTitle = phone.String, company.String, jobTitle.String
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLogin = &t
	}
	return u, nil
}

func prefixColumns(prefix, cols string) string {
	parts := strings.Split(cols, ",")
	for i, p := range parts {
		parts[i] = prefix + p
	}
	return strings.Join(parts, ",")
}
