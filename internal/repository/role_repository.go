package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iliyamo/realty-crm/internal/model"
)

// RoleByName returns the role with the given name.
func (r *sqlTx) RoleByName(ctx context.Context, name string) (model.Role, error) {
	const op = "repository.RoleByName"

	var (
		role model.Role
		desc sql.NullString
	)
	err := r.tx.QueryRowContext(ctx,
		"SELECT id,name,display_name,description FROM roles WHERE name=? LIMIT 1", name).
		Scan(&role.ID, &role.Name, &role.DisplayName, &desc)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Role{}, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if err != nil {
		return model.Role{}, fmt.Errorf("%s: %w", op, err)
	}
	role.Description = desc.String
	return role, nil
}

// AssignRole links a user to a role.  Assigning a held role is a no-op.
func (r *sqlTx) AssignRole(ctx context.Context, userID, roleID uint64) error {
	if _, err := r.tx.ExecContext(ctx,
		"INSERT IGNORE INTO user_roles (user_id, role_id) VALUES (?,?)", userID, roleID); err != nil {
		return fmt.Errorf("repository.AssignRole: %w", err)
	}
	return nil
}

// UserRoles returns the names of the roles held by userID.
func (r *sqlTx) UserRoles(ctx context.Context, userID uint64) ([]string, error) {
	const op = "repository.UserRoles"

	rows, err := r.tx.QueryContext(ctx,
		`SELECT r.name FROM roles r
		 JOIN user_roles ur ON ur.role_id = r.id
		 WHERE ur.user_id = ? ORDER BY r.name`, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		names = append(names, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s (rows): %w", op, err)
	}
	return names, nil
}

// UserPermissions returns every permission granted through any role the
// user holds.  Duplicates across roles are collapsed.
func (r *sqlTx) UserPermissions(ctx context.Context, userID uint64) ([]model.Permission, error) {
	const op = "repository.UserPermissions"

	rows, err := r.tx.QueryContext(ctx,
		`SELECT DISTINCT p.id, p.name, p.resource, p.action FROM permissions p
		 JOIN role_permissions rp ON rp.permission_id = p.id
		 JOIN user_roles ur ON ur.role_id = rp.role_id
		 WHERE ur.user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var perms []model.Permission
	for rows.Next() {
		var p model.Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Resource, &p.Action); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s (rows): %w", op, err)
	}
	return perms, nil
}

// SeedCatalogue upserts the permission catalogue and roles, then resets each
// role's grants to exactly the listed permission names.
func (r *sqlTx) SeedCatalogue(ctx context.Context, perms []model.Permission, roles []model.RoleGrant) error {
	const op = "repository.SeedCatalogue"

	for _, p := range perms {
		if _, err := r.tx.ExecContext(ctx,
			`INSERT INTO permissions (name, resource, action) VALUES (?,?,?)
			 ON DUPLICATE KEY UPDATE resource=VALUES(resource), action=VALUES(action)`,
			p.Name, p.Resource, p.Action); err != nil {
			return fmt.Errorf("%s: permission %s: %w", op, p.Name, err)
		}
	}
	for _, g := range roles {
		if _, err := r.tx.ExecContext(ctx,
			`INSERT INTO roles (name, display_name, description) VALUES (?,?,?)
			 ON DUPLICATE KEY UPDATE display_name=VALUES(display_name), description=VALUES(description)`,
			g.Role.Name, g.Role.DisplayName, g.Role.Description); err != nil {
			return fmt.Errorf("%s: role %s: %w", op, g.Role.Name, err)
		}
		role, err := r.RoleByName(ctx, g.Role.Name)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if _, err := r.tx.ExecContext(ctx, "DELETE FROM role_permissions WHERE role_id=?", role.ID); err != nil {
			return fmt.Errorf("%s: clear grants %s: %w", op, role.Name, err)
		}
		for _, name := range g.Permissions {
			if _, err := r.tx.ExecContext(ctx,
				`INSERT INTO role_permissions (role_id, permission_id)
				 SELECT ?, id FROM permissions WHERE name=?`, role.ID, name); err != nil {
				return fmt.Errorf("%s: grant %s to %s: %w", op, name, role.Name, err)
			}
		}
	}
	return nil
}
