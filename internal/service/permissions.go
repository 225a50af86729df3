package service

import (
	"context"
	"fmt"
	"slices"

	"github.com/iliyamo/realty-crm/internal/model"
	"github.com/iliyamo/realty-crm/internal/repository"
)

// Permissions resolves roles and capabilities.  It is the only place role
// names are compared; callers ask for a capability instead.
type Permissions struct {
	store repository.Store
}

func NewPermissions(store repository.Store) *Permissions {
	return &Permissions{store: store}
}

// RolesOf returns the role names held by userID.
func (p *Permissions) RolesOf(ctx context.Context, userID uint64) ([]string, error) {
	const op = "service.Permissions.RolesOf"

	var roles []string
	err := p.store.InTx(ctx, func(tx repository.Tx) error {
		var err error
		roles, err = tx.UserRoles(ctx, userID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return roles, nil
}

// PermissionsFor returns the union of permissions over every role the user
// holds.  An unknown user has the empty set.
func (p *Permissions) PermissionsFor(ctx context.Context, userID uint64) (model.PermissionSet, error) {
	const op = "service.Permissions.PermissionsFor"

	var perms []model.Permission
	err := p.store.InTx(ctx, func(tx repository.Tx) error {
		var err error
		perms, err = tx.UserPermissions(ctx, userID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return model.NewPermissionSet(perms), nil
}

// HasPermission reports whether userID holds perm.  perm is a capability
// identifier "<action>_<resource>" (see the model.Perm* constants), never a
// catalogue name such as "view_analytics".
func (p *Permissions) HasPermission(ctx context.Context, userID uint64, perm string) (bool, error) {
	set, err := p.PermissionsFor(ctx, userID)
	if err != nil {
		return false, err
	}
	return set.Has(perm), nil
}

// RequirePermission fails with ErrForbidden unless the user holds perm.  perm
// is matched like in HasPermission.
func (p *Permissions) RequirePermission(ctx context.Context, userID uint64, perm string) error {
	ok, err := p.HasPermission(ctx, userID, perm)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("permission %q required: %w", perm, ErrForbidden)
	}
	return nil
}

// RequireRole fails with ErrForbidden unless the user holds role.
func (p *Permissions) RequireRole(ctx context.Context, userID uint64, role string) error {
	return p.RequireAnyOf(ctx, userID, role)
}

// RequireAnyOf fails with ErrForbidden unless the user holds at least one of
// roles.
func (p *Permissions) RequireAnyOf(ctx context.Context, userID uint64, roles ...string) error {
	held, err := p.RolesOf(ctx, userID)
	if err != nil {
		return err
	}
	if !hasAny(held, roles...) {
		return fmt.Errorf("one of roles %v required: %w", roles, ErrForbidden)
	}
	return nil
}

// CanModifyOwned applies the ownership rule for agent-owned resources: admins
// always pass, agents pass when the resource has no owner or they own it.
func CanModifyOwned(roles []string, callerID uint64, ownerID *uint64) bool {
	if slices.Contains(roles, model.RoleAdmin) {
		return true
	}
	if slices.Contains(roles, model.RoleAgent) {
		return ownerID == nil || *ownerID == callerID
	}
	return false
}

func CanReadProperties(roles []string) bool {
	return hasAny(roles, model.RoleClient, model.RoleAgent, model.RoleEmployee, model.RoleAdmin)
}

func CanCreateProperties(roles []string) bool {
	return hasAny(roles, model.RoleAgent, model.RoleAdmin)
}

func CanViewAnalytics(roles []string) bool {
	return hasAny(roles, model.RoleAgent, model.RoleEmployee, model.RoleAdmin)
}

func CanManageUsers(roles []string) bool {
	return slices.Contains(roles, model.RoleAdmin)
}

func hasAny(held []string, want ...string) bool {
	for _, w := range want {
		if slices.Contains(held, w) {
			return true
		}
	}
	return false
}
