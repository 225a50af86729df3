package model

import "sort"

// Role names seeded at startup.
const (
	RoleClient   = "client"
	RoleAgent    = "agent"
	RoleEmployee = "employee"
	RoleAdmin    = "admin"
)

// Capability identifiers as checked by PermissionSet.Has and the permission
// gates.  They are Permission.String() values, "<action>_<resource>", not
// catalogue names: the catalogue entry "view_analytics" is checked as
// PermReadAnalytics.
const (
	PermReadProperties   = "read_properties"
	PermCreateProperties = "create_properties"
	PermUpdateProperties = "update_properties"
	PermDeleteProperties = "delete_properties"
	PermManageProperties = "manage_properties"

	PermReadClients   = "read_clients"
	PermManageClients = "manage_clients"

	PermReadTasks   = "read_tasks"
	PermAssignTasks = "assign_tasks"

	PermReadUsers   = "read_users"
	PermManageUsers = "manage_users"

	PermReadAnalytics   = "read_analytics" // catalogue: view_analytics
	PermExportAnalytics = "export_analytics"

	PermAdminSystem  = "admin_system"  // catalogue: admin_access
	PermConfigSystem = "config_system" // catalogue: system_config

	PermReadChat    = "read_chat"    // catalogue: chat_access
	PermHistoryChat = "history_chat" // catalogue: chat_history

	PermCreateFiles = "create_files" // catalogue: upload_files
	PermReadFiles   = "read_files"   // catalogue: download_files
	PermDeleteFiles = "delete_files"
)

// Role represents a row in the `roles` table.  Grants live in the
// role_permissions join table and are resolved by query, not by a
// back-reference on the struct.
type Role struct {
	ID          uint64 // roles.id
	Name        string // roles.name
	DisplayName string // roles.display_name
	Description string // roles.description
}

// Permission is an immutable (resource, action) pair.  Name is the
// catalogue label from the seed data and may differ from String(),
// e.g. "view_analytics" is (analytics, read).
type Permission struct {
	ID       uint64 // permissions.id
	Name     string // permissions.name
	Resource string // permissions.resource
	Action   string // permissions.action
}

// String returns the canonical capability identifier "<action>_<resource>".
func (p Permission) String() string { return p.Action + "_" + p.Resource }

// PermissionSet is the resolved capability set of a user.
type PermissionSet map[string]struct{}

// NewPermissionSet builds a set from permission rows.
func NewPermissionSet(perms []Permission) PermissionSet {
	s := make(PermissionSet, len(perms))
	for _, p := range perms {
		s[p.String()] = struct{}{}
	}
	return s
}

// Has reports membership.
func (s PermissionSet) Has(perm string) bool {
	_, ok := s[perm]
	return ok
}

// Sorted returns the members in lexical order for stable responses.
func (s PermissionSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// RoleGrant describes a role and the permission names it is granted.  It is
// the unit of the seed catalogue.
type RoleGrant struct {
	Role        Role
	Permissions []string
}
