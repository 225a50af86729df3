package service

import "github.com/iliyamo/realty-crm/internal/model"

// DefaultPermissions is the permission catalogue seeded at startup.
var DefaultPermissions = []model.Permission{
	{Name: "read_properties", Resource: "properties", Action: "read"},
	{Name: "create_properties", Resource: "properties", Action: "create"},
	{Name: "update_properties", Resource: "properties", Action: "update"},
	{Name: "delete_properties", Resource: "properties", Action: "delete"},
	{Name: "manage_properties", Resource: "properties", Action: "manage"},

	{Name: "read_clients", Resource: "clients", Action: "read"},
	{Name: "create_clients", Resource: "clients", Action: "create"},
	{Name: "update_clients", Resource: "clients", Action: "update"},
	{Name: "delete_clients", Resource: "clients", Action: "delete"},
	{Name: "manage_clients", Resource: "clients", Action: "manage"},

	{Name: "read_tasks", Resource: "tasks", Action: "read"},
	{Name: "create_tasks", Resource: "tasks", Action: "create"},
	{Name: "update_tasks", Resource: "tasks", Action: "update"},
	{Name: "delete_tasks", Resource: "tasks", Action: "delete"},
	{Name: "assign_tasks", Resource: "tasks", Action: "assign"},

	{Name: "read_users", Resource: "users", Action: "read"},
	{Name: "create_users", Resource: "users", Action: "create"},
	{Name: "update_users", Resource: "users", Action: "update"},
	{Name: "delete_users", Resource: "users", Action: "delete"},
	{Name: "manage_users", Resource: "users", Action: "manage"},

	{Name: "view_analytics", Resource: "analytics", Action: "read"},
	{Name: "export_analytics", Resource: "analytics", Action: "export"},

	{Name: "admin_access", Resource: "system", Action: "admin"},
	{Name: "system_config", Resource: "system", Action: "config"},

	{Name: "chat_access", Resource: "chat", Action: "read"},
	{Name: "chat_history", Resource: "chat", Action: "history"},

	{Name: "upload_files", Resource: "files", Action: "create"},
	{Name: "download_files", Resource: "files", Action: "read"},
	{Name: "delete_files", Resource: "files", Action: "delete"},
}

// DefaultRoles maps each seeded role to its permission names.
var DefaultRoles = []model.RoleGrant{
	{
		Role: model.Role{Name: model.RoleClient, DisplayName: "Client", Description: "Property buyers, sellers, and investors"},
		Permissions: []string{
			"read_properties", "chat_access", "upload_files", "download_files",
		},
	},
	{
		Role: model.Role{Name: model.RoleAgent, DisplayName: "Real Estate Agent", Description: "Real estate agents and brokers"},
		Permissions: []string{
			"read_properties", "create_properties", "update_properties",
			"read_clients", "create_clients", "update_clients", "manage_clients",
			"read_tasks", "create_tasks", "update_tasks",
			"chat_access", "chat_history", "view_analytics",
			"upload_files", "download_files", "delete_files",
		},
	},
	{
		Role: model.Role{Name: model.RoleEmployee, DisplayName: "Employee", Description: "Company staff and employees"},
		Permissions: []string{
			"read_properties", "read_clients", "read_users",
			"read_tasks", "create_tasks", "update_tasks",
			"chat_access", "chat_history", "view_analytics",
			"upload_files", "download_files",
		},
	},
	{
		Role: model.Role{Name: model.RoleAdmin, DisplayName: "Administrator", Description: "System administrators and managers"},
		Permissions: []string{
			"manage_properties", "manage_clients", "manage_users",
			"read_tasks", "create_tasks", "update_tasks", "delete_tasks", "assign_tasks",
			"chat_access", "chat_history", "view_analytics", "export_analytics",
			"admin_access", "system_config",
			"upload_files", "download_files", "delete_files",
		},
	},
}
