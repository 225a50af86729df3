package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/realty-crm/internal/middleware"
	"github.com/iliyamo/realty-crm/internal/model"
	"github.com/iliyamo/realty-crm/internal/service"
)

// AdminHandler serves user management and audit endpoints.  Routes are
// gated to the admin role by the router.
type AdminHandler struct {
	auth *service.Auth
	log  *slog.Logger
}

func NewAdminHandler(auth *service.Auth, log *slog.Logger) *AdminHandler {
	return &AdminHandler{auth: auth, log: log}
}

type auditEntryResp struct {
	ID           uint64         `json:"id"`
	UserID       *uint64        `json:"user_id"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resource_type,omitempty"`
	ResourceID   string         `json:"resource_id,omitempty"`
	Details      map[string]any `json:"details"`
	IPAddress    string         `json:"ip_address,omitempty"`
	UserAgent    string         `json:"user_agent,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
}

// paging reads ?offset= and ?limit=.  The repository clamps limit.
func paging(c echo.Context) (offset, limit int, ok bool) {
	var err error
	if s := c.QueryParam("offset"); s != "" {
		if offset, err = strconv.Atoi(s); err != nil || offset < 0 {
			return 0, 0, false
		}
	}
	if s := c.QueryParam("limit"); s != "" {
		if limit, err = strconv.Atoi(s); err != nil || limit < 0 {
			return 0, 0, false
		}
	}
	return offset, limit, true
}

// ListUsers supports ?role=, ?is_active= and paging.
func (h *AdminHandler) ListUsers(c echo.Context) error {
	offset, limit, ok := paging(c)
	if !ok {
		return badRequest(c, "invalid offset or limit")
	}
	f := model.UserFilter{Role: c.QueryParam("role"), Offset: offset, Limit: limit}
	if s := c.QueryParam("is_active"); s != "" {
		active, err := strconv.ParseBool(s)
		if err != nil {
			return badRequest(c, "invalid is_active")
		}
		f.IsActive = &active
	}

	ctx, cancel := withTimeout(c)
	defer cancel()

	users, err := h.auth.ListUsers(ctx, f)
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"users": users, "total": len(users)})
}

// DeactivateUser disables an account and closes all of its sessions.
func (h *AdminHandler) DeactivateUser(c echo.Context) error {
	admin, ok := middleware.CurrentUser(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return badRequest(c, "invalid user id")
	}

	ctx, cancel := withTimeout(c)
	defer cancel()

	if err := h.auth.DeactivateUser(ctx, id, admin.ID, clientInfo(c)); err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "User deactivated successfully"})
}

// AuditLogs lists entries newest first, filtered by ?user_id= and ?action=.
func (h *AdminHandler) AuditLogs(c echo.Context) error {
	offset, limit, ok := paging(c)
	if !ok {
		return badRequest(c, "invalid offset or limit")
	}
	f := model.AuditFilter{Action: c.QueryParam("action"), Offset: offset, Limit: limit}
	if s := c.QueryParam("user_id"); s != "" {
		id, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return badRequest(c, "invalid user_id")
		}
		f.UserID = &id
	}

	ctx, cancel := withTimeout(c)
	defer cancel()

	entries, err := h.auth.Audit.List(ctx, f)
	if err != nil {
		return fail(c, h.log, err)
	}
	out := make([]auditEntryResp, 0, len(entries))
	for _, e := range entries {
		out = append(out, auditEntryResp{
			ID:           e.ID,
			UserID:       e.UserID,
			Action:       e.Action,
			ResourceType: e.ResourceType,
			ResourceID:   e.ResourceID,
			Details:      e.Details,
			IPAddress:    e.IPAddress,
			UserAgent:    e.UserAgent,
			Timestamp:    e.Timestamp,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"logs": out, "total": len(out)})
}
