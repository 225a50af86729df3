package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/realty-crm/internal/middleware"
	"github.com/iliyamo/realty-crm/internal/model"
	"github.com/iliyamo/realty-crm/internal/service"
)

const requestTimeout = 5 * time.Second

// forgotPasswordMessage is returned whether or not the email is known.
const forgotPasswordMessage = "If an account with this email exists, a password reset link has been sent"

// AuthHandler serves the /v1/auth endpoints.
type AuthHandler struct {
	auth *service.Auth
	log  *slog.Logger
}

func NewAuthHandler(auth *service.Auth, log *slog.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, log: log}
}

// ----- DTOs -----

type registerReq struct {
	Email     string `json:"email"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
	Company   string `json:"company"`
	JobTitle  string `json:"job_title"`
	Role      string `json:"role"`
}

// loginReq.Email may also hold a username.
type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

type forgotPasswordReq struct {
	Email string `json:"email"`
}

type resetPasswordReq struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

type changePasswordReq struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// clientInfo captures the caller metadata stored on sessions and audit rows.
func clientInfo(c echo.Context) service.ClientInfo {
	h := c.Request().Header
	ua := h.Get("User-Agent")
	return service.ClientInfo{
		IP:        c.RealIP(),
		UserAgent: ua,
		Device: model.DeviceInfo{
			UserAgent:      ua,
			AcceptLanguage: h.Get("Accept-Language"),
			Referer:        h.Get("Referer"),
		},
	}
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
}

func withTimeout(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), requestTimeout)
}

// Register creates an account.  It does not log the user in.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return badRequest(c, "email and password are required")
	}

	ctx, cancel := withTimeout(c)
	defer cancel()

	user, err := h.auth.Register(ctx, service.RegisterInput{
		Email:     req.Email,
		Username:  req.Username,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
		Company:   req.Company,
		JobTitle:  req.JobTitle,
		Role:      req.Role,
	}, clientInfo(c))
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"message": "User registered successfully", "user": user})
}

// Login verifies credentials and returns the user with a fresh token pair.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	login := strings.TrimSpace(req.Email)
	if login == "" || req.Password == "" {
		return badRequest(c, "email and password are required")
	}

	ctx, cancel := withTimeout(c)
	defer cancel()

	res, err := h.auth.Authenticate(ctx, login, req.Password, clientInfo(c))
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Refresh exchanges a refresh token for a new pair.  The presented token is
// single use.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if strings.TrimSpace(req.RefreshToken) == "" {
		return badRequest(c, "refresh_token is required")
	}

	ctx, cancel := withTimeout(c)
	defer cancel()

	pair, err := h.auth.Refresh(ctx, strings.TrimSpace(req.RefreshToken), clientInfo(c))
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(http.StatusOK, pair)
}

// Logout deactivates the session of the bearer token.
func (h *AuthHandler) Logout(c echo.Context) error {
	ctx, cancel := withTimeout(c)
	defer cancel()

	if _, err := h.auth.Logout(ctx, middleware.AccessToken(c), clientInfo(c)); err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "Logged out successfully"})
}

// Me returns the authenticated user with roles and permissions.
func (h *AuthHandler) Me(c echo.Context) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	ctx, cancel := withTimeout(c)
	defer cancel()

	summary, err := h.auth.Summary(ctx, user)
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(http.StatusOK, summary)
}

// ForgotPassword answers identically for known and unknown emails.
func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var req forgotPasswordReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if strings.TrimSpace(req.Email) == "" {
		return badRequest(c, "email is required")
	}

	ctx, cancel := withTimeout(c)
	defer cancel()

	if _, err := h.auth.Resets.Request(ctx, req.Email, clientInfo(c)); err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": forgotPasswordMessage})
}

// ResetPassword redeems a reset token.  Every session of the user is closed.
func (h *AuthHandler) ResetPassword(c echo.Context) error {
	var req resetPasswordReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if req.Token == "" || req.NewPassword == "" {
		return badRequest(c, "token and new_password are required")
	}

	ctx, cancel := withTimeout(c)
	defer cancel()

	if err := h.auth.Resets.Redeem(ctx, req.Token, req.NewPassword, clientInfo(c)); err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "Password reset successfully"})
}

// ChangePassword keeps the calling session and closes the others.
func (h *AuthHandler) ChangePassword(c echo.Context) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}
	var req changePasswordReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		return badRequest(c, "current_password and new_password are required")
	}

	ctx, cancel := withTimeout(c)
	defer cancel()

	err := h.auth.ChangePassword(ctx, user.ID, req.CurrentPassword, req.NewPassword, middleware.AccessToken(c), clientInfo(c))
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "Password changed successfully"})
}

// Sessions lists the caller's live sessions, flagging the current one.
func (h *AuthHandler) Sessions(c echo.Context) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	ctx, cancel := withTimeout(c)
	defer cancel()

	sessions, err := h.auth.Sessions.ListActive(ctx, user.ID, middleware.AccessToken(c))
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"sessions": sessions, "total": len(sessions)})
}

// RevokeSession closes one of the caller's sessions.  Sessions of other
// users are reported as not found.
func (h *AuthHandler) RevokeSession(c echo.Context) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return badRequest(c, "invalid session id")
	}

	ctx, cancel := withTimeout(c)
	defer cancel()

	revoked, err := h.auth.Sessions.RevokeOne(ctx, id, user.ID, clientInfo(c))
	if err != nil {
		return fail(c, h.log, err)
	}
	if !revoked {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "Session not found"})
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "Session revoked successfully"})
}

// RevokeAllSessions closes every session of the caller.  With
// ?keep_current=true the session making the request survives.
func (h *AuthHandler) RevokeAllSessions(c echo.Context) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}
	except := ""
	if keep, _ := strconv.ParseBool(c.QueryParam("keep_current")); keep {
		except = middleware.AccessToken(c)
	}

	ctx, cancel := withTimeout(c)
	defer cancel()

	n, err := h.auth.Sessions.RevokeAll(ctx, user.ID, except, clientInfo(c))
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "Sessions revoked successfully", "revoked": n})
}

// CSRFToken mints a token for the X-CSRF-Token header.
func (h *AuthHandler) CSRFToken(c echo.Context) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"csrf_token": h.auth.CSRF.Generate(user.ID),
		"expires_in": int64(h.auth.CSRF.MaxAge() / time.Second),
	})
}
