package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/polytech-superapp/campus-sso/internal/audit"
	"github.com/polytech-superapp/campus-sso/internal/config"
	"github.com/polytech-superapp/campus-sso/internal/middleware"
	"github.com/polytech-superapp/campus-sso/internal/model"
	"github.com/polytech-superapp/campus-sso/internal/repository"
	"github.com/polytech-superapp/campus-sso/internal/utils"
)

const dbTimeout = 5 * time.Second

// AuthHandler implements login, refresh rotation, logout and identity
// introspection.
type AuthHandler struct {
	Cfg      config.Config
	Accounts *repository.AccountRepo
	Sessions *repository.SessionRepo
	Audit    *audit.Sink
}

func NewAuthHandler(cfg config.Config, accounts *repository.AccountRepo, sessions *repository.SessionRepo, sink *audit.Sink) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Accounts: accounts, Sessions: sessions, Audit: sink}
}

// ----- DTOs -----

type loginReq struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	App        string `json:"app"`
	RedirectTo string `json:"redirect_to"`
}

type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}

type accountPart struct {
	ID       string  `json:"id"`
	Username string  `json:"username"`
	FullName string  `json:"full_name"`
	App      string  `json:"app"`
	Role     string  `json:"role"`
	EntityID *string `json:"entity_id"`
}

type authResp struct {
	User       accountPart `json:"user"`
	Access     tokenPart   `json:"access"`
	Refresh    tokenPart   `json:"refresh"`
	RedirectTo string      `json:"redirect_to,omitempty"`
}

func accountToPart(a model.Account) accountPart {
	return accountPart{ID: a.ID, Username: a.Username, FullName: a.FullName, App: a.App, Role: a.Role, EntityID: a.EntityID}
}

// Login verifies credentials, checks app access and returns a fresh
// access/refresh pair backed by a brand-new refresh session.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "username/password required"})
	}
	targetApp := req.App
	if targetApp == "" {
		targetApp = model.AppSSO
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	reqMeta := audit.RequestContext(c)
	acc, err := h.Accounts.GetActiveByUsername(ctx, req.Username)
	if err == repository.ErrNotFound || (err == nil && !utils.VerifyPassword(acc.PasswordHash, req.Password)) {
		h.Audit.Event("login_failed", audit.Merge(reqMeta, map[string]any{
			"username": req.Username, "target_app": targetApp, "reason": "bad_credentials",
		}))
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}

	// Logging into a specific mini-app requires membership, except for
	// the super-admin who may enter any of them.
	if targetApp != model.AppSSO && acc.App != targetApp && !acc.IsSuperuser() {
		h.Audit.Event("login_denied", audit.Merge(reqMeta, map[string]any{
			"username": req.Username, "target_app": targetApp, "reason": "wrong_app",
		}))
		return c.JSON(http.StatusForbidden, echo.Map{"error": "no access to this application"})
	}

	resp, err := h.issuePair(ctx, acc)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue tokens failed"})
	}
	resp.RedirectTo = req.RedirectTo

	h.Audit.Event("login_success", audit.Merge(reqMeta, map[string]any{
		"account_id": acc.ID, "username": acc.Username, "app": acc.App, "role": acc.Role, "target_app": targetApp,
	}))
	return c.JSON(http.StatusOK, resp)
}

// Refresh rotates a refresh session: the presented token is single
// use, the old session is revoked and a new pair is issued atomically.
// Every rejection is externally uniform.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "refresh_token required"})
	}
	raw := strings.TrimSpace(req.RefreshToken)
	reqMeta := audit.RequestContext(c)

	claims, err := utils.VerifyRefreshToken(h.Cfg.RefreshSecret, raw)
	if err != nil {
		h.Audit.Event("refresh_rejected", audit.Merge(reqMeta, map[string]any{"reason": "bad_token"}))
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	acc, err := h.Accounts.GetByID(ctx, claims.AccountID)
	if err == repository.ErrNotFound || (err == nil && !acc.IsActive) {
		h.Audit.Event("refresh_rejected", audit.Merge(reqMeta, map[string]any{
			"account_id": claims.AccountID, "reason": "account_unavailable",
		}))
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}

	newSessionID := uuid.NewString()
	newRefresh, refreshExp, err := utils.NewRefreshToken(h.Cfg.RefreshSecret, acc, newSessionID,
		time.Duration(h.Cfg.RefreshTTLDays)*24*time.Hour)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue refresh failed"})
	}
	next := model.RefreshSession{
		ID:        newSessionID,
		AccountID: acc.ID,
		TokenHash: utils.HashRefreshRaw(newRefresh),
		ExpiresAt: refreshExp,
	}
	if err := h.Sessions.Rotate(ctx, claims.SessionID, claims.AccountID, utils.HashRefreshRaw(raw), next); err != nil {
		// Only a known rejection reads as token invalidation; a database
		// outage mid-rotation is a server fault, not a revoked session.
		reason, rejected := rotateReason(err)
		if !rejected {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
		}
		h.Audit.Event("refresh_rejected", audit.Merge(reqMeta, map[string]any{
			"account_id": claims.AccountID, "session_id": claims.SessionID, "reason": reason,
		}))
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh"})
	}

	access, accessExp, err := utils.NewAccessToken(h.Cfg.JWTSecret, acc,
		time.Duration(h.Cfg.AccessTTLHours)*time.Hour)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue access failed"})
	}

	h.Audit.Event("refresh_success", audit.Merge(reqMeta, map[string]any{
		"account_id": acc.ID, "old_session_id": claims.SessionID, "new_session_id": newSessionID,
	}))
	return c.JSON(http.StatusOK, authResp{
		User:    accountToPart(acc),
		Access:  tokenPart{Token: access, Expires: accessExp},
		Refresh: tokenPart{Token: newRefresh, Expires: refreshExp},
	})
}

// Logout revokes the presented refresh session. It is deliberately
// idempotent and error-swallowing: a stale, rotated-away or garbage
// token still gets an ok, because logout is cleanup, not an assertion.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshReq
	_ = c.Bind(&req)
	raw := strings.TrimSpace(req.RefreshToken)

	reqMeta := audit.RequestContext(c)
	if raw != "" {
		if claims, err := utils.VerifyRefreshToken(h.Cfg.RefreshSecret, raw); err == nil {
			ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
			defer cancel()
			_ = h.Sessions.Revoke(ctx, claims.SessionID)
			h.Audit.Event("logout", audit.Merge(reqMeta, map[string]any{
				"account_id": claims.AccountID, "session_id": claims.SessionID,
			}))
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}

// Me returns the verified claims of the presented bearer token.
func (h *AuthHandler) Me(c echo.Context) error {
	claims, ok := middleware.ClaimsFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"account_id":  claims.AccountID,
		"username":    claims.Username,
		"full_name":   claims.FullName,
		"app":         claims.App,
		"role":        claims.Role,
		"entity_id":   claims.EntityID,
		"auth_source": claims.AuthSource,
		"expires_at":  claims.ExpiresAt,
	})
}

// issuePair creates a new refresh session and mints both tokens.
func (h *AuthHandler) issuePair(ctx context.Context, acc model.Account) (authResp, error) {
	sessionID := uuid.NewString()
	refresh, refreshExp, err := utils.NewRefreshToken(h.Cfg.RefreshSecret, acc, sessionID,
		time.Duration(h.Cfg.RefreshTTLDays)*24*time.Hour)
	if err != nil {
		return authResp{}, err
	}
	if err := h.Sessions.Create(ctx, model.RefreshSession{
		ID:        sessionID,
		AccountID: acc.ID,
		TokenHash: utils.HashRefreshRaw(refresh),
		ExpiresAt: refreshExp,
	}); err != nil {
		return authResp{}, err
	}
	access, accessExp, err := utils.NewAccessToken(h.Cfg.JWTSecret, acc,
		time.Duration(h.Cfg.AccessTTLHours)*time.Hour)
	if err != nil {
		return authResp{}, err
	}
	return authResp{
		User:    accountToPart(acc),
		Access:  tokenPart{Token: access, Expires: accessExp},
		Refresh: tokenPart{Token: refresh, Expires: refreshExp},
	}, nil
}

// rotateReason names a rotation rejection for the audit log. The
// second return is false for errors that are not rejections at all.
func rotateReason(err error) (string, bool) {
	switch err {
	case repository.ErrNotFound:
		return "session_not_found", true
	case repository.ErrSessionRevoked:
		return "session_revoked", true
	case repository.ErrSessionExpired:
		return "session_expired", true
	case repository.ErrTokenMismatch:
		return "token_reuse", true
	case repository.ErrAccountMismatch:
		return "account_mismatch", true
	}
	return "", false
}
