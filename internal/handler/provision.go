package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/polytech-superapp/campus-sso/internal/audit"
	"github.com/polytech-superapp/campus-sso/internal/config"
	"github.com/polytech-superapp/campus-sso/internal/middleware"
	"github.com/polytech-superapp/campus-sso/internal/model"
	"github.com/polytech-superapp/campus-sso/internal/repository"
)

// ProvisionHandler lets dependent services mirror their own entities
// (staff, teachers, executors) into the identity store. The upsert is
// idempotent per (app, role, entity id), so services can replay their
// sync jobs freely.
type ProvisionHandler struct {
	Cfg      config.Config
	Accounts *repository.AccountRepo
	Audit    *audit.Sink
}

func NewProvisionHandler(cfg config.Config, accounts *repository.AccountRepo, sink *audit.Sink) *ProvisionHandler {
	return &ProvisionHandler{Cfg: cfg, Accounts: accounts, Audit: sink}
}

type provisionReq struct {
	Username string `json:"username"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
	EntityID string `json:"entity_id"`
	RosterID *int64 `json:"roster_id"`
}

// Upsert creates or refreshes the identity bound to an entity. The
// target slot is (app, role, entity id); an existing account matched
// by entity or roster gets updated in place, a fresh one gets created.
func (h *ProvisionHandler) Upsert(c echo.Context) error {
	p, _ := middleware.PrincipalFrom(c)
	app, role := c.Param("app"), c.Param("role")
	if !model.KnownApp(app) || !model.RoleAllowed(app, role) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown app or role"})
	}
	reqMeta := audit.RequestContext(c)
	if !p.AllowedApp(app) {
		h.Audit.Event("provision_denied", audit.Merge(reqMeta, actor(p),
			map[string]any{"target_app": app, "target_role": role}))
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}

	var req provisionReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Username = strings.TrimSpace(req.Username)
	req.EntityID = strings.TrimSpace(req.EntityID)
	if req.Username == "" || req.Password == "" || req.FullName == "" || req.EntityID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "username/password/full_name/entity_id required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()
	acc, err := h.Accounts.Upsert(ctx, app, role, repository.UpsertParams{
		Username: req.Username, Password: req.Password, FullName: req.FullName,
		EntityID: req.EntityID, RosterID: req.RosterID,
	}, h.Cfg.BcryptCost)
	switch err {
	case nil:
	case repository.ErrAmbiguousIdentity:
		h.Audit.Event("provision_conflict", audit.Merge(reqMeta, actor(p), map[string]any{
			"app": app, "role": role, "entity_id": req.EntityID, "reason": "entity_roster_mismatch",
		}))
		return c.JSON(http.StatusConflict, echo.Map{"error": "entity and roster ids resolve to different accounts"})
	case repository.ErrDuplicateUsername:
		return c.JSON(http.StatusConflict, echo.Map{"error": "username already taken"})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "provision failed"})
	}

	h.Audit.Event("provision_upsert", audit.Merge(reqMeta, actor(p), map[string]any{
		"account_id": acc.ID, "app": app, "role": role, "entity_id": req.EntityID,
	}))
	return c.JSON(http.StatusOK, serializeAccount(acc))
}

// DeleteByEntity removes the identity bound to an entity. Deleting an
// entity that was never provisioned is reported, not failed, so the
// calling service's cleanup stays idempotent.
func (h *ProvisionHandler) DeleteByEntity(c echo.Context) error {
	p, _ := middleware.PrincipalFrom(c)
	entityID := c.Param("entity_id")
	app := c.QueryParam("app")
	if app == "" || entityID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "app and entity_id required"})
	}
	if !p.AllowedApp(app) {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()
	err := h.Accounts.DeleteByEntity(ctx, app, entityID)
	if err == repository.ErrNotFound {
		return c.JSON(http.StatusOK, echo.Map{"status": "not_found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "delete failed"})
	}
	h.Audit.Event("provision_delete", audit.Merge(audit.RequestContext(c), actor(p),
		map[string]any{"app": app, "entity_id": entityID}))
	return c.JSON(http.StatusOK, echo.Map{"status": "deleted"})
}
