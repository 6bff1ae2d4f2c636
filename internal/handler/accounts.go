package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/polytech-superapp/campus-sso/internal/audit"
	"github.com/polytech-superapp/campus-sso/internal/config"
	"github.com/polytech-superapp/campus-sso/internal/middleware"
	"github.com/polytech-superapp/campus-sso/internal/model"
	"github.com/polytech-superapp/campus-sso/internal/repository"
)

// AccountHandler serves account administration and the gateway's read
// paths. Every route sits behind capability resolution: the principal
// is either a service caller with a fixed app scope or the sso
// super-admin.
type AccountHandler struct {
	Cfg      config.Config
	Accounts *repository.AccountRepo
	Audit    *audit.Sink
}

func NewAccountHandler(cfg config.Config, accounts *repository.AccountRepo, sink *audit.Sink) *AccountHandler {
	return &AccountHandler{Cfg: cfg, Accounts: accounts, Audit: sink}
}

type accountResp struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	FullName  string    `json:"full_name"`
	App       string    `json:"app"`
	Role      string    `json:"role"`
	EntityID  *string   `json:"entity_id"`
	RosterID  *int64    `json:"roster_id"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

func serializeAccount(a model.Account) accountResp {
	return accountResp{
		ID: a.ID, Username: a.Username, FullName: a.FullName,
		App: a.App, Role: a.Role, EntityID: a.EntityID, RosterID: a.RosterID,
		IsActive: a.IsActive, CreatedAt: a.CreatedAt,
	}
}

type createAccountReq struct {
	Username string  `json:"username"`
	Password string  `json:"password"`
	FullName string  `json:"full_name"`
	App      string  `json:"app"`
	Role     string  `json:"role"`
	EntityID *string `json:"entity_id"`
	RosterID *int64  `json:"roster_id"`
}

type updateAccountReq struct {
	FullName *string `json:"full_name"`
	Password *string `json:"password"`
	IsActive *bool   `json:"is_active"`
}

// CheckUsername reports global username availability.
func (h *AccountHandler) CheckUsername(c echo.Context) error {
	username := strings.TrimSpace(c.QueryParam("username"))
	if username == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "username required"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()
	available, err := h.Accounts.UsernameAvailable(ctx, username)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"available": available})
}

// List returns accounts inside the caller's app scope. Service callers
// must name an app they own; the super-admin may list everything.
func (h *AccountHandler) List(c echo.Context) error {
	p, _ := middleware.PrincipalFrom(c)
	app := c.QueryParam("app")
	if p.IsService() && app == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "app required"})
	}
	if app != "" && !p.AllowedApp(app) {
		h.Audit.Event("list_denied", audit.Merge(audit.RequestContext(c), audit.ServiceActor(p.Service),
			map[string]any{"target_app": app}))
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}

	filter := repository.ListFilter{
		App:    app,
		Role:   c.QueryParam("role"),
		Search: strings.TrimSpace(c.QueryParam("search")),
	}
	if ids := c.QueryParam("entity_ids"); ids != "" {
		filter.EntityIDs = strings.Split(ids, ",")
	}
	if page, err := strconv.Atoi(c.QueryParam("page")); err == nil && page > 0 {
		const pageSize = 50
		filter.Limit = pageSize
		filter.Offset = (page - 1) * pageSize
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()
	accounts, err := h.Accounts.List(ctx, filter)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	out := make([]accountResp, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, serializeAccount(a))
	}
	return c.JSON(http.StatusOK, out)
}

// Create inserts an account directly. The super-admin may only create
// app-level admins this way; everything else goes through the
// provisioning upsert so entity bindings stay consistent. Service
// callers may create any valid role inside their own apps.
func (h *AccountHandler) Create(c echo.Context) error {
	p, _ := middleware.PrincipalFrom(c)
	var req createAccountReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" || req.FullName == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "username/password/full_name required"})
	}
	if !model.KnownApp(req.App) || !model.RoleAllowed(req.App, req.Role) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown app or role"})
	}
	reqMeta := audit.RequestContext(c)
	if !p.IsService() && req.Role != "admin" {
		h.Audit.Event("account_create_denied", audit.Merge(reqMeta, audit.TokenActor(p.Claims),
			map[string]any{"target_app": req.App, "target_role": req.Role, "reason": "admin_creates_admins_only"}))
		return c.JSON(http.StatusForbidden, echo.Map{"error": "direct creation is limited to app admins"})
	}
	if !p.AllowedApp(req.App) {
		h.Audit.Event("account_create_denied", audit.Merge(reqMeta, audit.ServiceActor(p.Service),
			map[string]any{"target_app": req.App, "reason": "app_not_owned"}))
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()
	acc, err := h.Accounts.Create(ctx, repository.CreateParams{
		Username: req.Username, Password: req.Password, FullName: req.FullName,
		App: req.App, Role: req.Role, EntityID: req.EntityID, RosterID: req.RosterID,
	}, h.Cfg.BcryptCost)
	if err == repository.ErrDuplicateUsername {
		return c.JSON(http.StatusConflict, echo.Map{"error": "username already taken"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create failed"})
	}
	h.Audit.Event("account_created", audit.Merge(reqMeta, actor(p), map[string]any{
		"account_id": acc.ID, "app": acc.App, "role": acc.Role,
	}))
	return c.JSON(http.StatusCreated, serializeAccount(acc))
}

// Update patches name, password or active flag. Super-admin only.
func (h *AccountHandler) Update(c echo.Context) error {
	p, _ := middleware.PrincipalFrom(c)
	if p.IsService() {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}
	var req updateAccountReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()
	id := c.Param("id")
	if _, err := h.Accounts.GetByID(ctx, id); err == repository.ErrNotFound {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "account not found"})
	}
	acc, err := h.Accounts.UpdateFields(ctx, id, req.FullName, req.Password, req.IsActive, h.Cfg.BcryptCost)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update failed"})
	}
	h.Audit.Event("account_updated", audit.Merge(audit.RequestContext(c), audit.TokenActor(p.Claims),
		map[string]any{"account_id": acc.ID, "password_changed": req.Password != nil}))
	return c.JSON(http.StatusOK, serializeAccount(acc))
}

// Delete removes an account by id. A service caller may delete only
// inside its own app scope.
func (h *AccountHandler) Delete(c echo.Context) error {
	p, _ := middleware.PrincipalFrom(c)
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()
	id := c.Param("id")
	acc, err := h.Accounts.GetByID(ctx, id)
	if err == repository.ErrNotFound {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "account not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if !p.AllowedApp(acc.App) {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}
	if err := h.Accounts.Delete(ctx, id); err != nil && err != repository.ErrNotFound {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "delete failed"})
	}
	h.Audit.Event("account_deleted", audit.Merge(audit.RequestContext(c), actor(p),
		map[string]any{"account_id": id, "app": acc.App}))
	return c.JSON(http.StatusOK, echo.Map{"status": "deleted"})
}

// FindByTelegram resolves a linked telegram identity to an account
// inside the caller's scope.
func (h *AccountHandler) FindByTelegram(c echo.Context) error {
	p, _ := middleware.PrincipalFrom(c)
	telegramID, err := strconv.ParseInt(c.Param("telegram_id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid telegram id"})
	}
	app := c.QueryParam("app")
	if p.IsService() && app == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "app required"})
	}
	if app != "" && !p.AllowedApp(app) {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()
	acc, err := h.Accounts.FindByTelegramID(ctx, telegramID, app)
	if err == repository.ErrNotFound {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "account not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	return c.JSON(http.StatusOK, serializeAccount(acc))
}

// FindByRoster resolves an external roster id to an account inside the
// caller's scope.
func (h *AccountHandler) FindByRoster(c echo.Context) error {
	p, _ := middleware.PrincipalFrom(c)
	rosterID, err := strconv.ParseInt(c.Param("roster_id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid roster id"})
	}
	app := c.QueryParam("app")
	if app == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "app required"})
	}
	if !p.AllowedApp(app) {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()
	acc, err := h.Accounts.FindByRosterID(ctx, app, rosterID)
	if err == repository.ErrNotFound {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "account not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	return c.JSON(http.StatusOK, serializeAccount(acc))
}

// actor names the requesting principal for audit fields.
func actor(p middleware.Principal) map[string]any {
	if p.IsService() {
		return audit.ServiceActor(p.Service)
	}
	return audit.TokenActor(p.Claims)
}
