package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/polytech-superapp/campus-sso/internal/audit"
	"github.com/polytech-superapp/campus-sso/internal/middleware"
	"github.com/polytech-superapp/campus-sso/internal/repository"
)

// LinkHandler binds telegram identities to accounts. A telegram id may
// own at most one account and vice versa; the bot relies on that
// bijection to resolve chat members back to people.
type LinkHandler struct {
	Accounts *repository.AccountRepo
	Links    *repository.LinkRepo
	Audit    *audit.Sink
}

func NewLinkHandler(accounts *repository.AccountRepo, links *repository.LinkRepo, sink *audit.Sink) *LinkHandler {
	return &LinkHandler{Accounts: accounts, Links: links, Audit: sink}
}

type linkReq struct {
	TelegramID       int64   `json:"telegram_id"`
	TelegramUsername *string `json:"telegram_username"`
	ChatID           *int64  `json:"chat_id"`
}

// Link attaches a telegram identity to the account. Re-linking the
// same pair refreshes the username and chat id; a telegram id already
// attached elsewhere is a conflict.
func (h *LinkHandler) Link(c echo.Context) error {
	p, _ := middleware.PrincipalFrom(c)
	var req linkReq
	if err := c.Bind(&req); err != nil || req.TelegramID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "telegram_id required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()
	accountID := c.Param("id")
	acc, err := h.Accounts.GetByID(ctx, accountID)
	if err == repository.ErrNotFound {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "account not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if !p.AllowedApp(acc.App) {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}

	link, err := h.Links.Link(ctx, accountID, req.TelegramID, req.TelegramUsername, req.ChatID)
	if err == repository.ErrLinkTaken {
		return c.JSON(http.StatusConflict, echo.Map{"error": "telegram account already linked elsewhere"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "link failed"})
	}
	h.Audit.Event("telegram_linked", audit.Merge(audit.RequestContext(c), actor(p), map[string]any{
		"account_id": accountID, "telegram_id": req.TelegramID,
	}))
	return c.JSON(http.StatusOK, echo.Map{
		"account_id":        link.AccountID,
		"telegram_id":       link.TelegramID,
		"telegram_username": link.TelegramUsername,
		"chat_id":           link.ChatID,
		"linked_at":         link.LinkedAt,
	})
}

// Unlink detaches the telegram identity from the account.
func (h *LinkHandler) Unlink(c echo.Context) error {
	p, _ := middleware.PrincipalFrom(c)
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()
	accountID := c.Param("id")
	acc, err := h.Accounts.GetByID(ctx, accountID)
	if err == repository.ErrNotFound {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "account not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if !p.AllowedApp(acc.App) {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}

	if err := h.Links.Unlink(ctx, accountID); err == repository.ErrNotFound {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "no link on this account"})
	} else if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "unlink failed"})
	}
	h.Audit.Event("telegram_unlinked", audit.Merge(audit.RequestContext(c), actor(p),
		map[string]any{"account_id": accountID}))
	return c.JSON(http.StatusOK, echo.Map{"status": "unlinked"})
}
