package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/polytech-superapp/campus-sso/internal/audit"
	"github.com/polytech-superapp/campus-sso/internal/config"
	"github.com/polytech-superapp/campus-sso/internal/utils"
)

// StudentHandler exchanges one-shot launch tokens for longer student
// session tokens. Students never log in here: a sibling app that has
// already authenticated them mints the launch token, and this side
// only re-signs the verified identity under its own secret.
type StudentHandler struct {
	Cfg   config.Config
	Audit *audit.Sink
}

func NewStudentHandler(cfg config.Config, sink *audit.Sink) *StudentHandler {
	return &StudentHandler{Cfg: cfg, Audit: sink}
}

type verifyLaunchReq struct {
	LaunchToken string `json:"launch_token"`
}

// Verify validates a launch token and mints a student session token
// carrying the same identity.
func (h *StudentHandler) Verify(c echo.Context) error {
	var req verifyLaunchReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.LaunchToken) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "launch_token required"})
	}
	reqMeta := audit.RequestContext(c)
	identity, err := utils.VerifyLaunchToken(h.Cfg.LaunchSecret, strings.TrimSpace(req.LaunchToken))
	if err != nil {
		h.Audit.Event("launch_rejected", reqMeta)
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "identity not confirmed"})
	}

	token, exp, err := utils.NewStudentSessionToken(h.Cfg.StudentSecret, identity,
		time.Duration(h.Cfg.StudentTTLMin)*time.Minute)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue token failed"})
	}
	h.Audit.Event("student_session_issued", audit.Merge(reqMeta,
		map[string]any{"student_id": identity.ExternalID}))
	return c.JSON(http.StatusOK, echo.Map{
		"token":   token,
		"expires": exp,
		"student": studentPart(identity),
	})
}

// Me returns the identity inside a presented student session token.
func (h *StudentHandler) Me(c echo.Context) error {
	identity, ok := h.studentFromRequest(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
	}
	return c.JSON(http.StatusOK, studentPart(identity))
}

// studentFromRequest extracts and verifies the bearer student session
// token.
func (h *StudentHandler) studentFromRequest(c echo.Context) (utils.StudentIdentity, bool) {
	auth := c.Request().Header.Get(echo.HeaderAuthorization)
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return utils.StudentIdentity{}, false
	}
	identity, err := utils.VerifyStudentSessionToken(h.Cfg.StudentSecret, strings.TrimSpace(auth[len(prefix):]))
	if err != nil {
		return utils.StudentIdentity{}, false
	}
	return identity, true
}

func studentPart(id utils.StudentIdentity) echo.Map {
	return echo.Map{
		"student_id":    id.ExternalID,
		"student_name":  id.Name,
		"student_email": id.Email,
	}
}
