package handler

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/polytech-superapp/campus-sso/internal/audit"
	"github.com/polytech-superapp/campus-sso/internal/config"
	"github.com/polytech-superapp/campus-sso/internal/middleware"
	"github.com/polytech-superapp/campus-sso/internal/model"
	"github.com/polytech-superapp/campus-sso/internal/realtime"
	"github.com/polytech-superapp/campus-sso/internal/repository"
	"github.com/polytech-superapp/campus-sso/internal/utils"
)

// SessionHandler runs the attendance session lifecycle: a teacher
// opens a session on a registered kiosk, the kiosk renders a rotating
// QR proof from the session secret, students present proof plus a
// launch token to get marked.
type SessionHandler struct {
	Cfg    config.Config
	Kiosks *repository.KioskRepo
	Attends *repository.AttendRepo
	Hub    *realtime.Hub
	Audit  *audit.Sink
}

func NewSessionHandler(cfg config.Config, kiosks *repository.KioskRepo, attend *repository.AttendRepo, hub *realtime.Hub, sink *audit.Sink) *SessionHandler {
	return &SessionHandler{Cfg: cfg, Kiosks: kiosks, Attends: attend, Hub: hub, Audit: sink}
}

type createSessionReq struct {
	KioskID    string `json:"kiosk_id"`
	Discipline string `json:"discipline"`
}

type attendReq struct {
	SessionID   string `json:"session_id"`
	Code        string `json:"code"`
	LaunchToken string `json:"launch_token"`
}

type sessionResp struct {
	ID            string     `json:"id"`
	KioskID       string     `json:"kiosk_id"`
	TeacherID     string     `json:"teacher_id"`
	TeacherName   string     `json:"teacher_name"`
	Discipline    string     `json:"discipline"`
	RotateSeconds int        `json:"rotate_seconds"`
	StartedAt     time.Time  `json:"started_at"`
	EndedAt       *time.Time `json:"ended_at"`
	IsActive      bool       `json:"is_active"`
}

func serializeSession(s model.AttendSession) sessionResp {
	return sessionResp{
		ID: s.ID, KioskID: s.KioskID, TeacherID: s.TeacherID, TeacherName: s.TeacherName,
		Discipline: s.Discipline, RotateSeconds: s.RotateSeconds,
		StartedAt: s.StartedAt, EndedAt: s.EndedAt, IsActive: s.IsActive,
	}
}

// publicSessionPart is the unauthenticated view of an active session:
// everything except the QR secret.
func publicSessionPart(s model.AttendSession) echo.Map {
	return echo.Map{
		"active":         true,
		"session_id":     s.ID,
		"teacher_name":   s.TeacherName,
		"discipline":     s.Discipline,
		"rotate_seconds": s.RotateSeconds,
		"started_at":     s.StartedAt,
	}
}

func (h *SessionHandler) maxAge() time.Duration {
	return time.Duration(h.Cfg.SessionMaxMinutes) * time.Minute
}

// Create opens a session on a registered kiosk, force-closing any
// prior active one there.
func (h *SessionHandler) Create(c echo.Context) error {
	claims, _ := middleware.ClaimsFrom(c)
	var req createSessionReq
	if err := c.Bind(&req); err != nil || req.KioskID == "" || strings.TrimSpace(req.Discipline) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "kiosk_id and discipline required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()
	kiosk, err := h.Kiosks.Get(ctx, req.KioskID)
	if err == repository.ErrNotFound {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "kiosk not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if !kiosk.IsRegistered() {
		return c.JSON(http.StatusConflict, echo.Map{"error": "kiosk is not registered to a room"})
	}

	secret, err := utils.RandomHex(32)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create failed"})
	}
	s, err := h.Attends.CreateSession(ctx, model.AttendSession{
		ID:            uuid.NewString(),
		KioskID:       kiosk.ID,
		TeacherID:     claims.AccountID,
		TeacherName:   claims.FullName,
		Discipline:    strings.TrimSpace(req.Discipline),
		QRSecret:      secret,
		RotateSeconds: h.Cfg.QRRotateSeconds,
	})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create failed"})
	}
	h.Audit.Event("session_started", audit.Merge(audit.RequestContext(c), audit.TokenActor(claims),
		map[string]any{"session_id": s.ID, "kiosk_id": kiosk.ID, "discipline": s.Discipline}))
	h.Hub.PublishKiosk(kiosk.ID)
	return c.JSON(http.StatusCreated, serializeSession(s))
}

// Current is the kiosk's public poll endpoint. Anyone may see whether
// a session is running; the QR secret is released only to a caller
// presenting the kiosk's display PIN, which proves it is the room's
// registered screen.
func (h *SessionHandler) Current(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()
	kioskID := c.Param("id")
	kiosk, err := h.Kiosks.Get(ctx, kioskID)
	if err == repository.ErrNotFound {
		return c.JSON(http.StatusOK, echo.Map{"active": false})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}

	s, err := h.Attends.ActiveByKiosk(ctx, kioskID, h.maxAge())
	if err == repository.ErrNotFound {
		return c.JSON(http.StatusOK, echo.Map{"active": false})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}

	out := publicSessionPart(s)
	pin := c.QueryParam("display_pin")
	if pin != "" && kiosk.IsRegistered() &&
		subtle.ConstantTimeCompare([]byte(pin), []byte(kiosk.DisplayPIN)) == 1 {
		out["qr_secret"] = s.QRSecret
	}
	return c.JSON(http.StatusOK, out)
}

// List returns the calling teacher's sessions, optionally scoped to
// one kiosk.
func (h *SessionHandler) List(c echo.Context) error {
	claims, _ := middleware.ClaimsFrom(c)
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()
	sessions, err := h.Attends.ListByTeacher(ctx, claims.AccountID, c.QueryParam("kiosk_id"))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	out := make([]sessionResp, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, serializeSession(s))
	}
	return c.JSON(http.StatusOK, out)
}

// Get returns one session with its attendance count.
func (h *SessionHandler) Get(c echo.Context) error {
	claims, _ := middleware.ClaimsFrom(c)
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()
	s, err := h.Attends.Get(ctx, c.Param("id"))
	if err == repository.ErrNotFound {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "session not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if !canManageSession(claims, s) {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}
	count, err := h.Attends.CountAttendance(ctx, s.ID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"session": serializeSession(s), "attendance_count": count})
}

// Attendees lists who is marked in a session, in arrival order.
func (h *SessionHandler) Attendees(c echo.Context) error {
	claims, _ := middleware.ClaimsFrom(c)
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()
	s, err := h.Attends.Get(ctx, c.Param("id"))
	if err == repository.ErrNotFound {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "session not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if !canManageSession(claims, s) {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}
	marks, err := h.Attends.Attendees(ctx, s.ID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	out := make([]echo.Map, 0, len(marks))
	for _, m := range marks {
		out = append(out, echo.Map{
			"student_id":    m.StudentExternalID,
			"student_name":  m.StudentName,
			"student_email": m.StudentEmail,
			"marked_at":     m.MarkedAt,
		})
	}
	return c.JSON(http.StatusOK, out)
}

// Attend marks a student present. The proof is checked before the
// identity, and the two failures stay distinguishable: a stale QR
// means re-scan, a dead launch token means re-launch the mini-app.
func (h *SessionHandler) Attend(c echo.Context) error {
	var req attendReq
	if err := c.Bind(&req); err != nil || req.SessionID == "" || req.Code == "" || req.LaunchToken == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "session_id, code and launch_token required"})
	}
	reqMeta := audit.RequestContext(c)

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()
	s, err := h.Attends.GetActive(ctx, req.SessionID, h.maxAge())
	if err == repository.ErrNotFound {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "session ended or not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}

	if !utils.VerifyProof(s.QRSecret, s.ID, s.RotateSeconds, req.Code, time.Now()) {
		h.Audit.Event("attend_rejected", audit.Merge(reqMeta,
			map[string]any{"session_id": s.ID, "reason": "stale_code"}))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "stale code"})
	}

	identity, err := utils.VerifyLaunchToken(h.Cfg.LaunchSecret, strings.TrimSpace(req.LaunchToken))
	if err != nil {
		h.Audit.Event("attend_rejected", audit.Merge(reqMeta,
			map[string]any{"session_id": s.ID, "reason": "identity_not_confirmed"}))
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "identity not confirmed"})
	}

	created, err := h.Attends.Mark(ctx, model.AttendanceMark{
		SessionID:         s.ID,
		StudentExternalID: identity.ExternalID,
		StudentName:       identity.Name,
		StudentEmail:      identity.Email,
	})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "mark failed"})
	}
	if !created {
		return c.JSON(http.StatusOK, echo.Map{"status": "already_marked"})
	}
	h.Audit.Event("attend_marked", audit.Merge(reqMeta, map[string]any{
		"session_id": s.ID, "student_id": identity.ExternalID,
	}))
	h.Hub.PublishKiosk(s.KioskID)
	return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}

// Close ends a session. Closing an already-closed session is an ok.
func (h *SessionHandler) Close(c echo.Context) error {
	claims, _ := middleware.ClaimsFrom(c)
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()
	s, err := h.Attends.Get(ctx, c.Param("id"))
	if err == repository.ErrNotFound {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "session not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if !canManageSession(claims, s) {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}
	if err := h.Attends.CloseSession(ctx, s.ID); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "close failed"})
	}
	h.Audit.Event("session_closed", audit.Merge(audit.RequestContext(c), audit.TokenActor(claims),
		map[string]any{"session_id": s.ID, "kiosk_id": s.KioskID}))
	h.Hub.PublishKiosk(s.KioskID)
	return c.JSON(http.StatusOK, echo.Map{"status": "closed"})
}

// canManageSession allows the owning teacher, a traffic admin, or the
// super-admin.
func canManageSession(claims utils.AccessClaims, s model.AttendSession) bool {
	if claims.AccountID == s.TeacherID {
		return true
	}
	if claims.App == model.AppTraffic && claims.Role == "admin" {
		return true
	}
	return claims.App == model.AppSSO && claims.Role == "admin"
}
