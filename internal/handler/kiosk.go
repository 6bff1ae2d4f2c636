package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/polytech-superapp/campus-sso/internal/audit"
	"github.com/polytech-superapp/campus-sso/internal/config"
	"github.com/polytech-superapp/campus-sso/internal/middleware"
	"github.com/polytech-superapp/campus-sso/internal/model"
	"github.com/polytech-superapp/campus-sso/internal/realtime"
	"github.com/polytech-superapp/campus-sso/internal/repository"
)

// heartbeatInterval keeps SSE connections alive through proxies and
// doubles as the re-poll period for lazy session expiry.
const heartbeatInterval = 8 * time.Second

// KioskHandler manages classroom kiosk devices and their event
// streams. A kiosk's uuid is its device credential: it is generated
// server-side at init and never listed publicly, so knowing it means
// being (or having provisioned) the device.
type KioskHandler struct {
	Cfg    config.Config
	Kiosks *repository.KioskRepo
	Attend *repository.AttendRepo
	Hub    *realtime.Hub
	Audit  *audit.Sink
}

func NewKioskHandler(cfg config.Config, kiosks *repository.KioskRepo, attend *repository.AttendRepo, hub *realtime.Hub, sink *audit.Sink) *KioskHandler {
	return &KioskHandler{Cfg: cfg, Kiosks: kiosks, Attend: attend, Hub: hub, Audit: sink}
}

type kioskResp struct {
	ID           string     `json:"id"`
	Registered   bool       `json:"registered"`
	RegPIN       string     `json:"reg_pin,omitempty"`
	DisplayPIN   string     `json:"display_pin,omitempty"`
	BuildingID   *int64     `json:"building_id"`
	BuildingName *string    `json:"building_name"`
	RoomID       *int64     `json:"room_id"`
	RoomName     *string    `json:"room_name"`
	AssignedAt   *time.Time `json:"assigned_at"`
	CreatedAt    time.Time  `json:"created_at"`
}

// serializeKiosk shows exactly one PIN: the registration PIN while the
// device is unbound, the display PIN once it is bound to a room.
func serializeKiosk(k model.Kiosk) kioskResp {
	out := kioskResp{
		ID: k.ID, Registered: k.IsRegistered(),
		BuildingID: k.BuildingID, BuildingName: k.BuildingName,
		RoomID: k.RoomID, RoomName: k.RoomName,
		AssignedAt: k.AssignedAt, CreatedAt: k.CreatedAt,
	}
	if k.IsRegistered() {
		out.DisplayPIN = k.DisplayPIN
	} else {
		out.RegPIN = k.RegPIN
	}
	return out
}

type registerKioskReq struct {
	BuildingID   int64  `json:"building_id"`
	BuildingName string `json:"building_name"`
	RoomID       int64  `json:"room_id"`
	RoomName     string `json:"room_name"`
}

// Init provisions a brand-new kiosk device and returns its id and
// PINs. Called once by the device on first boot.
func (h *KioskHandler) Init(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()
	k, err := h.Kiosks.Init(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "init failed"})
	}
	h.Audit.Event("kiosk_init", audit.Merge(audit.RequestContext(c), map[string]any{"kiosk_id": k.ID}))
	return c.JSON(http.StatusCreated, serializeKiosk(k))
}

// Get returns a kiosk by device id.
func (h *KioskHandler) Get(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()
	k, err := h.Kiosks.Get(ctx, c.Param("id"))
	if err == repository.ErrNotFound {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "kiosk not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	return c.JSON(http.StatusOK, serializeKiosk(k))
}

// ByRegPIN resolves a registration PIN, for the admin standing in
// front of a fresh kiosk.
func (h *KioskHandler) ByRegPIN(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()
	k, err := h.Kiosks.FindByRegPIN(ctx, c.Param("pin"))
	if err == repository.ErrNotFound {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "kiosk not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	return c.JSON(http.StatusOK, serializeKiosk(k))
}

// ByDisplayPIN resolves a display PIN, for the teacher picking the
// room's kiosk from its idle screen.
func (h *KioskHandler) ByDisplayPIN(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()
	k, err := h.Kiosks.FindByDisplayPIN(ctx, c.Param("pin"))
	if err == repository.ErrNotFound {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "kiosk not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if !k.IsRegistered() {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "kiosk not found"})
	}
	return c.JSON(http.StatusOK, serializeKiosk(k))
}

// List returns all kiosks with their online state.
func (h *KioskHandler) List(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()
	kiosks, err := h.Kiosks.List(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	online := h.Hub.OnlineKiosks()
	out := make([]echo.Map, 0, len(kiosks))
	for _, k := range kiosks {
		_, isOnline := online[k.ID]
		out = append(out, echo.Map{"kiosk": serializeKiosk(k), "online": isOnline})
	}
	return c.JSON(http.StatusOK, out)
}

// Register binds a kiosk to a building and room, flipping it from
// setup mode to display mode.
func (h *KioskHandler) Register(c echo.Context) error {
	var req registerKioskReq
	if err := c.Bind(&req); err != nil || req.BuildingName == "" || req.RoomName == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "building and room required"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()
	id := c.Param("id")
	if _, err := h.Kiosks.Get(ctx, id); err == repository.ErrNotFound {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "kiosk not found"})
	}
	k, err := h.Kiosks.Register(ctx, id, req.BuildingID, req.BuildingName, req.RoomID, req.RoomName)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "register failed"})
	}
	claims, _ := middleware.ClaimsFrom(c)
	h.Audit.Event("kiosk_registered", audit.Merge(audit.RequestContext(c), audit.TokenActor(claims),
		map[string]any{"kiosk_id": k.ID, "building": req.BuildingName, "room": req.RoomName}))
	h.Hub.PublishKiosk(k.ID)
	return c.JSON(http.StatusOK, serializeKiosk(k))
}

// Delete removes a kiosk and wakes its stream so the device learns it
// is gone.
func (h *KioskHandler) Delete(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()
	id := c.Param("id")
	if err := h.Kiosks.Delete(ctx, id); err == repository.ErrNotFound {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "kiosk not found"})
	} else if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "delete failed"})
	}
	claims, _ := middleware.ClaimsFrom(c)
	h.Audit.Event("kiosk_deleted", audit.Merge(audit.RequestContext(c), audit.TokenActor(claims),
		map[string]any{"kiosk_id": id}))
	h.Hub.PublishKiosk(id)
	h.Hub.PublishStatus()
	return c.JSON(http.StatusOK, echo.Map{"status": "deleted"})
}

// Events is the kiosk device's SSE stream. While connected the kiosk
// counts as online; state events carry the same snapshot shape as the
// public current-session endpoint, re-sent only when it changes.
func (h *KioskHandler) Events(c echo.Context) error {
	id := c.Param("id")
	{
		ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
		_, err := h.Kiosks.Get(ctx, id)
		cancel()
		if err == repository.ErrNotFound {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "kiosk not found"})
		}
		if err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
		}
	}

	w := sseStart(c)
	sub := h.Hub.SubscribeKiosk(id)
	defer h.Hub.UnsubscribeKiosk(id, sub)
	h.Hub.SetOnline(id)
	defer h.Hub.SetOffline(id)

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	ctx := c.Request().Context()

	var last []byte
	send := func() error {
		payload, gone, err := h.kioskSnapshot(ctx, id)
		if err != nil {
			return nil // transient read failure, retry on next wake
		}
		if gone {
			sseEvent(w, "deleted", []byte(`{}`))
			return fmt.Errorf("kiosk removed")
		}
		if bytes.Equal(payload, last) {
			return nil
		}
		last = payload
		return sseEvent(w, "state", payload)
	}
	if err := send(); err != nil {
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sub:
			if err := send(); err != nil {
				return nil
			}
		case <-ticker.C:
			if err := sseHeartbeat(w); err != nil {
				return nil
			}
			// Heartbeats also re-poll so lazy session expiry reaches
			// the display without an explicit publish.
			if err := send(); err != nil {
				return nil
			}
		}
	}
}

// Statuses is the admin SSE stream of global kiosk online/offline
// state.
func (h *KioskHandler) Statuses(c echo.Context) error {
	w := sseStart(c)
	sub := h.Hub.SubscribeStatus()
	defer h.Hub.UnsubscribeStatus(sub)

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	ctx := c.Request().Context()

	var last []byte
	send := func() error {
		ids, err := h.Kiosks.ListIDs(ctx)
		if err != nil {
			return nil
		}
		online := h.Hub.OnlineKiosks()
		statuses := make(map[string]bool, len(ids))
		for _, id := range ids {
			_, ok := online[id]
			statuses[id] = ok
		}
		payload, err := json.Marshal(statuses)
		if err != nil {
			return err
		}
		if bytes.Equal(payload, last) {
			return nil
		}
		last = payload
		return sseEvent(w, "statuses", payload)
	}
	if err := send(); err != nil {
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sub:
			if err := send(); err != nil {
				return nil
			}
		case <-ticker.C:
			if err := sseHeartbeat(w); err != nil {
				return nil
			}
		}
	}
}

// kioskSnapshot builds the device-facing state payload: registration
// info plus the active session, without the QR secret.
func (h *KioskHandler) kioskSnapshot(ctx context.Context, id string) (payload []byte, gone bool, err error) {
	dbCtx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	k, err := h.Kiosks.Get(dbCtx, id)
	if err == repository.ErrNotFound {
		return nil, true, nil
	}
	if err != nil {
		return nil, false, err
	}
	state := echo.Map{"kiosk": serializeKiosk(k), "session": echo.Map{"active": false}}
	maxAge := time.Duration(h.Cfg.SessionMaxMinutes) * time.Minute
	s, err := h.Attend.ActiveByKiosk(dbCtx, id, maxAge)
	if err == nil {
		state["session"] = publicSessionPart(s)
	} else if err != repository.ErrNotFound {
		return nil, false, err
	}
	data, err := json.Marshal(state)
	return data, false, err
}

// ----- SSE plumbing -----

func sseStart(c echo.Context) *echo.Response {
	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	w.Flush()
	return w
}

func sseEvent(w *echo.Response, event string, data []byte) error {
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	w.Flush()
	return nil
}

func sseHeartbeat(w *echo.Response) error {
	if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
		return err
	}
	w.Flush()
	return nil
}
