// Package realtime fans kiosk liveness and session-change signals out
// to SSE consumers. It is a liveness indicator only and sits outside
// the trust boundary: nothing here authorizes anything.
package realtime

import (
	"sync"
	"time"
)

// Hub tracks which kiosks hold live event streams and wakes
// subscribers when a kiosk's state changes. A kiosk is declared
// offline only after a grace period with no connections, so reconnect
// flaps do not spam status consumers.
type Hub struct {
	mu            sync.Mutex
	grace         time.Duration
	online        map[string]struct{}
	connections   map[string]int
	offlineTimers map[string]*time.Timer
	statusSubs    map[chan struct{}]struct{}
	kioskSubs     map[string]map[chan struct{}]struct{}
}

// NewHub builds a hub with the given offline grace period.
func NewHub(grace time.Duration) *Hub {
	return &Hub{
		grace:         grace,
		online:        make(map[string]struct{}),
		connections:   make(map[string]int),
		offlineTimers: make(map[string]*time.Timer),
		statusSubs:    make(map[chan struct{}]struct{}),
		kioskSubs:     make(map[string]map[chan struct{}]struct{}),
	}
}

// SetOnline registers one live connection for a kiosk. The first
// connection flips the kiosk online and notifies status subscribers.
func (h *Hub) SetOnline(kioskID string) {
	h.mu.Lock()
	if t, ok := h.offlineTimers[kioskID]; ok {
		t.Stop()
		delete(h.offlineTimers, kioskID)
	}
	h.connections[kioskID]++
	transition := h.connections[kioskID] == 1
	if transition {
		h.online[kioskID] = struct{}{}
	}
	h.mu.Unlock()
	if transition {
		h.PublishStatus()
	}
}

// SetOffline drops one connection. When the last connection goes, the
// offline transition is deferred by the grace period and cancelled if
// the kiosk reconnects in time.
func (h *Hub) SetOffline(kioskID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	current := h.connections[kioskID]
	if current > 1 {
		h.connections[kioskID] = current - 1
		return
	}
	delete(h.connections, kioskID)
	if _, isOnline := h.online[kioskID]; !isOnline {
		return
	}
	if _, pending := h.offlineTimers[kioskID]; pending {
		return
	}
	h.offlineTimers[kioskID] = time.AfterFunc(h.grace, func() {
		h.mu.Lock()
		delete(h.offlineTimers, kioskID)
		_, stillOnline := h.online[kioskID]
		lapsed := h.connections[kioskID] == 0 && stillOnline
		if lapsed {
			delete(h.online, kioskID)
		}
		h.mu.Unlock()
		if lapsed {
			h.PublishStatus()
		}
	})
}

// SubscribeStatus returns a signal channel woken on any online/offline
// transition.
func (h *Hub) SubscribeStatus() chan struct{} {
	ch := make(chan struct{}, 1)
	h.mu.Lock()
	h.statusSubs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

// UnsubscribeStatus removes a status subscriber.
func (h *Hub) UnsubscribeStatus(ch chan struct{}) {
	h.mu.Lock()
	delete(h.statusSubs, ch)
	h.mu.Unlock()
}

// SubscribeKiosk returns a signal channel woken when the kiosk's
// session state changes.
func (h *Hub) SubscribeKiosk(kioskID string) chan struct{} {
	ch := make(chan struct{}, 1)
	h.mu.Lock()
	subs, ok := h.kioskSubs[kioskID]
	if !ok {
		subs = make(map[chan struct{}]struct{})
		h.kioskSubs[kioskID] = subs
	}
	subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

// UnsubscribeKiosk removes a kiosk subscriber.
func (h *Hub) UnsubscribeKiosk(kioskID string, ch chan struct{}) {
	h.mu.Lock()
	if subs, ok := h.kioskSubs[kioskID]; ok {
		delete(subs, ch)
		if len(subs) == 0 {
			delete(h.kioskSubs, kioskID)
		}
	}
	h.mu.Unlock()
}

// PublishKiosk wakes the kiosk's subscribers.
func (h *Hub) PublishKiosk(kioskID string) {
	h.mu.Lock()
	subs := make([]chan struct{}, 0, len(h.kioskSubs[kioskID]))
	for ch := range h.kioskSubs[kioskID] {
		subs = append(subs, ch)
	}
	h.mu.Unlock()
	for _, ch := range subs {
		signal(ch)
	}
}

// PublishStatus wakes every status subscriber.
func (h *Hub) PublishStatus() {
	h.mu.Lock()
	subs := make([]chan struct{}, 0, len(h.statusSubs))
	for ch := range h.statusSubs {
		subs = append(subs, ch)
	}
	h.mu.Unlock()
	for _, ch := range subs {
		signal(ch)
	}
}

// OnlineKiosks snapshots the currently-online kiosk ids.
func (h *Hub) OnlineKiosks() map[string]struct{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string]struct{}, len(h.online))
	for id := range h.online {
		out[id] = struct{}{}
	}
	return out
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
