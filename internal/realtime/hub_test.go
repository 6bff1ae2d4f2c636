package realtime

import (
	"testing"
	"time"
)

func waitSignal(t *testing.T, ch chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatalf("expected a signal")
	}
}

func expectQuiet(t *testing.T, ch chan struct{}) {
	t.Helper()
	select {
	case <-ch:
		t.Fatalf("unexpected signal")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubOnlineTransitionNotifies(t *testing.T) {
	h := NewHub(10 * time.Millisecond)
	sub := h.SubscribeStatus()
	defer h.UnsubscribeStatus(sub)

	h.SetOnline("k1")
	waitSignal(t, sub)

	if _, ok := h.OnlineKiosks()["k1"]; !ok {
		t.Fatalf("k1 must be online")
	}

	// A second connection is not a transition.
	h.SetOnline("k1")
	expectQuiet(t, sub)
}

func TestHubOfflineAfterGrace(t *testing.T) {
	h := NewHub(20 * time.Millisecond)
	sub := h.SubscribeStatus()
	defer h.UnsubscribeStatus(sub)

	h.SetOnline("k1")
	waitSignal(t, sub)

	h.SetOffline("k1")
	// Still online during the grace window.
	if _, ok := h.OnlineKiosks()["k1"]; !ok {
		t.Fatalf("k1 must stay online during the grace period")
	}

	waitSignal(t, sub)
	if _, ok := h.OnlineKiosks()["k1"]; ok {
		t.Fatalf("k1 must be offline after the grace period")
	}
}

// A reconnect inside the grace window cancels the pending offline
// transition, so flapping connections stay silent.
func TestHubReconnectWithinGrace(t *testing.T) {
	h := NewHub(50 * time.Millisecond)
	sub := h.SubscribeStatus()
	defer h.UnsubscribeStatus(sub)

	h.SetOnline("k1")
	waitSignal(t, sub)

	h.SetOffline("k1")
	h.SetOnline("k1")

	time.Sleep(100 * time.Millisecond)
	if _, ok := h.OnlineKiosks()["k1"]; !ok {
		t.Fatalf("k1 must remain online after reconnecting within grace")
	}
}

func TestHubKioskSubscription(t *testing.T) {
	h := NewHub(time.Millisecond)
	sub := h.SubscribeKiosk("k1")
	defer h.UnsubscribeKiosk("k1", sub)

	h.PublishKiosk("k1")
	waitSignal(t, sub)

	h.PublishKiosk("k2")
	expectQuiet(t, sub)
}

func TestHubLastConnectionCounts(t *testing.T) {
	h := NewHub(10 * time.Millisecond)
	sub := h.SubscribeStatus()
	defer h.UnsubscribeStatus(sub)

	h.SetOnline("k1")
	waitSignal(t, sub)
	h.SetOnline("k1")

	// Dropping one of two connections must not start the offline timer.
	h.SetOffline("k1")
	time.Sleep(30 * time.Millisecond)
	if _, ok := h.OnlineKiosks()["k1"]; !ok {
		t.Fatalf("k1 must stay online while a connection remains")
	}

	h.SetOffline("k1")
	waitSignal(t, sub)
	if _, ok := h.OnlineKiosks()["k1"]; ok {
		t.Fatalf("k1 must go offline once the last connection drops")
	}
}
