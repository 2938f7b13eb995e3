package dashboard_test

import (
	"errors"
	"testing"
	"time"

	"github.com/p-n-ai/pai-dashboard/internal/dashboard"
	"github.com/p-n-ai/pai-dashboard/internal/notify"
)

func newTestManager(src *fakeSource, idleTTL time.Duration) *dashboard.Manager {
	return dashboard.NewManager(dashboard.Deps{Source: src, Loader: testLoader}, idleTTL)
}

func TestManager_CreateGetDelete(t *testing.T) {
	m := newTestManager(newFakeSource(map[string]int{"math": 3}), 0)
	t.Cleanup(m.CloseAll)

	s, err := m.Create(t.Context(), "math")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if s.ID() == "" {
		t.Fatal("Create() returned empty session id")
	}

	got, err := m.Get(s.ID())
	if err != nil || got != s {
		t.Fatalf("Get() = %v, %v", got, err)
	}
	if m.Len() != 1 {
		t.Errorf("Len() = %d, want 1", m.Len())
	}

	if err := m.Delete(s.ID()); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := m.Get(s.ID()); !errors.Is(err, dashboard.ErrSessionNotFound) {
		t.Errorf("Get() after delete error = %v", err)
	}
	if err := m.Delete(s.ID()); !errors.Is(err, dashboard.ErrSessionNotFound) {
		t.Errorf("second Delete() error = %v", err)
	}
}

func TestManager_CreateFailureIsNotRegistered(t *testing.T) {
	m := newTestManager(newFakeSource(nil), 0)
	if _, err := m.Create(t.Context(), "missing"); err == nil {
		t.Fatal("expected error")
	}
	if m.Len() != 0 {
		t.Errorf("Len() = %d, want 0", m.Len())
	}
}

func TestManager_SweepClosesIdleSessions(t *testing.T) {
	m := newTestManager(newFakeSource(map[string]int{"math": 1}), 10*time.Millisecond)
	t.Cleanup(m.CloseAll)

	idle, err := m.Create(t.Context(), "math")
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)
	active, err := m.Create(t.Context(), "math")
	if err != nil {
		t.Fatal(err)
	}

	if n := m.Sweep(); n != 1 {
		t.Fatalf("Sweep() = %d, want 1", n)
	}
	if _, err := m.Get(idle.ID()); !errors.Is(err, dashboard.ErrSessionNotFound) {
		t.Error("idle session survived sweep")
	}
	if _, err := m.Get(active.ID()); err != nil {
		t.Errorf("active session swept: %v", err)
	}
	if _, err := idle.LoadMore(); !errors.Is(err, dashboard.ErrSessionClosed) {
		t.Errorf("swept session still usable: %v", err)
	}
}

func TestManager_NotifyRoutesToSession(t *testing.T) {
	m := newTestManager(newFakeSource(map[string]int{"math": 1}), 0)
	t.Cleanup(m.CloseAll)

	s, err := m.Create(t.Context(), "math")
	if err != nil {
		t.Fatal(err)
	}
	events, unsubscribe := s.Subscribe()
	defer unsubscribe()

	gw := notify.NewGateway()
	gw.Register("websocket", m)
	if err := gw.Broadcast(t.Context(), notify.Notification{SessionID: s.ID(), Message: "hello"}); err != nil {
		t.Fatal(err)
	}
	if err := gw.Broadcast(t.Context(), notify.Notification{SessionID: "unknown", Message: "dropped"}); err != nil {
		t.Errorf("unknown session error = %v", err)
	}

	ev := <-events
	if ev.Type != "notification" || ev.Notification == nil || ev.Notification.Message != "hello" {
		t.Errorf("event = %+v", ev)
	}
}
