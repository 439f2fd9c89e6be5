package server

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/isoviz/isoviz/internal/playback"
	"github.com/isoviz/isoviz/internal/scenario/catalog"
)

func newTestSession(t *testing.T) *session {
	t.Helper()
	s, err := newSession(catalog.LostUpdate(), "en-US")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	return s
}

func TestNewSessionAssignsID(t *testing.T) {
	s := newTestSession(t)
	if len(s.id) != 26 {
		t.Fatalf("session id = %q, want 26 characters", s.id)
	}
	if s.ctrl == nil {
		t.Fatal("session has no controller")
	}

	other := newTestSession(t)
	if other.id == s.id {
		t.Fatalf("duplicate session id %q", s.id)
	}
}

func TestSessionTickerAdvancesAndStopsAtAutoPause(t *testing.T) {
	s := newTestSession(t)
	if _, err := s.ctrl.SetSpeed(playback.MaxSpeed); err != nil {
		t.Fatalf("set speed: %v", err)
	}

	var ticks atomic.Int64
	s.ctrl.Start()
	s.startTicker(func() { ticks.Add(1) })

	// The first auto-pause moment is step 4; at max speed the ticker needs
	// three ticks to reach it and then exits on its own.
	deadline := time.After(5 * time.Second)
	for s.ctrl.Info().Status != playback.StatusPaused {
		select {
		case <-deadline:
			t.Fatalf("controller never paused: %+v", s.ctrl.Info())
		case <-time.After(10 * time.Millisecond):
		}
	}
	if info := s.ctrl.Info(); info.Step != 4 {
		t.Fatalf("paused at step %d", info.Step)
	}
	if ticks.Load() < 3 {
		t.Fatalf("ticks = %d", ticks.Load())
	}
}

func TestSessionStopTickerIsIdempotent(t *testing.T) {
	s := newTestSession(t)
	s.ctrl.Start()
	s.startTicker(func() {})

	s.stopTicker()
	s.stopTicker()
}

func TestSessionLeaveReportsEmpty(t *testing.T) {
	s := newTestSession(t)
	first := newWSPeer(nil)
	second := newWSPeer(nil)
	s.join(first)
	s.join(second)

	if s.leave(first) {
		t.Fatal("session reported empty with a subscriber left")
	}
	if !s.leave(second) {
		t.Fatal("session did not report empty")
	}
}

func TestHubDropStopsTicker(t *testing.T) {
	hub := newSessionHub()
	s := newTestSession(t)
	hub.add(s)

	s.ctrl.Start()
	s.startTicker(func() {})
	hub.drop(s.id)

	if _, ok := hub.get(s.id); ok {
		t.Fatal("session still registered after drop")
	}
}
