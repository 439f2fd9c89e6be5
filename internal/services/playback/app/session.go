package server

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/isoviz/isoviz/internal/platform/id"
	"github.com/isoviz/isoviz/internal/playback"
	"github.com/isoviz/isoviz/internal/replay"
	"github.com/isoviz/isoviz/internal/scenario"
)

// wsPeer serializes frame writes to one websocket connection.
type wsPeer struct {
	mu      sync.Mutex
	encoder *json.Encoder
}

func newWSPeer(encoder *json.Encoder) *wsPeer {
	return &wsPeer{encoder: encoder}
}

func (p *wsPeer) writeFrame(frame wsFrame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.encoder.Encode(frame)
}

// session pairs one playback controller with the peers watching it. A ticker
// goroutine drives the controller while it runs; the ticker is cancelled on
// pause, reset, and teardown, and exits on its own when playback stops.
type session struct {
	id     string
	locale string
	ctrl   *playback.Controller

	mu          sync.Mutex
	subscribers map[*wsPeer]struct{}
	tickerStop  chan struct{}
}

func newSession(scn *scenario.Scenario, locale string) (*session, error) {
	sessionID, err := id.New()
	if err != nil {
		return nil, fmt.Errorf("new session id: %w", err)
	}
	return &session{
		id:          sessionID,
		locale:      locale,
		ctrl:        playback.New(scn),
		subscribers: map[*wsPeer]struct{}{},
	}, nil
}

func (s *session) join(peer *wsPeer) {
	s.mu.Lock()
	s.subscribers[peer] = struct{}{}
	s.mu.Unlock()
}

// leave removes the peer and reports whether the session is now empty.
func (s *session) leave(peer *wsPeer) bool {
	s.mu.Lock()
	delete(s.subscribers, peer)
	empty := len(s.subscribers) == 0
	s.mu.Unlock()
	return empty
}

func (s *session) peers() []*wsPeer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*wsPeer, 0, len(s.subscribers))
	for peer := range s.subscribers {
		out = append(out, peer)
	}
	return out
}

// state recomputes the derived snapshot for the controller's current step.
func (s *session) state() (playback.Info, *replay.State, error) {
	info := s.ctrl.Info()
	derived, err := replay.Reduce(s.ctrl.Scenario(), info.Step)
	return info, derived, err
}

// startTicker launches the tick loop unless one is already running.
func (s *session) startTicker(onTick func()) {
	s.mu.Lock()
	if s.tickerStop != nil {
		s.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	s.tickerStop = stop
	s.mu.Unlock()

	go s.runTicker(stop, onTick)
}

// stopTicker cancels the pending tick loop, if any.
func (s *session) stopTicker() {
	s.mu.Lock()
	if s.tickerStop != nil {
		close(s.tickerStop)
		s.tickerStop = nil
	}
	s.mu.Unlock()
}

func (s *session) runTicker(stop chan struct{}, onTick func()) {
	for {
		select {
		case <-stop:
			return
		case <-time.After(s.ctrl.Interval()):
			info := s.ctrl.Tick()
			onTick()
			if info.Status != playback.StatusRunning {
				s.clearTicker(stop)
				return
			}
		}
	}
}

// clearTicker releases the stop channel if it is still the active one, so a
// later start can spawn a fresh loop.
func (s *session) clearTicker(stop chan struct{}) {
	s.mu.Lock()
	if s.tickerStop == stop {
		s.tickerStop = nil
	}
	s.mu.Unlock()
}

// sessionHub tracks live playback sessions by id.
type sessionHub struct {
	mu       sync.Mutex
	sessions map[string]*session
}

func newSessionHub() *sessionHub {
	return &sessionHub{sessions: map[string]*session{}}
}

func (h *sessionHub) add(s *session) {
	h.mu.Lock()
	h.sessions[s.id] = s
	h.mu.Unlock()
}

func (h *sessionHub) get(id string) (*session, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sessions[id]
	return s, ok
}

// drop removes an abandoned session and cancels its ticker.
func (h *sessionHub) drop(id string) {
	h.mu.Lock()
	s, ok := h.sessions[id]
	if ok {
		delete(h.sessions, id)
	}
	h.mu.Unlock()
	if ok {
		s.stopTicker()
	}
}
