// Package server hosts the playback HTTP/WebSocket process: a JSON API over
// the scenario catalog and derived state, server-rendered timeline pages, and
// a websocket surface for shared interactive playback sessions.
package server

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/a-h/templ"
	"golang.org/x/net/websocket"

	"github.com/isoviz/isoviz/internal/platform/errors"
	i18n "github.com/isoviz/isoviz/internal/platform/i18n/catalog"
	"github.com/isoviz/isoviz/internal/playback"
	"github.com/isoviz/isoviz/internal/replay"
	"github.com/isoviz/isoviz/internal/scenario"
	"github.com/isoviz/isoviz/internal/services/playback/web"
)

const (
	maxFramePayloadBytes   = 16 * 1024
	maxFramesPerSecond     = 40
	maxDecodeErrorsPerConn = 3

	defaultReadHeaderTimeout = 5 * time.Second
	defaultShutdownTimeout   = 10 * time.Second
)

// Config defines the inputs for the playback transport boundary.
type Config struct {
	HTTPAddr          string
	ScenarioDir       string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

// Server hosts the playback HTTP process.
type Server struct {
	httpAddr        string
	shutdownTimeout time.Duration
	httpServer      *http.Server
}

type wsFrame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type wsErrorEnvelope struct {
	Error wsError `json:"error"`
}

type wsError struct {
	Code    string `json:"code"`
	Domain  string `json:"domain,omitempty"`
	Message string `json:"message"`
}

type joinPayload struct {
	SessionID  string `json:"session_id,omitempty"`
	ScenarioID string `json:"scenario_id,omitempty"`
	Locale     string `json:"locale,omitempty"`
}

type stepPayload struct {
	Direction string `json:"direction"`
}

type seekPayload struct {
	Step int `json:"step"`
}

type speedPayload struct {
	Speed float64 `json:"speed"`
}

type joinedPayload struct {
	SessionID string       `json:"session_id"`
	Scenario  scenarioView `json:"scenario"`
	Info      playback.Info `json:"info"`
	State     *replay.State `json:"state"`
	Moment    *momentView   `json:"moment,omitempty"`
}

type statePayload struct {
	SessionID string        `json:"session_id"`
	Info      playback.Info `json:"info"`
	State     *replay.State `json:"state"`
	Moment    *momentView   `json:"moment,omitempty"`
}

type actorView struct {
	ID         string               `json:"id"`
	Color      string               `json:"color,omitempty"`
	Operations []scenario.Operation `json:"operations"`
}

type momentView struct {
	Step       int      `json:"step"`
	Title      string   `json:"title"`
	Body       string   `json:"body"`
	Highlights []string `json:"highlights,omitempty"`
	AutoPause  bool     `json:"auto_pause"`
}

type scenarioView struct {
	ID           string             `json:"id"`
	Name         string             `json:"name"`
	Summary      string             `json:"summary,omitempty"`
	Isolation    scenario.Isolation `json:"isolation"`
	Steps        int                `json:"steps"`
	InitialItems map[string]int64   `json:"initial_items,omitempty"`
	InitialRows  []scenario.Row     `json:"initial_rows,omitempty"`
	Actors       []actorView        `json:"actors"`
	Moments      []momentView       `json:"moments,omitempty"`
}

// app bundles the shared state behind the HTTP handlers.
type app struct {
	store  *scenarioStore
	hub    *sessionHub
	bundle *i18n.Bundle
}

func (a *app) locale(requested string) string {
	if a.bundle.HasLocale(strings.TrimSpace(requested)) {
		return strings.TrimSpace(requested)
	}
	return i18n.BaseLocale
}

func (a *app) message(locale, key string) string {
	if value, ok := a.bundle.Message(locale, key); ok {
		return value
	}
	return key
}

func (a *app) scenarioView(scn *scenario.Scenario, locale string) scenarioView {
	view := scenarioView{
		ID:           scn.ID,
		Name:         a.message(locale, scn.NameKey),
		Summary:      a.message(locale, scn.SummaryKey),
		Isolation:    scn.Isolation,
		Steps:        scn.StepCount(),
		InitialItems: scn.InitialItems,
		InitialRows:  scn.InitialRows,
	}
	if scn.SummaryKey == "" {
		view.Summary = ""
	}
	for _, actor := range scn.Actors {
		view.Actors = append(view.Actors, actorView{
			ID:         actor.ID,
			Color:      actor.Color,
			Operations: actor.Operations,
		})
	}
	for _, moment := range scn.Moments {
		view.Moments = append(view.Moments, a.momentView(moment, locale))
	}
	return view
}

func (a *app) momentView(moment scenario.KeyMoment, locale string) momentView {
	return momentView{
		Step:       moment.Step,
		Title:      a.message(locale, moment.TitleKey),
		Body:       a.message(locale, moment.BodyKey),
		Highlights: moment.Highlights,
		AutoPause:  moment.AutoPause,
	}
}

// NewHandler builds the playback routes over the built-in scenarios only.
func NewHandler() http.Handler {
	return newHandler(newScenarioStore())
}

func newHandler(store *scenarioStore) http.Handler {
	a := &app{store: store, hub: newSessionHub(), bundle: i18n.Default()}

	mux := http.NewServeMux()
	mux.HandleFunc("/up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	mux.HandleFunc("GET /api/scenarios", a.handleListScenarios)
	mux.HandleFunc("GET /api/scenarios/{id}", a.handleGetScenario)
	mux.HandleFunc("GET /api/scenarios/{id}/state", a.handleGetState)
	mux.HandleFunc("GET /{$}", a.handleIndexPage)
	mux.HandleFunc("GET /scenarios/{id}", a.handleScenarioPage)

	wsHandler := websocket.Handler(func(conn *websocket.Conn) {
		a.handleWSConn(conn)
	})
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		wsHandler.ServeHTTP(w, r)
	})

	return mux
}

func (a *app) handleListScenarios(w http.ResponseWriter, r *http.Request) {
	locale := a.locale(r.URL.Query().Get("locale"))
	views := []scenarioView{}
	for _, scn := range a.store.All() {
		views = append(views, a.scenarioView(scn, locale))
	}
	writeJSON(w, http.StatusOK, views)
}

func (a *app) handleGetScenario(w http.ResponseWriter, r *http.Request) {
	scn, err := a.store.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	locale := a.locale(r.URL.Query().Get("locale"))
	writeJSON(w, http.StatusOK, a.scenarioView(scn, locale))
}

func (a *app) handleGetState(w http.ResponseWriter, r *http.Request) {
	scn, err := a.store.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	locale := a.locale(r.URL.Query().Get("locale"))

	step := scn.StepCount()
	if raw := r.URL.Query().Get("step"); raw != "" {
		step, err = strconv.Atoi(raw)
		if err != nil {
			writeError(w, errors.New(errors.CodeReplayStepOutOfRange, "step must be an integer"))
			return
		}
	}

	state, err := replay.Reduce(scn, step)
	if err != nil {
		writeError(w, err)
		return
	}

	payload := statePayload{Info: playback.Info{Step: step, Total: scn.StepCount()}, State: state}
	if state.Moment != nil {
		view := a.momentView(*state.Moment, locale)
		payload.Moment = &view
	}
	writeJSON(w, http.StatusOK, payload)
}

func (a *app) webStrings(locale string) web.Strings {
	return web.Strings{
		Title:       a.message(locale, "web.title"),
		Scenarios:   a.message(locale, "web.scenarios.heading"),
		Actors:      a.message(locale, "web.scenario.actors"),
		Operations:  a.message(locale, "web.scenario.operations"),
		Timeline:    a.message(locale, "web.timeline.heading"),
		Committed:   a.message(locale, "web.state.committed"),
		Staged:      a.message(locale, "web.state.staged"),
		Versions:    a.message(locale, "web.state.versions"),
		Rows:        a.message(locale, "web.state.rows"),
		ActorState:  a.message(locale, "web.state.actors"),
		Explanation: a.message(locale, "web.explanation.heading"),
	}
}

func (a *app) scenarioCard(scn *scenario.Scenario, locale string) web.ScenarioCard {
	card := web.ScenarioCard{
		ID:      scn.ID,
		Name:    a.message(locale, scn.NameKey),
		Summary: a.message(locale, scn.SummaryKey),
		Steps:   scn.StepCount(),
	}
	if scn.SummaryKey == "" {
		card.Summary = ""
	}
	for _, actor := range scn.Actors {
		card.Actors = append(card.Actors, web.ActorCard{
			ID:         actor.ID,
			Color:      actor.Color,
			Operations: len(actor.Operations),
		})
	}
	return card
}

func (a *app) handleIndexPage(w http.ResponseWriter, r *http.Request) {
	locale := a.locale(r.URL.Query().Get("locale"))
	data := web.IndexData{Lang: locale, Strings: a.webStrings(locale)}
	for _, scn := range a.store.All() {
		data.Cards = append(data.Cards, a.scenarioCard(scn, locale))
	}
	renderPage(w, r, web.Index(data))
}

func (a *app) handleScenarioPage(w http.ResponseWriter, r *http.Request) {
	scn, err := a.store.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	locale := a.locale(r.URL.Query().Get("locale"))

	// The page clamps out-of-range steps instead of erroring; the timeline
	// markers always land on a renderable page.
	total := scn.StepCount()
	step := total
	if raw := r.URL.Query().Get("step"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			step = parsed
		}
	}
	if step < 0 {
		step = 0
	}
	if step > total {
		step = total
	}

	state, err := replay.Reduce(scn, step)
	if err != nil {
		writeError(w, err)
		return
	}

	data := web.StateData{
		Lang:     locale,
		Strings:  a.webStrings(locale),
		Scenario: a.scenarioCard(scn, locale),
		Info:     playback.Info{Step: step, Total: total},
		State:    state,
	}
	if state.Moment != nil {
		view := a.momentView(*state.Moment, locale)
		data.Moment = &web.MomentView{
			Step:       view.Step,
			Title:      view.Title,
			Body:       view.Body,
			Highlights: view.Highlights,
			AutoPause:  view.AutoPause,
		}
	}
	renderPage(w, r, web.StatePage(data))
}

// wsConnState tracks the session one websocket connection is attached to.
type wsConnState struct {
	mu      sync.Mutex
	peer    *wsPeer
	session *session
}

func (c *wsConnState) setSession(next *session) *session {
	c.mu.Lock()
	previous := c.session
	c.session = next
	c.mu.Unlock()
	return previous
}

func (c *wsConnState) currentSession() *session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

func (a *app) handleWSConn(conn *websocket.Conn) {
	defer func() {
		_ = conn.Close()
	}()

	decoder := json.NewDecoder(conn)
	state := &wsConnState{peer: newWSPeer(json.NewEncoder(conn))}
	defer func() {
		if s := state.currentSession(); s != nil {
			a.leaveSession(s, state.peer)
		}
	}()

	windowStart := time.Now()
	framesInWindow := 0
	decodeErrors := 0

	for {
		var frame wsFrame
		if err := decoder.Decode(&frame); err != nil {
			if stderrors.Is(err, io.EOF) {
				return
			}
			decodeErrors++
			_ = writeWSError(state.peer, "", string(errors.CodeUnknown), "invalid frame payload")
			if decodeErrors >= maxDecodeErrorsPerConn {
				return
			}
			continue
		}
		decodeErrors = 0

		if len(frame.Payload) > maxFramePayloadBytes {
			_ = writeWSError(state.peer, frame.RequestID, string(errors.CodeUnknown), "payload too large")
			continue
		}

		now := time.Now()
		if now.Sub(windowStart) >= time.Second {
			windowStart = now
			framesInWindow = 0
		}
		framesInWindow++
		if framesInWindow > maxFramesPerSecond {
			_ = writeWSError(state.peer, frame.RequestID, string(errors.CodeUnknown), "rate limit exceeded")
			return
		}

		switch frame.Type {
		case "playback.join":
			a.handleJoinFrame(state, frame)
		case "playback.start", "playback.pause", "playback.resume", "playback.reset",
			"playback.step", "playback.seek", "playback.speed":
			a.handleControlFrame(state, frame)
		default:
			_ = writeWSError(state.peer, frame.RequestID, string(errors.CodeUnknown), "unsupported frame type")
		}
	}
}

func (a *app) handleJoinFrame(state *wsConnState, frame wsFrame) {
	var payload joinPayload
	if len(frame.Payload) > 0 {
		if err := json.Unmarshal(frame.Payload, &payload); err != nil {
			_ = writeWSError(state.peer, frame.RequestID, string(errors.CodeUnknown), "invalid join payload")
			return
		}
	}

	var s *session
	switch {
	case payload.SessionID != "":
		existing, ok := a.hub.get(payload.SessionID)
		if !ok {
			_ = writeWSError(state.peer, frame.RequestID, string(errors.CodeSessionNotFound), "unknown session")
			return
		}
		s = existing
	case payload.ScenarioID != "":
		scn, err := a.store.Get(payload.ScenarioID)
		if err != nil {
			writeDomainWSError(state.peer, frame.RequestID, err)
			return
		}
		created, err := newSession(scn, a.locale(payload.Locale))
		if err != nil {
			writeDomainWSError(state.peer, frame.RequestID, err)
			return
		}
		s = created
		a.hub.add(s)
	default:
		_ = writeWSError(state.peer, frame.RequestID, string(errors.CodeScenarioNotFound), "session_id or scenario_id is required")
		return
	}

	if previous := state.setSession(s); previous != nil && previous != s {
		a.leaveSession(previous, state.peer)
	}
	s.join(state.peer)

	info, derived, err := s.state()
	if err != nil {
		writeDomainWSError(state.peer, frame.RequestID, err)
		return
	}
	joined := joinedPayload{
		SessionID: s.id,
		Scenario:  a.scenarioView(s.ctrl.Scenario(), s.locale),
		Info:      info,
		State:     derived,
	}
	if derived.Moment != nil {
		view := a.momentView(*derived.Moment, s.locale)
		joined.Moment = &view
	}
	_ = state.peer.writeFrame(wsFrame{
		Type:      "playback.joined",
		RequestID: frame.RequestID,
		Payload:   mustJSON(joined),
	})
}

func (a *app) handleControlFrame(state *wsConnState, frame wsFrame) {
	s := state.currentSession()
	if s == nil {
		_ = writeWSError(state.peer, frame.RequestID, string(errors.CodeSessionNotFound), "join a session first")
		return
	}

	var err error
	switch frame.Type {
	case "playback.start":
		s.ctrl.Start()
		s.startTicker(func() { a.broadcastState(s) })
	case "playback.pause":
		s.ctrl.Pause()
		s.stopTicker()
	case "playback.resume":
		info := s.ctrl.Resume()
		if info.Status == playback.StatusRunning {
			s.startTicker(func() { a.broadcastState(s) })
		}
	case "playback.reset":
		s.ctrl.Reset()
		s.stopTicker()
	case "playback.step":
		var payload stepPayload
		if jsonErr := json.Unmarshal(frame.Payload, &payload); jsonErr != nil {
			_ = writeWSError(state.peer, frame.RequestID, string(errors.CodeUnknown), "invalid step payload")
			return
		}
		if payload.Direction == "backward" {
			_, err = s.ctrl.StepBackward()
		} else {
			_, err = s.ctrl.StepForward()
		}
	case "playback.seek":
		var payload seekPayload
		if jsonErr := json.Unmarshal(frame.Payload, &payload); jsonErr != nil {
			_ = writeWSError(state.peer, frame.RequestID, string(errors.CodeUnknown), "invalid seek payload")
			return
		}
		_, err = s.ctrl.Seek(payload.Step)
	case "playback.speed":
		var payload speedPayload
		if jsonErr := json.Unmarshal(frame.Payload, &payload); jsonErr != nil {
			_ = writeWSError(state.peer, frame.RequestID, string(errors.CodeUnknown), "invalid speed payload")
			return
		}
		_, err = s.ctrl.SetSpeed(payload.Speed)
	}
	if err != nil {
		writeDomainWSError(state.peer, frame.RequestID, err)
		return
	}

	a.broadcastState(s)
}

// broadcastState recomputes the session's derived state and fans a
// playback.state frame out to every subscribed peer.
func (a *app) broadcastState(s *session) {
	info, derived, err := s.state()
	if err != nil {
		log.Printf("[PLAYBACK] session %s: reduce step %d: %v", s.id, info.Step, err)
		return
	}
	payload := statePayload{SessionID: s.id, Info: info, State: derived}
	if derived.Moment != nil {
		view := a.momentView(*derived.Moment, s.locale)
		payload.Moment = &view
	}
	frame := wsFrame{Type: "playback.state", Payload: mustJSON(payload)}
	for _, peer := range s.peers() {
		_ = peer.writeFrame(frame)
	}
}

func (a *app) leaveSession(s *session, peer *wsPeer) {
	if s.leave(peer) {
		a.hub.drop(s.id)
	}
}

func writeWSError(peer *wsPeer, requestID, code, message string) error {
	return peer.writeFrame(wsFrame{
		Type:      "playback.error",
		RequestID: requestID,
		Payload:   mustJSON(wsErrorEnvelope{Error: wsError{Code: code, Message: message}}),
	})
}

func writeDomainWSError(peer *wsPeer, requestID string, err error) {
	var domainErr *errors.Error
	if stderrors.As(err, &domainErr) {
		_ = peer.writeFrame(wsFrame{
			Type:      "playback.error",
			RequestID: requestID,
			Payload: mustJSON(wsErrorEnvelope{Error: wsError{
				Code:    string(domainErr.Code),
				Domain:  errors.Domain,
				Message: domainErr.Message,
			}}),
		})
		return
	}
	_ = writeWSError(peer, requestID, string(errors.CodeUnknown), err.Error())
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		log.Printf("[PLAYBACK] marshal websocket payload: %v", err)
		return nil
	}
	return b
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[PLAYBACK] encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	var domainErr *errors.Error
	if stderrors.As(err, &domainErr) {
		writeJSON(w, domainErr.Code.HTTPStatus(), wsErrorEnvelope{
			Error: wsError{
				Code:    string(domainErr.Code),
				Domain:  errors.Domain,
				Message: domainErr.Message,
			},
		})
		return
	}
	writeJSON(w, http.StatusInternalServerError, wsErrorEnvelope{
		Error: wsError{Code: string(errors.CodeUnknown), Message: err.Error()},
	})
}

func renderPage(w http.ResponseWriter, r *http.Request, component templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := component.Render(r.Context(), w); err != nil {
		log.Printf("[PLAYBACK] render page: %v", err)
	}
}

// NewServer builds a configured playback server.
func NewServer(config Config) (*Server, error) {
	httpAddr := strings.TrimSpace(config.HTTPAddr)
	if httpAddr == "" {
		return nil, stderrors.New("http address is required")
	}
	if config.ReadHeaderTimeout <= 0 {
		config.ReadHeaderTimeout = defaultReadHeaderTimeout
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = defaultShutdownTimeout
	}

	store := newScenarioStore()
	if config.ScenarioDir != "" {
		if err := store.LoadDir(config.ScenarioDir); err != nil {
			return nil, err
		}
	}

	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           newHandler(store),
		ReadHeaderTimeout: config.ReadHeaderTimeout,
	}
	return &Server{
		httpAddr:        httpAddr,
		shutdownTimeout: config.ShutdownTimeout,
		httpServer:      httpServer,
	}, nil
}

// Run creates and serves a playback server until the context ends.
func Run(ctx context.Context, config Config) error {
	server, err := NewServer(config)
	if err != nil {
		return fmt.Errorf("init playback server: %w", err)
	}
	if err := server.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("serve playback: %w", err)
	}
	return nil
}

// ListenAndServe runs the HTTP server until the context ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil {
		return stderrors.New("playback server is nil")
	}
	if ctx == nil {
		return stderrors.New("context is required")
	}

	serveErr := make(chan error, 1)
	log.Printf("playback server listening on %s", s.httpAddr)
	go func() {
		serveErr <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		err := s.httpServer.Shutdown(shutdownCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if stderrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}
