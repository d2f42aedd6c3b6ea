package automation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"terminal-core/internal/capability"
	"terminal-core/internal/contract"
	"terminal-core/internal/detector"
	"terminal-core/internal/events"
	"terminal-core/internal/order"
	"terminal-core/pkg/backend"
	"terminal-core/pkg/db"
)

// Session statuses persisted in the db.
const (
	StatusActive  = "ACTIVE"
	StatusStopped = "STOPPED"
)

var (
	ErrSessionRunning    = errors.New("automation: session already running")
	ErrSessionNotRunning = errors.New("automation: session not running")
)

// TickStream abstracts the streaming connection manager.
type TickStream interface {
	SubscribeTicks(ctx context.Context, symbols []string) *backend.TickSubscription
}

// Engine runs automation sessions. Each session owns exactly one detector,
// one tick subscription, and its own capability snapshot; nothing is shared
// between sessions.
type Engine struct {
	stream    TickStream
	resolver  *capability.Resolver
	submitter *order.Submitter
	tracker   *contract.Tracker
	bus       *events.Bus
	store     *db.Database
	currency  string

	mu      sync.Mutex
	running map[string]*runningSession
}

type runningSession struct {
	cfg    db.Session
	eng    order.Engine
	params order.Params

	det    *detector.Detector
	sub    *backend.TickSubscription
	caps   capability.Snapshot
	cancel context.CancelFunc
}

func NewEngine(stream TickStream, resolver *capability.Resolver, submitter *order.Submitter, tracker *contract.Tracker, bus *events.Bus, store *db.Database, currency string) *Engine {
	return &Engine{
		stream:    stream,
		resolver:  resolver,
		submitter: submitter,
		tracker:   tracker,
		bus:       bus,
		store:     store,
		currency:  currency,
		running:   make(map[string]*runningSession),
	}
}

// Create validates and persists a new (stopped) session.
func (e *Engine) Create(ctx context.Context, s db.Session) (db.Session, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.Symbol == "" {
		return s, fmt.Errorf("automation: symbol is required")
	}
	if !validEngine(order.Engine(s.Engine)) {
		return s, fmt.Errorf("automation: unknown engine %q", s.Engine)
	}
	if s.Period <= 0 {
		s.Period = 20
	}
	if s.CooldownSeconds < 0 {
		return s, fmt.Errorf("automation: cooldown must not be negative")
	}
	if s.Params == "" {
		s.Params = "{}"
	}
	var p order.Params
	if err := json.Unmarshal([]byte(s.Params), &p); err != nil {
		return s, fmt.Errorf("automation: bad params: %w", err)
	}
	s.Status = StatusStopped
	if err := e.store.CreateSession(ctx, s); err != nil {
		return s, fmt.Errorf("automation: store session: %w", err)
	}
	return s, nil
}

// Start loads a persisted session, restores its detector snapshot, resolves
// capabilities for its symbol and begins consuming ticks.
func (e *Engine) Start(ctx context.Context, id string) error {
	// Reserve the id before the blocking work (db load, capability refresh,
	// dial) so a concurrent Start cannot slip past the check and leak a
	// second subscription. The nil entry is replaced once the session is live.
	e.mu.Lock()
	if _, ok := e.running[id]; ok {
		e.mu.Unlock()
		return ErrSessionRunning
	}
	e.running[id] = nil
	e.mu.Unlock()

	release := func() {
		e.mu.Lock()
		delete(e.running, id)
		e.mu.Unlock()
	}

	cfg, err := e.store.GetSession(ctx, id)
	if err != nil {
		release()
		return fmt.Errorf("automation: load session %s: %w", id, err)
	}

	var params order.Params
	if err := json.Unmarshal([]byte(cfg.Params), &params); err != nil {
		release()
		return fmt.Errorf("automation: session %s params: %w", id, err)
	}

	det := detector.New(cfg.Symbol, cfg.Period, time.Duration(cfg.CooldownSeconds*float64(time.Second)))
	if state, err := e.store.GetSessionState(ctx, id); err == nil {
		if err := det.SetState(json.RawMessage(state)); err != nil {
			log.Printf("automation: session %s state restore failed, starting cold: %v", id, err)
			det.Reset()
		}
	} else if !errors.Is(err, db.ErrNotFound) {
		log.Printf("automation: session %s state load error: %v", id, err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	rs := &runningSession{
		cfg:    *cfg,
		eng:    order.Engine(cfg.Engine),
		params: params,
		det:    det,
		caps:   e.resolver.Refresh(ctx, cfg.Symbol),
		sub:    e.stream.SubscribeTicks(runCtx, []string{cfg.Symbol}),
		cancel: cancel,
	}

	e.mu.Lock()
	e.running[id] = rs
	e.mu.Unlock()

	if err := e.store.SetSessionStatus(ctx, id, StatusActive, ""); err != nil {
		log.Printf("automation: session %s status update: %v", id, err)
	}
	e.publishSessionUpdate(id, StatusActive, "")

	go e.run(runCtx, rs)
	log.Printf("automation: session %s started (%s %s period=%d cooldown=%.0fs)",
		id, cfg.Engine, cfg.Symbol, cfg.Period, cfg.CooldownSeconds)
	return nil
}

// Stop tears a running session down: the tick subscription is closed (which
// also cancels any pending reconnect) and the detector snapshot is saved.
func (e *Engine) Stop(ctx context.Context, id string) error {
	e.mu.Lock()
	rs, ok := e.running[id]
	// A nil entry is a reservation held by an in-flight Start; there is
	// nothing to tear down yet, and removing it would unblock a double start.
	if ok && rs != nil {
		delete(e.running, id)
	}
	e.mu.Unlock()
	if !ok || rs == nil {
		return ErrSessionNotRunning
	}

	rs.cancel()
	rs.sub.Close()
	e.saveDetectorState(ctx, id, rs.det)

	if err := e.store.SetSessionStatus(ctx, id, StatusStopped, ""); err != nil {
		log.Printf("automation: session %s status update: %v", id, err)
	}
	e.publishSessionUpdate(id, StatusStopped, "")
	log.Printf("automation: session %s stopped", id)
	return nil
}

// SwitchSymbol replaces (never stacks) a running session's tick subscription
// and refreshes capabilities for the new symbol. The detector restarts in
// warmup: a price window from another instrument is meaningless.
func (e *Engine) SwitchSymbol(ctx context.Context, id, symbol string) error {
	if symbol == "" {
		return fmt.Errorf("automation: symbol is required")
	}

	e.mu.Lock()
	rs, ok := e.running[id]
	e.mu.Unlock()
	if !ok || rs == nil {
		return ErrSessionNotRunning
	}

	if err := e.Stop(ctx, id); err != nil {
		return err
	}

	cfg := rs.cfg
	cfg.Symbol = symbol
	if err := e.store.UpdateSession(ctx, cfg); err != nil {
		return fmt.Errorf("automation: update session %s: %w", id, err)
	}
	// Drop the old instrument's window before the restart picks the state up.
	if err := e.store.SaveSessionState(ctx, id, "{}"); err != nil {
		log.Printf("automation: session %s state reset: %v", id, err)
	}
	return e.Start(ctx, id)
}

// ResumeAll restarts every session that was ACTIVE when the process last
// stopped.
func (e *Engine) ResumeAll(ctx context.Context) {
	sessions, err := e.store.ListActiveSessions(ctx)
	if err != nil {
		log.Printf("automation: resume: %v", err)
		return
	}
	for _, s := range sessions {
		if err := e.Start(ctx, s.ID); err != nil {
			log.Printf("automation: resume %s: %v", s.ID, err)
		}
	}
}

// StopAll stops every running session; used on shutdown.
func (e *Engine) StopAll(ctx context.Context) {
	e.mu.Lock()
	ids := make([]string, 0, len(e.running))
	for id := range e.running {
		ids = append(ids, id)
	}
	e.mu.Unlock()
	for _, id := range ids {
		if err := e.Stop(ctx, id); err != nil && !errors.Is(err, ErrSessionNotRunning) {
			log.Printf("automation: stop %s: %v", id, err)
		}
	}
}

// IsRunning reports whether a session currently consumes ticks.
func (e *Engine) IsRunning(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.running[id]
	return ok
}

// run is the per-session event loop. Ticks arrive in order on one channel, so
// the cooldown gate inside the detector is race-free.
func (e *Engine) run(ctx context.Context, rs *runningSession) {
	for {
		select {
		case <-ctx.Done():
			return
		case up, ok := <-rs.sub.Connectivity:
			if !ok {
				return
			}
			if e.bus != nil {
				e.bus.Publish(events.EventConnectivity, ConnectivityUpdate{SessionID: rs.cfg.ID, Symbol: rs.cfg.Symbol, Up: up})
			}
		case tick, ok := <-rs.sub.Ticks:
			if !ok {
				return
			}
			if e.bus != nil {
				e.bus.Publish(events.EventTick, tick)
			}
			if sig := rs.det.OnTick(tick); sig != nil {
				e.dispatch(ctx, rs, sig)
			}
		}
	}
}

// dispatch runs the downstream pipeline for one fired signal. All failures
// are captured as data; none of them touch detector state.
func (e *Engine) dispatch(ctx context.Context, rs *runningSession, sig *detector.Signal) {
	id := rs.cfg.ID
	log.Printf("automation: session %s signal %s %s price=%.5f avg=%.5f",
		id, sig.Side, sig.Symbol, sig.Price, sig.Average)

	if e.bus != nil {
		e.bus.Publish(events.EventSignal, *sig)
	}
	e.recordSignal(ctx, id, sig)
	e.saveDetectorState(ctx, id, rs.det)

	if !capability.IsSupported(rs.eng, rs.caps) {
		warn := fmt.Sprintf("engine %s not supported for %s", rs.eng, sig.Symbol)
		log.Printf("automation: session %s: %s", id, warn)
		if e.bus != nil {
			e.bus.Publish(events.EventCapabilityWarning, CapabilityWarning{SessionID: id, Symbol: sig.Symbol, Engine: string(rs.eng), Reason: warn})
		}
		if err := e.store.SetSessionStatus(ctx, id, StatusActive, warn); err != nil {
			log.Printf("automation: session %s status update: %v", id, err)
		}
		return
	}

	req, err := order.Build(rs.eng, sig.Side, sig.Symbol, rs.params, e.currency)
	if err != nil {
		log.Printf("automation: session %s build order: %v", id, err)
		if err := e.store.SetSessionStatus(ctx, id, StatusActive, err.Error()); err != nil {
			log.Printf("automation: session %s status update: %v", id, err)
		}
		return
	}

	ack, err := e.submitter.Submit(ctx, req)
	if err != nil {
		// Already published as an order.rejected event with the backend's
		// detail; keep the last error visible on the session too.
		if dbErr := e.store.SetSessionStatus(ctx, id, StatusActive, err.Error()); dbErr != nil {
			log.Printf("automation: session %s status update: %v", id, dbErr)
		}
		return
	}

	if e.tracker != nil {
		if err := e.tracker.Track(ctx, ack.ContractID); err != nil {
			log.Printf("automation: session %s track %s: %v", id, ack.ContractID, err)
		}
	}
}

func (e *Engine) recordSignal(ctx context.Context, sessionID string, sig *detector.Signal) {
	row := db.SignalRow{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Symbol:    sig.Symbol,
		Side:      string(sig.Side),
		Price:     sig.Price,
		Average:   sig.Average,
		CreatedAt: sig.Time,
	}
	if err := e.store.CreateSignal(ctx, row); err != nil {
		log.Printf("automation: session %s store signal: %v", sessionID, err)
	}
}

func (e *Engine) saveDetectorState(ctx context.Context, sessionID string, det *detector.Detector) {
	state, err := det.GetState()
	if err != nil {
		log.Printf("automation: session %s snapshot: %v", sessionID, err)
		return
	}
	if err := e.store.SaveSessionState(ctx, sessionID, string(state)); err != nil {
		log.Printf("automation: session %s save state: %v", sessionID, err)
	}
}

func (e *Engine) publishSessionUpdate(id, status, lastError string) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(events.EventSessionUpdate, SessionUpdate{ID: id, Status: status, LastError: lastError})
}

func validEngine(eng order.Engine) bool {
	for _, e := range order.Engines {
		if e == eng {
			return true
		}
	}
	return false
}

// ConnectivityUpdate is published on every tick-channel connect/disconnect.
type ConnectivityUpdate struct {
	SessionID string `json:"session_id"`
	Symbol    string `json:"symbol"`
	Up        bool   `json:"up"`
}

// CapabilityWarning is published when a signal is skipped because the venue
// does not support the configured engine for the instrument.
type CapabilityWarning struct {
	SessionID string `json:"session_id"`
	Symbol    string `json:"symbol"`
	Engine    string `json:"engine"`
	Reason    string `json:"reason"`
}

// SessionUpdate is published on session lifecycle changes.
type SessionUpdate struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	LastError string `json:"last_error"`
}
