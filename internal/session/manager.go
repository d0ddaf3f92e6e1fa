// Package session drives the lifecycle of the single upstream messaging
// session: it owns the connection state machine, the reconnection policy
// and the transient pairing artifact, and it normalizes raw transport
// notifications into typed domain events.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/hermod-gw/hermod/internal/event"
	"github.com/hermod-gw/hermod/internal/metrics"
	"github.com/hermod-gw/hermod/internal/pairing"
)

// Config holds the reconnection policy and pairing artifact timing.
type Config struct {
	BackoffBase          time.Duration // first retry delay (default 3s)
	BackoffMultiplier    float64       // exponential growth factor (default 1.5)
	BackoffCap           time.Duration // hard ceiling on retry delay (default 60s)
	MaxAttempts          int           // reconnect budget before terminal failed (default 10)
	ConnectTimeout       time.Duration // bound on a single transport connect call (default 60s)
	ArtifactCleanupDelay time.Duration // delay before clearing the artifact after connect (default 5s)
}

func (c Config) withDefaults() Config {
	if c.BackoffBase <= 0 {
		c.BackoffBase = 3 * time.Second
	}
	if c.BackoffMultiplier <= 1 {
		c.BackoffMultiplier = 1.5
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = 60 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 10
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 60 * time.Second
	}
	if c.ArtifactCleanupDelay <= 0 {
		c.ArtifactCleanupDelay = 5 * time.Second
	}
	return c
}

type commandAction int

const (
	actionConnect commandAction = iota
	actionDisconnect
	actionShutdown
)

type command struct {
	action commandAction
	reply  chan error
}

// Manager owns the session state machine.
//
// Lock hierarchy: mu protects the snapshot fields (state, attempts,
// lastAttemptAt, identity) for readers; all mutation happens on the single
// state-machine goroutine, so transport callbacks can never interleave.
type Manager struct {
	mu            sync.RWMutex
	state         State
	attempts      int
	lastAttemptAt time.Time
	identity      string

	transport Transport
	creds     CredentialStore
	artifacts *pairing.Store
	cfg       Config
	logger    *slog.Logger

	publishMu sync.RWMutex
	publish   func(event.Event)

	cmdChan  chan command
	doneChan chan struct{}

	// Timers are owned exclusively by the state-machine goroutine. At most
	// one reconnect timer is pending at a time.
	reconnectTimer *time.Timer
	cleanupTimer   *time.Timer
}

// NewManager wires a Manager to its collaborators and starts the state
// machine goroutine. The manager begins disconnected; call Connect to bring
// the session up.
func NewManager(t Transport, creds CredentialStore, artifacts *pairing.Store, cfg Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		state:     StateDisconnected,
		transport: t,
		creds:     creds,
		artifacts: artifacts,
		cfg:       cfg.withDefaults(),
		logger:    logger,
		publish:   func(event.Event) {},
		cmdChan:   make(chan command, 16),
		doneChan:  make(chan struct{}),
	}
	go m.run()
	return m
}

// SetPublisher installs the domain event consumer. Publishing must never
// block: the pipeline's publish path is enqueue-only by contract.
func (m *Manager) SetPublisher(fn func(event.Event)) {
	if fn == nil {
		return
	}
	m.publishMu.Lock()
	m.publish = fn
	m.publishMu.Unlock()
}

// Connect requests a connection attempt. A call while an attempt is already
// in progress is a logged no-op. An explicit call cancels any pending
// reconnect timer and, from the terminal failed state, grants a fresh
// reconnect budget.
func (m *Manager) Connect() error { return m.send(actionConnect) }

// Disconnect performs a user-initiated logout: it invokes the transport's
// logout, clears credentials and the pairing artifact, and cancels any
// pending reconnection so a stale timer cannot resurrect the session.
func (m *Manager) Disconnect() error { return m.send(actionDisconnect) }

// Shutdown stops the state machine goroutine. The transport session is left
// as-is; use Disconnect for a logout.
func (m *Manager) Shutdown() error { return m.send(actionShutdown) }

func (m *Manager) send(a commandAction) error {
	reply := make(chan error, 1)
	select {
	case m.cmdChan <- command{action: a, reply: reply}:
		// The goroutine may exit with the command still queued.
		select {
		case err := <-reply:
			return err
		case <-m.doneChan:
			return fmt.Errorf("session manager shutting down")
		}
	case <-m.doneChan:
		return fmt.Errorf("session manager shutting down")
	}
}

// Status returns a read-only snapshot. No side effects.
func (m *Manager) Status() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap := Snapshot{
		State:    m.state.String(),
		Attempts: m.attempts,
		Identity: redactIdentity(m.identity),
	}
	if !m.lastAttemptAt.IsZero() {
		t := m.lastAttemptAt
		snap.LastAttemptAt = &t
	}
	return snap
}

// Send delivers a message over the live session after verifying the
// recipient is registered on the network.
func (m *Manager) Send(ctx context.Context, recipient string, payload []byte) error {
	m.mu.RLock()
	st := m.state
	m.mu.RUnlock()
	if st != StateConnected {
		return fmt.Errorf("cannot send: session is %s", st)
	}
	ok, err := m.transport.IsRegisteredRecipient(ctx, recipient)
	if err != nil {
		return fmt.Errorf("recipient check failed: %w", err)
	}
	if !ok {
		return fmt.Errorf("recipient %q is not registered", recipient)
	}
	if err := m.transport.SendMessage(ctx, recipient, payload); err != nil {
		return fmt.Errorf("send failed: %w", err)
	}
	m.emit(event.New(event.KindMessageStatus, map[string]any{
		"to":     recipient,
		"status": "sent",
	}))
	return nil
}

// run is the state machine goroutine. Notifications, commands and timer
// fires are all serialized here: a second raw notification is never handled
// while the previous one is still in flight.
func (m *Manager) run() {
	defer close(m.doneChan)

	for {
		select {
		case cmd := <-m.cmdChan:
			var err error
			switch cmd.action {
			case actionConnect:
				err = m.handleConnect(true)
			case actionDisconnect:
				err = m.handleDisconnect()
			case actionShutdown:
				m.stopTimers()
				if cmd.reply != nil {
					cmd.reply <- nil
				}
				return
			}
			if cmd.reply != nil {
				cmd.reply <- err
			}

		case n, ok := <-m.transport.Notifications():
			if !ok {
				m.logger.Info("transport notification stream closed")
				m.stopTimers()
				return
			}
			m.handleNotification(n)

		case <-timerC(m.reconnectTimer):
			m.reconnectTimer = nil
			m.logger.Info("reconnect timer fired")
			_ = m.handleConnect(false)

		case <-timerC(m.cleanupTimer):
			m.cleanupTimer = nil
			m.artifacts.Clear()
			m.logger.Debug("pairing artifact cleared after connect")
		}
	}
}

func (m *Manager) handleConnect(explicit bool) error {
	m.mu.RLock()
	st := m.state
	m.mu.RUnlock()

	switch st {
	case StateConnecting, StateAwaitingPairing, StateConnected:
		m.logger.Info("connect ignored: attempt already in progress", "state", st.String())
		return nil
	}

	// An explicit connect cancels a pending reconnect timer and resumes
	// from the terminal failed state with a fresh budget.
	m.stopTimer(&m.reconnectTimer)
	if explicit && st == StateFailed {
		m.mu.Lock()
		m.attempts = 0
		m.mu.Unlock()
	}

	m.setState(StateConnecting)

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.ConnectTimeout)
	err := m.transport.Connect(ctx)
	cancel()
	if err != nil {
		// A failed connect attempt and a connection that dropped after
		// connecting share one recovery path.
		m.logger.Warn("transport connect failed", "error", err)
		m.handleClose(0, err.Error())
		return nil
	}
	return nil
}

func (m *Manager) handleNotification(n Notification) {
	switch n.Type {
	case NotificationPairingChallenge:
		m.handlePairingChallenge(n.PairingToken)
	case NotificationStateChange:
		switch n.State {
		case ConnStateOpen:
			m.handleOpen()
		case ConnStateClose:
			m.handleClose(n.StatusCode, n.CloseReason)
		case ConnStateConnecting:
			if m.currentState() != StateAwaitingPairing {
				m.setState(StateConnecting)
			}
		}
	case NotificationCredentialUpdate:
		m.handleCredentialUpdate(n)
	case NotificationInboundMessage:
		m.handleInbound(n.Inbound)
	}
}

func (m *Manager) handlePairingChallenge(token string) {
	m.setState(StateAwaitingPairing)
	if !m.artifacts.Issue(token) {
		m.logger.Warn("pairing artifact locked, challenge dropped")
		return
	}
	art, _ := m.artifacts.Read()
	m.emit(event.New(event.KindPairingIssued, map[string]any{
		"token":     art.Token,
		"issued_at": art.IssuedAt,
	}))
}

func (m *Manager) handleOpen() {
	m.stopTimer(&m.reconnectTimer)
	m.mu.Lock()
	m.attempts = 0
	identity := m.identity
	m.mu.Unlock()
	m.setState(StateConnected)

	// The artifact is cleared a fixed delay after connecting so a dashboard
	// that just rendered it does not 404 immediately.
	m.stopTimer(&m.cleanupTimer)
	m.cleanupTimer = time.NewTimer(m.cfg.ArtifactCleanupDelay)

	m.emit(event.New(event.KindSessionReady, map[string]any{
		"identity": redactIdentity(identity),
	}))
}

func (m *Manager) handleClose(statusCode int, reason string) {
	m.stopTimer(&m.cleanupTimer)

	cause := Classify(statusCode)
	metrics.IncDisconnect(string(cause))
	m.logger.Warn("session closed", "cause", string(cause), "code", statusCode, "reason", reason)

	if cause == CauseLoggedOut {
		// Hard invalidation: stale credentials must be gone before any
		// future connect, or reconnection loops forever.
		m.clearCredentials()
		m.artifacts.Clear()
		m.setState(StateDisconnected)
		m.emit(closedEvent(cause, statusCode, reason, false, 0))
		m.emit(event.New(event.KindSessionAuthFailed, map[string]any{
			"code":   statusCode,
			"reason": reason,
		}))
		return
	}

	if cause == CauseSessionConflict {
		// Another session superseded this one. Terminal for this process;
		// credentials stay so an operator can decide what to do.
		m.setState(StateDisconnected)
		m.emit(closedEvent(cause, statusCode, reason, false, 0))
		return
	}

	// Transient: retry with exponential backoff until the budget runs out.
	m.mu.Lock()
	attempts := m.attempts
	m.mu.Unlock()

	if attempts >= m.cfg.MaxAttempts {
		m.setState(StateFailed)
		m.emit(closedEvent(cause, statusCode, reason, false, 0))
		m.logger.Error("reconnect budget exhausted", "attempts", attempts)
		return
	}

	m.mu.Lock()
	m.attempts++
	n := m.attempts
	m.lastAttemptAt = time.Now().UTC()
	m.mu.Unlock()

	delay := backoffDelay(m.cfg.BackoffBase, m.cfg.BackoffMultiplier, m.cfg.BackoffCap, n)
	m.setState(StateDisconnected)
	m.emit(closedEvent(cause, statusCode, reason, true, delay))
	metrics.IncReconnectAttempt()
	m.logger.Info("reconnect scheduled", "attempt", n, "delay", delay)

	m.stopTimer(&m.reconnectTimer)
	m.reconnectTimer = time.NewTimer(delay)
}

func (m *Manager) handleCredentialUpdate(n Notification) {
	if err := m.creds.Save(n.Credentials); err != nil {
		m.logger.Error("failed to save credentials", "error", err)
	}
	if n.Identity != "" {
		m.mu.Lock()
		m.identity = n.Identity
		m.mu.Unlock()
	}
	m.emit(event.New(event.KindSessionAuthenticated, map[string]any{
		"identity": redactIdentity(n.Identity),
	}))
}

func (m *Manager) handleInbound(in *Inbound) {
	if in == nil {
		return
	}
	switch in.Kind {
	case InboundReceipt:
		m.emit(event.New(event.KindMessageStatus, in))
	default:
		m.emit(event.New(event.KindMessageReceived, in))
	}
}

func (m *Manager) handleDisconnect() error {
	m.stopTimers()

	m.mu.RLock()
	st := m.state
	m.mu.RUnlock()

	if st == StateConnected {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := m.transport.Logout(ctx); err != nil {
			m.logger.Warn("transport logout failed", "error", err)
		}
		cancel()
	}

	m.clearCredentials()
	m.artifacts.Clear()
	m.setState(StateDisconnected)
	m.emit(event.New(event.KindSessionClosed, map[string]any{
		"cause":        string(CauseLoggedOut),
		"initiated_by": "user",
	}))
	return nil
}

func (m *Manager) clearCredentials() {
	if err := m.creds.Clear(); err != nil {
		m.logger.Error("failed to clear credentials", "error", err)
	}
}

func (m *Manager) currentState() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Manager) setState(newState State) {
	m.mu.Lock()
	oldState := m.state
	m.state = newState
	m.mu.Unlock()

	if oldState == newState {
		return
	}
	metrics.RecordStateTransition(oldState.String(), newState.String())
	metrics.SetCurrentState(oldState.String(), false)
	metrics.SetCurrentState(newState.String(), true)
	m.logger.Info("state transition", "from", oldState.String(), "to", newState.String())
}

func (m *Manager) emit(e event.Event) {
	m.publishMu.RLock()
	publish := m.publish
	m.publishMu.RUnlock()
	publish(e)
}

func (m *Manager) stopTimer(t **time.Timer) {
	if *t == nil {
		return
	}
	if !(*t).Stop() {
		select {
		case <-(*t).C:
		default:
		}
	}
	*t = nil
}

func (m *Manager) stopTimers() {
	m.stopTimer(&m.reconnectTimer)
	m.stopTimer(&m.cleanupTimer)
}

func timerC(t *time.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

func closedEvent(cause Cause, code int, reason string, willRetry bool, delay time.Duration) event.Event {
	data := map[string]any{
		"cause":      string(cause),
		"code":       code,
		"reason":     reason,
		"will_retry": willRetry,
	}
	if willRetry {
		data["retry_in_ms"] = delay.Milliseconds()
	}
	return event.New(event.KindSessionClosed, data)
}

// backoffDelay computes min(base * mult^(n-1), cap) for post-increment
// attempt count n.
func backoffDelay(base time.Duration, mult float64, ceiling time.Duration, n int) time.Duration {
	if n < 1 {
		n = 1
	}
	d := time.Duration(float64(base) * math.Pow(mult, float64(n-1)))
	if d <= 0 || d > ceiling {
		return ceiling
	}
	return d
}

func redactIdentity(id string) string {
	if id == "" {
		return ""
	}
	if len(id) <= 4 {
		return strings.Repeat("*", len(id))
	}
	return strings.Repeat("*", len(id)-4) + id[len(id)-4:]
}
