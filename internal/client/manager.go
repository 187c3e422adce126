package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/amoylab/liveadmin/internal/common/dto"
	"go.uber.org/zap"
)

// MaxReconnectAttempts bounds the retries after a connection is lost
const MaxReconnectAttempts = 5

const defaultBaseDelay = time.Second

// Listener receives what the server pushes on an established link
type Listener interface {
	OnPresence(onlineCount int)
	OnEvent(ev dto.EventPayload)
}

// Link is an established, joined connection
type Link interface {
	// Done is closed when the link drops
	Done() <-chan struct{}
	// Err reports why the link dropped
	Err() error
	Close() error
}

// Transport dials the server and performs the join handshake. It returns
// once the server has accepted the join.
type Transport interface {
	Connect(ctx context.Context, credential string, l Listener) (Link, error)
}

// CredentialSource returns the bearer token to join with
type CredentialSource interface {
	Load() (string, error)
}

// Manager keeps one notification link open, reconnecting with a linear
// backoff of baseDelay*attempt for at most MaxReconnectAttempts retries.
//
// Transitions are serialized by mu. Every connect attempt and timer carries
// the generation it was started in; results from an older generation are
// discarded.
type Manager struct {
	logger    *zap.Logger
	transport Transport
	creds     CredentialSource
	listener  Listener
	clock     Clock
	baseDelay time.Duration
	onChange  func(StateChange)

	mu      sync.Mutex
	state   State
	attempt int
	gen     uint64
	timer   Timer
	cancel  context.CancelFunc
	link    Link
	pending []StateChange

	notifyMu sync.Mutex
}

type Option func(*Manager)

// WithBaseDelay sets the backoff unit
func WithBaseDelay(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.baseDelay = d
		}
	}
}

// WithClock replaces the timer source
func WithClock(c Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// WithListener receives presence and events
func WithListener(l Listener) Option {
	return func(m *Manager) { m.listener = l }
}

// OnStateChange registers a callback run for every transition, in order.
// The callback must not call Start or Stop.
func OnStateChange(f func(StateChange)) Option {
	return func(m *Manager) { m.onChange = f }
}

func NewManager(logger *zap.Logger, transport Transport, creds CredentialSource, opts ...Option) *Manager {
	m := &Manager{
		logger:    logger.Named("client.manager"),
		transport: transport,
		creds:     creds,
		listener:  nopListener{},
		clock:     realClock{},
		baseDelay: defaultBaseDelay,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current state
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Attempt returns the number of reconnect attempts since the last successful join
func (m *Manager) Attempt() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempt
}

// Delay is the wait before reconnect attempt n
func (m *Manager) Delay(attempt int) time.Duration {
	return m.baseDelay * time.Duration(attempt)
}

// Start connects from Disconnected or, as a manual retry, from Failed.
// It is a no-op in any other state.
func (m *Manager) Start() {
	m.mu.Lock()
	if m.state == Disconnected || m.state == Failed {
		m.attempt = 0
		m.connectLocked()
	}
	m.release()
}

// Stop closes the link and cancels any pending dial or timer
func (m *Manager) Stop() {
	m.mu.Lock()
	m.gen++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	if m.link != nil {
		_ = m.link.Close()
		m.link = nil
	}
	m.attempt = 0
	m.setStateLocked(Disconnected, nil)
	m.release()
}

func (m *Manager) connectLocked() {
	m.gen++
	gen := m.gen
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.setStateLocked(Connecting, nil)
	go m.dial(ctx, gen)
}

func (m *Manager) dial(ctx context.Context, gen uint64) {
	credential, err := m.creds.Load()
	if err != nil {
		m.connectFailed(gen, err)
		return
	}
	link, err := m.transport.Connect(ctx, credential, m.listener)
	if err != nil {
		m.connectFailed(gen, err)
		return
	}
	m.connected(gen, link)
}

func (m *Manager) connected(gen uint64, link Link) {
	m.mu.Lock()
	if gen != m.gen || m.state != Connecting {
		m.mu.Unlock()
		// stopped or superseded while the handshake was in flight
		_ = link.Close()
		return
	}
	m.link = link
	m.attempt = 0
	m.setStateLocked(Connected, nil)
	m.release()

	go func() {
		<-link.Done()
		m.disconnected(gen, link.Err())
	}()
}

func (m *Manager) connectFailed(gen uint64, err error) {
	m.mu.Lock()
	if gen != m.gen || m.state != Connecting {
		m.mu.Unlock()
		return
	}
	m.cancel()
	m.cancel = nil
	m.logger.Warn("connect failed", zap.Int("attempt", m.attempt), zap.Error(err))
	m.scheduleRetryLocked(err)
	m.release()
}

func (m *Manager) disconnected(gen uint64, err error) {
	m.mu.Lock()
	if gen != m.gen || m.state != Connected {
		m.mu.Unlock()
		return
	}
	m.link = nil
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	if err == nil {
		err = errors.New("connection closed")
	}
	m.logger.Warn("connection lost", zap.Error(err))
	m.scheduleRetryLocked(err)
	m.release()
}

func (m *Manager) scheduleRetryLocked(cause error) {
	if m.attempt >= MaxReconnectAttempts {
		m.logger.Error("giving up", zap.Int("attempts", m.attempt), zap.Error(cause))
		m.setStateLocked(Failed, cause)
		return
	}
	m.attempt++
	m.gen++
	gen := m.gen
	delay := m.Delay(m.attempt)
	m.setStateLocked(Reconnecting, cause)
	m.timer = m.clock.AfterFunc(delay, func() { m.retry(gen) })
	m.logger.Info("reconnecting", zap.Int("attempt", m.attempt), zap.Duration("delay", delay))
}

func (m *Manager) retry(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || m.state != Reconnecting {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	m.connectLocked()
	m.release()
}

func (m *Manager) setStateLocked(to State, cause error) {
	if m.state == to {
		return
	}
	m.pending = append(m.pending, StateChange{From: m.state, To: to, Attempt: m.attempt, Err: cause})
	m.state = to
}

// release unlocks mu and runs the callbacks of the transitions made while it
// was held. notifyMu is taken before mu is released so callbacks run in
// transition order.
func (m *Manager) release() {
	changes := m.pending
	m.pending = nil
	if len(changes) == 0 || m.onChange == nil {
		m.mu.Unlock()
		return
	}
	m.notifyMu.Lock()
	m.mu.Unlock()
	defer m.notifyMu.Unlock()
	for _, c := range changes {
		m.onChange(c)
	}
}

type nopListener struct{}

func (nopListener) OnPresence(int)           {}
func (nopListener) OnEvent(dto.EventPayload) {}
