package client

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeTimer struct {
	delay   time.Duration
	fire    func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.stopped = true
	return true
}

// fakeClock hands every scheduled timer to the test instead of waiting
type fakeClock struct {
	timers chan *fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{timers: make(chan *fakeTimer, 16)}
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	t := &fakeTimer{delay: d, fire: f}
	c.timers <- t
	return t
}

func (c *fakeClock) next(t *testing.T) *fakeTimer {
	t.Helper()
	select {
	case timer := <-c.timers:
		return timer
	case <-time.After(2 * time.Second):
		t.Fatal("no timer scheduled")
		return nil
	}
}

func (c *fakeClock) assertIdle(t *testing.T) {
	t.Helper()
	select {
	case timer := <-c.timers:
		t.Fatalf("unexpected timer scheduled with delay %s", timer.delay)
	case <-time.After(50 * time.Millisecond):
	}
}

type fakeLink struct {
	done      chan struct{}
	closeOnce sync.Once
	err       error
	closed    bool
	mu        sync.Mutex
}

func newFakeLink() *fakeLink { return &fakeLink{done: make(chan struct{})} }

func (l *fakeLink) Done() <-chan struct{} { return l.done }
func (l *fakeLink) Err() error            { return l.err }
func (l *fakeLink) Close() error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	l.drop(nil)
	return nil
}
func (l *fakeLink) drop(err error) {
	l.closeOnce.Do(func() {
		l.err = err
		close(l.done)
	})
}
func (l *fakeLink) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

type connectResult struct {
	link Link
	err  error
}

// fakeTransport answers each Connect with the next scripted result
type fakeTransport struct {
	mu          sync.Mutex
	results     chan connectResult
	credentials []string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{results: make(chan connectResult, 16)}
}

func (f *fakeTransport) Connect(ctx context.Context, credential string, _ Listener) (Link, error) {
	f.mu.Lock()
	f.credentials = append(f.credentials, credential)
	f.mu.Unlock()
	select {
	case r := <-f.results:
		return r.link, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeTransport) fail(err error) { f.results <- connectResult{err: err} }
func (f *fakeTransport) succeed(l Link) { f.results <- connectResult{link: l} }
func (f *fakeTransport) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.credentials...)
}

type staticCreds struct {
	mu    sync.Mutex
	token string
	err   error
}

func (s *staticCreds) Load() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, s.err
}

func (s *staticCreds) set(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

type stateLog struct {
	mu      sync.Mutex
	changes []StateChange
}

func (l *stateLog) record(c StateChange) {
	l.mu.Lock()
	l.changes = append(l.changes, c)
	l.mu.Unlock()
}

func (l *stateLog) states() []State {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]State, 0, len(l.changes))
	for _, c := range l.changes {
		out = append(out, c.To)
	}
	return out
}

const base = 100 * time.Millisecond

func newTestManager(transport Transport, creds CredentialSource) (*Manager, *fakeClock, *stateLog) {
	clock := newFakeClock()
	log := &stateLog{}
	m := NewManager(zap.NewNop(), transport, creds,
		WithBaseDelay(base),
		WithClock(clock),
		OnStateChange(log.record))
	return m, clock, log
}

func waitState(t *testing.T, m *Manager, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return m.State() == want }, 2*time.Second, time.Millisecond,
		"want state %s, have %s", want, m.State())
}

// waitStates waits for the callbacks, which run after the state is visible
func waitStates(t *testing.T, log *stateLog, want []State) {
	t.Helper()
	require.Eventually(t, func() bool { return assert.ObjectsAreEqual(want, log.states()) }, 2*time.Second, time.Millisecond,
		"want transitions %v, have %v", want, log.states())
}

func TestManager_ConnectsAndResetsCounter(t *testing.T) {
	tr := newFakeTransport()
	m, clock, log := newTestManager(tr, &staticCreds{token: "tok"})
	assert.Equal(t, Disconnected, m.State())

	tr.fail(errors.New("refused"))
	m.Start()
	waitState(t, m, Reconnecting)
	assert.Equal(t, 1, m.Attempt())

	link := newFakeLink()
	tr.succeed(link)
	clock.next(t).fire()
	waitState(t, m, Connected)
	assert.Equal(t, 0, m.Attempt())
	waitStates(t, log, []State{Connecting, Reconnecting, Connecting, Connected})
	assert.Equal(t, []string{"tok", "tok"}, tr.calls())
}

func TestManager_GivesUpAfterFiveReconnects(t *testing.T) {
	tr := newFakeTransport()
	m, clock, log := newTestManager(tr, &staticCreds{token: "tok"})
	for i := 0; i < 6; i++ {
		tr.fail(errors.New("network down"))
	}

	m.Start()
	for n := 1; n <= MaxReconnectAttempts; n++ {
		timer := clock.next(t)
		assert.Equal(t, time.Duration(n)*base, timer.delay, "attempt %d", n)
		assert.Equal(t, n, m.Attempt())
		timer.fire()
	}

	waitState(t, m, Failed)
	clock.assertIdle(t)
	assert.Equal(t, MaxReconnectAttempts, m.Attempt())
	assert.Len(t, tr.calls(), 6)

	want := []State{Connecting}
	for n := 1; n <= MaxReconnectAttempts; n++ {
		want = append(want, Reconnecting, Connecting)
	}
	waitStates(t, log, append(want, Failed))
}

func TestManager_DisconnectTriggersReconnect(t *testing.T) {
	tr := newFakeTransport()
	m, clock, _ := newTestManager(tr, &staticCreds{token: "tok"})

	first := newFakeLink()
	tr.succeed(first)
	m.Start()
	waitState(t, m, Connected)

	first.drop(errors.New("reset by peer"))
	waitState(t, m, Reconnecting)
	timer := clock.next(t)
	assert.Equal(t, base, timer.delay)

	second := newFakeLink()
	tr.succeed(second)
	timer.fire()
	waitState(t, m, Connected)
	assert.Equal(t, 0, m.Attempt())
}

func TestManager_RejectedHandshakeRetriesWithFreshCredential(t *testing.T) {
	tr := newFakeTransport()
	creds := &staticCreds{token: "expired"}
	m, clock, _ := newTestManager(tr, creds)

	tr.fail(&RejectedError{Code: 4001, Reason: "invalid credential"})
	m.Start()
	waitState(t, m, Reconnecting)

	creds.set("renewed")
	tr.succeed(newFakeLink())
	clock.next(t).fire()
	waitState(t, m, Connected)
	assert.Equal(t, []string{"expired", "renewed"}, tr.calls())
}

func TestManager_MissingCredentialCountsAsFailure(t *testing.T) {
	tr := newFakeTransport()
	m, clock, log := newTestManager(tr, &staticCreds{err: ErrNoCredential})

	m.Start()
	waitState(t, m, Reconnecting)
	assert.Empty(t, tr.calls())
	clock.next(t)

	waitStates(t, log, []State{Connecting, Reconnecting})
	log.mu.Lock()
	last := log.changes[1]
	log.mu.Unlock()
	assert.ErrorIs(t, last.Err, ErrNoCredential)
	assert.Equal(t, 1, last.Attempt)
	m.Stop()
}

func TestManager_StopCancelsPendingTimer(t *testing.T) {
	tr := newFakeTransport()
	m, clock, _ := newTestManager(tr, &staticCreds{token: "tok"})

	tr.fail(errors.New("refused"))
	m.Start()
	waitState(t, m, Reconnecting)
	timer := clock.next(t)

	m.Stop()
	assert.Equal(t, Disconnected, m.State())
	assert.True(t, timer.stopped)

	// a timer that fires anyway is a no-op
	timer.fire()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, Disconnected, m.State())
	assert.Len(t, tr.calls(), 1)
}

func TestManager_StopDuringDialDiscardsLateHandshake(t *testing.T) {
	tr := newFakeTransport()
	m, _, _ := newTestManager(tr, &staticCreds{token: "tok"})

	// the Connect call blocks until Stop cancels its context
	m.Start()
	require.Eventually(t, func() bool { return len(tr.calls()) == 1 }, time.Second, time.Millisecond)
	m.Stop()
	assert.Equal(t, Disconnected, m.State())

	late := newFakeLink()
	m.connected(0, late)
	assert.True(t, late.isClosed())
	assert.Equal(t, Disconnected, m.State())
}

func TestManager_StopClosesLink(t *testing.T) {
	tr := newFakeTransport()
	m, clock, _ := newTestManager(tr, &staticCreds{token: "tok"})

	link := newFakeLink()
	tr.succeed(link)
	m.Start()
	waitState(t, m, Connected)

	m.Stop()
	assert.True(t, link.isClosed())
	assert.Equal(t, Disconnected, m.State())
	clock.assertIdle(t)
}

func TestManager_ManualRestartFromFailed(t *testing.T) {
	tr := newFakeTransport()
	m, clock, _ := newTestManager(tr, &staticCreds{token: "tok"})
	for i := 0; i < 6; i++ {
		tr.fail(errors.New("down"))
	}
	m.Start()
	for n := 1; n <= MaxReconnectAttempts; n++ {
		clock.next(t).fire()
	}
	waitState(t, m, Failed)

	tr.succeed(newFakeLink())
	m.Start()
	waitState(t, m, Connected)
	assert.Equal(t, 0, m.Attempt())
}

func TestManager_StartIsNoopWhenActive(t *testing.T) {
	tr := newFakeTransport()
	m, _, log := newTestManager(tr, &staticCreds{token: "tok"})
	tr.succeed(newFakeLink())
	m.Start()
	waitState(t, m, Connected)

	m.Start()
	assert.Equal(t, Connected, m.State())
	assert.Len(t, tr.calls(), 1)
	waitStates(t, log, []State{Connecting, Connected})
}

func TestManager_Delay(t *testing.T) {
	m := NewManager(zap.NewNop(), newFakeTransport(), &staticCreds{}, WithBaseDelay(2*time.Second))
	assert.Equal(t, 2*time.Second, m.Delay(1))
	assert.Equal(t, 10*time.Second, m.Delay(5))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "connected", Connected.String())
	assert.Equal(t, "failed", Failed.String())
	assert.Equal(t, "unknown", State(42).String())
	assert.True(t, Connected.Online())
	assert.False(t, Reconnecting.Online())
}
