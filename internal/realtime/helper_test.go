package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/amoylab/liveadmin/internal/auth"
	"github.com/amoylab/liveadmin/internal/common/dto"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	id      string
	mu      sync.Mutex
	frames  [][]byte
	sendErr error
	closed  bool
	code    int
}

func newFakeConn(id string) *fakeConn { return &fakeConn{id: id} }

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.frames = append(c.frames, frame)
	return nil
}

func (c *fakeConn) Close(code int, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.code = code
	return nil
}

func (c *fakeConn) messages(t *testing.T) []dto.RealtimeMessage {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]dto.RealtimeMessage, 0, len(c.frames))
	for _, f := range c.frames {
		var m dto.RealtimeMessage
		require.NoError(t, json.Unmarshal(f, &m))
		out = append(out, m)
	}
	return out
}

// presenceCounts returns the onlineCount of every presence frame received
func (c *fakeConn) presenceCounts(t *testing.T) []int {
	t.Helper()
	var counts []int
	for _, m := range c.messages(t) {
		if m.Type != dto.RealtimePresence {
			continue
		}
		var p dto.PresencePayload
		require.NoError(t, m.DecodePayload(&p))
		counts = append(counts, p.OnlineCount)
	}
	return counts
}

func (c *fakeConn) events(t *testing.T) []dto.EventPayload {
	t.Helper()
	var out []dto.EventPayload
	for _, m := range c.messages(t) {
		if m.Type != dto.RealtimeEvent {
			continue
		}
		var p dto.EventPayload
		require.NoError(t, m.DecodePayload(&p))
		out = append(out, p)
	}
	return out
}

func (c *fakeConn) frameCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

var errBadToken = errors.New("bad token")

type fakeValidator struct {
	tokens map[string]auth.Identity
}

func (v *fakeValidator) Validate(ctx context.Context, credential string) (*auth.Identity, error) {
	if credential == "slow" {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	id, ok := v.tokens[credential]
	if !ok {
		return nil, errBadToken
	}
	return &id, nil
}

func newFakeValidator() *fakeValidator {
	return &fakeValidator{tokens: map[string]auth.Identity{
		"tok-alice": {UserID: 1, Username: "alice", Role: "admin"},
		"tok-bob":   {UserID: 2, Username: "bob", Role: "admin"},
		"tok-carol": {UserID: 3, Username: "carol", Role: "admin"},
	}}
}

type countingRecorder struct {
	mu         sync.Mutex
	online     int
	joins      map[string]int
	events     map[string]int
	deliveries map[string]int
	relayed    map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{
		joins:      map[string]int{},
		events:     map[string]int{},
		deliveries: map[string]int{},
		relayed:    map[string]int{},
	}
}

func (r *countingRecorder) SetOnline(n int) { r.mu.Lock(); r.online = n; r.mu.Unlock() }
func (r *countingRecorder) JoinResult(s string) {
	r.mu.Lock()
	r.joins[s]++
	r.mu.Unlock()
}
func (r *countingRecorder) EventPublished(s string) {
	r.mu.Lock()
	r.events[s]++
	r.mu.Unlock()
}
func (r *countingRecorder) Delivery(s string) {
	r.mu.Lock()
	r.deliveries[s]++
	r.mu.Unlock()
}
func (r *countingRecorder) Relayed(s string) {
	r.mu.Lock()
	r.relayed[s]++
	r.mu.Unlock()
}

func (r *countingRecorder) relayedCount(direction string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.relayed[direction]
}
