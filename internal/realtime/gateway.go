package realtime

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/amoylab/liveadmin/internal/auth"
	"github.com/amoylab/liveadmin/internal/common/cnst"
	"github.com/amoylab/liveadmin/pkg/trace"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var (
	// ErrMalformedHandshake is returned for a join without a usable credential
	ErrMalformedHandshake = errors.New("malformed handshake")
	// ErrInvalidCredential is returned when the validator rejects the credential
	ErrInvalidCredential = errors.New("invalid credential")
	// ErrAlreadyJoined is returned when the connection already has a session
	ErrAlreadyJoined = errors.New("connection already joined")
)

const defaultHandshakeTimeout = 10 * time.Second

// Gateway admits authenticated admins into the registry and removes them on
// disconnect. Every registry change is followed by a presence broadcast;
// mutation and broadcast are serialized so all sessions see counts in order.
type Gateway struct {
	logger    *zap.Logger
	validator auth.TokenValidator
	registry  *Registry
	presence  *PresenceTracker
	recorder  Recorder
	timeout   time.Duration
	now       func() time.Time

	mu sync.Mutex
}

type GatewayOption func(*Gateway)

// WithRecorder reports joins and presence to r
func WithRecorder(r Recorder) GatewayOption {
	return func(g *Gateway) {
		if r != nil {
			g.recorder = r
		}
	}
}

// WithHandshakeTimeout bounds credential validation
func WithHandshakeTimeout(d time.Duration) GatewayOption {
	return func(g *Gateway) {
		if d > 0 {
			g.timeout = d
		}
	}
}

func NewGateway(logger *zap.Logger, validator auth.TokenValidator, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		logger:    logger.Named("realtime.gateway"),
		validator: validator,
		registry:  NewRegistry(),
		recorder:  nopRecorder{},
		timeout:   defaultHandshakeTimeout,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.presence = NewPresenceTracker(logger, g.registry, g.recorder)
	return g
}

// Registry returns the registry owned by the gateway
func (g *Gateway) Registry() *Registry {
	return g.registry
}

// Join validates the credential and registers a session for conn. Rejected
// joins leave the registry untouched and broadcast nothing.
func (g *Gateway) Join(ctx context.Context, conn Conn, credential string) (*Session, error) {
	span := trace.Tracer(cnst.TraceRealtime).Start(ctx, cnst.SpanJoin).
		WithAttrs(attribute.String("conn.id", conn.ID()))
	defer span.End()

	credential = strings.TrimSpace(credential)
	if credential == "" {
		g.recorder.JoinResult(JoinMalformed)
		span.RecordError(ErrMalformedHandshake)
		return nil, ErrMalformedHandshake
	}
	if _, ok := g.registry.Get(conn.ID()); ok {
		return nil, ErrAlreadyJoined
	}

	vctx, cancel := context.WithTimeout(span.Ctx, g.timeout)
	defer cancel()
	identity, err := g.validator.Validate(vctx, credential)
	if err != nil {
		g.recorder.JoinResult(JoinInvalidCredential)
		span.RecordError(err)
		g.logger.Info("join rejected", zap.String("connId", conn.ID()), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrInvalidCredential, err)
	}

	s := &Session{
		ConnID:        conn.ID(),
		Identity:      *identity,
		EstablishedAt: g.now(),
		conn:          conn,
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.registry.insert(s) {
		return nil, ErrAlreadyJoined
	}
	g.recorder.JoinResult(JoinAccepted)
	count := g.presence.OnRegistryChange()
	span.WithAttrs(attribute.String("user.name", identity.Username), attribute.Int("online", count))
	g.logger.Info("admin joined",
		zap.String("connId", s.ConnID),
		zap.String("username", identity.Username),
		zap.Int("onlineCount", count))
	return s, nil
}

// Leave removes the session of connID. It reports false and broadcasts
// nothing when the connection never joined or already left.
func (g *Gateway) Leave(connID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.registry.remove(connID)
	if !ok {
		return false
	}
	count := g.presence.OnRegistryChange()
	g.logger.Info("admin left",
		zap.String("connId", connID),
		zap.String("username", s.Identity.Username),
		zap.Int("onlineCount", count))
	return true
}

// Shutdown closes every joined connection; their read loops then Leave
func (g *Gateway) Shutdown(code int, reason string) {
	for _, s := range g.registry.Snapshot() {
		if err := s.conn.Close(code, reason); err != nil {
			g.logger.Debug("close on shutdown", zap.String("connId", s.ConnID), zap.Error(err))
		}
	}
}
