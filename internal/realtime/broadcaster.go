package realtime

import (
	"context"
	"time"

	"github.com/amoylab/liveadmin/internal/common/cnst"
	"github.com/amoylab/liveadmin/internal/common/dto"
	"github.com/amoylab/liveadmin/pkg/trace"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Forwarder hands a locally published event to other server instances.
// Forward must not block.
type Forwarder interface {
	Forward(ev DomainEvent)
}

// Broadcaster fans business events out to every joined admin
type Broadcaster struct {
	logger   *zap.Logger
	registry *Registry
	recorder Recorder
	relay    Forwarder
	now      func() time.Time
}

type BroadcasterOption func(*Broadcaster)

// WithForwarder also sends every published event through f
func WithForwarder(f Forwarder) BroadcasterOption {
	return func(b *Broadcaster) { b.relay = f }
}

// WithBroadcastRecorder reports publishes and deliveries to r
func WithBroadcastRecorder(r Recorder) BroadcasterOption {
	return func(b *Broadcaster) {
		if r != nil {
			b.recorder = r
		}
	}
}

func NewBroadcaster(logger *zap.Logger, registry *Registry, opts ...BroadcasterOption) *Broadcaster {
	b := &Broadcaster{
		logger:   logger.Named("realtime.broadcaster"),
		registry: registry,
		recorder: nopRecorder{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish stamps and fans out an event. Only an unknown kind is reported;
// delivery failures never reach the producer.
func (b *Broadcaster) Publish(ctx context.Context, kind dto.EventKind, title, message string) (DomainEvent, error) {
	span := trace.Tracer(cnst.TraceRealtime).Start(ctx, cnst.SpanPublish).
		WithAttrs(attribute.String("event.kind", string(kind)))
	defer span.End()

	ev, err := EventFromPayload(dto.EventPayload{
		Kind:      kind,
		Title:     title,
		Message:   message,
		CreatedAt: b.now().UTC(),
	})
	if err != nil {
		span.RecordError(err)
		return DomainEvent{}, err
	}

	b.recorder.EventPublished(string(ev.Kind))
	sent := b.Deliver(ev)
	span.WithAttrs(attribute.Int("deliveries", sent))

	if b.relay != nil {
		b.relay.Forward(ev)
	}
	return ev, nil
}

// Deliver sends ev to the sessions joined on this instance and returns how
// many deliveries were accepted.
func (b *Broadcaster) Deliver(ev DomainEvent) int {
	frame, err := dto.EncodeRealtime(dto.RealtimeEvent, ev.Payload())
	if err != nil {
		b.logger.Error("failed to encode event", zap.Error(err))
		return 0
	}

	snapshot := b.registry.Snapshot()
	sent := 0
	for _, s := range snapshot {
		if deliver(b.logger, b.recorder, s, frame) {
			sent++
		}
	}
	b.logger.Debug("event delivered",
		zap.String("kind", string(ev.Kind)),
		zap.Int("sessions", len(snapshot)),
		zap.Int("sent", sent))
	return sent
}
