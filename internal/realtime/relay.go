package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/amoylab/liveadmin/internal/common/cnst"
	"github.com/amoylab/liveadmin/internal/common/config"
	"github.com/amoylab/liveadmin/internal/common/dto"
	"github.com/amoylab/liveadmin/pkg/trace"
	"github.com/amoylab/liveadmin/pkg/utils"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	relayQueueSize  = 256
	relayReadBlock  = time.Second
	relayRetryDelay = time.Second
)

// Deliverer fans an event out to the sessions of this instance
type Deliverer interface {
	Deliver(ev DomainEvent) int
}

// RedisRelay shares published events between server instances through a
// Redis stream. Each instance reads the stream independently with XREAD and
// skips entries it wrote itself.
type RedisRelay struct {
	logger   *zap.Logger
	client   redis.UniversalClient
	stream   string
	maxLen   int64
	origin   string
	recorder Recorder
	out      chan DomainEvent
}

var _ Forwarder = (*RedisRelay)(nil)

// NewRedisRelay connects to Redis and returns a relay with a fresh origin id
func NewRedisRelay(logger *zap.Logger, cfg config.RedisRelayConfig, recorder Recorder) (*RedisRelay, error) {
	addrs := utils.SplitByMultipleDelimiters(cfg.Addr, ";", ",")
	opts := &redis.UniversalOptions{
		Addrs:    addrs,
		Username: cfg.Username,
		Password: cfg.Password,
	}
	if cfg.ClusterType == cnst.RedisClusterTypeSentinel {
		opts.MasterName = cfg.MasterName
	}
	if cfg.ClusterType != cnst.RedisClusterTypeCluster {
		// can not set db in cluster mode
		opts.DB = cfg.DB
	}
	client := redis.NewUniversalClient(opts)

	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}

	r := &RedisRelay{
		client:   client,
		stream:   cfg.Stream,
		maxLen:   cfg.MaxLen,
		origin:   uuid.NewString(),
		recorder: recorder,
		out:      make(chan DomainEvent, relayQueueSize),
	}
	r.logger = logger.Named("realtime.relay").With(zap.String("origin", r.origin))
	return r, nil
}

// Origin is the id stamped on entries written by this instance
func (r *RedisRelay) Origin() string { return r.origin }

// Forward implements Forwarder.Forward
func (r *RedisRelay) Forward(ev DomainEvent) {
	select {
	case r.out <- ev:
	default:
		r.logger.Warn("relay queue full, event not forwarded", zap.String("kind", string(ev.Kind)))
	}
}

// Start resolves the stream position, then writes forwarded events and
// delivers remote ones to sink until ctx is done.
func (r *RedisRelay) Start(ctx context.Context, sink Deliverer) error {
	lastID, err := r.tailID(ctx)
	if err != nil {
		return err
	}
	go r.writeLoop(ctx)
	go r.readLoop(ctx, sink, lastID)
	return nil
}

func (r *RedisRelay) Close() error {
	return r.client.Close()
}

// tailID returns the id of the newest entry, so only entries added after
// Start are read
func (r *RedisRelay) tailID(ctx context.Context) (string, error) {
	msgs, err := r.client.XRevRangeN(ctx, r.stream, "+", "-", 1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("failed to read stream tail: %w", err)
	}
	if len(msgs) == 0 {
		return "0-0", nil
	}
	return msgs[0].ID, nil
}

func (r *RedisRelay) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-r.out:
			if err := r.write(ctx, ev); err != nil {
				r.logger.Error("failed to forward event", zap.Error(err))
				continue
			}
			r.recorder.Relayed("out")
		}
	}
}

func (r *RedisRelay) write(ctx context.Context, ev DomainEvent) error {
	span := trace.Tracer(cnst.TraceRealtime).Start(ctx, cnst.SpanRelay).
		WithAttrs(attribute.String("event.kind", string(ev.Kind)))
	defer span.End()

	data, err := json.Marshal(ev.Payload())
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	_, err = r.client.XAdd(span.Ctx, &redis.XAddArgs{
		Stream: r.stream,
		MaxLen: r.maxLen,
		Approx: false,
		Values: map[string]interface{}{
			"origin": r.origin,
			"event":  string(data),
		},
	}).Result()
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to add message to stream: %w", err)
	}
	return nil
}

func (r *RedisRelay) readLoop(ctx context.Context, sink Deliverer, lastID string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		streams, err := r.client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{r.stream, lastID},
			Count:   16,
			Block:   relayReadBlock,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			r.logger.Error("failed to read from stream", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(relayRetryDelay):
			}
			continue
		}

		for _, stream := range streams {
			for _, message := range stream.Messages {
				lastID = message.ID
				ev, ok := r.decode(message)
				if !ok {
					continue
				}
				r.recorder.Relayed("in")
				sink.Deliver(ev)
			}
		}
	}
}

// decode returns the event of a stream entry written by another instance
func (r *RedisRelay) decode(message redis.XMessage) (DomainEvent, bool) {
	if origin, _ := message.Values["origin"].(string); origin == r.origin {
		return DomainEvent{}, false
	}
	raw, _ := message.Values["event"].(string)
	var payload dto.EventPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		r.logger.Error("failed to unmarshal event", zap.String("messageID", message.ID), zap.Error(err))
		return DomainEvent{}, false
	}
	ev, err := EventFromPayload(payload)
	if err != nil {
		r.logger.Warn("dropping relayed event", zap.String("messageID", message.ID), zap.Error(err))
		return DomainEvent{}, false
	}
	return ev, true
}
