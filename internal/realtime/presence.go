package realtime

import (
	"github.com/amoylab/liveadmin/internal/common/dto"
	"go.uber.org/zap"
)

// PresenceTracker tells every joined admin how many admins are online
type PresenceTracker struct {
	logger   *zap.Logger
	registry *Registry
	recorder Recorder
}

func NewPresenceTracker(logger *zap.Logger, registry *Registry, recorder Recorder) *PresenceTracker {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &PresenceTracker{
		logger:   logger.Named("realtime.presence"),
		registry: registry,
		recorder: recorder,
	}
}

// OnRegistryChange sends the current count to every session in a registry
// snapshot and returns the count sent.
func (p *PresenceTracker) OnRegistryChange() int {
	snapshot := p.registry.Snapshot()
	count := len(snapshot)
	p.recorder.SetOnline(count)

	frame, err := dto.EncodeRealtime(dto.RealtimePresence, dto.PresencePayload{OnlineCount: count})
	if err != nil {
		p.logger.Error("failed to encode presence", zap.Error(err))
		return count
	}
	for _, s := range snapshot {
		deliver(p.logger, p.recorder, s, frame)
	}
	p.logger.Debug("presence broadcast", zap.Int("onlineCount", count))
	return count
}

// deliver makes one non-blocking delivery attempt; a failure stays local to the session
func deliver(logger *zap.Logger, recorder Recorder, s *Session, frame []byte) bool {
	if err := s.Send(frame); err != nil {
		recorder.Delivery(DeliveryDropped)
		logger.Warn("delivery failed",
			zap.String("connId", s.ConnID),
			zap.String("username", s.Identity.Username),
			zap.Error(err))
		return false
	}
	recorder.Delivery(DeliverySent)
	return true
}
