package realtime

import (
	"errors"
	"time"

	"github.com/amoylab/liveadmin/internal/common/dto"
)

// ErrUnknownEventKind is the only error a producer can get from Publish
var ErrUnknownEventKind = errors.New("unknown event kind")

// DomainEvent is an immutable business event fanned out to admins
type DomainEvent struct {
	Kind      dto.EventKind
	Title     string
	Message   string
	CreatedAt time.Time
}

// Payload returns the wire form of the event
func (e DomainEvent) Payload() dto.EventPayload {
	return dto.EventPayload{
		Kind:      e.Kind,
		Title:     e.Title,
		Message:   e.Message,
		CreatedAt: e.CreatedAt,
	}
}

// EventFromPayload converts a wire payload back to a DomainEvent, rejecting unknown kinds
func EventFromPayload(p dto.EventPayload) (DomainEvent, error) {
	kind, err := dto.ParseEventKind(string(p.Kind))
	if err != nil {
		return DomainEvent{}, errors.Join(ErrUnknownEventKind, err)
	}
	return DomainEvent{Kind: kind, Title: p.Title, Message: p.Message, CreatedAt: p.CreatedAt}, nil
}
