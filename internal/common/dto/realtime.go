package dto

import (
	"encoding/json"
	"fmt"
	"time"
)

// RealtimeMessageType is the envelope type of a frame on the notification channel
type RealtimeMessageType string

const (
	RealtimeJoin      RealtimeMessageType = "join"
	RealtimePresence  RealtimeMessageType = "presence"
	RealtimeEvent     RealtimeMessageType = "event"
	RealtimeJoinError RealtimeMessageType = "join_error"
)

// Close codes sent by the server when a join is rejected
const (
	CloseInvalidCredential  = 4001
	CloseMalformedHandshake = 4002
)

// EventKind is the closed set of business events relayed to admins
type EventKind string

const (
	EventKindContact EventKind = "contact"
	EventKindOffer   EventKind = "offer"
	EventKindContent EventKind = "content"
)

// ParseEventKind validates a kind received from the wire or a producer
func ParseEventKind(s string) (EventKind, error) {
	switch k := EventKind(s); k {
	case EventKindContact, EventKindOffer, EventKindContent:
		return k, nil
	}
	return "", fmt.Errorf("unknown event kind %q", s)
}

// RealtimeMessage is the envelope of every frame
type RealtimeMessage struct {
	Type    RealtimeMessageType `json:"type"`
	Payload json.RawMessage     `json:"payload,omitempty"`
}

type JoinPayload struct {
	Credential string `json:"credential"`
}

type PresencePayload struct {
	OnlineCount int `json:"onlineCount"`
}

type EventPayload struct {
	Kind      EventKind `json:"kind"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

type JoinErrorPayload struct {
	Reason string `json:"reason"`
}

// EncodeRealtime marshals a typed payload into a complete frame
func EncodeRealtime(t RealtimeMessageType, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	return json.Marshal(RealtimeMessage{Type: t, Payload: raw})
}

// DecodePayload unmarshals the envelope payload into v
func (m *RealtimeMessage) DecodePayload(v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("empty %s payload", m.Type)
	}
	return json.Unmarshal(m.Payload, v)
}
