package client

import (
	"sync"
	"time"

	"github.com/amoylab/liveadmin/internal/common/dto"
	"github.com/google/uuid"
)

const (
	// BufferCapacity is how many notifications are kept; older ones are evicted silently
	BufferCapacity = 50
	// VisibleCount is how many notifications a display shows at once
	VisibleCount = 10
)

// Notification is a received event as held by the client
type Notification struct {
	ID         string
	Event      dto.EventPayload
	ReceivedAt time.Time
}

// Buffer keeps the most recent notifications, newest first
type Buffer struct {
	mu    sync.Mutex
	items []Notification
	now   func() time.Time
}

func NewBuffer() *Buffer {
	return &Buffer{
		items: make([]Notification, 0, BufferCapacity),
		now:   time.Now,
	}
}

// Ingest stores ev as the newest notification and returns it
func (b *Buffer) Ingest(ev dto.EventPayload) Notification {
	n := Notification{ID: uuid.NewString(), Event: ev, ReceivedAt: b.now()}

	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.items) == BufferCapacity {
		b.items = b.items[:BufferCapacity-1]
	}
	b.items = append(b.items, Notification{})
	copy(b.items[1:], b.items)
	b.items[0] = n
	return n
}

// Dismiss removes one notification and reports whether it was present
func (b *Buffer) Dismiss(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, n := range b.items {
		if n.ID == id {
			b.items = append(b.items[:i], b.items[i+1:]...)
			return true
		}
	}
	return false
}

func (b *Buffer) DismissAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = b.items[:0]
}

// Items returns a copy of all notifications, newest first
func (b *Buffer) Items() []Notification {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Notification(nil), b.items...)
}

// Visible returns the newest VisibleCount notifications
func (b *Buffer) Visible() []Notification {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := min(len(b.items), VisibleCount)
	return append([]Notification(nil), b.items[:n]...)
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}
