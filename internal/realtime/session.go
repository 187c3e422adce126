package realtime

import (
	"time"

	"github.com/amoylab/liveadmin/internal/auth"
)

// Conn is the server side of one client connection. Send must not block: a
// frame is either queued for the connection's writer or rejected.
type Conn interface {
	ID() string
	Send(frame []byte) error
	Close(code int, reason string) error
}

// Session is an authenticated admin connection. It exists only while its
// connection is open and its join was accepted.
type Session struct {
	ConnID        string
	Identity      auth.Identity
	EstablishedAt time.Time

	conn Conn
}

// Send queues a frame on the session's connection
func (s *Session) Send(frame []byte) error {
	return s.conn.Send(frame)
}
