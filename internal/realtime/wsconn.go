package realtime

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var (
	// ErrSendQueueFull is returned when a slow client has fallen too far behind; the connection is closed
	ErrSendQueueFull = errors.New("send queue full")
	// ErrConnClosed is returned when sending on a closed connection
	ErrConnClosed = errors.New("connection closed")
)

const maxFrameSize = 64 << 10

// WSOptions tunes a websocket connection
type WSOptions struct {
	PingInterval time.Duration
	WriteTimeout time.Duration
	QueueSize    int
}

func (o *WSOptions) setDefaults() {
	if o.PingInterval <= 0 {
		o.PingInterval = 30 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 64
	}
}

// WSConn adapts a gorilla websocket to Conn. All writes go through one
// writer goroutine fed by a bounded queue, so Send never blocks.
type WSConn struct {
	logger *zap.Logger
	conn   *websocket.Conn
	id     string
	opts   WSOptions

	send   chan []byte
	done   chan struct{}
	exited chan struct{}

	closeOnce   sync.Once
	closeCode   int
	closeReason string
}

var _ Conn = (*WSConn)(nil)

func NewWSConn(logger *zap.Logger, conn *websocket.Conn, opts WSOptions) *WSConn {
	opts.setDefaults()
	c := &WSConn{
		conn:   conn,
		id:     uuid.NewString(),
		opts:   opts,
		send:   make(chan []byte, opts.QueueSize),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	c.logger = logger.Named("realtime.conn").With(zap.String("connId", c.id))

	conn.SetReadLimit(maxFrameSize)
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.pongWait()))
	})
	go c.writePump()
	return c
}

func (c *WSConn) ID() string { return c.id }

func (c *WSConn) RemoteAddr() string { return c.conn.RemoteAddr().String() }

// Send implements Conn.Send
func (c *WSConn) Send(frame []byte) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}
	select {
	case c.send <- frame:
		return nil
	case <-c.done:
		return ErrConnClosed
	default:
		c.logger.Warn("send queue full, closing slow client", zap.Int("queueSize", c.opts.QueueSize))
		c.shutdown(websocket.ClosePolicyViolation, "too slow")
		return ErrSendQueueFull
	}
}

// Close flushes queued frames, sends a close frame with code and reason and
// closes the socket. Only the first call has an effect.
func (c *WSConn) Close(code int, reason string) error {
	c.shutdown(code, reason)
	return nil
}

// Done is closed once the connection starts shutting down
func (c *WSConn) Done() <-chan struct{} { return c.done }

// Wait blocks until the writer has exited and the socket is closed
func (c *WSConn) Wait() { <-c.exited }

// ReadMessage reads the next data frame, failing if none arrives within timeout
func (c *WSConn) ReadMessage(timeout time.Duration) ([]byte, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}
	_, data, err := c.conn.ReadMessage()
	return data, err
}

// ReadTimeout is how long an idle joined client may stay silent
func (c *WSConn) ReadTimeout() time.Duration { return c.pongWait() }

func (c *WSConn) pongWait() time.Duration {
	return 2 * c.opts.PingInterval
}

func (c *WSConn) shutdown(code int, reason string) {
	c.closeOnce.Do(func() {
		c.closeCode = code
		c.closeReason = reason
		close(c.done)
	})
}

func (c *WSConn) writePump() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
		close(c.exited)
	}()

	for {
		select {
		case frame := <-c.send:
			if err := c.write(websocket.TextMessage, frame); err != nil {
				c.logger.Debug("write failed", zap.Error(err))
				c.shutdown(websocket.CloseAbnormalClosure, "")
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("ping failed", zap.Error(err))
				c.shutdown(websocket.CloseAbnormalClosure, "")
				return
			}
		case <-c.done:
			c.flush()
			return
		}
	}
}

// flush writes what is still queued, then the close frame. A client closed
// for being slow gets only the close frame.
func (c *WSConn) flush() {
	switch c.closeCode {
	case websocket.CloseAbnormalClosure:
		return
	case websocket.ClosePolicyViolation:
	default:
	drain:
		for {
			select {
			case frame := <-c.send:
				if err := c.write(websocket.TextMessage, frame); err != nil {
					return
				}
			default:
				break drain
			}
		}
	}
	msg := websocket.FormatCloseMessage(c.closeCode, c.closeReason)
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.opts.WriteTimeout))
}

func (c *WSConn) write(messageType int, data []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, data)
}
