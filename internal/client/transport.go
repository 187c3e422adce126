package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/amoylab/liveadmin/internal/common/dto"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// NotificationsPath is the server endpoint of the notification channel
const NotificationsPath = "/ws/notifications"

var (
	// ErrJoinRejected is returned when the server refuses the join handshake
	ErrJoinRejected = errors.New("join rejected")
	// ErrUnexpectedFrame is returned when the server answers a join with something other than presence
	ErrUnexpectedFrame = errors.New("unexpected frame")
)

// RejectedError carries the server's reason for refusing a join
type RejectedError struct {
	Code   int
	Reason string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("join rejected (%d): %s", e.Code, e.Reason)
}

func (e *RejectedError) Unwrap() error { return ErrJoinRejected }

// WSTransport connects to the server over gorilla/websocket
type WSTransport struct {
	logger       *zap.Logger
	url          string
	dialer       *websocket.Dialer
	joinTimeout  time.Duration
	writeTimeout time.Duration
	pingInterval time.Duration
}

var _ Transport = (*WSTransport)(nil)

// NewWSTransport derives the channel URL from the server base URL, mapping
// http to ws and https to wss
func NewWSTransport(logger *zap.Logger, serverURL string) (*WSTransport, error) {
	u, err := NotificationsURL(serverURL)
	if err != nil {
		return nil, err
	}
	return &WSTransport{
		logger:       logger.Named("client.transport"),
		url:          u,
		dialer:       &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		joinTimeout:  10 * time.Second,
		writeTimeout: 10 * time.Second,
		pingInterval: 30 * time.Second,
	}, nil
}

// NotificationsURL returns the websocket URL of the channel for a base URL
func NotificationsURL(serverURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(serverURL))
	if err != nil {
		return "", fmt.Errorf("invalid server url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("invalid server url %q: unsupported scheme", serverURL)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid server url %q: missing host", serverURL)
	}
	u.Path = strings.TrimRight(u.Path, "/") + NotificationsPath
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

// Connect implements Transport.Connect
func (t *WSTransport) Connect(ctx context.Context, credential string, l Listener) (Link, error) {
	conn, _, err := t.dialer.DialContext(ctx, t.url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", t.url, err)
	}
	// closing the socket aborts a handshake blocked on I/O when ctx ends
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })

	presence, err := t.join(conn, credential)
	if !stop() || err != nil {
		_ = conn.Close()
		if err == nil {
			err = ctx.Err()
		}
		return nil, err
	}

	l.OnPresence(presence)
	link := newWSLink(t.logger, conn, l, t.writeTimeout, t.pingInterval)
	return link, nil
}

// join sends the credential and waits for the first presence frame, which
// acknowledges the join
func (t *WSTransport) join(conn *websocket.Conn, credential string) (int, error) {
	frame, err := dto.EncodeRealtime(dto.RealtimeJoin, dto.JoinPayload{Credential: credential})
	if err != nil {
		return 0, err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return 0, fmt.Errorf("send join: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(t.joinTimeout))
	msg, err := readMessage(conn)
	if err != nil {
		return 0, joinReadError(err)
	}
	switch msg.Type {
	case dto.RealtimePresence:
		var p dto.PresencePayload
		if err := msg.DecodePayload(&p); err != nil {
			return 0, fmt.Errorf("%w: %w", ErrUnexpectedFrame, err)
		}
		return p.OnlineCount, nil
	case dto.RealtimeJoinError:
		var p dto.JoinErrorPayload
		_ = msg.DecodePayload(&p)
		rejected := &RejectedError{Reason: p.Reason}
		// the close frame that follows carries the code
		if _, err := readMessage(conn); err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				rejected.Code = ce.Code
			}
		}
		return 0, rejected
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnexpectedFrame, msg.Type)
	}
}

func joinReadError(err error) error {
	var ce *websocket.CloseError
	if errors.As(err, &ce) && (ce.Code == dto.CloseInvalidCredential || ce.Code == dto.CloseMalformedHandshake) {
		return &RejectedError{Code: ce.Code, Reason: ce.Text}
	}
	return fmt.Errorf("await join ack: %w", err)
}

func readMessage(conn *websocket.Conn) (*dto.RealtimeMessage, error) {
	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	var msg dto.RealtimeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnexpectedFrame, err)
	}
	return &msg, nil
}

// wsLink reads frames until the socket fails and keeps it alive with pings
type wsLink struct {
	logger       *zap.Logger
	conn         *websocket.Conn
	listener     Listener
	writeTimeout time.Duration

	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
	err       error
}

func newWSLink(logger *zap.Logger, conn *websocket.Conn, l Listener, writeTimeout, pingInterval time.Duration) *wsLink {
	link := &wsLink{
		logger:       logger,
		conn:         conn,
		listener:     l,
		writeTimeout: writeTimeout,
		done:         make(chan struct{}),
	}
	pongWait := 2 * pingInterval
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	// the server pings too; answering refreshes our deadline as well
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		link.writeMu.Lock()
		defer link.writeMu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeTimeout))
	})
	go link.readLoop()
	go link.pingLoop(pingInterval)
	return link
}

func (l *wsLink) Done() <-chan struct{} { return l.done }

func (l *wsLink) Err() error {
	select {
	case <-l.done:
		return l.err
	default:
		return nil
	}
}

// Close sends a normal close frame and releases the socket
func (l *wsLink) Close() error {
	l.writeMu.Lock()
	_ = l.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(l.writeTimeout))
	l.writeMu.Unlock()
	l.finish(nil)
	return nil
}

func (l *wsLink) finish(err error) {
	l.closeOnce.Do(func() {
		l.err = err
		_ = l.conn.Close()
		close(l.done)
	})
}

func (l *wsLink) readLoop() {
	for {
		msg, err := readMessage(l.conn)
		if err != nil {
			if errors.Is(err, ErrUnexpectedFrame) {
				l.logger.Debug("ignoring frame", zap.Error(err))
				continue
			}
			l.finish(err)
			return
		}
		switch msg.Type {
		case dto.RealtimePresence:
			var p dto.PresencePayload
			if err := msg.DecodePayload(&p); err == nil {
				l.listener.OnPresence(p.OnlineCount)
			}
		case dto.RealtimeEvent:
			var p dto.EventPayload
			if err := msg.DecodePayload(&p); err == nil {
				l.listener.OnEvent(p)
			}
		default:
			l.logger.Debug("ignoring frame", zap.String("type", string(msg.Type)))
		}
	}
}

func (l *wsLink) pingLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			l.writeMu.Lock()
			err := l.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(l.writeTimeout))
			l.writeMu.Unlock()
			if err != nil {
				l.finish(err)
				return
			}
		}
	}
}
