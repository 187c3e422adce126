package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/amoylab/liveadmin/internal/common/config"
	"github.com/amoylab/liveadmin/internal/common/dto"
	"github.com/amoylab/liveadmin/internal/realtime"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WebSocketHandler runs the notification channel endpoint: upgrade, join
// handshake, then a read loop that keeps the session alive until the
// client goes away.
type WebSocketHandler struct {
	logger           *zap.Logger
	gateway          *realtime.Gateway
	upgrader         websocket.Upgrader
	opts             realtime.WSOptions
	handshakeTimeout time.Duration
	allowedOrigins   map[string]bool
}

// NewWebSocketHandler creates the endpoint handler
func NewWebSocketHandler(logger *zap.Logger, gateway *realtime.Gateway, cfg config.RealtimeConfig) *WebSocketHandler {
	h := &WebSocketHandler{
		logger:  logger.Named("handler.websocket"),
		gateway: gateway,
		opts: realtime.WSOptions{
			PingInterval: cfg.PingInterval,
			WriteTimeout: cfg.WriteTimeout,
			QueueSize:    cfg.SendQueueSize,
		},
		handshakeTimeout: cfg.HandshakeTimeout,
		allowedOrigins:   make(map[string]bool),
	}
	if h.handshakeTimeout <= 0 {
		h.handshakeTimeout = 10 * time.Second
	}
	for _, origin := range cfg.AllowedOrigins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			h.allowedOrigins[trimmed] = true
		}
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin:      h.checkOrigin,
		HandshakeTimeout: h.handshakeTimeout,
	}
	return h
}

// Serve handles GET /ws/notifications
func (h *WebSocketHandler) Serve(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("failed to upgrade WebSocket connection", zap.Error(err))
		return
	}
	ws := realtime.NewWSConn(h.logger, conn, h.opts)
	defer ws.Wait()

	logger := h.logger.With(zap.String("connId", ws.ID()), zap.String("remote", ws.RemoteAddr()))

	session, err := h.handshake(c.Request.Context(), ws)
	if err != nil {
		code, reason := rejection(err)
		logger.Info("join rejected", zap.Int("code", code), zap.Error(err))
		if frame, encErr := dto.EncodeRealtime(dto.RealtimeJoinError, dto.JoinErrorPayload{Reason: reason}); encErr == nil {
			_ = ws.Send(frame)
		}
		_ = ws.Close(code, reason)
		return
	}

	logger.Debug("session established", zap.String("username", session.Identity.Username))
	h.readLoop(logger, ws)
	h.gateway.Leave(ws.ID())
	_ = ws.Close(websocket.CloseNormalClosure, "")
}

// handshake waits for the join frame and hands it to the gateway
func (h *WebSocketHandler) handshake(ctx context.Context, ws *realtime.WSConn) (*realtime.Session, error) {
	data, err := ws.ReadMessage(h.handshakeTimeout)
	if err != nil {
		return nil, errors.Join(realtime.ErrMalformedHandshake, err)
	}

	var msg dto.RealtimeMessage
	if err := json.Unmarshal(data, &msg); err != nil || msg.Type != dto.RealtimeJoin {
		return nil, realtime.ErrMalformedHandshake
	}
	var join dto.JoinPayload
	if err := msg.DecodePayload(&join); err != nil {
		return nil, realtime.ErrMalformedHandshake
	}
	return h.gateway.Join(ctx, ws, join.Credential)
}

// readLoop consumes client frames until the connection fails. Joined
// clients have nothing more to say; extra frames are ignored.
func (h *WebSocketHandler) readLoop(logger *zap.Logger, ws *realtime.WSConn) {
	for {
		if _, err := ws.ReadMessage(ws.ReadTimeout()); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				logger.Debug("WebSocket connection error", zap.Error(err))
			}
			return
		}
	}
}

// rejection maps a failed join to its close code and the reason sent to the client
func rejection(err error) (int, string) {
	switch {
	case isTimeout(err):
		return dto.CloseMalformedHandshake, "handshake timeout"
	case errors.Is(err, realtime.ErrInvalidCredential):
		return dto.CloseInvalidCredential, "invalid credential"
	default:
		return dto.CloseMalformedHandshake, "malformed handshake"
	}
}

// isTimeout reports a handshake deadline hit. gorilla hides the net error
// chain of read timeouts, so net.Error.Timeout is checked as well.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if len(h.allowedOrigins) > 0 {
		return h.allowedOrigins[origin]
	}

	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}
	if parsed.Host == r.Host {
		return true
	}
	switch parsed.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}
