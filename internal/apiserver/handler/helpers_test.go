package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/amoylab/liveadmin/internal/apiserver/database"
	"github.com/amoylab/liveadmin/internal/apiserver/middleware"
	"github.com/amoylab/liveadmin/internal/auth"
	jsvc "github.com/amoylab/liveadmin/internal/auth/jwt"
	"github.com/amoylab/liveadmin/internal/common/config"
	"github.com/amoylab/liveadmin/internal/common/dto"
	"github.com/amoylab/liveadmin/internal/realtime"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const testPassword = "secret"

type capturePublisher struct {
	next   Publisher
	mu     sync.Mutex
	events []realtime.DomainEvent
}

func (p *capturePublisher) Publish(ctx context.Context, kind dto.EventKind, title, message string) (realtime.DomainEvent, error) {
	ev, err := p.next.Publish(ctx, kind, title, message)
	if err == nil {
		p.mu.Lock()
		p.events = append(p.events, ev)
		p.mu.Unlock()
	}
	return ev, err
}

func (p *capturePublisher) published() []realtime.DomainEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]realtime.DomainEvent(nil), p.events...)
}

type testEnv struct {
	db        database.Database
	jwt       *jsvc.Service
	gateway   *realtime.Gateway
	publisher *capturePublisher
	router    *gin.Engine
	users     map[string]*database.User
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	lg := zap.NewNop()

	db, err := database.NewDatabase(&config.DatabaseConfig{Type: "sqlite", DBName: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	hashed, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)
	users := map[string]*database.User{
		"alice": {Username: "alice", Password: string(hashed), Role: database.RoleAdmin, IsActive: true},
		"bob":   {Username: "bob", Password: string(hashed), Role: database.RoleAdmin, IsActive: true},
		"ed":    {Username: "ed", Password: string(hashed), Role: database.RoleEditor, IsActive: true},
	}
	for _, u := range users {
		require.NoError(t, db.CreateUser(context.Background(), u))
	}
	dan := &database.User{Username: "dan", Password: string(hashed), Role: database.RoleAdmin, IsActive: true}
	require.NoError(t, db.CreateUser(context.Background(), dan))
	dan.IsActive = false
	require.NoError(t, db.UpdateUser(context.Background(), dan))
	users["dan"] = dan

	jwtSvc, err := jsvc.NewService(jsvc.Config{SecretKey: "this-is-a-very-long-secret-key-for-testing", Duration: time.Hour})
	require.NoError(t, err)

	gateway := realtime.NewGateway(lg, auth.NewJWTValidator(lg, jwtSvc, db), realtime.WithHandshakeTimeout(time.Second))
	publisher := &capturePublisher{next: realtime.NewBroadcaster(lg, gateway.Registry())}
	restValidator := auth.NewJWTValidator(lg, jwtSvc, db, string(database.RoleAdmin), string(database.RoleEditor))

	authHandler := NewAuthHandler(db, jwtSvc, lg)
	resources := NewResourceHandler(db, publisher, lg)
	ws := NewWebSocketHandler(lg, gateway, config.RealtimeConfig{
		HandshakeTimeout: 300 * time.Millisecond,
		PingInterval:     time.Second,
		WriteTimeout:     time.Second,
		SendQueueSize:    16,
	})

	r := gin.New()
	r.POST("/api/auth/login", authHandler.Login)
	r.POST("/api/contacts", resources.CreateContact)
	r.GET("/ws/notifications", ws.Serve)
	api := r.Group("/api", middleware.JWTAuthMiddleware(restValidator))
	api.GET("/auth/me", authHandler.Me)
	api.POST("/offers", resources.CreateOffer)
	api.PUT("/contents/:key", resources.UpsertContent)
	api.GET("/realtime/presence", middleware.RequireRole(string(database.RoleAdmin)), NewPresenceHandler(gateway.Registry()).Get)

	return &testEnv{db: db, jwt: jwtSvc, gateway: gateway, publisher: publisher, router: r, users: users}
}

func (e *testEnv) token(t *testing.T, username string) string {
	t.Helper()
	u := e.users[username]
	require.NotNil(t, u, "unknown test user %s", username)
	tok, err := e.jwt.GenerateToken(u.ID, u.Username, string(u.Role))
	require.NoError(t, err)
	return tok
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) serve(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(e.router)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/notifications"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func sendJoin(t *testing.T, conn *websocket.Conn, credential string) {
	t.Helper()
	frame, err := dto.EncodeRealtime(dto.RealtimeJoin, dto.JoinPayload{Credential: credential})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))
}

func readFrame(t *testing.T, conn *websocket.Conn) dto.RealtimeMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg dto.RealtimeMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func readPresence(t *testing.T, conn *websocket.Conn) int {
	t.Helper()
	msg := readFrame(t, conn)
	require.Equal(t, dto.RealtimePresence, msg.Type)
	var p dto.PresencePayload
	require.NoError(t, msg.DecodePayload(&p))
	return p.OnlineCount
}

func readEvent(t *testing.T, conn *websocket.Conn) dto.EventPayload {
	t.Helper()
	msg := readFrame(t, conn)
	require.Equal(t, dto.RealtimeEvent, msg.Type)
	var p dto.EventPayload
	require.NoError(t, msg.DecodePayload(&p))
	return p
}

// readRejection reads the join_error frame and the close that follows it
func readRejection(t *testing.T, conn *websocket.Conn) (string, int) {
	t.Helper()
	msg := readFrame(t, conn)
	require.Equal(t, dto.RealtimeJoinError, msg.Type)
	var p dto.JoinErrorPayload
	require.NoError(t, msg.DecodePayload(&p))

	_, _, err := conn.ReadMessage()
	var ce *websocket.CloseError
	require.ErrorAs(t, err, &ce)
	return p.Reason, ce.Code
}
