package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/amoylab/liveadmin/internal/client"
	"github.com/amoylab/liveadmin/internal/common/cnst"
	"github.com/amoylab/liveadmin/internal/common/config"
	"github.com/amoylab/liveadmin/internal/common/dto"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func captureOutput(f func()) string {
	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w
	defer func() { os.Stdout = old }()

	f()
	_ = w.Close()
	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)
	return buf.String()
}

func testConfig(t *testing.T) *config.ServerConfig {
	t.Helper()
	cfg := &config.ServerConfig{
		Database:   config.DatabaseConfig{Type: "sqlite", DBName: filepath.Join(t.TempDir(), "liveadmin.db")},
		JWT:        config.JWTConfig{SecretKey: "this-is-a-very-long-secret-key-for-testing-purposes-only", Duration: time.Hour},
		SuperAdmin: config.SuperAdminConfig{Username: "admin", Password: "admin-password"},
		Realtime: config.RealtimeConfig{
			HandshakeTimeout: time.Second,
			PingInterval:     time.Second,
			WriteTimeout:     time.Second,
			SendQueueSize:    16,
		},
		Relay:   config.RelayConfig{Type: "none"},
		Metrics: config.MetricsConfig{Enabled: true, Namespace: "liveadmin_test"},
	}
	return cfg
}

func newTestApp(t *testing.T, cfg *config.ServerConfig) (*app, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	a, err := newApp(ctx, zap.NewNop(), cfg)
	require.NoError(t, err)
	srv := httptest.NewServer(a.router)
	t.Cleanup(func() {
		srv.Close()
		cancel()
		a.close(zap.NewNop())
	})
	return a, srv
}

type listener struct {
	mu       sync.Mutex
	presence []int
	events   []dto.EventPayload
}

func (l *listener) OnPresence(n int) {
	l.mu.Lock()
	l.presence = append(l.presence, n)
	l.mu.Unlock()
}

func (l *listener) OnEvent(ev dto.EventPayload) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *listener) snapshot() ([]int, []dto.EventPayload) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]int(nil), l.presence...), append([]dto.EventPayload(nil), l.events...)
}

func postContact(t *testing.T, base string) {
	t.Helper()
	body, _ := json.Marshal(dto.ContactRequest{Name: "Jane", Email: "jane@example.com", Subject: "Hello", Message: "Interested"})
	resp, err := http.Post(base+"/api/contacts", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestRootCmd_Version(t *testing.T) {
	t.Cleanup(func() { rootCmd.SetArgs([]string{}) })
	rootCmd.SetArgs([]string{"version"})
	out := captureOutput(func() { _ = rootCmd.Execute() })
	assert.Contains(t, out, "liveadmin-server version")
}

func TestInitLogger(t *testing.T) {
	lg := initLogger(&config.ServerConfig{})
	require.NotNil(t, lg)
	_ = lg.Sync()
}

func TestInitRelay(t *testing.T) {
	r, err := initRelay(zap.NewNop(), config.RelayConfig{Type: "none"}, nil)
	require.NoError(t, err)
	assert.Nil(t, r)

	_, err = initRelay(zap.NewNop(), config.RelayConfig{Type: "kafka"}, nil)
	assert.ErrorIs(t, err, cnst.ErrUnsupportedRelay)

	mr := miniredis.RunT(t)
	r, err = initRelay(zap.NewNop(), config.RelayConfig{Type: "redis", Redis: config.RedisRelayConfig{Addr: mr.Addr(), Stream: "s", MaxLen: 10}}, nil)
	require.NoError(t, err)
	require.NotNil(t, r)
	_ = r.Close()
}

func TestInitMetrics_Disabled(t *testing.T) {
	assert.Nil(t, initMetrics(config.MetricsConfig{}))
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	_, srv := newTestApp(t, testConfig(t))

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(data), "liveadmin_test_admins_online")
}

// An admin logs in, joins the channel and sees the event produced by a
// public contact submission.
func TestEndToEnd_LoginJoinAndReceive(t *testing.T) {
	cfg := testConfig(t)
	a, srv := newTestApp(t, cfg)

	login, err := client.Login(context.Background(), srv.Client(), srv.URL, "admin", "admin-password")
	require.NoError(t, err)
	require.NotEmpty(t, login.Token)

	tr, err := client.NewWSTransport(zap.NewNop(), srv.URL)
	require.NoError(t, err)
	l := &listener{}
	link, err := tr.Connect(context.Background(), login.Token, l)
	require.NoError(t, err)
	defer link.Close()

	presence, _ := l.snapshot()
	assert.Equal(t, []int{1}, presence)
	assert.Equal(t, 1, a.gateway.Registry().Len())

	postContact(t, srv.URL)
	require.Eventually(t, func() bool {
		_, events := l.snapshot()
		return len(events) == 1
	}, 2*time.Second, 10*time.Millisecond)
	_, events := l.snapshot()
	assert.Equal(t, dto.EventKindContact, events[0].Kind)
	assert.Equal(t, "New contact message", events[0].Title)

	require.NoError(t, link.Close())
	require.Eventually(t, func() bool { return a.gateway.Registry().Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

// Two instances share a Redis stream; an event published on one reaches an
// admin connected to the other.
func TestEndToEnd_RelayAcrossInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	relay := config.RelayConfig{Type: "redis", Redis: config.RedisRelayConfig{Addr: mr.Addr(), Stream: "liveadmin:events", MaxLen: 100}}

	cfgA := testConfig(t)
	cfgA.Relay = relay
	cfgA.Metrics.Enabled = false
	cfgB := testConfig(t)
	cfgB.Relay = relay
	cfgB.Metrics.Enabled = false

	_, srvA := newTestApp(t, cfgA)
	_, srvB := newTestApp(t, cfgB)

	login, err := client.Login(context.Background(), srvB.Client(), srvB.URL, "admin", "admin-password")
	require.NoError(t, err)
	tr, err := client.NewWSTransport(zap.NewNop(), srvB.URL)
	require.NoError(t, err)
	l := &listener{}
	link, err := tr.Connect(context.Background(), login.Token, l)
	require.NoError(t, err)
	defer link.Close()

	postContact(t, srvA.URL)
	require.Eventually(t, func() bool {
		_, events := l.snapshot()
		return len(events) == 1
	}, 5*time.Second, 20*time.Millisecond)
}
