package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/amoylab/liveadmin/internal/apiserver/database"
	"github.com/amoylab/liveadmin/internal/apiserver/handler"
	"github.com/amoylab/liveadmin/internal/apiserver/middleware"
	"github.com/amoylab/liveadmin/internal/auth"
	"github.com/amoylab/liveadmin/internal/auth/jwt"
	"github.com/amoylab/liveadmin/internal/common/cnst"
	"github.com/amoylab/liveadmin/internal/common/config"
	"github.com/amoylab/liveadmin/internal/realtime"
	"github.com/amoylab/liveadmin/pkg/logger"
	"github.com/amoylab/liveadmin/pkg/metrics"
	"github.com/amoylab/liveadmin/pkg/trace"
	"github.com/amoylab/liveadmin/pkg/version"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

var (
	configPath string

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of liveadmin-server",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("liveadmin-server version %s\n", version.Get())
		},
	}

	rootCmd = &cobra.Command{
		Use:   "liveadmin-server",
		Short: "Admin API with a realtime notification channel",
		Long:  `liveadmin-server serves the admin REST API and pushes presence and activity events to connected admins over websocket`,
		Run: func(cmd *cobra.Command, args []string) {
			run()
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "conf", "c", cnst.ServerYaml, "path to configuration file, like /etc/liveadmin/server.yaml")
	rootCmd.AddCommand(versionCmd)
}

// app holds the wired components of one server process
type app struct {
	db          database.Database
	gateway     *realtime.Gateway
	broadcaster *realtime.Broadcaster
	relay       *realtime.RedisRelay
	metrics     *metrics.Metrics
	router      *gin.Engine
}

func initLogger(cfg *config.ServerConfig) *zap.Logger {
	lg, err := logger.NewLogger(&cfg.Logger)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	return lg
}

func initDatabase(lg *zap.Logger, cfg *config.DatabaseConfig) database.Database {
	db, err := database.NewDatabase(cfg)
	if err != nil {
		lg.Fatal("failed to initialize database", zap.String("type", cfg.Type), zap.Error(err))
	}
	return db
}

func initSuperAdmin(ctx context.Context, lg *zap.Logger, db database.Database, cfg config.SuperAdminConfig) {
	created, err := database.InitSuperAdmin(ctx, db, cfg)
	if err != nil {
		lg.Fatal("failed to initialize super admin", zap.Error(err))
	}
	if created {
		lg.Info("super admin created", zap.String("username", cfg.Username))
	}
}

func initJWT(lg *zap.Logger, cfg config.JWTConfig) *jwt.Service {
	svc, err := jwt.NewService(jwt.Config{SecretKey: cfg.SecretKey, Duration: cfg.Duration})
	if err != nil {
		lg.Fatal("failed to initialize JWT service", zap.Error(err))
	}
	return svc
}

func initMetrics(cfg config.MetricsConfig) *metrics.Metrics {
	if !cfg.Enabled {
		return nil
	}
	return metrics.New(cfg)
}

// initRelay returns nil when relaying is off
func initRelay(lg *zap.Logger, cfg config.RelayConfig, recorder realtime.Recorder) (*realtime.RedisRelay, error) {
	switch cfg.Type {
	case "", cnst.RelayTypeNone:
		return nil, nil
	case cnst.RelayTypeRedis:
		return realtime.NewRedisRelay(lg, cfg.Redis, recorder)
	default:
		return nil, fmt.Errorf("%w: %s", cnst.ErrUnsupportedRelay, cfg.Type)
	}
}

// initRealtime wires the gateway, broadcaster and optional relay. The relay
// starts reading only after the broadcaster it delivers to exists.
func initRealtime(ctx context.Context, lg *zap.Logger, cfg *config.ServerConfig, jwtSvc *jwt.Service, db database.Database, m *metrics.Metrics) (*realtime.Gateway, *realtime.Broadcaster, *realtime.RedisRelay, error) {
	var recorder realtime.Recorder
	if m != nil {
		recorder = m
	}

	gateway := realtime.NewGateway(lg, auth.NewJWTValidator(lg, jwtSvc, db),
		realtime.WithRecorder(recorder),
		realtime.WithHandshakeTimeout(cfg.Realtime.HandshakeTimeout))

	relay, err := initRelay(lg, cfg.Relay, recorder)
	if err != nil {
		return nil, nil, nil, err
	}
	opts := []realtime.BroadcasterOption{realtime.WithBroadcastRecorder(recorder)}
	if relay != nil {
		opts = append(opts, realtime.WithForwarder(relay))
	}
	broadcaster := realtime.NewBroadcaster(lg, gateway.Registry(), opts...)

	if relay != nil {
		if err := relay.Start(ctx, broadcaster); err != nil {
			_ = relay.Close()
			return nil, nil, nil, err
		}
		lg.Info("event relay started", zap.String("stream", cfg.Relay.Redis.Stream), zap.String("origin", relay.Origin()))
	}
	return gateway, broadcaster, relay, nil
}

func initRouter(lg *zap.Logger, cfg *config.ServerConfig, db database.Database, jwtSvc *jwt.Service,
	gateway *realtime.Gateway, publisher handler.Publisher, m *metrics.Metrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.Tracing.Enabled {
		r.Use(trace.Middleware(cfg.Tracing.ServiceName))
	}
	if m != nil {
		r.Use(m.Middleware())
		r.GET("/metrics", gin.WrapH(m.Handler()))
	}
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"service": cnst.AppName, "status": "ok", "version": version.Get()})
	})

	restValidator := auth.NewJWTValidator(lg, jwtSvc, db, string(database.RoleAdmin), string(database.RoleEditor))
	authHandler := handler.NewAuthHandler(db, jwtSvc, lg)
	resources := handler.NewResourceHandler(db, publisher, lg)
	ws := handler.NewWebSocketHandler(lg, gateway, cfg.Realtime)

	r.POST("/api/auth/login", authHandler.Login)
	r.POST("/api/contacts", resources.CreateContact)
	r.GET("/ws/notifications", ws.Serve)

	api := r.Group("/api", middleware.JWTAuthMiddleware(restValidator))
	api.GET("/auth/me", authHandler.Me)
	api.POST("/offers", resources.CreateOffer)
	api.PUT("/contents/:key", resources.UpsertContent)
	api.GET("/realtime/presence", middleware.RequireRole(string(database.RoleAdmin)), handler.NewPresenceHandler(gateway.Registry()).Get)

	return r
}

func newApp(ctx context.Context, lg *zap.Logger, cfg *config.ServerConfig) (*app, error) {
	db := initDatabase(lg, &cfg.Database)
	initSuperAdmin(ctx, lg, db, cfg.SuperAdmin)
	jwtSvc := initJWT(lg, cfg.JWT)
	m := initMetrics(cfg.Metrics)

	gateway, broadcaster, relay, err := initRealtime(ctx, lg, cfg, jwtSvc, db, m)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &app{
		db:          db,
		gateway:     gateway,
		broadcaster: broadcaster,
		relay:       relay,
		metrics:     m,
		router:      initRouter(lg, cfg, db, jwtSvc, gateway, broadcaster, m),
	}, nil
}

func (a *app) close(lg *zap.Logger) {
	if a.relay != nil {
		if err := a.relay.Close(); err != nil {
			lg.Warn("failed to close relay", zap.Error(err))
		}
	}
	if err := a.db.Close(); err != nil {
		lg.Warn("failed to close database", zap.Error(err))
	}
}

func run() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, cfgPath, err := config.LoadConfig[config.ServerConfig](configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config %s: %v\n", cfgPath, err)
		os.Exit(1)
	}

	lg := initLogger(cfg)
	defer lg.Sync()
	lg.Info("starting liveadmin-server", zap.String("version", version.Get()), zap.String("config", cfgPath))

	if cfg.Tracing.Enabled {
		shutdownTracing, err := trace.InitTracing(ctx, &cfg.Tracing, lg)
		if err != nil {
			lg.Fatal("failed to initialize tracing", zap.Error(err))
		}
		defer func() {
			sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer scancel()
			_ = shutdownTracing(sctx)
		}()
	}

	a, err := newApp(ctx, lg, cfg)
	if err != nil {
		lg.Fatal("failed to initialize realtime channel", zap.Error(err))
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: a.router,
	}
	go func() {
		lg.Info("server listening", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal("failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	lg.Info("shutting down")

	// hijacked websocket connections are not tracked by Shutdown
	a.gateway.Shutdown(websocket.CloseGoingAway, "server shutting down")

	sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer scancel()
	if err := srv.Shutdown(sctx); err != nil {
		lg.Error("failed to shutdown server", zap.Error(err))
	}
	cancel()
	a.close(lg)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
