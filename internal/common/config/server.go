package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/amoylab/liveadmin/pkg/trace"
)

type (
	// ServerConfig is the configuration of liveadmin-server
	ServerConfig struct {
		Port       int              `yaml:"port"`
		Logger     LoggerConfig     `yaml:"logger"`
		Database   DatabaseConfig   `yaml:"database"`
		JWT        JWTConfig        `yaml:"jwt"`
		SuperAdmin SuperAdminConfig `yaml:"super_admin"`
		Realtime   RealtimeConfig   `yaml:"realtime"`
		Relay      RelayConfig      `yaml:"relay"`
		Metrics    MetricsConfig    `yaml:"metrics"`
		Tracing    trace.Config     `yaml:"tracing"`
	}

	DatabaseConfig struct {
		Type     string `yaml:"type"`     // mysql, postgres, sqlite
		Host     string `yaml:"host"`     // localhost
		Port     int    `yaml:"port"`     // 3306 (for mysql), 5432 (for postgres)
		User     string `yaml:"user"`     // root (for mysql), postgres (for postgres)
		Password string `yaml:"password"` // password
		DBName   string `yaml:"dbname"`   // database name, file path for sqlite
		SSLMode  string `yaml:"sslmode"`  // disable (for postgres)
	}

	JWTConfig struct {
		SecretKey string        `yaml:"secret_key"`
		Duration  time.Duration `yaml:"duration"`
	}

	// RealtimeConfig tunes the admin notification channel
	RealtimeConfig struct {
		HandshakeTimeout time.Duration `yaml:"handshake_timeout"` // max wait for the join frame and its validation
		PingInterval     time.Duration `yaml:"ping_interval"`     // keepalive ping period
		WriteTimeout     time.Duration `yaml:"write_timeout"`     // per-frame write deadline
		SendQueueSize    int           `yaml:"send_queue_size"`   // outbound frames buffered per session
		AllowedOrigins   []string      `yaml:"allowed_origins"`   // empty allows same-host and localhost
	}

	// RelayConfig configures cross-instance event relaying
	RelayConfig struct {
		Type  string           `yaml:"type"` // none or redis
		Redis RedisRelayConfig `yaml:"redis"`
	}

	RedisRelayConfig struct {
		ClusterType string `yaml:"cluster_type"` // single, sentinel, cluster
		Addr        string `yaml:"addr"`         // separated by ; or ,
		MasterName  string `yaml:"master_name"`
		Username    string `yaml:"username"`
		Password    string `yaml:"password"`
		DB          int    `yaml:"db"`
		Stream      string `yaml:"stream"`
		MaxLen      int64  `yaml:"max_len"`
	}

	MetricsConfig struct {
		Enabled   bool      `yaml:"enabled"`
		Namespace string    `yaml:"namespace"`
		Buckets   []float64 `yaml:"buckets"`
	}
)

func (c *ServerConfig) applyDefaults() {
	if c.Port == 0 {
		c.Port = 5235
	}
	if c.Database.Type == "" {
		c.Database.Type = "sqlite"
	}
	if c.Database.Type == "sqlite" && c.Database.DBName == "" {
		c.Database.DBName = "./data/liveadmin.db"
	}
	c.JWT.Duration = durationOr(c.JWT.Duration, 24*time.Hour)
	c.Realtime.HandshakeTimeout = durationOr(c.Realtime.HandshakeTimeout, 10*time.Second)
	c.Realtime.PingInterval = durationOr(c.Realtime.PingInterval, 30*time.Second)
	c.Realtime.WriteTimeout = durationOr(c.Realtime.WriteTimeout, 10*time.Second)
	if c.Realtime.SendQueueSize <= 0 {
		c.Realtime.SendQueueSize = 64
	}
	if c.Relay.Type == "" {
		c.Relay.Type = "none"
	}
	if c.Relay.Redis.Stream == "" {
		c.Relay.Redis.Stream = "liveadmin:events"
	}
	if c.Relay.Redis.MaxLen <= 0 {
		c.Relay.Redis.MaxLen = 1000
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "liveadmin"
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "liveadmin-server"
	}
}

// GetDSN returns the database connection string
func (c *DatabaseConfig) GetDSN() string {
	switch c.Type {
	case "postgres":
		return c.getPostgresDSN()
	case "mysql":
		return c.getMySQLDSN()
	case "sqlite":
		// Ensure the directory for the SQLite database exists.
		// If the directory cannot be created, it's a fatal error.
		if c.DBName != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(c.DBName), 0755); err != nil {
				panic(fmt.Errorf("failed to create directory for sqlite database: %w", err))
			}
		}
		return c.DBName // For SQLite, DBName is the file path
	default:
		return ""
	}
}

// getPostgresDSN returns PostgreSQL connection string
func (c *DatabaseConfig) getPostgresDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

// getMySQLDSN returns MySQL connection string
func (c *DatabaseConfig) getMySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.User, c.Password, c.Host, c.Port, c.DBName)
}
