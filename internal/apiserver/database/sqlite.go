package database

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/amoylab/liveadmin/internal/common/config"

	"github.com/glebarez/sqlite"
)

// NewSQLite opens (and migrates) a SQLite database at cfg.DBName
func NewSQLite(cfg *config.DatabaseConfig) (Database, error) {
	if cfg.DBName != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBName), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	return newGormDatabase(sqlite.Open(cfg.DBName))
}
