package database

import (
	"github.com/amoylab/liveadmin/internal/common/config"

	"gorm.io/driver/postgres"
)

// NewPostgres opens (and migrates) a PostgreSQL database
func NewPostgres(cfg *config.DatabaseConfig) (Database, error) {
	return newGormDatabase(postgres.Open(cfg.GetDSN()))
}
