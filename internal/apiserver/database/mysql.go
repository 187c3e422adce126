package database

import (
	"github.com/amoylab/liveadmin/internal/common/config"

	"gorm.io/driver/mysql"
)

// NewMySQL opens (and migrates) a MySQL database
func NewMySQL(cfg *config.DatabaseConfig) (Database, error) {
	return newGormDatabase(mysql.Open(cfg.GetDSN()))
}
