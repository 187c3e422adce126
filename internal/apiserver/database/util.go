package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/amoylab/liveadmin/internal/common/config"
	"golang.org/x/crypto/bcrypt"
)

// InitSuperAdmin creates the configured admin account when it does not exist
// yet. It reports whether a user was created.
func InitSuperAdmin(ctx context.Context, db Database, cfg config.SuperAdminConfig) (bool, error) {
	if cfg.Username == "" || cfg.Password == "" {
		return false, nil
	}

	_, err := db.GetUserByUsername(ctx, cfg.Username)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return false, err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(cfg.Password), bcrypt.DefaultCost)
	if err != nil {
		return false, fmt.Errorf("hash super admin password: %w", err)
	}
	user := &User{
		Username: cfg.Username,
		Password: string(hashed),
		Role:     RoleAdmin,
		IsActive: true,
	}
	if err := db.CreateUser(ctx, user); err != nil {
		return false, err
	}
	return true, nil
}
