package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/amoylab/liveadmin/internal/apiserver/database"
	"github.com/amoylab/liveadmin/internal/auth/jwt"
	"go.uber.org/zap"
)

var (
	// ErrUnknownUser is returned when the token subject no longer exists
	ErrUnknownUser = errors.New("unknown user")
	// ErrInactiveUser is returned when the account has been disabled
	ErrInactiveUser = errors.New("user is disabled")
	// ErrForbiddenRole is returned when the user's role may not use the resource
	ErrForbiddenRole = errors.New("role not allowed")
)

// Identity is an authenticated back-office user
type Identity struct {
	UserID   uint
	Username string
	Role     string
}

// TokenValidator resolves a bearer credential to an identity
type TokenValidator interface {
	Validate(ctx context.Context, credential string) (*Identity, error)
}

// UserLookup is the subset of the database the validator needs
type UserLookup interface {
	GetUserByID(ctx context.Context, id uint) (*database.User, error)
}

// JWTValidator verifies tokens issued by the login endpoint and re-checks the
// account against the user table, so a disabled admin loses access before
// the token expires.
type JWTValidator struct {
	logger *zap.Logger
	tokens *jwt.Service
	users  UserLookup
	roles  map[string]struct{}
}

var _ TokenValidator = (*JWTValidator)(nil)

// NewJWTValidator creates a validator accepting the given roles. users may be
// nil, in which case the claims alone are trusted.
func NewJWTValidator(logger *zap.Logger, tokens *jwt.Service, users UserLookup, roles ...string) *JWTValidator {
	if len(roles) == 0 {
		roles = []string{string(database.RoleAdmin)}
	}
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return &JWTValidator{
		logger: logger.Named("auth.validator"),
		tokens: tokens,
		users:  users,
		roles:  allowed,
	}
}

// Validate implements TokenValidator.Validate
func (v *JWTValidator) Validate(ctx context.Context, credential string) (*Identity, error) {
	claims, err := v.tokens.ValidateToken(credential)
	if err != nil {
		return nil, err
	}

	id := &Identity{UserID: claims.UserID, Username: claims.Username, Role: claims.Role}
	if v.users != nil {
		user, err := v.users.GetUserByID(ctx, claims.UserID)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				return nil, ErrUnknownUser
			}
			v.logger.Error("failed to load user", zap.Uint("userId", claims.UserID), zap.Error(err))
			return nil, fmt.Errorf("load user %d: %w", claims.UserID, err)
		}
		if !user.IsActive {
			return nil, ErrInactiveUser
		}
		id.Username = user.Username
		id.Role = string(user.Role)
	}

	if _, ok := v.roles[id.Role]; !ok {
		return nil, ErrForbiddenRole
	}
	return id, nil
}
