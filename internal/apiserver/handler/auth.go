package handler

import (
	"errors"
	"net/http"

	"github.com/amoylab/liveadmin/internal/apiserver/database"
	"github.com/amoylab/liveadmin/internal/apiserver/middleware"
	"github.com/amoylab/liveadmin/internal/auth/jwt"
	"github.com/amoylab/liveadmin/internal/common/dto"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// AuthHandler issues the bearer tokens used by the REST API and the
// notification channel
type AuthHandler struct {
	db         database.Database
	jwtService *jwt.Service
	logger     *zap.Logger
}

// NewAuthHandler creates a new authentication handler
func NewAuthHandler(db database.Database, jwtService *jwt.Service, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		db:         db,
		jwtService: jwtService,
		logger:     logger.Named("handler.auth"),
	}
}

// Login handles user login
func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.db.GetUserByUsername(c.Request.Context(), req.Username)
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			h.logger.Error("failed to load user", zap.String("username", req.Username), zap.Error(err))
		}
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid username or password"})
		return
	}

	if !user.IsActive {
		c.JSON(http.StatusForbidden, gin.H{"error": "User is disabled"})
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid username or password"})
		return
	}

	token, err := h.jwtService.GenerateToken(user.ID, user.Username, string(user.Role))
	if err != nil {
		h.logger.Error("failed to generate token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	h.logger.Info("user logged in", zap.String("username", user.Username))
	c.JSON(http.StatusOK, dto.LoginResponse{
		Token: token,
		User: &dto.UserInfo{
			ID:       user.ID,
			Username: user.Username,
			Role:     string(user.Role),
		},
	})
}

// Me returns the caller's identity
func (h *AuthHandler) Me(c *gin.Context) {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.JSON(http.StatusOK, dto.UserInfo{
		ID:       identity.UserID,
		Username: identity.Username,
		Role:     identity.Role,
	})
}
