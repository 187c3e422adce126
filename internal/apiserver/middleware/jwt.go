package middleware

import (
	"errors"
	"net/http"
	"slices"

	"github.com/amoylab/liveadmin/internal/auth"
	"github.com/amoylab/liveadmin/internal/common/cnst"
	"github.com/gin-gonic/gin"
)

// JWTAuthMiddleware creates a middleware that validates bearer tokens and
// stores the resulting identity in the context
func JWTAuthMiddleware(validator auth.TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := auth.BearerToken(c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		identity, err := validator.Validate(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, auth.ErrForbiddenRole) || errors.Is(err, auth.ErrInactiveUser) {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		c.Set(cnst.CtxKeyIdentity, identity)
		c.Next()
	}
}

// RequireRole rejects identities whose role is not listed. It must run after JWTAuthMiddleware.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := IdentityFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		if !slices.Contains(roles, identity.Role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

// IdentityFrom returns the identity stored by JWTAuthMiddleware
func IdentityFrom(c *gin.Context) (*auth.Identity, bool) {
	v, ok := c.Get(cnst.CtxKeyIdentity)
	if !ok {
		return nil, false
	}
	identity, ok := v.(*auth.Identity)
	return identity, ok
}
