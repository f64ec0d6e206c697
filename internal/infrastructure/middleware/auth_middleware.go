package middleware

import (
	"net/http"
	"strings"

	"camcast/internal/core/domain"
	"camcast/internal/core/services"

	"github.com/gin-gonic/gin"
)

const identityContextKey = "identity"

// AuthMiddleware requires a valid bearer token whose identity has an
// active sign-in. Sessions are keyed by identity, so a token alone is
// not enough.
func AuthMiddleware(identities *services.IdentityService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization header required"})
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header format"})
			c.Abort()
			return
		}

		identity, err := identities.ValidateToken(parts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			c.Abort()
			return
		}

		if _, ok := identities.IsSignedIn(identity.ID); !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "not signed in"})
			c.Abort()
			return
		}

		c.Set(identityContextKey, identity)
		c.Next()
	}
}

// OptionalAuthMiddleware attaches the identity when a valid token is
// presented but lets anonymous requests through. The broadcast list
// uses it to mark rows owned by the caller.
func OptionalAuthMiddleware(identities *services.IdentityService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.Next()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && parts[0] == "Bearer" {
			if identity, err := identities.ValidateToken(parts[1]); err == nil {
				c.Set(identityContextKey, identity)
			}
		}

		c.Next()
	}
}

// IdentityFromContext pulls the authenticated identity placed by the
// auth middleware.
func IdentityFromContext(c *gin.Context) (domain.Identity, bool) {
	val, exists := c.Get(identityContextKey)
	if !exists {
		return domain.Identity{}, false
	}
	identity, ok := val.(domain.Identity)
	return identity, ok
}
