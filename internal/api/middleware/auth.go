package middleware

import (
	"net/http"
	"strings"

	"randomchat/backend/internal/auth"
	"randomchat/backend/internal/config"

	"github.com/gin-gonic/gin"
)

const userIDKey = "user_id"

// AuthRequired validates the anonymous JWT and stores its user id in the
// context. Browsers cannot set headers on websocket upgrades, so ?token= is
// accepted as well.
func AuthRequired(cfg *config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if header := c.GetHeader("Authorization"); header != "" {
			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
				return
			}
			token = parts[1]
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}
		claims, err := auth.ParseToken(cfg, token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}
		c.Set(userIDKey, claims.AnonID)
		c.Set("claims", claims)
		c.Next()
	}
}

// GetUserID returns the authenticated user ID from context (must be used after AuthRequired).
func GetUserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}
