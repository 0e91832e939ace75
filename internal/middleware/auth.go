package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/datastations/packaging-service/internal/platform/logger"
)

// AuthMiddleware guards the inbox and admin surfaces with a static API key,
// accepted either as a Bearer token or in X-Api-Key.
type AuthMiddleware struct {
	log    *logger.Logger
	apiKey string
}

func NewAuthMiddleware(log *logger.Logger, apiKey string) *AuthMiddleware {
	return &AuthMiddleware{
		log:    log.With("middleware", "AuthMiddleware"),
		apiKey: apiKey,
	}
}

func (m *AuthMiddleware) RequireAPIKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m.apiKey == "" {
			m.log.Warn("API key auth disabled, no key configured")
			c.Next()
			return
		}
		presented := c.GetHeader("X-Api-Key")
		if presented == "" {
			presented = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		}
		if subtle.ConstantTimeCompare([]byte(presented), []byte(m.apiKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid api key"})
			return
		}
		c.Next()
	}
}
