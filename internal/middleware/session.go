package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rdelolmomor/CalioBackend/internal/service"
)

// Context keys set by SessionMiddleware for downstream handlers.
const (
	ContextSession = "session"
	ContextToken   = "token"
)

// SessionMiddleware authenticates a request against the session registry.
// Every authenticated endpoint carries the identity and its token in the
// X-Auth-Login / X-Auth-Token headers; a valid pair also slides the session
// expiry forward.
func SessionMiddleware(registry *service.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		login := c.GetHeader("X-Auth-Login")
		token := c.GetHeader("X-Auth-Token")
		if login == "" || token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing credentials"})
			c.Abort()
			return
		}

		session, err := registry.GetSession(login, token)
		switch {
		case errors.Is(err, service.ErrTokenMismatch):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid session"})
			c.Abort()
			return
		case err != nil:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "session lookup failed"})
			c.Abort()
			return
		case session == nil:
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid session"})
			c.Abort()
			return
		}

		c.Set(ContextSession, session)
		c.Set(ContextToken, token)
		c.Next()
	}
}
