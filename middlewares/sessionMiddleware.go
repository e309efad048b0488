package middlewares

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mmdatafocus/fleet_backend/config"
	"github.com/mmdatafocus/fleet_backend/utils"
)

const (
	HeaderToken         = "token"
	HeaderActorId       = "X-Actor-Id"
	HeaderCorrelationId = "X-Correlation-Id"
)

// SessionMiddleware resolves the session token into a username and actor id.
// Internal callers without a session may pass X-Actor-Id directly.
func SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		token := c.Request.Header.Get(HeaderToken)
		if token == "" {
			if actorId := strings.TrimSpace(c.Request.Header.Get(HeaderActorId)); actorId != "" {
				c.Request = c.Request.WithContext(utils.SetActorIdInContext(ctx, actorId))
			}
			c.Next()
			return
		}
		username, exists, err := config.GetRedisValue(ctx, "Token:"+token)
		if err != nil || !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		ctx = utils.SetTokenInContext(ctx, token)
		ctx = utils.SetUsernameInContext(ctx, username)
		ctx = utils.SetActorIdInContext(ctx, username)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequireActor rejects requests that reached a mutating route without an actor.
func RequireActor() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := utils.GetActorIdFromContext(c.Request.Context()); !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// CorrelationMiddleware carries the caller's correlation id (or a fresh one) into the
// request context and echoes it back on the response.
func CorrelationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationId := strings.TrimSpace(c.Request.Header.Get(HeaderCorrelationId))
		if correlationId == "" {
			correlationId = uuid.NewString()
		}
		c.Writer.Header().Set(HeaderCorrelationId, correlationId)
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), correlationId))
		c.Next()
	}
}
