package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	requestIDKey = "requestID"
	workspaceKey = "workspace"
)

func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := uuid.NewString()
		c.Set(requestIDKey, requestID)
		c.Header("X-Request-ID", requestID)

		c.Next()

		log.Info("request",
			zap.String("requestID", requestID),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.String("clientIP", c.ClientIP()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

// requireUser rejects requests for unknown users and attaches the user's
// workspace to the context.
func (s *Server) requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := c.Param("uid")
		if _, err := s.accounts.Get(c.Request.Context(), uid); err != nil {
			s.fail(c, err)
			c.Abort()
			return
		}
		c.Set(workspaceKey, s.space(uid))
		c.Next()
	}
}

func workspaceOf(c *gin.Context) *Workspace {
	return c.MustGet(workspaceKey).(*Workspace)
}
