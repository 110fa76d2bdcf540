package api

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"meetsync/internal/logging"
)

// CaseID echoes the request's Case-ID header, or a fresh uuid, on the response
// and stores it in the request context for downstream logging.
func CaseID(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		caseID := strings.TrimSpace(c.GetHeader(logging.CaseHeader))
		if caseID == "" {
			caseID = uuid.NewString()
		}
		ctx := logging.ContextWithCaseID(c.Request.Context(), caseID)
		c.Request = c.Request.WithContext(ctx)
		c.Header(logging.CaseHeader, caseID)

		log := logging.FromContext(ctx, logger)
		start := time.Now()
		log.Info("REQUEST", zap.String("method", c.Request.Method), zap.String("path", c.Request.URL.Path))
		c.Next()
		log.Info("RESPONSE",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
}
