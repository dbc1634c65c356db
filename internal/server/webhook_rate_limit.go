package server

import (
	"math"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/printfleet/internal/observability/logger"
	"go.uber.org/zap"
)

const (
	HeaderPrinterID = "X-Printer-ID"
	HeaderSignature = "X-Signature"

	contextPrinterIDKey = "printer_id"
)

// WebhookIntakeRateLimit resolves the delivering printer from its header and
// throttles it by its own token bucket.
func (s *Server) WebhookIntakeRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderPrinterID))
		if raw == "" {
			AbortWithError(c, newValidationError(HeaderPrinterID, "missing_header", "X-Printer-ID header is required"))
			return
		}
		printerID, err := snowflake.ParseString(raw)
		if err != nil || printerID == 0 {
			AbortWithError(c, newValidationError(HeaderPrinterID, "invalid_header", "invalid X-Printer-ID header"))
			return
		}
		c.Set(contextPrinterIDKey, printerID)

		if s.webhookLimiter == nil {
			c.Next()
			return
		}

		res := s.webhookLimiter.Allow(c.Request.Context(), printerID)
		c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		if !res.Allowed {
			logger.FromContext(c.Request.Context()).Warn("webhook intake rate limit exceeded",
				zap.String("printer_id", printerID.String()),
			)
			retry := int(math.Ceil(res.RetryAfter.Seconds()))
			if retry < 1 {
				retry = 1
			}
			c.Header("Retry-After", strconv.Itoa(retry))
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}

func printerIDFromContext(c *gin.Context) (snowflake.ID, bool) {
	v, ok := c.Get(contextPrinterIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(snowflake.ID)
	return id, ok && id != 0
}
