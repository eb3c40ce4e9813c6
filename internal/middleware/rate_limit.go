package middleware

import (
	"net/http"
	"strconv"

	"github.com/asterlearn/aster-backend/internal/common"
	"github.com/asterlearn/aster-backend/internal/domain"
	"github.com/asterlearn/aster-backend/pkg/limiter"
	"github.com/gin-gonic/gin"
)

// AuditSink is the slice of the audit service the middleware needs to
// record blocked requests.
type AuditSink interface {
	LogAttempt(assetID *uint64, userID *string, ip, userAgent, action, result string, details map[string]interface{})
}

// RateLimit returns a gin middleware enforcing the named bucket keyed by
// client IP. Every blocked request is written to the audit trail under
// the bucket's action before the 429 aborts the chain, since no handler
// runs after the abort. Limiter errors fail open so Redis being down
// never blocks downloads; the decision headers are only set when the
// limiter answered.
func RateLimit(l *limiter.Limiter, bucket, action string, audit AuditSink) gin.HandlerFunc {
	return func(c *gin.Context) {
		if l == nil {
			c.Next()
			return
		}

		decision, err := l.Allow(c.Request.Context(), bucket, c.ClientIP())
		if err != nil {
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))

		if !decision.Allowed {
			retryAfter := int(decision.RetryAfter.Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))

			if audit != nil {
				var userID *string
				if id := GetUserID(c); id != "" {
					userID = &id
				}
				audit.LogAttempt(nil, userID, c.ClientIP(), c.GetHeader("User-Agent"),
					action, domain.ResultBlocked, map[string]interface{}{
						"reason":              "rate_limited",
						"bucket":              bucket,
						"retry_after_seconds": retryAfter,
						"cooldown":            decision.InCooldown,
					})
			}

			message := "Too many requests. Please try again later."
			if decision.InCooldown {
				message = "Too many attempts. Access temporarily suspended."
			}
			common.ErrorResponse(c, http.StatusTooManyRequests, message, nil)
			c.Abort()
			return
		}

		c.Next()
	}
}
