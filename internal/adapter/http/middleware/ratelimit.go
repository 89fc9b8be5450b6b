package middleware

import (
	"fmt"
	"strconv"
	"time"

	"metacoin-ledger/config"
	redisStore "metacoin-ledger/internal/adapter/storage/redis"
	"metacoin-ledger/pkg/apperror"
	"metacoin-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Rate limit groups.
const (
	GroupSendCoin = "send_coin"
	GroupRead     = "read"
)

// RateLimitRule defines a rate limit for an endpoint group.
type RateLimitRule struct {
	Limit  int64
	Window time.Duration
}

// RateLimitRules builds the per-group rules from configuration.
func RateLimitRules(cfg config.RateLimitConfig) map[string]RateLimitRule {
	return map[string]RateLimitRule{
		GroupSendCoin: {Limit: cfg.SendCoinLimit, Window: cfg.SendCoinWindow},
		GroupRead:     {Limit: cfg.ReadLimit, Window: cfg.ReadWindow},
	}
}

// RateLimiter creates a rate-limiting middleware for a given endpoint group.
func RateLimiter(store *redisStore.RateLimitStore, group string, rule RateLimitRule, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		identifier := extractIdentifier(c)
		key := fmt.Sprintf("%s:%s", identifier, group)

		result, err := store.Allow(c.Request.Context(), key, rule.Limit, rule.Window)
		if err != nil {
			log.Warn().Err(err).Str("group", group).Msg("rate limit check failed, allowing request (degraded mode)")
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(result.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt, 10))

		if !result.Allowed {
			retryAfter := result.ResetAt - time.Now().Unix()
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
			response.Abort(c, apperror.ErrRateLimitExceeded())
			return
		}

		c.Next()
	}
}

// extractIdentifier keys authenticated callers by account, others by IP.
func extractIdentifier(c *gin.Context) string {
	if caller, ok := CallerAccount(c); ok {
		return "acct:" + caller.StringLE()
	}
	return "ip:" + c.ClientIP()
}
