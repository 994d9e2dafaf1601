package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const submitRateKeyPrefix = "transport:submit"

// SubmitRateLimit throttles request submissions per user with a fixed window
// counter in Redis. A nil client or a non-positive limit disables it, and a
// Redis failure lets the request through.
func SubmitRateLimit(rdb *redis.Client, limit int, window time.Duration, logger *logrus.Logger) gin.HandlerFunc {
	if rdb == nil || limit <= 0 || window <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		key := submitRateKey(c)
		ctx := c.Request.Context()

		var incr *redis.IntCmd
		var ttl *redis.DurationCmd
		_, err := rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			incr = pipe.Incr(ctx, key)
			pipe.ExpireNX(ctx, key, window)
			ttl = pipe.TTL(ctx, key)
			return nil
		})
		if err != nil {
			logger.WithError(err).WithField("key", key).Warn("Submit rate limit unavailable, allowing request")
			c.Next()
			return
		}

		count := incr.Val()
		remaining := int64(limit) - count
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if count > int64(limit) {
			retry := int(math.Ceil(ttl.Val().Seconds()))
			if retry < 0 {
				retry = 0
			}
			c.Header("Retry-After", strconv.Itoa(retry))
			logger.WithFields(logrus.Fields{"key": key, "count": count}).Info("Submit rate limit exceeded")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "too_many_requests",
				"message":     "Too many submissions. Please try again later.",
				"code":        "RATE_LIMITED",
				"retry_after": retry,
			})
			return
		}

		c.Next()
	}
}

func submitRateKey(c *gin.Context) string {
	if userCtx, ok := GetUserContext(c); ok {
		return fmt.Sprintf("%s:user:%s", submitRateKeyPrefix, userCtx.UserID)
	}
	ip := c.ClientIP()
	if ip == "" {
		ip = "unknown"
	}
	return fmt.Sprintf("%s:ip:%s", submitRateKeyPrefix, ip)
}
