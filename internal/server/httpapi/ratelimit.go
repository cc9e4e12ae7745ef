package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Counter increments a windowed counter and returns its new value.
type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RedisCounter is a fixed-window Counter shared by every server instance.
type RedisCounter struct{ rdb *redis.Client }

// NewRedisCounter wraps a connected client.
func NewRedisCounter(rdb *redis.Client) *RedisCounter { return &RedisCounter{rdb: rdb} }

// Incr bumps key and refreshes its expiry. Keys carry their window number,
// so a refreshed TTL never extends a window.
func (r *RedisCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	pipe := r.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// DialRedis connects and pings; it returns nil when Redis is unreachable so callers run without limits.
func DialRedis(addr string, log *zap.Logger) *redis.Client {
	if addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn("redis unavailable, rate limiting disabled", zap.String("addr", addr), zap.Error(err))
		_ = client.Close()
		return nil
	}
	return client
}

// RateLimit allows perMin requests per client address per minute. Counter
// errors let the request through.
func RateLimit(counter Counter, perMin int, log *zap.Logger, now func() time.Time) echo.MiddlewareFunc {
	if counter == nil || perMin <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	if now == nil {
		now = time.Now
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			t := now()
			window := t.Unix() / 60
			key := "rl:" + c.RealIP() + ":" + strconv.FormatInt(window, 10)

			n, err := counter.Incr(c.Request().Context(), key, time.Minute)
			if err != nil {
				log.Warn("rate limit counter", zap.Error(err))
				return next(c)
			}
			remaining := int64(perMin) - n
			if remaining < 0 {
				remaining = 0
			}
			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(perMin))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
			if n > int64(perMin) {
				retry := 60 - t.Unix()%60
				h.Set("Retry-After", strconv.FormatInt(retry, 10))
				return c.JSON(http.StatusTooManyRequests, errorBody{Error: "rate limited"})
			}
			return next(c)
		}
	}
}
