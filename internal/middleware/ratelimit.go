package middleware

import (
    "context"
    "fmt"
    "math"
    "net/http"
    "strconv"
    "strings"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"

    "github.com/iliyamo/agency-portal/internal/config"
)

// Decision is the outcome of taking one token from a bucket.
type Decision struct {
    Allowed    bool
    Remaining  int64
    RetryAfter time.Duration
}

// Bucket takes a token for key at now.
type Bucket interface {
    Take(ctx context.Context, key string, now time.Time) (Decision, error)
}

// takeScript refills the bucket for the whole intervals elapsed since the
// last refill, then takes one token.  It returns {allowed, tokens, retry_ms}.
var takeScript = redis.NewScript(`
local key = KEYS[1]
local now_ms, capacity, refill, interval_ms, ttl = tonumber(ARGV[1]), tonumber(ARGV[2]), tonumber(ARGV[3]), tonumber(ARGV[4]), tonumber(ARGV[5])

local state = redis.call('HMGET', key, 'tokens', 'last_refill_ms')
local tokens, last = tonumber(state[1]), tonumber(state[2])
if tokens == nil or last == nil then
    tokens, last = capacity, now_ms
end

local steps = math.floor(math.max(0, now_ms - last) / interval_ms)
if steps > 0 then
    tokens = math.min(capacity, tokens + steps * refill)
    last = last + steps * interval_ms
end

local allowed, retry_ms = 0, 0
if tokens > 0 then
    allowed, tokens = 1, tokens - 1
else
    retry_ms = math.max(0, interval_ms - (now_ms - last))
end

redis.call('HSET', key, 'tokens', tokens, 'last_refill_ms', last)
redis.call('EXPIRE', key, ttl)
return { allowed, tokens, retry_ms }
`)

// RedisBucket keeps bucket state in Redis so every API instance shares one
// budget.  The script runs atomically on the server.
type RedisBucket struct {
    RDB *redis.Client
    Cfg config.RateLimitConfig
}

func (b RedisBucket) Take(ctx context.Context, key string, now time.Time) (Decision, error) {
    args := []any{
        now.UnixMilli(),
        b.Cfg.Capacity,
        b.Cfg.RefillTokens,
        b.Cfg.RefillInterval.Milliseconds(),
        int64(b.Cfg.TTL / time.Second),
    }
    vals, err := takeScript.Run(ctx, b.RDB, []string{key}, args...).Int64Slice()
    if err != nil {
        return Decision{}, err
    }
    if len(vals) != 3 {
        return Decision{}, fmt.Errorf("ratelimit: unexpected script result %v", vals)
    }
    return Decision{
        Allowed:    vals[0] == 1,
        Remaining:  vals[1],
        RetryAfter: time.Duration(vals[2]) * time.Millisecond,
    }, nil
}

// NewTokenBucket limits requests with a Redis token bucket.  Without Redis,
// or when the scope is disabled, it passes every request through.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client) echo.MiddlewareFunc {
    if !cfg.Enabled || rdb == nil {
        return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
    }
    return Limit(cfg, RedisBucket{RDB: rdb, Cfg: cfg})
}

// Limit answers 429 with Retry-After once the caller's bucket is empty.  A
// bucket error lets the request through; the forms stay usable while Redis
// is down.
func Limit(cfg config.RateLimitConfig, bucket Bucket) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            key := buildRateKey(cfg, c)
            d, err := bucket.Take(c.Request().Context(), key, time.Now())
            if err != nil {
                c.Logger().Warnf("ratelimit: %s: %v", key, err)
                return next(c)
            }

            h := c.Response().Header()
            h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
            h.Set("X-RateLimit-Remaining", strconv.FormatInt(d.Remaining, 10))
            if cfg.Debug {
                h.Set("X-RateLimit-Key", key)
            }
            if d.Allowed {
                return next(c)
            }

            secs := int(math.Ceil(d.RetryAfter.Seconds()))
            h.Set("Retry-After", strconv.Itoa(secs))
            return c.JSON(http.StatusTooManyRequests, echo.Map{
                "message":    "too many requests, try again later",
                "retryAfter": secs,
            })
        }
    }
}

// buildRateKey names the bucket of a request: prefix, scope, then the parts
// selected by the key strategy (default ip_route).
func buildRateKey(cfg config.RateLimitConfig, c echo.Context) string {
    parts := []string{cfg.Prefix}
    if cfg.Scope != "" {
        parts = append(parts, cfg.Scope)
    }
    ip := c.RealIP()
    if ip == "" {
        ip = "unknown"
    }
    uid := userID(c)
    route := c.Request().Method + " " + c.Path()

    switch cfg.KeyStrategy {
    case "ip":
        parts = append(parts, "ip", ip)
    case "user":
        parts = append(parts, "user", uid)
    case "ip_user":
        parts = append(parts, "ip", ip, "user", uid)
    case "ip_user_route":
        parts = append(parts, "ip", ip, "user", uid, "route", route)
    default:
        parts = append(parts, "ip", ip, "route", route)
    }
    return strings.Join(parts, ":")
}
