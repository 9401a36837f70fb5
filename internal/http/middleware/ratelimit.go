// Package middleware holds HTTP middleware shared by the fleet service.
package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateConfig describes a token bucket: sustained requests per second and the
// burst capacity.
type RateConfig struct {
	Rate  float64
	Burst float64
}

// MutationLimiter throttles mutating requests (POST/PUT/PATCH/DELETE) per
// client using a Redis-backed token bucket. Reads pass through untouched:
// the projector endpoints are cheap, trip mutations are not.
type MutationLimiter struct {
	client *redis.Client
	cfg    RateConfig
	script *redis.Script
}

// NewMutationLimiter returns nil when no redis client is configured, which
// disables limiting entirely.
func NewMutationLimiter(client *redis.Client, cfg RateConfig) *MutationLimiter {
	if client == nil || cfg.Rate <= 0 || cfg.Burst <= 0 {
		return nil
	}
	return &MutationLimiter{client: client, cfg: cfg, script: redis.NewScript(tokenBucketLua)}
}

// Middleware wires the limiter into a chi chain. A nil limiter is a no-op.
func (l *MutationLimiter) Middleware(next http.Handler) http.Handler {
	if l == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}

		key := "fleet:rl:" + clientIdentifier(r)
		result, err := l.script.Run(r.Context(), l.client, []string{key},
			time.Now().UnixMilli(), l.cfg.Rate, l.cfg.Burst).Result()
		if err != nil {
			// fail open: a redis outage must not block fleet mutations
			next.ServeHTTP(w, r)
			return
		}
		values, ok := result.([]interface{})
		if !ok || len(values) != 2 {
			next.ServeHTTP(w, r)
			return
		}
		allowed, _ := values[0].(int64)
		if allowed != 1 {
			if wait, ok := values[1].(string); ok {
				if seconds, err := strconv.ParseFloat(wait, 64); err == nil && seconds > 0 {
					w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(seconds))))
				}
			}
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIdentifier(r *http.Request) string {
	if fwd := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

const tokenBucketLua = `
local key = KEYS[1]
local now_ms = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local capacity = tonumber(ARGV[3])

local state = redis.call('HMGET', key, 'tokens', 'timestamp')
local tokens = tonumber(state[1])
local last = tonumber(state[2])

if tokens == nil then
  tokens = capacity
end
if last == nil then
  last = now_ms
end

local delta = now_ms - last
if delta > 0 then
  tokens = math.min(capacity, tokens + delta * rate / 1000)
  last = now_ms
end

local allowed = 0
local wait = 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
else
  wait = (1 - tokens) / rate
end

redis.call('HMSET', key, 'tokens', tokens, 'timestamp', last)
redis.call('PEXPIRE', key, math.ceil((capacity / rate) * 1000))

return {allowed, tostring(wait)}
`
