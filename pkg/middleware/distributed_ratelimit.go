package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/httputil"
	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/monitor"
	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/observability"
)

// DistributedRateLimiter enforces a fixed window per IP in Redis so the
// limit holds across instances. Redis trouble fails open: a limiter
// outage must not take authentication down with it.
type DistributedRateLimiter struct {
	redis   *redis.Client
	cfg     LimiterConfig
	prefix  string
	log     *observability.Logger
	metrics *observability.Metrics
	monitor *monitor.Monitor
}

// NewDistributedRateLimiter builds a Redis-backed limiter.
func NewDistributedRateLimiter(client *redis.Client, cfg LimiterConfig, log *observability.Logger) *DistributedRateLimiter {
	if cfg.Message == "" {
		cfg.Message = "Too many requests from this IP, please try again later"
	}
	return &DistributedRateLimiter{
		redis:  client,
		cfg:    cfg,
		prefix: "ratelimit:" + cfg.Name,
		log:    log,
	}
}

// WithMetrics enables rejection counters.
func (l *DistributedRateLimiter) WithMetrics(m *observability.Metrics) *DistributedRateLimiter {
	l.metrics = m
	return l
}

// WithMonitor reports violations to the auth monitor.
func (l *DistributedRateLimiter) WithMonitor(m *monitor.Monitor) *DistributedRateLimiter {
	l.monitor = m
	return l
}

func (l *DistributedRateLimiter) key(ip string) string {
	return l.prefix + ":" + ip
}

// take increments the window counter for ip. The INCR and EXPIRE run in
// one pipeline so a fresh key always carries a TTL.
func (l *DistributedRateLimiter) take(ctx context.Context, ip string) (allowed bool, retryAfter int, err error) {
	key := l.key(ip)

	pipe := l.redis.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, l.cfg.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, 0, err
	}

	if incr.Val() <= int64(l.cfg.Limit) {
		return true, 0, nil
	}

	retryAfter = int(l.cfg.Window.Seconds())
	if ttl, err := l.redis.TTL(ctx, key).Result(); err == nil && ttl > 0 {
		retryAfter = int(ttl.Round(time.Second).Seconds())
	}
	return false, retryAfter, nil
}

// Reset clears the window for ip.
func (l *DistributedRateLimiter) Reset(ctx context.Context, ip string) error {
	return l.redis.Del(ctx, l.key(ip)).Err()
}

// Handler wraps next with the distributed rate limit.
func (l *DistributedRateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := ClientIP(r)
		allowed, retryAfter, err := l.take(r.Context(), ip)
		if err != nil {
			l.log.WithError(err).WithField("limiter", l.cfg.Name).Warn("rate limiter unavailable, failing open")
			next.ServeHTTP(w, r)
			return
		}

		if !allowed {
			if l.metrics != nil {
				l.metrics.RateLimitRejectsTotal.WithLabelValues(l.cfg.Name).Inc()
			}
			if l.monitor != nil {
				l.monitor.TrackRateLimitViolation(r.Context(), ip, l.cfg.Name, r.URL.Path)
			}
			if l.cfg.LogOnly {
				l.log.WithFields(map[string]interface{}{
					"limiter": l.cfg.Name,
					"ip":      ip,
					"path":    r.URL.Path,
				}).Warn("rate limit exceeded, allowing in development")
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
			httputil.WriteTooManyRequests(w, l.cfg.Message, retryAfter)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// HealthCheck verifies Redis connectivity.
func (l *DistributedRateLimiter) HealthCheck(ctx context.Context) error {
	return l.redis.Ping(ctx).Err()
}
