package middleware

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/config"
	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/httputil"
	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/monitor"
	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/observability"
)

// LimiterConfig configures one named fixed-window rate limiter.
type LimiterConfig struct {
	// Name identifies the limiter in metrics and audit events.
	Name string

	// Limit is the max number of requests per window and source IP.
	Limit int

	// Window is the fixed window duration.
	Window time.Duration

	// Message is the rejection message. Empty falls back to a generic one.
	Message string

	// LogOnly logs and counts violations but lets the request through.
	// Enabled in development so local testing is never throttled.
	LogOnly bool
}

type window struct {
	count int
	start time.Time
}

// RateLimiter is a per-IP fixed-window limiter. Counters live in
// process memory; multi-instance deployments use the Redis-backed
// variant instead.
type RateLimiter struct {
	cfg     LimiterConfig
	log     *observability.Logger
	metrics *observability.Metrics
	monitor *monitor.Monitor
	now     func() time.Time

	mu      sync.Mutex
	windows map[string]*window
}

// NewRateLimiter builds a limiter. log may not be nil.
func NewRateLimiter(cfg LimiterConfig, log *observability.Logger) *RateLimiter {
	if cfg.Message == "" {
		cfg.Message = "Too many requests from this IP, please try again later"
	}
	return &RateLimiter{
		cfg:     cfg,
		log:     log,
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// WithMetrics enables rejection counters.
func (l *RateLimiter) WithMetrics(m *observability.Metrics) *RateLimiter {
	l.metrics = m
	return l
}

// WithMonitor reports violations to the auth monitor.
func (l *RateLimiter) WithMonitor(m *monitor.Monitor) *RateLimiter {
	l.monitor = m
	return l
}

// take counts one request for ip. It returns whether the request is
// under the limit, the remaining quota, and seconds until the window
// resets.
func (l *RateLimiter) take(ip string) (allowed bool, remaining, retryAfter int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	win, ok := l.windows[ip]
	if !ok || now.Sub(win.start) >= l.cfg.Window {
		win = &window{start: now}
		l.windows[ip] = win
	}
	win.count++

	remaining = l.cfg.Limit - win.count
	if remaining < 0 {
		remaining = 0
	}
	retryAfter = int(win.start.Add(l.cfg.Window).Sub(now).Round(time.Second).Seconds())
	return win.count <= l.cfg.Limit, remaining, retryAfter
}

// Handler wraps next with the rate limit.
func (l *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := ClientIP(r)
		allowed, remaining, retryAfter := l.take(ip)

		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", l.cfg.Limit))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))

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

// Cleanup drops expired windows and returns how many were removed.
func (l *RateLimiter) Cleanup() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	dropped := 0
	for ip, win := range l.windows {
		if now.Sub(win.start) >= l.cfg.Window {
			delete(l.windows, ip)
			dropped++
		}
	}
	return dropped
}

// StartCleanup prunes expired windows once per window duration until ctx
// is cancelled.
func (l *RateLimiter) StartCleanup(ctx context.Context) {
	ticker := time.NewTicker(l.cfg.Window)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				l.Cleanup()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// RateLimiters bundles the per-route limiters used by the API.
type RateLimiters struct {
	API           *RateLimiter
	Login         *RateLimiter
	Registration  *RateLimiter
	PasswordReset *RateLimiter
	Refresh       *RateLimiter
}

// NewRateLimiters builds the standard limiter set from config. logOnly
// should be true outside production.
func NewRateLimiters(cfg config.RateLimitConfig, logOnly bool, log *observability.Logger) *RateLimiters {
	build := func(name string, limit int, windowDur time.Duration, message string) *RateLimiter {
		return NewRateLimiter(LimiterConfig{
			Name:    name,
			Limit:   limit,
			Window:  windowDur,
			Message: message,
			LogOnly: logOnly,
		}, log)
	}

	return &RateLimiters{
		API:           build("api", cfg.APILimit, cfg.APIWindow, ""),
		Login:         build("login", cfg.LoginLimit, cfg.LoginWindow, "Too many login attempts, please try again later"),
		Registration:  build("registration", cfg.RegistrationLimit, cfg.RegistrationWindow, "Too many registration attempts, please try again later"),
		PasswordReset: build("password_reset", cfg.PasswordResetLimit, cfg.PasswordResetWindow, "Too many password reset requests, please try again later"),
		Refresh:       build("refresh", cfg.RefreshLimit, cfg.RefreshWindow, "Too many token refresh attempts, please try again later"),
	}
}

// WithMetrics enables rejection counters on every limiter.
func (s *RateLimiters) WithMetrics(m *observability.Metrics) *RateLimiters {
	for _, l := range s.all() {
		l.WithMetrics(m)
	}
	return s
}

// WithMonitor reports violations from every limiter to the monitor.
func (s *RateLimiters) WithMonitor(m *monitor.Monitor) *RateLimiters {
	for _, l := range s.all() {
		l.WithMonitor(m)
	}
	return s
}

// StartCleanup starts background pruning on every limiter.
func (s *RateLimiters) StartCleanup(ctx context.Context) {
	for _, l := range s.all() {
		l.StartCleanup(ctx)
	}
}

func (s *RateLimiters) all() []*RateLimiter {
	return []*RateLimiter{s.API, s.Login, s.Registration, s.PasswordReset, s.Refresh}
}
