package monitor

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/audit"
	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/observability"
)

const (
	// DefaultSuspiciousThreshold is the failure count at which an IP is
	// flagged as suspicious.
	DefaultSuspiciousThreshold = 3

	// DefaultBruteForceThreshold is the failure count at which a
	// brute-force alert is raised.
	DefaultBruteForceThreshold = 5

	// DefaultCleanupInterval is how often stale failure counters are dropped.
	DefaultCleanupInterval = 15 * time.Minute
)

type failureRecord struct {
	ip        string
	count     int
	firstSeen time.Time
	lastSeen  time.Time
}

// failureKey scopes a counter to one IP attacking one account, so a
// success for some other account from the same IP cannot reset it.
func failureKey(ip, email string) string {
	return ip + ":" + email
}

// Monitor tracks authentication failures per (IP, email) pair and raises
// security events when a pair's count crosses a threshold. Suspicious
// flagging is per IP and once an IP is flagged it stays flagged for the
// lifetime of the process; only the failure counters are pruned.
type Monitor struct {
	suspiciousThreshold int
	bruteForceThreshold int

	mu                 sync.Mutex
	failures           map[string]*failureRecord
	suspicious         map[string]time.Time
	rateLimitHits      map[string]int
	totalLoginFailures int64

	auditLog *audit.Logger
	log      *observability.Logger
	metrics  *observability.Metrics
	now      func() time.Time
}

// Config configures a Monitor. Zero thresholds fall back to the defaults.
type Config struct {
	SuspiciousThreshold int
	BruteForceThreshold int
}

// New builds a Monitor. auditLog and log may not be nil.
func New(cfg Config, auditLog *audit.Logger, log *observability.Logger) *Monitor {
	if cfg.SuspiciousThreshold <= 0 {
		cfg.SuspiciousThreshold = DefaultSuspiciousThreshold
	}
	if cfg.BruteForceThreshold <= 0 {
		cfg.BruteForceThreshold = DefaultBruteForceThreshold
	}
	return &Monitor{
		suspiciousThreshold: cfg.SuspiciousThreshold,
		bruteForceThreshold: cfg.BruteForceThreshold,
		failures:            make(map[string]*failureRecord),
		suspicious:          make(map[string]time.Time),
		rateLimitHits:       make(map[string]int),
		auditLog:            auditLog,
		log:                 log,
		now:                 time.Now,
	}
}

// WithMetrics enables brute-force alert counters.
func (m *Monitor) WithMetrics(metrics *observability.Metrics) *Monitor {
	m.metrics = metrics
	return m
}

// TrackLoginFailure records a failed login for email from ip. Crossing
// the suspicious threshold flags the IP and crossing the brute-force
// threshold raises an alert; both can happen on the same call.
func (m *Monitor) TrackLoginFailure(ctx context.Context, ip, email string) {
	key := failureKey(ip, email)
	m.mu.Lock()
	rec, ok := m.failures[key]
	if !ok {
		rec = &failureRecord{ip: ip, firstSeen: m.now()}
		m.failures[key] = rec
	}
	rec.count++
	rec.lastSeen = m.now()
	count := rec.count
	m.totalLoginFailures++

	flagged := false
	if count == m.suspiciousThreshold {
		if _, seen := m.suspicious[ip]; !seen {
			m.suspicious[ip] = m.now()
			flagged = true
		}
	}
	bruteForce := count == m.bruteForceThreshold
	m.mu.Unlock()

	if flagged {
		m.log.WithFields(map[string]interface{}{
			"ip":            ip,
			"failure_count": count,
		}).Warn("IP flagged as suspicious")
		m.auditLog.LogSuspiciousActivity(ctx, ip, "repeated login failures", map[string]interface{}{
			"failureCount": count,
			"email":        email,
		})
	}
	if bruteForce {
		m.log.WithFields(map[string]interface{}{
			"ip":            ip,
			"failure_count": count,
		}).Error("possible brute-force attack detected")
		m.auditLog.LogBruteForce(ctx, ip, count)
		if m.metrics != nil {
			m.metrics.BruteForceAlertsTotal.Inc()
		}
	}
}

// TrackRateLimitViolation records that ip was rejected by a rate limiter.
func (m *Monitor) TrackRateLimitViolation(ctx context.Context, ip, limiter, path string) {
	m.mu.Lock()
	m.rateLimitHits[ip]++
	m.mu.Unlock()

	m.auditLog.LogRateLimitExceeded(ctx, ip, limiter, path)
}

// TrackSuspiciousActivity flags ip directly, independent of failure counts.
func (m *Monitor) TrackSuspiciousActivity(ctx context.Context, ip, reason string) {
	m.mu.Lock()
	_, seen := m.suspicious[ip]
	if !seen {
		m.suspicious[ip] = m.now()
	}
	m.mu.Unlock()

	if !seen {
		m.auditLog.LogSuspiciousActivity(ctx, ip, reason, nil)
	}
}

// ResetFailureCount clears the counter for the (ip, email) pair,
// typically after that account logs in successfully. Counters for other
// accounts attacked from the same IP are untouched, and the suspicious
// flag, if set, remains.
func (m *Monitor) ResetFailureCount(ip, email string) {
	m.mu.Lock()
	delete(m.failures, failureKey(ip, email))
	m.mu.Unlock()
}

// FailureCount returns the current failure count for the (ip, email) pair.
func (m *Monitor) FailureCount(ip, email string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.failures[failureKey(ip, email)]; ok {
		return rec.count
	}
	return 0
}

// IsSuspiciousIP reports whether ip has ever been flagged.
func (m *Monitor) IsSuspiciousIP(ip string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.suspicious[ip]
	return ok
}

// Cleanup drops failure counters still below the suspicious threshold.
// Counters at or above it are kept so slow attacks stay visible, and the
// suspicious set is never pruned. Returns the number of counters dropped.
func (m *Monitor) Cleanup() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	dropped := 0
	for key, rec := range m.failures {
		if rec.count < m.suspiciousThreshold {
			delete(m.failures, key)
			dropped++
		}
	}
	return dropped
}

// StartCleanup runs Cleanup on the given interval until stop is closed.
func (m *Monitor) StartCleanup(interval time.Duration, stop <-chan struct{}) {
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := m.Cleanup(); n > 0 {
					m.log.WithField("dropped", n).Debug("pruned stale failure counters")
				}
			case <-stop:
				return
			}
		}
	}()
}

// HealthStatus summarizes the monitor's view of the system.
type HealthStatus struct {
	Status              string `json:"status"`
	TrackedIPs          int    `json:"trackedIps"`
	SuspiciousIPs       int    `json:"suspiciousIps"`
	TotalLoginFailures  int64  `json:"totalLoginFailures"`
	SuspiciousThreshold int    `json:"suspiciousThreshold"`
	BruteForceThreshold int    `json:"bruteForceThreshold"`
}

func (m *Monitor) distinctIPsLocked() int {
	ips := make(map[string]struct{}, len(m.failures))
	for _, rec := range m.failures {
		ips[rec.ip] = struct{}{}
	}
	return len(ips)
}

// Health reports current counters. Status degrades to "warning" as soon
// as any IP has been flagged.
func (m *Monitor) Health() HealthStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	status := "healthy"
	if len(m.suspicious) > 0 {
		status = "warning"
	}
	return HealthStatus{
		Status:              status,
		TrackedIPs:          m.distinctIPsLocked(),
		SuspiciousIPs:       len(m.suspicious),
		TotalLoginFailures:  m.totalLoginFailures,
		SuspiciousThreshold: m.suspiciousThreshold,
		BruteForceThreshold: m.bruteForceThreshold,
	}
}

// Offender is one entry in a report's top failing IPs.
type Offender struct {
	IP        string    `json:"ip"`
	Failures  int       `json:"failures"`
	FirstSeen time.Time `json:"firstSeen"`
	LastSeen  time.Time `json:"lastSeen"`
}

// Report is a security summary for a time window, aggregated from the
// audit trail plus the monitor's own counters.
type Report struct {
	GeneratedAt         time.Time               `json:"generatedAt"`
	Window              string                  `json:"window"`
	TotalEvents         int                     `json:"totalEvents"`
	EventCounts         map[audit.EventType]int `json:"eventCounts"`
	TotalLoginFailures  int64                   `json:"totalLoginFailures"`
	SuspiciousIPs       []string                `json:"suspiciousIps"`
	RateLimitViolations int                     `json:"rateLimitViolations"`
	TopOffenders        []Offender              `json:"topOffenders"`
	RecentHighSeverity  []*audit.Entry          `json:"recentHighSeverity"`
}

const (
	reportTopOffenders = 10
	reportRecentEvents = 10
	reportQueryLimit   = 1000
)

// GenerateReport builds a security report covering the given window.
// Event totals, per-type counts and the top failing IPs are computed
// from the audit entries recorded inside the window; the lifetime
// failure counter, suspicious set and rate-limit tallies come from the
// monitor itself.
func (m *Monitor) GenerateReport(window time.Duration) (*Report, error) {
	m.mu.Lock()
	report := &Report{
		GeneratedAt:        m.now().UTC(),
		Window:             window.String(),
		EventCounts:        make(map[audit.EventType]int),
		TotalLoginFailures: m.totalLoginFailures,
	}
	for ip := range m.suspicious {
		report.SuspiciousIPs = append(report.SuspiciousIPs, ip)
	}
	for _, n := range m.rateLimitHits {
		report.RateLimitViolations += n
	}
	since := m.now().Add(-window)
	m.mu.Unlock()

	sort.Strings(report.SuspiciousIPs)

	entries, err := m.auditLog.Query(audit.QueryFilter{
		Since: &since,
		Limit: reportQueryLimit,
	})
	if err != nil {
		return nil, err
	}

	report.TotalEvents = len(entries)
	offenders := make(map[string]*Offender)
	for _, e := range entries {
		report.EventCounts[e.EventType]++
		if e.Severity == audit.SeverityHigh && len(report.RecentHighSeverity) < reportRecentEvents {
			report.RecentHighSeverity = append(report.RecentHighSeverity, e)
		}
		if e.EventType != audit.EventLoginFailure || e.IPAddress == "" {
			continue
		}
		off, ok := offenders[e.IPAddress]
		if !ok {
			off = &Offender{IP: e.IPAddress, FirstSeen: e.Timestamp, LastSeen: e.Timestamp}
			offenders[e.IPAddress] = off
		}
		off.Failures++
		if e.Timestamp.Before(off.FirstSeen) {
			off.FirstSeen = e.Timestamp
		}
		if e.Timestamp.After(off.LastSeen) {
			off.LastSeen = e.Timestamp
		}
	}
	for _, off := range offenders {
		report.TopOffenders = append(report.TopOffenders, *off)
	}
	sort.Slice(report.TopOffenders, func(i, j int) bool {
		if report.TopOffenders[i].Failures != report.TopOffenders[j].Failures {
			return report.TopOffenders[i].Failures > report.TopOffenders[j].Failures
		}
		return report.TopOffenders[i].IP < report.TopOffenders[j].IP
	})
	if len(report.TopOffenders) > reportTopOffenders {
		report.TopOffenders = report.TopOffenders[:reportTopOffenders]
	}

	return report, nil
}
