package monitor

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/audit"
	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/observability"
)

type memorySink struct {
	entries []*audit.Entry
}

func (s *memorySink) Record(ctx context.Context, entry *audit.Entry) error {
	s.entries = append(s.entries, entry)
	return nil
}

func (s *memorySink) Query(filter audit.QueryFilter) ([]*audit.Entry, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = audit.DefaultQueryLimit
	}
	var out []*audit.Entry
	for i := len(s.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if filter.Matches(s.entries[i]) {
			out = append(out, s.entries[i])
		}
	}
	return out, nil
}

func (s *memorySink) Close() error { return nil }

func (s *memorySink) byType(t audit.EventType) []*audit.Entry {
	var out []*audit.Entry
	for _, e := range s.entries {
		if e.EventType == t {
			out = append(out, e)
		}
	}
	return out
}

func newTestMonitor(cfg Config) (*Monitor, *memorySink) {
	sink := &memorySink{}
	log := observability.NewLogger(observability.DebugLevel, &bytes.Buffer{})
	return New(cfg, audit.NewLogger(sink, log), log), sink
}

func TestTrackLoginFailureThresholds(t *testing.T) {
	m, sink := newTestMonitor(Config{})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		m.TrackLoginFailure(ctx, "10.0.0.1", "a@b.com")
	}
	assert.False(t, m.IsSuspiciousIP("10.0.0.1"))
	assert.Empty(t, sink.byType(audit.EventSecuritySuspiciousActivity))

	// Third failure crosses the suspicious threshold.
	m.TrackLoginFailure(ctx, "10.0.0.1", "a@b.com")
	assert.True(t, m.IsSuspiciousIP("10.0.0.1"))
	require.Len(t, sink.byType(audit.EventSecuritySuspiciousActivity), 1)
	assert.Empty(t, sink.byType(audit.EventSecurityBruteForce))

	m.TrackLoginFailure(ctx, "10.0.0.1", "a@b.com")
	assert.Empty(t, sink.byType(audit.EventSecurityBruteForce))

	// Fifth failure raises the brute-force alert.
	m.TrackLoginFailure(ctx, "10.0.0.1", "a@b.com")
	alerts := sink.byType(audit.EventSecurityBruteForce)
	require.Len(t, alerts, 1)
	assert.Equal(t, 5, alerts[0].Details["failureCount"])

	// Alerts fire on the crossing only, not on every later failure.
	m.TrackLoginFailure(ctx, "10.0.0.1", "a@b.com")
	assert.Len(t, sink.byType(audit.EventSecurityBruteForce), 1)
	assert.Len(t, sink.byType(audit.EventSecuritySuspiciousActivity), 1)
	assert.Equal(t, 6, m.FailureCount("10.0.0.1", "a@b.com"))
}

func TestTrackLoginFailureEqualThresholdsFireTogether(t *testing.T) {
	m, sink := newTestMonitor(Config{SuspiciousThreshold: 2, BruteForceThreshold: 2})
	ctx := context.Background()

	m.TrackLoginFailure(ctx, "10.0.0.2", "a@b.com")
	m.TrackLoginFailure(ctx, "10.0.0.2", "a@b.com")

	assert.Len(t, sink.byType(audit.EventSecuritySuspiciousActivity), 1)
	assert.Len(t, sink.byType(audit.EventSecurityBruteForce), 1)
}

func TestResetFailureCountKeepsSuspiciousFlag(t *testing.T) {
	m, _ := newTestMonitor(Config{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		m.TrackLoginFailure(ctx, "10.0.0.3", "a@b.com")
	}
	require.True(t, m.IsSuspiciousIP("10.0.0.3"))

	m.ResetFailureCount("10.0.0.3", "a@b.com")
	assert.Equal(t, 0, m.FailureCount("10.0.0.3", "a@b.com"))
	assert.True(t, m.IsSuspiciousIP("10.0.0.3"), "suspicious flag survives counter reset")
}

func TestResetIsScopedToAccountPair(t *testing.T) {
	m, sink := newTestMonitor(Config{})
	ctx := context.Background()

	// Four failures against the victim, then the attacker logs into
	// their own account from the same IP.
	for i := 0; i < 4; i++ {
		m.TrackLoginFailure(ctx, "1.2.3.4", "victim@y.com")
	}
	m.ResetFailureCount("1.2.3.4", "attacker@x.com")

	// The victim's counter is untouched, so the fifth failure still
	// raises the brute-force alert.
	m.TrackLoginFailure(ctx, "1.2.3.4", "victim@y.com")
	assert.Equal(t, 5, m.FailureCount("1.2.3.4", "victim@y.com"))
	require.Len(t, sink.byType(audit.EventSecurityBruteForce), 1)
}

func TestCleanupDropsOnlyLowCounters(t *testing.T) {
	m, _ := newTestMonitor(Config{})
	ctx := context.Background()

	m.TrackLoginFailure(ctx, "10.0.0.4", "a@b.com")
	m.TrackLoginFailure(ctx, "10.0.0.4", "a@b.com")
	for i := 0; i < 4; i++ {
		m.TrackLoginFailure(ctx, "10.0.0.5", "a@b.com")
	}

	dropped := m.Cleanup()
	assert.Equal(t, 1, dropped)
	assert.Equal(t, 0, m.FailureCount("10.0.0.4", "a@b.com"))
	assert.Equal(t, 4, m.FailureCount("10.0.0.5", "a@b.com"))
	assert.True(t, m.IsSuspiciousIP("10.0.0.5"))
}

func TestTrackSuspiciousActivityDirect(t *testing.T) {
	m, sink := newTestMonitor(Config{})
	ctx := context.Background()

	m.TrackSuspiciousActivity(ctx, "10.0.0.6", "token replay")
	m.TrackSuspiciousActivity(ctx, "10.0.0.6", "token replay")

	assert.True(t, m.IsSuspiciousIP("10.0.0.6"))
	assert.Len(t, sink.byType(audit.EventSecuritySuspiciousActivity), 1)
}

func TestTrackRateLimitViolation(t *testing.T) {
	m, sink := newTestMonitor(Config{})
	ctx := context.Background()

	m.TrackRateLimitViolation(ctx, "10.0.0.7", "login", "/api/auth/login")

	events := sink.byType(audit.EventSecurityRateLimitExceeded)
	require.Len(t, events, 1)
	assert.Equal(t, "login", events[0].Details["limiter"])
}

func TestHealth(t *testing.T) {
	m, _ := newTestMonitor(Config{})
	ctx := context.Background()

	h := m.Health()
	assert.Equal(t, "healthy", h.Status)
	assert.Equal(t, DefaultSuspiciousThreshold, h.SuspiciousThreshold)
	assert.Equal(t, DefaultBruteForceThreshold, h.BruteForceThreshold)

	for i := 0; i < 3; i++ {
		m.TrackLoginFailure(ctx, "10.0.0.8", "a@b.com")
	}

	h = m.Health()
	assert.Equal(t, "warning", h.Status)
	assert.Equal(t, 1, h.TrackedIPs)
	assert.Equal(t, 1, h.SuspiciousIPs)
	assert.Equal(t, int64(3), h.TotalLoginFailures)
}

func TestGenerateReport(t *testing.T) {
	sink := &memorySink{}
	log := observability.NewLogger(observability.DebugLevel, &bytes.Buffer{})
	auditor := audit.NewLogger(sink, log)
	m := New(Config{}, auditor, log)
	ctx := context.Background()

	// 12 offending IPs with increasing windowed failure counts.
	for i := 0; i < 12; i++ {
		ip := fmt.Sprintf("10.1.0.%d", i)
		for j := 0; j <= i; j++ {
			auditor.LogLoginFailure(ctx, "victim@y.com", ip, "ua", "invalid credentials")
		}
	}
	auditor.LogLoginSuccess(ctx, "u1", "a@b.com", "10.1.0.0", "ua")
	m.TrackRateLimitViolation(ctx, "10.1.0.0", "api", "/api/vendors")

	report, err := m.GenerateReport(15 * time.Minute)
	require.NoError(t, err)

	assert.Equal(t, "15m0s", report.Window)
	assert.Equal(t, 80, report.TotalEvents)
	assert.Equal(t, 78, report.EventCounts[audit.EventLoginFailure])
	assert.Equal(t, 1, report.EventCounts[audit.EventLoginSuccess])
	assert.Equal(t, 1, report.EventCounts[audit.EventSecurityRateLimitExceeded])
	assert.Equal(t, 1, report.RateLimitViolations)

	require.Len(t, report.TopOffenders, 10)
	assert.Equal(t, "10.1.0.11", report.TopOffenders[0].IP)
	assert.Equal(t, 12, report.TopOffenders[0].Failures)
	assert.GreaterOrEqual(t, report.TopOffenders[0].Failures, report.TopOffenders[9].Failures)
	assert.False(t, report.TopOffenders[0].LastSeen.Before(report.TopOffenders[0].FirstSeen))

	// The two lowest-count IPs fall outside the top ten.
	for _, off := range report.TopOffenders {
		assert.NotEqual(t, "10.1.0.0", off.IP)
		assert.NotEqual(t, "10.1.0.1", off.IP)
	}

	require.NotEmpty(t, report.RecentHighSeverity)
	assert.LessOrEqual(t, len(report.RecentHighSeverity), 10)
	for _, e := range report.RecentHighSeverity {
		assert.Equal(t, audit.SeverityHigh, e.Severity)
	}
}

func TestGenerateReportScopesWindow(t *testing.T) {
	sink := &memorySink{}
	log := observability.NewLogger(observability.DebugLevel, &bytes.Buffer{})
	auditor := audit.NewLogger(sink, log)
	m := New(Config{}, auditor, log)
	ctx := context.Background()

	stale := &audit.Entry{
		Timestamp: time.Now().Add(-2 * time.Hour),
		EventType: audit.EventLoginFailure,
		Severity:  audit.SeverityHigh,
		IPAddress: "10.2.0.1",
	}
	require.NoError(t, sink.Record(ctx, stale))
	auditor.LogLoginFailure(ctx, "victim@y.com", "10.2.0.2", "ua", "invalid credentials")

	report, err := m.GenerateReport(15 * time.Minute)
	require.NoError(t, err)

	assert.Equal(t, 1, report.TotalEvents)
	require.Len(t, report.TopOffenders, 1)
	assert.Equal(t, "10.2.0.2", report.TopOffenders[0].IP)
}

func TestStartCleanupStops(t *testing.T) {
	m, _ := newTestMonitor(Config{})
	stop := make(chan struct{})
	m.StartCleanup(10*time.Millisecond, stop)

	m.TrackLoginFailure(context.Background(), "10.0.0.9", "a@b.com")
	assert.Eventually(t, func() bool {
		return m.FailureCount("10.0.0.9", "a@b.com") == 0
	}, time.Second, 5*time.Millisecond)

	close(stop)
}
