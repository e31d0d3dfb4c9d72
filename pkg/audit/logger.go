package audit

import (
	"context"
	"time"

	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/contextkeys"
	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/observability"
)

// Sink persists audit entries and answers queries over them.
type Sink interface {
	// Record appends a single entry.
	Record(ctx context.Context, entry *Entry) error

	// Query returns entries matching the filter, newest first.
	Query(filter QueryFilter) ([]*Entry, error)

	// Close flushes and releases the sink.
	Close() error
}

// NopSink discards every entry. Used in tests and when auditing is disabled.
type NopSink struct{}

func (NopSink) Record(ctx context.Context, entry *Entry) error { return nil }
func (NopSink) Query(filter QueryFilter) ([]*Entry, error)     { return nil, nil }
func (NopSink) Close() error                                   { return nil }

// Logger records security events through a Sink. Recording is best
// effort: a sink failure is logged and swallowed so that audit trouble
// never fails the request that triggered the event.
type Logger struct {
	sink    Sink
	log     *observability.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// NewLogger wraps a sink. log may not be nil.
func NewLogger(sink Sink, log *observability.Logger) *Logger {
	if sink == nil {
		sink = NopSink{}
	}
	return &Logger{
		sink: sink,
		log:  log,
		now:  time.Now,
	}
}

// WithMetrics enables per-severity event counters.
func (l *Logger) WithMetrics(m *observability.Metrics) *Logger {
	l.metrics = m
	return l
}

// Record stamps the entry with timestamp, severity and request id, then
// hands it to the sink.
func (l *Logger) Record(ctx context.Context, entry *Entry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = l.now().UTC()
	}
	if entry.Severity == "" {
		entry.Severity = SeverityOf(entry.EventType)
	}
	if entry.RequestID == "" {
		entry.RequestID = contextkeys.GetRequestID(ctx)
	}

	if l.metrics != nil {
		l.metrics.AuditEventsTotal.WithLabelValues(string(entry.Severity)).Inc()
	}

	if err := l.sink.Record(ctx, entry); err != nil {
		l.log.WithError(err).
			WithField("event_type", string(entry.EventType)).
			Warn("failed to record audit event")
	}
}

// Query returns matching entries from the sink, newest first.
func (l *Logger) Query(filter QueryFilter) ([]*Entry, error) {
	return l.sink.Query(filter)
}

// Close closes the underlying sink.
func (l *Logger) Close() error {
	return l.sink.Close()
}

func (l *Logger) LogLoginAttempt(ctx context.Context, email, ip, userAgent string) {
	l.Record(ctx, &Entry{
		EventType: EventLoginAttempt,
		Email:     email,
		IPAddress: ip,
		UserAgent: userAgent,
	})
}

func (l *Logger) LogLoginSuccess(ctx context.Context, userID, email, ip, userAgent string) {
	l.Record(ctx, &Entry{
		EventType: EventLoginSuccess,
		UserID:    userID,
		Email:     email,
		IPAddress: ip,
		UserAgent: userAgent,
	})
}

func (l *Logger) LogLoginFailure(ctx context.Context, email, ip, userAgent, reason string) {
	l.Record(ctx, &Entry{
		EventType: EventLoginFailure,
		Email:     email,
		IPAddress: ip,
		UserAgent: userAgent,
		Message:   reason,
	})
}

func (l *Logger) LogLogout(ctx context.Context, userID, ip string) {
	l.Record(ctx, &Entry{
		EventType: EventLogout,
		UserID:    userID,
		IPAddress: ip,
	})
}

func (l *Logger) LogTokenRefresh(ctx context.Context, userID, ip string) {
	l.Record(ctx, &Entry{
		EventType: EventTokenRefresh,
		UserID:    userID,
		IPAddress: ip,
	})
}

func (l *Logger) LogRegistration(ctx context.Context, userID, email, ip, userAgent string) {
	l.Record(ctx, &Entry{
		EventType: EventUserRegistration,
		UserID:    userID,
		Email:     email,
		IPAddress: ip,
		UserAgent: userAgent,
	})
}

func (l *Logger) LogEmailVerification(ctx context.Context, userID, email string) {
	l.Record(ctx, &Entry{
		EventType: EventEmailVerification,
		UserID:    userID,
		Email:     email,
	})
}

func (l *Logger) LogPasswordChange(ctx context.Context, userID, ip string) {
	l.Record(ctx, &Entry{
		EventType: EventPasswordChange,
		UserID:    userID,
		IPAddress: ip,
	})
}

func (l *Logger) LogPasswordResetRequest(ctx context.Context, email, ip string) {
	l.Record(ctx, &Entry{
		EventType: EventPasswordResetRequest,
		Email:     email,
		IPAddress: ip,
	})
}

func (l *Logger) LogProfileAccess(ctx context.Context, userID, ip string) {
	l.Record(ctx, &Entry{
		EventType: EventProfileAccess,
		UserID:    userID,
		IPAddress: ip,
	})
}

func (l *Logger) LogVendorRequest(ctx context.Context, eventType EventType, userID, requestID string, details map[string]interface{}) {
	if details == nil {
		details = map[string]interface{}{}
	}
	details["requestId"] = requestID
	l.Record(ctx, &Entry{
		EventType: eventType,
		UserID:    userID,
		Details:   details,
	})
}

func (l *Logger) LogBruteForce(ctx context.Context, ip string, failureCount int) {
	l.Record(ctx, &Entry{
		EventType: EventSecurityBruteForce,
		IPAddress: ip,
		Details:   map[string]interface{}{"failureCount": failureCount},
	})
}

func (l *Logger) LogSuspiciousActivity(ctx context.Context, ip, reason string, details map[string]interface{}) {
	l.Record(ctx, &Entry{
		EventType: EventSecuritySuspiciousActivity,
		IPAddress: ip,
		Message:   reason,
		Details:   details,
	})
}

func (l *Logger) LogRateLimitExceeded(ctx context.Context, ip, limiter, path string) {
	l.Record(ctx, &Entry{
		EventType: EventSecurityRateLimitExceeded,
		IPAddress: ip,
		Details: map[string]interface{}{
			"limiter": limiter,
			"path":    path,
		},
	})
}
