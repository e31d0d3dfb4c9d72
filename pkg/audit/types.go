package audit

import (
	"strings"
	"time"
)

// EventType identifies the category of a security audit event.
type EventType string

const (
	// Authentication lifecycle
	EventLoginAttempt EventType = "LOGIN_ATTEMPT"
	EventLoginSuccess EventType = "LOGIN_SUCCESS"
	EventLoginFailure EventType = "LOGIN_FAILURE"
	EventLogout       EventType = "LOGOUT"
	EventTokenRefresh EventType = "TOKEN_REFRESH"

	// Account lifecycle
	EventUserRegistration     EventType = "USER_REGISTRATION"
	EventEmailVerification    EventType = "EMAIL_VERIFICATION"
	EventPasswordChange       EventType = "PASSWORD_CHANGE"
	EventPasswordResetRequest EventType = "PASSWORD_RESET_REQUEST"
	EventProfileAccess        EventType = "PROFILE_ACCESS"

	// Vendor workflow
	EventVendorRequestCreated  EventType = "VENDOR_REQUEST_CREATED"
	EventVendorRequestApproved EventType = "VENDOR_REQUEST_APPROVED"
	EventVendorRequestRejected EventType = "VENDOR_REQUEST_REJECTED"

	// Security signals raised by the monitor and rate limiters
	EventSecurityBruteForce         EventType = "SECURITY_BRUTE_FORCE_DETECTED"
	EventSecuritySuspiciousActivity EventType = "SECURITY_SUSPICIOUS_ACTIVITY"
	EventSecurityRateLimitExceeded  EventType = "SECURITY_RATE_LIMIT_EXCEEDED"
)

// Severity classifies how urgently an event should be reviewed.
type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// SeverityOf maps an event type to its review severity. Failed logins
// and all SECURITY_* events are high; account mutations are medium;
// everything else is routine.
func SeverityOf(t EventType) Severity {
	switch {
	case t == EventLoginFailure, strings.HasPrefix(string(t), "SECURITY_"):
		return SeverityHigh
	case t == EventUserRegistration, t == EventPasswordChange:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Entry is a single audit log record, serialized as one JSON line.
type Entry struct {
	Timestamp time.Time              `json:"timestamp"`
	EventType EventType              `json:"eventType"`
	Severity  Severity               `json:"severity"`
	UserID    string                 `json:"userId,omitempty"`
	Email     string                 `json:"email,omitempty"`
	IPAddress string                 `json:"ipAddress,omitempty"`
	UserAgent string                 `json:"userAgent,omitempty"`
	RequestID string                 `json:"requestId,omitempty"`
	Message   string                 `json:"message,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// QueryFilter narrows a log query. Zero-valued fields match everything;
// set fields are combined with AND.
type QueryFilter struct {
	EventType EventType
	Severity  Severity
	UserID    string
	IPAddress string
	Since     *time.Time
	Until     *time.Time

	// Limit caps the number of returned entries. Zero means DefaultQueryLimit.
	Limit int
}

// DefaultQueryLimit bounds queries that do not specify their own limit.
const DefaultQueryLimit = 100

// Matches reports whether the entry satisfies every set filter field.
func (f QueryFilter) Matches(e *Entry) bool {
	if f.EventType != "" && e.EventType != f.EventType {
		return false
	}
	if f.Severity != "" && e.Severity != f.Severity {
		return false
	}
	if f.UserID != "" && e.UserID != f.UserID {
		return false
	}
	if f.IPAddress != "" && e.IPAddress != f.IPAddress {
		return false
	}
	if f.Since != nil && e.Timestamp.Before(*f.Since) {
		return false
	}
	if f.Until != nil && e.Timestamp.After(*f.Until) {
		return false
	}
	return true
}
