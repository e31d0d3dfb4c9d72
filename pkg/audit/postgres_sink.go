package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// PostgresSink persists audit entries in an audit_log table so they
// survive restarts and can be queried with SQL retention tooling.
type PostgresSink struct {
	db *sql.DB
}

const auditTableDDL = `
CREATE TABLE IF NOT EXISTS audit_log (
	id         BIGSERIAL PRIMARY KEY,
	occurred_at TIMESTAMPTZ NOT NULL,
	event_type TEXT NOT NULL,
	severity   TEXT NOT NULL,
	user_id    TEXT NOT NULL DEFAULT '',
	email      TEXT NOT NULL DEFAULT '',
	ip_address TEXT NOT NULL DEFAULT '',
	user_agent TEXT NOT NULL DEFAULT '',
	request_id TEXT NOT NULL DEFAULT '',
	message    TEXT NOT NULL DEFAULT '',
	details    JSONB
);
CREATE INDEX IF NOT EXISTS audit_log_occurred_at_idx ON audit_log (occurred_at DESC);
CREATE INDEX IF NOT EXISTS audit_log_event_type_idx ON audit_log (event_type);
`

// NewPostgresSink creates the audit_log table when missing.
func NewPostgresSink(ctx context.Context, db *sql.DB) (*PostgresSink, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if _, err := db.ExecContext(ctx, auditTableDDL); err != nil {
		return nil, fmt.Errorf("failed to create audit_log table: %w", err)
	}
	return &PostgresSink{db: db}, nil
}

// Record inserts a single entry.
func (s *PostgresSink) Record(ctx context.Context, entry *Entry) error {
	var details []byte
	if len(entry.Details) > 0 {
		var err error
		details, err = json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("failed to encode audit details: %w", err)
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (occurred_at, event_type, severity, user_id, email, ip_address, user_agent, request_id, message, details)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		entry.Timestamp, string(entry.EventType), string(entry.Severity),
		entry.UserID, entry.Email, entry.IPAddress, entry.UserAgent,
		entry.RequestID, entry.Message, nullableJSON(details),
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

func nullableJSON(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return b
}

// Query returns matching entries, newest first.
func (s *PostgresSink) Query(filter QueryFilter) ([]*Entry, error) {
	var (
		conds []string
		args  []interface{}
	)
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.EventType != "" {
		add("event_type = $%d", string(filter.EventType))
	}
	if filter.Severity != "" {
		add("severity = $%d", string(filter.Severity))
	}
	if filter.UserID != "" {
		add("user_id = $%d", filter.UserID)
	}
	if filter.IPAddress != "" {
		add("ip_address = $%d", filter.IPAddress)
	}
	if filter.Since != nil {
		add("occurred_at >= $%d", *filter.Since)
	}
	if filter.Until != nil {
		add("occurred_at <= $%d", *filter.Until)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	args = append(args, limit)

	query := `SELECT occurred_at, event_type, severity, user_id, email, ip_address, user_agent, request_id, message, details FROM audit_log`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY occurred_at DESC LIMIT $%d", len(args))

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit_log: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var (
			e         Entry
			eventType string
			severity  string
			details   []byte
		)
		if err := rows.Scan(&e.Timestamp, &eventType, &severity, &e.UserID, &e.Email,
			&e.IPAddress, &e.UserAgent, &e.RequestID, &e.Message, &details); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.EventType = EventType(eventType)
		e.Severity = Severity(severity)
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, fmt.Errorf("failed to decode audit details: %w", err)
			}
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// Prune deletes entries older than the cutoff and returns how many were
// removed.
func (s *PostgresSink) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM audit_log WHERE occurred_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to prune audit_log: %w", err)
	}
	return res.RowsAffected()
}

// Close is a no-op; the pool is owned by the storage layer.
func (s *PostgresSink) Close() error { return nil }
