// Package audit records security-relevant events. The file sink writes
// an append-only, newline-delimited JSON log with size-based rotation;
// the Postgres sink keeps the same entries in an audit_log table, and a
// multi sink can run both side by side. Entries can be exported as
// JSON, NDJSON, or CSV for offline review.
//
// Events are classified by severity when recorded: failed logins and
// SECURITY_* events are HIGH, account mutations are MEDIUM, everything
// else LOW. Recording is best effort; a failing sink never fails the
// operation being audited. File sink queries cover the active log file
// only.
package audit
