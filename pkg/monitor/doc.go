// Package monitor tracks authentication failures and rate-limit
// violations per client IP, flags suspicious sources, and raises
// brute-force alerts through the audit log.
package monitor
