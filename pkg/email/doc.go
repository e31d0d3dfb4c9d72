// Package email delivers the platform's transactional messages: email
// verification, password reset, and vendor approval notifications. Delivery
// goes through SMTP when configured and falls back to log-only output in
// development. Email failures are reported to callers but are never fatal to
// the operation that produced the message.
package email
