// Package storage persists users, vendor requests, and vendor profiles.
// Two implementations exist: an in-memory store for development and
// tests, and a PostgreSQL store for production. CachedStore layers a
// TTL-bounded LRU over user lookups on either one.
package storage
