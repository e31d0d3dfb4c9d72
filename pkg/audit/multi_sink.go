package audit

import (
	"context"
	"errors"
)

// MultiSink fans every entry out to several sinks, so the file trail and
// the database trail stay in step. Queries are answered by the first
// sink, which is expected to be the authoritative one.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink combines sinks. At least one is required.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// Record writes to every sink and joins the failures, so one broken
// destination does not hide entries from the others.
func (m *MultiSink) Record(ctx context.Context, entry *Entry) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Record(ctx, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Query delegates to the first sink.
func (m *MultiSink) Query(filter QueryFilter) ([]*Entry, error) {
	if len(m.sinks) == 0 {
		return nil, nil
	}
	return m.sinks[0].Query(filter)
}

// Close closes every sink and joins the failures.
func (m *MultiSink) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
