package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memorySink struct {
	entries []*Entry
	failure error
}

func (m *memorySink) Record(ctx context.Context, entry *Entry) error {
	if m.failure != nil {
		return m.failure
	}
	m.entries = append(m.entries, entry)
	return nil
}

func (m *memorySink) Query(filter QueryFilter) ([]*Entry, error) {
	var out []*Entry
	for i := len(m.entries) - 1; i >= 0; i-- {
		if filter.Matches(m.entries[i]) {
			out = append(out, m.entries[i])
		}
	}
	return out, nil
}

func (m *memorySink) Close() error { return m.failure }

func TestMultiSinkFansOut(t *testing.T) {
	first := &memorySink{}
	second := &memorySink{}
	multi := NewMultiSink(first, second)

	err := multi.Record(context.Background(), &Entry{EventType: EventLoginSuccess, UserID: "user-1"})
	require.NoError(t, err)

	assert.Len(t, first.entries, 1)
	assert.Len(t, second.entries, 1)
}

func TestMultiSinkKeepsWritingPastFailures(t *testing.T) {
	broken := &memorySink{failure: errors.New("disk full")}
	healthy := &memorySink{}
	multi := NewMultiSink(broken, healthy)

	err := multi.Record(context.Background(), &Entry{EventType: EventLogout})
	assert.Error(t, err)
	assert.Len(t, healthy.entries, 1, "healthy sink should still receive the entry")
}

func TestMultiSinkQueriesFirstSink(t *testing.T) {
	first := &memorySink{}
	second := &memorySink{}
	multi := NewMultiSink(first, second)

	require.NoError(t, first.Record(context.Background(), &Entry{EventType: EventLoginFailure}))

	entries, err := multi.Query(QueryFilter{EventType: EventLoginFailure})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
