package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/playbook/internal/recordstore"
)

// Builder accumulates business records and inserts them in the order they
// were added.
type Builder struct {
	t       *testing.T
	store   recordstore.Store
	records []recordData
}

// NewBuilder creates a builder for the given store.
func NewBuilder(t *testing.T, store recordstore.Store) *Builder {
	t.Helper()
	return &Builder{t: t, store: store}
}

// WithRecord adds a record to table with optional configuration.
func (b *Builder) WithRecord(table string, opts ...RecordOption) *Builder {
	rec := recordstore.Record{}
	for _, opt := range opts {
		opt(rec)
	}
	b.records = append(b.records, recordData{table: table, fields: rec})
	return b
}

// Build inserts all accumulated records and returns them as stored.
func (b *Builder) Build() []recordstore.Record {
	b.t.Helper()
	out := make([]recordstore.Record, 0, len(b.records))
	for _, r := range b.records {
		stored, err := b.store.Insert(context.Background(), r.table, r.fields)
		require.NoError(b.t, err, "insert into %s", r.table)
		out = append(out, stored)
	}
	b.records = nil
	return out
}
