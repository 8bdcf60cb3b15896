// Package recordstore defines the generic record persistence contract the
// engine and the verification rules read and write through.
//
// Records are schemaless JSON-like documents grouped by table. The store owns
// the id, created_at and updated_at fields of every record it persists.
package recordstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"
)

// Reserved fields assigned by the store.
const (
	FieldID        = "id"
	FieldCreatedAt = "created_at"
	FieldUpdatedAt = "updated_at"
)

var (
	// ErrNoMatch is returned by Update when no record matches the filter.
	ErrNoMatch = errors.New("recordstore: no record matches filter")

	// ErrAmbiguousUpdate is returned by Update when the filter matches more
	// than one record.
	ErrAmbiguousUpdate = errors.New("recordstore: filter matches more than one record")

	// ErrInvalidName is returned for table or field names outside [A-Za-z0-9_].
	ErrInvalidName = errors.New("recordstore: invalid name")
)

// Filter is an equality filter: every field must equal its value.
// A nil value matches records where the field is absent or null.
type Filter map[string]any

// OrderBy sorts SelectMany results by a single field.
type OrderBy struct {
	Field string
	Desc  bool
}

// Store is the generic persistence contract.
//
// Transport failures are returned as errors and are distinct from absence:
// SelectOne returns (nil, nil) when nothing matches.
type Store interface {
	// SelectOne returns the first record matching filter, or nil if none does.
	SelectOne(ctx context.Context, table string, filter Filter) (Record, error)

	// SelectMany returns every record matching filter. Without an explicit
	// order, records come back in insertion order.
	SelectMany(ctx context.Context, table string, filter Filter, orderBy ...OrderBy) ([]Record, error)

	// Insert stores a new record and returns it with id, created_at and
	// updated_at assigned.
	Insert(ctx context.Context, table string, record Record) (Record, error)

	// Update applies patch to the single record matching filter and returns
	// the updated record. It fails with ErrNoMatch or ErrAmbiguousUpdate
	// instead of touching zero or several records.
	Update(ctx context.Context, table string, filter Filter, patch Record) (Record, error)
}

var namePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ValidateName checks that a table or field name is safe to embed in a query.
func ValidateName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// ValidateFilter checks every field name in the filter.
func ValidateFilter(filter Filter) error {
	for field := range filter {
		if err := ValidateName(field); err != nil {
			return err
		}
	}
	return nil
}

// Merge returns a copy of existing with the top-level fields of patch applied.
// The reserved id and created_at fields are never overwritten.
func Merge(existing, patch Record) Record {
	merged := existing.Clone()
	if merged == nil {
		merged = Record{}
	}
	for k, v := range patch {
		if k == FieldID || k == FieldCreatedAt {
			continue
		}
		merged[k] = v
	}
	return merged
}

// FormatTime renders a timestamp the way stores persist it.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
