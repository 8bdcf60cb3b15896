package recordstore

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process Store. Records are normalized to their JSON shape
// on write so callers see the same values a persistent store would return.
type Memory struct {
	mu     sync.RWMutex
	tables map[string][]Record
	fail   map[string]error
	now    func() time.Time
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		tables: make(map[string][]Record),
		fail:   make(map[string]error),
		now:    time.Now,
	}
}

// WithClock overrides the timestamp source.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
	return m
}

// FailTable makes every operation on table return err until cleared with a
// nil error. Used to simulate transport failures.
func (m *Memory) FailTable(table string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.fail, table)
		return
	}
	m.fail[table] = err
}

// SelectOne implements Store.
func (m *Memory) SelectOne(ctx context.Context, table string, filter Filter) (Record, error) {
	records, err := m.SelectMany(ctx, table, filter)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

// SelectMany implements Store.
func (m *Memory) SelectMany(ctx context.Context, table string, filter Filter, orderBy ...OrderBy) ([]Record, error) {
	if err := m.check(ctx, table, filter); err != nil {
		return nil, err
	}
	for _, o := range orderBy {
		if err := ValidateName(o.Field); err != nil {
			return nil, err
		}
	}
	want, err := Normalize(Record(filter))
	if err != nil {
		return nil, fmt.Errorf("normalizing filter: %w", err)
	}

	m.mu.RLock()
	var out []Record
	for _, rec := range m.tables[table] {
		if matches(rec, want) {
			out = append(out, rec.Clone())
		}
	}
	m.mu.RUnlock()

	if len(orderBy) > 0 {
		sort.SliceStable(out, func(i, j int) bool {
			for _, o := range orderBy {
				c := compareValues(out[i][o.Field], out[j][o.Field])
				if c == 0 {
					continue
				}
				if o.Desc {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}
	return out, nil
}

// Insert implements Store.
func (m *Memory) Insert(ctx context.Context, table string, record Record) (Record, error) {
	if err := m.check(ctx, table, nil); err != nil {
		return nil, err
	}
	for field := range record {
		if err := ValidateName(field); err != nil {
			return nil, err
		}
	}
	rec, err := Normalize(record)
	if err != nil {
		return nil, fmt.Errorf("normalizing record: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ts := FormatTime(m.now())
	rec[FieldID] = uuid.NewString()
	rec[FieldCreatedAt] = ts
	rec[FieldUpdatedAt] = ts

	m.tables[table] = append(m.tables[table], rec)
	return rec.Clone(), nil
}

// Update implements Store.
func (m *Memory) Update(ctx context.Context, table string, filter Filter, patch Record) (Record, error) {
	if err := m.check(ctx, table, filter); err != nil {
		return nil, err
	}
	for field := range patch {
		if err := ValidateName(field); err != nil {
			return nil, err
		}
	}
	want, err := Normalize(Record(filter))
	if err != nil {
		return nil, fmt.Errorf("normalizing filter: %w", err)
	}
	normalizedPatch, err := Normalize(patch)
	if err != nil {
		return nil, fmt.Errorf("normalizing patch: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	idx := -1
	for i, rec := range m.tables[table] {
		if !matches(rec, want) {
			continue
		}
		if idx >= 0 {
			return nil, ErrAmbiguousUpdate
		}
		idx = i
	}
	if idx < 0 {
		return nil, ErrNoMatch
	}

	updated := Merge(m.tables[table][idx], normalizedPatch)
	updated[FieldUpdatedAt] = FormatTime(m.now())
	m.tables[table][idx] = updated
	return updated.Clone(), nil
}

// Count returns the number of records in table.
func (m *Memory) Count(table string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tables[table])
}

func (m *Memory) check(ctx context.Context, table string, filter Filter) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidateName(table); err != nil {
		return err
	}
	if err := ValidateFilter(filter); err != nil {
		return err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.fail[table]; err != nil {
		return fmt.Errorf("reading %s: %w", table, err)
	}
	return nil
}

func matches(rec, filter Record) bool {
	for field, want := range filter {
		got, ok := rec[field]
		if want == nil {
			if ok && got != nil {
				return false
			}
			continue
		}
		if !ok || !valuesEqual(got, want) {
			return false
		}
	}
	return true
}

func valuesEqual(a, b any) bool {
	af, aNum := toNumber(a)
	bf, bNum := toNumber(b)
	if aNum && bNum {
		return af == bf
	}
	return reflect.DeepEqual(a, b)
}

// toNumber accepts only numeric kinds; numeric strings stay strings.
func toNumber(v any) (float64, bool) {
	switch v.(type) {
	case float64, float32, int, int32, int64:
		return toFloat(v)
	}
	return 0, false
}

// compareValues orders nil first, then numbers, then strings, then anything
// else by its formatted value.
func compareValues(a, b any) int {
	rank := func(v any) int {
		if v == nil {
			return 0
		}
		if _, ok := toNumber(v); ok {
			return 1
		}
		if _, ok := v.(string); ok {
			return 2
		}
		return 3
	}
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return ra - rb
	}
	switch ra {
	case 0:
		return 0
	case 1:
		af, _ := toNumber(a)
		bf, _ := toNumber(b)
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		}
		return 0
	case 2:
		as, bs := a.(string), b.(string)
		switch {
		case as < bs:
			return -1
		case as > bs:
			return 1
		}
		return 0
	}
	as, bs := fmt.Sprint(a), fmt.Sprint(b)
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	}
	return 0
}
