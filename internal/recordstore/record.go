package recordstore

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Record is a schemaless document. Values decoded from a store are JSON
// shaped: strings, float64 numbers, bools, nil, []any and map[string]any.
type Record map[string]any

// ID returns the store-assigned id.
func (r Record) ID() string {
	return r.String(FieldID)
}

// Has reports whether the field is present and non-null.
func (r Record) Has(field string) bool {
	v, ok := r[field]
	return ok && v != nil
}

// String returns the field as a string, or "" if absent or not a string.
func (r Record) String(field string) string {
	s, _ := r[field].(string)
	return s
}

// NonEmpty reports whether the field holds a string with non-whitespace content.
func (r Record) NonEmpty(field string) bool {
	return strings.TrimSpace(r.String(field)) != ""
}

// Float returns the field as a number. Numeric strings are parsed.
func (r Record) Float(field string) (float64, bool) {
	return toFloat(r[field])
}

// Int returns the field as an integer, truncating fractional values.
func (r Record) Int(field string) (int, bool) {
	f, ok := toFloat(r[field])
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int(f), true
}

// Bool returns the field as a bool.
func (r Record) Bool(field string) bool {
	b, _ := r[field].(bool)
	return b
}

// Time parses an RFC 3339 timestamp field. Returns the zero time if absent
// or malformed.
func (r Record) Time(field string) time.Time {
	switch v := r[field].(type) {
	case time.Time:
		return v
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return time.Time{}
		}
		return t
	}
	return time.Time{}
}

// TimePtr is Time for optional timestamps.
func (r Record) TimePtr(field string) *time.Time {
	t := r.Time(field)
	if t.IsZero() {
		return nil
	}
	return &t
}

// List returns the field as a slice, or nil.
func (r Record) List(field string) []any {
	l, _ := r[field].([]any)
	return l
}

// Map returns the field as a nested record, or nil.
func (r Record) Map(field string) Record {
	switch v := r[field].(type) {
	case map[string]any:
		return Record(v)
	case Record:
		return v
	}
	return nil
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return map[string]any(Record(val).Clone())
	case Record:
		return val.Clone()
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	}
	return v
}

// Normalize converts arbitrary Go values into their JSON-decoded shape so
// records compare the same regardless of which store produced them.
func Normalize(r Record) (Record, error) {
	if r == nil {
		return Record{}, nil
	}
	data, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	var out Record
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

// AsRecord converts a list element into a Record when it is an object.
func AsRecord(v any) (Record, bool) {
	switch m := v.(type) {
	case map[string]any:
		return Record(m), true
	case Record:
		return m, true
	}
	return nil, false
}
