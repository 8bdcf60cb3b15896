package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zjrosen/playbook/internal/recordstore"
)

// RecordStore implements recordstore.Store over the records table. Each
// record is a JSON document keyed by (collection, id); filters compare
// json_extract values.
type RecordStore struct {
	db  *sql.DB
	now func() time.Time
}

// Ensure RecordStore implements recordstore.Store.
var _ recordstore.Store = (*RecordStore)(nil)

// NewRecordStore creates a RecordStore on an already migrated connection.
func NewRecordStore(db *sql.DB, now func() time.Time) *RecordStore {
	if now == nil {
		now = time.Now
	}
	return &RecordStore{db: db, now: now}
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// SelectOne implements recordstore.Store.
func (s *RecordStore) SelectOne(ctx context.Context, table string, filter recordstore.Filter) (recordstore.Record, error) {
	where, args, err := buildWhere(table, filter)
	if err != nil {
		return nil, err
	}
	var data string
	err = s.db.QueryRowContext(ctx,
		`SELECT data FROM records WHERE `+where+` ORDER BY seq LIMIT 1`, args...,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select from %s: %w", table, err)
	}
	return decode(data)
}

// SelectMany implements recordstore.Store.
func (s *RecordStore) SelectMany(ctx context.Context, table string, filter recordstore.Filter, orderBy ...recordstore.OrderBy) ([]recordstore.Record, error) {
	where, args, err := buildWhere(table, filter)
	if err != nil {
		return nil, err
	}

	order := make([]string, 0, len(orderBy)+1)
	for _, o := range orderBy {
		if err := recordstore.ValidateName(o.Field); err != nil {
			return nil, err
		}
		dir := "ASC"
		if o.Desc {
			dir = "DESC"
		}
		order = append(order, fmt.Sprintf("json_extract(data, '$.%s') %s", o.Field, dir))
	}
	order = append(order, "seq ASC")

	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM records WHERE `+where+` ORDER BY `+strings.Join(order, ", "), args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to select from %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	var out []recordstore.Record
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", table, err)
		}
		rec, err := decode(data)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s rows: %w", table, err)
	}
	return out, nil
}

// Insert implements recordstore.Store.
func (s *RecordStore) Insert(ctx context.Context, table string, record recordstore.Record) (recordstore.Record, error) {
	if err := recordstore.ValidateName(table); err != nil {
		return nil, err
	}
	for field := range record {
		if err := recordstore.ValidateName(field); err != nil {
			return nil, err
		}
	}

	rec := record.Clone()
	if rec == nil {
		rec = recordstore.Record{}
	}
	ts := recordstore.FormatTime(s.now())
	rec[recordstore.FieldID] = uuid.NewString()
	rec[recordstore.FieldCreatedAt] = ts
	rec[recordstore.FieldUpdatedAt] = ts

	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s record: %w", table, err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO records (collection, id, data, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		table, rec.ID(), string(data), ts, ts,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert into %s: %w", table, err)
	}
	return decode(string(data))
}

// Update implements recordstore.Store. The match count and the write happen
// in one immediate transaction.
func (s *RecordStore) Update(ctx context.Context, table string, filter recordstore.Filter, patch recordstore.Record) (recordstore.Record, error) {
	where, args, err := buildWhere(table, filter)
	if err != nil {
		return nil, err
	}
	for field := range patch {
		if err := recordstore.ValidateName(field); err != nil {
			return nil, err
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin update of %s: %w", table, err)
	}
	defer func() { _ = tx.Rollback() }()

	seq, existing, err := selectSingle(ctx, tx, where, args)
	if err != nil {
		return nil, err
	}

	normalizedPatch, err := recordstore.Normalize(patch)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s patch: %w", table, err)
	}
	updated := recordstore.Merge(existing, normalizedPatch)
	ts := recordstore.FormatTime(s.now())
	updated[recordstore.FieldUpdatedAt] = ts

	data, err := json.Marshal(updated)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s record: %w", table, err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE records SET data = ?, updated_at = ? WHERE seq = ?`,
		string(data), ts, seq,
	); err != nil {
		return nil, fmt.Errorf("failed to update %s: %w", table, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit update of %s: %w", table, err)
	}
	return decode(string(data))
}

// selectSingle returns the only row matching where, or ErrNoMatch /
// ErrAmbiguousUpdate.
func selectSingle(ctx context.Context, q queryer, where string, args []any) (int64, recordstore.Record, error) {
	rows, err := q.QueryContext(ctx, `SELECT seq, data FROM records WHERE `+where+` LIMIT 2`, args...)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to select update target: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var (
		seq   int64
		data  string
		count int
	)
	for rows.Next() {
		count++
		if count > 1 {
			return 0, nil, recordstore.ErrAmbiguousUpdate
		}
		if err := rows.Scan(&seq, &data); err != nil {
			return 0, nil, fmt.Errorf("failed to scan update target: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return 0, nil, fmt.Errorf("failed to iterate update target: %w", err)
	}
	if count == 0 {
		return 0, nil, recordstore.ErrNoMatch
	}

	rec, err := decode(data)
	if err != nil {
		return 0, nil, err
	}
	return seq, rec, nil
}

// buildWhere renders the collection and filter predicates. Field names are
// validated before being embedded in the JSON path.
func buildWhere(table string, filter recordstore.Filter) (string, []any, error) {
	if err := recordstore.ValidateName(table); err != nil {
		return "", nil, err
	}
	if err := recordstore.ValidateFilter(filter); err != nil {
		return "", nil, err
	}

	clauses := []string{"collection = ?"}
	args := []any{table}
	for _, field := range slices.Sorted(maps.Keys(filter)) {
		value := filter[field]
		column := fmt.Sprintf("json_extract(data, '$.%s')", field)
		if field == recordstore.FieldID {
			column = "id"
		}
		if value == nil {
			clauses = append(clauses, column+" IS NULL")
			continue
		}
		arg, err := sqlValue(value)
		if err != nil {
			return "", nil, fmt.Errorf("filter %s: %w", field, err)
		}
		clauses = append(clauses, column+" = ?")
		args = append(args, arg)
	}
	return strings.Join(clauses, " AND "), args, nil
}

// sqlValue converts a filter value into what json_extract yields for it.
func sqlValue(v any) (any, error) {
	switch val := v.(type) {
	case string, int, int32, int64, float32, float64:
		return val, nil
	case uint:
		return int64(val), nil
	case bool:
		if val {
			return 1, nil
		}
		return 0, nil
	case time.Time:
		return recordstore.FormatTime(val), nil
	}

	// Named types such as domain status enums.
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return rv.String(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.Bool:
		return sqlValue(rv.Bool())
	}
	return nil, fmt.Errorf("unsupported filter value type %T", v)
}

func decode(data string) (recordstore.Record, error) {
	var rec recordstore.Record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}
	return rec, nil
}
