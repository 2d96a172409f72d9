package database

import (
	"bytes"

	"github.com/goccy/go-json"

	"github.com/koustreak/saudedash/internal/errs"
)

// Field is one column of a Record.
type Field struct {
	Key   string
	Value any
}

// Record is a result row that keeps the column order of the query.
// It encodes to a JSON object with keys in that same order.
type Record []Field

// Get returns the value stored under key.
func (r Record) Get(key string) (any, bool) {
	for _, f := range r {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// Columns returns the keys in order.
func (r Record) Columns() []string {
	cols := make([]string, len(r))
	for i, f := range r {
		cols[i] = f.Key
	}
	return cols
}

// MarshalJSON encodes r as an object whose keys follow column order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// ScanRecords reads all rows from the result set and returns them as
// ordered records, one Field per column.
//
// The returned slice is always non-nil (empty slice on zero rows).
// ScanRecords always closes the Rows; callers do not need to call Close().
func ScanRecords(rows Rows) ([]Record, error) {
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindQueryFailed, "failed to read column names", err)
	}

	result := make([]Record, 0)

	for rows.Next() {
		// Allocate scan targets as *any so the driver can write any type.
		dest := make([]any, len(columns))
		destPtrs := make([]any, len(columns))
		for i := range dest {
			destPtrs[i] = &dest[i]
		}

		if err := rows.Scan(destPtrs...); err != nil {
			return nil, errs.Wrap(errs.ErrKindQueryFailed, "failed to scan row", err)
		}

		rec := make(Record, len(columns))
		for i, col := range columns {
			rec[i] = Field{Key: col, Value: normalize(dest[i])}
		}
		result = append(result, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// ScanRecord reads the first row of the result set. It returns a nil
// Record when the set is empty.
func ScanRecord(rows Rows) (Record, error) {
	recs, err := ScanRecords(rows)
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	return recs[0], nil
}

func normalize(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
