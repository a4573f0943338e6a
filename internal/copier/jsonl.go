package copier

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/dbsmedya/dcp/internal/types"
)

// record is the wire form of one row: {"table": ..., "pk": {...}, "data": {...}}.
type record struct {
	Table string                 `json:"table"`
	PK    map[string]interface{} `json:"pk"`
	Data  map[string]interface{} `json:"data"`
}

// Export writes each row as one JSON object per line and returns the number
// of rows written. It stops at the first error from rows or from w.
func Export(ctx context.Context, w io.Writer, rows iter.Seq2[types.Row, error]) (int64, error) {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	var n int64
	for row, err := range rows {
		if err != nil {
			return n, err
		}
		if err := ctx.Err(); err != nil {
			return n, err
		}
		if err := enc.EncodeContext(ctx, record(row)); err != nil {
			return n, fmt.Errorf("failed to write %s row: %w", row.Table, err)
		}
		n++
	}
	return n, nil
}

// ReadRows decodes the JSON lines produced by Export. Integral numbers come
// back as int64; other numbers keep their literal text so no precision is
// lost on the way to the destination.
func ReadRows(r io.Reader) iter.Seq2[types.Row, error] {
	return func(yield func(types.Row, error) bool) {
		dec := json.NewDecoder(r)
		dec.UseNumber()

		for n := 1; ; n++ {
			var rec record
			err := dec.Decode(&rec)
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(types.Row{}, fmt.Errorf("record %d: %w", n, err))
				return
			}

			row, err := rec.row()
			if err != nil {
				yield(types.Row{}, fmt.Errorf("record %d: %w", n, err))
				return
			}
			if !yield(row, nil) {
				return
			}
		}
	}
}

func (rec record) row() (types.Row, error) {
	if rec.Table == "" {
		return types.Row{}, errors.New("missing table")
	}
	if len(rec.Data) == 0 {
		return types.Row{}, fmt.Errorf("%s: missing data", rec.Table)
	}

	data := make(map[string]interface{}, len(rec.Data))
	for col, v := range rec.Data {
		cv, err := decodeValue(v)
		if err != nil {
			return types.Row{}, fmt.Errorf("%s.%s: %w", rec.Table, col, err)
		}
		data[col] = cv
	}
	if len(rec.PK) == 0 {
		return types.NewRow(rec.Table, nil, data), nil
	}

	pk := make(map[string]interface{}, len(rec.PK))
	for col := range rec.PK {
		pk[col] = data[col]
	}
	return types.Row{Table: rec.Table, PK: pk, Data: data}, nil
}

// decodeValue maps a decoded JSON value onto something a driver can bind.
// Objects and arrays are re-encoded, which suits JSON columns.
func decodeValue(v interface{}) (interface{}, error) {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i, nil
		}
		if u, err := strconv.ParseUint(val.String(), 10, 64); err == nil {
			return u, nil
		}
		return val.String(), nil
	case map[string]interface{}, []interface{}:
		b, err := json.Marshal(val)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	default:
		return v, nil
	}
}
