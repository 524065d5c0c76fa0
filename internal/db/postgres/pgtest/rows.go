// Package pgtest provides in-memory pgx.Rows for repository tests.
package pgtest

import (
	"fmt"
	"reflect"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Rows replays fixed values through the pgx.Rows interface.
type Rows struct {
	data   [][]any
	pos    int
	err    error
	closed bool
}

var _ pgx.Rows = (*Rows)(nil)

// NewRows creates rows that yield data in order.
func NewRows(data ...[]any) *Rows {
	return &Rows{data: data, pos: -1}
}

// WithErr makes Err return err after iteration.
func (r *Rows) WithErr(err error) *Rows {
	r.err = err
	return r
}

// Closed reports whether Close was called.
func (r *Rows) Closed() bool { return r.closed }

func (r *Rows) Close()                                       { r.closed = true }
func (r *Rows) Err() error                                   { return r.err }
func (r *Rows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT") }
func (r *Rows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *Rows) RawValues() [][]byte                          { return nil }
func (r *Rows) Conn() *pgx.Conn                              { return nil }

func (r *Rows) Next() bool {
	if r.closed {
		return false
	}
	r.pos++
	if r.pos >= len(r.data) {
		r.closed = true
		return false
	}
	return true
}

func (r *Rows) Values() ([]any, error) {
	if r.pos < 0 || r.pos >= len(r.data) {
		return nil, fmt.Errorf("no current row")
	}
	return r.data[r.pos], nil
}

// Scan assigns the current row to dest, converting numeric kinds when needed.
func (r *Rows) Scan(dest ...any) error {
	row, err := r.Values()
	if err != nil {
		return err
	}
	if len(dest) != len(row) {
		return fmt.Errorf("scan: %d destinations for %d columns", len(dest), len(row))
	}
	for i, d := range dest {
		dv := reflect.ValueOf(d)
		if dv.Kind() != reflect.Pointer || dv.IsNil() {
			return fmt.Errorf("scan: destination %d is not a pointer", i)
		}
		target := dv.Elem()
		if row[i] == nil {
			target.Set(reflect.Zero(target.Type()))
			continue
		}
		v := reflect.ValueOf(row[i])
		switch {
		case v.Type().AssignableTo(target.Type()):
			target.Set(v)
		case v.Type().ConvertibleTo(target.Type()):
			target.Set(v.Convert(target.Type()))
		default:
			return fmt.Errorf("scan: cannot assign %T to %s", row[i], target.Type())
		}
	}
	return nil
}
