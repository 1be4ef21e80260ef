// Package tabular defines the minimal table contract the client operates
// on. Any column-oriented table type can be passed to the client by
// implementing Table; Frame is the concrete implementation used for
// outputs and in tests.
package tabular

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

var (
	ErrColumnExists   = errors.New("column already exists in frame")
	ErrLengthMismatch = errors.New("columns have different lengths")
	ErrUnknownColumn  = errors.New("unknown column")
)

// Kind enumerates the value types a column can hold.
type Kind int

const (
	KindString Kind = iota
	KindTime
	KindInt
	KindFloat
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindTime:
		return "time"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	}
	return "unknown"
}

// Column is a named, typed vector of values. Exactly one of the value
// slices is populated, matching Kind.
type Column struct {
	Name    string
	Kind    Kind
	Strings []string
	Times   []time.Time
	Ints    []int64
	Floats  []float64
}

func Strings(name string, vals []string) Column {
	return Column{Name: name, Kind: KindString, Strings: vals}
}

func Times(name string, vals []time.Time) Column {
	return Column{Name: name, Kind: KindTime, Times: vals}
}

func Ints(name string, vals []int64) Column {
	return Column{Name: name, Kind: KindInt, Ints: vals}
}

func Floats(name string, vals []float64) Column {
	return Column{Name: name, Kind: KindFloat, Floats: vals}
}

func (c Column) Len() int {
	switch c.Kind {
	case KindString:
		return len(c.Strings)
	case KindTime:
		return len(c.Times)
	case KindInt:
		return len(c.Ints)
	case KindFloat:
		return len(c.Floats)
	}
	return 0
}

// StringAt renders the value at index i regardless of kind.
func (c Column) StringAt(i int) string {
	switch c.Kind {
	case KindString:
		return c.Strings[i]
	case KindTime:
		return c.Times[i].Format(time.RFC3339)
	case KindInt:
		return strconv.FormatInt(c.Ints[i], 10)
	case KindFloat:
		return strconv.FormatFloat(c.Floats[i], 'g', -1, 64)
	}
	return ""
}

// Table is the capability interface required from caller-supplied
// tables: column access by name plus a row count.
type Table interface {
	Columns() []string
	Len() int
	Column(name string) (Column, bool)
}

// Frame is a column-oriented table with a stable column order.
type Frame struct {
	cols  []Column
	index map[string]int
}

// NewFrame builds a frame from the given columns. All columns must have
// the same length and unique names.
func NewFrame(cols ...Column) (*Frame, error) {
	f := &Frame{index: make(map[string]int, len(cols))}
	for _, c := range cols {
		if err := f.AddColumn(c); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// AddColumn appends a column to the frame preserving insertion order.
func (f *Frame) AddColumn(c Column) error {
	if _, exists := f.index[c.Name]; exists {
		return fmt.Errorf("%q, %w", c.Name, ErrColumnExists)
	}
	if len(f.cols) > 0 && c.Len() != f.cols[0].Len() {
		return fmt.Errorf(
			"column %q has length %d, but frame has %d rows, %w",
			c.Name, c.Len(), f.cols[0].Len(), ErrLengthMismatch,
		)
	}
	f.index[c.Name] = len(f.cols)
	f.cols = append(f.cols, c)
	return nil
}

// Columns returns the column names in insertion order.
func (f *Frame) Columns() []string {
	names := make([]string, len(f.cols))
	for i, c := range f.cols {
		names[i] = c.Name
	}
	return names
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	if len(f.cols) == 0 {
		return 0
	}
	return f.cols[0].Len()
}

// Column returns the named column.
func (f *Frame) Column(name string) (Column, bool) {
	i, ok := f.index[name]
	if !ok {
		return Column{}, false
	}
	return f.cols[i], true
}

// MustColumn returns the named column and panics when absent. Intended
// for assembled outputs whose column set is known.
func (f *Frame) MustColumn(name string) Column {
	c, ok := f.Column(name)
	if !ok {
		panic(fmt.Sprintf("tabular: %q: %v", name, ErrUnknownColumn))
	}
	return c
}
