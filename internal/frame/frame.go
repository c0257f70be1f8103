// Package frame holds the immutable tabular value passed between pipeline
// stages: named, ordered columns of nullable numbers or text.
package frame

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/pkg/errors"
)

// ErrSchemaMismatch is matched by every SchemaError.
var ErrSchemaMismatch = errors.New("schema mismatch")

// SchemaError reports columns a stage needed but did not find.
type SchemaError struct {
	Stage   string
	Missing []string
}

func (e *SchemaError) Error() string {
	if e.Stage == "" {
		return fmt.Sprintf("schema mismatch: missing columns %v", e.Missing)
	}
	return fmt.Sprintf("schema mismatch in %s: missing columns %v", e.Stage, e.Missing)
}

// Is lets errors.Is(err, ErrSchemaMismatch) match.
func (e *SchemaError) Is(target error) bool {
	return target == ErrSchemaMismatch
}

// Kind is the value type of a column.
type Kind int

const (
	Number Kind = iota
	Text
)

func (k Kind) String() string {
	if k == Text {
		return "text"
	}
	return "number"
}

// Column is a named vector of nullable values. Columns are never mutated
// after construction; transformations build new ones.
type Column struct {
	name  string
	kind  Kind
	nums  []float64
	strs  []string
	valid []bool
}

// NewNumber builds a numeric column. A nil valid slice marks every value present.
func NewNumber(name string, vals []float64, valid []bool) *Column {
	if valid == nil {
		valid = allValid(len(vals))
	}
	return &Column{name: name, kind: Number, nums: vals, valid: valid}
}

// NewText builds a text column. A nil valid slice marks every value present.
func NewText(name string, vals []string, valid []bool) *Column {
	if valid == nil {
		valid = allValid(len(vals))
	}
	return &Column{name: name, kind: Text, strs: vals, valid: valid}
}

func allValid(n int) []bool {
	v := make([]bool, n)
	for i := range v {
		v[i] = true
	}
	return v
}

func (c *Column) Name() string { return c.name }
func (c *Column) Kind() Kind   { return c.kind }
func (c *Column) Len() int     { return len(c.valid) }

// IsNull reports whether row i holds no value.
func (c *Column) IsNull(i int) bool { return !c.valid[i] }

// Float returns the numeric value at row i. Text columns parse on demand.
func (c *Column) Float(i int) (float64, bool) {
	if !c.valid[i] {
		return 0, false
	}
	if c.kind == Number {
		return c.nums[i], true
	}
	v, err := strconv.ParseFloat(c.strs[i], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Text returns row i rendered as text.
func (c *Column) Text(i int) (string, bool) {
	if !c.valid[i] {
		return "", false
	}
	if c.kind == Text {
		return c.strs[i], true
	}
	return FormatNumber(c.nums[i]), true
}

// Floats copies the column into a value slice and a validity slice.
func (c *Column) Floats() ([]float64, []bool) {
	vals := make([]float64, c.Len())
	valid := make([]bool, c.Len())
	for i := range vals {
		vals[i], valid[i] = c.Float(i)
	}
	return vals, valid
}

// NullCount returns the number of rows without a value.
func (c *Column) NullCount() int {
	n := 0
	for _, ok := range c.valid {
		if !ok {
			n++
		}
	}
	return n
}

// Map builds a numeric column of the same name by applying fn to every row.
// fn receives the current value and whether it is present.
func (c *Column) Map(fn func(i int, v float64, ok bool) (float64, bool)) *Column {
	vals := make([]float64, c.Len())
	valid := make([]bool, c.Len())
	for i := range vals {
		v, ok := c.Float(i)
		vals[i], valid[i] = fn(i, v, ok)
	}
	return NewNumber(c.name, vals, valid)
}

// Renamed returns the same data under another name.
func (c *Column) Renamed(name string) *Column {
	cpy := *c
	cpy.name = name
	return &cpy
}

func (c *Column) take(idx []int) *Column {
	out := &Column{name: c.name, kind: c.kind, valid: make([]bool, len(idx))}
	if c.kind == Number {
		out.nums = make([]float64, len(idx))
	} else {
		out.strs = make([]string, len(idx))
	}
	for j, i := range idx {
		if i < 0 {
			continue // null row introduced by an unmatched join
		}
		out.valid[j] = c.valid[i]
		if c.kind == Number {
			out.nums[j] = c.nums[i]
		} else {
			out.strs[j] = c.strs[i]
		}
	}
	return out
}

// FormatNumber renders a value in plain decimal notation.
func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Frame is an ordered set of equally long columns.
type Frame struct {
	order []string
	cols  map[string]*Column
	rows  int
}

// New assembles a frame, rejecting duplicate names and ragged columns.
func New(cols ...*Column) (*Frame, error) {
	f := &Frame{cols: make(map[string]*Column, len(cols))}
	for i, c := range cols {
		if _, dup := f.cols[c.name]; dup {
			return nil, errors.Errorf("duplicate column %q", c.name)
		}
		if i == 0 {
			f.rows = c.Len()
		} else if c.Len() != f.rows {
			return nil, errors.Errorf("column %q has %d rows, want %d", c.name, c.Len(), f.rows)
		}
		f.order = append(f.order, c.name)
		f.cols[c.name] = c
	}
	return f, nil
}

// MustNew is New for statically known inputs.
func MustNew(cols ...*Column) *Frame {
	f, err := New(cols...)
	if err != nil {
		panic(err)
	}
	return f
}

func (f *Frame) Len() int { return f.rows }

// Names returns the column names in order.
func (f *Frame) Names() []string {
	out := make([]string, len(f.order))
	copy(out, f.order)
	return out
}

func (f *Frame) Has(name string) bool {
	_, ok := f.cols[name]
	return ok
}

// Col returns the named column or a SchemaError.
func (f *Frame) Col(name string) (*Column, error) {
	c, ok := f.cols[name]
	if !ok {
		return nil, &SchemaError{Missing: []string{name}}
	}
	return c, nil
}

// Require fails with a SchemaError naming every absent column.
func (f *Frame) Require(stage string, names ...string) error {
	var missing []string
	for _, n := range names {
		if !f.Has(n) {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return &SchemaError{Stage: stage, Missing: missing}
	}
	return nil
}

// With returns a frame where each given column replaces the one of the same
// name in place, or is appended when new.
func (f *Frame) With(cols ...*Column) (*Frame, error) {
	out := &Frame{
		order: f.Names(),
		cols:  make(map[string]*Column, len(f.cols)+len(cols)),
		rows:  f.rows,
	}
	for k, v := range f.cols {
		out.cols[k] = v
	}
	for _, c := range cols {
		if c.Len() != f.rows && len(f.order) > 0 {
			return nil, errors.Errorf("column %q has %d rows, want %d", c.name, c.Len(), f.rows)
		}
		if _, exists := out.cols[c.name]; !exists {
			out.order = append(out.order, c.name)
		}
		out.cols[c.name] = c
		if len(f.order) == 0 {
			out.rows = c.Len()
		}
	}
	return out, nil
}

// Drop returns a frame without the named columns. Unknown names are ignored.
func (f *Frame) Drop(names ...string) *Frame {
	skip := make(map[string]bool, len(names))
	for _, n := range names {
		skip[n] = true
	}
	out := &Frame{cols: make(map[string]*Column), rows: f.rows}
	for _, n := range f.order {
		if skip[n] {
			continue
		}
		out.order = append(out.order, n)
		out.cols[n] = f.cols[n]
	}
	return out
}

// Select projects onto the named columns in the given order.
func (f *Frame) Select(stage string, names ...string) (*Frame, error) {
	if err := f.Require(stage, names...); err != nil {
		return nil, err
	}
	out := &Frame{cols: make(map[string]*Column, len(names)), rows: f.rows}
	for _, n := range names {
		if _, dup := out.cols[n]; dup {
			return nil, errors.Errorf("duplicate column %q in projection", n)
		}
		out.order = append(out.order, n)
		out.cols[n] = f.cols[n]
	}
	return out, nil
}

// Take returns the rows at idx, in that order.
func (f *Frame) Take(idx []int) *Frame {
	out := &Frame{order: f.Names(), cols: make(map[string]*Column, len(f.cols)), rows: len(idx)}
	for n, c := range f.cols {
		out.cols[n] = c.take(idx)
	}
	return out
}

// Filter keeps the rows for which keep returns true.
func (f *Frame) Filter(keep func(i int) bool) *Frame {
	idx := make([]int, 0, f.rows)
	for i := 0; i < f.rows; i++ {
		if keep(i) {
			idx = append(idx, i)
		}
	}
	return f.Take(idx)
}

// Matrix extracts the named columns as a row-major matrix. Nulls become 0.
func (f *Frame) Matrix(stage string, names []string) ([][]float64, error) {
	if err := f.Require(stage, names...); err != nil {
		return nil, err
	}
	cols := make([]*Column, len(names))
	for j, n := range names {
		cols[j] = f.cols[n]
	}
	out := make([][]float64, f.rows)
	for i := range out {
		row := make([]float64, len(cols))
		for j, c := range cols {
			row[j], _ = c.Float(i)
		}
		out[i] = row
	}
	return out, nil
}

// DistinctInts returns the sorted distinct integer values of a numeric column.
func (f *Frame) DistinctInts(name string) ([]int, error) {
	c, err := f.Col(name)
	if err != nil {
		return nil, err
	}
	seen := make(map[int]bool)
	for i := 0; i < c.Len(); i++ {
		v, ok := c.Float(i)
		if !ok {
			continue
		}
		seen[int(v)] = true
	}
	out := make([]int, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Ints(out)
	return out, nil
}
