// Package table holds the column-typed, in-memory tables the dashboard
// pipelines run on, together with the filter, aggregate and reshape
// operations over them. Tables are immutable once built: every operation
// returns a new table and callers may share columns freely.
package table

import (
	"fmt"
	"math"
	"sort"
	"strconv"
)

// Kind is the inferred type of a column.
type Kind int

const (
	KindString Kind = iota
	KindInt
	KindFloat
	// KindFlag is a "Y"/"N" string column.
	KindFlag
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "integer"
	case KindFloat:
		return "float"
	case KindFlag:
		return "flag"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Numeric reports whether values of this kind are stored as numbers.
func (k Kind) Numeric() bool { return k == KindInt || k == KindFloat }

// Value is a single cell.
type Value struct {
	Kind Kind
	Str  string
	Num  float64
	Null bool
}

// Str returns a string value.
func Str(s string) Value { return Value{Kind: KindString, Str: s} }

// Flag returns a flag value ("Y" or "N").
func Flag(s string) Value { return Value{Kind: KindFlag, Str: s} }

// Int returns an integer value.
func Int(i int64) Value { return Value{Kind: KindInt, Num: float64(i)} }

// Float returns a float value. NaN is stored as null, matching how the
// source data treats missing measurements.
func Float(f float64) Value {
	if math.IsNaN(f) {
		return Value{Kind: KindFloat, Num: f, Null: true}
	}
	return Value{Kind: KindFloat, Num: f}
}

// Null returns a null value of the given kind.
func Null(k Kind) Value {
	v := Value{Kind: k, Null: true}
	if k.Numeric() {
		v.Num = math.NaN()
	}
	return v
}

// Number returns the numeric content of v. ok is false for nulls and
// non-numeric kinds.
func (v Value) Number() (float64, bool) {
	if v.Null || !v.Kind.Numeric() {
		return math.NaN(), false
	}
	return v.Num, true
}

func (v Value) String() string {
	if v.Null {
		return ""
	}
	switch v.Kind {
	case KindInt:
		return strconv.FormatInt(int64(v.Num), 10)
	case KindFloat:
		return strconv.FormatFloat(v.Num, 'g', -1, 64)
	default:
		return v.Str
	}
}

// Compare orders values: nulls sort last, numbers compare numerically and
// everything else compares by its string form.
func Compare(a, b Value) int {
	switch {
	case a.Null && b.Null:
		return 0
	case a.Null:
		return 1
	case b.Null:
		return -1
	}
	if a.Kind.Numeric() && b.Kind.Numeric() {
		switch {
		case a.Num < b.Num:
			return -1
		case a.Num > b.Num:
			return 1
		default:
			return 0
		}
	}
	as, bs := a.String(), b.String()
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	default:
		return 0
	}
}

// Equal reports whether two non-null values compare equal.
func (v Value) Equal(o Value) bool {
	if v.Null || o.Null {
		return false
	}
	return Compare(v, o) == 0
}

// Field names a column and its kind.
type Field struct {
	Name string
	Kind Kind
}

// Column is a named, typed column. Numeric kinds live in nums, the rest in
// strs; null marks missing cells for both.
type Column struct {
	Name string
	Kind Kind
	strs []string
	nums []float64
	null []bool
}

// NewColumn returns an empty column.
func NewColumn(name string, kind Kind) *Column {
	return &Column{Name: name, Kind: kind}
}

// Len returns the number of cells.
func (c *Column) Len() int { return len(c.null) }

// At returns the cell at row i.
func (c *Column) At(i int) Value {
	if c.null[i] {
		return Null(c.Kind)
	}
	if c.Kind.Numeric() {
		return Value{Kind: c.Kind, Num: c.nums[i]}
	}
	return Value{Kind: c.Kind, Str: c.strs[i]}
}

// Append adds v, converting it to the column's kind. A value that cannot be
// represented (a non-numeric string in a numeric column) is stored as null.
func (c *Column) Append(v Value) {
	if c.Kind.Numeric() {
		x, ok := v.Number()
		if !ok && !v.Null && !v.Kind.Numeric() {
			if f, err := strconv.ParseFloat(v.Str, 64); err == nil {
				x, ok = f, true
			}
		}
		if ok && c.Kind == KindInt {
			x = math.Trunc(x)
		}
		c.nums = append(c.nums, x)
		c.null = append(c.null, !ok || math.IsNaN(x))
		return
	}
	c.strs = append(c.strs, v.String())
	c.null = append(c.null, v.Null)
}

func (c *Column) take(rows []int) *Column {
	out := &Column{Name: c.Name, Kind: c.Kind, null: make([]bool, len(rows))}
	if c.Kind.Numeric() {
		out.nums = make([]float64, len(rows))
	} else {
		out.strs = make([]string, len(rows))
	}
	for i, r := range rows {
		out.null[i] = c.null[r]
		if c.Kind.Numeric() {
			out.nums[i] = c.nums[r]
		} else {
			out.strs[i] = c.strs[r]
		}
	}
	return out
}

// Table is an immutable set of equal-length columns.
type Table struct {
	cols  []*Column
	index map[string]int
	rows  int
}

// New assembles a table from columns of equal length with unique names.
func New(cols ...*Column) (*Table, error) {
	t := &Table{cols: cols, index: make(map[string]int, len(cols))}
	for i, c := range cols {
		if _, dup := t.index[c.Name]; dup {
			return nil, fmt.Errorf("duplicate column %q", c.Name)
		}
		t.index[c.Name] = i
		if i == 0 {
			t.rows = c.Len()
		} else if c.Len() != t.rows {
			return nil, fmt.Errorf("column %q has %d rows, want %d", c.Name, c.Len(), t.rows)
		}
	}
	return t, nil
}

// Len returns the number of rows.
func (t *Table) Len() int { return t.rows }

// Names returns the column names in order.
func (t *Table) Names() []string {
	out := make([]string, len(t.cols))
	for i, c := range t.cols {
		out[i] = c.Name
	}
	return out
}

// Schema returns the column fields in order.
func (t *Table) Schema() []Field {
	out := make([]Field, len(t.cols))
	for i, c := range t.cols {
		out[i] = Field{Name: c.Name, Kind: c.Kind}
	}
	return out
}

// Col returns the named column.
func (t *Table) Col(name string) (*Column, bool) {
	i, ok := t.index[name]
	if !ok {
		return nil, false
	}
	return t.cols[i], true
}

// Require returns an *UnknownColumnError for the first missing name.
func (t *Table) Require(names ...string) error {
	for _, n := range names {
		if _, ok := t.index[n]; !ok {
			return &UnknownColumnError{Name: n}
		}
	}
	return nil
}

// Value returns the cell at (row, name); unknown columns read as null strings.
func (t *Table) Value(row int, name string) Value {
	c, ok := t.Col(name)
	if !ok {
		return Null(KindString)
	}
	return c.At(row)
}

// Row returns all cells of a row in column order.
func (t *Table) Row(i int) []Value {
	out := make([]Value, len(t.cols))
	for j, c := range t.cols {
		out[j] = c.At(i)
	}
	return out
}

// Take returns a table with the given rows, in the given order.
func (t *Table) Take(rows []int) *Table {
	cols := make([]*Column, len(t.cols))
	for i, c := range t.cols {
		cols[i] = c.take(rows)
	}
	return &Table{cols: cols, index: t.index, rows: len(rows)}
}

// Empty returns a zero-row table with the same schema.
func (t *Table) Empty() *Table { return t.Take(nil) }

// Select projects the named columns.
func (t *Table) Select(names ...string) (*Table, error) {
	if err := t.Require(names...); err != nil {
		return nil, err
	}
	cols := make([]*Column, len(names))
	for i, n := range names {
		cols[i] = t.cols[t.index[n]]
	}
	return New(cols...)
}

// Rename returns a table with column from renamed to to. Column data is shared.
func (t *Table) Rename(from, to string) (*Table, error) {
	if err := t.Require(from); err != nil {
		return nil, err
	}
	cols := make([]*Column, len(t.cols))
	for i, c := range t.cols {
		if c.Name == from {
			cp := *c
			cp.Name = to
			c = &cp
		}
		cols[i] = c
	}
	return New(cols...)
}

// SortBy returns the rows stably sorted ascending by the named columns.
func (t *Table) SortBy(names ...string) (*Table, error) {
	if err := t.Require(names...); err != nil {
		return nil, err
	}
	keys := make([]*Column, len(names))
	for i, n := range names {
		keys[i] = t.cols[t.index[n]]
	}
	rows := make([]int, t.rows)
	for i := range rows {
		rows[i] = i
	}
	sort.SliceStable(rows, func(a, b int) bool {
		for _, k := range keys {
			if c := Compare(k.At(rows[a]), k.At(rows[b])); c != 0 {
				return c < 0
			}
		}
		return false
	})
	return t.Take(rows), nil
}

// Distinct returns the sorted distinct non-null values of a column.
func (t *Table) Distinct(name string) ([]Value, error) {
	c, ok := t.Col(name)
	if !ok {
		return nil, &UnknownColumnError{Name: name}
	}
	seen := map[string]bool{}
	var out []Value
	for i := 0; i < c.Len(); i++ {
		v := c.At(i)
		if v.Null || seen[v.String()] {
			continue
		}
		seen[v.String()] = true
		out = append(out, v)
	}
	sort.SliceStable(out, func(a, b int) bool { return Compare(out[a], out[b]) < 0 })
	return out, nil
}

// Builder accumulates rows for a fixed schema.
type Builder struct {
	cols []*Column
}

// NewBuilder returns a builder for the given schema.
func NewBuilder(fields ...Field) *Builder {
	b := &Builder{cols: make([]*Column, len(fields))}
	for i, f := range fields {
		b.cols[i] = NewColumn(f.Name, f.Kind)
	}
	return b
}

// Append adds one row; missing trailing values are null.
func (b *Builder) Append(vals ...Value) {
	for i, c := range b.cols {
		if i < len(vals) {
			c.Append(vals[i])
		} else {
			c.Append(Null(c.Kind))
		}
	}
}

// Table finishes the build. The builder must not be reused.
func (b *Builder) Table() (*Table, error) { return New(b.cols...) }

// WithColumn returns a table with col appended, replacing any column of the
// same name. col must have t.Len() cells.
func (t *Table) WithColumn(col *Column) (*Table, error) {
	cols := make([]*Column, 0, len(t.cols)+1)
	replaced := false
	for _, c := range t.cols {
		if c.Name == col.Name {
			cols = append(cols, col)
			replaced = true
			continue
		}
		cols = append(cols, c)
	}
	if !replaced {
		cols = append(cols, col)
	}
	return New(cols...)
}
