package table

import (
	"fmt"
	"strings"
)

// Predicate is a single test on one column. Filter combines predicates
// conjunctively.
type Predicate interface {
	Column() string
	Match(v Value) bool
	String() string
}

type eqPred struct {
	col  string
	want Value
}

// Eq matches cells equal to want. Nulls never match.
func Eq(col string, want Value) Predicate { return eqPred{col: col, want: want} }

func (p eqPred) Column() string     { return p.col }
func (p eqPred) Match(v Value) bool { return v.Equal(p.want) }
func (p eqPred) String() string     { return fmt.Sprintf("%s == %q", p.col, p.want.String()) }

type inPred struct {
	col  string
	want []Value
}

// In matches cells equal to any of want.
func In(col string, want ...Value) Predicate { return inPred{col: col, want: want} }

func (p inPred) Column() string { return p.col }
func (p inPred) Match(v Value) bool {
	for _, w := range p.want {
		if v.Equal(w) {
			return true
		}
	}
	return false
}
func (p inPred) String() string {
	parts := make([]string, len(p.want))
	for i, w := range p.want {
		parts[i] = fmt.Sprintf("%q", w.String())
	}
	return fmt.Sprintf("%s in {%s}", p.col, strings.Join(parts, ", "))
}

type cmpPred struct {
	col string
	op  string
	x   float64
}

// GE matches numeric cells >= x. Nulls and non-numeric cells never match.
func GE(col string, x float64) Predicate { return cmpPred{col: col, op: ">=", x: x} }

// GT matches numeric cells > x.
func GT(col string, x float64) Predicate { return cmpPred{col: col, op: ">", x: x} }

// LE matches numeric cells <= x.
func LE(col string, x float64) Predicate { return cmpPred{col: col, op: "<=", x: x} }

// LT matches numeric cells < x.
func LT(col string, x float64) Predicate { return cmpPred{col: col, op: "<", x: x} }

func (p cmpPred) Column() string { return p.col }
func (p cmpPred) Match(v Value) bool {
	n, ok := v.Number()
	if !ok {
		return false
	}
	switch p.op {
	case ">=":
		return n >= p.x
	case ">":
		return n > p.x
	case "<=":
		return n <= p.x
	case "<":
		return n < p.x
	}
	return false
}
func (p cmpPred) String() string { return fmt.Sprintf("%s %s %g", p.col, p.op, p.x) }

type notNullPred struct{ col string }

// NotNull matches non-missing cells.
func NotNull(col string) Predicate { return notNullPred{col: col} }

func (p notNullPred) Column() string     { return p.col }
func (p notNullPred) Match(v Value) bool { return !v.Null }
func (p notNullPred) String() string     { return p.col + " is not null" }

// Filter returns the rows of t matching every predicate, in their original
// order. t is not modified. A predicate on an unknown column is an error.
func Filter(t *Table, preds ...Predicate) (*Table, error) {
	cols := make([]*Column, len(preds))
	for i, p := range preds {
		c, ok := t.Col(p.Column())
		if !ok {
			return nil, &UnknownColumnError{Name: p.Column()}
		}
		cols[i] = c
	}
	rows := make([]int, 0, t.Len())
	for r := 0; r < t.Len(); r++ {
		keep := true
		for i, p := range preds {
			if !p.Match(cols[i].At(r)) {
				keep = false
				break
			}
		}
		if keep {
			rows = append(rows, r)
		}
	}
	return t.Take(rows), nil
}
