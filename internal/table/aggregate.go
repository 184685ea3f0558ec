package table

import (
	"fmt"
	"sort"
	"strings"
)

// Op is a reducer operation.
type Op int

const (
	OpMin Op = iota
	OpMax
	OpSum
	OpCount
	OpFirst
)

func (o Op) String() string {
	switch o {
	case OpMin:
		return "min"
	case OpMax:
		return "max"
	case OpSum:
		return "sum"
	case OpCount:
		return "count"
	case OpFirst:
		return "first"
	default:
		return fmt.Sprintf("op(%d)", int(o))
	}
}

// Reducer folds one column of a group into one output column named As.
type Reducer struct {
	Column string
	Op     Op
	As     string
}

func reducer(col string, op Op, as []string) Reducer {
	r := Reducer{Column: col, Op: op, As: col}
	if len(as) > 0 && as[0] != "" {
		r.As = as[0]
	}
	return r
}

// Min reduces to the smallest non-null value. The output column is named
// after the source unless as is given.
func Min(col string, as ...string) Reducer { return reducer(col, OpMin, as) }

// Max reduces to the largest non-null value.
func Max(col string, as ...string) Reducer { return reducer(col, OpMax, as) }

// Sum adds non-null values; a group of nulls sums to 0.
func Sum(col string, as ...string) Reducer { return reducer(col, OpSum, as) }

// Count counts non-null values.
func Count(col string, as ...string) Reducer { return reducer(col, OpCount, as) }

// First keeps the first non-null value in row order.
func First(col string, as ...string) Reducer { return reducer(col, OpFirst, as) }

type accum struct {
	val   Value
	sum   float64
	count int
	set   bool
}

func (a *accum) add(op Op, v Value) {
	if v.Null {
		return
	}
	a.count++
	switch op {
	case OpSum:
		if n, ok := v.Number(); ok {
			a.sum += n
		}
	case OpMin:
		if !a.set || Compare(v, a.val) < 0 {
			a.val, a.set = v, true
		}
	case OpMax:
		if !a.set || Compare(v, a.val) > 0 {
			a.val, a.set = v, true
		}
	case OpFirst:
		if !a.set {
			a.val, a.set = v, true
		}
	}
}

func (a *accum) result(op Op, kind Kind) Value {
	switch op {
	case OpSum:
		if kind == KindInt {
			return Int(int64(a.sum))
		}
		return Float(a.sum)
	case OpCount:
		return Int(int64(a.count))
	default:
		if !a.set {
			return Null(kind)
		}
		return a.val
	}
}

func outKind(op Op, src Kind) Kind {
	switch op {
	case OpCount:
		return KindInt
	case OpSum:
		if src == KindInt {
			return KindInt
		}
		return KindFloat
	default:
		return src
	}
}

type group struct {
	key  []Value
	accs []accum
}

// Aggregate groups t by the key columns and applies the reducers, producing
// one row per distinct key tuple. Rows with a null key are dropped. Output
// rows are sorted ascending by key.
func Aggregate(t *Table, keys []string, reducers ...Reducer) (*Table, error) {
	if err := t.Require(keys...); err != nil {
		return nil, err
	}
	keyCols := make([]*Column, len(keys))
	fields := make([]Field, 0, len(keys)+len(reducers))
	for i, k := range keys {
		keyCols[i], _ = t.Col(k)
		fields = append(fields, Field{Name: k, Kind: keyCols[i].Kind})
	}
	srcCols := make([]*Column, len(reducers))
	for i, r := range reducers {
		c, ok := t.Col(r.Column)
		if !ok {
			return nil, &UnknownColumnError{Name: r.Column}
		}
		if r.Op == OpSum && !c.Kind.Numeric() {
			return nil, fmt.Errorf("sum over non-numeric column %q", r.Column)
		}
		srcCols[i] = c
		fields = append(fields, Field{Name: r.As, Kind: outKind(r.Op, c.Kind)})
	}

	groups := map[string]*group{}
	var order []*group
	var sb strings.Builder
rows:
	for r := 0; r < t.Len(); r++ {
		sb.Reset()
		key := make([]Value, len(keyCols))
		for i, c := range keyCols {
			v := c.At(r)
			if v.Null {
				continue rows
			}
			key[i] = v
			sb.WriteString(v.String())
			sb.WriteByte(0x1f)
		}
		g, ok := groups[sb.String()]
		if !ok {
			g = &group{key: key, accs: make([]accum, len(reducers))}
			groups[sb.String()] = g
			order = append(order, g)
		}
		for i, red := range reducers {
			g.accs[i].add(red.Op, srcCols[i].At(r))
		}
	}
	sort.SliceStable(order, func(a, b int) bool { return lessKey(order[a].key, order[b].key) })

	b := NewBuilder(fields...)
	for _, g := range order {
		row := make([]Value, 0, len(fields))
		row = append(row, g.key...)
		for i, red := range reducers {
			row = append(row, g.accs[i].result(red.Op, srcCols[i].Kind))
		}
		b.Append(row...)
	}
	return b.Table()
}

func lessKey(a, b []Value) bool {
	for i := range a {
		if c := Compare(a[i], b[i]); c != 0 {
			return c < 0
		}
	}
	return false
}

// CountBy returns the number of rows per distinct value of col, as a table
// with columns col and as.
func CountBy(t *Table, col, as string) (*Table, error) {
	return Aggregate(t, []string{col}, Count(col, as))
}

// Groups partitions row indexes by the key columns. Rows with a null key are
// dropped. Groups are sorted ascending by key; rows inside a group keep table
// order.
func Groups(t *Table, keys []string) ([][]int, error) {
	if err := t.Require(keys...); err != nil {
		return nil, err
	}
	keyCols := make([]*Column, len(keys))
	for i, k := range keys {
		keyCols[i], _ = t.Col(k)
	}
	type bucket struct {
		key  []Value
		rows []int
	}
	index := map[string]*bucket{}
	var order []*bucket
	var sb strings.Builder
rows:
	for r := 0; r < t.Len(); r++ {
		sb.Reset()
		key := make([]Value, len(keyCols))
		for i, c := range keyCols {
			v := c.At(r)
			if v.Null {
				continue rows
			}
			key[i] = v
			sb.WriteString(v.String())
			sb.WriteByte(0x1f)
		}
		b, ok := index[sb.String()]
		if !ok {
			b = &bucket{key: key}
			index[sb.String()] = b
			order = append(order, b)
		}
		b.rows = append(b.rows, r)
	}
	sort.SliceStable(order, func(a, b int) bool { return lessKey(order[a].key, order[b].key) })
	out := make([][]int, len(order))
	for i, b := range order {
		out[i] = b.rows
	}
	return out, nil
}
