package table

import (
	"fmt"
	"sort"
	"strings"
)

// Pivot reshapes a long table into a wide one: one row per distinct index
// tuple, one column per distinct non-null value of pivotCol, each cell holding
// valueCol for that combination. Rows and pivot columns are sorted ascending,
// so the result never depends on row arrival order.
//
// Each (index, pivot) cell must have at most one source row; callers
// deduplicate or aggregate first. A second row for the same cell fails with
// *AmbiguousPivotError instead of picking one.
func Pivot(t *Table, index []string, pivotCol, valueCol string) (*Table, error) {
	if err := t.Require(append(append([]string{}, index...), pivotCol, valueCol)...); err != nil {
		return nil, err
	}
	pivots, err := t.Distinct(pivotCol)
	if err != nil {
		return nil, err
	}
	pc, _ := t.Col(pivotCol)
	vc, _ := t.Col(valueCol)
	idxCols := make([]*Column, len(index))
	fields := make([]Field, 0, len(index)+len(pivots))
	names := map[string]bool{}
	for i, n := range index {
		idxCols[i], _ = t.Col(n)
		fields = append(fields, Field{Name: n, Kind: idxCols[i].Kind})
		names[n] = true
	}
	slot := make(map[string]int, len(pivots))
	for i, p := range pivots {
		name := p.String()
		if names[name] {
			return nil, fmt.Errorf("pivot value %q collides with index column", name)
		}
		names[name] = true
		slot[name] = i
		fields = append(fields, Field{Name: name, Kind: vc.Kind})
	}

	type wideRow struct {
		key   []Value
		cells []Value
		set   []bool
	}
	rows := map[string]*wideRow{}
	var order []*wideRow
	var sb strings.Builder
	for r := 0; r < t.Len(); r++ {
		p := pc.At(r)
		if p.Null {
			continue
		}
		sb.Reset()
		key := make([]Value, len(idxCols))
		for i, c := range idxCols {
			key[i] = c.At(r)
			if key[i].Null {
				sb.WriteString("\x00null")
			} else {
				sb.WriteString(key[i].String())
			}
			sb.WriteByte(0x1f)
		}
		w, ok := rows[sb.String()]
		if !ok {
			w = &wideRow{key: key, cells: make([]Value, len(pivots)), set: make([]bool, len(pivots))}
			for i := range w.cells {
				w.cells[i] = Null(vc.Kind)
			}
			rows[sb.String()] = w
			order = append(order, w)
		}
		s := slot[p.String()]
		if w.set[s] {
			return nil, &AmbiguousPivotError{Index: key, Pivot: p}
		}
		w.set[s] = true
		w.cells[s] = vc.At(r)
	}
	sort.SliceStable(order, func(a, b int) bool { return lessKey(order[a].key, order[b].key) })

	b := NewBuilder(fields...)
	for _, w := range order {
		b.Append(append(append([]Value{}, w.key...), w.cells...)...)
	}
	return b.Table()
}

// Melt is the inverse of Pivot: every non-index column becomes rows of
// (index..., varName, valueName). Null cells are dropped, so melting a pivot
// recovers exactly the source triples.
func Melt(t *Table, index []string, varName, valueName string) (*Table, error) {
	if err := t.Require(index...); err != nil {
		return nil, err
	}
	isIndex := map[string]bool{}
	for _, n := range index {
		isIndex[n] = true
	}
	var valueCols []*Column
	for _, n := range t.Names() {
		if !isIndex[n] {
			c, _ := t.Col(n)
			valueCols = append(valueCols, c)
		}
	}
	kind := KindString
	if len(valueCols) > 0 {
		kind = valueCols[0].Kind
		for _, c := range valueCols[1:] {
			if c.Kind != kind {
				if kind.Numeric() && c.Kind.Numeric() {
					kind = KindFloat
				} else {
					kind = KindString
				}
			}
		}
	}
	fields := make([]Field, 0, len(index)+2)
	idxCols := make([]*Column, len(index))
	for i, n := range index {
		idxCols[i], _ = t.Col(n)
		fields = append(fields, Field{Name: n, Kind: idxCols[i].Kind})
	}
	fields = append(fields, Field{Name: varName, Kind: KindString}, Field{Name: valueName, Kind: kind})

	b := NewBuilder(fields...)
	for r := 0; r < t.Len(); r++ {
		for _, c := range valueCols {
			v := c.At(r)
			if v.Null {
				continue
			}
			row := make([]Value, 0, len(fields))
			for _, ic := range idxCols {
				row = append(row, ic.At(r))
			}
			row = append(row, Str(c.Name), v)
			b.Append(row...)
		}
	}
	return b.Table()
}
