// Package derive computes the per-subject metrics the views plot: percent
// change from baseline, per-group maxima with the display clip, and the
// reference-range bounds used for reference lines.
package derive

import (
	"fmt"
	"math"

	"github.com/KaramelBytes/labdash/internal/dataset"
	"github.com/KaramelBytes/labdash/internal/table"
)

const (
	// DisplayBound is the largest percent change drawn as-is.
	DisplayBound = 100.0
	// BoundaryMarker labels values that were clipped to DisplayBound.
	BoundaryMarker = "U"

	ColPercentChange = "pchg"
)

// PercentChange is 100 * (value - baseline) / baseline with plain IEEE
// semantics: a zero baseline gives NaN or an infinity, never an error.
func PercentChange(value, baseline float64) float64 {
	return 100 * (value - baseline) / baseline
}

// Clip caps v at DisplayBound. The marker is BoundaryMarker exactly when v
// was above the bound. NaN passes through unmarked.
func Clip(v float64) (float64, string) {
	if v > DisplayBound {
		return DisplayBound, BoundaryMarker
	}
	return v, ""
}

// WithPercentChange appends a float column named as holding the percent
// change of valueCol against baseCol. A null on either side gives null.
func WithPercentChange(t *table.Table, valueCol, baseCol, as string) (*table.Table, error) {
	if err := t.Require(valueCol, baseCol); err != nil {
		return nil, err
	}
	vals, _ := t.Col(valueCol)
	bases, _ := t.Col(baseCol)
	out := table.NewColumn(as, table.KindFloat)
	for r := 0; r < t.Len(); r++ {
		v, okV := vals.At(r).Number()
		b, okB := bases.At(r).Number()
		if !okV || !okB {
			out.Append(table.Null(table.KindFloat))
			continue
		}
		out.Append(table.Float(PercentChange(v, b)))
	}
	return t.WithColumn(out)
}

// MaxPerGroup keeps, for every distinct key tuple, the row holding the largest
// non-null field value. Ties keep the earliest row; a group whose field is
// entirely null keeps its first row. Output is sorted by key, one row per
// group.
func MaxPerGroup(t *table.Table, keys []string, field string) (*table.Table, error) {
	col, ok := t.Col(field)
	if !ok {
		return nil, &table.UnknownColumnError{Name: field}
	}
	groups, err := table.Groups(t, keys)
	if err != nil {
		return nil, err
	}
	rows := make([]int, len(groups))
	for i, g := range groups {
		best := g[0]
		bestV := col.At(best)
		for _, r := range g[1:] {
			v := col.At(r)
			if v.Null {
				continue
			}
			if bestV.Null || table.Compare(v, bestV) > 0 {
				best, bestV = r, v
			}
		}
		rows[i] = best
	}
	return t.Take(rows), nil
}

// SubjectMetric is the per (parameter, arm, subject) summary of post-baseline
// measurements.
type SubjectMetric struct {
	Param   string
	Arm     string
	Subject string
	// MaxValue is the largest analysis value, NaN if none.
	MaxValue float64
	// MaxPercentChange is the clipped maximum percent change, NaN if none
	// could be computed.
	MaxPercentChange float64
	Marker           string
}

// SubjectMetrics summarises already filtered lab rows per parameter, arm and
// subject, in that sort order.
func SubjectMetrics(t *table.Table) ([]SubjectMetric, error) {
	withPchg, err := WithPercentChange(t, dataset.ColValue, dataset.ColBaseline, ColPercentChange)
	if err != nil {
		return nil, err
	}
	agg, err := table.Aggregate(withPchg,
		[]string{dataset.ColParam, dataset.ColArm, dataset.ColSubject},
		table.Max(dataset.ColValue, "max_aval"),
		table.Max(ColPercentChange, "max_pchg"),
	)
	if err != nil {
		return nil, fmt.Errorf("subject metrics: %w", err)
	}
	out := make([]SubjectMetric, agg.Len())
	for r := range out {
		maxVal, _ := agg.Value(r, "max_aval").Number()
		maxPchg, _ := agg.Value(r, "max_pchg").Number()
		clipped, marker := Clip(maxPchg)
		out[r] = SubjectMetric{
			Param:            agg.Value(r, dataset.ColParam).String(),
			Arm:              agg.Value(r, dataset.ColArm).String(),
			Subject:          agg.Value(r, dataset.ColSubject).String(),
			MaxValue:         maxVal,
			MaxPercentChange: clipped,
			Marker:           marker,
		}
	}
	return out, nil
}

// Bounds is the reference range summary of one parameter.
type Bounds struct {
	Param string
	// MinUpper is the smallest upper limit of normal; views draw it as ULN.
	MinUpper float64
	MaxLower float64
	MaxUpper float64
}

// ReferenceBounds aggregates a1hi/a1lo per parameter. Missing bounds are NaN.
func ReferenceBounds(t *table.Table) ([]Bounds, error) {
	agg, err := table.Aggregate(t, []string{dataset.ColParam},
		table.Min(dataset.ColUpper, "min_hi"),
		table.Max(dataset.ColLower, "max_lo"),
		table.Max(dataset.ColUpper, "max_hi"),
	)
	if err != nil {
		return nil, fmt.Errorf("reference bounds: %w", err)
	}
	out := make([]Bounds, agg.Len())
	for r := range out {
		minHi, _ := agg.Value(r, "min_hi").Number()
		maxLo, _ := agg.Value(r, "max_lo").Number()
		maxHi, _ := agg.Value(r, "max_hi").Number()
		out[r] = Bounds{
			Param:    agg.Value(r, dataset.ColParam).String(),
			MinUpper: minHi,
			MaxLower: maxLo,
			MaxUpper: maxHi,
		}
	}
	return out, nil
}

// BoundsFor finds the bounds of one parameter.
func BoundsFor(all []Bounds, param string) (Bounds, bool) {
	for _, b := range all {
		if b.Param == param {
			return b, true
		}
	}
	return Bounds{Param: param, MinUpper: math.NaN(), MaxLower: math.NaN(), MaxUpper: math.NaN()}, false
}

// Quantile linearly interpolates the q-th quantile of sorted values.
func Quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	w := pos - float64(lo)
	return sorted[lo]*(1-w) + sorted[hi]*w
}
