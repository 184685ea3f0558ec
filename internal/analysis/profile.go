// Package analysis profiles a loaded table: inferred column kinds, missing
// counts, numeric statistics, top categories, per-group summaries and
// correlations, rendered as Markdown for the describe command.
package analysis

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/KaramelBytes/labdash/internal/table"
)

// Options controls profiling behavior.
type Options struct {
	// MaxRows limits rows processed; 0 means unlimited.
	MaxRows int
	// SampleRows determines how many example rows to include in the report.
	SampleRows int
	// GroupBy computes per-group summaries for the given column names.
	GroupBy []string
	// Correlations computes Pearson correlations among numeric columns.
	Correlations bool
	// Outlier detection via robust Z-score (MAD). If Outliers is true, counts |z|>threshold.
	Outliers         bool
	OutlierThreshold float64
	// TopValues caps the categories listed per categorical column.
	TopValues int
}

// DefaultOptions returns reasonable defaults for dataset profiling.
func DefaultOptions() Options {
	return Options{
		SampleRows:       5,
		Outliers:         true,
		OutlierThreshold: 3.5,
		TopValues:        5,
	}
}

// Report is a markdown-friendly profile of a table.
type Report struct {
	Name      string
	Rows      int
	Processed int
	Cols      []ColumnSummary
	Samples   [][]string
	Warnings  []string
	Groups    []GroupResult
	Corr      *CorrMatrix
}

// ColumnSummary captures the kind and statistics of one column.
type ColumnSummary struct {
	Name    string
	Kind    string // numeric|categorical|text
	NonNull int
	Missing int
	Unique  int
	// Numeric stats
	Min  float64
	Max  float64
	Mean float64
	Std  float64
	// Outliers (robust Z via MAD)
	OutliersCount    int
	OutliersMaxAbsZ  float64
	OutlierThreshold float64
	// Categorical top values
	TopValues    []CategoryCount
	ExampleTexts []string
}

type CategoryCount struct {
	Value string
	Count int
}

// GroupResult captures aggregated metrics per group key.
type GroupResult struct {
	Key     string
	Size    int
	Metrics map[string]NumSummary // by column name
}

type NumSummary struct {
	Count          int
	Min, Max, Mean float64
}

// CorrMatrix holds a symmetric Pearson correlation matrix across numeric columns.
type CorrMatrix struct {
	Columns []string
	Values  [][]float64 // row-major, Values[i][j]
}

// categoricalLimit is the distinct-value count up to which a string column
// is reported as categorical rather than free text.
const categoricalLimit = 50

// Profile summarizes t. name labels the report, usually the source file.
func Profile(name string, t *table.Table, opt Options) (*Report, error) {
	if t == nil {
		return nil, errors.New("profile: nil table")
	}
	rep := &Report{Name: name, Rows: t.Len(), Processed: t.Len()}
	if opt.MaxRows > 0 && opt.MaxRows < t.Len() {
		rows := make([]int, opt.MaxRows)
		for i := range rows {
			rows[i] = i
		}
		t = t.Take(rows)
		rep.Processed = t.Len()
		rep.Warnings = append(rep.Warnings, fmt.Sprintf("profile limited to the first %d of %d rows", rep.Processed, rep.Rows))
	}

	var numeric []string
	for _, f := range t.Schema() {
		col, _ := t.Col(f.Name)
		cs := summarize(col, opt)
		if cs.Kind == "numeric" {
			numeric = append(numeric, f.Name)
		}
		if cs.NonNull == 0 {
			rep.Warnings = append(rep.Warnings, fmt.Sprintf("column %q has no values", f.Name))
		}
		rep.Cols = append(rep.Cols, cs)
	}

	sampleRows := opt.SampleRows
	if sampleRows < 0 {
		sampleRows = 0
	}
	for i := 0; i < t.Len() && i < sampleRows; i++ {
		row := t.Row(i)
		out := make([]string, len(row))
		for j, v := range row {
			out[j] = v.String()
		}
		rep.Samples = append(rep.Samples, out)
	}

	if len(opt.GroupBy) > 0 {
		groups, err := groupSummaries(t, opt.GroupBy, numeric)
		if err != nil {
			return nil, fmt.Errorf("group by: %w", err)
		}
		rep.Groups = groups
	}
	if opt.Correlations && len(numeric) >= 2 {
		rep.Corr = correlations(t, numeric)
	}
	return rep, nil
}

func summarize(col *table.Column, opt Options) ColumnSummary {
	cs := ColumnSummary{Name: col.Name}
	if col.Kind.Numeric() {
		cs.Kind = "numeric"
		cs.Min, cs.Max = math.Inf(1), math.Inf(-1)
		var vals []float64
		// Welford
		var n int
		var mean, m2 float64
		seen := map[float64]struct{}{}
		for i := 0; i < col.Len(); i++ {
			x, ok := col.At(i).Number()
			if !ok {
				cs.Missing++
				continue
			}
			cs.NonNull++
			seen[x] = struct{}{}
			vals = append(vals, x)
			cs.Min, cs.Max = math.Min(cs.Min, x), math.Max(cs.Max, x)
			n++
			delta := x - mean
			mean += delta / float64(n)
			m2 += delta * (x - mean)
		}
		cs.Unique = len(seen)
		if n == 0 {
			cs.Min, cs.Max = 0, 0
			return cs
		}
		cs.Mean = mean
		if n > 1 {
			cs.Std = math.Sqrt(m2 / float64(n-1))
		}
		if opt.Outliers && opt.OutlierThreshold > 0 {
			cs.OutlierThreshold = opt.OutlierThreshold
			med, mad := medianMAD(vals)
			if mad > 0 {
				for _, x := range vals {
					z := math.Abs(0.6745 * (x - med) / mad)
					if z > opt.OutlierThreshold {
						cs.OutliersCount++
					}
					if z > cs.OutliersMaxAbsZ {
						cs.OutliersMaxAbsZ = z
					}
				}
			}
		}
		return cs
	}

	cats := map[string]int{}
	for i := 0; i < col.Len(); i++ {
		v := col.At(i)
		if v.Null {
			cs.Missing++
			continue
		}
		cs.NonNull++
		cats[v.String()]++
		if len(cs.ExampleTexts) < 3 {
			cs.ExampleTexts = append(cs.ExampleTexts, v.String())
		}
	}
	cs.Unique = len(cats)
	if col.Kind != table.KindFlag && cs.Unique > categoricalLimit {
		cs.Kind = "text"
		return cs
	}
	cs.Kind = "categorical"
	for k, c := range cats {
		cs.TopValues = append(cs.TopValues, CategoryCount{Value: k, Count: c})
	}
	sort.Slice(cs.TopValues, func(i, j int) bool {
		if cs.TopValues[i].Count != cs.TopValues[j].Count {
			return cs.TopValues[i].Count > cs.TopValues[j].Count
		}
		return cs.TopValues[i].Value < cs.TopValues[j].Value
	})
	top := opt.TopValues
	if top <= 0 {
		top = 5
	}
	if len(cs.TopValues) > top {
		cs.TopValues = cs.TopValues[:top]
	}
	return cs
}

func groupSummaries(t *table.Table, keys, numeric []string) ([]GroupResult, error) {
	groups, err := table.Groups(t, keys)
	if err != nil {
		return nil, err
	}
	isKey := map[string]bool{}
	for _, k := range keys {
		isKey[k] = true
	}
	out := make([]GroupResult, 0, len(groups))
	for _, rows := range groups {
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = fmt.Sprintf("%s=%s", k, safeVal(t.Value(rows[0], k).String()))
		}
		g := GroupResult{Key: strings.Join(parts, " | "), Size: len(rows), Metrics: map[string]NumSummary{}}
		for _, name := range numeric {
			if isKey[name] {
				continue
			}
			s := NumSummary{Min: math.Inf(1), Max: math.Inf(-1)}
			var sum float64
			for _, r := range rows {
				x, ok := t.Value(r, name).Number()
				if !ok {
					continue
				}
				s.Count++
				sum += x
				s.Min, s.Max = math.Min(s.Min, x), math.Max(s.Max, x)
			}
			if s.Count == 0 {
				continue
			}
			s.Mean = sum / float64(s.Count)
			g.Metrics[name] = s
		}
		out = append(out, g)
	}
	return out, nil
}

// correlations computes pairwise Pearson r over rows where both columns are
// present.
func correlations(t *table.Table, numeric []string) *CorrMatrix {
	n := len(numeric)
	m := &CorrMatrix{Columns: numeric, Values: make([][]float64, n)}
	for i := range m.Values {
		m.Values[i] = make([]float64, n)
		m.Values[i][i] = 1
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			var cnt, sx, sy, sxx, syy, sxy float64
			for r := 0; r < t.Len(); r++ {
				x, okX := t.Value(r, numeric[i]).Number()
				y, okY := t.Value(r, numeric[j]).Number()
				if !okX || !okY {
					continue
				}
				cnt++
				sx += x
				sy += y
				sxx += x * x
				syy += y * y
				sxy += x * y
			}
			rv := math.NaN()
			if cnt >= 2 {
				den := math.Sqrt((cnt*sxx - sx*sx) * (cnt*syy - sy*sy))
				if den > 0 {
					rv = (cnt*sxy - sx*sy) / den
				}
			}
			m.Values[i][j], m.Values[j][i] = rv, rv
		}
	}
	return m
}
