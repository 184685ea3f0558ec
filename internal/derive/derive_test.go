package derive

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/labdash/internal/dataset"
	"github.com/KaramelBytes/labdash/internal/table"
)

func labs(t *testing.T, rows ...[]table.Value) *table.Table {
	t.Helper()
	b := table.NewBuilder(
		table.Field{Name: dataset.ColSubject, Kind: table.KindString},
		table.Field{Name: dataset.ColParam, Kind: table.KindString},
		table.Field{Name: dataset.ColArm, Kind: table.KindString},
		table.Field{Name: dataset.ColVisit, Kind: table.KindInt},
		table.Field{Name: dataset.ColValue, Kind: table.KindFloat},
		table.Field{Name: dataset.ColBaseline, Kind: table.KindFloat},
		table.Field{Name: dataset.ColUpper, Kind: table.KindFloat},
		table.Field{Name: dataset.ColLower, Kind: table.KindFloat},
	)
	for _, r := range rows {
		b.Append(r...)
	}
	tbl, err := b.Table()
	require.NoError(t, err)
	return tbl
}

func row(subj, param, arm string, visit int64, aval, base, hi, lo float64) []table.Value {
	return []table.Value{
		table.Str(subj), table.Str(param), table.Str(arm), table.Int(visit),
		table.Float(aval), table.Float(base), table.Float(hi), table.Float(lo),
	}
}

func TestPercentChange(t *testing.T) {
	assert.InDelta(t, 150.0, PercentChange(25, 10), 1e-9)
	assert.InDelta(t, -50.0, PercentChange(5, 10), 1e-9)
	assert.True(t, math.IsNaN(PercentChange(0, 0)), "0/0 propagates NaN")
	assert.True(t, math.IsInf(PercentChange(5, 0), 1))
	assert.True(t, math.IsInf(PercentChange(-5, 0), -1))
}

func TestClip(t *testing.T) {
	cases := []struct {
		in     float64
		want   float64
		marker string
	}{
		{150, 100, BoundaryMarker},
		{80, 80, ""},
		{100, 100, ""},
		{-40, -40, ""},
		{math.Inf(1), 100, BoundaryMarker},
	}
	for _, tc := range cases {
		got, marker := Clip(tc.in)
		assert.Equal(t, tc.want, got, "clip(%v)", tc.in)
		assert.Equal(t, tc.marker, marker, "marker(%v)", tc.in)
	}
	got, marker := Clip(math.NaN())
	assert.True(t, math.IsNaN(got))
	assert.Empty(t, marker)
}

func TestClipPropertyMarkerIffAboveBound(t *testing.T) {
	for v := -300.0; v <= 300; v += 7.5 {
		got, marker := Clip(v)
		if v > DisplayBound {
			assert.Equal(t, DisplayBound, got)
			assert.Equal(t, BoundaryMarker, marker)
		} else {
			assert.Equal(t, v, got)
			assert.Empty(t, marker)
		}
	}
}

func TestSubjectMetricsClipsLargeChange(t *testing.T) {
	tbl := labs(t,
		row("S1", "ALT", "Placebo", 1, 25, 10, 34, 6),
	)
	ms, err := SubjectMetrics(tbl)
	require.NoError(t, err)
	require.Len(t, ms, 1)
	assert.Equal(t, "S1", ms[0].Subject)
	assert.Equal(t, 25.0, ms[0].MaxValue)
	assert.Equal(t, 100.0, ms[0].MaxPercentChange)
	assert.Equal(t, "U", ms[0].Marker)
}

func TestSubjectMetricsTakesMaximumPerSubject(t *testing.T) {
	tbl := labs(t,
		row("S2", "GGT", "Placebo", 1, 12, 10, 50, 5),
		row("S2", "GGT", "Placebo", 2, 18, 10, 50, 5),
		row("S1", "GGT", "Placebo", 1, 8, 10, 50, 5),
		row("S3", "GGT", "High", 1, 5, 0, 50, 5),
	)
	ms, err := SubjectMetrics(tbl)
	require.NoError(t, err)
	require.Len(t, ms, 3)

	assert.Equal(t, "High", ms[0].Arm, "sorted by parameter, arm, subject")
	assert.Equal(t, 100.0, ms[0].MaxPercentChange, "x/0 is +Inf and clips")

	assert.Equal(t, "S1", ms[1].Subject)
	assert.InDelta(t, -20.0, ms[1].MaxPercentChange, 1e-9)
	assert.Empty(t, ms[1].Marker)

	assert.Equal(t, "S2", ms[2].Subject)
	assert.InDelta(t, 80.0, ms[2].MaxPercentChange, 1e-9)
	assert.Equal(t, 18.0, ms[2].MaxValue)
}

func TestSubjectMetricsZeroOverZeroIsNaN(t *testing.T) {
	ms, err := SubjectMetrics(labs(t, row("S1", "GGT", "Placebo", 1, 0, 0, 50, 5)))
	require.NoError(t, err)
	require.Len(t, ms, 1)
	assert.True(t, math.IsNaN(ms[0].MaxPercentChange))
	assert.Empty(t, ms[0].Marker)
}

func TestMaxPerGroupOneRowPerGroup(t *testing.T) {
	tbl := labs(t,
		row("S1", "ALT", "A", 1, 20, 10, 34, 6),
		row("S1", "ALT", "A", 2, 40, 10, 34, 6),
		row("S1", "ALT", "A", 3, 40, 10, 34, 6),
		row("S2", "ALT", "A", 1, math.NaN(), 10, 34, 6),
		row("S2", "ALT", "A", 2, math.NaN(), 10, 34, 6),
		row("S1", "AST", "A", 1, 7, 10, 34, 6),
	)
	got, err := MaxPerGroup(tbl, []string{dataset.ColSubject, dataset.ColParam}, dataset.ColValue)
	require.NoError(t, err)
	require.Equal(t, 3, got.Len())

	assert.Equal(t, table.Int(2), got.Value(0, dataset.ColVisit), "first occurrence wins ties")
	assert.Equal(t, "AST", got.Value(1, dataset.ColParam).String())
	assert.Equal(t, table.Int(1), got.Value(2, dataset.ColVisit), "all-null group keeps its first row")
}

func TestMaxPerGroupUnknownField(t *testing.T) {
	_, err := MaxPerGroup(labs(t), []string{dataset.ColSubject}, "nope")
	var uce *table.UnknownColumnError
	require.ErrorAs(t, err, &uce)
}

func TestReferenceBounds(t *testing.T) {
	tbl := labs(t,
		row("S1", "ALT", "A", 1, 20, 10, 34, 6),
		row("S2", "ALT", "A", 1, 20, 10, 40, 8),
		row("S1", "BILI", "A", 1, 0.7, 0.5, 21, 3),
	)
	bs, err := ReferenceBounds(tbl)
	require.NoError(t, err)
	require.Len(t, bs, 2)
	alt, ok := BoundsFor(bs, "ALT")
	require.True(t, ok)
	assert.Equal(t, 34.0, alt.MinUpper)
	assert.Equal(t, 8.0, alt.MaxLower)
	assert.Equal(t, 40.0, alt.MaxUpper)

	missing, ok := BoundsFor(bs, "GGT")
	assert.False(t, ok)
	assert.True(t, math.IsNaN(missing.MinUpper))
}

func TestQuantile(t *testing.T) {
	vals := []float64{1, 2, 3, 4}
	assert.Equal(t, 1.0, Quantile(vals, 0))
	assert.Equal(t, 4.0, Quantile(vals, 1))
	assert.InDelta(t, 2.5, Quantile(vals, 0.5), 1e-9)
	assert.InDelta(t, 1.75, Quantile(vals, 0.25), 1e-9)
	assert.Equal(t, 0.0, Quantile(nil, 0.5))
}
