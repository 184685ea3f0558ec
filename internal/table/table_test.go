package table

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func labFixture(t *testing.T) *Table {
	t.Helper()
	b := NewBuilder(
		Field{Name: "usubjid", Kind: KindString},
		Field{Name: "paramcd", Kind: KindString},
		Field{Name: "avisitn", Kind: KindInt},
		Field{Name: "aval", Kind: KindFloat},
		Field{Name: "saffl", Kind: KindFlag},
	)
	b.Append(Str("S2"), Str("ALT"), Int(1), Float(30), Flag("Y"))
	b.Append(Str("S1"), Str("ALT"), Int(0), Float(10), Flag("Y"))
	b.Append(Str("S1"), Str("ALT"), Int(1), Float(25), Flag("Y"))
	b.Append(Str("S1"), Str("AST"), Int(1), Float(40), Flag("N"))
	b.Append(Str("S3"), Str("ALT"), Null(KindInt), Float(12), Flag("Y"))
	b.Append(Str("S3"), Str("BILI"), Int(2), Null(KindFloat), Flag("Y"))
	tbl, err := b.Table()
	require.NoError(t, err)
	return tbl
}

func TestFilterReturnsOnlyMatchingRows(t *testing.T) {
	tbl := labFixture(t)
	preds := []Predicate{
		In("paramcd", Str("ALT"), Str("AST")),
		GE("avisitn", 0),
		Eq("saffl", Str("Y")),
	}
	got, err := Filter(tbl, preds...)
	require.NoError(t, err)
	require.Equal(t, 3, got.Len())
	for r := 0; r < got.Len(); r++ {
		for _, p := range preds {
			assert.True(t, p.Match(got.Value(r, p.Column())), "row %d fails %s", r, p)
		}
	}
	assert.Equal(t, []Value{Str("S2"), Str("ALT"), Int(1), Float(30), Flag("Y")}, got.Row(0))
	assert.Equal(t, 6, tbl.Len(), "source table must be untouched")
}

func TestFilterIsIdempotent(t *testing.T) {
	tbl := labFixture(t)
	preds := []Predicate{GT("avisitn", 0), NotNull("aval")}
	once, err := Filter(tbl, preds...)
	require.NoError(t, err)
	twice, err := Filter(once, preds...)
	require.NoError(t, err)
	require.Equal(t, once.Len(), twice.Len())
	for r := 0; r < once.Len(); r++ {
		assert.Equal(t, once.Row(r), twice.Row(r))
	}
}

func TestFilterNullsNeverMatchComparisons(t *testing.T) {
	tbl := labFixture(t)
	got, err := Filter(tbl, GE("avisitn", -100))
	require.NoError(t, err)
	assert.Equal(t, 5, got.Len())
}

func TestFilterAbsentValueYieldsEmptyTable(t *testing.T) {
	tbl := labFixture(t)
	got, err := Filter(tbl, Eq("paramcd", Str("NOPE")))
	require.NoError(t, err)
	assert.Equal(t, 0, got.Len())
	assert.Equal(t, tbl.Names(), got.Names())
}

func TestFilterUnknownColumn(t *testing.T) {
	_, err := Filter(labFixture(t), Eq("missing", Str("x")))
	var uce *UnknownColumnError
	require.ErrorAs(t, err, &uce)
	assert.Equal(t, "missing", uce.Name)
}

func TestAggregateMinMaxSumCount(t *testing.T) {
	tbl := labFixture(t)
	got, err := Aggregate(tbl, []string{"paramcd"},
		Min("aval", "lo"), Max("aval", "hi"), Sum("aval", "total"), Count("aval", "n"))
	require.NoError(t, err)
	require.Equal(t, []string{"paramcd", "lo", "hi", "total", "n"}, got.Names())
	require.Equal(t, 3, got.Len())

	assert.Equal(t, []Value{Str("ALT"), Float(10), Float(30), Float(77), Int(4)}, got.Row(0))
	assert.Equal(t, []Value{Str("AST"), Float(40), Float(40), Float(40), Int(1)}, got.Row(1))

	bili := got.Row(2)
	assert.Equal(t, Str("BILI"), bili[0])
	assert.True(t, bili[1].Null, "min over nulls is null")
	assert.True(t, bili[2].Null, "max over nulls is null")
	assert.Equal(t, Float(0), bili[3], "sum over nulls is zero")
	assert.Equal(t, Int(0), bili[4])
}

func TestAggregateOneRowPerKeySortedByKey(t *testing.T) {
	tbl := labFixture(t)
	got, err := Aggregate(tbl, []string{"usubjid", "paramcd"}, First("aval"))
	require.NoError(t, err)
	var keys []string
	for r := 0; r < got.Len(); r++ {
		keys = append(keys, got.Value(r, "usubjid").String()+"/"+got.Value(r, "paramcd").String())
	}
	assert.Equal(t, []string{"S1/ALT", "S1/AST", "S2/ALT", "S3/ALT", "S3/BILI"}, keys)
}

func TestAggregateEmptyInput(t *testing.T) {
	empty := labFixture(t).Empty()
	got, err := Aggregate(empty, []string{"paramcd"}, Max("aval"))
	require.NoError(t, err)
	assert.Equal(t, 0, got.Len())
	assert.Equal(t, []string{"paramcd", "aval"}, got.Names())
}

func TestAggregateRejectsSumOverStrings(t *testing.T) {
	_, err := Aggregate(labFixture(t), []string{"paramcd"}, Sum("usubjid"))
	assert.Error(t, err)
}

func TestPivotRoundTrip(t *testing.T) {
	b := NewBuilder(
		Field{Name: "usubjid", Kind: KindString},
		Field{Name: "paramcd", Kind: KindString},
		Field{Name: "aval", Kind: KindFloat},
	)
	b.Append(Str("S2"), Str("BILI"), Float(1.5))
	b.Append(Str("S1"), Str("ALT"), Float(25))
	b.Append(Str("S1"), Str("BILI"), Float(0.7))
	b.Append(Str("S2"), Str("ALT"), Float(31))
	b.Append(Str("S3"), Str("ALT"), Float(8))
	long, err := b.Table()
	require.NoError(t, err)

	wide, err := Pivot(long, []string{"usubjid"}, "paramcd", "aval")
	require.NoError(t, err)
	assert.Equal(t, []string{"usubjid", "ALT", "BILI"}, wide.Names())
	require.Equal(t, 3, wide.Len())
	assert.Equal(t, []Value{Str("S1"), Float(25), Float(0.7)}, wide.Row(0))
	assert.True(t, wide.Value(2, "BILI").Null)

	back, err := Melt(wide, []string{"usubjid"}, "paramcd", "aval")
	require.NoError(t, err)
	triples := func(tb *Table) map[string]float64 {
		out := map[string]float64{}
		for r := 0; r < tb.Len(); r++ {
			n, _ := tb.Value(r, "aval").Number()
			out[tb.Value(r, "usubjid").String()+"|"+tb.Value(r, "paramcd").String()] = n
		}
		return out
	}
	assert.Equal(t, triples(long), triples(back))
	assert.Equal(t, long.Len(), back.Len())
}

func TestPivotIgnoresArrivalOrder(t *testing.T) {
	b := NewBuilder(Field{Name: "k", Kind: KindString}, Field{Name: "p", Kind: KindInt}, Field{Name: "v", Kind: KindFloat})
	b.Append(Str("b"), Int(15), Float(2))
	b.Append(Str("a"), Int(2), Float(1))
	b.Append(Str("a"), Int(15), Float(3))
	tbl, err := b.Table()
	require.NoError(t, err)
	wide, err := Pivot(tbl, []string{"k"}, "p", "v")
	require.NoError(t, err)
	assert.Equal(t, []string{"k", "2", "15"}, wide.Names(), "numeric pivot values sort numerically")
	assert.Equal(t, Str("a"), wide.Value(0, "k"))
}

func TestPivotDuplicateCellIsIntegrityError(t *testing.T) {
	tbl := labFixture(t)
	_, err := Pivot(tbl, []string{"usubjid"}, "paramcd", "aval")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDataIntegrity))
	var ape *AmbiguousPivotError
	require.ErrorAs(t, err, &ape)
	assert.Equal(t, "ALT", ape.Pivot.String())
}

func TestSortByAndDistinct(t *testing.T) {
	tbl := labFixture(t)
	sorted, err := tbl.SortBy("avisitn")
	require.NoError(t, err)
	assert.Equal(t, Int(0), sorted.Value(0, "avisitn"))
	assert.True(t, sorted.Value(sorted.Len()-1, "avisitn").Null, "nulls sort last")

	params, err := tbl.Distinct("paramcd")
	require.NoError(t, err)
	assert.Equal(t, []Value{Str("ALT"), Str("AST"), Str("BILI")}, params)
}

func TestFloatNaNIsNull(t *testing.T) {
	v := Float(math.NaN())
	assert.True(t, v.Null)
	_, ok := v.Number()
	assert.False(t, ok)
	assert.Equal(t, "", v.String())
}

func TestRenameSharesData(t *testing.T) {
	tbl := labFixture(t)
	got, err := tbl.Rename("saffl", "safety")
	require.NoError(t, err)
	assert.Equal(t, Flag("Y"), got.Value(0, "safety"))
	_, ok := tbl.Col("safety")
	assert.False(t, ok)
}
