package dataset

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/KaramelBytes/labdash/internal/table"
)

const adlbcCSV = `,USUBJID,PARAMCD,AVAL,BASE,CHG,A1HI,A1LO,AVISITN,ADY,TRTA,SAFFL
0,01-701-1015,ALT,27,27,0,34,6,0,1,Placebo,Y
1,01-701-1015,ALT,40,27,13,34,6,2.0,14,Placebo,Y
2,01-701-1015,AST,.,23,,36,10,2,14,Placebo,Y
3,01-701-1023,ALT,12,10,2,34,6,4,28,Xanomeline High Dose,Y
4,01-701-1023,_QC,1,1,0,,,4,28,Xanomeline High Dose,N
`

const adslCSV = `usubjid,trt01a,age
01-701-1015,Placebo,63
01-701-1023,Xanomeline High Dose,64
`

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func writeCompressed(t *testing.T, dir, name, body string) string {
	t.Helper()
	var buf bytes.Buffer
	w, closeFn, err := DetectCompression(name).NewWriter(&buf)
	require.NoError(t, err)
	_, err = io.WriteString(w, body)
	require.NoError(t, err)
	require.NoError(t, closeFn())
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, buf.Bytes(), 0o644))
	return p
}

func TestLoadCSVInfersKindsAndHonoursHints(t *testing.T) {
	p := writeFile(t, t.TempDir(), "adlbc.csv", adlbcCSV)
	tbl, err := Load(context.Background(), p, LabOptions())
	require.NoError(t, err)
	require.Equal(t, 5, tbl.Len())

	kinds := map[string]table.Kind{}
	for _, f := range tbl.Schema() {
		kinds[f.Name] = f.Kind
	}
	assert.Equal(t, table.KindInt, kinds[ColVisit], "2.0 is read as an integer visit")
	assert.Equal(t, table.KindFloat, kinds[ColValue])
	assert.Equal(t, table.KindFlag, kinds[ColSafety])
	assert.Equal(t, table.KindString, kinds[ColArm])
	assert.NotContains(t, tbl.Names(), "", "unnamed index column is dropped")

	assert.True(t, tbl.Value(2, ColValue).Null, "SAS missing value reads as null")
	assert.True(t, tbl.Value(2, ColChange).Null)
	assert.Equal(t, table.Int(2), tbl.Value(1, ColVisit))
}

func TestLoadRenamesTreatmentColumn(t *testing.T) {
	p := writeFile(t, t.TempDir(), "adsl.csv", adslCSV)
	tbl, err := Load(context.Background(), p, SubjectOptions())
	require.NoError(t, err)
	assert.Equal(t, []string{"usubjid", "trta", "age"}, tbl.Names())
	assert.Equal(t, "Placebo", tbl.Value(0, ColArm).String())
}

func TestLoadMissingRequiredColumn(t *testing.T) {
	p := writeFile(t, t.TempDir(), "adlbc.csv", "usubjid,paramcd\nS1,ALT\n")
	_, err := Load(context.Background(), p, LabOptions())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingColumn))
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, p, le.Path)
	assert.Contains(t, err.Error(), "avisitn")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(context.Background(), filepath.Join(t.TempDir(), "nope.csv"), LabOptions())
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestLoadUnparsableHintedColumn(t *testing.T) {
	p := writeFile(t, t.TempDir(), "adlbc.csv", "usubjid,paramcd,avisitn\nS1,ALT,week one\n")
	_, err := Load(context.Background(), p, LabOptions())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "week one")
}

func TestLoadUnsupportedExtension(t *testing.T) {
	p := writeFile(t, t.TempDir(), "adlbc.json", "{}")
	_, err := Load(context.Background(), p, LabOptions())
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Contains(t, err.Error(), "unsupported file type")
}

func TestLoadCompressedSources(t *testing.T) {
	for _, name := range []string{"adlbc.csv.gz", "adlbc.csv.zst", "adlbc.csv.xz"} {
		t.Run(name, func(t *testing.T) {
			p := writeCompressed(t, t.TempDir(), name, adlbcCSV)
			tbl, err := Load(context.Background(), p, LabOptions())
			require.NoError(t, err)
			assert.Equal(t, 5, tbl.Len())
		})
	}
}

func TestLoadTSV(t *testing.T) {
	p := writeFile(t, t.TempDir(), "adsl.tsv", "usubjid\ttrta\nS1\tPlacebo\n")
	tbl, err := Load(context.Background(), p, SubjectOptions())
	require.NoError(t, err)
	assert.Equal(t, "Placebo", tbl.Value(0, ColArm).String())
}

func TestLoadXLSXFirstSheet(t *testing.T) {
	p := filepath.Join(t.TempDir(), "adsl.xlsx")
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]any{"USUBJID", "TRT01A"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]any{"S1", "Placebo"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A3", &[]any{"S2", "Xanomeline Low Dose"}))
	require.NoError(t, f.SaveAs(p))
	require.NoError(t, f.Close())

	tbl, err := Load(context.Background(), p, SubjectOptions())
	require.NoError(t, err)
	assert.Equal(t, 2, tbl.Len())
	assert.Equal(t, "Xanomeline Low Dose", tbl.Value(1, ColArm).String())
}

func TestDetectFormatAndCompression(t *testing.T) {
	cases := []struct {
		path   string
		format Format
		comp   Compression
	}{
		{"a.csv", FormatCSV, CompressionNone},
		{"a.CSV.GZ", FormatCSV, CompressionGZ},
		{"a.tsv.bz2", FormatTSV, CompressionBZ2},
		{"s3://bucket/dir/a.parquet", FormatParquet, CompressionNone},
		{"a.xlsx", FormatXLSX, CompressionNone},
		{"a.csv.zst", FormatCSV, CompressionZSTD},
	}
	for _, tc := range cases {
		f, err := DetectFormat(tc.path)
		require.NoError(t, err, tc.path)
		assert.Equal(t, tc.format, f, tc.path)
		assert.Equal(t, tc.comp, DetectCompression(tc.path), tc.path)
	}
}

func TestSplitS3URI(t *testing.T) {
	b, k, err := splitS3URI("s3://trial-data/adam/adlbc.csv.gz")
	require.NoError(t, err)
	assert.Equal(t, "trial-data", b)
	assert.Equal(t, "adam/adlbc.csv.gz", k)

	_, _, err = splitS3URI("s3://bucket-only")
	assert.Error(t, err)
}

func loadFixture(t *testing.T) (*Dataset, string) {
	t.Helper()
	dir := t.TempDir()
	src := Sources{
		Labs:     writeFile(t, dir, "adlbc.csv", adlbcCSV),
		Subjects: writeFile(t, dir, "adsl.csv", adslCSV),
	}
	ds, err := LoadDataset(context.Background(), src)
	require.NoError(t, err)
	return ds, dir
}

func TestLoadDatasetOptions(t *testing.T) {
	ds, _ := loadFixture(t)
	assert.NotEmpty(t, ds.Version)
	assert.Equal(t, []string{"ALT", "AST"}, ds.ParamCodes(), "codes starting with _ are hidden")
	assert.Equal(t, []string{"01-701-1015", "01-701-1023"}, ds.SubjectIDs())
	assert.Equal(t, []string{"Placebo", "Xanomeline High Dose"}, ds.Arms())
	assert.True(t, ds.HasParam("ALT"))
	assert.False(t, ds.HasParam("_QC"))
}

func TestLoadDatasetFailsWhenEitherSourceFails(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadDataset(context.Background(), Sources{
		Labs:     writeFile(t, dir, "adlbc.csv", adlbcCSV),
		Subjects: filepath.Join(dir, "missing.csv"),
	})
	var le *LoadError
	require.ErrorAs(t, err, &le)
}

func TestLabRecordsDecodeNulls(t *testing.T) {
	ds, _ := loadFixture(t)
	recs := LabRecords(ds.Labs)
	require.Len(t, recs, 5)
	assert.Equal(t, int64(2), recs[1].Visit)
	assert.True(t, recs[1].HasVisit)
	assert.True(t, recs[1].SafetyPop)
	assert.False(t, recs[4].SafetyPop)
	assert.InDelta(t, 13.0, recs[1].Change, 1e-9)
}

func TestCheckInvariants(t *testing.T) {
	ds, _ := loadFixture(t)
	assert.Empty(t, CheckInvariants(ds))

	b := table.NewBuilder(
		table.Field{Name: ColSubject, Kind: table.KindString},
		table.Field{Name: ColParam, Kind: table.KindString},
		table.Field{Name: ColVisit, Kind: table.KindInt},
		table.Field{Name: ColArm, Kind: table.KindString},
		table.Field{Name: ColSafety, Kind: table.KindFlag},
	)
	b.Append(table.Str("S1"), table.Str("ALT"), table.Int(1), table.Str("A"), table.Flag("Y"))
	b.Append(table.Str("S1"), table.Str("ALT"), table.Int(1), table.Str("A"), table.Flag("Y"))
	labs, err := b.Table()
	require.NoError(t, err)
	sb := table.NewBuilder(
		table.Field{Name: ColSubject, Kind: table.KindString},
		table.Field{Name: ColArm, Kind: table.KindString},
	)
	sb.Append(table.Str("S1"), table.Str("A"))
	sb.Append(table.Str("S1"), table.Str("A"))
	subjects, err := sb.Table()
	require.NoError(t, err)
	dup, err := New(labs, subjects)
	require.NoError(t, err)

	warnings := CheckInvariants(dup)
	require.Len(t, warnings, 2)
	assert.Contains(t, warnings[0], "S1/ALT/visit 1")
	assert.Contains(t, warnings[1], "S1")
}

func TestStoreReloadKeepsSnapshotOnFailure(t *testing.T) {
	ds, dir := loadFixture(t)
	store := NewStore(ds, slog.New(slog.NewTextHandler(io.Discard, nil)))
	var swapped int
	store.OnSwap = func(*Dataset) { swapped++ }

	require.NoError(t, store.Reload(context.Background()))
	assert.NotEqual(t, ds.Version, store.Current().Version)
	assert.Equal(t, 1, swapped)

	good := store.Current()
	writeFile(t, dir, "adlbc.csv", "usubjid\nS1\n")
	require.Error(t, store.Reload(context.Background()))
	assert.Same(t, good, store.Current())
	assert.Equal(t, 1, swapped)
}

func TestStoreWatchReloadsOnWrite(t *testing.T) {
	ds, dir := loadFixture(t)
	store := NewStore(ds, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- store.Watch(ctx, 20*time.Millisecond) }()

	// give the watcher time to register
	time.Sleep(100 * time.Millisecond)
	writeFile(t, dir, "adsl.csv", adslCSV+"01-701-1028,Placebo,71\n")

	assert.Eventually(t, func() bool {
		return store.Current().Subjects.Len() == 3
	}, 5*time.Second, 20*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestWatchRequiresLocalSources(t *testing.T) {
	store := NewStore(&Dataset{Sources: Sources{Labs: "s3://b/k.csv"}}, nil)
	assert.Error(t, store.Watch(context.Background(), time.Millisecond))
}
