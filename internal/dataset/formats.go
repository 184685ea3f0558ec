package dataset

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/apache/arrow/go/v18/arrow/array"
	pqfile "github.com/apache/arrow/go/v18/parquet/file"
	"github.com/apache/arrow/go/v18/parquet/pqarrow"
	"github.com/xuri/excelize/v2"
)

// Format is the inner file format of a source after decompression.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatTSV     Format = "tsv"
	FormatXLSX    Format = "xlsx"
	FormatParquet Format = "parquet"
)

// DetectFormat infers the format from the path, ignoring any compression suffix.
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(TrimCompression(path))) {
	case ".csv", ".txt":
		return FormatCSV, nil
	case ".tsv", ".tab":
		return FormatTSV, nil
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	case ".parquet", ".pq":
		return FormatParquet, nil
	default:
		return "", fmt.Errorf("unsupported file type %q", filepath.Base(path))
	}
}

// rawTable is an untyped header plus rows, the common shape every reader
// produces before type inference.
type rawTable struct {
	header []string
	rows   [][]string
}

func readDelimited(r io.Reader, delim rune) (*rawTable, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comma = delim
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty file: no header row")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	raw := &rawTable{header: header}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", len(raw.rows)+2, err)
		}
		raw.rows = append(raw.rows, rec)
	}
	return raw, nil
}

// readXLSX reads the named sheet, or the first sheet when name is empty.
// The first row is the header.
func readXLSX(r io.Reader, sheet string) (*rawTable, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("no sheets found in workbook")
	}
	if sheet == "" {
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %q is empty", sheet)
	}
	return &rawTable{header: rows[0], rows: rows[1:]}, nil
}

func readParquet(ctx context.Context, r io.Reader) (*rawTable, error) {
	// parquet needs random access
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read parquet data: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("empty parquet file")
	}
	pq, err := pqfile.NewParquetReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open parquet: %w", err)
	}
	defer pq.Close()
	fr, err := pqarrow.NewFileReader(pq, pqarrow.ArrowReadProperties{}, nil)
	if err != nil {
		return nil, fmt.Errorf("arrow reader: %w", err)
	}
	tbl, err := fr.ReadTable(ctx)
	if err != nil {
		return nil, fmt.Errorf("read table: %w", err)
	}
	defer tbl.Release()

	schema := tbl.Schema()
	raw := &rawTable{header: make([]string, schema.NumFields())}
	for i, f := range schema.Fields() {
		raw.header[i] = f.Name
	}
	tr := array.NewTableReader(tbl, 0)
	defer tr.Release()
	for tr.Next() {
		rec := tr.Record()
		for i := 0; i < int(rec.NumRows()); i++ {
			row := make([]string, rec.NumCols())
			for j, col := range rec.Columns() {
				if col.IsNull(i) {
					continue
				}
				row[j] = col.ValueStr(i)
			}
			raw.rows = append(raw.rows, row)
		}
	}
	if err := tr.Err(); err != nil {
		return nil, fmt.Errorf("read records: %w", err)
	}
	return raw, nil
}
