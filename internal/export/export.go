// Package export writes tables to delimited text, spreadsheets, parquet or a
// SQLite database. Text and columnar outputs may be compressed by suffix.
package export

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/apache/arrow/go/v18/arrow"
	"github.com/apache/arrow/go/v18/arrow/array"
	"github.com/apache/arrow/go/v18/arrow/memory"
	"github.com/apache/arrow/go/v18/parquet"
	"github.com/apache/arrow/go/v18/parquet/pqarrow"
	"github.com/xuri/excelize/v2"
	_ "modernc.org/sqlite"

	"github.com/KaramelBytes/labdash/internal/dataset"
	"github.com/KaramelBytes/labdash/internal/table"
	"github.com/KaramelBytes/labdash/internal/utils"
)

// Format is an output format.
type Format string

const (
	CSV     Format = "csv"
	TSV     Format = "tsv"
	XLSX    Format = "xlsx"
	Parquet Format = "parquet"
	SQLite  Format = "sqlite"
)

// ErrSingleTable is returned when a format that holds one table is given several.
var ErrSingleTable = errors.New("format holds a single table")

// Sheet is a named table. The name becomes the sheet or SQL table name.
type Sheet struct {
	Name  string
	Table *table.Table
}

// Multi reports whether f can hold more than one table.
func (f Format) Multi() bool { return f == XLSX || f == SQLite }

// DetectFormat infers the output format and compression from the path.
// SQLite databases cannot be compressed.
func DetectFormat(path string) (Format, dataset.Compression, error) {
	comp := dataset.DetectCompression(path)
	switch strings.ToLower(filepath.Ext(dataset.TrimCompression(path))) {
	case ".db", ".sqlite", ".sqlite3":
		if comp != dataset.CompressionNone {
			return "", comp, fmt.Errorf("sqlite output cannot be compressed: %s", filepath.Base(path))
		}
		return SQLite, comp, nil
	}
	in, err := dataset.DetectFormat(path)
	if err != nil {
		return "", comp, err
	}
	switch in {
	case dataset.FormatTSV:
		return TSV, comp, nil
	case dataset.FormatXLSX:
		return XLSX, comp, nil
	case dataset.FormatParquet:
		return Parquet, comp, nil
	default:
		return CSV, comp, nil
	}
}

// WriteFile writes the sheets to path in the format its suffix names.
func WriteFile(ctx context.Context, path string, sheets ...Sheet) error {
	if len(sheets) == 0 {
		return errors.New("nothing to export")
	}
	format, comp, err := DetectFormat(path)
	if err != nil {
		return err
	}
	if len(sheets) > 1 && !format.Multi() {
		return fmt.Errorf("%s: %w", format, ErrSingleTable)
	}
	if format == SQLite {
		return writeSQLiteFile(ctx, path, sheets)
	}

	var buf bytes.Buffer
	w, closeFn, err := comp.NewWriter(&buf)
	if err != nil {
		return err
	}
	switch format {
	case CSV:
		err = WriteDelimited(w, sheets[0].Table, ',')
	case TSV:
		err = WriteDelimited(w, sheets[0].Table, '\t')
	case XLSX:
		err = WriteXLSX(w, sheets...)
	case Parquet:
		err = WriteParquet(w, sheets[0].Table)
	}
	if err != nil {
		return fmt.Errorf("write %s: %w", format, err)
	}
	if err := closeFn(); err != nil {
		return fmt.Errorf("close compressor: %w", err)
	}
	return utils.SafeWriteFile(path, buf.Bytes())
}

// WriteDelimited writes a header row and one record per row. Nulls are empty.
func WriteDelimited(w io.Writer, t *table.Table, delim rune) error {
	cw := csv.NewWriter(w)
	cw.Comma = delim
	if err := cw.Write(t.Names()); err != nil {
		return err
	}
	rec := make([]string, len(t.Names()))
	for i := 0; i < t.Len(); i++ {
		for j, v := range t.Row(i) {
			rec[j] = v.String()
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSX writes one worksheet per sheet.
func WriteXLSX(w io.Writer, sheets ...Sheet) error {
	f := excelize.NewFile()
	defer f.Close()
	used := map[string]bool{}
	for i, s := range sheets {
		name := sheetName(s.Name, i, used)
		if i == 0 {
			if err := f.SetSheetName("Sheet1", name); err != nil {
				return err
			}
		} else if _, err := f.NewSheet(name); err != nil {
			return err
		}
		header := make([]any, 0, len(s.Table.Names()))
		for _, n := range s.Table.Names() {
			header = append(header, n)
		}
		if err := f.SetSheetRow(name, "A1", &header); err != nil {
			return err
		}
		for r := 0; r < s.Table.Len(); r++ {
			row := make([]any, 0, len(header))
			for _, v := range s.Table.Row(r) {
				row = append(row, cellValue(v))
			}
			cell, err := excelize.CoordinatesToCellName(1, r+2)
			if err != nil {
				return err
			}
			if err := f.SetSheetRow(name, cell, &row); err != nil {
				return err
			}
		}
	}
	_, err := f.WriteTo(w)
	return err
}

// sheetName trims to the 31 characters Excel allows and keeps names unique.
func sheetName(name string, i int, used map[string]bool) string {
	name = strings.Map(func(r rune) rune {
		if strings.ContainsRune(`[]:*?/\`, r) {
			return '_'
		}
		return r
	}, name)
	if name == "" {
		name = fmt.Sprintf("Sheet%d", i+1)
	}
	if len(name) > 31 {
		name = name[:31]
	}
	for used[name] {
		suffix := fmt.Sprintf("_%d", i+1)
		if len(name)+len(suffix) > 31 {
			name = name[:31-len(suffix)]
		}
		name += suffix
	}
	used[name] = true
	return name
}

func cellValue(v table.Value) any {
	if v.Null {
		return nil
	}
	switch v.Kind {
	case table.KindInt:
		return int64(v.Num)
	case table.KindFloat:
		return v.Num
	default:
		return v.Str
	}
}

// WriteParquet writes t as a single row group. Flag columns become strings.
func WriteParquet(w io.Writer, t *table.Table) error {
	fields := make([]arrow.Field, 0, len(t.Names()))
	for _, f := range t.Schema() {
		var dt arrow.DataType
		switch f.Kind {
		case table.KindInt:
			dt = arrow.PrimitiveTypes.Int64
		case table.KindFloat:
			dt = arrow.PrimitiveTypes.Float64
		default:
			dt = arrow.BinaryTypes.String
		}
		fields = append(fields, arrow.Field{Name: f.Name, Type: dt, Nullable: true})
	}
	schema := arrow.NewSchema(fields, nil)
	b := array.NewRecordBuilder(memory.NewGoAllocator(), schema)
	defer b.Release()
	for j, name := range t.Names() {
		col, _ := t.Col(name)
		for i := 0; i < col.Len(); i++ {
			v := col.At(i)
			switch fb := b.Field(j).(type) {
			case *array.Int64Builder:
				if v.Null {
					fb.AppendNull()
				} else {
					fb.Append(int64(v.Num))
				}
			case *array.Float64Builder:
				if v.Null {
					fb.AppendNull()
				} else {
					fb.Append(v.Num)
				}
			case *array.StringBuilder:
				if v.Null {
					fb.AppendNull()
				} else {
					fb.Append(v.String())
				}
			}
		}
	}
	rec := b.NewRecord()
	defer rec.Release()
	tbl := array.NewTableFromRecords(schema, []arrow.Record{rec})
	defer tbl.Release()
	// the parquet writer closes its sink when it is a Closer
	sink := struct{ io.Writer }{w}
	return pqarrow.WriteTable(tbl, sink, 64*1024, parquet.NewWriterProperties(), pqarrow.DefaultWriterProps())
}

// writeSQLiteFile builds the database next to path and renames it into place.
func writeSQLiteFile(ctx context.Context, path string, sheets []Sheet) error {
	if err := utils.EnsureDir(path); err != nil {
		return err
	}
	tmp := path + ".tmp"
	_ = os.Remove(tmp)
	if err := WriteSQLite(ctx, tmp, sheets...); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("atomic rename: %w", err)
	}
	return nil
}

// WriteSQLite creates one table per sheet in the database at dsn, replacing
// tables of the same name.
func WriteSQLite(ctx context.Context, dsn string, sheets ...Sheet) error {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	defer db.Close()
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i, s := range sheets {
		name := s.Name
		if name == "" {
			name = fmt.Sprintf("table%d", i+1)
		}
		if err := insertTable(ctx, tx, name, s.Table); err != nil {
			return fmt.Errorf("table %s: %w", name, err)
		}
	}
	return tx.Commit()
}

func insertTable(ctx context.Context, tx *sql.Tx, name string, t *table.Table) error {
	cols := make([]string, 0, len(t.Names()))
	marks := make([]string, 0, len(t.Names()))
	for _, f := range t.Schema() {
		typ := "TEXT"
		switch f.Kind {
		case table.KindInt:
			typ = "INTEGER"
		case table.KindFloat:
			typ = "REAL"
		}
		cols = append(cols, fmt.Sprintf("%s %s", quoteIdent(f.Name), typ))
		marks = append(marks, "?")
	}
	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoteIdent(name)); err != nil {
		return err
	}
	create := fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(name), strings.Join(cols, ", "))
	if _, err := tx.ExecContext(ctx, create); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx,
		fmt.Sprintf("INSERT INTO %s VALUES (%s)", quoteIdent(name), strings.Join(marks, ", ")))
	if err != nil {
		return err
	}
	defer stmt.Close()
	args := make([]any, len(marks))
	for i := 0; i < t.Len(); i++ {
		for j, v := range t.Row(i) {
			args[j] = cellValue(v)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert row %d: %w", i+1, err)
		}
	}
	return nil
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
