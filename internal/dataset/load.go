package dataset

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/KaramelBytes/labdash/internal/table"
)

// Options controls how a single source is parsed.
type Options struct {
	// Delimiter for delimited text. If 0, ',' or '\t' is chosen by extension.
	Delimiter rune
	// Sheet selects an xlsx worksheet; empty means the first one.
	Sheet string
	// Required columns; a source missing any of them fails with ErrMissingColumn.
	Required []string
	// Hints force a column kind instead of inferring it.
	Hints map[string]table.Kind
	// Rename maps source column names to the names the views use. A rename is
	// skipped when the target name already exists.
	Rename map[string]string
	S3     S3Options
}

// Load reads one tabular source into a typed table. path may be local or an
// s3://bucket/key URI, optionally compressed (.gz, .bz2, .xz, .zst). Every
// failure is returned as *LoadError.
func Load(ctx context.Context, path string, opt Options) (*table.Table, error) {
	t, err := load(ctx, path, opt)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	return t, nil
}

func load(ctx context.Context, path string, opt Options) (*table.Table, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}
	src, err := openSource(ctx, path, opt.S3)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	r, release, err := DetectCompression(path).NewReader(src)
	if err != nil {
		return nil, err
	}
	defer func() { _ = release() }()

	var raw *rawTable
	switch format {
	case FormatCSV, FormatTSV:
		delim := opt.Delimiter
		if delim == 0 {
			delim = ','
			if format == FormatTSV {
				delim = '\t'
			}
		}
		raw, err = readDelimited(r, delim)
	case FormatXLSX:
		raw, err = readXLSX(r, opt.Sheet)
	case FormatParquet:
		raw, err = readParquet(ctx, r)
	}
	if err != nil {
		return nil, err
	}
	return buildTable(raw, opt)
}

func openSource(ctx context.Context, path string, opt S3Options) (io.ReadCloser, error) {
	if IsS3(path) {
		return openS3(ctx, path, opt)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	return f, nil
}

// normalizeHeader lowercases and trims column names. SAS exports of ADaM
// datasets use upper-case variable names.
func normalizeHeader(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		out[i] = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	}
	return out
}

func buildTable(raw *rawTable, opt Options) (*table.Table, error) {
	header := normalizeHeader(raw.header)
	present := make(map[string]bool, len(header))
	for _, h := range header {
		present[h] = true
	}
	for from, to := range opt.Rename {
		if !present[from] || present[to] {
			continue
		}
		for i, h := range header {
			if h == from {
				header[i] = to
			}
		}
		delete(present, from)
		present[to] = true
	}
	for _, name := range opt.Required {
		if !present[name] {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, name)
		}
	}

	cells := func(j int) []string {
		out := make([]string, len(raw.rows))
		for i, row := range raw.rows {
			if j < len(row) {
				out[i] = row[j]
			}
		}
		return out
	}

	var cols []*table.Column
	seen := map[string]bool{}
	for j, name := range header {
		if name == "" || seen[name] {
			// unnamed index columns and duplicate headers are dropped
			continue
		}
		seen[name] = true
		values := cells(j)
		kind, ok := opt.Hints[name]
		if !ok {
			kind = inferKind(values)
		}
		col := table.NewColumn(name, kind)
		for i, s := range values {
			v, ok := parseCell(s, kind)
			if !ok {
				return nil, fmt.Errorf("row %d column %q: cannot parse %q as %s", i+2, name, s, kind)
			}
			col.Append(v)
		}
		cols = append(cols, col)
	}
	return table.New(cols...)
}
