// Package dataset loads the two clinical tables every view reads: adlbc, one
// row per lab measurement, and adsl, one row per subject. A loaded Dataset is
// immutable and shared by all requests.
package dataset

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/KaramelBytes/labdash/internal/table"
)

// Sources names where the two tables come from.
type Sources struct {
	Labs     string
	Subjects string
	S3       S3Options
}

// Dataset is an immutable snapshot of both tables.
type Dataset struct {
	Labs     *table.Table
	Subjects *table.Table
	// Version changes on every load; caches key on it.
	Version  string
	LoadedAt time.Time
	Sources  Sources
}

// New wraps already-built tables, checking the columns the views rely on.
func New(labs, subjects *table.Table) (*Dataset, error) {
	if labs == nil || subjects == nil {
		return nil, fmt.Errorf("dataset: both tables are required")
	}
	for _, c := range LabOptions().Required {
		if labs.Require(c) != nil {
			return nil, fmt.Errorf("adlbc: %w: %s", ErrMissingColumn, c)
		}
	}
	for _, c := range SubjectOptions().Required {
		if subjects.Require(c) != nil {
			return nil, fmt.Errorf("adsl: %w: %s", ErrMissingColumn, c)
		}
	}
	return &Dataset{
		Labs:     labs,
		Subjects: subjects,
		Version:  uuid.NewString(),
		LoadedAt: time.Now(),
	}, nil
}

// LoadDataset reads both sources concurrently.
func LoadDataset(ctx context.Context, src Sources) (*Dataset, error) {
	var labs, subjects *table.Table
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		opt := LabOptions()
		opt.S3 = src.S3
		t, err := Load(gctx, src.Labs, opt)
		labs = t
		return err
	})
	g.Go(func() error {
		opt := SubjectOptions()
		opt.S3 = src.S3
		t, err := Load(gctx, src.Subjects, opt)
		subjects = t
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	ds, err := New(labs, subjects)
	if err != nil {
		return nil, err
	}
	ds.Sources = src
	return ds, nil
}

func visibleStrings(t *table.Table, col string) []string {
	vals, err := t.Distinct(col)
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		s := v.String()
		if s == "" || strings.HasPrefix(s, hiddenPrefix) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// ParamCodes returns the sorted lab parameter codes offered in dropdowns.
// Codes starting with "_" are internal and hidden.
func (d *Dataset) ParamCodes() []string { return visibleStrings(d.Labs, ColParam) }

// SubjectIDs returns the sorted subject identifiers present in adlbc.
func (d *Dataset) SubjectIDs() []string { return visibleStrings(d.Labs, ColSubject) }

// Arms returns the sorted treatment arms from adsl.
func (d *Dataset) Arms() []string { return visibleStrings(d.Subjects, ColArm) }

// HasParam reports whether code appears in adlbc.
func (d *Dataset) HasParam(code string) bool {
	for _, p := range d.ParamCodes() {
		if p == code {
			return true
		}
	}
	return false
}
