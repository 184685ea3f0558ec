package dataset

import (
	"fmt"
	"sort"

	"github.com/KaramelBytes/labdash/internal/table"
)

// Column names of the lab-results (adlbc) and subject-level (adsl) tables.
const (
	ColSubject   = "usubjid"
	ColParam     = "paramcd"
	ColValue     = "aval"
	ColVisit     = "avisitn"
	ColStudyDay  = "ady"
	ColChange    = "chg"
	ColBaseline  = "base"
	ColUpper     = "a1hi"
	ColLower     = "a1lo"
	ColArm       = "trta"
	ColSafety    = "saffl"
	ColPlanArm   = "trt01a"
	SafetyYes    = "Y"
	hiddenPrefix = "_"
)

// LabOptions describes how adlbc is parsed.
func LabOptions() Options {
	return Options{
		Required: []string{ColSubject, ColParam, ColVisit},
		Hints: map[string]table.Kind{
			ColSubject:  table.KindString,
			ColParam:    table.KindString,
			ColArm:      table.KindString,
			ColValue:    table.KindFloat,
			ColBaseline: table.KindFloat,
			ColChange:   table.KindFloat,
			ColUpper:    table.KindFloat,
			ColLower:    table.KindFloat,
			ColVisit:    table.KindInt,
			ColStudyDay: table.KindInt,
			ColSafety:   table.KindFlag,
		},
	}
}

// SubjectOptions describes how adsl is parsed. The actual-treatment column
// trt01a is exposed as trta so both tables share one arm column name.
func SubjectOptions() Options {
	return Options{
		Required: []string{ColSubject, ColArm},
		Rename:   map[string]string{ColPlanArm: ColArm},
		Hints: map[string]table.Kind{
			ColSubject: table.KindString,
			ColArm:     table.KindString,
		},
	}
}

// LabRecord is one row of adlbc.
type LabRecord struct {
	Subject   string
	Param     string
	Value     float64 // NaN when missing
	Visit     int64
	HasVisit  bool
	StudyDay  int64
	Change    float64
	Baseline  float64
	Upper     float64
	Lower     float64
	Arm       string
	SafetyPop bool
}

// SubjectRecord is one row of adsl.
type SubjectRecord struct {
	Subject string
	Arm     string
}

func num(t *table.Table, r int, col string) float64 {
	n, _ := t.Value(r, col).Number()
	return n
}

// LabRecords decodes every row of a lab table.
func LabRecords(t *table.Table) []LabRecord {
	out := make([]LabRecord, t.Len())
	for r := range out {
		visit, hasVisit := t.Value(r, ColVisit).Number()
		if !hasVisit {
			visit = 0
		}
		day, ok := t.Value(r, ColStudyDay).Number()
		if !ok {
			day = 0
		}
		out[r] = LabRecord{
			Subject:   t.Value(r, ColSubject).String(),
			Param:     t.Value(r, ColParam).String(),
			Value:     num(t, r, ColValue),
			Visit:     int64(visit),
			HasVisit:  hasVisit,
			StudyDay:  int64(day),
			Change:    num(t, r, ColChange),
			Baseline:  num(t, r, ColBaseline),
			Upper:     num(t, r, ColUpper),
			Lower:     num(t, r, ColLower),
			Arm:       t.Value(r, ColArm).String(),
			SafetyPop: t.Value(r, ColSafety).String() == SafetyYes,
		}
	}
	return out
}

// SubjectRecords decodes every row of a subject table.
func SubjectRecords(t *table.Table) []SubjectRecord {
	out := make([]SubjectRecord, t.Len())
	for r := range out {
		out[r] = SubjectRecord{Subject: t.Value(r, ColSubject).String(), Arm: t.Value(r, ColArm).String()}
	}
	return out
}

// CheckInvariants reports data-model violations that do not stop loading:
// duplicate subject/parameter/visit triples inside an arm's safety slice and
// repeated subjects in adsl.
func CheckInvariants(ds *Dataset) []string {
	var warnings []string
	type triple struct {
		arm, subj, param string
		visit            int64
	}
	seen := map[triple]int{}
	for _, rec := range LabRecords(ds.Labs) {
		if !rec.SafetyPop || !rec.HasVisit {
			continue
		}
		seen[triple{rec.Arm, rec.Subject, rec.Param, rec.Visit}]++
	}
	var dups []string
	for k, n := range seen {
		if n > 1 {
			dups = append(dups, fmt.Sprintf("%s/%s/visit %d (%d rows)", k.subj, k.param, k.visit, n))
		}
	}
	sort.Strings(dups)
	if len(dups) > 0 {
		warnings = append(warnings, fmt.Sprintf("%d duplicate subject/parameter/visit triples in safety population, e.g. %s", len(dups), dups[0]))
	}

	subjects := map[string]int{}
	for _, s := range SubjectRecords(ds.Subjects) {
		subjects[s.Subject]++
	}
	var repeated []string
	for id, n := range subjects {
		if n > 1 {
			repeated = append(repeated, id)
		}
	}
	sort.Strings(repeated)
	if len(repeated) > 0 {
		warnings = append(warnings, fmt.Sprintf("%d subjects appear more than once in adsl, e.g. %s", len(repeated), repeated[0]))
	}
	return warnings
}
