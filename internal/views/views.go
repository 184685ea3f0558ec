// Package views holds the four dashboard pipelines. Each view is a pure
// function of its dropdown selections and the loaded dataset: Guard may stop
// a selection at the boundary, Shape filters, aggregates and reshapes, and
// Build turns the shaped table into a figure.
package views

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/KaramelBytes/labdash/internal/dataset"
	"github.com/KaramelBytes/labdash/internal/derive"
	"github.com/KaramelBytes/labdash/internal/figure"
	"github.com/KaramelBytes/labdash/internal/table"
)

// SameSelectionMessage is shown when both parameter dropdowns hold one value.
const SameSelectionMessage = "Please choose different values for the two dropdowns."

var (
	// ErrUnknownView is returned for a view id that is not registered.
	ErrUnknownView = errors.New("unknown view")
	// ErrUnknownInput is returned when a selection names an input the view
	// does not declare.
	ErrUnknownInput = errors.New("unknown input")
)

// OptionSource tells where an input's dropdown options come from.
type OptionSource int

const (
	OptionParams OptionSource = iota
	OptionSubjects
)

// Input is one dropdown of a view.
type Input struct {
	ID      string       `json:"id"`
	Label   string       `json:"label"`
	Default string       `json:"default"`
	Source  OptionSource `json:"-"`
}

// Spec describes a view to the page and API layers.
type Spec struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Path   string  `json:"path"`
	Inputs []Input `json:"inputs"`
}

// Selection maps input ids to the chosen values.
type Selection map[string]string

// Shaped is the output of a view's data pipeline. Table is the view's main
// shaped table and is what gets exported.
type Shaped struct {
	Table  *table.Table
	Bounds []derive.Bounds
	// Extra holds a secondary table, such as the series change-from-baseline grid.
	Extra *table.Table
	// Counts is the number of subjects per arm.
	Counts map[string]int
	// Arm is the treatment arm of a single-subject view.
	Arm string
}

// Result is what one invocation returns.
type Result struct {
	Figure *figure.Figure
	// Shaped is nil when the guard produced a placeholder.
	Shaped *Shaped
}

// View is one dashboard page.
type View interface {
	Spec() Spec
	// Guard returns a placeholder figure when the selection must not reach
	// the pipeline, or nil to proceed. It never reads the dataset.
	Guard(sel Selection) *figure.Figure
	Shape(ds *dataset.Dataset, sel Selection) (*Shaped, error)
	Build(shaped *Shaped, sel Selection) (*figure.Figure, error)
}

// Options lists the dropdown values for in.
func Options(ds *dataset.Dataset, in Input) []string {
	switch in.Source {
	case OptionSubjects:
		return ds.SubjectIDs()
	default:
		return ds.ParamCodes()
	}
}

// Resolve fills unset inputs with their defaults and rejects inputs the view
// does not declare.
func Resolve(spec Spec, sel Selection) (Selection, error) {
	known := make(map[string]bool, len(spec.Inputs))
	out := make(Selection, len(spec.Inputs))
	for _, in := range spec.Inputs {
		known[in.ID] = true
		out[in.ID] = in.Default
		if v, ok := sel[in.ID]; ok && v != "" {
			out[in.ID] = v
		}
	}
	for id := range sel {
		if !known[id] {
			return nil, fmt.Errorf("%w %q for view %s", ErrUnknownInput, id, spec.ID)
		}
	}
	return out, nil
}

// sameSelectionGuard stops views whose two parameter inputs are equal.
func sameSelectionGuard(sel Selection, a, b string) *figure.Figure {
	if sel[a] == sel[b] {
		return figure.Placeholder(SameSelectionMessage)
	}
	return nil
}

var titler = cases.Title(language.Und)

// titleCase renders a parameter code the way the page titles show it:
// "SODIUM" becomes "Sodium".
func titleCase(s string) string { return titler.String(s) }

var safety = table.Eq(dataset.ColSafety, table.Flag(dataset.SafetyYes))

// palette is used for facets and arms in order.
var palette = []string{"#636efa", "#ef553b", "#00cc96", "#ab63fa", "#ffa15a", "#19d3f3", "#ff6692"}

func color(i int) string { return palette[i%len(palette)] }

func cell(v table.Value) any {
	if v.Null {
		return nil
	}
	if n, ok := v.Number(); ok {
		return figure.Num(n)
	}
	return v.String()
}

func round3(f float64) string {
	if math.IsNaN(f) {
		return ""
	}
	return strconv.FormatFloat(math.Round(f*1000)/1000, 'f', -1, 64)
}

func boolPtr(b bool) *bool { return &b }
