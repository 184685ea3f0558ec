package views

import (
	"fmt"
	"math"

	"github.com/KaramelBytes/labdash/internal/dataset"
	"github.com/KaramelBytes/labdash/internal/derive"
	"github.com/KaramelBytes/labdash/internal/figure"
	"github.com/KaramelBytes/labdash/internal/table"
)

// Series follows one subject's values of two parameters over study days,
// with the change from baseline tabulated underneath.
type Series struct{}

var seriesStyle = []struct{ color, dash string }{
	{"purple", "dash"},
	{"darkgreen", "longdash"},
}

func (Series) Spec() Spec {
	return Spec{
		ID:   "series",
		Name: "Series Plot",
		Path: "/",
		Inputs: []Input{
			{ID: "subject", Label: "Subject ID:", Default: "01-701-1015", Source: OptionSubjects},
			{ID: "first", Label: "Parameter Category 1:", Default: "ALT", Source: OptionParams},
			{ID: "second", Label: "Parameter Category 2:", Default: "AST", Source: OptionParams},
		},
	}
}

func (Series) Guard(sel Selection) *figure.Figure { return sameSelectionGuard(sel, "first", "second") }

// Shape keeps the subject's safety-population rows for both parameters.
// ULN bounds are taken over every subject, and Extra holds the summed change
// from baseline per parameter and study day, pivoted wide on study day.
func (Series) Shape(ds *dataset.Dataset, sel Selection) (*Shaped, error) {
	pop, err := table.Filter(ds.Labs,
		table.In(dataset.ColParam, table.Str(sel["first"]), table.Str(sel["second"])),
		table.GE(dataset.ColVisit, 0),
		safety,
	)
	if err != nil {
		return nil, err
	}
	bounds, err := derive.ReferenceBounds(pop)
	if err != nil {
		return nil, err
	}
	subj, err := table.Filter(pop, table.Eq(dataset.ColSubject, table.Str(sel["subject"])))
	if err != nil {
		return nil, err
	}
	subj, err = subj.SortBy(dataset.ColParam, dataset.ColStudyDay)
	if err != nil {
		return nil, err
	}
	changes, err := table.Aggregate(subj, []string{dataset.ColParam, dataset.ColStudyDay}, table.Sum(dataset.ColChange))
	if err != nil {
		return nil, err
	}
	grid, err := table.Pivot(changes, []string{dataset.ColParam}, dataset.ColStudyDay, dataset.ColChange)
	if err != nil {
		return nil, err
	}
	var arm string
	if subj.Len() > 0 {
		arm = subj.Value(0, dataset.ColArm).String()
	}
	return &Shaped{Table: subj, Extra: grid, Bounds: bounds, Arm: arm}, nil
}

func (Series) Build(s *Shaped, sel Selection) (*figure.Figure, error) {
	first, second := sel["first"], sel["second"]
	fig := figure.New(fmt.Sprintf("%s and %s Results Over Time. (Safety Analysis Set)", first, second))
	fig.Layout.Height = 800
	fig.SetAxis("xaxis", figure.Axis{Type: "category"})
	fig.SetAxis("yaxis", figure.Axis{Domain: []float64{0.25, 1}})
	if s.Table.Len() == 0 {
		return fig, nil
	}

	for i, param := range []string{first, second} {
		rows, err := table.Filter(s.Table, table.Eq(dataset.ColParam, table.Str(param)))
		if err != nil {
			return nil, err
		}
		if rows.Len() > 0 {
			tr := figure.Trace{
				Type:   figure.TypeScatter,
				Mode:   "lines+markers",
				Name:   param,
				X:      make([]any, rows.Len()),
				Y:      make([]any, rows.Len()),
				Marker: &figure.Marker{Color: seriesStyle[i].color},
				Line:   &figure.Line{Color: seriesStyle[i].color, Dash: seriesStyle[i].dash},
			}
			for r := 0; r < rows.Len(); r++ {
				tr.X[r] = rows.Value(r, dataset.ColStudyDay).String()
				tr.Y[r] = cell(rows.Value(r, dataset.ColValue))
			}
			fig.AddTrace(tr)
		}

		b, ok := derive.BoundsFor(s.Bounds, param)
		if !ok || math.IsNaN(b.MinUpper) {
			continue
		}
		fig.AddShape(figure.Shape{Type: "line", XRef: "paper", YRef: "y",
			X0: 0, X1: 1, Y0: b.MinUpper, Y1: b.MinUpper,
			Line: &figure.Line{Width: 1, Color: "gray"}})
		fig.AddAnnotation(figure.Annotation{Text: param + " ULN", X: 1, Y: b.MinUpper + 0.21,
			XRef: "paper", YRef: "y", Font: &figure.Font{Size: 8}})
	}

	if s.Extra != nil && s.Extra.Len() > 0 {
		fig.AddTrace(changeTable(s.Extra))
		// row labels, top to bottom
		ys := []float64{0.05, 0.012}
		for r := 0; r < s.Extra.Len() && r < len(ys); r++ {
			fig.AddAnnotation(figure.Annotation{Text: s.Extra.Value(r, dataset.ColParam).String(),
				X: 0, Y: ys[r], XRef: "paper", YRef: "paper", Font: &figure.Font{Size: 12}})
		}
	}
	fig.AddAnnotation(figure.Annotation{Text: "Change from Baseline", X: 0.03, Y: 0.1,
		XRef: "paper", YRef: "paper", Font: &figure.Font{Size: 14}})
	fig.AddAnnotation(figure.Annotation{Text: "Analysis value", X: -0.06, Y: 0.65,
		XRef: "paper", YRef: "paper", TextAngle: -90, Font: &figure.Font{Size: 18}})
	fig.AddAnnotation(figure.Annotation{Text: "Study day relative to treatment start day", X: 0.535, Y: 0.17,
		XRef: "paper", YRef: "paper", Font: &figure.Font{Size: 18}})
	fig.AddAnnotation(figure.Annotation{Text: fmt.Sprintf("Usubjid: %s, Treatment: %s", sel["subject"], s.Arm),
		X: 0.535, Y: 1.05, XRef: "paper", YRef: "paper", Font: &figure.Font{Size: 18}})
	return fig, nil
}

// changeTable lays the change grid out as a headerless table trace, one
// column per study day.
func changeTable(grid *table.Table) figure.Trace {
	var cols [][]string
	for _, name := range grid.Names() {
		if name == dataset.ColParam {
			continue
		}
		col := make([]string, grid.Len())
		for r := range col {
			n, _ := grid.Value(r, name).Number()
			col[r] = round3(n)
		}
		cols = append(cols, col)
	}
	return figure.Trace{
		Type:   figure.TypeTable,
		Header: &figure.TableCells{Values: [][]string{}},
		Cells:  &figure.TableCells{Values: cols},
		Domain: &figure.Domain{Y: []float64{0, 0.1}},
	}
}
