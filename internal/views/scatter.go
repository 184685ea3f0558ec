package views

import (
	"fmt"
	"math"

	"github.com/KaramelBytes/labdash/internal/dataset"
	"github.com/KaramelBytes/labdash/internal/derive"
	"github.com/KaramelBytes/labdash/internal/figure"
	"github.com/KaramelBytes/labdash/internal/table"
)

// ColArmLabel is the facet label column, "arm(N=count)".
const ColArmLabel = "n_trt"

// Scatter plots each subject's maximum post-baseline value of one parameter
// against another, one facet per arm.
type Scatter struct{}

func (Scatter) Spec() Spec {
	return Spec{
		ID:   "scatterplot",
		Name: "Scatter Plot",
		Path: "/scatterplot",
		Inputs: []Input{
			{ID: "first", Label: "Parameter Category 1:", Default: "BILI", Source: OptionParams},
			{ID: "second", Label: "Parameter Category 2:", Default: "ALT", Source: OptionParams},
		},
	}
}

func (Scatter) Guard(sel Selection) *figure.Figure { return sameSelectionGuard(sel, "first", "second") }

// Shape produces one row per (subject, arm) with the maximum post-baseline
// value of each selected parameter as a column. The aggregation leaves one
// value per (parameter, arm, subject), which is what makes the pivot safe.
func (Scatter) Shape(ds *dataset.Dataset, sel Selection) (*Shaped, error) {
	first, second := sel["first"], sel["second"]
	post, err := table.Filter(ds.Labs,
		table.GT(dataset.ColVisit, 0),
		safety,
		table.In(dataset.ColParam, table.Str(first), table.Str(second)),
	)
	if err != nil {
		return nil, err
	}
	counts, err := armCounts(ds.Subjects)
	if err != nil {
		return nil, err
	}
	bounds, err := derive.ReferenceBounds(post)
	if err != nil {
		return nil, err
	}

	measured, err := table.Filter(post, table.NotNull(dataset.ColValue))
	if err != nil {
		return nil, err
	}
	maxima, err := table.Aggregate(measured,
		[]string{dataset.ColParam, dataset.ColArm, dataset.ColSubject},
		table.Max(dataset.ColValue))
	if err != nil {
		return nil, err
	}
	labels := table.NewColumn(ColArmLabel, table.KindString)
	for r := 0; r < maxima.Len(); r++ {
		arm := maxima.Value(r, dataset.ColArm).String()
		labels.Append(table.Str(fmt.Sprintf("%s(N=%d)", arm, counts[arm])))
	}
	maxima, err = maxima.WithColumn(labels)
	if err != nil {
		return nil, err
	}
	wide, err := table.Pivot(maxima,
		[]string{dataset.ColSubject, dataset.ColArm, ColArmLabel},
		dataset.ColParam, dataset.ColValue)
	if err != nil {
		return nil, err
	}
	return &Shaped{Table: wide, Bounds: bounds, Counts: counts}, nil
}

func armCounts(subjects *table.Table) (map[string]int, error) {
	byArm, err := table.CountBy(subjects, dataset.ColArm, "n")
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, byArm.Len())
	for r := 0; r < byArm.Len(); r++ {
		n, _ := byArm.Value(r, "n").Number()
		out[byArm.Value(r, dataset.ColArm).String()] = int(n)
	}
	return out, nil
}

func (Scatter) Build(s *Shaped, sel Selection) (*figure.Figure, error) {
	first, second := sel["first"], sel["second"]
	fig := figure.New(fmt.Sprintf("Scatter Plot of %s vs %s (Safety Analysis Set)", first, second))
	fig.Layout.ShowLegend = boolPtr(false)
	fig.Note("Each data point represents a unique subject.", 0, -0.07)
	fig.Note("Logarithmic scaling was used on both X and Y axis.", 0, -0.09)
	fig.AddAnnotation(figure.Annotation{
		Text: "Maximum post baseline " + second, X: 0.5, Y: -0.06, XRef: "paper", YRef: "paper",
		Font: &figure.Font{Size: 14},
	})
	fig.AddAnnotation(figure.Annotation{
		Text: "Maximum post baseline " + first, X: -0.06, Y: 0.5, XRef: "paper", YRef: "paper",
		TextAngle: -90, Font: &figure.Font{Size: 14},
	})

	wide := s.Table
	_, hasFirst := wide.Col(first)
	_, hasSecond := wide.Col(second)
	if wide.Len() == 0 || !hasFirst || !hasSecond {
		fig.SetAxis("xaxis", figure.Axis{Type: "log"})
		fig.SetAxis("yaxis", figure.Axis{Type: "log"})
		return fig, nil
	}

	facets, err := wide.Distinct(ColArmLabel)
	if err != nil {
		return nil, err
	}
	domains := figure.Columns(len(facets), 0.01)
	yb, _ := derive.BoundsFor(s.Bounds, first)
	xb, _ := derive.BoundsFor(s.Bounds, second)
	refLine := &figure.Line{Width: 2, Dash: "dash", Color: "gray"}

	for i, facet := range facets {
		xref, yref := figure.AxisRef("x", i), figure.AxisRef("y", i)
		fig.SetAxis(figure.AxisName("x", i), figure.Axis{Type: "log", Domain: domains[i], Anchor: yref})
		fig.SetAxis(figure.AxisName("y", i), figure.Axis{Type: "log", Anchor: xref})

		rows, err := table.Filter(wide, table.Eq(ColArmLabel, facet),
			table.NotNull(first), table.NotNull(second))
		if err != nil {
			return nil, err
		}
		tr := figure.Trace{
			Type:   figure.TypeScatter,
			Mode:   "markers",
			Name:   facet.String(),
			X:      make([]any, rows.Len()),
			Y:      make([]any, rows.Len()),
			Text:   make([]string, rows.Len()),
			XAxis:  xref,
			YAxis:  yref,
			Marker: &figure.Marker{Color: color(i)},
		}
		for r := 0; r < rows.Len(); r++ {
			tr.X[r] = cell(rows.Value(r, second))
			tr.Y[r] = cell(rows.Value(r, first))
			tr.Text[r] = rows.Value(r, dataset.ColSubject).String()
		}
		fig.AddTrace(tr)

		// facet title
		fig.AddAnnotation(figure.Annotation{
			Text: facet.String(), X: (domains[i][0] + domains[i][1]) / 2, Y: 1.02,
			XRef: "paper", YRef: "paper", XAnchor: "center", YAnchor: "bottom",
		})
		for _, y := range []float64{yb.MinUpper, yb.MaxLower} {
			if !math.IsNaN(y) {
				fig.AddShape(figure.Shape{Type: "line", XRef: xref + " domain", YRef: yref,
					X0: 0, X1: 1, Y0: y, Y1: y, Line: refLine})
			}
		}
		for _, x := range []float64{xb.MinUpper, xb.MaxLower} {
			if !math.IsNaN(x) {
				fig.AddShape(figure.Shape{Type: "line", XRef: xref, YRef: yref + " domain",
					X0: x, X1: x, Y0: 0, Y1: 1, Line: refLine})
			}
		}
	}
	return fig, nil
}
