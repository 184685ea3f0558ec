package views

import (
	"fmt"

	"github.com/KaramelBytes/labdash/internal/dataset"
	"github.com/KaramelBytes/labdash/internal/figure"
	"github.com/KaramelBytes/labdash/internal/table"
)

// Box shows the distribution of one parameter per visit and arm.
type Box struct{}

func (Box) Spec() Spec {
	return Spec{
		ID:   "boxplot",
		Name: "Box Plot",
		Path: "/boxplot",
		Inputs: []Input{
			{ID: "param", Label: "Parameter Category:", Default: "SODIUM", Source: OptionParams},
		},
	}
}

func (Box) Guard(Selection) *figure.Figure { return nil }

// Shape keeps the selected parameter's rows that have a visit, as
// (avisitn, aval, trta) sorted by visit.
func (Box) Shape(ds *dataset.Dataset, sel Selection) (*Shaped, error) {
	rows, err := table.Filter(ds.Labs,
		table.Eq(dataset.ColParam, table.Str(sel["param"])),
		table.NotNull(dataset.ColVisit),
	)
	if err != nil {
		return nil, err
	}
	rows, err = rows.Select(dataset.ColVisit, dataset.ColValue, dataset.ColArm)
	if err != nil {
		return nil, err
	}
	rows, err = rows.SortBy(dataset.ColVisit)
	if err != nil {
		return nil, err
	}
	return &Shaped{Table: rows}, nil
}

func (Box) Build(s *Shaped, sel Selection) (*figure.Figure, error) {
	name := titleCase(sel["param"])
	fig := figure.New(fmt.Sprintf("Test Results for %s in Each Visit", name))
	fig.Layout.BoxMode = "group"
	fig.SetAxis("xaxis", figure.Axis{Title: "Visit", Type: "category"})
	fig.SetAxis("yaxis", figure.Axis{Title: "Analysis value: " + name})
	if s.Table.Len() == 0 {
		return fig, nil
	}

	arms, err := s.Table.Distinct(dataset.ColArm)
	if err != nil {
		return nil, err
	}
	for i, arm := range arms {
		rows, err := table.Filter(s.Table, table.Eq(dataset.ColArm, arm))
		if err != nil {
			return nil, err
		}
		tr := figure.Trace{
			Type:   figure.TypeBox,
			Name:   arm.String(),
			X:      make([]any, rows.Len()),
			Y:      make([]any, rows.Len()),
			Marker: &figure.Marker{Color: color(i)},
		}
		for r := 0; r < rows.Len(); r++ {
			tr.X[r] = rows.Value(r, dataset.ColVisit).String()
			tr.Y[r] = cell(rows.Value(r, dataset.ColValue))
		}
		fig.AddTrace(tr)
	}
	return fig, nil
}
