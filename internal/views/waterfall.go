package views

import (
	"fmt"
	"math"
	"sort"

	"github.com/KaramelBytes/labdash/internal/dataset"
	"github.com/KaramelBytes/labdash/internal/derive"
	"github.com/KaramelBytes/labdash/internal/figure"
	"github.com/KaramelBytes/labdash/internal/table"
)

// Columns of the shaped waterfall table.
const (
	ColMaxPercentChange = "max_pchg"
	ColMarker           = "marker"
	ColRank             = "rank"
)

// Waterfall ranks each subject's maximum post-baseline percent change per arm.
type Waterfall struct{}

func (Waterfall) Spec() Spec {
	return Spec{
		ID:   "waterfall",
		Name: "Waterfall Plot",
		Path: "/waterfall",
		Inputs: []Input{
			{ID: "param", Label: "Parameter Category:", Default: "GGT", Source: OptionParams},
		},
	}
}

func (Waterfall) Guard(Selection) *figure.Figure { return nil }

// Shape yields (trta, usubjid, max_pchg, marker, rank): one row per subject,
// clipped at the display bound, ranked 1..n per arm by descending change.
// A subject is dropped when the percent change of its first post-baseline
// row is undefined, even if later rows have one.
func (Waterfall) Shape(ds *dataset.Dataset, sel Selection) (*Shaped, error) {
	post, err := table.Filter(ds.Labs,
		table.Eq(dataset.ColParam, table.Str(sel["param"])),
		safety,
		table.GT(dataset.ColVisit, 0),
	)
	if err != nil {
		return nil, err
	}
	undefined, err := undefinedAtFirstVisit(post)
	if err != nil {
		return nil, err
	}
	metrics, err := derive.SubjectMetrics(post)
	if err != nil {
		return nil, err
	}
	kept := metrics[:0:0]
	for _, m := range metrics {
		if !undefined[m.Subject] && !math.IsNaN(m.MaxPercentChange) {
			kept = append(kept, m)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		a, b := kept[i], kept[j]
		if a.Arm != b.Arm {
			return a.Arm < b.Arm
		}
		if a.MaxPercentChange != b.MaxPercentChange {
			return a.MaxPercentChange > b.MaxPercentChange
		}
		return a.Subject < b.Subject
	})

	b := table.NewBuilder(
		table.Field{Name: dataset.ColArm, Kind: table.KindString},
		table.Field{Name: dataset.ColSubject, Kind: table.KindString},
		table.Field{Name: ColMaxPercentChange, Kind: table.KindFloat},
		table.Field{Name: ColMarker, Kind: table.KindString},
		table.Field{Name: ColRank, Kind: table.KindInt},
	)
	rank := 0
	for i, m := range kept {
		if i == 0 || kept[i-1].Arm != m.Arm {
			rank = 0
		}
		rank++
		b.Append(table.Str(m.Arm), table.Str(m.Subject), table.Float(m.MaxPercentChange),
			table.Str(m.Marker), table.Int(int64(rank)))
	}
	t, err := b.Table()
	if err != nil {
		return nil, err
	}
	return &Shaped{Table: t}, nil
}

// undefinedAtFirstVisit reports the subjects whose first row, in table
// order, has no percent change.
func undefinedAtFirstVisit(post *table.Table) (map[string]bool, error) {
	withPchg, err := derive.WithPercentChange(post, dataset.ColValue, dataset.ColBaseline, derive.ColPercentChange)
	if err != nil {
		return nil, err
	}
	groups, err := table.Groups(withPchg, []string{dataset.ColSubject})
	if err != nil {
		return nil, err
	}
	out := map[string]bool{}
	for _, rows := range groups {
		if withPchg.Value(rows[0], derive.ColPercentChange).Null {
			out[withPchg.Value(rows[0], dataset.ColSubject).String()] = true
		}
	}
	return out, nil
}

func (Waterfall) Build(s *Shaped, sel Selection) (*figure.Figure, error) {
	fig := figure.New("Waterfall Plot of Maximum Post Baseline Percentage Change in " + sel["param"])
	fig.Layout.Height = 1300
	fig.Layout.ShowLegend = boolPtr(false)
	fig.AddAnnotation(figure.Annotation{Text: "Maximum post baseline percentage change",
		X: -0.05, Y: 0.5, XRef: "paper", YRef: "paper", TextAngle: -90, Font: &figure.Font{Size: 14.5}})
	fig.Note("Each bar represents unique subject's maximum percentage change.", 0, -0.05)
	fig.Note(fmt.Sprintf("If subject's maximum percentage change was greater than %g percent then the change "+
		"was displayed as %g and indicated with the letter %s in plot.",
		derive.DisplayBound, derive.DisplayBound, derive.BoundaryMarker), 0, -0.07)
	if s.Table.Len() == 0 {
		return fig, nil
	}

	arms, err := s.Table.Distinct(dataset.ColArm)
	if err != nil {
		return nil, err
	}
	// panels stack top to bottom
	bands := figure.Columns(len(arms), 0.065)
	for i, arm := range arms {
		rows, err := table.Filter(s.Table, table.Eq(dataset.ColArm, arm))
		if err != nil {
			return nil, err
		}
		band := bands[len(arms)-1-i]
		xref, yref := figure.AxisRef("x", i), figure.AxisRef("y", i)

		tr := figure.Trace{
			Type:         figure.TypeBar,
			Name:         arm.String(),
			X:            make([]any, rows.Len()),
			Y:            make([]any, rows.Len()),
			Text:         make([]string, rows.Len()),
			TextPosition: "outside",
			XAxis:        xref,
			YAxis:        yref,
			Marker:       &figure.Marker{Color: color(i)},
		}
		// infinite changes (zero baseline) are drawn without a bar and
		// left out of the axis range
		lo, hi := math.Inf(1), math.Inf(-1)
		for r := 0; r < rows.Len(); r++ {
			v, _ := rows.Value(r, ColMaxPercentChange).Number()
			if !math.IsInf(v, 0) {
				lo, hi = math.Min(lo, v), math.Max(hi, v)
			}
			tr.X[r] = cell(rows.Value(r, ColRank))
			tr.Y[r] = figure.Num(v)
			tr.Text[r] = rows.Value(r, ColMarker).String()
		}
		fig.AddTrace(tr)

		if lo > hi {
			lo, hi = 0, 0
		}
		yRange := []float64{lo - 10, hi + 12}
		fig.SetAxis(figure.AxisName("x", i), figure.Axis{Domain: []float64{0, 1}, Anchor: yref})
		fig.SetAxis(figure.AxisName("y", i), figure.Axis{Domain: band, Anchor: xref, Range: yRange})
		fig.AddShape(figure.Shape{Type: "rect", XRef: xref, YRef: yref,
			X0: 0, X1: float64(rows.Len() + 1), Y0: yRange[0], Y1: yRange[1],
			Line: &figure.Line{Width: 1, Color: "black"}})
		fig.AddAnnotation(figure.Annotation{Text: arm.String(), X: 0.5, Y: band[1],
			XRef: "paper", YRef: "paper", XAnchor: "center", YAnchor: "bottom"})
	}
	return fig, nil
}
