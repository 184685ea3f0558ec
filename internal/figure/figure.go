// Package figure is the chart-object boundary between the view pipelines and
// whatever draws them. A Figure marshals to the {"data": [...], "layout": {...}}
// document plotly.js accepts; internal/render draws the same value statically.
package figure

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
)

// Trace types used by the views.
const (
	TypeBox     = "box"
	TypeScatter = "scatter"
	TypeBar     = "bar"
	TypeTable   = "table"
)

// Figure is one chart.
type Figure struct {
	Data   []Trace `json:"data"`
	Layout Layout  `json:"layout"`
}

// Trace is one data series. X and Y hold float64, string or nil (a gap).
type Trace struct {
	Type         string      `json:"type"`
	Name         string      `json:"name,omitempty"`
	X            []any       `json:"x,omitempty"`
	Y            []any       `json:"y,omitempty"`
	Text         []string    `json:"text,omitempty"`
	TextPosition string      `json:"textposition,omitempty"`
	Mode         string      `json:"mode,omitempty"`
	Marker       *Marker     `json:"marker,omitempty"`
	Line         *Line       `json:"line,omitempty"`
	XAxis        string      `json:"xaxis,omitempty"`
	YAxis        string      `json:"yaxis,omitempty"`
	ShowLegend   *bool       `json:"showlegend,omitempty"`
	BoxPoints    string      `json:"boxpoints,omitempty"`
	Header       *TableCells `json:"header,omitempty"`
	Cells        *TableCells `json:"cells,omitempty"`
	Domain       *Domain     `json:"domain,omitempty"`
}

// Marker styles points and bars.
type Marker struct {
	Color string  `json:"color,omitempty"`
	Size  float64 `json:"size,omitempty"`
}

// Line styles lines and shape outlines.
type Line struct {
	Color string  `json:"color,omitempty"`
	Dash  string  `json:"dash,omitempty"`
	Width float64 `json:"width,omitempty"`
}

// TableCells is the header or body of a table trace, column-major.
type TableCells struct {
	Values [][]string `json:"values"`
	Align  string     `json:"align,omitempty"`
}

// Domain places a trace that has no axes (tables).
type Domain struct {
	X []float64 `json:"x,omitempty"`
	Y []float64 `json:"y,omitempty"`
}

// Font is a text style.
type Font struct {
	Size  float64 `json:"size,omitempty"`
	Color string  `json:"color,omitempty"`
}

// Axis configures one x or y axis.
type Axis struct {
	Title    string    `json:"-"`
	Type     string    `json:"type,omitempty"` // "", "log", "category"
	Range    []float64 `json:"range,omitempty"`
	Domain   []float64 `json:"domain,omitempty"`
	Anchor   string    `json:"anchor,omitempty"`
	Visible  *bool     `json:"visible,omitempty"`
	ShowGrid *bool     `json:"showgrid,omitempty"`
	ZeroLine *bool     `json:"zeroline,omitempty"`
}

func (a Axis) MarshalJSON() ([]byte, error) {
	type plain Axis
	out := struct {
		plain
		Title *Text `json:"title,omitempty"`
	}{plain: plain(a)}
	if a.Title != "" {
		out.Title = &Text{Text: a.Title}
	}
	return json.Marshal(out)
}

// Text is a plotly title object.
type Text struct {
	Text string `json:"text"`
	X    any    `json:"x,omitempty"`
}

// Annotation is free text placed on the figure. Coordinates are in paper
// units unless XRef/YRef name an axis.
type Annotation struct {
	Text      string `json:"text"`
	X         any    `json:"x"`
	Y         any    `json:"y"`
	XRef      string `json:"xref,omitempty"`
	YRef      string `json:"yref,omitempty"`
	XAnchor   string `json:"xanchor,omitempty"`
	YAnchor   string `json:"yanchor,omitempty"`
	ShowArrow bool   `json:"showarrow"`
	TextAngle int    `json:"textangle,omitempty"`
	Font      *Font  `json:"font,omitempty"`
}

// Shape is a line or rectangle.
type Shape struct {
	Type string `json:"type"` // "line" or "rect"
	XRef string `json:"xref,omitempty"`
	YRef string `json:"yref,omitempty"`
	X0   any    `json:"x0"`
	X1   any    `json:"x1"`
	Y0   any    `json:"y0"`
	Y1   any    `json:"y1"`
	Line *Line  `json:"line,omitempty"`
}

// Layout holds everything that is not data. Axes are keyed by plotly axis
// name: "xaxis", "yaxis", "xaxis2", ...
type Layout struct {
	Title       string
	Axes        map[string]Axis
	Annotations []Annotation
	Shapes      []Shape
	ShowLegend  *bool
	BoxMode     string
	Width       int
	Height      int
}

func (l Layout) MarshalJSON() ([]byte, error) {
	m := map[string]any{}
	if l.Title != "" {
		m["title"] = Text{Text: l.Title, X: 0.5}
	}
	for name, ax := range l.Axes {
		m[name] = ax
	}
	if len(l.Annotations) > 0 {
		m["annotations"] = l.Annotations
	}
	if len(l.Shapes) > 0 {
		m["shapes"] = l.Shapes
	}
	if l.ShowLegend != nil {
		m["showlegend"] = *l.ShowLegend
	}
	if l.BoxMode != "" {
		m["boxmode"] = l.BoxMode
	}
	if l.Width > 0 {
		m["width"] = l.Width
	}
	if l.Height > 0 {
		m["height"] = l.Height
	}
	return json.Marshal(m)
}

// New returns an empty figure with a title.
func New(title string) *Figure {
	return &Figure{Data: []Trace{}, Layout: Layout{Title: title, Axes: map[string]Axis{}}}
}

// Axis returns the axis with the plotly name, e.g. "xaxis2".
func (f *Figure) Axis(name string) Axis { return f.Layout.Axes[name] }

// SetAxis stores an axis under its plotly name.
func (f *Figure) SetAxis(name string, a Axis) {
	if f.Layout.Axes == nil {
		f.Layout.Axes = map[string]Axis{}
	}
	f.Layout.Axes[name] = a
}

// AxisNames returns the configured axis names in order.
func (f *Figure) AxisNames() []string {
	names := make([]string, 0, len(f.Layout.Axes))
	for n := range f.Layout.Axes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (f *Figure) AddTrace(t Trace)           { f.Data = append(f.Data, t) }
func (f *Figure) AddAnnotation(a Annotation) { f.Layout.Annotations = append(f.Layout.Annotations, a) }
func (f *Figure) AddShape(s Shape)           { f.Layout.Shapes = append(f.Layout.Shapes, s) }

// Note adds a paper-anchored annotation without an arrow.
func (f *Figure) Note(text string, x, y float64) {
	f.AddAnnotation(Annotation{Text: text, X: x, Y: y, XRef: "paper", YRef: "paper", ShowArrow: false})
}

// Placeholder is the figure shown instead of a chart: no data, hidden axes
// and a single centred message.
func Placeholder(msg string) *Figure {
	f := New("")
	hidden := false
	f.SetAxis("xaxis", Axis{Visible: &hidden})
	f.SetAxis("yaxis", Axis{Visible: &hidden})
	f.AddAnnotation(Annotation{
		Text: msg, X: 0.5, Y: 0.5, XRef: "paper", YRef: "paper",
		ShowArrow: false, Font: &Font{Size: 28},
	})
	return f
}

// IsPlaceholder reports whether f carries no data.
func (f *Figure) IsPlaceholder() bool { return len(f.Data) == 0 }

// AxisName returns the plotly axis name for the i-th (0-based) x or y axis:
// "xaxis", "xaxis2", ...
func AxisName(letter string, i int) string {
	if i == 0 {
		return letter + "axis"
	}
	return letter + "axis" + strconv.Itoa(i+1)
}

// AxisRef returns the short trace reference for the i-th axis: "x", "x2", ...
func AxisRef(letter string, i int) string {
	if i == 0 {
		return letter
	}
	return letter + strconv.Itoa(i+1)
}

// RefToName maps a trace axis reference ("x2") to its layout name ("xaxis2").
func RefToName(ref string) string {
	if ref == "" {
		return ""
	}
	return ref[:1] + "axis" + ref[1:]
}

// Columns splits [0,1] into n horizontal domains separated by gap.
func Columns(n int, gap float64) [][]float64 {
	if n <= 0 {
		return nil
	}
	width := (1 - gap*float64(n-1)) / float64(n)
	out := make([][]float64, n)
	for i := range out {
		lo := float64(i) * (width + gap)
		out[i] = []float64{round(lo), round(lo + width)}
	}
	return out
}

func round(f float64) float64 { return math.Round(f*1e6) / 1e6 }

// Num converts f to a JSON-safe cell: NaN and infinities become nil.
func Num(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return f
}

// JSON marshals the figure.
func (f *Figure) JSON() ([]byte, error) { return json.Marshal(f) }
