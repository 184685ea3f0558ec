// Package render draws a figure.Figure to a static SVG or PNG image with
// go-chart. The static output is a simplified rendition: facets share one
// plot area, log axes are drawn linear, and table traces are omitted.
package render

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/KaramelBytes/labdash/internal/derive"
	"github.com/KaramelBytes/labdash/internal/figure"
)

// Format is a static image format.
type Format string

const (
	SVG Format = "svg"
	PNG Format = "png"
)

// ParseFormat accepts "svg" or "png" in any case.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case SVG:
		return SVG, nil
	case PNG:
		return PNG, nil
	default:
		return "", fmt.Errorf("unsupported image format %q", s)
	}
}

// ContentType is the HTTP media type of f.
func (f Format) ContentType() string {
	if f == PNG {
		return "image/png"
	}
	return "image/svg+xml"
}

func (f Format) provider() chart.RendererProvider {
	if f == PNG {
		return chart.PNG
	}
	return chart.SVG
}

// Options sizes the image.
type Options struct {
	Width  int
	Height int
}

func (o Options) size(fig *figure.Figure) (int, int) {
	w, h := o.Width, o.Height
	if w <= 0 {
		w = 1200
	}
	if h <= 0 {
		h = 700
		if fig.Layout.Height > 0 {
			h = fig.Layout.Height
		}
	}
	return w, h
}

// Render writes fig to w. A figure without drawable data, such as a
// placeholder, is drawn as its title and annotation text only. If charting
// fails the text rendition is written instead.
func Render(fig *figure.Figure, format Format, w io.Writer, opt Options) error {
	width, height := opt.size(fig)
	p := newPlot(fig)
	if len(p.series) == 0 {
		return renderText(fig, format, w, width, height)
	}
	ch := chart.Chart{
		Title:      fig.Layout.Title,
		Width:      width,
		Height:     height,
		Background: chart.Style{Padding: chart.Box{Top: 50, Left: 30, Right: 30, Bottom: 90}},
		XAxis:      p.xAxis(fig),
		YAxis:      p.yAxis(fig),
		Series:     p.series,
	}
	ch.Elements = []chart.Renderable{p.legendBox(), paperNotes(fig)}

	var buf bytes.Buffer
	if err := ch.Render(format.provider(), &buf); err != nil {
		return renderText(fig, format, w, width, height)
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// renderText draws the title and paper annotations on a blank canvas.
func renderText(fig *figure.Figure, format Format, w io.Writer, width, height int) error {
	r, err := format.provider()(width, height)
	if err != nil {
		return fmt.Errorf("renderer: %w", err)
	}
	font, err := chart.GetDefaultFont()
	if err != nil {
		return fmt.Errorf("font: %w", err)
	}
	r.SetFont(font)
	r.SetFontColor(drawing.ColorBlack)
	box := chart.Box{Top: 0, Left: 0, Right: width, Bottom: height}
	if fig.Layout.Title != "" {
		r.SetFontSize(18)
		tb := r.MeasureText(fig.Layout.Title)
		r.Text(fig.Layout.Title, (width-tb.Width())/2, 30)
	}
	paperNotes(fig)(r, box, chart.Style{Font: font})
	return r.Save(w)
}

// paperNotes draws paper-anchored annotations relative to the canvas box.
// Placeholder coordinates outside [0,1] are clamped to the centre.
func paperNotes(fig *figure.Figure) chart.Renderable {
	return func(r chart.Renderer, cb chart.Box, defaults chart.Style) {
		if defaults.Font != nil {
			r.SetFont(defaults.Font)
		} else if f, err := chart.GetDefaultFont(); err == nil {
			r.SetFont(f)
		}
		r.SetFontColor(drawing.ColorBlack)
		for _, a := range fig.Layout.Annotations {
			if a.XRef != "paper" || a.YRef != "paper" {
				continue
			}
			x, okX := toFloat(a.X)
			y, okY := toFloat(a.Y)
			if !okX || !okY {
				continue
			}
			size := 11.0
			if a.Font != nil && a.Font.Size > 0 {
				size = a.Font.Size
			}
			r.SetFontSize(size)
			tb := r.MeasureText(a.Text)
			px := cb.Left + int(clampPaper(x)*float64(cb.Width()))
			py := cb.Bottom - int(clampPaper(y)*float64(cb.Height()))
			if a.TextAngle != 0 {
				r.SetTextRotation(float64(a.TextAngle) * math.Pi / 180)
				r.Text(a.Text, px, py+tb.Width()/2)
				r.ClearTextRotation()
				continue
			}
			if a.XAnchor == "center" || x == 0.5 {
				px -= tb.Width() / 2
			}
			r.Text(a.Text, px, py)
		}
	}
}

func clampPaper(v float64) float64 {
	switch {
	case v < -0.1:
		return 0
	case v > 1.1:
		return 1
	case v < 0:
		return 0.01
	default:
		return math.Min(v, 0.98)
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n) && !math.IsInf(n, 0)
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

type legendEntry struct {
	name  string
	color drawing.Color
}

// plot accumulates go-chart series and the data extent. Several go-chart
// series can make up one trace, so the legend is kept per trace.
type plot struct {
	series     []chart.Series
	legend     []legendEntry
	categories []string
	catIndex   map[string]int
	minX, maxX float64
	minY, maxY float64
}

func newPlot(fig *figure.Figure) *plot {
	p := &plot{
		catIndex: map[string]int{},
		minX:     math.Inf(1), maxX: math.Inf(-1),
		minY: math.Inf(1), maxY: math.Inf(-1),
	}
	offset := 0.0
	for _, tr := range fig.Data {
		switch tr.Type {
		case figure.TypeScatter:
			p.addScatter(tr)
		case figure.TypeBar:
			offset = p.addBars(tr, offset)
		case figure.TypeBox:
			p.addBox(tr)
		}
	}
	if len(p.series) > 0 {
		p.addShapes(fig)
		p.addAxisNotes(fig)
	}
	return p
}

// x maps a trace x cell to a plot coordinate; strings become category slots.
func (p *plot) x(v any) (float64, bool) {
	if s, ok := v.(string); ok {
		i, seen := p.catIndex[s]
		if !seen {
			i = len(p.categories)
			p.catIndex[s] = i
			p.categories = append(p.categories, s)
		}
		return float64(i + 1), true
	}
	return toFloat(v)
}

func (p *plot) extend(x, y float64) {
	p.minX, p.maxX = math.Min(p.minX, x), math.Max(p.maxX, x)
	p.minY, p.maxY = math.Min(p.minY, y), math.Max(p.maxY, y)
}

func (p *plot) addScatter(tr figure.Trace) {
	var xs, ys []float64
	for i := range tr.X {
		if i >= len(tr.Y) {
			break
		}
		x, okX := p.x(tr.X[i])
		y, okY := toFloat(tr.Y[i])
		if !okX || !okY {
			continue
		}
		xs = append(xs, x)
		ys = append(ys, y)
		p.extend(x, y)
	}
	if len(xs) == 0 {
		return
	}
	col := traceColor(tr, len(p.series))
	style := chart.Style{StrokeColor: col, StrokeWidth: 2, DotColor: col, DotWidth: 3}
	if tr.Mode == "markers" {
		style = chart.Style{StrokeColor: col.WithAlpha(0), DotWidth: 4, DotColor: col}
	}
	if tr.Line != nil && tr.Line.Dash != "" {
		style.StrokeDashArray = dashArray(tr.Line.Dash)
	}
	p.series = append(p.series, chart.ContinuousSeries{Name: tr.Name, Style: style, XValues: xs, YValues: ys})
	p.named(tr.Name, col)
}

// addBars draws each bar as a closed outline and returns the x offset for the
// next bar trace, so facets are laid side by side.
func (p *plot) addBars(tr figure.Trace, offset float64) float64 {
	col := traceColor(tr, len(p.legend))
	p.named(tr.Name, col)
	var labels []chart.Value2
	next := offset
	for i := range tr.X {
		if i >= len(tr.Y) {
			break
		}
		x, okX := toFloat(tr.X[i])
		y, okY := toFloat(tr.Y[i])
		if !okX || !okY {
			continue
		}
		x += offset
		next = math.Max(next, x+2)
		p.extend(x-0.4, math.Min(0, y))
		p.extend(x+0.4, math.Max(0, y))
		p.series = append(p.series, chart.ContinuousSeries{
			Style:   chart.Style{StrokeColor: col, FillColor: col.WithAlpha(160), StrokeWidth: 1},
			XValues: []float64{x - 0.4, x - 0.4, x + 0.4, x + 0.4},
			YValues: []float64{0, y, y, 0},
		})
		if i < len(tr.Text) && tr.Text[i] != "" {
			labels = append(labels, chart.Value2{XValue: x, YValue: y, Label: tr.Text[i]})
		}
	}
	if len(labels) > 0 {
		p.series = append(p.series, chart.AnnotationSeries{Annotations: labels})
	}
	return next
}

// addBox draws min-max whiskers, the interquartile box and the median for
// every category of a box trace.
func (p *plot) addBox(tr figure.Trace) {
	byX := map[float64][]float64{}
	var order []float64
	for i := range tr.X {
		if i >= len(tr.Y) {
			break
		}
		x, okX := p.x(tr.X[i])
		y, okY := toFloat(tr.Y[i])
		if !okX || !okY {
			continue
		}
		if _, ok := byX[x]; !ok {
			order = append(order, x)
		}
		byX[x] = append(byX[x], y)
	}
	col := traceColor(tr, len(p.series))
	p.named(tr.Name, col)
	// traces sharing categories are nudged apart
	nudge := float64(len(p.series)%4)*0.15 - 0.2
	style := chart.Style{StrokeColor: col, StrokeWidth: 1.5}
	for _, x := range order {
		vals := byX[x]
		sort.Float64s(vals)
		lo, hi := vals[0], vals[len(vals)-1]
		q1, med, q3 := derive.Quantile(vals, 0.25), derive.Quantile(vals, 0.5), derive.Quantile(vals, 0.75)
		cx := x + nudge
		p.extend(cx-0.1, lo)
		p.extend(cx+0.1, hi)
		p.series = append(p.series,
			chart.ContinuousSeries{Style: style,
				XValues: []float64{cx - 0.07, cx + 0.07, cx + 0.07, cx - 0.07, cx - 0.07},
				YValues: []float64{q1, q1, q3, q3, q1}},
			chart.ContinuousSeries{Style: style, XValues: []float64{cx - 0.07, cx + 0.07}, YValues: []float64{med, med}},
			chart.ContinuousSeries{Style: style, XValues: []float64{cx, cx}, YValues: []float64{lo, q1}},
			chart.ContinuousSeries{Style: style, XValues: []float64{cx, cx}, YValues: []float64{q3, hi}},
		)
	}
}

// addShapes draws reference lines spanning the data extent.
func (p *plot) addShapes(fig *figure.Figure) {
	style := chart.Style{StrokeColor: drawing.ColorFromHex("808080"), StrokeWidth: 1, StrokeDashArray: []float64{5, 5}}
	for _, s := range fig.Layout.Shapes {
		if s.Type != "line" {
			continue
		}
		x0, ok0 := toFloat(s.X0)
		x1, ok1 := toFloat(s.X1)
		y0, ok2 := toFloat(s.Y0)
		y1, ok3 := toFloat(s.Y1)
		if !ok0 || !ok1 || !ok2 || !ok3 {
			continue
		}
		if !isAxisRef(s.XRef) {
			x0, x1 = p.minX, p.maxX
		}
		if !isAxisRef(s.YRef) {
			y0, y1 = p.minY, p.maxY
		}
		p.extend(x0, y0)
		p.extend(x1, y1)
		p.series = append(p.series, chart.ContinuousSeries{Style: style, XValues: []float64{x0, x1}, YValues: []float64{y0, y1}})
	}
}

// addAxisNotes places data-anchored annotations, such as ULN labels.
func (p *plot) addAxisNotes(fig *figure.Figure) {
	var vals []chart.Value2
	for _, a := range fig.Layout.Annotations {
		if a.YRef == "paper" || a.YRef == "" {
			continue
		}
		y, ok := toFloat(a.Y)
		if !ok {
			continue
		}
		x := p.maxX
		if isAxisRef(a.XRef) {
			if v, ok := toFloat(a.X); ok {
				x = v
			}
		}
		vals = append(vals, chart.Value2{XValue: x, YValue: y, Label: a.Text})
	}
	if len(vals) > 0 {
		p.series = append(p.series, chart.AnnotationSeries{Annotations: vals})
	}
}

func (p *plot) named(name string, col drawing.Color) {
	if name != "" {
		p.legend = append(p.legend, legendEntry{name: name, color: col})
	}
}

// legendBox lists one entry per named trace along the top of the canvas.
func (p *plot) legendBox() chart.Renderable {
	return func(r chart.Renderer, cb chart.Box, defaults chart.Style) {
		if len(p.legend) == 0 {
			return
		}
		if defaults.Font != nil {
			r.SetFont(defaults.Font)
		}
		r.SetFontSize(10)
		x := cb.Left
		for _, e := range p.legend {
			r.SetFontColor(e.color)
			label := "■ " + e.name
			r.Text(label, x, cb.Top-8)
			x += r.MeasureText(label).Width() + 16
		}
	}
}

func isAxisRef(ref string) bool {
	return ref != "" && ref != "paper" && !strings.HasSuffix(ref, "domain")
}

func padded(lo, hi float64) *chart.ContinuousRange {
	if hi <= lo {
		return &chart.ContinuousRange{Min: lo - 1, Max: hi + 1}
	}
	pad := (hi - lo) * 0.05
	return &chart.ContinuousRange{Min: lo - pad, Max: hi + pad}
}

func (p *plot) xAxis(fig *figure.Figure) chart.XAxis {
	ax := chart.XAxis{Name: fig.Axis("xaxis").Title, Range: padded(p.minX, p.maxX)}
	if len(p.categories) > 0 {
		ax.Range = &chart.ContinuousRange{Min: 0.5, Max: float64(len(p.categories)) + 0.5}
		for i, c := range p.categories {
			ax.Ticks = append(ax.Ticks, chart.Tick{Value: float64(i + 1), Label: c})
		}
	}
	return ax
}

func (p *plot) yAxis(fig *figure.Figure) chart.YAxis {
	ya := fig.Axis("yaxis")
	ax := chart.YAxis{Name: ya.Title, Range: padded(p.minY, p.maxY)}
	if len(ya.Range) == 2 && len(fig.Layout.Axes) <= 2 {
		ax.Range = &chart.ContinuousRange{Min: ya.Range[0], Max: ya.Range[1]}
	}
	return ax
}

var named = map[string]string{
	"purple":    "800080",
	"darkgreen": "006400",
	"gray":      "808080",
	"black":     "000000",
}

func parseColor(s string) (drawing.Color, bool) {
	if hex, ok := named[s]; ok {
		return drawing.ColorFromHex(hex), true
	}
	if strings.HasPrefix(s, "#") && (len(s) == 7 || len(s) == 4) {
		return drawing.ColorFromHex(s[1:]), true
	}
	return drawing.Color{}, false
}

func traceColor(tr figure.Trace, i int) drawing.Color {
	if tr.Marker != nil {
		if c, ok := parseColor(tr.Marker.Color); ok {
			return c
		}
	}
	if tr.Line != nil {
		if c, ok := parseColor(tr.Line.Color); ok {
			return c
		}
	}
	return chart.GetDefaultColor(i)
}

func dashArray(dash string) []float64 {
	switch dash {
	case "dash":
		return []float64{6, 4}
	case "longdash":
		return []float64{12, 4}
	case "dot":
		return []float64{2, 3}
	default:
		return nil
	}
}
