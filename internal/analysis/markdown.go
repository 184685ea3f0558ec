package analysis

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/KaramelBytes/labdash/internal/derive"
)

// Markdown renders a compact report suitable for terminals or standalone docs.
func (r *Report) Markdown() string {
	var b strings.Builder
	b.WriteString("[DATASET SUMMARY]\n")
	if r.Name != "" {
		b.WriteString(fmt.Sprintf("File: %s\n", r.Name))
	}
	if r.Processed > 0 && r.Processed < r.Rows {
		b.WriteString(fmt.Sprintf("Rows: %d (processed %d)\n", r.Rows, r.Processed))
	} else {
		b.WriteString(fmt.Sprintf("Rows: %d\n", r.Rows))
	}
	b.WriteString(fmt.Sprintf("Columns: %d\n\n", len(r.Cols)))

	b.WriteString("[SCHEMA]\n")
	for _, c := range r.Cols {
		total := c.NonNull + c.Missing
		missPct := 0.0
		if total > 0 {
			missPct = float64(c.Missing) * 100.0 / float64(total)
		}
		b.WriteString(fmt.Sprintf("- %s: %s (non-null %d, missing %.1f%%)", safeName(c.Name), c.Kind, c.NonNull, missPct))
		switch c.Kind {
		case "numeric":
			if c.NonNull > 0 {
				b.WriteString(fmt.Sprintf("; min %.4g, max %.4g, mean %.4g, std %.4g", c.Min, c.Max, c.Mean, c.Std))
			}
			if c.OutlierThreshold > 0 && c.OutliersCount > 0 {
				b.WriteString(fmt.Sprintf("; outliers: %d above |z|>%.1f (max |z|≈%.2f)",
					c.OutliersCount, c.OutlierThreshold, c.OutliersMaxAbsZ))
			}
		case "categorical":
			if len(c.TopValues) > 0 {
				b.WriteString("; top: ")
				for i, kv := range c.TopValues {
					if i > 0 {
						b.WriteString(", ")
					}
					b.WriteString(fmt.Sprintf("%s(%d)", safeVal(kv.Value), kv.Count))
				}
				if c.Unique > len(c.TopValues) {
					b.WriteString(fmt.Sprintf("; unique=%d", c.Unique))
				}
			}
		case "text":
			b.WriteString(fmt.Sprintf("; unique=%d", c.Unique))
			if len(c.ExampleTexts) > 0 {
				b.WriteString(", e.g. ")
				for i, ex := range c.ExampleTexts {
					if i > 0 {
						b.WriteString(" | ")
					}
					b.WriteString(safeVal(ex))
				}
			}
		}
		b.WriteString("\n")
	}
	if len(r.Groups) > 0 {
		b.WriteString("\n[GROUP-BY SUMMARY]\n")
		for _, g := range r.Groups {
			b.WriteString(fmt.Sprintf("- %s (n=%d)\n", g.Key, g.Size))
			keys := make([]string, 0, len(g.Metrics))
			for k := range g.Metrics {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			// print up to 6 metrics
			if len(keys) > 6 {
				keys = keys[:6]
			}
			for _, k := range keys {
				m := g.Metrics[k]
				b.WriteString(fmt.Sprintf("  • %s: mean %.4g (min %.4g, max %.4g, n=%d)\n", k, m.Mean, m.Min, m.Max, m.Count))
			}
		}
	}
	if r.Corr != nil && len(r.Corr.Columns) >= 2 {
		b.WriteString("\n[CORRELATIONS]\n")
		type pr struct {
			A, B string
			R    float64
		}
		var pairs []pr
		n := len(r.Corr.Columns)
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				if math.IsNaN(r.Corr.Values[i][j]) {
					continue
				}
				pairs = append(pairs, pr{A: r.Corr.Columns[i], B: r.Corr.Columns[j], R: r.Corr.Values[i][j]})
			}
		}
		sort.Slice(pairs, func(i, j int) bool {
			ai := math.Abs(pairs[i].R)
			aj := math.Abs(pairs[j].R)
			if ai == aj {
				return pairs[i].A+pairs[i].B < pairs[j].A+pairs[j].B
			}
			return ai > aj
		})
		if len(pairs) > 10 {
			pairs = pairs[:10]
		}
		for _, p := range pairs {
			b.WriteString(fmt.Sprintf("- %s ~ %s: r=%.3f\n", p.A, p.B, p.R))
		}
	}
	if len(r.Samples) > 0 {
		b.WriteString("\n[HEAD AND SAMPLE ROWS]\n")
		names := make([]string, len(r.Cols))
		rule := make([]string, len(r.Cols))
		for i, c := range r.Cols {
			names[i] = safeName(c.Name)
			rule[i] = "---"
		}
		b.WriteString("| " + strings.Join(names, " | ") + " |\n")
		b.WriteString("| " + strings.Join(rule, " | ") + " |\n")
		for _, row := range r.Samples {
			cells := make([]string, len(r.Cols))
			for i := range r.Cols {
				val := ""
				if i < len(row) {
					val = row[i]
				}
				if len(val) > 80 {
					val = val[:77] + "..."
				}
				cells[i] = safeVal(val)
			}
			b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
		}
	}
	if len(r.Warnings) > 0 {
		b.WriteString("\n[NOTES]\n")
		for _, w := range r.Warnings {
			b.WriteString("- ")
			b.WriteString(w)
			b.WriteString("\n")
		}
	}
	return b.String()
}

func safeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "(unnamed)"
	}
	return s
}
func safeVal(s string) string { return strings.ReplaceAll(strings.ReplaceAll(s, "\n", " "), "|", "/") }

// medianMAD computes median and MAD (median absolute deviation) of values.
func medianMAD(vals []float64) (median, mad float64) {
	if len(vals) == 0 {
		return 0, 0
	}
	cp := make([]float64, len(vals))
	copy(cp, vals)
	sort.Float64s(cp)
	median = derive.Quantile(cp, 0.5)
	dev := make([]float64, len(cp))
	for i, v := range cp {
		dev[i] = math.Abs(v - median)
	}
	sort.Float64s(dev)
	mad = derive.Quantile(dev, 0.5)
	return
}
