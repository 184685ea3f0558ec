package figure

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlaceholderJSON(t *testing.T) {
	f := Placeholder("nothing to show")
	raw, err := f.JSON()
	require.NoError(t, err)

	var doc struct {
		Data   []any          `json:"data"`
		Layout map[string]any `json:"layout"`
	}
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.NotNil(t, doc.Data)
	assert.Empty(t, doc.Data)
	anns := doc.Layout["annotations"].([]any)
	require.Len(t, anns, 1)
	assert.Equal(t, "nothing to show", anns[0].(map[string]any)["text"])
	assert.Equal(t, false, doc.Layout["xaxis"].(map[string]any)["visible"])
	assert.True(t, f.IsPlaceholder())
}

func TestLayoutAxesAndTitle(t *testing.T) {
	f := New("Box")
	f.SetAxis(AxisName("y", 1), Axis{Title: "ALT", Type: "log", Domain: []float64{0, 0.5}})
	f.AddTrace(Trace{Type: TypeScatter, X: []any{1.0, Num(math.NaN())}, Y: []any{"a", "b"}, YAxis: AxisRef("y", 1)})
	raw, err := f.JSON()
	require.NoError(t, err)

	var doc map[string]map[string]any
	require.NoError(t, json.Unmarshal(raw, &struct {
		Layout *map[string]map[string]any `json:"layout"`
	}{Layout: &doc}))
	assert.Equal(t, "Box", doc["title"]["text"])
	assert.Equal(t, "log", doc["yaxis2"]["type"])
	assert.Equal(t, "ALT", doc["yaxis2"]["title"].(map[string]any)["text"])
	assert.Contains(t, string(raw), `"x":[1,null]`)
	assert.Contains(t, string(raw), `"yaxis":"y2"`)
}

func TestAxisNaming(t *testing.T) {
	assert.Equal(t, "xaxis", AxisName("x", 0))
	assert.Equal(t, "xaxis3", AxisName("x", 2))
	assert.Equal(t, "y", AxisRef("y", 0))
	assert.Equal(t, "y12", AxisRef("y", 11))
	assert.Equal(t, "xaxis12", RefToName("x12"))
	assert.Equal(t, "yaxis", RefToName("y"))
}

func TestColumns(t *testing.T) {
	cols := Columns(3, 0.05)
	require.Len(t, cols, 3)
	assert.Equal(t, 0.0, cols[0][0])
	assert.InDelta(t, 1.0, cols[2][1], 1e-6)
	for i := 1; i < len(cols); i++ {
		assert.InDelta(t, 0.05, cols[i][0]-cols[i-1][1], 1e-6)
	}
	assert.Nil(t, Columns(0, 0.1))
}
