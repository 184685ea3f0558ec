package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/KaramelBytes/labdash/internal/views"
)

const testAdlbc = `usubjid,paramcd,aval,base,chg,a1hi,a1lo,avisitn,ady,trta,saffl
S1,ALT,10,10,0,34,6,0,1,Placebo,Y
S1,ALT,25,10,15,34,6,1,14,Placebo,Y
S1,AST,20,20,0,36,10,0,1,Placebo,Y
S1,AST,30,20,10,36,10,1,14,Placebo,Y
S1,BILI,1.2,0.6,0.6,21,3,1,14,Placebo,Y
S2,ALT,12,10,2,40,8,1,15,High,Y
S2,BILI,0.8,1.0,-0.2,21,3,1,15,High,Y
S3,_QC,1,1,0,1,1,1,15,Placebo,Y
`

const testAdsl = `usubjid,trt01a
S1,Placebo
S2,High
S3,Placebo
`

// resetFlags puts every flag back to its default so Changed state and bound
// variables do not leak between invocations.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// runCmd executes the root command with args and returns its output.
func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

// withData sets up an isolated HOME and the two source files, returning the
// flags that point the CLI at them.
func withData(t *testing.T) (dir string, flags []string) {
	t.Helper()
	dir = t.TempDir()
	t.Setenv("HOME", dir)
	labs, subjects := filepath.Join(dir, "adlbc.csv"), filepath.Join(dir, "adsl.csv")
	require.NoError(t, os.WriteFile(labs, []byte(testAdlbc), 0o644))
	require.NoError(t, os.WriteFile(subjects, []byte(testAdsl), 0o644))
	return dir, []string{"--adlbc", labs, "--adsl", subjects}
}

func TestListViews(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	out, err := runCmd(t, "list", "views")
	require.NoError(t, err)
	assert.Contains(t, out, "- series: Series Plot (/)")
	assert.Contains(t, out, "- boxplot: Box Plot (/boxplot)")
	assert.Contains(t, out, "first=BILI second=ALT")
}

func TestListParamsHidesInternalCodes(t *testing.T) {
	_, flags := withData(t)
	out, err := runCmd(t, append(flags, "list", "params")...)
	require.NoError(t, err)
	assert.Contains(t, out, "- ALT")
	assert.Contains(t, out, "- BILI")
	assert.NotContains(t, out, "_QC")

	out, err = runCmd(t, append(flags, "list", "arms")...)
	require.NoError(t, err)
	assert.Contains(t, out, "- High")
	assert.Contains(t, out, "- Placebo")
}

func TestListRejectsUnknownKind(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	_, err := runCmd(t, "list", "visits")
	require.Error(t, err)
}

func TestRenderJSONToStdout(t *testing.T) {
	_, flags := withData(t)
	out, err := runCmd(t, append(flags, "render", "scatterplot", "first=BILI", "second=ALT")...)
	require.NoError(t, err)
	var fig map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &fig))
	assert.Contains(t, fig, "data")
	assert.Contains(t, fig, "layout")
}

func TestRenderSVGFile(t *testing.T) {
	dir, flags := withData(t)
	path := filepath.Join(dir, "out", "box.svg")
	out, err := runCmd(t, append(flags, "render", "boxplot", "param=ALT", "-o", path, "--width", "640")...)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote boxplot figure")
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "<svg")
}

func TestRenderErrors(t *testing.T) {
	dir, flags := withData(t)
	_, err := runCmd(t, append(flags, "render", "histogram")...)
	require.ErrorIs(t, err, views.ErrUnknownView)

	_, err = runCmd(t, append(flags, "render", "boxplot", "visit=1")...)
	require.ErrorIs(t, err, views.ErrUnknownInput)

	_, err = runCmd(t, append(flags, "render", "boxplot", "param")...)
	require.Error(t, err)

	_, err = runCmd(t, append(flags, "render", "boxplot", "-o", filepath.Join(dir, "box.gif"))...)
	require.Error(t, err)
}

func TestExportCSV(t *testing.T) {
	dir, flags := withData(t)
	path := filepath.Join(dir, "waterfall.csv")
	out, err := runCmd(t, append(flags, "export", "waterfall", "param=ALT", "-o", path)...)
	require.NoError(t, err)
	assert.Contains(t, out, "Exported 2 rows")
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "trta,usubjid,max_pchg,marker,rank", lines[0])
}

func TestExportWorkbookCarriesExtraTable(t *testing.T) {
	dir, flags := withData(t)
	path := filepath.Join(dir, "series.xlsx")
	_, err := runCmd(t, append(flags, "export", "series", "subject=S1", "first=ALT", "second=AST", "-o", path)...)
	require.NoError(t, err)
	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{"series", "series_extra"}, f.GetSheetList())
}

func TestExportPlaceholderFails(t *testing.T) {
	dir, flags := withData(t)
	path := filepath.Join(dir, "same.csv")
	_, err := runCmd(t, append(flags, "export", "scatterplot", "first=ALT", "second=ALT", "-o", path)...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nothing to export")
	assert.NoFileExists(t, path)

	_, err = runCmd(t, append(flags, "export", "waterfall")...)
	require.Error(t, err)
}

func TestDescribe(t *testing.T) {
	dir, flags := withData(t)
	out, err := runCmd(t, append(flags, "describe", "adlbc", "--group-by", "trta", "--correlations")...)
	require.NoError(t, err)
	assert.Contains(t, out, "[DATASET SUMMARY]")
	assert.Contains(t, out, "[GROUP-BY SUMMARY]")
	assert.Contains(t, out, "[CORRELATIONS]")

	path := filepath.Join(dir, "adsl.md")
	out, err = runCmd(t, append(flags, "describe", "adsl", "-o", path)...)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote summary")
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "trta")
	assert.NotContains(t, string(b), "[GROUP-BY SUMMARY]")
}

func TestConfigSetAndShow(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	path := filepath.Join(dir, "conf", "labdash.yaml")

	out, err := runCmd(t, "--config", path, "config", "set", "listen_addr", "0.0.0.0:9000")
	require.NoError(t, err)
	assert.Contains(t, out, "Saved config")

	out, err = runCmd(t, "--config", path, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "listen_addr: 0.0.0.0:9000")
	assert.Contains(t, out, "chart_width: 1200")

	_, err = runCmd(t, "--config", path, "config", "set", "log_format", "xml")
	require.Error(t, err)
	_, err = runCmd(t, "--config", path, "config", "set", "nope", "1")
	require.Error(t, err)
}

func TestParseSelection(t *testing.T) {
	sel, err := parseSelection([]string{"first=ALT", "second=a=b"})
	require.NoError(t, err)
	assert.Equal(t, views.Selection{"first": "ALT", "second": "a=b"}, sel)

	_, err = parseSelection([]string{"=ALT"})
	require.Error(t, err)
}
