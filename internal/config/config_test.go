package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "data/adlbc.csv", c.AdlbcPath)
	assert.Equal(t, "data/adsl.csv", c.AdslPath)
	assert.Equal(t, "127.0.0.1:8050", c.ListenAddr)
	assert.Equal(t, 256, c.FigureCacheSize)
	assert.Equal(t, 1200, c.ChartWidth)
	assert.Equal(t, "text", c.LogFormat)
	assert.False(t, c.WatchData)
}

func TestLoadFileAndEnv(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "labdash.yaml")
	require.NoError(t, os.WriteFile(path, []byte("adlbc_path: s3://trial/adlbc.csv.zst\nchart_width: 900\n"), 0o644))
	t.Setenv("LABDASH_LISTEN_ADDR", ":9000")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "s3://trial/adlbc.csv.zst", c.AdlbcPath)
	assert.Equal(t, 900, c.ChartWidth)
	assert.Equal(t, ":9000", c.ListenAddr)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	c, err := Load("")
	require.NoError(t, err)
	require.NoError(t, c.Set("adsl_path", "/data/adsl.parquet"))
	require.NoError(t, c.Set("watch_data", "true"))
	require.NoError(t, Save(c, path))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/adsl.parquet", got.AdslPath)
	assert.True(t, got.WatchData)
}

func TestSaveDefaultPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	require.NoError(t, Save(&Global{ListenAddr: ":1"}, ""))
	_, err := os.Stat(filepath.Join(home, ".labdash", "config.yaml"))
	assert.NoError(t, err)

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":1", c.ListenAddr)
}

func TestSetValidation(t *testing.T) {
	c := &Global{}
	assert.NoError(t, c.Set("chart_height", "500"))
	assert.Equal(t, 500, c.ChartHeight)
	assert.NoError(t, c.Set("log_level", "debug"))
	assert.Error(t, c.Set("chart_height", "-1"))
	assert.Error(t, c.Set("log_level", "loud"))
	assert.Error(t, c.Set("log_format", "xml"))
	assert.Error(t, c.Set("s3_path_style", "maybe"))
	assert.Error(t, c.Set("api_key", "x"))
}

func TestDefaultsIgnoreFiles(t *testing.T) {
	t.Setenv("LABDASH_LOG_LEVEL", "debug")
	c := Defaults()
	assert.Equal(t, "debug", c.LogLevel)
	assert.Equal(t, 700, c.ChartHeight)
}
