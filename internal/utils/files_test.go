package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafeWriteFileCreatesParents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "figure.json")
	require.NoError(t, SafeWriteFile(path, []byte("{}")))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestPrettyJSON(t *testing.T) {
	b, err := PrettyJSON(map[string]int{"a": 1})
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"a\": 1\n}", string(b))

	_, err = PrettyJSON(func() {})
	assert.Error(t, err)
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".labdash", "config.yaml"), ExpandHome("~/.labdash/config.yaml"))
	assert.Equal(t, "/data/adlbc.csv", ExpandHome("/data/adlbc.csv"))
}
