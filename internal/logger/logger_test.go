package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_WritesJSONLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "debug.log")
	l := New(Config{Path: path})

	LogOperation(l, "find_process", 0.012, OutcomeSuccess)
	require.NoError(t, l.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	line := strings.TrimSpace(string(data))
	assert.Contains(t, line, `"tool":"find_process"`)
	assert.Contains(t, line, `"outcome":"success"`)
}

func TestValOr_FallsBackToDefault(t *testing.T) {
	assert.Equal(t, DefaultMaxSizeMB, valOr(0, DefaultMaxSizeMB))
	assert.Equal(t, 42, valOr(42, DefaultMaxSizeMB))
}
