package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew(t *testing.T) {
	for _, format := range []string{"json", "console", ""} {
		l, err := New("info", format)
		require.NoError(t, err, format)
		assert.NotNil(t, l)
	}

	_, err := New("loud", "json")
	assert.Error(t, err)
	_, err = New("info", "xml")
	assert.Error(t, err)
}

func TestBuild_LevelAndEncoding(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.json")
	l, err := build("WARN", "json", []string{path})
	require.NoError(t, err)

	l.Info("dropped")
	l.Warn("kept", zap.String("domain", "home_office_deduction"))
	require.NoError(t, l.Sync())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "kept", entry["msg"])
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "home_office_deduction", entry["domain"])
}
