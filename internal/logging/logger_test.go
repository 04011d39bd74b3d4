package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew_NopByDefault(t *testing.T) {
	logger, err := New(Options{})
	require.NoError(t, err)
	require.False(t, logger.Core().Enabled(-1))
}

func TestNew_WritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.log")
	logger, err := New(Options{File: path, Debug: true})
	require.NoError(t, err)

	logger.Debug("chat message submitted")
	_ = logger.Sync()

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"msg":"chat message submitted"`)
	require.Contains(t, string(raw), `"level":"debug"`)
}

func TestNew_InfoLevelWithoutDebug(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.log")
	logger, err := New(Options{File: path})
	require.NoError(t, err)
	require.False(t, logger.Core().Enabled(-1), "debug must be off")
	require.True(t, logger.Core().Enabled(0))
}

func TestNew_BadPath(t *testing.T) {
	_, err := New(Options{File: filepath.Join(t.TempDir(), "missing", "dir", "chat.log")})
	require.Error(t, err)
}
