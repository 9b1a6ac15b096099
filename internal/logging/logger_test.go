package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_WritesDatedFile(t *testing.T) {
	dir := t.TempDir()
	logger, err := New(&Config{LogDir: dir, Level: LevelDebug})
	require.NoError(t, err)

	animator := logger.Component("animator")
	animator.Info().Msg("tween started")
	require.NoError(t, logger.Close())

	assert.Equal(t, dir, filepath.Dir(logger.LogPath()))
	data, err := os.ReadFile(logger.LogPath())
	require.NoError(t, err)
	assert.Contains(t, string(data), `"component":"animator"`)
	assert.Contains(t, string(data), `"app":"talkinghead"`)
	assert.Contains(t, string(data), "tween started")
}

func TestNew_ConsoleLevel(t *testing.T) {
	var out bytes.Buffer
	logger, err := New(&Config{Level: LevelWarn, Console: true, Out: &out})
	require.NoError(t, err)

	zl := logger.Zerolog()
	zl.Info().Msg("hidden")
	zl.Warn().Msg("shown")

	assert.NotContains(t, out.String(), "hidden")
	assert.Contains(t, out.String(), "shown")
	assert.Empty(t, logger.LogPath())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel(LevelWarn))
	assert.Equal(t, zerolog.ErrorLevel, ParseLevel(LevelError))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("verbose"))
}
