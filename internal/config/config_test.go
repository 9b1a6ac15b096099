package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/talkinghead/internal/lipsync"
)

func TestDefaultConfig_MatchesCore(t *testing.T) {
	cfg := DefaultConfig()
	core := cfg.Lipsync.Core()

	assert.Equal(t, lipsync.DefaultConfig(), core)
	assert.Equal(t, 16, cfg.Assets.MorphTargets)
	assert.False(t, cfg.Stream.Enabled)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "talkinghead.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
lipsync:
  attack_curve: additive
  neutral_fade: 350ms
  frame_rate: 30
audio:
  mute: true
assets:
  timing_file: /srv/timing.json
stream:
  enabled: true
  addr: ":9000"
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "additive", cfg.Lipsync.AttackCurve)
	assert.Equal(t, 350*time.Millisecond, cfg.Lipsync.NeutralFade)
	assert.Equal(t, 30, cfg.Lipsync.FrameRate)
	assert.Equal(t, lipsync.CurveAdditive, cfg.Lipsync.Core().AttackCurve)
	assert.True(t, cfg.Audio.Mute)
	assert.Equal(t, "/srv/timing.json", cfg.Assets.TimingFile)
	assert.True(t, cfg.Stream.Enabled)
	assert.Equal(t, ":9000", cfg.Stream.Addr)

	// Unset keys keep their defaults.
	assert.Equal(t, 0.8, cfg.Lipsync.AttackFraction)
	assert.Equal(t, 50*time.Millisecond, cfg.Lipsync.MinPhonemeDuration)
	assert.Equal(t, 44100, cfg.Audio.SampleRate)
}

func TestLoad_EnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "talkinghead.yaml")
	require.NoError(t, os.WriteFile(path, []byte("lipsync:\n  progress_hold: 0.5\n"), 0o644))
	t.Setenv("TALKINGHEAD_LIPSYNC_PROGRESS_HOLD", "0.7")
	t.Setenv("TALKINGHEAD_STREAM_ENABLED", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.7, cfg.Lipsync.ProgressHold)
	assert.True(t, cfg.Stream.Enabled)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "talkinghead.yaml")
	cfg := DefaultConfig()
	cfg.Lipsync.NeutralFade = 120 * time.Millisecond
	cfg.Assets.ModelPath = "face.glb"
	cfg.Log.Level = "debug"

	require.NoError(t, Save(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
