// Package config provides configuration management for talkinghead
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/normanking/talkinghead/internal/lipsync"
	"github.com/normanking/talkinghead/internal/logging"
)

// EnvPrefix prefixes environment overrides, e.g. TALKINGHEAD_LIPSYNC_NEUTRAL_FADE.
const EnvPrefix = "TALKINGHEAD"

// Config holds all application configuration
type Config struct {
	Lipsync LipsyncConfig `mapstructure:"lipsync"`
	Audio   AudioConfig   `mapstructure:"audio"`
	Assets  AssetsConfig  `mapstructure:"assets"`
	Stream  StreamConfig  `mapstructure:"stream"`
	Log     LogConfig     `mapstructure:"log"`
}

// LipsyncConfig configures the animator and synchronizer
type LipsyncConfig struct {
	TimestampScale     float64       `mapstructure:"timestamp_scale"`
	AttackFraction     float64       `mapstructure:"attack_fraction"`
	AttackCurve        string        `mapstructure:"attack_curve"` // blend or additive
	AttackRate         float64       `mapstructure:"attack_rate"`
	AttackStep         float64       `mapstructure:"attack_step"`
	SustainDecay       float64       `mapstructure:"sustain_decay"`
	ReleaseDecay       float64       `mapstructure:"release_decay"`
	MinPhonemeDuration time.Duration `mapstructure:"min_phoneme_duration"`
	NeutralFade        time.Duration `mapstructure:"neutral_fade"`
	DurationScale      float64       `mapstructure:"duration_scale"`
	ProgressHold       float64       `mapstructure:"progress_hold"`
	FrameRate          int           `mapstructure:"frame_rate"`
}

// AudioConfig configures playback
type AudioConfig struct {
	SampleRate int           `mapstructure:"sample_rate"`
	Channels   int           `mapstructure:"channels"`
	BufferSize time.Duration `mapstructure:"buffer_size"`
	Mute       bool          `mapstructure:"mute"` // follow a virtual clock instead of the sound device
}

// AssetsConfig locates the timing script, audio and face model
type AssetsConfig struct {
	TimingFile   string `mapstructure:"timing_file"`
	AudioDir     string `mapstructure:"audio_dir"` // <utterance>.wav
	ModelPath    string `mapstructure:"model_path"`
	FramesGlob   string `mapstructure:"frames_glob"`
	MorphTargets int    `mapstructure:"morph_targets"` // placeholder mesh size when no model is set
}

// StreamConfig configures the WebSocket weight stream
type StreamConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// LogConfig configures logging
type LogConfig struct {
	Dir     string `mapstructure:"dir"`
	Level   string `mapstructure:"level"`
	Console bool   `mapstructure:"console"`
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() *Config {
	core := lipsync.DefaultConfig()
	dir, _ := GetConfigDir()
	return &Config{
		Lipsync: LipsyncConfig{
			TimestampScale:     core.TimestampScale,
			AttackFraction:     core.AttackFraction,
			AttackCurve:        string(core.AttackCurve),
			AttackRate:         float64(core.AttackRate),
			AttackStep:         float64(core.AttackStep),
			SustainDecay:       float64(core.SustainDecay),
			ReleaseDecay:       float64(core.ReleaseDecay),
			MinPhonemeDuration: core.MinPhonemeDuration,
			NeutralFade:        core.NeutralFade,
			DurationScale:      core.DurationScale,
			ProgressHold:       core.ProgressHold,
			FrameRate:          core.FrameRate,
		},
		Audio: AudioConfig{
			SampleRate: 44100,
			Channels:   1,
			BufferSize: 50 * time.Millisecond,
		},
		Assets: AssetsConfig{
			TimingFile:   "data/word_phonemes.json",
			AudioDir:     "audio",
			MorphTargets: 16,
		},
		Stream: StreamConfig{
			Addr: "127.0.0.1:8765",
		},
		Log: LogConfig{
			Dir:     filepath.Join(dir, "logs"),
			Level:   string(logging.LevelInfo),
			Console: true,
		},
	}
}

// Core converts the section into the lip-sync core configuration.
func (c LipsyncConfig) Core() lipsync.Config {
	return lipsync.Config{
		TimestampScale:     c.TimestampScale,
		AttackFraction:     c.AttackFraction,
		AttackCurve:        lipsync.AttackCurve(strings.ToLower(c.AttackCurve)),
		AttackRate:         float32(c.AttackRate),
		AttackStep:         float32(c.AttackStep),
		SustainDecay:       float32(c.SustainDecay),
		ReleaseDecay:       float32(c.ReleaseDecay),
		MinPhonemeDuration: c.MinPhonemeDuration,
		NeutralFade:        c.NeutralFade,
		DurationScale:      c.DurationScale,
		ProgressHold:       c.ProgressHold,
		FrameRate:          c.FrameRate,
	}
}

// Logging converts the section into the logger configuration.
func (c LogConfig) Logging() *logging.Config {
	return &logging.Config{
		LogDir:  c.Dir,
		Level:   logging.LogLevel(c.Level),
		Console: c.Console,
	}
}

// settings flattens cfg into viper keys. Durations are written as strings so
// saved files stay readable.
func settings(cfg *Config) map[string]any {
	return map[string]any{
		"lipsync.timestamp_scale":      cfg.Lipsync.TimestampScale,
		"lipsync.attack_fraction":      cfg.Lipsync.AttackFraction,
		"lipsync.attack_curve":         cfg.Lipsync.AttackCurve,
		"lipsync.attack_rate":          cfg.Lipsync.AttackRate,
		"lipsync.attack_step":          cfg.Lipsync.AttackStep,
		"lipsync.sustain_decay":        cfg.Lipsync.SustainDecay,
		"lipsync.release_decay":        cfg.Lipsync.ReleaseDecay,
		"lipsync.min_phoneme_duration": cfg.Lipsync.MinPhonemeDuration.String(),
		"lipsync.neutral_fade":         cfg.Lipsync.NeutralFade.String(),
		"lipsync.duration_scale":       cfg.Lipsync.DurationScale,
		"lipsync.progress_hold":        cfg.Lipsync.ProgressHold,
		"lipsync.frame_rate":           cfg.Lipsync.FrameRate,

		"audio.sample_rate": cfg.Audio.SampleRate,
		"audio.channels":    cfg.Audio.Channels,
		"audio.buffer_size": cfg.Audio.BufferSize.String(),
		"audio.mute":        cfg.Audio.Mute,

		"assets.timing_file":   cfg.Assets.TimingFile,
		"assets.audio_dir":     cfg.Assets.AudioDir,
		"assets.model_path":    cfg.Assets.ModelPath,
		"assets.frames_glob":   cfg.Assets.FramesGlob,
		"assets.morph_targets": cfg.Assets.MorphTargets,

		"stream.enabled": cfg.Stream.Enabled,
		"stream.addr":    cfg.Stream.Addr,

		"log.dir":     cfg.Log.Dir,
		"log.level":   cfg.Log.Level,
		"log.console": cfg.Log.Console,
	}
}

func newViper() *viper.Viper {
	v := viper.New()
	for key, value := range settings(DefaultConfig()) {
		v.SetDefault(key, value)
	}
	v.SetConfigType("yaml")

	// Environment variable overrides
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads configuration from path, or from talkinghead.yaml in the working
// directory or the config directory when path is empty. A missing default file
// is not an error; a missing explicit path is.
func Load(path string) (*Config, error) {
	v := newViper()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("talkinghead")
		v.AddConfigPath(".")
		if dir, err := GetConfigDir(); err == nil {
			v.AddConfigPath(dir)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration to path as YAML
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	v := viper.New()
	for key, value := range settings(cfg) {
		v.Set(key, value)
	}
	return v.WriteConfigAs(path)
}

// GetConfigDir returns the configuration directory path
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".talkinghead"), nil
}
