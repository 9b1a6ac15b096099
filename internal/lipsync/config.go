package lipsync

import "time"

// TimestampScale converts timing-table units to audio clock milliseconds. The
// timing feed stores centiseconds, so one unit is ten milliseconds.
const TimestampScale = 10.0

// ProgressHold is the fraction of the previous progress value that a new
// sample may not fall below, which hides small backward seeks.
const ProgressHold = 0.85

// AttackCurve selects how target channels rise during a tween's attack.
type AttackCurve string

const (
	// CurveBlend eases each target channel toward 1 by AttackRate of the
	// remaining distance every step.
	CurveBlend AttackCurve = "blend"
	// CurveAdditive raises each target channel by AttackStep every step.
	CurveAdditive AttackCurve = "additive"
)

// Config holds the animator and synchronizer tunables.
type Config struct {
	TimestampScale     float64
	AttackFraction     float64
	AttackCurve        AttackCurve
	AttackRate         float32
	AttackStep         float32
	SustainDecay       float32 // non-target channels during attack
	ReleaseDecay       float32 // all channels during release
	MinPhonemeDuration time.Duration
	NeutralFade        time.Duration
	DurationScale      float64
	ProgressHold       float64
	FrameRate          int
}

// DefaultConfig returns the stock tunables.
func DefaultConfig() Config {
	return Config{
		TimestampScale:     TimestampScale,
		AttackFraction:     0.8,
		AttackCurve:        CurveBlend,
		AttackRate:         0.2,
		AttackStep:         0.1,
		SustainDecay:       0.2,
		ReleaseDecay:       0.6,
		MinPhonemeDuration: 50 * time.Millisecond,
		NeutralFade:        200 * time.Millisecond,
		DurationScale:      1.0,
		ProgressHold:       ProgressHold,
		FrameRate:          60,
	}
}

// withDefaults replaces zero and out-of-range values with defaults.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.TimestampScale <= 0 {
		c.TimestampScale = d.TimestampScale
	}
	if c.AttackFraction <= 0 || c.AttackFraction >= 1 {
		c.AttackFraction = d.AttackFraction
	}
	if c.AttackCurve != CurveBlend && c.AttackCurve != CurveAdditive {
		c.AttackCurve = d.AttackCurve
	}
	if c.AttackRate <= 0 || c.AttackRate > 1 {
		c.AttackRate = d.AttackRate
	}
	if c.AttackStep <= 0 || c.AttackStep > 1 {
		c.AttackStep = d.AttackStep
	}
	if c.SustainDecay <= 0 || c.SustainDecay >= 1 {
		c.SustainDecay = d.SustainDecay
	}
	if c.ReleaseDecay <= 0 || c.ReleaseDecay >= 1 {
		c.ReleaseDecay = d.ReleaseDecay
	}
	if c.MinPhonemeDuration <= 0 {
		c.MinPhonemeDuration = d.MinPhonemeDuration
	}
	if c.NeutralFade <= 0 {
		c.NeutralFade = d.NeutralFade
	}
	if c.DurationScale <= 0 {
		c.DurationScale = d.DurationScale
	}
	if c.ProgressHold <= 0 || c.ProgressHold >= 1 {
		c.ProgressHold = d.ProgressHold
	}
	if c.FrameRate <= 0 {
		c.FrameRate = d.FrameRate
	}
	return c
}

// FrameInterval is the tick period of the frame loop.
func (c Config) FrameInterval() time.Duration {
	c = c.withDefaults()
	return time.Second / time.Duration(c.FrameRate)
}
