package lipsync

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/talkinghead/internal/avatar3d"
)

type tweenKind string

const (
	tweenPhoneme tweenKind = "phoneme"
	tweenNeutral tweenKind = "neutral"
)

// tween is a two-phase attack/release transition. It starts on the first
// animator step after it was scheduled.
type tween struct {
	kind     tweenKind
	weights  avatar3d.MorphWeights
	targets  ChannelSet
	attack   time.Duration
	duration time.Duration
	start    time.Duration
	started  bool
}

// expression is a one-shot emotion pulse. Its channels are written to full
// weight once; after that only tweens touch them.
type expression struct {
	weights  avatar3d.MorphWeights
	channels []int
	hold     time.Duration
	start    time.Duration
	applied  bool
}

// Animator is the only writer of a mesh's morph weights. Scheduling calls
// return immediately; weights change only in Step, which the frame loop
// calls once per frame with the shared animation clock. At most one tween is
// in flight: scheduling a new one replaces the previous one.
type Animator struct {
	cfg     Config
	logger  zerolog.Logger
	metrics *Metrics

	current *tween
	expr    *expression
	now     time.Duration

	warnedMissing bool
}

// NewAnimator creates an animator with cfg's tunables, defaults filled in.
func NewAnimator(cfg Config, logger zerolog.Logger, metrics *Metrics) *Animator {
	return &Animator{
		cfg:     cfg.withDefaults(),
		logger:  logger.With().Str("component", "animator").Logger(),
		metrics: metrics,
	}
}

// Animate schedules an attack toward targets followed by a release to
// neutral, spread over duration.
func (a *Animator) Animate(weights avatar3d.MorphWeights, targets ChannelSet, duration time.Duration) {
	if !a.usable(weights) {
		return
	}
	if duration < 0 {
		duration = 0
	}

	inRange := make(ChannelSet, 0, len(targets))
	for _, ch := range targets {
		if weights.InRange(ch) {
			inRange = append(inRange, ch)
		}
	}
	if len(inRange) < len(targets) {
		a.logger.Debug().
			Ints("targets", targets).
			Int("channels", weights.Len()).
			Msg("Skipping target channels outside the morph array")
	}

	a.schedule(&tween{
		kind:     tweenPhoneme,
		weights:  weights,
		targets:  inRange,
		attack:   time.Duration(float64(duration) * a.cfg.AttackFraction),
		duration: duration,
	})
}

// FadeToNeutral releases every channel over duration and ends on exact zero.
// A pending emotion pulse is dropped; whatever it already wrote fades too.
func (a *Animator) FadeToNeutral(weights avatar3d.MorphWeights, duration time.Duration) {
	if !a.usable(weights) {
		return
	}
	if duration <= 0 {
		duration = a.cfg.NeutralFade
	}
	a.expr = nil
	a.schedule(&tween{
		kind:     tweenNeutral,
		weights:  weights,
		duration: duration,
	})
}

// Reset cancels everything in flight and forces the neutral pose now.
func (a *Animator) Reset(weights avatar3d.MorphWeights) {
	a.current = nil
	a.expr = nil
	if !a.usable(weights) {
		return
	}
	weights.Reset()
	a.metrics.neutralReset("reset")
}

// Cancel drops the in-flight tween and expression, leaving weights as they are.
func (a *Animator) Cancel() {
	a.current = nil
	a.expr = nil
}

// Express pulses channels to full weight on the next step. A running tween
// decays them like any other channel. If no tween is in flight once hold has
// passed, the channels are dropped to zero.
func (a *Animator) Express(weights avatar3d.MorphWeights, channels []int, hold time.Duration) {
	if !a.usable(weights) || len(channels) == 0 {
		return
	}
	valid := make([]int, 0, len(channels))
	for _, ch := range channels {
		if weights.InRange(ch) {
			valid = append(valid, ch)
		}
	}
	if len(valid) == 0 {
		return
	}
	a.expr = &expression{weights: weights, channels: valid, hold: hold}
}

// Active reports whether a tween or expression is still running.
func (a *Animator) Active() bool {
	return a.current != nil || a.expr != nil
}

// Now is the animation clock as of the last Step.
func (a *Animator) Now() time.Duration {
	return a.now
}

// Step applies a pending emotion pulse, then advances the in-flight tween to
// now.
func (a *Animator) Step(now time.Duration) {
	a.now = now

	if e := a.expr; e != nil && !e.applied {
		for _, ch := range e.channels {
			e.weights[ch] = 1
		}
		e.start = now
		e.applied = true
	}

	if t := a.current; t != nil {
		if !t.started {
			t.start = now
			t.started = true
		}
		elapsed := now - t.start

		switch {
		case elapsed >= t.duration:
			t.weights.Reset()
			a.current = nil
			a.expr = nil
			if t.kind == tweenNeutral {
				a.metrics.neutralReset("fade")
			}
		case elapsed < t.attack:
			a.attackStep(t)
		default:
			a.releaseStep(t)
		}
	}

	if e := a.expr; e != nil && now-e.start >= e.hold {
		if a.current == nil {
			for _, ch := range e.channels {
				e.weights[ch] = 0
			}
		}
		a.expr = nil
	}
}

func (a *Animator) attackStep(t *tween) {
	w := t.weights
	for i := range w {
		if t.targets.Contains(i) {
			w[i] = a.raise(w[i])
		} else {
			w[i] = clampWeight(w[i] * a.cfg.SustainDecay)
		}
	}
}

func (a *Animator) releaseStep(t *tween) {
	w := t.weights
	for i := range w {
		w[i] = clampWeight(w[i] * a.cfg.ReleaseDecay)
	}
}

func (a *Animator) raise(v float32) float32 {
	switch a.cfg.AttackCurve {
	case CurveAdditive:
		return clampWeight(v + a.cfg.AttackStep)
	default:
		return clampWeight(v*(1-a.cfg.AttackRate) + a.cfg.AttackRate)
	}
}

func (a *Animator) schedule(t *tween) {
	if a.current != nil {
		a.logger.Debug().
			Str("replaced", string(a.current.kind)).
			Str("by", string(t.kind)).
			Msg("Replacing in-flight tween")
	}
	a.current = t
}

func (a *Animator) usable(weights avatar3d.MorphWeights) bool {
	if weights.Len() > 0 {
		return true
	}
	if !a.warnedMissing {
		a.logger.Warn().Err(ErrMissingMorphTargets).Msg("Animation request ignored")
		a.warnedMissing = true
	}
	return false
}

func clampWeight(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
