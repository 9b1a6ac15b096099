package lipsync

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/normanking/talkinghead/internal/audio"
	"github.com/normanking/talkinghead/internal/avatar3d"
	"github.com/normanking/talkinghead/internal/bus"
)

// State is the synchronizer's position in the playback lifecycle.
type State int

const (
	StateIdle State = iota
	StatePlaying
	StateWindowActive
	StateNeutral
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlaying:
		return "playing"
	case StateWindowActive:
		return "window_active"
	case StateNeutral:
		return "neutral"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Publisher receives synchronizer transitions. *bus.EventBus satisfies it.
type Publisher interface {
	Publish(bus.Event)
}

// Session is the per-utterance memory of the synchronizer.
type Session struct {
	ID        string
	Utterance string
	Table     TimingTable
	Clock     audio.Clock
	Weights   avatar3d.MorphWeights

	lastActiveKey string
	hasActive     bool
	lastProgress  float64
	progress      float64
	activeIndex   int
	ended         bool
}

// ActiveIndex is the table index of the last triggered window, or -1.
func (s *Session) ActiveIndex() int {
	if !s.hasActive {
		return -1
	}
	return s.activeIndex
}

func (s *Session) Progress() float64 { return s.progress }
func (s *Session) Ended() bool       { return s.ended }

// Synchronizer follows an audio clock through a timing table and asks the
// animator for visemes as windows become active. Sample must be called once per
// frame from the frame loop; it is not safe for concurrent use.
type Synchronizer struct {
	cfg        Config
	animator   *Animator
	classifier *Classifier
	mapper     *WeightMapper
	metrics    *Metrics
	logger     zerolog.Logger
	events     Publisher

	session *Session
	state   State
}

// NewSynchronizer wires the pipeline stages. Missing tunables take defaults.
func NewSynchronizer(cfg Config, animator *Animator, classifier *Classifier, mapper *WeightMapper, metrics *Metrics, logger zerolog.Logger) *Synchronizer {
	return &Synchronizer{
		cfg:        cfg.withDefaults(),
		animator:   animator,
		classifier: classifier,
		mapper:     mapper,
		metrics:    metrics,
		logger:     logger.With().Str("component", "synchronizer").Logger(),
		state:      StateIdle,
	}
}

// SetPublisher routes lifecycle events to p. A nil publisher drops them.
func (sy *Synchronizer) SetPublisher(p Publisher) {
	sy.events = p
}

func (sy *Synchronizer) State() State        { return sy.state }
func (sy *Synchronizer) Session() *Session   { return sy.session }
func (sy *Synchronizer) Animator() *Animator { return sy.animator }

// Start begins a new utterance. Any in-flight tween is cancelled and the
// weights return to neutral before the first sample.
func (sy *Synchronizer) Start(utterance string, table TimingTable, clock audio.Clock, weights avatar3d.MorphWeights) *Session {
	sy.animator.Reset(weights)

	sy.session = &Session{
		ID:          uuid.NewString(),
		Utterance:   utterance,
		Table:       table,
		Clock:       clock,
		Weights:     weights,
		activeIndex: -1,
	}

	if len(table) == 0 {
		sy.logger.Warn().Err(ErrEmptyTimingTable).Str("utterance", utterance).Msg("Utterance will stay neutral")
	}

	sy.setState(StateIdle)
	sy.publish(bus.EventTypeUtteranceStarted, map[string]any{
		"utterance": utterance,
		"windows":   len(table),
	})
	sy.logger.Info().
		Str("session", sy.session.ID).
		Str("utterance", utterance).
		Int("windows", len(table)).
		Msg("Utterance started")
	return sy.session
}

// OnPlay is the playback-started edge. Sampling begins on the next frame.
func (sy *Synchronizer) OnPlay() {
	s := sy.session
	if s == nil || s.ended {
		return
	}
	if sy.state != StateIdle && sy.state != StateStopped {
		return
	}
	sy.setState(StatePlaying)
	sy.publish(bus.EventTypePlaybackStarted, nil)
}

// OnEnded is the playback-ended edge: fade quickly to neutral and close the
// session regardless of where the frame cycle is.
func (sy *Synchronizer) OnEnded() {
	s := sy.session
	if s == nil || s.ended {
		return
	}
	sy.animator.FadeToNeutral(s.Weights, sy.cfg.NeutralFade)
	s.ended = true
	s.hasActive = false
	s.lastActiveKey = ""
	sy.setState(StateStopped)
	sy.publish(bus.EventTypePlaybackEnded, nil)
	sy.logger.Info().Str("session", s.ID).Msg("Playback ended")
}

// Done reports that the session has stopped and the animator has settled.
func (sy *Synchronizer) Done() bool {
	return sy.session != nil && sy.state == StateStopped && !sy.animator.Active()
}

// Sample reads the clock once and updates the animation target.
func (sy *Synchronizer) Sample() {
	s := sy.session
	if s == nil || sy.state == StateIdle || sy.state == StateStopped {
		return
	}

	if s.Clock == nil || !s.Clock.Playing() {
		sy.stop()
		return
	}

	scale := sy.cfg.TimestampScale
	pos := float64(s.Clock.Position()) / float64(time.Millisecond)

	idx, ok := s.Table.Active(pos, scale)
	if !ok {
		if s.hasActive {
			sy.logger.Debug().Err(ErrClockDesync).Float64("position_ms", pos).Msg("Returning to neutral")
			sy.animator.FadeToNeutral(s.Weights, sy.cfg.NeutralFade)
			s.hasActive = false
			s.lastActiveKey = ""
			sy.publish(bus.EventTypeNeutral, map[string]any{"position_ms": pos})
		}
		sy.setState(StateNeutral)
		return
	}

	w := s.Table[idx]
	start, end := w.Span(scale)

	progress := s.lastProgress
	if end > start {
		progress = (pos - start) / (end - start)
		progress = min(max(progress, s.lastProgress*sy.cfg.ProgressHold), 1)
	}

	if key := w.Key(); !s.hasActive || key != s.lastActiveKey {
		visemes := sy.classifier.ClassifyAll(w.Symbols)
		targets := sy.mapper.Union(visemes...)
		duration := sy.phonemeDuration(w, start, end)

		// A window first seen at its end boundary has nothing left to animate,
		// unless it has zero length and runs for the minimum duration instead.
		if end > pos || end == start {
			sy.animator.Animate(s.Weights, targets, duration)
			sy.metrics.phonemeTrigger()
			sy.publish(bus.EventTypeWindowActivated, map[string]any{
				"index":       idx,
				"symbols":     key,
				"targets":     []int(targets),
				"duration_ms": duration.Milliseconds(),
			})
		}

		s.lastActiveKey = key
		s.hasActive = true
		s.lastProgress = progress
		s.activeIndex = idx
	}
	s.progress = progress
	sy.setState(StateWindowActive)
}

// phonemeDuration spreads the window over its symbols. Degenerate windows use
// the configured minimum.
func (sy *Synchronizer) phonemeDuration(w TimingWindow, startMs, endMs float64) time.Duration {
	if endMs <= startMs || len(w.Symbols) == 0 {
		sy.logger.Debug().
			Err(ErrDegenerateWindow).
			Float64("start", w.Start).
			Float64("end", w.End).
			Msg("Using minimum phoneme duration")
		return sy.cfg.MinPhonemeDuration
	}
	perSymbol := (endMs - startMs) / float64(len(w.Symbols)) * sy.cfg.DurationScale
	return time.Duration(perSymbol * float64(time.Millisecond))
}

func (sy *Synchronizer) stop() {
	s := sy.session
	sy.animator.Reset(s.Weights)
	s.hasActive = false
	s.lastActiveKey = ""
	sy.setState(StateStopped)
	sy.publish(bus.EventTypeStopped, nil)
	sy.logger.Debug().Str("session", s.ID).Msg("Clock stopped, neutral pose forced")
}

func (sy *Synchronizer) setState(next State) {
	if next == sy.state {
		return
	}
	prev := sy.state
	sy.state = next
	sy.metrics.state(prev, next)
	sy.publish(bus.EventTypeStateChanged, map[string]any{
		"from": prev.String(),
		"to":   next.String(),
	})
}

func (sy *Synchronizer) publish(t bus.EventType, data map[string]any) {
	if sy.events == nil {
		return
	}
	if data == nil {
		data = map[string]any{}
	}
	if sy.session != nil {
		data["session"] = sy.session.ID
	}
	sy.events.Publish(bus.Event{Type: t, Data: data})
}
