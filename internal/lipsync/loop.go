package lipsync

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/talkinghead/internal/avatar3d"
)

// RenderFrame is what a renderer sees once per frame. Weights is the live
// array; renderers that keep it past Render must Clone it.
type RenderFrame struct {
	Seq       uint64
	Time      time.Duration
	State     State
	SessionID string
	Weights   avatar3d.MorphWeights
}

// Renderer consumes the morph weights after the animator has stepped.
type Renderer interface {
	Render(RenderFrame) error
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(RenderFrame) error

func (f RendererFunc) Render(fr RenderFrame) error { return f(fr) }

const pendingEvents = 64

// Loop is the cooperative frame cycle: drain edge events, sample, step,
// render. Everything except Post runs on the goroutine that calls Frame or Run.
type Loop struct {
	sync      *Synchronizer
	interval  time.Duration
	logger    zerolog.Logger
	metrics   *Metrics
	renderers []Renderer

	pending chan func()
	seq     uint64
}

// NewLoop creates a loop ticking at cfg's frame rate.
func NewLoop(cfg Config, sync *Synchronizer, metrics *Metrics, logger zerolog.Logger, renderers ...Renderer) *Loop {
	cfg = cfg.withDefaults()
	return &Loop{
		sync:      sync,
		interval:  cfg.FrameInterval(),
		logger:    logger.With().Str("component", "loop").Logger(),
		metrics:   metrics,
		renderers: renderers,
		pending:   make(chan func(), pendingEvents),
	}
}

// AddRenderer appends r to the render chain. Call it before Run.
func (l *Loop) AddRenderer(r Renderer) {
	l.renderers = append(l.renderers, r)
}

// Post queues fn to run at the start of the next frame. Safe to call from any
// goroutine; audio callbacks use it to deliver edges.
func (l *Loop) Post(fn func()) {
	select {
	case l.pending <- fn:
	default:
		l.logger.Warn().Msg("Event queue full, dropping event")
	}
}

func (l *Loop) NotifyPlay()  { l.Post(l.sync.OnPlay) }
func (l *Loop) NotifyEnded() { l.Post(l.sync.OnEnded) }

// Frame runs one cycle at animation time now.
func (l *Loop) Frame(now time.Duration) {
	l.drain()
	l.sync.Sample()
	l.sync.animator.Step(now)

	l.seq++
	l.metrics.frame()

	s := l.sync.Session()
	if s == nil {
		return
	}
	fr := RenderFrame{
		Seq:       l.seq,
		Time:      now,
		State:     l.sync.State(),
		SessionID: s.ID,
		Weights:   s.Weights,
	}
	for _, r := range l.renderers {
		if err := r.Render(fr); err != nil {
			l.logger.Warn().Err(err).Uint64("seq", fr.Seq).Msg("Renderer failed")
		}
	}
}

// Run ticks frames until the session is done or ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	origin := time.Now()
	l.logger.Debug().Dur("interval", l.interval).Msg("Frame loop started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t := <-ticker.C:
			l.Frame(t.Sub(origin))
			if l.sync.Done() {
				l.logger.Debug().Uint64("frames", l.seq).Msg("Frame loop finished")
				return nil
			}
		}
	}
}

func (l *Loop) drain() {
	for {
		select {
		case fn := <-l.pending:
			fn()
		default:
			return
		}
	}
}
