package lipsync

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the lip-sync counters. A nil *Metrics records nothing.
type Metrics struct {
	Frames             prometheus.Counter
	PhonemeTriggers    prometheus.Counter
	ClassifierFallback prometheus.Counter
	NeutralResets      *prometheus.CounterVec
	State              *prometheus.GaugeVec
}

// NewMetrics registers the collectors on reg. Pass prometheus.NewRegistry()
// in tests to keep them isolated.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Frames: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "talkinghead_frames_total",
			Help: "Animation frames ticked",
		}),
		PhonemeTriggers: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "talkinghead_phoneme_triggers_total",
			Help: "Timing windows that started a viseme tween",
		}),
		ClassifierFallback: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "talkinghead_classifier_fallbacks_total",
			Help: "Symbols classified by nearest match",
		}),
		NeutralResets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "talkinghead_neutral_resets_total",
			Help: "Returns to the neutral pose",
		}, []string{"reason"}),
		State: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "talkinghead_synchronizer_state",
			Help: "1 for the current synchronizer state",
		}, []string{"state"}),
	}
	if reg != nil {
		reg.MustRegister(m.Frames, m.PhonemeTriggers, m.ClassifierFallback, m.NeutralResets, m.State)
	}
	return m
}

func (m *Metrics) frame() {
	if m != nil {
		m.Frames.Inc()
	}
}

func (m *Metrics) phonemeTrigger() {
	if m != nil {
		m.PhonemeTriggers.Inc()
	}
}

func (m *Metrics) classifierFallback() {
	if m != nil {
		m.ClassifierFallback.Inc()
	}
}

func (m *Metrics) neutralReset(reason string) {
	if m != nil {
		m.NeutralResets.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) state(from, to State) {
	if m == nil {
		return
	}
	m.State.WithLabelValues(from.String()).Set(0)
	m.State.WithLabelValues(to.String()).Set(1)
}
