// Package app wires the lip-sync core to its collaborators: mesh, audio
// transport, timing feed and weight stream.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/normanking/talkinghead/internal/audio"
	"github.com/normanking/talkinghead/internal/audio/device"
	"github.com/normanking/talkinghead/internal/avatar3d"
	"github.com/normanking/talkinghead/internal/bus"
	"github.com/normanking/talkinghead/internal/config"
	"github.com/normanking/talkinghead/internal/feed"
	"github.com/normanking/talkinghead/internal/lipsync"
	"github.com/normanking/talkinghead/internal/stream"
)

// silenceTail keeps a muted run going briefly past the last window so the
// final fade is visible.
const silenceTail = 300 * time.Millisecond

// App holds one configured pipeline. Play may be called repeatedly but not
// concurrently.
type App struct {
	cfg    *config.Config
	core   lipsync.Config
	logger zerolog.Logger

	registry *prometheus.Registry
	metrics  *lipsync.Metrics
	events   *bus.EventBus

	classifier *lipsync.Classifier
	mapper     *lipsync.WeightMapper
	sync       *lipsync.Synchronizer
	loop       *lipsync.Loop

	mesh *avatar3d.Mesh
	hub  *stream.Hub

	mu     sync.RWMutex
	script *feed.Script
	device *device.Device
}

func New(cfg *config.Config, logger zerolog.Logger) *App {
	core := cfg.Lipsync.Core()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	metrics := lipsync.NewMetrics(registry)
	events := bus.NewEventBus()

	classifier := lipsync.NewClassifier(nil, logger, metrics)
	mapper := lipsync.NewWeightMapper(nil)
	animator := lipsync.NewAnimator(core, logger, metrics)
	synchronizer := lipsync.NewSynchronizer(core, animator, classifier, mapper, metrics, logger)
	synchronizer.SetPublisher(events)

	return &App{
		cfg:        cfg,
		core:       core,
		logger:     logger.With().Str("component", "app").Logger(),
		registry:   registry,
		metrics:    metrics,
		events:     events,
		classifier: classifier,
		mapper:     mapper,
		sync:       synchronizer,
		loop:       lipsync.NewLoop(core, synchronizer, metrics, logger),
	}
}

// Registry gathers the pipeline's metrics for the stream server.
func (a *App) Registry() *prometheus.Registry { return a.registry }

func (a *App) Events() *bus.EventBus             { return a.events }
func (a *App) Classifier() *lipsync.Classifier   { return a.classifier }
func (a *App) Mapper() *lipsync.WeightMapper     { return a.mapper }
func (a *App) Synchronizer() *lipsync.Synchronizer { return a.sync }
func (a *App) Mesh() *avatar3d.Mesh              { return a.mesh }
func (a *App) AddRenderer(r lipsync.Renderer)    { a.loop.AddRenderer(r) }
func (a *App) TimestampScale() float64           { return a.core.TimestampScale }

// Script returns the most recently loaded timing script.
func (a *App) Script() *feed.Script {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.script
}

func (a *App) setScript(s *feed.Script) {
	a.mu.Lock()
	a.script = s
	a.mu.Unlock()
}

// Close disconnects stream clients and drops event subscriptions.
func (a *App) Close() {
	if a.hub != nil {
		a.hub.Close()
	}
	a.events.Clear()
}

func (a *App) post(session *lipsync.Session, fn func()) {
	a.loop.Post(func() {
		if a.sync.Session() == session {
			fn()
		}
	})
}

// LoadMesh picks the face: a glTF model, an OBJ frame sequence, or a
// geometry-less placeholder with the configured number of channels.
func (a *App) LoadMesh() (*avatar3d.Mesh, error) {
	assets := a.cfg.Assets
	var (
		mesh *avatar3d.Mesh
		err  error
	)
	switch {
	case assets.ModelPath != "":
		mesh, err = avatar3d.LoadMesh(assets.ModelPath)
	case assets.FramesGlob != "":
		var frames []avatar3d.Frame
		frames, err = avatar3d.LoadFrames(assets.FramesGlob)
		if err == nil {
			mesh, err = avatar3d.FuseFrames("capture", frames)
		}
	default:
		mesh = avatar3d.NewPlaceholderMesh(assets.MorphTargets)
	}
	if err != nil {
		return nil, fmt.Errorf("load mesh: %w", err)
	}

	a.mesh = mesh
	if len(mesh.BaseVertices) > 0 {
		a.loop.AddRenderer(lipsync.RendererFunc(func(fr lipsync.RenderFrame) error {
			mesh.Deform(fr.Weights)
			return nil
		}))
	}
	a.logger.Info().
		Str("mesh", mesh.Name).
		Int("vertices", len(mesh.BaseVertices)).
		Int("morph_targets", len(mesh.MorphTargets)).
		Msg("Mesh ready")
	return mesh, nil
}

// EnableStream attaches a WebSocket hub to the frame loop.
func (a *App) EnableStream() *stream.Hub {
	if a.hub == nil {
		a.hub = stream.NewHub(a.logger)
		a.hub.SetPublisher(a.events)
		a.loop.AddRenderer(a.hub)
	}
	return a.hub
}

// LoadScript reads the configured timing script.
func (a *App) LoadScript() (*feed.Script, error) {
	s, err := feed.Load(a.cfg.Assets.TimingFile)
	if err != nil {
		return nil, err
	}
	a.setScript(s)
	return s, nil
}

// Reload swaps in a new script. The current utterance keeps its table.
// It runs on the watcher goroutine, so subscribers are waited for.
func (a *App) Reload(s *feed.Script) {
	a.setScript(s)
	a.events.PublishSync(bus.Event{
		Type: bus.EventTypeTimingReloaded,
		Data: map[string]any{"utterances": s.Names()},
	})
}

// Transport chooses how an utterance is heard. Muted runs, and runs without
// a matching WAV file, follow a virtual clock.
func (a *App) Transport(utterance string, table lipsync.TimingTable) (audio.Transport, error) {
	virtual := time.Duration(table.Duration(a.core.TimestampScale)*float64(time.Millisecond)) + silenceTail

	path := filepath.Join(a.cfg.Assets.AudioDir, utterance+".wav")
	pcm, err := audio.ReadWAVFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		a.logger.Info().Str("path", path).Msg("No audio for utterance, using virtual clock")
		return audio.NewVirtualTransport(virtual), nil
	case err != nil:
		return nil, fmt.Errorf("load audio: %w", err)
	}

	if a.cfg.Audio.Mute {
		return audio.NewVirtualTransport(pcm.Duration()), nil
	}

	// The oto context is process-wide, so the device is opened once with the
	// configured format and every utterance must match it.
	if a.device == nil {
		d, err := device.Open(a.cfg.Audio.SampleRate, a.cfg.Audio.Channels, a.cfg.Audio.BufferSize, a.logger)
		if err != nil {
			return nil, err
		}
		a.device = d
	}
	return a.device.NewPlayer(pcm)
}

// Play runs one utterance to completion: start the session, start the
// transport, tick frames until the face has settled.
func (a *App) Play(ctx context.Context, utterance string, table lipsync.TimingTable, transport audio.Transport) error {
	if a.mesh == nil {
		return errors.New("no mesh loaded")
	}
	weights := a.mesh.Influences

	session := a.sync.Start(utterance, table, transport, weights)
	// Edges can still be queued after the loop has returned, so each one is
	// tied to the session of the transport that raised it.
	transport.OnPlay(func() { a.post(session, a.sync.OnPlay) })
	transport.OnEnd(func() { a.post(session, a.sync.OnEnded) })

	if channels := a.mesh.EmotionChannels(avatar3d.ParseEmotion(utterance)); len(channels) > 0 {
		a.sync.Animator().Express(weights, channels, avatar3d.EmotionHold)
	}

	if err := transport.Play(); err != nil {
		return fmt.Errorf("start playback: %w", err)
	}
	defer func() {
		if c, ok := transport.(io.Closer); ok {
			_ = c.Close()
			return
		}
		_ = transport.Stop()
	}()

	err := a.loop.Run(ctx)
	if s := a.sync.Session(); s != nil {
		a.logger.Info().
			Str("session", s.ID).
			Str("utterance", utterance).
			Str("state", a.sync.State().String()).
			Msg("Utterance finished")
	}
	return err
}
