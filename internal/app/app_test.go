package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/talkinghead/internal/audio"
	"github.com/normanking/talkinghead/internal/bus"
	"github.com/normanking/talkinghead/internal/config"
	"github.com/normanking/talkinghead/internal/feed"
	"github.com/normanking/talkinghead/internal/lipsync"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Lipsync.TimestampScale = 1
	cfg.Assets.AudioDir = t.TempDir()
	cfg.Assets.TimingFile = filepath.Join(t.TempDir(), "timing.json")
	return cfg
}

func shortTable() lipsync.TimingTable {
	return lipsync.TimingTable{
		lipsync.NewTimingWindow(0, 60, "AA"),
		lipsync.NewTimingWindow(60, 120, "M"),
	}
}

func writeTone(t *testing.T, path string, samples int) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	pcm := &audio.PCM{SampleRate: 44100, Channels: 1, BitsPerSample: 16, Data: make([]byte, samples*2)}
	require.NoError(t, audio.WriteWAV(f, pcm))
}

func TestLoadMesh_Placeholder(t *testing.T) {
	cfg := testConfig(t)
	cfg.Assets.MorphTargets = 20
	a := New(cfg, zerolog.Nop())

	mesh, err := a.LoadMesh()
	require.NoError(t, err)
	assert.Equal(t, "placeholder", mesh.Name)
	assert.Len(t, mesh.Influences, 20)
	assert.Same(t, mesh, a.Mesh())
}

func TestLoadMesh_Frames(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 3; i++ {
		content := fmt.Sprintf("v 0 0 0\nv 1 %d 0\n", i)
		require.NoError(t, os.WriteFile(filepath.Join(dir, fmt.Sprintf("frame_%d.obj", i)), []byte(content), 0o644))
	}
	cfg := testConfig(t)
	cfg.Assets.FramesGlob = filepath.Join(dir, "*.obj")
	a := New(cfg, zerolog.Nop())

	mesh, err := a.LoadMesh()
	require.NoError(t, err)
	assert.Equal(t, "capture", mesh.Name)
	assert.Len(t, mesh.MorphTargets, 2)
	assert.Len(t, mesh.BaseVertices, 2)
}

func TestLoadMesh_MissingModel(t *testing.T) {
	cfg := testConfig(t)
	cfg.Assets.ModelPath = filepath.Join(t.TempDir(), "face.glb")
	_, err := New(cfg, zerolog.Nop()).LoadMesh()
	assert.Error(t, err)
}

func TestTransport_VirtualWithoutAudio(t *testing.T) {
	a := New(testConfig(t), zerolog.Nop())

	tr, err := a.Transport("hello", shortTable())
	require.NoError(t, err)
	require.IsType(t, &audio.VirtualTransport{}, tr)
	assert.Equal(t, 120*time.Millisecond+silenceTail, tr.Duration())
}

func TestTransport_MutedFollowsWAVLength(t *testing.T) {
	cfg := testConfig(t)
	cfg.Audio.Mute = true
	writeTone(t, filepath.Join(cfg.Assets.AudioDir, "greet.wav"), 4410)
	a := New(cfg, zerolog.Nop())

	tr, err := a.Transport("greet", shortTable())
	require.NoError(t, err)
	require.IsType(t, &audio.VirtualTransport{}, tr)
	assert.Equal(t, 100*time.Millisecond, tr.Duration())
}

func TestTransport_CorruptAudio(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Assets.AudioDir, "bad.wav"), []byte("not a wave file at all"), 0o644))

	_, err := New(cfg, zerolog.Nop()).Transport("bad", shortTable())
	assert.Error(t, err)
}

func TestPlay_RequiresMesh(t *testing.T) {
	a := New(testConfig(t), zerolog.Nop())
	err := a.Play(context.Background(), "hello", shortTable(), audio.NewVirtualTransport(time.Second))
	assert.Error(t, err)
}

func TestPlay_RunsToNeutral(t *testing.T) {
	a := New(testConfig(t), zerolog.Nop())
	mesh, err := a.LoadMesh()
	require.NoError(t, err)

	var activated, stopped atomic.Int32
	a.Events().Subscribe(bus.EventTypeWindowActivated, func(bus.Event) { activated.Add(1) })
	a.Events().Subscribe(bus.EventTypeStopped, func(bus.Event) { stopped.Add(1) })

	var frames atomic.Int32
	a.AddRenderer(lipsync.RendererFunc(func(lipsync.RenderFrame) error {
		frames.Add(1)
		return nil
	}))

	table := shortTable()
	tr, err := a.Transport("hello", table)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, a.Play(ctx, "hello", table, tr))

	assert.Equal(t, lipsync.StateStopped, a.Synchronizer().State())
	for i, w := range mesh.Influences {
		assert.Zero(t, w, "channel %d", i)
	}
	assert.Positive(t, frames.Load())
	assert.Eventually(t, func() bool { return activated.Load() >= 1 && stopped.Load() >= 1 },
		time.Second, 10*time.Millisecond)
}

func TestPlay_Twice(t *testing.T) {
	a := New(testConfig(t), zerolog.Nop())
	_, err := a.LoadMesh()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sessions := make(map[string]bool)
	var mu sync.Mutex
	a.Events().Subscribe(bus.EventTypeWindowActivated, func(e bus.Event) {
		mu.Lock()
		sessions[e.Data["session"].(string)] = true
		mu.Unlock()
	})

	var ids []string
	for i := 0; i < 2; i++ {
		tr := audio.NewVirtualTransport(150 * time.Millisecond)
		require.NoError(t, a.Play(ctx, "hello", shortTable(), tr))
		ids = append(ids, a.Synchronizer().Session().ID)
	}
	require.NotEqual(t, ids[0], ids[1])

	// A stale end edge from the first run must not cut the second one short.
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return sessions[ids[0]] && sessions[ids[1]]
	}, time.Second, 10*time.Millisecond)
}

func TestPlay_Cancelled(t *testing.T) {
	a := New(testConfig(t), zerolog.Nop())
	_, err := a.LoadMesh()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = a.Play(ctx, "hello", shortTable(), audio.NewVirtualTransport(10*time.Second))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestReload_PublishesAndSwaps(t *testing.T) {
	a := New(testConfig(t), zerolog.Nop())

	var got []bus.Event
	a.Events().Subscribe(bus.EventTypeTimingReloaded, func(e bus.Event) { got = append(got, e) })

	s, err := feed.Parse([]byte(`{"hi":[{"start":0,"end":10,"phoneme":"HH AY"}]}`))
	require.NoError(t, err)
	a.Reload(s)

	// Reload waits for subscribers, so the event is already recorded.
	assert.Same(t, s, a.Script())
	require.Len(t, got, 1)
	assert.Equal(t, []string{"hi"}, got[0].Data["utterances"])
}

func TestClose_DropsSubscriptions(t *testing.T) {
	a := New(testConfig(t), zerolog.Nop())
	var calls int
	a.Events().Subscribe(bus.EventTypeTimingReloaded, func(bus.Event) { calls++ })

	a.Close()
	a.Events().PublishSync(bus.Event{Type: bus.EventTypeTimingReloaded})
	assert.Zero(t, calls)
}

func TestLoadScript(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(cfg.Assets.TimingFile,
		[]byte(`[{"start":0,"end":5,"phoneme":"M"}]`), 0o644))
	a := New(cfg, zerolog.Nop())

	s, err := a.LoadScript()
	require.NoError(t, err)
	assert.Equal(t, []string{"default"}, s.Names())
	assert.Same(t, s, a.Script())
}
