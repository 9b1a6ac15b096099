// Package device plays PCM through the system sound output and exposes the
// playback position as an audio.Transport.
package device

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/rs/zerolog"

	"github.com/normanking/talkinghead/internal/audio"
)

var ErrFormatMismatch = errors.New("pcm format differs from the open device")

const pollInterval = 10 * time.Millisecond

// Device owns the process-wide oto context. Only one may be opened.
type Device struct {
	ctx        *oto.Context
	sampleRate int
	channels   int
	logger     zerolog.Logger
}

func Open(sampleRate, channels int, bufferSize time.Duration, logger zerolog.Logger) (*Device, error) {
	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   bufferSize,
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("failed to create oto context: %w", err)
	}
	<-ready

	return &Device{
		ctx:        ctx,
		sampleRate: sampleRate,
		channels:   channels,
		logger:     logger.With().Str("component", "audio_device").Logger(),
	}, nil
}

// NewPlayer prepares pcm for playback on the device.
func (d *Device) NewPlayer(pcm *audio.PCM) (*Player, error) {
	if pcm == nil || len(pcm.Data) == 0 {
		return nil, audio.ErrNoAudio
	}
	if pcm.SampleRate != d.sampleRate || pcm.Channels != d.channels || pcm.BitsPerSample != 16 {
		return nil, fmt.Errorf("%w: got %d Hz x%d, device is %d Hz x%d",
			ErrFormatMismatch, pcm.SampleRate, pcm.Channels, d.sampleRate, d.channels)
	}
	return &Player{device: d, pcm: pcm, logger: d.logger}, nil
}

// countingReader records how many bytes oto has pulled from the stream.
type countingReader struct {
	r io.Reader
	n atomic.Int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n.Add(int64(n))
	return n, err
}

// Player is one utterance's audio. Position is what the device has actually
// emitted: bytes handed to oto minus what is still buffered.
type Player struct {
	device *Device
	pcm    *audio.PCM
	logger zerolog.Logger

	mu      sync.Mutex
	player  *oto.Player
	reader  *countingReader
	playing atomic.Bool
	stopped time.Duration
	done    chan struct{}

	onPlay []func()
	onEnd  []func()
}

func (p *Player) OnPlay(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onPlay = append(p.onPlay, fn)
}

func (p *Player) OnEnd(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onEnd = append(p.onEnd, fn)
}

func (p *Player) Duration() time.Duration {
	return p.pcm.Duration()
}

func (p *Player) Playing() bool {
	return p.playing.Load()
}

func (p *Player) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.player == nil || !p.playing.Load() {
		return p.stopped
	}
	return p.positionLocked()
}

func (p *Player) positionLocked() time.Duration {
	consumed := p.reader.n.Load() - int64(p.player.BufferedSize())
	if consumed < 0 {
		consumed = 0
	}
	return p.pcm.Offset(consumed)
}

// Play starts from the beginning and fires the play callbacks once the device
// has accepted the stream.
func (p *Player) Play() error {
	p.mu.Lock()
	if p.playing.Load() {
		p.mu.Unlock()
		return audio.ErrAlreadyPlaying
	}
	if p.player != nil {
		p.player.Close()
	}

	p.reader = &countingReader{r: bytes.NewReader(p.pcm.Data)}
	p.player = p.device.ctx.NewPlayer(p.reader)
	p.stopped = 0
	p.done = make(chan struct{})
	p.player.Play()
	p.playing.Store(true)

	callbacks := append([]func(){}, p.onPlay...)
	player, done := p.player, p.done
	p.mu.Unlock()

	go p.watch(player, done)

	p.logger.Debug().Dur("duration", p.pcm.Duration()).Msg("Playback started")
	for _, fn := range callbacks {
		fn()
	}
	return nil
}

func (p *Player) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.playing.Load() {
		return nil
	}
	p.stopped = p.positionLocked()
	p.player.Pause()
	p.playing.Store(false)
	close(p.done)
	return nil
}

func (p *Player) Close() error {
	_ = p.Stop()
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.player == nil {
		return nil
	}
	err := p.player.Close()
	p.player = nil
	return err
}

// watch fires the end callbacks when the device drains the stream on its own.
func (p *Player) watch(player *oto.Player, done chan struct{}) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if player.IsPlaying() {
				continue
			}

			p.mu.Lock()
			if p.done != done || !p.playing.Load() {
				p.mu.Unlock()
				return
			}
			if err := player.Err(); err != nil {
				p.logger.Warn().Err(err).Msg("Playback error")
			}
			p.stopped = p.pcm.Duration()
			p.playing.Store(false)
			close(done)
			callbacks := append([]func(){}, p.onEnd...)
			p.mu.Unlock()

			p.logger.Debug().Msg("Playback finished")
			for _, fn := range callbacks {
				fn()
			}
			return
		}
	}
}

var _ audio.Transport = (*Player)(nil)
