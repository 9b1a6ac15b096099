// Package audio provides the playback clock the lip-sync core follows and the
// transports that drive it.
package audio

import (
	"errors"
	"sync"
	"time"
)

var (
	ErrAlreadyPlaying = errors.New("transport already playing")
	ErrNoAudio        = errors.New("no audio loaded")
)

// Clock is the read-only view of playback the synchronizer polls.
type Clock interface {
	Position() time.Duration
	Playing() bool
}

// Transport is a playable audio source with edge notifications. Callbacks may
// fire on any goroutine.
type Transport interface {
	Clock
	Play() error
	Stop() error
	Duration() time.Duration
	OnPlay(func())
	OnEnd(func())
}

// ManualClock is set by hand. Not safe for concurrent use.
type ManualClock struct {
	pos     time.Duration
	playing bool
}

func NewManualClock() *ManualClock {
	return &ManualClock{}
}

func (c *ManualClock) Position() time.Duration { return c.pos }
func (c *ManualClock) Playing() bool           { return c.playing }

func (c *ManualClock) Set(pos time.Duration, playing bool) {
	c.pos = pos
	c.playing = playing
}

func (c *ManualClock) Seek(pos time.Duration) {
	c.pos = pos
}

func (c *ManualClock) Advance(d time.Duration) {
	c.pos += d
}

func (c *ManualClock) SetPlaying(playing bool) {
	c.playing = playing
}

// VirtualTransport plays silence for a fixed duration on the wall clock. It
// stands in for a sound device when running muted.
type VirtualTransport struct {
	mu       sync.RWMutex
	duration time.Duration
	started  time.Time
	playing  bool
	stopped  time.Duration
	timer    *time.Timer
	now      func() time.Time

	onPlay []func()
	onEnd  []func()
}

func NewVirtualTransport(duration time.Duration) *VirtualTransport {
	return &VirtualTransport{duration: duration, now: time.Now}
}

func (v *VirtualTransport) OnPlay(fn func()) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.onPlay = append(v.onPlay, fn)
}

func (v *VirtualTransport) OnEnd(fn func()) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.onEnd = append(v.onEnd, fn)
}

func (v *VirtualTransport) Duration() time.Duration {
	return v.duration
}

func (v *VirtualTransport) Play() error {
	v.mu.Lock()
	if v.playing {
		v.mu.Unlock()
		return ErrAlreadyPlaying
	}
	if v.duration <= 0 {
		v.mu.Unlock()
		return ErrNoAudio
	}
	v.started = v.now()
	v.playing = true
	v.timer = time.AfterFunc(v.duration, v.finish)
	callbacks := append([]func(){}, v.onPlay...)
	v.mu.Unlock()

	for _, fn := range callbacks {
		fn()
	}
	return nil
}

func (v *VirtualTransport) Stop() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.playing {
		return nil
	}
	if v.timer != nil {
		v.timer.Stop()
	}
	v.stopped = v.positionLocked()
	v.playing = false
	return nil
}

func (v *VirtualTransport) Position() time.Duration {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if !v.playing {
		return v.stopped
	}
	return v.positionLocked()
}

func (v *VirtualTransport) Playing() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.playing
}

func (v *VirtualTransport) positionLocked() time.Duration {
	pos := v.now().Sub(v.started)
	if pos > v.duration {
		pos = v.duration
	}
	return pos
}

func (v *VirtualTransport) finish() {
	v.mu.Lock()
	if !v.playing {
		v.mu.Unlock()
		return
	}
	v.playing = false
	v.stopped = v.duration
	callbacks := append([]func(){}, v.onEnd...)
	v.mu.Unlock()

	for _, fn := range callbacks {
		fn()
	}
}
