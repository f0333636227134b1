// SPDX-License-Identifier: MIT
package audio

import (
	"sync/atomic"
	"time"
)

// Clock reports the playback position in seconds.
type Clock interface {
	Elapsed() float64
}

// WallClock measures time since it was created.
type WallClock struct {
	start time.Time
	now   func() time.Time
}

// NewWallClock starts a clock at the current time.
func NewWallClock() *WallClock {
	return &WallClock{start: time.Now(), now: time.Now}
}

// Elapsed returns the seconds since NewWallClock.
func (c *WallClock) Elapsed() float64 {
	return c.now().Sub(c.start).Seconds()
}

// Playback loops a clip into an output sink. Its clock counts the samples
// handed to the device, so the analysis follows what is being played
// rather than wall time.
type Playback struct {
	clip   *Clip
	pulled atomic.Uint64
}

// Compile-time check for interface implementation.
var (
	_ Puller = (*Playback)(nil)
	_ Clock  = (*Playback)(nil)
)

// NewPlayback starts at the beginning of clip.
func NewPlayback(clip *Clip) *Playback {
	return &Playback{clip: clip}
}

// Pull fills out with the next samples of the clip, wrapping at the end.
// It runs on the output device thread and does not allocate.
func (p *Playback) Pull(out []float32) {
	samples := p.clip.samples
	n := len(samples)
	if n == 0 {
		clear(out)
		return
	}

	pos := int(p.pulled.Load() % uint64(n))
	for i := 0; i < len(out); {
		c := copy(out[i:], samples[pos:])
		i += c
		pos = 0
	}
	p.pulled.Add(uint64(len(out)))
}

// Elapsed returns the playback position in seconds.
func (p *Playback) Elapsed() float64 {
	if p.clip.rate == 0 {
		return 0
	}
	return float64(p.pulled.Load()) / float64(p.clip.rate)
}

// Loops returns how many times the clip has wrapped.
func (p *Playback) Loops() uint64 {
	n := uint64(len(p.clip.samples))
	if n == 0 {
		return 0
	}
	return p.pulled.Load() / n
}
