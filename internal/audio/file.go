// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/go-audio/riff"
	"github.com/go-audio/wav"

	"spectrum/internal/config"
	applog "spectrum/internal/log"
)

const (
	pcm16Scale        = 32767
	wavFormatExtended = 0xFFFE
	extensibleFmtSize = 26 // Base fmt, cbSize, valid bits, channel mask, GUID format code.
	minClipDuration   = 0.0001 // Seconds; keeps the time modulus non-zero.
)

// Clip is a fully decoded mono signal.
type Clip struct {
	samples  []float32
	rate     uint32
	duration float64
}

// NewClip wraps mono samples recorded at rate Hz.
func NewClip(samples []float32, rate uint32) *Clip {
	c := &Clip{samples: samples, rate: rate}
	if rate > 0 {
		c.duration = float64(len(samples)) / float64(rate)
	}
	return c
}

// Samples returns the decoded signal. Callers must not modify it.
func (c *Clip) Samples() []float32 { return c.samples }

// SampleRate returns the clip rate in Hz.
func (c *Clip) SampleRate() uint32 { return c.rate }

// Duration returns the clip length in seconds.
func (c *Clip) Duration() float64 { return c.duration }

// LoadWAV decodes a whole 16-bit PCM WAV file with one or two channels.
// Failures are reported as *StartError wrapping ErrFileOpen or
// ErrUnsupportedFormat; nothing is partially loaded.
func LoadWAV(path string) (*Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, startError(config.SourceWAV, "open "+path, ErrFileOpen, err)
	}
	defer f.Close()

	clip, err := DecodeWAV(f)
	if err != nil {
		sentinel := ErrFileOpen
		if errors.Is(err, ErrUnsupportedFormat) {
			sentinel = ErrUnsupportedFormat
		}
		se := startError(config.SourceWAV, "decode "+path, sentinel, err)
		if sentinel == ErrUnsupportedFormat {
			se.Hint = "Convert the file to 16-bit PCM, e.g. ffmpeg -i in.wav -c:a pcm_s16le out.wav"
		}
		return nil, se
	}

	applog.Infof("wav: %s, %.1fs at %d Hz", path, clip.duration, clip.rate)
	return clip, nil
}

// DecodeWAV reads a WAV stream into a mono clip. Samples are scaled by
// 1/32767 and stereo frames are averaged; a trailing partial frame is
// dropped.
func DecodeWAV(r io.ReadSeeker) (*Clip, error) {
	dec := wav.NewDecoder(r)
	dec.ReadInfo()
	if err := dec.Err(); err != nil {
		return nil, fmt.Errorf("%w: not a readable WAV file: %w", ErrUnsupportedFormat, err)
	}
	if dec.NumChans == 0 {
		return nil, fmt.Errorf("%w: missing fmt chunk", ErrUnsupportedFormat)
	}
	format := dec.WavAudioFormat
	if format == wavFormatExtended {
		sub, err := extensibleSubFormat(r)
		if err != nil {
			return nil, fmt.Errorf("%w: unreadable extensible fmt chunk: %w", ErrUnsupportedFormat, err)
		}
		format = sub
	}
	if format != wavFormatPCM {
		return nil, fmt.Errorf("%w: audio format %d is not integer PCM", ErrUnsupportedFormat, format)
	}
	if dec.BitDepth != 16 {
		return nil, fmt.Errorf("%w: %d-bit samples, only 16-bit is supported", ErrUnsupportedFormat, dec.BitDepth)
	}
	if dec.NumChans > 2 {
		return nil, fmt.Errorf("%w: %d channels, only mono and stereo are supported", ErrUnsupportedFormat, dec.NumChans)
	}
	if dec.SampleRate == 0 {
		return nil, fmt.Errorf("%w: zero sample rate", ErrUnsupportedFormat)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to read PCM data: %w", err)
	}
	if buf == nil {
		return nil, fmt.Errorf("failed to read PCM data: no data chunk")
	}

	channels := int(dec.NumChans)
	frames := len(buf.Data) / channels
	samples := make([]float32, frames)
	switch channels {
	case 1:
		for i := range samples {
			samples[i] = float32(buf.Data[i]) / pcm16Scale
		}
	case 2:
		for i := range samples {
			l := float32(buf.Data[2*i]) / pcm16Scale
			r := float32(buf.Data[2*i+1]) / pcm16Scale
			samples[i] = (l + r) * 0.5
		}
	}

	return NewClip(samples, dec.SampleRate), nil
}

// extensibleSubFormat returns the format code at the start of the SubFormat
// GUID of a WAVE_FORMAT_EXTENSIBLE fmt chunk. The read position of r is
// restored before returning.
func extensibleSubFormat(r io.ReadSeeker) (uint16, error) {
	pos, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	defer r.Seek(pos, io.SeekStart)

	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}
	p := riff.New(r)
	if err := p.ParseHeaders(); err != nil {
		return 0, err
	}
	for {
		ch, err := p.NextChunk()
		if err != nil {
			return 0, err
		}
		if ch.ID != riff.FmtID {
			ch.Drain()
			continue
		}
		if ch.Size < extensibleFmtSize {
			return 0, fmt.Errorf("fmt chunk is %d bytes", ch.Size)
		}
		var ext struct {
			Base        [16]byte
			CbSize      uint16
			ValidBits   uint16
			ChannelMask uint32
			SubFormat   uint16
		}
		if err := ch.ReadLE(&ext); err != nil {
			return 0, err
		}
		return ext.SubFormat, nil
	}
}

// WindowAt writes len(out) samples centered on time t. Time wraps at the
// clip duration and sample indices wrap at the clip length, so any t
// yields a full window. An empty clip yields silence.
func (c *Clip) WindowAt(t float64, out []float32) {
	n := len(c.samples)
	if n == 0 {
		clear(out)
		return
	}

	dur := max(c.duration, minClipDuration)
	tm := math.Mod(t, dur)
	switch {
	case math.IsNaN(tm):
		tm = 0
	case tm < 0:
		tm += dur
	}

	center := int(math.Round(tm * float64(c.rate)))
	idx := (center - len(out)/2) % n
	if idx < 0 {
		idx += n
	}
	for i := range out {
		out[i] = c.samples[idx]
		idx++
		if idx == n {
			idx = 0
		}
	}
}

// FileSource analyzes a decoded clip at the position given by a clock.
type FileSource struct {
	clip  *Clip
	clock Clock
	sink  Sink
}

// NewFileSource reads windows from clip at the time reported by clock.
func NewFileSource(clip *Clip, clock Clock) *FileSource {
	return &FileSource{clip: clip, clock: clock}
}

// OpenFile loads cfg.Source.Path and, when cfg.Audio.Playback is set,
// plays it in a loop through the configured output. The analysis follows
// the playback sample clock; without playback it follows the wall clock.
func OpenFile(cfg *config.Config) (*FileSource, error) {
	clip, err := LoadWAV(cfg.Source.Path)
	if err != nil {
		return nil, err
	}

	if !cfg.Audio.Playback {
		return NewFileSource(clip, NewWallClock()), nil
	}

	sink, err := openSinkFunc(sinkOptions(cfg, int(clip.rate)))
	if err != nil {
		return nil, startError(config.SourceWAV, "open output device", ErrOutputDevice, err)
	}

	playback := NewPlayback(clip)
	if err := sink.Start(playback); err != nil {
		sink.Close()
		return nil, startError(config.SourceWAV, "start playback", ErrOutputDevice, err)
	}

	src := NewFileSource(clip, playback)
	src.sink = sink
	return src, nil
}

// FillWindow writes the window centered on the current clock time.
func (f *FileSource) FillWindow(out []float32) {
	f.clip.WindowAt(f.clock.Elapsed(), out)
}

// SampleRate is the clip rate.
func (f *FileSource) SampleRate() uint32 { return f.clip.rate }

// Clip returns the decoded file.
func (f *FileSource) Clip() *Clip { return f.clip }

// Close stops playback.
func (f *FileSource) Close() error {
	if f.sink == nil {
		return nil
	}
	sink := f.sink
	f.sink = nil
	return sink.Close()
}
