// SPDX-License-Identifier: MIT
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/gordonklaus/portaudio"

	"spectrum/internal/config"
	applog "spectrum/internal/log"
)

const (
	minSinkChunk  = 256
	otoBufferTime = 50 * time.Millisecond
)

// Puller supplies mono samples to an output device. Pull runs on the
// device thread and must not block.
type Puller interface {
	Pull(out []float32)
}

// Sink plays samples pulled from a Puller.
type Sink interface {
	Start(p Puller) error
	Close() error
}

// SinkOptions selects and configures an output backend.
type SinkOptions struct {
	Backend         string // config.BackendPortAudio or config.BackendOto.
	DeviceID        int    // PortAudio output device, -1 for the default.
	SampleRate      int
	FramesPerBuffer int
	LowLatency      bool
}

func sinkOptions(cfg *config.Config, sampleRate int) SinkOptions {
	return SinkOptions{
		Backend:         cfg.Audio.OutputBackend,
		DeviceID:        cfg.Audio.OutputDevice,
		SampleRate:      sampleRate,
		FramesPerBuffer: cfg.Audio.FramesPerBuffer,
		LowLatency:      cfg.Audio.LowLatency,
	}
}

var openSinkFunc = OpenSink

// OpenSink opens the output described by opts without starting it.
func OpenSink(opts SinkOptions) (Sink, error) {
	if opts.SampleRate <= 0 {
		return nil, fmt.Errorf("invalid output sample rate %d", opts.SampleRate)
	}
	switch opts.Backend {
	case config.BackendPortAudio, "":
		return newPortAudioSink(opts)
	case config.BackendOto:
		return newOtoSink(opts)
	default:
		return nil, fmt.Errorf("unknown output backend %q", opts.Backend)
	}
}

// portaudioSink plays through a PortAudio output stream, duplicating the
// mono signal onto every output channel.
type portaudioSink struct {
	device   *portaudio.DeviceInfo
	opts     SinkOptions
	channels int
	latency  time.Duration

	puller Puller
	mono   []float32 // Scratch for one pull, allocated before the stream starts.
	stream paStream
}

func newPortAudioSink(opts SinkOptions) (*portaudioSink, error) {
	device, err := OutputDevice(opts.DeviceID)
	if err != nil {
		return nil, err
	}
	if device == nil || device.MaxOutputChannels < 1 {
		return nil, errors.New("no output device")
	}

	latency := device.DefaultHighOutputLatency
	if opts.LowLatency {
		latency = device.DefaultLowOutputLatency
	}

	return &portaudioSink{
		device:   device,
		opts:     opts,
		channels: min(2, device.MaxOutputChannels),
		latency:  latency,
		mono:     make([]float32, max(opts.FramesPerBuffer, minSinkChunk)),
	}, nil
}

func (s *portaudioSink) Start(p Puller) error {
	if s.stream != nil {
		return errors.New("output stream already started")
	}
	s.puller = p

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Channels: 0, // No input device
			Device:   nil,
		},
		Output: portaudio.StreamDeviceParameters{
			Device:   s.device,
			Channels: s.channels,
			Latency:  s.latency,
		},
		SampleRate:      float64(s.opts.SampleRate),
		FramesPerBuffer: s.opts.FramesPerBuffer,
	}

	stream, err := openStreamFunc(params, s.process)
	if err != nil {
		return fmt.Errorf("failed to open output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("failed to start output stream: %w", err)
	}
	s.stream = stream

	applog.Infof("playback: %s, %d channel(s) at %d Hz", s.device.Name, s.channels, s.opts.SampleRate)
	return nil
}

// process is the PortAudio output callback. It pulls in chunks no larger
// than the scratch buffer so it never allocates.
func (s *portaudioSink) process(out []float32) {
	ch := s.channels
	if ch == 1 {
		s.puller.Pull(out)
		return
	}

	frames := len(out) / ch
	for off := 0; off < frames; {
		n := min(frames-off, len(s.mono))
		chunk := s.mono[:n]
		s.puller.Pull(chunk)
		for i, v := range chunk {
			frame := out[(off+i)*ch : (off+i+1)*ch]
			for c := range frame {
				frame[c] = v
			}
		}
		off += n
	}
}

func (s *portaudioSink) Close() error {
	if s.stream == nil {
		return nil
	}
	stream := s.stream
	s.stream = nil

	var errs []error
	if err := stream.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop output stream: %w", err))
	}
	if err := stream.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close output stream: %w", err))
	}
	return errors.Join(errs...)
}

// The oto context is process-wide and fixes the sample rate for its
// lifetime.
var (
	otoOnce sync.Once
	otoCtx  *oto.Context
	otoRate int
	otoErr  error
)

func otoContext(rate int) (*oto.Context, error) {
	otoOnce.Do(func() {
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   rate,
			ChannelCount: 1,
			Format:       oto.FormatFloat32LE,
			BufferSize:   otoBufferTime,
		})
		if err != nil {
			otoErr = fmt.Errorf("failed to create oto context: %w", err)
			return
		}
		<-ready
		otoCtx, otoRate = ctx, rate
	})
	if otoErr != nil {
		return nil, otoErr
	}
	if otoRate != rate {
		return nil, fmt.Errorf("oto context already running at %d Hz, cannot play %d Hz", otoRate, rate)
	}
	return otoCtx, nil
}

// otoSink plays through the oto player, which reads little-endian float32
// bytes from a pullReader.
type otoSink struct {
	opts   SinkOptions
	ctx    *oto.Context
	player *oto.Player
}

func newOtoSink(opts SinkOptions) (*otoSink, error) {
	ctx, err := otoContext(opts.SampleRate)
	if err != nil {
		return nil, err
	}
	return &otoSink{opts: opts, ctx: ctx}, nil
}

func (s *otoSink) Start(p Puller) error {
	if s.player != nil {
		return errors.New("oto player already started")
	}
	chunk := max(s.opts.FramesPerBuffer, minSinkChunk)
	s.player = s.ctx.NewPlayer(newPullReader(p, chunk))
	s.player.SetBufferSize(chunk * 4 * 4)
	s.player.Play()

	applog.Infof("playback: oto at %d Hz", s.opts.SampleRate)
	return nil
}

func (s *otoSink) Close() error {
	if s.player == nil {
		return nil
	}
	player := s.player
	s.player = nil
	if err := player.Err(); err != nil {
		applog.Warnf("playback: oto player: %v", err)
	}
	return player.Close()
}

// pullReader adapts a Puller to io.Reader as float32 little-endian PCM.
// It never reports EOF; the player is stopped by closing it.
type pullReader struct {
	p       Puller
	scratch []float32
}

func newPullReader(p Puller, chunk int) *pullReader {
	return &pullReader{p: p, scratch: make([]float32, chunk)}
}

func (r *pullReader) Read(b []byte) (int, error) {
	n := min(len(b)/4, len(r.scratch))
	if n == 0 {
		return 0, nil
	}
	samples := r.scratch[:n]
	r.p.Pull(samples)
	for i, v := range samples {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(v))
	}
	return 4 * n, nil
}
