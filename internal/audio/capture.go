// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"

	"spectrum/internal/config"
	applog "spectrum/internal/log"
	"spectrum/internal/ring"
)

// captureRingFactor sizes the capture ring in analysis windows.
const captureRingFactor = 8

// paStream is the part of *portaudio.Stream the sources use.
type paStream interface {
	Start() error
	Stop() error
	Close() error
}

var openStreamFunc = func(p portaudio.StreamParameters, callback any) (paStream, error) {
	return portaudio.OpenStream(p, callback)
}

// CaptureSource analyzes live input from a PortAudio device. The callback
// downmixes every interleaved frame to mono and pushes it into a lock-free
// ring; FillWindow drains the ring into a sliding window.
type CaptureSource struct {
	device   *portaudio.DeviceInfo
	stream   paStream
	channels int
	scale    float32 // 1/channels
	rate     uint32

	producer *ring.Producer // Owned by the callback.
	consumer *ring.Consumer // Owned by FillWindow.
	window   *ring.Window
	gate     *Gate

	recorder *Recorder
	record   *ring.Producer // Recorder input, nil when not recording.

	dropped   atomic.Uint64
	closeOnce sync.Once
	closeErr  error
}

func newCaptureSource(rate uint32, channels, fftSize int, silenceLevel float64) *CaptureSource {
	if channels < 1 {
		channels = 1
	}
	producer, consumer := ring.New(captureRingFactor * fftSize)
	return &CaptureSource{
		channels: channels,
		scale:    1 / float32(channels),
		rate:     rate,
		producer: producer,
		consumer: consumer,
		window:   ring.NewWindow(fftSize),
		gate:     NewGate(silenceLevel),
	}
}

// OpenCapture opens and starts the input stream described by cfg.Audio.
// When cfg.Recording.Enabled is set the downmixed input is also written to
// a WAV file.
func OpenCapture(cfg *config.Config) (*CaptureSource, error) {
	device, err := InputDevice(cfg.Audio.InputDevice)
	if err != nil {
		se := startError(config.SourceMic, "select input device", ErrNoInputDevice, err)
		se.Hint = "Run 'spectrum list' to see the available input devices."
		return nil, se
	}
	if device == nil || device.MaxInputChannels < 1 {
		return nil, startError(config.SourceMic, "select input device", ErrNoInputDevice, nil)
	}

	channels := min(cfg.Audio.InputChannels, device.MaxInputChannels)
	rate := cfg.Audio.SampleRate
	if rate == 0 {
		rate = device.DefaultSampleRate
	}
	if rate <= 0 || rate > math.MaxUint32 {
		return nil, startError(config.SourceMic, "select sample rate", ErrUnsupportedFormat,
			fmt.Errorf("device reports %.0f Hz", rate))
	}

	src := newCaptureSource(uint32(rate), channels, cfg.Analysis.FFTSize, cfg.Analysis.SilenceLevel)
	src.device = device

	if cfg.Recording.Enabled {
		src.recorder = NewRecorder(RecordingPath(cfg.Recording, time.Now()), int(rate),
			time.Duration(cfg.Recording.MaxDuration)*time.Second)
		src.record = src.recorder.Producer()
	}

	latency := device.DefaultHighInputLatency
	if cfg.Audio.LowLatency {
		latency = device.DefaultLowInputLatency
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: channels,
			Latency:  latency,
		},
		Output: portaudio.StreamDeviceParameters{
			Channels: 0, // No output device
			Device:   nil,
		},
		SampleRate:      rate,
		FramesPerBuffer: cfg.Audio.FramesPerBuffer,
	}

	stream, err := openStreamFunc(params, src.process)
	if err != nil {
		return nil, startError(config.SourceMic, "open input stream", classifyStreamError(err, ErrNoInputDevice), err)
	}
	src.stream = stream

	if src.recorder != nil {
		if err := src.recorder.Start(); err != nil {
			stream.Close()
			return nil, fmt.Errorf("failed to start recording: %w", err)
		}
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		if src.recorder != nil {
			src.recorder.Stop()
		}
		return nil, startError(config.SourceMic, "start input stream", classifyStreamError(err, ErrNoInputDevice), err)
	}

	applog.Infof("capture: %s, %d channel(s) at %.0f Hz, %.1fms latency",
		device.Name, channels, rate, latency.Seconds()*1000)
	return src, nil
}

// classifyStreamError maps PortAudio failures onto the startup sentinels.
func classifyStreamError(err, fallback error) error {
	var paErr portaudio.Error
	if errors.As(err, &paErr) {
		switch paErr {
		case portaudio.SampleFormatNotSupported, portaudio.InvalidChannelCount, portaudio.InvalidSampleRate:
			return ErrUnsupportedFormat
		}
	}
	return fallback
}

// process is the PortAudio input callback.
// Performance Critical:
//   - Uses pre-allocated buffers only
//   - Never blocks; a full ring drops the sample
func (c *CaptureSource) process(in []float32) {
	c.gate.Observe(in)

	ch := c.channels
	for i := 0; i+ch <= len(in); i += ch {
		var sum float32
		for _, s := range in[i : i+ch] {
			sum += s
		}
		mono := sum * c.scale

		if !c.producer.TryPush(mono) {
			c.dropped.Add(1)
		}
		if c.record != nil {
			c.record.TryPush(mono)
		}
	}
}

// FillWindow drains everything captured since the last call and writes the
// newest len(out) samples.
func (c *CaptureSource) FillWindow(out []float32) {
	c.window.Drain(c.consumer)
	c.window.CopyOut(out)
}

// SampleRate is the capture rate negotiated with the device.
func (c *CaptureSource) SampleRate() uint32 { return c.rate }

// Gate exposes the input level gate.
func (c *CaptureSource) Gate() *Gate { return c.gate }

// Dropped counts samples lost because the analysis side fell behind.
func (c *CaptureSource) Dropped() uint64 { return c.dropped.Load() }

// Recorder returns the active recorder, or nil.
func (c *CaptureSource) Recorder() *Recorder { return c.recorder }

// Close stops the input stream and finalizes any recording.
func (c *CaptureSource) Close() error {
	c.closeOnce.Do(func() {
		var errs []error
		if c.stream != nil {
			if err := c.stream.Stop(); err != nil {
				errs = append(errs, fmt.Errorf("failed to stop input stream: %w", err))
			}
			if err := c.stream.Close(); err != nil {
				errs = append(errs, fmt.Errorf("failed to close input stream: %w", err))
			}
		}
		if c.recorder != nil {
			if err := c.recorder.Stop(); err != nil {
				errs = append(errs, err)
			}
		}
		if n := c.dropped.Load(); n > 0 {
			applog.Debugf("capture: dropped %d samples", n)
		}
		c.closeErr = errors.Join(errs...)
	})
	return c.closeErr
}
