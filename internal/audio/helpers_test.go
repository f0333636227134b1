// SPDX-License-Identifier: MIT
package audio

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/gordonklaus/portaudio"
	"github.com/stretchr/testify/require"

	"spectrum/internal/config"
)

const (
	testSampleRate = 44100
	testFFTSize    = 256
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Analysis.FFTSize = testFFTSize
	cfg.Analysis.Bars = 16
	return cfg
}

// fakeStream stands in for a PortAudio stream and keeps the callback.
type fakeStream struct {
	callback any
	params   portaudio.StreamParameters
	startErr error
	started  bool
	stopped  bool
	closed   bool
}

func (s *fakeStream) Start() error {
	if s.startErr != nil {
		return s.startErr
	}
	s.started = true
	return nil
}

func (s *fakeStream) Stop() error  { s.stopped = true; return nil }
func (s *fakeStream) Close() error { s.closed = true; return nil }

// fakeStreams replaces openStreamFunc. openErr, when set, fails the open.
func fakeStreams(t *testing.T, openErr error) *[]*fakeStream {
	t.Helper()
	var opened []*fakeStream
	orig := openStreamFunc
	t.Cleanup(func() { openStreamFunc = orig })
	openStreamFunc = func(p portaudio.StreamParameters, callback any) (paStream, error) {
		if openErr != nil {
			return nil, openErr
		}
		s := &fakeStream{callback: callback, params: p}
		opened = append(opened, s)
		return s, nil
	}
	return &opened
}

// fakeSink captures the Puller so tests can play the device side by hand.
type fakeSink struct {
	mu       sync.Mutex
	puller   Puller
	opts     SinkOptions
	startErr error
	closed   bool
}

func (s *fakeSink) Start(p Puller) error {
	if s.startErr != nil {
		return s.startErr
	}
	s.mu.Lock()
	s.puller = p
	s.mu.Unlock()
	return nil
}

func (s *fakeSink) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *fakeSink) Pull(out []float32) {
	s.mu.Lock()
	p := s.puller
	s.mu.Unlock()
	p.Pull(out)
}

func (s *fakeSink) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func installFakeSink(t *testing.T, sink *fakeSink, openErr error) {
	t.Helper()
	orig := openSinkFunc
	t.Cleanup(func() { openSinkFunc = orig })
	openSinkFunc = func(opts SinkOptions) (Sink, error) {
		if openErr != nil {
			return nil, openErr
		}
		sink.opts = opts
		return sink, nil
	}
}

// writeWAV encodes interleaved 16-bit samples with go-audio/wav.
func writeWAV(t *testing.T, data []int, rate, channels int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.wav")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	enc := wav.NewEncoder(f, rate, 16, channels, wavFormatPCM)
	require.NoError(t, enc.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: rate},
		SourceBitDepth: 16,
		Data:           data,
	}))
	require.NoError(t, enc.Close())
	return path
}

// rawWAV builds a canonical WAV file byte by byte, for layouts the encoder
// will not produce.
func rawWAV(format, channels uint16, rate uint32, bits uint16, data []byte) []byte {
	var b bytes.Buffer
	le := func(v any) { binary.Write(&b, binary.LittleEndian, v) }

	b.WriteString("RIFF")
	le(uint32(36 + len(data)))
	b.WriteString("WAVE")
	b.WriteString("fmt ")
	le(uint32(16))
	le(format)
	le(channels)
	le(rate)
	blockAlign := channels * bits / 8
	le(rate * uint32(blockAlign))
	le(blockAlign)
	le(bits)
	b.WriteString("data")
	le(uint32(len(data)))
	b.Write(data)
	return b.Bytes()
}

// rawExtensibleWAV builds a WAVE_FORMAT_EXTENSIBLE file whose SubFormat GUID
// starts with subFormat.
func rawExtensibleWAV(subFormat, channels uint16, rate uint32, bits uint16, data []byte) []byte {
	var b bytes.Buffer
	le := func(v any) { binary.Write(&b, binary.LittleEndian, v) }

	b.WriteString("RIFF")
	le(uint32(4 + 8 + 40 + 8 + len(data)))
	b.WriteString("WAVE")
	b.WriteString("fmt ")
	le(uint32(40))
	le(uint16(wavFormatExtended))
	le(channels)
	le(rate)
	blockAlign := channels * bits / 8
	le(rate * uint32(blockAlign))
	le(blockAlign)
	le(bits)
	le(uint16(22)) // cbSize
	le(bits)       // valid bits per sample
	le(uint32(0))  // channel mask
	le(subFormat)
	b.Write([]byte{0x00, 0x00, 0x00, 0x00, 0x10, 0x00, 0x80, 0x00, 0x00, 0xAA, 0x00, 0x38, 0x9B, 0x71})
	b.WriteString("data")
	le(uint32(len(data)))
	b.Write(data)
	return b.Bytes()
}

func int16Bytes(samples ...int16) []byte {
	var b bytes.Buffer
	binary.Write(&b, binary.LittleEndian, samples)
	return b.Bytes()
}

func f32leBytes(samples ...float32) []byte {
	var b bytes.Buffer
	binary.Write(&b, binary.LittleEndian, samples)
	return b.Bytes()
}
