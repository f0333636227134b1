// SPDX-License-Identifier: MIT
package audio

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingPuller yields 1, 2, 3, ... across pulls.
type countingPuller struct{ next float32 }

func (p *countingPuller) Pull(out []float32) {
	for i := range out {
		p.next++
		out[i] = p.next
	}
}

func TestOpenSinkRejectsBadOptions(t *testing.T) {
	_, err := OpenSink(SinkOptions{Backend: "alsa", SampleRate: 44100})
	assert.ErrorContains(t, err, "unknown output backend")

	_, err = OpenSink(SinkOptions{Backend: "portaudio"})
	assert.ErrorContains(t, err, "invalid output sample rate")
}

func TestPortAudioSinkStereoDuplicates(t *testing.T) {
	devices := fakeDevices(t)
	streams := fakeStreams(t, nil)

	sink, err := OpenSink(SinkOptions{Backend: "portaudio", DeviceID: -1, SampleRate: 48000, FramesPerBuffer: 4})
	require.NoError(t, err)
	require.NoError(t, sink.Start(&countingPuller{}))
	require.Len(t, *streams, 1)

	stream := (*streams)[0]
	assert.True(t, stream.started)
	assert.Same(t, devices[1], stream.params.Output.Device)
	assert.Equal(t, 2, stream.params.Output.Channels)
	assert.Equal(t, 0, stream.params.Input.Channels)
	assert.Equal(t, 48000.0, stream.params.SampleRate)

	callback, ok := stream.callback.(func([]float32))
	require.True(t, ok)

	// More frames than the scratch buffer holds are pulled in chunks.
	frames := minSinkChunk + 3
	out := make([]float32, 2*frames)
	callback(out)
	for i := range frames {
		assert.Equal(t, float32(i+1), out[2*i])
		assert.Equal(t, float32(i+1), out[2*i+1])
	}

	assert.Error(t, sink.Start(&countingPuller{}))
	require.NoError(t, sink.Close())
	assert.True(t, stream.stopped)
	assert.True(t, stream.closed)
	require.NoError(t, sink.Close())
}

func TestPortAudioSinkRequiresOutput(t *testing.T) {
	fakeDevices(t)
	_, err := OpenSink(SinkOptions{Backend: "portaudio", DeviceID: 0, SampleRate: 48000})
	assert.ErrorContains(t, err, "does not support output")
}

func TestPullReaderEncodesFloat32LE(t *testing.T) {
	r := newPullReader(&countingPuller{}, 4)

	buf := make([]byte, 26) // Room for 6 samples, the scratch holds 4.
	n, err := r.Read(buf)
	require.NoError(t, err)
	require.Equal(t, 16, n)
	for i := range 4 {
		got := math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
		assert.Equal(t, float32(i+1), got)
	}

	n, err = r.Read(make([]byte, 3))
	assert.NoError(t, err)
	assert.Zero(t, n)
}

func TestSinkOptionsFromConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Audio.OutputBackend = "oto"
	cfg.Audio.OutputDevice = 3
	cfg.Audio.LowLatency = true

	opts := sinkOptions(cfg, 22050)
	assert.Equal(t, SinkOptions{
		Backend:         "oto",
		DeviceID:        3,
		SampleRate:      22050,
		FramesPerBuffer: cfg.Audio.FramesPerBuffer,
		LowLatency:      true,
	}, opts)
}
