// SPDX-License-Identifier: MIT
package audio

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spectrum/internal/config"
	"spectrum/internal/ring"
)

func streamConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := testConfig()
	cfg.Source.Kind = config.SourceURL
	cfg.Source.URL = "  https://example.com/watch\\?v=abc "
	cfg.Stream.FetchTool = "fake-fetch"
	cfg.Stream.DecodeTool = "fake-decode"
	cfg.Stream.TempDir = t.TempDir()
	return cfg
}

func waitDone(t *testing.T, s *StreamSource) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("stream did not finish")
	}
}

func assertDirEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStreamPlaysAndVisualizesSameSamples(t *testing.T) {
	fakeCommands(t)
	sink := &fakeSink{}
	installFakeSink(t, sink, nil)
	cfg := streamConfig(t)

	src, err := OpenStream(context.Background(), cfg)
	require.NoError(t, err)
	defer src.Close()

	assert.Equal(t, uint32(config.DefaultStreamRate), src.SampleRate())
	assert.Equal(t, config.DefaultStreamRate, sink.opts.SampleRate)

	// Before anything is played the window is silent.
	window := make([]float32, testFFTSize)
	src.FillWindow(window)
	assert.Equal(t, make([]float32, testFFTSize), window)

	// The fake decoder exits after writing every sample; the audio ring
	// holds all of them.
	waitDone(t, src)
	require.NoError(t, src.Err())
	assertDirEmpty(t, cfg.Stream.TempDir)

	played := make([]float32, helperSamples+24)
	sink.Pull(played)
	for i := range helperSamples {
		require.Equal(t, helperSample(i), played[i], "sample %d", i)
	}
	assert.Equal(t, make([]float32, 24), played[helperSamples:], "underrun plays silence")
	assert.Equal(t, uint64(24), src.Tap().Underruns())

	// The analysis window holds the newest played samples, in order.
	src.FillWindow(window)
	assert.Equal(t, played[len(played)-testFFTSize:], window)

	require.NoError(t, src.Close())
	assert.True(t, sink.isClosed())
	require.NoError(t, src.Close())
}

func TestStreamCloseStopsDecoder(t *testing.T) {
	fakeCommands(t)
	sink := &fakeSink{}
	installFakeSink(t, sink, nil)
	cfg := streamConfig(t)
	cfg.Stream.DecodeTool = "fake-decode-forever"
	cfg.Stream.BufferSeconds = 0.01
	cfg.Stream.StallTimeout = 0

	src, err := OpenStream(context.Background(), cfg)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- src.Close() }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Close did not return")
	}

	assert.NoError(t, src.Err())
	assert.True(t, sink.isClosed())
	assertDirEmpty(t, cfg.Stream.TempDir)
}

func TestStreamStallEndsStream(t *testing.T) {
	fakeCommands(t)
	installFakeSink(t, &fakeSink{}, nil)
	cfg := streamConfig(t)
	cfg.Stream.DecodeTool = "fake-decode-forever"
	cfg.Stream.BufferSeconds = 0.001
	cfg.Stream.StallTimeout = 50 * time.Millisecond

	src, err := OpenStream(context.Background(), cfg)
	require.NoError(t, err)
	defer src.Close()

	waitDone(t, src)
	assert.ErrorIs(t, src.Err(), ErrPlaybackStalled)
	assertDirEmpty(t, cfg.Stream.TempDir)
}

func TestStreamDecoderReadErrorEndsCleanly(t *testing.T) {
	audioProd, audioCons := ring.New(16)
	vizProd, vizCons := ring.New(16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := &StreamSource{
		rate:   testSampleRate,
		viz:    vizCons,
		window: ring.NewWindow(4),
		tap:    NewTap(audioCons, vizProd),
		cmd:    exec.Command("decoder-not-started"),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	r := io.MultiReader(bytes.NewReader(f32leBytes(0.5)), failingReader{})
	go s.pump(ctx, r, audioProd, time.Millisecond, 0)

	waitDone(t, s)
	assert.NoError(t, s.Err(), "a broken decoder pipe is the end of the stream")
	assert.Equal(t, 1, audioCons.Len())
}

func TestStreamParentContextCancels(t *testing.T) {
	fakeCommands(t)
	installFakeSink(t, &fakeSink{}, nil)
	cfg := streamConfig(t)
	cfg.Stream.DecodeTool = "fake-decode-forever"
	cfg.Stream.BufferSeconds = 0.01
	cfg.Stream.StallTimeout = 0

	ctx, cancel := context.WithCancel(context.Background())
	src, err := OpenStream(ctx, cfg)
	require.NoError(t, err)
	defer src.Close()

	cancel()
	waitDone(t, src)
	assert.NoError(t, src.Err())
}

func TestStreamInterruptedDuringFetch(t *testing.T) {
	fakeCommands(t)
	sink := &fakeSink{}
	installFakeSink(t, sink, nil)
	cfg := streamConfig(t)
	cfg.Stream.FetchTool = "fake-fetch-hang"

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	src, err := OpenStream(ctx, cfg)
	assert.Nil(t, src)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrFetchFailed)
	assert.True(t, sink.isClosed())
	assertDirEmpty(t, cfg.Stream.TempDir)
}

func TestStreamStartupErrors(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(cfg *config.Config)
		sinkErr  error
		sentinel error
	}{
		{"empty url", func(c *config.Config) { c.Source.URL = " \\ " }, nil, ErrFetchFailed},
		{"missing fetch tool", func(c *config.Config) { c.Stream.FetchTool = "missing-tool" }, nil, ErrToolNotFound},
		{"missing decoder", func(c *config.Config) { c.Stream.DecodeTool = "missing-tool" }, nil, ErrToolNotFound},
		{"no output", func(c *config.Config) {}, errors.New("no speakers"), ErrOutputDevice},
		{"fetch fails", func(c *config.Config) { c.Stream.FetchTool = "fake-fetch-fail" }, nil, ErrFetchFailed},
		{"decoder spawn", func(c *config.Config) { c.Stream.DecodeTool = "broken-decoder" }, nil, ErrDecoderSpawn},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fakeCommands(t)
			sink := &fakeSink{}
			installFakeSink(t, sink, tt.sinkErr)
			cfg := streamConfig(t)
			tt.mutate(cfg)

			src, err := OpenStream(context.Background(), cfg)
			assert.Nil(t, src)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.sentinel)

			var se *StartError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, "url", se.Kind)

			assertDirEmpty(t, cfg.Stream.TempDir)
			if sink.opts.SampleRate != 0 {
				assert.True(t, sink.isClosed(), "an opened sink must be closed on failure")
			}
		})
	}
}

func TestStreamSinkStartFailure(t *testing.T) {
	fakeCommands(t)
	sink := &fakeSink{startErr: errors.New("device busy")}
	installFakeSink(t, sink, nil)
	cfg := streamConfig(t)

	_, err := OpenStream(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrOutputDevice)
	assert.True(t, sink.isClosed())
	assertDirEmpty(t, cfg.Stream.TempDir)
}
