// SPDX-License-Identifier: MIT
package audio

import (
	"bytes"
	"context"
	"errors"
	"io"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spectrum/internal/ring"
)

func TestDecodeArgs(t *testing.T) {
	args := decodeArgs("/tmp/dl/audio.m4a", 44100)

	for _, tok := range []string{"-re", "-i", "/tmp/dl/audio.m4a", "-vn", "-f", "f32le", "-ac", "1", "-ar", "44100", "pipe:1"} {
		assert.Contains(t, args, tok)
	}
	assert.Less(t, slices.Index(args, "-re"), slices.Index(args, "-i"), "input options precede the input")
	assert.Equal(t, "/tmp/dl/audio.m4a", args[slices.Index(args, "-i")+1])
	assert.Equal(t, "f32le", args[slices.Index(args, "-f")+1])
	assert.Less(t, slices.Index(args, "-i"), slices.Index(args, "pipe:1"))
}

func TestPumpPCM(t *testing.T) {
	prod, cons := ring.New(16)
	data := append(f32leBytes(0.5, -0.25, 1), 0x01, 0x02) // Trailing partial sample.

	n, err := pumpPCM(context.Background(), bytes.NewReader(data), prod, time.Millisecond, time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	out := make([]float32, 8)
	got := cons.PopSlice(out)
	assert.Equal(t, []float32{0.5, -0.25, 1}, out[:got])
}

func TestPumpPCMBackpressure(t *testing.T) {
	prod, cons := ring.New(2)
	samples := []float32{1, 2, 3, 4, 5, 6, 7}

	var received []float32
	done := make(chan struct{})
	go func() {
		defer close(done)
		for len(received) < len(samples) {
			if s, ok := cons.TryPop(); ok {
				received = append(received, s)
				continue
			}
			time.Sleep(time.Millisecond)
		}
	}()

	n, err := pumpPCM(context.Background(), bytes.NewReader(f32leBytes(samples...)), prod, 100*time.Microsecond, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(len(samples)), n)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not receive every sample")
	}
	assert.Equal(t, samples, received)
}

func TestPumpPCMStall(t *testing.T) {
	prod, _ := ring.New(1)

	start := time.Now()
	n, err := pumpPCM(context.Background(), bytes.NewReader(f32leBytes(1, 2, 3)), prod, time.Millisecond, 30*time.Millisecond)
	assert.ErrorIs(t, err, ErrPlaybackStalled)
	assert.Equal(t, int64(1), n)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestPumpPCMCancelledWhileBlocked(t *testing.T) {
	prod, _ := ring.New(1)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := pumpPCM(ctx, bytes.NewReader(f32leBytes(1, 2)), prod, time.Millisecond, 0)
	assert.ErrorIs(t, err, context.Canceled)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("pipe broke") }

func TestPumpPCMReadError(t *testing.T) {
	prod, _ := ring.New(4)
	pushed, err := pumpPCM(context.Background(), io.MultiReader(bytes.NewReader(f32leBytes(1)), failingReader{}), prod, time.Millisecond, 0)
	require.NoError(t, err, "a failed read ends the stream")
	assert.Equal(t, int64(1), pushed)
}
