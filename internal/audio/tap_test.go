// SPDX-License-Identifier: MIT
package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"spectrum/internal/ring"
)

func TestTapForwardsPlayedSamples(t *testing.T) {
	audioProd, audioCons := ring.New(16)
	vizProd, vizCons := ring.New(16)
	tap := NewTap(audioCons, vizProd)

	audioProd.PushSlice([]float32{0.1, 0.2, 0.3})

	out := make([]float32, 5)
	tap.Pull(out)
	assert.Equal(t, []float32{0.1, 0.2, 0.3, 0, 0}, out)
	assert.Equal(t, uint64(5), tap.Played())
	assert.Equal(t, uint64(2), tap.Underruns())

	// The visualization ring sees exactly what was played.
	viz := make([]float32, 8)
	n := vizCons.PopSlice(viz)
	assert.Equal(t, out, viz[:n])
}

func TestTapFullVisualizationRingStillPlays(t *testing.T) {
	audioProd, audioCons := ring.New(8)
	vizProd, vizCons := ring.New(2)
	tap := NewTap(audioCons, vizProd)

	audioProd.PushSlice([]float32{1, 2, 3, 4})
	out := make([]float32, 4)
	tap.Pull(out)

	assert.Equal(t, []float32{1, 2, 3, 4}, out)
	assert.Equal(t, 2, vizCons.Len())
	assert.Zero(t, tap.Underruns())
}

func TestTapPullNoAllocs(t *testing.T) {
	audioProd, audioCons := ring.New(4096)
	vizProd, vizCons := ring.New(4096)
	tap := NewTap(audioCons, vizProd)
	out := make([]float32, 512)
	sink := make([]float32, 512)
	in := make([]float32, 512)

	allocs := testing.AllocsPerRun(100, func() {
		audioProd.PushSlice(in)
		tap.Pull(out)
		vizCons.PopSlice(sink)
	})
	if allocs > 0 {
		t.Errorf("Tap.Pull allocated: got %.1f allocs, want 0", allocs)
	}
}
