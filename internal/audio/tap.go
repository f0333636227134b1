// SPDX-License-Identifier: MIT
package audio

import (
	"sync/atomic"

	"spectrum/internal/ring"
)

// Tap feeds the output device from the decoded audio ring and forwards a
// copy of every sample it plays into the visualization ring, keeping the
// analysis in step with what is heard.
type Tap struct {
	audio *ring.Consumer
	viz   *ring.Producer

	played    atomic.Uint64
	underruns atomic.Uint64
}

// Compile-time check for interface implementation.
var _ Puller = (*Tap)(nil)

// NewTap connects an audio ring consumer to a visualization ring producer.
func NewTap(audio *ring.Consumer, viz *ring.Producer) *Tap {
	return &Tap{audio: audio, viz: viz}
}

// Pull pops one sample per output slot, substituting silence when the
// decoder is behind. It never blocks; a full visualization ring drops the
// copy but not the played sample.
func (t *Tap) Pull(out []float32) {
	var missing uint64
	for i := range out {
		s, ok := t.audio.TryPop()
		if !ok {
			s = 0
			missing++
		}
		t.viz.TryPush(s)
		out[i] = s
	}
	t.played.Add(uint64(len(out)))
	if missing > 0 {
		t.underruns.Add(missing)
	}
}

// Played counts samples handed to the device, silence included.
func (t *Tap) Played() uint64 { return t.played.Load() }

// Underruns counts samples played as silence because the audio ring was
// empty.
func (t *Tap) Underruns() uint64 { return t.underruns.Load() }
