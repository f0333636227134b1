// SPDX-License-Identifier: MIT
package audio

import (
	"math"
	"sync/atomic"
)

// Gate tracks the peak level of the most recent capture buffer and reports
// whether it rose above a threshold. Observe runs in the PortAudio callback;
// every other method may be called from any goroutine.
type Gate struct {
	threshold atomic.Uint32 // float32 bits in [0, 1]
	peak      atomic.Uint32 // float32 bits of the last buffer peak
}

// NewGate returns a gate with the given threshold.
func NewGate(threshold float64) *Gate {
	g := &Gate{}
	g.SetThreshold(threshold)
	return g
}

// SetThreshold adjusts the gate threshold.
// The value is in the range of 0.0-1.0 where 0=always open, 1=always closed.
func (g *Gate) SetThreshold(threshold float64) {
	if threshold < 0.0 {
		threshold = 0.0
	}
	if threshold > 1.0 {
		threshold = 1.0
	}
	g.threshold.Store(math.Float32bits(float32(threshold)))
}

// Threshold returns the current threshold in the range 0.0-1.0.
func (g *Gate) Threshold() float64 {
	return float64(math.Float32frombits(g.threshold.Load()))
}

// Observe records the peak absolute amplitude of buf and returns it.
// Clearing the sign bit yields |s|, and the bit patterns of non-negative
// floats order the same way as their values, so the scan stays on integers.
func (g *Gate) Observe(buf []float32) float32 {
	var peak uint32
	for _, s := range buf {
		peak = max(peak, math.Float32bits(s)&^(1<<31))
	}
	g.peak.Store(peak)
	return math.Float32frombits(peak)
}

// Peak returns the peak recorded by the last Observe.
func (g *Gate) Peak() float32 {
	return math.Float32frombits(g.peak.Load())
}

// Open reports whether the last observed buffer exceeded the threshold.
// A zero threshold keeps the gate open.
func (g *Gate) Open() bool {
	threshold := g.threshold.Load()
	return threshold == 0 || g.peak.Load() > threshold
}
