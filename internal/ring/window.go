// SPDX-License-Identifier: MIT
package ring

// Window keeps the most recent size samples drained from a ring. It starts
// full of silence, so a fresh window always copies out size zeros.
type Window struct {
	data []float32
	pos  int // index of the oldest sample
}

// NewWindow returns a zero-filled window of the given size.
func NewWindow(size int) *Window {
	if size < 1 {
		size = 1
	}
	return &Window{data: make([]float32, size)}
}

// Push appends one sample, evicting the oldest.
func (w *Window) Push(s float32) {
	w.data[w.pos] = s
	w.pos++
	if w.pos == len(w.data) {
		w.pos = 0
	}
}

// Drain pops every sample currently available in c and returns the count.
// It never waits for the producer.
func (w *Window) Drain(c *Consumer) int {
	n := 0
	for {
		s, ok := c.TryPop()
		if !ok {
			return n
		}
		w.Push(s)
		n++
	}
}

// CopyOut writes the window oldest-first into out. When out is longer than
// the window the front is zero padded; when shorter, only the newest
// len(out) samples are written.
func (w *Window) CopyOut(out []float32) {
	size := len(w.data)
	if len(out) >= size {
		pad := len(out) - size
		clear(out[:pad])
		n := copy(out[pad:], w.data[w.pos:])
		copy(out[pad+n:], w.data[:w.pos])
		return
	}

	start := (w.pos + size - len(out)) % size
	for i := range out {
		out[i] = w.data[(start+i)%size]
	}
}

// Reset refills the window with silence.
func (w *Window) Reset() {
	clear(w.data)
	w.pos = 0
}
