// SPDX-License-Identifier: MIT
/*
Package ring provides the bounded single-producer single-consumer sample
queue that connects real-time audio callbacks to the rest of the engine,
plus the fixed-size sliding window the analyzer reads from.

Thread Safety:
  - Exactly one goroutine may use a Producer and exactly one a Consumer.
  - Push and pop never block and never allocate.
  - Head and tail are monotonically increasing counters published with
    atomic loads/stores, so a sample written before a tail store is visible
    to the consumer that observes that store.

Usage:

	prod, cons := ring.New(8 * fftSize)

	// capture callback
	for _, s := range in {
		prod.TryPush(s) // dropped when full
	}

	// analysis tick
	window.Drain(cons)
*/
package ring

import "sync/atomic"

// noCopy makes go vet's copylocks check flag copied handles.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

type buffer struct {
	data []float32
	size uint64

	// head is the next index to read, written only by the consumer.
	head atomic.Uint64
	_    [56]byte
	// tail is the next index to write, written only by the producer.
	tail atomic.Uint64
}

// Producer is the write half of a ring. It must not be copied or shared
// between goroutines.
type Producer struct {
	noCopy noCopy
	buf    *buffer
}

// Consumer is the read half of a ring. It must not be copied or shared
// between goroutines.
type Consumer struct {
	noCopy noCopy
	buf    *buffer
}

// New allocates a ring holding up to capacity samples and returns its two
// handles. Capacity below one is raised to one.
func New(capacity int) (*Producer, *Consumer) {
	if capacity < 1 {
		capacity = 1
	}
	b := &buffer{
		data: make([]float32, capacity),
		size: uint64(capacity),
	}
	return &Producer{buf: b}, &Consumer{buf: b}
}

// TryPush appends s and reports whether there was room. A full ring leaves
// its contents unchanged.
func (p *Producer) TryPush(s float32) bool {
	b := p.buf
	tail := b.tail.Load()
	if tail-b.head.Load() == b.size {
		return false
	}
	b.data[tail%b.size] = s
	b.tail.Store(tail + 1)
	return true
}

// PushSlice pushes as many leading samples of in as fit and returns how many
// were accepted.
func (p *Producer) PushSlice(in []float32) int {
	b := p.buf
	tail := b.tail.Load()
	free := b.size - (tail - b.head.Load())
	n := uint64(len(in))
	if n > free {
		n = free
	}
	for i := uint64(0); i < n; i++ {
		b.data[(tail+i)%b.size] = in[i]
	}
	b.tail.Store(tail + n)
	return int(n)
}

// Cap returns the ring capacity.
func (p *Producer) Cap() int { return int(p.buf.size) }

// TryPop removes the oldest sample. ok is false when the ring is empty.
func (c *Consumer) TryPop() (s float32, ok bool) {
	b := c.buf
	head := b.head.Load()
	if head == b.tail.Load() {
		return 0, false
	}
	s = b.data[head%b.size]
	b.head.Store(head + 1)
	return s, true
}

// PopSlice moves up to len(out) of the oldest samples into out and returns
// how many were written.
func (c *Consumer) PopSlice(out []float32) int {
	b := c.buf
	head := b.head.Load()
	avail := b.tail.Load() - head
	n := uint64(len(out))
	if n > avail {
		n = avail
	}
	for i := uint64(0); i < n; i++ {
		out[i] = b.data[(head+i)%b.size]
	}
	b.head.Store(head + n)
	return int(n)
}

// Len returns the number of samples currently available to pop.
func (c *Consumer) Len() int {
	b := c.buf
	return int(b.tail.Load() - b.head.Load())
}

// Cap returns the ring capacity.
func (c *Consumer) Cap() int { return int(c.buf.size) }
