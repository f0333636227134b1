// SPDX-License-Identifier: MIT
package analysis

import "sync"

// FrameStore holds the most recent frame for concurrent readers. The engine
// is the only writer.
type FrameStore struct {
	mu    sync.RWMutex
	frame Frame
	set   bool
}

// Compile-time check for interface implementation.
var _ FrameProvider = (*FrameStore)(nil)

// NewFrameStore returns a store pre-sized for bars bands.
func NewFrameStore(bars int) *FrameStore {
	return &FrameStore{frame: Frame{Bands: make([]float64, 0, bars)}}
}

// Store replaces the latest frame with a copy of f.
func (s *FrameStore) Store(f *Frame) {
	s.mu.Lock()
	s.frame.CopyFrom(f)
	s.set = true
	s.mu.Unlock()
}

// LoadInto copies the latest frame into dst. It does not allocate when
// dst.Bands already has room.
func (s *FrameStore) LoadInto(dst *Frame) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.set {
		return false
	}
	dst.CopyFrom(&s.frame)
	return true
}

// Latest returns a copy of the latest frame.
func (s *FrameStore) Latest() (Frame, bool) {
	var f Frame
	ok := s.LoadInto(&f)
	return f, ok
}

// Seq returns the sequence number of the latest frame, 0 before the first.
func (s *FrameStore) Seq() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frame.Seq
}
