// SPDX-License-Identifier: MIT
package analysis

// FrameAnalyzer is implemented by components that turn a sample window into
// a Frame. Implementations are driven from a single goroutine per tick and
// should not allocate.
type FrameAnalyzer interface {
	AnalyzeInto(window []float32, dst *Frame)
}

// FrameProvider defines an interface for components that expose the latest
// analysis frame. It decouples publishers (UDP, WebSocket) from the engine
// that produces frames.
type FrameProvider interface {
	// LoadInto copies the latest frame into dst and reports whether any
	// frame has been produced yet.
	LoadInto(dst *Frame) bool
}
