// SPDX-License-Identifier: MIT
package transport

import (
	"spectrum/internal/analysis"
	applog "spectrum/internal/log"
)

// LoggingTransport implements the Transport interface by logging a summary
// of each frame at debug level.
type LoggingTransport struct{}

// NewLoggingTransport creates a new LoggingTransport instance.
func NewLoggingTransport() *LoggingTransport {
	applog.Debugf("transport: using LoggingTransport")
	return &LoggingTransport{}
}

// Send logs the received data. Frames are summarized by their loudest band.
func (lt *LoggingTransport) Send(data any) error {
	switch f := data.(type) {
	case analysis.Frame:
		logFrame(&f)
	case *analysis.Frame:
		logFrame(f)
	default:
		applog.Debugf("transport: received %T", data)
	}
	return nil // Logging transport never fails to "send"
}

func logFrame(f *analysis.Frame) {
	peak, level := peakBand(f.Bands)
	applog.Debugf("frame %d: bass fast=%.4f smooth=%.4f, peak band %d/%d (%.4f)",
		f.Seq, f.BassFast, f.BassSmooth, peak, len(f.Bands), level)
}

// peakBand returns the index and value of the loudest band, -1 when empty.
func peakBand(bands []float64) (int, float64) {
	idx, level := -1, 0.0
	for i, v := range bands {
		if idx < 0 || v > level {
			idx, level = i, v
		}
	}
	return idx, level
}

// Close is a no-op for LoggingTransport.
func (lt *LoggingTransport) Close() error {
	return nil
}

// Ensure LoggingTransport satisfies the interface at compile time.
var _ Transport = (*LoggingTransport)(nil)
