// SPDX-License-Identifier: MIT
/*
Package analysis turns fixed-size windows of mono samples into smoothed,
log-spaced spectrum frames.

Each call to AnalyzeInto:
 1. multiplies the window by precomputed window coefficients (Hann default)
 2. runs a forward complex FFT and keeps bins 0..N/2-1
 3. scales magnitudes by 2/N so a full-scale sine reads about 1.0
 4. measures bass as sqrt(mean(mag)) over 20-120 Hz and smooths it twice
 5. averages magnitudes into log-spaced bands and smooths each band

Smoothing is a one-pole filter: acc += alpha * (raw - acc). Accumulators
start at zero and are only reset by constructing a new Analyzer.

An Analyzer is not safe for concurrent use; the engine owns it from a single
goroutine and hands finished frames to readers through a FrameStore.
*/
package analysis

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"

	applog "spectrum/internal/log"
	"spectrum/pkg/bitint"
)

// Defaults for the analysis range and smoothing coefficients.
const (
	DefaultMinFrequency    = 20.0
	DefaultMaxFrequency    = 18000.0
	DefaultBassLow         = 20.0
	DefaultBassHigh        = 120.0
	DefaultBassFastAlpha   = 0.30
	DefaultBassSmoothAlpha = 0.08
	DefaultBandAlpha       = 0.12
)

// Frame is one analysis result.
type Frame struct {
	Seq        uint64    `json:"seq"`
	Bands      []float64 `json:"bands"`       // len == bars, ascending frequency
	BassFast   float64   `json:"bass_fast"`   // follows kicks
	BassSmooth float64   `json:"bass_smooth"` // slow envelope for colour/glow
}

// CopyFrom copies src into f, reusing f.Bands when it has room.
func (f *Frame) CopyFrom(src *Frame) {
	f.Seq = src.Seq
	f.BassFast = src.BassFast
	f.BassSmooth = src.BassSmooth
	if cap(f.Bands) < len(src.Bands) {
		f.Bands = make([]float64, len(src.Bands))
	}
	f.Bands = f.Bands[:len(src.Bands)]
	copy(f.Bands, src.Bands)
}

// Clone returns a deep copy of f.
func (f *Frame) Clone() Frame {
	var c Frame
	c.CopyFrom(f)
	return c
}

type settings struct {
	window          WindowFunc
	minFrequency    float64
	maxFrequency    float64
	bassLow         float64
	bassHigh        float64
	bassFastAlpha   float64
	bassSmoothAlpha float64
	bandAlpha       float64
}

// Option customises an Analyzer.
type Option func(*settings)

// WithWindow selects the window function applied before the FFT.
func WithWindow(w WindowFunc) Option {
	return func(s *settings) { s.window = w }
}

// WithFrequencyRange sets the lower and upper band edges. The upper edge is
// still capped at Nyquist.
func WithFrequencyRange(minHz, maxHz float64) Option {
	return func(s *settings) {
		s.minFrequency = minHz
		s.maxFrequency = maxHz
	}
}

// WithBassRange sets the frequency range measured for the bass scalars.
func WithBassRange(lowHz, highHz float64) Option {
	return func(s *settings) {
		s.bassLow = lowHz
		s.bassHigh = highHz
	}
}

// WithSmoothing sets the three smoothing coefficients, each in (0, 1].
func WithSmoothing(bassFast, bassSmooth, band float64) Option {
	return func(s *settings) {
		s.bassFastAlpha = bassFast
		s.bassSmoothAlpha = bassSmooth
		s.bandAlpha = band
	}
}

// Analyzer holds the precomputed transform state and the smoothing
// accumulators. Scratch buffers are sized once in NewAnalyzer.
type Analyzer struct {
	fft        *fourier.CmplxFFT
	fftSize    int
	bars       int
	sampleRate float64
	fMin       float64
	fMax       float64
	cfg        settings

	coeffs []float64
	in     []complex128
	out    []complex128
	mag    []float64
	raw    []float64

	bandLo []int
	bandHi []int
	bassLo int
	bassHi int

	smoothed   []float64
	bassFast   float64
	bassSmooth float64
	seq        uint64
}

// Compile-time check for interface implementation.
var _ FrameAnalyzer = (*Analyzer)(nil)

// NewAnalyzer validates the transform parameters and precomputes the window,
// band edges and bin ranges.
func NewAnalyzer(sampleRate uint32, fftSize, bars int, opts ...Option) (*Analyzer, error) {
	if !bitint.IsPowerOfTwo(fftSize) || fftSize < 2 {
		return nil, fmt.Errorf("fft size must be a power of 2, got %d", fftSize)
	}
	if sampleRate == 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}
	if bars <= 0 {
		return nil, fmt.Errorf("bars must be positive, got %d", bars)
	}

	cfg := settings{
		window:          Hann,
		minFrequency:    DefaultMinFrequency,
		maxFrequency:    DefaultMaxFrequency,
		bassLow:         DefaultBassLow,
		bassHigh:        DefaultBassHigh,
		bassFastAlpha:   DefaultBassFastAlpha,
		bassSmoothAlpha: DefaultBassSmoothAlpha,
		bandAlpha:       DefaultBandAlpha,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	sr := float64(sampleRate)
	fMax := math.Min(sr/2, cfg.maxFrequency)
	if cfg.minFrequency <= 0 || fMax <= cfg.minFrequency {
		return nil, fmt.Errorf("empty analysis range %.1f..%.1f Hz at %d Hz", cfg.minFrequency, fMax, sampleRate)
	}
	for _, a := range []float64{cfg.bassFastAlpha, cfg.bassSmoothAlpha, cfg.bandAlpha} {
		if a <= 0 || a > 1 {
			return nil, fmt.Errorf("smoothing coefficient %.3f outside (0, 1]", a)
		}
	}

	half := fftSize / 2
	a := &Analyzer{
		fft:        fourier.NewCmplxFFT(fftSize),
		fftSize:    fftSize,
		bars:       bars,
		sampleRate: sr,
		fMin:       cfg.minFrequency,
		fMax:       fMax,
		cfg:        cfg,
		coeffs:     make([]float64, fftSize),
		in:         make([]complex128, fftSize),
		out:        make([]complex128, fftSize),
		mag:        make([]float64, half),
		raw:        make([]float64, bars),
		bandLo:     make([]int, bars),
		bandHi:     make([]int, bars),
		smoothed:   make([]float64, bars),
	}
	applyWindow(a.coeffs, cfg.window)

	edges := a.BandEdges()
	for b := range bars {
		a.bandLo[b], a.bandHi[b] = a.BinRange(edges[b], edges[b+1])
	}
	a.bassLo, a.bassHi = a.BinRange(cfg.bassLow, cfg.bassHigh)

	applog.Debugf("Analysis: Initializing Analyzer (Size: %d, SampleRate: %d Hz, Bars: %d, Window: %v, Range: %.0f-%.0f Hz)",
		fftSize, sampleRate, bars, cfg.window, a.fMin, a.fMax)

	return a, nil
}

// Analyze runs one analysis step and returns a frame that owns its bands.
func (a *Analyzer) Analyze(window []float32) Frame {
	var f Frame
	a.AnalyzeInto(window, &f)
	return f
}

// AnalyzeInto runs one analysis step and writes the result into dst,
// reusing dst.Bands. It does not allocate once dst.Bands has capacity for
// the configured bars. Windows shorter than the FFT size are zero padded
// at the end; longer windows are truncated.
func (a *Analyzer) AnalyzeInto(window []float32, dst *Frame) {
	n := len(window)
	if n > a.fftSize {
		n = a.fftSize
	}
	for i := 0; i < n; i++ {
		a.in[i] = complex(float64(window[i])*a.coeffs[i], 0)
	}
	for i := n; i < a.fftSize; i++ {
		a.in[i] = 0
	}

	a.fft.Coefficients(a.out, a.in)

	norm := 2.0 / float64(a.fftSize)
	for i := range a.mag {
		a.mag[i] = cmplx.Abs(a.out[i]) * norm
	}

	bass := a.rangeEnergy(a.bassLo, a.bassHi)
	a.bassFast += a.cfg.bassFastAlpha * (bass - a.bassFast)
	a.bassSmooth += a.cfg.bassSmoothAlpha * (bass - a.bassSmooth)

	for b := range a.raw {
		a.raw[b] = a.rangeEnergy(a.bandLo[b], a.bandHi[b])
	}
	for b, v := range a.raw {
		a.smoothed[b] += a.cfg.bandAlpha * (v - a.smoothed[b])
	}

	a.seq++
	dst.Seq = a.seq
	dst.BassFast = a.bassFast
	dst.BassSmooth = a.bassSmooth
	if cap(dst.Bands) < a.bars {
		dst.Bands = make([]float64, a.bars)
	}
	dst.Bands = dst.Bands[:a.bars]
	copy(dst.Bands, a.smoothed)
}

// rangeEnergy returns sqrt(mean(mag[i0:i1])), or 0 for an empty range.
func (a *Analyzer) rangeEnergy(i0, i1 int) float64 {
	if i1 <= i0 {
		return 0
	}
	var sum float64
	for _, m := range a.mag[i0:i1] {
		sum += m
	}
	return math.Sqrt(sum / float64(i1-i0))
}

// Magnitudes returns a copy of the most recent unsmoothed magnitude spectrum
// (bins 0..N/2-1).
func (a *Analyzer) Magnitudes() []float64 {
	out := make([]float64, len(a.mag))
	copy(out, a.mag)
	return out
}

// FFTSize returns the transform size.
func (a *Analyzer) FFTSize() int { return a.fftSize }

// Bars returns the number of bands per frame.
func (a *Analyzer) Bars() int { return a.bars }

// SampleRate returns the sample rate the bin mapping was built for.
func (a *Analyzer) SampleRate() float64 { return a.sampleRate }

// FrequencyRange returns the lower and upper band edges in Hz.
func (a *Analyzer) FrequencyRange() (float64, float64) { return a.fMin, a.fMax }
