// SPDX-License-Identifier: MIT
package audio

import (
	"context"
	"errors"
	"fmt"
	"time"

	"spectrum/internal/analysis"
	"spectrum/internal/config"
	applog "spectrum/internal/log"
)

// silenceWarnAfter is how long a gated input must stay quiet before the
// engine warns about it.
const silenceWarnAfter = 5 * time.Second

// Publisher receives a copy of every analysis frame.
type Publisher interface {
	Send(data any) error
}

// gated is implemented by sources that measure their input level.
type gated interface {
	Gate() *Gate
}

// Engine drives the analysis: once per tick it fills the sample window
// from the source, runs the analyzer, stores the frame and hands copies to
// the publishers.
type Engine struct {
	source     Source
	analyzer   analysis.FrameAnalyzer
	store      *analysis.FrameStore
	publishers []Publisher
	interval   time.Duration

	// Pre-allocated per-tick buffers.
	window []float32
	frame  analysis.Frame

	gate        *Gate
	quietSince  time.Time
	quietWarned bool
	now         func() time.Time
}

// NewEngine builds the analyzer for src from cfg.Analysis.
func NewEngine(src Source, cfg *config.Config, publishers ...Publisher) (*Engine, error) {
	a := cfg.Analysis
	windowFunc, err := analysis.ParseWindowFunc(a.FFTWindow)
	if err != nil {
		return nil, err
	}

	analyzer, err := analysis.NewAnalyzer(src.SampleRate(), a.FFTSize, a.Bars,
		analysis.WithWindow(windowFunc),
		analysis.WithFrequencyRange(a.MinFrequency, a.MaxFrequency),
		analysis.WithBassRange(a.BassLow, a.BassHigh),
		analysis.WithSmoothing(a.BassFastAlpha, a.BassSmoothAlpha, a.BandAlpha),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create analyzer: %w", err)
	}

	e := newEngine(src, analyzer, analyzer.FFTSize(), analyzer.Bars(), a.FrameRate, publishers...)
	if g, ok := src.(gated); ok && a.SilenceLevel > 0 {
		e.gate = g.Gate()
	}
	return e, nil
}

func newEngine(src Source, analyzer analysis.FrameAnalyzer, fftSize, bars, frameRate int, publishers ...Publisher) *Engine {
	if frameRate <= 0 {
		frameRate = config.DefaultFrameRate
	}
	return &Engine{
		source:     src,
		analyzer:   analyzer,
		store:      analysis.NewFrameStore(bars),
		publishers: publishers,
		interval:   time.Second / time.Duration(frameRate),
		window:     make([]float32, fftSize),
		frame:      analysis.Frame{Bands: make([]float64, bars)},
		now:        time.Now,
	}
}

// Store returns the latest-frame store shared with pull-based publishers.
func (e *Engine) Store() *analysis.FrameStore { return e.store }

// Tick runs one analysis step and returns the frame it produced. The
// returned frame is reused by the next Tick.
func (e *Engine) Tick() *analysis.Frame {
	e.source.FillWindow(e.window)
	e.analyzer.AnalyzeInto(e.window, &e.frame)
	e.store.Store(&e.frame)

	for _, p := range e.publishers {
		if err := p.Send(e.frame.Clone()); err != nil {
			applog.Debugf("engine: publish frame %d: %v", e.frame.Seq, err)
		}
	}

	e.watchInput()
	return &e.frame
}

// watchInput warns once when a gated input stays below its threshold.
func (e *Engine) watchInput() {
	if e.gate == nil {
		return
	}
	now := e.now()
	if e.gate.Open() {
		if e.quietWarned {
			applog.Infof("engine: input signal detected")
		}
		e.quietSince = time.Time{}
		e.quietWarned = false
		return
	}
	if e.quietSince.IsZero() {
		e.quietSince = now
		return
	}
	if !e.quietWarned && now.Sub(e.quietSince) >= silenceWarnAfter {
		applog.Warnf("engine: no input signal for %s (peak %.4f, threshold %.4f), check the input device and its gain",
			silenceWarnAfter, e.gate.Peak(), e.gate.Threshold())
		e.quietWarned = true
	}
}

// Run ticks at the configured frame rate until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	applog.Debugf("engine: running at %s per frame", e.interval)
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			e.Tick()
		}
	}
}

// Close closes the source.
func (e *Engine) Close() error {
	return e.source.Close()
}
