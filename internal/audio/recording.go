// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"spectrum/internal/config"
	applog "spectrum/internal/log"
	"spectrum/internal/ring"
)

const (
	recordingBitDepth   = 16
	recordingRingSecs   = 2
	recordingDrainEvery = 50 * time.Millisecond
	wavFormatPCM        = 1
)

// Recorder writes mono float samples to a 16-bit PCM WAV file. The capture
// callback feeds it through a lock-free ring; a goroutine drains the ring
// into the encoder so the callback never touches the file.
type Recorder struct {
	path       string
	sampleRate int
	maxSamples int64 // 0 for unlimited

	producer *ring.Producer
	consumer *ring.Consumer

	file    *os.File
	encoder *wav.Encoder
	buf     *audio.IntBuffer // Reusable buffer for format conversion
	scratch []float32

	isRecording atomic.Bool
	written     atomic.Int64

	mu   sync.Mutex // Guards Start/Stop.
	stop chan struct{}
	done chan struct{}
	err  error // Set by the drain goroutine before done closes.
}

// NewRecorder prepares a recorder for path. maxDuration of zero records
// until Stop.
func NewRecorder(path string, sampleRate int, maxDuration time.Duration) *Recorder {
	producer, consumer := ring.New(sampleRate * recordingRingSecs)
	chunk := sampleRate / 10
	return &Recorder{
		path:       path,
		sampleRate: sampleRate,
		maxSamples: int64(maxDuration.Seconds() * float64(sampleRate)),
		producer:   producer,
		consumer:   consumer,
		buf: &audio.IntBuffer{
			Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
			SourceBitDepth: recordingBitDepth,
			Data:           make([]int, chunk),
		},
		scratch: make([]float32, chunk),
	}
}

// RecordingPath returns the configured output file, or a timestamped name
// in the output directory.
func RecordingPath(cfg config.RecordingConfig, now time.Time) string {
	if cfg.OutputFile != "" {
		return cfg.OutputFile
	}
	dir := cfg.OutputDir
	if dir == "" {
		dir = config.DefaultRecordingDir
	}
	return filepath.Join(dir, "recording-"+now.UTC().Format("02-01-2006-150405")+".wav")
}

// Producer is the ring the audio callback writes into.
func (r *Recorder) Producer() *ring.Producer { return r.producer }

// Path is the output file path.
func (r *Recorder) Path() string { return r.path }

// Recording reports whether samples are still being written.
func (r *Recorder) Recording() bool { return r.isRecording.Load() }

// Written is the number of samples encoded so far.
func (r *Recorder) Written() int64 { return r.written.Load() }

// Start creates the output file and begins draining.
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.isRecording.Load() || r.file != nil {
		return fmt.Errorf("already recording")
	}

	if dir := filepath.Dir(r.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create recording directory: %w", err)
		}
	}

	file, err := os.Create(r.path)
	if err != nil {
		return fmt.Errorf("failed to create recording file: %w", err)
	}
	r.file = file
	r.encoder = wav.NewEncoder(file, r.sampleRate, recordingBitDepth, 1, wavFormatPCM)
	r.written.Store(0)
	r.err = nil
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	r.isRecording.Store(true)

	go r.run(r.stop, r.done)

	applog.Infof("recording: writing %s", r.path)
	return nil
}

// Stop flushes pending samples and closes the file. Stopping a recorder
// that is not running is a no-op.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		return nil
	}

	close(r.stop)
	<-r.done
	r.isRecording.Store(false)

	errs := []error{r.err}
	if err := r.encoder.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to finalize recording: %w", err))
	}
	if err := r.file.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close recording file: %w", err))
	}
	r.encoder = nil
	r.file = nil

	applog.Infof("recording: saved %s (%.1fs)", r.path, float64(r.written.Load())/float64(r.sampleRate))
	return errors.Join(errs...)
}

func (r *Recorder) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(recordingDrainEvery)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			if r.isRecording.Load() {
				r.err = r.drain()
			}
			return
		case <-ticker.C:
			if !r.isRecording.Load() {
				continue
			}
			if err := r.drain(); err != nil {
				r.err = err
				r.isRecording.Store(false)
				applog.Errorf("recording: %v", err)
			}
		}
	}
}

// drain encodes everything currently in the ring, honoring the duration
// limit. Samples beyond the limit are discarded.
func (r *Recorder) drain() error {
	for {
		n := r.consumer.PopSlice(r.scratch)
		if n == 0 {
			return nil
		}
		if !r.isRecording.Load() {
			continue
		}

		if r.maxSamples > 0 {
			remaining := r.maxSamples - r.written.Load()
			if int64(n) >= remaining {
				n = int(max(remaining, 0))
				r.isRecording.Store(false)
				applog.Infof("recording: reached maximum duration")
			}
		}
		if n == 0 {
			continue
		}

		for i, s := range r.scratch[:n] {
			r.buf.Data[i] = floatToPCM16(s)
		}
		r.buf.Data = r.buf.Data[:n]
		err := r.encoder.Write(r.buf)
		r.buf.Data = r.buf.Data[:cap(r.buf.Data)]
		if err != nil {
			return fmt.Errorf("failed to write WAV data: %w", err)
		}
		r.written.Add(int64(n))
	}
}

func floatToPCM16(s float32) int {
	s = max(-1, min(1, s))
	if s >= 0 {
		return int(s*pcm16Scale + 0.5)
	}
	return int(s*pcm16Scale - 0.5)
}
