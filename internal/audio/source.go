// SPDX-License-Identifier: MIT
/*
Package audio turns microphone input, WAV files and network streams into
fixed-size sample windows for the spectral analyzer.

Every source implements Source. FillWindow is called once per analysis tick
and never blocks: live sources drain whatever their realtime side produced
since the last call, file sources compute the window from the playback
clock.

Thread Safety:
  - PortAudio callbacks and sink pulls only touch lock-free rings
  - Buffers used in callbacks are allocated before the stream starts
  - The stream decode goroutine is the only code that sleeps
*/
package audio

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"spectrum/internal/config"
)

// Source produces the most recent samples of an audio signal.
type Source interface {
	// FillWindow writes exactly len(out) mono samples, oldest first.
	// Missing history is filled with silence.
	FillWindow(out []float32)

	// SampleRate is the rate of the samples written by FillWindow.
	SampleRate() uint32

	// Close releases the devices, processes and files held by the source.
	Close() error
}

// Startup failures. They are reported wrapped in a *StartError and are never
// retried.
var (
	ErrNoInputDevice     = errors.New("no input device")
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	ErrFileOpen          = errors.New("cannot open audio file")
	ErrToolNotFound      = errors.New("required tool not found")
	ErrFetchFailed       = errors.New("fetch failed")
	ErrDecoderSpawn      = errors.New("cannot start decoder")
	ErrOutputDevice      = errors.New("output device unavailable")
)

// ErrPlaybackStalled ends a stream whose output stopped consuming samples.
var ErrPlaybackStalled = errors.New("playback stalled")

// StartError describes why a source could not be started.
type StartError struct {
	Kind  string // Source kind: mic, wav or url.
	Op    string // Step that failed, e.g. "open input stream".
	Err   error  // One of the Err* sentinels.
	Cause error  // Underlying library or process error, may be nil.
	Hint  string // Remediation shown to the user, may be empty.
}

func (e *StartError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s source: %s: %v", e.Kind, e.Op, e.Err)
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

// Unwrap exposes both the sentinel and the cause to errors.Is and errors.As.
func (e *StartError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

func startError(kind, op string, sentinel, cause error) *StartError {
	return &StartError{Kind: kind, Op: op, Err: sentinel, Cause: cause}
}

// Open starts the source selected by cfg.Source.Kind. The returned source
// is running; the caller owns it and must Close it. PortAudio must be
// initialized for mic sources and for the portaudio output backend.
func Open(ctx context.Context, cfg *config.Config) (Source, error) {
	if err := cfg.ValidateSource(); err != nil {
		return nil, err
	}

	var (
		src Source
		err error
	)
	switch cfg.Source.Kind {
	case config.SourceMic:
		src, err = OpenCapture(cfg)
	case config.SourceWAV:
		src, err = OpenFile(cfg)
	case config.SourceURL:
		src, err = OpenStream(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown source kind %q", cfg.Source.Kind)
	}
	if err != nil {
		return nil, err
	}
	return src, nil
}
