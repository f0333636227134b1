// SPDX-License-Identifier: MIT
package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"spectrum/internal/config"
	applog "spectrum/internal/log"
	"spectrum/internal/ring"
)

// StreamSource plays and analyzes the audio of a media URL. A fetch tool
// downloads the media, a decoder turns it into mono float PCM, and a pump
// goroutine feeds the audio ring at playback pace. The output sink pulls
// through a Tap, which copies every played sample into the visualization
// ring that FillWindow drains.
type StreamSource struct {
	rate   uint32
	viz    *ring.Consumer
	window *ring.Window
	tap    *Tap
	sink   Sink

	download *Download
	cmd      *exec.Cmd
	cancel   context.CancelFunc
	done     chan struct{}
	err      error // Set before done is closed.

	closeOnce sync.Once
	closeErr  error
}

// OpenStream runs the startup sequence synchronously: check the tools,
// open the output, fetch the URL, start the decoder and start playback.
// Any failure is a *StartError and releases what was acquired so far.
// Cancelling ctx stops the pipeline.
func OpenStream(ctx context.Context, cfg *config.Config) (*StreamSource, error) {
	url := SanitizeURL(cfg.Source.URL)
	if url == "" {
		return nil, startError(config.SourceURL, "read url", ErrFetchFailed, errors.New("empty URL"))
	}

	sc := cfg.Stream
	if err := checkTools(sc.FetchTool, sc.DecodeTool); err != nil {
		return nil, err
	}

	sink, err := openSinkFunc(sinkOptions(cfg, sc.SampleRate))
	if err != nil {
		return nil, startError(config.SourceURL, "open output device", ErrOutputDevice, err)
	}

	pctx, cancel := context.WithCancel(ctx)
	fail := func(op string, sentinel, cause error) (*StreamSource, error) {
		cancel()
		sink.Close()
		return nil, startError(config.SourceURL, op, sentinel, cause)
	}

	fetcher := &Fetcher{Tool: sc.FetchTool, TempDir: sc.TempDir}
	download, err := fetcher.Fetch(pctx, url)
	if err != nil {
		if ctx.Err() != nil {
			cancel()
			sink.Close()
			return nil, ctx.Err()
		}
		return fail("fetch "+url, ErrFetchFailed, err)
	}

	audioProd, audioCons := ring.New(int(float64(sc.SampleRate) * sc.BufferSeconds))
	vizProd, vizCons := ring.New(captureRingFactor * cfg.Analysis.FFTSize)

	cmd, stdout, err := startDecoder(pctx, sc.DecodeTool, download.Path, sc.SampleRate)
	if err != nil {
		download.Remove()
		return fail("start decoder", ErrDecoderSpawn, err)
	}

	tap := NewTap(audioCons, vizProd)
	if err := sink.Start(tap); err != nil {
		cancel()
		cmd.Wait()
		download.Remove()
		sink.Close()
		return nil, startError(config.SourceURL, "start playback", ErrOutputDevice, err)
	}

	s := &StreamSource{
		rate:     uint32(sc.SampleRate),
		viz:      vizCons,
		window:   ring.NewWindow(cfg.Analysis.FFTSize),
		tap:      tap,
		sink:     sink,
		download: download,
		cmd:      cmd,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go s.pump(pctx, stdout, audioProd, sc.Backoff, sc.StallTimeout)

	applog.Infof("stream: playing %s", url)
	return s, nil
}

// pump owns the audio ring producer for the lifetime of the decoder.
func (s *StreamSource) pump(ctx context.Context, r io.Reader, prod *ring.Producer, backoff, stallTimeout time.Duration) {
	defer close(s.done)

	pushed, err := pumpPCM(ctx, r, prod, backoff, stallTimeout)
	switch {
	case err == nil:
		applog.Infof("stream: end of stream after %.1fs of audio", float64(pushed)/float64(s.rate))
	case errors.Is(err, context.Canceled):
		err = nil
	case errors.Is(err, ErrPlaybackStalled):
		applog.Warnf("stream: output stopped consuming audio, ending stream")
	default:
		applog.Warnf("stream: %v", err)
	}

	// Ends the decoder if it is still running.
	s.cancel()
	if waitErr := s.cmd.Wait(); waitErr != nil && err == nil && ctx.Err() == nil {
		applog.Debugf("stream: decoder exited: %v", waitErr)
	}

	if rmErr := s.download.Remove(); rmErr != nil {
		applog.Warnf("stream: %v", rmErr)
	}
	if n := s.tap.Underruns(); n > 0 {
		applog.Debugf("stream: %d samples played as silence", n)
	}
	s.err = err
}

// FillWindow drains the samples played since the last call and writes the
// newest len(out) of them.
func (s *StreamSource) FillWindow(out []float32) {
	s.window.Drain(s.viz)
	s.window.CopyOut(out)
}

// SampleRate is the decoder output rate.
func (s *StreamSource) SampleRate() uint32 { return s.rate }

// Done is closed when the decoder has finished and the download is removed.
func (s *StreamSource) Done() <-chan struct{} { return s.done }

// Err reports why the stream ended early. It is nil for a normal end of
// stream and only meaningful after Done is closed.
func (s *StreamSource) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Tap exposes playback counters.
func (s *StreamSource) Tap() *Tap { return s.tap }

// Close stops the decoder, waits for the pump to exit, closes the output
// and removes the download.
func (s *StreamSource) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.done
		if err := s.sink.Close(); err != nil {
			s.closeErr = fmt.Errorf("failed to close output: %w", err)
		}
	})
	return s.closeErr
}
