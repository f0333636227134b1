// SPDX-License-Identifier: MIT
package audio

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os/exec"
	"strconv"
	"time"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	applog "spectrum/internal/log"
	"spectrum/internal/ring"
)

const (
	pcmReadBuffer  = 64 * 1024
	decoderWaitFor = 2 * time.Second
)

// Process entry points, replaced in tests.
var (
	commandContext = exec.CommandContext
	lookPathFunc   = exec.LookPath
)

// decodeArgs builds the decoder command line: read input at its native
// pace, drop video, emit mono float32 little-endian PCM at rate on stdout.
func decodeArgs(input string, rate int) []string {
	return ffmpeg.Input(input, ffmpeg.KwArgs{"re": ""}).
		Output("pipe:1", ffmpeg.KwArgs{
			"vn":       "",
			"format":   "f32le",
			"ac":       "1",
			"ar":       strconv.Itoa(rate),
			"loglevel": "quiet",
			"nostdin":  "",
		}).
		GetArgs()
}

// startDecoder spawns tool on input. The process is killed when ctx ends.
func startDecoder(ctx context.Context, tool, input string, rate int) (*exec.Cmd, io.ReadCloser, error) {
	cmd := commandContext(ctx, tool, decodeArgs(input, rate)...)
	cmd.WaitDelay = decoderWaitFor

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to attach decoder output: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("failed to start %s: %w", tool, err)
	}
	return cmd, stdout, nil
}

// pumpPCM reads float32 little-endian samples from r into prod until r
// ends, and returns the number of samples pushed. Any read failure, a
// short trailing read included, is the end of the stream. When the ring is full the pump sleeps backoff
// and retries, so the playback rate paces the decoder. If no sample fits
// for stallTimeout (0 waits forever) it gives up with ErrPlaybackStalled.
func pumpPCM(ctx context.Context, r io.Reader, prod *ring.Producer, backoff, stallTimeout time.Duration) (int64, error) {
	br := bufio.NewReaderSize(r, pcmReadBuffer)
	var frame [4]byte
	var pushed int64

	for {
		if _, err := io.ReadFull(br, frame[:]); err != nil {
			if ctx.Err() != nil {
				return pushed, ctx.Err()
			}
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				applog.Debugf("stream: decoder output ended: %v", err)
			}
			return pushed, nil
		}

		s := math.Float32frombits(binary.LittleEndian.Uint32(frame[:]))
		if err := pushBlocking(ctx, prod, s, backoff, stallTimeout); err != nil {
			return pushed, err
		}
		pushed++
	}
}

func pushBlocking(ctx context.Context, prod *ring.Producer, s float32, backoff, stallTimeout time.Duration) error {
	if prod.TryPush(s) {
		return nil
	}

	start := time.Now()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		time.Sleep(backoff)
		if prod.TryPush(s) {
			return nil
		}
		if stallTimeout > 0 && time.Since(start) >= stallTimeout {
			return ErrPlaybackStalled
		}
	}
}
