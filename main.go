// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"

	"spectrum/cmd"
	"spectrum/internal/audio"
	"spectrum/internal/config"
	applog "spectrum/internal/log"
	"spectrum/internal/transport"
	"spectrum/internal/transport/udp"
	"spectrum/internal/tui"
	"spectrum/pkg/build"
)

// main is the entry point for the spectrum analyzer.
// The program flow is divided into three distinct phases:
//
// 1. Startup Phase (Cold Path):
//   - Initialize build information
//   - Parse command line arguments and load the configuration
//   - Initialize PortAudio
//   - Execute one-off commands if requested
//   - Open the selected source and the frame publishers
//
// 2. Concurrent Phase (Hot Path):
//   - Realtime callbacks feed the source rings
//   - The engine analyzes one window per tick
//
// 3. Shutdown Phase (Cold Path):
//   - Handle termination signals or the end of a stream
//   - Close the publishers, the source and any recording
func main() {
	if err := build.Initialize(); err != nil {
		fatal(err)
	}

	opts, err := cmd.ParseArgs(os.Args[1:])
	if err != nil {
		fatal(err)
	}
	if opts.Command == "" {
		return // --help or --version
	}

	if level, ok := applog.ParseLevel(opts.Config.LogLevel); ok {
		applog.SetLevel(level)
	}

	if err := audio.Initialize(); err != nil {
		fatal(err)
	}
	err = run(opts)
	if termErr := audio.Terminate(); termErr != nil {
		applog.Warnf("%v", termErr)
	}
	if err != nil {
		fatal(err)
	}
}

func run(opts *cmd.Options) error {
	cfg := opts.Config

	if opts.Command == cmd.CommandList {
		return executeList(opts.Interactive)
	}

	if opts.Pick {
		sel, ok, err := tui.PickInputDevice()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		cfg.Audio.InputDevice = sel.DeviceID
		cfg.Audio.SampleRate = sel.SampleRate
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	src, err := audio.Open(ctx, cfg)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil // Interrupted during startup.
		}
		return err
	}

	publishers, closers, err := openPublishers(cfg.Transport)
	if err != nil {
		src.Close()
		return err
	}
	defer closeAll(closers)

	engine, err := audio.NewEngine(src, cfg, publishers...)
	if err != nil {
		src.Close()
		return err
	}

	if cfg.Transport.UDPEnabled {
		pub, err := startUDP(cfg.Transport, engine, cfg.Analysis.Bars)
		if err != nil {
			engine.Close()
			return err
		}
		defer pub.Close()
	}

	// A stream ends on its own when the media is exhausted.
	stream, isStream := src.(*audio.StreamSource)
	if isStream {
		go func() {
			select {
			case <-stream.Done():
				stop()
			case <-ctx.Done():
			}
		}()
	}

	applog.Infof("%s: analyzing %s source at %d Hz, %d bands, press Ctrl+C to stop",
		build.GetBuildFlags().Name, cfg.Source.Kind, src.SampleRate(), cfg.Analysis.Bars)

	runErr := engine.Run(ctx)

	if err := engine.Close(); err != nil {
		applog.Warnf("closing source: %v", err)
	}
	if capture, ok := src.(*audio.CaptureSource); ok {
		if rec := capture.Recorder(); rec != nil {
			fmt.Printf("\nRecording saved to: %s\n", rec.Path())
		}
		if n := capture.Dropped(); n > 0 {
			applog.Warnf("capture: %d samples dropped because analysis fell behind", n)
		}
	}
	if isStream {
		if err := stream.Err(); err != nil {
			return err
		}
	}
	return runErr
}

// executeList prints or browses the host audio devices.
func executeList(interactive bool) error {
	if interactive {
		return tui.StartDeviceListUI()
	}
	return audio.ListDevices(os.Stdout)
}

type closer interface{ Close() error }

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// openPublishers creates the push transports selected in the configuration.
func openPublishers(tc config.TransportConfig) ([]audio.Publisher, []closer, error) {
	var (
		pubs    []audio.Publisher
		closers []closer
	)

	if tc.WebSocketEnabled {
		ws := transport.NewWebSocketTransport(tc.WebSocketAddress, tc.WebSocketPath)
		if err := ws.Start(); err != nil {
			ws.Close()
			return nil, nil, err
		}
		pubs = append(pubs, ws)
		closers = append(closers, ws)
	}
	if tc.LogFrames {
		lt := transport.NewLoggingTransport()
		pubs = append(pubs, lt)
		closers = append(closers, lt)
	}
	return pubs, closers, nil
}

// startUDP sends the engine's latest frame on a fixed interval.
func startUDP(tc config.TransportConfig, engine *audio.Engine, bars int) (closer, error) {
	sender, err := udp.NewUDPSender(tc.UDPTargetAddress)
	if err != nil {
		return nil, err
	}
	pub, err := udp.NewUDPPublisher(tc.UDPSendInterval, sender, engine.Store(), bars)
	if err != nil {
		sender.Close()
		return nil, err
	}
	pub.Start()
	return closerFunc(func() error {
		return errors.Join(pub.Close(), sender.Close())
	}), nil
}

func closeAll(closers []closer) {
	for _, c := range closers {
		if err := c.Close(); err != nil {
			applog.Warnf("%v", err)
		}
	}
}

// fatal prints err in colour, with the remediation hint of a startup
// failure, and exits.
func fatal(err error) {
	red := color.New(color.FgRed, color.Bold)
	red.Fprint(os.Stderr, "error: ")
	fmt.Fprintln(os.Stderr, err)

	var se *audio.StartError
	if errors.As(err, &se) && se.Hint != "" {
		color.New(color.FgYellow).Fprintf(os.Stderr, "hint: %s\n", se.Hint)
	}
	os.Exit(1)
}
