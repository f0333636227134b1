// SPDX-License-Identifier: MIT
package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"spectrum/internal/config"
	applog "spectrum/internal/log"
	"spectrum/pkg/build"
)

// Commands selected on the command line.
const (
	CommandRun  = "run"
	CommandList = "list"
)

// Options is the outcome of parsing the command line.
type Options struct {
	Command     string         // CommandRun or CommandList; empty after --help or --version.
	Interactive bool           // list: browse devices in the terminal UI.
	Pick        bool           // mic: choose the input device interactively.
	Config      *config.Config // Loaded configuration with flag overrides applied.
}

// flagValues holds the raw persistent flags. Only flags the user set are
// copied into the configuration.
type flagValues struct {
	configPath      string
	inputDevice     int
	outputDevice    int
	channels        int
	sampleRate      float64
	framesPerBuffer int
	lowLatency      bool
	backend         string
	playback        bool
	record          bool
	output          string
	fftSize         int
	bars            int
	frameRate       int
	window          string
	websocket       bool
	websocketAddr   string
	udp             bool
	udpAddr         string
	logFrames       bool
	logLevel        string
	verbose         bool
}

var loadConfig = config.LoadConfig

// ParseArgs parses args (without the program name) and loads the
// configuration for the selected command. Running without a subcommand
// analyzes the microphone.
func ParseArgs(args []string) (*Options, error) {
	return parseArgs(args, nil)
}

func parseArgs(args []string, out io.Writer) (*Options, error) {
	buildInfo := build.GetBuildFlags()
	opts := &Options{}
	var fv flagValues

	load := func(c *cobra.Command, kind string) error {
		presetLogLevel(c, &fv)
		cfg, err := loadConfig(fv.configPath)
		if err != nil {
			return err
		}
		cfg.Source.Kind = kind
		if err := applyFlags(c, &fv, cfg); err != nil {
			return err
		}
		opts.Config = cfg
		opts.Command = CommandRun
		return nil
	}

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         buildInfo.Description,
		Version:       buildInfo.String(),
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		RunE: func(c *cobra.Command, args []string) error {
			return load(c, config.SourceMic)
		},
	}
	rootCmd.SetVersionTemplate("{{.Version}}\n")

	// Display help message
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	micCmd := &cobra.Command{
		Use:   "mic",
		Short: "Analyze live microphone input",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			return load(c, config.SourceMic)
		},
	}
	micCmd.Flags().BoolVarP(&opts.Pick, "pick", "p", false,
		"Choose the input device and sample rate interactively")

	wavCmd := &cobra.Command{
		Use:   "wav [file]",
		Short: "Play and analyze a 16-bit PCM WAV file in a loop",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			if err := load(c, config.SourceWAV); err != nil {
				return err
			}
			switch {
			case len(args) == 1:
				opts.Config.Source.Path = args[0]
			case opts.Config.Source.Path == "":
				opts.Config.Source.Path = config.DefaultWAVPath
			}
			return nil
		},
	}

	urlCmd := &cobra.Command{
		Use:   "url <url>",
		Short: "Stream, play and analyze the audio of a media URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			if err := load(c, config.SourceURL); err != nil {
				return err
			}
			opts.Config.Source.URL = args[0]
			return nil
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available audio devices",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			if err := load(c, config.SourceMic); err != nil {
				return err
			}
			opts.Command = CommandList
			return nil
		},
	}
	listCmd.Flags().BoolVarP(&opts.Interactive, "interactive", "i", false,
		"Browse devices in the terminal UI")

	rootCmd.AddCommand(micCmd, wavCmd, urlCmd, listCmd)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&fv.configPath, "config", "",
		"Path to the YAML configuration file (default ./config.yaml)")

	// Audio Device Configuration
	pf.IntVarP(&fv.inputDevice, "device", "d", config.DefaultDeviceID,
		"Input device ID. Use 'list' command to see available devices.")
	pf.IntVar(&fv.outputDevice, "output-device", config.DefaultDeviceID,
		"Output device ID for WAV and URL playback")
	pf.IntVarP(&fv.channels, "channels", "c", config.DefaultInputChannels,
		"Number of input channels to capture before the mono downmix")
	pf.Float64VarP(&fv.sampleRate, "sample-rate", "s", config.DefaultSampleRate,
		"Capture sample rate, measured in Hertz (Hz)")
	pf.IntVarP(&fv.framesPerBuffer, "frames-per-buffer", "b", config.DefaultFramesPerBuffer,
		"The number of frames per buffer (affects latency)")
	pf.BoolVarP(&fv.lowLatency, "low-latency", "l", false,
		"Use low latency mode for real-time processing")
	pf.StringVar(&fv.backend, "backend", config.DefaultOutputBackend,
		"Output backend: portaudio or oto")
	pf.BoolVar(&fv.playback, "playback", true,
		"Play WAV files through the output device")

	// Recording Configuration
	pf.BoolVarP(&fv.record, "record", "r", false,
		"Record microphone input to a WAV file")
	pf.StringVarP(&fv.output, "output", "o", "",
		"Recording file name. Default is recording-DD-MM-YYYY-HHMMSS.wav")

	// Analysis Configuration
	pf.IntVar(&fv.fftSize, "fft-size", config.DefaultFFTSize, "FFT size, a power of two")
	pf.IntVar(&fv.bars, "bars", config.DefaultBars, "Number of log-spaced bands")
	pf.IntVar(&fv.frameRate, "fps", config.DefaultFrameRate, "Analysis frames per second")
	pf.StringVar(&fv.window, "window", config.DefaultFFTWindow, "FFT window function")

	// Transport Configuration
	pf.BoolVar(&fv.websocket, "websocket", false, "Serve frames as JSON over WebSocket")
	pf.StringVar(&fv.websocketAddr, "websocket-addr", config.DefaultWebSocketAddress, "WebSocket listen address")
	pf.BoolVar(&fv.udp, "udp", false, "Send frames as binary UDP packets")
	pf.StringVar(&fv.udpAddr, "udp-addr", config.DefaultUDPTargetAddress, "UDP target address")
	pf.BoolVar(&fv.logFrames, "log-frames", false, "Log a summary of every frame at debug level")

	// Debug Configuration
	pf.StringVar(&fv.logLevel, "log-level", "", "Log level: debug, info, warn or error")
	pf.BoolVarP(&fv.verbose, "verbose", "v", false,
		"Show verbose output (same as --log-level debug)")

	if out != nil {
		rootCmd.SetOut(out)
		rootCmd.SetErr(out)
	}

	// Execute the CLI
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}
	return opts, nil
}

// presetLogLevel applies the level from the command line or ENV_LOG_LEVEL
// before the configuration loads, so the loader's own messages honour it.
// The configured level takes over once loading is done.
func presetLogLevel(c *cobra.Command, fv *flagValues) {
	name := os.Getenv("ENV_LOG_LEVEL")
	if c.Flags().Changed("log-level") {
		name = fv.logLevel
	}
	if fv.verbose {
		name = "debug"
	}
	if level, ok := applog.ParseLevel(name); ok {
		applog.SetLevel(level)
	}
}

// applyFlags copies the flags the user set over the loaded configuration
// and validates the result.
func applyFlags(c *cobra.Command, fv *flagValues, cfg *config.Config) error {
	changed := c.Flags().Changed

	if changed("device") {
		cfg.Audio.InputDevice = fv.inputDevice
	}
	if changed("output-device") {
		cfg.Audio.OutputDevice = fv.outputDevice
	}
	if changed("channels") {
		cfg.Audio.InputChannels = fv.channels
	}
	if changed("sample-rate") {
		cfg.Audio.SampleRate = fv.sampleRate
	}
	if changed("frames-per-buffer") {
		cfg.Audio.FramesPerBuffer = fv.framesPerBuffer
	}
	if changed("low-latency") {
		cfg.Audio.LowLatency = fv.lowLatency
	}
	if changed("backend") {
		cfg.Audio.OutputBackend = fv.backend
	}
	if changed("playback") {
		cfg.Audio.Playback = fv.playback
	}

	if changed("record") {
		cfg.Recording.Enabled = fv.record
	}
	if changed("output") {
		cfg.Recording.OutputFile = fv.output
		cfg.Recording.Enabled = true
	}

	if changed("fft-size") {
		cfg.Analysis.FFTSize = fv.fftSize
	}
	if changed("bars") {
		cfg.Analysis.Bars = fv.bars
	}
	if changed("fps") {
		cfg.Analysis.FrameRate = fv.frameRate
	}
	if changed("window") {
		cfg.Analysis.FFTWindow = fv.window
	}

	if changed("websocket") {
		cfg.Transport.WebSocketEnabled = fv.websocket
	}
	if changed("websocket-addr") {
		cfg.Transport.WebSocketAddress = fv.websocketAddr
	}
	if changed("udp") {
		cfg.Transport.UDPEnabled = fv.udp
	}
	if changed("udp-addr") {
		cfg.Transport.UDPTargetAddress = fv.udpAddr
	}
	if changed("log-frames") {
		cfg.Transport.LogFrames = fv.logFrames
	}

	if changed("log-level") {
		cfg.LogLevel = fv.logLevel
	}
	if fv.verbose {
		cfg.Debug = true
		cfg.LogLevel = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}
	return nil
}
