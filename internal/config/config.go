// SPDX-License-Identifier: MIT
package config

import "time"

// Source kinds selectable through source.kind or the CLI subcommands.
const (
	SourceMic = "mic"
	SourceWAV = "wav"
	SourceURL = "url"

	DefaultWAVPath = "assets/song.wav"
)

// Output backends for WAV and stream playback.
const (
	BackendPortAudio = "portaudio"
	BackendOto       = "oto"
)

// Core configuration constants that define the boundaries and defaults
// for the spectrum engine.
const (
	// Audio device defaults
	DefaultDeviceID        = MinDeviceID // System default device
	DefaultSampleRate      = 44100       // CD-quality audio
	DefaultFramesPerBuffer = 512         // Balanced latency/performance
	DefaultInputChannels   = 1
	DefaultOutputBackend   = BackendPortAudio

	// Analysis defaults
	DefaultFFTSize         = 2048
	DefaultBars            = 120
	DefaultFFTWindow       = "Hann"
	DefaultFrameRate       = 60
	DefaultMinFrequency    = 20.0
	DefaultMaxFrequency    = 18000.0
	DefaultBassLow         = 20.0
	DefaultBassHigh        = 120.0
	DefaultBassFastAlpha   = 0.30
	DefaultBassSmoothAlpha = 0.08
	DefaultBandAlpha       = 0.12
	DefaultSilenceLevel    = 0.001 // Peak below which capture counts as silent

	// Stream pipeline defaults
	DefaultFetchTool     = "yt-dlp"
	DefaultDecodeTool    = "ffmpeg"
	DefaultStreamRate    = 44100
	DefaultBufferSeconds = 2.0
	DefaultBackoff       = 500 * time.Microsecond
	DefaultStallTimeout  = 5 * time.Second

	// Recording defaults
	DefaultRecordingDir      = "./recordings"
	DefaultRecordingBitDepth = 16

	// Transport defaults
	DefaultWebSocketAddress = "127.0.0.1:8080"
	DefaultWebSocketPath    = "/ws"
	DefaultUDPTargetAddress = "127.0.0.1:9090"
	DefaultUDPSendInterval  = 33 * time.Millisecond // ~30Hz

	// Hardware and processing limits
	MinDeviceID      = -1     // -1 represents system default device
	MinSampleRate    = 8000   // Minimum usable sample rate (Hz)
	MaxSampleRate    = 192000 // Maximum supported sample rate (Hz)
	MaxBufferFrames  = 8192   // Maximum frames per buffer (power of 2)
	MaxInputChannels = 8
	MinFFTSize       = 64
	MaxFFTSize       = 32768
	MaxFrameRate     = 240
)

// Default returns the built-in configuration used when no file is present.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Source: SourceConfig{
			Kind: SourceMic,
		},
		Audio: AudioConfig{
			InputDevice:     DefaultDeviceID,
			OutputDevice:    DefaultDeviceID,
			SampleRate:      DefaultSampleRate,
			FramesPerBuffer: DefaultFramesPerBuffer,
			InputChannels:   DefaultInputChannels,
			OutputBackend:   DefaultOutputBackend,
			Playback:        true,
		},
		Analysis: AnalysisConfig{
			FFTSize:         DefaultFFTSize,
			Bars:            DefaultBars,
			FFTWindow:       DefaultFFTWindow,
			FrameRate:       DefaultFrameRate,
			MinFrequency:    DefaultMinFrequency,
			MaxFrequency:    DefaultMaxFrequency,
			BassLow:         DefaultBassLow,
			BassHigh:        DefaultBassHigh,
			BassFastAlpha:   DefaultBassFastAlpha,
			BassSmoothAlpha: DefaultBassSmoothAlpha,
			BandAlpha:       DefaultBandAlpha,
			SilenceLevel:    DefaultSilenceLevel,
		},
		Stream: StreamConfig{
			FetchTool:     DefaultFetchTool,
			DecodeTool:    DefaultDecodeTool,
			SampleRate:    DefaultStreamRate,
			BufferSeconds: DefaultBufferSeconds,
			Backoff:       DefaultBackoff,
			StallTimeout:  DefaultStallTimeout,
		},
		Recording: RecordingConfig{
			OutputDir: DefaultRecordingDir,
			BitDepth:  DefaultRecordingBitDepth,
		},
		Transport: TransportConfig{
			WebSocketAddress: DefaultWebSocketAddress,
			WebSocketPath:    DefaultWebSocketPath,
			UDPTargetAddress: DefaultUDPTargetAddress,
			UDPSendInterval:  DefaultUDPSendInterval,
		},
	}
}
