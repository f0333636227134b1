// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	applog "spectrum/internal/log"
	"spectrum/pkg/bitint"
)

// Config represents the main application configuration structure, loaded from YAML.
type Config struct {
	Debug     bool            `yaml:"debug"`     // Enable debug mode (forces log_level debug).
	LogLevel  string          `yaml:"log_level"` // Logging level (e.g., "debug", "info", "warn", "error").
	Source    SourceConfig    `yaml:"source"`    // Which audio source feeds the analyzer.
	Audio     AudioConfig     `yaml:"audio"`     // Audio device settings.
	Analysis  AnalysisConfig  `yaml:"analysis"`  // Spectral analysis settings.
	Stream    StreamConfig    `yaml:"stream"`    // URL stream pipeline settings.
	Recording RecordingConfig `yaml:"recording"` // Microphone recording settings.
	Transport TransportConfig `yaml:"transport"` // Frame publishing settings.
}

// SourceConfig selects the audio source.
type SourceConfig struct {
	Kind string `yaml:"kind"` // "mic", "wav" or "url".
	Path string `yaml:"path"` // WAV file path for kind "wav".
	URL  string `yaml:"url"`  // Media URL for kind "url".
}

// AudioConfig holds settings related to audio input/output devices.
type AudioConfig struct {
	InputDevice     int     `yaml:"input_device"`      // PortAudio device index for capture (-1 for default).
	OutputDevice    int     `yaml:"output_device"`     // PortAudio device index for playback (-1 for default).
	SampleRate      float64 `yaml:"sample_rate"`       // Requested capture rate in Hz; 0 uses the device default.
	FramesPerBuffer int     `yaml:"frames_per_buffer"` // Frames per PortAudio callback.
	LowLatency      bool    `yaml:"low_latency"`       // Request low latency settings from PortAudio.
	InputChannels   int     `yaml:"input_channels"`    // Channels captured before the mono downmix.
	OutputBackend   string  `yaml:"output_backend"`    // "portaudio" or "oto".
	Playback        bool    `yaml:"playback"`          // Play WAV sources through the output device.
}

// AnalysisConfig holds settings for the spectral analyzer and its driver.
type AnalysisConfig struct {
	FFTSize         int     `yaml:"fft_size"`          // Transform size, a power of two.
	Bars            int     `yaml:"bars"`              // Number of log-spaced bands.
	FFTWindow       string  `yaml:"fft_window"`        // Window function name (e.g., "Hann", "Hamming").
	FrameRate       int     `yaml:"frame_rate"`        // Analysis ticks per second.
	MinFrequency    float64 `yaml:"min_frequency"`     // Lowest band edge in Hz.
	MaxFrequency    float64 `yaml:"max_frequency"`     // Highest band edge in Hz, capped at Nyquist.
	BassLow         float64 `yaml:"bass_low"`          // Bass range lower edge in Hz.
	BassHigh        float64 `yaml:"bass_high"`         // Bass range upper edge in Hz.
	BassFastAlpha   float64 `yaml:"bass_fast_alpha"`   // Fast bass smoothing coefficient.
	BassSmoothAlpha float64 `yaml:"bass_smooth_alpha"` // Slow bass smoothing coefficient.
	BandAlpha       float64 `yaml:"band_alpha"`        // Band smoothing coefficient.
	SilenceLevel    float64 `yaml:"silence_level"`     // Capture peak treated as silence (0 disables the warning).
}

// StreamConfig holds settings for the fetch/decode/playback pipeline.
type StreamConfig struct {
	FetchTool     string        `yaml:"fetch_tool"`     // Media fetch executable.
	DecodeTool    string        `yaml:"decode_tool"`    // Decoder executable.
	SampleRate    int           `yaml:"sample_rate"`    // Decoder output rate in Hz.
	BufferSeconds float64       `yaml:"buffer_seconds"` // Audio ring capacity in seconds.
	Backoff       time.Duration `yaml:"backoff"`        // Sleep between pushes when the audio ring is full.
	StallTimeout  time.Duration `yaml:"stall_timeout"`  // Abort when playback makes no progress this long (0 disables).
	TempDir       string        `yaml:"temp_dir"`       // Parent directory for downloads (empty uses os.TempDir).
}

// RecordingConfig holds settings related to audio recording functionality.
type RecordingConfig struct {
	Enabled     bool   `yaml:"enabled"`              // Record microphone input to a WAV file.
	OutputDir   string `yaml:"output_dir"`           // Directory for generated file names.
	OutputFile  string `yaml:"output_file"`          // Explicit output path; overrides output_dir.
	BitDepth    int    `yaml:"bit_depth"`            // Bit depth for recorded audio (16).
	MaxDuration int    `yaml:"max_duration_seconds"` // Stop recording after this many seconds (0 for unlimited).
}

// TransportConfig holds settings related to publishing analysis frames.
type TransportConfig struct {
	WebSocketEnabled bool          `yaml:"websocket_enabled"`  // Serve frames as JSON over WebSocket.
	WebSocketAddress string        `yaml:"websocket_address"`  // Listen address for the WebSocket server.
	WebSocketPath    string        `yaml:"websocket_path"`     // HTTP path of the WebSocket endpoint.
	UDPEnabled       bool          `yaml:"udp_enabled"`        // Send frames as binary UDP packets.
	UDPTargetAddress string        `yaml:"udp_target_address"` // Target address and port for UDP packets.
	UDPSendInterval  time.Duration `yaml:"udp_send_interval"`  // Interval between UDP packets.
	LogFrames        bool          `yaml:"log_frames"`         // Log frame summaries at debug level.
}

// LoadConfig loads configuration from a YAML file specified by path. If path is empty,
// it searches default locations ("config.yaml"). If no file is found, it uses built-in
// defaults. A .env file next to the config (or in the working directory) is loaded
// before environment variable overrides are applied, then the result is validated.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		candidates := []string{
			"config.yaml",
			"config.yml",
		}
		for _, candidate := range candidates {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	envDir := "."
	if path != "" {
		envDir = filepath.Dir(path)
	}
	if err := loadDotEnv(filepath.Join(envDir, ".env")); err != nil {
		return nil, err
	}

	// Apply environment variable overrides AFTER loading from file.
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadDotEnv populates unset environment variables from a dotenv file.
// A missing file is not an error.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	applog.Debugf("configuration: loaded environment from %s", path)
	return nil
}

// Validate checks every section against the engine's hard limits.
func (c *Config) Validate() error {
	if _, ok := applog.ParseLevel(c.LogLevel); !ok && c.LogLevel != "" {
		return fmt.Errorf("log_level %q is not one of debug, info, warn, error", c.LogLevel)
	}

	switch c.Source.Kind {
	case SourceMic, SourceWAV, SourceURL:
	default:
		return fmt.Errorf("source.kind %q must be one of %s, %s, %s", c.Source.Kind, SourceMic, SourceWAV, SourceURL)
	}

	a := c.Audio
	if a.InputDevice < MinDeviceID || a.OutputDevice < MinDeviceID {
		return fmt.Errorf("audio device ids must be >= %d", MinDeviceID)
	}
	if a.SampleRate != 0 && (a.SampleRate < MinSampleRate || a.SampleRate > MaxSampleRate) {
		return fmt.Errorf("audio.sample_rate %.0f outside [%d, %d]", a.SampleRate, MinSampleRate, MaxSampleRate)
	}
	if a.FramesPerBuffer <= 0 || a.FramesPerBuffer > MaxBufferFrames {
		return fmt.Errorf("audio.frames_per_buffer %d outside [1, %d]", a.FramesPerBuffer, MaxBufferFrames)
	}
	if a.InputChannels < 1 || a.InputChannels > MaxInputChannels {
		return fmt.Errorf("audio.input_channels %d outside [1, %d]", a.InputChannels, MaxInputChannels)
	}
	switch a.OutputBackend {
	case BackendPortAudio, BackendOto:
	default:
		return fmt.Errorf("audio.output_backend %q must be %s or %s", a.OutputBackend, BackendPortAudio, BackendOto)
	}

	if err := c.Analysis.validate(); err != nil {
		return err
	}

	s := c.Stream
	if s.FetchTool == "" || s.DecodeTool == "" {
		return fmt.Errorf("stream.fetch_tool and stream.decode_tool must be set")
	}
	if s.SampleRate < MinSampleRate || s.SampleRate > MaxSampleRate {
		return fmt.Errorf("stream.sample_rate %d outside [%d, %d]", s.SampleRate, MinSampleRate, MaxSampleRate)
	}
	if s.BufferSeconds <= 0 {
		return fmt.Errorf("stream.buffer_seconds must be positive")
	}
	if s.Backoff <= 0 {
		return fmt.Errorf("stream.backoff must be positive")
	}
	if s.StallTimeout < 0 {
		return fmt.Errorf("stream.stall_timeout must not be negative")
	}

	if c.Recording.Enabled && c.Recording.BitDepth != 16 {
		return fmt.Errorf("recording.bit_depth %d unsupported (only 16)", c.Recording.BitDepth)
	}
	if c.Recording.MaxDuration < 0 {
		return fmt.Errorf("recording.max_duration_seconds must not be negative")
	}

	t := c.Transport
	if t.UDPEnabled {
		if t.UDPTargetAddress == "" {
			return fmt.Errorf("transport.udp_target_address must be set when UDP is enabled")
		}
		if !strings.Contains(t.UDPTargetAddress, ":") {
			return fmt.Errorf("transport.udp_target_address '%s' appears invalid (missing port?)", t.UDPTargetAddress)
		}
		if t.UDPSendInterval <= 0 {
			return fmt.Errorf("transport.udp_send_interval must be positive when UDP is enabled")
		}
	}
	if t.WebSocketEnabled {
		if !strings.Contains(t.WebSocketAddress, ":") {
			return fmt.Errorf("transport.websocket_address '%s' appears invalid (missing port?)", t.WebSocketAddress)
		}
		if !strings.HasPrefix(t.WebSocketPath, "/") {
			return fmt.Errorf("transport.websocket_path '%s' must start with /", t.WebSocketPath)
		}
	}

	return nil
}

func (a AnalysisConfig) validate() error {
	if !bitint.IsPowerOfTwo(a.FFTSize) {
		return fmt.Errorf("analysis.fft_size %d is not a power of two (try %d)", a.FFTSize, bitint.NextPowerOfTwo(a.FFTSize))
	}
	if a.FFTSize < MinFFTSize || a.FFTSize > MaxFFTSize {
		return fmt.Errorf("analysis.fft_size %d outside [%d, %d]", a.FFTSize, MinFFTSize, MaxFFTSize)
	}
	if a.Bars <= 0 || a.Bars > a.FFTSize/2 {
		return fmt.Errorf("analysis.bars %d outside [1, %d]", a.Bars, a.FFTSize/2)
	}
	if a.FrameRate <= 0 || a.FrameRate > MaxFrameRate {
		return fmt.Errorf("analysis.frame_rate %d outside [1, %d]", a.FrameRate, MaxFrameRate)
	}
	if a.MinFrequency <= 0 || a.MaxFrequency <= a.MinFrequency {
		return fmt.Errorf("analysis frequency range %.1f..%.1f is empty", a.MinFrequency, a.MaxFrequency)
	}
	if a.BassLow < 0 || a.BassHigh <= a.BassLow {
		return fmt.Errorf("analysis bass range %.1f..%.1f is empty", a.BassLow, a.BassHigh)
	}
	if a.SilenceLevel < 0 || a.SilenceLevel > 1 {
		return fmt.Errorf("analysis.silence_level %.3f outside [0, 1]", a.SilenceLevel)
	}
	for name, alpha := range map[string]float64{
		"bass_fast_alpha":   a.BassFastAlpha,
		"bass_smooth_alpha": a.BassSmoothAlpha,
		"band_alpha":        a.BandAlpha,
	} {
		if alpha <= 0 || alpha > 1 {
			return fmt.Errorf("analysis.%s %.3f outside (0, 1]", name, alpha)
		}
	}
	return nil
}

// ValidateSource checks that the selected source carries its input. It is
// separate from Validate because the CLI fills the path or URL after loading.
func (c *Config) ValidateSource() error {
	switch c.Source.Kind {
	case SourceWAV:
		if strings.TrimSpace(c.Source.Path) == "" {
			return fmt.Errorf("source.path is required for a wav source")
		}
	case SourceURL:
		if strings.TrimSpace(c.Source.URL) == "" {
			return fmt.Errorf("source.url is required for a url source")
		}
	}
	return nil
}

// applyEnvOverrides applies ENV_* variables on top of the file values.
// Unparseable values are ignored and logged.
func (cfg *Config) applyEnvOverrides() {
	// ENV_{...}
	// These are general overrides.
	envBool("ENV_DEBUG", &cfg.Debug)
	envString("ENV_LOG_LEVEL", &cfg.LogLevel)

	// ENV_SOURCE_{...}
	envString("ENV_SOURCE_KIND", &cfg.Source.Kind)
	envString("ENV_SOURCE_PATH", &cfg.Source.Path)
	envString("ENV_SOURCE_URL", &cfg.Source.URL)

	// ENV_AUDIO_{...}
	envInt("ENV_AUDIO_INPUT_DEVICE", &cfg.Audio.InputDevice)
	envInt("ENV_AUDIO_OUTPUT_DEVICE", &cfg.Audio.OutputDevice)
	envString("ENV_AUDIO_OUTPUT_BACKEND", &cfg.Audio.OutputBackend)

	// ENV_ANALYSIS_{...}
	envInt("ENV_ANALYSIS_FFT_SIZE", &cfg.Analysis.FFTSize)
	envInt("ENV_ANALYSIS_BARS", &cfg.Analysis.Bars)
	envInt("ENV_ANALYSIS_FRAME_RATE", &cfg.Analysis.FrameRate)
	envString("ENV_ANALYSIS_FFT_WINDOW", &cfg.Analysis.FFTWindow)

	// ENV_STREAM_{...}
	envString("ENV_STREAM_FETCH_TOOL", &cfg.Stream.FetchTool)
	envString("ENV_STREAM_DECODE_TOOL", &cfg.Stream.DecodeTool)
	envDuration("ENV_STREAM_STALL_TIMEOUT", &cfg.Stream.StallTimeout)

	// ENV_UDP_{...} and ENV_WS_{...}
	// These are specific to the transport layer.
	envBool("ENV_UDP_ENABLED", &cfg.Transport.UDPEnabled)
	envString("ENV_UDP_TARGET_ADDRESS", &cfg.Transport.UDPTargetAddress)
	envDuration("ENV_UDP_SEND_INTERVAL", &cfg.Transport.UDPSendInterval)
	envBool("ENV_WS_ENABLED", &cfg.Transport.WebSocketEnabled)
	envString("ENV_WS_ADDRESS", &cfg.Transport.WebSocketAddress)

	if cfg.Debug {
		cfg.LogLevel = "debug"
	}
}

func envString(key string, dst *string) {
	if val, ok := os.LookupEnv(key); ok {
		*dst = val
		applog.Debugf("configuration: overriding from %s: %s", key, val)
	}
}

func envBool(key string, dst *bool) {
	val, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		applog.Warnf("configuration: ignoring %s=%q: %v", key, val, err)
		return
	}
	*dst = b
	applog.Debugf("configuration: overriding from %s: %v", key, b)
}

func envInt(key string, dst *int) {
	val, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		applog.Warnf("configuration: ignoring %s=%q: %v", key, val, err)
		return
	}
	*dst = n
	applog.Debugf("configuration: overriding from %s: %d", key, n)
}

func envDuration(key string, dst *time.Duration) {
	val, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		applog.Warnf("configuration: ignoring %s=%q: %v", key, val, err)
		return
	}
	*dst = d
	applog.Debugf("configuration: overriding from %s: %s", key, d)
}
