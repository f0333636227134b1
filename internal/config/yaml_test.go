// SPDX-License-Identifier: MIT
package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	t.Parallel()
	cfg, err := LoadConfig("")
	if err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
	if cfg == nil {
		t.Fatal("expected default config, got nil")
	}
	if cfg.Analysis.FFTSize != DefaultFFTSize || cfg.Source.Kind != SourceMic {
		t.Errorf("expected defaults, got %+v", cfg.Analysis)
	}
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	t.Parallel()
	cfg, err := LoadConfig("nonexistent.yaml")
	if err == nil {
		t.Errorf("expected error for missing file, got nil")
	}
	if cfg != nil {
		t.Errorf("expected nil config on error, got %+v", cfg)
	}
}

func TestLoadConfig_UnmarshalError(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, ":\n:bad")
	_, err := LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "failed to parse config file") {
		t.Error("expected unmarshal error, got nil or wrong error")
	}
}

func TestLoadConfig_FileValues(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, `
log_level: warn
source:
  kind: wav
  path: song.wav
audio:
  output_backend: oto
analysis:
  fft_size: 4096
  bars: 120
  fft_window: Hamming
stream:
  stall_timeout: 2s
  backoff: 1ms
transport:
  udp_enabled: true
  udp_send_interval: 50ms
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, SourceWAV, cfg.Source.Kind)
	assert.Equal(t, "song.wav", cfg.Source.Path)
	assert.Equal(t, BackendOto, cfg.Audio.OutputBackend)
	assert.Equal(t, 4096, cfg.Analysis.FFTSize)
	assert.Equal(t, 120, cfg.Analysis.Bars)
	assert.Equal(t, "Hamming", cfg.Analysis.FFTWindow)
	assert.Equal(t, 2*time.Second, cfg.Stream.StallTimeout)
	assert.Equal(t, time.Millisecond, cfg.Stream.Backoff)
	assert.True(t, cfg.Transport.UDPEnabled)
	assert.Equal(t, 50*time.Millisecond, cfg.Transport.UDPSendInterval)

	// Untouched sections keep their defaults.
	assert.Equal(t, DefaultBandAlpha, cfg.Analysis.BandAlpha)
	assert.Equal(t, DefaultFetchTool, cfg.Stream.FetchTool)
}

func TestLoadConfig_NonPowerOfTwoSuggestsSize(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, "analysis:\n  fft_size: 2000\n")
	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a power of two")
	assert.Contains(t, err.Error(), "2048")
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	path := writeTempConfig(t, "analysis:\n  bars: 16\n")
	t.Setenv("ENV_ANALYSIS_BARS", "48")
	t.Setenv("ENV_UDP_ENABLED", "true")
	t.Setenv("ENV_STREAM_STALL_TIMEOUT", "0s")
	t.Setenv("ENV_AUDIO_OUTPUT_DEVICE", "not-a-number")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 48, cfg.Analysis.Bars)
	assert.True(t, cfg.Transport.UDPEnabled)
	assert.Equal(t, time.Duration(0), cfg.Stream.StallTimeout)
	assert.Equal(t, DefaultDeviceID, cfg.Audio.OutputDevice)
}

func TestLoadConfig_DotEnv(t *testing.T) {
	path := writeTempConfig(t, "log_level: info\n")
	envPath := filepath.Join(filepath.Dir(path), ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("ENV_WS_ENABLED=true\nENV_WS_ADDRESS=127.0.0.1:9999\n"), 0644))

	t.Cleanup(func() {
		os.Unsetenv("ENV_WS_ENABLED")
		os.Unsetenv("ENV_WS_ADDRESS")
	})

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.True(t, cfg.Transport.WebSocketEnabled)
	assert.Equal(t, "127.0.0.1:9999", cfg.Transport.WebSocketAddress)
}

func TestLoadConfig_DebugForcesDebugLevel(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, "debug: true\nlog_level: error\n")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"bad kind", func(c *Config) { c.Source.Kind = "radio" }, "source.kind"},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"fft too small", func(c *Config) { c.Analysis.FFTSize = 32 }, "outside"},
		{"zero bars", func(c *Config) { c.Analysis.Bars = 0 }, "analysis.bars"},
		{"bars above half", func(c *Config) { c.Analysis.Bars = c.Analysis.FFTSize }, "analysis.bars"},
		{"zero frame rate", func(c *Config) { c.Analysis.FrameRate = 0 }, "frame_rate"},
		{"inverted range", func(c *Config) { c.Analysis.MaxFrequency = 10 }, "frequency range"},
		{"alpha above one", func(c *Config) { c.Analysis.BandAlpha = 1.5 }, "band_alpha"},
		{"bad backend", func(c *Config) { c.Audio.OutputBackend = "alsa" }, "output_backend"},
		{"sample rate too low", func(c *Config) { c.Audio.SampleRate = 100 }, "sample_rate"},
		{"device auto rate", func(c *Config) { c.Audio.SampleRate = 0 }, ""},
		{"zero backoff", func(c *Config) { c.Stream.Backoff = 0 }, "backoff"},
		{"negative stall", func(c *Config) { c.Stream.StallTimeout = -time.Second }, "stall_timeout"},
		{"udp missing port", func(c *Config) {
			c.Transport.UDPEnabled = true
			c.Transport.UDPTargetAddress = "localhost"
		}, "missing port"},
		{"ws bad path", func(c *Config) {
			c.Transport.WebSocketEnabled = true
			c.Transport.WebSocketPath = "ws"
		}, "websocket_path"},
		{"recording 24 bit", func(c *Config) {
			c.Recording.Enabled = true
			c.Recording.BitDepth = 24
		}, "bit_depth"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateSource(t *testing.T) {
	t.Parallel()

	cfg := Default()
	assert.NoError(t, cfg.ValidateSource())

	cfg.Source.Kind = SourceWAV
	assert.Error(t, cfg.ValidateSource())
	cfg.Source.Path = "a.wav"
	assert.NoError(t, cfg.ValidateSource())

	cfg.Source.Kind = SourceURL
	cfg.Source.URL = "   "
	assert.Error(t, cfg.ValidateSource())
}
