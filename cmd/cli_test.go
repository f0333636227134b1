// SPDX-License-Identifier: MIT
package cmd

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spectrum/internal/config"
	applog "spectrum/internal/log"
)

// withDefaults makes every run start from the built-in configuration.
func withDefaults(t *testing.T) *[]string {
	t.Helper()
	var paths []string
	orig := loadConfig
	t.Cleanup(func() { loadConfig = orig })
	loadConfig = func(path string) (*config.Config, error) {
		paths = append(paths, path)
		return config.Default(), nil
	}
	return &paths
}

func TestRootDefaultsToMic(t *testing.T) {
	withDefaults(t)
	opts, err := ParseArgs(nil)
	require.NoError(t, err)
	assert.Equal(t, CommandRun, opts.Command)
	assert.Equal(t, config.SourceMic, opts.Config.Source.Kind)
	assert.Equal(t, config.DefaultBars, opts.Config.Analysis.Bars)
}

func TestMicFlags(t *testing.T) {
	withDefaults(t)
	opts, err := ParseArgs([]string{"mic", "--pick", "--device=3", "-c", "2", "-s", "48000", "--record", "-o", "take.wav"})
	require.NoError(t, err)

	cfg := opts.Config
	assert.True(t, opts.Pick)
	assert.Equal(t, config.SourceMic, cfg.Source.Kind)
	assert.Equal(t, 3, cfg.Audio.InputDevice)
	assert.Equal(t, 2, cfg.Audio.InputChannels)
	assert.Equal(t, 48000.0, cfg.Audio.SampleRate)
	assert.True(t, cfg.Recording.Enabled)
	assert.Equal(t, "take.wav", cfg.Recording.OutputFile)
}

func TestUnsetFlagsKeepConfigValues(t *testing.T) {
	orig := loadConfig
	t.Cleanup(func() { loadConfig = orig })
	loadConfig = func(string) (*config.Config, error) {
		cfg := config.Default()
		cfg.Analysis.Bars = 64
		cfg.Audio.OutputBackend = config.BackendOto
		return cfg, nil
	}

	opts, err := ParseArgs([]string{"mic", "--fps", "30"})
	require.NoError(t, err)
	assert.Equal(t, 64, opts.Config.Analysis.Bars)
	assert.Equal(t, config.BackendOto, opts.Config.Audio.OutputBackend)
	assert.Equal(t, 30, opts.Config.Analysis.FrameRate)
}

func TestWAVCommand(t *testing.T) {
	withDefaults(t)

	opts, err := ParseArgs([]string{"wav"})
	require.NoError(t, err)
	assert.Equal(t, config.SourceWAV, opts.Config.Source.Kind)
	assert.Equal(t, config.DefaultWAVPath, opts.Config.Source.Path)
	assert.True(t, opts.Config.Audio.Playback)

	opts, err = ParseArgs([]string{"wav", "song.wav", "--playback=false", "--backend", "oto"})
	require.NoError(t, err)
	assert.Equal(t, "song.wav", opts.Config.Source.Path)
	assert.False(t, opts.Config.Audio.Playback)
	assert.Equal(t, config.BackendOto, opts.Config.Audio.OutputBackend)

	_, err = ParseArgs([]string{"wav", "a.wav", "b.wav"})
	assert.Error(t, err)
}

func TestURLCommand(t *testing.T) {
	paths := withDefaults(t)

	opts, err := ParseArgs([]string{"url", "https://example.com/v", "--config", "custom.yaml", "--websocket", "--udp", "--udp-addr", "10.0.0.2:9000"})
	require.NoError(t, err)
	cfg := opts.Config
	assert.Equal(t, config.SourceURL, cfg.Source.Kind)
	assert.Equal(t, "https://example.com/v", cfg.Source.URL)
	assert.True(t, cfg.Transport.WebSocketEnabled)
	assert.True(t, cfg.Transport.UDPEnabled)
	assert.Equal(t, "10.0.0.2:9000", cfg.Transport.UDPTargetAddress)
	assert.Equal(t, []string{"custom.yaml"}, *paths)

	_, err = ParseArgs([]string{"url"})
	assert.Error(t, err)
}

func TestListCommand(t *testing.T) {
	withDefaults(t)
	opts, err := ParseArgs([]string{"list", "-i"})
	require.NoError(t, err)
	assert.Equal(t, CommandList, opts.Command)
	assert.True(t, opts.Interactive)
}

func keepLogLevel(t *testing.T) {
	t.Helper()
	prev := applog.GetLevel()
	t.Cleanup(func() { applog.SetLevel(prev) })
}

func TestVerboseAndLogLevel(t *testing.T) {
	withDefaults(t)
	keepLogLevel(t)
	opts, err := ParseArgs([]string{"-v"})
	require.NoError(t, err)
	assert.Equal(t, "debug", opts.Config.LogLevel)

	opts, err = ParseArgs([]string{"--log-level", "warn"})
	require.NoError(t, err)
	assert.Equal(t, "warn", opts.Config.LogLevel)
}

func TestLogLevelAppliesBeforeConfigLoads(t *testing.T) {
	keepLogLevel(t)
	var atLoad applog.LogLevel
	orig := loadConfig
	t.Cleanup(func() { loadConfig = orig })
	loadConfig = func(string) (*config.Config, error) {
		atLoad = applog.GetLevel()
		return config.Default(), nil
	}

	applog.SetLevel(applog.LevelInfo)
	_, err := ParseArgs([]string{"wav", "-v"})
	require.NoError(t, err)
	assert.Equal(t, applog.LevelDebug, atLoad)

	_, err = ParseArgs([]string{"--log-level", "error"})
	require.NoError(t, err)
	assert.Equal(t, applog.LevelError, atLoad)

	t.Setenv("ENV_LOG_LEVEL", "warn")
	_, err = ParseArgs([]string{"mic"})
	require.NoError(t, err)
	assert.Equal(t, applog.LevelWarn, atLoad)
}

func TestInvalidFlagValues(t *testing.T) {
	withDefaults(t)
	_, err := ParseArgs([]string{"--fft-size", "1000"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "power of two")

	_, err = ParseArgs([]string{"--backend", "alsa"})
	assert.Error(t, err)
}

func TestConfigLoadError(t *testing.T) {
	orig := loadConfig
	t.Cleanup(func() { loadConfig = orig })
	loadConfig = func(string) (*config.Config, error) { return nil, errors.New("bad yaml") }

	_, err := ParseArgs([]string{"mic"})
	assert.EqualError(t, err, "bad yaml")
}

func TestVersionAndHelp(t *testing.T) {
	withDefaults(t)
	var out bytes.Buffer
	opts, err := parseArgs([]string{"--version"}, &out)
	require.NoError(t, err)
	assert.Empty(t, opts.Command)
	assert.Contains(t, out.String(), "spectrum")

	out.Reset()
	opts, err = parseArgs([]string{"--help"}, &out)
	require.NoError(t, err)
	assert.Empty(t, opts.Command)
	assert.Contains(t, out.String(), "Stream, play and analyze")
}

func TestLoadsConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("analysis:\n  bars: 32\n"), 0o644))

	opts, err := ParseArgs([]string{"mic", "--config", path})
	require.NoError(t, err)
	assert.Equal(t, 32, opts.Config.Analysis.Bars)
}
