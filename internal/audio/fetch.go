// SPDX-License-Identifier: MIT
package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"spectrum/internal/config"
	applog "spectrum/internal/log"
)

const (
	fetchFormat   = "bestaudio[ext=m4a]/bestaudio[ext=mp4]/bestaudio"
	fetchBaseName = "audio"
)

// Install hints for the external tools, keyed by executable name.
var toolHints = map[string]string{
	config.DefaultFetchTool:  "Install yt-dlp (https://github.com/yt-dlp/yt-dlp#installation), e.g. 'pip install yt-dlp'.",
	config.DefaultDecodeTool: "Install ffmpeg (https://ffmpeg.org/download.html) or use your package manager, e.g. 'apt install ffmpeg'.",
}

// SanitizeURL removes backslashes left by shell escaping and surrounding
// whitespace.
func SanitizeURL(raw string) string {
	return strings.TrimSpace(strings.ReplaceAll(raw, `\`, ""))
}

// checkTools verifies every tool resolves on PATH.
func checkTools(tools ...string) error {
	for _, tool := range tools {
		if _, err := lookPathFunc(tool); err != nil {
			se := startError(config.SourceURL, "find "+tool, ErrToolNotFound, err)
			se.Hint = toolHints[filepath.Base(tool)]
			if se.Hint == "" {
				se.Hint = fmt.Sprintf("Make sure %q is installed and on PATH.", tool)
			}
			return se
		}
	}
	return nil
}

func fetchArgs(url, template string) []string {
	return []string{"-f", fetchFormat, "--no-playlist", "-o", template, url}
}

// Download is a fetched media file in its own temporary directory.
type Download struct {
	Path string
	dir  string
}

// Remove deletes the file and its directory.
func (d *Download) Remove() error {
	if d == nil || d.dir == "" {
		return nil
	}
	if err := os.RemoveAll(d.dir); err != nil {
		return fmt.Errorf("failed to remove download: %w", err)
	}
	return nil
}

// Fetcher downloads the audio of a media URL with an external tool.
type Fetcher struct {
	Tool    string
	TempDir string // Parent for the download directory, "" for os.TempDir.
}

// Fetch runs the tool to completion and returns the produced file.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Download, error) {
	dir, err := os.MkdirTemp(f.TempDir, "spectrum-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create download directory: %w", err)
	}
	dl := &Download{dir: dir}

	template := filepath.Join(dir, fetchBaseName+".%(ext)s")
	cmd := commandContext(ctx, f.Tool, fetchArgs(url, template)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	applog.Infof("stream: fetching %s", url)
	if err := cmd.Run(); err != nil {
		dl.Remove()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if msg := lastLine(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%s failed: %w: %s", f.Tool, err, msg)
		}
		return nil, fmt.Errorf("%s failed: %w", f.Tool, err)
	}

	path, err := findDownload(dir)
	if err != nil {
		dl.Remove()
		return nil, err
	}
	dl.Path = path
	applog.Debugf("stream: downloaded %s", path)
	return dl, nil
}

// findDownload returns the completed file named after the output template.
func findDownload(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read download directory: %w", err)
	}
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || !strings.HasPrefix(name, fetchBaseName+".") || strings.HasSuffix(name, ".part") {
			continue
		}
		return filepath.Join(dir, name), nil
	}
	return "", errors.New("no audio file was produced")
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(s)
}
