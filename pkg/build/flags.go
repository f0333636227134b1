// SPDX-License-Identifier: MIT
//
// Package build carries the metadata that identifies a spectrum binary: its
// name, build time, commit and version. Release builds inject the values at
// link time:
//
//	go build -ldflags "-X spectrum/pkg/build.buildName=spectrum \
//	    -X spectrum/pkg/build.buildTime=$(date -u +%FT%TZ) \
//	    -X spectrum/pkg/build.buildCommit=$(git rev-parse --short HEAD) \
//	    -X spectrum/pkg/build.buildVersion=0.3.0"
//
// Development builds (go run, go test) inject nothing and fall back to the
// module information recorded by the Go toolchain.
package build

import (
	"fmt"
	"runtime/debug"
)

const (
	defaultName        = "spectrum"
	defaultDescription = "Real-time audio spectrum analyzer for mic, WAV and streamed sources"
	devValue           = "dev"
)

type ldFlags struct {
	Name        string
	Description string
	Time        string
	Commit      string
	Version     string
}

// String renders the flags the way the CLI prints them for --version.
func (f *ldFlags) String() string {
	return fmt.Sprintf("%s %s (commit %s, built %s)", f.Name, f.Version, f.Commit, f.Time)
}

var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
	buildFlags   = &ldFlags{
		Name:        defaultName,
		Description: defaultDescription,
		Time:        "unknown",
		Commit:      "unknown",
		Version:     "unknown",
	}

	readBuildInfo = debug.ReadBuildInfo
)

// Initialize copies the ldflags variables into the build flags. When none of
// them are set the binary is a development build and the flags are derived
// from runtime/debug build info. A partial set of ldflags is a broken release
// build and is reported as an error naming the first missing flag.
func Initialize() error {
	if buildName == "" && buildTime == "" && buildCommit == "" && buildVersion == "" {
		initializeDev()
		return nil
	}

	if buildName == "" {
		return fmt.Errorf("BuildName is required")
	}
	if buildTime == "" {
		return fmt.Errorf("BuildTime is required")
	}
	if buildCommit == "" {
		return fmt.Errorf("BuildCommit is required")
	}
	if buildVersion == "" {
		return fmt.Errorf("BuildVersion is required")
	}

	buildFlags.Name = buildName
	buildFlags.Time = buildTime
	buildFlags.Commit = buildCommit
	buildFlags.Version = buildVersion

	return nil
}

func initializeDev() {
	buildFlags.Name = defaultName
	buildFlags.Version = devValue
	buildFlags.Commit = devValue
	buildFlags.Time = devValue

	info, ok := readBuildInfo()
	if !ok {
		return
	}
	if v := info.Main.Version; v != "" && v != "(devel)" {
		buildFlags.Version = v
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			buildFlags.Commit = s.Value
		case "vcs.time":
			buildFlags.Time = s.Value
		}
	}
}

// GetBuildFlags returns the current build information. Initialize must be
// called first for the values to be meaningful.
func GetBuildFlags() *ldFlags {
	return buildFlags
}
