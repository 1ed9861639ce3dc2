// Package version describes the savesync build. Release builds set the
// variables below with -ldflags; `go install` builds fall back to the VCS
// stamp the Go toolchain embeds.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set via -ldflags "-X github.com/teranos/savesync/version.Version=..."
var (
	Version    = "dev"
	CommitHash = "dev"
	BuildTime  = "unknown"
)

// Info is the build a binary or a running bridge reports
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	Dirty     bool   `json:"dirty,omitempty"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// Get returns the build information of this binary
func Get() Info {
	info := Info{
		Version:   Version,
		Commit:    CommitHash,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		info = fromBuildInfo(info, bi)
	}
	return info
}

// fromBuildInfo fills what ldflags left at its defaults from the embedded VCS stamp
func fromBuildInfo(info Info, bi *debug.BuildInfo) Info {
	if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	if info.Commit != "dev" {
		return info
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			info.Commit = s.Value
		case "vcs.time":
			if info.BuildTime == "unknown" {
				info.BuildTime = s.Value
			}
		case "vcs.modified":
			info.Dirty = s.Value == "true"
		}
	}
	return info
}

// String is the line `savesync version` prints
func (i Info) String() string {
	s := fmt.Sprintf("savesync %s (commit %s, built %s)", i.Version, i.Commit, i.BuildTime)
	if i.Dirty {
		s += " with local changes"
	}
	return s
}

// Short identifies the build in bridge responses: the tagged version, or the
// abbreviated commit for untagged builds
func (i Info) Short() string {
	s := i.Version
	if s == "dev" {
		s = i.Commit
		if len(s) > 7 {
			s = s[:7]
		}
	}
	if i.Dirty {
		s += "-dirty"
	}
	return s
}

// UserAgent is sent by the CLI when it talks to a running bridge
func (i Info) UserAgent() string {
	return "savesync/" + i.Short()
}
