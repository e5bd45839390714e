// Package version exposes build metadata stamped by the release
// pipeline. Release builds set the package variables through ldflags;
// source builds fall back to the VCS info Go embeds so a field unit
// still reports what it runs.
package version

import (
	"runtime"
	"runtime/debug"
)

// Set at build time:
//
//	go build -ldflags "-X <module>/internal/version.Version=v1.4.0 ..."
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
	BuildID   = "unknown"
)

// Info is the full build fingerprint reported by /api/version and the
// update subcommand.
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	BuildID   string `json:"build_id"`
	GoVersion string `json:"go_version"`
	Compiler  string `json:"compiler"`
	Platform  string `json:"platform"`
}

// Get assembles the build fingerprint. Commit and date missing from
// ldflags are recovered from the module build info when available.
func Get() Info {
	info := Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		BuildID:   BuildID,
		GoVersion: runtime.Version(),
		Compiler:  runtime.Compiler,
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if info.GitCommit != "unknown" && info.BuildDate != "unknown" {
		return info
	}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	revision, at, dirty := "", "", false
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.time":
			at = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if info.GitCommit == "unknown" && revision != "" {
		if dirty {
			revision += "-dirty"
		}
		info.GitCommit = revision
	}
	if info.BuildDate == "unknown" && at != "" {
		info.BuildDate = at
	}
	return info
}

// String returns the bare version for one-line displays.
func String() string {
	return Version
}

// IsDev reports whether this is an unstamped source build. Dev builds
// treat any published release as newer.
func IsDev() bool {
	return Version == "dev"
}
