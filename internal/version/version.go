// Package version reports the buildwp build identity.
package version

import (
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

// Info describes the running binary.
type Info struct {
	Version   string    `json:"version"`
	GitCommit string    `json:"git_commit"`
	BuildTime time.Time `json:"build_time"`
	GoVersion string    `json:"go_version"`
	Platform  string    `json:"platform"`
	Modified  bool      `json:"modified,omitempty"`
}

// Set at link time:
//
//	-ldflags "-X github.com/conneroisu/buildwp/internal/version.Version=v1.0.0"
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// readBuildInfo is swapped in tests.
var readBuildInfo = debug.ReadBuildInfo

// Get collects the build information.
func Get() Info {
	return Info{
		Version:   resolveVersion(),
		GitCommit: resolveCommit(),
		BuildTime: parseTime(BuildTime),
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		Modified:  setting("vcs.modified") == "true",
	}
}

// Short is the one-word form printed by `buildwp version --short`.
func (i Info) Short() string {
	if i.Version == "dev" && len(i.GitCommit) >= 7 && i.GitCommit != "unknown" {
		return "dev-" + i.GitCommit[:7]
	}
	return i.Version
}

// String renders every known field, one per line.
func (i Info) String() string {
	lines := []string{"buildwp " + i.Version}
	if i.GitCommit != "unknown" {
		commit := i.GitCommit
		if i.Modified {
			commit += " (modified)"
		}
		lines = append(lines, "commit:   "+commit)
	}
	if !i.BuildTime.IsZero() {
		lines = append(lines, "built:    "+i.BuildTime.Format(time.RFC3339))
	}
	lines = append(lines,
		"go:       "+i.GoVersion,
		"platform: "+i.Platform,
	)
	return strings.Join(lines, "\n")
}

func resolveVersion() string {
	if Version != "" && Version != "dev" {
		return Version
	}
	if info, ok := readBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "dev"
}

func resolveCommit() string {
	if GitCommit != "" && GitCommit != "unknown" {
		return GitCommit
	}
	if rev := setting("vcs.revision"); rev != "" {
		return rev
	}
	return "unknown"
}

func setting(key string) string {
	info, ok := readBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range info.Settings {
		if s.Key == key {
			return s.Value
		}
	}
	return ""
}

// parseTime accepts RFC3339 and a few looser layouts; anything else is zero.
func parseTime(s string) time.Time {
	if s == "" || s == "unknown" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

