package app

import (
	"fmt"
	"runtime/debug"
	"strings"
	"time"
)

var (
	// Version is filled by ldflags in release builds.
	Version = "dev"
	// BuildDate is filled by ldflags in release builds.
	BuildDate = ""
	// Commit is filled by ldflags; otherwise taken from VCS stamping.
	Commit = ""
)

func BuildVersion() string {
	if version := strings.TrimSpace(Version); version != "" {
		return version
	}

	return "dev"
}

func BuildDateYMD() string {
	raw := strings.TrimSpace(BuildDate)
	if raw == "" {
		return ""
	}

	if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
		return parsed.Format(time.DateOnly)
	}
	if len(raw) >= len(time.DateOnly) {
		if _, err := time.Parse(time.DateOnly, raw[:len(time.DateOnly)]); err == nil {
			return raw[:len(time.DateOnly)]
		}
	}

	return raw
}

// BuildCommit returns the short commit hash, if known.
func BuildCommit() string {
	commit := strings.TrimSpace(Commit)
	if commit == "" {
		commit = vcsRevision()
	}
	if len(commit) > 12 {
		commit = commit[:12]
	}

	return commit
}

func vcsRevision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" {
			return s.Value
		}
	}

	return ""
}

// BuildString is what `menuctl version` prints, e.g. "1.0.0 (2026-01-30, 0a1b2c3d4e5f)".
func BuildString() string {
	var extra []string
	if date := BuildDateYMD(); date != "" {
		extra = append(extra, date)
	}
	if commit := BuildCommit(); commit != "" {
		extra = append(extra, commit)
	}
	if len(extra) == 0 {
		return BuildVersion()
	}

	return fmt.Sprintf("%s (%s)", BuildVersion(), strings.Join(extra, ", "))
}
