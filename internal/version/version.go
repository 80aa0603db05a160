// Package version reports build metadata injected with -ldflags.
package version

import (
	"runtime"
	"runtime/debug"
)

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// String renders version metadata, filling the commit from VCS build info
// when ldflags did not set it.
func String() string {
	commit := Commit
	if commit == "none" {
		if rev := vcsRevision(); rev != "" {
			commit = rev
		}
	}
	return "glimpse " + Version + " (commit=" + commit + ", date=" + Date + ", go=" + runtime.Version() + ")"
}

func vcsRevision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" {
			if len(s.Value) > 12 {
				return s.Value[:12]
			}
			return s.Value
		}
	}
	return ""
}
