// Package version reports the build of the relay and client binaries.
package version

import "runtime/debug"

// Version and Commit are set at link time, for example:
//
//	go build -ldflags="-X 'github.com/Prince200510/mini-meet-prince/internal/version.Version=v1.0.0'"
var (
	Version = "dev"
	Commit  = ""
)

// String returns the version, followed by the short commit when known.
// Unset commits fall back to the VCS stamp the toolchain embeds.
func String() string {
	commit := Commit
	if commit == "" {
		commit = vcsRevision()
	}
	if len(commit) > 7 {
		commit = commit[:7]
	}
	if commit == "" {
		return Version
	}
	return Version + " (" + commit + ")"
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
