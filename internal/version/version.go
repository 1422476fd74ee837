// Package version provides build information for the narrative sequencer.
package version

import "runtime/debug"

// Version and Commit can be overridden at build time using:
//
//	go build -ldflags "-X github.com/AaronLay10/NarrativeEngine/internal/version.Version=x.y.z"
var (
	Version = "0.1.0"
	Commit  = ""
)

// String renders the version with the VCS revision when one is known.
func String() string {
	commit := Commit
	if commit == "" {
		if info, ok := debug.ReadBuildInfo(); ok {
			for _, s := range info.Settings {
				if s.Key == "vcs.revision" {
					commit = s.Value
				}
			}
		}
	}
	if len(commit) > 12 {
		commit = commit[:12]
	}
	if commit == "" {
		return Version
	}
	return Version + " (" + commit + ")"
}
