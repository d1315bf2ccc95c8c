// Package version identifies the streamer build.
package version

import "fmt"

// Set at build time via -ldflags.
var (
	// Name is the application name.
	Name = "tidal-streamer"

	// Version is the semantic version.
	Version = "1.1.0"

	// GitCommit is the git commit hash.
	GitCommit = ""
)

// Info is the build identity reported by the control surface.
type Info struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	GitCommit string `json:"gitCommit,omitempty"`
}

// GetInfo returns the current build identity.
func GetInfo() Info {
	return Info{
		Name:      Name,
		Version:   Version,
		GitCommit: GitCommit,
	}
}

// String formats the identity for the startup log line.
func (i Info) String() string {
	s := fmt.Sprintf("%s v%s", i.Name, i.Version)
	if i.GitCommit != "" {
		s += fmt.Sprintf(" (%s)", i.GitCommit[:min(7, len(i.GitCommit))])
	}
	return s
}
