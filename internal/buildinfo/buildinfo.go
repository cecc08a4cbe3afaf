// Package buildinfo provides build-time information for portmon
// binaries. Build information is injected at compile time via ldflags.
package buildinfo

import "fmt"

// Build information variables - injected at compile time via ldflags
var (
	Version    = "dev"
	CommitHash = "unknown"
	BuildTime  = "unknown"
	BuildUser  = "unknown"
	BuildHost  = "unknown"
)

// Info is a structured representation of the build information
type Info struct {
	Version    string `json:"version"`
	CommitHash string `json:"commit_hash"`
	BuildTime  string `json:"build_time"`
	BuildUser  string `json:"build_user"`
	BuildHost  string `json:"build_host"`
}

// Get returns the current build information as a structured Info
func Get() Info {
	return Info{
		Version:    Version,
		CommitHash: CommitHash,
		BuildTime:  BuildTime,
		BuildUser:  BuildUser,
		BuildHost:  BuildHost,
	}
}

// String renders the build information on one line for version output.
func (i Info) String() string {
	return fmt.Sprintf("portmon %s (commit %s, built %s)", i.Version, i.CommitHash, i.BuildTime)
}
