// Package version carries build metadata injected with -ldflags.
package version

import "fmt"

var (
	// Version is the current application version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// UserAgent is sent with every backend request.
func UserAgent() string {
	return fmt.Sprintf("gpsreport/%s (%s)", Version, GitSHA)
}

// String renders the one-line banner printed by `gpsreport -version`.
func String() string {
	return fmt.Sprintf("gpsreport %s (commit %s, built %s)", Version, GitSHA, BuildTime)
}
