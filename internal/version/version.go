// Package version carries build identification, overridden at link time.
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

// String formats the build identification for logs and the -version flag.
func String() string {
	return fmt.Sprintf("ionofit %s (%s, built %s)", Version, GitSHA, BuildTime)
}
