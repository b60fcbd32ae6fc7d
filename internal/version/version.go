// Package version provides build-time version information.
package version

import (
	"fmt"
	"runtime"
)

// Build-time variables set via ldflags.
// Example: go build -ldflags="-X github.com/easeaico/adk-task-harness/internal/version.Version=v1.0.0"
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// Short returns the version string (e.g., "v1.2.3" or "dev").
func Short() string {
	return Version
}

// Info returns a single-line version string with commit and Go version.
func Info() string {
	return fmt.Sprintf("harness %s (commit: %s, go: %s)", Version, shortCommit(), runtime.Version())
}

// Full returns multi-line build information.
func Full() string {
	return fmt.Sprintf("harness %s\n  commit:     %s\n  built:      %s\n  go version: %s\n  platform:   %s/%s",
		Version, Commit, BuildDate, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

func shortCommit() string {
	if len(Commit) > 7 {
		return Commit[:7]
	}
	return Commit
}
