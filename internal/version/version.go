// Package version exposes the build metadata stamped into the binary.
package version

import (
	"fmt"
	"runtime"
)

// Set at build time via -ldflags "-X .../internal/version.Version=v1.2.3".
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// Short returns just the version tag.
func Short() string {
	return Version
}

// Info returns the one-line description printed by the version command.
func Info() string {
	commit := Commit
	if len(commit) > 7 {
		commit = commit[:7]
	}
	return fmt.Sprintf("ganauditor %s (commit %s, built %s, %s %s/%s)",
		Version, commit, BuildDate, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
