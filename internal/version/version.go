package version

import (
	"fmt"
	"runtime"
)

// These variables are set at build time via ldflags.
var (
	// Release is the release version (e.g., "v1.0.0").
	Release = "dev"
	// GitCommit is the short git commit hash.
	GitCommit = "unknown"
	// Implementation identifies the service in client version strings.
	Implementation = "trace-processor"
)

// GetRelease returns the release version.
func GetRelease() string {
	return Release
}

// GetGitCommit returns the git commit hash.
func GetGitCommit() string {
	return GitCommit
}

// Short returns "<implementation>/<release>-<commit>".
func Short() string {
	return fmt.Sprintf("%s/%s-%s", Implementation, Release, GitCommit)
}

// Full appends the platform to Short, in the style of web3_clientVersion.
func Full() string {
	return fmt.Sprintf("%s/%s-%s/%s", Short(), runtime.GOOS, runtime.GOARCH, runtime.Version())
}
