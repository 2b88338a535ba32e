// Package buildinfo provides build-time version information.
//
// Variables are set via ldflags during build:
//
//	go build -ldflags "-X github.com/matzehuels/rapidsbuild/pkg/buildinfo.Version=v0.4.0 \
//	    -X github.com/matzehuels/rapidsbuild/pkg/buildinfo.Commit=$(git rev-parse HEAD) \
//	    -X github.com/matzehuels/rapidsbuild/pkg/buildinfo.Date=$(date -u +%Y-%m-%dT%H:%M:%SZ)" \
//	    ./cmd/rapidsbuild
//
// The version is also exported to the wrapped backend's environment as
// RAPIDSBUILD_VERSION.
package buildinfo

import "fmt"

var (
	// Version is the semantic version (e.g., "v0.4.0").
	Version = "dev"

	// Commit is the git commit SHA.
	Commit = "none"

	// Date is the build timestamp.
	Date = "unknown"
)

// Short returns the version with an abbreviated commit, e.g. "v0.4.0+3f2a1bc".
func Short() string {
	if len(Commit) < 7 || Commit == "none" {
		return Version
	}
	return Version + "+" + Commit[:7]
}

// Template returns the version template string for cobra.
func Template() string {
	return fmt.Sprintf("{{.Name}} version %s\ncommit: %s\nbuilt: %s\n", Version, Commit, Date)
}
