// Package version holds build metadata injected via ldflags:
//
//	-X github.com/kailas-cloud/jsonstore/internal/version.Version=v0.4.0
package version

//nolint:revive // Set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// String renders the build metadata for the version command.
func String() string {
	return Version + " (" + Commit + ", " + Date + ")"
}
