// Package version holds build metadata injected via ldflags.
package version

import "fmt"

//nolint:revive // Set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// String renders the build identity as a single token, e.g. for the
// User-Agent reported to upstream services.
func String() string {
	return fmt.Sprintf("finsight/%s (%s)", Version, Commit)
}
