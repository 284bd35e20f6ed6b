// Package version holds build identification, set via ldflags.
package version

var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// String returns the human-readable version line.
func String() string {
	return Version + " (" + Commit + ", " + Date + ")"
}
