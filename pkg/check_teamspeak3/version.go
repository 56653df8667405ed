package check_teamspeak3

import "fmt"

// VERSION contains the actual plugin version.
const VERSION = "0.1.0"

// Build and Revision are set from the main package, which gets them from ldflags.
var (
	Build    = "unknown"
	Revision = "0"
)

// VersionString returns the version including build information.
func VersionString() string {
	return fmt.Sprintf("check_teamspeak3 v%s.%s (Build: %s)", VERSION, Revision, Build)
}
