// Package version holds build metadata, set at link time with
// -ldflags "-X boatpilot/pkg/version.Version=v1.2.3 -X boatpilot/pkg/version.Commit=abc123".
package version

import "fmt"

var (
	Version = "v0.1.0-dev"
	Commit  = ""
)

// String returns the version with the commit appended when known.
func String() string {
	if Commit == "" {
		return Version
	}
	return fmt.Sprintf("%s (%s)", Version, Commit)
}
