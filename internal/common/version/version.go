package version

import (
	_ "embed"
	"strings"
)

// Version information embedded from the VERSION file next to this package.

//go:embed VERSION
var versionRaw string

// Version is the current meetingsnap version, trimmed of whitespace.
var Version = strings.TrimSpace(versionRaw)

// Get returns the current version string.
func Get() string {
	return Version
}

// UserAgent returns the User-Agent header value used for outbound delivery.
func UserAgent() string {
	return "meetingsnap/" + Version
}
