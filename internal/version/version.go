// Package version holds the build version of the bundler binary.
package version

import "runtime"

// Set at build time:
// go build -ldflags "-X bundlegraph/internal/version.Version=0.2.0 -X bundlegraph/internal/version.Commit=abc123"
var (
	Version   = "0.1.0"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// Info returns the version with the short commit when known
func Info() string {
	if Commit != "unknown" && len(Commit) > 7 {
		return Version + " (" + Commit[:7] + ")"
	}
	return Version
}

// Full returns every version field, one per line
func Full() string {
	return "bundler version " + Version + "\n" +
		"Commit: " + Commit + "\n" +
		"Built: " + BuildDate + "\n" +
		"Go: " + runtime.Version()
}

// Fields returns the version information for structured output
func Fields() map[string]string {
	return map[string]string{
		"version":   Version,
		"commit":    Commit,
		"buildDate": BuildDate,
		"go":        runtime.Version(),
	}
}
