package version

import (
	"runtime"
)

var (
	Version   = "dev"             // ex: v0.1.0
	Commit    = "none"            // ex: abcd123
	BuildDate = "unknown"         // ex: 2025-08-11T18:42:00Z
	GoVersion = runtime.Version() // go version
)

// Full returns the version followed by the commit, build date and toolchain.
func Full() string {
	return Version + " (commit " + Commit + ", built " + BuildDate + ", " + GoVersion + ")"
}
