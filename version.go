package releasea

import (
	"fmt"
	"runtime"
)

// Build metadata. Version, GitCommit and BuildDate are set with -ldflags
// "-X github.com/releasea/releasea-console-sub001.Version=...".
var (
	Version   = "0.3.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
	GoVersion = runtime.Version()
)

// userAgent is sent on every request.
func userAgent() string {
	return "releasea-console/" + Version
}

// GetVersion describes the build on one line.
func GetVersion() string {
	return fmt.Sprintf("%s (commit %s, built %s, %s)", userAgent(), GitCommit, BuildDate, GoVersion)
}

// GetVersionInfo returns build metadata keyed by the labels of the
// releasea_api_build_info gauge.
func GetVersionInfo() map[string]string {
	return map[string]string{
		"version":    Version,
		"commit":     GitCommit,
		"build_date": BuildDate,
		"go_version": GoVersion,
	}
}
