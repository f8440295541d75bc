package buildconfig

import "fmt"

// Build-time variables injected via ldflags:
//
//	-X github.com/Harshitk-cp/selfgraph/internal/buildconfig.version=...
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func Version() string {
	return version
}

func Commit() string {
	return commit
}

// VersionInfo is served by the health endpoint.
func VersionInfo() map[string]string {
	return map[string]string{
		"version": version,
		"commit":  commit,
		"date":    date,
	}
}

// String is the one-line form printed by the CLI.
func String() string {
	return fmt.Sprintf("selfgraph %s (commit %s, built %s)", version, commit, date)
}
