// Package version exposes the albator build metadata stamped at link time.
package version

import (
	"fmt"
	"runtime"
)

// Stamped via -ldflags "-X github.com/cluster2600/ALBATOR/pkg/version.Version=..."
// and friends; the defaults identify a local development build.
var (
	// Version is the release tag.
	Version = "dev"

	// GitCommit is the short commit hash of the build.
	GitCommit = "unknown"

	// BuildDate is the UTC timestamp of the build.
	BuildDate = "unknown"
)

// Info is the build identity reported by the version command and the
// console status endpoint.
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetInfo assembles the stamped values with the runtime's platform details.
func GetInfo() Info {
	return Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// String renders a single-line build identity for terminal output.
func (i Info) String() string {
	return fmt.Sprintf("albator %s (%s) built on %s with %s",
		i.Version, i.GitCommit, i.BuildDate, i.GoVersion)
}
