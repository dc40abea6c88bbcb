// Package version exposes build metadata injected at link time.
package version

import (
	"encoding/json"
	"fmt"
	"runtime"
	"strings"
)

// Name is the program name reported by the CLI and the health endpoint.
const Name = "ovpn-issuer"

// Build-time metadata injected via -ldflags "-X ovpn-issuer/internal/version.AppVersion=...".
var (
	AppVersion = "dev"
	GitCommit  = "unknown"
	BuildTime  = "unknown"
)

// Info describes the running binary.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
}

// Current returns the build metadata for this binary.
func Current() Info {
	return Info{
		Version:   orDefault(AppVersion, "dev"),
		Commit:    orDefault(GitCommit, "unknown"),
		BuildTime: orDefault(BuildTime, "unknown"),
		GoVersion: runtime.Version(),
	}
}

// String returns a human-readable version line.
func (i Info) String() string {
	return fmt.Sprintf("%s %s (commit %s, built %s)", Name,
		orDefault(i.Version, "dev"), orDefault(i.Commit, "unknown"), orDefault(i.BuildTime, "unknown"))
}

// JSON returns the metadata encoded as JSON.
func (i Info) JSON() ([]byte, error) {
	return json.Marshal(i)
}

func orDefault(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}
