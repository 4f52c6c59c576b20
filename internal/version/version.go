// Package version carries build metadata for wsclient and pushserver.
//
// Set with ldflags:
//
//	go build -ldflags "-X github.com/dynamiatools/wscommands/internal/version.Version=1.0.0 \
//	                   -X github.com/dynamiatools/wscommands/internal/version.Commit=$(git rev-parse --short HEAD) \
//	                   -X github.com/dynamiatools/wscommands/internal/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package version

// Set via ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Info is the build metadata as reported by health and status endpoints.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

// Get returns the current build metadata.
func Get() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
	}
}

// String formats the metadata on one line.
func (i Info) String() string {
	return i.Version + " (" + i.Commit + ") built " + i.BuildTime
}
