package core

// Build metadata, injected with
//
//	go build -ldflags "-X gallery_style/core.Version=$(git describe --tags --always) \
//	  -X gallery_style/core.GitCommit=$(git rev-parse --short HEAD) \
//	  -X gallery_style/core.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// GetVersionInfo formats the build metadata for the version subcommand.
func GetVersionInfo() string {
	return Version + " (built " + BuildTime + ", commit " + GitCommit + ")"
}
