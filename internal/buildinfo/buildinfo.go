// Package buildinfo holds build-time metadata injected via -ldflags.
package buildinfo

// Version is the semantic version or tag for this build.
// Inject via: -X github.com/garyellow/dr-matricula-go/internal/buildinfo.Version=...
var Version = ""

// Commit is the git commit SHA for this build.
// Inject via: -X github.com/garyellow/dr-matricula-go/internal/buildinfo.Commit=...
var Commit = ""

// BuildDate is the RFC3339 build timestamp.
var BuildDate = ""

// Release returns the identifier used for error tracking releases and the
// backend User-Agent. Falls back to "dev" for local builds.
func Release() string {
	switch {
	case Version != "" && Commit != "":
		return Version + "+" + shortCommit(Commit)
	case Version != "":
		return Version
	case Commit != "":
		return shortCommit(Commit)
	default:
		return "dev"
	}
}

func shortCommit(c string) string {
	if len(c) > 7 {
		return c[:7]
	}
	return c
}
