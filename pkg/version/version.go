// Package version holds build-time version info injected via ldflags. The
// server logs it on startup and prints it for the -version flag.
//
// Set at compile time:
//
//	go build -ldflags "-X github.com/quizarena/quizarena/pkg/version.tag=v0.3.0
//	  -X github.com/quizarena/quizarena/pkg/version.commit=abc1234
//	  -X github.com/quizarena/quizarena/pkg/version.date=2026-08-01" ./cmd/server
package version

// Populated by -ldflags "-X ...". Defaults are used for local dev builds.
var (
	tag    = ""        // git tag (e.g. "v0.2.0"), empty if not on a tag
	commit = "unknown" // short git commit SHA
	date   = "unknown" // build date (ISO 8601)
)

// String returns a human-readable version string.
//
//	Tagged:   "v0.2.0"
//	Untagged: "abc1234"
//	Dev:      "dev"
func String() string {
	if tag != "" {
		return tag
	}
	if commit != "unknown" {
		return commit
	}
	return "dev"
}

// Full returns "tag (commit) built date" or a sensible fallback.
func Full() string {
	if tag != "" {
		return tag + " (" + commit + ") built " + date
	}
	if commit != "unknown" {
		return commit + " built " + date
	}
	return "dev"
}
