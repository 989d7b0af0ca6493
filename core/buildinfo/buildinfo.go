package buildinfo

// These variables are intended to be set via -ldflags at build time:
//
//	-X 'github.com/maximcoj/teleblog/core/buildinfo.Version=v0.3.0'
//	-X 'github.com/maximcoj/teleblog/core/buildinfo.Commit=abcdef0'
//	-X 'github.com/maximcoj/teleblog/core/buildinfo.Date=2026-10-01T12:00:00Z'
var (
	// Version reports the release tag of the build.
	Version = "dev"
	// Commit reports the source control commit used for the build.
	Commit = "local"
	// Date reports the build timestamp in RFC3339 format.
	Date = ""
)

// String renders a one-line build description for `teleblog version` and /healthz.
func String() string {
	s := Version + " (" + Commit
	if Date != "" {
		s += ", " + Date
	}
	return s + ")"
}
