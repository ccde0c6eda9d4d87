// Package utils holds small helpers shared by the strata commands and
// packages: build metadata and string formatting.
package utils

// Build metadata. Release builds stamp these through -ldflags -X.
var (
	Version   = "dev"
	Sha       = "HEAD"
	Buildtime = "dev"
)

// UserAgent identifies strata to the HTTP services it calls.
func UserAgent() string {
	return "strata/" + Version
}
