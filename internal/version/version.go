// Package version holds the build version, set at link time with
// -ldflags "-X github.com/hashicorp-forge/lyra/internal/version.Version=...".
package version

// Version is the lyra version.
var Version = "0.1.0-dev"
