// Package version holds the build version, set with
// -ldflags "-X github.com/rzbill/rtm/internal/version.Version=v1.2.3".
package version

// Version is reported in handshakes, /version/ and `rtm version`.
var Version = "0.1.0-dev"
