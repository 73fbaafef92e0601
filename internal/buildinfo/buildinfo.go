// Package buildinfo stores build-time metadata shared across packages.
package buildinfo

// Version is set via ldflags during build. Defaults to "dev".
var Version = "dev"

// UserAgent identifies lantern to the server on REST and websocket requests.
func UserAgent() string {
	return "lantern/" + Version
}
