// Package reinforcego provides the version information for reinforce-go.
package reinforcego

// Version is the current version of reinforce-go.
const Version = "0.1.0"

// GetVersion returns the current version string.
func GetVersion() string {
	return Version
}
