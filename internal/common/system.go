package common

import "os"

// UnknownHostFallback is used when the hostname cannot be determined.
const UnknownHostFallback = "unknown-host"

// GetHostname returns the system hostname, falling back to a fixed marker on
// error so log file names stay well formed.
func GetHostname() string {
	hostname, err := os.Hostname()
	if err != nil {
		return UnknownHostFallback
	}
	return hostname
}
