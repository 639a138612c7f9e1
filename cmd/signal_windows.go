//go:build windows

package cmd

import "os"

// shutdownSignals returns the OS signals boardrunner run listens for to
// begin a graceful shutdown.
func shutdownSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}
