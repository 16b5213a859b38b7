//go:build windows

package process

import "os"

// interruptSignal falls back to Kill; Windows cannot deliver SIGTERM
func interruptSignal() os.Signal {
	return os.Kill
}
