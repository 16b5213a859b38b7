//go:build !windows

package process

import (
	"os"
	"syscall"
)

// interruptSignal asks a canceled process to shut down before it is killed
func interruptSignal() os.Signal {
	return syscall.SIGTERM
}
