//go:build unix

package pipeline

import (
	"os"

	"golang.org/x/sys/unix"
)

func signalStop(proc *os.Process) error {
	return unix.Kill(proc.Pid, unix.SIGSTOP)
}

func signalContinue(proc *os.Process) error {
	return unix.Kill(proc.Pid, unix.SIGCONT)
}
