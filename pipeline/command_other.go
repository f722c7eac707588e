//go:build !unix

package pipeline

import (
	"errors"
	"os"
)

func signalStop(*os.Process) error {
	return errors.ErrUnsupported
}

// the process is never stopped on these platforms, nothing to continue
func signalContinue(*os.Process) error {
	return nil
}
