package go_aurena

import (
	"errors"
	"fmt"
)

var (
	ErrEngineLoad         = errors.New("engine could not be loaded")
	ErrDiscoveryStart     = errors.New("discovery failed to start")
	ErrResolution         = errors.New("service resolution failed")
	ErrSessionFinalized   = errors.New("session finalized")
	ErrAlreadyDiscovering = errors.New("already discovering")
	ErrAlreadyInitialized = errors.New("already initialized")
	ErrNoEngine           = errors.New("no engine handle")
)

const (
	ResolutionErrorUnknown = iota
	ResolutionErrorTimeout
	ResolutionErrorNoAddress
)

type ResolutionError struct {
	Announcement ServiceAnnouncement
	Code         int
	Err          error
}

func (e *ResolutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed resolving %s (code %d): %v", e.Announcement.Name, e.Code, e.Err)
	}

	return fmt.Sprintf("failed resolving %s (code %d)", e.Announcement.Name, e.Code)
}

func (e *ResolutionError) Is(target error) bool {
	return target == ErrResolution
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}
