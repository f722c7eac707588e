package pipeline

import (
	"fmt"
	"time"

	aurena "github.com/devgianlu/go-aurena"
)

// State mirrors the media pipeline states. The numeric values are the codes
// reported to the engine callbacks.
type State int

const (
	StateNull State = iota + 1
	StateReady
	StatePaused
	StatePlaying
)

func (s State) Code() int {
	return int(s)
}

func (s State) String() string {
	if st, ok := aurena.PlaybackStateFromCode(int(s)); ok {
		return st.String()
	}

	return fmt.Sprintf("State(%d)", int(s))
}

type EventType int

const (
	EventTypeEOS EventType = iota
	EventTypeError
)

type Event struct {
	Type EventType
	Err  error
}

// Pipeline is the media boundary driven by the engine. Decoding and rendering
// happen behind it.
type Pipeline interface {
	// SetURI sets the media to play. It takes effect the next time the
	// pipeline leaves the NULL or READY state.
	SetURI(uri string) error
	SetState(state State) error
	State() State

	Seek(position time.Duration) error
	Position() (time.Duration, bool)
	Duration() (time.Duration, bool)

	// SetVolume sets the volume (0-1), zero mutes.
	SetVolume(volume float64)
	// SetWindowHandle sets the render target, zero detaches it.
	SetWindowHandle(handle uintptr)

	// Events returns end-of-stream and error notifications.
	Events() <-chan Event

	Close() error
}

type Options struct {
	Log aurena.Logger

	// Backend is either "virtual" or "command".
	Backend string

	// Command is the argv of the external player, "{uri}" is replaced with
	// the media URI. Only used by the command backend.
	Command []string

	// Now overrides the clock source, mostly for tests.
	Now func() time.Time
}

func NewPipeline(opts *Options) (Pipeline, error) {
	if opts.Log == nil {
		opts.Log = &aurena.NullLogger{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	switch opts.Backend {
	case "", "virtual":
		return NewVirtual(opts), nil
	case "command":
		return NewCommand(opts)
	default:
		return nil, fmt.Errorf("unknown pipeline backend: %s", opts.Backend)
	}
}
