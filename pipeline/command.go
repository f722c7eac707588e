package pipeline

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	aurena "github.com/devgianlu/go-aurena"
)

const uriPlaceholder = "{uri}"

// Command hands the media URI to an external player process. Pausing stops
// the process, resuming continues it.
type Command struct {
	log  aurena.Logger
	argv []string

	lock   sync.Mutex
	uri    string
	state  State
	clock  clock
	volume float64
	window uintptr
	closed bool

	proc     *exec.Cmd
	stopping bool
	exited   chan struct{}

	ev chan Event
}

func NewCommand(opts *Options) (*Command, error) {
	if len(opts.Command) == 0 {
		return nil, fmt.Errorf("missing pipeline command")
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Command{
		log:    opts.Log,
		argv:   opts.Command,
		state:  StateNull,
		clock:  clock{now: now},
		volume: 1,
		ev:     make(chan Event, 16),
	}, nil
}

func (p *Command) SetURI(uri string) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.closed {
		return ErrClosed
	}

	p.uri = uri
	p.clock.reset()
	return nil
}

func (p *Command) SetState(state State) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.closed {
		return ErrClosed
	}

	switch state {
	case StateNull, StateReady:
		p.stopProcess()
		p.clock.reset()
	case StatePaused, StatePlaying:
		if len(p.uri) == 0 {
			return ErrNoUri
		}

		if p.proc == nil {
			if err := p.startProcess(); err != nil {
				return err
			}
		}

		if state == StatePaused {
			if err := signalStop(p.proc.Process); err != nil {
				return fmt.Errorf("failed pausing player process: %w", err)
			}

			p.clock.stop()
		} else {
			if err := signalContinue(p.proc.Process); err != nil {
				return fmt.Errorf("failed resuming player process: %w", err)
			}

			p.clock.start()
		}
	}

	p.state = state
	return nil
}

func (p *Command) startProcess() error {
	argv := make([]string, len(p.argv))
	for i, arg := range p.argv {
		argv[i] = strings.ReplaceAll(arg, uriPlaceholder, p.uri)
	}

	proc := exec.Command(argv[0], argv[1:]...)
	proc.Env = append(os.Environ(),
		"AURENA_WINDOW_HANDLE="+strconv.FormatUint(uint64(p.window), 10),
		"AURENA_VOLUME="+strconv.FormatFloat(p.volume, 'f', 3, 64),
	)

	if err := proc.Start(); err != nil {
		return fmt.Errorf("failed starting player process: %w", err)
	}

	p.log.Debugf("started player process %d for %s", proc.Process.Pid, p.uri)

	p.proc = proc
	p.stopping = false
	p.exited = make(chan struct{})
	go p.waitProcess(proc, p.exited)
	return nil
}

func (p *Command) waitProcess(proc *exec.Cmd, exited chan struct{}) {
	err := proc.Wait()
	close(exited)

	p.lock.Lock()
	defer p.lock.Unlock()

	if p.proc != proc {
		return
	}

	p.proc = nil
	if p.stopping || p.closed {
		return
	}

	p.clock.stop()

	var ev Event
	if err != nil {
		ev = Event{Type: EventTypeError, Err: fmt.Errorf("player process exited: %w", err)}
	} else {
		ev = Event{Type: EventTypeEOS}
	}

	select {
	case p.ev <- ev:
	default:
		p.log.Warnf("dropping pipeline event, queue is full")
	}
}

// stopProcess must be called with the lock held.
func (p *Command) stopProcess() {
	if p.proc == nil {
		return
	}

	proc, exited := p.proc, p.exited
	p.stopping = true
	p.proc = nil

	_ = signalContinue(proc.Process)
	if err := proc.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		p.log.WithError(err).Warnf("failed killing player process")
	}

	p.lock.Unlock()
	<-exited
	p.lock.Lock()

	p.log.Debugf("stopped player process %d", proc.Process.Pid)
}

func (p *Command) State() State {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.state
}

func (p *Command) Seek(position time.Duration) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	// the external player has no control channel, only track the clock
	p.clock.seek(position)
	return nil
}

func (p *Command) Position() (time.Duration, bool) {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.state != StatePaused && p.state != StatePlaying {
		return 0, false
	}

	return p.clock.position(), true
}

func (p *Command) Duration() (time.Duration, bool) {
	return 0, false
}

func (p *Command) SetVolume(volume float64) {
	p.lock.Lock()
	p.volume = min(1, max(0, volume))
	p.lock.Unlock()

	p.log.Debugf("player process volume applies on next start")
}

func (p *Command) SetWindowHandle(handle uintptr) {
	p.lock.Lock()
	p.window = handle
	p.lock.Unlock()
}

func (p *Command) Events() <-chan Event {
	return p.ev
}

func (p *Command) Close() error {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.closed {
		return nil
	}

	p.stopProcess()
	p.closed = true
	p.state = StateNull
	close(p.ev)
	return nil
}
