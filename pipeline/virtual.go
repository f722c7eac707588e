package pipeline

import (
	"errors"
	"sync"
	"time"

	aurena "github.com/devgianlu/go-aurena"
)

var ErrNoUri = errors.New("no uri set")

var ErrClosed = errors.New("pipeline closed")

// Virtual is a pipeline without output, its position advances with wall time
// while playing.
type Virtual struct {
	log aurena.Logger

	lock   sync.Mutex
	uri    string
	state  State
	clock  clock
	volume float64
	window uintptr
	closed bool

	ev chan Event
}

func NewVirtual(opts *Options) *Virtual {
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Virtual{
		log:    opts.Log,
		state:  StateNull,
		clock:  clock{now: now},
		volume: 1,
		ev:     make(chan Event, 16),
	}
}

func (p *Virtual) SetURI(uri string) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.closed {
		return ErrClosed
	}

	p.uri = uri
	p.clock.reset()
	p.log.Debugf("virtual pipeline uri set to %s", uri)
	return nil
}

func (p *Virtual) SetState(state State) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.closed {
		return ErrClosed
	}

	switch state {
	case StateNull, StateReady:
		p.clock.reset()
	case StatePaused:
		if len(p.uri) == 0 {
			return ErrNoUri
		}

		p.clock.stop()
	case StatePlaying:
		if len(p.uri) == 0 {
			return ErrNoUri
		}

		p.clock.start()
	}

	p.state = state
	return nil
}

func (p *Virtual) State() State {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.state
}

func (p *Virtual) Seek(position time.Duration) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.state != StatePaused && p.state != StatePlaying {
		return errors.New("cannot seek without media")
	}

	p.clock.seek(position)
	return nil
}

func (p *Virtual) Position() (time.Duration, bool) {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.state != StatePaused && p.state != StatePlaying {
		return 0, false
	}

	return p.clock.position(), true
}

func (p *Virtual) Duration() (time.Duration, bool) {
	return 0, false
}

func (p *Virtual) SetVolume(volume float64) {
	p.lock.Lock()
	p.volume = min(1, max(0, volume))
	p.lock.Unlock()
}

func (p *Virtual) SetWindowHandle(handle uintptr) {
	p.lock.Lock()
	p.window = handle
	p.lock.Unlock()
}

// WindowHandle returns the current render target.
func (p *Virtual) WindowHandle() uintptr {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.window
}

func (p *Virtual) Volume() float64 {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.volume
}

func (p *Virtual) Events() <-chan Event {
	return p.ev
}

func (p *Virtual) Close() error {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.closed {
		return nil
	}

	p.closed = true
	p.state = StateNull
	p.clock.reset()
	close(p.ev)
	return nil
}

func (p *Virtual) URI() string {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.uri
}

// EndOfStream reports the current media as finished.
func (p *Virtual) EndOfStream() {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.closed {
		return
	}

	select {
	case p.ev <- Event{Type: EventTypeEOS}:
	default:
		p.log.Warnf("dropping end of stream event")
	}
}
