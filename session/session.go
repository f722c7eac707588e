package session

import (
	"errors"
	"fmt"
	"sync"

	aurena "github.com/devgianlu/go-aurena"
	"github.com/devgianlu/go-aurena/engine"
	"github.com/google/uuid"
)

type State int

const (
	StateUninitialized State = iota
	StateInitialized
	StatePaused
	StatePlaying
	StateFinalized
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StatePaused:
		return "paused"
	case StatePlaying:
		return "playing"
	case StateFinalized:
		return "finalized"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Session owns a playback engine. Every engine call goes through the session
// lock, so the engine is never driven concurrently.
//
// Playing and Paused are the last requested transitions, the engine confirms
// them asynchronously through its callbacks.
type Session struct {
	log aurena.Logger
	id  string

	lock     sync.Mutex
	engine   engine.Engine
	state    State
	endpoint *aurena.PlaybackEndpoint
}

func NewSessionFromOptions(opts *Options) (*Session, error) {
	if opts.Engine == nil {
		return nil, fmt.Errorf("missing engine")
	}

	s := &Session{
		log:    opts.Log,
		id:     uuid.NewString(),
		engine: opts.Engine,
	}

	if s.log == nil {
		s.log = &aurena.NullLogger{}
	}

	s.log = s.log.WithField("session", s.id)
	return s, nil
}

// Init loads the engine. Any failure is reported as aurena.ErrEngineLoad and
// leaves the session finalized.
func (s *Session) Init() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	switch s.state {
	case StateUninitialized:
	case StateFinalized:
		return aurena.ErrSessionFinalized
	default:
		return aurena.ErrAlreadyInitialized
	}

	if !s.engine.ClassInit() {
		s.state = StateFinalized
		return fmt.Errorf("failed initializing engine class: %w", aurena.ErrEngineLoad)
	}

	if err := s.engine.Init(); err != nil {
		s.state = StateFinalized
		s.engine.Finalize()

		if errors.Is(err, aurena.ErrEngineLoad) {
			return err
		}

		return fmt.Errorf("%w: %w", aurena.ErrEngineLoad, err)
	}

	s.state = StateInitialized
	s.log.Debugf("session initialized")
	return nil
}

// usable must be called with the lock held.
func (s *Session) usable() error {
	switch s.state {
	case StateUninitialized:
		return aurena.ErrNoEngine
	case StateFinalized:
		return aurena.ErrSessionFinalized
	default:
		return nil
	}
}

// Play asks the engine to stream from the endpoint.
func (s *Session) Play(endpoint aurena.PlaybackEndpoint) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if err := s.usable(); err != nil {
		return err
	}

	s.play(endpoint)
	return nil
}

func (s *Session) play(endpoint aurena.PlaybackEndpoint) {
	s.log.Infof("playing from %s", endpoint)
	s.engine.Play(endpoint.String())
	s.endpoint = &endpoint
	s.state = StatePlaying
}

func (s *Session) Pause() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if err := s.usable(); err != nil {
		return err
	}

	s.pause()
	return nil
}

func (s *Session) pause() {
	s.log.Infof("pausing playback")
	s.engine.Pause()
	s.state = StatePaused
}

// Replace switches to a new endpoint. A playing session is paused first, the
// two engine calls are issued without releasing the lock.
func (s *Session) Replace(endpoint aurena.PlaybackEndpoint) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if err := s.usable(); err != nil {
		return err
	}

	if s.state == StatePlaying {
		s.pause()
	}

	s.play(endpoint)
	return nil
}

// BindSurface attaches the render target, it may be called before Play and
// any number of times.
func (s *Session) BindSurface(surface aurena.Surface) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if err := s.usable(); err != nil {
		return err
	} else if surface == nil {
		return fmt.Errorf("missing surface")
	}

	s.log.Debugf("binding surface %#x", surface.WindowHandle())
	s.engine.SurfaceInit(surface)
	return nil
}

// UnbindSurface detaches the render target and returns once the engine
// released it. Streaming goes on.
func (s *Session) UnbindSurface() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if err := s.usable(); err != nil {
		return err
	}

	s.log.Debugf("unbinding surface")
	s.engine.SurfaceFinalize()
	return nil
}

// Finalize releases the engine. It succeeds only once.
func (s *Session) Finalize() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	switch s.state {
	case StateFinalized:
		return aurena.ErrSessionFinalized
	case StateUninitialized:
		s.state = StateFinalized
		return nil
	}

	s.engine.Finalize()
	s.state = StateFinalized
	s.log.Debugf("session finalized")
	return nil
}
