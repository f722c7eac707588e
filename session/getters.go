package session

import aurena "github.com/devgianlu/go-aurena"

func (s *Session) ID() string {
	return s.id
}

func (s *Session) State() State {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.state
}

// Endpoint returns the endpoint of the last play request, if any.
func (s *Session) Endpoint() (aurena.PlaybackEndpoint, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.endpoint == nil {
		return aurena.PlaybackEndpoint{}, false
	}

	return *s.endpoint, true
}
