//go:build test_unit

package zeroconf

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	aurena "github.com/devgianlu/go-aurena"
	"github.com/devgianlu/go-aurena/engine/enginetest"
	"github.com/devgianlu/go-aurena/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type mockBackend struct {
	mock.Mock

	lock  sync.Mutex
	found func(aurena.ServiceAnnouncement)
	lost  func(aurena.ServiceAnnouncement)
}

func (m *mockBackend) Browse(_ context.Context, serviceType string, found, lost func(aurena.ServiceAnnouncement)) error {
	args := m.Called(serviceType)

	m.lock.Lock()
	m.found, m.lost = found, lost
	m.lock.Unlock()

	return args.Error(0)
}

func (m *mockBackend) Resolve(_ context.Context, ann aurena.ServiceAnnouncement) (aurena.ServiceAnnouncement, error) {
	args := m.Called(ann.Name)
	return args.Get(0).(aurena.ServiceAnnouncement), args.Error(1)
}

func (m *mockBackend) Close() {
	m.Called()
}

func (m *mockBackend) announce(ann aurena.ServiceAnnouncement) {
	m.lock.Lock()
	found := m.found
	m.lock.Unlock()
	found(ann)
}

func (m *mockBackend) remove(ann aurena.ServiceAnnouncement) {
	m.lock.Lock()
	lost := m.lost
	m.lock.Unlock()
	lost(ann)
}

type locatorEvents struct {
	lock     sync.Mutex
	resolved []aurena.PlaybackEndpoint
	lost     []aurena.ServiceAnnouncement
	failures []error
}

func (e *locatorEvents) options(b Backend) *LocatorOptions {
	return &LocatorOptions{
		Log:            &aurena.NullLogger{},
		Backend:        b,
		ResolveTimeout: time.Second,
		OnResolved: func(_ aurena.ServiceAnnouncement, endpoint aurena.PlaybackEndpoint) {
			e.lock.Lock()
			defer e.lock.Unlock()
			e.resolved = append(e.resolved, endpoint)
		},
		OnLost: func(ann aurena.ServiceAnnouncement) {
			e.lock.Lock()
			defer e.lock.Unlock()
			e.lost = append(e.lost, ann)
		},
		OnResolutionFailed: func(err error) {
			e.lock.Lock()
			defer e.lock.Unlock()
			e.failures = append(e.failures, err)
		},
	}
}

func (e *locatorEvents) resolvedCount() int {
	e.lock.Lock()
	defer e.lock.Unlock()
	return len(e.resolved)
}

func (e *locatorEvents) failureCount() int {
	e.lock.Lock()
	defer e.lock.Unlock()
	return len(e.failures)
}

func announcement(name, host string, port int) aurena.ServiceAnnouncement {
	return aurena.ServiceAnnouncement{Name: name, Type: aurena.ServiceType, Host: host, Port: port}
}

func startLocator(t *testing.T, events *locatorEvents) (*Locator, *mockBackend) {
	t.Helper()

	b := &mockBackend{}
	b.On("Browse", aurena.ServiceType).Return(nil)
	b.On("Close").Return()

	l, err := NewLocator(events.options(b))
	require.NoError(t, err)
	require.NoError(t, l.StartDiscovery(context.Background(), aurena.ServiceType))
	return l, b
}

func TestLocatorStartDiscovery(t *testing.T) {
	defer goleak.VerifyNone(t)

	events := &locatorEvents{}
	l, b := startLocator(t, events)

	assert.True(t, l.Discovering())
	assert.ErrorIs(t, l.StartDiscovery(context.Background(), aurena.ServiceType), aurena.ErrAlreadyDiscovering)
	b.AssertNumberOfCalls(t, "Browse", 1)

	l.Close()
	assert.False(t, l.Discovering())
	b.AssertCalled(t, "Close")
}

func TestLocatorStartDiscoveryFailure(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := &mockBackend{}
	b.On("Browse", aurena.ServiceType).Return(errors.New("no multicast"))

	l, err := NewLocator(&LocatorOptions{Log: &aurena.NullLogger{}, Backend: b})
	require.NoError(t, err)

	err = l.StartDiscovery(context.Background(), "_aurena._tcp")
	assert.ErrorIs(t, err, aurena.ErrDiscoveryStart)
	assert.False(t, l.Discovering())
}

func TestLocatorFiltersByServiceType(t *testing.T) {
	defer goleak.VerifyNone(t)

	events := &locatorEvents{}
	l, b := startLocator(t, events)
	defer l.Close()

	b.On("Resolve", "first").Return(announcement("first", "10.0.0.5", 4953), nil)
	b.On("Resolve", "second").Return(announcement("second", "10.0.0.6", 4953), nil)

	b.announce(aurena.ServiceAnnouncement{Name: "web", Type: "_http._tcp."})
	b.announce(aurena.ServiceAnnouncement{Name: "first", Type: "_aurena._tcp."})
	b.announce(aurena.ServiceAnnouncement{Name: "udp", Type: "_aurena._udp."})
	b.announce(aurena.ServiceAnnouncement{Name: "domain", Type: "_aurena._tcp.local."})
	b.announce(aurena.ServiceAnnouncement{Name: "upper", Type: "_Aurena._tcp."})
	b.announce(aurena.ServiceAnnouncement{Name: "nodot", Type: "_aurena._tcp"})
	b.announce(aurena.ServiceAnnouncement{Name: "second", Type: "_aurena._tcp."})

	assert.Eventually(t, func() bool { return events.resolvedCount() == 2 }, time.Second, 5*time.Millisecond)
	b.AssertNumberOfCalls(t, "Resolve", 2)

	// resolved in the order they were found
	events.lock.Lock()
	assert.Equal(t, []aurena.PlaybackEndpoint{{Host: "10.0.0.5", Port: 4953}, {Host: "10.0.0.6", Port: 4953}}, events.resolved)
	events.lock.Unlock()

	active, ok := l.Active()
	assert.True(t, ok)
	assert.Equal(t, "second", active.Name)
}

func TestLocatorDropsResolutionOfLostService(t *testing.T) {
	defer goleak.VerifyNone(t)

	events := &locatorEvents{}
	l, b := startLocator(t, events)
	defer l.Close()

	started := make(chan struct{})
	release := make(chan struct{})
	b.On("Resolve", "gone").Run(func(mock.Arguments) {
		close(started)
		<-release
	}).Return(announcement("gone", "10.0.0.9", 4953), nil).Once()
	b.On("Resolve", "next").Return(announcement("next", "10.0.0.6", 4953), nil)

	b.announce(announcement("gone", "", 0))
	<-started

	// lost while its resolution is in flight
	b.remove(announcement("gone", "", 0))
	close(release)

	b.announce(announcement("next", "", 0))
	assert.Eventually(t, func() bool { return events.resolvedCount() == 1 }, time.Second, 5*time.Millisecond)

	events.lock.Lock()
	assert.Equal(t, []aurena.PlaybackEndpoint{{Host: "10.0.0.6", Port: 4953}}, events.resolved)
	assert.Empty(t, events.lost)
	events.lock.Unlock()

	active, ok := l.Active()
	assert.True(t, ok)
	assert.Equal(t, "next", active.Name)
}

func TestLocatorSkipsQueuedLostService(t *testing.T) {
	defer goleak.VerifyNone(t)

	events := &locatorEvents{}
	l, b := startLocator(t, events)
	defer l.Close()

	started := make(chan struct{})
	release := make(chan struct{})
	b.On("Resolve", "busy").Run(func(mock.Arguments) {
		close(started)
		<-release
	}).Return(announcement("busy", "10.0.0.5", 4953), nil).Once()
	b.On("Resolve", "queued").Return(announcement("queued", "10.0.0.7", 4953), nil)

	b.announce(announcement("busy", "", 0))
	<-started

	b.announce(announcement("queued", "", 0))
	b.remove(announcement("queued", "", 0))
	close(release)

	assert.Eventually(t, func() bool { return events.resolvedCount() == 1 }, time.Second, 5*time.Millisecond)

	// announced again after being lost, resolves as usual
	b.announce(announcement("queued", "", 0))
	assert.Eventually(t, func() bool { return events.resolvedCount() == 2 }, time.Second, 5*time.Millisecond)
	b.AssertNumberOfCalls(t, "Resolve", 2)

	active, ok := l.Active()
	assert.True(t, ok)
	assert.Equal(t, "queued", active.Name)
}

func TestLocatorResolutionFailure(t *testing.T) {
	defer goleak.VerifyNone(t)

	events := &locatorEvents{}
	l, b := startLocator(t, events)
	defer l.Close()

	b.On("Resolve", "good").Return(announcement("good", "10.0.0.5", 4953), nil)
	b.On("Resolve", "slow").Return(aurena.ServiceAnnouncement{}, context.DeadlineExceeded)
	b.On("Resolve", "empty").Return(aurena.ServiceAnnouncement{Name: "empty"}, nil)
	b.On("Resolve", "broken").Return(aurena.ServiceAnnouncement{}, errors.New("socket closed"))

	b.announce(aurena.ServiceAnnouncement{Name: "good", Type: aurena.ServiceType})
	assert.Eventually(t, func() bool { return events.resolvedCount() == 1 }, time.Second, 5*time.Millisecond)

	b.announce(aurena.ServiceAnnouncement{Name: "slow", Type: aurena.ServiceType})
	b.announce(aurena.ServiceAnnouncement{Name: "empty", Type: aurena.ServiceType})
	b.announce(aurena.ServiceAnnouncement{Name: "broken", Type: aurena.ServiceType})
	assert.Eventually(t, func() bool { return events.failureCount() == 3 }, time.Second, 5*time.Millisecond)

	events.lock.Lock()
	codes := make([]int, 0, len(events.failures))
	for _, err := range events.failures {
		assert.ErrorIs(t, err, aurena.ErrResolution)

		var resErr *aurena.ResolutionError
		require.ErrorAs(t, err, &resErr)
		codes = append(codes, resErr.Code)
	}
	events.lock.Unlock()

	assert.Equal(t, []int{aurena.ResolutionErrorTimeout, aurena.ResolutionErrorNoAddress, aurena.ResolutionErrorUnknown}, codes)

	// the active service survives failed resolutions
	active, ok := l.Active()
	assert.True(t, ok)
	assert.Equal(t, "good", active.Name)
	assert.Equal(t, 1, events.resolvedCount())
}

func TestLocatorLostAnnouncement(t *testing.T) {
	defer goleak.VerifyNone(t)

	events := &locatorEvents{}
	l, b := startLocator(t, events)
	defer l.Close()

	b.On("Resolve", "main").Return(announcement("main", "10.0.0.5", 4953), nil)
	b.announce(aurena.ServiceAnnouncement{Name: "main", Type: aurena.ServiceType})
	assert.Eventually(t, func() bool { return events.resolvedCount() == 1 }, time.Second, 5*time.Millisecond)

	b.remove(aurena.ServiceAnnouncement{Name: "other", Type: aurena.ServiceType})
	_, ok := l.Active()
	assert.True(t, ok)

	b.remove(aurena.ServiceAnnouncement{Name: "main", Type: "_aurena._tcp"})
	_, ok = l.Active()
	assert.False(t, ok)

	events.lock.Lock()
	require.Len(t, events.lost, 1)
	assert.Equal(t, "main", events.lost[0].Name)
	events.lock.Unlock()
}

func TestLocatorDrivesSession(t *testing.T) {
	defer goleak.VerifyNone(t)

	eng := enginetest.NewFakeEngine()
	sess, err := session.NewSessionFromOptions(&session.Options{Log: &aurena.NullLogger{}, Engine: eng})
	require.NoError(t, err)
	require.NoError(t, sess.Init())

	b := &mockBackend{}
	b.On("Browse", aurena.ServiceType).Return(nil)
	b.On("Close").Return()
	b.On("Resolve", "aurena").Return(aurena.ServiceAnnouncement{Name: "aurena", Type: aurena.ServiceType, Host: "10.0.0.5", Port: 4953}, nil)
	b.On("Resolve", "aurena-2").Return(aurena.ServiceAnnouncement{Name: "aurena-2", Type: aurena.ServiceType, Host: "10.0.0.6", Port: 4953}, nil)

	var resolved sync.WaitGroup
	resolved.Add(2)

	l, err := NewLocator(&LocatorOptions{
		Log:     &aurena.NullLogger{},
		Backend: b,
		OnResolved: func(_ aurena.ServiceAnnouncement, endpoint aurena.PlaybackEndpoint) {
			defer resolved.Done()
			assert.NoError(t, sess.Replace(endpoint))
		},
	})
	require.NoError(t, err)
	require.NoError(t, l.StartDiscovery(context.Background(), aurena.ServiceType))
	defer l.Close()

	b.announce(aurena.ServiceAnnouncement{Name: "aurena", Type: aurena.ServiceType})
	assert.Eventually(t, func() bool { return eng.Count("Play") == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"ClassInit", "Init", "Play(10.0.0.5:4953)"}, eng.Methods())

	// a newer server preempts the current one
	b.announce(aurena.ServiceAnnouncement{Name: "aurena-2", Type: aurena.ServiceType})
	resolved.Wait()

	assert.Equal(t, []string{"ClassInit", "Init", "Play(10.0.0.5:4953)", "Pause", "Play(10.0.0.6:4953)"}, eng.Methods())
	require.NoError(t, sess.Finalize())
}
