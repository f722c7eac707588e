//go:build test_unit

package session

import (
	"errors"
	"testing"

	aurena "github.com/devgianlu/go-aurena"
	"github.com/devgianlu/go-aurena/engine/enginetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type surface uintptr

func (s surface) WindowHandle() uintptr { return uintptr(s) }

func newTestSession(t *testing.T) (*Session, *enginetest.FakeEngine) {
	t.Helper()

	eng := enginetest.NewFakeEngine()
	s, err := NewSessionFromOptions(&Options{Log: &aurena.NullLogger{}, Engine: eng})
	require.NoError(t, err)
	return s, eng
}

func TestSessionRequiresEngine(t *testing.T) {
	_, err := NewSessionFromOptions(&Options{})
	assert.Error(t, err)
}

func TestSessionInit(t *testing.T) {
	s, eng := newTestSession(t)
	assert.NotEmpty(t, s.ID())
	assert.Equal(t, StateUninitialized, s.State())

	assert.ErrorIs(t, s.Play(aurena.PlaybackEndpoint{Host: "10.0.0.5", Port: 4953}), aurena.ErrNoEngine)
	assert.Empty(t, eng.Calls())

	require.NoError(t, s.Init())
	assert.Equal(t, StateInitialized, s.State())
	assert.Equal(t, []string{"ClassInit", "Init"}, eng.Methods())

	assert.ErrorIs(t, s.Init(), aurena.ErrAlreadyInitialized)
}

func TestSessionInitClassFailure(t *testing.T) {
	s, eng := newTestSession(t)
	eng.ClassInitResult = false

	assert.ErrorIs(t, s.Init(), aurena.ErrEngineLoad)
	assert.Equal(t, StateFinalized, s.State())
	assert.Equal(t, []string{"ClassInit"}, eng.Methods())
}

func TestSessionInitFailure(t *testing.T) {
	s, eng := newTestSession(t)
	eng.InitErr = errors.New("no pipeline")

	err := s.Init()
	assert.ErrorIs(t, err, aurena.ErrEngineLoad)
	assert.ErrorContains(t, err, "no pipeline")
	assert.Equal(t, StateFinalized, s.State())
	assert.Equal(t, []string{"ClassInit", "Init", "Finalize"}, eng.Methods())
}

func TestSessionReplaceWhilePlayingPausesFirst(t *testing.T) {
	s, eng := newTestSession(t)
	require.NoError(t, s.Init())
	eng.Reset()

	require.NoError(t, s.Play(aurena.PlaybackEndpoint{Host: "10.0.0.5", Port: 4953}))
	require.NoError(t, s.Replace(aurena.PlaybackEndpoint{Host: "10.0.0.6", Port: 4953}))

	assert.Equal(t, []string{"Play(10.0.0.5:4953)", "Pause", "Play(10.0.0.6:4953)"}, eng.Methods())
	assert.Equal(t, StatePlaying, s.State())

	ep, ok := s.Endpoint()
	assert.True(t, ok)
	assert.Equal(t, aurena.PlaybackEndpoint{Host: "10.0.0.6", Port: 4953}, ep)
}

func TestSessionReplaceWhilePausedOnlyPlays(t *testing.T) {
	s, eng := newTestSession(t)
	require.NoError(t, s.Init())
	require.NoError(t, s.Play(aurena.PlaybackEndpoint{Host: "10.0.0.5", Port: 4953}))
	require.NoError(t, s.Pause())
	eng.Reset()

	require.NoError(t, s.Replace(aurena.PlaybackEndpoint{Host: "10.0.0.6", Port: 4953}))
	assert.Equal(t, []string{"Play(10.0.0.6:4953)"}, eng.Methods())
}

func TestSessionSurface(t *testing.T) {
	s, eng := newTestSession(t)
	require.NoError(t, s.Init())
	eng.Reset()

	// binding before play is allowed, rebinding too
	require.NoError(t, s.BindSurface(surface(0x10)))
	require.NoError(t, s.BindSurface(surface(0x20)))
	require.NoError(t, s.Play(aurena.PlaybackEndpoint{Host: "10.0.0.5", Port: 4953}))
	require.NoError(t, s.UnbindSurface())

	assert.Equal(t, []string{"SurfaceInit(0x10)", "SurfaceInit(0x20)", "Play(10.0.0.5:4953)", "SurfaceFinalize"}, eng.Methods())
	assert.Equal(t, StatePlaying, s.State())
}

func TestSessionFinalized(t *testing.T) {
	s, eng := newTestSession(t)
	require.NoError(t, s.Init())
	require.NoError(t, s.Play(aurena.PlaybackEndpoint{Host: "10.0.0.5", Port: 4953}))
	require.NoError(t, s.Finalize())
	assert.Equal(t, StateFinalized, s.State())
	eng.Reset()

	ep := aurena.PlaybackEndpoint{Host: "10.0.0.6", Port: 4953}
	assert.ErrorIs(t, s.Play(ep), aurena.ErrSessionFinalized)
	assert.ErrorIs(t, s.Pause(), aurena.ErrSessionFinalized)
	assert.ErrorIs(t, s.Replace(ep), aurena.ErrSessionFinalized)
	assert.ErrorIs(t, s.BindSurface(surface(0x10)), aurena.ErrSessionFinalized)
	assert.ErrorIs(t, s.UnbindSurface(), aurena.ErrSessionFinalized)
	assert.ErrorIs(t, s.Finalize(), aurena.ErrSessionFinalized)
	assert.ErrorIs(t, s.Init(), aurena.ErrSessionFinalized)

	assert.Empty(t, eng.Calls())
}
