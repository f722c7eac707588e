//go:build test_unit

package surface

import (
	"testing"

	aurena "github.com/devgianlu/go-aurena"
	"github.com/devgianlu/go-aurena/engine/enginetest"
	"github.com/devgianlu/go-aurena/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockingBinder checks the surface is still alive while unbinding.
type blockingBinder struct {
	surface        *Headless
	bound          []uintptr
	aliveOnUnbind  bool
	unbindComplete bool
}

func (b *blockingBinder) BindSurface(s aurena.Surface) error {
	b.bound = append(b.bound, s.WindowHandle())
	return nil
}

func (b *blockingBinder) UnbindSurface() error {
	b.aliveOnUnbind = !b.surface.Released()
	b.unbindComplete = true
	return nil
}

func TestPresentationBindsOnChanged(t *testing.T) {
	s := NewHeadless(0x42)
	b := &blockingBinder{surface: s}
	p := NewPresentation(&aurena.NullLogger{}, b)

	require.NoError(t, p.OnCreated(s))
	assert.Empty(t, b.bound)

	require.NoError(t, p.OnChanged(s, FormatRGBA8888, 1280, 720))
	require.NoError(t, p.OnChanged(s, FormatRGBA8888, 720, 1280))
	assert.Equal(t, []uintptr{0x42, 0x42}, b.bound)

	w, h := p.Size()
	assert.Equal(t, 720, w)
	assert.Equal(t, 1280, h)
}

func TestPresentationUnbindsBeforeRelease(t *testing.T) {
	s := NewHeadless(0x42)
	b := &blockingBinder{surface: s}
	p := NewPresentation(&aurena.NullLogger{}, b)

	require.NoError(t, p.OnCreated(s))
	require.NoError(t, p.OnChanged(s, FormatRGBA8888, 1280, 720))

	require.NoError(t, p.OnDestroyed())
	assert.True(t, b.unbindComplete)
	s.Release()

	assert.True(t, b.aliveOnUnbind)
	assert.Nil(t, p.Current())
	assert.Equal(t, uintptr(0), s.WindowHandle())
}

func TestPresentationWithSession(t *testing.T) {
	eng := enginetest.NewFakeEngine()
	sess, err := session.NewSessionFromOptions(&session.Options{Engine: eng})
	require.NoError(t, err)
	require.NoError(t, sess.Init())
	eng.Reset()

	s := NewHeadless(0x10)
	p := NewPresentation(nil, sess)
	require.NoError(t, p.OnCreated(s))
	require.NoError(t, p.OnChanged(s, FormatRGB565, 640, 480))
	require.NoError(t, p.OnDestroyed())
	assert.Equal(t, []string{"SurfaceInit(0x10)", "SurfaceFinalize"}, eng.Methods())

	require.NoError(t, sess.Finalize())
	assert.ErrorIs(t, p.OnChanged(s, FormatRGB565, 640, 480), aurena.ErrSessionFinalized)
	assert.ErrorIs(t, p.OnDestroyed(), aurena.ErrSessionFinalized)
}

func TestPresentationRejectsNilSurface(t *testing.T) {
	eng := enginetest.NewFakeEngine()
	sess, err := session.NewSessionFromOptions(&session.Options{Engine: eng})
	require.NoError(t, err)
	require.NoError(t, sess.Init())
	eng.Reset()

	p := NewPresentation(nil, sess)
	assert.ErrorIs(t, p.OnCreated(nil), ErrNoSurface)
	assert.ErrorIs(t, p.OnChanged(nil, FormatRGBA8888, 1280, 720), ErrNoSurface)
	assert.Nil(t, p.Current())
	assert.Empty(t, eng.Methods())

	require.NoError(t, sess.Finalize())
}
