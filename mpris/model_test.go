//go:build test_unit

package mpris

import (
	"testing"

	aurena "github.com/devgianlu/go-aurena"
	"github.com/stretchr/testify/assert"
)

func TestStatusFromPlaybackState(t *testing.T) {
	assert.Equal(t, Playing, StatusFromPlaybackState(aurena.PlaybackStatePlaying))
	assert.Equal(t, Paused, StatusFromPlaybackState(aurena.PlaybackStatePaused))
	assert.Equal(t, Stopped, StatusFromPlaybackState(aurena.PlaybackStateReady))
	assert.Equal(t, Stopped, StatusFromPlaybackState(aurena.PlaybackStateNull))
}

func TestParseOpenUri(t *testing.T) {
	ep, err := ParseOpenUri("aurena://10.0.0.5:4953/")
	assert.NoError(t, err)
	assert.Equal(t, aurena.PlaybackEndpoint{Host: "10.0.0.5", Port: 4953}, ep)

	ep, err = ParseOpenUri("aurena://media-box")
	assert.NoError(t, err)
	assert.Equal(t, aurena.PlaybackEndpoint{Host: "media-box", Port: aurena.DefaultServerPort}, ep)

	_, err = ParseOpenUri("http://10.0.0.5:4953")
	assert.Error(t, err)
}

func TestDummyServer(t *testing.T) {
	var s Server = DummyServer{}
	s.SetState(aurena.PlaybackStatePlaying)
	assert.NoError(t, s.Close())
}
