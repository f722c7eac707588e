package mpris

import (
	"fmt"
	"strings"

	aurena "github.com/devgianlu/go-aurena"
	"github.com/devgianlu/go-aurena/status"
	"github.com/godbus/dbus/v5"
)

// UriScheme is accepted by OpenUri, as in "aurena://10.0.0.5:5457".
const UriScheme = "aurena"

type PlaybackStatus string

const (
	Playing PlaybackStatus = "Playing"
	Paused  PlaybackStatus = "Paused"
	Stopped PlaybackStatus = "Stopped"
)

// StatusFromPlaybackState maps engine states, anything not paused or
// playing is stopped.
func StatusFromPlaybackState(state aurena.PlaybackState) PlaybackStatus {
	switch state {
	case aurena.PlaybackStatePlaying:
		return Playing
	case aurena.PlaybackStatePaused:
		return Paused
	default:
		return Stopped
	}
}

type MediaPlayer2PlayerCommandType int32

const (
	MediaPlayer2PlayerCommandTypePause MediaPlayer2PlayerCommandType = iota
	MediaPlayer2PlayerCommandTypePlayPause
	MediaPlayer2PlayerCommandTypeStop
	MediaPlayer2PlayerCommandTypePlay
	MediaPlayer2PlayerCommandTypeOpenUri
)

type MediaPlayer2PlayerCommand struct {
	Type     MediaPlayer2PlayerCommandType
	Argument any

	response chan MediaPlayer2PlayerCommandResponse
}

func (m *MediaPlayer2PlayerCommand) Reply(resp MediaPlayer2PlayerCommandResponse) {
	if m.response != nil {
		m.response <- resp
	}
}

type MediaPlayer2PlayerCommandResponse struct {
	Err *dbus.Error
}

type MediaState struct {
	PlaybackStatus PlaybackStatus
	PositionMs     int64
	DurationMs     int64
}

// Server exposes the playback status over MPRIS, it is fed as a status sink.
type Server interface {
	status.Sink

	Receive() <-chan MediaPlayer2PlayerCommand

	Close() error
}

// ParseOpenUri extracts the server address from an "aurena://host:port" uri.
func ParseOpenUri(uri string) (aurena.PlaybackEndpoint, error) {
	prefix := UriScheme + "://"
	if !strings.HasPrefix(uri, prefix) {
		return aurena.PlaybackEndpoint{}, fmt.Errorf("unsupported uri: %s", uri)
	}

	return aurena.ParseEndpoint(strings.TrimSuffix(strings.TrimPrefix(uri, prefix), "/"))
}

type DummyServer struct {
}

func (d DummyServer) SetState(aurena.PlaybackState) {}

func (d DummyServer) SetPosition(aurena.PositionSample) {}

func (d DummyServer) SetMessage(string) {}

func (d DummyServer) Receive() <-chan MediaPlayer2PlayerCommand {
	return make(<-chan MediaPlayer2PlayerCommand)
}

func (d DummyServer) Close() error { return nil }
