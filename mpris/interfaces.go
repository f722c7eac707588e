//go:build linux

package mpris

import (
	aurena "github.com/devgianlu/go-aurena"
	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/prop"
)

func newProp(value interface{}, cb func(*prop.Change) *dbus.Error) *prop.Prop {
	return &prop.Prop{
		Value:    value,
		Writable: true,
		Emit:     prop.EmitTrue,
		Callback: cb,
	}
}

var mediaPlayer2Props = map[string]*prop.Prop{
	"CanQuit":             newProp(false, nil), // disable quit
	"CanRaise":            newProp(false, nil), // disable raise
	"HasTrackList":        newProp(false, nil), // disable track list
	"Identity":            newProp("go-aurena", nil),
	"SupportedUriSchemes": newProp([]string{UriScheme}, nil),
	"SupportedMimeTypes":  newProp([]string{}, nil),
}

// MediaPlayer2RootInterface : empty, does not do much
type MediaPlayer2RootInterface struct {
	log aurena.Logger
}

func (r MediaPlayer2RootInterface) Raise() *dbus.Error {
	// never implement, because there is no "window-raising" to be done in a daemon
	r.log.Tracef("PlayerInterface::Raise")
	return nil
}

func (r MediaPlayer2RootInterface) Quit() *dbus.Error {
	r.log.Tracef("PlayerInterface::Quit")
	return nil
}

type MediaPlayer2PlayerInterface struct {
	log aurena.Logger

	commands chan MediaPlayer2PlayerCommand
}

func (p MediaPlayer2PlayerInterface) Props() map[string]*prop.Prop {
	position := newProp(int64(0), nil)
	position.Writable = false
	position.Emit = prop.EmitFalse

	return map[string]*prop.Prop{
		"PlaybackStatus": newProp(Stopped, nil),
		"Metadata":       newProp(map[string]interface{}{}, nil),

		"Volume":     newProp(float64(1), nil),
		"Shuffle":    newProp(false, nil),
		"LoopStatus": newProp("None", nil),

		"Position":      position,
		"Rate":          newProp(1.0, nil),
		"MinimumRate":   newProp(1.0, nil),
		"MaximumRate":   newProp(1.0, nil),
		"CanGoNext":     newProp(false, nil),
		"CanGoPrevious": newProp(false, nil),
		"CanPlay":       newProp(true, nil),
		"CanPause":      newProp(true, nil),
		"CanSeek":       newProp(false, nil),
		"CanControl":    newProp(true, nil),
	}
}

func (p MediaPlayer2PlayerInterface) enqueueCommand(command MediaPlayer2PlayerCommand) *dbus.Error {
	command.response = make(chan MediaPlayer2PlayerCommandResponse)

	select {
	case p.commands <- command:
		resp := <-command.response

		if resp.Err != nil {
			p.log.Tracef("mpris command %v returned an error %s", command, resp.Err)
		}

		return resp.Err
	default:
		p.log.Tracef("mpris command not enqueued, because there was no listener registered")
		return nil
	}
}

func (p MediaPlayer2PlayerInterface) Next() *dbus.Error {
	p.log.Tracef("PlayerInterface::Next")
	return dbus.MakeFailedError(errNotSupported)
}

func (p MediaPlayer2PlayerInterface) Previous() *dbus.Error {
	p.log.Tracef("PlayerInterface::Previous")
	return dbus.MakeFailedError(errNotSupported)
}

func (p MediaPlayer2PlayerInterface) Pause() *dbus.Error {
	p.log.Tracef("PlayerInterface::Pause")

	return p.enqueueCommand(
		MediaPlayer2PlayerCommand{
			Type: MediaPlayer2PlayerCommandTypePause,
		},
	)
}

func (p MediaPlayer2PlayerInterface) PlayPause() *dbus.Error {
	p.log.Tracef("PlayerInterface::PlayPause")

	return p.enqueueCommand(
		MediaPlayer2PlayerCommand{
			Type: MediaPlayer2PlayerCommandTypePlayPause,
		},
	)
}

func (p MediaPlayer2PlayerInterface) Stop() *dbus.Error {
	p.log.Tracef("PlayerInterface::Stop")

	return p.enqueueCommand(
		MediaPlayer2PlayerCommand{
			Type: MediaPlayer2PlayerCommandTypeStop,
		},
	)
}

func (p MediaPlayer2PlayerInterface) Play() *dbus.Error {
	p.log.Tracef("PlayerInterface::Play")

	return p.enqueueCommand(
		MediaPlayer2PlayerCommand{
			Type: MediaPlayer2PlayerCommandTypePlay,
		},
	)
}

func (p MediaPlayer2PlayerInterface) Seek(x int64) *dbus.Error {
	p.log.Tracef("PlayerInterface::Seek (%d)", x)
	return dbus.MakeFailedError(errNotSupported)
}

func (p MediaPlayer2PlayerInterface) SetPosition(o dbus.ObjectPath, x int64) *dbus.Error {
	p.log.Tracef("PlayerInterface::SetPosition (%s, %d)", o, x)
	return dbus.MakeFailedError(errNotSupported)
}

func (p MediaPlayer2PlayerInterface) OpenUri(s string) *dbus.Error {
	p.log.Tracef("PlayerInterface::OpenUri (%s)", s)

	endpoint, err := ParseOpenUri(s)
	if err != nil {
		return dbus.MakeFailedError(err)
	}

	return p.enqueueCommand(
		MediaPlayer2PlayerCommand{
			Type:     MediaPlayer2PlayerCommandTypeOpenUri,
			Argument: endpoint,
		},
	)
}
