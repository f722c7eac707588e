//go:build linux

package mpris

import (
	"errors"

	aurena "github.com/devgianlu/go-aurena"
	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/prop"
)

const (
	mprisPath        = "/org/mpris/MediaPlayer2"
	mprisPlayerIface = "org.mpris.MediaPlayer2.Player"
	mprisTrackId     = "/org/aurena/media/current"
)

var errNotSupported = errors.New("operation not supported")

type DBusInstance struct {
	props *prop.Properties
	conn  *dbus.Conn
}

func (d *DBusInstance) setProperty(interfaceName string, fieldName string, value interface{}) *dbus.Error {
	err := d.props.Set(
		interfaceName,
		fieldName,
		dbus.MakeVariant(value),
	)
	if err != nil {
		return err
	}
	return nil
}

type ConcreteServer struct {
	log aurena.Logger

	dbus            *DBusInstance
	rootInterface   MediaPlayer2RootInterface
	playerInterface MediaPlayer2PlayerInterface

	// current is only touched by the status loop
	current           MediaState
	lastUploadedState MediaState

	stateChannel chan MediaState
	stop         chan struct{}
	done         chan struct{}
}

func makeMetadata(state MediaState) map[string]any {
	return map[string]any{
		"mpris:trackid": dbus.ObjectPath(mprisTrackId),
		"mpris:length":  state.DurationMs * 1000, // convert from ms to us
	}
}

func (s *ConcreteServer) EmitStateUpdate(state MediaState) {
	select {
	case s.stateChannel <- state:
	case <-s.stop:
	}
}

func (s *ConcreteServer) SetState(state aurena.PlaybackState) {
	s.current.PlaybackStatus = StatusFromPlaybackState(state)
	s.EmitStateUpdate(s.current)
}

func (s *ConcreteServer) SetPosition(sample aurena.PositionSample) {
	s.current.PositionMs = int64(sample.Position)
	s.current.DurationMs = int64(sample.Duration)
	s.EmitStateUpdate(s.current)
}

func (s *ConcreteServer) SetMessage(string) {}

func (s *ConcreteServer) Receive() <-chan MediaPlayer2PlayerCommand {
	return s.playerInterface.commands
}

func (s *ConcreteServer) executeStateUpdate(state MediaState) *dbus.Error {
	if state.PlaybackStatus != s.lastUploadedState.PlaybackStatus {
		if err := s.dbus.setProperty(mprisPlayerIface, "PlaybackStatus", state.PlaybackStatus); err != nil {
			s.log.Warnf("error executing mpris state update (playbackStatus) %s", err)
			return err
		}
	}
	if state.PositionMs != s.lastUploadedState.PositionMs {
		if err := s.dbus.setProperty(mprisPlayerIface, "Position", state.PositionMs*1000); err != nil {
			s.log.Warnf("error executing mpris state update (position) %s", err)
			return err
		}
	}
	if state.DurationMs != s.lastUploadedState.DurationMs {
		mt := makeMetadata(state)
		if err := s.dbus.setProperty(mprisPlayerIface, "Metadata", mt); err != nil {
			s.log.Warnf("error executing mpris state update (metadata) %s", err)
			return err
		}
		s.log.Tracef("successfully updated metadata %v", mt)
	}
	return nil
}

func (s *ConcreteServer) waitOnChannel() {
	defer close(s.done)

	for {
		select {
		case <-s.stop:
			return
		case state := <-s.stateChannel:
			if err := s.executeStateUpdate(state); err != nil {
				continue
			}
			s.lastUploadedState = state
		}
	}
}

func (s *ConcreteServer) Close() error {
	close(s.stop)
	<-s.done
	return s.dbus.conn.Close()
}

// NewServer opens the dbus connection and registers everything important
func NewServer(logger aurena.Logger) (_ *ConcreteServer, err error) {
	s := &ConcreteServer{log: logger}

	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, err
	}

	s.dbus = &DBusInstance{
		conn: conn,
	}

	s.rootInterface = MediaPlayer2RootInterface{log: logger}
	s.playerInterface = MediaPlayer2PlayerInterface{
		log:      logger,
		commands: make(chan MediaPlayer2PlayerCommand),
	}

	s.dbus.props, err = prop.Export(
		conn,
		mprisPath,
		map[string]map[string]*prop.Prop{
			"org.mpris.MediaPlayer2": mediaPlayer2Props,
			mprisPlayerIface:         s.playerInterface.Props(),
		},
	)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	reply, err := conn.RequestName("org.mpris.MediaPlayer2.go-aurena", dbus.NameFlagReplaceExisting)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		_ = conn.Close()
		return nil, errors.New("mpris name is already taken")
	}

	err = conn.Export(s.rootInterface, mprisPath, "org.mpris.MediaPlayer2")
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	err = conn.Export(s.playerInterface, mprisPath, mprisPlayerIface)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	s.lastUploadedState = MediaState{PlaybackStatus: Stopped}
	s.current = s.lastUploadedState

	s.stateChannel = make(chan MediaState)
	s.stop = make(chan struct{})
	s.done = make(chan struct{})

	go s.waitOnChannel()

	s.log.Debugf("created mpris server")

	return s, nil
}
