package status

import (
	"sync"

	aurena "github.com/devgianlu/go-aurena"
)

// Sink is the UI-side consumer of engine status. Its methods are only ever
// called from the UI loop.
type Sink interface {
	SetState(state aurena.PlaybackState)
	SetPosition(sample aurena.PositionSample)
	SetMessage(text string)
}

// Sinks fans out to multiple sinks in order.
type Sinks []Sink

func (s Sinks) SetState(state aurena.PlaybackState) {
	for _, sink := range s {
		sink.SetState(state)
	}
}

func (s Sinks) SetPosition(sample aurena.PositionSample) {
	for _, sink := range s {
		sink.SetPosition(sample)
	}
}

func (s Sinks) SetMessage(text string) {
	for _, sink := range s {
		sink.SetMessage(text)
	}
}

type LogSink struct {
	Log aurena.Logger
}

func (s *LogSink) SetState(state aurena.PlaybackState) {
	s.Log.Infof("playback state: %s", state)
}

func (s *LogSink) SetPosition(sample aurena.PositionSample) {
	s.Log.Tracef("playback position: %s", sample)
}

func (s *LogSink) SetMessage(text string) {
	s.Log.Warnf("engine message: %s", text)
}

type Snapshot struct {
	State    string `json:"state"`
	Position int    `json:"position"`
	Duration int    `json:"duration"`
	TimeText string `json:"time_text"`
	Message  string `json:"message,omitempty"`
}

// Display keeps what a screen would show, it can be read from any goroutine.
type Display struct {
	lock     sync.RWMutex
	snapshot Snapshot
}

func NewDisplay() *Display {
	return &Display{snapshot: Snapshot{
		State:    aurena.PlaybackStateNull.String(),
		TimeText: aurena.PositionSample{}.String(),
	}}
}

func (d *Display) SetState(state aurena.PlaybackState) {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.snapshot.State = state.String()
}

func (d *Display) SetPosition(sample aurena.PositionSample) {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.snapshot.Position = sample.Position
	d.snapshot.Duration = sample.Duration
	d.snapshot.TimeText = sample.String()
}

func (d *Display) SetMessage(text string) {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.snapshot.Message = text
}

func (d *Display) Snapshot() Snapshot {
	d.lock.RLock()
	defer d.lock.RUnlock()
	return d.snapshot
}
