package control

import "time"

const (
	MessageTypePing          = "ping"
	MessageTypeEnrol         = "enrol"
	MessageTypeSetMedia      = "set-media"
	MessageTypePlay          = "play"
	MessageTypePause         = "pause"
	MessageTypeSeek          = "seek"
	MessageTypeVolume        = "volume"
	MessageTypeClientSetting = "client-setting"
	MessageTypeLanguage      = "language"
	MessageTypeRecord        = "record"
)

// Message is one object of the player event stream. Every field but the type
// is optional on the wire, handlers check what they need.
type Message struct {
	Type string `json:"msg-type"`

	ClockPort   *int     `json:"clock-port,omitempty"`
	CurrentTime *int64   `json:"current-time,omitempty"`
	VolumeLevel *float64 `json:"volume-level,omitempty"`
	Enabled     *bool    `json:"enabled,omitempty"`
	Paused      *bool    `json:"paused,omitempty"`

	ResourceProtocol *string `json:"resource-protocol,omitempty"`
	ResourcePath     *string `json:"resource-path,omitempty"`
	ResourcePort     *int    `json:"resource-port,omitempty"`
	BaseTime         *int64  `json:"base-time,omitempty"`
	Position         *int64  `json:"position,omitempty"`
	Language         *string `json:"language,omitempty"`

	Level *float64 `json:"level,omitempty"`

	RecordPath *string `json:"record-path,omitempty"`
	RecordPort *int    `json:"record-port,omitempty"`
}

// BaseTimeDuration returns the base time, which the server sends in
// nanoseconds.
func (m *Message) BaseTimeDuration() (time.Duration, bool) {
	if m.BaseTime == nil {
		return 0, false
	}

	return time.Duration(*m.BaseTime), true
}

// PositionDuration returns the stream position, which the server sends in
// nanoseconds.
func (m *Message) PositionDuration() (time.Duration, bool) {
	if m.Position == nil {
		return 0, false
	}

	return time.Duration(*m.Position), true
}

type EventType int

const (
	EventTypeConnected EventType = iota
	EventTypeMessage
	EventTypeDisconnected
)

type Event struct {
	Type    EventType
	Message *Message
	Err     error
}
