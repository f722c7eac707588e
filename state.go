package go_aurena

import "fmt"

// PlaybackState is the state confirmed by the engine. The UI layer only
// requests transitions, it never sets this directly.
type PlaybackState int

const (
	PlaybackStateNull PlaybackState = iota + 1
	PlaybackStateReady
	PlaybackStatePaused
	PlaybackStatePlaying
)

// PlaybackStateFromCode maps the integer code reported by the engine. Unknown
// codes return false.
func PlaybackStateFromCode(code int) (PlaybackState, bool) {
	switch state := PlaybackState(code); state {
	case PlaybackStateNull, PlaybackStateReady, PlaybackStatePaused, PlaybackStatePlaying:
		return state, true
	default:
		return 0, false
	}
}

func (s PlaybackState) Code() int {
	return int(s)
}

func (s PlaybackState) String() string {
	switch s {
	case PlaybackStateNull:
		return "NULL"
	case PlaybackStateReady:
		return "READY"
	case PlaybackStatePaused:
		return "PAUSED"
	case PlaybackStatePlaying:
		return "PLAYING"
	default:
		return fmt.Sprintf("PlaybackState(%d)", int(s))
	}
}

// PositionSample is the last position reported by the engine, in milliseconds.
type PositionSample struct {
	Position int
	Duration int
}

func (p PositionSample) String() string {
	return FormatClock(p.Position) + " / " + FormatClock(p.Duration)
}
