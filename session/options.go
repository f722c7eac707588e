package session

import (
	aurena "github.com/devgianlu/go-aurena"
	"github.com/devgianlu/go-aurena/engine"
)

type Options struct {
	Log aurena.Logger

	// Engine is the playback engine owned by the session, required.
	Engine engine.Engine
}
