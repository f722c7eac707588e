package engine

import aurena "github.com/devgianlu/go-aurena"

// Callbacks are invoked by the engine from its own goroutine, receivers must
// marshal them to wherever their state lives.
type Callbacks interface {
	// OnEngineReady is called once, as soon as the engine loop is running and
	// a surface is bound.
	OnEngineReady()
	// OnStateChanged reports the pipeline state code: 1 NULL, 2 READY,
	// 3 PAUSED, 4 PLAYING.
	OnStateChanged(code int)
	// OnPositionChanged reports the stream position and duration in
	// milliseconds, duration is zero when unknown.
	OnPositionChanged(position, duration int)
	OnMessage(text string)
}

// Engine is the playback engine boundary. Every call but Init returns
// immediately, effects are observed through Callbacks.
type Engine interface {
	// ClassInit reports whether the engine can be used at all.
	ClassInit() bool
	Init() error
	// Finalize stops the engine and waits for it. Later calls are ignored.
	Finalize()

	// Play connects to the server at "<host>:<port>" and starts streaming,
	// unless a connection already exists.
	Play(address string)
	// Pause drops the server connection and stops the pipeline.
	Pause()

	SurfaceInit(surface aurena.Surface)
	// SurfaceFinalize detaches the render target and returns once the
	// pipeline released it.
	SurfaceFinalize()
}
