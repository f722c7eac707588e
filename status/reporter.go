package status

import (
	"sync"

	aurena "github.com/devgianlu/go-aurena"
)

// Reporter receives the engine callbacks on any goroutine and replays them on
// the UI loop. Position samples arriving before the loop ran are coalesced,
// only the latest is shown.
type Reporter struct {
	log  aurena.Logger
	loop *Loop
	sink Sink

	onReady func()

	lock    sync.Mutex
	latest  aurena.PositionSample
	pending bool
	state   aurena.PlaybackState
}

type ReporterOptions struct {
	Log  aurena.Logger
	Loop *Loop
	Sink Sink

	// OnEngineReady runs on the loop when the engine reports ready.
	OnEngineReady func()
}

func NewReporter(opts *ReporterOptions) *Reporter {
	r := &Reporter{
		log:     opts.Log,
		loop:    opts.Loop,
		sink:    opts.Sink,
		onReady: opts.OnEngineReady,
		state:   aurena.PlaybackStateNull,
	}

	if r.log == nil {
		r.log = &aurena.NullLogger{}
	}

	return r
}

func (r *Reporter) post(task func()) {
	if !r.loop.Post(task) {
		r.log.Debugf("dropping status update, loop closed")
	}
}

func (r *Reporter) OnEngineReady() {
	r.log.Debugf("engine ready")
	if r.onReady != nil {
		r.post(r.onReady)
	}
}

func (r *Reporter) OnStateChanged(code int) {
	state, ok := aurena.PlaybackStateFromCode(code)
	if !ok {
		r.log.Debugf("ignoring unknown engine state %d", code)
		return
	}

	r.post(func() {
		r.lock.Lock()
		r.state = state
		r.lock.Unlock()

		r.sink.SetState(state)
	})
}

func (r *Reporter) OnPositionChanged(position, duration int) {
	r.lock.Lock()
	r.latest = aurena.PositionSample{Position: position, Duration: duration}
	schedule := !r.pending
	r.pending = true
	r.lock.Unlock()

	if !schedule {
		return
	}

	r.post(func() {
		r.lock.Lock()
		sample := r.latest
		r.pending = false
		r.lock.Unlock()

		r.sink.SetPosition(sample)
	})
}

func (r *Reporter) OnMessage(text string) {
	r.post(func() { r.sink.SetMessage(text) })
}

// State returns the last state applied on the loop.
func (r *Reporter) State() aurena.PlaybackState {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.state
}

// Position returns the latest sample received.
func (r *Reporter) Position() aurena.PositionSample {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.latest
}
