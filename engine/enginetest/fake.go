// Package enginetest provides an engine that records the calls it receives.
package enginetest

import (
	"fmt"
	"sync"

	aurena "github.com/devgianlu/go-aurena"
	"github.com/devgianlu/go-aurena/engine"
)

type Call struct {
	Method string
	Arg    string
}

func (c Call) String() string {
	if len(c.Arg) == 0 {
		return c.Method
	}

	return fmt.Sprintf("%s(%s)", c.Method, c.Arg)
}

type FakeEngine struct {
	// ClassInitResult is returned by ClassInit.
	ClassInitResult bool
	// InitErr is returned by Init.
	InitErr error
	// Callbacks, when set, receive OnEngineReady once a surface is bound
	// after Init.
	Callbacks engine.Callbacks

	lock   sync.Mutex
	calls  []Call
	ready  bool
	inited bool
}

func NewFakeEngine() *FakeEngine {
	return &FakeEngine{ClassInitResult: true}
}

func (f *FakeEngine) record(method, arg string) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.calls = append(f.calls, Call{Method: method, Arg: arg})
}

// Calls returns the recorded calls in the order they were received.
func (f *FakeEngine) Calls() []Call {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([]Call(nil), f.calls...)
}

// Methods returns the recorded calls rendered as strings.
func (f *FakeEngine) Methods() []string {
	calls := f.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.String()
	}

	return out
}

func (f *FakeEngine) Count(method string) int {
	var n int
	for _, c := range f.Calls() {
		if c.Method == method {
			n++
		}
	}

	return n
}

func (f *FakeEngine) Reset() {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.calls = nil
}

func (f *FakeEngine) ClassInit() bool {
	f.record("ClassInit", "")
	return f.ClassInitResult
}

func (f *FakeEngine) Init() error {
	f.record("Init", "")
	if f.InitErr != nil {
		return f.InitErr
	}

	f.lock.Lock()
	f.inited = true
	f.lock.Unlock()
	return nil
}

func (f *FakeEngine) Finalize() {
	f.record("Finalize", "")
}

func (f *FakeEngine) Play(address string) {
	f.record("Play", address)
}

func (f *FakeEngine) Pause() {
	f.record("Pause", "")
}

func (f *FakeEngine) SurfaceInit(surface aurena.Surface) {
	var handle uintptr
	if surface != nil {
		handle = surface.WindowHandle()
	}

	f.record("SurfaceInit", fmt.Sprintf("%#x", handle))

	f.lock.Lock()
	fire := f.inited && !f.ready && f.Callbacks != nil
	if fire {
		f.ready = true
	}
	f.lock.Unlock()

	if fire {
		f.Callbacks.OnEngineReady()
	}
}

func (f *FakeEngine) SurfaceFinalize() {
	f.record("SurfaceFinalize", "")
}

var _ engine.Engine = (*FakeEngine)(nil)
