package surface

import "sync/atomic"

// Headless is a surface without a display, its window handle is whatever was
// configured, usually zero.
type Headless struct {
	handle   atomic.Uintptr
	released atomic.Bool
}

func NewHeadless(handle uintptr) *Headless {
	h := &Headless{}
	h.handle.Store(handle)
	return h
}

func (h *Headless) WindowHandle() uintptr {
	return h.handle.Load()
}

// Release marks the surface as freed, a released surface reports no handle.
func (h *Headless) Release() {
	h.released.Store(true)
	h.handle.Store(0)
}

func (h *Headless) Released() bool {
	return h.released.Load()
}
