package go_aurena

// Surface is the drawable target the engine renders into. The handle is
// opaque to everything but the media pipeline, zero means no window.
type Surface interface {
	WindowHandle() uintptr
}
