package surface

import (
	"errors"
	"fmt"
	"sync"

	aurena "github.com/devgianlu/go-aurena"
)

// Binder attaches and detaches render targets, it is implemented by
// *session.Session.
type Binder interface {
	BindSurface(surface aurena.Surface) error
	UnbindSurface() error
}

var ErrNoSurface = errors.New("missing surface")

type Format int

const (
	FormatUnknown Format = iota
	FormatRGBA8888
	FormatRGBX8888
	FormatRGB565
)

func (f Format) String() string {
	switch f {
	case FormatRGBA8888:
		return "RGBA_8888"
	case FormatRGBX8888:
		return "RGBX_8888"
	case FormatRGB565:
		return "RGB_565"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// Presentation forwards the lifecycle of a drawable target to a Binder.
type Presentation struct {
	log    aurena.Logger
	binder Binder

	lock    sync.Mutex
	current aurena.Surface
	width   int
	height  int
	format  Format
}

func NewPresentation(log aurena.Logger, binder Binder) *Presentation {
	if log == nil {
		log = &aurena.NullLogger{}
	}

	return &Presentation{log: log, binder: binder}
}

// OnCreated only records the surface, binding waits for its geometry.
func (p *Presentation) OnCreated(surface aurena.Surface) error {
	if surface == nil {
		return ErrNoSurface
	}

	p.lock.Lock()
	defer p.lock.Unlock()

	p.log.Debugf("surface %#x created", surface.WindowHandle())
	p.current = surface
	return nil
}

// OnChanged binds the surface, every call rebinds.
func (p *Presentation) OnChanged(surface aurena.Surface, format Format, width, height int) error {
	if surface == nil {
		return ErrNoSurface
	}

	p.lock.Lock()
	defer p.lock.Unlock()

	p.log.Debugf("surface %#x changed, format %s size %dx%d", surface.WindowHandle(), format, width, height)
	p.current = surface
	p.format = format
	p.width, p.height = width, height

	if err := p.binder.BindSurface(surface); err != nil {
		return fmt.Errorf("failed binding surface: %w", err)
	}

	return nil
}

// OnDestroyed unbinds the surface and returns only once the engine released
// it, the caller may free the surface afterwards.
func (p *Presentation) OnDestroyed() error {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.current == nil {
		p.log.Debugf("surface destroyed before being created")
	} else {
		p.log.Debugf("surface %#x destroyed", p.current.WindowHandle())
	}

	p.current = nil
	if err := p.binder.UnbindSurface(); err != nil {
		return fmt.Errorf("failed unbinding surface: %w", err)
	}

	return nil
}

// Size returns the last reported geometry.
func (p *Presentation) Size() (width, height int) {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.width, p.height
}

func (p *Presentation) Current() aurena.Surface {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.current
}
