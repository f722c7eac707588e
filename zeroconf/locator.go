package zeroconf

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	aurena "github.com/devgianlu/go-aurena"
)

const (
	DefaultResolveTimeout = 5 * time.Second

	resolveQueueSize = 64
)

type LocatorOptions struct {
	Log     aurena.Logger
	Backend Backend

	// ResolveTimeout bounds every single resolution.
	ResolveTimeout time.Duration

	// OnResolved is called after an announcement resolved and became the
	// active one.
	OnResolved func(ann aurena.ServiceAnnouncement, endpoint aurena.PlaybackEndpoint)
	// OnLost is called when the active announcement went away.
	OnLost func(ann aurena.ServiceAnnouncement)
	// OnResolutionFailed is called with an *aurena.ResolutionError.
	OnResolutionFailed func(err error)
}

// Locator finds the playback server announced on the local network. Matching
// announcements are resolved one at a time, in the order they were found.
type Locator struct {
	log            aurena.Logger
	backend        Backend
	resolveTimeout time.Duration

	onResolved         func(ann aurena.ServiceAnnouncement, endpoint aurena.PlaybackEndpoint)
	onLost             func(ann aurena.ServiceAnnouncement)
	onResolutionFailed func(err error)

	lock        sync.Mutex
	discovering bool
	serviceType string
	active      *aurena.ServiceAnnouncement

	// generations is bumped for a name every time it is lost, a resolution
	// queued under an older generation is stale.
	generations map[string]uint64

	cancel context.CancelFunc
	queue  chan queuedAnnouncement
	done   chan struct{}
}

type queuedAnnouncement struct {
	ann        aurena.ServiceAnnouncement
	generation uint64
}

func NewLocator(opts *LocatorOptions) (*Locator, error) {
	if opts.Backend == nil {
		return nil, fmt.Errorf("missing discovery backend")
	}

	l := &Locator{
		log:                opts.Log,
		backend:            opts.Backend,
		resolveTimeout:     opts.ResolveTimeout,
		onResolved:         opts.OnResolved,
		onLost:             opts.OnLost,
		onResolutionFailed: opts.OnResolutionFailed,
	}

	if l.log == nil {
		l.log = &aurena.NullLogger{}
	}
	if l.resolveTimeout <= 0 {
		l.resolveTimeout = DefaultResolveTimeout
	}

	return l, nil
}

// StartDiscovery starts browsing for serviceType. It fails with
// aurena.ErrAlreadyDiscovering while discovery is active, and with
// aurena.ErrDiscoveryStart if the backend could not start.
func (l *Locator) StartDiscovery(ctx context.Context, serviceType string) error {
	serviceType = aurena.NormalizeServiceType(serviceType)
	if len(serviceType) == 0 {
		return fmt.Errorf("%w: empty service type", aurena.ErrDiscoveryStart)
	}

	l.lock.Lock()
	if l.discovering {
		l.lock.Unlock()
		return aurena.ErrAlreadyDiscovering
	}

	ctx, cancel := context.WithCancel(ctx)
	l.discovering = true
	l.serviceType = serviceType
	l.cancel = cancel
	l.generations = map[string]uint64{}
	l.queue = make(chan queuedAnnouncement, resolveQueueSize)
	l.done = make(chan struct{})
	queue, done := l.queue, l.done
	l.lock.Unlock()

	go l.resolveLoop(ctx, queue, done)

	if err := l.backend.Browse(ctx, serviceType, l.OnAnnouncementFound, l.OnAnnouncementLost); err != nil {
		l.StopDiscovery()
		return fmt.Errorf("%w: %w", aurena.ErrDiscoveryStart, err)
	}

	l.log.Infof("discovering %s services", serviceType)
	return nil
}

// StopDiscovery stops browsing and waits for the pending resolution, if any.
// The active announcement is kept.
func (l *Locator) StopDiscovery() {
	l.lock.Lock()
	if !l.discovering {
		l.lock.Unlock()
		return
	}

	l.discovering = false
	cancel, done := l.cancel, l.done
	l.cancel, l.queue, l.done = nil, nil, nil
	l.lock.Unlock()

	cancel()
	<-done

	l.log.Debugf("discovery stopped")
}

func (l *Locator) Discovering() bool {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.discovering
}

// Active returns the announcement the last successful resolution came from.
func (l *Locator) Active() (aurena.ServiceAnnouncement, bool) {
	l.lock.Lock()
	defer l.lock.Unlock()

	if l.active == nil {
		return aurena.ServiceAnnouncement{}, false
	}

	return *l.active, true
}

// OnAnnouncementFound queues the announcement for resolution if its type
// matches the one being discovered.
func (l *Locator) OnAnnouncementFound(ann aurena.ServiceAnnouncement) {
	l.lock.Lock()
	defer l.lock.Unlock()

	if !l.discovering {
		l.log.Debugf("ignoring announcement %s, not discovering", ann)
		return
	}

	if ann.Type != l.serviceType {
		l.log.Debugf("ignoring announcement %s of unknown type", ann)
		return
	}

	l.log.Infof("found service %s", ann)

	select {
	case l.queue <- queuedAnnouncement{ann: ann, generation: l.generations[ann.Name]}:
	default:
		l.log.Warnf("dropping announcement %s, too many pending resolutions", ann)
	}
}

// OnAnnouncementLost clears the active announcement if it is the lost one,
// pending resolutions of it are dropped. Playback is left alone, that is up
// to the lost handler.
func (l *Locator) OnAnnouncementLost(ann aurena.ServiceAnnouncement) {
	l.lock.Lock()
	if l.generations != nil {
		l.generations[ann.Name]++
	}

	if l.active == nil || !l.active.Same(ann) {
		l.lock.Unlock()
		l.log.Debugf("lost service %s", ann)
		return
	}

	lost := *l.active
	l.active = nil
	l.lock.Unlock()

	l.log.Infof("lost active service %s", lost)
	if l.onLost != nil {
		l.onLost(lost)
	}
}

// Resolve resolves the announcement into an endpoint. Failures are returned
// as *aurena.ResolutionError and leave the locator untouched.
func (l *Locator) Resolve(ctx context.Context, ann aurena.ServiceAnnouncement) (aurena.ServiceAnnouncement, aurena.PlaybackEndpoint, error) {
	ctx, cancel := context.WithTimeout(ctx, l.resolveTimeout)
	defer cancel()

	resolved, err := l.backend.Resolve(ctx, ann)
	if err != nil {
		code := aurena.ResolutionErrorUnknown
		if errors.Is(err, context.DeadlineExceeded) {
			code = aurena.ResolutionErrorTimeout
		} else if errors.Is(err, ErrNoAddress) {
			code = aurena.ResolutionErrorNoAddress
		}

		return ann, aurena.PlaybackEndpoint{}, &aurena.ResolutionError{Announcement: ann, Code: code, Err: err}
	}

	if len(resolved.Name) == 0 {
		resolved.Name = ann.Name
	}
	if len(resolved.Type) == 0 {
		resolved.Type = ann.Type
	}

	if !resolved.Resolved() {
		return ann, aurena.PlaybackEndpoint{}, &aurena.ResolutionError{Announcement: ann, Code: aurena.ResolutionErrorNoAddress, Err: ErrNoAddress}
	}

	return resolved, aurena.EndpointFromAnnouncement(resolved), nil
}

func (l *Locator) stale(item queuedAnnouncement) bool {
	return l.generations[item.ann.Name] != item.generation
}

func (l *Locator) resolveLoop(ctx context.Context, queue <-chan queuedAnnouncement, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-ctx.Done():
			return
		case item := <-queue:
			ann := item.ann

			l.lock.Lock()
			stale := l.stale(item)
			l.lock.Unlock()
			if stale {
				l.log.Debugf("skipping resolution of lost service %s", ann.Name)
				continue
			}

			resolved, endpoint, err := l.Resolve(ctx, ann)
			if ctx.Err() != nil {
				return
			} else if err != nil {
				l.log.WithError(err).Warnf("failed resolving service %s", ann.Name)
				if l.onResolutionFailed != nil {
					l.onResolutionFailed(err)
				}

				continue
			}

			l.lock.Lock()
			if l.stale(item) {
				l.lock.Unlock()
				l.log.Debugf("dropping resolution of %s, service was lost", ann.Name)
				continue
			}

			l.active = &resolved
			l.lock.Unlock()

			l.log.Infof("resolved service %s to %s", resolved.Name, endpoint)
			if l.onResolved != nil {
				l.onResolved(resolved, endpoint)
			}
		}
	}
}

// Close stops discovery and releases the backend.
func (l *Locator) Close() {
	l.StopDiscovery()
	l.backend.Close()
}
