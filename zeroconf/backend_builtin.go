package zeroconf

import (
	"context"
	"fmt"
	"net"
	"sync"

	aurena "github.com/devgianlu/go-aurena"
	"github.com/grandcat/zeroconf"
)

func init() {
	backends["builtin"] = newBuiltinBackend
}

// builtinBackend implements Backend using the grandcat/zeroconf library,
// which provides a pure-Go mDNS resolver. The library does not report
// removals, so lost is never called.
type builtinBackend struct {
	log    aurena.Logger
	ifaces []net.Interface

	lock  sync.Mutex
	cache map[string]*zeroconf.ServiceEntry
	wg    sync.WaitGroup
}

func newBuiltinBackend(opts *BackendOptions) (Backend, error) {
	return &builtinBackend{
		log:    opts.Log,
		ifaces: opts.Interfaces,
		cache:  map[string]*zeroconf.ServiceEntry{},
	}, nil
}

func (b *builtinBackend) newResolver() (*zeroconf.Resolver, error) {
	if len(b.ifaces) > 0 {
		return zeroconf.NewResolver(zeroconf.SelectIfaces(b.ifaces))
	}

	return zeroconf.NewResolver()
}

func (b *builtinBackend) announcement(entry *zeroconf.ServiceEntry) aurena.ServiceAnnouncement {
	return aurena.ServiceAnnouncement{
		Name: entry.Instance,
		Type: aurena.NormalizeServiceType(entry.Service),
		Host: pickAddress(entry.AddrIPv4, entry.AddrIPv6),
		Port: entry.Port,
	}
}

func (b *builtinBackend) Browse(ctx context.Context, serviceType string, found, _ func(aurena.ServiceAnnouncement)) error {
	resolver, err := b.newResolver()
	if err != nil {
		return fmt.Errorf("failed creating mdns resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry, 32)
	if err := resolver.Browse(ctx, aurena.BareServiceType(serviceType), defaultDomain, entries); err != nil {
		return fmt.Errorf("failed browsing for %s: %w", serviceType, err)
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()

		for {
			select {
			case <-ctx.Done():
				return
			case entry, ok := <-entries:
				if !ok {
					return
				}

				b.lock.Lock()
				b.cache[entry.Instance] = entry
				b.lock.Unlock()

				b.log.Tracef("builtin backend found %s", entry.ServiceInstanceName())
				found(aurena.ServiceAnnouncement{Name: entry.Instance, Type: aurena.NormalizeServiceType(entry.Service)})
			}
		}
	}()

	return nil
}

func (b *builtinBackend) Resolve(ctx context.Context, ann aurena.ServiceAnnouncement) (aurena.ServiceAnnouncement, error) {
	b.lock.Lock()
	entry, ok := b.cache[ann.Name]
	b.lock.Unlock()

	if ok {
		if resolved := b.announcement(entry); resolved.Resolved() {
			return resolved, nil
		}
	}

	resolver, err := b.newResolver()
	if err != nil {
		return ann, fmt.Errorf("failed creating mdns resolver: %w", err)
	}

	lookupCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry, 32)
	if err := resolver.Lookup(lookupCtx, ann.Name, aurena.BareServiceType(ann.Type), defaultDomain, entries); err != nil {
		return ann, fmt.Errorf("failed looking up %s: %w", ann.Name, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ann, ctx.Err()
		case entry, ok := <-entries:
			if !ok {
				return ann, ctx.Err()
			}

			if resolved := b.announcement(entry); resolved.Resolved() {
				b.lock.Lock()
				b.cache[entry.Instance] = entry
				b.lock.Unlock()

				return resolved, nil
			}

			return ann, ErrNoAddress
		}
	}
}

func (b *builtinBackend) Close() {
	b.wg.Wait()
}
