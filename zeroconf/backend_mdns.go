package zeroconf

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	aurena "github.com/devgianlu/go-aurena"
	"github.com/hashicorp/mdns"
)

const (
	defaultPollInterval = 10 * time.Second
	mdnsQueryTimeout    = 1 * time.Second

	// mdnsLostRounds is the number of consecutive queries a service must be
	// missing from before it is reported lost.
	mdnsLostRounds = 2
)

func init() {
	backends["mdns"] = newMdnsBackend
}

// mdnsBackend implements Backend by polling with hashicorp/mdns queries.
type mdnsBackend struct {
	log      aurena.Logger
	ifaces   []net.Interface
	interval time.Duration

	lock    sync.Mutex
	entries map[string]*mdns.ServiceEntry
	missed  map[string]int

	wg sync.WaitGroup
}

func newMdnsBackend(opts *BackendOptions) (Backend, error) {
	b := &mdnsBackend{
		log:      opts.Log,
		ifaces:   opts.Interfaces,
		interval: opts.PollInterval,
		entries:  map[string]*mdns.ServiceEntry{},
		missed:   map[string]int{},
	}

	if b.interval <= 0 {
		b.interval = defaultPollInterval
	}

	return b, nil
}

func (b *mdnsBackend) query(ctx context.Context, serviceType string) ([]*mdns.ServiceEntry, error) {
	ch := make(chan *mdns.ServiceEntry, 32)
	done := make(chan struct{})

	var results []*mdns.ServiceEntry
	go func() {
		defer close(done)
		for entry := range ch {
			results = append(results, entry)
		}
	}()

	ifaces := []*net.Interface{nil}
	if len(b.ifaces) > 0 {
		ifaces = ifaces[:0]
		for i := range b.ifaces {
			ifaces = append(ifaces, &b.ifaces[i])
		}
	}

	var err error
	for _, iface := range ifaces {
		if ctx.Err() != nil {
			break
		}

		params := mdns.DefaultParams(aurena.BareServiceType(serviceType))
		params.Timeout = mdnsQueryTimeout
		params.Interface = iface
		params.Entries = ch

		if qerr := mdns.Query(params); qerr != nil {
			err = fmt.Errorf("failed querying %s: %w", serviceType, qerr)
		}
	}

	close(ch)
	<-done

	return results, err
}

func (b *mdnsBackend) entryType(entry *mdns.ServiceEntry, serviceType string) string {
	if strings.Contains(entry.Name, "."+aurena.BareServiceType(serviceType)+".") {
		return aurena.NormalizeServiceType(serviceType)
	}

	return ""
}

func (b *mdnsBackend) round(ctx context.Context, serviceType string, found, lost func(aurena.ServiceAnnouncement)) {
	results, err := b.query(ctx, serviceType)
	if err != nil {
		b.log.WithError(err).Warnf("mdns query failed")
		return
	}

	var newAnns, lostAnns []aurena.ServiceAnnouncement

	b.lock.Lock()
	seen := map[string]bool{}
	for _, entry := range results {
		name := instanceName(entry.Name, serviceType)
		seen[name] = true

		if _, ok := b.entries[name]; !ok {
			newAnns = append(newAnns, aurena.ServiceAnnouncement{Name: name, Type: b.entryType(entry, serviceType)})
		}

		b.entries[name] = entry
		b.missed[name] = 0
	}

	for name, entry := range b.entries {
		if seen[name] {
			continue
		}

		b.missed[name]++
		if b.missed[name] >= mdnsLostRounds {
			delete(b.entries, name)
			delete(b.missed, name)
			lostAnns = append(lostAnns, aurena.ServiceAnnouncement{Name: name, Type: b.entryType(entry, serviceType)})
		}
	}
	b.lock.Unlock()

	for _, ann := range newAnns {
		found(ann)
	}

	for _, ann := range lostAnns {
		lost(ann)
	}
}

func (b *mdnsBackend) Browse(ctx context.Context, serviceType string, found, lost func(aurena.ServiceAnnouncement)) error {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()

		ticker := time.NewTicker(b.interval)
		defer ticker.Stop()

		for {
			b.round(ctx, serviceType, found, lost)

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return nil
}

func (b *mdnsBackend) lookup(name string) (aurena.ServiceAnnouncement, bool, bool) {
	b.lock.Lock()
	defer b.lock.Unlock()

	entry, ok := b.entries[name]
	if !ok {
		return aurena.ServiceAnnouncement{}, false, false
	}

	var v4, v6 []net.IP
	if entry.AddrV4 != nil {
		v4 = append(v4, entry.AddrV4)
	}
	if entry.AddrV6 != nil {
		v6 = append(v6, entry.AddrV6)
	}

	ann := aurena.ServiceAnnouncement{Name: name, Host: pickAddress(v4, v6), Port: entry.Port}
	return ann, true, ann.Resolved()
}

func (b *mdnsBackend) Resolve(ctx context.Context, ann aurena.ServiceAnnouncement) (aurena.ServiceAnnouncement, error) {
	if resolved, ok, hasAddr := b.lookup(ann.Name); ok && hasAddr {
		resolved.Type = ann.Type
		return resolved, nil
	}

	results, err := b.query(ctx, ann.Type)
	if err != nil {
		return ann, err
	} else if ctx.Err() != nil {
		return ann, ctx.Err()
	}

	b.lock.Lock()
	for _, entry := range results {
		name := instanceName(entry.Name, ann.Type)
		b.entries[name] = entry
		b.missed[name] = 0
	}
	b.lock.Unlock()

	resolved, ok, hasAddr := b.lookup(ann.Name)
	if !ok {
		return ann, fmt.Errorf("service %s not found", ann.Name)
	} else if !hasAddr {
		return ann, ErrNoAddress
	}

	resolved.Type = ann.Type
	return resolved, nil
}

func (b *mdnsBackend) Close() {
	b.wg.Wait()
}
