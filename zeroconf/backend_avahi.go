package zeroconf

import (
	"context"
	"errors"
	"fmt"
	"sync"

	aurena "github.com/devgianlu/go-aurena"
	"github.com/godbus/dbus/v5"
	"golang.org/x/exp/slices"
)

const (
	avahiService       = "org.freedesktop.Avahi"
	avahiServerPath    = "/"
	avahiServerIface   = "org.freedesktop.Avahi.Server"
	avahiBrowserIface  = "org.freedesktop.Avahi.ServiceBrowser"
	avahiTimeoutError  = "org.freedesktop.Avahi.TimeoutError"
	avahiDefaultDomain = ""

	// Avahi constants
	avahiIfUnspec    = int32(-1) // AVAHI_IF_UNSPEC - use all interfaces
	avahiProtoUnspec = int32(-1) // AVAHI_PROTO_UNSPEC - use both IPv4 and IPv6
)

func init() {
	backends["avahi"] = newAvahiBackend
}

// avahiBackend implements Backend using avahi-daemon via D-Bus.
// This allows sharing the mDNS responder with other services on the system
// instead of running our own.
//
// Compatibility: Requires avahi-daemon 0.6.x or later (uses stable D-Bus API).
type avahiBackend struct {
	log     aurena.Logger
	conn    *dbus.Conn
	server  dbus.BusObject
	version string

	// items holds one entry per interface and protocol a service was seen
	// on, avahi reports each of them separately.
	lock  sync.Mutex
	items map[string][]avahiItem

	wg sync.WaitGroup
}

// avahiItem is what the browser reported about a service, the resolver
// needs it back.
type avahiItem struct {
	iface  int32
	proto  int32
	name   string
	typ    string
	domain string
}

func newAvahiBackend(opts *BackendOptions) (Backend, error) {
	if len(opts.Interfaces) > 0 {
		return nil, fmt.Errorf("avahi discovery does not support specifying interfaces")
	}

	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to system bus: %w", err)
	}

	// Verify avahi-daemon is available by calling GetHostName (available in all versions)
	server := conn.Object(avahiService, avahiServerPath)
	var hostname string
	err = server.Call(avahiServerIface+".GetHostName", 0).Store(&hostname)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to connect to avahi-daemon (is it running?): %w", err)
	}

	b := &avahiBackend{
		log:     opts.Log,
		conn:    conn,
		server:  server,
		version: getAvahiVersion(server),
		items:   map[string][]avahiItem{},
	}

	b.log.Debugf("using avahi-daemon %s on %s", b.version, hostname)
	return b, nil
}

// getAvahiVersion attempts to retrieve the avahi-daemon version.
// Returns "unknown" if version cannot be determined.
func getAvahiVersion(server dbus.BusObject) string {
	// Try GetVersionString first (available in avahi 0.8+)
	var versionStr string
	if err := server.Call(avahiServerIface+".GetVersionString", 0).Store(&versionStr); err == nil {
		return versionStr
	}

	// Try GetAPIVersion (returns a single uint32)
	var apiVersion uint32
	if err := server.Call(avahiServerIface+".GetAPIVersion", 0).Store(&apiVersion); err == nil {
		return fmt.Sprintf("API v%d", apiVersion)
	}

	return "unknown"
}

// parseAvahiItem decodes the body of ItemNew and ItemRemove signals:
// interface (i), protocol (i), name (s), type (s), domain (s), flags (u).
func parseAvahiItem(body []any) (avahiItem, bool) {
	if len(body) < 5 {
		return avahiItem{}, false
	}

	iface, ok1 := body[0].(int32)
	proto, ok2 := body[1].(int32)
	name, ok3 := body[2].(string)
	typ, ok4 := body[3].(string)
	domain, ok5 := body[4].(string)
	if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 {
		return avahiItem{}, false
	}

	return avahiItem{iface: iface, proto: proto, name: name, typ: typ, domain: domain}, true
}

func (b *avahiBackend) Browse(ctx context.Context, serviceType string, found, lost func(aurena.ServiceAnnouncement)) error {
	bareType := aurena.BareServiceType(serviceType)

	// subscribe before creating the browser, it may emit right away
	signals := make(chan *dbus.Signal, 32)
	b.conn.Signal(signals)

	if err := b.conn.AddMatchSignal(dbus.WithMatchInterface(avahiBrowserIface)); err != nil {
		b.conn.RemoveSignal(signals)
		return fmt.Errorf("failed to subscribe to browser signals: %w", err)
	}

	// ServiceBrowserNew signature: iissu
	var browserPath dbus.ObjectPath
	err := b.server.CallWithContext(ctx, avahiServerIface+".ServiceBrowserNew", 0,
		avahiIfUnspec,      // interface
		avahiProtoUnspec,   // protocol
		bareType,           // service type
		avahiDefaultDomain, // domain
		uint32(0),          // flags
	).Store(&browserPath)
	if err != nil {
		_ = b.conn.RemoveMatchSignal(dbus.WithMatchInterface(avahiBrowserIface))
		b.conn.RemoveSignal(signals)
		return fmt.Errorf("failed to create service browser: %w", err)
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer func() {
			// Free the browser, this also stops its signals
			_ = b.conn.Object(avahiService, browserPath).Call(avahiBrowserIface+".Free", 0).Err
			_ = b.conn.RemoveMatchSignal(dbus.WithMatchInterface(avahiBrowserIface))
			b.conn.RemoveSignal(signals)
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case sig, ok := <-signals:
				if !ok {
					return
				} else if sig.Path != browserPath {
					continue
				}

				b.handleSignal(sig, found, lost)
			}
		}
	}()

	return nil
}

// addItem records the item and reports whether it is the first entry for
// its name.
func (b *avahiBackend) addItem(item avahiItem) bool {
	b.lock.Lock()
	defer b.lock.Unlock()

	entries := b.items[item.name]
	for _, e := range entries {
		if e.iface == item.iface && e.proto == item.proto {
			return false
		}
	}

	b.items[item.name] = append(entries, item)
	return len(entries) == 0
}

// removeItem forgets the item and reports whether it was the last entry for
// its name.
func (b *avahiBackend) removeItem(item avahiItem) bool {
	b.lock.Lock()
	defer b.lock.Unlock()

	entries, ok := b.items[item.name]
	if !ok {
		return false
	}

	entries = slices.DeleteFunc(entries, func(e avahiItem) bool {
		return e.iface == item.iface && e.proto == item.proto
	})
	if len(entries) > 0 {
		b.items[item.name] = entries
		return false
	}

	delete(b.items, item.name)
	return true
}

func (b *avahiBackend) handleSignal(sig *dbus.Signal, found, lost func(aurena.ServiceAnnouncement)) {
	switch sig.Name {
	case avahiBrowserIface + ".ItemNew":
		item, ok := parseAvahiItem(sig.Body)
		if !ok {
			b.log.Warnf("invalid avahi ItemNew signal")
			return
		}

		if b.addItem(item) {
			found(aurena.ServiceAnnouncement{Name: item.name, Type: aurena.NormalizeServiceType(item.typ)})
		}
	case avahiBrowserIface + ".ItemRemove":
		item, ok := parseAvahiItem(sig.Body)
		if !ok {
			b.log.Warnf("invalid avahi ItemRemove signal")
			return
		}

		if b.removeItem(item) {
			lost(aurena.ServiceAnnouncement{Name: item.name, Type: aurena.NormalizeServiceType(item.typ)})
		}
	case avahiBrowserIface + ".Failure":
		b.log.Warnf("avahi service browser failed: %v", sig.Body)
	case avahiBrowserIface + ".AllForNow", avahiBrowserIface + ".CacheExhausted":
		b.log.Tracef("avahi service browser: %s", sig.Name)
	}
}

func isAvahiTimeout(err error) bool {
	var dbusErr dbus.Error
	if errors.As(err, &dbusErr) {
		return dbusErr.Name == avahiTimeoutError
	}

	var dbusErrPtr *dbus.Error
	if errors.As(err, &dbusErrPtr) {
		return dbusErrPtr.Name == avahiTimeoutError
	}

	return false
}

func (b *avahiBackend) Resolve(ctx context.Context, ann aurena.ServiceAnnouncement) (aurena.ServiceAnnouncement, error) {
	b.lock.Lock()
	var item avahiItem
	entries, ok := b.items[ann.Name]
	if ok {
		item = entries[0]
	}
	b.lock.Unlock()

	if !ok {
		item = avahiItem{
			iface:  avahiIfUnspec,
			proto:  avahiProtoUnspec,
			name:   ann.Name,
			typ:    aurena.BareServiceType(ann.Type),
			domain: avahiDefaultDomain,
		}
	}

	var (
		rIface, rProto, rAProto int32
		rName, rType, rDomain   string
		host, address           string
		port                    uint16
		txt                     [][]byte
		flags                   uint32
	)

	// ResolveService signature: iisssiu -> iissssisqaayu
	err := b.server.CallWithContext(ctx, avahiServerIface+".ResolveService", 0,
		item.iface,       // interface
		item.proto,       // protocol
		item.name,        // service name
		item.typ,         // service type
		item.domain,      // domain
		avahiProtoUnspec, // address protocol
		uint32(0),        // flags
	).Store(&rIface, &rProto, &rName, &rType, &rDomain, &host, &rAProto, &address, &port, &txt, &flags)
	if err != nil {
		if ctx.Err() != nil {
			return ann, ctx.Err()
		} else if isAvahiTimeout(err) {
			return ann, fmt.Errorf("%w: %w", context.DeadlineExceeded, err)
		}

		return ann, fmt.Errorf("failed to resolve service: %w", err)
	}

	if len(address) == 0 || port == 0 {
		return ann, ErrNoAddress
	}

	b.log.Tracef("avahi resolved %s to %s (%s) port %d", rName, host, address, port)
	return aurena.ServiceAnnouncement{
		Name: rName,
		Type: aurena.NormalizeServiceType(rType),
		Host: address,
		Port: int(port),
	}, nil
}

// Close releases the D-Bus connection once browsing stopped.
func (b *avahiBackend) Close() {
	b.wg.Wait()

	if b.conn != nil {
		_ = b.conn.Close()
		b.conn = nil
	}
}
