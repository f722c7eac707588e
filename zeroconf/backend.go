package zeroconf

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	aurena "github.com/devgianlu/go-aurena"
)

// ErrNoAddress is returned by backends when a service resolved without any
// usable address.
var ErrNoAddress = errors.New("service has no address")

const defaultDomain = "local."

// Backend browses and resolves mDNS services.
// Implementations can use different backends like built-in mDNS or avahi-daemon.
type Backend interface {
	// Browse starts looking for services of the given type and returns once
	// browsing is running. found and lost are called from the backend
	// goroutines until ctx is done.
	Browse(ctx context.Context, serviceType string, found, lost func(aurena.ServiceAnnouncement)) error

	// Resolve fills in the host and port of an announcement.
	Resolve(ctx context.Context, ann aurena.ServiceAnnouncement) (aurena.ServiceAnnouncement, error)

	// Close releases the resources of the backend.
	Close()
}

type BackendOptions struct {
	Log aurena.Logger

	// Interfaces restricts discovery to these interfaces, all when empty.
	Interfaces []net.Interface
	// PollInterval is the query interval of polling backends.
	PollInterval time.Duration
}

type backendFactory func(opts *BackendOptions) (Backend, error)

var backends = map[string]backendFactory{}

// NewBackend creates the backend registered with the given name.
func NewBackend(name string, opts *BackendOptions) (Backend, error) {
	factory, ok := backends[name]
	if !ok {
		return nil, fmt.Errorf("unknown discovery backend: %s", name)
	}

	if opts.Log == nil {
		opts.Log = &aurena.NullLogger{}
	}

	return factory(opts)
}

// instanceName extracts the instance part of a fully qualified service name,
// "name._aurena._tcp.local." becomes "name".
func instanceName(fqdn, serviceType string) string {
	fqdn = strings.TrimSuffix(fqdn, ".")
	if idx := strings.Index(fqdn, "."+aurena.BareServiceType(serviceType)); idx > 0 {
		fqdn = fqdn[:idx]
	}

	// mDNS escapes spaces and dots in instance names
	return strings.NewReplacer(`\ `, " ", `\.`, ".", `\\`, `\`).Replace(fqdn)
}

// pickAddress prefers IPv4 addresses, which can be handed to the engine
// without ambiguity.
func pickAddress(v4, v6 []net.IP) string {
	for _, ip := range v4 {
		if ip != nil && !ip.IsUnspecified() {
			return ip.String()
		}
	}

	for _, ip := range v6 {
		if ip != nil && !ip.IsUnspecified() {
			return ip.String()
		}
	}

	return ""
}
