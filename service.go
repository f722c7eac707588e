package go_aurena

import (
	"fmt"
	"strconv"
	"strings"
)

const ServiceType = "_aurena._tcp."

// DefaultServerPort is used when an address does not carry a port.
const DefaultServerPort = 5457

// NormalizeServiceType returns the service type in its trailing-dot form,
// which is the form announcements are compared in.
func NormalizeServiceType(serviceType string) string {
	if len(serviceType) == 0 || strings.HasSuffix(serviceType, ".") {
		return serviceType
	}

	return serviceType + "."
}

// BareServiceType strips the trailing dot, as expected by mDNS libraries.
func BareServiceType(serviceType string) string {
	return strings.TrimSuffix(serviceType, ".")
}

type ServiceAnnouncement struct {
	Name string
	Type string
	Host string
	Port int
}

func (a ServiceAnnouncement) String() string {
	if len(a.Host) == 0 {
		return fmt.Sprintf("%s (%s)", a.Name, a.Type)
	}

	return fmt.Sprintf("%s (%s) at %s:%d", a.Name, a.Type, a.Host, a.Port)
}

// Resolved reports whether the announcement carries an address.
func (a ServiceAnnouncement) Resolved() bool {
	return len(a.Host) > 0 && a.Port > 0
}

// Same reports whether both announcements refer to the same service instance.
func (a ServiceAnnouncement) Same(other ServiceAnnouncement) bool {
	return a.Name == other.Name && NormalizeServiceType(a.Type) == NormalizeServiceType(other.Type)
}

type PlaybackEndpoint struct {
	Host string
	Port int
}

func EndpointFromAnnouncement(ann ServiceAnnouncement) PlaybackEndpoint {
	return PlaybackEndpoint{Host: ann.Host, Port: ann.Port}
}

// ParseEndpoint splits an address in the "<host>:<port>" form at its last
// colon. A missing port yields DefaultServerPort.
func ParseEndpoint(address string) (PlaybackEndpoint, error) {
	address = strings.TrimSpace(address)
	if len(address) == 0 {
		return PlaybackEndpoint{}, fmt.Errorf("empty address")
	}

	sep := strings.LastIndex(address, ":")
	if sep < 0 {
		return PlaybackEndpoint{Host: address, Port: DefaultServerPort}, nil
	}

	port, err := strconv.Atoi(address[sep+1:])
	if err != nil || port <= 0 || port > 65535 {
		return PlaybackEndpoint{}, fmt.Errorf("invalid port in address %s", address)
	}

	host := strings.TrimSuffix(strings.TrimPrefix(address[:sep], "["), "]")
	if len(host) == 0 {
		return PlaybackEndpoint{}, fmt.Errorf("missing host in address %s", address)
	}

	return PlaybackEndpoint{Host: host, Port: port}, nil
}

// String returns the address handed to the engine. It is the plain
// concatenation of host and port, no bracketing is applied.
func (e PlaybackEndpoint) String() string {
	return fmt.Sprintf("%s:%d", e.Host, e.Port)
}
