//go:build test_unit

package zeroconf

import (
	"net"
	"testing"

	aurena "github.com/devgianlu/go-aurena"
	"github.com/stretchr/testify/assert"
)

func TestNewBackend(t *testing.T) {
	_, err := NewBackend("bonjour", &BackendOptions{})
	assert.Error(t, err)

	b, err := NewBackend("mdns", &BackendOptions{})
	assert.NoError(t, err)
	b.Close()

	b, err = NewBackend("builtin", &BackendOptions{Log: &aurena.NullLogger{}})
	assert.NoError(t, err)
	b.Close()
}

func TestInstanceName(t *testing.T) {
	assert.Equal(t, "living room", instanceName(`living\ room._aurena._tcp.local.`, aurena.ServiceType))
	assert.Equal(t, "a.b", instanceName(`a\.b._aurena._tcp.local.`, "_aurena._tcp"))
	assert.Equal(t, "plain", instanceName("plain", aurena.ServiceType))
}

func TestPickAddress(t *testing.T) {
	v4 := []net.IP{net.IPv4zero, net.ParseIP("10.0.0.5")}
	v6 := []net.IP{net.ParseIP("fe80::1")}

	assert.Equal(t, "10.0.0.5", pickAddress(v4, v6))
	assert.Equal(t, "fe80::1", pickAddress(nil, v6))
	assert.Equal(t, "", pickAddress(nil, nil))
}
