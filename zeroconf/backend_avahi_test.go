//go:build test_unit

package zeroconf

import (
	"testing"

	aurena "github.com/devgianlu/go-aurena"
	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
)

func avahiSignal(name string, iface, proto int32, service string) *dbus.Signal {
	return &dbus.Signal{
		Name: avahiBrowserIface + "." + name,
		Body: []any{iface, proto, service, "_aurena._tcp", "local", uint32(0)},
	}
}

func TestAvahiHandleSignalPerInterface(t *testing.T) {
	b := &avahiBackend{log: &aurena.NullLogger{}, items: map[string][]avahiItem{}}

	var found, lost []aurena.ServiceAnnouncement
	onFound := func(ann aurena.ServiceAnnouncement) { found = append(found, ann) }
	onLost := func(ann aurena.ServiceAnnouncement) { lost = append(lost, ann) }

	// same service over IPv4 and IPv6, plus a duplicate
	b.handleSignal(avahiSignal("ItemNew", 2, 0, "srv"), onFound, onLost)
	b.handleSignal(avahiSignal("ItemNew", 2, 1, "srv"), onFound, onLost)
	b.handleSignal(avahiSignal("ItemNew", 2, 1, "srv"), onFound, onLost)
	assert.Equal(t, []aurena.ServiceAnnouncement{{Name: "srv", Type: aurena.ServiceType}}, found)
	assert.Len(t, b.items["srv"], 2)

	// still reachable over IPv4
	b.handleSignal(avahiSignal("ItemRemove", 2, 1, "srv"), onFound, onLost)
	assert.Empty(t, lost)

	// unknown entries are ignored
	b.handleSignal(avahiSignal("ItemRemove", 3, 0, "srv"), onFound, onLost)
	b.handleSignal(avahiSignal("ItemRemove", 2, 0, "other"), onFound, onLost)
	assert.Empty(t, lost)

	b.handleSignal(avahiSignal("ItemRemove", 2, 0, "srv"), onFound, onLost)
	assert.Equal(t, []aurena.ServiceAnnouncement{{Name: "srv", Type: aurena.ServiceType}}, lost)
	assert.NotContains(t, b.items, "srv")

	// seen again after going away
	b.handleSignal(avahiSignal("ItemNew", 2, 1, "srv"), onFound, onLost)
	assert.Len(t, found, 2)
}

func TestAvahiHandleSignalInvalidBody(t *testing.T) {
	b := &avahiBackend{log: &aurena.NullLogger{}, items: map[string][]avahiItem{}}

	called := false
	cb := func(aurena.ServiceAnnouncement) { called = true }

	b.handleSignal(&dbus.Signal{Name: avahiBrowserIface + ".ItemNew", Body: []any{"bad"}}, cb, cb)
	b.handleSignal(&dbus.Signal{Name: avahiBrowserIface + ".ItemRemove", Body: []any{int32(1)}}, cb, cb)
	assert.False(t, called)
}
