package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shelfsyncapp/shelfsync-agent/internal/domain"
)

func host(ip string, port int, name string) domain.DiscoveredHost {
	return domain.DiscoveredHost{IP: ip, Port: port, Hostname: name}
}

func TestRegistry_Add(t *testing.T) {
	t.Run("records new hosts", func(t *testing.T) {
		r := NewRegistry()

		assert.True(t, r.Add(host("192.168.1.10", 8080, "den")))
		assert.True(t, r.Add(host("192.168.1.11", 8080, "study")))
		assert.Equal(t, 2, r.Len())
	})

	t.Run("re-announcement of an identical host is a no-op", func(t *testing.T) {
		r := NewRegistry()

		assert.True(t, r.Add(host("192.168.1.10", 8080, "den")))
		assert.False(t, r.Add(host("192.168.1.10", 8080, "den")))
		assert.Equal(t, 1, r.Len())
	})

	t.Run("occupied address leaves the existing entry", func(t *testing.T) {
		r := NewRegistry()

		r.Add(host("192.168.1.10", 8080, "den"))
		assert.False(t, r.Add(host("192.168.1.10", 9090, "den-new")))

		hosts := r.Hosts()
		assert.Len(t, hosts, 1)
		assert.Equal(t, 8080, hosts[0].Port)
		assert.Equal(t, "den", hosts[0].Hostname)
	})

	t.Run("withdraw then re-announce picks up the new record", func(t *testing.T) {
		r := NewRegistry()

		r.Add(host("192.168.1.10", 8080, "den"))
		assert.True(t, r.RemoveByName("den"))
		assert.True(t, r.Add(host("192.168.1.10", 9090, "den")))
		assert.Equal(t, 9090, r.Hosts()[0].Port)
	})
}

func TestRegistry_RemoveByName(t *testing.T) {
	t.Run("removes every entry under the name", func(t *testing.T) {
		r := NewRegistry()

		// The same instance can resolve on two interfaces.
		r.Add(host("192.168.1.10", 8080, "den"))
		r.Add(host("10.0.0.5", 8080, "den"))
		r.Add(host("192.168.1.11", 8080, "study"))

		assert.True(t, r.RemoveByName("den"))
		assert.Equal(t, 1, r.Len())
		assert.Equal(t, "study", r.Hosts()[0].Hostname)
	})

	t.Run("unknown name is a no-op", func(t *testing.T) {
		r := NewRegistry()
		r.Add(host("192.168.1.10", 8080, "den"))

		assert.False(t, r.RemoveByName("attic"))
		assert.Equal(t, 1, r.Len())
	})
}

func TestRegistry_Hosts(t *testing.T) {
	r := NewRegistry()
	r.Add(host("192.168.1.20", 8080, "b"))
	r.Add(host("192.168.1.10", 8080, "a"))

	hosts := r.Hosts()
	assert.Equal(t, "192.168.1.10", hosts[0].IP)
	assert.Equal(t, "192.168.1.20", hosts[1].IP)
}
