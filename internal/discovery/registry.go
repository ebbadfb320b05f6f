package discovery

import (
	"sort"
	"sync"

	"github.com/shelfsyncapp/shelfsync-agent/internal/domain"
)

// Registry is the set of hosts currently visible on the LAN.
//
// Entries are keyed by IP address on insert but removed by service
// name, mirroring the announce/withdraw events mDNS actually delivers:
// a withdrawal carries only the instance name, never the address.
type Registry struct {
	mu    sync.RWMutex
	hosts map[string]domain.DiscoveredHost
}

// NewRegistry creates an empty host registry.
func NewRegistry() *Registry {
	return &Registry{
		hosts: make(map[string]domain.DiscoveredHost),
	}
}

// Add records a resolved host. An entry already holding the address
// stays as it is; entries are only replaced by a withdrawal followed by
// a fresh announcement. Returns true if the registry changed.
func (r *Registry) Add(host domain.DiscoveredHost) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.hosts[host.IP]; ok {
		return false
	}
	r.hosts[host.IP] = host
	return true
}

// RemoveByName drops every entry announced under the given instance
// name. Returns true if the registry changed.
func (r *Registry) RemoveByName(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	changed := false
	for ip, host := range r.hosts {
		if host.Hostname == name {
			delete(r.hosts, ip)
			changed = true
		}
	}
	return changed
}

// Hosts returns the visible hosts sorted by IP for stable output.
func (r *Registry) Hosts() []domain.DiscoveredHost {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.DiscoveredHost, 0, len(r.hosts))
	for _, host := range r.hosts {
		out = append(out, host)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IP < out[j].IP })
	return out
}

// Len returns the number of visible hosts.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.hosts)
}
