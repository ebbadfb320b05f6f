package domain

// DiscoveredHost is one peer agent visible on the LAN.
//
// Hosts are inserted keyed by IP (a resolved service carries addresses)
// and removed keyed by Hostname (a removal event only carries the
// service name). The asymmetry mirrors the two mDNS event shapes.
type DiscoveredHost struct {
	IP       string `json:"ip"`
	Port     int    `json:"port"`
	Hostname string `json:"hostname"`
}
