package discovery

import (
	"fmt"
	"net"
)

// LocalIP returns the IPv4 address of the interface that carries the
// default route. No packets are sent; the UDP dial only selects a
// source address.
func LocalIP() (string, error) {
	conn, err := net.Dial("udp", "192.0.2.1:9")
	if err != nil {
		return "", fmt.Errorf("determine local address: %w", err)
	}
	defer conn.Close()

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return "", fmt.Errorf("unexpected local address type %T", conn.LocalAddr())
	}
	return addr.IP.String(), nil
}
