// Package network picks the address a relay should advertise on the LAN.
package network

import (
	"fmt"
	"net"
)

// DiscoverLANIP returns the first private IPv4 address on an up,
// non-loopback interface. If interfaceName is non-empty only that
// interface is considered; an unknown name is an error rather than a
// silent fallback.
func DiscoverLANIP(interfaceName string) (net.IP, error) {
	ifs, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	matched := false
	for _, iface := range ifs {
		if interfaceName != "" && iface.Name != interfaceName {
			continue
		}
		matched = true

		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			ip4 := ipnet.IP.To4()
			if ip4 == nil {
				continue
			}
			if isPrivateIPv4(ip4) {
				return ip4, nil
			}
		}
	}

	if interfaceName != "" && !matched {
		return nil, fmt.Errorf("interface %q not found", interfaceName)
	}
	return nil, fmt.Errorf("no private IPv4 address found")
}

// isPrivateIPv4 reports RFC 1918 addresses. Loopback and link-local are
// deliberately excluded; advertising either would send peers nowhere.
func isPrivateIPv4(ip net.IP) bool {
	switch {
	case ip[0] == 10:
		return true
	case ip[0] == 172 && ip[1] >= 16 && ip[1] <= 31:
		return true
	case ip[0] == 192 && ip[1] == 168:
		return true
	}
	return false
}
