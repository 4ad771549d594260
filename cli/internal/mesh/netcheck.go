package mesh

import (
	"net"
	"strings"
)

// Tunnel adapters (OpenVPN, WireGuard, PPP, WARP) and the shared address
// space used by CGNAT and overlay VPNs rarely allow direct peer traffic.
var (
	tunnelHints = []string{"tun", "tap", "wg", "ppp", "warp"}
	_, cgnat, _ = net.ParseCIDR("100.64.0.0/10")
)

// ShouldForceRelay reports whether any active interface looks like a VPN
// tunnel or a CGNAT address, in which case TURN is the only reliable path.
func ShouldForceRelay() bool {
	interfaces, err := net.Interfaces()
	if err != nil {
		return false
	}

	for _, iface := range interfaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			addrs = nil
		}
		if restrictive(iface.Name, interfaceIPs(addrs)) {
			return true
		}
	}
	return false
}

// restrictive applies the tunnel heuristics to one interface.
func restrictive(name string, ips []net.IP) bool {
	name = strings.ToLower(name)
	for _, hint := range tunnelHints {
		if strings.Contains(name, hint) {
			return true
		}
	}
	for _, ip := range ips {
		if cgnat.Contains(ip) {
			return true
		}
	}
	return false
}

func interfaceIPs(addrs []net.Addr) []net.IP {
	ips := make([]net.IP, 0, len(addrs))
	for _, addr := range addrs {
		switch v := addr.(type) {
		case *net.IPNet:
			ips = append(ips, v.IP)
		case *net.IPAddr:
			ips = append(ips, v.IP)
		}
	}
	return ips
}
