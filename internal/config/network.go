package config

import (
	"net"
	"strings"
)

// cgnat is the shared address space used by carrier-grade NAT and overlay
// VPNs such as Tailscale and Cloudflare WARP.
var cgnat = mustCIDR("100.64.0.0/10")

// tunnelPrefixes are interface name fragments of VPN and virtual adapters.
var tunnelPrefixes = []string{"tun", "tap", "wg", "ppp", "warp", "utun"}

// Iface is the part of a network interface the heuristic looks at.
type Iface struct {
	Name  string
	Up    bool
	Loop  bool
	Addrs []net.IP
}

// RestrictedNetwork reports whether this host looks like it sits behind a
// VPN or CGNAT, where direct candidates rarely connect.
func RestrictedNetwork() bool {
	ifaces, err := systemIfaces()
	if err != nil {
		return false
	}
	return restricted(ifaces)
}

func restricted(ifaces []Iface) bool {
	for _, iface := range ifaces {
		if !iface.Up || iface.Loop {
			continue
		}
		name := strings.ToLower(iface.Name)
		for _, p := range tunnelPrefixes {
			if strings.Contains(name, p) {
				return true
			}
		}
		for _, ip := range iface.Addrs {
			if cgnat.Contains(ip) {
				return true
			}
		}
	}
	return false
}

func systemIfaces() ([]Iface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	out := make([]Iface, 0, len(ifaces))
	for _, i := range ifaces {
		entry := Iface{
			Name: i.Name,
			Up:   i.Flags&net.FlagUp != 0,
			Loop: i.Flags&net.FlagLoopback != 0,
		}
		addrs, err := i.Addrs()
		if err == nil {
			for _, a := range addrs {
				switch v := a.(type) {
				case *net.IPNet:
					entry.Addrs = append(entry.Addrs, v.IP)
				case *net.IPAddr:
					entry.Addrs = append(entry.Addrs, v.IP)
				}
			}
		}
		out = append(out, entry)
	}
	return out, nil
}

func mustCIDR(s string) *net.IPNet {
	_, n, err := net.ParseCIDR(s)
	if err != nil {
		panic(err)
	}
	return n
}
