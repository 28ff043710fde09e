// Package netinfo guesses the active transport type from local network
// interfaces. It is a best-effort seed for platforms that don't push
// connection-type signals; the engine treats the result as advisory.
package netinfo

import (
	"net"
	"strings"

	"netmend/internal/model"
)

// Detect returns the transport type of the first up, non-loopback
// interface that carries a unicast address. Wifi and cellular are
// recognized by conventional interface name prefixes; anything else with
// an address counts as ethernet.
func Detect() model.ConnectionType {
	ifaces, err := net.Interfaces()
	if err != nil {
		return model.ConnUnknown
	}
	return detect(ifaces)
}

func detect(ifaces []net.Interface) model.ConnectionType {
	best := model.ConnNone
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if !hasUnicastAddr(iface) {
			continue
		}
		switch classifyName(iface.Name) {
		case model.ConnWifi:
			return model.ConnWifi
		case model.ConnCellular:
			if best != model.ConnEthernet {
				best = model.ConnCellular
			}
		default:
			best = model.ConnEthernet
		}
	}
	return best
}

func hasUnicastAddr(iface net.Interface) bool {
	addrs, err := iface.Addrs()
	if err != nil {
		return false
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP.IsLinkLocalUnicast() {
			continue
		}
		return true
	}
	return false
}

func classifyName(name string) model.ConnectionType {
	lower := strings.ToLower(name)
	switch {
	case strings.HasPrefix(lower, "wl"), // wlan0, wlp2s0
		strings.HasPrefix(lower, "wifi"),
		strings.HasPrefix(lower, "ath"):
		return model.ConnWifi
	case strings.HasPrefix(lower, "wwan"), // cellular modems
		strings.HasPrefix(lower, "rmnet"),
		strings.HasPrefix(lower, "ppp"):
		return model.ConnCellular
	default:
		return model.ConnEthernet
	}
}
