// Package privacy reduces personal data before it reaches logs and alert payloads.
package privacy

import (
	"net/netip"
)

// AnonymizeIP masks the host part of an address: the last octet for IPv4
// and the last 80 bits for IPv6. Unparseable input yields "".
func AnonymizeIP(raw string) string {
	addr, err := netip.ParseAddr(raw)
	if err != nil {
		return ""
	}
	addr = addr.Unmap()
	bits := 48
	if addr.Is4() {
		bits = 24
	}
	prefix, err := addr.Prefix(bits)
	if err != nil {
		return ""
	}
	return prefix.Addr().String()
}
