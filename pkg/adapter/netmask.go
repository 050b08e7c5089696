package adapter

import "net"

// ipv4Mask derives the netmask for a prefix length: the prefix's leading
// bits set, left-justified, in network byte order. A zero prefix yields
// the empty mask; the platform layers skip netmask assignment for it.
func ipv4Mask(prefix int) net.IPMask {
	v := uint32(0xFFFFFFFF) >> (32 - prefix) << (32 - prefix)
	return net.IPMask{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}
