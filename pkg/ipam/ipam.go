// Package ipam provides the CIDR arithmetic behind the Controller's subnet
// allocator (pkg/ipam/allocator.go).
package ipam

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"net/netip"
)

// SubnetBits is the fixed prefix length of every node subnet (spec.md §3).
const SubnetBits = 24

// ErrExhausted is returned by Allocator.Allocate when all 254 indices are in use.
var ErrExhausted = errors.New("exhausted subnets")

func PrefixRange4(p netip.Prefix) (uint32, uint32, error) {
	p = p.Masked()
	if !p.Addr().Is4() {
		return 0, 0, fmt.Errorf("prefix %s is not ipv4", p)
	}
	b := p.Addr().As4()
	start := binary.BigEndian.Uint32(b[:])
	hostBits := 32 - p.Bits()
	if hostBits <= 0 {
		return start, start, nil
	}
	if hostBits >= 32 {
		return 0, math.MaxUint32, nil
	}
	size := uint32(1) << hostBits
	return start, start + size - 1, nil
}

func Uint32ToAddr(v uint32) netip.Addr {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return netip.AddrFrom4(b)
}
