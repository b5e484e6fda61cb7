package ipam

import (
	"net/netip"
	"testing"
)

func FuzzAllocate(f *testing.F) {
	f.Add("10.42.0.0/16", 10)
	f.Add("10.0.0.0/8", 254)
	f.Add("192.168.0.0/16", 1)

	f.Fuzz(func(t *testing.T, umbrellaStr string, n int) {
		umbrella, err := netip.ParsePrefix(umbrellaStr)
		if err != nil {
			return
		}
		if !umbrella.Addr().Is4() || umbrella.Bits() > SubnetBits {
			return
		}
		if n < 0 || n > MaxIndex {
			return
		}

		a, err := NewAllocator(umbrella)
		if err != nil {
			return
		}

		seen := make(map[string]struct{})
		for i := 0; i < n; i++ {
			_, subnet, err := a.Allocate()
			if err != nil {
				break
			}
			if !umbrella.Contains(subnet.Addr()) {
				t.Fatalf("subnet %v not within umbrella %v", subnet, umbrella)
			}
			if subnet.Bits() != SubnetBits {
				t.Fatalf("subnet prefix length %d, want %d", subnet.Bits(), SubnetBits)
			}
			if _, dup := seen[subnet.String()]; dup {
				t.Fatalf("duplicate subnet %v allocated", subnet)
			}
			seen[subnet.String()] = struct{}{}
		}
	})
}
