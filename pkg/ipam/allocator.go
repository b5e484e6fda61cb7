package ipam

import (
	"fmt"
	"net/netip"
	"sort"
	"sync"
)

// MinIndex and MaxIndex bound the allocatable /24 index range within the
// umbrella /16. Index 0 and 255 are reserved (spec.md §3).
const (
	MinIndex = 1
	MaxIndex = 254
)

// Allocator hands out /24 indices under a single umbrella CIDR following the
// policy in spec.md §4.1.1: prefer the lowest released index before
// incrementing a monotonic counter. Allocate and Release are each atomic;
// the caller is responsible for persisting the resulting counter/released
// state before relying on it surviving a restart.
type Allocator struct {
	umbrella netip.Prefix

	mu        sync.Mutex
	nextIndex int
	released  map[int]struct{}
}

// NewAllocator creates an allocator over the given umbrella CIDR with no
// indices yet handed out.
func NewAllocator(umbrella netip.Prefix) (*Allocator, error) {
	umbrella = umbrella.Masked()
	if !umbrella.IsValid() || !umbrella.Addr().Is4() {
		return nil, fmt.Errorf("umbrella cidr is required and must be ipv4")
	}
	if umbrella.Bits() > SubnetBits {
		return nil, fmt.Errorf("umbrella /%d cannot be narrower than subnet /%d", umbrella.Bits(), SubnetBits)
	}
	return &Allocator{
		umbrella:  umbrella,
		nextIndex: MinIndex,
		released:  make(map[int]struct{}),
	}, nil
}

// Restore seeds the allocator's counter and released set from persisted
// state (e.g. on Controller restart, reconstructed from the nodes table).
// inUse is the set of indices currently held by live or down node rows.
func (a *Allocator) Restore(inUse []int, nextIndex int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	used := make(map[int]struct{}, len(inUse))
	for _, idx := range inUse {
		used[idx] = struct{}{}
	}
	a.released = make(map[int]struct{})
	for idx := MinIndex; idx < nextIndex; idx++ {
		if _, ok := used[idx]; !ok {
			a.released[idx] = struct{}{}
		}
	}
	if nextIndex < MinIndex {
		nextIndex = MinIndex
	}
	a.nextIndex = nextIndex
}

// Allocate returns the next index per policy: the lowest released index if
// any exists, otherwise the monotonic counter (advanced by one). Returns
// mesherr-compatible ErrExhaustedSubnets-shaped error when the space is
// full; callers compare with errors.Is against ipam.ErrExhausted.
func (a *Allocator) Allocate() (int, netip.Prefix, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	idx, ok := a.lowestReleasedLocked()
	if ok {
		delete(a.released, idx)
		return idx, a.subnetFor(idx), nil
	}

	if a.nextIndex > MaxIndex {
		return 0, netip.Prefix{}, ErrExhausted
	}
	idx = a.nextIndex
	a.nextIndex++
	return idx, a.subnetFor(idx), nil
}

// Release returns an index to the pool for future reuse.
func (a *Allocator) Release(idx int) {
	if idx < MinIndex || idx > MaxIndex {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if idx < a.nextIndex {
		a.released[idx] = struct{}{}
	}
}

// PersistedNextIndex returns the current counter value for callers that
// need to write it through to durable storage after an Allocate/Restore.
func (a *Allocator) PersistedNextIndex() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.nextIndex
}

func (a *Allocator) lowestReleasedLocked() (int, bool) {
	if len(a.released) == 0 {
		return 0, false
	}
	indices := make([]int, 0, len(a.released))
	for idx := range a.released {
		indices = append(indices, idx)
	}
	sort.Ints(indices)
	return indices[0], true
}

func (a *Allocator) subnetFor(idx int) netip.Prefix {
	return SubnetForIndex(a.umbrella, idx)
}

// SubnetForIndex computes the /24 subnet for an index under an umbrella /16,
// e.g. index 1 under 10.42.0.0/16 yields 10.42.1.0/24.
func SubnetForIndex(umbrella netip.Prefix, idx int) netip.Prefix {
	umbrella = umbrella.Masked()
	step := uint32(1) << (32 - SubnetBits)
	base, _, _ := PrefixRange4(umbrella)
	addr := Uint32ToAddr(base + uint32(idx)*step)
	return netip.PrefixFrom(addr, SubnetBits)
}

// IndexForSubnet recovers the /24 index of a subnet under an umbrella /16,
// for reconstructing allocator state from persisted node rows.
func IndexForSubnet(umbrella, subnet netip.Prefix) (int, error) {
	umbrella = umbrella.Masked()
	subnet = subnet.Masked()
	if !umbrella.Contains(subnet.Addr()) {
		return 0, fmt.Errorf("subnet %s outside umbrella %s", subnet, umbrella)
	}
	base, _, err := PrefixRange4(umbrella)
	if err != nil {
		return 0, err
	}
	sStart, _, err := PrefixRange4(subnet)
	if err != nil {
		return 0, err
	}
	step := uint32(1) << (32 - SubnetBits)
	return int((sStart - base) / step), nil
}
