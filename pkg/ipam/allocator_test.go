package ipam

import (
	"net/netip"
	"testing"
)

func mustUmbrella(t *testing.T) netip.Prefix {
	t.Helper()
	p, err := netip.ParsePrefix("10.42.0.0/16")
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestAllocateLowestFirst(t *testing.T) {
	a, err := NewAllocator(mustUmbrella(t))
	if err != nil {
		t.Fatal(err)
	}

	idx1, subnet1, err := a.Allocate()
	if err != nil {
		t.Fatal(err)
	}
	if idx1 != 1 || subnet1.String() != "10.42.1.0/24" {
		t.Fatalf("first allocation = (%d, %s), want (1, 10.42.1.0/24)", idx1, subnet1)
	}

	idx2, subnet2, err := a.Allocate()
	if err != nil {
		t.Fatal(err)
	}
	if idx2 != 2 || subnet2.String() != "10.42.2.0/24" {
		t.Fatalf("second allocation = (%d, %s), want (2, 10.42.2.0/24)", idx2, subnet2)
	}
}

func TestReleaseReusedBeforeCounter(t *testing.T) {
	a, err := NewAllocator(mustUmbrella(t))
	if err != nil {
		t.Fatal(err)
	}

	_, _, _ = a.Allocate()
	idx2, _, _ := a.Allocate()
	_, _, _ = a.Allocate()

	a.Release(idx2)

	next, subnet, err := a.Allocate()
	if err != nil {
		t.Fatal(err)
	}
	if next != idx2 {
		t.Fatalf("expected released index %d to be reused, got %d", idx2, next)
	}
	if subnet.String() != "10.42.2.0/24" {
		t.Fatalf("unexpected subnet %s", subnet)
	}

	// idx1 and idx3 remain untouched, counter continues past them.
	next2, _, err := a.Allocate()
	if err != nil {
		t.Fatal(err)
	}
	if next2 != 4 {
		t.Fatalf("expected counter to resume at 4, got %d", next2)
	}
}

func TestExhaustion(t *testing.T) {
	a, err := NewAllocator(mustUmbrella(t))
	if err != nil {
		t.Fatal(err)
	}
	for i := MinIndex; i <= MaxIndex; i++ {
		if _, _, err := a.Allocate(); err != nil {
			t.Fatalf("unexpected exhaustion at %d: %v", i, err)
		}
	}
	if _, _, err := a.Allocate(); err != ErrExhausted {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
}

func TestSubnetForIndexRoundTrip(t *testing.T) {
	umbrella := mustUmbrella(t)
	for _, idx := range []int{1, 2, 100, 254} {
		subnet := SubnetForIndex(umbrella, idx)
		got, err := IndexForSubnet(umbrella, subnet)
		if err != nil {
			t.Fatal(err)
		}
		if got != idx {
			t.Fatalf("round trip index %d -> %s -> %d", idx, subnet, got)
		}
	}
}
