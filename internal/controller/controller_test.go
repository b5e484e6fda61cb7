package controller

import (
	"context"
	"errors"
	"net/netip"
	"testing"
	"time"

	"github.com/ariacomputecompany/quiltc/internal/controller/store/memstore"
	"github.com/ariacomputecompany/quiltc/internal/mesherr"
)

func newTestController(t *testing.T) *Controller {
	t.Helper()
	umbrella := netip.MustParsePrefix("10.42.0.0/16")
	c, err := New(memstore.New(), umbrella, 30*time.Second)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestRegisterAssignsDistinctSubnets(t *testing.T) {
	c := newTestController(t)
	ctx := context.Background()

	a, err := c.Register(ctx, "host-a", "10.0.0.1", 4, 8192)
	if err != nil {
		t.Fatalf("register a: %v", err)
	}
	b, err := c.Register(ctx, "host-b", "10.0.0.2", 4, 8192)
	if err != nil {
		t.Fatalf("register b: %v", err)
	}
	if a.Subnet == b.Subnet {
		t.Fatalf("expected distinct subnets, got %s for both", a.Subnet)
	}
	if a.Subnet != "10.42.1.0/24" {
		t.Fatalf("expected first allocation to be 10.42.1.0/24, got %s", a.Subnet)
	}
}

func TestRegisterIdempotentOnFreshHostIP(t *testing.T) {
	c := newTestController(t)
	ctx := context.Background()

	first, err := c.Register(ctx, "host-a", "10.0.0.1", 4, 8192)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	second, err := c.Register(ctx, "host-a-renamed", "10.0.0.1", 8, 16384)
	if err != nil {
		t.Fatalf("re-register: %v", err)
	}
	if first.NodeID != second.NodeID || first.Subnet != second.Subnet {
		t.Fatalf("expected idempotent re-register of a fresh host, got %+v vs %+v", first, second)
	}
}

func TestRegisterRejectsInvalidHostIP(t *testing.T) {
	c := newTestController(t)
	_, err := c.Register(context.Background(), "host-a", "not-an-ip", 1, 1)
	if !mesherr.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestHeartbeatUnknownNode(t *testing.T) {
	c := newTestController(t)
	err := c.Heartbeat(context.Background(), "does-not-exist")
	if !errors.Is(err, mesherr.ErrUnknownNode) {
		t.Fatalf("expected ErrUnknownNode, got %v", err)
	}
}

func TestDeregisterReleasesSubnetForReuse(t *testing.T) {
	c := newTestController(t)
	ctx := context.Background()

	node, err := c.Register(ctx, "host-a", "10.0.0.1", 1, 1)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := c.Deregister(ctx, node.NodeID); err != nil {
		t.Fatalf("deregister: %v", err)
	}

	again, err := c.Register(ctx, "host-b", "10.0.0.2", 1, 1)
	if err != nil {
		t.Fatalf("register after deregister: %v", err)
	}
	if again.Subnet != node.Subnet {
		t.Fatalf("expected released subnet %s to be reused, got %s", node.Subnet, again.Subnet)
	}
}

func TestListNodesReportsDownAfterHeartbeatTimeout(t *testing.T) {
	umbrella := netip.MustParsePrefix("10.42.0.0/16")
	c, err := New(memstore.New(), umbrella, time.Millisecond)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	if _, err := c.Register(ctx, "host-a", "10.0.0.1", 1, 1); err != nil {
		t.Fatalf("register: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	nodes, err := c.ListNodes(ctx)
	if err != nil {
		t.Fatalf("list nodes: %v", err)
	}
	if len(nodes) != 1 || nodes[0].Status != StatusDown {
		t.Fatalf("expected single down node, got %+v", nodes)
	}
}

func TestNewRejectsUmbrellaNarrowerThanSubnet(t *testing.T) {
	umbrella := netip.MustParsePrefix("10.42.0.0/31")
	if _, err := New(memstore.New(), umbrella, time.Second); err == nil {
		t.Fatalf("expected constructing an allocator over a too-narrow umbrella to fail")
	}
}
