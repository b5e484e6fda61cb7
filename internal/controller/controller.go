package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"strings"
	"time"

	"github.com/ariacomputecompany/quiltc/internal/controller/store"
	"github.com/ariacomputecompany/quiltc/internal/mesherr"
	"github.com/ariacomputecompany/quiltc/pkg/ipam"

	"github.com/google/uuid"
)

// Controller is the cluster's single source of truth for membership and
// subnet allocation (spec.md §4.1).
type Controller struct {
	store    store.Store
	alloc    *ipam.Allocator
	umbrella netip.Prefix

	heartbeatTimeout time.Duration
}

// New constructs a Controller and restores the allocator's counter/released
// set from persisted node rows (spec.md §4.1.1, §9 "Route reconciliation on
// Runtime restart" applies symmetrically here: no allocator state beyond
// the counter and the nodes table itself needs to survive a restart).
func New(st store.Store, umbrella netip.Prefix, heartbeatTimeout time.Duration) (*Controller, error) {
	alloc, err := ipam.NewAllocator(umbrella)
	if err != nil {
		return nil, err
	}
	c := &Controller{store: st, alloc: alloc, umbrella: umbrella, heartbeatTimeout: heartbeatTimeout}

	ctx := context.Background()
	next, err := st.AllocatorNextIndex(ctx)
	if err != nil {
		return nil, fmt.Errorf("restore allocator counter: %w", err)
	}
	rows, err := st.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list nodes for allocator restore: %w", err)
	}
	inUse := make([]int, 0, len(rows))
	for _, row := range rows {
		subnet, err := netip.ParsePrefix(row.Subnet)
		if err != nil {
			continue
		}
		idx, err := ipam.IndexForSubnet(umbrella, subnet)
		if err != nil {
			continue
		}
		inUse = append(inUse, idx)
	}
	alloc.Restore(inUse, next)
	return c, nil
}

// Register implements spec.md §4.1's Register operation, including the
// idempotent-on-host_ip re-registration and the down-host reuse policy.
//
// Policy decision (spec.md §9, Open Question): on re-registration of a
// previously-down (or heartbeat-expired) host, Quilt Mesh keeps the prior
// subnet and mints a new node_id. This is the less disruptive of the two
// documented options — peers' routes to that subnet stay valid across the
// churn — at the cost of node_id not being stable across a down/up cycle.
func (c *Controller) Register(ctx context.Context, hostname, hostIP string, cpuCores, ramMB int) (Node, error) {
	hostIP = strings.TrimSpace(hostIP)
	if addr, err := netip.ParseAddr(hostIP); err != nil || !addr.Is4() {
		return Node{}, mesherr.NewValidationError(fmt.Sprintf("host_ip %q is not a valid IPv4 address", hostIP))
	}
	hostname = strings.TrimSpace(hostname)
	if hostname == "" {
		return Node{}, mesherr.NewValidationError("hostname is required")
	}

	now := time.Now().UTC()

	existing, err := c.store.GetByHostIP(ctx, hostIP)
	switch {
	case err == nil:
		status := computedStatus(existing.Status, existing.LastHeartbeat, now, c.heartbeatTimeout)
		if status == StatusUp {
			return rowToNode(existing), nil
		}

		// Prior registration is down/expired: reuse its subnet under a new node_id.
		if delErr := c.store.Delete(ctx, existing.NodeID); delErr != nil {
			return Node{}, fmt.Errorf("replace stale registration: %w", delErr)
		}
		row := store.NodeRow{
			NodeID:        uuid.NewString(),
			Hostname:      hostname,
			HostIP:        hostIP,
			Subnet:        existing.Subnet,
			Status:        StatusUp,
			RegisteredAt:  now,
			LastHeartbeat: now,
			CPUCores:      cpuCores,
			RAMMB:         ramMB,
		}
		if insErr := c.store.Insert(ctx, row); insErr != nil {
			return Node{}, fmt.Errorf("insert re-registered node: %w", insErr)
		}
		slog.Info("node re-registered", "node_id", row.NodeID, "host_ip", hostIP, "subnet", row.Subnet)
		return rowToNode(row), nil

	case errors.Is(err, store.ErrNotFound):
		idx, subnet, allocErr := c.alloc.Allocate()
		if allocErr != nil {
			return Node{}, mesherr.ErrExhaustedSubnets
		}
		if setErr := c.store.SetAllocatorNextIndex(ctx, c.alloc.PersistedNextIndex()); setErr != nil {
			c.alloc.Release(idx)
			return Node{}, fmt.Errorf("persist allocator counter: %w", setErr)
		}
		row := store.NodeRow{
			NodeID:        uuid.NewString(),
			Hostname:      hostname,
			HostIP:        hostIP,
			Subnet:        subnet.String(),
			Status:        StatusUp,
			RegisteredAt:  now,
			LastHeartbeat: now,
			CPUCores:      cpuCores,
			RAMMB:         ramMB,
		}
		if insErr := c.store.Insert(ctx, row); insErr != nil {
			c.alloc.Release(idx)
			return Node{}, fmt.Errorf("insert new node: %w", insErr)
		}
		slog.Info("node registered", "node_id", row.NodeID, "host_ip", hostIP, "subnet", row.Subnet)
		return rowToNode(row), nil

	default:
		return Node{}, fmt.Errorf("lookup node by host_ip: %w", err)
	}
}

// Heartbeat implements spec.md §4.1's Heartbeat operation.
func (c *Controller) Heartbeat(ctx context.Context, nodeID string) error {
	row, err := c.store.GetByID(ctx, nodeID)
	if errors.Is(err, store.ErrNotFound) {
		return mesherr.ErrUnknownNode
	}
	if err != nil {
		return fmt.Errorf("lookup node: %w", err)
	}
	row.LastHeartbeat = time.Now().UTC()
	row.Status = StatusUp
	if err := c.store.Update(ctx, row); err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// ListNodes implements spec.md §4.1's ListNodes operation, recomputing
// status per invariant I4 and preserving registered_at ordering from Store.
func (c *Controller) ListNodes(ctx context.Context) ([]Node, error) {
	rows, err := c.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	now := time.Now().UTC()
	out := make([]Node, 0, len(rows))
	for _, row := range rows {
		row.Status = computedStatus(row.Status, row.LastHeartbeat, now, c.heartbeatTimeout)
		out = append(out, rowToNode(row))
	}
	return out, nil
}

// Deregister implements spec.md §4.1's optional Deregister operation: the
// row is removed and its subnet index released back to the allocator.
func (c *Controller) Deregister(ctx context.Context, nodeID string) error {
	row, err := c.store.GetByID(ctx, nodeID)
	if errors.Is(err, store.ErrNotFound) {
		return mesherr.ErrUnknownNode
	}
	if err != nil {
		return fmt.Errorf("lookup node: %w", err)
	}
	if err := c.store.Delete(ctx, nodeID); err != nil {
		return fmt.Errorf("delete node: %w", err)
	}
	if subnet, perr := netip.ParsePrefix(row.Subnet); perr == nil {
		if idx, ierr := ipam.IndexForSubnet(c.umbrella, subnet); ierr == nil {
			c.alloc.Release(idx)
		}
	}
	slog.Info("node deregistered", "node_id", nodeID, "subnet", row.Subnet)
	return nil
}

func rowToNode(row store.NodeRow) Node {
	return Node{
		NodeID:        row.NodeID,
		Hostname:      row.Hostname,
		HostIP:        row.HostIP,
		Subnet:        row.Subnet,
		Status:        row.Status,
		RegisteredAt:  row.RegisteredAt,
		LastHeartbeat: row.LastHeartbeat,
		CPUCores:      row.CPUCores,
		RAMMB:         row.RAMMB,
	}
}
