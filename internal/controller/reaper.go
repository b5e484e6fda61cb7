package controller

import (
	"context"
	"log/slog"
	"time"
)

// RunReaper implements spec.md §4.1.2: every reaperInterval, any node with
// status=up whose heartbeat has aged past heartbeatTimeout is flipped to
// down. Subnets are never released here — only an explicit Deregister does
// that — to avoid a route-collision window while peers still hold routes
// to the down node's subnet.
//
// Grounded on the teacher's periodic-ticker pattern (e.g. the WAL
// checkpoint ticker in the sibling example's dplaned main.go): a ticker
// loop holding only a store handle, cancelled by context.
func (c *Controller) RunReaper(ctx context.Context, reaperInterval time.Duration) {
	log := slog.With("component", "controller-reaper")
	ticker := time.NewTicker(reaperInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.reapOnce(ctx, log)
		}
	}
}

func (c *Controller) reapOnce(ctx context.Context, log *slog.Logger) {
	rows, err := c.store.List(ctx)
	if err != nil {
		log.Error("list nodes failed", "err", err)
		return
	}
	now := time.Now().UTC()
	for _, row := range rows {
		if row.Status != StatusUp {
			continue
		}
		if now.Sub(row.LastHeartbeat) <= c.heartbeatTimeout {
			continue
		}
		row.Status = StatusDown
		if err := c.store.Update(ctx, row); err != nil {
			log.Error("mark node down failed", "node_id", row.NodeID, "err", err)
			continue
		}
		log.Info("node marked down", "node_id", row.NodeID, "host_ip", row.HostIP)
	}
}
