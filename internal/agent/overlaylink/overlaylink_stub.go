//go:build !linux

package overlaylink

import (
	"log/slog"
	"net/netip"
)

// StubLink simulates the overlay device for non-Linux development builds.
// It never claims real VXLAN/FDB semantics; every call is logged.
type StubLink struct{}

func New() StubLink { return StubLink{} }

func (StubLink) EnsureDevice(cfg Config) error {
	slog.Warn("overlaylink: non-linux stub, simulating device bring-up",
		"iface", cfg.Iface, "vni", cfg.VNI, "port", cfg.Port)
	return nil
}

func (StubLink) SyncPeers(iface string, peerVTEPs []netip.Addr) error {
	slog.Warn("overlaylink: non-linux stub, simulating fdb sync", "iface", iface, "peers", len(peerVTEPs))
	return nil
}
