//go:build !linux

package netlinkops

import "log/slog"

// Stub simulates kernel route state in memory for non-Linux development
// builds. It never claims to exercise real rtnetlink semantics; every call
// is logged so it is obvious in output which platform produced it.
type Stub struct {
	links  map[string]int
	routes map[string]int
}

func New() *Stub {
	return &Stub{links: map[string]int{}, routes: map[string]int{}}
}

func (s *Stub) LinkIndex(iface string) (int, error) {
	slog.Warn("netlinkops: non-linux stub, simulating link lookup", "iface", iface)
	if idx, ok := s.links[iface]; ok {
		return idx, nil
	}
	idx := len(s.links) + 1
	s.links[iface] = idx
	return idx, nil
}

func (s *Stub) RouteAdd(destCIDR string, ifaceIndex int) error {
	slog.Warn("netlinkops: non-linux stub, simulating route add", "dest", destCIDR, "iface_index", ifaceIndex)
	if existing, ok := s.routes[destCIDR]; ok && existing == ifaceIndex {
		return ErrRouteExists
	}
	s.routes[destCIDR] = ifaceIndex
	return nil
}

func (s *Stub) RouteDel(destCIDR string) error {
	slog.Warn("netlinkops: non-linux stub, simulating route del", "dest", destCIDR)
	if _, ok := s.routes[destCIDR]; !ok {
		return ErrNoSuchRoute
	}
	delete(s.routes, destCIDR)
	return nil
}
