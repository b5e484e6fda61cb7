// Package netdefaults centralizes the default ports, paths, and intervals
// named throughout spec.md so the three binaries agree on them without
// importing each other.
package netdefaults

import "time"

const (
	// ControllerListenAddr is the Controller's default HTTP listen address.
	ControllerListenAddr = "127.0.0.1:7946"
	// ControllerDBPath is the default SQLite file for Controller state.
	ControllerDBPath = "/var/lib/quiltc/controller.db"

	// RuntimeRPCAddr is the Runtime's default net/rpc listen address (spec.md §6).
	RuntimeRPCAddr = "127.0.0.1:50051"

	// UmbrellaCIDR is the single /16 all per-node /24s are drawn from (spec.md GLOSSARY).
	UmbrellaCIDR = "10.42.0.0/16"
	// SubnetPrefixLen is the fixed prefix length of every allocated node subnet.
	SubnetPrefixLen = 24

	// VXLANInterface is the name of the per-host VXLAN tunnel device.
	VXLANInterface = "vxlan100"
	// VXLANVNI is the VXLAN Network Identifier (spec.md GLOSSARY).
	VXLANVNI = 100
	// VXLANPort is the VXLAN UDP destination port.
	VXLANPort = 4789

	// HeartbeatTimeout is the duration after which a node without a fresh
	// heartbeat is considered down (spec.md §4.1.2).
	HeartbeatTimeout = 30 * time.Second
	// ReaperInterval is the cadence of the Controller's heartbeat reaper.
	ReaperInterval = 10 * time.Second
	// HeartbeatInterval is the cadence of the Agent's heartbeat task.
	HeartbeatInterval = 10 * time.Second
	// PeerSyncInterval is the cadence of the Agent's reconciliation loop.
	PeerSyncInterval = 5 * time.Second

	// RPCTimeout bounds every outbound Agent RPC (Controller HTTP, Runtime RPC).
	RPCTimeout = 5 * time.Second
)
