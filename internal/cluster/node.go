// Package cluster implements node membership: the discovery/gossip
// handshake, the membership set, and heartbeat-driven liveness
// classification (§4.10, §4.11).
package cluster

import (
	"time"

	"github.com/lattice-run/lattice/internal/logutil"
	"github.com/lattice-run/lattice/internal/wire"
)

// log is the package-level subsystem logger; see internal/logutil and the
// convention established by internal/baselib/actor/log.go.
var log = logutil.Disabled

// UseLogger sets the subsystem logger used by the cluster package.
func UseLogger(logger logutil.Logger) {
	log = logger
}

// Status classifies a peer's liveness (§4.11).
type Status int

const (
	// StatusHealthy means the last pong arrived within ping_timeout.
	StatusHealthy Status = iota
	// StatusUnhealthy means no pong has arrived for
	// unhealthy_node_heartbeat_timeout; shard allocations to this node
	// are suspended and its shards become migration candidates.
	StatusUnhealthy
	// StatusTerminated means no pong has arrived for
	// terminated_node_heartbeat_timeout. The node is not removed from the
	// registry: its entry keeps this status and Get, Nodes and the
	// gossiped peer list still include it.
	StatusTerminated
)

func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "Healthy"
	case StatusUnhealthy:
		return "Unhealthy"
	case StatusTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// Node is a membership-set entry: the wire-level record plus local
// liveness bookkeeping.
type Node struct {
	Record   wire.RemoteNode
	Status   Status
	LastPong time.Time
}
