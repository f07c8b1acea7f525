package cluster

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/lattice-run/lattice/internal/remoting"
	"github.com/lattice-run/lattice/internal/wire"
)

// Default heartbeat thresholds (§4.11).
const (
	// DefaultPingInterval is how often a Ping is sent to each known peer.
	DefaultPingInterval = 2 * time.Second

	// DefaultUnhealthyTimeout is the elapsed-since-last-pong threshold past
	// which a peer is reclassified Unhealthy.
	DefaultUnhealthyTimeout = 6 * time.Second

	// DefaultTerminatedTimeout is the elapsed-since-last-pong threshold past
	// which a peer is reclassified Terminated. The peer's entry stays in the
	// registry with that status.
	DefaultTerminatedTimeout = 20 * time.Second
)

// HeartbeatConfig holds the liveness thresholds for a HeartbeatManager.
type HeartbeatConfig struct {
	PingInterval      time.Duration
	UnhealthyTimeout  time.Duration
	TerminatedTimeout time.Duration
}

// DefaultHeartbeatConfig returns the package defaults.
func DefaultHeartbeatConfig() HeartbeatConfig {
	return HeartbeatConfig{
		PingInterval:      DefaultPingInterval,
		UnhealthyTimeout:  DefaultUnhealthyTimeout,
		TerminatedTimeout: DefaultTerminatedTimeout,
	}
}

// OnTerminate is invoked when a peer crosses the terminated threshold, so a
// caller (typically the sharding coordinator) can reallocate that node's
// shards.
type OnTerminate func(nodeID uint64)

// HeartbeatManager periodically pings every known peer and reclassifies
// liveness from elapsed time since its last pong (§4.11). It is the
// membership-side complement to the per-connection Ping/Pong wire events
// the server already answers in internal/remoting.
type HeartbeatManager struct {
	registry *NodeRegistry
	clients  *remoting.ClientRegistry
	cfg      HeartbeatConfig
	onTerm   OnTerminate
}

// NewHeartbeatManager constructs a HeartbeatManager for registry. Pending
// requests against a node that goes Terminated are failed by
// NodeRegistry.MarkTerminated, which this manager calls.
func NewHeartbeatManager(registry *NodeRegistry, clients *remoting.ClientRegistry,
	cfg HeartbeatConfig, onTerm OnTerminate,
) *HeartbeatManager {
	return &HeartbeatManager{
		registry: registry,
		clients:  clients,
		cfg:      cfg,
		onTerm:   onTerm,
	}
}

// ComputeStatus classifies a node from elapsed time since its last pong.
func (h *HeartbeatManager) ComputeStatus(n *Node) Status {
	elapsed := time.Since(n.LastPong)

	if elapsed > h.cfg.TerminatedTimeout {
		return StatusTerminated
	}
	if elapsed > h.cfg.UnhealthyTimeout {
		return StatusUnhealthy
	}
	return StatusHealthy
}

// Run blocks, sending a Ping to every known peer every PingInterval and
// reclassifying liveness, until ctx is done.
func (h *HeartbeatManager) Run(ctx context.Context) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.tick(ctx)
		}
	}
}

func (h *HeartbeatManager) tick(ctx context.Context) {
	h.registry.mu.RLock()
	targets := make([]*Node, 0, len(h.registry.nodes))
	for _, n := range h.registry.nodes {
		if n.Status == StatusTerminated {
			continue
		}
		targets = append(targets, n)
	}
	h.registry.mu.RUnlock()

	for _, n := range targets {
		n := n
		nodeID := n.Record.NodeID

		status := h.ComputeStatus(n)
		switch status {
		case StatusTerminated:
			h.registry.MarkTerminated(nodeID)
			if h.onTerm != nil {
				h.onTerm(nodeID)
			}
			continue
		case StatusUnhealthy:
			h.registry.MarkStatus(nodeID, StatusUnhealthy)
		}

		ping := wire.SessionEvent{
			Kind: wire.SessionKindPing,
			Ping: wire.PingEvent{
				MessageID: uuid.NewString(),
				NodeID:    h.registry.cfg.NodeID,
			},
		}
		if err := h.clients.ClientWrite(ctx, nodeID, ping); err != nil {
			log.DebugS(ctx, "heartbeat ping failed", "node_id", nodeID, "error", err)
		}
	}
}
