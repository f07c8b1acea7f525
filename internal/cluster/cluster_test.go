package cluster

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lattice-run/lattice/internal/remoting"
	"github.com/lattice-run/lattice/internal/wire"
)

func newTestNode(t *testing.T, nodeID uint64, tag string) (*NodeRegistry, *remoting.Server) {
	t.Helper()

	clients := remoting.NewClientRegistry()
	requests := remoting.NewRequestRegistry()
	registry := NewNodeRegistry(Config{
		NodeID:     nodeID,
		NodeTag:    tag,
		ListenAddr: "127.0.0.1:0",
	}, clients, requests)

	srv := remoting.NewServer(nodeID, registry, remoting.NewHandlerRegistry(), nil)
	require.NoError(t, srv.Listen("127.0.0.1:0"))
	go func() { _ = srv.Serve() }()
	t.Cleanup(func() { srv.Close() })

	registry.cfg.ListenAddr = srv.Addr()
	return registry, srv
}

// TestTwoNodeHandshake is S2: node B dials node A's seed address and both
// sides end up with each other in their membership set.
func TestTwoNodeHandshake(t *testing.T) {
	t.Parallel()

	nodeA, _ := newTestNode(t, 1, "a")
	nodeB, _ := newTestNode(t, 2, "b")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	nodeB.Discover(ctx, []string{nodeA.cfg.ListenAddr}, nil)

	require.Eventually(t, func() bool {
		_, ok := nodeB.Get(1)
		return ok
	}, time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		_, ok := nodeA.Get(2)
		return ok
	}, time.Second, 10*time.Millisecond)
}

func TestNodeRegistryAdmitRefusesStaleReannounce(t *testing.T) {
	t.Parallel()

	clients := remoting.NewClientRegistry()
	requests := remoting.NewRequestRegistry()
	registry := NewNodeRegistry(Config{NodeID: 1, NodeTag: "a"}, clients, requests)

	base := time.Now()
	registry.Admit(wire.RemoteNode{NodeID: 2, Addr: "x", StartedAt: base})
	registry.MarkTerminated(2)

	registry.Admit(wire.RemoteNode{NodeID: 2, Addr: "x-stale", StartedAt: base})
	n, ok := registry.Get(2)
	require.True(t, ok)
	require.Equal(t, StatusTerminated, n.Status)
	require.Equal(t, "x", n.Record.Addr)

	registry.Admit(wire.RemoteNode{NodeID: 2, Addr: "x-new", StartedAt: base.Add(time.Second)})
	n, ok = registry.Get(2)
	require.True(t, ok)
	require.Equal(t, StatusHealthy, n.Status)
	require.Equal(t, "x-new", n.Record.Addr)
}

func TestHeartbeatManagerComputeStatus(t *testing.T) {
	t.Parallel()

	clients := remoting.NewClientRegistry()
	requests := remoting.NewRequestRegistry()
	registry := NewNodeRegistry(Config{NodeID: 1}, clients, requests)
	hb := NewHeartbeatManager(registry, clients, HeartbeatConfig{
		PingInterval:      time.Second,
		UnhealthyTimeout:  50 * time.Millisecond,
		TerminatedTimeout: 150 * time.Millisecond,
	}, nil)

	n := &Node{Record: wire.RemoteNode{NodeID: 2}, Status: StatusHealthy, LastPong: time.Now()}
	require.Equal(t, StatusHealthy, hb.ComputeStatus(n))

	n.LastPong = time.Now().Add(-100 * time.Millisecond)
	require.Equal(t, StatusUnhealthy, hb.ComputeStatus(n))

	n.LastPong = time.Now().Add(-200 * time.Millisecond)
	require.Equal(t, StatusTerminated, hb.ComputeStatus(n))
}

// TestHeartbeatManagerEvictsTerminatedNode is S4: once a node's last pong
// exceeds the terminated threshold, the heartbeat manager marks it
// Terminated, fails its pending requests, and invokes onTerm so the
// sharding layer can reallocate.
func TestHeartbeatManagerEvictsTerminatedNode(t *testing.T) {
	t.Parallel()

	clients := remoting.NewClientRegistry()
	requests := remoting.NewRequestRegistry()
	registry := NewNodeRegistry(Config{NodeID: 1}, clients, requests)
	registry.Admit(wire.RemoteNode{NodeID: 2, Addr: "127.0.0.1:1", StartedAt: time.Now()})

	terminated := make(chan uint64, 1)
	hb := NewHeartbeatManager(registry, clients, HeartbeatConfig{
		PingInterval:      10 * time.Millisecond,
		UnhealthyTimeout:  5 * time.Millisecond,
		TerminatedTimeout: 10 * time.Millisecond,
	}, func(nodeID uint64) { terminated <- nodeID })

	n, _ := registry.Get(2)
	n.LastPong = time.Now().Add(-time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go hb.Run(ctx)

	select {
	case nodeID := <-terminated:
		require.Equal(t, uint64(2), nodeID)
	case <-time.After(time.Second):
		t.Fatal("node never reclassified Terminated")
	}

	n, ok := registry.Get(2)
	require.True(t, ok)
	require.Equal(t, StatusTerminated, n.Status)
}
