package cluster

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/lattice-run/lattice/internal/errs"
	"github.com/lattice-run/lattice/internal/remoting"
	"github.com/lattice-run/lattice/internal/wire"
)

// Config describes the identity and NAT behavior of the local node.
type Config struct {
	NodeID               uint64
	NodeTag              string
	ListenAddr           string
	ExternalAddr         string
	ApplicationVersion   string
	OverrideIncomingAddr bool
}

// NodeRegistry holds the current membership set (node_id -> Node) and
// implements remoting.HandshakeHandler to drive the handshake sequence on
// behalf of the local node (§4.10).
type NodeRegistry struct {
	cfg       Config
	startedAt time.Time

	mu    sync.RWMutex
	nodes map[uint64]*Node

	clients  *remoting.ClientRegistry
	requests *remoting.RequestRegistry
	codec    *wire.FrameCodec

	capabilities wire.Capabilities
}

// NewNodeRegistry constructs a NodeRegistry for the local node described by
// cfg. clients/requests are the shared outbound-connection and
// pending-request tables the rest of remoting uses.
func NewNodeRegistry(cfg Config, clients *remoting.ClientRegistry, requests *remoting.RequestRegistry) *NodeRegistry {
	return &NodeRegistry{
		cfg:       cfg,
		startedAt: time.Now(),
		nodes:     make(map[uint64]*Node),
		clients:   clients,
		requests:  requests,
		codec:     wire.NewFrameCodec(0),
	}
}

// SetCapabilities advertises the actor/message type names this node can
// dispatch, included in the Identity frame sent to new connections.
func (r *NodeRegistry) SetCapabilities(caps wire.Capabilities) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.capabilities = caps
}

// Self returns the local node's own wire.RemoteNode record.
func (r *NodeRegistry) Self() wire.RemoteNode {
	return wire.RemoteNode{
		NodeID:    r.cfg.NodeID,
		Addr:      r.addr(),
		Tag:       r.cfg.NodeTag,
		StartedAt: r.startedAt,
	}
}

func (r *NodeRegistry) addr() string {
	if r.cfg.ExternalAddr != "" {
		return r.cfg.ExternalAddr
	}
	return r.cfg.ListenAddr
}

// Identity implements remoting.HandshakeHandler.
func (r *NodeRegistry) Identity() wire.NodeIdentity {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return wire.NodeIdentity{
		NodeID:             r.cfg.NodeID,
		NodeTag:            r.cfg.NodeTag,
		ApplicationVersion: r.cfg.ApplicationVersion,
		Addr:               r.addr(),
		StartedAt:          r.startedAt,
		Peers:              r.snapshotLocked(),
		Capabilities:       r.capabilities,
	}
}

// OnHandshake implements remoting.HandshakeHandler (§4.6 step 3). It admits
// the handshaking node into membership (applying the NAT override when
// configured), merges its known-nodes list, and replies with the full peer
// set.
func (r *NodeRegistry) OnHandshake(remoteIP string, hs wire.SessionHandshake) wire.ClientHandshake {
	peer := wire.RemoteNode{
		NodeID:    hs.NodeID,
		Addr:      r.resolveAddr(remoteIP, hs),
		Tag:       hs.NodeTag,
		StartedAt: hs.StartedAt,
	}
	r.Admit(peer)
	r.MergeKnownNodes(hs.Nodes)

	r.mu.RLock()
	defer r.mu.RUnlock()
	return wire.ClientHandshake{
		NodeID:    r.cfg.NodeID,
		NodeTag:   r.cfg.NodeTag,
		StartedAt: r.startedAt,
		Nodes:     r.snapshotLocked(),
	}
}

// resolveAddr applies the NAT override (§4.6): when configured and the
// handshaking node's own declared address matches its declared node id,
// the server substitutes the observed TCP peer IP for the declared host,
// keeping the declared port. Other nodes' addresses (gossiped via
// known_nodes) are trusted verbatim, per the open question in §9.
func (r *NodeRegistry) resolveAddr(remoteIP string, hs wire.SessionHandshake) string {
	declaredAddr := ""
	for _, n := range hs.Nodes {
		if n.NodeID == hs.NodeID {
			declaredAddr = n.Addr
			break
		}
	}
	if !r.cfg.OverrideIncomingAddr || declaredAddr == "" {
		return declaredAddr
	}
	_, port, err := net.SplitHostPort(declaredAddr)
	if err != nil {
		return declaredAddr
	}
	return net.JoinHostPort(remoteIP, port)
}

// Admit inserts or refreshes a node in the membership set, enforcing
// membership monotonicity (§8 invariant 6): a node previously observed
// Terminated is only re-admitted if it presents a newer started_at,
// meaning it is a genuinely new process instance, not a stale re-announce
// of the terminated one.
func (r *NodeRegistry) Admit(peer wire.RemoteNode) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.nodes[peer.NodeID]
	if ok && existing.Status == StatusTerminated && !peer.StartedAt.After(existing.Record.StartedAt) {
		log.DebugS(context.Background(), "refusing to re-admit terminated node without new epoch",
			"node_id", peer.NodeID)
		return
	}

	r.nodes[peer.NodeID] = &Node{
		Record:   peer,
		Status:   StatusHealthy,
		LastPong: time.Now(),
	}
}

// MergeKnownNodes admits every node in peers not already known, as an
// append-only monotone union (§4.10).
func (r *NodeRegistry) MergeKnownNodes(peers []wire.RemoteNode) {
	for _, p := range peers {
		if p.NodeID == r.cfg.NodeID {
			continue
		}
		r.mu.RLock()
		_, known := r.nodes[p.NodeID]
		r.mu.RUnlock()
		if !known {
			r.Admit(p)
		}
	}
}

// Get returns the membership-set entry for nodeID.
func (r *NodeRegistry) Get(nodeID uint64) (*Node, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.nodes[nodeID]
	return n, ok
}

// Nodes returns the full set of currently known node ids, including the
// local node.
func (r *NodeRegistry) Nodes() map[uint64]Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[uint64]Status, len(r.nodes)+1)
	out[r.cfg.NodeID] = StatusHealthy
	for id, n := range r.nodes {
		out[id] = n.Status
	}
	return out
}

func (r *NodeRegistry) snapshotLocked() []wire.RemoteNode {
	out := make([]wire.RemoteNode, 0, len(r.nodes)+1)
	out = append(out, r.Self())
	for _, n := range r.nodes {
		out = append(out, n.Record)
	}
	return out
}

// MarkStatus transitions nodeID to the given status.
func (r *NodeRegistry) MarkStatus(nodeID uint64, status Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n, ok := r.nodes[nodeID]; ok {
		n.Status = status
	}
}

// MarkTerminated marks nodeID Terminated, drops its outbound client and
// fails its pending requests. The entry is not removed: Get and Nodes still
// report it, and Admit uses it to refuse a stale re-announce.
func (r *NodeRegistry) MarkTerminated(nodeID uint64) {
	r.mu.Lock()
	if n, ok := r.nodes[nodeID]; ok {
		n.Status = StatusTerminated
	}
	r.mu.Unlock()

	r.clients.Unregister(nodeID)
	r.requests.FailNode(nodeID, errs.ErrNodeUnreachable)
	log.WarnS(context.Background(), "node terminated", nil, "node_id", nodeID)
}

// RecordPong updates the last-pong timestamp used by the heartbeat
// manager's liveness classification.
func (r *NodeRegistry) RecordPong(nodeID uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n, ok := r.nodes[nodeID]; ok {
		n.LastPong = time.Now()
		n.Status = StatusHealthy
	}
}

// connect dials addr, performs the client side of the handshake (§4.6
// steps 1-4), registers the resulting Client, and returns the peer set the
// remote node reported.
func (r *NodeRegistry) connect(ctx context.Context, addr string) ([]wire.RemoteNode, error) {
	dialer := net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", addr, err)
	}

	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}

	frame, err := r.codec.ReadFrame(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("reading identity from %s: %w", addr, err)
	}
	identityEvt, err := wire.DecodeClientEvent(frame)
	if err != nil || identityEvt.Kind != wire.ClientKindIdentity {
		conn.Close()
		return nil, fmt.Errorf("expected identity frame from %s", addr)
	}

	hs := wire.SessionEvent{
		Kind: wire.SessionKindHandshake,
		Handshake: wire.SessionHandshake{
			NodeID:     r.cfg.NodeID,
			NodeTag:    r.cfg.NodeTag,
			ClientType: wire.ClientTypeWorker,
			StartedAt:  r.startedAt,
			Nodes:      r.snapshotWithSelf(),
		},
	}
	if err := r.codec.WriteFrame(conn, hs.Encode()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sending handshake to %s: %w", addr, err)
	}

	frame, err = r.codec.ReadFrame(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("reading handshake reply from %s: %w", addr, err)
	}
	replyEvt, err := wire.DecodeClientEvent(frame)
	if err != nil || replyEvt.Kind != wire.ClientKindHandshake {
		conn.Close()
		return nil, fmt.Errorf("expected handshake reply from %s", addr)
	}

	r.Admit(wire.RemoteNode{
		NodeID:    identityEvt.Identity.NodeID,
		Addr:      addr,
		Tag:       identityEvt.Identity.NodeTag,
		StartedAt: identityEvt.Identity.StartedAt,
	})
	r.MergeKnownNodes(replyEvt.Handshake.Nodes)

	client := remoting.NewClient(identityEvt.Identity.NodeID, conn, r.codec)
	r.clients.Register(identityEvt.Identity.NodeID, client)

	go func() {
		err := client.ReadLoop(func(ev wire.ClientEvent) {
			r.handleClientEvent(identityEvt.Identity.NodeID, ev)
		})
		log.DebugS(context.Background(), "outbound connection closed", "node_id", identityEvt.Identity.NodeID, "error", err)
		r.clients.Unregister(identityEvt.Identity.NodeID)
		r.requests.FailNode(identityEvt.Identity.NodeID, errs.ErrNodeUnreachable)
	}()

	return replyEvt.Handshake.Nodes, nil
}

func (r *NodeRegistry) snapshotWithSelf() []wire.RemoteNode {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

func (r *NodeRegistry) handleClientEvent(nodeID uint64, ev wire.ClientEvent) {
	switch ev.Kind {
	case wire.ClientKindPong:
		r.RecordPong(nodeID)
	case wire.ClientKindPing:
		if ev.Ping.SystemTerminated {
			r.MarkTerminated(nodeID)
		}
	case wire.ClientKindResult:
		r.requests.Deliver(ev.Result.MessageID, remoting.Response{Result: ev.Result.Result})
	case wire.ClientKindErr:
		r.requests.Deliver(ev.Err.MessageID, remoting.Response{
			Err: fmt.Errorf("%s: %s", ev.Err.Error.Code, ev.Err.Error.Message),
		})
	}
}
