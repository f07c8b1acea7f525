package remoting

import (
	"context"
	"sync"
	"time"

	"github.com/lattice-run/lattice/internal/errs"
	"github.com/lattice-run/lattice/internal/wire"
)

// retryBackoff is how long ClientWrite waits before its one retry when the
// target node has no registered client yet (§4.7: "buffer briefly and
// retry once").
const retryBackoff = 20 * time.Millisecond

// ClientRegistry is the process-wide mapping node_id -> outbound Client
// (§4.7). It is owned by one ActorSystem/node, not a true global, matching
// the "process-wide registries... instantiated per actor-system" design
// note.
type ClientRegistry struct {
	mu      sync.RWMutex
	clients map[uint64]*Client
}

// NewClientRegistry constructs an empty ClientRegistry.
func NewClientRegistry() *ClientRegistry {
	return &ClientRegistry{clients: make(map[uint64]*Client)}
}

// Register installs client under nodeID, replacing (and closing) any
// previous client for that node.
func (r *ClientRegistry) Register(nodeID uint64, client *Client) {
	r.mu.Lock()
	old := r.clients[nodeID]
	r.clients[nodeID] = client
	r.mu.Unlock()

	if old != nil && old != client {
		_ = old.Close()
	}
}

// Unregister removes nodeID's client, e.g. once the connection is
// observed closed.
func (r *ClientRegistry) Unregister(nodeID uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, nodeID)
}

// Get returns the client registered for nodeID, if any.
func (r *ClientRegistry) Get(nodeID uint64) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[nodeID]
	return c, ok
}

// ClientWrite looks up the client for nodeID and forwards event to it. A
// missing entry is retried once after a brief buffering delay (the target
// may be mid-handshake); if it's still missing, the call fails with
// errs.ErrNodeUnreachable so the caller can fail the pending request.
func (r *ClientRegistry) ClientWrite(ctx context.Context, nodeID uint64, event wire.SessionEvent) error {
	client, ok := r.Get(nodeID)
	if !ok {
		select {
		case <-time.After(retryBackoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		client, ok = r.Get(nodeID)
	}
	if !ok {
		return errs.ErrNodeUnreachable
	}
	return client.Write(ctx, event)
}

// NodeUnreachable reports whether err is the sentinel this registry
// returns for a node with no live connection, so callers can pattern-match
// without importing internal/errs directly.
func NodeUnreachable(err error) bool {
	return err == errs.ErrNodeUnreachable
}
