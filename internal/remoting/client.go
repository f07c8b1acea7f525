package remoting

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/lattice-run/lattice/internal/wire"
)

// Client owns one outbound TCP connection to a peer node and serializes
// writes to it; reads are pumped by a background goroutine that dispatches
// arriving ClientEvent frames to the owning Node's callbacks.
type Client struct {
	nodeID uint64
	conn   net.Conn
	codec  *wire.FrameCodec

	writeMu sync.Mutex
	closed  chan struct{}
	once    sync.Once
}

// NewClient wraps conn as a Client for nodeID using the given frame codec.
func NewClient(nodeID uint64, conn net.Conn, codec *wire.FrameCodec) *Client {
	return &Client{
		nodeID: nodeID,
		conn:   conn,
		codec:  codec,
		closed: make(chan struct{}),
	}
}

// NodeID returns the id of the node this client connects to.
func (c *Client) NodeID() uint64 { return c.nodeID }

// Write serializes and frames a SessionEvent, writing it to the
// connection. Writes are serialized with a mutex since a single TCP
// connection is shared by concurrent callers (RPCs, heartbeats, gossip).
func (c *Client) Write(ctx context.Context, event wire.SessionEvent) error {
	select {
	case <-c.closed:
		return fmt.Errorf("client for node %d closed", c.nodeID)
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if dl, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(dl)
	}
	return c.codec.WriteFrame(c.conn, event.Encode())
}

// ReadLoop blocks reading ClientEvent frames from the connection and
// invokes onEvent for each. It returns when the connection errors or
// closes; callers run this in its own goroutine and treat its return as
// "connection lost."
func (c *Client) ReadLoop(onEvent func(wire.ClientEvent)) error {
	for {
		frame, err := c.codec.ReadFrame(c.conn)
		if err != nil {
			return err
		}
		event, err := wire.DecodeClientEvent(frame)
		if err != nil {
			log.WarnS(context.Background(), "dropping malformed client event",
				err, "node_id", c.nodeID)
			continue
		}
		onEvent(event)
	}
}

// Close closes the underlying connection. Idempotent.
func (c *Client) Close() error {
	c.once.Do(func() { close(c.closed) })
	return c.conn.Close()
}
