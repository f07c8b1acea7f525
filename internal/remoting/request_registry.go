// Package remoting multiplexes typed RPC over TCP sessions between lattice
// nodes: outbound client connections (ClientRegistry), inbound session
// acceptance (Server/SessionStore), and the pending-request correlation
// table that matches out-of-order replies back to their callers
// (RequestRegistry).
package remoting

import (
	"context"
	"sync"

	"github.com/lattice-run/lattice/internal/logutil"
)

// log is the package-level subsystem logger, wired via UseLogger during
// daemon startup and defaulting to a no-op sink otherwise (see
// internal/baselib/actor/log.go for the convention this mirrors).
var log = logutil.Disabled

// UseLogger sets the subsystem logger used by the remoting package.
func UseLogger(logger logutil.Logger) {
	log = logger
}

// Response is what a pending request resolves to: either a result payload
// or an error, mirroring the wire's ClientResult/ClientErr split.
type Response struct {
	Result []byte
	Err    error
}

// RequestRegistry is the process-wide, concurrent table of in-flight
// requests: request_id (UUID string) -> response channel (§4.9). Each
// channel has a buffer of one and receives at most one Response: the entry
// is popped before anything is sent on it, so a late duplicate on the wire
// finds no entry and is discarded.
type RequestRegistry struct {
	mu      sync.Mutex
	pending map[string]chan Response

	// nodeOf records which node each pending request targets, so a
	// single terminated peer's requests can be failed without touching
	// requests outstanding against other peers (§4.11 "all pending
	// requests to it fail with NodeUnreachable").
	nodeOf map[string]uint64
}

// NewRequestRegistry constructs an empty RequestRegistry.
func NewRequestRegistry() *RequestRegistry {
	return &RequestRegistry{
		pending: make(map[string]chan Response),
		nodeOf:  make(map[string]uint64),
	}
}

// push registers a response channel under id. Ask and AskNode insert their
// entries directly rather than through push, and no other code in the
// package calls it.
func (r *RequestRegistry) push(id string, ch chan Response) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[id] = ch
}

// pop removes and returns the response channel registered under id, if
// any. The invariant in §4.9 is enforced here: once popped, the entry is
// gone, so a second arrival for the same id (a duplicate, or a stale
// timeout-then-late-reply race) is simply discarded by the caller finding
// nothing to pop.
func (r *RequestRegistry) pop(id string) (chan Response, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.pending[id]
	if ok {
		delete(r.pending, id)
		delete(r.nodeOf, id)
	}
	return ch, ok
}

// Ask registers a new pending request, invokes send to transmit it (e.g.
// writing a MessageRequest frame to the target's client connection), and
// blocks until either a correlated Deliver call resolves it or ctx is
// done. On ctx expiry the registry entry is popped and discarded so a
// subsequent late reply is dropped rather than leaking the channel.
func (r *RequestRegistry) Ask(ctx context.Context, id string, send func() error) (Response, error) {
	return r.AskNode(ctx, id, 0, send)
}

// AskNode is Ask, additionally recording which node id is being asked so a
// later FailNode(nodeID) call can target just this request.
func (r *RequestRegistry) AskNode(ctx context.Context, id string, nodeID uint64, send func() error) (Response, error) {
	ch := make(chan Response, 1)
	r.mu.Lock()
	r.pending[id] = ch
	r.nodeOf[id] = nodeID
	r.mu.Unlock()

	if err := send(); err != nil {
		r.pop(id)
		return Response{}, err
	}

	select {
	case resp := <-ch:
		return resp, resp.Err
	case <-ctx.Done():
		r.pop(id)
		return Response{}, ctx.Err()
	}
}

// Deliver resolves the pending request registered under id with resp,
// returning false if no such request exists (already delivered, already
// timed out, or a bogus/duplicate correlation id arrived on the wire). The
// wire-level reader treats a false return identically whether resp carries
// a Result or an Err, per §9's "discard + log" open question.
func (r *RequestRegistry) Deliver(id string, resp Response) bool {
	ch, ok := r.pop(id)
	if !ok {
		log.DebugS(context.Background(), "discarding unsolicited reply",
			"request_id", id)
		return false
	}
	ch <- resp
	return true
}

// FailAll resolves every currently pending request with err (typically
// errs.ErrNodeUnreachable when a connection is lost), draining the table so
// the failed session's requests don't linger.
func (r *RequestRegistry) FailAll(err error) {
	r.mu.Lock()
	pending := r.pending
	r.pending = make(map[string]chan Response)
	r.nodeOf = make(map[string]uint64)
	r.mu.Unlock()

	for id, ch := range pending {
		log.DebugS(context.Background(), "failing pending request",
			"request_id", id, "error", err)
		ch <- Response{Err: err}
	}
}

// FailNode resolves every pending request known to target nodeID with err,
// leaving requests against other nodes untouched.
func (r *RequestRegistry) FailNode(nodeID uint64, err error) {
	r.mu.Lock()
	var toFail []string
	for id, n := range r.nodeOf {
		if n == nodeID {
			toFail = append(toFail, id)
		}
	}
	chans := make([]chan Response, 0, len(toFail))
	for _, id := range toFail {
		chans = append(chans, r.pending[id])
		delete(r.pending, id)
		delete(r.nodeOf, id)
	}
	r.mu.Unlock()

	for _, ch := range chans {
		ch <- Response{Err: err}
	}
}

// Len reports the number of currently pending requests; used by tests and
// diagnostics.
func (r *RequestRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
