package actor

import (
	"context"
	"sync/atomic"

	"github.com/lightningnetwork/lnd/fn/v2"

	"github.com/lattice-run/lattice/internal/errs"
)

// RoutingStrategy picks one actor reference out of the set currently
// registered under a ServiceKey. Implementations must be safe for concurrent
// use, since a router may be shared across many callers.
type RoutingStrategy[M Message, R any] interface {
	// Select picks one ref from candidates. candidates is never empty; the
	// router itself handles the empty-registration case before calling
	// Select.
	Select(candidates []ActorRef[M, R]) ActorRef[M, R]
}

// roundRobinStrategy cycles through candidates in registration order. The
// counter is process-wide for the strategy instance rather than per-call, so
// repeated Select calls against a stable candidate set distribute evenly.
type roundRobinStrategy[M Message, R any] struct {
	counter atomic.Uint64
}

// NewRoundRobinStrategy returns a RoutingStrategy that distributes messages
// evenly across all registered actors in turn.
func NewRoundRobinStrategy[M Message, R any]() RoutingStrategy[M, R] {
	return &roundRobinStrategy[M, R]{}
}

// Select implements RoutingStrategy.
func (s *roundRobinStrategy[M, R]) Select(candidates []ActorRef[M, R]) ActorRef[M, R] {
	idx := s.counter.Add(1) - 1
	return candidates[idx%uint64(len(candidates))]
}

// router is a virtual ActorRef that resolves to a live registered actor on
// every call, rather than a single fixed actor. This gives callers location
// transparency: actors can be added, removed, or restarted under a
// ServiceKey without the caller's reference ever going stale.
type router[M Message, R any] struct {
	receptionist *Receptionist
	key          ServiceKey[M, R]
	strategy     RoutingStrategy[M, R]
	dlo          ActorRef[Message, any]
}

// NewRouter returns an ActorRef that load-balances across every actor
// currently registered under key, using strategy to pick among them on each
// call. If no actor is registered when a message arrives, Tell routes the
// message to dlo (if non-nil) and Ask returns a Future already completed with
// errs.ErrActorUnavailable.
func NewRouter[M Message, R any](
	receptionist *Receptionist, key ServiceKey[M, R],
	strategy RoutingStrategy[M, R], dlo ActorRef[Message, any],
) ActorRef[M, R] {
	return &router[M, R]{
		receptionist: receptionist,
		key:          key,
		strategy:     strategy,
		dlo:          dlo,
	}
}

// resolve picks a live candidate, or reports none were available.
func (r *router[M, R]) resolve() (ActorRef[M, R], bool) {
	candidates := FindInReceptionist(r.receptionist, r.key)
	if len(candidates) == 0 {
		var zero ActorRef[M, R]
		return zero, false
	}
	return r.strategy.Select(candidates), true
}

// Tell implements TellOnlyRef by forwarding to a resolved candidate.
func (r *router[M, R]) Tell(ctx context.Context, msg M) {
	target, ok := r.resolve()
	if !ok {
		log.DebugS(ctx, "Router has no registered targets, routing to DLO",
			"service_key", r.key.name,
			"msg_type", msg.MessageType())

		if r.dlo != nil {
			r.dlo.Tell(ctx, msg)
		}
		return
	}
	target.Tell(ctx, msg)
}

// Ask implements ActorRef by forwarding to a resolved candidate.
func (r *router[M, R]) Ask(ctx context.Context, msg M) Future[R] {
	target, ok := r.resolve()
	if !ok {
		promise := NewPromise[R]()
		promise.Complete(fn.Err[R](errs.ErrActorUnavailable))
		return promise.Future()
	}
	return target.Ask(ctx, msg)
}

// ID implements BaseActorRef. A router has no single identity, so it reports
// the service key's name it routes for.
func (r *router[M, R]) ID() string {
	return "router:" + r.key.name
}

var _ ActorRef[Message, any] = (*router[Message, any])(nil)
