package actor

import (
	"context"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// functionBehavior adapts a plain function into an ActorBehavior, for actors
// whose entire logic fits in a closure (the dead letter actor, test doubles,
// small adapters) without the ceremony of a named type.
type functionBehavior[M Message, R any] struct {
	receive func(ctx context.Context, msg M) fn.Result[R]
}

// NewFunctionBehavior wraps a plain function as an ActorBehavior.
func NewFunctionBehavior[M Message, R any](
	receive func(ctx context.Context, msg M) fn.Result[R],
) ActorBehavior[M, R] {
	return &functionBehavior[M, R]{receive: receive}
}

// Receive implements ActorBehavior by delegating to the wrapped function.
func (f *functionBehavior[M, R]) Receive(ctx context.Context, msg M) fn.Result[R] {
	return f.receive(ctx, msg)
}
