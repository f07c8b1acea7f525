package remoting

import (
	"context"
	"fmt"
	"sync"

	"github.com/lattice-run/lattice/internal/errs"
)

// Dispatcher decodes a MessageRequest's opaque payload, invokes the target
// actor's handler, and encodes the reply. Each dispatcher knows exactly one
// (actor_type, message_type) pair (§9 "dynamic handler dispatch").
type Dispatcher interface {
	Dispatch(ctx context.Context, actorID string, payload []byte) ([]byte, error)
}

// DispatcherFunc adapts a plain function to the Dispatcher interface.
type DispatcherFunc func(ctx context.Context, actorID string, payload []byte) ([]byte, error)

// Dispatch implements Dispatcher.
func (f DispatcherFunc) Dispatch(ctx context.Context, actorID string, payload []byte) ([]byte, error) {
	return f(ctx, actorID, payload)
}

// HandlerRegistry is the string -> Dispatcher map built at startup from
// user registrations, used to route an inbound MessageRequest by its
// handler_type field (§4.6, §9).
type HandlerRegistry struct {
	mu       sync.RWMutex
	handlers map[string]Dispatcher
}

// NewHandlerRegistry constructs an empty HandlerRegistry.
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{handlers: make(map[string]Dispatcher)}
}

// Register associates handlerType with d. A second call for the same type
// replaces the prior registration, matching "built at startup from user
// registrations" rather than enforcing single-registration.
func (h *HandlerRegistry) Register(handlerType string, d Dispatcher) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[handlerType] = d
}

// Dispatch looks up handlerType and invokes it. A missing handlerType
// surfaces as errs.ErrActorUnavailable so the caller observes
// ActorUnavailable while the session remains open (S5).
func (h *HandlerRegistry) Dispatch(ctx context.Context, handlerType, actorID string, payload []byte) ([]byte, error) {
	h.mu.RLock()
	d, ok := h.handlers[handlerType]
	h.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: handler_type %q not registered",
			errs.ErrActorUnavailable, handlerType)
	}
	return d.Dispatch(ctx, actorID, payload)
}
