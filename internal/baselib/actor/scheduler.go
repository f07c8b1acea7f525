package actor

// Get returns the actor tracked under id within as, downcast to
// ActorRef[M, R]. It reports false if no actor is registered under that id,
// or if the actor registered there was spawned with different message or
// response types. This is the typed counterpart to the untyped stoppable
// entries the system keeps for shutdown bookkeeping: most callers go through
// a ServiceKey and the Receptionist instead, but Get is useful when an
// actor's own ID (rather than its service name) is the only thing on hand,
// e.g. resolving a parent ID recorded by Supervisor.ParentOf.
func Get[M Message, R any](as *ActorSystem, id string) (ActorRef[M, R], bool) {
	as.mu.RLock()
	entry, exists := as.actors[id]
	as.mu.RUnlock()

	if !exists {
		return nil, false
	}

	typed, ok := entry.(*Actor[M, R])
	if !ok {
		return nil, false
	}

	return typed.Ref(), true
}
