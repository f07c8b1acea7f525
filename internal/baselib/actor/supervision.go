package actor

import (
	"context"
	"sync"
)

// supervisedChild tracks one child actor under a parent: the stoppable
// handle used to signal shutdown, and a channel closed once the child's
// process loop has actually exited.
type supervisedChild struct {
	ref  stoppable
	done chan struct{}
}

// Supervisor tracks parent/child relationships between actors registered
// with the same ActorSystem. It exists because Actor[M, R] is monomorphic
// over a single message type: a parent cannot receive a typed
// "ChildTerminated" message from children of arbitrary, unrelated message
// types through its own strongly-typed mailbox. Supervisor plays that role
// out of band, using the untyped stoppable interface and plain callbacks
// instead of a mailbox delivery.
type Supervisor struct {
	mu sync.Mutex

	// children maps a parent actor ID to its set of supervised children,
	// keyed by child ID.
	children map[string]map[string]*supervisedChild

	// parents maps a child actor ID back to its parent's ID.
	parents map[string]string
}

func newSupervisor() *Supervisor {
	return &Supervisor{
		children: make(map[string]map[string]*supervisedChild),
		parents:  make(map[string]string),
	}
}

// link records childID as a supervised child of parentID, returning the done
// channel that unlink closes once the child has fully terminated.
func (s *Supervisor) link(parentID, childID string, child stoppable) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	done := make(chan struct{})

	set, ok := s.children[parentID]
	if !ok {
		set = make(map[string]*supervisedChild)
		s.children[parentID] = set
	}
	set[childID] = &supervisedChild{ref: child, done: done}
	s.parents[childID] = parentID

	return done
}

// unlink removes the parent/child edge and closes the child's done channel,
// waking any StopChildren call blocked waiting on it. Safe to call more than
// once for the same child (e.g. if it is stopped twice).
func (s *Supervisor) unlink(parentID, childID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if set, ok := s.children[parentID]; ok {
		if c, exists := set[childID]; exists {
			closeOnce(c.done)
			delete(set, childID)
		}
		if len(set) == 0 {
			delete(s.children, parentID)
		}
	}
	delete(s.parents, childID)
}

// closeOnce closes ch if it is not already closed.
func closeOnce(ch chan struct{}) {
	select {
	case <-ch:
	default:
		close(ch)
	}
}

// snapshot returns the current set of supervised children for parentID. The
// caller must not mutate the returned slice's backing entries.
func (s *Supervisor) snapshot(parentID string) []*supervisedChild {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := s.children[parentID]
	out := make([]*supervisedChild, 0, len(set))
	for _, c := range set {
		out = append(out, c)
	}
	return out
}

// ParentOf returns the parent actor ID supervising childID, if any.
func (s *Supervisor) ParentOf(childID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	parentID, ok := s.parents[childID]
	return parentID, ok
}

// SpawnChild registers a new actor as a supervised child of parentID within
// as. It behaves like RegisterWithSystem, but additionally:
//
//   - links the new actor under parentID in the system's Supervisor, so
//     StopChildren(parentID) or the parent's own termination will stop it;
//   - invokes onChildTerminated (if non-nil) once the child's process loop
//     has fully exited, without going through either actor's mailbox.
//
// This is the supervision-tree counterpart to spec-level ChildTerminated
// notifications: the Go type system can't carry a heterogeneous control
// message through a parent's typed Receive, so the notification is delivered
// as a direct callback instead.
func SpawnChild[M Message, R any](
	as *ActorSystem, parentID, childID string, key ServiceKey[M, R],
	behavior ActorBehavior[M, R], onChildTerminated func(childID string),
	opts ...RegisterOption,
) ActorRef[M, R] {
	if as.ctx.Err() != nil {
		return newStoppedActorRef[M, R](childID)
	}

	var regCfg registerConfig
	for _, opt := range opts {
		opt(&regCfg)
	}

	actorCfg := ActorConfig[M, R]{
		ID:             childID,
		Behavior:       behavior,
		DLO:            as.deadLetterActor,
		MailboxSize:    as.config.MailboxCapacity,
		Wg:             &as.actorWg,
		CleanupTimeout: regCfg.cleanupTimeout,
		OnTerminated: func() {
			as.supervisor.unlink(parentID, childID)
			as.cascadeStop(childID)
			if onChildTerminated != nil {
				onChildTerminated(childID)
			}
		},
	}
	actorInstance := NewActor(actorCfg)
	actorInstance.Start()

	as.mu.Lock()
	as.actors[actorInstance.id] = actorInstance
	as.mu.Unlock()

	as.supervisor.link(parentID, childID, actorInstance)

	if err := RegisterWithReceptionist(as.receptionist, key, actorInstance.Ref()); err != nil {
		actorInstance.Stop()

		as.mu.Lock()
		delete(as.actors, actorInstance.id)
		as.mu.Unlock()

		as.supervisor.unlink(parentID, childID)

		return newStoppedActorRef[M, R](childID)
	}

	log.DebugS(as.ctx, "Child actor spawned under supervision",
		"actor_id", childID,
		"parent_id", parentID,
		"service_key", key.name)

	return actorInstance.Ref()
}

// StopChildren stops every actor currently supervised under parentID and
// blocks until each has fully terminated, or ctx is done.
func (as *ActorSystem) StopChildren(ctx context.Context, parentID string) {
	children := as.supervisor.snapshot(parentID)
	if len(children) == 0 {
		return
	}

	for _, child := range children {
		child.ref.Stop()
	}

	for _, child := range children {
		select {
		case <-child.done:
		case <-ctx.Done():
			return
		}
	}
}

// cascadeStop asynchronously stops every child supervised under id. It is
// invoked whenever an actor terminates for any reason, so that a supervisor's
// death always implies its children's death, matching spec-level supervision
// semantics without requiring callers to remember to clean up manually.
func (as *ActorSystem) cascadeStop(id string) {
	children := as.supervisor.snapshot(id)
	if len(children) == 0 {
		return
	}

	go as.StopChildren(context.Background(), id)
}
