package actor

import (
	"context"

	"github.com/lattice-run/lattice/internal/errs"
)

// TrackingMode controls whether a newly spawned actor is retained in the
// system's by-ID registry after it starts.
type TrackingMode int

const (
	// Tracked actors remain registered under their ID for their
	// lifetime: reachable via Get, stoppable via StopAndRemoveActor, and
	// included in Shutdown's actor sweep.
	Tracked TrackingMode = iota

	// Anonymous actors are started and never added to the by-ID
	// registry; the caller's ActorRef is the only remaining handle. They
	// are still tracked by the system's WaitGroup, so Shutdown still
	// waits for them to exit once their owning context is cancelled, but
	// StopAndRemoveActor and Get cannot find them by ID.
	Anonymous
)

// NewActorInSystem spawns a bare actor within as (no ServiceKey, no
// receptionist registration) and waits for it to reach Started before
// returning: if behavior implements Startable, its OnStart hook has already
// run and succeeded by the time this function returns a non-error result. If
// OnStart fails, the error is returned and the ActorRef is a stopped stub.
//
// This is a package-level function, not a method, because ActorSystem's
// methods cannot carry their own type parameters.
func NewActorInSystem[M Message, R any](
	ctx context.Context, as *ActorSystem, id string,
	behavior ActorBehavior[M, R], mode TrackingMode,
) (ActorRef[M, R], error) {
	if as.ctx.Err() != nil {
		return newStoppedActorRef[M, R](id), errs.ErrActorUnavailable
	}

	started := make(chan error, 1)
	actorCfg := ActorConfig[M, R]{
		ID:          id,
		Behavior:    behavior,
		DLO:         as.deadLetterActor,
		MailboxSize: as.config.MailboxCapacity,
		Wg:          &as.actorWg,
		Started:     started,
		OnTerminated: func() {
			as.cascadeStop(id)
		},
	}
	actorInstance := NewActor(actorCfg)
	actorInstance.Start()

	select {
	case err, ok := <-started:
		if !ok {
			actorInstance.Stop()
			return newStoppedActorRef[M, R](id), errs.ErrStartChannelClosed
		}
		if err != nil {
			// The actor already cancelled itself after a failed
			// OnStart; no need to call Stop again.
			return newStoppedActorRef[M, R](id), err
		}

	case <-ctx.Done():
		actorInstance.Stop()
		return newStoppedActorRef[M, R](id), ctx.Err()
	}

	if mode == Tracked {
		as.mu.Lock()
		as.actors[actorInstance.id] = actorInstance
		as.mu.Unlock()
	}

	log.DebugS(as.ctx, "Actor started in system",
		"actor_id", id, "tracked", mode == Tracked)

	return actorInstance.Ref(), nil
}
