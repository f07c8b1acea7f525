package actor

import "context"

// PersistenceHandle is the narrow contract an actor needs to persist and
// recover its own state, independent of which storage backend the system
// was configured with. This package defines only the interface; the
// repository contains no implementation of it.
type PersistenceHandle interface {
	// Save persists data as the actor's latest snapshot.
	Save(ctx context.Context, data []byte) error

	// Load returns the most recently saved snapshot, or (nil, nil) if
	// none exists yet.
	Load(ctx context.Context) ([]byte, error)
}

// PersistenceProvider mints a PersistenceHandle scoped to a single actor ID.
type PersistenceProvider interface {
	Handle(actorID string) PersistenceHandle
}

// RemoteSystem is the narrow contract the actor system needs from the
// remoting layer. Kept as an interface here, rather than importing
// internal/remoting directly, because the remoting layer itself depends on
// actor to deliver inbound messages to local actors.
type RemoteSystem interface {
	// NodeID returns the identity of the local node as known to the
	// cluster.
	NodeID() string
}
