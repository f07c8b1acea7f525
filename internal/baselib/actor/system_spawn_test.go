package actor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/require"
)

// TestNewActorInSystemTrackedIsFindable verifies that a Tracked actor can be
// looked up by ID via Get after NewActorInSystem returns.
func TestNewActorInSystemTrackedIsFindable(t *testing.T) {
	t.Parallel()

	system := NewActorSystem()
	defer func() { _ = system.Shutdown(context.Background()) }()

	behavior := NewFunctionBehavior(
		func(ctx context.Context, msg *testMsg) fn.Result[string] {
			return fn.Ok("ok")
		},
	)

	ref, err := NewActorInSystem(
		context.Background(), system, "tracked-1", behavior, Tracked,
	)
	require.NoError(t, err)
	require.Equal(t, "tracked-1", ref.ID())

	found, ok := Get[*testMsg, string](system, "tracked-1")
	require.True(t, ok)
	require.Equal(t, ref, found)
}

// TestNewActorInSystemAnonymousIsNotFindable verifies that an Anonymous
// actor never appears in the by-ID registry.
func TestNewActorInSystemAnonymousIsNotFindable(t *testing.T) {
	t.Parallel()

	system := NewActorSystem()
	defer func() { _ = system.Shutdown(context.Background()) }()

	behavior := NewFunctionBehavior(
		func(ctx context.Context, msg *testMsg) fn.Result[string] {
			return fn.Ok("ok")
		},
	)

	ref, err := NewActorInSystem(
		context.Background(), system, "anon-1", behavior, Anonymous,
	)
	require.NoError(t, err)

	_, ok := Get[*testMsg, string](system, "anon-1")
	require.False(t, ok)

	result := ref.Ask(context.Background(), newTestMsg("hi")).
		Await(context.Background())
	require.True(t, result.IsOk())
}

// TestNewActorInSystemPropagatesStartFailure verifies that a failing
// OnStart hook surfaces as an error from NewActorInSystem.
func TestNewActorInSystemPropagatesStartFailure(t *testing.T) {
	t.Parallel()

	system := NewActorSystem()
	defer func() { _ = system.Shutdown(context.Background()) }()

	wantErr := errors.New("boom")
	behavior := &startableBehavior{startErr: wantErr}

	_, err := NewActorInSystem[*testMsg, string](
		context.Background(), system, "fails-to-start", behavior, Tracked,
	)
	require.ErrorIs(t, err, wantErr)

	_, ok := Get[*testMsg, string](system, "fails-to-start")
	require.False(t, ok, "an actor that failed to start must not be tracked")
}

// TestGetReportsTypeMismatch verifies that Get returns false when the
// tracked actor's types don't match the requested type parameters.
func TestGetReportsTypeMismatch(t *testing.T) {
	t.Parallel()

	system := NewActorSystem()
	defer func() { _ = system.Shutdown(context.Background()) }()

	behavior := NewFunctionBehavior(
		func(ctx context.Context, msg *testMsgA) fn.Result[string] {
			return fn.Ok("ok")
		},
	)

	_, err := NewActorInSystem(
		context.Background(), system, "typed-1", behavior, Tracked,
	)
	require.NoError(t, err)

	_, ok := Get[*testMsgB, int](system, "typed-1")
	require.False(t, ok)
}

// TestActorSystemIdentityAndTermination exercises the system-level
// bookkeeping added for C4: a stable system ID and a Terminated flag that
// flips once Shutdown has run.
func TestActorSystemIdentityAndTermination(t *testing.T) {
	t.Parallel()

	system := NewActorSystem()
	require.NotEmpty(t, system.ID())
	require.False(t, system.Terminated())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, system.Shutdown(ctx))
	require.True(t, system.Terminated())
}
