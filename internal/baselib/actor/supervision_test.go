package actor

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/require"
)

// TestSpawnChildLinksParentAndChild verifies that SpawnChild registers the
// child with the system and records the parent/child edge in Supervisor.
func TestSpawnChildLinksParentAndChild(t *testing.T) {
	t.Parallel()

	system := NewActorSystem()
	defer func() { _ = system.Shutdown(context.Background()) }()

	parentKey := NewServiceKey[*testMsg, string]("parent")
	parentRef := RegisterWithSystem(system, "parent-1", parentKey,
		NewFunctionBehavior(func(ctx context.Context, msg *testMsg) fn.Result[string] {
			return fn.Ok("parent")
		}),
	)
	require.Equal(t, "parent-1", parentRef.ID())

	childKey := NewServiceKey[*testMsg, string]("child")
	childRef := SpawnChild(system, "parent-1", "child-1", childKey,
		NewFunctionBehavior(func(ctx context.Context, msg *testMsg) fn.Result[string] {
			return fn.Ok("child")
		}),
		nil,
	)

	result := childRef.Ask(context.Background(), newTestMsg("hi")).
		Await(context.Background())
	require.True(t, result.IsOk())

	parentID, ok := system.supervisor.ParentOf("child-1")
	require.True(t, ok)
	require.Equal(t, "parent-1", parentID)
}

// TestParentTerminationCascadesToChildren verifies that stopping a parent
// actor (via StopAndRemoveActor) also stops its supervised children.
func TestParentTerminationCascadesToChildren(t *testing.T) {
	t.Parallel()

	system := NewActorSystem()
	defer func() { _ = system.Shutdown(context.Background()) }()

	parentKey := NewServiceKey[*testMsg, string]("parent-cascade")
	_ = RegisterWithSystem(system, "parent-2", parentKey,
		NewFunctionBehavior(func(ctx context.Context, msg *testMsg) fn.Result[string] {
			return fn.Ok("parent")
		}),
	)

	var terminated atomic.Bool
	childKey := NewServiceKey[*testMsg, string]("child-cascade")
	childRef := SpawnChild(system, "parent-2", "child-2", childKey,
		NewFunctionBehavior(func(ctx context.Context, msg *testMsg) fn.Result[string] {
			return fn.Ok("child")
		}),
		func(childID string) {
			terminated.Store(true)
		},
	)

	require.True(t, system.StopAndRemoveActor("parent-2"))

	require.Eventually(t, terminated.Load, time.Second, 10*time.Millisecond,
		"child should terminate once its parent is stopped")

	result := childRef.Ask(context.Background(), newTestMsg("hi")).
		Await(context.Background())
	require.True(t, result.IsErr())
}

// TestStopChildrenWaitsForTermination verifies that StopChildren blocks
// until every supervised child has fully exited.
func TestStopChildrenWaitsForTermination(t *testing.T) {
	t.Parallel()

	system := NewActorSystem()
	defer func() { _ = system.Shutdown(context.Background()) }()

	parentKey := NewServiceKey[*testMsg, string]("parent-wait")
	_ = RegisterWithSystem(system, "parent-3", parentKey,
		NewFunctionBehavior(func(ctx context.Context, msg *testMsg) fn.Result[string] {
			return fn.Ok("parent")
		}),
	)

	for i := 0; i < 3; i++ {
		childKey := NewServiceKey[*testMsg, string]("child-wait")
		SpawnChild(system, "parent-3", "child-wait-"+string(rune('a'+i)),
			childKey,
			NewFunctionBehavior(func(ctx context.Context, msg *testMsg) fn.Result[string] {
				return fn.Ok("child")
			}),
			nil,
		)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	system.StopChildren(ctx, "parent-3")

	require.Empty(t, system.supervisor.snapshot("parent-3"))
}
