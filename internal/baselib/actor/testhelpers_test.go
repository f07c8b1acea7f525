package actor

// testMsg is the general-purpose message type shared by most tests in this
// package that don't need a distinct type of their own.
type testMsg struct {
	BaseMessage
	value string
}

func (m *testMsg) MessageType() string {
	return "testMsg"
}

// newTestMsg constructs a testMsg carrying value.
func newTestMsg(value string) *testMsg {
	return &testMsg{value: value}
}

// firstActorStrategy is a RoutingStrategy that always picks the first
// candidate, used to verify that ServiceKey.Ref honors WithStrategy.
type firstActorStrategy[M Message, R any] struct{}

func (s *firstActorStrategy[M, R]) Select(candidates []ActorRef[M, R]) ActorRef[M, R] {
	return candidates[0]
}
