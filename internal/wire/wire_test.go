package wire

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFrameCodecRoundTrip(t *testing.T) {
	t.Parallel()

	codec := NewFrameCodec(0)
	var buf bytes.Buffer

	payloads := [][]byte{
		[]byte("hello"),
		{},
		bytes.Repeat([]byte{0xAB}, 4096),
	}

	for _, p := range payloads {
		require.NoError(t, codec.WriteFrame(&buf, p))
	}

	for _, want := range payloads {
		got, err := codec.ReadFrame(&buf)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestFrameCodecRejectsOversizedFrame(t *testing.T) {
	t.Parallel()

	codec := NewFrameCodec(4)
	var buf bytes.Buffer
	err := codec.WriteFrame(&buf, []byte("too big"))
	require.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestNodeIdentityRoundTrip(t *testing.T) {
	t.Parallel()

	started := time.Unix(1700000000, 0).UTC()
	ni := NodeIdentity{
		NodeID:             1,
		NodeTag:            "a",
		ApplicationVersion: "0.1.0",
		Addr:               "127.0.0.1:31101",
		StartedAt:          started,
		Peers: []RemoteNode{
			{NodeID: 2, Addr: "127.0.0.1:32101", Tag: "b", StartedAt: started},
		},
		Capabilities: Capabilities{
			Actors:   []string{"TestActor"},
			Messages: []string{"SetStatus"},
		},
	}

	got, err := DecodeNodeIdentity(ni.Encode())
	require.NoError(t, err)
	require.Equal(t, ni, got)
}

func TestSessionHandshakeRoundTrip(t *testing.T) {
	t.Parallel()

	started := time.Unix(1700000001, 0).UTC()
	h := SessionHandshake{
		NodeID:     2,
		NodeTag:    "b",
		Token:      []byte("tok"),
		ClientType: ClientTypeWorker,
		TraceID:    "trace-1",
		StartedAt:  started,
		Nodes: []RemoteNode{
			{NodeID: 1, Addr: "127.0.0.1:31101", Tag: "a", StartedAt: started},
		},
	}

	got, err := DecodeSessionHandshake(h.Encode())
	require.NoError(t, err)
	require.Equal(t, h, got)
}

func TestMessageRequestRoundTrip(t *testing.T) {
	t.Parallel()

	req := MessageRequest{
		MessageID:        "11111111-1111-1111-1111-111111111111",
		HandlerType:      "TestActor.SetStatus",
		ActorID:          "a1",
		OriginNodeID:     1,
		RequiresResponse: true,
		Message:          []byte{0x01, 0x02},
		TraceID:          "trace-2",
	}

	got, err := DecodeMessageRequest(req.Encode())
	require.NoError(t, err)
	require.Equal(t, req, got)
}

func TestClientEventRoundTrip(t *testing.T) {
	t.Parallel()

	events := []ClientEvent{
		{Kind: ClientKindPing, Ping: PingEvent{MessageID: "m1", NodeID: 1}},
		{Kind: ClientKindPong, Pong: PongEvent{MessageID: "m1"}},
		{Kind: ClientKindResult, Result: ClientResult{MessageID: "m2", Result: []byte("ok")}},
		{Kind: ClientKindErr, Err: ClientErr{MessageID: "m3", Error: ErrorProto{Code: "ActorUnavailable", Message: "nope"}}},
	}

	for _, want := range events {
		got, err := DecodeClientEvent(want.Encode())
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestSessionEventRoundTrip(t *testing.T) {
	t.Parallel()

	events := []SessionEvent{
		{Kind: SessionKindRaft},
		{Kind: SessionKindFindActor, FindActor: ActorAddress{ActorID: "a1"}},
		{
			Kind: SessionKindCreateActor,
			CreateActor: CreateActorEvent{
				MessageID: "m4", ActorID: "leon", ActorType: "TestActor",
				Recipe: []byte("recipe-bytes"),
			},
		},
	}

	for _, want := range events {
		got, err := DecodeSessionEvent(want.Encode())
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestActorAddressOptionalNodeID(t *testing.T) {
	t.Parallel()

	local := ActorAddress{ActorID: "leon"}
	got, err := DecodeActorAddress(local.Encode())
	require.NoError(t, err)
	require.Equal(t, local, got)
	require.False(t, got.HasNodeID)

	remote := ActorAddress{ActorID: "leon", NodeID: 2, HasNodeID: true}
	got, err = DecodeActorAddress(remote.Encode())
	require.NoError(t, err)
	require.Equal(t, remote, got)
}
