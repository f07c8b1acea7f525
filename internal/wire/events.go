package wire

import "fmt"

// ClientKind tags the variant of a ClientEvent (server -> client) frame.
type ClientKind byte

const (
	ClientKindIdentity ClientKind = iota + 1
	ClientKindHandshake
	ClientKindResult
	ClientKindErr
	ClientKindPing
	ClientKindPong
)

// ClientEvent is the server -> client half of the session protocol (§4.6):
// Identity, Handshake, Result(message_id, bytes), Err(message_id, error),
// Ping, Pong(message_id). Exactly one of the typed fields is populated,
// selected by Kind.
type ClientEvent struct {
	Kind      ClientKind
	Identity  NodeIdentity
	Handshake ClientHandshake
	Result    ClientResult
	Err       ClientErr
	Ping      PingEvent
	Pong      PongEvent
}

// Encode serializes the event as a one-byte kind tag followed by the
// protowire encoding of its active variant.
func (e ClientEvent) Encode() []byte {
	var payload []byte
	switch e.Kind {
	case ClientKindIdentity:
		payload = e.Identity.Encode()
	case ClientKindHandshake:
		payload = e.Handshake.Encode()
	case ClientKindResult:
		payload = e.Result.Encode()
	case ClientKindErr:
		payload = e.Err.Encode()
	case ClientKindPing:
		payload = e.Ping.Encode()
	case ClientKindPong:
		payload = e.Pong.Encode()
	}

	out := make([]byte, 0, len(payload)+1)
	out = append(out, byte(e.Kind))
	return append(out, payload...)
}

// DecodeClientEvent parses a ClientEvent frame produced by Encode.
func DecodeClientEvent(b []byte) (ClientEvent, error) {
	if len(b) == 0 {
		return ClientEvent{}, ErrTruncated
	}
	kind := ClientKind(b[0])
	body := b[1:]

	var (
		e   ClientEvent
		err error
	)
	e.Kind = kind
	switch kind {
	case ClientKindIdentity:
		e.Identity, err = DecodeNodeIdentity(body)
	case ClientKindHandshake:
		e.Handshake, err = DecodeSessionHandshake(body)
	case ClientKindResult:
		e.Result, err = DecodeClientResult(body)
	case ClientKindErr:
		e.Err, err = DecodeClientErr(body)
	case ClientKindPing:
		e.Ping, err = DecodePingEvent(body)
	case ClientKindPong:
		e.Pong, err = DecodePongEvent(body)
	default:
		return ClientEvent{}, fmt.Errorf("%w: %d", ErrUnknownEventKind, kind)
	}
	return e, err
}

// SessionKind tags the variant of a SessionEvent (client -> server) frame.
type SessionKind byte

const (
	SessionKindIdentify SessionKind = iota + 1
	SessionKindHandshake
	SessionKindFindActor
	SessionKindRegisterActor
	SessionKindNotifyActor
	SessionKindCreateActor
	SessionKindStreamPublish
	SessionKindPing
	SessionKindPong
	SessionKindResult
	SessionKindErr
	SessionKindRaft
)

// SessionEvent is the client -> server half of the session protocol:
// Identify, Handshake, FindActor, RegisterActor, NotifyActor, CreateActor,
// StreamPublish, Ping, Pong, Result, Err, and the reserved-but-unused Raft
// placeholder.
type SessionEvent struct {
	Kind          SessionKind
	Handshake     SessionHandshake
	FindActor     ActorAddress
	RegisterActor ActorAddress
	NotifyActor   MessageRequest
	CreateActor   CreateActorEvent
	StreamPublish MessageRequest
	Ping          PingEvent
	Pong          PongEvent
	Result        ClientResult
	Err           ClientErr
}

// Encode serializes the event as a one-byte kind tag followed by the
// protowire encoding of its active variant. Identify and Raft carry no
// payload: Identify is implicit (the server sends Identity first; the
// client's Identify, if ever needed, is an empty frame), and Raft is
// reserved-but-unused per the session schema's open question.
func (e SessionEvent) Encode() []byte {
	var payload []byte
	switch e.Kind {
	case SessionKindIdentify, SessionKindRaft:
		// No payload.
	case SessionKindHandshake:
		payload = e.Handshake.Encode()
	case SessionKindFindActor:
		payload = e.FindActor.Encode()
	case SessionKindRegisterActor:
		payload = e.RegisterActor.Encode()
	case SessionKindNotifyActor:
		payload = e.NotifyActor.Encode()
	case SessionKindCreateActor:
		payload = e.CreateActor.Encode()
	case SessionKindStreamPublish:
		payload = e.StreamPublish.Encode()
	case SessionKindPing:
		payload = e.Ping.Encode()
	case SessionKindPong:
		payload = e.Pong.Encode()
	case SessionKindResult:
		payload = e.Result.Encode()
	case SessionKindErr:
		payload = e.Err.Encode()
	}

	out := make([]byte, 0, len(payload)+1)
	out = append(out, byte(e.Kind))
	return append(out, payload...)
}

// DecodeSessionEvent parses a SessionEvent frame produced by Encode.
func DecodeSessionEvent(b []byte) (SessionEvent, error) {
	if len(b) == 0 {
		return SessionEvent{}, ErrTruncated
	}
	kind := SessionKind(b[0])
	body := b[1:]

	var (
		e   SessionEvent
		err error
	)
	e.Kind = kind
	switch kind {
	case SessionKindIdentify, SessionKindRaft:
		// No payload.
	case SessionKindHandshake:
		e.Handshake, err = DecodeSessionHandshake(body)
	case SessionKindFindActor:
		e.FindActor, err = DecodeActorAddress(body)
	case SessionKindRegisterActor:
		e.RegisterActor, err = DecodeActorAddress(body)
	case SessionKindNotifyActor:
		e.NotifyActor, err = DecodeMessageRequest(body)
	case SessionKindCreateActor:
		e.CreateActor, err = DecodeCreateActorEvent(body)
	case SessionKindStreamPublish:
		e.StreamPublish, err = DecodeMessageRequest(body)
	case SessionKindPing:
		e.Ping, err = DecodePingEvent(body)
	case SessionKindPong:
		e.Pong, err = DecodePongEvent(body)
	case SessionKindResult:
		e.Result, err = DecodeClientResult(body)
	case SessionKindErr:
		e.Err, err = DecodeClientErr(body)
	default:
		return SessionEvent{}, fmt.Errorf("%w: %d", ErrUnknownEventKind, kind)
	}
	return e, err
}
