package wire

import (
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

// The session schema is hand-encoded over google.golang.org/protobuf's
// encoding/protowire primitives rather than generated from a .proto file:
// the spec's RPC layer is a bespoke length-prefixed session protocol, not
// gRPC's HTTP/2 framing, so there is no .proto source to codegen from. Field
// numbers below are a fixed, hand-maintained schema and must not be
// reordered once a node version has shipped them on the wire.

// ClientType distinguishes a worker node's handshake from an observer/tool
// client's, mirroring SessionHandshake.client_type.
type ClientType uint64

const (
	ClientTypeWorker ClientType = 0
	ClientTypeClient ClientType = 1
)

// RemoteNode is the wire projection of a cluster peer, exchanged during the
// handshake and in gossip payloads.
type RemoteNode struct {
	NodeID    uint64
	Addr      string
	Tag       string
	StartedAt time.Time
}

const (
	fieldRemoteNodeID        protowire.Number = 1
	fieldRemoteNodeAddr      protowire.Number = 2
	fieldRemoteNodeTag       protowire.Number = 3
	fieldRemoteNodeStartedAt protowire.Number = 4
)

// Encode appends the protowire encoding of n to b and returns the result.
func (n RemoteNode) Encode(b []byte) []byte {
	b = appendUint64(b, fieldRemoteNodeID, n.NodeID)
	b = appendString(b, fieldRemoteNodeAddr, n.Addr)
	b = appendString(b, fieldRemoteNodeTag, n.Tag)
	b = appendTime(b, fieldRemoteNodeStartedAt, n.StartedAt)
	return b
}

// DecodeRemoteNode decodes a RemoteNode from its protowire encoding.
func DecodeRemoteNode(b []byte) (RemoteNode, error) {
	var n RemoteNode
	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		switch num {
		case fieldRemoteNodeID:
			val, m, err := consumeVarint(typ, v)
			n.NodeID = val
			return m, err
		case fieldRemoteNodeAddr:
			val, m, err := consumeString(typ, v)
			n.Addr = val
			return m, err
		case fieldRemoteNodeTag:
			val, m, err := consumeString(typ, v)
			n.Tag = val
			return m, err
		case fieldRemoteNodeStartedAt:
			val, m, err := consumeVarint(typ, v)
			n.StartedAt = time.Unix(0, int64(val)).UTC()
			return m, err
		default:
			return skipField(typ, v)
		}
	})
	return n, err
}

// Capabilities advertises the actor and message type names a node can
// dispatch, sent as part of NodeIdentity.
type Capabilities struct {
	Actors   []string
	Messages []string
}

const (
	fieldCapabilitiesActors   protowire.Number = 1
	fieldCapabilitiesMessages protowire.Number = 2
)

func (c Capabilities) Encode(b []byte) []byte {
	for _, a := range c.Actors {
		b = appendString(b, fieldCapabilitiesActors, a)
	}
	for _, m := range c.Messages {
		b = appendString(b, fieldCapabilitiesMessages, m)
	}
	return b
}

func decodeCapabilities(b []byte) (Capabilities, error) {
	var c Capabilities
	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		switch num {
		case fieldCapabilitiesActors:
			val, m, err := consumeString(typ, v)
			c.Actors = append(c.Actors, val)
			return m, err
		case fieldCapabilitiesMessages:
			val, m, err := consumeString(typ, v)
			c.Messages = append(c.Messages, val)
			return m, err
		default:
			return skipField(typ, v)
		}
	})
	return c, err
}

// NodeIdentity is the first frame a server sends on an accepted connection
// (§4.6 step 1).
type NodeIdentity struct {
	NodeID             uint64
	NodeTag            string
	ApplicationVersion string
	Addr               string
	StartedAt          time.Time
	Peers              []RemoteNode
	Capabilities       Capabilities
}

const (
	fieldIdentityNodeID      protowire.Number = 1
	fieldIdentityNodeTag     protowire.Number = 2
	fieldIdentityAppVersion  protowire.Number = 3
	fieldIdentityAddr        protowire.Number = 4
	fieldIdentityStartedAt   protowire.Number = 5
	fieldIdentityPeers       protowire.Number = 6
	fieldIdentityCapabilites protowire.Number = 7
)

func (ni NodeIdentity) Encode() []byte {
	var b []byte
	b = appendUint64(b, fieldIdentityNodeID, ni.NodeID)
	b = appendString(b, fieldIdentityNodeTag, ni.NodeTag)
	b = appendString(b, fieldIdentityAppVersion, ni.ApplicationVersion)
	b = appendString(b, fieldIdentityAddr, ni.Addr)
	b = appendTime(b, fieldIdentityStartedAt, ni.StartedAt)
	for _, p := range ni.Peers {
		b = appendMessage(b, fieldIdentityPeers, p.Encode(nil))
	}
	b = appendMessage(b, fieldIdentityCapabilites, ni.Capabilities.Encode(nil))
	return b
}

func DecodeNodeIdentity(b []byte) (NodeIdentity, error) {
	var ni NodeIdentity
	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		switch num {
		case fieldIdentityNodeID:
			val, m, err := consumeVarint(typ, v)
			ni.NodeID = val
			return m, err
		case fieldIdentityNodeTag:
			val, m, err := consumeString(typ, v)
			ni.NodeTag = val
			return m, err
		case fieldIdentityAppVersion:
			val, m, err := consumeString(typ, v)
			ni.ApplicationVersion = val
			return m, err
		case fieldIdentityAddr:
			val, m, err := consumeString(typ, v)
			ni.Addr = val
			return m, err
		case fieldIdentityStartedAt:
			val, m, err := consumeVarint(typ, v)
			ni.StartedAt = time.Unix(0, int64(val)).UTC()
			return m, err
		case fieldIdentityPeers:
			raw, m, err := consumeBytes(typ, v)
			if err != nil {
				return m, err
			}
			peer, err := DecodeRemoteNode(raw)
			if err != nil {
				return m, err
			}
			ni.Peers = append(ni.Peers, peer)
			return m, nil
		case fieldIdentityCapabilites:
			raw, m, err := consumeBytes(typ, v)
			if err != nil {
				return m, err
			}
			caps, err := decodeCapabilities(raw)
			ni.Capabilities = caps
			return m, err
		default:
			return skipField(typ, v)
		}
	})
	return ni, err
}

// SessionHandshake is the client's reply to NodeIdentity (§4.6 step 2) and
// also the form the server replies with in step 3 (as ClientHandshake,
// field-for-field identical minus the token/client_type/trace_id that only
// make sense on the client->server leg).
type SessionHandshake struct {
	NodeID     uint64
	NodeTag    string
	Token      []byte
	ClientType ClientType
	TraceID    string
	StartedAt  time.Time
	Nodes      []RemoteNode
}

const (
	fieldHandshakeNodeID     protowire.Number = 1
	fieldHandshakeNodeTag    protowire.Number = 2
	fieldHandshakeToken      protowire.Number = 3
	fieldHandshakeClientType protowire.Number = 4
	fieldHandshakeTraceID    protowire.Number = 5
	fieldHandshakeStartedAt  protowire.Number = 6
	fieldHandshakeNodes      protowire.Number = 7
)

func (h SessionHandshake) Encode() []byte {
	var b []byte
	b = appendUint64(b, fieldHandshakeNodeID, h.NodeID)
	b = appendString(b, fieldHandshakeNodeTag, h.NodeTag)
	b = appendBytes(b, fieldHandshakeToken, h.Token)
	b = appendUint64(b, fieldHandshakeClientType, uint64(h.ClientType))
	b = appendString(b, fieldHandshakeTraceID, h.TraceID)
	b = appendTime(b, fieldHandshakeStartedAt, h.StartedAt)
	for _, n := range h.Nodes {
		b = appendMessage(b, fieldHandshakeNodes, n.Encode(nil))
	}
	return b
}

func DecodeSessionHandshake(b []byte) (SessionHandshake, error) {
	var h SessionHandshake
	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		switch num {
		case fieldHandshakeNodeID:
			val, m, err := consumeVarint(typ, v)
			h.NodeID = val
			return m, err
		case fieldHandshakeNodeTag:
			val, m, err := consumeString(typ, v)
			h.NodeTag = val
			return m, err
		case fieldHandshakeToken:
			val, m, err := consumeBytes(typ, v)
			h.Token = val
			return m, err
		case fieldHandshakeClientType:
			val, m, err := consumeVarint(typ, v)
			h.ClientType = ClientType(val)
			return m, err
		case fieldHandshakeTraceID:
			val, m, err := consumeString(typ, v)
			h.TraceID = val
			return m, err
		case fieldHandshakeStartedAt:
			val, m, err := consumeVarint(typ, v)
			h.StartedAt = time.Unix(0, int64(val)).UTC()
			return m, err
		case fieldHandshakeNodes:
			raw, m, err := consumeBytes(typ, v)
			if err != nil {
				return m, err
			}
			node, err := DecodeRemoteNode(raw)
			if err != nil {
				return m, err
			}
			h.Nodes = append(h.Nodes, node)
			return m, nil
		default:
			return skipField(typ, v)
		}
	})
	return h, err
}

// ClientHandshake is the server's step-3 reply; it reuses SessionHandshake's
// layout (node_id, node_tag, started_at, nodes) since the spec defines it as
// field-identical.
type ClientHandshake = SessionHandshake

// MessageRequest carries an RPC call's envelope: the target actor, the
// handler to deserialize/dispatch/serialize with, and the opaque payload.
type MessageRequest struct {
	MessageID        string
	HandlerType      string
	ActorID          string
	OriginNodeID     uint64
	RequiresResponse bool
	Message          []byte
	TraceID          string
}

const (
	fieldRequestMessageID   protowire.Number = 1
	fieldRequestHandlerType protowire.Number = 2
	fieldRequestActorID     protowire.Number = 3
	fieldRequestOriginNode  protowire.Number = 4
	fieldRequestRequiresRsp protowire.Number = 5
	fieldRequestMessage     protowire.Number = 6
	fieldRequestTraceID     protowire.Number = 7
)

func (r MessageRequest) Encode() []byte {
	var b []byte
	b = appendString(b, fieldRequestMessageID, r.MessageID)
	b = appendString(b, fieldRequestHandlerType, r.HandlerType)
	b = appendString(b, fieldRequestActorID, r.ActorID)
	b = appendUint64(b, fieldRequestOriginNode, r.OriginNodeID)
	b = appendBool(b, fieldRequestRequiresRsp, r.RequiresResponse)
	b = appendBytes(b, fieldRequestMessage, r.Message)
	b = appendString(b, fieldRequestTraceID, r.TraceID)
	return b
}

func DecodeMessageRequest(b []byte) (MessageRequest, error) {
	var r MessageRequest
	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		switch num {
		case fieldRequestMessageID:
			val, m, err := consumeString(typ, v)
			r.MessageID = val
			return m, err
		case fieldRequestHandlerType:
			val, m, err := consumeString(typ, v)
			r.HandlerType = val
			return m, err
		case fieldRequestActorID:
			val, m, err := consumeString(typ, v)
			r.ActorID = val
			return m, err
		case fieldRequestOriginNode:
			val, m, err := consumeVarint(typ, v)
			r.OriginNodeID = val
			return m, err
		case fieldRequestRequiresRsp:
			val, m, err := consumeVarint(typ, v)
			r.RequiresResponse = val != 0
			return m, err
		case fieldRequestMessage:
			val, m, err := consumeBytes(typ, v)
			r.Message = val
			return m, err
		case fieldRequestTraceID:
			val, m, err := consumeString(typ, v)
			r.TraceID = val
			return m, err
		default:
			return skipField(typ, v)
		}
	})
	return r, err
}

// ClientResult carries a successful RPC reply keyed by MessageID.
type ClientResult struct {
	MessageID string
	Result    []byte
}

const (
	fieldResultMessageID protowire.Number = 1
	fieldResultBytes     protowire.Number = 2
)

func (r ClientResult) Encode() []byte {
	var b []byte
	b = appendString(b, fieldResultMessageID, r.MessageID)
	b = appendBytes(b, fieldResultBytes, r.Result)
	return b
}

func DecodeClientResult(b []byte) (ClientResult, error) {
	var r ClientResult
	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		switch num {
		case fieldResultMessageID:
			val, m, err := consumeString(typ, v)
			r.MessageID = val
			return m, err
		case fieldResultBytes:
			val, m, err := consumeBytes(typ, v)
			r.Result = val
			return m, err
		default:
			return skipField(typ, v)
		}
	})
	return r, err
}

// ErrorProto is the wire projection of a lattice error: a stable code (see
// internal/errs.Code) plus a human-readable message.
type ErrorProto struct {
	Code    string
	Message string
}

const (
	fieldErrorCode    protowire.Number = 1
	fieldErrorMessage protowire.Number = 2
)

func (e ErrorProto) Encode(b []byte) []byte {
	b = appendString(b, fieldErrorCode, e.Code)
	b = appendString(b, fieldErrorMessage, e.Message)
	return b
}

func decodeErrorProto(b []byte) (ErrorProto, error) {
	var e ErrorProto
	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		switch num {
		case fieldErrorCode:
			val, m, err := consumeString(typ, v)
			e.Code = val
			return m, err
		case fieldErrorMessage:
			val, m, err := consumeString(typ, v)
			e.Message = val
			return m, err
		default:
			return skipField(typ, v)
		}
	})
	return e, err
}

// ClientErr carries a failed RPC reply keyed by MessageID.
type ClientErr struct {
	MessageID string
	Error     ErrorProto
}

const (
	fieldClientErrMessageID protowire.Number = 1
	fieldClientErrError     protowire.Number = 2
)

func (e ClientErr) Encode() []byte {
	var b []byte
	b = appendString(b, fieldClientErrMessageID, e.MessageID)
	b = appendMessage(b, fieldClientErrError, e.Error.Encode(nil))
	return b
}

func DecodeClientErr(b []byte) (ClientErr, error) {
	var e ClientErr
	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		switch num {
		case fieldClientErrMessageID:
			val, m, err := consumeString(typ, v)
			e.MessageID = val
			return m, err
		case fieldClientErrError:
			raw, m, err := consumeBytes(typ, v)
			if err != nil {
				return m, err
			}
			ep, err := decodeErrorProto(raw)
			e.Error = ep
			return m, err
		default:
			return skipField(typ, v)
		}
	})
	return e, err
}

// PingEvent is sent by every node at the heartbeat interval to every peer.
type PingEvent struct {
	MessageID        string
	NodeID           uint64
	SystemTerminated bool
}

const (
	fieldPingMessageID protowire.Number = 1
	fieldPingNodeID    protowire.Number = 2
	fieldPingTerm      protowire.Number = 3
)

func (p PingEvent) Encode() []byte {
	var b []byte
	b = appendString(b, fieldPingMessageID, p.MessageID)
	b = appendUint64(b, fieldPingNodeID, p.NodeID)
	b = appendBool(b, fieldPingTerm, p.SystemTerminated)
	return b
}

func DecodePingEvent(b []byte) (PingEvent, error) {
	var p PingEvent
	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		switch num {
		case fieldPingMessageID:
			val, m, err := consumeString(typ, v)
			p.MessageID = val
			return m, err
		case fieldPingNodeID:
			val, m, err := consumeVarint(typ, v)
			p.NodeID = val
			return m, err
		case fieldPingTerm:
			val, m, err := consumeVarint(typ, v)
			p.SystemTerminated = val != 0
			return m, err
		default:
			return skipField(typ, v)
		}
	})
	return p, err
}

// PongEvent replies to a PingEvent, correlated by MessageID.
type PongEvent struct {
	MessageID string
}

const fieldPongMessageID protowire.Number = 1

func (p PongEvent) Encode() []byte {
	return appendString(nil, fieldPongMessageID, p.MessageID)
}

func DecodePongEvent(b []byte) (PongEvent, error) {
	var p PongEvent
	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		switch num {
		case fieldPongMessageID:
			val, m, err := consumeString(typ, v)
			p.MessageID = val
			return m, err
		default:
			return skipField(typ, v)
		}
	})
	return p, err
}

// CreateActorEvent asks the remote node to construct a new entity actor from
// a Recipe, used by the sharding layer when an entity doesn't exist yet on
// its assigned host.
type CreateActorEvent struct {
	MessageID string
	ActorID   string
	ActorType string
	Recipe    []byte
}

const (
	fieldCreateMessageID protowire.Number = 1
	fieldCreateActorID   protowire.Number = 2
	fieldCreateActorType protowire.Number = 3
	fieldCreateRecipe    protowire.Number = 4
)

func (c CreateActorEvent) Encode() []byte {
	var b []byte
	b = appendString(b, fieldCreateMessageID, c.MessageID)
	b = appendString(b, fieldCreateActorID, c.ActorID)
	b = appendString(b, fieldCreateActorType, c.ActorType)
	b = appendBytes(b, fieldCreateRecipe, c.Recipe)
	return b
}

func DecodeCreateActorEvent(b []byte) (CreateActorEvent, error) {
	var c CreateActorEvent
	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		switch num {
		case fieldCreateMessageID:
			val, m, err := consumeString(typ, v)
			c.MessageID = val
			return m, err
		case fieldCreateActorID:
			val, m, err := consumeString(typ, v)
			c.ActorID = val
			return m, err
		case fieldCreateActorType:
			val, m, err := consumeString(typ, v)
			c.ActorType = val
			return m, err
		case fieldCreateRecipe:
			val, m, err := consumeBytes(typ, v)
			c.Recipe = val
			return m, err
		default:
			return skipField(typ, v)
		}
	})
	return c, err
}

// ActorAddress names an actor and, optionally, the node that hosts it; a
// zero NodeID with HasNodeID false means "resolve locally."
type ActorAddress struct {
	ActorID   string
	NodeID    uint64
	HasNodeID bool
}

const (
	fieldAddressActorID protowire.Number = 1
	fieldAddressNodeID  protowire.Number = 2
)

func (a ActorAddress) Encode() []byte {
	var b []byte
	b = appendString(b, fieldAddressActorID, a.ActorID)
	if a.HasNodeID {
		b = appendUint64(b, fieldAddressNodeID, a.NodeID)
	}
	return b
}

func DecodeActorAddress(b []byte) (ActorAddress, error) {
	var a ActorAddress
	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		switch num {
		case fieldAddressActorID:
			val, m, err := consumeString(typ, v)
			a.ActorID = val
			return m, err
		case fieldAddressNodeID:
			val, m, err := consumeVarint(typ, v)
			a.NodeID = val
			a.HasNodeID = true
			return m, err
		default:
			return skipField(typ, v)
		}
	})
	return a, err
}
