package remoting

import (
	"context"
	"net"
	"sync"

	"github.com/lattice-run/lattice/internal/errs"
	"github.com/lattice-run/lattice/internal/wire"
)

// HandshakeHandler supplies the node-identity and membership logic a Server
// needs to drive the handshake sequence (§4.6) without remoting depending
// on the cluster package. Identity returns the frame sent immediately on
// accept (step 1); OnHandshake processes the client's reply (step 2) and
// returns the server's own reply (step 3), including any NAT address
// rewrite the implementer chooses to apply.
type HandshakeHandler interface {
	Identity() wire.NodeIdentity
	OnHandshake(remoteIP string, hs wire.SessionHandshake) wire.ClientHandshake
}

// PingObserver is notified of inbound Ping frames so the cluster's
// heartbeat bookkeeping can mark a peer live (or, if SystemTerminated is
// set, primed for prompt termination) without remoting depending on the
// cluster package.
type PingObserver func(nodeID uint64, systemTerminated bool)

// Server accepts inbound TCP connections, drives the handshake on each,
// and dispatches RPC/heartbeat frames arriving afterward (§4.8).
type Server struct {
	nodeID    uint64
	codec     *wire.FrameCodec
	store     *SessionStore
	handlers  *HandlerRegistry
	handshake HandshakeHandler
	onPing    PingObserver

	listener net.Listener
	wg       sync.WaitGroup

	closeOnce sync.Once
	closed    chan struct{}
}

// NewServer constructs a Server. handlers may be nil if this node never
// dispatches inbound RPCs (pure client).
func NewServer(nodeID uint64, handshake HandshakeHandler, handlers *HandlerRegistry, onPing PingObserver) *Server {
	if handlers == nil {
		handlers = NewHandlerRegistry()
	}
	return &Server{
		nodeID:    nodeID,
		codec:     wire.NewFrameCodec(0),
		store:     NewSessionStore(nil),
		handlers:  handlers,
		handshake: handshake,
		onPing:    onPing,
		closed:    make(chan struct{}),
	}
}

// Listen binds addr ("" port selects an ephemeral port, useful for tests).
func (s *Server) Listen(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = listener
	return nil
}

// Addr returns the bound listen address; valid only after Listen succeeds.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Sessions exposes the server's SessionStore, e.g. for shutdown or
// diagnostics.
func (s *Server) Sessions() *SessionStore { return s.store }

// Serve blocks accepting connections until the listener is closed. Run it
// in its own goroutine.
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.closed:
				return nil
			default:
				return err
			}
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()

	sess := NewRemoteSession(context.Background(), conn, s.codec)
	s.store.Add(sess)
	defer s.store.SessionClosed(sess.ID)

	if err := sess.Send(wire.ClientEvent{
		Kind:     wire.ClientKindIdentity,
		Identity: s.handshake.Identity(),
	}); err != nil {
		log.WarnS(context.Background(), "failed to send identity", err,
			"session_id", sess.ID)
		return
	}
	sess.SetState(SessionIdentified)

	_ = sess.ReadLoop(func(event wire.SessionEvent) {
		s.handleEvent(sess, event)
	})
}

func (s *Server) handleEvent(sess *RemoteSession, event wire.SessionEvent) {
	switch event.Kind {
	case wire.SessionKindHandshake:
		sess.SetState(SessionHandshaken)
		sess.NodeID = event.Handshake.NodeID
		reply := s.handshake.OnHandshake(sess.RemoteIP, event.Handshake)
		if err := sess.Send(wire.ClientEvent{
			Kind:      wire.ClientKindHandshake,
			Handshake: reply,
		}); err != nil {
			log.WarnS(context.Background(), "failed to send handshake reply",
				err, "session_id", sess.ID)
			return
		}
		sess.SetState(SessionLive)

	case wire.SessionKindNotifyActor, wire.SessionKindStreamPublish:
		req := event.NotifyActor
		if event.Kind == wire.SessionKindStreamPublish {
			req = event.StreamPublish
		}
		go s.dispatchRequest(sess, req)

	case wire.SessionKindPing:
		if s.onPing != nil {
			s.onPing(sess.NodeID, event.Ping.SystemTerminated)
		}
		if err := sess.Send(wire.ClientEvent{
			Kind: wire.ClientKindPong,
			Pong: wire.PongEvent{MessageID: event.Ping.MessageID},
		}); err != nil {
			log.WarnS(context.Background(), "failed to send pong", err,
				"session_id", sess.ID)
		}

	case wire.SessionKindIdentify, wire.SessionKindFindActor,
		wire.SessionKindRegisterActor, wire.SessionKindCreateActor,
		wire.SessionKindResult, wire.SessionKindErr, wire.SessionKindRaft:
		// FindActor/RegisterActor/CreateActor are handled by the
		// sharding layer's own dispatcher registrations (they arrive
		// as ordinary NotifyActor requests once routed); Raft is a
		// reserved no-op placeholder per the session schema's open
		// question. Result/Err never originate from a client in the
		// server role.

	default:
		log.WarnS(context.Background(), "unhandled session event kind", nil,
			"kind", int(event.Kind), "session_id", sess.ID)
	}
}

func (s *Server) dispatchRequest(sess *RemoteSession, req wire.MessageRequest) {
	ctx := context.Background()
	result, err := s.handlers.Dispatch(ctx, req.HandlerType, req.ActorID, req.Message)

	if !req.RequiresResponse {
		return
	}

	var sendErr error
	if err != nil {
		sendErr = sess.Send(wire.ClientEvent{
			Kind: wire.ClientKindErr,
			Err: wire.ClientErr{
				MessageID: req.MessageID,
				Error:     wire.ErrorProto{Code: errs.Code(err), Message: err.Error()},
			},
		})
	} else {
		sendErr = sess.Send(wire.ClientEvent{
			Kind:   wire.ClientKindResult,
			Result: wire.ClientResult{MessageID: req.MessageID, Result: result},
		})
	}
	if sendErr != nil {
		log.WarnS(ctx, "failed to send RPC reply", sendErr,
			"session_id", sess.ID, "message_id", req.MessageID)
	}
}

// Close stops accepting new connections and closes every retained session.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		if s.listener != nil {
			_ = s.listener.Close()
		}
		s.store.CloseAll()
	})
	s.wg.Wait()
	return nil
}
