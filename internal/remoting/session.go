package remoting

import (
	"context"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/lattice-run/lattice/internal/wire"
)

// SessionState tracks a RemoteSession's position in the Accepted ->
// Identified -> Handshaken -> Live -> Closed lifecycle (§3).
type SessionState int

const (
	SessionAccepted SessionState = iota
	SessionIdentified
	SessionHandshaken
	SessionLive
	SessionClosed
)

// RemoteSession owns one accepted inbound TCP connection: its framed
// reader/writer and a cancellation token for the background reader
// goroutine (§4.8). One RemoteSession exists per accepted connection,
// retained by a SessionStore under its session id.
type RemoteSession struct {
	ID       string
	RemoteIP string
	NodeID   uint64 // populated once the handshake names the peer.

	conn  net.Conn
	codec *wire.FrameCodec

	writeMu sync.Mutex
	stateMu sync.Mutex
	state   SessionState

	ctx    context.Context
	cancel context.CancelFunc
}

// NewRemoteSession wraps an accepted connection as a RemoteSession in the
// Accepted state.
func NewRemoteSession(parent context.Context, conn net.Conn, codec *wire.FrameCodec) *RemoteSession {
	ctx, cancel := context.WithCancel(parent)

	host, _, _ := net.SplitHostPort(conn.RemoteAddr().String())

	return &RemoteSession{
		ID:       uuid.NewString(),
		RemoteIP: host,
		conn:     conn,
		codec:    codec,
		state:    SessionAccepted,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// State returns the session's current lifecycle state.
func (s *RemoteSession) State() SessionState {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

// SetState transitions the session's lifecycle state.
func (s *RemoteSession) SetState(state SessionState) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.state = state
}

// Send writes a ClientEvent (server -> client direction) to the session's
// connection, serializing concurrent writers.
func (s *RemoteSession) Send(event wire.ClientEvent) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.codec.WriteFrame(s.conn, event.Encode())
}

// ReadLoop blocks reading SessionEvent frames and invoking onEvent for
// each, until the connection errors, closes, or the session's context is
// cancelled.
func (s *RemoteSession) ReadLoop(onEvent func(wire.SessionEvent)) error {
	go func() {
		<-s.ctx.Done()
		_ = s.conn.Close()
	}()

	for {
		frame, err := s.codec.ReadFrame(s.conn)
		if err != nil {
			return err
		}
		event, err := wire.DecodeSessionEvent(frame)
		if err != nil {
			log.WarnS(s.ctx, "dropping malformed session event", err,
				"session_id", s.ID)
			continue
		}
		onEvent(event)
	}
}

// Close cancels the session's context (triggering the reader goroutine to
// close the connection) and marks it Closed.
func (s *RemoteSession) Close() {
	s.SetState(SessionClosed)
	s.cancel()
}
