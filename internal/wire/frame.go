// Package wire implements the length-prefixed frame codec and the session
// wire schema (handshake, RPC, heartbeat, shard-creation messages) that flow
// between lattice nodes over a raw TCP stream.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// DefaultMaxFrameSize bounds a single frame's payload: large enough for a
// control message plus one user payload, small enough that a corrupted
// length prefix can't make a peer allocate an unbounded buffer.
const DefaultMaxFrameSize = 16 * 1024 * 1024

// lengthPrefixSize is the width of the frame's length prefix in bytes.
const lengthPrefixSize = 4

// FrameCodec reads and writes length-prefixed frames: a 4-byte unsigned
// big-endian payload length followed by that many payload bytes. One
// ReadFrame call yields exactly one frame; it reads with io.ReadFull, so a
// frame that arrives split across several reads of the io.Reader (such as a
// raw net.Conn) is reassembled.
type FrameCodec struct {
	maxFrameSize uint32
}

// NewFrameCodec builds a FrameCodec with the given maximum frame size. A
// maxFrameSize of 0 selects DefaultMaxFrameSize.
func NewFrameCodec(maxFrameSize uint32) *FrameCodec {
	if maxFrameSize == 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	return &FrameCodec{maxFrameSize: maxFrameSize}
}

// WriteFrame writes one length-prefixed frame to w.
func (c *FrameCodec) WriteFrame(w io.Writer, payload []byte) error {
	if uint32(len(payload)) > c.maxFrameSize {
		return fmt.Errorf("%w: payload %d bytes exceeds max %d",
			ErrFrameTooLarge, len(payload), c.maxFrameSize)
	}

	var prefix [lengthPrefixSize]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(payload)))

	if _, err := w.Write(prefix[:]); err != nil {
		return fmt.Errorf("writing frame length: %w", err)
	}
	if len(payload) == 0 {
		return nil
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("writing frame payload: %w", err)
	}
	return nil
}

// ReadFrame reads and returns exactly one frame's payload from r, blocking
// until the full frame has arrived or r returns an error.
func (c *FrameCodec) ReadFrame(r io.Reader) ([]byte, error) {
	var prefix [lengthPrefixSize]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, err
	}

	frameLen := binary.BigEndian.Uint32(prefix[:])
	if frameLen > c.maxFrameSize {
		return nil, fmt.Errorf("%w: declared length %d exceeds max %d",
			ErrFrameTooLarge, frameLen, c.maxFrameSize)
	}
	if frameLen == 0 {
		return []byte{}, nil
	}

	payload := make([]byte, frameLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("reading frame payload: %w", err)
	}
	return payload, nil
}
