package wire

import "errors"

var (
	// ErrFrameTooLarge indicates a frame's payload exceeds the codec's
	// configured maximum size, on either the write or read side.
	ErrFrameTooLarge = errors.New("wire: frame too large")

	// ErrTruncated indicates a protowire-encoded payload ended before a
	// field's value could be fully consumed.
	ErrTruncated = errors.New("wire: truncated message")

	// ErrUnknownEventKind indicates a SessionEvent/ClientEvent frame's
	// leading kind byte didn't match any known variant.
	ErrUnknownEventKind = errors.New("wire: unknown event kind")
)
