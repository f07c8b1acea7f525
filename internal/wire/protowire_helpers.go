package wire

import (
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

// appendString appends a tagged, length-prefixed UTF-8 field. Zero-value
// fields are omitted, matching proto3 implicit presence.
func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, []byte(s))
}

// appendBytes appends a tagged, length-prefixed byte field.
func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

// appendUint64 appends a tagged varint field.
func appendUint64(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

// appendBool appends a tagged varint boolean field.
func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, 1)
}

// appendTime appends a timestamp as a varint of UnixNano.
func appendTime(b []byte, num protowire.Number, t time.Time) []byte {
	if t.IsZero() {
		return b
	}
	return appendUint64(b, num, uint64(t.UnixNano()))
}

// appendMessage appends a tagged, length-prefixed nested message.
func appendMessage(b []byte, num protowire.Number, nested []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, nested)
}

// consumeFields walks every top-level tag in b, invoking fn with the
// remaining bytes positioned just past the tag. fn must return the number
// of bytes its field's value occupied (as reported by the matching
// protowire.Consume* call) so the walk can advance.
func consumeFields(b []byte, fn func(num protowire.Number, typ protowire.Type, v []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return ErrTruncated
		}
		b = b[n:]

		consumed, err := fn(num, typ, b)
		if err != nil {
			return err
		}
		if consumed < 0 || consumed > len(b) {
			return ErrTruncated
		}
		b = b[consumed:]
	}
	return nil
}

func consumeVarint(typ protowire.Type, b []byte) (uint64, int, error) {
	if typ != protowire.VarintType {
		n, err := skipField(typ, b)
		return 0, n, err
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, 0, ErrTruncated
	}
	return v, n, nil
}

func consumeString(typ protowire.Type, b []byte) (string, int, error) {
	if typ != protowire.BytesType {
		n, err := skipField(typ, b)
		return "", n, err
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return "", 0, ErrTruncated
	}
	return string(v), n, nil
}

func consumeBytes(typ protowire.Type, b []byte) ([]byte, int, error) {
	if typ != protowire.BytesType {
		n, err := skipField(typ, b)
		return nil, n, err
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, 0, ErrTruncated
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, n, nil
}

// skipField consumes and discards a field whose type didn't match what the
// schema expected at that field number, so unknown/newer-version fields
// (and the rare type mismatch) don't abort decoding of the rest of the
// message.
func skipField(typ protowire.Type, b []byte) (int, error) {
	n := protowire.ConsumeFieldValue(0, typ, b)
	if n < 0 {
		return 0, ErrTruncated
	}
	return n, nil
}
