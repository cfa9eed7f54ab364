package descriptor

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// NodeId encoding bytes and ExpandedNodeId flags of the OPC UA binary encoding.
const (
	nodeIDTwoByte    = 0x00
	nodeIDFourByte   = 0x01
	nodeIDNumeric    = 0x02
	nodeIDString     = 0x03
	nodeIDGUID       = 0x04
	nodeIDByteString = 0x05

	expandedNamespaceURI = 0x80
	expandedServerIndex  = 0x40

	localizedTextLocale = 0x01
	localizedTextText   = 0x02
)

// The span functions return the encoded size of the value at the start of b, failing
// when the value, or any string length inside it, runs past the end of b.

func stringSpan(b []byte) (int, error) {
	if len(b) < 4 {
		return 0, io.ErrUnexpectedEOF
	}
	n := int32(binary.LittleEndian.Uint32(b))
	if n <= 0 {
		return 4, nil
	}
	if int64(n) > int64(len(b)-4) {
		return 0, errors.Errorf("string length %d exceeds remaining %d bytes", n, len(b)-4)
	}
	return 4 + int(n), nil
}

// fixed advances off by n bytes of b.
func fixed(b []byte, off, n int) (int, error) {
	if off+n > len(b) {
		return 0, io.ErrUnexpectedEOF
	}
	return off + n, nil
}

// str advances off past the string at b[off:].
func str(b []byte, off int) (int, error) {
	if off > len(b) {
		return 0, io.ErrUnexpectedEOF
	}
	n, err := stringSpan(b[off:])
	if err != nil {
		return 0, err
	}
	return off + n, nil
}

func nodeIDBody(b []byte, encoding byte) (int, error) {
	switch encoding & 0x3f {
	case nodeIDTwoByte:
		return fixed(b, 1, 1)
	case nodeIDFourByte:
		return fixed(b, 1, 3)
	case nodeIDNumeric:
		return fixed(b, 1, 6)
	case nodeIDString, nodeIDByteString:
		off, err := fixed(b, 1, 2)
		if err != nil {
			return 0, err
		}
		return str(b, off)
	case nodeIDGUID:
		return fixed(b, 1, 18)
	}
	return 0, errors.Errorf("unknown NodeId encoding %#x", encoding)
}

func nodeIDSpan(b []byte) (int, error) {
	if len(b) < 1 {
		return 0, io.ErrUnexpectedEOF
	}
	return nodeIDBody(b, b[0])
}

func expandedNodeIDSpan(b []byte) (int, error) {
	if len(b) < 1 {
		return 0, io.ErrUnexpectedEOF
	}
	off, err := nodeIDBody(b, b[0])
	if err != nil {
		return 0, err
	}
	if b[0]&expandedNamespaceURI != 0 {
		if off, err = str(b, off); err != nil {
			return 0, err
		}
	}
	if b[0]&expandedServerIndex != 0 {
		return fixed(b, off, 4)
	}
	return off, nil
}

func qualifiedNameSpan(b []byte) (int, error) {
	off, err := fixed(b, 0, 2)
	if err != nil {
		return 0, err
	}
	return str(b, off)
}

func localizedTextSpan(b []byte) (int, error) {
	off, err := fixed(b, 0, 1)
	if err != nil {
		return 0, err
	}
	if b[0]&localizedTextLocale != 0 {
		if off, err = str(b, off); err != nil {
			return 0, err
		}
	}
	if b[0]&localizedTextText != 0 {
		return str(b, off)
	}
	return off, nil
}
