package websocket

import (
	"encoding/binary"
)

// Payload length encoding thresholds and frame-level limits, as defined
// in RFC 6455 Section 5.2 and Section 5.5.
const (
	maxControlPayload = 125 // RFC 6455 Section 5.5.

	payloadLen7Bit  = 125 // 0-125: length is the 7-bit field itself.
	payloadLen16Bit = 126 // 126: followed by a 16-bit big-endian length.
	payloadLen64Bit = 127 // 127: followed by a 64-bit big-endian length.

	// maxHeaderLen is the largest a frame header (without mask key) can
	// be: 2 header bytes + 8 bytes of extended length.
	maxHeaderLen = 10

	// maxHeaderPrefixLen is the largest the header prefix can be
	// including the masking key: maxHeaderLen + 4 mask bytes.
	maxHeaderPrefixLen = maxHeaderLen + 4
)

// frameHeader is the fixed part of a WebSocket frame (RFC 6455 Section
// 5.2), decoded incrementally by the Receiver and built in one shot by
// the Sender.
type frameHeader struct {
	fin           bool
	rsv1          bool
	rsv2          bool
	rsv3          bool
	opcode        byte
	masked        bool
	mask          [4]byte
	payloadLength uint64
}

// decodeHeaderPrefix decodes the first two bytes of a frame header.
// It returns the header with fin/rsv/opcode/masked populated (and
// payloadLength, when the 7-bit length is the final length) and the
// number of additional bytes required before the header is complete:
// 0 for a 7-bit length, 2 for the 16-bit extension, 8 for the 64-bit
// extension. Opcode and control-frame validity are NOT checked here; the
// Receiver does that once the full header is visible so it can pick the
// correct close code for each violation independently.
func decodeHeaderPrefix(b0, b1 byte) (h frameHeader, extraLenBytes int) {
	h.fin = b0&0x80 != 0
	h.rsv1 = b0&0x40 != 0
	h.rsv2 = b0&0x20 != 0
	h.rsv3 = b0&0x10 != 0
	h.opcode = b0 & 0x0F
	h.masked = b1&0x80 != 0

	len7 := b1 & 0x7F
	switch len7 {
	case payloadLen16Bit:
		extraLenBytes = 2
	case payloadLen64Bit:
		extraLenBytes = 8
	default:
		h.payloadLength = uint64(len7)
	}

	return h, extraLenBytes
}

// decodeLen16 decodes the 16-bit extended payload length.
func decodeLen16(b []byte) uint64 {
	return uint64(binary.BigEndian.Uint16(b))
}

// decodeLen64 decodes the 64-bit extended payload length. The caller
// must reject values with the high bit set (RFC 6455 Section 5.2: "the
// most significant bit MUST be 0").
func decodeLen64(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}

// isNonMinimalLength reports whether payloadLength was encoded with a
// wider length field than the minimum RFC 6455 Section 5.2 requires.
func isNonMinimalLength(len7 byte, payloadLength uint64) bool {
	switch len7 {
	case payloadLen16Bit:
		return payloadLength <= payloadLen7Bit
	case payloadLen64Bit:
		return payloadLength <= 0xFFFF
	default:
		return false
	}
}

// encodeHeader appends a frame header (everything up to, but not
// including, the masking key) to dst and returns the extended slice.
// It always picks the minimum-width length encoding, per RFC 6455
// Section 5.2's payload length table.
func encodeHeader(dst []byte, fin, rsv1 bool, opcode byte, masked bool, payloadLen uint64) []byte {
	var b0 byte
	if fin {
		b0 |= 0x80
	}
	if rsv1 {
		b0 |= 0x40
	}
	b0 |= opcode & 0x0F

	var b1 byte
	if masked {
		b1 |= 0x80
	}

	switch {
	case payloadLen <= payloadLen7Bit:
		b1 |= byte(payloadLen)
		return append(dst, b0, b1)
	case payloadLen <= 0xFFFF:
		b1 |= payloadLen16Bit
		dst = append(dst, b0, b1)
		var buf [2]byte
		binary.BigEndian.PutUint16(buf[:], uint16(payloadLen))
		return append(dst, buf[:]...)
	default:
		b1 |= payloadLen64Bit
		dst = append(dst, b0, b1)
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], payloadLen)
		return append(dst, buf[:]...)
	}
}

// applyMask XORs data in place with the 4-byte masking key, cycling
// through the key (RFC 6455 Section 5.3). Applying it twice with the
// same key restores the original bytes.
func applyMask(data []byte, mask [4]byte) {
	for i := range data {
		data[i] ^= mask[i%4]
	}
}
