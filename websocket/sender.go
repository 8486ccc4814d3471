package websocket

import (
	"crypto/rand"
	"encoding/binary"
	"io"
	"sync/atomic"
)

// dataOptions configures one call to sender.writeData.
type dataOptions struct {
	Final    bool // FIN bit; false starts or continues a fragmented message
	Binary   bool // opcode is binary rather than text, only meaningful on the first fragment
	Compress bool // attempt compression; only takes effect on an atomic (Final, first-fragment) send
}

// sender turns logical send/ping/pong/close calls into framed,
// optionally masked, optionally compressed bytes written to sink. It
// keeps the "first-fragment-sent" bit for the message currently being
// streamed (RFC 6455 Section 5.4); the higher-level streaming queue
// (what the Endpoint replays after a stream finalizes) lives in
// Endpoint, not here.
type sender struct {
	sink   io.Writer
	masked bool // true for a client-role sender (outbound must be masked)
	ext    *pmdeflate

	compressionThreshold int

	fragmentInProgress bool // a data message's opening frame was sent with FIN=0

	bytesBuffered atomic.Int64
}

func newSender(sink io.Writer, masked bool, ext *pmdeflate, compressionThreshold int) *sender {
	return &sender{sink: sink, masked: masked, ext: ext, compressionThreshold: compressionThreshold}
}

// BytesBuffered reports the byte count currently queued in a frame write
// in flight. Safe to call from any goroutine.
func (s *sender) BytesBuffered() int64 {
	return s.bytesBuffered.Load()
}

// writeData sends one data frame, honoring the in-progress fragmentation
// state. Compression only applies to an atomic send: first fragment and
// Final both true. Streamed (fragmented) sends are transmitted
// uncompressed, since RFC 7692 Section 6 leaves per-frame DEFLATE
// framing ambiguous when RSV1 can only be set on the first fragment.
func (s *sender) writeData(payload []byte, opts dataOptions) error {
	opcode := byte(opcodeContinuation)
	rsv1 := false

	isFirst := !s.fragmentInProgress
	if isFirst {
		opcode = opcodeText
		if opts.Binary {
			opcode = opcodeBinary
		}

		if opts.Compress && opts.Final && s.ext != nil && len(payload) >= s.compressionThreshold {
			compressed, err := s.ext.compress(payload)
			if err != nil {
				return err
			}
			payload = compressed
			rsv1 = true
		}
	}

	if err := s.writeFrame(opts.Final, rsv1, opcode, payload); err != nil {
		return err
	}

	s.fragmentInProgress = !opts.Final
	return nil
}

// writePing sends a ping control frame.
func (s *sender) writePing(payload []byte) error {
	return s.writeFrame(true, false, opcodePing, payload)
}

// writePong sends a pong control frame, used both for user-initiated
// pongs and the Endpoint's ping autoreply.
func (s *sender) writePong(payload []byte) error {
	return s.writeFrame(true, false, opcodePong, payload)
}

// writeClose sends a close control frame. code == 0 means "no status
// code", producing an empty payload; any other code is encoded as a
// big-endian u16 followed by the UTF-8 reason.
func (s *sender) writeClose(code CloseCode, reason string) error {
	if code == 0 {
		return s.writeFrame(true, false, opcodeClose, nil)
	}

	payload := make([]byte, 2+len(reason))
	binary.BigEndian.PutUint16(payload[:2], uint16(code))
	copy(payload[2:], reason)

	return s.writeFrame(true, false, opcodeClose, payload)
}

// writeFrame builds and writes a single frame: header, mask key (if
// masked), then the payload XOR-masked in place on a private copy so
// the caller's slice is never mutated.
func (s *sender) writeFrame(fin, rsv1 bool, opcode byte, payload []byte) error {
	header := encodeHeader(nil, fin, rsv1, opcode, s.masked, uint64(len(payload)))

	var mask [4]byte
	if s.masked {
		if _, err := rand.Read(mask[:]); err != nil {
			return err
		}
		header = append(header, mask[:]...)
	}

	buf := make([]byte, 0, len(header)+len(payload))
	buf = append(buf, header...)
	start := len(buf)
	buf = append(buf, payload...)
	if s.masked {
		applyMask(buf[start:], mask)
	}

	s.bytesBuffered.Add(int64(len(buf)))
	defer s.bytesBuffered.Add(-int64(len(buf)))

	_, err := s.sink.Write(buf)
	return err
}
