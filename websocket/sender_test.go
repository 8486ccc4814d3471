package websocket

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSender_UnmaskedTextFrame(t *testing.T) {
	var buf bytes.Buffer
	s := newSender(&buf, false, nil, 0)

	require.NoError(t, s.writeData([]byte("hi"), dataOptions{Final: true}))

	assert.Equal(t, []byte{0x81, 0x02, 'h', 'i'}, buf.Bytes())
}

func TestSender_MaskedFrameRoundTrips(t *testing.T) {
	var buf bytes.Buffer
	s := newSender(&buf, true, nil, 0)

	require.NoError(t, s.writeData([]byte("hi"), dataOptions{Final: true}))

	out := buf.Bytes()
	require.Len(t, out, 2+4+2)
	assert.Equal(t, byte(0x81), out[0])
	assert.Equal(t, byte(0x82), out[1]) // MASK bit set, len=2

	var mask [4]byte
	copy(mask[:], out[2:6])
	payload := append([]byte(nil), out[6:]...)
	applyMask(payload, mask)
	assert.Equal(t, "hi", string(payload))
}

func TestSender_FragmentationOpcodes(t *testing.T) {
	var buf bytes.Buffer
	s := newSender(&buf, false, nil, 0)

	require.NoError(t, s.writeData([]byte("AB"), dataOptions{Final: false, Binary: true}))
	require.NoError(t, s.writeData([]byte("CD"), dataOptions{Final: true}))

	out := buf.Bytes()
	// First frame: FIN=0, opcode=binary(0x2)
	assert.Equal(t, byte(0x02), out[0])
	// Second frame begins after header(2)+payload(2) = offset 4: FIN=1, opcode=continuation(0x0)
	assert.Equal(t, byte(0x80), out[4])
}

func TestSender_PingPongClose(t *testing.T) {
	var buf bytes.Buffer
	s := newSender(&buf, false, nil, 0)

	require.NoError(t, s.writePing([]byte("Hello")))
	assert.Equal(t, []byte{0x89, 0x05, 'H', 'e', 'l', 'l', 'o'}, buf.Bytes())

	buf.Reset()
	require.NoError(t, s.writePong([]byte("Hello")))
	assert.Equal(t, []byte{0x8A, 0x05, 'H', 'e', 'l', 'l', 'o'}, buf.Bytes())

	buf.Reset()
	require.NoError(t, s.writeClose(CloseNormalClosure, "bye"))
	assert.Equal(t, []byte{0x88, 0x05, 0x03, 0xE8, 'b', 'y', 'e'}, buf.Bytes())
}

func TestSender_CloseWithNoCode(t *testing.T) {
	var buf bytes.Buffer
	s := newSender(&buf, false, nil, 0)

	require.NoError(t, s.writeClose(0, ""))
	assert.Equal(t, []byte{0x88, 0x00}, buf.Bytes())
}

func TestSender_LengthWidthMinimality(t *testing.T) {
	cases := []struct {
		size      int
		wantLen7  byte
	}{
		{0, 0},
		{125, 125},
		{126, payloadLen16Bit},
		{65535, payloadLen16Bit},
		{65536, payloadLen64Bit},
	}

	for _, tc := range cases {
		var buf bytes.Buffer
		s := newSender(&buf, false, nil, 0)
		payload := make([]byte, tc.size)

		require.NoError(t, s.writeData(payload, dataOptions{Final: true}))
		got := buf.Bytes()[1] & 0x7F
		assert.Equalf(t, tc.wantLen7, got, "size=%d", tc.size)
	}
}

func TestSender_CompressesAtomicSendOnly(t *testing.T) {
	var buf bytes.Buffer
	ext := newPMDeflate(pmdeflateParams{}, true)
	s := newSender(&buf, false, ext, 0)

	payload := bytes.Repeat([]byte("a"), 2048)
	require.NoError(t, s.writeData(payload, dataOptions{Final: true, Compress: true}))

	out := buf.Bytes()
	assert.NotZero(t, out[0]&0x40, "RSV1 should be set on a compressed atomic send")
	assert.Less(t, len(out), len(payload))
}

func TestSender_DoesNotCompressFragmentedSend(t *testing.T) {
	var buf bytes.Buffer
	ext := newPMDeflate(pmdeflateParams{}, true)
	s := newSender(&buf, false, ext, 0)

	payload := bytes.Repeat([]byte("a"), 2048)
	require.NoError(t, s.writeData(payload, dataOptions{Final: false, Compress: true}))

	out := buf.Bytes()
	assert.Zero(t, out[0]&0x40, "RSV1 must not be set on a streamed send")
}
