// Package websocket implements the protocol core of RFC 6455 (versions 8
// and 13), with the permessage-deflate extension (RFC 7692).
//
// The package is entered after an HTTP Upgrade handshake has already
// produced a live duplex byte stream; it does not perform the handshake
// itself (see Endpoint). Four pieces cooperate:
//
//   - Receiver: an incremental frame parser/reassembler. Bytes are fed in
//     via add(), in any chunking, and complete messages and control
//     frames come out as events.
//   - Sender: an outbound framer/masker that turns logical send calls
//     into wire bytes.
//   - Endpoint: owns the socket, the Receiver, the Sender, and the
//     negotiated extensions; implements the ready-state machine and the
//     closing handshake.
//   - The permessage-deflate codec (PMDeflate) and the
//     Sec-WebSocket-Extensions grammar parser/formatter (ParseExtensions,
//     FormatExtensions).
//
// RFC Reference: https://datatracker.ietf.org/doc/html/rfc6455
// Extension Reference: https://datatracker.ietf.org/doc/html/rfc7692
package websocket
