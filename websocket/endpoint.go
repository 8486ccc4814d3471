package websocket

import (
	"io"
	"sync/atomic"
	"time"
)

// Role identifies which side of the connection an Endpoint plays, which
// in turn determines mask direction: clients mask outbound frames and
// servers don't (RFC 6455 Section 5.1, Section 5.3).
type Role int

const (
	RoleServer Role = iota
	RoleClient
)

// ReadyState is the Endpoint lifecycle state, named after the WebSocket
// API readyState values (RFC 6455 Section 4, Section 7).
type ReadyState int32

const (
	StateConnecting ReadyState = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s ReadyState) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateOpen:
		return "OPEN"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// closeHandshakeTimeout is how long a locally initiated close waits for
// the peer's close frame before forcing CLOSED with 1006 (RFC 6455
// Section 7.1.1).
const closeHandshakeTimeout = 30 * time.Second

// EndpointConfig supplies everything the Endpoint needs once the HTTP
// upgrade handshake (out of scope for this package) has already produced
// a live duplex byte stream.
type EndpointConfig struct {
	Role    Role
	Conn    io.ReadWriteCloser
	Initial []byte // bytes already buffered by the upgrade, processed before any further reads

	PMDeflate *pmdeflateParams // nil if the extension was not negotiated

	MaxPayload            int64 // 0 means unlimited
	CompressionThreshold  int   // minimum payload size to compress an atomic send

	Handler Handler
}

// Endpoint owns the socket, the Receiver, the Sender, and the negotiated
// extensions for one WebSocket connection. All state mutation happens on
// a single dispatch goroutine (run), modeled directly on the channel/
// select event loop pattern of a connection hub: public methods submit
// commands over channels rather than touching Endpoint fields directly,
// so no mutex guards connection state.
type Endpoint struct {
	role       Role
	handler    Handler
	maxPayload int64

	conn    io.ReadWriteCloser
	initial []byte // EndpointConfig.Initial, processed by Start
	rx      *receiver
	tx      *sender

	state         atomic.Int32
	bytesReceived atomic.Int64

	sendCh    chan sendCmd
	ctrlCh    chan ctrlCmd
	inboundCh chan []byte
	errCh     chan error
	timerCh   chan struct{}
	doneCh    chan struct{}

	// dispatch-loop-only state; never touched outside run().
	paused             bool
	pausedBuf          [][]byte
	pending            []sendCmd
	localCloseInit     bool
	awaitingSocketEnd  bool
	pendingCloseCode   CloseCode
	pendingCloseReason string
	closeTimer         *time.Timer
	finished           bool
}

type sendCmd struct {
	mt       MessageType
	data     []byte
	final    bool
	fragment bool // came from SendFragment rather than Send
	result   chan error
}

type ctrlKind int

const (
	ctrlPing ctrlKind = iota
	ctrlPong
	ctrlClose
	ctrlTerminate
	ctrlPause
	ctrlResume
)

type ctrlCmd struct {
	kind   ctrlKind
	data   []byte
	code   CloseCode
	reason string
	result chan error
}

// NewEndpoint builds an Endpoint in CONNECTING. Call Start to attach it
// to its socket and begin processing.
func NewEndpoint(cfg EndpointConfig) *Endpoint {
	var ext *pmdeflate
	if cfg.PMDeflate != nil {
		ext = newPMDeflate(*cfg.PMDeflate, cfg.Role == RoleServer)
	}

	expectMasked := cfg.Role == RoleServer
	outboundMasked := cfg.Role == RoleClient

	e := &Endpoint{
		role:       cfg.Role,
		handler:    cfg.Handler,
		maxPayload: cfg.MaxPayload,
		conn:       cfg.Conn,
		initial:    cfg.Initial,
		rx:         newReceiver(expectMasked, ext, cfg.MaxPayload),
		tx:         newSender(cfg.Conn, outboundMasked, ext, cfg.CompressionThreshold),
		sendCh:     make(chan sendCmd),
		ctrlCh:     make(chan ctrlCmd),
		inboundCh:  make(chan []byte, 16),
		errCh:      make(chan error, 1),
		timerCh:    make(chan struct{}, 1),
		doneCh:     make(chan struct{}),
	}
	e.state.Store(int32(StateConnecting))

	return e
}

// Start transitions the Endpoint to OPEN, fires OnOpen, processes any
// bytes already buffered by the upgrade (EndpointConfig.Initial, then
// initial), and begins reading the socket.
func (e *Endpoint) Start(initial []byte) {
	e.state.Store(int32(StateOpen))
	go e.run(append(append([]byte(nil), e.initial...), initial...))
	go e.readLoop()
}

// ReadyState reports the current lifecycle state. Safe from any goroutine.
func (e *Endpoint) ReadyState() ReadyState { return ReadyState(e.state.Load()) }

// BytesReceived reports the total bytes received so far, counted as they
// arrive (including bytes held while paused).
func (e *Endpoint) BytesReceived() int64 { return e.bytesReceived.Load() }

// BytesBuffered reports bytes currently queued in an outbound frame
// write in flight.
func (e *Endpoint) BytesBuffered() int64 { return e.tx.BytesBuffered() }

// Send transmits data as a single complete message (FIN=1), eligible for
// compression if permessage-deflate was negotiated and data is at least
// CompressionThreshold bytes. If another message is currently being
// streamed via SendFragment, this call is queued and replayed in order
// once that stream finalizes.
func (e *Endpoint) Send(mt MessageType, data []byte) error {
	return e.doSend(mt, data, true, false)
}

// SendFragment sends one fragment of a streamed message. The first call
// (final=false) opens the stream; subsequent calls continue it; the
// call with final=true closes it and triggers replay of any Sends
// queued while the stream was active.
func (e *Endpoint) SendFragment(mt MessageType, data []byte, final bool) error {
	return e.doSend(mt, data, final, true)
}

func (e *Endpoint) doSend(mt MessageType, data []byte, final, fragment bool) error {
	if mt != TextMessage && mt != BinaryMessage {
		return ErrInvalidMessageType
	}
	if e.ReadyState() == StateConnecting {
		return ErrNotOpen
	}

	result := make(chan error, 1)
	cmd := sendCmd{mt: mt, data: data, final: final, fragment: fragment, result: result}

	select {
	case e.sendCh <- cmd:
	case <-e.doneCh:
		return ErrClosed
	}

	select {
	case err := <-result:
		return err
	case <-e.doneCh:
		return ErrClosed
	}
}

// Ping sends a ping control frame.
func (e *Endpoint) Ping(data []byte) error {
	return e.doCtrl(ctrlCmd{kind: ctrlPing, data: data})
}

// Pong sends an unsolicited pong control frame.
func (e *Endpoint) Pong(data []byte) error {
	return e.doCtrl(ctrlCmd{kind: ctrlPong, data: data})
}

// Close initiates the closing handshake: sends a close frame and arms
// the 30-second close timer. Returns once the frame is written; OnClose
// fires later, from the dispatch loop, once the handshake completes or
// times out.
func (e *Endpoint) Close(code CloseCode, reason string) error {
	return e.doCtrl(ctrlCmd{kind: ctrlClose, code: code, reason: reason})
}

// Terminate closes the socket immediately and forces CLOSED, without
// attempting a close handshake.
func (e *Endpoint) Terminate() {
	_ = e.doCtrl(ctrlCmd{kind: ctrlTerminate})
}

// Pause stops delivering inbound bytes to the Receiver; bytes already
// read from the socket are buffered until Resume.
func (e *Endpoint) Pause() error {
	return e.doCtrl(ctrlCmd{kind: ctrlPause})
}

// Resume processes any bytes buffered since Pause, in order, then
// resumes normal delivery.
func (e *Endpoint) Resume() error {
	return e.doCtrl(ctrlCmd{kind: ctrlResume})
}

func (e *Endpoint) doCtrl(cmd ctrlCmd) error {
	if cmd.kind != ctrlTerminate && e.ReadyState() == StateConnecting {
		return ErrNotOpen
	}

	result := make(chan error, 1)
	cmd.result = result

	select {
	case e.ctrlCh <- cmd:
	case <-e.doneCh:
		return ErrClosed
	}

	select {
	case err := <-result:
		return err
	case <-e.doneCh:
		return nil
	}
}

// readLoop feeds raw socket bytes to the dispatch loop. It never
// mutates Endpoint state directly.
func (e *Endpoint) readLoop() {
	buf := make([]byte, 32*1024)
	for {
		n, err := e.conn.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			select {
			case e.inboundCh <- chunk:
			case <-e.doneCh:
				return
			}
		}
		if err != nil {
			select {
			case e.errCh <- err:
			case <-e.doneCh:
			}
			return
		}
	}
}

// run is the single dispatch goroutine; every Endpoint state mutation
// happens here.
func (e *Endpoint) run(initial []byte) {
	if e.handler != nil {
		e.handler.OnOpen(e)
	}
	if len(initial) > 0 {
		e.bytesReceived.Add(int64(len(initial)))
		e.processInbound(initial)
	}

	for {
		select {
		case chunk := <-e.inboundCh:
			e.bytesReceived.Add(int64(len(chunk)))
			if e.paused {
				e.pausedBuf = append(e.pausedBuf, chunk)
				continue
			}
			e.processInbound(chunk)

		case err := <-e.errCh:
			e.handleSocketEnd(err)
			if e.finished {
				return
			}

		case cmd := <-e.sendCh:
			e.handleSend(cmd)

		case cmd := <-e.ctrlCh:
			e.handleCtrl(cmd)
			if e.finished {
				return
			}

		case <-e.timerCh:
			if !e.finished {
				e.finish(CloseAbnormalClosure, "")
			}
			return

		case <-e.doneCh:
			return
		}
	}
}

func (e *Endpoint) processInbound(chunk []byte) {
	for _, ev := range e.rx.add(chunk) {
		e.handleRxEvent(ev)
		if e.finished {
			return
		}
	}
}

func (e *Endpoint) handleRxEvent(ev rxEvent) {
	switch ev.kind {
	case evText:
		if e.ReadyState() != StateOpen {
			return
		}
		if e.handler != nil {
			e.handler.OnMessage(e, TextMessage, ev.data)
		}
	case evBinary:
		if e.ReadyState() != StateOpen {
			return
		}
		if e.handler != nil {
			e.handler.OnMessage(e, BinaryMessage, ev.data)
		}
	case evPing:
		_ = e.tx.writePong(ev.data)
		if e.handler != nil {
			e.handler.OnPing(e, ev.data)
		}
	case evPong:
		if e.handler != nil {
			e.handler.OnPong(e, ev.data)
		}
	case evClose:
		e.onPeerClose(ev.code, ev.reason)
	case evError:
		e.onProtocolError(ev.errKind, ev.errCode)
	}
}

// onPeerClose handles an inbound close frame, reciprocating per RFC 6455
// Section 5.5.1 and Section 7.1.5.
func (e *Endpoint) onPeerClose(code CloseCode, reason string) {
	if e.localCloseInit {
		e.finish(code, reason)
		return
	}

	e.state.Store(int32(StateClosing))
	replyCode := code
	if replyCode == CloseNoStatusReceived {
		replyCode = 0 // 1005 must not go on the wire; reply with an empty payload
	}
	_ = e.tx.writeClose(replyCode, reason)

	if e.role == RoleServer {
		e.finish(code, reason)
		return
	}

	e.awaitingSocketEnd = true
	e.pendingCloseCode = code
	e.pendingCloseReason = reason
}

// onProtocolError fails the connection per RFC 6455 Section 7.1.7: send
// the close frame first, then surface the error, then reach CLOSED.
func (e *Endpoint) onProtocolError(kind ErrorKind, code CloseCode) {
	sentinel := e.sentinelForKind(kind)
	e.localCloseInit = true
	e.state.Store(int32(StateClosing))
	_ = e.tx.writeClose(code, "")

	if e.handler != nil {
		e.handler.OnError(e, protoErr(kind, code, sentinel))
	}

	e.finish(code, "")
}

func (e *Endpoint) sentinelForKind(kind ErrorKind) error {
	switch kind {
	case KindReservedBits:
		return ErrReservedBits
	case KindInvalidOpcode:
		return ErrInvalidOpcode
	case KindFragmentedControl:
		return ErrControlFragmented
	case KindOversizedControl:
		return ErrControlTooLarge
	case KindNonMinimalLength:
		return ErrNonMinimalLength
	case KindUnexpectedContinuity:
		return ErrUnexpectedContinuation
	case KindMaskDirection:
		if e.role == RoleServer {
			return ErrMaskRequired
		}
		return ErrMaskUnexpected
	case KindBadClosePayload:
		return ErrBadClosePayload
	case KindBadUTF8:
		return ErrInvalidUTF8
	case KindDecompressionFailure:
		return ErrDecompressionFailure
	case KindMessageTooLarge:
		return ErrMessageTooLarge
	default:
		return ErrClosed
	}
}

// handleSocketEnd reacts to the reader goroutine observing EOF or a read
// error: an unclean socket end forces CLOSED with 1006 (RFC 6455
// Section 7.1.5, Section 7.4.1). A read error other than io.EOF is also
// surfaced through OnError before OnClose.
func (e *Endpoint) handleSocketEnd(err error) {
	if e.awaitingSocketEnd {
		e.finish(e.pendingCloseCode, e.pendingCloseReason)
		return
	}
	if err != nil && err != io.EOF && e.handler != nil { //nolint:errorlint // io.EOF is returned unwrapped
		e.handler.OnError(e, err)
	}
	e.finish(CloseAbnormalClosure, "")
}

func (e *Endpoint) handleSend(cmd sendCmd) {
	if e.ReadyState() != StateOpen {
		cmd.result <- ErrNotOpen
		return
	}

	if cmd.fragment {
		err := e.tx.writeData(cmd.data, dataOptions{Final: cmd.final, Binary: cmd.mt == BinaryMessage})
		cmd.result <- err
		if cmd.final && err == nil {
			e.drainPending()
		}
		return
	}

	if e.tx.fragmentInProgress {
		e.pending = append(e.pending, cmd)
		return
	}

	err := e.tx.writeData(cmd.data, dataOptions{Final: true, Binary: cmd.mt == BinaryMessage, Compress: true})
	cmd.result <- err
}

func (e *Endpoint) drainPending() {
	pending := e.pending
	e.pending = nil
	for _, cmd := range pending {
		err := e.tx.writeData(cmd.data, dataOptions{Final: true, Binary: cmd.mt == BinaryMessage, Compress: true})
		cmd.result <- err
	}
}

func (e *Endpoint) handleCtrl(cmd ctrlCmd) {
	switch cmd.kind {
	case ctrlPing:
		if e.ReadyState() != StateOpen {
			cmd.result <- ErrNotOpen
			return
		}
		cmd.result <- e.tx.writePing(cmd.data)

	case ctrlPong:
		if e.ReadyState() != StateOpen {
			cmd.result <- ErrNotOpen
			return
		}
		cmd.result <- e.tx.writePong(cmd.data)

	case ctrlClose:
		if e.ReadyState() != StateOpen {
			cmd.result <- ErrNotOpen
			return
		}
		e.state.Store(int32(StateClosing))
		e.localCloseInit = true
		err := e.tx.writeClose(cmd.code, cmd.reason)
		e.closeTimer = time.AfterFunc(closeHandshakeTimeout, func() {
			select {
			case e.timerCh <- struct{}{}:
			case <-e.doneCh:
			}
		})
		cmd.result <- err

	case ctrlTerminate:
		e.finish(CloseAbnormalClosure, "")
		cmd.result <- nil

	case ctrlPause:
		if e.ReadyState() != StateOpen {
			cmd.result <- ErrNotOpen
			return
		}
		e.paused = true
		cmd.result <- nil

	case ctrlResume:
		if e.ReadyState() != StateOpen {
			cmd.result <- ErrNotOpen
			return
		}
		e.paused = false
		pending := e.pausedBuf
		e.pausedBuf = nil
		cmd.result <- nil
		for _, chunk := range pending {
			e.processInbound(chunk)
			if e.finished {
				return
			}
		}
	}
}

// finish transitions to CLOSED exactly once, releasing every owned
// resource and firing exactly one OnClose per endpoint lifetime (RFC
// 6455 Section 7.1.6).
func (e *Endpoint) finish(code CloseCode, reason string) {
	if e.finished {
		return
	}
	e.finished = true
	e.state.Store(int32(StateClosed))

	if e.closeTimer != nil {
		e.closeTimer.Stop()
	}
	e.rx.cleanup()
	_ = e.conn.Close()

	for _, cmd := range e.pending {
		cmd.result <- ErrClosed
	}
	e.pending = nil

	if e.handler != nil {
		e.handler.OnClose(e, code, reason)
	}

	close(e.doneCh)
}
