package websocket

// Handler receives the lifecycle and message events an Endpoint
// produces. Implementations must not block: each method is invoked
// synchronously from the Endpoint's single dispatch goroutine, and a
// slow handler delays processing of every other event on that Endpoint.
//
// This replaces the duck-typed "on(event, fn)" emitter style with a
// single typed interface, the idiomatic Go shape for a fixed, known set
// of callbacks.
type Handler interface {
	// OnOpen is called once the Endpoint reaches OPEN.
	OnOpen(e *Endpoint)

	// OnMessage is called for a complete, reassembled, (if negotiated)
	// decompressed message. mt distinguishes TextMessage from
	// BinaryMessage; for TextMessage, data is already UTF-8 validated.
	OnMessage(e *Endpoint, mt MessageType, data []byte)

	// OnPing is called when a ping control frame arrives. The Endpoint
	// has already queued the matching pong by the time this is called.
	OnPing(e *Endpoint, data []byte)

	// OnPong is called when a pong control frame arrives.
	OnPong(e *Endpoint, data []byte)

	// OnClose is called exactly once, when the Endpoint reaches CLOSED.
	// code/reason reflect the close frame the peer sent, or
	// CloseAbnormalClosure/"" if the connection dropped without one.
	OnClose(e *Endpoint, code CloseCode, reason string)

	// OnError is called for protocol violations and I/O failures. A
	// protocol violation is always followed by OnClose as the Endpoint
	// fails the connection; IsCloseError/IsTemporaryError help the
	// handler classify err.
	OnError(e *Endpoint, err error)
}

// NoopHandler implements Handler with empty methods. Embed it to only
// override the callbacks a particular use needs.
type NoopHandler struct{}

func (NoopHandler) OnOpen(*Endpoint)                                {}
func (NoopHandler) OnMessage(*Endpoint, MessageType, []byte)        {}
func (NoopHandler) OnPing(*Endpoint, []byte)                        {}
func (NoopHandler) OnPong(*Endpoint, []byte)                        {}
func (NoopHandler) OnClose(*Endpoint, CloseCode, string)            {}
func (NoopHandler) OnError(*Endpoint, error)                        {}
