package websocket

import (
	"bytes"
	"io"
	"strconv"
	"strings"

	"github.com/klauspost/compress/flate"
)

// permessageDeflateTrailer is the 4-byte DEFLATE sync-flush trailer RFC
// 7692 Section 7.2.1 says a compressor must strip before sending and a
// decompressor must re-append before inflating.
var permessageDeflateTrailer = []byte{0x00, 0x00, 0xFF, 0xFF}

// pmdeflateParams holds the negotiated parameters of both directions
// (server-to-client and client-to-server) for the permessage-deflate
// extension (RFC 7692 Section 7.1).
type pmdeflateParams struct {
	serverNoContextTakeover bool
	clientNoContextTakeover bool
	serverMaxWindowBits     int // 8-15, 0 means "not specified" (use 15)
	clientMaxWindowBits     int
}

// pmdeflate is a negotiated permessage-deflate session attached to one
// Endpoint. It owns independent compress and decompress streams so
// context take-over (reusing the DEFLATE dictionary across messages)
// works per RFC 7692 Section 7.2.2.
type pmdeflate struct {
	params pmdeflateParams
	isServer bool

	compressor   *flate.Writer
	compressBuf  bytes.Buffer
	noTakeoverTx bool // this side resets its compressor after every message

	decompressor  io.ReadCloser
	noTakeoverRx  bool // this side discards its dictionary after every message
	decompressSrc *bytes.Reader
	rxWindow      []byte // last up-to-32KB decompressed, carried as the next message's dictionary
}

// maxDeflateWindow is the largest DEFLATE sliding window (2^15), the
// most either side needs to carry across messages under context
// take-over (RFC 7692 Section 7.1.2.1).
const maxDeflateWindow = 1 << 15

// newPMDeflate builds a session from already-negotiated parameters. role
// determines which of the two independent directions (client-to-server,
// server-to-client) maps to "this side compresses" vs "this side
// decompresses".
func newPMDeflate(params pmdeflateParams, isServer bool) *pmdeflate {
	p := &pmdeflate{params: params, isServer: isServer}

	if isServer {
		p.noTakeoverTx = params.serverNoContextTakeover
		p.noTakeoverRx = params.clientNoContextTakeover
	} else {
		p.noTakeoverTx = params.clientNoContextTakeover
		p.noTakeoverRx = params.serverNoContextTakeover
	}

	p.compressor, _ = flate.NewWriter(&p.compressBuf, flate.DefaultCompression)
	p.decompressSrc = bytes.NewReader(nil)
	p.decompressor = flate.NewReader(p.decompressSrc)

	return p
}

// compress DEFLATEs payload with sync-flush and strips the trailing
// 00 00 FF FF, per RFC 7692 Section 7.2.1.
func (p *pmdeflate) compress(payload []byte) ([]byte, error) {
	p.compressBuf.Reset()

	if _, err := p.compressor.Write(payload); err != nil {
		return nil, err
	}
	if err := p.compressor.Flush(); err != nil {
		return nil, err
	}

	out := p.compressBuf.Bytes()
	out = bytes.TrimSuffix(out, permessageDeflateTrailer)

	result := append([]byte(nil), out...)

	if p.noTakeoverTx {
		p.compressor.Reset(&p.compressBuf)
	}

	return result, nil
}

// decompress re-appends the stripped trailer and inflates payload,
// enforcing maxPayload on the inflated size to bound decompression-bomb
// amplification. An empty final stored block is appended after the
// trailer so the inflater ends the message with io.EOF.
func (p *pmdeflate) decompress(payload []byte, maxPayload int64) ([]byte, error) {
	framed := make([]byte, 0, len(payload)+len(permessageDeflateTrailer)+5)
	framed = append(framed, payload...)
	framed = append(framed, permessageDeflateTrailer...)
	framed = append(framed, 0x01, 0x00, 0x00, 0xFF, 0xFF)

	p.decompressSrc.Reset(framed)

	var dict []byte
	if !p.noTakeoverRx {
		dict = p.rxWindow
	}
	resetter, ok := p.decompressor.(flate.Resetter)
	if !ok {
		return nil, ErrDecompressionFailure
	}
	if err := resetter.Reset(p.decompressSrc, dict); err != nil {
		return nil, ErrDecompressionFailure
	}

	var out bytes.Buffer
	limit := maxPayload
	if limit <= 0 {
		limit = 1 << 62
	}
	n, err := io.CopyN(&out, p.decompressor, limit+1)
	if err != nil && err != io.EOF {
		return nil, ErrDecompressionFailure
	}
	if n > limit {
		return nil, ErrMessageTooLarge
	}

	result := out.Bytes()
	p.rxWindow = lastWindow(p.rxWindow, result)

	return result, nil
}

const extensionTokenPermessageDeflate = "permessage-deflate"

// negotiatePMDeflate picks the first offer named permessage-deflate this
// implementation can satisfy and builds the response offer the server
// sends back, per RFC 7692 Section 7.1. It does not support the
// client_max_window_bits/server_max_window_bits values below 8 or above
// 15; an offer using a param this implementation doesn't recognize at
// all is rejected rather than failing the handshake (RFC 7692 Section
// 7.1: "the client... MUST decline the extension if [it] doesn't
// understand a parameter"). The bool return reports whether any offer
// was accepted; on a false result the caller should fall back to no
// extension rather than inspect the error, which is only diagnostic.
func negotiatePMDeflate(offers []ExtensionOffer) (*ExtensionOffer, pmdeflateParams, bool) {
	for _, offer := range offers {
		if !strings.EqualFold(offer.Name, extensionTokenPermessageDeflate) {
			continue
		}

		params, err := parsePMDeflateParams(offer.Params)
		if err != nil {
			continue
		}

		resp := ExtensionOffer{Name: extensionTokenPermessageDeflate}
		if params.serverNoContextTakeover {
			resp.Params = append(resp.Params, ExtensionParam{Name: "server_no_context_takeover"})
		}
		if params.clientNoContextTakeover {
			resp.Params = append(resp.Params, ExtensionParam{Name: "client_no_context_takeover"})
		}
		if params.serverMaxWindowBits != 0 {
			resp.Params = append(resp.Params, ExtensionParam{
				Name: "server_max_window_bits", Value: strconv.Itoa(params.serverMaxWindowBits), HasValue: true,
			})
		}

		return &resp, params, true
	}

	return nil, pmdeflateParams{}, false
}

// parsePMDeflateParams validates and extracts one offer's parameters,
// returning ErrExtensionUnsupportedParam for a parameter name this
// implementation doesn't recognize and ErrExtensionParamRange for a
// max-window-bits value outside 8..15.
func parsePMDeflateParams(params []ExtensionParam) (pmdeflateParams, error) {
	var out pmdeflateParams

	for _, p := range params {
		switch strings.ToLower(p.Name) {
		case "server_no_context_takeover":
			out.serverNoContextTakeover = true
		case "client_no_context_takeover":
			out.clientNoContextTakeover = true
		case "server_max_window_bits":
			bits, err := parseWindowBits(p)
			if err != nil {
				return pmdeflateParams{}, err
			}
			out.serverMaxWindowBits = bits
		case "client_max_window_bits":
			bits, err := parseWindowBits(p)
			if err != nil && p.HasValue {
				return pmdeflateParams{}, err
			}
			out.clientMaxWindowBits = bits
		default:
			return pmdeflateParams{}, ErrExtensionUnsupportedParam
		}
	}

	return out, nil
}

func parseWindowBits(p ExtensionParam) (int, error) {
	if !p.HasValue {
		return 0, nil
	}
	bits, err := strconv.Atoi(p.Value)
	if err != nil || bits < 8 || bits > 15 {
		return 0, ErrExtensionParamRange
	}
	return bits, nil
}

// lastWindow returns the trailing up-to-maxDeflateWindow bytes of prev
// followed by next, truncated to maxDeflateWindow, for use as the next
// message's DEFLATE dictionary under context take-over.
func lastWindow(prev, next []byte) []byte {
	combined := append(append([]byte(nil), prev...), next...)
	if len(combined) > maxDeflateWindow {
		combined = combined[len(combined)-maxDeflateWindow:]
	}
	return append([]byte(nil), combined...)
}
