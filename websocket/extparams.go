package websocket

import (
	"strconv"
	"strings"
)

// ExtensionParam is one "name" or "name=value" token inside a
// Sec-WebSocket-Extensions offer (RFC 7692 Section 8, referencing the
// extension-param ABNF of RFC 6455 Section 9.1).
type ExtensionParam struct {
	Name     string
	Value    string
	HasValue bool
}

// ExtensionOffer is one comma-separated alternative in a
// Sec-WebSocket-Extensions header: an extension token followed by
// zero or more semicolon-separated parameters.
type ExtensionOffer struct {
	Name   string
	Params []ExtensionParam
}

// ParseExtensions parses a Sec-WebSocket-Extensions header value into its
// comma-separated offers. It is deliberately lenient: unknown extensions
// and unknown parameters are returned as-is and rejected later by the
// negotiator, not here.
func ParseExtensions(header string) []ExtensionOffer {
	if strings.TrimSpace(header) == "" {
		return nil
	}

	var offers []ExtensionOffer
	for _, part := range strings.Split(header, ",") {
		parts := strings.Split(part, ";")
		name := strings.TrimSpace(parts[0])
		if name == "" {
			continue
		}

		offer := ExtensionOffer{Name: name}
		for _, raw := range parts[1:] {
			raw = strings.TrimSpace(raw)
			if raw == "" {
				continue
			}

			if eq := strings.IndexByte(raw, '='); eq >= 0 {
				pname := strings.TrimSpace(raw[:eq])
				pval := strings.TrimSpace(raw[eq+1:])
				pval = unquote(pval)
				offer.Params = append(offer.Params, ExtensionParam{Name: pname, Value: pval, HasValue: true})
			} else {
				offer.Params = append(offer.Params, ExtensionParam{Name: raw})
			}
		}

		offers = append(offers, offer)
	}

	return offers
}

// FormatExtensions serializes offers back into a Sec-WebSocket-Extensions
// header value.
func FormatExtensions(offers []ExtensionOffer) string {
	var b strings.Builder
	for i, offer := range offers {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(offer.Name)
		for _, p := range offer.Params {
			b.WriteString("; ")
			b.WriteString(p.Name)
			if p.HasValue {
				b.WriteByte('=')
				b.WriteString(quoteIfNeeded(p.Value))
			}
		}
	}
	return b.String()
}

// unquote strips a single layer of double-quotes, if present.
func unquote(v string) string {
	if len(v) >= 2 && v[0] == '"' && v[len(v)-1] == '"' {
		return v[1 : len(v)-1]
	}
	return v
}

// quoteIfNeeded quotes v if it is not a bare RFC 9110 token (here,
// narrowed to what permessage-deflate parameter values actually are:
// digits or absent).
func quoteIfNeeded(v string) string {
	if _, err := strconv.Atoi(v); err == nil {
		return v
	}
	return `"` + v + `"`
}

