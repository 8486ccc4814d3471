package websocket

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseExtensions_Simple(t *testing.T) {
	offers := ParseExtensions("permessage-deflate")
	require.Len(t, offers, 1)
	assert.Equal(t, "permessage-deflate", offers[0].Name)
	assert.Empty(t, offers[0].Params)
}

func TestParseExtensions_WithParams(t *testing.T) {
	offers := ParseExtensions("permessage-deflate; client_max_window_bits; server_max_window_bits=10")
	require.Len(t, offers, 1)
	require.Len(t, offers[0].Params, 2)

	p0 := offers[0].Params[0]
	assert.Equal(t, "client_max_window_bits", p0.Name)
	assert.False(t, p0.HasValue)

	p1 := offers[0].Params[1]
	assert.Equal(t, "server_max_window_bits", p1.Name)
	assert.True(t, p1.HasValue)
	assert.Equal(t, "10", p1.Value)
}

func TestParseExtensions_QuotedValue(t *testing.T) {
	offers := ParseExtensions(`x-ext; param="quoted value"`)
	require.Len(t, offers, 1)
	require.Len(t, offers[0].Params, 1)
	assert.Equal(t, "quoted value", offers[0].Params[0].Value)
}

func TestParseExtensions_MultipleOffers(t *testing.T) {
	offers := ParseExtensions("permessage-deflate, x-custom; foo=bar")
	require.Len(t, offers, 2)
	assert.Equal(t, "permessage-deflate", offers[0].Name)
	assert.Equal(t, "x-custom", offers[1].Name)
}

func TestParseExtensions_Empty(t *testing.T) {
	assert.Nil(t, ParseExtensions(""))
	assert.Nil(t, ParseExtensions("   "))
}

func TestFormatExtensions_RoundTrip(t *testing.T) {
	offers := []ExtensionOffer{
		{
			Name: "permessage-deflate",
			Params: []ExtensionParam{
				{Name: "server_no_context_takeover"},
				{Name: "server_max_window_bits", Value: "10", HasValue: true},
			},
		},
	}

	header := FormatExtensions(offers)
	assert.Equal(t, "permessage-deflate; server_no_context_takeover; server_max_window_bits=10", header)

	reparsed := ParseExtensions(header)
	require.Len(t, reparsed, 1)
	assert.Equal(t, offers[0], reparsed[0])
}

func TestFormatExtensions_QuotesNonNumericValue(t *testing.T) {
	offers := []ExtensionOffer{{Name: "x-ext", Params: []ExtensionParam{{Name: "p", Value: "needs quotes", HasValue: true}}}}
	header := FormatExtensions(offers)
	assert.Equal(t, `x-ext; p="needs quotes"`, header)
}
