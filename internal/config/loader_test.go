package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_InfersTransportType(t *testing.T) {
	doc := []byte(`{
		"mcpServers": {
			"echo": {"command": "echo-server", "args": ["--stdio"]},
			"web": {"url": "http://localhost:9000/mcp", "tags": ["web", "prod"]}
		}
	}`)

	snap, err := Parse("test.json", doc)
	require.NoError(t, err)
	require.Len(t, snap.Upstreams, 2)

	echo, ok := snap.Get("echo")
	require.True(t, ok)
	assert.Equal(t, KindStdio, echo.Kind)

	web, ok := snap.Get("web")
	require.True(t, ok)
	assert.Equal(t, KindHTTP, web.Kind)
	assert.ElementsMatch(t, []string{"web", "prod"}, web.Tags)
}

func TestParse_ExplicitTypeOverridesInference(t *testing.T) {
	doc := []byte(`{
		"mcpServers": {
			"legacy": {"type": "sse", "url": "http://localhost:9001/sse"}
		}
	}`)

	snap, err := Parse("test.json", doc)
	require.NoError(t, err)
	legacy, _ := snap.Get("legacy")
	assert.Equal(t, KindSSE, legacy.Kind)
}

func TestParse_RejectsUnknownTransport(t *testing.T) {
	doc := []byte(`{"mcpServers": {"x": {"type": "carrier-pigeon"}}}`)
	_, err := Parse("test.json", doc)
	assert.Error(t, err)
}

func TestParse_RejectsMissingRequiredField(t *testing.T) {
	doc := []byte(`{"mcpServers": {"x": {"type": "stdio"}}}`)
	_, err := Parse("test.json", doc)
	assert.Error(t, err)
}

func TestParse_RejectsMalformedJSON(t *testing.T) {
	_, err := Parse("test.json", []byte(`{not json`))
	assert.Error(t, err)

	var cfgErr *Error
	assert.ErrorAs(t, err, &cfgErr)
}

func TestParse_RejectsUnknownFields(t *testing.T) {
	doc := []byte(`{"mcpServers": {"x": {"type": "stdio", "command": "foo", "frobnicate": true}}}`)
	_, err := Parse("test.json", doc)
	assert.Error(t, err)
}
