package aggregator

import (
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeName_RoundTrip(t *testing.T) {
	cases := []struct{ upstream, name string }{
		{"github", "create_issue"},
		{"local-fs", "read_file"},
		{"svc.internal", "weird:name_with_1mcp_looking_bits"},
		{"a", ""},
	}
	for _, c := range cases {
		exposed := EncodeName(c.upstream, c.name)
		gotUpstream, gotName, ok := DecodeName(exposed)
		require.True(t, ok)
		assert.Equal(t, c.upstream, gotUpstream)
		assert.Equal(t, c.name, gotName)
	}
}

func TestEncodeName_RoundTripProperty(t *testing.T) {
	f := func(upstream, name string) bool {
		if !ValidUpstreamName(upstream) {
			return true
		}
		exposed := EncodeName(upstream, name)
		gotUpstream, gotName, ok := DecodeName(exposed)
		return ok && gotUpstream == upstream && gotName == name
	}
	require.NoError(t, quick.Check(f, nil))
}

func TestDecodeName_UnrecognizedInput(t *testing.T) {
	_, _, ok := DecodeName("plain_tool_name")
	assert.False(t, ok)
}

func TestValidUpstreamName(t *testing.T) {
	assert.True(t, ValidUpstreamName("github"))
	assert.False(t, ValidUpstreamName(""))
	assert.False(t, ValidUpstreamName("has_1mcp_separator"))
}

func TestEncodeDecodeResourceURI_SchemeBearing(t *testing.T) {
	exposed := EncodeResourceURI("docs", "file:///etc/hosts")
	upstream, uri, ok := DecodeResourceURI(exposed)
	require.True(t, ok)
	assert.Equal(t, "docs", upstream)
	assert.Equal(t, "file:///etc/hosts", uri)
}

func TestEncodeDecodeResourceURI_PlainName(t *testing.T) {
	exposed := EncodeResourceURI("docs", "readme")
	upstream, uri, ok := DecodeResourceURI(exposed)
	require.True(t, ok)
	assert.Equal(t, "docs", upstream)
	assert.Equal(t, "readme", uri)
}
