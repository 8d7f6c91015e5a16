package tag

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendQuotedRoundTrips(t *testing.T) {
	for _, s := range []string{
		"",
		"plain",
		"quote \" and backslash \\",
		"line\nbreak\ttab\rcr",
		"bell\x07 and nul\x00",
		"<html> & unicode ☕",
	} {
		b := AppendQuoted(nil, s)
		var out string
		require.NoError(t, json.Unmarshal(b, &out), string(b))
		assert.Equal(t, s, out)
	}
	// html characters are not escaped in the canonical form
	assert.Equal(t, `"<a&b>"`, string(AppendQuoted(nil, "<a&b>")))
}

func TestMarshalTo(t *testing.T) {
	tt := T{"e", "abcdef", "wss://relay"}
	assert.Equal(t, "e", tt.Key())
	assert.Equal(t, "abcdef", tt.Value())
	assert.Equal(t, "", T{"t"}.Value())
	assert.Equal(t, `["e","abcdef","wss://relay"]`, string(tt.MarshalTo(nil)))
}
