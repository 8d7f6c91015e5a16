package tags

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContainsAny(t *testing.T) {
	tt := T{
		{"t", "nostr"},
		{"e", "abcd", "wss://relay.example.com", "root"},
		{"t"},
		{"t", "bitcoin"},
		{"p", "zap"},
	}
	assert.True(t, tt.ContainsAny("t", "zap", "bitcoin"))
	assert.False(t, tt.ContainsAny("t", "zap"))
	// a tag without a value matches no candidate, not even the empty one
	assert.False(t, tt.ContainsAny("t", ""))
	assert.False(t, tt.ContainsAny("t"))
	assert.Equal(t, `[["t","nostr"],["e","abcd","wss://relay.example.com","root"],["t"],["t","bitcoin"],["p","zap"]]`,
		tt.String())
	assert.Equal(t, "[]", T(nil).String())
}
