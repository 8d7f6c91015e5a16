package tags

import (
	"github.com/Hubmakerlabs/reflectr/pkg/nostr/tag"
)

// T is a list of T - which are lists of string elements with ordering and no
// uniqueness constraint (not a set).
type T []tag.T

// ContainsAny returns true if any of the strings given in `values` matches any
// of the tag elements.
func (t T) ContainsAny(tagName string, values ...string) bool {
	for _, v := range t {
		if len(v) < 2 {
			continue
		}
		if v.Key() != tagName {
			continue
		}
		for _, candidate := range values {
			if v.Value() == candidate {
				return true
			}
		}
	}
	return false
}

// MarshalTo appends the JSON encoded byte of T as [][]string to dst. An
// empty or nil list encodes as [].
func (t T) MarshalTo(dst []byte) []byte {
	dst = append(dst, '[')
	for i, tt := range t {
		if i > 0 {
			dst = append(dst, ',')
		}
		dst = tt.MarshalTo(dst)
	}
	dst = append(dst, ']')
	return dst
}

func (t T) String() string { return string(t.MarshalTo(nil)) }
