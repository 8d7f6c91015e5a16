// Package filter is the subscription filter object carried by REQ messages.
// Only the fields the mirror subscribes with are modelled.
package filter

import (
	"encoding/json"

	"github.com/Hubmakerlabs/reflectr/pkg/nostr/kind"
	"github.com/Hubmakerlabs/reflectr/pkg/nostr/timestamp"
)

type T struct {
	IDs     []string     `json:"ids,omitempty"`
	Kinds   []kind.T     `json:"kinds,omitempty"`
	Authors []string     `json:"authors,omitempty"`
	Since   *timestamp.T `json:"since,omitempty"`
	Until   *timestamp.T `json:"until,omitempty"`
	Limit   *int         `json:"limit,omitempty"`
}

func (f *T) String() string {
	b, _ := json.Marshal(f)
	return string(b)
}
