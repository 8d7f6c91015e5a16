package eoseenvelope

import (
	"encoding/json"

	"github.com/Hubmakerlabs/reflectr/pkg/nostr/envelopes/enveloper"
	"github.com/Hubmakerlabs/reflectr/pkg/nostr/envelopes/labels"
	"github.com/Hubmakerlabs/reflectr/pkg/nostr/tag"
)

var _ enveloper.I = (*T)(nil)

// T marks the end of the stored events a relay returns for a subscription.
type T struct {
	SubscriptionID string
}

func (env *T) Label() string { return labels.EOSE }

func (env *T) MarshalJSON() ([]byte, error) {
	b := append([]byte(`["EOSE",`), tag.AppendQuoted(nil, env.SubscriptionID)...)
	return append(b, ']'), nil
}

func FromRaw(raw []json.RawMessage) (env *T, err error) {
	env = &T{}
	if env.SubscriptionID, err = enveloper.String(labels.EOSE, raw,
		1); err != nil {
		return nil, err
	}
	return
}
