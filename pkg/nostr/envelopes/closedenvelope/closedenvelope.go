package closedenvelope

import (
	"encoding/json"

	"github.com/Hubmakerlabs/reflectr/pkg/nostr/envelopes/enveloper"
	"github.com/Hubmakerlabs/reflectr/pkg/nostr/envelopes/labels"
)

var _ enveloper.I = (*T)(nil)

// T is sent by a relay when it ends a subscription on its side.
type T struct {
	SubscriptionID string
	Reason         string
}

func (env *T) Label() string { return labels.CLOSED }

func (env *T) MarshalJSON() ([]byte, error) {
	return json.Marshal([]string{labels.CLOSED, env.SubscriptionID,
		env.Reason})
}

func FromRaw(raw []json.RawMessage) (env *T, err error) {
	env = &T{}
	if env.SubscriptionID, err = enveloper.String(labels.CLOSED, raw,
		1); err != nil {
		return nil, err
	}
	if len(raw) > 2 {
		if env.Reason, err = enveloper.String(labels.CLOSED, raw,
			2); err != nil {
			return nil, err
		}
	}
	return
}
