package reqenvelope

import (
	"encoding/json"

	"github.com/Hubmakerlabs/reflectr/pkg/nostr/envelopes/enveloper"
	"github.com/Hubmakerlabs/reflectr/pkg/nostr/envelopes/labels"
	"github.com/Hubmakerlabs/reflectr/pkg/nostr/filter"
)

var _ enveloper.I = (*T)(nil)

// T opens a subscription: ["REQ",<subscription id>,<filter>...].
type T struct {
	SubscriptionID string
	Filters        []*filter.T
}

func (env *T) Label() string { return labels.REQ }

func (env *T) MarshalJSON() ([]byte, error) {
	a := make([]any, 0, 2+len(env.Filters))
	a = append(a, labels.REQ, env.SubscriptionID)
	for _, f := range env.Filters {
		a = append(a, f)
	}
	return json.Marshal(a)
}

func FromRaw(raw []json.RawMessage) (env *T, err error) {
	env = &T{}
	if env.SubscriptionID, err = enveloper.String(labels.REQ, raw,
		1); err != nil {
		return nil, err
	}
	for i := 2; i < len(raw); i++ {
		f := &filter.T{}
		if err = json.Unmarshal(raw[i], f); err != nil {
			return nil, enveloper.Errorf(labels.REQ, "filter %d: %v", i-2, err)
		}
		env.Filters = append(env.Filters, f)
	}
	return
}
