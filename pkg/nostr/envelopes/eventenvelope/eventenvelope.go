package eventenvelope

import (
	"encoding/json"

	"github.com/Hubmakerlabs/reflectr/pkg/nostr/envelopes/enveloper"
	"github.com/Hubmakerlabs/reflectr/pkg/nostr/envelopes/labels"
	"github.com/Hubmakerlabs/reflectr/pkg/nostr/event"
	"github.com/Hubmakerlabs/reflectr/pkg/nostr/tag"
)

var _ enveloper.I = (*T)(nil)

// T is the wrapper around an event. Relays send it with a subscription ID
// (["EVENT",<sub>,<event>]), clients publish without one (["EVENT",<event>]).
type T struct {
	SubscriptionID string
	// The Event is here a pointer because it should not be copied unnecessarily.
	Event *event.T
}

func (env *T) Label() string { return labels.EVENT }

func (env *T) Bytes() (b []byte) {
	b = append(b, `["EVENT",`...)
	if env.SubscriptionID != "" {
		b = tag.AppendQuoted(b, env.SubscriptionID)
		b = append(b, ',')
	}
	b = append(b, env.Event.Serialize()...)
	return append(b, ']')
}

func (env *T) MarshalJSON() ([]byte, error) { return env.Bytes(), nil }

// FromRaw decodes the elements of an EVENT message, the label included.
func FromRaw(raw []json.RawMessage) (env *T, err error) {
	env = &T{}
	evIdx := 1
	switch len(raw) {
	case 2:
	case 3:
		if env.SubscriptionID, err = enveloper.String(labels.EVENT, raw,
			1); err != nil {
			return nil, err
		}
		evIdx = 2
	default:
		return nil, enveloper.Errorf(labels.EVENT, "%d elements", len(raw))
	}
	if env.Event, err = event.Parse(raw[evIdx]); err != nil {
		return nil, enveloper.Errorf(labels.EVENT, "%v", err)
	}
	return
}
