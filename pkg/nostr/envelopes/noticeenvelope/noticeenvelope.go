package noticeenvelope

import (
	"encoding/json"

	"github.com/Hubmakerlabs/reflectr/pkg/nostr/envelopes/enveloper"
	"github.com/Hubmakerlabs/reflectr/pkg/nostr/envelopes/labels"
)

var _ enveloper.I = (*T)(nil)

// T is a human readable message from a relay.
type T struct {
	Text string
}

func (env *T) Label() string { return labels.NOTICE }

func (env *T) MarshalJSON() ([]byte, error) {
	return json.Marshal([]string{labels.NOTICE, env.Text})
}

func FromRaw(raw []json.RawMessage) (env *T, err error) {
	env = &T{}
	if env.Text, err = enveloper.String(labels.NOTICE, raw, 1); err != nil {
		return nil, err
	}
	return
}
