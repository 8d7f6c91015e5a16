package okenvelope

import (
	"encoding/json"

	"github.com/Hubmakerlabs/reflectr/pkg/nostr/envelopes/enveloper"
	"github.com/Hubmakerlabs/reflectr/pkg/nostr/envelopes/labels"
)

var _ enveloper.I = (*T)(nil)

// T is a relay message sent in response to an EVENT to indicate acceptance
// (OK is true) or rejection, with a human readable Reason whose first word
// is a machine readable prefix such as "duplicate:" or "blocked:".
type T struct {
	ID     string
	OK     bool
	Reason string
}

func (env *T) Label() string { return labels.OK }

func (env *T) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{labels.OK, env.ID, env.OK, env.Reason})
}

func FromRaw(raw []json.RawMessage) (env *T, err error) {
	env = &T{}
	if env.ID, err = enveloper.String(labels.OK, raw, 1); err != nil {
		return nil, err
	}
	if len(raw) < 3 {
		return nil, enveloper.Errorf(labels.OK, "missing status")
	}
	if err = json.Unmarshal(raw[2], &env.OK); err != nil {
		return nil, enveloper.Errorf(labels.OK, "status is not a boolean")
	}
	if len(raw) > 3 {
		if env.Reason, err = enveloper.String(labels.OK, raw, 3); err != nil {
			return nil, err
		}
	}
	return
}
