// Package envelopes decodes the NIP-01 message arrays exchanged with
// relays.
package envelopes

import (
	"encoding/json"

	"github.com/Hubmakerlabs/reflectr/pkg/nostr/envelopes/closedenvelope"
	"github.com/Hubmakerlabs/reflectr/pkg/nostr/envelopes/enveloper"
	"github.com/Hubmakerlabs/reflectr/pkg/nostr/envelopes/eoseenvelope"
	"github.com/Hubmakerlabs/reflectr/pkg/nostr/envelopes/eventenvelope"
	"github.com/Hubmakerlabs/reflectr/pkg/nostr/envelopes/labels"
	"github.com/Hubmakerlabs/reflectr/pkg/nostr/envelopes/noticeenvelope"
	"github.com/Hubmakerlabs/reflectr/pkg/nostr/envelopes/okenvelope"
	"github.com/Hubmakerlabs/reflectr/pkg/nostr/envelopes/reqenvelope"
)

// ErrParse is returned, wrapped, for every message that cannot be decoded.
var ErrParse = enveloper.ErrParse

// Unknown is a well formed array with a label this package does not decode
// (AUTH, COUNT, CLOSE and anything newer). Callers ignore it.
type Unknown struct {
	Name string
	Raw  []json.RawMessage
}

func (env *Unknown) Label() string { return env.Name }

func (env *Unknown) MarshalJSON() ([]byte, error) {
	a := make([]any, 0, len(env.Raw)+1)
	a = append(a, env.Name)
	for _, r := range env.Raw[1:] {
		a = append(a, r)
	}
	return json.Marshal(a)
}

// Identify splits a message into its label and raw elements (label
// included at index 0).
func Identify(b []byte) (label string, raw []json.RawMessage, err error) {
	if err = json.Unmarshal(b, &raw); err != nil {
		return "", nil, enveloper.Errorf("message", "not a JSON array: %v", err)
	}
	if len(raw) == 0 {
		return "", nil, enveloper.Errorf("message", "empty array")
	}
	if err = json.Unmarshal(raw[0], &label); err != nil {
		return "", nil, enveloper.Errorf("message", "label is not a string")
	}
	return
}

// Parse decodes a message into its envelope type.
func Parse(b []byte) (env enveloper.I, err error) {
	var label string
	var raw []json.RawMessage
	if label, raw, err = Identify(b); err != nil {
		return
	}
	switch label {
	case labels.EVENT:
		return eventenvelope.FromRaw(raw)
	case labels.EOSE:
		return eoseenvelope.FromRaw(raw)
	case labels.OK:
		return okenvelope.FromRaw(raw)
	case labels.NOTICE:
		return noticeenvelope.FromRaw(raw)
	case labels.CLOSED:
		return closedenvelope.FromRaw(raw)
	case labels.REQ:
		return reqenvelope.FromRaw(raw)
	default:
		return &Unknown{Name: label, Raw: raw}, nil
	}
}
