package event

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"

	"github.com/Hubmakerlabs/reflectr/pkg/nostr/kind"
	"github.com/Hubmakerlabs/reflectr/pkg/nostr/tag"
	"github.com/Hubmakerlabs/reflectr/pkg/nostr/tags"
	"github.com/Hubmakerlabs/reflectr/pkg/nostr/timestamp"
	"github.com/Hubmakerlabs/reflectr/pkg/slog"
	"github.com/minio/sha256-simd"
)

var log, chk = slog.New(os.Stderr)

// ErrParse marks an event object that is not well formed.
var ErrParse = errors.New("malformed event")

// T is the primary datatype of nostr. This is the form of the structure
// that defines its JSON string based format.
//
// The mirror never changes an event it forwards, so once parsed a T is
// treated as immutable and the ID is its identity.
type T struct {

	// ID is the SHA256 hash of the canonical encoding of the event
	ID string `json:"id"`

	// PubKey is the public key of the event creator in *hexadecimal* format
	PubKey string `json:"pubkey"`

	// CreatedAt is the UNIX timestamp of the event according to the event
	// creator (never trust a timestamp!)
	CreatedAt timestamp.T `json:"created_at"`

	// Kind is the nostr protocol code for the type of event. See kind.T
	Kind kind.T `json:"kind"`

	// Tags are a list of tags, which are a list of strings usually structured
	// as a 3 layer scheme indicating specific features of an event.
	Tags tags.T `json:"tags"`

	// Content is an arbitrary string that can contain anything, but usually
	// conforming to a specification relating to the Kind and the Tags.
	Content string `json:"content"`

	// Sig is the signature on the ID hash that validates as coming from the
	// Pubkey. It is carried through untouched.
	Sig string `json:"sig"`
}

// fields is the complete and exclusive set of event object keys.
var fields = []string{"id", "pubkey", "created_at", "kind", "tags", "content",
	"sig"}

// Parse decodes an event object. Every one of the seven fields must be
// present with the right JSON type and no other field is accepted; anything
// else is an ErrParse.
func Parse(b []byte) (ev *T, err error) {
	var raw map[string]json.RawMessage
	if err = json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: not an object", ErrParse)
	}
	for _, f := range fields {
		if v, ok := raw[f]; !ok || bytes.Equal(v, []byte("null")) {
			return nil, fmt.Errorf("%w: missing field %q", ErrParse, f)
		}
	}
	if len(raw) != len(fields) {
		for k := range raw {
			if !isField(k) {
				return nil, fmt.Errorf("%w: unexpected field %q", ErrParse, k)
			}
		}
	}
	ev = &T{}
	var createdAt int64
	var k uint16
	for _, d := range []struct {
		name string
		into any
	}{
		{"id", &ev.ID},
		{"pubkey", &ev.PubKey},
		{"created_at", &createdAt},
		{"kind", &k},
		{"tags", &ev.Tags},
		{"content", &ev.Content},
		{"sig", &ev.Sig},
	} {
		if err = json.Unmarshal(raw[d.name], d.into); err != nil {
			return nil, fmt.Errorf("%w: field %q: %v", ErrParse, d.name, err)
		}
	}
	if ev.ID == "" {
		return nil, fmt.Errorf("%w: empty id", ErrParse)
	}
	ev.CreatedAt = timestamp.T(createdAt)
	ev.Kind = kind.T(k)
	if ev.Tags == nil {
		ev.Tags = tags.T{}
	}
	for i := range ev.Tags {
		if ev.Tags[i] == nil {
			return nil, fmt.Errorf("%w: tag %d is null", ErrParse, i)
		}
	}
	return
}

func isField(k string) bool {
	for _, f := range fields {
		if f == k {
			return true
		}
	}
	return false
}

// UnmarshalJSON applies the same strict rules as Parse.
func (ev *T) UnmarshalJSON(b []byte) (err error) {
	var parsed *T
	if parsed, err = Parse(b); err != nil {
		return
	}
	*ev = *parsed
	return
}

// MarshalJSON writes the event object with its fields in the conventional
// order, tags never null.
func (ev *T) MarshalJSON() ([]byte, error) { return ev.Serialize(), nil }

// Serialize returns the wire form of the event object.
func (ev *T) Serialize() (b []byte) {
	b = make([]byte, 0, 256+len(ev.Content))
	b = append(b, `{"id":`...)
	b = tag.AppendQuoted(b, ev.ID)
	b = append(b, `,"pubkey":`...)
	b = tag.AppendQuoted(b, ev.PubKey)
	b = append(b, `,"created_at":`...)
	b = strconv.AppendInt(b, ev.CreatedAt.I64(), 10)
	b = append(b, `,"kind":`...)
	b = strconv.AppendUint(b, uint64(ev.Kind), 10)
	b = append(b, `,"tags":`...)
	b = ev.Tags.MarshalTo(b)
	b = append(b, `,"content":`...)
	b = tag.AppendQuoted(b, ev.Content)
	b = append(b, `,"sig":`...)
	b = tag.AppendQuoted(b, ev.Sig)
	b = append(b, '}')
	return
}

func (ev *T) String() string { return string(ev.Serialize()) }

// ToCanonical returns the canonical array form that the ID hashes:
// [0,<pubkey>,<created_at>,<kind>,<tags>,<content>].
func (ev *T) ToCanonical() (b []byte) {
	b = make([]byte, 0, 128+len(ev.Content))
	b = append(b, `[0,`...)
	b = tag.AppendQuoted(b, ev.PubKey)
	b = append(b, ',')
	b = strconv.AppendInt(b, ev.CreatedAt.I64(), 10)
	b = append(b, ',')
	b = strconv.AppendUint(b, uint64(ev.Kind), 10)
	b = append(b, ',')
	b = ev.Tags.MarshalTo(b)
	b = append(b, ',')
	b = tag.AppendQuoted(b, ev.Content)
	b = append(b, ']')
	return
}

// ComputeID returns the hex encoded SHA256 hash of the canonical form.
func (ev *T) ComputeID() string {
	h := sha256.Sum256(ev.ToCanonical())
	return hex.EncodeToString(h[:])
}

// CheckID reports whether the ID field matches the content of the event.
func (ev *T) CheckID() (ok bool) {
	if ok = ev.ID == ev.ComputeID(); !ok {
		log.T.F("event %s does not hash to its id", ev.ID)
	}
	return
}

// OlderThan reports whether the creator supplied timestamp lies more than
// maxAge seconds before now. The timestamp is taken at face value.
func (ev *T) OlderThan(now timestamp.T, maxAge float64) bool {
	if math.IsNaN(maxAge) {
		return false
	}
	return float64(now-ev.CreatedAt) > maxAge
}
