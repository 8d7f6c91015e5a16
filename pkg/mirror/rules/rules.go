// Package rules decides whether an event is eligible to be mirrored in a
// direction. A Rule is an AND over the fields it sets; a list of rules is an
// OR over its members, and an empty list admits nothing.
package rules

import (
	"fmt"
	"os"
	"strings"

	"github.com/Hubmakerlabs/reflectr/pkg/nostr/event"
	"github.com/Hubmakerlabs/reflectr/pkg/nostr/kind"
	"github.com/Hubmakerlabs/reflectr/pkg/nostr/timestamp"
	"github.com/Hubmakerlabs/reflectr/pkg/slog"
	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"
)

var log, chk = slog.New(os.Stderr)

// WhitelistMarker is the symbolic authors value that refers to the
// configured whitelist.
const WhitelistMarker = "whitelist"

// Rule selects events. Nil fields are wildcards.
type Rule struct {
	Kind        *kind.T  `yaml:"kind,omitempty"`
	MaxAgeHours *float64 `yaml:"max_age_hours,omitempty"`
	// Tags is the set of acceptable hashtag values. An empty, non nil list
	// matches nothing.
	Tags    []string `yaml:"tags"`
	Authors *Authors `yaml:"authors,omitempty"`
}

// MarshalYAML leaves out absent fields but keeps a present empty tags list,
// which would otherwise come back as a wildcard.
func (r Rule) MarshalYAML() (any, error) {
	out := struct {
		Kind        *kind.T   `yaml:"kind,omitempty"`
		MaxAgeHours *float64  `yaml:"max_age_hours,omitempty"`
		Tags        *[]string `yaml:"tags,omitempty"`
		Authors     *Authors  `yaml:"authors,omitempty"`
	}{Kind: r.Kind, MaxAgeHours: r.MaxAgeHours, Authors: r.Authors}
	if r.Tags != nil {
		out.Tags = &r.Tags
	}
	return out, nil
}

// Authors is either the whitelist marker or an explicit list of pubkeys.
type Authors struct {
	Whitelist bool
	Keys      []string
}

func (a *Authors) UnmarshalYAML(n *yaml.Node) (err error) {
	switch n.Kind {
	case yaml.ScalarNode:
		if n.Value == WhitelistMarker {
			a.Whitelist = true
			return
		}
		a.Keys = []string{strings.ToLower(n.Value)}
	case yaml.SequenceNode:
		var keys []string
		if err = n.Decode(&keys); err != nil {
			return
		}
		a.Keys = make([]string, len(keys))
		for i := range keys {
			a.Keys[i] = strings.ToLower(keys[i])
		}
	default:
		return fmt.Errorf("line %d: authors must be %q or a list of pubkeys",
			n.Line, WhitelistMarker)
	}
	return
}

func (a Authors) MarshalYAML() (any, error) {
	if a.Whitelist {
		return WhitelistMarker, nil
	}
	return a.Keys, nil
}

func (a *Authors) String() string {
	if a.Whitelist {
		return WhitelistMarker
	}
	return "[" + strings.Join(a.Keys, ",") + "]"
}

func (r *Rule) String() string {
	var parts []string
	if r.Kind != nil {
		parts = append(parts, "kind="+r.Kind.String())
	}
	if r.MaxAgeHours != nil {
		parts = append(parts, fmt.Sprintf("max_age_hours=%g", *r.MaxAgeHours))
	}
	if r.Tags != nil {
		parts = append(parts, "tags=["+strings.Join(r.Tags, ",")+"]")
	}
	if r.Authors != nil {
		parts = append(parts, "authors="+r.Authors.String())
	}
	return "{" + strings.Join(parts, " ") + "}"
}

// Engine evaluates rules against a whitelist and a clock.
type Engine struct {
	whitelist map[string]struct{}
	// Now is the wall clock the age check is made against.
	Now func() timestamp.T
}

// New returns an Engine that resolves the whitelist marker against the
// given pubkeys.
func New(whitelist []string) (e *Engine) {
	e = &Engine{
		whitelist: make(map[string]struct{}, len(whitelist)),
		Now:       timestamp.Now,
	}
	for _, k := range whitelist {
		e.whitelist[strings.ToLower(k)] = struct{}{}
	}
	return
}

// Whitelisted reports whether pubkey is on the whitelist.
func (e *Engine) Whitelisted(pubkey string) (ok bool) {
	_, ok = e.whitelist[strings.ToLower(pubkey)]
	return
}

// Matches reports whether every field r sets matches ev.
func (e *Engine) Matches(ev *event.T, r *Rule) bool {
	return e.matches(ev, r, e.Now())
}

// Eligible reports whether at least one rule in rs matches ev.
func (e *Engine) Eligible(ev *event.T, rs []Rule) bool {
	now := e.Now()
	for i := range rs {
		if e.matches(ev, &rs[i], now) {
			log.T.F("event %s matches rule %d %s", ev.ID, i, rs[i].String())
			return true
		}
	}
	return false
}

func (e *Engine) matches(ev *event.T, r *Rule, now timestamp.T) bool {
	if r.Kind != nil && ev.Kind != *r.Kind {
		return false
	}
	if r.MaxAgeHours != nil && ev.OlderThan(now, *r.MaxAgeHours*3600) {
		return false
	}
	if r.Authors != nil {
		if r.Authors.Whitelist {
			if !e.Whitelisted(ev.PubKey) {
				return false
			}
		} else if !slices.Contains(r.Authors.Keys, strings.ToLower(ev.PubKey)) {
			return false
		}
	}
	if r.Tags != nil && !ev.Tags.ContainsAny("t", r.Tags...) {
		return false
	}
	return true
}

var none = New(nil)

// Matches evaluates a single rule at the given time with an empty
// whitelist.
func Matches(ev *event.T, r *Rule, now timestamp.T) bool {
	return none.matches(ev, r, now)
}

// Eligible evaluates a rule list at the given time with an empty whitelist.
func Eligible(ev *event.T, rs []Rule, now timestamp.T) bool {
	for i := range rs {
		if none.matches(ev, &rs[i], now) {
			return true
		}
	}
	return false
}

// Validate reports rule fields that can never be satisfied sensibly.
func (r *Rule) Validate() (err error) {
	if r.MaxAgeHours != nil && *r.MaxAgeHours < 0 {
		return fmt.Errorf("max_age_hours %g is negative", *r.MaxAgeHours)
	}
	if r.Authors != nil && !r.Authors.Whitelist && len(r.Authors.Keys) == 0 {
		return fmt.Errorf("authors list is empty")
	}
	return
}
