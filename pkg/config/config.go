// Package config is the mirror configuration: a YAML document naming the
// relay groups, the rule lists of each direction and the tuning of delivery,
// privacy and retention, plus the command line that points at it.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Hubmakerlabs/reflectr/pkg/mirror/rules"
	"github.com/Hubmakerlabs/reflectr/pkg/nostr/kind"
	"github.com/Hubmakerlabs/reflectr/pkg/nostr/normalize"
	"github.com/Hubmakerlabs/reflectr/pkg/slog"
	"gopkg.in/yaml.v3"
)

var log, chk = slog.New(os.Stderr)

// ErrConfig marks a configuration that could not be loaded or is invalid.
var ErrConfig = errors.New("configuration error")

// Modes restrict which directions are mirrored.
const (
	ModeHybrid   = "hybrid"
	ModeOutbound = "outbound"
	ModeInbound  = "inbound"
)

type Relay struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

type Mirroring struct {
	Enabled bool `yaml:"enabled"`
	// Mode is hybrid (both directions), outbound (local to public only) or
	// inbound (public to local only).
	Mode string `yaml:"mode"`
	// VerifyIDs drops events whose id is not the hash of their content.
	VerifyIDs bool `yaml:"verify_ids"`
	// Whitelist is what the "whitelist" authors marker in a rule refers to.
	Whitelist []string `yaml:"whitelist,omitempty"`
}

type EventFilters struct {
	Outbound []rules.Rule `yaml:"outbound,omitempty"`
	Inbound  []rules.Rule `yaml:"inbound,omitempty"`
}

type Privacy struct {
	RandomizeTiming bool    `yaml:"randomize_timing"`
	MinDelaySeconds float64 `yaml:"min_delay_seconds"`
	MaxDelaySeconds float64 `yaml:"max_delay_seconds"`
	// TorProxy is a SOCKS5 address public relays are dialled through.
	TorProxy string `yaml:"tor_proxy"`
}

type Storage struct {
	MaxMirrorEvents      int     `yaml:"max_mirror_events"`
	CleanupIntervalHours float64 `yaml:"cleanup_interval_hours"`
	// Path is the badger directory of the persistent mirrored set. Empty
	// keeps the set in memory.
	Path string `yaml:"path"`
}

type Subscription struct {
	Kinds []kind.T `yaml:"kinds"`
	Limit int      `yaml:"limit"`
	// Local also subscribes on local relays; a relay sends nothing to a
	// connection without a subscription.
	Local bool `yaml:"local"`
}

type Delivery struct {
	Workers            int     `yaml:"workers"`
	QueueSize          int     `yaml:"queue_size"`
	SendTimeoutSeconds float64 `yaml:"send_timeout_seconds"`
}

type Reconnect struct {
	InitialSeconds float64 `yaml:"initial_seconds"`
	MaxSeconds     float64 `yaml:"max_seconds"`
}

type Monitoring struct {
	LogLevel string `yaml:"log_level"`
	Listen   string `yaml:"listen"`
}

// Doc is the configuration document.
type Doc struct {
	Mirroring    Mirroring    `yaml:"mirroring"`
	LocalRelays  []Relay      `yaml:"local_relays,omitempty"`
	PublicRelays []Relay      `yaml:"public_relays,omitempty"`
	EventFilters EventFilters `yaml:"event_filters"`
	Privacy      Privacy      `yaml:"privacy"`
	Storage      Storage      `yaml:"storage"`
	Subscription Subscription `yaml:"subscription"`
	Delivery     Delivery     `yaml:"delivery"`
	Reconnect    Reconnect    `yaml:"reconnect"`
	Monitoring   Monitoring   `yaml:"monitoring"`
}

// Default returns the configuration used for keys the document leaves out.
func Default() *Doc {
	return &Doc{
		Mirroring: Mirroring{Enabled: true, Mode: ModeHybrid},
		Privacy: Privacy{
			RandomizeTiming: true,
			MinDelaySeconds: 5,
			MaxDelaySeconds: 30,
		},
		Storage: Storage{MaxMirrorEvents: 10000, CleanupIntervalHours: 24},
		Subscription: Subscription{
			Kinds: []kind.T{kind.ProfileMetadata, kind.TextNote,
				kind.FollowList, kind.LongFormContent},
			Limit: 100,
			Local: true,
		},
		Delivery:   Delivery{Workers: 32, QueueSize: 1024, SendTimeoutSeconds: 10},
		Reconnect:  Reconnect{InitialSeconds: 1, MaxSeconds: 300},
		Monitoring: Monitoring{LogLevel: "info", Listen: "0.0.0.0:9091"},
	}
}

// Example is the document written by --init.
func Example() (d *Doc) {
	d = Default()
	d.LocalRelays = []Relay{{Name: "local", URL: "ws://localhost:7777"}}
	d.PublicRelays = []Relay{{Name: "damus", URL: "wss://relay.damus.io"}}
	k, day := kind.TextNote, 24.0
	d.EventFilters.Outbound = []rules.Rule{{Kind: &k, MaxAgeHours: &day}}
	d.EventFilters.Inbound = []rules.Rule{{Kind: &k,
		Tags: []string{"bitcoin", "nostr"}}}
	return
}

// Parse decodes a document over the defaults. Unknown keys are an error.
func Parse(b []byte) (d *Doc, err error) {
	d = Default()
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	// an empty or comment only document leaves every default in place
	if err = dec.Decode(d); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if err = d.Validate(); err != nil {
		return nil, err
	}
	return
}

// Load reads and validates the document at filename.
func Load(filename string) (d *Doc, err error) {
	var b []byte
	if b, err = os.ReadFile(filename); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if d, err = Parse(b); err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	log.D.F("loaded configuration from %s", filename)
	return
}

func (d *Doc) Save(filename string) (err error) {
	if d == nil {
		err = errors.New("cannot save nil mirror config")
		log.E.Ln(err)
		return
	}
	var b []byte
	if b, err = yaml.Marshal(d); chk.E(err) {
		return
	}
	if err = os.WriteFile(filename, b, 0600); chk.E(err) {
		return
	}
	return
}

// Validate reports the first problem found in the document.
func (d *Doc) Validate() (err error) {
	fail := func(format string, a ...any) error {
		return fmt.Errorf("%w: %s", ErrConfig, fmt.Sprintf(format, a...))
	}
	switch d.Mirroring.Mode {
	case ModeHybrid, ModeOutbound, ModeInbound:
	default:
		return fail("mirroring.mode %q is not one of %s, %s, %s",
			d.Mirroring.Mode, ModeHybrid, ModeOutbound, ModeInbound)
	}
	for _, g := range []struct {
		key    string
		relays []Relay
	}{{"local_relays", d.LocalRelays}, {"public_relays", d.PublicRelays}} {
		names := make(map[string]struct{}, len(g.relays))
		for i, r := range g.relays {
			if r.Name == "" {
				return fail("%s[%d] has no name", g.key, i)
			}
			if _, dup := names[r.Name]; dup {
				return fail("%s: duplicate name %q", g.key, r.Name)
			}
			names[r.Name] = struct{}{}
			if normalize.URL(r.URL) == "" {
				return fail("%s.%s: invalid url %q", g.key, r.Name, r.URL)
			}
		}
	}
	for dir, rs := range map[string][]rules.Rule{
		"outbound": d.EventFilters.Outbound,
		"inbound":  d.EventFilters.Inbound,
	} {
		for i := range rs {
			if err = rs[i].Validate(); err != nil {
				return fail("event_filters.%s[%d]: %v", dir, i, err)
			}
		}
	}
	p := d.Privacy
	if p.MinDelaySeconds < 0 || p.MaxDelaySeconds < 0 {
		return fail("privacy delays must not be negative")
	}
	if p.MinDelaySeconds > p.MaxDelaySeconds {
		return fail("privacy.min_delay_seconds %g exceeds max_delay_seconds %g",
			p.MinDelaySeconds, p.MaxDelaySeconds)
	}
	if d.Storage.MaxMirrorEvents < 1 {
		return fail("storage.max_mirror_events must be positive")
	}
	if d.Storage.CleanupIntervalHours <= 0 {
		return fail("storage.cleanup_interval_hours must be positive")
	}
	if d.Subscription.Limit < 0 {
		return fail("subscription.limit must not be negative")
	}
	if d.Delivery.Workers < 1 || d.Delivery.QueueSize < 1 {
		return fail("delivery.workers and delivery.queue_size must be positive")
	}
	if d.Delivery.SendTimeoutSeconds <= 0 {
		return fail("delivery.send_timeout_seconds must be positive")
	}
	if d.Reconnect.InitialSeconds <= 0 ||
		d.Reconnect.MaxSeconds < d.Reconnect.InitialSeconds {
		return fail("reconnect.initial_seconds must be positive and not " +
			"above reconnect.max_seconds")
	}
	if _, ok := slog.LevelFromString(d.Monitoring.LogLevel); !ok &&
		d.Monitoring.LogLevel != "" {
		return fail("monitoring.log_level %q is not one of "+
			"off,fatal,error,warn,info,debug,trace", d.Monitoring.LogLevel)
	}
	return nil
}

// Outbound reports whether local to public mirroring is on.
func (m Mirroring) Outbound() bool { return m.Mode != ModeInbound }

// Inbound reports whether public to local mirroring is on.
func (m Mirroring) Inbound() bool { return m.Mode != ModeOutbound }

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func (p Privacy) MinDelay() time.Duration { return seconds(p.MinDelaySeconds) }
func (p Privacy) MaxDelay() time.Duration { return seconds(p.MaxDelaySeconds) }

func (s Storage) CleanupInterval() time.Duration {
	return seconds(s.CleanupIntervalHours * 3600)
}

func (d Delivery) SendTimeout() time.Duration {
	return seconds(d.SendTimeoutSeconds)
}

func (r Reconnect) Initial() time.Duration { return seconds(r.InitialSeconds) }
func (r Reconnect) Max() time.Duration     { return seconds(r.MaxSeconds) }
