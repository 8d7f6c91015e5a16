package mirror

import (
	"time"

	"github.com/Hubmakerlabs/reflectr/pkg/config"
	"github.com/Hubmakerlabs/reflectr/pkg/mirror/rules"
)

type Config struct {
	Outbound, Inbound []rules.Rule
	// Whitelist resolves the whitelist authors marker.
	Whitelist []string
	// OutboundEnabled and InboundEnabled switch each direction.
	OutboundEnabled, InboundEnabled bool
	VerifyIDs                       bool
	RandomizeTiming                 bool
	MinDelay, MaxDelay              time.Duration
	SendTimeout                     time.Duration
	// Workers and QueueSize size each destination group's delivery queue.
	Workers, QueueSize int
	MaxMirrorEvents    int
	CleanupInterval    time.Duration
	// DryRun runs the whole pipeline except the sends.
	DryRun bool
}

// ConfigFrom derives the coordinator settings from the configuration
// document.
func ConfigFrom(d *config.Doc, dryRun bool) Config {
	return Config{
		Outbound:        d.EventFilters.Outbound,
		Inbound:         d.EventFilters.Inbound,
		Whitelist:       d.Mirroring.Whitelist,
		OutboundEnabled: d.Mirroring.Outbound(),
		InboundEnabled:  d.Mirroring.Inbound(),
		VerifyIDs:       d.Mirroring.VerifyIDs,
		RandomizeTiming: d.Privacy.RandomizeTiming,
		MinDelay:        d.Privacy.MinDelay(),
		MaxDelay:        d.Privacy.MaxDelay(),
		SendTimeout:     d.Delivery.SendTimeout(),
		Workers:         d.Delivery.Workers,
		QueueSize:       d.Delivery.QueueSize,
		MaxMirrorEvents: d.Storage.MaxMirrorEvents,
		CleanupInterval: d.Storage.CleanupInterval(),
		DryRun:          dryRun,
	}
}
