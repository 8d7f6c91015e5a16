package config

import (
	"fmt"
)

// DefaultPath is where the configuration is read from when neither --config
// nor MIRROR_CONFIG_PATH says otherwise.
const DefaultPath = "/config/mirror.yml"

var (
	AppName = "reflectr"
	Version = "v0.1.0"
)

// Args is the daemon command line.
type Args struct {
	Config   string `arg:"-c,--config,env:MIRROR_CONFIG_PATH" default:"/config/mirror.yml" help:"path of the YAML mirror configuration"`
	LogLevel string `arg:"--loglevel" help:"set log level [off,fatal,error,warn,info,debug,trace] (overrides monitoring.log_level, can also use GODEBUG environment variable)"`
	Listen   string `arg:"-l,--listen" help:"address of the metrics and status endpoint (overrides monitoring.listen)"`
	DryRun   bool   `arg:"--dry-run" help:"receive, classify and filter events but never send them"`
	Init     bool   `arg:"--init" help:"write an example configuration to the config path and exit"`
}

func (a *Args) Version() string { return fmt.Sprintf("%s %s", AppName, Version) }

func (a *Args) Description() string {
	return "mirrors nostr events between local and public relays"
}

// Apply lets the command line override the document.
func (a *Args) Apply(d *Doc) {
	if a.LogLevel != "" {
		d.Monitoring.LogLevel = a.LogLevel
	}
	if a.Listen != "" {
		d.Monitoring.Listen = a.Listen
	}
}
