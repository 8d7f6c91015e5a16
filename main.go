package main

import (
	"os"
	"time"

	"github.com/Hubmakerlabs/reflectr/pkg/config"
	"github.com/Hubmakerlabs/reflectr/pkg/context"
	"github.com/Hubmakerlabs/reflectr/pkg/interrupt"
	"github.com/Hubmakerlabs/reflectr/pkg/mirror"
	"github.com/Hubmakerlabs/reflectr/pkg/mirror/metrics"
	"github.com/Hubmakerlabs/reflectr/pkg/mirror/pool"
	"github.com/Hubmakerlabs/reflectr/pkg/mirror/seen"
	"github.com/Hubmakerlabs/reflectr/pkg/nostr/filter"
	"github.com/Hubmakerlabs/reflectr/pkg/opsapi"
	"github.com/Hubmakerlabs/reflectr/pkg/slog"
	"github.com/alexflint/go-arg"
	"go.uber.org/multierr"
)

var log, chk = slog.New(os.Stderr)

var args config.Args

func main() {
	arg.MustParse(&args)
	log.T.S(args)
	var err error
	if args.Init {
		if err = config.Example().Save(args.Config); chk.E(err) {
			log.F.F("failed to write example configuration: %v", err)
			os.Exit(1)
		}
		log.I.Ln("wrote example configuration to", args.Config)
		return
	}
	var conf *config.Doc
	if conf, err = config.Load(args.Config); err != nil {
		log.F.F("cannot start: %v", err)
		os.Exit(1)
	}
	args.Apply(conf)
	if !slog.SetLevelString(conf.Monitoring.LogLevel) {
		log.W.F("unknown log level %q", conf.Monitoring.LogLevel)
	}
	if !conf.Mirroring.Enabled {
		log.I.Ln("mirroring is disabled in", args.Config, "- nothing to do")
		return
	}
	if err = run(conf); chk.E(err) {
		os.Exit(1)
	}
}

func endpoints(d *config.Doc) (eps []pool.Endpoint) {
	for _, r := range d.LocalRelays {
		eps = append(eps, pool.Endpoint{Name: r.Name, URL: r.URL,
			Group: pool.Local})
	}
	for _, r := range d.PublicRelays {
		eps = append(eps, pool.Endpoint{Name: r.Name, URL: r.URL,
			Group: pool.Public})
	}
	return
}

func subscription(s config.Subscription) (f *filter.T) {
	f = &filter.T{Kinds: s.Kinds}
	if s.Limit > 0 {
		limit := s.Limit
		f.Limit = &limit
	}
	return
}

func run(conf *config.Doc) (err error) {
	// a dry run must leave the persistent set as it found it
	path := conf.Storage.Path
	if args.DryRun {
		log.W.Ln("dry run: events are classified and filtered but never sent")
		path = ""
	}
	var store seen.Store
	if store, err = seen.Open(path); err != nil {
		log.F.F("cannot open mirrored set: %v", err)
		return
	}
	defer func() { chk.E(store.Close()) }()
	m := metrics.New()
	p := pool.New(endpoints(conf), pool.Config{
		Subscription:   subscription(conf.Subscription),
		SubscribeLocal: conf.Subscription.Local,
		Proxy:          conf.Privacy.TorProxy,
		BackoffInitial: conf.Reconnect.Initial(),
		BackoffMax:     conf.Reconnect.Max(),
		InboundBuffer:  conf.Delivery.QueueSize,
		UserAgent:      config.AppName + "/" + config.Version,
	}, m)
	// the pool outlives the coordinator so that draining deliveries still
	// have connections to send on
	pc, stopPool := context.Cancel(context.Bg())
	poolDone := make(chan error, 1)
	go func() { poolDone <- p.Run(pc) }()
	ops := opsapi.New(m, p, config.Version)
	if conf.Monitoring.Listen != "" {
		go func() {
			if e := ops.Start(conf.Monitoring.Listen); e != nil {
				log.E.F("metrics endpoint stopped: %v", e)
			}
		}()
	}
	c, cancel := interrupt.Context(context.Bg())
	defer cancel()
	coordinator := mirror.New(mirror.ConfigFrom(conf, args.DryRun), p, store, m)
	if err = coordinator.Run(c); chk.E(err) {
		log.E.F("mirroring ended with error: %v", err)
	}
	stopPool()
	if e := <-poolDone; e != nil {
		log.D.F("closing relay connections: %v", e)
		err = multierr.Append(err, e)
	}
	sc, scancel := context.Timeout(context.Bg(), 5*time.Second)
	defer scancel()
	ops.Shutdown(sc)
	return
}
