// Package mirror is the coordinator that forwards events between the local
// and the public relay groups.
//
// A single goroutine owns the mirrored set and the set of events in flight:
// it takes events from the pool, drops the ones already mirrored or in
// flight, picks the direction from the group the event came from, applies
// that direction's rules and hands the event to the opposite group's
// delivery queue. Workers fan each event out to every connected relay of
// that group and report back; only then is the id recorded, once, whatever
// the individual sends did.
package mirror

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/Hubmakerlabs/reflectr/pkg/context"
	"github.com/Hubmakerlabs/reflectr/pkg/mirror/metrics"
	"github.com/Hubmakerlabs/reflectr/pkg/mirror/pool"
	"github.com/Hubmakerlabs/reflectr/pkg/mirror/rules"
	"github.com/Hubmakerlabs/reflectr/pkg/mirror/seen"
	"github.com/Hubmakerlabs/reflectr/pkg/nostr/event"
	"github.com/Hubmakerlabs/reflectr/pkg/slog"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"lukechampine.com/frand"
)

var log, chk = slog.New(os.Stderr)

// ErrDelivery marks a send to one destination that failed.
var ErrDelivery = errors.New("delivery failed")

// Direction of a mirrored event.
type Direction int

const (
	// Outbound is local to public.
	Outbound Direction = iota
	// Inbound is public to local.
	Inbound
)

func (d Direction) String() string {
	if d == Outbound {
		return "outbound"
	}
	return "inbound"
}

// DirectionOf is the direction of an event received from group g.
func DirectionOf(g pool.Group) Direction {
	if g == pool.Local {
		return Outbound
	}
	return Inbound
}

// Pool is what the coordinator needs from the relay connections.
type Pool interface {
	Inbound() <-chan pool.Inbound
	Connected(g pool.Group) []string
	Send(c context.T, g pool.Group, name string, ev *event.T) error
}

type job struct {
	ev      *event.T
	from    string
	dir     Direction
	dest    pool.Group
	started time.Time
}

type result struct {
	id           string
	sent, failed int
	err          error
}

type T struct {
	cfg     Config
	pool    Pool
	store   seen.Store
	rules   *rules.Engine
	metrics *metrics.T
	// inFlight and store are only touched by the Run goroutine.
	inFlight map[string]struct{}
	queues   map[pool.Group]chan job
	results  chan result
	workers  sync.WaitGroup
}

func New(cfg Config, p Pool, store seen.Store, m *metrics.T) (t *T) {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 24 * time.Hour
	}
	if m == nil {
		m = metrics.New()
	}
	t = &T{
		cfg:      cfg,
		pool:     p,
		store:    store,
		rules:    rules.New(cfg.Whitelist),
		metrics:  m,
		inFlight: make(map[string]struct{}),
		queues: map[pool.Group]chan job{
			pool.Local:  make(chan job, cfg.QueueSize),
			pool.Public: make(chan job, cfg.QueueSize),
		},
		results: make(chan result),
	}
	return
}

// Run processes events until c is done or the pool's inbound stream ends.
// It then stops taking events, lets queued deliveries finish and records
// them before returning.
func (t *T) Run(c context.T) (err error) {
	for g, q := range t.queues {
		for i := 0; i < t.cfg.Workers; i++ {
			t.workers.Add(1)
			go t.worker(c, g, q)
		}
	}
	t.updateSetSize()
	cleanup := time.NewTicker(t.cfg.CleanupInterval)
	defer cleanup.Stop()
	inbound := t.pool.Inbound()
	log.I.F("mirroring started: %d workers per group, queue size %d",
		t.cfg.Workers, t.cfg.QueueSize)
out:
	for {
		select {
		case in, ok := <-inbound:
			if !ok {
				log.D.Ln("inbound stream closed")
				break out
			}
			t.handle(in)
		case r := <-t.results:
			t.record(r)
		case <-cleanup.C:
			t.cleanup()
		case <-c.Done():
			break out
		}
	}
	log.I.F("stopping mirroring, draining %d deliveries", len(t.inFlight))
	for _, q := range t.queues {
		close(q)
	}
	go func() {
		t.workers.Wait()
		close(t.results)
	}()
	for r := range t.results {
		t.record(r)
	}
	log.I.Ln("mirroring stopped")
	return
}

// handle takes an event through the dedup gate, classification and rules
// and queues it for delivery.
func (t *T) handle(in pool.Inbound) {
	ev := in.Event
	if _, ok := t.inFlight[ev.ID]; ok {
		t.discard(ev, in, metrics.Duplicate)
		return
	}
	found, err := t.store.Contains(ev.ID)
	if err != nil {
		// unknown membership is treated as already mirrored
		t.metrics.Error(metrics.ErrMirror, in.Relay)
		log.E.F("mirrored set lookup for %s: %v", ev.ID, err)
		return
	}
	if found {
		t.discard(ev, in, metrics.Duplicate)
		return
	}
	dir := DirectionOf(in.Group)
	var rs []rules.Rule
	switch dir {
	case Outbound:
		if !t.cfg.OutboundEnabled {
			t.discard(ev, in, metrics.Ineligible)
			return
		}
		rs = t.cfg.Outbound
	case Inbound:
		if !t.cfg.InboundEnabled {
			t.discard(ev, in, metrics.Ineligible)
			return
		}
		rs = t.cfg.Inbound
	}
	if !t.rules.Eligible(ev, rs) {
		t.discard(ev, in, metrics.Ineligible)
		return
	}
	if t.cfg.VerifyIDs && !ev.CheckID() {
		t.discard(ev, in, metrics.BadID)
		return
	}
	j := job{ev: ev, from: in.Relay, dir: dir, dest: in.Group.Opposite(),
		started: time.Now()}
	q := t.queues[j.dest]
	select {
	case q <- j:
		t.inFlight[ev.ID] = struct{}{}
		t.metrics.QueueDepth.WithLabelValues(j.dest.String()).Set(float64(len(q)))
		log.T.F("queued %s event %s from %s", dir, ev.ID, in.Relay)
	default:
		t.metrics.Error(metrics.ErrQueueFull, j.dest.String())
		log.W.F("%s delivery queue full, dropping event %s from %s",
			j.dest, ev.ID, in.Relay)
	}
}

func (t *T) discard(ev *event.T, in pool.Inbound, reason string) {
	t.metrics.Discard(reason)
	log.T.F("discarding %s event %s from %s relay %s", reason, ev.ID,
		in.Group, in.Relay)
}

func (t *T) record(r result) {
	delete(t.inFlight, r.id)
	if err := t.store.Add(r.id); err != nil {
		log.E.F("recording %s in mirrored set: %v", r.id, err)
	}
	t.updateSetSize()
	if r.err != nil {
		log.D.F("event %s: %d sent, %d failed: %v", r.id, r.sent, r.failed,
			r.err)
		return
	}
	log.D.F("event %s: %d sent", r.id, r.sent)
}

func (t *T) cleanup() {
	removed, err := t.store.Evict(t.cfg.MaxMirrorEvents)
	if chk.E(err) {
		return
	}
	if removed > 0 {
		log.I.F("cleanup evicted %d ids from the mirrored set", removed)
	}
	t.updateSetSize()
}

func (t *T) updateSetSize() {
	if n, err := t.store.Len(); !chk.E(err) {
		t.metrics.SetSize.Set(float64(n))
	}
}

func (t *T) worker(c context.T, g pool.Group, q chan job) {
	defer t.workers.Done()
	for j := range q {
		t.metrics.QueueDepth.WithLabelValues(g.String()).Set(float64(len(q)))
		t.results <- t.deliver(c, j)
	}
}

// deliver sends the event to every connected relay of the destination
// group concurrently. A failing destination does not affect the others.
func (t *T) deliver(c context.T, j job) (r result) {
	r.id = j.ev.ID
	names := t.pool.Connected(j.dest)
	errs := make([]error, len(names))
	var g errgroup.Group
	for i, name := range names {
		g.Go(func() error {
			if t.cfg.RandomizeTiming {
				d := Jitter(t.cfg.MinDelay, t.cfg.MaxDelay)
				log.T.F("delaying %s to %s by %v", j.ev.ID, name, d)
				// shutdown cuts the delay short, the send still goes out
				_ = context.Sleep(c, d)
			}
			if t.cfg.DryRun {
				log.I.F("dry run: would send %s event %s to %s", j.dir,
					j.ev.ID, name)
				return nil
			}
			sc, cancel := context.Timeout(context.Bg(), t.cfg.SendTimeout)
			defer cancel()
			if err := t.pool.Send(sc, j.dest, name, j.ev); err != nil {
				errs[i] = fmt.Errorf("%w: %s relay %s: %v", ErrDelivery,
					j.dest, name, err)
				t.metrics.Error(metrics.ErrMirror, name)
				log.E.F("failed to mirror event %s to %s relay %s: %v",
					j.ev.ID, j.dest, name, err)
				return nil
			}
			t.metrics.MirroredTo(j.dir.String(), name)
			log.D.F("mirrored %s event %s from %s to %s", j.dir, j.ev.ID,
				j.from, name)
			return nil
		})
	}
	_ = g.Wait()
	t.metrics.ObserveLatency(time.Since(j.started))
	if r.err = multierr.Combine(errs...); r.err != nil {
		r.failed = len(multierr.Errors(r.err))
	}
	r.sent = len(names) - r.failed
	return
}

// Jitter returns a uniformly random duration in [min, max].
func Jitter(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(frand.Uint64n(uint64(max-min)+1))
}
