// Package pool keeps one connection open to each configured relay, turns
// what the relays send into a single stream of Inbound events, and sends
// events to a named relay on request.
package pool

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Hubmakerlabs/reflectr/pkg/context"
	"github.com/Hubmakerlabs/reflectr/pkg/mirror/metrics"
	"github.com/Hubmakerlabs/reflectr/pkg/nostr/client"
	"github.com/Hubmakerlabs/reflectr/pkg/nostr/event"
	"github.com/Hubmakerlabs/reflectr/pkg/nostr/filter"
	"github.com/Hubmakerlabs/reflectr/pkg/nostr/timestamp"
	"github.com/Hubmakerlabs/reflectr/pkg/slog"
	backoff "github.com/cenkalti/backoff/v4"
	"github.com/decred/go-socks/socks"
	"github.com/puzpuzpuz/xsync/v2"
	"go.uber.org/multierr"
)

var log, chk = slog.New(os.Stderr)

var (
	// ErrConnection marks a relay that could not be reached or dropped.
	ErrConnection = errors.New("relay connection failed")
	// ErrNotConnected is returned when sending to an endpoint that is not
	// connected.
	ErrNotConnected = errors.New("relay not connected")
)

type Config struct {
	// Subscription is the filter sent to public relays, and to local relays
	// when SubscribeLocal is set.
	Subscription   *filter.T
	SubscribeLocal bool
	// Proxy is a SOCKS5 address public relays are dialled through.
	Proxy          string
	ConnectTimeout time.Duration
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	// InboundBuffer is the capacity of the Inbound channel.
	InboundBuffer int
	// UserAgent is sent with every websocket handshake when set.
	UserAgent string
}

type relay struct {
	Endpoint
	state   atomic.Int32
	client  atomic.Pointer[client.T]
	lastErr atomic.Pointer[string]
}

func (r *relay) setState(s State) { r.state.Store(int32(s)) }

func (r *relay) State() State { return State(r.state.Load()) }

func (r *relay) setErr(err error) {
	s := err.Error()
	r.lastErr.Store(&s)
}

type T struct {
	cfg       Config
	metrics   *metrics.T
	endpoints []Endpoint
	relays    *xsync.MapOf[string, *relay]
	inbound   chan Inbound
	proxy     *socks.Proxy
	wg        sync.WaitGroup
	closing   atomic.Bool
}

// New prepares a pool for the endpoints. Nothing is dialled until Connect or
// Run.
func New(endpoints []Endpoint, cfg Config, m *metrics.T) (p *T) {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = client.DefaultConnectTimeout
	}
	if cfg.BackoffInitial <= 0 {
		cfg.BackoffInitial = time.Second
	}
	if cfg.BackoffMax < cfg.BackoffInitial {
		cfg.BackoffMax = 300 * time.Second
	}
	if m == nil {
		m = metrics.New()
	}
	p = &T{
		cfg:       cfg,
		metrics:   m,
		endpoints: endpoints,
		relays:    xsync.NewMapOf[*relay](),
		inbound:   make(chan Inbound, cfg.InboundBuffer),
	}
	if cfg.Proxy != "" {
		p.proxy = &socks.Proxy{Addr: cfg.Proxy, TorIsolation: true}
	}
	for _, ep := range endpoints {
		p.relays.Store(ep.key(), &relay{Endpoint: ep})
	}
	return
}

// Inbound is the stream of events read from every endpoint.
func (p *T) Inbound() <-chan Inbound { return p.inbound }

func (p *T) get(g Group, name string) (r *relay, err error) {
	var ok bool
	if r, ok = p.relays.Load(Endpoint{Name: name, Group: g}.key()); !ok {
		return nil, fmt.Errorf("no %s relay named %q", g, name)
	}
	return
}

func (p *T) options(c context.T, r *relay) (opts []client.Option) {
	opts = []client.Option{
		client.WithEventHandler(func(sub string, ev *event.T) {
			p.metrics.ReceivedFrom(r.Group.String(), r.Name)
			in := Inbound{Group: r.Group, Relay: r.Name, Event: ev,
				Received: timestamp.Now()}
			// blocking here holds up only this relay's read loop
			select {
			case p.inbound <- in:
			case <-c.Done():
			}
		}),
		client.WithParseErrorHandler(func(err error, msg []byte) {
			p.metrics.Error(metrics.ErrParse, r.Name)
			log.D.F("%s: %v", r.Endpoint, err)
			log.T.F("%s: offending message: %s", r.Endpoint, msg)
		}),
		client.WithNoticeHandler(func(notice string) {
			log.I.F("NOTICE from %s: %s", r.Endpoint, notice)
		}),
		client.WithClosedHandler(func(sub, reason string) {
			log.W.F("%s closed subscription %s: %s", r.Endpoint, sub, reason)
		}),
	}
	if p.cfg.UserAgent != "" {
		opts = append(opts, client.WithRequestHeader(
			http.Header{"User-Agent": {p.cfg.UserAgent}}))
	}
	if p.proxy != nil && r.Group == Public {
		opts = append(opts, client.WithDialer(
			func(c context.T, network, addr string) (net.Conn, error) {
				return p.proxy.DialContext(c, network, addr)
			}))
	}
	return
}

// Connect makes one attempt to connect the endpoint and subscribe. On
// failure the endpoint is left disconnected and the error is counted.
func (p *T) Connect(c context.T, g Group, name string) (err error) {
	var r *relay
	if r, err = p.get(g, name); err != nil {
		return
	}
	return p.connect(c, r)
}

func (p *T) connect(c context.T, r *relay) (err error) {
	r.setState(Connecting)
	cx, cancel := context.Timeout(c, p.cfg.ConnectTimeout)
	defer cancel()
	rl := client.NewRelay(c, r.URL, p.options(c, r)...)
	if err = rl.Connect(cx); err != nil {
		// releases the connection context taken from c
		chk.T(rl.Close())
		r.setState(Disconnected)
		r.setErr(err)
		p.metrics.Error(metrics.ErrConnection, r.Name)
		log.E.F("failed to connect to %s: %v", r.Endpoint, err)
		return fmt.Errorf("%w: %s: %v", ErrConnection, r.Name, err)
	}
	r.client.Store(rl)
	r.setState(Connected)
	p.metrics.Active.Inc()
	log.I.F("connected to %s", r.Endpoint)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		<-rl.Done()
		r.client.CompareAndSwap(rl, nil)
		r.setState(Disconnected)
		p.metrics.Active.Dec()
		if c.Err() == nil && !p.closing.Load() {
			if e := rl.Err(); e != nil {
				r.setErr(e)
			}
			p.metrics.Error(metrics.ErrConnection, r.Name)
			log.W.F("lost connection to %s: %v", r.Endpoint,
				rl.Err())
		}
	}()
	if p.subscribes(r) {
		f := p.cfg.Subscription
		if f == nil {
			f = &filter.T{}
		}
		subID := subscriptionID(r)
		if err = rl.Subscribe(c, subID, f); err != nil {
			log.E.F("failed to subscribe to %s: %v", r.Endpoint, err)
			chk.D(rl.Close())
			return fmt.Errorf("%w: %s: %v", ErrConnection, r.Name, err)
		}
		log.D.F("subscribed to %s as %s with %s", r.Endpoint, subID, f)
	}
	return
}

func (p *T) subscribes(r *relay) bool {
	return r.Group == Public || p.cfg.SubscribeLocal
}

func subscriptionID(r *relay) string { return "mirror_" + r.Name }

// Run keeps every endpoint connected until c is done, reconnecting with
// exponential backoff, then closes all connections.
func (p *T) Run(c context.T) (err error) {
	var wg sync.WaitGroup
	p.relays.Range(func(_ string, r *relay) bool {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.supervise(c, r)
		}()
		return true
	})
	wg.Wait()
	return p.Close()
}

func (p *T) supervise(c context.T, r *relay) {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.cfg.BackoffInitial
	exp.Multiplier = 2
	exp.MaxInterval = p.cfg.BackoffMax
	// never give up
	exp.MaxElapsedTime = 0
	exp.Reset()
	for {
		if err := p.connect(c, r); err == nil {
			rl := r.client.Load()
			if rl != nil {
				select {
				case <-rl.Done():
				case <-c.Done():
					return
				}
			}
			exp.Reset()
		}
		wait := exp.NextBackOff()
		log.D.F("reconnecting to %s in %v", r.Endpoint, wait)
		select {
		case <-time.After(wait):
		case <-c.Done():
			return
		}
	}
}

// Send writes the event to the named endpoint without waiting for the
// relay's acknowledgement.
func (p *T) Send(c context.T, g Group, name string, ev *event.T) (err error) {
	var r *relay
	if r, err = p.get(g, name); err != nil {
		return
	}
	rl := r.client.Load()
	if rl == nil || !rl.IsConnected() {
		return fmt.Errorf("%w: %s", ErrNotConnected, r.Endpoint)
	}
	return rl.Send(c, ev)
}

// Connected returns the names of the endpoints of g that are connected now,
// in configuration order.
func (p *T) Connected(g Group) (names []string) {
	for _, ep := range p.endpoints {
		if ep.Group != g {
			continue
		}
		if r, err := p.get(g, ep.Name); err == nil && r.State() == Connected {
			names = append(names, ep.Name)
		}
	}
	return
}

// Statuses reports every endpoint in configuration order.
func (p *T) Statuses() (s []Status) {
	for _, ep := range p.endpoints {
		r, err := p.get(ep.Group, ep.Name)
		if err != nil {
			continue
		}
		st := Status{Name: ep.Name, URL: ep.URL, Group: ep.Group.String(),
			State: r.State().String()}
		if e := r.lastErr.Load(); e != nil {
			st.LastError = *e
		}
		s = append(s, st)
	}
	return
}

// closeTimeout bounds the CLOSE sent for a subscription at shutdown.
const closeTimeout = time.Second

// Close ends the subscriptions, closes every open connection and waits for
// their watchers.
func (p *T) Close() (err error) {
	p.closing.Store(true)
	p.relays.Range(func(_ string, r *relay) bool {
		if rl := r.client.Swap(nil); rl != nil && rl.IsConnected() {
			if p.subscribes(r) {
				c, cancel := context.Timeout(context.Bg(), closeTimeout)
				chk.D(rl.Unsubscribe(c, subscriptionID(r)))
				cancel()
			}
			if e := rl.Close(); e != nil {
				err = multierr.Append(err, fmt.Errorf("%s: %w", r.Name, e))
			}
		}
		return true
	})
	p.wg.Wait()
	return
}
