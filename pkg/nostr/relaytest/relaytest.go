// Package relaytest runs a minimal in-process relay for tests: it records
// what clients publish and subscribe, answers OK and EOSE, and pushes events
// to subscribers on demand.
package relaytest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/Hubmakerlabs/reflectr/pkg/nostr/envelopes"
	"github.com/Hubmakerlabs/reflectr/pkg/nostr/envelopes/eventenvelope"
	"github.com/Hubmakerlabs/reflectr/pkg/nostr/envelopes/labels"
	"github.com/Hubmakerlabs/reflectr/pkg/nostr/envelopes/reqenvelope"
	"github.com/Hubmakerlabs/reflectr/pkg/nostr/event"
	"golang.org/x/net/websocket"
)

type Relay struct {
	srv *httptest.Server
	mx  sync.Mutex
	// subs holds the open subscription ids of each live connection.
	subs      map[*websocket.Conn]map[string]struct{}
	published []*event.T
	reqs      []*reqenvelope.T
	raw       [][]byte
	agents    []string
	// Reject makes the relay answer published events with OK false.
	Reject bool
}

// New starts a relay that is shut down when the test ends.
func New(t testing.TB) (r *Relay) {
	r = &Relay{subs: make(map[*websocket.Conn]map[string]struct{})}
	r.srv = httptest.NewServer(&websocket.Server{
		Handshake: r.handshake,
		Handler:   r.handle,
	})
	t.Cleanup(r.Close)
	return
}

// handshake accepts any origin, unlike the default in
// golang.org/x/net/websocket; nostr clients send none. It notes the client's
// User-Agent.
func (r *Relay) handshake(conf *websocket.Config, req *http.Request) error {
	r.mx.Lock()
	r.agents = append(r.agents, req.Header.Get("User-Agent"))
	r.mx.Unlock()
	return nil
}

// URL is the ws:// address of the relay.
func (r *Relay) URL() string {
	return "ws" + strings.TrimPrefix(r.srv.URL, "http")
}

func (r *Relay) Close() {
	r.DropAll()
	r.srv.Close()
}

func (r *Relay) handle(conn *websocket.Conn) {
	r.mx.Lock()
	r.subs[conn] = make(map[string]struct{})
	r.mx.Unlock()
	defer func() {
		r.mx.Lock()
		delete(r.subs, conn)
		r.mx.Unlock()
		conn.Close()
	}()
	for {
		var msg []byte
		if err := websocket.Message.Receive(conn, &msg); err != nil {
			return
		}
		r.mx.Lock()
		r.raw = append(r.raw, msg)
		r.mx.Unlock()
		env, err := envelopes.Parse(msg)
		if err != nil {
			send(conn, []any{labels.NOTICE, err.Error()})
			continue
		}
		switch env := env.(type) {
		case *eventenvelope.T:
			r.mx.Lock()
			r.published = append(r.published, env.Event)
			reject := r.Reject
			r.mx.Unlock()
			reason := ""
			if reject {
				reason = "blocked: test relay"
			}
			send(conn, []any{labels.OK, env.Event.ID, !reject, reason})
		case *reqenvelope.T:
			r.mx.Lock()
			r.reqs = append(r.reqs, env)
			if s, ok := r.subs[conn]; ok {
				s[env.SubscriptionID] = struct{}{}
			}
			r.mx.Unlock()
			send(conn, []any{labels.EOSE, env.SubscriptionID})
		case *envelopes.Unknown:
			if env.Name == labels.CLOSE && len(env.Raw) > 1 {
				var id string
				if json.Unmarshal(env.Raw[1], &id) == nil {
					r.mx.Lock()
					delete(r.subs[conn], id)
					r.mx.Unlock()
				}
			}
		}
	}
}

func send(conn *websocket.Conn, msg any) error {
	return websocket.JSON.Send(conn, msg)
}

// Push sends ev to every open subscription and returns how many received it.
func (r *Relay) Push(ev *event.T) (n int) {
	r.mx.Lock()
	defer r.mx.Unlock()
	for conn, subs := range r.subs {
		for id := range subs {
			b := (&eventenvelope.T{SubscriptionID: id, Event: ev}).Bytes()
			if websocket.Message.Send(conn, string(b)) == nil {
				n++
			}
		}
	}
	return
}

// PushRaw writes an arbitrary text frame to every connection.
func (r *Relay) PushRaw(msg string) {
	r.mx.Lock()
	defer r.mx.Unlock()
	for conn := range r.subs {
		websocket.Message.Send(conn, msg)
	}
}

// DropAll closes every client connection.
func (r *Relay) DropAll() {
	r.mx.Lock()
	defer r.mx.Unlock()
	for conn := range r.subs {
		conn.Close()
	}
}

// Published returns the events clients have sent, in arrival order.
func (r *Relay) Published() []*event.T {
	r.mx.Lock()
	defer r.mx.Unlock()
	return append([]*event.T(nil), r.published...)
}

// Requests returns the REQ messages clients have sent.
func (r *Relay) Requests() []*reqenvelope.T {
	r.mx.Lock()
	defer r.mx.Unlock()
	return append([]*reqenvelope.T(nil), r.reqs...)
}

// Subscriptions counts the open subscriptions across all connections.
func (r *Relay) Subscriptions() (n int) {
	r.mx.Lock()
	defer r.mx.Unlock()
	for _, s := range r.subs {
		n += len(s)
	}
	return
}

// Connections counts the live client connections.
func (r *Relay) Connections() int {
	r.mx.Lock()
	defer r.mx.Unlock()
	return len(r.subs)
}

// UserAgents returns the User-Agent header of every handshake.
func (r *Relay) UserAgents() []string {
	r.mx.Lock()
	defer r.mx.Unlock()
	return append([]string(nil), r.agents...)
}

// Raw returns every message received, undecoded.
func (r *Relay) Raw() [][]byte {
	r.mx.Lock()
	defer r.mx.Unlock()
	return append([][]byte(nil), r.raw...)
}
