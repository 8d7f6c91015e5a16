// Package client is a connection to a single relay: one goroutine reads and
// decodes messages, another owns every write, and events are handed to a
// callback rather than buffered.
package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Hubmakerlabs/reflectr/pkg/context"
	"github.com/Hubmakerlabs/reflectr/pkg/nostr/connection"
	"github.com/Hubmakerlabs/reflectr/pkg/nostr/envelopes"
	"github.com/Hubmakerlabs/reflectr/pkg/nostr/envelopes/closedenvelope"
	"github.com/Hubmakerlabs/reflectr/pkg/nostr/envelopes/enveloper"
	"github.com/Hubmakerlabs/reflectr/pkg/nostr/envelopes/eoseenvelope"
	"github.com/Hubmakerlabs/reflectr/pkg/nostr/envelopes/eventenvelope"
	"github.com/Hubmakerlabs/reflectr/pkg/nostr/envelopes/labels"
	"github.com/Hubmakerlabs/reflectr/pkg/nostr/envelopes/noticeenvelope"
	"github.com/Hubmakerlabs/reflectr/pkg/nostr/envelopes/okenvelope"
	"github.com/Hubmakerlabs/reflectr/pkg/nostr/envelopes/reqenvelope"
	"github.com/Hubmakerlabs/reflectr/pkg/nostr/event"
	"github.com/Hubmakerlabs/reflectr/pkg/nostr/filter"
	"github.com/Hubmakerlabs/reflectr/pkg/nostr/normalize"
	"github.com/Hubmakerlabs/reflectr/pkg/slog"
	"github.com/puzpuzpuz/xsync/v2"
)

var log, chk = slog.New(os.Stderr)

var (
	// ErrClosed is returned for writes on a connection that has gone away.
	ErrClosed = errors.New("connection closed")
	// ErrNotConnected is returned by writes before Connect succeeded.
	ErrNotConnected = errors.New("relay not connected")
)

const (
	// DefaultConnectTimeout bounds Connect when the context has no deadline.
	DefaultConnectTimeout = 7 * time.Second
	// DefaultWriteTimeout bounds Write when the context has no deadline.
	DefaultWriteTimeout = 5 * time.Second
	// PingInterval is how often an idle connection is pinged.
	PingInterval = 29 * time.Second
)

type T struct {
	closeMutex              sync.Mutex
	url                     string
	RequestHeader           http.Header // e.g. for origin header
	Dial                    connection.NetDial
	Connection              *connection.C
	ConnectionContext       context.T // will be canceled when connection closes
	ConnectionContextCancel context.F
	// connErr is the first error that ended the connection.
	connErr atomic.Pointer[error]
	// Subscriptions maps subscription IDs opened on this connection to their
	// filter.
	Subscriptions *xsync.MapOf[string, *filter.T]
	writeQueue    chan writeRequest

	onEvent      func(subID string, ev *event.T)
	onEOSE       func(subID string)
	onNotice     func(text string)
	onClosed     func(subID, reason string)
	onOK         func(env *okenvelope.T)
	onParseError func(err error, message []byte)
}

func (r *T) URL() string { return r.url }

func (r *T) setErr(err error) { r.connErr.CompareAndSwap(nil, &err) }

// Err returns the error that ended the connection, or nil when it is still
// open or was closed on request.
func (r *T) Err() error {
	if e := r.connErr.Load(); e != nil {
		return *e
	}
	return nil
}

type writeRequest struct {
	msg    []byte
	answer chan error
}

// NewRelay returns a new relay. The relay connection will be closed when the
// context is canceled.
func NewRelay(c context.T, url string, opts ...Option) *T {
	ctx, cancel := context.Cancel(c)
	r := &T{
		url:                     normalize.URL(url),
		ConnectionContext:       ctx,
		ConnectionContextCancel: cancel,
		Subscriptions:           xsync.NewMapOf[*filter.T](),
		writeQueue:              make(chan writeRequest),
	}
	for _, opt := range opts {
		switch o := opt.(type) {
		case WithEventHandler:
			r.onEvent = o
		case WithEOSEHandler:
			r.onEOSE = o
		case WithNoticeHandler:
			r.onNotice = o
		case WithClosedHandler:
			r.onClosed = o
		case WithOKHandler:
			r.onOK = o
		case WithParseErrorHandler:
			r.onParseError = o
		case WithDialer:
			r.Dial = connection.NetDial(o)
		case WithRequestHeader:
			r.RequestHeader = http.Header(o)
		}
	}
	return r
}

// Connect returns a relay object connected to url. Once successfully
// connected, cancelling ctx has no effect. To close the connection, call
// r.Close().
func Connect(c context.T, url string, opts ...Option) (*T, error) {
	r := NewRelay(context.Bg(), url, opts...)
	err := r.Connect(c)
	return r, err
}

// String just returns the relay URL.
func (r *T) String() string { return r.url }

// Context retrieves the context that is associated with this relay connection.
func (r *T) Context() context.T { return r.ConnectionContext }

// Done is closed when the connection ends for any reason.
func (r *T) Done() <-chan struct{} { return r.ConnectionContext.Done() }

// IsConnected returns true if the connection to this relay seems to be active.
func (r *T) IsConnected() bool {
	return r.Connection != nil && r.ConnectionContext.Err() == nil
}

// Connect tries to establish a websocket connection to r.URL. If the context
// expires before the connection is complete, an error is returned. Once
// successfully connected, context expiration has no effect: call r.Close to
// close the connection.
func (r *T) Connect(c context.T) (err error) {
	if r.ConnectionContext == nil || r.Subscriptions == nil {
		return fmt.Errorf("relay must be initialized with a call to NewRelay()")
	}
	if r.url == "" {
		return fmt.Errorf("invalid relay URL '%s'", r.URL())
	}
	if _, ok := c.Deadline(); !ok {
		var cancel context.F
		c, cancel = context.Timeout(c, DefaultConnectTimeout)
		defer cancel()
	}
	var conn *connection.C
	if conn, err = connection.NewConnection(c, r.url, r.RequestHeader,
		r.Dial); err != nil {
		return fmt.Errorf("error opening websocket to '%s': %w", r.URL(), err)
	}
	r.Connection = conn
	// the writer owns the connection for writing, pings included, so there
	// is no mutex spaghetti around the socket
	go r.writeLoop()
	// general message reader loop
	go r.MessageReadLoop(conn)
	return nil
}

func (r *T) writeLoop() {
	ticker := time.NewTicker(PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := r.Connection.Ping(); err != nil {
				log.D.F("{%s} error writing ping: %v; closing websocket",
					r.URL(), err)
				r.setErr(err)
				chk.D(r.Close())
				return
			}
		case wr := <-r.writeQueue:
			err := r.Connection.WriteMessage(wr.msg)
			wr.answer <- err
			if err != nil {
				r.setErr(err)
				chk.D(r.Close())
				return
			}
		case <-r.ConnectionContext.Done():
			// unblocks the read loop when the parent context ends
			chk.T(r.Connection.Close())
			return
		}
	}
}

func (r *T) MessageReadLoop(conn *connection.C) {
	buf := new(bytes.Buffer)
	var err error
	for {
		buf.Reset()
		if err = conn.ReadMessage(r.ConnectionContext, buf); err != nil {
			if r.ConnectionContext.Err() == nil {
				r.setErr(err)
			}
			chk.D(r.Close())
			break
		}
		message := buf.Bytes()
		var env enveloper.I
		if env, err = envelopes.Parse(message); err != nil {
			r.parseError(err, message)
			continue
		}
		switch env := env.(type) {
		case *eventenvelope.T:
			if env.SubscriptionID == "" {
				r.parseError(fmt.Errorf("%w: EVENT without subscription id",
					envelopes.ErrParse), message)
				continue
			}
			if _, ok := r.Subscriptions.Load(env.SubscriptionID); !ok {
				log.T.F("{%s} event for unknown subscription '%s'",
					r.URL(), env.SubscriptionID)
			}
			if r.onEvent != nil {
				r.onEvent(env.SubscriptionID, env.Event)
			}
		case *eoseenvelope.T:
			log.T.F("{%s} eose %s", r.URL(), env.SubscriptionID)
			if r.onEOSE != nil {
				r.onEOSE(env.SubscriptionID)
			}
		case *noticeenvelope.T:
			if r.onNotice != nil {
				r.onNotice(env.Text)
			} else {
				log.D.F("NOTICE from %s: '%s'", r.URL(), env.Text)
			}
		case *closedenvelope.T:
			r.Subscriptions.Delete(env.SubscriptionID)
			if r.onClosed != nil {
				r.onClosed(env.SubscriptionID, env.Reason)
			} else {
				log.D.F("{%s} subscription %s closed: %s", r.URL(),
					env.SubscriptionID, env.Reason)
			}
		case *okenvelope.T:
			if r.onOK != nil {
				r.onOK(env)
			} else if !env.OK {
				log.D.F("{%s} rejected event %s: %s", r.URL(), env.ID,
					env.Reason)
			}
		default:
			log.T.F("{%s} ignoring %s message", r.URL(), env.Label())
		}
	}
}

func (r *T) parseError(err error, message []byte) {
	if r.onParseError != nil {
		r.onParseError(err, message)
		return
	}
	log.D.F("{%s} %v: %s", r.URL(), err, message)
}

// Write queues a message to be sent to the relay and waits until it has been
// written, the connection closes, or c is done. Without a deadline on c the
// wait is bounded by DefaultWriteTimeout.
func (r *T) Write(c context.T, msg []byte) (err error) {
	if r.Connection == nil {
		return ErrNotConnected
	}
	if _, ok := c.Deadline(); !ok {
		var cancel context.F
		c, cancel = context.Timeout(c, DefaultWriteTimeout)
		defer cancel()
	}
	// buffered so the writer never blocks on a caller that has given up
	wr := writeRequest{msg: msg, answer: make(chan error, 1)}
	select {
	case r.writeQueue <- wr:
	case <-r.ConnectionContext.Done():
		return ErrClosed
	case <-c.Done():
		return fmt.Errorf("write to %s: %w", r.URL(), c.Err())
	}
	select {
	case err = <-wr.answer:
		return
	case <-r.ConnectionContext.Done():
		// the writer may have finished just before the close
		select {
		case err = <-wr.answer:
			return
		default:
		}
		return ErrClosed
	case <-c.Done():
		return fmt.Errorf("write to %s: %w", r.URL(), c.Err())
	}
}

// Send writes ["EVENT",<ev>] to the relay. It does not wait for the relay's
// OK; acceptance or rejection arrives later through the OK handler.
func (r *T) Send(c context.T, ev *event.T) (err error) {
	return r.Write(c, (&eventenvelope.T{Event: ev}).Bytes())
}

// Subscribe sends ["REQ",<subID>,<f>] and records the subscription.
func (r *T) Subscribe(c context.T, subID string, f *filter.T) (err error) {
	var b []byte
	if b, err = (&reqenvelope.T{SubscriptionID: subID,
		Filters: []*filter.T{f}}).MarshalJSON(); chk.E(err) {
		return
	}
	r.Subscriptions.Store(subID, f)
	if err = r.Write(c, b); err != nil {
		r.Subscriptions.Delete(subID)
		return fmt.Errorf("couldn't subscribe to %v at %s: %w", f, r.URL(),
			err)
	}
	return
}

// Unsubscribe sends ["CLOSE",<subID>] and forgets the subscription.
func (r *T) Unsubscribe(c context.T, subID string) (err error) {
	r.Subscriptions.Delete(subID)
	var b []byte
	if b, err = json.Marshal([]string{labels.CLOSE, subID}); chk.E(err) {
		return
	}
	return r.Write(c, b)
}

func (r *T) Close() error {
	r.closeMutex.Lock()
	defer r.closeMutex.Unlock()
	if r.ConnectionContextCancel == nil {
		return fmt.Errorf("relay not connected")
	}
	r.ConnectionContextCancel()
	r.ConnectionContextCancel = nil
	if r.Connection == nil {
		return nil
	}
	return r.Connection.Close()
}
