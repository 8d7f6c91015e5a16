package pool_test

import (
	"encoding/binary"
	"io"
	"net"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Hubmakerlabs/reflectr/pkg/context"
	"github.com/Hubmakerlabs/reflectr/pkg/mirror/metrics"
	"github.com/Hubmakerlabs/reflectr/pkg/mirror/pool"
	"github.com/Hubmakerlabs/reflectr/pkg/nostr/event"
	"github.com/Hubmakerlabs/reflectr/pkg/nostr/filter"
	"github.com/Hubmakerlabs/reflectr/pkg/nostr/kind"
	"github.com/Hubmakerlabs/reflectr/pkg/nostr/relaytest"
	"github.com/Hubmakerlabs/reflectr/pkg/nostr/tags"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 5 * time.Second

func note(content string) (ev *event.T) {
	ev = &event.T{PubKey: "aa", CreatedAt: 1700000000, Kind: kind.TextNote,
		Tags: tags.T{}, Content: content, Sig: "00"}
	ev.ID = ev.ComputeID()
	return
}

func subscription() *filter.T {
	limit := 100
	return &filter.T{Kinds: []kind.T{0, 1, 3, 30023}, Limit: &limit}
}

func TestConnectSubscribeAndReceive(t *testing.T) {
	local, public := relaytest.New(t), relaytest.New(t)
	m := metrics.New()
	p := pool.New([]pool.Endpoint{
		{Name: "local", URL: local.URL(), Group: pool.Local},
		{Name: "damus", URL: public.URL(), Group: pool.Public},
	}, pool.Config{Subscription: subscription()}, m)
	defer p.Close()
	c := context.Bg()
	require.NoError(t, p.Connect(c, pool.Local, "local"))
	require.NoError(t, p.Connect(c, pool.Public, "damus"))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Active))
	assert.Equal(t, []string{"local"}, p.Connected(pool.Local))
	assert.Equal(t, []string{"damus"}, p.Connected(pool.Public))
	// public relays are asked for a feed, local ones only when configured
	require.Eventually(t, func() bool { return len(public.Requests()) == 1 },
		waitFor, 10*time.Millisecond)
	req := public.Requests()[0]
	assert.Equal(t, "mirror_damus", req.SubscriptionID)
	assert.Equal(t, []kind.T{0, 1, 3, 30023}, req.Filters[0].Kinds)
	assert.Equal(t, 100, *req.Filters[0].Limit)
	assert.Empty(t, local.Requests())
	ev := note("from public")
	require.Equal(t, 1, public.Push(ev))
	select {
	case in := <-p.Inbound():
		assert.Equal(t, pool.Public, in.Group)
		assert.Equal(t, "damus", in.Relay)
		assert.Equal(t, ev, in.Event)
	case <-time.After(waitFor):
		t.Fatal("no inbound event")
	}
	assert.Equal(t, 1.0,
		testutil.ToFloat64(m.Received.WithLabelValues("public", "damus")))
}

func TestSubscribeLocal(t *testing.T) {
	local := relaytest.New(t)
	p := pool.New([]pool.Endpoint{
		{Name: "local", URL: local.URL(), Group: pool.Local},
	}, pool.Config{Subscription: subscription(), SubscribeLocal: true}, nil)
	defer p.Close()
	require.NoError(t, p.Connect(context.Bg(), pool.Local, "local"))
	require.Eventually(t, func() bool { return len(local.Requests()) == 1 },
		waitFor, 10*time.Millisecond)
	assert.Equal(t, "mirror_local", local.Requests()[0].SubscriptionID)
}

func TestSend(t *testing.T) {
	public := relaytest.New(t)
	p := pool.New([]pool.Endpoint{
		{Name: "damus", URL: public.URL(), Group: pool.Public},
		{Name: "down", URL: "ws://127.0.0.1:1", Group: pool.Public},
	}, pool.Config{}, nil)
	defer p.Close()
	c := context.Bg()
	require.NoError(t, p.Connect(c, pool.Public, "damus"))
	ev := note("to public")
	require.NoError(t, p.Send(c, pool.Public, "damus", ev))
	require.Eventually(t, func() bool { return len(public.Published()) == 1 },
		waitFor, 10*time.Millisecond)
	assert.Equal(t, ev, public.Published()[0])
	assert.ErrorIs(t, p.Send(c, pool.Public, "down", ev), pool.ErrNotConnected)
	assert.Error(t, p.Send(c, pool.Local, "damus", ev))
}

func TestConnectFailure(t *testing.T) {
	m := metrics.New()
	p := pool.New([]pool.Endpoint{
		{Name: "down", URL: "ws://127.0.0.1:1", Group: pool.Local},
	}, pool.Config{ConnectTimeout: time.Second}, m)
	defer p.Close()
	err := p.Connect(context.Bg(), pool.Local, "down")
	assert.ErrorIs(t, err, pool.ErrConnection)
	assert.Equal(t, 1.0, testutil.ToFloat64(
		m.Errors.WithLabelValues(metrics.ErrConnection, "down")))
	assert.Zero(t, testutil.ToFloat64(m.Active))
	st := p.Statuses()
	require.Len(t, st, 1)
	assert.Equal(t, "disconnected", st[0].State)
	assert.NotEmpty(t, st[0].LastError)
}

func TestRunReconnects(t *testing.T) {
	public := relaytest.New(t)
	m := metrics.New()
	p := pool.New([]pool.Endpoint{
		{Name: "damus", URL: public.URL(), Group: pool.Public},
	}, pool.Config{BackoffInitial: 20 * time.Millisecond,
		BackoffMax: 100 * time.Millisecond}, m)
	c, cancel := context.Cancel(context.Bg())
	done := make(chan error, 1)
	go func() { done <- p.Run(c) }()
	require.Eventually(t, func() bool { return public.Subscriptions() == 1 },
		waitFor, 10*time.Millisecond)
	public.DropAll()
	// the dropped connection is counted and then replaced
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.Errors.WithLabelValues(
			metrics.ErrConnection, "damus")) >= 1
	}, waitFor, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return len(public.Requests()) >= 2 && public.Subscriptions() == 1
	}, waitFor, 10*time.Millisecond)
	assert.Equal(t, []string{"damus"}, p.Connected(pool.Public))
	cancel()
	select {
	case <-done:
	case <-time.After(waitFor):
		t.Fatal("Run did not return after cancel")
	}
	require.Eventually(t, func() bool { return testutil.ToFloat64(m.Active) == 0 },
		waitFor, 10*time.Millisecond)
	assert.Empty(t, p.Connected(pool.Public))
}

func TestUserAgentAndCloseSubscription(t *testing.T) {
	public := relaytest.New(t)
	p := pool.New([]pool.Endpoint{
		{Name: "damus", URL: public.URL(), Group: pool.Public},
	}, pool.Config{Subscription: subscription(), UserAgent: "reflectr/test"},
		nil)
	require.NoError(t, p.Connect(context.Bg(), pool.Public, "damus"))
	assert.Equal(t, []string{"reflectr/test"}, public.UserAgents())
	require.Eventually(t, func() bool { return public.Subscriptions() == 1 },
		waitFor, 10*time.Millisecond)
	require.NoError(t, p.Close())
	require.Eventually(t, func() bool {
		for _, msg := range public.Raw() {
			if string(msg) == `["CLOSE","mirror_damus"]` {
				return true
			}
		}
		return false
	}, waitFor, 10*time.Millisecond)
}

// detached hides the cancel machinery of the context it wraps, so every
// child context started from it holds a goroutine until the child ends.
type detached struct{ context.T }

func (detached) Value(any) any { return nil }

func TestFailedConnectsReleaseContexts(t *testing.T) {
	p := pool.New([]pool.Endpoint{
		{Name: "down", URL: "ws://127.0.0.1:1", Group: pool.Local},
	}, pool.Config{ConnectTimeout: time.Second}, nil)
	defer p.Close()
	parent, cancel := context.Cancel(context.Bg())
	defer cancel()
	c := detached{parent}
	before := runtime.NumGoroutine()
	for i := 0; i < 20; i++ {
		assert.Error(t, p.Connect(c, pool.Local, "down"))
	}
	require.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= before+2
	}, waitFor, 10*time.Millisecond)
}

// socksProxy is a SOCKS5 server that accepts any credentials, notes the
// requested destination and relays the stream to it.
func socksProxy(t *testing.T) (addr string, targets func() []string) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	var mx sync.Mutex
	var seen []string
	serve := func(conn net.Conn) (err error) {
		defer conn.Close()
		hdr := make([]byte, 2)
		if _, err = io.ReadFull(conn, hdr); err != nil {
			return
		}
		methods := make([]byte, hdr[1])
		if _, err = io.ReadFull(conn, methods); err != nil {
			return
		}
		method := byte(2)
		for _, m := range methods {
			if m == 0 {
				method = 0
			}
		}
		if _, err = conn.Write([]byte{5, method}); err != nil {
			return
		}
		if method == 2 {
			// username and password, both length prefixed
			b := make([]byte, 2)
			if _, err = io.ReadFull(conn, b); err != nil {
				return
			}
			user := make([]byte, int(b[1])+1)
			if _, err = io.ReadFull(conn, user); err != nil {
				return
			}
			pass := make([]byte, user[len(user)-1])
			if _, err = io.ReadFull(conn, pass); err != nil {
				return
			}
			if _, err = conn.Write([]byte{1, 0}); err != nil {
				return
			}
		}
		req := make([]byte, 4)
		if _, err = io.ReadFull(conn, req); err != nil {
			return
		}
		var host string
		switch req[3] {
		case 1, 4:
			ip := make(net.IP, 4)
			if req[3] == 4 {
				ip = make(net.IP, 16)
			}
			if _, err = io.ReadFull(conn, ip); err != nil {
				return
			}
			host = ip.String()
		case 3:
			n := make([]byte, 1)
			if _, err = io.ReadFull(conn, n); err != nil {
				return
			}
			name := make([]byte, n[0])
			if _, err = io.ReadFull(conn, name); err != nil {
				return
			}
			host = string(name)
		}
		port := make([]byte, 2)
		if _, err = io.ReadFull(conn, port); err != nil {
			return
		}
		target := net.JoinHostPort(host,
			strconv.Itoa(int(binary.BigEndian.Uint16(port))))
		mx.Lock()
		seen = append(seen, target)
		mx.Unlock()
		var up net.Conn
		if up, err = net.Dial("tcp", target); err != nil {
			conn.Write([]byte{5, 5, 0, 1, 0, 0, 0, 0, 0, 0})
			return
		}
		defer up.Close()
		if _, err = conn.Write([]byte{5, 0, 0, 1, 0, 0, 0, 0, 0, 0}); err != nil {
			return
		}
		go io.Copy(up, conn)
		_, err = io.Copy(conn, up)
		return
	}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go serve(conn)
		}
	}()
	return ln.Addr().String(), func() []string {
		mx.Lock()
		defer mx.Unlock()
		return append([]string(nil), seen...)
	}
}

func TestPublicRelaysUseProxy(t *testing.T) {
	local, public := relaytest.New(t), relaytest.New(t)
	proxy, targets := socksProxy(t)
	p := pool.New([]pool.Endpoint{
		{Name: "local", URL: local.URL(), Group: pool.Local},
		{Name: "damus", URL: public.URL(), Group: pool.Public},
	}, pool.Config{Subscription: subscription(), Proxy: proxy}, nil)
	defer p.Close()
	c := context.Bg()
	require.NoError(t, p.Connect(c, pool.Local, "local"))
	require.NoError(t, p.Connect(c, pool.Public, "damus"))
	// only the public relay goes through the proxy
	require.Equal(t, []string{strings.TrimPrefix(public.URL(), "ws://")},
		targets())
	require.Eventually(t, func() bool { return public.Subscriptions() == 1 },
		waitFor, 10*time.Millisecond)
	ev := note("via proxy")
	require.Equal(t, 1, public.Push(ev))
	select {
	case in := <-p.Inbound():
		assert.Equal(t, "damus", in.Relay)
		assert.Equal(t, ev, in.Event)
	case <-time.After(waitFor):
		t.Fatal("no inbound event through the proxy")
	}
	require.NoError(t, p.Send(c, pool.Public, "damus", note("outbound")))
	require.Eventually(t, func() bool { return len(public.Published()) == 1 },
		waitFor, 10*time.Millisecond)
}

func TestGroup(t *testing.T) {
	assert.Equal(t, pool.Public, pool.Local.Opposite())
	assert.Equal(t, pool.Local, pool.Public.Opposite())
	assert.Equal(t, "local", pool.Local.String())
	assert.Equal(t, "public", pool.Public.String())
}
