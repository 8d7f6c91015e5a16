package mirror_test

import (
	"testing"
	"time"

	"github.com/Hubmakerlabs/reflectr/pkg/context"
	"github.com/Hubmakerlabs/reflectr/pkg/mirror"
	"github.com/Hubmakerlabs/reflectr/pkg/mirror/metrics"
	"github.com/Hubmakerlabs/reflectr/pkg/mirror/pool"
	"github.com/Hubmakerlabs/reflectr/pkg/mirror/seen"
	"github.com/Hubmakerlabs/reflectr/pkg/nostr/filter"
	"github.com/Hubmakerlabs/reflectr/pkg/nostr/relaytest"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Two local relays and one public relay: an event from local relay A goes
// to the public relay once and is never sent back to either local relay,
// even when B has it too and the public relay echoes it.
func TestTwoLocalsOnePublic(t *testing.T) {
	a, b, public := relaytest.New(t), relaytest.New(t), relaytest.New(t)
	m := metrics.New()
	p := pool.New([]pool.Endpoint{
		{Name: "a", URL: a.URL(), Group: pool.Local},
		{Name: "b", URL: b.URL(), Group: pool.Local},
		{Name: "damus", URL: public.URL(), Group: pool.Public},
	}, pool.Config{Subscription: &filter.T{}, SubscribeLocal: true,
		BackoffInitial: 20 * time.Millisecond}, m)
	store, err := seen.OpenBadger(t.TempDir())
	require.NoError(t, err)
	defer store.Close()
	co := mirror.New(baseConfig(), p, store, m)

	poolCtx, stopPool := context.Cancel(context.Bg())
	poolDone := make(chan error, 1)
	go func() { poolDone <- p.Run(poolCtx) }()
	c, stop := context.Cancel(context.Bg())
	done := make(chan error, 1)
	go func() { done <- co.Run(c) }()
	defer func() {
		stop()
		<-done
		stopPool()
		<-poolDone
	}()
	require.Eventually(t, func() bool {
		return a.Subscriptions() == 1 && b.Subscriptions() == 1 &&
			public.Subscriptions() == 1
	}, waitFor, 10*time.Millisecond)

	ev := note(7, time.Hour)
	ev.ID = ev.ComputeID()
	require.Equal(t, 1, a.Push(ev))
	require.Eventually(t, func() bool { return len(public.Published()) == 1 },
		waitFor, 10*time.Millisecond)
	assert.Equal(t, ev, public.Published()[0])
	require.Eventually(t, func() bool {
		found, err := store.Contains(ev.ID)
		return err == nil && found
	}, waitFor, 10*time.Millisecond)

	require.Equal(t, 1, b.Push(ev))
	require.Equal(t, 1, public.Push(ev))
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(
			m.Discarded.WithLabelValues(metrics.Duplicate)) == 2
	}, waitFor, 10*time.Millisecond)
	assert.Len(t, public.Published(), 1)
	assert.Empty(t, a.Published())
	assert.Empty(t, b.Published())
	assert.Equal(t, 1.0, testutil.ToFloat64(
		m.Mirrored.WithLabelValues("outbound", "damus")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Active))
}
