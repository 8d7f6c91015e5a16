package opsapi_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Hubmakerlabs/reflectr/pkg/context"
	"github.com/Hubmakerlabs/reflectr/pkg/mirror/metrics"
	"github.com/Hubmakerlabs/reflectr/pkg/mirror/pool"
	"github.com/Hubmakerlabs/reflectr/pkg/opsapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type relays []pool.Status

func (r relays) Statuses() []pool.Status { return r }

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("Origin", "http://dashboard.local")
	req.Header.Set("X-Forwarded-For", "10.0.0.7")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestMetrics(t *testing.T) {
	m := metrics.New()
	m.MirroredTo("outbound", "damus")
	s := opsapi.New(m, relays{}, "v0")
	w := get(t, s, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	body, _ := io.ReadAll(w.Body)
	assert.Contains(t, string(body),
		`reflectr_events_mirrored_total{direction="outbound",relay="damus"} 1`)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestStatus(t *testing.T) {
	m := metrics.New()
	m.Error(metrics.ErrConnection, "nos")
	m.Active.Set(1)
	rs := relays{
		{Name: "local", URL: "ws://localhost:7777", Group: "local",
			State: "connected"},
		{Name: "nos", URL: "wss://nos.lol", Group: "public",
			State: "disconnected", LastError: "refused"},
	}
	w := get(t, opsapi.New(m, rs, "v1.2.3"), "/status")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"),
		"application/json"))
	var st opsapi.Status
	require.NoError(t, json.NewDecoder(w.Body).Decode(&st))
	assert.Equal(t, "v1.2.3", st.Version)
	assert.Equal(t, []pool.Status(rs), st.Relays)
	assert.Equal(t, 1.0, st.Metrics.Errors[metrics.ErrConnection]["nos"])
	assert.Equal(t, 1.0, st.Metrics.ActiveConnections)
}

func TestHealth(t *testing.T) {
	m := metrics.New()
	down := relays{{Name: "a", State: "disconnected"}}
	assert.Equal(t, http.StatusServiceUnavailable,
		get(t, opsapi.New(m, down, ""), "/healthz").Code)
	up := relays{{Name: "a", State: "disconnected"},
		{Name: "b", State: "connected"}}
	assert.Equal(t, http.StatusOK, get(t, opsapi.New(m, up, ""), "/healthz").Code)
	assert.Equal(t, http.StatusOK,
		get(t, opsapi.New(m, relays{}, ""), "/healthz").Code)
}

func TestStartShutdown(t *testing.T) {
	s := opsapi.New(metrics.New(), relays{}, "")
	started := make(chan bool)
	done := make(chan error, 1)
	go func() { done <- s.Start("127.0.0.1:0", started) }()
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}
	c, cancel := context.Timeout(context.Bg(), 5*time.Second)
	defer cancel()
	addr, err := s.Addr(c)
	require.NoError(t, err)
	resp, err := http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	s.Shutdown(c)
	assert.NoError(t, <-done)
}

func TestShutdownBeforeStart(t *testing.T) {
	s := opsapi.New(metrics.New(), relays{}, "")
	c, cancel := context.Timeout(context.Bg(), 5*time.Second)
	defer cancel()
	s.Shutdown(c)
	done := make(chan error, 1)
	go func() { done <- s.Start("127.0.0.1:0") }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server kept running after shutdown")
	}
	// the listener was released
	addr, err := s.Addr(c)
	require.NoError(t, err)
	_, err = http.Get("http://" + addr + "/healthz")
	assert.Error(t, err)
}
