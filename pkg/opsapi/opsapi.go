// Package opsapi serves the operational endpoints of the mirror: prometheus
// metrics, a JSON status document and a health check.
package opsapi

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/Hubmakerlabs/reflectr/pkg/context"
	"github.com/Hubmakerlabs/reflectr/pkg/mirror/metrics"
	"github.com/Hubmakerlabs/reflectr/pkg/mirror/pool"
	"github.com/Hubmakerlabs/reflectr/pkg/slog"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/sebest/xff"
)

var log, chk = slog.New(os.Stderr)

// Relays reports the state of the relay connections.
type Relays interface {
	Statuses() []pool.Status
}

type Server struct {
	Version    string
	metrics    *metrics.T
	relays     Relays
	started    time.Time
	serveMux   *http.ServeMux
	httpServer *http.Server
	// listening is closed once addr is set.
	listening chan struct{}
	addr      string
}

// Status is the document served at /status.
type Status struct {
	Version       string            `json:"version"`
	UptimeSeconds float64           `json:"uptime_seconds"`
	Relays        []pool.Status     `json:"relays"`
	Metrics       *metrics.Snapshot `json:"metrics"`
}

func New(m *metrics.T, relays Relays, version string) (s *Server) {
	s = &Server{
		Version:  version,
		metrics:  m,
		relays:   relays,
		started:  time.Now(),
		serveMux:  http.NewServeMux(),
		listening: make(chan struct{}),
	}
	s.httpServer = &http.Server{
		Handler:      s,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  2 * time.Second,
		IdleTimeout:  30 * time.Second,
	}
	s.serveMux.Handle("/metrics", promhttp.HandlerFor(m.Registry,
		promhttp.HandlerOpts{Registry: m.Registry}))
	s.serveMux.HandleFunc("/status", s.HandleStatus)
	s.serveMux.HandleFunc("/healthz", s.HandleHealth)
	return
}

// ServeHTTP logs the request with the client address, honouring
// X-Forwarded-For, and lets any origin read the endpoints.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log.T.F("%s %s from %s", r.Method, r.URL.Path, xff.GetRemoteAddr(r))
	cors.AllowAll().Handler(s.serveMux).ServeHTTP(w, r)
}

func (s *Server) HandleStatus(w http.ResponseWriter, r *http.Request) {
	st := Status{
		Version:       s.Version,
		UptimeSeconds: time.Since(s.started).Seconds(),
		Relays:        s.relays.Statuses(),
		Metrics:       s.metrics.Snapshot(),
	}
	w.Header().Set("Content-Type", "application/json")
	chk.D(json.NewEncoder(w).Encode(st))
}

// HandleHealth answers 200 while at least one relay is connected, or when
// none are configured, and 503 otherwise.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	statuses := s.relays.Statuses()
	healthy := len(statuses) == 0
	for _, st := range statuses {
		if st.State == pool.Connected.String() {
			healthy = true
			break
		}
	}
	if !healthy {
		http.Error(w, "no relay connected", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("ok\n"))
}

// Start listens on addr and serves until Shutdown. The started channels are
// closed once the listener is open.
func (s *Server) Start(addr string, started ...chan bool) (err error) {
	var ln net.Listener
	if ln, err = net.Listen("tcp", addr); chk.E(err) {
		return
	}
	s.addr = ln.Addr().String()
	close(s.listening)
	log.I.Ln("metrics and status listening on", s.addr)
	// notify caller that we're starting
	for _, c := range started {
		close(c)
	}
	if err = s.httpServer.Serve(ln); errors.Is(err, http.ErrServerClosed) {
		return nil
	} else if chk.E(err) {
		return
	}
	return
}

// Addr waits until Start is listening and returns the bound address.
func (s *Server) Addr(c context.T) (addr string, err error) {
	select {
	case <-s.listening:
		return s.addr, nil
	case <-c.Done():
		return "", c.Err()
	}
}

// Shutdown stops the server. A Start that has not begun serving yet returns
// at once.
func (s *Server) Shutdown(c context.T) { chk.E(s.httpServer.Shutdown(c)) }
