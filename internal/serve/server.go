// Package serve provides the watch-mode preview server: static serving of
// the published tree, an SSE reload channel, and the daemon's small JSON
// surface (health, metrics, recent builds).
package serve

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/sitewright/sitewright/internal/build"
	"github.com/sitewright/sitewright/internal/foundation/errors"
	"github.com/sitewright/sitewright/internal/logfields"
	"github.com/sitewright/sitewright/internal/publish"
)

// BuildLister supplies recent cycle records for the builds endpoint.
type BuildLister interface {
	Recent(ctx context.Context, limit int) ([]build.CycleRecord, error)
}

// Server is the preview HTTP server. Construct with New, then wire optional
// collaborators before Start.
type Server struct {
	addr    string
	dirs    publish.Dirs
	logger  *slog.Logger
	adapter *errors.HTTPErrorAdapter

	hub      *ReloadHub
	history  BuildLister
	metricsH http.Handler
	statusFn func() string

	httpServer *http.Server
	listener   net.Listener
	startTime  time.Time
	lastCycle  atomic.Value
}

// New creates a Server for addr serving the publish triple's live directory.
func New(addr string, dirs publish.Dirs, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		addr:      addr,
		dirs:      dirs,
		logger:    logger,
		adapter:   errors.NewHTTPErrorAdapter(logger),
		statusFn:  func() string { return "running" },
		startTime: time.Now(),
	}
}

// SetReloadHub enables live reload: the SSE endpoint, the client script, and
// script injection into served HTML pages.
func (s *Server) SetReloadHub(hub *ReloadHub) *Server {
	s.hub = hub
	return s
}

// SetHistory enables the recent-builds endpoint.
func (s *Server) SetHistory(h BuildLister) *Server {
	s.history = h
	return s
}

// SetMetricsHandler mounts a metrics endpoint.
func (s *Server) SetMetricsHandler(h http.Handler) *Server {
	s.metricsH = h
	return s
}

// SetStatusFunc overrides the status string reported by the health endpoint.
func (s *Server) SetStatusFunc(fn func() string) *Server {
	if fn != nil {
		s.statusFn = fn
	}
	return s
}

// RecordCycle updates the last-build information reported by the health
// endpoint. Safe from any goroutine.
func (s *Server) RecordCycle(rec build.CycleRecord) {
	s.lastCycle.Store(rec)
}

// BroadcastReload notifies connected browsers of a newly published build.
func (s *Server) BroadcastReload(buildID string) {
	if s.hub != nil {
		s.hub.Broadcast(buildID)
	}
}

// handler assembles the route table.
func (s *Server) handler() http.Handler {
	mux := http.NewServeMux()

	root := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.FileServer(http.Dir(s.resolveRoot())).ServeHTTP(w, r)
	})
	if s.hub != nil {
		mux.Handle("/", withReloadScript(root))
		mux.Handle("/__reload", s.hub)
		mux.HandleFunc("/__reload.js", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
			_, _ = w.Write([]byte(reloadScript))
		})
	} else {
		mux.Handle("/", root)
	}

	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/api/builds", s.handleBuilds)
	if s.metricsH != nil {
		mux.Handle("/metrics", s.metricsH)
	}
	return mux
}

// resolveRoot picks the directory to serve. The live directory is the normal
// answer; during the instant between the two publish renames, or after a
// crash mid-swap, the previous deployment still sits in holding and serving
// it beats a 404.
func (s *Server) resolveRoot() string {
	if st, err := os.Stat(s.dirs.Live); err == nil && st.IsDir() {
		return s.dirs.Live
	}
	if st, err := os.Stat(s.dirs.Holding); err == nil && st.IsDir() {
		return s.dirs.Holding
	}
	return s.dirs.Live
}

type healthResponse struct {
	Status        string             `json:"status"`
	UptimeSeconds int64              `json:"uptime_seconds"`
	LastBuild     *build.CycleRecord `json:"last_build,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{
		Status:        s.statusFn(),
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
	}
	if rec, ok := s.lastCycle.Load().(build.CycleRecord); ok {
		resp.LastBuild = &rec
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleBuilds(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.adapter.WriteErrorResponse(w, r, errors.NotFoundError("build history is not enabled").Build())
		return
	}
	limit := 20
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n <= 0 {
			s.adapter.WriteErrorResponse(w, r,
				errors.ValidationError("limit must be a positive integer").
					WithContext("limit", q).
					Build())
			return
		}
		limit = n
	}

	recs, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		s.adapter.WriteErrorResponse(w, r, err)
		return
	}
	if recs == nil {
		recs = []build.CycleRecord{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(recs)
}

// Start binds the address and begins serving. Binding eagerly makes an
// occupied port fail the daemon at startup instead of surfacing later as a
// background log line.
func (s *Server) Start(_ context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return errors.ConfigError("failed to bind preview server address").
			WithCause(err).
			WithContext("addr", s.addr).
			Build()
	}
	s.listener = ln

	// WriteTimeout stays zero: the reload endpoint holds SSE connections
	// open indefinitely.
	s.httpServer = &http.Server{
		Handler:           s.handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Preview server error", logfields.Error(err))
		}
	}()

	s.logger.Info("Preview server listening",
		slog.String("addr", ln.Addr().String()),
		logfields.Dir(s.dirs.Live))
	return nil
}

// Addr returns the bound address, useful when the configured port is 0.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// Stop drains SSE clients and shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.hub != nil {
		s.hub.Shutdown()
	}
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
