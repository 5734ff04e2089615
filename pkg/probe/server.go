package probe

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/Phillezi/lifeline/pkg/lifecycle"
	"github.com/Phillezi/lifeline/pkg/listen"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Option defines a functional option for Server.
type Option func(*Server)

// Server exposes the lifecycle probes over HTTP.
type Server struct {
	probes   lifecycle.Probes
	logger   logr.Logger
	gatherer prometheus.Gatherer
	fallback bool

	mux      *http.ServeMux
	server   *http.Server
	listener net.Listener
}

// NewServer creates a probe server backed by the given probes.
func NewServer(p lifecycle.Probes, opts ...Option) *Server {
	s := &Server{
		probes: p,
		logger: logr.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mux = http.NewServeMux()
	s.mux.HandleFunc("GET /health", s.check("health", p.CheckHealth))
	s.mux.HandleFunc("GET /live", s.check("live", p.CheckLive))
	s.mux.HandleFunc("GET /ready", s.check("ready", p.CheckReady))
	if s.gatherer != nil {
		s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	s.server = &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// WithLogger sets a custom logger.
func WithLogger(l logr.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithMetrics serves g on /metrics.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithPortFallback lets Listen move to an ephemeral port when the requested one is busy.
func WithPortFallback(enabled bool) Option {
	return func(s *Server) {
		s.fallback = enabled
	}
}

// Handler returns the probe routes.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Handle mounts an extra handler next to the probes.
func (s *Server) Handle(pattern string, h http.Handler) {
	s.mux.Handle(pattern, h)
}

// Listen binds addr. A busy port is retried before giving up.
func (s *Server) Listen(ctx context.Context, addr string) error {
	ln, err := listen.Listen(ctx, addr,
		listen.WithLogger(s.logger),
		listen.WithFallback(s.fallback),
	)
	if err != nil {
		return err
	}
	s.listener = ln
	s.logger.Info("probe server listening", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve serves requests until Shutdown is called.
func (s *Server) Serve() error {
	if s.listener == nil {
		return errors.New("probe server: Listen was not called")
	}
	if err := s.server.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the probe server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) check(name string, fn func() lifecycle.Result) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res := fn()
		status := http.StatusOK
		if !res.OK {
			status = http.StatusInternalServerError
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(status)
		if _, err := w.Write([]byte(res.Reason)); err != nil {
			s.logger.V(1).Info("writing probe response", "probe", name, "error", err)
		}
	}
}
