package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/vtree/pkg/headless"
	"github.com/vango-dev/vtree/pkg/journal"
	"github.com/vango-dev/vtree/pkg/metrics"
	"github.com/vango-dev/vtree/pkg/protocol"
	"github.com/vango-dev/vtree/pkg/reconcile"
)

// TracerName is the instrumentation name of the server's spans.
const TracerName = "github.com/vango-dev/vtree/pkg/server"

// Server serves a Program over WebSocket: every connection runs in its own
// session, and the index page renders a fresh View to HTML.
type Server struct {
	config     *ServerConfig
	program    ProgramFactory
	sessions   *SessionManager
	upgrader   websocket.Upgrader
	router     chi.Router
	httpServer *http.Server

	logger  *slog.Logger
	metrics *metrics.Metrics
	journal journal.Sink
	tracer  trace.Tracer
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithMetrics records sessions, events and patches and serves the
// collectors on MetricsPath.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithJournal records every sequenced frame and client event to sink.
func WithJournal(sink journal.Sink) Option {
	return func(s *Server) { s.journal = sink }
}

// WithTracerProvider sets the provider of the event spans. Default: the
// global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Server) { s.tracer = tp.Tracer(TracerName) }
}

// New creates a Server running program. A nil config uses
// DefaultServerConfig.
func New(config *ServerConfig, program ProgramFactory, opts ...Option) *Server {
	config = config.withDefaults()
	s := &Server{
		config:  config,
		program: program,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer(TracerName)
	}
	s.logger = s.logger.With("component", "server")

	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  config.ReadBufferSize,
		WriteBufferSize: config.WriteBufferSize,
		CheckOrigin:     config.CheckOrigin,
	}
	s.sessions = NewSessionManager(config.SessionConfig, config.MaxSessions, config.CleanupInterval, sessionDeps{
		logger:  s.logger,
		metrics: s.metrics,
		tracer:  s.tracer,
		journal: s.journal,
	})

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/healthz"))
	r.Get(config.LivePath, s.HandleLive)
	if s.metrics != nil {
		r.Handle(config.MetricsPath, s.metrics.Handler())
	}
	r.Get("/", s.HandleIndex)
	s.router = r
	return s
}

// Handler returns the HTTP handler of every route.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// HandleLive upgrades to WebSocket and runs a session on the connection.
//
// A request carrying ?session=<id>&seq=<n> reattaches to a detached session
// and receives every frame after seq, or a Mount when they are no longer
// buffered. Otherwise a new session is created and mounted.
func (s *Server) HandleLive(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if id := q.Get("session"); id != "" {
		if sess := s.sessions.Get(id); sess != nil {
			lastSeq, err := strconv.ParseUint(q.Get("seq"), 10, 64)
			if err != nil {
				lastSeq = 0
			}
			if s.resume(w, r, sess, lastSeq) {
				return
			}
		}
		s.logger.Debug("resume unavailable, starting new session", "session_id", id)
	}

	sess, err := s.sessions.Create(s.program())
	if err != nil {
		s.logger.Warn("session rejected", "error", err)
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, http.Header{protocol.SessionHeader: {sess.ID}})
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		s.sessions.Close(sess.ID)
		return
	}
	if err := sess.attach(conn); err != nil {
		conn.Close()
		return
	}
	if err := sess.post(sess.mount); err != nil {
		sess.detach(conn)
		return
	}
	sess.logger.Info("session started", "remote", r.RemoteAddr)
	sess.serve(conn)
}

// resume reattaches sess and reports whether the request was handled.
func (s *Server) resume(w http.ResponseWriter, r *http.Request, sess *Session, lastSeq uint64) bool {
	if sess.IsAttached() {
		return false
	}
	conn, err := s.upgrader.Upgrade(w, r, http.Header{protocol.SessionHeader: {sess.ID}})
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return true
	}
	if err := sess.attach(conn); err != nil {
		// Lost a race with another resume of the same session.
		conn.Close()
		return true
	}
	if err := sess.post(func() { sess.catchUp(lastSeq) }); err != nil {
		sess.detach(conn)
		return true
	}
	sess.logger.Info("session reattached", "last_seq", lastSeq, "remote", r.RemoteAddr)
	sess.serve(conn)
	return true
}

// HandleIndex renders a fresh View of the program to HTML.
func (s *Server) HandleIndex(w http.ResponseWriter, r *http.Request) {
	doc := headless.NewDocument()
	container := doc.NewContainer()
	reconcile.New(doc, container, nil).Mount(s.program().View())

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte("<!DOCTYPE html>\n<html><body>"))
	w.Write([]byte(headless.RenderChildren(container)))
	w.Write([]byte("</body></html>\n"))
}

// Run starts the server and blocks until ctx is done, SIGINT or SIGTERM
// arrives, or the listener fails.
func (s *Server) Run(ctx context.Context) error {
	if err := s.config.Validate(); err != nil {
		return err
	}

	ln, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.httpServer = &http.Server{
		Handler:  s.router,
		ErrorLog: slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "address", ln.Addr().String())
		errCh <- s.httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		s.logger.Info("shutting down...")
		return s.Shutdown(context.Background())
	}
}

// Shutdown closes every session and stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	if err := s.sessions.Shutdown(ctx); err != nil {
		s.logger.Error("session shutdown error", "error", err)
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}

	s.logger.Info("server shutdown complete")
	return nil
}

// Sessions returns the session manager.
func (s *Server) Sessions() *SessionManager {
	return s.sessions
}

// Config returns the effective configuration.
func (s *Server) Config() *ServerConfig {
	return s.config
}
