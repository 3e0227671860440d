package bridge

import (
	"errors"
	"net"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/go-mud/go-mud-portal/lib/chat"
	"github.com/go-mud/go-mud-portal/lib/handler"
	"github.com/go-mud/go-mud-portal/lib/metrics"
	"github.com/go-mud/go-mud-portal/lib/session"
	"github.com/go-mud/go-mud-portal/lib/upstream"
	"github.com/go-mud/go-mud-portal/lib/util"
)

// Server accepts browser WebSocket connections and runs each as a portal
// session. It owns the HTTP listener, the upgrader, the live-session
// registry, the shared chat bus, the upstream dialer, and the host policy.
type Server struct {
	config   *Config
	log      *logrus.Logger
	upgrader websocket.Upgrader

	registry *session.Registry
	bus      *chat.Bus
	dialer   *upstream.Dialer
	chain    *handler.Chain
	policy   *HostPolicy

	mu         sync.Mutex
	listener   net.Listener
	httpServer *http.Server

	accepting atomic.Bool
	closed    atomic.Bool

	// done is closed when the server shuts down.
	done chan struct{}
}

// NewServer creates a portal server with the given configuration.
func NewServer(config *Config, log *logrus.Logger) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	registry := session.NewRegistry()
	s := &Server{
		config:   config,
		log:      log,
		registry: registry,
		bus:      chat.New(config.Chat.LogPath, config.Chat.HistoryLimit, registry, log),
		dialer:   upstream.NewDialer(config.Upstream.DialTimeout, config.Upstream.IdleTimeout, log),
		chain:    handler.Default(),
		policy:   NewHostPolicy(config.Upstream.DefaultHost, config.Upstream.OnlyDefaultHost),
		done:     make(chan struct{}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:   DefaultBufferSize,
		WriteBufferSize:  DefaultBufferSize,
		HandshakeTimeout: config.Timeouts.Handshake,
		CheckOrigin:      config.CheckOrigin,
	}
	if s.upgrader.CheckOrigin == nil {
		// Browsers reach portals from anywhere; origin policy is opt-in.
		s.upgrader.CheckOrigin = func(*http.Request) bool { return true }
	}
	s.accepting.Store(true)
	return s, nil
}

// Config returns the server configuration.
func (s *Server) Config() *Config {
	return s.config
}

// Registry returns the live-session registry.
func (s *Server) Registry() *session.Registry {
	return s.registry
}

// Bus returns the shared chat bus.
func (s *Server) Bus() *chat.Bus {
	return s.bus
}

// Policy returns the connect host policy, adjustable at runtime.
func (s *Server) Policy() *HostPolicy {
	return s.policy
}

// Handler returns the HTTP handler: the WebSocket endpoint on the configured
// path, plus /metrics when enabled.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.config.WSPath, s.handleUpgrade)
	if s.config.Metrics {
		mux.Handle("/metrics", metrics.Handler())
	}
	return mux
}

// ListenAndServe listens on the configured address and serves browsers.
// This method blocks until the server is closed.
func (s *Server) ListenAndServe() error {
	listener, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return err
	}
	return s.Serve(listener)
}

// Serve accepts browsers on the listener. TLS is layered on when the config
// carries a certificate pair. This method blocks until the server is closed.
func (s *Server) Serve(listener net.Listener) error {
	srv := &http.Server{Handler: s.Handler()}

	s.mu.Lock()
	if s.closed.Load() {
		s.mu.Unlock()
		return listener.Close()
	}
	s.listener = listener
	s.httpServer = srv
	s.mu.Unlock()

	s.log.Infof("listening on %s", listener.Addr())

	var err error
	if s.config.TLSEnabled() {
		err = srv.ServeTLS(listener, s.config.CertFile, s.config.KeyFile)
	} else {
		err = srv.Serve(listener)
	}
	if errors.Is(err, http.ErrServerClosed) || s.closed.Load() {
		return nil
	}
	return err
}

// handleUpgrade turns one HTTP request into a running session. It blocks on
// the request's goroutine until the session ends, which is how the HTTP
// server gives every session its client pump.
func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	if !s.accepting.Load() {
		http.Error(w, util.UserNotice(util.ErrNotAccepting), http.StatusServiceUnavailable)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		s.log.WithError(err).Debug("upgrade refused")
		return
	}

	client := NewWSClient(ws, s.config.Timeouts.Write)
	sess := session.New(s.config.SessionConfig(), session.Deps{
		Client:      client,
		Dialer:      s.dialer,
		Bus:         s.bus,
		Chain:       s.chain,
		Log:         s.log,
		HostAllowed: s.policy.Allowed,
		OnClose:     s.onSessionClose,
	})
	if err := s.registry.Register(sess); err != nil {
		s.log.WithError(err).Warn("session not registered")
		_ = client.Close()
		return
	}

	metrics.SessionsActive.Inc()
	metrics.SessionsTotal.Inc()
	s.log.Infof("session accepted from %s", client.RemoteAddr())
	s.bus.Update()

	sess.Run()
}

// onSessionClose detaches a finished session. Runs once per session, from
// its teardown.
func (s *Server) onSessionClose(sess *session.Session) {
	// During shutdown the registry empties itself first.
	_ = s.registry.Unregister(sess.ID())
	metrics.SessionsActive.Dec()
	s.bus.Update()
}

// SessionCount returns the number of live sessions.
func (s *Server) SessionCount() int {
	return s.registry.Count()
}

// Addr returns the listener address, or empty string if not listening.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Done returns a channel that is closed when the server shuts down.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

// Close gracefully shuts the portal down: stop accepting, tell every open
// session, tear the sessions down, then stop the listener.
func (s *Server) Close() error {
	if s.closed.Swap(true) {
		return nil // already closed
	}
	s.accepting.Store(false)
	s.log.Info("portal shutting down")

	for _, sess := range s.registry.Snapshot() {
		sess.Notice("The portal is going down.")
	}
	_ = s.registry.Close()

	s.mu.Lock()
	srv := s.httpServer
	listener := s.listener
	s.mu.Unlock()

	if srv != nil {
		_ = srv.Close()
	} else if listener != nil {
		_ = listener.Close()
	}

	close(s.done)
	return nil
}
