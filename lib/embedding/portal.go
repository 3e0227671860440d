// Package embedding lets another Go program run a mud-portal in-process:
// construct a Portal with options, start it on a context, and stop it when
// done. Game launchers and test harnesses use this instead of shelling out
// to the mud-portal binary.
package embedding

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/go-mud/go-mud-portal/lib/bridge"
)

// ErrPortalAlreadyRunning is returned by Start when the portal has already
// been started. A Portal serves once; create a new one to restart.
var ErrPortalAlreadyRunning = errors.New("portal already running")

// Lifecycle defines the interface for controlling an embedded portal.
type Lifecycle interface {
	// Start begins serving browser connections. Non-blocking.
	// Returns an error if the portal cannot start.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the portal.
	// The context bounds how long to wait for the server to finish.
	Stop(ctx context.Context) error

	// Wait blocks until the portal has stopped.
	// Returns any error that caused the shutdown.
	Wait() error

	// Running returns true if the portal is actively serving.
	Running() bool
}

// Option adjusts the portal before it is built. Later options win.
type Option func(*settings)

type settings struct {
	config   *bridge.Config
	listener net.Listener
	log      *logrus.Logger
}

// WithConfig replaces the whole configuration, including anything an
// earlier option set.
func WithConfig(cfg *bridge.Config) Option {
	return func(s *settings) { s.config = cfg }
}

// WithListenAddr sets the listen address.
func WithListenAddr(addr string) Option {
	return func(s *settings) { s.config = s.config.WithListenAddr(addr) }
}

// WithListener serves on an existing listener instead of opening one at the
// configured address.
func WithListener(ln net.Listener) Option {
	return func(s *settings) { s.listener = ln }
}

// WithDefaultMUD sets the upstream target sessions connect to by default.
func WithDefaultMUD(host string, port int) Option {
	return func(s *settings) { s.config = s.config.WithDefaultMUD(host, port) }
}

// WithOnlyDefaultHost refuses connects to hosts other than the default.
func WithOnlyDefaultHost(only bool) Option {
	return func(s *settings) { s.config = s.config.WithOnlyDefaultHost(only) }
}

// WithChatLog sets the chat history file.
func WithChatLog(path string) Option {
	return func(s *settings) { s.config = s.config.WithChatLog(path) }
}

// WithCompression deflates outbound frames.
func WithCompression(on bool) Option {
	return func(s *settings) { s.config = s.config.WithCompression(on) }
}

// WithDebug enables frame tracing on every session.
func WithDebug(on bool) Option {
	return func(s *settings) { s.config = s.config.WithDebug(on) }
}

// WithLogger routes the portal's logging through the given logger.
func WithLogger(log *logrus.Logger) Option {
	return func(s *settings) { s.log = log }
}

// Portal is an embeddable mud-portal server.
// It implements the Lifecycle interface for easy integration.
type Portal struct {
	config   *bridge.Config
	server   *bridge.Server
	log      *logrus.Logger
	listener net.Listener

	mu       sync.Mutex
	running  atomic.Bool
	done     chan struct{}
	err      error
	cancelFn context.CancelFunc
}

// Ensure Portal implements Lifecycle.
var _ Lifecycle = (*Portal)(nil)

// New creates a new Portal with the given options applied to a default
// configuration. Returns an error if the configuration is invalid.
func New(opts ...Option) (*Portal, error) {
	s := &settings{config: bridge.DefaultConfig()}
	for _, opt := range opts {
		opt(s)
	}

	log := s.log
	if log == nil {
		log = logrus.StandardLogger()
	}

	server, err := bridge.NewServer(s.config, log)
	if err != nil {
		return nil, err
	}

	return &Portal{
		config:   s.config,
		server:   server,
		log:      log,
		listener: s.listener,
		done:     make(chan struct{}),
	}, nil
}

// Start begins serving browser connections. The context is used for
// cancellation: when it ends, the portal stops. Non-blocking.
func (p *Portal) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancelFn != nil {
		return ErrPortalAlreadyRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancelFn = cancel

	go func() {
		var err error
		if p.listener != nil {
			err = p.server.Serve(p.listener)
		} else {
			err = p.server.ListenAndServe()
		}

		p.mu.Lock()
		p.err = err
		p.running.Store(false)
		p.mu.Unlock()

		close(p.done)
	}()

	p.running.Store(true)

	// Watch for context cancellation.
	go func() {
		<-ctx.Done()
		_ = p.Stop(context.Background())
	}()

	p.log.WithField("addr", p.config.ListenAddr).Info("portal started")
	return nil
}

// Stop gracefully shuts down the portal: open sessions get a notice and are
// torn down, then the listener closes. The context bounds how long to wait
// for the serve loop to finish.
func (p *Portal) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running.Load() {
		p.mu.Unlock()
		return nil // already stopped
	}
	cancel := p.cancelFn
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if err := p.server.Close(); err != nil {
		p.log.WithError(err).Warn("error closing server")
	}

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until the portal has stopped.
// Returns any error that caused the shutdown.
func (p *Portal) Wait() error {
	<-p.done
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Running returns true if the portal is actively serving.
func (p *Portal) Running() bool {
	return p.running.Load()
}

// Server returns the underlying bridge.Server for advanced access: the
// session registry, the chat bus, and the runtime host policy.
func (p *Portal) Server() *bridge.Server {
	return p.server
}

// Config returns the portal's configuration.
// This is a read-only view; modifying the returned config has no effect.
func (p *Portal) Config() *bridge.Config {
	return p.config
}

// Addr returns the serving address, or empty string if not listening yet.
func (p *Portal) Addr() string {
	return p.server.Addr()
}
