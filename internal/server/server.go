package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"golang.org/x/net/netutil"

	"github.com/chatsrv/chatd/internal/chat"
	"github.com/chatsrv/chatd/internal/config"
)

// Server accepts TCP connections and runs one session goroutine per client.
type Server struct {
	cfg     config.ChatConfig
	listen  config.ListenConfig
	store   *chat.Store
	logger  *slog.Logger
	metrics MetricsReporter

	mu        sync.Mutex
	boundAddr net.Addr

	readyOnce sync.Once
	ready     chan struct{}
}

// Option configures optional Server parameters.
type Option func(*Server)

// WithMetrics wires a metrics reporter into the server. Without it the
// server reports to a no-op sink.
func WithMetrics(m MetricsReporter) Option {
	return func(s *Server) {
		if m != nil {
			s.metrics = m
		}
	}
}

// New creates a Server around an existing Store.
func New(cfg *config.Config, store *chat.Store, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		cfg:     cfg.Chat,
		listen:  cfg.Listen,
		store:   store,
		logger:  logger.With(slog.String("component", "server")),
		metrics: noopMetrics{},
		ready:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Addr returns the bound listener address. Valid after Ready is closed.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.boundAddr
}

// Ready is closed once the listener is bound. Tests use it to learn the
// ephemeral port before dialing.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Run binds the listener and serves until ctx is canceled. On shutdown it
// stops accepting, closes every live client socket, and waits for all
// session goroutines to drain.
func (s *Server) Run(ctx context.Context) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", s.listen.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.listen.Addr, err)
	}
	if s.listen.MaxConns > 0 {
		ln = netutil.LimitListener(ln, s.listen.MaxConns)
	}

	s.mu.Lock()
	s.boundAddr = ln.Addr()
	s.mu.Unlock()
	s.readyOnce.Do(func() { close(s.ready) })

	s.logger.Info("chat server listening",
		slog.String("addr", ln.Addr().String()),
		slog.Int("max_conns", s.listen.MaxConns),
	)

	// Canceling ctx closes the listener, which unblocks Accept.
	go func() {
		<-ctx.Done()
		if cerr := ln.Close(); cerr != nil {
			s.logger.Debug("listener close", slog.String("error", cerr.Error()))
		}
	}()

	var wg sync.WaitGroup

	for {
		conn, aerr := ln.Accept()
		if aerr != nil {
			if ctx.Err() != nil || errors.Is(aerr, net.ErrClosed) {
				break
			}
			s.logger.Warn("accept failed", slog.String("error", aerr.Error()))
			continue
		}

		s.metrics.ConnOpened()
		sess := newSession(s, conn)

		wg.Add(1)
		go func() {
			defer wg.Done()
			sess.run()
		}()
	}

	// Close every registered connection so sessions blocked in a read
	// return, then wait for them to finish their teardown.
	for addr, c := range s.store.SnapshotConnections() {
		if cerr := c.Close(); cerr != nil {
			s.logger.Debug("close client connection",
				slog.String("addr", addr),
				slog.String("error", cerr.Error()),
			)
		}
	}
	wg.Wait()

	s.logger.Info("chat server stopped")
	return nil
}
