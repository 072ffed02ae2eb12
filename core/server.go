// Package core runs the connection supervisor: a listener, an accept
// loop bounded by a connection semaphore, and one goroutine per
// accepted connection. Handlers are plain functions returning a
// Response; the supervisor owns every timeout, limit, and close
// decision around them.
package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/searchktools/httpcore/core/http"
	"github.com/searchktools/httpcore/core/router"
)

// HandlerFunc handles one request. It must return a non-nil response;
// a nil return is answered with a 500.
type HandlerFunc func(req *http.Request, params router.Params) *http.Response

// Server accepts connections and serves registered routes over
// HTTP/1.1. Register routes first, then call Listen or Serve; the
// route table freezes when serving starts.
type Server struct {
	cfg Config
	log zerolog.Logger

	router *router.Router
	sem    *semaphore.Weighted

	mu    sync.Mutex
	conns map[*conn]struct{}
	wg    sync.WaitGroup

	// connFreed wakes a suspended accept loop after descriptor
	// exhaustion. Capacity 1; extra signals are dropped.
	connFreed chan struct{}

	// forceClose is closed when the shutdown grace window elapses.
	// In-flight handlers are abandoned at that point.
	forceClose chan struct{}

	cancelMu    sync.Mutex
	cancelServe context.CancelFunc
}

// NewServer builds a server from cfg. Zero-valued fields take defaults.
func NewServer(cfg Config) *Server {
	cfg = cfg.withDefaults()
	return &Server{
		cfg:        cfg,
		log:        cfg.logger(),
		router:     router.New(),
		sem:        semaphore.NewWeighted(cfg.MaxConnections),
		conns:      make(map[*conn]struct{}),
		connFreed:  make(chan struct{}, 1),
		forceClose: make(chan struct{}),
	}
}

// Route registers handler for (method, pattern). Registration fails
// once the server has started serving.
func (s *Server) Route(method, pattern string, handler HandlerFunc) error {
	if handler == nil {
		return fmt.Errorf("core: nil handler for %s %s", method, pattern)
	}
	return s.router.Handle(method, pattern, handler)
}

// mustRoute backs the per-method helpers. Registration happens during
// setup, where a bad pattern is a programming error.
func (s *Server) mustRoute(method, pattern string, handler HandlerFunc) {
	if err := s.Route(method, pattern, handler); err != nil {
		panic(err)
	}
}

// GET registers handler for GET pattern, panicking on a bad pattern.
func (s *Server) GET(pattern string, handler HandlerFunc) {
	s.mustRoute("GET", pattern, handler)
}

// HEAD registers an explicit HEAD handler. Without one, HEAD requests
// are served by the GET handler with the body stripped.
func (s *Server) HEAD(pattern string, handler HandlerFunc) {
	s.mustRoute("HEAD", pattern, handler)
}

// POST registers handler for POST pattern.
func (s *Server) POST(pattern string, handler HandlerFunc) {
	s.mustRoute("POST", pattern, handler)
}

// PUT registers handler for PUT pattern.
func (s *Server) PUT(pattern string, handler HandlerFunc) {
	s.mustRoute("PUT", pattern, handler)
}

// DELETE registers handler for DELETE pattern.
func (s *Server) DELETE(pattern string, handler HandlerFunc) {
	s.mustRoute("DELETE", pattern, handler)
}

// PATCH registers handler for PATCH pattern.
func (s *Server) PATCH(pattern string, handler HandlerFunc) {
	s.mustRoute("PATCH", pattern, handler)
}

// OPTIONS registers handler for OPTIONS pattern. The pattern "*" is
// accepted for server-wide OPTIONS.
func (s *Server) OPTIONS(pattern string, handler HandlerFunc) {
	s.mustRoute("OPTIONS", pattern, handler)
}

// Listen binds addr and serves until ctx is cancelled or Shutdown is
// called.
func (s *Server) Listen(ctx context.Context, addr string) error {
	ln, err := listen(ctx, addr)
	if err != nil {
		return fmt.Errorf("bind %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts on ln until ctx is cancelled or Shutdown is called,
// then drains: the listener closes, idle connections close
// immediately, and in-flight requests get ShutdownGrace to finish.
// Serve returns after the drain completes.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.router.Freeze()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.cancelMu.Lock()
	s.cancelServe = cancel
	s.cancelMu.Unlock()

	s.log.Info().
		Str("addr", ln.Addr().String()).
		Int64("max_connections", s.cfg.MaxConnections).
		Msg("listening")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.acceptLoop(gctx, ln)
	})
	g.Go(func() error {
		<-gctx.Done()
		ln.Close()
		s.drain()
		return nil
	})
	return g.Wait()
}

// Shutdown triggers the graceful stop sequence. It does not wait; Serve
// returns once the drain is complete.
func (s *Server) Shutdown() {
	s.cancelMu.Lock()
	defer s.cancelMu.Unlock()
	if s.cancelServe != nil {
		s.cancelServe()
	}
}

// acceptLoop takes a semaphore slot before each Accept, so the listener
// backlog absorbs load beyond MaxConnections instead of the process.
func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) error {
	var tempDelay time.Duration
	for {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			return nil
		}

		nc, err := ln.Accept()
		if err != nil {
			s.sem.Release(1)
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			if isFDExhaustion(err) {
				// Sleeping cannot conjure a descriptor; wait until a
				// connection task releases one.
				s.log.Warn().Err(err).Msg("out of file descriptors, accept suspended")
				select {
				case <-s.connFreed:
				case <-ctx.Done():
					return nil
				}
				continue
			}
			if tempDelay == 0 {
				tempDelay = 10 * time.Millisecond
			} else {
				tempDelay *= 2
			}
			if tempDelay > time.Second {
				tempDelay = time.Second
			}
			s.log.Warn().Err(err).Dur("backoff", tempDelay).Msg("accept error")
			select {
			case <-time.After(tempDelay):
			case <-ctx.Done():
				return nil
			}
			continue
		}
		tempDelay = 0

		tuneConn(nc)
		c := s.newConn(nc)
		s.track(c)
		s.wg.Add(1)
		go c.serve(ctx)
	}
}

// drain closes idle connections right away and gives in-flight ones the
// grace window before forcing them shut.
func (s *Server) drain() {
	s.log.Info().Dur("grace", s.cfg.ShutdownGrace).Msg("draining connections")

	s.closeConns(func(c *conn) bool { return c.State() == StateIdle })

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(s.cfg.ShutdownGrace)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		s.log.Warn().Msg("grace period elapsed, forcing close")
		close(s.forceClose)
		s.closeConns(func(*conn) bool { return true })
		<-done
	}
	s.log.Info().Msg("drained")
}

func (s *Server) track(c *conn) {
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
}

// release undoes everything track and the accept loop reserved for c.
func (s *Server) release(c *conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
	s.sem.Release(1)
	s.wg.Done()
	select {
	case s.connFreed <- struct{}{}:
	default:
	}
}

func (s *Server) closeConns(match func(*conn) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		if match(c) {
			c.rwc.Close()
		}
	}
}

func allowHeader(allow []string) string {
	return strings.Join(allow, ", ")
}
