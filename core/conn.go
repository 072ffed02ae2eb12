package core

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/searchktools/httpcore/core/http"
	"github.com/searchktools/httpcore/core/router"
)

// ConnState is where a connection currently sits in its request cycle.
// The drain logic closes StateIdle connections immediately; every other
// state gets the grace window.
type ConnState int32

const (
	// StateIdle: no request byte is pending. Covers both a fresh
	// connection and the gap between kept-alive requests.
	StateIdle ConnState = iota
	StateReading
	StateHandling
	StateWriting
	StateClosing
)

func (s ConnState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReading:
		return "reading"
	case StateHandling:
		return "handling"
	case StateWriting:
		return "writing"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

type conn struct {
	srv   *Server
	rwc   net.Conn
	log   zerolog.Logger
	state atomic.Int32
}

func (s *Server) newConn(nc net.Conn) *conn {
	c := &conn{srv: s, rwc: nc}
	c.log = s.log.With().Str("remote", nc.RemoteAddr().String()).Logger()
	return c
}

func (c *conn) setState(st ConnState) { c.state.Store(int32(st)) }

// State is read by the drain logic from another goroutine.
func (c *conn) State() ConnState { return ConnState(c.state.Load()) }

// serve runs the connection's request loop until the connection is no
// longer usable. Every return path closes the socket and gives the
// slot back.
func (c *conn) serve(ctx context.Context) {
	defer func() {
		c.setState(StateClosing)
		c.rwc.Close()
		c.srv.release(c)
		c.log.Debug().Msg("connection closed")
	}()
	c.log.Debug().Msg("connection accepted")

	reader := http.NewConnReader(c.rwc, http.ReaderConfig{
		MaxHeadBytes:   c.srv.cfg.MaxHeadBytes,
		MaxBodyBytes:   c.srv.cfg.MaxBodyBytes,
		MaxHeaders:     c.srv.cfg.MaxHeaders,
		IdleTimeout:    c.srv.cfg.IdleReadTimeout,
		RequestTimeout: c.srv.cfg.RequestTimeout,
		FirstByte:      func() { c.setState(StateReading) },
	})
	remote := c.rwc.RemoteAddr().String()

	for {
		c.setState(StateIdle)
		// The drain scan and this transition can interleave; the
		// context is always cancelled before the scan runs, so one of
		// the two catches every idle connection.
		if ctx.Err() != nil {
			return
		}
		req, err := reader.ReadRequest()
		if req == nil {
			if err != nil {
				c.finishReadError(err)
			}
			return
		}
		req.RemoteAddr = remote

		if err != nil {
			// Unknown method with intact framing: the declared body was
			// consumed, so the connection can survive the 501.
			if !c.answerProtocolError(req, err) {
				return
			}
			continue
		}

		c.setState(StateHandling)
		res, forceClose := c.dispatch(req)
		if res == nil {
			return
		}
		keep := req.KeepAlive && !forceClose && ctx.Err() == nil
		c.setState(StateWriting)
		if err := c.writeResponse(res, keep, req.Method == http.MethodHEAD); err != nil {
			c.log.Debug().Err(err).Msg("response write failed")
			return
		}
		if !keep {
			return
		}
	}
}

// finishReadError handles a read failure for which no request was
// framed. Protocol errors get their response; the sentinels close
// without one.
func (c *conn) finishReadError(err error) {
	switch {
	case errors.Is(err, http.ErrConnectionClosed), errors.Is(err, http.ErrIdleTimeout):
		// Nothing was received; nothing to answer.
	case errors.Is(err, http.ErrIncomplete):
		c.log.Warn().Msg("peer closed mid-request")
	default:
		var pe *http.ProtocolError
		if !errors.As(err, &pe) {
			c.log.Warn().Err(err).Msg("request read failed")
			return
		}
		c.log.Warn().
			Str("kind", pe.Kind.String()).
			Int("status", pe.Status()).
			Msg(pe.Error())
		c.setState(StateWriting)
		if werr := c.writeResponse(http.Error(pe.Status()), false, false); werr != nil {
			c.log.Debug().Err(werr).Msg("error response write failed")
		}
	}
}

// answerProtocolError writes the response for a framed-but-rejected
// request and reports whether the connection may continue.
func (c *conn) answerProtocolError(req *http.Request, err error) bool {
	var pe *http.ProtocolError
	if !errors.As(err, &pe) {
		c.log.Warn().Err(err).Msg("request rejected")
		return false
	}
	keep := req.KeepAlive && !pe.CloseAfter()
	c.log.Warn().
		Str("kind", pe.Kind.String()).
		Str("target", req.RawTarget).
		Int("status", pe.Status()).
		Msg(pe.Error())
	c.setState(StateWriting)
	if werr := c.writeResponse(http.Error(pe.Status()), keep, false); werr != nil {
		c.log.Debug().Err(werr).Msg("error response write failed")
		return false
	}
	return keep
}

// dispatch routes req and runs its handler. A nil response means the
// server force-closed mid-handler and the request is dropped without a
// reply; forceClose overrides keep-alive for failure statuses.
func (c *conn) dispatch(req *http.Request) (res *http.Response, forceClose bool) {
	m, err := c.srv.router.Lookup(req.Method.String(), req.Path)
	if err != nil {
		c.log.Warn().Str("target", req.RawTarget).Int("status", 400).
			Msg("undecodable request path")
		return http.Error(400), true
	}

	switch m.Kind {
	case router.MatchNotFound:
		c.log.Debug().Str("method", req.Method.String()).
			Str("path", req.Path).Int("status", 404).Msg("no route")
		return http.Error(404), false
	case router.MatchMethodNotAllowed:
		c.log.Debug().Str("method", req.Method.String()).
			Str("path", req.Path).Int("status", 405).Msg("method not allowed")
		res := http.Error(405)
		res.Header.Set("Allow", allowHeader(m.Allow))
		return res, false
	}

	handler := m.Handler.(HandlerFunc)
	return c.invoke(handler, req, m.Params)
}

// invoke runs the handler on its own goroutine so a timeout never
// blocks the connection. A timed-out handler keeps running to
// completion; its result is discarded. In-flight handlers survive the
// start of a shutdown and are abandoned only when the grace window
// elapses.
func (c *conn) invoke(handler HandlerFunc, req *http.Request, params router.Params) (*http.Response, bool) {
	timer := time.NewTimer(c.srv.cfg.HandlerTimeout)
	defer timer.Stop()

	resCh := make(chan *http.Response, 1)
	panicCh := make(chan any, 1)
	go func() {
		defer func() {
			if v := recover(); v != nil {
				panicCh <- v
			}
		}()
		resCh <- handler(req, params)
	}()

	select {
	case res := <-resCh:
		if res == nil {
			c.log.Error().Str("method", req.Method.String()).
				Str("path", req.Path).Int("status", 500).Msg("handler returned nil response")
			return http.Error(500), true
		}
		return res, false
	case v := <-panicCh:
		c.log.Error().Interface("panic", v).
			Str("method", req.Method.String()).
			Str("path", req.Path).Int("status", 500).Msg("handler panicked")
		return http.Error(500), true
	case <-timer.C:
		c.log.Error().Str("method", req.Method.String()).
			Str("path", req.Path).Int("status", 504).
			Dur("timeout", c.srv.cfg.HandlerTimeout).Msg("handler timed out")
		return http.Error(504), true
	case <-c.srv.forceClose:
		// Grace expired mid-handler; the socket is gone. Drop the
		// request rather than emit a stale response.
		return nil, true
	}
}

func (c *conn) writeResponse(res *http.Response, keepAlive, head bool) error {
	buf := http.AcquireResponseBuffer()
	defer http.ReleaseResponseBuffer(buf)
	http.AppendResponse(buf, res, c.srv.cfg.ServerName, keepAlive, head)

	if c.srv.cfg.WriteTimeout > 0 {
		if err := c.rwc.SetWriteDeadline(time.Now().Add(c.srv.cfg.WriteTimeout)); err != nil {
			return err
		}
	}
	_, err := c.rwc.Write(buf.B)
	return err
}
