package http

import (
	"bytes"
	"net"
	"time"

	"github.com/valyala/bytebufferpool"
)

// Reader timeout defaults: idle is the allowance between bytes, request
// bounds the whole head+body read.
const (
	DefaultIdleTimeout    = 30 * time.Second
	DefaultRequestTimeout = 60 * time.Second
)

// ReaderConfig bounds a ConnReader. Zero values take the defaults above.
type ReaderConfig struct {
	MaxHeadBytes   int
	MaxBodyBytes   int64
	MaxHeaders     int
	IdleTimeout    time.Duration
	RequestTimeout time.Duration

	// FirstByte, when set, is invoked once per request as soon as its
	// first byte arrives. The connection layer uses it to move out of
	// the idle state.
	FirstByte func()
}

// ConnReader frames HTTP/1.1 requests off a connection: it accumulates
// the head up to the cap, then reads exactly the declared body length.
// Bytes past the current request (a pipelined successor) are kept for
// the next ReadRequest call.
type ConnReader struct {
	conn    net.Conn
	cfg     ReaderConfig
	pending []byte
}

// NewConnReader wraps conn with the given limits.
func NewConnReader(conn net.Conn, cfg ReaderConfig) *ConnReader {
	if cfg.MaxHeadBytes <= 0 {
		cfg.MaxHeadBytes = DefaultMaxHeadBytes
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.MaxHeaders <= 0 {
		cfg.MaxHeaders = DefaultMaxHeaders
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	return &ConnReader{conn: conn, cfg: cfg}
}

var crlfcrlf = []byte("\r\n\r\n")

// Head accumulation buffers are pooled. Everything that outlives a
// ReadRequest call (header strings, the body, the pipelined leftover)
// is copied out before the buffer is returned.
var headBufPool bytebufferpool.Pool

// ReadRequest delivers exactly one framed request.
//
// Error contract: ErrConnectionClosed and ErrIdleTimeout mean nothing
// was received and the close is silent; ErrIncomplete means the peer
// vanished mid-request; a *ProtocolError gets a response written by the
// caller. For an unknown method both the request and the error are
// returned so declared framing is preserved.
func (r *ConnReader) ReadRequest() (*Request, error) {
	deadline := time.Now().Add(r.cfg.RequestTimeout)

	bb := headBufPool.Get()
	buf := append(bb.B, r.pending...)
	defer func() {
		bb.B = buf[:0]
		headBufPool.Put(bb)
	}()

	r.pending = nil
	started := len(buf) > 0
	if started && r.cfg.FirstByte != nil {
		r.cfg.FirstByte()
	}

	headEnd := -1
	for {
		if i := bytes.Index(buf, crlfcrlf); i >= 0 {
			if j := bytes.Index(buf[:i], []byte("\n\n")); j >= 0 {
				return nil, malformed("bare LF line ending")
			}
			headEnd = i + len(crlfcrlf)
			break
		}
		if bytes.Contains(buf, []byte("\n\n")) {
			return nil, malformed("bare LF line ending")
		}
		if len(buf) >= r.cfg.MaxHeadBytes {
			return nil, &ProtocolError{Kind: KindHeadTooLarge, Reason: "head exceeds cap"}
		}

		chunk, err := r.fill(deadline)
		if len(chunk) > 0 {
			if !started {
				started = true
				if r.cfg.FirstByte != nil {
					r.cfg.FirstByte()
				}
			}
			buf = append(buf, chunk...)
			continue
		}
		if err != nil {
			return nil, r.classify(err, started)
		}
	}

	if headEnd > r.cfg.MaxHeadBytes {
		return nil, &ProtocolError{Kind: KindHeadTooLarge, Reason: "head exceeds cap"}
	}

	req, perr := ParseHead(buf[:headEnd], r.cfg.MaxHeaders)
	if req == nil {
		return nil, perr
	}

	leftover := buf[headEnd:]

	// The declared length is checked against the cap before any body
	// byte is consumed.
	if req.ContentLength > r.cfg.MaxBodyBytes {
		return nil, &ProtocolError{Kind: KindBodyTooLarge, Reason: "declared length exceeds cap"}
	}

	if req.ContentLength > 0 {
		body := make([]byte, 0, req.ContentLength)
		take := int64(len(leftover))
		if take > req.ContentLength {
			take = req.ContentLength
		}
		body = append(body, leftover[:take]...)
		leftover = leftover[take:]

		for int64(len(body)) < req.ContentLength {
			chunk, err := r.fill(deadline)
			if len(chunk) > 0 {
				need := req.ContentLength - int64(len(body))
				if int64(len(chunk)) > need {
					leftover = append(leftover, chunk[need:]...)
					chunk = chunk[:need]
				}
				body = append(body, chunk...)
				continue
			}
			if err != nil {
				return nil, r.classify(err, true)
			}
		}
		req.Body = body
	}

	// leftover aliases the pooled buffer; it must be copied out.
	if len(leftover) > 0 {
		r.pending = append([]byte(nil), leftover...)
	}
	return req, perr
}

// fill performs one bounded read. Any received bytes are returned even
// when the read also errored; the error resurfaces on the next call.
func (r *ConnReader) fill(deadline time.Time) ([]byte, error) {
	idle := time.Now().Add(r.cfg.IdleTimeout)
	if deadline.Before(idle) {
		idle = deadline
	}
	if err := r.conn.SetReadDeadline(idle); err != nil {
		return nil, err
	}

	tmp := make([]byte, 4096)
	n, err := r.conn.Read(tmp)
	if n > 0 {
		return tmp[:n], nil
	}
	return nil, err
}

func (r *ConnReader) classify(err error, started bool) error {
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		if !started {
			return ErrIdleTimeout
		}
		return &ProtocolError{Kind: KindReadTimeout, Reason: "timed out mid-request"}
	}
	if !started {
		return ErrConnectionClosed
	}
	return ErrIncomplete
}
