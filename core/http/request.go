package http

import (
	"fmt"

	json "github.com/goccy/go-json"
	"google.golang.org/protobuf/proto"
)

// Request is a fully framed HTTP/1.1 request. The raw target is kept as
// received; percent-decoding happens only where routing needs it.
type Request struct {
	Method Method

	// RawTarget is the request target exactly as it appeared on the
	// request line. Path and RawQuery are its two components, still
	// undecoded.
	RawTarget string
	Path      string
	RawQuery  string

	Version string
	Header  Header

	Body          []byte
	ContentLength int64

	// KeepAlive is derived at parse time: true unless the request
	// carries "Connection: close".
	KeepAlive bool

	RemoteAddr string
}

// Host returns the Host header value.
func (r *Request) Host() string {
	return r.Header.Get("Host")
}

// Query returns the decoded value of the first query parameter named
// key, or "" when absent or undecodable.
func (r *Request) Query(key string) string {
	q := r.RawQuery
	for len(q) > 0 {
		pair := q
		if i := indexByte(q, '&'); i >= 0 {
			pair, q = q[:i], q[i+1:]
		} else {
			q = ""
		}
		k, v := pair, ""
		if i := indexByte(pair, '='); i >= 0 {
			k, v = pair[:i], pair[i+1:]
		}
		dk, ok := unescape(k, true)
		if !ok || dk != key {
			continue
		}
		dv, ok := unescape(v, true)
		if !ok {
			return ""
		}
		return dv
	}
	return ""
}

// BindJSON unmarshals the request body into v.
func (r *Request) BindJSON(v any) error {
	return json.Unmarshal(r.Body, v)
}

// BindProto unmarshals the request body into the given message.
func (r *Request) BindProto(m proto.Message) error {
	if err := proto.Unmarshal(r.Body, m); err != nil {
		return fmt.Errorf("bind proto: %w", err)
	}
	return nil
}

func indexByte(s string, c byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == c {
			return i
		}
	}
	return -1
}

// Unescape percent-decodes a path component. '+' stays literal; it only
// means space inside a query string. The second return value is false
// when an escape sequence is invalid.
func Unescape(s string) (string, bool) {
	return unescape(s, false)
}

func unescape(s string, plusIsSpace bool) (string, bool) {
	hasEscape := false
	for i := 0; i < len(s); i++ {
		if s[i] == '%' || (plusIsSpace && s[i] == '+') {
			hasEscape = true
			break
		}
	}
	if !hasEscape {
		return s, true
	}

	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch {
		case s[i] == '%':
			if i+2 >= len(s) {
				return "", false
			}
			hi, ok1 := unhex(s[i+1])
			lo, ok2 := unhex(s[i+2])
			if !ok1 || !ok2 {
				return "", false
			}
			out = append(out, hi<<4|lo)
			i += 2
		case plusIsSpace && s[i] == '+':
			out = append(out, ' ')
		default:
			out = append(out, s[i])
		}
	}
	return string(out), true
}

func unhex(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
