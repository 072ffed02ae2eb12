package http

import "bytes"

// Size caps for the request head. MaxHeadBytes bounds the whole head
// (request line through the blank line); the path and query components
// of the target are bounded separately.
const (
	DefaultMaxHeadBytes = 32 << 10
	DefaultMaxBodyBytes = 1 << 20
	DefaultMaxHeaders   = 100

	MaxPathBytes  = 8 << 10
	MaxQueryBytes = 8 << 10
)

var versionHTTP11 = []byte("HTTP/1.1")

// ParseHead turns the head bytes (request line through the terminating
// blank line, CRLF framing included) into a Request.
//
// For an unknown-but-well-formed method token the rest of the head is
// still parsed and the Request is returned alongside the 501 error, so
// the caller can respect the declared framing and keep the connection
// alive.
func ParseHead(data []byte, maxHeaders int) (*Request, error) {
	if maxHeaders <= 0 {
		maxHeaders = DefaultMaxHeaders
	}
	if len(data) == 0 {
		return nil, malformed("empty head")
	}
	// Leading empty lines before the request line are not tolerated.
	if data[0] == '\r' || data[0] == '\n' {
		return nil, malformed("leading empty line")
	}

	line, rest, err := cutLine(data)
	if err != nil {
		return nil, err
	}

	req := &Request{Version: "HTTP/1.1", KeepAlive: true}
	methodErr, err := parseRequestLine(req, line)
	if err != nil {
		return nil, err
	}

	if err := parseHeaderLines(req, rest, maxHeaders); err != nil {
		return nil, err
	}

	if req.Header.Has("Transfer-Encoding") {
		return nil, &ProtocolError{Kind: KindTransferEncoding, Reason: "chunked transfer encoding not supported"}
	}
	if err := parseContentLength(req); err != nil {
		return nil, err
	}
	if err := checkHost(req); err != nil {
		return nil, err
	}
	req.KeepAlive = !connectionClose(&req.Header)

	if methodErr != nil {
		return req, methodErr
	}
	return req, nil
}

// parseRequestLine handles `METHOD SP target SP HTTP/1.1`. Exactly one
// SP on each side; HTAB is not a separator.
func parseRequestLine(req *Request, line []byte) (methodErr, err error) {
	sp1 := bytes.IndexByte(line, ' ')
	if sp1 <= 0 {
		return nil, malformed("request line")
	}
	sp2 := bytes.IndexByte(line[sp1+1:], ' ')
	if sp2 < 0 {
		return nil, malformed("request line")
	}
	sp2 += sp1 + 1

	method := line[:sp1]
	target := line[sp1+1 : sp2]
	version := line[sp2+1:]

	if len(target) == 0 || bytes.IndexByte(version, ' ') >= 0 {
		return nil, malformed("request line")
	}
	if !isToken(method) {
		return nil, malformed("method token")
	}

	req.Method = ParseMethod(method)
	if req.Method == MethodUnknown {
		methodErr = &ProtocolError{Kind: KindUnknownMethod, Reason: string(method)}
	}

	if !bytes.Equal(version, versionHTTP11) {
		if looksLikeHTTPVersion(version) {
			return nil, &ProtocolError{Kind: KindUnsupportedVersion, Reason: string(version)}
		}
		return nil, malformed("version")
	}

	if err := parseTarget(req, target); err != nil {
		return nil, err
	}
	return methodErr, nil
}

// parseTarget accepts origin-form targets, plus the bare asterisk for
// OPTIONS. Absolute-URL and authority forms are rejected.
func parseTarget(req *Request, target []byte) error {
	for _, c := range target {
		if c <= ' ' || c == 0x7f {
			return malformed("target byte")
		}
	}

	if target[0] != '/' {
		if len(target) == 1 && target[0] == '*' && req.Method == MethodOPTIONS {
			req.RawTarget = "*"
			req.Path = "*"
			return nil
		}
		return malformed("non-origin-form target")
	}

	req.RawTarget = string(target)
	path := req.RawTarget
	if i := indexByte(path, '?'); i >= 0 {
		req.Path, req.RawQuery = path[:i], path[i+1:]
	} else {
		req.Path = path
	}

	if len(req.Path) > MaxPathBytes {
		return &ProtocolError{Kind: KindHeadTooLarge, Reason: "path too long"}
	}
	if len(req.RawQuery) > MaxQueryBytes {
		return &ProtocolError{Kind: KindHeadTooLarge, Reason: "query too long"}
	}
	return nil
}

func parseHeaderLines(req *Request, data []byte, maxHeaders int) error {
	count := 0
	for len(data) > 0 {
		line, rest, err := cutLine(data)
		if err != nil {
			return err
		}
		data = rest
		if len(line) == 0 {
			// Blank line: end of head. Anything after it is the
			// reader's concern, not ours.
			return nil
		}

		if line[0] == ' ' || line[0] == '\t' {
			return malformed("obsolete line folding")
		}

		count++
		if count > maxHeaders {
			return &ProtocolError{Kind: KindHeadTooLarge, Reason: "too many headers"}
		}

		colon := bytes.IndexByte(line, ':')
		if colon <= 0 {
			return malformed("header line")
		}
		name := line[:colon]
		if !isToken(name) {
			// Also rejects whitespace between the name and the colon.
			return malformed("header name")
		}
		value := trimOWS(line[colon+1:])
		for _, c := range value {
			if c != '\t' && (c < 0x20 || c > 0x7e) {
				return malformed("header value byte")
			}
		}
		req.Header.Add(string(name), string(value))
	}
	return malformed("head not terminated")
}

// cutLine splits off one CRLF-terminated line. Bare CR, bare LF and CR
// anywhere but immediately before LF are rejected.
func cutLine(data []byte) (line, rest []byte, err error) {
	nl := bytes.IndexByte(data, '\n')
	if nl < 0 {
		return nil, nil, malformed("line not terminated")
	}
	if nl == 0 || data[nl-1] != '\r' {
		return nil, nil, malformed("bare LF")
	}
	line = data[:nl-1]
	if bytes.IndexByte(line, '\r') >= 0 {
		return nil, nil, malformed("bare CR")
	}
	return line, data[nl+1:], nil
}

func parseContentLength(req *Request) error {
	vals := req.Header.Values("Content-Length")
	if len(vals) == 0 {
		return nil
	}
	first := vals[0]
	for _, v := range vals[1:] {
		if v != first {
			return malformed("conflicting Content-Length")
		}
	}
	if len(first) == 0 {
		return malformed("empty Content-Length")
	}
	var n int64
	for i := 0; i < len(first); i++ {
		c := first[i]
		if c < '0' || c > '9' {
			return malformed("Content-Length digit")
		}
		n = n*10 + int64(c-'0')
		if n < 0 {
			return malformed("Content-Length overflow")
		}
	}
	req.ContentLength = n
	return nil
}

func checkHost(req *Request) error {
	vals := req.Header.Values("Host")
	switch len(vals) {
	case 0:
		return &ProtocolError{Kind: KindMissingHost, Reason: "Host header required"}
	case 1:
		return nil
	default:
		return malformed("multiple Host headers")
	}
}

// connectionClose reports whether the Connection header carries the
// close option, scanning its comma-separated token list.
func connectionClose(h *Header) bool {
	for _, v := range h.Values("Connection") {
		for len(v) > 0 {
			tok := v
			if i := indexByte(v, ','); i >= 0 {
				tok, v = v[:i], v[i+1:]
			} else {
				v = ""
			}
			tok = string(trimOWS([]byte(tok)))
			if equalFold(tok, "close") {
				return true
			}
		}
	}
	return false
}

func looksLikeHTTPVersion(b []byte) bool {
	return len(b) == 8 && bytes.HasPrefix(b, []byte("HTTP/")) &&
		b[5] >= '0' && b[5] <= '9' && b[6] == '.' && b[7] >= '0' && b[7] <= '9'
}

func trimOWS(b []byte) []byte {
	for len(b) > 0 && (b[0] == ' ' || b[0] == '\t') {
		b = b[1:]
	}
	for len(b) > 0 && (b[len(b)-1] == ' ' || b[len(b)-1] == '\t') {
		b = b[:len(b)-1]
	}
	return b
}
