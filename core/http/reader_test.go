package http

import (
	"errors"
	"net"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pipeReader wires a ConnReader to an in-memory peer.
func pipeReader(t *testing.T, cfg ReaderConfig) (*ConnReader, net.Conn) {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return NewConnReader(server, cfg), client
}

func TestReadRequestWithBody(t *testing.T) {
	r, peer := pipeReader(t, ReaderConfig{})

	go func() {
		peer.Write(head("POST /submit HTTP/1.1", "Host: a", "Content-Length: 11"))
		peer.Write([]byte("hello world"))
	}()

	req, err := r.ReadRequest()
	require.NoError(t, err)
	assert.Equal(t, MethodPOST, req.Method)
	assert.Equal(t, "hello world", string(req.Body))
}

func TestReadRequestPipelined(t *testing.T) {
	r, peer := pipeReader(t, ReaderConfig{})

	go func() {
		msg := append(head("POST /a HTTP/1.1", "Host: a", "Content-Length: 3"), "one"...)
		msg = append(msg, head("GET /b HTTP/1.1", "Host: a")...)
		peer.Write(msg)
	}()

	first, err := r.ReadRequest()
	require.NoError(t, err)
	assert.Equal(t, "/a", first.Path)
	assert.Equal(t, "one", string(first.Body))

	// The second request was already buffered; no further peer write.
	second, err := r.ReadRequest()
	require.NoError(t, err)
	assert.Equal(t, "/b", second.Path)
	assert.Equal(t, MethodGET, second.Method)
}

func TestReadRequestBodySplitAcrossWrites(t *testing.T) {
	r, peer := pipeReader(t, ReaderConfig{})

	go func() {
		peer.Write(head("POST / HTTP/1.1", "Host: a", "Content-Length: 6"))
		peer.Write([]byte("abc"))
		peer.Write([]byte("def"))
	}()

	req, err := r.ReadRequest()
	require.NoError(t, err)
	assert.Equal(t, "abcdef", string(req.Body))
}

func TestReadRequestIdleTimeout(t *testing.T) {
	r, _ := pipeReader(t, ReaderConfig{IdleTimeout: 20 * time.Millisecond})

	_, err := r.ReadRequest()
	assert.ErrorIs(t, err, ErrIdleTimeout)
}

func TestReadRequestTimeoutMidHead(t *testing.T) {
	r, peer := pipeReader(t, ReaderConfig{IdleTimeout: 20 * time.Millisecond})

	go peer.Write([]byte("GET / HT"))

	_, err := r.ReadRequest()
	var pe *ProtocolError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, KindReadTimeout, pe.Kind)
	assert.Equal(t, 408, pe.Status())
}

func TestReadRequestPeerGoneBeforeBytes(t *testing.T) {
	r, peer := pipeReader(t, ReaderConfig{})

	go peer.Close()

	_, err := r.ReadRequest()
	assert.ErrorIs(t, err, ErrConnectionClosed)
}

func TestReadRequestPeerGoneMidRequest(t *testing.T) {
	r, peer := pipeReader(t, ReaderConfig{})

	go func() {
		peer.Write([]byte("GET / HTTP/1.1\r\nHos"))
		peer.Close()
	}()

	_, err := r.ReadRequest()
	assert.ErrorIs(t, err, ErrIncomplete)
}

func TestReadRequestPeerGoneMidBody(t *testing.T) {
	r, peer := pipeReader(t, ReaderConfig{})

	go func() {
		peer.Write(head("POST / HTTP/1.1", "Host: a", "Content-Length: 10"))
		peer.Write([]byte("abc"))
		peer.Close()
	}()

	_, err := r.ReadRequest()
	assert.ErrorIs(t, err, ErrIncomplete)
}

func TestReadRequestHeadTooLarge(t *testing.T) {
	r, peer := pipeReader(t, ReaderConfig{MaxHeadBytes: 128})

	go func() {
		peer.Write([]byte("GET / HTTP/1.1\r\nHost: a\r\n"))
		for {
			if _, err := peer.Write([]byte("X-Pad: aaaaaaaaaaaaaaaa\r\n")); err != nil {
				return
			}
		}
	}()

	_, err := r.ReadRequest()
	var pe *ProtocolError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, KindHeadTooLarge, pe.Kind)
	assert.Equal(t, 431, pe.Status())
}

// exactHead builds a head of exactly n bytes by sizing a padding header.
func exactHead(t *testing.T, n int) []byte {
	t.Helper()
	const prefix = "GET / HTTP/1.1\r\nHost: a\r\nX-Pad: "
	const suffix = "\r\n\r\n"
	pad := n - len(prefix) - len(suffix)
	require.Greater(t, pad, 0)
	return []byte(prefix + strings.Repeat("a", pad) + suffix)
}

func TestReadRequestHeadExactlyAtCap(t *testing.T) {
	r, peer := pipeReader(t, ReaderConfig{MaxHeadBytes: 256})

	go peer.Write(exactHead(t, 256))

	req, err := r.ReadRequest()
	require.NoError(t, err)
	assert.Equal(t, MethodGET, req.Method)
}

func TestReadRequestHeadOneOverCap(t *testing.T) {
	r, peer := pipeReader(t, ReaderConfig{MaxHeadBytes: 256})

	go peer.Write(exactHead(t, 257))

	_, err := r.ReadRequest()
	var pe *ProtocolError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, KindHeadTooLarge, pe.Kind)
}

func TestReadRequestBodyExactlyAtCap(t *testing.T) {
	r, peer := pipeReader(t, ReaderConfig{MaxBodyBytes: 64})

	body := strings.Repeat("b", 64)
	go peer.Write(append(head("POST / HTTP/1.1", "Host: a", "Content-Length: 64"), body...))

	req, err := r.ReadRequest()
	require.NoError(t, err)
	assert.Equal(t, body, string(req.Body))
}

func TestReadRequestBodyOverCapRejectedUpFront(t *testing.T) {
	r, peer := pipeReader(t, ReaderConfig{MaxBodyBytes: 64})

	// Only the head is sent. The declared length alone must trigger
	// the rejection, before any body byte.
	go peer.Write(head("POST / HTTP/1.1", "Host: a", "Content-Length: 65"))

	_, err := r.ReadRequest()
	var pe *ProtocolError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, KindBodyTooLarge, pe.Kind)
	assert.Equal(t, 413, pe.Status())
}

func TestReadRequestBareLFRejected(t *testing.T) {
	r, peer := pipeReader(t, ReaderConfig{})

	go peer.Write([]byte("GET / HTTP/1.1\nHost: a\n\n"))

	_, err := r.ReadRequest()
	var pe *ProtocolError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, KindMalformed, pe.Kind)
}

func TestReadRequestFirstByteHook(t *testing.T) {
	var fired atomic.Int32
	r, peer := pipeReader(t, ReaderConfig{FirstByte: func() { fired.Add(1) }})

	go peer.Write(head("GET / HTTP/1.1", "Host: a"))

	_, err := r.ReadRequest()
	require.NoError(t, err)
	assert.Equal(t, int32(1), fired.Load())
}

func TestReadRequestUnknownMethodPreservesFraming(t *testing.T) {
	r, peer := pipeReader(t, ReaderConfig{})

	go func() {
		msg := append(head("PURGE /cache HTTP/1.1", "Host: a", "Content-Length: 3"), "abc"...)
		msg = append(msg, head("GET /next HTTP/1.1", "Host: a")...)
		peer.Write(msg)
	}()

	req, err := r.ReadRequest()
	var pe *ProtocolError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, KindUnknownMethod, pe.Kind)
	require.NotNil(t, req)
	assert.Equal(t, "abc", string(req.Body))

	// The declared body was consumed, so the connection is still in
	// sync for the next request.
	next, err := r.ReadRequest()
	require.NoError(t, err)
	assert.Equal(t, "/next", next.Path)
}

func TestReadRequestZeroLengthBody(t *testing.T) {
	r, peer := pipeReader(t, ReaderConfig{})

	go peer.Write(head("POST / HTTP/1.1", "Host: a", "Content-Length: 0"))

	req, err := r.ReadRequest()
	require.NoError(t, err)
	assert.Nil(t, req.Body)
	assert.Equal(t, int64(0), req.ContentLength)
}

func TestClassifyUnwrappedErrors(t *testing.T) {
	r := &ConnReader{}
	assert.True(t, errors.Is(r.classify(errors.New("boom"), false), ErrConnectionClosed))
	assert.True(t, errors.Is(r.classify(errors.New("boom"), true), ErrIncomplete))
}
