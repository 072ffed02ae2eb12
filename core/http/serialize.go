package http

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/valyala/bytebufferpool"
)

var crlf = []byte("\r\n")

// reserved headers are injected by the serializer; handler-supplied
// values for them never reach the wire.
var reservedHeaders = []string{"Date", "Server", "Content-Length", "Connection"}

func isReservedHeader(name string) bool {
	for _, r := range reservedHeaders {
		if equalFold(name, r) {
			return true
		}
	}
	return false
}

// AppendResponse serializes res into buf as a single contiguous wire
// message. For HEAD requests the body bytes are suppressed while
// Content-Length still reflects the full body length.
func AppendResponse(buf *bytebufferpool.ByteBuffer, res *Response, serverName string, keepAlive, head bool) {
	b := buf.B

	b = append(b, "HTTP/1.1 "...)
	b = strconv.AppendInt(b, int64(res.Status), 10)
	b = append(b, ' ')
	b = append(b, StatusText(res.Status)...)
	b = append(b, crlf...)

	b = append(b, "Date: "...)
	b = append(b, serverDate()...)
	b = append(b, crlf...)

	b = append(b, "Server: "...)
	b = append(b, serverName...)
	b = append(b, crlf...)

	b = append(b, "Content-Length: "...)
	b = strconv.AppendInt(b, int64(len(res.Body)), 10)
	b = append(b, crlf...)

	b = append(b, "Connection: "...)
	if keepAlive {
		b = append(b, "keep-alive"...)
	} else {
		b = append(b, "close"...)
	}
	b = append(b, crlf...)

	buf.B = b
	res.Header.Each(func(name, value string) {
		if isReservedHeader(name) {
			return
		}
		buf.B = append(buf.B, name...)
		buf.B = append(buf.B, ": "...)
		buf.B = append(buf.B, value...)
		buf.B = append(buf.B, crlf...)
	})

	buf.B = append(buf.B, crlf...)
	if !head {
		buf.B = append(buf.B, res.Body...)
	}
}

// Serializer output buffers come from a shared pool; the writer returns
// them once the bytes are on the wire.
var responseBufPool bytebufferpool.Pool

// AcquireResponseBuffer returns a pooled buffer for one serialized response.
func AcquireResponseBuffer() *bytebufferpool.ByteBuffer {
	return responseBufPool.Get()
}

// ReleaseResponseBuffer returns a buffer obtained from AcquireResponseBuffer.
func ReleaseResponseBuffer(buf *bytebufferpool.ByteBuffer) {
	responseBufPool.Put(buf)
}

// The Date header value is an IMF-fixdate refreshed once per second,
// so serialization never formats time on the hot path.
const imfFixdate = "Mon, 02 Jan 2006 15:04:05 GMT"

var (
	dateOnce  sync.Once
	dateValue atomic.Value
)

func serverDate() string {
	dateOnce.Do(func() {
		dateValue.Store(time.Now().UTC().Format(imfFixdate))
		go func() {
			ticker := time.NewTicker(time.Second)
			defer ticker.Stop()
			for range ticker.C {
				dateValue.Store(time.Now().UTC().Format(imfFixdate))
			}
		}()
	})
	return dateValue.Load().(string)
}
