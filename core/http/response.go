package http

import (
	json "github.com/goccy/go-json"
	"google.golang.org/protobuf/proto"
)

// Response is what a handler returns. Date, Server, Content-Length and
// Connection are always owned by the serializer; values set here for
// those names are overwritten on the wire.
type Response struct {
	Status int
	Header Header
	Body   []byte
}

// NewResponse returns an empty response with the given status.
func NewResponse(status int) *Response {
	return &Response{Status: status}
}

// Text builds a plain-text response.
func Text(status int, body string) *Response {
	res := &Response{Status: status, Body: []byte(body)}
	res.Header.Set("Content-Type", "text/plain; charset=utf-8")
	return res
}

// Bytes builds a response with an explicit content type.
func Bytes(status int, contentType string, body []byte) *Response {
	res := &Response{Status: status, Body: body}
	res.Header.Set("Content-Type", contentType)
	return res
}

// JSON builds an application/json response. A marshalling failure
// degrades to a plain 500.
func JSON(status int, v any) *Response {
	data, err := json.Marshal(v)
	if err != nil {
		return Error(500)
	}
	res := &Response{Status: status, Body: data}
	res.Header.Set("Content-Type", "application/json")
	return res
}

// Proto builds an application/x-protobuf response. A marshalling
// failure degrades to a plain 500.
func Proto(status int, m proto.Message) *Response {
	data, err := proto.Marshal(m)
	if err != nil {
		return Error(500)
	}
	res := &Response{Status: status, Body: data}
	res.Header.Set("Content-Type", "application/x-protobuf")
	return res
}

// Error builds the canonical error response for a status: a short
// plain-text reason, never HTML, never internal detail.
func Error(status int) *Response {
	reason := StatusText(status)
	if reason == "" {
		reason = "Error"
	}
	return Text(status, reason)
}
