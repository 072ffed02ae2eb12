package core

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/searchktools/httpcore/core/http"
)

// Config carries every tunable of a Server. Zero values are replaced
// with the defaults below, so Config{} and DefaultConfig() behave the
// same.
type Config struct {
	// ServerName is emitted in the Server response header.
	ServerName string

	// MaxConnections caps concurrently served connections. Accepting
	// blocks once the cap is reached and resumes as connections finish.
	MaxConnections int64

	// Wire limits, enforced before any handler runs.
	MaxHeadBytes int
	MaxBodyBytes int64
	MaxHeaders   int

	// IdleReadTimeout is the allowance for the first byte of the next
	// request on a kept-alive connection. Expiry closes silently.
	IdleReadTimeout time.Duration

	// RequestTimeout bounds reading one full request, head and body.
	RequestTimeout time.Duration

	// HandlerTimeout bounds one handler invocation; expiry answers 504.
	HandlerTimeout time.Duration

	// WriteTimeout bounds writing one serialized response.
	WriteTimeout time.Duration

	// ShutdownGrace is how long in-flight requests get to finish before
	// their connections are forcibly closed.
	ShutdownGrace time.Duration

	// Logger receives connection lifecycle and request failure events.
	// Left unset, logging is disabled.
	Logger *zerolog.Logger
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		ServerName:      "httpcore",
		MaxConnections:  1024,
		MaxHeadBytes:    http.DefaultMaxHeadBytes,
		MaxBodyBytes:    http.DefaultMaxBodyBytes,
		MaxHeaders:      http.DefaultMaxHeaders,
		IdleReadTimeout: http.DefaultIdleTimeout,
		RequestTimeout:  http.DefaultRequestTimeout,
		HandlerTimeout:  30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownGrace:   30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.ServerName == "" {
		c.ServerName = def.ServerName
	}
	if c.MaxConnections <= 0 {
		c.MaxConnections = def.MaxConnections
	}
	if c.MaxHeadBytes <= 0 {
		c.MaxHeadBytes = def.MaxHeadBytes
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = def.MaxBodyBytes
	}
	if c.MaxHeaders <= 0 {
		c.MaxHeaders = def.MaxHeaders
	}
	if c.IdleReadTimeout <= 0 {
		c.IdleReadTimeout = def.IdleReadTimeout
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = def.RequestTimeout
	}
	if c.HandlerTimeout <= 0 {
		c.HandlerTimeout = def.HandlerTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = def.ShutdownGrace
	}
	return c
}

func (c Config) logger() zerolog.Logger {
	if c.Logger != nil {
		return *c.Logger
	}
	return zerolog.Nop()
}
