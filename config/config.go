// Package config loads host-program configuration. Values come from
// flags with environment-variable overrides; there is no config file.
package config

import (
	"flag"
	"os"
	"strconv"
	"time"

	"github.com/searchktools/httpcore/core"
)

// Config holds everything a host program needs to run a server.
type Config struct {
	Addr           string
	ServerName     string
	MaxConnections int64

	IdleReadTimeout time.Duration
	RequestTimeout  time.Duration
	HandlerTimeout  time.Duration
	WriteTimeout    time.Duration
	ShutdownGrace   time.Duration

	// LogLevel is a zerolog level name: debug, info, warn, error.
	LogLevel string
}

// New parses flags and applies env overrides. Env wins over flags so
// deployments can reconfigure a baked binary.
func New() *Config {
	def := core.DefaultConfig()
	cfg := &Config{}

	flag.StringVar(&cfg.Addr, "addr", ":8080", "listen address")
	flag.StringVar(&cfg.ServerName, "server-name", def.ServerName, "Server header value")
	flag.Int64Var(&cfg.MaxConnections, "max-connections", def.MaxConnections, "concurrent connection cap")
	flag.DurationVar(&cfg.IdleReadTimeout, "idle-timeout", def.IdleReadTimeout, "keep-alive idle timeout")
	flag.DurationVar(&cfg.RequestTimeout, "request-timeout", def.RequestTimeout, "full request read timeout")
	flag.DurationVar(&cfg.HandlerTimeout, "handler-timeout", def.HandlerTimeout, "handler execution timeout")
	flag.DurationVar(&cfg.WriteTimeout, "write-timeout", def.WriteTimeout, "response write timeout")
	flag.DurationVar(&cfg.ShutdownGrace, "shutdown-grace", def.ShutdownGrace, "graceful shutdown grace period")
	flag.StringVar(&cfg.LogLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flag.Parse()

	if v := os.Getenv("HTTPCORE_ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv("HTTPCORE_MAX_CONNECTIONS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.MaxConnections = n
		}
	}
	if v := os.Getenv("HTTPCORE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	return cfg
}

// ServerConfig maps the host configuration onto the supervisor's.
func (c *Config) ServerConfig() core.Config {
	sc := core.DefaultConfig()
	sc.ServerName = c.ServerName
	sc.MaxConnections = c.MaxConnections
	sc.IdleReadTimeout = c.IdleReadTimeout
	sc.RequestTimeout = c.RequestTimeout
	sc.HandlerTimeout = c.HandlerTimeout
	sc.WriteTimeout = c.WriteTimeout
	sc.ShutdownGrace = c.ShutdownGrace
	return sc
}
