package server

import (
	"time"

	"github.com/xmidt-org/sallust"
)

// WebServerOptions holds the externally configurable settings for one
// listening server.  The zero value is usable: every accessor supplies a
// sensible default.
type WebServerOptions struct {
	// Name is the human-readable identifier for the server, used in logs
	// and as the error log prefix.
	Name string

	// Address is the bind address, in net.Listen form.
	Address string

	// ReadTimeout, WriteTimeout, and IdleTimeout are passed through to the
	// underlying http.Server.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// MaxHeaderBytes caps request header size.  Zero applies the net/http
	// default.
	MaxHeaderBytes int

	// CertificateFile and KeyFile, when both set, switch the server to TLS.
	CertificateFile string
	KeyFile         string

	// DisableKeepAlives turns off HTTP keep-alives.  Useful for the pprof
	// and health servers, which see only occasional probes.
	DisableKeepAlives bool
}

func (o WebServerOptions) name() string {
	if len(o.Name) > 0 {
		return o.Name
	}

	return "server"
}

func (o WebServerOptions) address(fallback string) string {
	if len(o.Address) > 0 {
		return o.Address
	}

	return fallback
}

func (o WebServerOptions) idleTimeout() time.Duration {
	if o.IdleTimeout > 0 {
		return o.IdleTimeout
	}

	return DefaultIdleTimeout
}

func (o WebServerOptions) https() bool {
	return len(o.CertificateFile) > 0 && len(o.KeyFile) > 0
}

// Config is the top-level daemon configuration.  Subsystem options (device,
// dispatch, fleet, analytics) live in their own subtrees and are decoded
// separately via Unmarshal; this struct covers the servers and the logger.
type Config struct {
	// Log configures the zap logger via sallust.
	Log sallust.Config

	// Primary is the device-facing server: websocket subscriptions and the
	// unary acknowledge endpoints.
	Primary WebServerOptions

	// Admin is the administrative server: dispatch, fleets, analytics,
	// device listing.
	Admin WebServerOptions

	// Metrics serves Prometheus exposition.
	Metrics WebServerOptions

	// Health serves the health snapshot.
	Health WebServerOptions

	// Pprof serves net/http/pprof.
	Pprof WebServerOptions

	// ShutdownGrace bounds graceful shutdown of each server.
	// DefaultShutdownGrace is used when nonpositive.
	ShutdownGrace time.Duration
}

func (c *Config) shutdownGrace() time.Duration {
	if c != nil && c.ShutdownGrace > 0 {
		return c.ShutdownGrace
	}

	return DefaultShutdownGrace
}

// ShutdownTimeout returns the configured graceful shutdown bound.
func (c *Config) ShutdownTimeout() time.Duration {
	return c.shutdownGrace()
}
