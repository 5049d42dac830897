package server

import "time"

const (
	// DefaultPrimaryAddress is the bind address of the device-facing server.
	DefaultPrimaryAddress = ":8080"

	// DefaultAdminAddress is the bind address of the administrative server.
	DefaultAdminAddress = ":8081"

	// DefaultMetricsAddress is the bind address of the metrics server.
	DefaultMetricsAddress = ":9389"

	// DefaultHealthAddress is the bind address of the health server.
	DefaultHealthAddress = ":8888"

	// DefaultPprofAddress is the bind address of the pprof server.
	DefaultPprofAddress = ":9999"

	// DefaultIdleTimeout is applied to servers with no configured idle
	// timeout.
	DefaultIdleTimeout = 2 * time.Minute

	// DefaultShutdownGrace bounds how long Shutdown waits for in-flight
	// requests before closing the server outright.
	DefaultShutdownGrace = 15 * time.Second

	// FileFlagName is the long name of the configuration file flag.
	FileFlagName = "file"

	// FileFlagShorthand is the single-character form of the configuration
	// file flag.
	FileFlagShorthand = "f"
)
