// Package server provides the bootstrap layer for the hub daemon:
// configuration loading with viper conventions, logger construction, and
// http.Server lifecycle management with graceful shutdown.
package server
