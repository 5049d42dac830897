package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testWebServerOptionsDefaults(t *testing.T) {
	assert := assert.New(t)

	var o WebServerOptions
	assert.Equal("server", o.name())
	assert.Equal(DefaultAdminAddress, o.address(DefaultAdminAddress))
	assert.Equal(DefaultIdleTimeout, o.idleTimeout())
	assert.False(o.https())
}

func testWebServerOptionsConfigured(t *testing.T) {
	assert := assert.New(t)

	o := WebServerOptions{
		Name:            "pharos.primary",
		Address:         ":9999",
		IdleTimeout:     time.Minute,
		CertificateFile: "cert.pem",
		KeyFile:         "key.pem",
	}

	assert.Equal("pharos.primary", o.name())
	assert.Equal(":9999", o.address(DefaultPrimaryAddress))
	assert.Equal(time.Minute, o.idleTimeout())
	assert.True(o.https())
}

func testConfigShutdownGrace(t *testing.T) {
	assert := assert.New(t)

	var c Config
	assert.Equal(DefaultShutdownGrace, c.ShutdownTimeout())

	c.ShutdownGrace = 3 * time.Second
	assert.Equal(3*time.Second, c.ShutdownTimeout())
}

func TestConfiguration(t *testing.T) {
	t.Run("Defaults", testWebServerOptionsDefaults)
	t.Run("Configured", testWebServerOptionsConfigured)
	t.Run("ShutdownGrace", testConfigShutdownGrace)
}
