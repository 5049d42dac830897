package device

import (
	"time"

	"github.com/go-kit/kit/metrics/provider"
	"github.com/gorilla/websocket"
	"github.com/xmidt-org/sallust"
	"go.uber.org/zap"

	"github.com/pharos-hub/pharos/frame"
)

const (
	// DeviceNameHeader is the name of the HTTP header which contains the
	// device identifier.  Required at connect time and on HTTP
	// acknowledgements to identify the device.
	DeviceNameHeader = "X-Pharos-Device-Name"

	// PropertiesHeader is the name of the optional HTTP header carrying the
	// device's self-reported properties as base64-encoded JSON.
	PropertiesHeader = "X-Pharos-Properties"

	// LastDeliveryHeader is the name of the optional HTTP header through
	// which a reconnecting device reports the last delivery it received.
	// The hub stores the value; it performs no replay.
	LastDeliveryHeader = "X-Pharos-Last-Delivery"

	// DeviceLimitHeader is set on responses that reject a connection
	// because the manager is full.
	DeviceLimitHeader = "X-Pharos-Max-Devices"

	DefaultIdlePeriod   time.Duration = 135 * time.Second
	DefaultWriteTimeout time.Duration = 60 * time.Second
	DefaultPingPeriod   time.Duration = 45 * time.Second

	DefaultQueueSize = 100
	DefaultShards    = 16
)

// Options represent the available configuration options for a Manager.
// The zero value is usable: every accessor supplies a sensible default.
type Options struct {
	// Kind is the stream kind served by managers created from these
	// options.  If unset, the command stream is assumed.
	Kind frame.Kind

	// Upgrader is the gorilla websocket.Upgrader injected into these options.
	Upgrader websocket.Upgrader

	// MaxDevices is the maximum number of sessions allowed in any one
	// Manager.  If unset (i.e. zero), no limit is applied.
	MaxDevices int

	// QueueSize is the capacity of the channel which stores frames waiting
	// to be transmitted to a device.  If not supplied, DefaultQueueSize is
	// used.  A device whose queue fills is closed as a slow consumer.
	QueueSize int

	// Shards is the number of segments the session registry is divided
	// into.  If not supplied, DefaultShards is used.
	Shards int

	// PingPeriod is the time between pings sent to each device
	PingPeriod time.Duration

	// IdlePeriod is the length of time a device connection is allowed to be
	// idle, with no pongs or frames coming from the device.  If not
	// supplied, DefaultIdlePeriod is used.
	IdlePeriod time.Duration

	// WriteTimeout is the write timeout for each device's websocket.  If
	// not supplied, DefaultWriteTimeout is used.
	WriteTimeout time.Duration

	// Listeners contains the event sinks for managers created using these options
	Listeners []Listener

	// Logger is the output sink for log messages.  If not supplied, the
	// sallust default logger is used.
	Logger *zap.Logger

	// MetricsProvider is the go-kit factory for metrics
	MetricsProvider provider.Provider

	// Now is the closure used to determine the current time.  If not set,
	// time.Now is used.
	Now func() time.Time
}

func (o *Options) kind() frame.Kind {
	if o != nil && len(o.Kind) > 0 {
		return o.Kind
	}

	return frame.Command
}

func (o *Options) upgrader() *websocket.Upgrader {
	upgrader := new(websocket.Upgrader)
	if o != nil {
		*upgrader = o.Upgrader
	}

	return upgrader
}

func (o *Options) maxDevices() int {
	if o != nil && o.MaxDevices > 0 {
		return o.MaxDevices
	}

	return 0
}

func (o *Options) queueSize() int {
	if o != nil && o.QueueSize > 0 {
		return o.QueueSize
	}

	return DefaultQueueSize
}

func (o *Options) shards() int {
	if o != nil && o.Shards > 0 {
		return o.Shards
	}

	return DefaultShards
}

func (o *Options) pingPeriod() time.Duration {
	if o != nil && o.PingPeriod > 0 {
		return o.PingPeriod
	}

	return DefaultPingPeriod
}

func (o *Options) idlePeriod() time.Duration {
	if o != nil && o.IdlePeriod > 0 {
		return o.IdlePeriod
	}

	return DefaultIdlePeriod
}

func (o *Options) writeTimeout() time.Duration {
	if o != nil && o.WriteTimeout > 0 {
		return o.WriteTimeout
	}

	return DefaultWriteTimeout
}

func (o *Options) listeners() []Listener {
	if o != nil {
		return o.Listeners
	}

	return nil
}

func (o *Options) logger() *zap.Logger {
	if o != nil && o.Logger != nil {
		return o.Logger
	}

	return sallust.Default()
}

func (o *Options) metricsProvider() provider.Provider {
	if o != nil && o.MetricsProvider != nil {
		return o.MetricsProvider
	}

	return provider.NewDiscardProvider()
}

func (o *Options) now() func() time.Time {
	if o != nil && o.Now != nil {
		return o.Now
	}

	return time.Now
}
