package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/justinas/alice"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/pharos-hub/pharos/adminhttp"
	"github.com/pharos-hub/pharos/analytics"
	"github.com/pharos-hub/pharos/device"
	"github.com/pharos-hub/pharos/dispatch"
	"github.com/pharos-hub/pharos/fleet"
	"github.com/pharos-hub/pharos/frame"
	"github.com/pharos-hub/pharos/gate"
	"github.com/pharos-hub/pharos/health"
	"github.com/pharos-hub/pharos/server"
	"github.com/pharos-hub/pharos/xmetrics"
)

const applicationName = "pharos"

// Health stats contributed by the hub, alongside the standard memory stats.
const (
	ConnectedCommandDevices health.Stat = "ConnectedCommandDevices"
	ConnectedContentDevices health.Stat = "ConnectedContentDevices"
	PendingCommandAcks      health.Stat = "PendingCommandAcks"
	PendingContentAcks      health.Stat = "PendingContentAcks"
	StoredAnalyticsEvents   health.Stat = "StoredAnalyticsEvents"
)

type deviceConfig struct {
	MaxDevices   int
	QueueSize    int
	Shards       int
	PingPeriod   time.Duration
	IdlePeriod   time.Duration
	WriteTimeout time.Duration
}

type dispatchConfig struct {
	MaxConcurrent  int
	CommandTimeout time.Duration
	ContentTimeout time.Duration
}

type fleetConfig struct {
	// Database is the SQLite file path.  Empty selects the in-memory store.
	Database string
}

type analyticsConfig struct {
	RingSize int
	Policy   analytics.Policy
}

type healthConfig struct {
	Interval      time.Duration
	MemoryCeiling int
}

func newManager(kind frame.Kind, dc deviceConfig, listeners []device.Listener, logger *zap.Logger, registry xmetrics.Registry) device.Manager {
	return device.NewManager(&device.Options{
		Kind:            kind,
		MaxDevices:      dc.MaxDevices,
		QueueSize:       dc.QueueSize,
		Shards:          dc.Shards,
		PingPeriod:      dc.PingPeriod,
		IdlePeriod:      dc.IdlePeriod,
		WriteTimeout:    dc.WriteTimeout,
		Listeners:       listeners,
		Logger:          logger,
		MetricsProvider: registry,
	})
}

// deviceListing serves the connected-device listing, selecting the registry
// by the kind query parameter.  Defaults to commands.
func deviceListing(registries map[frame.Kind]device.Registry) http.Handler {
	return http.HandlerFunc(func(response http.ResponseWriter, request *http.Request) {
		kind := frame.Command
		if value := request.URL.Query().Get("kind"); len(value) > 0 {
			parsed, err := frame.ParseKind(value)
			if err != nil {
				http.Error(response, err.Error(), http.StatusBadRequest)
				return
			}

			kind = parsed
		}

		lh := device.ListHandler{Registry: registries[kind]}
		lh.ServeHTTP(response, request)
	})
}

func pharos(arguments []string) int {
	v, config, logger, err := server.Initialize(applicationName, arguments, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "unable to initialize %s: %s\n", applicationName, err)
		return 1
	}

	defer logger.Sync()

	var (
		dc  deviceConfig
		dpc dispatchConfig
		fc  fleetConfig
		ac  analyticsConfig
		hc  healthConfig
	)

	for key, value := range map[string]interface{}{
		"device":    &dc,
		"dispatch":  &dpc,
		"fleet":     &fc,
		"analytics": &ac,
		"health":    &hc,
	} {
		if err := server.Unmarshal(v, key, value); err != nil {
			logger.Error("invalid configuration", zap.String("key", key), zap.Error(err))
			return 1
		}
	}

	registry, err := xmetrics.NewRegistry(
		&xmetrics.Options{Namespace: applicationName, Subsystem: "hub", Logger: logger},
		device.Metrics,
		dispatch.Metrics,
		analytics.Metrics,
	)

	if err != nil {
		logger.Error("unable to create metrics registry", zap.Error(err))
		return 1
	}

	var (
		dispatchMeasures = dispatch.NewMeasures(registry)

		commandWaiters = dispatch.NewWaiters(dispatch.WaitersOptions{
			Kind:     frame.Command,
			Logger:   logger,
			Measures: dispatchMeasures,
		})

		contentWaiters = dispatch.NewWaiters(dispatch.WaitersOptions{
			Kind:     frame.Content,
			Logger:   logger,
			Measures: dispatchMeasures,
		})
	)

	// The router needs the managers for activity stamps, and the managers
	// need the router's listener.  The indirection is safe: no session
	// events flow until the servers start, which is after the assignment.
	var ackRouter *dispatch.AckRouter
	routeAcks := device.Listener(func(e *device.Event) {
		ackRouter.Listener()(e)
	})

	var (
		commandManager = newManager(frame.Command, dc,
			[]device.Listener{commandWaiters.DisconnectListener(), routeAcks}, logger, registry)

		contentManager = newManager(frame.Content, dc,
			[]device.Listener{contentWaiters.DisconnectListener(), routeAcks}, logger, registry)
	)

	ackRouter = dispatch.NewAckRouter(dispatch.RouterOptions{
		Commands: dispatch.Route{Waiters: commandWaiters, Activity: commandManager},
		Content:  dispatch.Route{Waiters: contentWaiters, Activity: contentManager},
		Logger:   logger,
		Measures: dispatchMeasures,
	})

	var fleetStore fleet.Store
	if len(fc.Database) > 0 {
		sqlite, err := fleet.OpenSQLite(fc.Database)
		if err != nil {
			logger.Error("unable to open fleet database", zap.String("path", fc.Database), zap.Error(err))
			return 1
		}

		defer sqlite.Close()
		fleetStore = sqlite
	} else {
		logger.Info("no fleet database configured, using the in-memory store")
		fleetStore = fleet.NewInMemory()
	}

	dispatchGate := gate.New(
		gate.WithClosedGauge(registry.NewGauge("gate_closed")),
	)

	dispatcher := dispatch.New(dispatch.Options{
		Commands:      dispatch.Stream{Manager: commandManager, Waiters: commandWaiters},
		Content:       dispatch.Stream{Manager: contentManager, Waiters: contentWaiters},
		Fleets:        fleetStore,
		Gate:          dispatchGate,
		MaxConcurrent: dpc.MaxConcurrent,
		Logger:        logger,
		Measures:      dispatchMeasures,
	})

	ingestor := analytics.NewIngestor(analytics.IngestorOptions{
		Policy:   ac.Policy,
		Store:    analytics.NewStore(ac.RingSize),
		Logger:   logger,
		Measures: analytics.NewMeasures(registry),
	})

	monitor := health.New(health.MonitorOptions{
		Interval:      hc.Interval,
		MemoryCeiling: hc.MemoryCeiling,
		Logger:        logger,
		Initial: []health.Option{
			health.Ensure(ConnectedCommandDevices),
			health.Ensure(ConnectedContentDevices),
			health.Ensure(PendingCommandAcks),
			health.Ensure(PendingContentAcks),
			health.Ensure(StoredAnalyticsEvents),
		},
	})

	monitor.RegisterSource(ConnectedCommandDevices, commandManager.Len)
	monitor.RegisterSource(ConnectedContentDevices, contentManager.Len)
	monitor.RegisterSource(PendingCommandAcks, commandWaiters.Len)
	monitor.RegisterSource(PendingContentAcks, contentWaiters.Len)
	monitor.RegisterSource(StoredAnalyticsEvents, ingestor.Store().EventCount)
	monitor.Start()

	registries := map[frame.Kind]device.Registry{
		frame.Command: commandManager,
		frame.Content: contentManager,
	}

	// device-facing routes: subscriptions are gated so a draining hub
	// rejects new sessions with 503, and the upgrade handler stays
	// unwrapped by logging middleware so hijacking works.
	primary := mux.NewRouter()
	gated := alice.New(gate.NewConstructor(dispatchGate, nil))

	for kind, manager := range map[frame.Kind]device.Manager{
		frame.Command: commandManager,
		frame.Content: contentManager,
	} {
		prefix := "/api/v1/device/" + kind.String()
		primary.Handle(prefix+"/subscribe",
			gated.Then(device.UseID(&device.ConnectHandler{Connector: manager, Logger: logger}))).
			Methods("GET")
		primary.Handle(prefix+"/ack",
			device.UseID(&device.AckHandler{Kind: kind, Sink: ackRouter, Logger: logger})).
			Methods("POST")
	}

	primary.Handle("/api/v1/devices", deviceListing(registries)).Methods("GET")

	admin := mux.NewRouter()
	api := admin.PathPrefix("/api/v1").Subrouter()

	adminHandler := &adminhttp.Handler{
		Dispatcher:     dispatcher,
		Registries:     registries,
		CommandTimeout: dpc.CommandTimeout,
		ContentTimeout: dpc.ContentTimeout,
		Logger:         logger,
	}

	adminHandler.Register(api)
	(&fleet.Handler{Store: fleetStore, Logger: logger}).Register(api)
	(&analytics.Handler{Ingestor: ingestor}).Register(api)

	healthRouter := mux.NewRouter()
	healthRouter.Handle("/health", monitor).Methods("GET")

	if len(config.Primary.Name) == 0 {
		config.Primary.Name = applicationName + ".primary"
	}

	if len(config.Admin.Name) == 0 {
		config.Admin.Name = applicationName + ".admin"
	}

	if len(config.Metrics.Name) == 0 {
		config.Metrics.Name = applicationName + ".metrics"
	}

	if len(config.Health.Name) == 0 {
		config.Health.Name = applicationName + ".health"
	}

	if len(config.Pprof.Name) == 0 {
		config.Pprof.Name = applicationName + ".pprof"
	}

	servers := []*server.WebServer{
		server.New(logger, config.Primary, server.DefaultPrimaryAddress, primary),
		server.New(logger, config.Admin, server.DefaultAdminAddress, adminhttp.Chain(logger).Then(admin)),
		server.New(logger, config.Metrics, server.DefaultMetricsAddress,
			promhttp.HandlerFor(registry, promhttp.HandlerOpts{})),
		server.New(logger, config.Health, server.DefaultHealthAddress, healthRouter),
		server.New(logger, config.Pprof, server.DefaultPprofAddress, http.DefaultServeMux),
	}

	// the primary listener is instrumented with the raw connection gauge
	primaryAddress := config.Primary.Address
	if len(primaryAddress) == 0 {
		primaryAddress = server.DefaultPrimaryAddress
	}

	servers[0].UseListener(func() (net.Listener, error) {
		l, err := net.Listen("tcp", primaryAddress)
		if err != nil {
			return nil, err
		}

		return server.InstrumentListener(logger, registry.NewGauge("primary_tcp_connections"), l), nil
	})

	waitGroup := new(sync.WaitGroup)
	for _, s := range servers {
		s.Run(waitGroup)
	}

	logger.Info("pharos started",
		zap.String("primary", primaryAddress),
		zap.Int("maxDevices", dc.MaxDevices),
	)

	signals := make(chan os.Signal, 2)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	s := server.SignalWait(logger, signals, syscall.SIGINT, syscall.SIGTERM)
	logger.Info("shutting down", zap.String("signal", s.String()))

	// shutdown order: stop accepting dispatches and resolve every pending
	// waiter, then tear down the device sessions, then drain the servers.
	dispatcher.Close()
	commandManager.DisconnectAll(device.CloseReason{Text: "service-shutting-down"})
	contentManager.DisconnectAll(device.CloseReason{Text: "service-shutting-down"})
	monitor.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout())
	defer cancel()
	for _, s := range servers {
		if err := s.Shutdown(ctx); err != nil {
			logger.Error("server shutdown error", zap.String("server", s.Name()), zap.Error(err))
		}
	}

	waitGroup.Wait()
	registry.Stop()
	return 0
}

func main() {
	os.Exit(pharos(os.Args[1:]))
}
