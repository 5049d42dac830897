package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"

	"github.com/xmidt-org/sallust"
	"go.uber.org/zap"
)

// Executor is a local interface describing the set of methods the
// underlying server object must implement.  http.Server satisfies it.
type Executor interface {
	Serve(net.Listener) error
	ListenAndServe() error
	ListenAndServeTLS(certificateFile, keyFile string) error
	Shutdown(context.Context) error
}

// WebServer wraps one http.Server with the hub's lifecycle conventions:
// idempotent start on a WaitGroup, structured logging, and graceful
// shutdown.
type WebServer struct {
	name            string
	executor        Executor
	certificateFile string
	keyFile         string
	listen          func() (net.Listener, error)
	logger          *zap.Logger
	once            sync.Once
}

// New constructs a WebServer from its options.  The fallbackAddress is used
// when the options carry no bind address, so each well-known server keeps
// its conventional port without configuration.
func New(logger *zap.Logger, o WebServerOptions, fallbackAddress string, handler http.Handler) *WebServer {
	if logger == nil {
		logger = sallust.Default()
	}

	logger = logger.With(zap.String("server", o.name()))

	hs := &http.Server{
		Addr:           o.address(fallbackAddress),
		Handler:        handler,
		ReadTimeout:    o.ReadTimeout,
		WriteTimeout:   o.WriteTimeout,
		IdleTimeout:    o.idleTimeout(),
		MaxHeaderBytes: o.MaxHeaderBytes,
		ErrorLog:       zap.NewStdLog(logger),
		ConnState:      connStateLogger(logger),
	}

	if o.DisableKeepAlives {
		hs.SetKeepAlivesEnabled(false)
	}

	return &WebServer{
		name:            o.name(),
		certificateFile: o.CertificateFile,
		keyFile:         o.KeyFile,
		logger:          logger,
		executor:        hs,
	}
}

// connStateLogger produces an http.Server.ConnState callback that logs
// connection transitions at debug level.
func connStateLogger(logger *zap.Logger) func(net.Conn, http.ConnState) {
	return func(c net.Conn, state http.ConnState) {
		logger.Debug("connection state",
			zap.String("remote", c.RemoteAddr().String()),
			zap.String("state", state.String()),
		)
	}
}

// Name returns the human-readable identifier for this server.
func (w *WebServer) Name() string {
	return w.name
}

// UseListener installs a factory for the server's listener.  When set, Run
// serves on the produced listener instead of calling ListenAndServe; this
// is how the instrumented listener is attached.
func (w *WebServer) UseListener(listen func() (net.Listener, error)) {
	w.listen = listen
}

func (w *WebServer) https() bool {
	return len(w.certificateFile) > 0 && len(w.keyFile) > 0
}

// Run executes this server.  It spawns a goroutine that runs the
// appropriate Serve variant; the supplied WaitGroup is incremented and its
// Done is called when the goroutine exits.
//
// Run is idempotent: only the first invocation has any effect.
func (w *WebServer) Run(waitGroup *sync.WaitGroup) {
	w.once.Do(func() {
		waitGroup.Add(1)
		go func() {
			defer waitGroup.Done()

			w.logger.Info("starting server")
			err := w.serve()
			if errors.Is(err, http.ErrServerClosed) {
				w.logger.Info("server closed")
				return
			}

			w.logger.Error("server exited", zap.Error(err))
		}()
	})
}

func (w *WebServer) serve() error {
	if w.listen != nil {
		l, err := w.listen()
		if err != nil {
			return err
		}

		return w.executor.Serve(l)
	}

	if w.https() {
		return w.executor.ListenAndServeTLS(w.certificateFile, w.keyFile)
	}

	return w.executor.ListenAndServe()
}

// Shutdown gracefully stops the server, waiting for in-flight requests
// until the context expires.
func (w *WebServer) Shutdown(ctx context.Context) error {
	w.logger.Info("shutting down server")
	return w.executor.Shutdown(ctx)
}
