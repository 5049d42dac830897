package adminhttp

import (
	"net/http"
	"time"

	"github.com/justinas/alice"
	"go.uber.org/zap"
)

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.code = code
	sr.ResponseWriter.WriteHeader(code)
}

// Flush preserves the streaming behavior of the underlying writer, which the
// SSE endpoints depend on.
func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Logging is an alice constructor emitting one structured log line per
// administrative request.
func Logging(logger *zap.Logger) alice.Constructor {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(response http.ResponseWriter, request *http.Request) {
			recorder := &statusRecorder{ResponseWriter: response, code: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(recorder, request)

			logger.Info("admin request",
				zap.String("method", request.Method),
				zap.String("uri", request.RequestURI),
				zap.Int("code", recorder.code),
				zap.Duration("elapsed", time.Since(start)),
			)
		})
	}
}

// Recovery is an alice constructor converting handler panics into 500s
// instead of torn connections.
func Recovery(logger *zap.Logger) alice.Constructor {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(response http.ResponseWriter, request *http.Request) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("panic in admin handler",
						zap.String("uri", request.RequestURI),
						zap.Any("panic", r),
					)
					response.WriteHeader(http.StatusInternalServerError)
				}
			}()

			next.ServeHTTP(response, request)
		})
	}
}

// Chain is the standard administrative middleware stack.
func Chain(logger *zap.Logger) alice.Chain {
	return alice.New(Recovery(logger), Logging(logger))
}
