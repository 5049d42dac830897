package gate

import "net/http"

// defaultClosedHandler is used when a constructor is given no closed
// handler.  It reports that the hub is draining down.
func defaultClosedHandler(response http.ResponseWriter, _ *http.Request) {
	response.Header().Set("Content-Type", "application/json")
	response.WriteHeader(http.StatusServiceUnavailable)
	response.Write([]byte(`{"code": 503, "message": "server is shutting down"}`))
}

// NewConstructor produces an alice-style decorator that refuses traffic
// while the gate is lowered, invoking the closed handler instead of next.
// The gate is required; closed may be nil, in which case a plain 503 is
// returned to refused requests.
func NewConstructor(g Interface, closed http.Handler) func(http.Handler) http.Handler {
	if g == nil {
		panic("a gate is required")
	}

	if closed == nil {
		closed = http.HandlerFunc(defaultClosedHandler)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(response http.ResponseWriter, request *http.Request) {
			if g.IsOpen() {
				next.ServeHTTP(response, request)
			} else {
				closed.ServeHTTP(response, request)
			}
		})
	}
}
