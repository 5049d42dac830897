package adminhttp

import (
	"net/http"
	"reflect"
	"time"

	"github.com/gorilla/schema"

	"github.com/pharos-hub/pharos/frame"
)

// Ingress-owned default dispatch timeouts.  Content deployments involve
// media downloads and get more headroom than commands.
const (
	DefaultCommandTimeout = 30 * time.Second
	DefaultContentTimeout = 60 * time.Second
)

// DispatchOptions are the per-request dispatch knobs, decoded from the query
// and form via gorilla/schema.  The frame payload rides in the body; these
// never do.
type DispatchOptions struct {
	// Timeout bounds the wait for a terminal acknowledgement.  Zero selects
	// the per-kind default.
	Timeout time.Duration `schema:"timeout"`

	// RequireAck indicates whether the dispatch should wait for the
	// device's terminal acknowledgement.  Defaults to true when absent.
	RequireAck *bool `schema:"requireAck"`
}

func (o DispatchOptions) requireAck() bool {
	return o.RequireAck == nil || *o.RequireAck
}

func (o DispatchOptions) timeout(kind frame.Kind, commandTimeout, contentTimeout time.Duration) time.Duration {
	if o.Timeout > 0 {
		return o.Timeout
	}

	if kind == frame.Content {
		if contentTimeout > 0 {
			return contentTimeout
		}

		return DefaultContentTimeout
	}

	if commandTimeout > 0 {
		return commandTimeout
	}

	return DefaultCommandTimeout
}

// durationConverter lets schema decode "30s"-style duration values.
func durationConverter(value string) reflect.Value {
	if d, err := time.ParseDuration(value); err == nil {
		return reflect.ValueOf(d)
	}

	return reflect.Value{}
}

// decodeOptions parses the dispatch options from a request's query and form.
func decodeOptions(request *http.Request) (DispatchOptions, error) {
	var o DispatchOptions
	if err := request.ParseForm(); err != nil {
		return o, err
	}

	decoder := schema.NewDecoder()
	decoder.IgnoreUnknownKeys(true)
	decoder.RegisterConverter(time.Duration(0), durationConverter)
	err := decoder.Decode(&o, request.Form)
	return o, err
}
