package adminhttp

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/pharos-hub/pharos/dispatch"
)

// serveSSE writes one server-sent event per dispatch update until the stream
// closes.  The dispatcher honors the request context, so a client that goes
// away cancels the underlying dispatch rather than leaking it.
func serveSSE(response http.ResponseWriter, updates <-chan dispatch.Update) error {
	flusher, ok := response.(http.Flusher)
	if !ok {
		return errors.New("streaming unsupported by the underlying writer")
	}

	response.Header().Set("Content-Type", "text/event-stream")
	response.Header().Set("Cache-Control", "no-cache")
	response.Header().Set("Connection", "keep-alive")
	response.WriteHeader(http.StatusOK)
	flusher.Flush()

	for u := range updates {
		data, err := json.Marshal(u)
		if err != nil {
			return err
		}

		fmt.Fprintf(response, "event: %s\ndata: %s\n\n", u.Type, data)
		flusher.Flush()
	}

	return nil
}
