package adminhttp

import (
	"net/http"

	"github.com/pharos-hub/pharos/dispatch"
)

// StatusClientClosedRequest is the nginx convention for a caller that gave
// up before the dispatch resolved.  net/http defines no constant for it.
const StatusClientClosedRequest = 499

// StatusCode maps a unary dispatch outcome onto an HTTP status.  Group
// dispatches never use this: a fan-out always answers 200 with the
// aggregate, because partial success is data rather than failure.
func StatusCode(o dispatch.Outcome) int {
	switch o {
	case dispatch.OutcomeCompleted:
		return http.StatusOK
	case dispatch.OutcomeNotConnected:
		return http.StatusNotFound
	case dispatch.OutcomeTimeout:
		return http.StatusGatewayTimeout
	case dispatch.OutcomeCancelled:
		return StatusClientClosedRequest
	case dispatch.OutcomeShuttingDown:
		return http.StatusServiceUnavailable
	case dispatch.OutcomeDisconnected:
		return http.StatusBadGateway
	default:
		// failed, rejected, partial
		return http.StatusBadGateway
	}
}
