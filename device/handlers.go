package device

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/xmidt-org/sallust"
	"go.uber.org/zap"

	"github.com/pharos-hub/pharos/frame"
)

// itoa is a tiny strconv alias kept for readability at call sites.
func itoa(v int) string {
	return strconv.Itoa(v)
}

// writeError emits a minimal JSON error document with the given status code.
func writeError(response http.ResponseWriter, code int, err error) {
	response.Header().Set("Content-Type", "application/json")
	response.WriteHeader(code)
	fmt.Fprintf(response, `{"code": %d, "message": "%s"}`, code, err)
}

// IDFromRequest extracts and parses the device identifier from a request,
// preferring the device name header and falling back to the "device" query
// parameter.
func IDFromRequest(request *http.Request) (ID, error) {
	raw := request.Header.Get(DeviceNameHeader)
	if len(raw) == 0 {
		raw = request.URL.Query().Get("device")
	}

	if len(raw) == 0 {
		return invalidID, ErrorMissingDeviceNameHeader
	}

	return ParseID(raw)
}

// UseID is an alice-compatible constructor that parses the device identifier
// and optional properties header, then stores both on the request context.
// Connect and the acknowledge handlers require this decoration.
func UseID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(response http.ResponseWriter, request *http.Request) {
		id, err := IDFromRequest(request)
		if err != nil {
			writeError(response, http.StatusBadRequest, err)
			return
		}

		ctx := WithID(request.Context(), id)

		if encoded := request.Header.Get(PropertiesHeader); len(encoded) > 0 {
			properties, err := decodeProperties(encoded)
			if err != nil {
				writeError(response, http.StatusBadRequest, err)
				return
			}

			ctx = WithMetadata(ctx, NewMetadataWithProperties(properties))
		}

		next.ServeHTTP(response, request.WithContext(ctx))
	})
}

// decodeProperties decodes the base64 JSON properties header value.
func decodeProperties(encoded string) (map[string]interface{}, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("malformed properties header: %s", err)
	}

	var properties map[string]interface{}
	if err := json.Unmarshal(data, &properties); err != nil {
		return nil, fmt.Errorf("malformed properties header: %s", err)
	}

	return properties, nil
}

// ConnectHandler upgrades device subscription requests into live sessions
// on the associated Connector.  The request must already carry a device ID,
// normally via UseID.
type ConnectHandler struct {
	Connector Connector
	Logger    *zap.Logger
}

func (ch *ConnectHandler) logger() *zap.Logger {
	if ch.Logger != nil {
		return ch.Logger
	}

	return sallust.Default()
}

func (ch *ConnectHandler) ServeHTTP(response http.ResponseWriter, request *http.Request) {
	s, err := ch.Connector.Connect(response, request, nil)
	if err != nil {
		ch.logger().Error("failed to connect device", zap.Error(err))
		return
	}

	ch.logger().Debug("connected device", zap.String("id", string(s.ID())))
}

// AckSink receives well-formed acknowledgements from the transport layer.
// The dispatch engine's router implements this.
type AckSink interface {
	// Route delivers one acknowledgement from the identified device.  The
	// return value indicates whether a waiter consumed the acknowledgement;
	// unmatched acknowledgements are normal and non-fatal.
	Route(kind frame.Kind, id ID, ack frame.Ack) bool
}

// AckHandler is the unary acknowledge endpoint: devices that cannot hold a
// websocket open POST their acknowledgements here instead.  Both paths feed
// the same sink.
//
// The response is always an accepted receipt, even for late, duplicate, or
// unmatched acknowledgements: the hub acknowledges receipt, not usefulness.
type AckHandler struct {
	Kind   frame.Kind
	Sink   AckSink
	Logger *zap.Logger
}

func (ah *AckHandler) logger() *zap.Logger {
	if ah.Logger != nil {
		return ah.Logger
	}

	return sallust.Default()
}

func (ah *AckHandler) ServeHTTP(response http.ResponseWriter, request *http.Request) {
	id, ok := GetID(request.Context())
	if !ok {
		writeError(response, http.StatusInternalServerError, ErrorMissingDeviceNameContext)
		return
	}

	format, err := frame.FormatFromContentType(request.Header.Get("Content-Type"))
	if err != nil {
		writeError(response, http.StatusUnsupportedMediaType, err)
		return
	}

	body, err := io.ReadAll(request.Body)
	if err != nil {
		writeError(response, http.StatusBadRequest, err)
		return
	}

	ack, err := frame.DecodeAck(ah.Kind, format, body)
	if err != nil {
		writeError(response, http.StatusBadRequest, err)
		return
	}

	matched := ah.Sink.Route(ah.Kind, id, ack)
	ah.logger().Debug("acknowledgement received",
		zap.String("id", string(id)),
		zap.String("correlationID", ack.CorrelationID()),
		zap.String("status", ack.StatusText()),
		zap.Bool("matched", matched),
	)

	response.Header().Set("Content-Type", "application/json")
	json.NewEncoder(response).Encode(frame.AckReceipt{Accepted: true})
}

// SessionInfo is one row of the connected-device listing.
type SessionInfo struct {
	ID           ID        `json:"id"`
	SessionID    string    `json:"sessionID"`
	ConnectedAt  time.Time `json:"connectedAt"`
	LastActivity time.Time `json:"lastActivity"`
	Pending      int       `json:"pending"`

	// ResumeHint is the last delivery id the device reported on subscribe,
	// opaque to the hub.  Empty when the device supplied none.
	ResumeHint string `json:"resumeHint,omitempty"`
}

// Snapshot captures the current sessions of a registry as listing rows.
func Snapshot(r Registry) []SessionInfo {
	infos := make([]SessionInfo, 0, r.Len())
	r.VisitAll(func(s Interface) bool {
		infos = append(infos, SessionInfo{
			ID:           s.ID(),
			SessionID:    s.SessionID(),
			ConnectedAt:  s.Statistics().ConnectedAt(),
			LastActivity: s.Statistics().LastActivity(),
			Pending:      s.Pending(),
			ResumeHint:   s.ResumeHint(),
		})
		return true
	})

	return infos
}

// ListHandler serves the connected-device listing for one stream kind.
type ListHandler struct {
	Registry Registry
}

func (lh *ListHandler) ServeHTTP(response http.ResponseWriter, request *http.Request) {
	infos := Snapshot(lh.Registry)

	response.Header().Set("Content-Type", "application/json")
	json.NewEncoder(response).Encode(struct {
		Devices []SessionInfo `json:"devices"`
	}{Devices: infos})
}
