// Package adminhttp is the administrative ingress: the REST surface
// operators and upstream tooling use to dispatch commands and content,
// follow dispatch progress, and inspect connected sessions.  It consumes
// only the dispatch contract; no session internals leak through.
package adminhttp

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/segmentio/ksuid"
	"github.com/xmidt-org/sallust"
	"go.uber.org/zap"

	"github.com/pharos-hub/pharos/device"
	"github.com/pharos-hub/pharos/dispatch"
	"github.com/pharos-hub/pharos/fleet"
	"github.com/pharos-hub/pharos/frame"
)

const kindPattern = "{kind:commands|content}"

// Handler exposes the dispatch engine over REST.  Register wires it into a
// mux router, normally under /api/v1.
type Handler struct {
	Dispatcher *dispatch.Dispatcher

	// Registries supplies the session snapshots for the device listing.
	Registries map[frame.Kind]device.Registry

	// CommandTimeout and ContentTimeout override the per-kind default
	// dispatch timeouts when positive.
	CommandTimeout time.Duration
	ContentTimeout time.Duration

	Logger *zap.Logger
}

func (h *Handler) logger() *zap.Logger {
	if h.Logger != nil {
		return h.Logger
	}

	return sallust.Default()
}

// Register attaches the administrative routes to the given router.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/devices/{deviceID}/"+kindPattern, h.Unary).Methods("POST")
	r.HandleFunc("/devices/{deviceID}/"+kindPattern+"/stream", h.UnaryStream).Methods("POST")
	r.HandleFunc("/fleets/{name}/"+kindPattern, h.Group).Methods("POST")
	r.HandleFunc("/fleets/{name}/"+kindPattern+"/stream", h.GroupStream).Methods("POST")
	r.HandleFunc("/"+kindPattern, h.Broadcast).Methods("POST")
	r.HandleFunc("/"+kindPattern+"/stream", h.BroadcastStream).Methods("POST")
	r.HandleFunc("/devices", h.Devices).Methods("GET")
}

func writeError(response http.ResponseWriter, code int, err error) {
	response.Header().Set("Content-Type", "application/json")
	response.WriteHeader(code)
	fmt.Fprintf(response, `{"code": %d, "message": "%s"}`, code, err)
}

func writeJSON(response http.ResponseWriter, code int, v interface{}) {
	response.Header().Set("Content-Type", "application/json")
	response.WriteHeader(code)
	json.NewEncoder(response).Encode(v)
}

// newCorrelationID stamps a fresh, sortable correlation id.  The prefix
// makes the stream kind evident in logs and acknowledgements.
func newCorrelationID(kind frame.Kind) string {
	if kind == frame.Content {
		return "dlv-" + ksuid.New().String()
	}

	return "cmd-" + ksuid.New().String()
}

// dispatchRequest is the decoded, validated intent of one dispatch endpoint
// call: the payload template plus the options riding the query string.
type dispatchRequest struct {
	kind    frame.Kind
	build   dispatch.Builder
	timeout time.Duration
}

// parseDispatch decodes the stream kind, options, and payload template from
// a request.  The returned builder stamps a fresh correlation id per target
// device; callers never supply their own.
func (h *Handler) parseDispatch(request *http.Request) (*dispatchRequest, error) {
	kind, err := frame.ParseKind(mux.Vars(request)["kind"])
	if err != nil {
		return nil, err
	}

	options, err := decodeOptions(request)
	if err != nil {
		return nil, err
	}

	format, err := frame.FormatFromContentType(request.Header.Get("Content-Type"))
	if err != nil {
		return nil, err
	}

	body, err := io.ReadAll(request.Body)
	if err != nil {
		return nil, err
	}

	requireAck := options.requireAck()

	var build dispatch.Builder
	switch kind {
	case frame.Command:
		var template frame.CommandFrame
		if err := frame.NewDecoderBytes(body, format).Decode(&template); err != nil {
			return nil, fmt.Errorf("malformed command payload: %s", err)
		}

		build = func(device.ID) (frame.Frame, error) {
			f := template
			f.CommandID = newCorrelationID(kind)
			f.RequiresAck = requireAck
			return &f, nil
		}

	case frame.Content:
		var template frame.ContentFrame
		if err := frame.NewDecoderBytes(body, format).Decode(&template); err != nil {
			return nil, fmt.Errorf("malformed content payload: %s", err)
		}

		build = func(device.ID) (frame.Frame, error) {
			f := template
			f.DeliveryID = newCorrelationID(kind)
			f.RequiresAck = requireAck
			return &f, nil
		}
	}

	return &dispatchRequest{
		kind:    kind,
		build:   build,
		timeout: options.timeout(kind, h.CommandTimeout, h.ContentTimeout),
	}, nil
}

// Unary dispatches one frame to one device and answers with the Result,
// status-mapped: the outcome decides the HTTP code.
func (h *Handler) Unary(response http.ResponseWriter, request *http.Request) {
	id, err := device.ParseID(mux.Vars(request)["deviceID"])
	if err != nil {
		writeError(response, http.StatusBadRequest, err)
		return
	}

	dr, err := h.parseDispatch(request)
	if err != nil {
		writeError(response, http.StatusBadRequest, err)
		return
	}

	f, _ := dr.build(id)
	result := h.Dispatcher.Send(request.Context(), dr.kind, id, f, dr.timeout)
	writeJSON(response, StatusCode(result.Outcome), result)
}

// UnaryStream is the streaming variant of Unary: progress updates as they
// arrive, then the terminal result, as server-sent events.
func (h *Handler) UnaryStream(response http.ResponseWriter, request *http.Request) {
	id, err := device.ParseID(mux.Vars(request)["deviceID"])
	if err != nil {
		writeError(response, http.StatusBadRequest, err)
		return
	}

	dr, err := h.parseDispatch(request)
	if err != nil {
		writeError(response, http.StatusBadRequest, err)
		return
	}

	f, _ := dr.build(id)
	updates := h.Dispatcher.SendStream(request.Context(), dr.kind, id, f, dr.timeout)
	if err := serveSSE(response, updates); err != nil {
		h.logger().Error("dispatch stream aborted", zap.Error(err))
	}
}

// Broadcast dispatches to every connected device of the kind.  The answer is
// always 200 with the aggregate; partial success is data.
func (h *Handler) Broadcast(response http.ResponseWriter, request *http.Request) {
	dr, err := h.parseDispatch(request)
	if err != nil {
		writeError(response, http.StatusBadRequest, err)
		return
	}

	gr := h.Dispatcher.SendAll(request.Context(), dr.kind, dr.build, dr.timeout)
	writeJSON(response, http.StatusOK, gr)
}

func (h *Handler) BroadcastStream(response http.ResponseWriter, request *http.Request) {
	dr, err := h.parseDispatch(request)
	if err != nil {
		writeError(response, http.StatusBadRequest, err)
		return
	}

	updates := h.Dispatcher.SendAllStream(request.Context(), dr.kind, dr.build, dr.timeout)
	if err := serveSSE(response, updates); err != nil {
		h.logger().Error("dispatch stream aborted", zap.Error(err))
	}
}

// Group dispatches to the named fleet's members.  An unknown fleet is the
// one case that maps to an HTTP failure: 404, nothing dispatched.
func (h *Handler) Group(response http.ResponseWriter, request *http.Request) {
	dr, err := h.parseDispatch(request)
	if err != nil {
		writeError(response, http.StatusBadRequest, err)
		return
	}

	gr, err := h.Dispatcher.SendGroup(request.Context(), dr.kind, mux.Vars(request)["name"], dr.build, dr.timeout)
	switch {
	case errors.Is(err, fleet.ErrNotFound):
		writeError(response, http.StatusNotFound, err)
	case err != nil:
		writeError(response, http.StatusInternalServerError, err)
	default:
		writeJSON(response, http.StatusOK, gr)
	}
}

func (h *Handler) GroupStream(response http.ResponseWriter, request *http.Request) {
	dr, err := h.parseDispatch(request)
	if err != nil {
		writeError(response, http.StatusBadRequest, err)
		return
	}

	updates, err := h.Dispatcher.SendGroupStream(request.Context(), dr.kind, mux.Vars(request)["name"], dr.build, dr.timeout)
	switch {
	case errors.Is(err, fleet.ErrNotFound):
		writeError(response, http.StatusNotFound, err)
		return
	case err != nil:
		writeError(response, http.StatusInternalServerError, err)
		return
	}

	if err := serveSSE(response, updates); err != nil {
		h.logger().Error("dispatch stream aborted", zap.Error(err))
	}
}

// Devices serves the connected-session snapshot for one stream kind.
func (h *Handler) Devices(response http.ResponseWriter, request *http.Request) {
	kind := frame.Command
	if raw := request.URL.Query().Get("kind"); len(raw) > 0 {
		var err error
		if kind, err = frame.ParseKind(raw); err != nil {
			writeError(response, http.StatusBadRequest, err)
			return
		}
	}

	registry, ok := h.Registries[kind]
	if !ok {
		writeError(response, http.StatusNotFound, fmt.Errorf("no registry for kind %q", kind))
		return
	}

	writeJSON(response, http.StatusOK, struct {
		Kind    frame.Kind           `json:"kind"`
		Devices []device.SessionInfo `json:"devices"`
	}{Kind: kind, Devices: device.Snapshot(registry)})
}
