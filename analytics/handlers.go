package analytics

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/pharos-hub/pharos/frame"
)

// DefaultDeviceEventLimit bounds the device event listing when the request
// supplies no limit.
const DefaultDeviceEventLimit = 100

// Handler exposes the analytics surface over HTTP.  Register wires it into
// a mux router under /analytics.
type Handler struct {
	Ingestor *Ingestor
}

// Register attaches the analytics routes to the given router.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/analytics/batches", h.Ingest).Methods("POST")
	r.HandleFunc("/analytics/summary", h.Summary).Methods("GET")
	r.HandleFunc("/analytics/devices/{fingerprint}/events", h.DeviceEvents).Methods("GET")
}

func writeError(response http.ResponseWriter, code int, err error) {
	response.Header().Set("Content-Type", "application/json")
	response.WriteHeader(code)
	fmt.Fprintf(response, `{"code": %d, "message": "%s"}`, code, err)
}

// Ingest accepts one batch, JSON or Msgpack per Content-Type, and replies
// with the receipt in the same format.  Rejection is data in the receipt,
// not an HTTP failure; only malformed requests produce error statuses.
func (h *Handler) Ingest(response http.ResponseWriter, request *http.Request) {
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

	var b Batch
	if err := frame.NewDecoderBytes(body, format).Decode(&b); err != nil {
		writeError(response, http.StatusBadRequest, err)
		return
	}

	receipt := h.Ingestor.Ingest(b)

	var encoded []byte
	if err := frame.NewEncoderBytes(&encoded, format).Encode(receipt); err != nil {
		writeError(response, http.StatusInternalServerError, err)
		return
	}

	response.Header().Set("Content-Type", format.ContentType())
	response.Write(encoded)
}

func (h *Handler) Summary(response http.ResponseWriter, request *http.Request) {
	response.Header().Set("Content-Type", "application/json")
	json.NewEncoder(response).Encode(h.Ingestor.Store().Summary())
}

func (h *Handler) DeviceEvents(response http.ResponseWriter, request *http.Request) {
	fingerprint, err := strconv.ParseUint(mux.Vars(request)["fingerprint"], 10, 32)
	if err != nil {
		writeError(response, http.StatusBadRequest, fmt.Errorf("malformed fingerprint: %s", err))
		return
	}

	limit := DefaultDeviceEventLimit
	if raw := request.URL.Query().Get("limit"); len(raw) > 0 {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 {
			writeError(response, http.StatusBadRequest, fmt.Errorf("malformed limit: %q", raw))
			return
		}
	}

	events := h.Ingestor.Store().DeviceEvents(uint32(fingerprint), limit)

	response.Header().Set("Content-Type", "application/json")
	json.NewEncoder(response).Encode(struct {
		Fingerprint uint32        `json:"device_fingerprint"`
		Events      []StoredEvent `json:"events"`
	}{Fingerprint: uint32(fingerprint), Events: events})
}
