package fleet

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/xmidt-org/sallust"
	"go.uber.org/zap"
)

// Handler exposes the fleet CRUD surface over REST.  Register wires it into
// a mux router under /fleets.
type Handler struct {
	Store  Store
	Logger *zap.Logger
}

func (h *Handler) logger() *zap.Logger {
	if h.Logger != nil {
		return h.Logger
	}

	return sallust.Default()
}

// Register attaches the fleet routes to the given router.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/fleets", h.List).Methods("GET")
	r.HandleFunc("/fleets/{name}", h.Upsert).Methods("PUT")
	r.HandleFunc("/fleets/{name}", h.Get).Methods("GET")
	r.HandleFunc("/fleets/{name}", h.Delete).Methods("DELETE")
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

// Upsert creates or replaces a fleet.  The name in the path wins over any
// name in the body.  Creation answers 201, replacement 200.
func (h *Handler) Upsert(response http.ResponseWriter, request *http.Request) {
	name := mux.Vars(request)["name"]

	var f Fleet
	if err := json.NewDecoder(request.Body).Decode(&f); err != nil {
		writeError(response, http.StatusBadRequest, err)
		return
	}

	f.Name = name
	if err := f.Validate(); err != nil {
		writeError(response, http.StatusBadRequest, err)
		return
	}

	_, err := h.Store.Get(request.Context(), name)
	created := errors.Is(err, ErrNotFound)
	if err != nil && !created {
		writeError(response, http.StatusInternalServerError, err)
		return
	}

	if err := h.Store.Upsert(request.Context(), f); err != nil {
		writeError(response, http.StatusInternalServerError, err)
		return
	}

	h.logger().Info("fleet upserted",
		zap.String("fleet", name),
		zap.Int("members", len(f.Members)),
		zap.Bool("created", created),
	)

	stored, err := h.Store.Get(request.Context(), name)
	if err != nil {
		writeError(response, http.StatusInternalServerError, err)
		return
	}

	code := http.StatusOK
	if created {
		code = http.StatusCreated
	}

	writeJSON(response, code, stored)
}

func (h *Handler) Get(response http.ResponseWriter, request *http.Request) {
	name := mux.Vars(request)["name"]

	f, err := h.Store.Get(request.Context(), name)
	switch {
	case errors.Is(err, ErrNotFound):
		writeError(response, http.StatusNotFound, err)
	case err != nil:
		writeError(response, http.StatusInternalServerError, err)
	default:
		writeJSON(response, http.StatusOK, f)
	}
}

func (h *Handler) Delete(response http.ResponseWriter, request *http.Request) {
	name := mux.Vars(request)["name"]

	err := h.Store.Delete(request.Context(), name)
	switch {
	case errors.Is(err, ErrNotFound):
		writeError(response, http.StatusNotFound, err)
	case err != nil:
		writeError(response, http.StatusInternalServerError, err)
	default:
		h.logger().Info("fleet deleted", zap.String("fleet", name))
		response.WriteHeader(http.StatusNoContent)
	}
}

func (h *Handler) List(response http.ResponseWriter, request *http.Request) {
	all, err := h.Store.List(request.Context())
	if err != nil {
		writeError(response, http.StatusInternalServerError, err)
		return
	}

	writeJSON(response, http.StatusOK, struct {
		Fleets []Fleet `json:"fleets"`
	}{Fleets: all})
}
