package fleet

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func handlerFixture(t *testing.T) (*mux.Router, Store) {
	store := NewInMemory()
	handler := &Handler{Store: store}

	router := mux.NewRouter()
	handler.Register(router)
	return router, store
}

func testHandlerUpsert(t *testing.T) {
	var (
		assert  = assert.New(t)
		require = require.New(t)

		router, _ = handlerFixture(t)
	)

	response := httptest.NewRecorder()
	router.ServeHTTP(response, httptest.NewRequest(
		"PUT",
		"/fleets/lobby",
		strings.NewReader(`{"description": "lobby displays", "members": ["mac:112233445566"]}`),
	))

	require.Equal(http.StatusCreated, response.Code)

	var f Fleet
	require.NoError(json.Unmarshal(response.Body.Bytes(), &f))
	assert.Equal("lobby", f.Name)
	assert.Equal([]string{"mac:112233445566"}, f.Members)

	// replacing an existing fleet answers 200 rather than 201
	response = httptest.NewRecorder()
	router.ServeHTTP(response, httptest.NewRequest(
		"PUT",
		"/fleets/lobby",
		strings.NewReader(`{"members": []}`),
	))

	assert.Equal(http.StatusOK, response.Code)
}

func testHandlerUpsertInvalid(t *testing.T) {
	assert := assert.New(t)
	router, _ := handlerFixture(t)

	response := httptest.NewRecorder()
	router.ServeHTTP(response, httptest.NewRequest(
		"PUT",
		"/fleets/lobby",
		strings.NewReader(`{"members": ["not a device id"]}`),
	))
	assert.Equal(http.StatusBadRequest, response.Code)

	response = httptest.NewRecorder()
	router.ServeHTTP(response, httptest.NewRequest("PUT", "/fleets/lobby", strings.NewReader(`{invalid json`)))
	assert.Equal(http.StatusBadRequest, response.Code)
}

func testHandlerGet(t *testing.T) {
	var (
		assert  = assert.New(t)
		require = require.New(t)

		router, store = handlerFixture(t)
	)

	response := httptest.NewRecorder()
	router.ServeHTTP(response, httptest.NewRequest("GET", "/fleets/missing", nil))
	assert.Equal(http.StatusNotFound, response.Code)

	require.NoError(store.Upsert(httptest.NewRequest("GET", "/", nil).Context(), Fleet{
		Name:    "lobby",
		Members: []string{"mac:112233445566"},
	}))

	response = httptest.NewRecorder()
	router.ServeHTTP(response, httptest.NewRequest("GET", "/fleets/lobby", nil))
	require.Equal(http.StatusOK, response.Code)

	var f Fleet
	require.NoError(json.Unmarshal(response.Body.Bytes(), &f))
	assert.Equal("lobby", f.Name)
}

func testHandlerDelete(t *testing.T) {
	var (
		assert  = assert.New(t)
		require = require.New(t)

		router, store = handlerFixture(t)
	)

	response := httptest.NewRecorder()
	router.ServeHTTP(response, httptest.NewRequest("DELETE", "/fleets/lobby", nil))
	assert.Equal(http.StatusNotFound, response.Code)

	require.NoError(store.Upsert(httptest.NewRequest("GET", "/", nil).Context(), Fleet{Name: "lobby"}))

	response = httptest.NewRecorder()
	router.ServeHTTP(response, httptest.NewRequest("DELETE", "/fleets/lobby", nil))
	assert.Equal(http.StatusNoContent, response.Code)

	response = httptest.NewRecorder()
	router.ServeHTTP(response, httptest.NewRequest("GET", "/fleets/lobby", nil))
	assert.Equal(http.StatusNotFound, response.Code)
}

func testHandlerList(t *testing.T) {
	var (
		assert  = assert.New(t)
		require = require.New(t)

		router, store = handlerFixture(t)
	)

	ctx := httptest.NewRequest("GET", "/", nil).Context()
	require.NoError(store.Upsert(ctx, Fleet{Name: "lobby"}))
	require.NoError(store.Upsert(ctx, Fleet{Name: "atrium"}))

	response := httptest.NewRecorder()
	router.ServeHTTP(response, httptest.NewRequest("GET", "/fleets", nil))
	require.Equal(http.StatusOK, response.Code)

	var listing struct {
		Fleets []Fleet `json:"fleets"`
	}

	require.NoError(json.Unmarshal(response.Body.Bytes(), &listing))
	require.Len(listing.Fleets, 2)
	assert.Equal("atrium", listing.Fleets[0].Name)
	assert.Equal("lobby", listing.Fleets[1].Name)
}

func TestHandler(t *testing.T) {
	t.Run("Upsert", testHandlerUpsert)
	t.Run("UpsertInvalid", testHandlerUpsertInvalid)
	t.Run("Get", testHandlerGet)
	t.Run("Delete", testHandlerDelete)
	t.Run("List", testHandlerList)
}
