package handler_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/example/fleetwise/internal/fleet/finance"
	"github.com/example/fleetwise/internal/fleet/handler"
	"github.com/example/fleetwise/internal/fleet/report"
	"github.com/example/fleetwise/internal/fleet/repository"
	"github.com/example/fleetwise/internal/fleet/resolve"
	"github.com/example/fleetwise/internal/fleet/service"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	store := repository.NewMemoryStore()
	resolver := resolve.New(store)
	svc := service.New(store, resolver, nil, nil, nil)
	projector := report.NewProjector(store, resolver, finance.NewClassifier(0))
	server := httptest.NewServer(handler.NewHTTP(svc, projector).Router())
	t.Cleanup(server.Close)
	return server
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&reader).Encode(body))
	}
	req, err := http.NewRequest(method, url, &reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func doJSONList(t *testing.T, url string) (*http.Response, []map[string]any) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var decoded []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

// seedEntities registers a truck, driver and client and returns their keys.
func seedEntities(t *testing.T, base string) (plate string, driverID, clientID float64) {
	t.Helper()
	resp, truck := doJSON(t, http.MethodPost, base+"/v1/trucks", map[string]any{"plate": "abc1234", "name": "Scania"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp, driver := doJSON(t, http.MethodPost, base+"/v1/drivers", map[string]any{"name": "Jo"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp, client := doJSON(t, http.MethodPost, base+"/v1/clients", map[string]any{"name": "X", "email": "x@x.com"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return truck["plate"].(string), driver["id"].(float64), client["id"].(float64)
}

func tripPayload(plate string, driverID, clientID float64) map[string]any {
	return map[string]any{
		"truck_plate": plate,
		"driver_id":   driverID,
		"client_id":   clientID,
		"start":       "2026-01-10",
		"end":         "2026-01-12",
		"origin":      "Santos",
		"destination": "Goiania",
		"revenue":     1000,
	}
}

func TestRegisterTruckEndpoint(t *testing.T) {
	server := newServer(t)

	resp, body := doJSON(t, http.MethodPost, server.URL+"/v1/trucks", map[string]any{"plate": "abc1234"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, "ABC1234", body["plate"])
	require.Equal(t, "Available", body["status"])

	resp, body = doJSON(t, http.MethodPost, server.URL+"/v1/trucks", map[string]any{"plate": "ABC1234"})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Equal(t, "unique_conflict", body["kind"])

	resp, body = doJSON(t, http.MethodPost, server.URL+"/v1/trucks", map[string]any{"name": "no plate"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "invalid_input", body["kind"])
}

func TestCreateTripEndpoint(t *testing.T) {
	server := newServer(t)
	plate, driverID, clientID := seedEntities(t, server.URL)

	resp, trip := doJSON(t, http.MethodPost, server.URL+"/v1/trips", tripPayload(plate, driverID, clientID))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, "InProgress", trip["status"])
	require.Equal(t, 1000.0, trip["profit"])
	require.NotZero(t, trip["id"])

	// unknown truck is a 404, not a validation failure
	payload := tripPayload("ZZZ0000", driverID, clientID)
	resp, body := doJSON(t, http.MethodPost, server.URL+"/v1/trips", payload)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, "not_found", body["kind"])

	// non-numeric revenue is rejected before resolution
	payload = tripPayload(plate, driverID, clientID)
	payload["revenue"] = "lots"
	resp, body = doJSON(t, http.MethodPost, server.URL+"/v1/trips", payload)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "invalid_input", body["kind"])
}

func TestMalformedBody(t *testing.T) {
	server := newServer(t)
	resp, err := http.Post(server.URL+"/v1/trips", "application/json", bytes.NewBufferString("{not json"))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestFinalizeTripEndpoint(t *testing.T) {
	server := newServer(t)
	plate, driverID, clientID := seedEntities(t, server.URL)

	resp, trip := doJSON(t, http.MethodPost, server.URL+"/v1/trips", tripPayload(plate, driverID, clientID))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id := trip["id"].(float64)

	finalizeURL := fmt.Sprintf("%s/v1/trips/%d/finalize", server.URL, int64(id))
	resp, finished := doJSON(t, http.MethodPost, finalizeURL, map[string]any{"cost": 200})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "Finished", finished["status"])
	require.Equal(t, 800.0, finished["profit"])
	require.NotEmpty(t, finished["completion_date"])

	// Finished is terminal
	resp, body := doJSON(t, http.MethodPost, finalizeURL, map[string]any{"cost": 300})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Equal(t, "state_conflict", body["kind"])

	resp, body = doJSON(t, http.MethodPost, server.URL+"/v1/trips/999/finalize", map[string]any{"cost": 200})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, "not_found", body["kind"])
}

func TestEditTripEndpoint(t *testing.T) {
	server := newServer(t)
	plate, driverID, clientID := seedEntities(t, server.URL)

	resp, trip := doJSON(t, http.MethodPost, server.URL+"/v1/trips", tripPayload(plate, driverID, clientID))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	tripURL := fmt.Sprintf("%s/v1/trips/%d", server.URL, int64(trip["id"].(float64)))

	payload := tripPayload(plate, driverID, clientID)
	payload["revenue"] = 2000
	payload["cost"] = 600
	resp, updated := doJSON(t, http.MethodPut, tripURL, payload)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 1400.0, updated["profit"])

	payload["status"] = "Finished"
	resp, body := doJSON(t, http.MethodPut, tripURL, payload)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Equal(t, "state_conflict", body["kind"])

	resp, _ = doJSON(t, http.MethodGet, tripURL, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = doJSON(t, http.MethodGet, server.URL+"/v1/trips/nope", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "invalid_input", body["kind"])
}

func TestDeleteDriverEndpoint(t *testing.T) {
	server := newServer(t)
	plate, driverID, clientID := seedEntities(t, server.URL)

	resp, _ := doJSON(t, http.MethodPost, server.URL+"/v1/trips", tripPayload(plate, driverID, clientID))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	driverURL := fmt.Sprintf("%s/v1/drivers/%d", server.URL, int64(driverID))
	resp, body := doJSON(t, http.MethodDelete, driverURL, nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Equal(t, "referential_conflict", body["kind"])

	resp, free := doJSON(t, http.MethodPost, server.URL+"/v1/drivers", map[string]any{"name": "Ana"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	freeURL := fmt.Sprintf("%s/v1/drivers/%d", server.URL, int64(free["id"].(float64)))
	resp, _ = doJSON(t, http.MethodDelete, freeURL, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestReportEndpoints(t *testing.T) {
	server := newServer(t)
	plate, driverID, clientID := seedEntities(t, server.URL)

	resp, first := doJSON(t, http.MethodPost, server.URL+"/v1/trips", tripPayload(plate, driverID, clientID))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp, _ = doJSON(t, http.MethodPost, server.URL+"/v1/trips", tripPayload(plate, driverID, clientID))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	finalizeURL := fmt.Sprintf("%s/v1/trips/%d/finalize", server.URL, int64(first["id"].(float64)))
	resp, _ = doJSON(t, http.MethodPost, finalizeURL, map[string]any{"cost": 200})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, all := doJSONList(t, server.URL+"/v1/trips")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, all, 2)

	resp, active := doJSONList(t, server.URL+"/v1/trips/active")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, active, 1)

	resp, done := doJSONList(t, server.URL+"/v1/trips/finished")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, done, 1)
	require.Equal(t, 800.0, done[0]["profit"])

	resp, situation := doJSONList(t, server.URL+"/v1/situation")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, situation, 1)
	require.Equal(t, "ABC1234", situation[0]["plate"])

	resp, productivity := doJSONList(t, server.URL+"/v1/productivity")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, productivity, 2)

	resp, byTruck := doJSON(t, http.MethodGet, server.URL+"/v1/trips/truck/abc1234", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ABC1234", byTruck["plate"])
	require.Len(t, byTruck["trips"].([]any), 2)

	resp, body := doJSON(t, http.MethodGet, server.URL+"/v1/trips/truck/ZZZ0000", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, "not_found", body["kind"])
}
