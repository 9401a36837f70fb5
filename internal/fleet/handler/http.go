package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/example/fleetwise/internal/fleet/domain"
	"github.com/example/fleetwise/internal/fleet/report"
	"github.com/example/fleetwise/internal/fleet/service"
)

// HTTP exposes the fleet operations over chi.
type HTTP struct {
	svc       *service.Service
	projector *report.Projector
}

// NewHTTP constructs a handler.
func NewHTTP(svc *service.Service, projector *report.Projector) *HTTP {
	return &HTTP{svc: svc, projector: projector}
}

// Router builds the chi router with all endpoints and middlewares.
func (h *HTTP) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)

	r.Post("/v1/trucks", h.registerTruck)
	r.Get("/v1/trucks", h.listTrucks)

	r.Post("/v1/drivers", h.registerDriver)
	r.Get("/v1/drivers", h.listDrivers)
	r.Delete("/v1/drivers/{id}", h.deleteDriver)

	r.Post("/v1/clients", h.registerClient)
	r.Get("/v1/clients", h.listClients)

	r.Post("/v1/trips", h.createTrip)
	r.Get("/v1/trips", h.listTrips)
	r.Get("/v1/trips/active", h.listActive)
	r.Get("/v1/trips/finished", h.listFinished)
	r.Get("/v1/trips/truck/{plate}", h.tripsByTruck)
	r.Get("/v1/trips/{id}", h.getTrip)
	r.Put("/v1/trips/{id}", h.editTrip)
	r.Post("/v1/trips/{id}/finalize", h.finalizeTrip)

	r.Get("/v1/situation", h.currentSituation)
	r.Get("/v1/productivity", h.productivity)

	return r
}

type truckRequest struct {
	Plate  string `json:"plate"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

func (h *HTTP) registerTruck(w http.ResponseWriter, r *http.Request) {
	var payload truckRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, domain.Invalid("body", "malformed request body"))
		return
	}
	truck, err := h.svc.RegisterTruck(r.Context(), service.TruckInput{
		Plate:  payload.Plate,
		Name:   payload.Name,
		Status: payload.Status,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, truck)
}

func (h *HTTP) listTrucks(w http.ResponseWriter, r *http.Request) {
	trucks, err := h.svc.ListTrucks(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trucks)
}

type driverRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

func (h *HTTP) registerDriver(w http.ResponseWriter, r *http.Request) {
	var payload driverRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, domain.Invalid("body", "malformed request body"))
		return
	}
	driver, err := h.svc.RegisterDriver(r.Context(), service.DriverInput{Name: payload.Name, Phone: payload.Phone})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, driver)
}

func (h *HTTP) listDrivers(w http.ResponseWriter, r *http.Request) {
	drivers, err := h.svc.ListDrivers(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, drivers)
}

func (h *HTTP) deleteDriver(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteDriver(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

type clientRequest struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Email   string `json:"email"`
	Address string `json:"address"`
}

func (h *HTTP) registerClient(w http.ResponseWriter, r *http.Request) {
	var payload clientRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, domain.Invalid("body", "malformed request body"))
		return
	}
	client, err := h.svc.RegisterClient(r.Context(), service.ClientInput{
		Name:    payload.Name,
		Phone:   payload.Phone,
		Email:   payload.Email,
		Address: payload.Address,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, client)
}

func (h *HTTP) listClients(w http.ResponseWriter, r *http.Request) {
	clients, err := h.svc.ListClients(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, clients)
}

type tripRequest struct {
	TruckPlate     string      `json:"truck_plate"`
	DriverID       json.Number `json:"driver_id"`
	ClientID       json.Number `json:"client_id"`
	Start          string      `json:"start"`
	End            string      `json:"end"`
	Origin         string      `json:"origin"`
	Destination    string      `json:"destination"`
	Revenue        json.Number `json:"revenue"`
	Cost           json.Number `json:"cost"`
	Status         string      `json:"status"`
	CompletionDate string      `json:"completion_date"`
}

func (t tripRequest) toInput() service.TripInput {
	return service.TripInput{
		TruckPlate:     t.TruckPlate,
		DriverKey:      t.DriverID.String(),
		ClientKey:      t.ClientID.String(),
		Start:          t.Start,
		End:            t.End,
		Origin:         t.Origin,
		Destination:    t.Destination,
		Revenue:        t.Revenue.String(),
		Cost:           t.Cost.String(),
		Status:         t.Status,
		CompletionDate: t.CompletionDate,
	}
}

func (h *HTTP) createTrip(w http.ResponseWriter, r *http.Request) {
	var payload tripRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, domain.Invalid("body", "malformed request body"))
		return
	}
	trip, err := h.svc.CreateTrip(r.Context(), payload.toInput())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, trip)
}

func (h *HTTP) getTrip(w http.ResponseWriter, r *http.Request) {
	id, err := tripID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	trip, err := h.svc.GetTrip(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trip)
}

func (h *HTTP) editTrip(w http.ResponseWriter, r *http.Request) {
	id, err := tripID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var payload tripRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, domain.Invalid("body", "malformed request body"))
		return
	}
	trip, err := h.svc.EditTrip(r.Context(), id, payload.toInput())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trip)
}

func (h *HTTP) finalizeTrip(w http.ResponseWriter, r *http.Request) {
	id, err := tripID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var payload struct {
		Cost json.Number `json:"cost"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, domain.Invalid("body", "malformed request body"))
		return
	}
	trip, err := h.svc.FinalizeTrip(r.Context(), id, payload.Cost.String())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trip)
}

func (h *HTTP) tripsByTruck(w http.ResponseWriter, r *http.Request) {
	result, err := h.projector.TripsByTruck(r.Context(), chi.URLParam(r, "plate"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *HTTP) listTrips(w http.ResponseWriter, r *http.Request) {
	views, err := h.projector.AllTrips(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *HTTP) listActive(w http.ResponseWriter, r *http.Request) {
	views, err := h.projector.ActiveTrips(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *HTTP) listFinished(w http.ResponseWriter, r *http.Request) {
	views, err := h.projector.FinishedTrips(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *HTTP) currentSituation(w http.ResponseWriter, r *http.Request) {
	rows, err := h.projector.CurrentSituation(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *HTTP) productivity(w http.ResponseWriter, r *http.Request) {
	rows, err := h.projector.Productivity(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func tripID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, domain.Invalid("id", "must be an integer id")
	}
	return id, nil
}

type errorResponse struct {
	Kind  domain.ErrorKind `json:"kind"`
	Error string           `json:"error"`
}

func writeError(w http.ResponseWriter, err error) {
	kind := domain.KindOf(err)
	writeJSON(w, statusForKind(kind), errorResponse{Kind: kind, Error: err.Error()})
}

func statusForKind(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindInvalidInput:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindUniqueConflict, domain.KindReferentialConflict, domain.KindStateConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
