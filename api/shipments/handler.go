package shipments

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/Klodi1379/LogiSys-Pro/core/lifecycle"
	"github.com/Klodi1379/LogiSys-Pro/core/logger"
	"github.com/Klodi1379/LogiSys-Pro/core/model"
	"github.com/Klodi1379/LogiSys-Pro/core/shipment"
	"github.com/Klodi1379/LogiSys-Pro/core/tracking"
)

// Handler exposes shipment state, lifecycle transitions and tracking.
type Handler struct {
	store shipment.Store
	lc    *lifecycle.Lifecycle
	ing   *tracking.Ingestor
	log   logger.Logger
}

// NewHandler creates the shipments API handler.
func NewHandler(store shipment.Store, lc *lifecycle.Lifecycle, ing *tracking.Ingestor, log logger.Logger) *Handler {
	return &Handler{store: store, lc: lc, ing: ing, log: log}
}

// Register mounts the handler routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/shipments", h.list)
	mux.HandleFunc("GET /api/shipments/{id}", h.get)
	mux.HandleFunc("POST /api/shipments/{id}/status", h.status)
	mux.HandleFunc("POST /api/shipments/{id}/tracking", h.track)
	mux.HandleFunc("GET /api/shipments/{id}/timeline", h.timeline)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	f := shipment.Filter{
		Status:    model.ShipmentStatus(r.URL.Query().Get("status")),
		VehicleID: r.URL.Query().Get("vehicle_id"),
	}
	if f.Status != "" && !f.Status.Valid() {
		http.Error(w, "unknown status filter", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, h.store.List(f))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	sh, err := h.store.Get(r.PathValue("id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, sh)
}

type statusRequest struct {
	TargetStatus   model.ShipmentStatus `json:"target_status"`
	ExpectedStatus model.ShipmentStatus `json:"expected_status,omitempty"`
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	sh, err := h.lc.Transition(r.Context(), r.PathValue("id"), req.TargetStatus, req.ExpectedStatus)
	if err != nil {
		var invalid *lifecycle.InvalidTransitionError
		switch {
		case errors.As(err, &invalid), errors.Is(err, lifecycle.ErrStatusConflict),
			errors.Is(err, lifecycle.ErrVehicleNotAvailable):
			http.Error(w, err.Error(), http.StatusConflict)
		case errors.Is(err, shipment.ErrNotFound):
			http.Error(w, err.Error(), http.StatusNotFound)
		default:
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
		return
	}
	writeJSON(w, http.StatusOK, sh)
}

type trackRequest struct {
	Timestamp int64   `json:"timestamp"`
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
}

func (h *Handler) track(w http.ResponseWriter, r *http.Request) {
	var req trackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	ev := model.TrackingEvent{
		Timestamp: time.UnixMilli(req.Timestamp),
		Location:  model.Location{Latitude: req.Lat, Longitude: req.Lng},
	}
	res, err := h.ing.Ingest(r.Context(), r.PathValue("id"), ev)
	if err != nil {
		switch {
		case errors.Is(err, shipment.ErrNotFound):
			http.Error(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, tracking.ErrNotInTransit):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}
	if res.Stale {
		writeJSON(w, http.StatusAccepted, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) timeline(w http.ResponseWriter, r *http.Request) {
	events, err := h.store.Timeline(r.PathValue("id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
