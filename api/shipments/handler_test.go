package shipments

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Klodi1379/LogiSys-Pro/core/lifecycle"
	"github.com/Klodi1379/LogiSys-Pro/core/logger"
	"github.com/Klodi1379/LogiSys-Pro/core/model"
	"github.com/Klodi1379/LogiSys-Pro/core/shipment"
	"github.com/Klodi1379/LogiSys-Pro/core/tracking"
	"github.com/Klodi1379/LogiSys-Pro/internal/eventbus"
)

var (
	apiDepot = model.Location{Latitude: 41.3275, Longitude: 19.8187}
	apiStop  = model.Location{Latitude: 41.3350, Longitude: 19.8250}
)

func newTestMux(t *testing.T) (*http.ServeMux, *shipment.MemoryStore) {
	t.Helper()
	store := shipment.NewMemoryStore()
	bus := eventbus.New[lifecycle.TransitionEvent]()
	lc := lifecycle.New(store, nil, bus, logger.Nop{}, nil)
	ing := tracking.NewIngestor(store, lc, logger.Nop{}, nil, 150, 50)

	mux := http.NewServeMux()
	NewHandler(store, lc, ing, logger.Nop{}).Register(mux)
	return mux, store
}

func seed(t *testing.T, store *shipment.MemoryStore, id string, status model.ShipmentStatus) {
	t.Helper()
	sh := &model.Shipment{
		ID: id, VehicleID: "v1", Status: status,
		Stops: []model.RouteStop{
			{Index: 0, Location: apiDepot},
			{Index: 1, Location: apiStop, OrderIDs: []string{"o1"}},
			{Index: 2, Location: apiDepot},
		},
	}
	if err := store.Create(sh); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func do(t *testing.T, mux *http.ServeMux, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestListFiltersByStatus(t *testing.T) {
	mux, store := newTestMux(t)
	seed(t, store, "s1", model.StatusDraft)
	seed(t, store, "s2", model.StatusInTransit)

	rec := do(t, mux, http.MethodGet, "/api/shipments?status=in_transit", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	var out []model.Shipment
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 1 || out[0].ID != "s2" {
		t.Fatalf("unexpected list %+v", out)
	}

	if rec := do(t, mux, http.MethodGet, "/api/shipments?status=bogus", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status filter got %d", rec.Code)
	}
}

func TestGetShipment(t *testing.T) {
	mux, store := newTestMux(t)
	seed(t, store, "s1", model.StatusDraft)

	rec := do(t, mux, http.MethodGet, "/api/shipments/s1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if rec := do(t, mux, http.MethodGet, "/api/shipments/none", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rec.Code)
	}
}

func TestStatusTransition(t *testing.T) {
	mux, store := newTestMux(t)
	seed(t, store, "s1", model.StatusDraft)

	rec := do(t, mux, http.MethodPost, "/api/shipments/s1/status", map[string]string{
		"target_status": "ready_for_pickup",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	var sh model.Shipment
	if err := json.Unmarshal(rec.Body.Bytes(), &sh); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sh.Status != model.StatusReadyForPickup {
		t.Fatalf("expected ready_for_pickup got %s", sh.Status)
	}
}

func TestStatusInvalidTransitionConflicts(t *testing.T) {
	mux, store := newTestMux(t)
	seed(t, store, "s1", model.StatusDraft)

	rec := do(t, mux, http.MethodPost, "/api/shipments/s1/status", map[string]string{
		"target_status": "delivered",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", rec.Code)
	}
}

func TestStatusExpectedMismatchConflicts(t *testing.T) {
	mux, store := newTestMux(t)
	seed(t, store, "s1", model.StatusDraft)

	rec := do(t, mux, http.MethodPost, "/api/shipments/s1/status", map[string]string{
		"target_status":   "cancelled",
		"expected_status": "ready_for_pickup",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", rec.Code)
	}
}

func TestStatusUnknownShipment(t *testing.T) {
	mux, _ := newTestMux(t)
	rec := do(t, mux, http.MethodPost, "/api/shipments/none/status", map[string]string{
		"target_status": "cancelled",
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rec.Code)
	}
}

func TestTrackingAcceptedAndStale(t *testing.T) {
	mux, store := newTestMux(t)
	seed(t, store, "s1", model.StatusInTransit)

	ts := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC).UnixMilli()
	rec := do(t, mux, http.MethodPost, "/api/shipments/s1/tracking", map[string]any{
		"timestamp": ts, "lat": 41.3300, "lng": 19.8210,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	var res tracking.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !res.Accepted {
		t.Fatalf("expected accepted ping")
	}

	// Replaying the same timestamp is reported stale with 202.
	rec2 := do(t, mux, http.MethodPost, "/api/shipments/s1/tracking", map[string]any{
		"timestamp": ts, "lat": 41.3300, "lng": 19.8210,
	})
	if rec2.Code != http.StatusAccepted {
		t.Fatalf("expected 202 got %d", rec2.Code)
	}
}

func TestTrackingRejectedWhenNotInTransit(t *testing.T) {
	mux, store := newTestMux(t)
	seed(t, store, "s1", model.StatusDraft)
	rec := do(t, mux, http.MethodPost, "/api/shipments/s1/tracking", map[string]any{
		"timestamp": time.Now().UnixMilli(), "lat": 1.0, "lng": 1.0,
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", rec.Code)
	}
}

func TestTimeline(t *testing.T) {
	mux, store := newTestMux(t)
	seed(t, store, "s1", model.StatusInTransit)
	do(t, mux, http.MethodPost, "/api/shipments/s1/tracking", map[string]any{
		"timestamp": time.Now().UnixMilli(), "lat": 41.3300, "lng": 19.8210,
	})

	rec := do(t, mux, http.MethodGet, "/api/shipments/s1/timeline", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	var events []model.TrackingEvent
	if err := json.Unmarshal(rec.Body.Bytes(), &events); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected one event got %d", len(events))
	}
	if rec := do(t, mux, http.MethodGet, "/api/shipments/none/timeline", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rec.Code)
	}
}
