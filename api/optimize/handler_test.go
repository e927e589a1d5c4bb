package optimize

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Klodi1379/LogiSys-Pro/core/dispatch"
	"github.com/Klodi1379/LogiSys-Pro/core/distance"
	"github.com/Klodi1379/LogiSys-Pro/core/fleet"
	"github.com/Klodi1379/LogiSys-Pro/core/lifecycle"
	"github.com/Klodi1379/LogiSys-Pro/core/logger"
	"github.com/Klodi1379/LogiSys-Pro/core/model"
	"github.com/Klodi1379/LogiSys-Pro/core/route"
	"github.com/Klodi1379/LogiSys-Pro/core/shipment"
	"github.com/Klodi1379/LogiSys-Pro/internal/eventbus"
)

func newTestMux(t *testing.T) (*http.ServeMux, *route.Runner, *fleet.MemorySource) {
	t.Helper()
	source := fleet.NewMemorySource()
	source.PutVehicle(model.Vehicle{
		ID: "v1", Type: model.VehicleVan, Available: true,
		Depot:    model.Location{Latitude: 41.3275, Longitude: 19.8187},
		Capacity: model.Capacity{MaxWeightKg: 100, MaxVolumeM3: 5, MaxItems: 10},
	})
	source.PutOrder(model.Order{
		ID:          "o1",
		Destination: model.Location{Latitude: 41.3350, Longitude: 19.8250},
		WeightKg:    20, VolumeM3: 0.5, Items: 1,
	})

	builder := distance.NewBuilder(nil, 50, logger.Nop{})
	opt := route.NewOptimizer(route.Config{})
	runner := route.NewRunner(opt, builder, logger.Nop{}, nil)

	store := shipment.NewMemoryStore()
	bus := eventbus.New[lifecycle.TransitionEvent]()
	lc := lifecycle.New(store, source, bus, logger.Nop{}, nil)
	assigner := dispatch.NewAssigner(dispatch.NewVehicleLocks(), store, source,
		distance.HaversineProvider{SpeedKmh: 50}, lc, logger.Nop{})

	mux := http.NewServeMux()
	NewHandler(runner, assigner, source, source, 2*time.Second, logger.Nop{}).Register(mux)
	return mux, runner, source
}

func postJSON(t *testing.T, mux *http.ServeMux, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func startRun(t *testing.T, mux *http.ServeMux, runner *route.Runner) string {
	t.Helper()
	rec := postJSON(t, mux, "/api/optimize", map[string]any{
		"order_ids":   []string{"o1"},
		"vehicle_ids": []string{"v1"},
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202 got %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	id := resp["run_id"]
	if id == "" {
		t.Fatalf("missing run_id")
	}
	run, err := runner.Get(id)
	if err != nil {
		t.Fatalf("run not registered: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := run.Wait(ctx); err != nil {
		t.Fatalf("wait: %v", err)
	}
	return id
}

func TestStartAndGetRun(t *testing.T) {
	mux, runner, _ := newTestMux(t)
	id := startRun(t, mux, runner)

	req := httptest.NewRequest(http.MethodGet, "/api/optimize/"+id, nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		RunID      string               `json:"run_id"`
		Routes     []route.VehicleRoute `json:"routes"`
		Unassigned []string             `json:"unassigned_order_ids"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.RunID != id || len(resp.Routes) != 1 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if len(resp.Routes[0].OrderIDs) != 1 || resp.Routes[0].OrderIDs[0] != "o1" {
		t.Fatalf("order not routed: %+v", resp.Routes[0])
	}
	if len(resp.Unassigned) != 0 {
		t.Fatalf("unexpected unassigned %v", resp.Unassigned)
	}
}

func TestStartUnknownOrder(t *testing.T) {
	mux, _, _ := newTestMux(t)
	rec := postJSON(t, mux, "/api/optimize", map[string]any{
		"order_ids":   []string{"ghost"},
		"vehicle_ids": []string{"v1"},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestStartInvalidBody(t *testing.T) {
	mux, _, _ := newTestMux(t)
	req := httptest.NewRequest(http.MethodPost, "/api/optimize", bytes.NewReader([]byte("{")))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestGetUnknownRun(t *testing.T) {
	mux, _, _ := newTestMux(t)
	req := httptest.NewRequest(http.MethodGet, "/api/optimize/none", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rec.Code)
	}
}

func TestAssignFromRun(t *testing.T) {
	mux, runner, _ := newTestMux(t)
	id := startRun(t, mux, runner)

	rec := postJSON(t, mux, "/api/optimize/"+id+"/assign", map[string]any{})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Shipments []model.Shipment  `json:"shipments"`
		Failures  map[string]string `json:"failures"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Shipments) != 1 {
		t.Fatalf("expected one shipment got %+v", resp)
	}
	sh := resp.Shipments[0]
	if sh.Status != model.StatusDraft || sh.VehicleID != "v1" {
		t.Fatalf("unexpected shipment %+v", sh)
	}
	if len(resp.Failures) != 0 {
		t.Fatalf("unexpected failures %v", resp.Failures)
	}

	// Assigning the same run again clashes on vehicle and orders.
	rec2 := postJSON(t, mux, "/api/optimize/"+id+"/assign", map[string]any{})
	if rec2.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec2.Code)
	}
	var resp2 struct {
		Failures map[string]string `json:"failures"`
	}
	if err := json.Unmarshal(rec2.Body.Bytes(), &resp2); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp2.Failures) != 1 {
		t.Fatalf("expected a per-vehicle failure, got %+v", resp2)
	}
}

func TestAssignUnfinishedRun(t *testing.T) {
	mux, _, _ := newTestMux(t)
	rec := postJSON(t, mux, "/api/optimize/none/assign", map[string]any{})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rec.Code)
	}
}
