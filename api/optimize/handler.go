package optimize

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/Klodi1379/LogiSys-Pro/core/dispatch"
	"github.com/Klodi1379/LogiSys-Pro/core/fleet"
	"github.com/Klodi1379/LogiSys-Pro/core/logger"
	"github.com/Klodi1379/LogiSys-Pro/core/route"
)

// Handler exposes optimization runs over HTTP.
type Handler struct {
	runner   *route.Runner
	assigner *dispatch.Assigner
	fleet    fleet.Source
	orders   fleet.OrderSource
	budget   time.Duration
	log      logger.Logger
}

// NewHandler creates the optimize API handler. defaultBudget bounds runs
// whose request carries no time budget.
func NewHandler(runner *route.Runner, assigner *dispatch.Assigner, fl fleet.Source, orders fleet.OrderSource, defaultBudget time.Duration, log logger.Logger) *Handler {
	return &Handler{runner: runner, assigner: assigner, fleet: fl, orders: orders, budget: defaultBudget, log: log}
}

// Register mounts the handler routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/optimize", h.start)
	mux.HandleFunc("GET /api/optimize/{id}", h.get)
	mux.HandleFunc("POST /api/optimize/{id}/assign", h.assign)
}

type startRequest struct {
	OrderIDs     []string `json:"order_ids"`
	VehicleIDs   []string `json:"vehicle_ids"`
	TimeBudgetMS int      `json:"time_budget_ms"`
}

type solutionResponse struct {
	RunID      string               `json:"run_id"`
	Routes     []route.VehicleRoute `json:"routes"`
	Unassigned []string             `json:"unassigned_order_ids"`
	TimedOut   bool                 `json:"timed_out"`
	Approx     bool                 `json:"approximate"`
	Summary    route.Summary        `json:"summary"`
}

func (h *Handler) start(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	orders, err := h.orders.Orders(r.Context(), req.OrderIDs)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	vehicles, err := h.fleet.Vehicles(r.Context(), req.VehicleIDs)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	budget := h.budget
	if req.TimeBudgetMS > 0 {
		budget = time.Duration(req.TimeBudgetMS) * time.Millisecond
	}
	run, err := h.runner.Start(r.Context(), route.Request{Orders: orders, Vehicles: vehicles, Budget: budget})
	if err != nil {
		if errors.Is(err, route.ErrOptimizationInProgress) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]string{"run_id": run.ID})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	run, err := h.runner.Get(r.PathValue("id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	select {
	case <-run.Done():
	default:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]string{"run_id": run.ID, "status": "running"})
		return
	}
	sol, err := run.Result()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(solutionResponse{
		RunID:      run.ID,
		Routes:     sol.Routes,
		Unassigned: sol.Unassigned,
		TimedOut:   sol.TimedOut,
		Approx:     sol.Approximate,
		Summary:    sol.Summarize(),
	})
}

type assignRequest struct {
	OrderIDs []string `json:"order_ids"`
}

// assign converts a finished run into draft shipments. The order set is
// re-fetched so destinations and demands come from the order source, not
// from the caller.
func (h *Handler) assign(w http.ResponseWriter, r *http.Request) {
	run, err := h.runner.Get(r.PathValue("id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	sol, err := run.Result()
	if err != nil || sol == nil {
		http.Error(w, "optimization not finished", http.StatusConflict)
		return
	}
	var ids []string
	for _, rt := range sol.Routes {
		ids = append(ids, rt.OrderIDs...)
	}
	orders, err := h.orders.Orders(r.Context(), ids)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	shipments, failures := h.assigner.AssignAll(r.Context(), sol, orders, time.Time{})
	resp := map[string]any{"shipments": shipments}
	if len(failures) > 0 {
		msgs := make(map[string]string, len(failures))
		for vid, ferr := range failures {
			msgs[vid] = ferr.Error()
		}
		resp["failures"] = msgs
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
