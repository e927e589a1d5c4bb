package route

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Klodi1379/LogiSys-Pro/core/distance"
	"github.com/Klodi1379/LogiSys-Pro/core/logger"
	"github.com/Klodi1379/LogiSys-Pro/core/metrics"
	"github.com/Klodi1379/LogiSys-Pro/core/model"
)

// ErrOptimizationInProgress is returned when a run is requested for a
// vehicle pool overlapping one already in flight.
var ErrOptimizationInProgress = errors.New("optimization already in progress for vehicle pool")

// ErrRunNotFound is returned for unknown run ids.
var ErrRunNotFound = errors.New("optimization run not found")

// Request describes one optimization run.
type Request struct {
	Orders   []model.Order
	Vehicles []model.Vehicle
	Budget   time.Duration
}

// Run is a handle on a background optimization. The solution becomes
// available once Done is closed.
type Run struct {
	ID     string
	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	solution *Solution
	err      error
}

// Done is closed when the run finished, was cancelled or timed out.
func (r *Run) Done() <-chan struct{} { return r.done }

// Result returns the solution once the run completed. Cancelled runs still
// yield the best solution found so far.
func (r *Run) Result() (*Solution, error) {
	select {
	case <-r.done:
	default:
		return nil, errors.New("optimization still running")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.solution, r.err
}

// Wait blocks until the run completes or ctx is cancelled.
func (r *Run) Wait(ctx context.Context) (*Solution, error) {
	select {
	case <-r.done:
		return r.Result()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel stops the run early. The optimizer returns the best-found solution
// rather than aborting without output.
func (r *Run) Cancel() { r.cancel() }

// Runner executes optimization runs off the request path. At most one run
// may be in flight per vehicle; overlapping pools are rejected with
// ErrOptimizationInProgress rather than racing each other.
type Runner struct {
	optimizer *Optimizer
	builder   *distance.Builder
	log       logger.Logger
	sink      metrics.Sink

	mu      sync.Mutex
	inUse   map[string]string // vehicle id -> run id
	runs    map[string]*Run
	order   []string // run ids in creation order, oldest first
	maxRuns int
}

// NewRunner creates a Runner. sink may be nil.
func NewRunner(opt *Optimizer, builder *distance.Builder, log logger.Logger, sink metrics.Sink) *Runner {
	if sink == nil {
		sink = metrics.NopSink{}
	}
	return &Runner{
		optimizer: opt,
		builder:   builder,
		log:       log,
		sink:      sink,
		inUse:     make(map[string]string),
		runs:      make(map[string]*Run),
		maxRuns:   128,
	}
}

// Start launches a background run for the request. The per-vehicle tokens
// are acquired atomically: either the whole pool is free or the request is
// rejected.
func (r *Runner) Start(ctx context.Context, req Request) (*Run, error) {
	if len(req.Vehicles) == 0 {
		return nil, errors.New("start optimization: empty vehicle pool")
	}
	for _, v := range req.Vehicles {
		if err := v.Validate(); err != nil {
			return nil, fmt.Errorf("start optimization: %w", err)
		}
	}

	id := uuid.NewString()
	r.mu.Lock()
	for _, v := range req.Vehicles {
		if holder, busy := r.inUse[v.ID]; busy {
			r.mu.Unlock()
			return nil, fmt.Errorf("%w: vehicle %s held by run %s", ErrOptimizationInProgress, v.ID, holder)
		}
	}
	for _, v := range req.Vehicles {
		r.inUse[v.ID] = id
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	run := &Run{ID: id, cancel: cancel, done: make(chan struct{})}
	r.runs[id] = run
	r.order = append(r.order, id)
	r.trimLocked()
	r.mu.Unlock()

	go r.execute(runCtx, run, req)
	return run, nil
}

// Get returns the run handle for an id.
func (r *Runner) Get(id string) (*Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}
	return run, nil
}

func (r *Runner) execute(ctx context.Context, run *Run, req Request) {
	defer func() {
		r.mu.Lock()
		for _, v := range req.Vehicles {
			if r.inUse[v.ID] == run.ID {
				delete(r.inUse, v.ID)
			}
		}
		r.mu.Unlock()
		close(run.done)
	}()

	start := time.Now()
	matrix, err := r.builder.Build(ctx, Locations(req.Orders, req.Vehicles))
	if err != nil {
		run.mu.Lock()
		run.err = fmt.Errorf("build distance matrix: %w", err)
		run.mu.Unlock()
		return
	}
	sol, err := r.optimizer.Optimize(ctx, req.Orders, req.Vehicles, matrix, req.Budget)
	run.mu.Lock()
	run.solution, run.err = sol, err
	run.mu.Unlock()
	if err != nil {
		r.log.Errorf("optimization %s failed: %v", run.ID, err)
		return
	}

	sum := sol.Summarize()
	r.log.Infof("optimization %s: %d orders on %d vehicles, %.1f km, %d unassigned, timed_out=%t",
		run.ID, sum.OrdersAssigned, sum.VehiclesUsed, sum.TotalMeters/1000, sum.OrdersDropped, sol.TimedOut)
	if err := r.sink.RecordOptimization(metrics.OptimizationResult{
		RunID:          run.ID,
		Vehicles:       len(req.Vehicles),
		OrdersAssigned: sum.OrdersAssigned,
		OrdersDropped:  sum.OrdersDropped,
		TotalMeters:    sum.TotalMeters,
		TimedOut:       sol.TimedOut,
		Elapsed:        time.Since(start),
		Time:           start,
	}); err != nil {
		r.log.Errorf("optimization metrics error: %v", err)
	}
}

// trimLocked drops the oldest finished runs once maxRuns is exceeded. Called
// with the mutex held.
func (r *Runner) trimLocked() {
	if len(r.runs) <= r.maxRuns {
		return
	}
	kept := r.order[:0]
	for _, id := range r.order {
		run, ok := r.runs[id]
		if !ok {
			continue
		}
		finished := false
		select {
		case <-run.done:
			finished = true
		default:
		}
		if finished && len(r.runs) > r.maxRuns {
			delete(r.runs, id)
			continue
		}
		kept = append(kept, id)
	}
	r.order = kept
}
