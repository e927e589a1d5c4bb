package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	apioptimize "github.com/Klodi1379/LogiSys-Pro/api/optimize"
	apishipments "github.com/Klodi1379/LogiSys-Pro/api/shipments"
	"github.com/Klodi1379/LogiSys-Pro/config"
	"github.com/Klodi1379/LogiSys-Pro/core/dispatch"
	"github.com/Klodi1379/LogiSys-Pro/core/distance"
	"github.com/Klodi1379/LogiSys-Pro/core/fleet"
	"github.com/Klodi1379/LogiSys-Pro/core/lifecycle"
	coremetrics "github.com/Klodi1379/LogiSys-Pro/core/metrics"
	"github.com/Klodi1379/LogiSys-Pro/core/model"
	"github.com/Klodi1379/LogiSys-Pro/core/route"
	"github.com/Klodi1379/LogiSys-Pro/core/shipment"
	"github.com/Klodi1379/LogiSys-Pro/core/tracking"
	"github.com/Klodi1379/LogiSys-Pro/infra/logger"
	"github.com/Klodi1379/LogiSys-Pro/infra/metrics"
	"github.com/Klodi1379/LogiSys-Pro/infra/mqtt"
	"github.com/Klodi1379/LogiSys-Pro/internal/eventbus"
)

// Service wires the dispatch engine: optimizer runner, assigner, lifecycle,
// tracking ingestor, API server and observability sinks.
type Service struct {
	cfg      *config.Config
	log      logger.Logger
	source   *fleet.MemorySource
	store    *shipment.MemoryStore
	runner   *route.Runner
	lc       *lifecycle.Lifecycle
	assigner *dispatch.Assigner
	ingestor *tracking.Ingestor
	bus      *eventbus.Bus[lifecycle.TransitionEvent]
	sub      *mqtt.TrackingSubscriber
	sink     coremetrics.Sink
	influx   *metrics.InfluxSink
}

// New builds a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	log := logger.New("service")

	var sinks []coremetrics.Sink
	var influx *metrics.InfluxSink
	if cfg.Metrics.PrometheusEnabled {
		sink, err := metrics.NewPromSink(nil)
		if err != nil {
			return nil, fmt.Errorf("prom sink: %w", err)
		}
		sinks = append(sinks, sink)
	}
	if cfg.Metrics.InfluxEnabled {
		sink := metrics.NewInfluxSinkWithFallback(cfg.Metrics.InfluxURL, cfg.Metrics.InfluxToken, cfg.Metrics.InfluxOrg, cfg.Metrics.InfluxBucket)
		if is, ok := sink.(*metrics.InfluxSink); ok {
			influx = is
		}
		sinks = append(sinks, sink)
	}
	var sink coremetrics.Sink = coremetrics.NopSink{}
	if len(sinks) == 1 {
		sink = sinks[0]
	} else if len(sinks) > 1 {
		sink = metrics.NewMultiSink(sinks...)
	}

	source := fleet.NewMemorySource()
	if cfg.Fleet.SeedFile != "" {
		if err := loadSeed(cfg.Fleet.SeedFile, source); err != nil {
			return nil, fmt.Errorf("load fleet seed: %w", err)
		}
	}

	store := shipment.NewMemoryStore()
	bus := eventbus.New[lifecycle.TransitionEvent]()
	lc := lifecycle.New(store, source, bus, logger.New("lifecycle"), sink)

	builder := distance.NewBuilder(nil, cfg.Distance.AverageSpeedKmh, logger.New("distance"))
	optimizer := route.NewOptimizer(route.Config{
		DistanceWeight:    cfg.Optimizer.DistanceWeight,
		DurationWeight:    cfg.Optimizer.DurationWeight,
		UnassignedPenalty: cfg.Optimizer.UnassignedPenalty,
	})
	runner := route.NewRunner(optimizer, builder, logger.New("optimizer"), sink)

	locks := dispatch.NewVehicleLocks()
	provider := distance.HaversineProvider{SpeedKmh: cfg.Distance.AverageSpeedKmh}
	assigner := dispatch.NewAssigner(locks, store, source, provider, lc, logger.New("assigner"))

	ingestor := tracking.NewIngestor(store, lc, logger.New("tracking"), sink,
		cfg.Tracking.ProximityMeters, cfg.Tracking.AverageSpeedKmh)

	svc := &Service{
		cfg:      cfg,
		log:      log,
		source:   source,
		store:    store,
		runner:   runner,
		lc:       lc,
		assigner: assigner,
		ingestor: ingestor,
		bus:      bus,
		sink:     sink,
		influx:   influx,
	}

	if cfg.MQTT.Enabled {
		sub, err := mqtt.NewTrackingSubscriber(cfg.MQTT, ingestor, logger.New("mqtt"))
		if err != nil {
			return nil, fmt.Errorf("mqtt subscriber: %w", err)
		}
		svc.sub = sub
	}
	return svc, nil
}

// Runner exposes the optimization runner, used by the one-shot CLI path.
func (s *Service) Runner() *route.Runner { return s.runner }

// Source exposes the in-memory order/vehicle source.
func (s *Service) Source() *fleet.MemorySource { return s.source }

// Run serves the API until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	apioptimize.NewHandler(s.runner, s.assigner, s.source, s.source,
		time.Duration(s.cfg.Optimizer.DefaultBudgetMS)*time.Millisecond,
		logger.New("api-optimize")).Register(mux)
	apishipments.NewHandler(s.store, s.lc, s.ingestor, logger.New("api-shipments")).Register(mux)

	if s.cfg.Metrics.PrometheusEnabled {
		go func() {
			if err := metrics.StartPromServer(ctx, s.cfg.Metrics.PrometheusAddr); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}

	srv := &http.Server{Addr: s.cfg.API.Addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Errorf("api shutdown: %v", err)
		}
	}()
	s.log.Infof("dispatch engine listening on %s", s.cfg.API.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Close releases broker and sink resources.
func (s *Service) Close() error {
	if s.sub != nil {
		s.sub.Close()
	}
	if s.influx != nil {
		s.influx.Close()
	}
	s.bus.Close()
	return nil
}

// seedFile is the on-disk shape of a fleet/order seed.
type seedFile struct {
	Vehicles []model.Vehicle `json:"vehicles"`
	Orders   []model.Order   `json:"orders"`
}

func loadSeed(path string, source *fleet.MemorySource) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var seed seedFile
	if err := json.Unmarshal(b, &seed); err != nil {
		return err
	}
	for _, v := range seed.Vehicles {
		if err := v.Validate(); err != nil {
			return err
		}
		source.PutVehicle(v)
	}
	for _, o := range seed.Orders {
		source.PutOrder(o)
	}
	return nil
}
