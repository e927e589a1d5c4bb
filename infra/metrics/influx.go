package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/Klodi1379/LogiSys-Pro/core/metrics"
	"github.com/Klodi1379/LogiSys-Pro/infra/logger"
)

// InfluxSink writes dispatch-engine events to InfluxDB as line protocol.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a sink for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	client := influxdb2.NewClientWithOptions(url, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback health-checks the endpoint and falls back to a
// NopSink when it is unreachable, so metrics never take the service down.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.Sink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// Close shuts down the underlying client.
func (s *InfluxSink) Close() { s.client.Close() }

func (s *InfluxSink) RecordOptimization(r coremetrics.OptimizationResult) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("optimization_run").
		AddTag("run_id", r.RunID).
		AddTag("timed_out", strconv.FormatBool(r.TimedOut)).
		AddField("vehicles", r.Vehicles).
		AddField("orders_assigned", r.OrdersAssigned).
		AddField("orders_dropped", r.OrdersDropped).
		AddField("total_meters", r.TotalMeters).
		AddField("elapsed_ms", r.Elapsed.Milliseconds()).
		SetTime(r.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

func (s *InfluxSink) RecordTransition(r coremetrics.TransitionRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("shipment_transition").
		AddTag("shipment_id", r.ShipmentID).
		AddTag("from_status", string(r.From)).
		AddTag("to_status", string(r.To)).
		AddField("count", 1).
		SetTime(r.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

func (s *InfluxSink) RecordTracking(r coremetrics.TrackingRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("tracking_ping").
		AddTag("shipment_id", r.ShipmentID).
		AddTag("accepted", strconv.FormatBool(r.Accepted)).
		AddField("stale", r.Stale).
		SetTime(r.Time)
	if r.Accepted && !r.ETA.IsZero() {
		p.AddField("eta_unix", r.ETA.Unix())
	}
	return s.writeAPI.WritePoint(ctx, p)
}
