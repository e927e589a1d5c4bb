// Command simulator publishes GPS pings for a shipment along a route,
// feeding the tracking ingestor through the MQTT broker.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/Klodi1379/LogiSys-Pro/core/model"
)

type config struct {
	Broker     string
	ShipmentID string
	TopicBase  string
	RouteFile  string
	SpeedKmh   float64
	Interval   time.Duration
	Verbose    bool
}

func main() {
	cfg := parseFlags()
	if err := cfg.validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	if !cfg.Verbose {
		log.SetOutput(io.Discard)
	}

	route, err := readRouteFile(cfg.RouteFile)
	if err != nil {
		log.Fatalf("route file: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(fmt.Sprintf("tracking-sim-%d", time.Now().UnixNano()))
	client := pahomqtt.NewClient(opts)
	tok := client.Connect()
	tok.Wait()
	if err := tok.Error(); err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer client.Disconnect(250)

	if err := drive(ctx, client, cfg, route); err != nil {
		log.Fatalf("drive: %v", err)
	}
}

func parseFlags() config {
	var cfg config
	flag.StringVar(&cfg.Broker, "broker", "tcp://localhost:1883", "MQTT broker URL")
	flag.StringVar(&cfg.ShipmentID, "shipment", "", "shipment id to publish pings for")
	flag.StringVar(&cfg.TopicBase, "topic-base", "fleet/tracking", "MQTT topic base")
	flag.StringVar(&cfg.RouteFile, "route-file", "route.json", "JSON array of waypoints")
	flag.Float64Var(&cfg.SpeedKmh, "speed", 50, "simulated speed km/h")
	flag.DurationVar(&cfg.Interval, "interval", 5*time.Second, "ping publish interval")
	flag.BoolVar(&cfg.Verbose, "verbose", false, "enable verbose logging")
	flag.Parse()
	return cfg
}

func (c config) validate() error {
	if c.ShipmentID == "" {
		return fmt.Errorf("shipment id required")
	}
	if c.SpeedKmh <= 0 {
		return fmt.Errorf("speed must be positive")
	}
	if c.Interval <= 0 {
		return fmt.Errorf("interval must be positive")
	}
	return nil
}

func readRouteFile(path string) ([]model.Location, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var route []model.Location
	if err := json.Unmarshal(data, &route); err != nil {
		return nil, err
	}
	if len(route) < 2 {
		return nil, fmt.Errorf("route needs at least two waypoints")
	}
	return route, nil
}

type ping struct {
	Timestamp int64   `json:"timestamp"`
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
}

// drive walks the route at the configured speed, publishing a ping every
// interval until the last waypoint is reached or the context ends.
func drive(ctx context.Context, client pahomqtt.Client, cfg config, route []model.Location) error {
	topic := cfg.TopicBase + "/" + cfg.ShipmentID
	stepM := cfg.SpeedKmh / 3.6 * cfg.Interval.Seconds()

	pos := route[0]
	next := 1
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()
	for {
		if err := publish(client, topic, pos); err != nil {
			return err
		}
		log.Printf("ping %s lat=%.5f lng=%.5f", cfg.ShipmentID, pos.Latitude, pos.Longitude)
		if next >= len(route) {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		pos, next = advance(pos, route, next, stepM)
	}
}

// advance moves stepM meters along the remaining waypoints.
func advance(pos model.Location, route []model.Location, next int, stepM float64) (model.Location, int) {
	remaining := stepM
	for next < len(route) {
		legM := pos.HaversineDistance(route[next])
		if legM > remaining {
			frac := remaining / legM
			pos.Latitude += (route[next].Latitude - pos.Latitude) * frac
			pos.Longitude += (route[next].Longitude - pos.Longitude) * frac
			return pos, next
		}
		remaining -= legM
		pos = route[next]
		next++
	}
	return pos, next
}

func publish(client pahomqtt.Client, topic string, pos model.Location) error {
	payload, err := json.Marshal(ping{
		Timestamp: time.Now().UnixMilli(),
		Latitude:  pos.Latitude,
		Longitude: pos.Longitude,
	})
	if err != nil {
		return err
	}
	tok := client.Publish(topic, 1, false, payload)
	tok.Wait()
	return tok.Error()
}
