package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/Klodi1379/LogiSys-Pro/infra/mqtt"
)

// Config is the root service configuration.
type Config struct {
	Optimizer OptimizerConfig `json:"optimizer"`
	Distance  DistanceConfig  `json:"distance"`
	Tracking  TrackingConfig  `json:"tracking"`
	Metrics   MetricsConfig   `json:"metrics"`
	MQTT      mqtt.Config     `json:"mqtt"`
	API       APIConfig       `json:"api"`
	Fleet     FleetConfig     `json:"fleet"`
}

// OptimizerConfig tunes the route optimizer and its background runner.
type OptimizerConfig struct {
	// DefaultBudgetMS bounds a run when the request carries no budget.
	DefaultBudgetMS   int     `json:"default_budget_ms"`
	DistanceWeight    float64 `json:"distance_weight"`
	DurationWeight    float64 `json:"duration_weight"`
	UnassignedPenalty float64 `json:"unassigned_penalty"`
}

func (c *OptimizerConfig) SetDefaults() {
	if c.DefaultBudgetMS == 0 {
		c.DefaultBudgetMS = 2000
	}
}

// DistanceConfig tunes travel estimation.
type DistanceConfig struct {
	AverageSpeedKmh float64 `json:"average_speed_kmh"`
}

func (c *DistanceConfig) SetDefaults() {
	if c.AverageSpeedKmh == 0 {
		c.AverageSpeedKmh = 50
	}
}

// TrackingConfig tunes the tracking ingestor.
type TrackingConfig struct {
	ProximityMeters float64 `json:"proximity_meters"`
	AverageSpeedKmh float64 `json:"average_speed_kmh"`
}

func (c *TrackingConfig) SetDefaults() {
	if c.ProximityMeters == 0 {
		c.ProximityMeters = 150
	}
	if c.AverageSpeedKmh == 0 {
		c.AverageSpeedKmh = 50
	}
}

// MetricsConfig selects the observability sinks.
type MetricsConfig struct {
	PrometheusEnabled bool   `json:"prometheus_enabled"`
	PrometheusAddr    string `json:"prometheus_addr"`
	InfluxEnabled     bool   `json:"influx_enabled"`
	InfluxURL         string `json:"influx_url"`
	InfluxToken       string `json:"influx_token"`
	InfluxOrg         string `json:"influx_org"`
	InfluxBucket      string `json:"influx_bucket"`
}

func (c *MetricsConfig) SetDefaults() {
	if c.PrometheusAddr == "" {
		c.PrometheusAddr = ":9090"
	}
}

func (c MetricsConfig) Validate() error {
	if c.InfluxEnabled && c.InfluxURL == "" {
		return fmt.Errorf("influx_url is required when influx is enabled")
	}
	return nil
}

// APIConfig configures the HTTP API server.
type APIConfig struct {
	Addr string `json:"addr"`
}

func (c *APIConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
}

// FleetConfig points at an optional seed file of vehicles and orders for
// deployments without live collaborator services.
type FleetConfig struct {
	SeedFile string `json:"seed_file"`
}

// Load reads the configuration file, applies K_ environment overrides and
// validates each section.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("K_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.Optimizer.SetDefaults()
	cfg.Distance.SetDefaults()
	cfg.Tracking.SetDefaults()
	cfg.Metrics.SetDefaults()
	cfg.API.SetDefaults()
	cfg.MQTT.SetDefaults()
	if err := cfg.Metrics.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
