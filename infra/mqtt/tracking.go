package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/Klodi1379/LogiSys-Pro/core/model"
	"github.com/Klodi1379/LogiSys-Pro/core/tracking"
	"github.com/Klodi1379/LogiSys-Pro/infra/logger"
)

// Config defines the connection parameters for the tracking subscriber.
type Config struct {
	Enabled    bool   `json:"enabled"`
	Broker     string `json:"broker"`
	ClientID   string `json:"client_id"`
	Username   string `json:"username"`
	Password   string `json:"password"`
	TopicBase  string `json:"topic_base"`
	QoS        byte   `json:"qos"`
	UseTLS     bool   `json:"use_tls"`
	ClientCert string `json:"client_cert"`
	ClientKey  string `json:"client_key"`
	CABundle   string `json:"ca_bundle"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.TopicBase == "" {
		c.TopicBase = "fleet/tracking"
	}
	if c.ClientID == "" {
		c.ClientID = "dispatch-engine"
	}
}

// pingPayload is the wire format drivers publish on <topic_base>/<shipment_id>.
type pingPayload struct {
	Timestamp int64   `json:"timestamp"`
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
}

// TrackingSubscriber feeds driver position pings from MQTT into the
// tracking ingestor. Stale pings are counted and dropped by the ingestor;
// transport-level redelivery is therefore harmless.
type TrackingSubscriber struct {
	cli    paho.Client
	ing    *tracking.Ingestor
	log    logger.Logger
	topic  string
	prefix string
	qos    byte
}

// NewTrackingSubscriber connects to the broker and subscribes to the
// tracking topic tree.
func NewTrackingSubscriber(cfg Config, ing *tracking.Ingestor, log logger.Logger) (*TrackingSubscriber, error) {
	cfg.SetDefaults()
	opts, err := newClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	s := &TrackingSubscriber{
		ing:    ing,
		log:    log,
		topic:  cfg.TopicBase + "/+",
		prefix: cfg.TopicBase + "/",
		qos:    cfg.QoS,
	}
	opts.OnConnect = func(c paho.Client) {
		log.Infof("MQTT connected, subscribing to %s", s.topic)
		if token := c.Subscribe(s.topic, s.qos, s.onPing); token.Wait() && token.Error() != nil {
			log.Errorf("subscribe error: %v", token.Error())
		}
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}

	cli := paho.NewClient(opts)
	if token := cli.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	s.cli = cli
	return s, nil
}

func (s *TrackingSubscriber) onPing(_ paho.Client, msg paho.Message) {
	shipmentID := strings.TrimPrefix(msg.Topic(), s.prefix)
	if shipmentID == "" || strings.Contains(shipmentID, "/") {
		s.log.Warnf("unexpected tracking topic %s", msg.Topic())
		return
	}
	var p pingPayload
	if err := json.Unmarshal(msg.Payload(), &p); err != nil {
		s.log.Errorf("failed to decode ping on %s: %v", msg.Topic(), err)
		return
	}
	ev := model.TrackingEvent{
		Timestamp: time.UnixMilli(p.Timestamp),
		Location:  model.Location{Latitude: p.Lat, Longitude: p.Lng},
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := s.ing.Ingest(ctx, shipmentID, ev)
	if err != nil {
		s.log.Errorf("ingest ping for %s: %v", shipmentID, err)
		return
	}
	if res.Stale {
		s.log.Debugf("stale ping dropped for %s", shipmentID)
	}
}

// Close disconnects from the broker.
func (s *TrackingSubscriber) Close() {
	if s.cli != nil && s.cli.IsConnected() {
		s.cli.Disconnect(250)
	}
}

func newClientOptions(cfg Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	if cfg.UseTLS {
		tlsCfg, err := loadTLSConfig(cfg)
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	return opts, nil
}

func loadTLSConfig(c Config) (*tls.Config, error) {
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(caBytes)
	return &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}
