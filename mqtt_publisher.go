package main

import (
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// MQTTPublisher publishes decoded telemetry records and periodic metric
// snapshots to an MQTT broker
type MQTTPublisher struct {
	client   mqtt.Client
	config   *MQTTConfig
	stopChan chan struct{}
}

// MetricPayload represents a metric snapshot message for MQTT
type MetricPayload struct {
	Timestamp int64              `json:"timestamp"`
	Metrics   map[string]float64 `json:"metrics"`
}

// generateClientID creates a random client ID for the MQTT connection
func generateClientID() string {
	bytes := make([]byte, 8)
	rand.Read(bytes)
	return "radiosonde_" + hex.EncodeToString(bytes)
}

// loadTLSConfig loads TLS configuration from files
func loadTLSConfig(tlsConfig MQTTTLSConfig) (*tls.Config, error) {
	if !tlsConfig.Enabled {
		return nil, nil
	}

	config := &tls.Config{InsecureSkipVerify: tlsConfig.Insecure}

	if tlsConfig.CACert != "" {
		caCert, err := os.ReadFile(tlsConfig.CACert)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}
		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA certificate")
		}
		config.RootCAs = caCertPool
	}

	if tlsConfig.ClientCert != "" && tlsConfig.ClientKey != "" {
		cert, err := tls.LoadX509KeyPair(tlsConfig.ClientCert, tlsConfig.ClientKey)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		config.Certificates = []tls.Certificate{cert}
	}

	return config, nil
}

// NewMQTTPublisher creates and connects a new MQTT publisher
func NewMQTTPublisher(config *MQTTConfig) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(config.Broker)
	opts.SetClientID(generateClientID())

	if config.Username != "" {
		opts.SetUsername(config.Username)
	}
	if config.Password != "" {
		opts.SetPassword(config.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(10 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	if config.TLS.Enabled {
		tlsConfig, err := loadTLSConfig(config.TLS)
		if err != nil {
			return nil, fmt.Errorf("failed to load TLS config: %w", err)
		}
		opts.SetTLSConfig(tlsConfig)
	}

	opts.OnConnect = func(mqtt.Client) {
		log.Printf("MQTT: connected to %s", config.Broker)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Printf("MQTT: connection lost: %v", err)
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.WaitTimeout(10*time.Second) && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	p := &MQTTPublisher{
		client:   client,
		config:   config,
		stopChan: make(chan struct{}),
	}

	if config.MetricsInterval > 0 {
		go p.metricsLoop(time.Duration(config.MetricsInterval) * time.Second)
	}

	return p, nil
}

// PublishTelemetry publishes one decoded record as JSON under
// <prefix>/telemetry/<serial>
func (p *MQTTPublisher) PublishTelemetry(rec *Telemetry) {
	serial := rec.Serial
	if serial == "" {
		serial = "unknown"
	}
	topic := fmt.Sprintf("%s/telemetry/%s", p.config.TopicPrefix, serial)

	payload, err := json.Marshal(rec)
	if err != nil {
		log.Printf("MQTT: failed to marshal telemetry: %v", err)
		return
	}

	token := p.client.Publish(topic, p.config.QoS, false, payload)
	go func() {
		if token.Wait() && token.Error() != nil {
			log.Printf("MQTT: failed to publish telemetry: %v", token.Error())
		}
	}()
}

// metricsLoop periodically gathers the registered Prometheus metrics and
// publishes a flat snapshot under <prefix>/metrics
func (p *MQTTPublisher) metricsLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.publishMetricsSnapshot()
		case <-p.stopChan:
			return
		}
	}
}

func (p *MQTTPublisher) publishMetricsSnapshot() {
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		log.Printf("MQTT: failed to gather metrics: %v", err)
		return
	}

	snapshot := MetricPayload{
		Timestamp: time.Now().Unix(),
		Metrics:   make(map[string]float64),
	}
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			switch family.GetType() {
			case dto.MetricType_COUNTER:
				snapshot.Metrics[family.GetName()] = metric.GetCounter().GetValue()
			case dto.MetricType_GAUGE:
				snapshot.Metrics[family.GetName()] = metric.GetGauge().GetValue()
			}
		}
	}

	payload, err := json.Marshal(snapshot)
	if err != nil {
		log.Printf("MQTT: failed to marshal metrics snapshot: %v", err)
		return
	}

	topic := p.config.TopicPrefix + "/metrics"
	if token := p.client.Publish(topic, p.config.QoS, false, payload); token.Wait() && token.Error() != nil {
		log.Printf("MQTT: failed to publish metrics snapshot: %v", token.Error())
	}
}

// Close stops the metrics loop and disconnects from the broker
func (p *MQTTPublisher) Close() {
	close(p.stopChan)
	p.client.Disconnect(250)
}
