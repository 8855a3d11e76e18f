package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Ingest     IngestConfig     `yaml:"ingest"`
	Sonde      SondeConfig      `yaml:"sonde"`
	Station    StationConfig    `yaml:"station"`
	Points     PointsConfig     `yaml:"points"`
	Server     ServerConfig     `yaml:"server"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Prometheus PrometheusConfig `yaml:"prometheus"`
}

// IngestConfig describes where the demodulated bitstream comes from
type IngestConfig struct {
	Listen      string `yaml:"listen"`       // TCP listen address for a live demodulator feed
	ReadBuffer  int    `yaml:"read_buffer"`  // read chunk size in bytes (default: 1024)
	CaptureFile string `yaml:"capture_file"` // optional zstd-compressed raw capture of the ingested stream
}

// SondeConfig carries receiver-side tunables. The RS41 frame geometry
// itself is fixed, only the hand-off depth is configurable.
type SondeConfig struct {
	FrameQueue int `yaml:"frame_queue"` // framer->decoder channel depth (default: 16)
}

// StationConfig is the receiver site position. When enabled, every record
// with a fix carries the range and bearing from here to the sonde.
type StationConfig struct {
	Enabled   bool    `yaml:"enabled"`
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
}

// PointsConfig configures the CSV point sink
type PointsConfig struct {
	Enabled bool   `yaml:"enabled"`
	File    string `yaml:"file"` // CSV output path
}

// ServerConfig contains the HTTP/WebSocket server settings
type ServerConfig struct {
	Listen     string `yaml:"listen"`      // HTTP listen address (default: ":8080")
	EnableCORS bool   `yaml:"enable_cors"` // allow cross-origin WebSocket clients
}

// MQTTConfig contains MQTT publishing settings
type MQTTConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Broker          string        `yaml:"broker"` // e.g. "tcp://localhost:1883"
	Username        string        `yaml:"username"`
	Password        string        `yaml:"password"`
	TopicPrefix     string        `yaml:"topic_prefix"`     // default: "radiosonde"
	QoS             byte          `yaml:"qos"`              // 0, 1, or 2
	MetricsInterval int           `yaml:"metrics_interval"` // metric snapshot interval in seconds (0 = disabled)
	TLS             MQTTTLSConfig `yaml:"tls"`
}

// MQTTTLSConfig contains TLS settings for MQTT
type MQTTTLSConfig struct {
	Enabled    bool   `yaml:"enabled"`
	CACert     string `yaml:"ca_cert"`
	ClientCert string `yaml:"client_cert"`
	ClientKey  string `yaml:"client_key"`
	Insecure   bool   `yaml:"insecure"` // skip certificate verification
}

// PrometheusConfig contains the metrics endpoint settings
type PrometheusConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"` // metrics endpoint path (default: "/metrics")
}

// LoadConfig reads and validates the configuration file
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// applyDefaults fills in unset fields with their defaults
func (c *Config) applyDefaults() {
	if c.Ingest.ReadBuffer <= 0 {
		c.Ingest.ReadBuffer = 1024
	}
	if c.Sonde.FrameQueue <= 0 {
		c.Sonde.FrameQueue = 16
	}
	if c.Server.Listen == "" {
		c.Server.Listen = ":8080"
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "radiosonde"
	}
	if c.Prometheus.Path == "" {
		c.Prometheus.Path = "/metrics"
	}
}

// Validate checks the configuration for consistency
func (c *Config) Validate() error {
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker must be set when MQTT is enabled")
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
	}
	if c.Points.Enabled && c.Points.File == "" {
		return fmt.Errorf("points.file must be set when the point sink is enabled")
	}
	if c.Station.Enabled {
		if c.Station.Latitude < -90 || c.Station.Latitude > 90 {
			return fmt.Errorf("station.latitude out of range: %f", c.Station.Latitude)
		}
		if c.Station.Longitude < -180 || c.Station.Longitude > 180 {
			return fmt.Errorf("station.longitude out of range: %f", c.Station.Longitude)
		}
	}
	return nil
}
