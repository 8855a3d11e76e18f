package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeTestConfig(t, `
ingest:
  listen: ":5678"
`)
	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if config.Ingest.Listen != ":5678" {
		t.Fatalf("ingest.listen: got %q", config.Ingest.Listen)
	}
	if config.Ingest.ReadBuffer != 1024 {
		t.Fatalf("ingest.read_buffer default: got %d, want 1024", config.Ingest.ReadBuffer)
	}
	if config.Sonde.FrameQueue != 16 {
		t.Fatalf("sonde.frame_queue default: got %d, want 16", config.Sonde.FrameQueue)
	}
	if config.Server.Listen != ":8080" {
		t.Fatalf("server.listen default: got %q", config.Server.Listen)
	}
	if config.MQTT.TopicPrefix != "radiosonde" {
		t.Fatalf("mqtt.topic_prefix default: got %q", config.MQTT.TopicPrefix)
	}
	if config.Prometheus.Path != "/metrics" {
		t.Fatalf("prometheus.path default: got %q", config.Prometheus.Path)
	}
}

func TestLoadConfigFull(t *testing.T) {
	path := writeTestConfig(t, `
ingest:
  listen: ":9000"
  read_buffer: 4096
  capture_file: /tmp/capture.zst
sonde:
  frame_queue: 64
points:
  enabled: true
  file: /tmp/points.csv
server:
  listen: ":8081"
  enable_cors: true
mqtt:
  enabled: true
  broker: tcp://localhost:1883
  topic_prefix: sondes
  qos: 1
  metrics_interval: 30
prometheus:
  enabled: true
  path: /stats
`)
	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if config.Ingest.ReadBuffer != 4096 {
		t.Fatalf("ingest.read_buffer: got %d", config.Ingest.ReadBuffer)
	}
	if !config.MQTT.Enabled || config.MQTT.Broker != "tcp://localhost:1883" {
		t.Fatalf("mqtt settings not applied: %+v", config.MQTT)
	}
	if config.MQTT.QoS != 1 {
		t.Fatalf("mqtt.qos: got %d", config.MQTT.QoS)
	}
	if config.Prometheus.Path != "/stats" {
		t.Fatalf("prometheus.path: got %q", config.Prometheus.Path)
	}
	if !config.Server.EnableCORS {
		t.Fatalf("server.enable_cors not applied")
	}
}

func TestLoadConfigValidation(t *testing.T) {
	cases := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name: "mqtt enabled without broker",
			content: `
mqtt:
  enabled: true
`,
			wantErr: "mqtt.broker",
		},
		{
			name: "invalid qos",
			content: `
mqtt:
  enabled: true
  broker: tcp://localhost:1883
  qos: 3
`,
			wantErr: "mqtt.qos",
		},
		{
			name: "points enabled without file",
			content: `
points:
  enabled: true
`,
			wantErr: "points.file",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeTestConfig(t, tc.content)
			_, err := LoadConfig(path)
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("error %q does not mention %q", err, tc.wantErr)
			}
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestLoadConfigBadYAML(t *testing.T) {
	path := writeTestConfig(t, "ingest: [not a mapping")
	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("expected error for malformed YAML")
	}
}
