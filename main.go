package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Global debug flag
var DebugMode bool

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	inputPath := flag.String("input", "", "Decode a captured bitstream file instead of serving (\"-\" for stdin)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	DebugMode = *debug

	config, err := LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	metrics := NewPrometheusMetrics()

	// Output fan-out
	var pointLogger *PointLogger
	if config.Points.Enabled {
		pointLogger, err = NewPointLogger(config.Points.File)
		if err != nil {
			log.Fatalf("Failed to open point log: %v", err)
		}
		defer pointLogger.Close()
		log.Printf("Logging decoded points to %s", config.Points.File)
	}

	var publisher *MQTTPublisher
	if config.MQTT.Enabled {
		publisher, err = NewMQTTPublisher(&config.MQTT)
		if err != nil {
			log.Fatalf("Failed to start MQTT publisher: %v", err)
		}
		defer publisher.Close()
	}

	hub := NewTelemetryHub(config.Server.EnableCORS)

	// Decode pipeline
	framer := NewFramer(rs41SyncWord, rs41SyncLen, rs41FrameLen)
	var decoder *Decoder
	decoder = NewDecoder(func(rec *Telemetry) {
		if config.Station.Enabled && rec.HasFix {
			rec.RangeKm, rec.Bearing = distanceAndBearing(
				config.Station.Latitude, config.Station.Longitude,
				rec.Latitude, rec.Longitude)
		}

		metrics.RecordTelemetry(rec, decoder.Calibration())

		if DebugMode {
			log.Printf("Telemetry: serial=%s seq=%d lat=%.5f lon=%.5f alt=%.1f calibrated=%v corrected=%v",
				rec.Serial, rec.Seq, rec.Latitude, rec.Longitude, rec.Altitude, rec.Calibrated, rec.Corrected)
		}

		if pointLogger != nil {
			if err := pointLogger.AddPoint(rec); err != nil {
				log.Printf("Point log write failed: %v", err)
			}
		}
		if publisher != nil {
			publisher.PublishTelemetry(rec)
		}
		hub.Broadcast(rec)
	})
	decoder.SetMetrics(metrics)

	ingest := NewIngest(&config.Ingest, config.Sonde.FrameQueue, framer, decoder, metrics)
	if err := ingest.Start(); err != nil {
		log.Fatalf("Failed to start ingest: %v", err)
	}

	// Offline mode: run one file through the pipeline and exit.
	if *inputPath != "" {
		if err := decodeFile(ingest, *inputPath); err != nil {
			log.Fatalf("Failed to decode %s: %v", *inputPath, err)
		}
		ingest.Stop()
		return
	}

	// HTTP server: live telemetry WebSocket plus optional metrics endpoint.
	mux := http.NewServeMux()
	mux.Handle("/telemetry", hub)
	if config.Prometheus.Enabled {
		mux.Handle(config.Prometheus.Path, promhttp.Handler())
	}
	server := &http.Server{Addr: config.Server.Listen, Handler: mux}
	go func() {
		log.Printf("HTTP server listening on %s", config.Server.Listen)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Printf("Received %v, shutting down", sig)

	server.Close()
	ingest.Stop()
}

// decodeFile feeds a captured bitstream through the pipeline
func decodeFile(ingest *Ingest, path string) error {
	if path == "-" {
		return ingest.ReadFrom(os.Stdin)
	}
	fd, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open input: %w", err)
	}
	defer fd.Close()
	return ingest.ReadFrom(fd)
}
