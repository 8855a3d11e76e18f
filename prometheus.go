package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics holds all Prometheus metric collectors for the receiver
type PrometheusMetrics struct {
	// Ingest
	bytesIngested prometheus.Counter

	// Framer
	framesSynced   prometheus.Counter
	framesInverted prometheus.Counter
	syncBitOffset  prometheus.Gauge

	// Decoder
	framesDecoded     prometheus.Counter
	framesUncorrected prometheus.Counter
	subrecordsValid   prometheus.Counter
	subrecordsBadCRC  prometheus.Counter

	// Telemetry state
	calibFragments prometheus.Gauge
	calibrated     prometheus.Gauge
	altitude       prometheus.Gauge
	groundSpeed    prometheus.Gauge
	climbRate      prometheus.Gauge
	burstKill      prometheus.Gauge
}

// NewPrometheusMetrics creates and registers all metric collectors
func NewPrometheusMetrics() *PrometheusMetrics {
	return &PrometheusMetrics{
		bytesIngested: promauto.NewCounter(prometheus.CounterOpts{
			Name: "radiosonde_ingest_bytes_total",
			Help: "Raw demodulated bytes received from the ingest source",
		}),
		framesSynced: promauto.NewCounter(prometheus.CounterOpts{
			Name: "radiosonde_frames_synced_total",
			Help: "Aligned frames emitted by the bit-sync framer",
		}),
		framesInverted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "radiosonde_frames_inverted_total",
			Help: "Frames whose sync matched the polarity-inverted pattern",
		}),
		syncBitOffset: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "radiosonde_sync_bit_offset",
			Help: "Bit offset of the most recent sync correlation",
		}),
		framesDecoded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "radiosonde_frames_decoded_total",
			Help: "Frames run through the decoder pipeline",
		}),
		framesUncorrected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "radiosonde_frames_uncorrected_total",
			Help: "Frames with at least one uncorrectable Reed-Solomon block",
		}),
		subrecordsValid: promauto.NewCounter(prometheus.CounterOpts{
			Name: "radiosonde_subrecords_valid_total",
			Help: "Sub-records passing their CRC check",
		}),
		subrecordsBadCRC: promauto.NewCounter(prometheus.CounterOpts{
			Name: "radiosonde_subrecords_bad_crc_total",
			Help: "Sub-records discarded due to CRC mismatch",
		}),
		calibFragments: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "radiosonde_calibration_fragments",
			Help: "Calibration fragment slots received so far",
		}),
		calibrated: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "radiosonde_calibrated",
			Help: "1 once the full calibration record has been assembled",
		}),
		altitude: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "radiosonde_altitude_meters",
			Help: "Last decoded altitude",
		}),
		groundSpeed: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "radiosonde_ground_speed_mps",
			Help: "Last decoded ground speed",
		}),
		climbRate: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "radiosonde_climb_rate_mps",
			Help: "Last decoded climb rate",
		}),
		burstKill: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "radiosonde_burstkill_frames",
			Help: "Burst-kill countdown in frames, -1 when disabled",
		}),
	}
}

// RecordTelemetry updates the telemetry gauges from a decoded record
func (m *PrometheusMetrics) RecordTelemetry(rec *Telemetry, calib *CalibrationAssembler) {
	m.framesDecoded.Inc()
	if !rec.Corrected {
		m.framesUncorrected.Inc()
	}
	if rec.HasFix {
		m.altitude.Set(rec.Altitude)
		m.groundSpeed.Set(rec.Speed)
		m.climbRate.Set(rec.Climb)
	}
	m.burstKill.Set(float64(rec.BurstKill))
	m.calibFragments.Set(float64(calib.FragmentsSeen()))
	if rec.Calibrated {
		m.calibrated.Set(1)
	} else {
		m.calibrated.Set(0)
	}
}
