package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"sync"
)

// PointLogger appends decoded points to a CSV file, one row per frame.
// The column layout is the historical sonde-logging format and must not
// change: consumers key on the exact header below.
type PointLogger struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

var pointLogHeader = []string{
	"Epoch", "Temperature", "Relative humidity", "Dew point",
	"Pressure", "Latitude", "Longitude", "Altitude",
}

// NewPointLogger opens (or creates) the CSV file, writing the header row
// only when the file starts out empty.
func NewPointLogger(path string) (*PointLogger, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open point log: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat point log: %w", err)
	}

	l := &PointLogger{
		file:   file,
		writer: csv.NewWriter(file),
	}
	if info.Size() == 0 {
		if err := l.writer.Write(pointLogHeader); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to write point log header: %w", err)
		}
		l.writer.Flush()
	}
	return l, nil
}

// AddPoint writes one record and flushes it to disk
func (l *PointLogger) AddPoint(rec *Telemetry) error {
	row := []string{
		fmt.Sprintf("%d", rec.Time.Unix()),
		fmt.Sprintf("%.1f", rec.Temperature),
		fmt.Sprintf("%.1f", rec.Humidity),
		fmt.Sprintf("%.1f", rec.DewPoint),
		fmt.Sprintf("%.1f", rec.Pressure),
		fmt.Sprintf("%.6f", rec.Latitude),
		fmt.Sprintf("%.6f", rec.Longitude),
		fmt.Sprintf("%.1f", rec.Altitude),
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.writer.Write(row); err != nil {
		return err
	}
	l.writer.Flush()
	return l.writer.Error()
}

// Close flushes and closes the underlying file
func (l *PointLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writer.Flush()
	return l.file.Close()
}
