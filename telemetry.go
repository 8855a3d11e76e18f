package main

import (
	"time"
)

// Telemetry is the decoded output of one RS41 frame. A fresh record is
// built per frame: fields not covered by that frame's sub-records stay at
// their zero values, except Serial, BurstKill and Calibrated which are
// carried in the decoder's persistent state.
type Telemetry struct {
	Time time.Time `json:"time"`

	// Identity
	Serial    string `json:"serial"`
	Seq       uint16 `json:"seq"`
	BurstKill int    `json:"burstkill"` // frames until shutdown, -1 = disabled

	// Position, WGS84
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Altitude  float64 `json:"altitude"`
	Locator   string  `json:"locator,omitempty"` // Maidenhead grid square

	// Range from the configured station position, when one is set
	RangeKm float64 `json:"range_km,omitempty"`
	Bearing float64 `json:"bearing,omitempty"` // degrees from north

	// Velocity
	Speed   float64 `json:"speed"`   // ground speed, m/s
	Heading float64 `json:"heading"` // degrees from north
	Climb   float64 `json:"climb"`   // m/s

	// Sensor values. PTU sub-record decoding is not implemented, these
	// stay zero but keep the point sink schema satisfiable.
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	DewPoint    float64 `json:"dew_point"`
	Pressure    float64 `json:"pressure"`

	// Quality
	Calibrated bool `json:"calibrated"` // full calibration record assembled
	Corrected  bool `json:"corrected"`  // every RS block decoded cleanly
	HasFix     bool `json:"has_fix"`    // frame carried a GPS position
}
