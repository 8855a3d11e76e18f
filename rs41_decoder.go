package main

import (
	"math/bits"
	"time"
)

// Pseudorandom whitening sequence XORed over every frame by the
// transmitter, cycling with a 64-byte period.
var rs41PRN = [64]byte{
	0x96, 0x83, 0x3E, 0x51, 0xB1, 0x49, 0x08, 0x98,
	0x32, 0x05, 0x59, 0x0E, 0xF9, 0x44, 0xC6, 0x26,
	0x21, 0x60, 0xC2, 0xEA, 0x79, 0x5D, 0x6D, 0xA1,
	0x54, 0x69, 0x47, 0x0C, 0xDC, 0xE8, 0x5C, 0xF1,
	0xF7, 0x76, 0x82, 0x7F, 0x07, 0x99, 0xA2, 0x2C,
	0x93, 0x7C, 0x30, 0x63, 0xF5, 0x10, 0x2E, 0x61,
	0xD0, 0xBC, 0xB4, 0xB6, 0x06, 0xAA, 0xF4, 0x23,
	0x78, 0x6E, 0x3B, 0xAE, 0xBF, 0x7B, 0x4C, 0xC1,
}

// Decoder turns aligned RS41 frames into telemetry records. Every call to
// Decode invokes the handler exactly once, whether or not the frame error
// corrected cleanly: the protocol's own redundancy recovers on the next
// frame, so nothing here is fatal.
//
// The decoder owns the long-lived calibration assembler and the last seen
// serial; everything else in the output record is a per-frame snapshot.
// Like the framer, an instance must be driven by one caller at a time.
type Decoder struct {
	rs      *reedSolomon
	calib   *CalibrationAssembler
	handler func(*Telemetry)
	metrics *PrometheusMetrics // optional

	serial string
}

// NewDecoder creates a decoder delivering records to handler.
func NewDecoder(handler func(*Telemetry)) *Decoder {
	// The parameters are compile-time constants of the RS41 code, table
	// generation cannot fail for them.
	rs, err := newReedSolomon(rs41RSPoly, rs41RSFirstRoot, rs41RSRootGap, rs41RSParity)
	if err != nil {
		panic(err)
	}
	return &Decoder{
		rs:      rs,
		calib:   NewCalibrationAssembler(),
		handler: handler,
	}
}

// Calibration exposes the decoder's calibration assembler, for inspection
// by metrics and status reporting.
func (d *Decoder) Calibration() *CalibrationAssembler {
	return d.calib
}

// SetMetrics attaches Prometheus collectors for per-record counters.
func (d *Decoder) SetMetrics(m *PrometheusMetrics) {
	d.metrics = m
}

// Decode descrambles and error-corrects one aligned frame, walks its
// sub-records and hands the resulting telemetry record to the handler.
// The frame buffer is modified in place.
func (d *Decoder) Decode(frame []byte) {
	if len(frame) != rs41FrameLen {
		return
	}

	descramble(frame)
	corrected := d.rsCorrect(frame)

	dataLen := rs41DataLen
	if frame[rs41FlagOffset] == rs41FlagExtended {
		dataLen += rs41XDataLen
	}
	data := frame[rs41DataOffset : rs41DataOffset+dataLen]

	rec := &Telemetry{
		Time:      time.Now().UTC(),
		Corrected: corrected,
	}

	offset := 0
	for offset < len(data) {
		sub, next, ok := parseSubrecord(data, offset)
		if !ok {
			// Malformed length: discard the rest of the region.
			break
		}
		offset = next
		if !sub.checksumOK() {
			if d.metrics != nil {
				d.metrics.subrecordsBadCRC.Inc()
			}
			continue
		}
		if d.metrics != nil {
			d.metrics.subrecordsValid.Inc()
		}
		d.dispatch(rec, sub)
	}

	// Merge persistent state into the per-frame snapshot.
	rec.Serial = d.serial
	rec.Calibrated = d.calib.Complete()
	rec.BurstKill = d.calib.BurstKillTimer()

	d.handler(rec)
}

// dispatch applies one checksum-valid sub-record to the output record.
func (d *Decoder) dispatch(rec *Telemetry, sub subrecord) {
	switch sub.typ {
	case rs41TypeStatus:
		if len(sub.payload) < rs41StatusLen {
			return
		}
		rec.Seq = statusSeq(sub.payload)
		d.serial = statusSerial(sub.payload)
		index, fragment := statusFragment(sub.payload)
		d.calib.ApplyFragment(index, fragment)

	case rs41TypeGPSPos:
		if len(sub.payload) < rs41GPSPosLen {
			return
		}
		x, y, z, dx, dy, dz := gpsPosECEF(sub.payload)
		rec.Latitude, rec.Longitude, rec.Altitude = ecefToGeodetic(x, y, z)
		rec.Speed, rec.Heading, rec.Climb = ecefVelocityToTrack(rec.Latitude, rec.Longitude, dx, dy, dz)
		rec.Locator = latLonToLocator(rec.Latitude, rec.Longitude)
		rec.HasFix = true

	case rs41TypePTU, rs41TypeGPSInfo, rs41TypeGPSRaw, rs41TypeXData, rs41TypeEmpty:
		// Recognized but not decoded.

	default:
	}
}

// descramble undoes the transmit-side whitening: per byte, reverse the bit
// order, invert, and XOR with the PRN sequence by position.
func descramble(frame []byte) {
	for i, b := range frame {
		frame[i] = 0xFF ^ bits.Reverse8(b) ^ rs41PRN[i%len(rs41PRN)]
	}
}

// rsCorrect runs the interleaved Reed-Solomon decode over the coded region
// (frame type byte plus data), scattering corrected symbols back in place.
// It reports whether every block decoded cleanly; on failure the frame
// bytes are left best-effort and parsing continues regardless.
func (d *Decoder) rsCorrect(frame []byte) bool {
	coded := frame[rs41FlagOffset:]
	parity := frame[rs41ParityOffset : rs41ParityOffset+rs41RSParity*rs41RSInterleave]

	chunkLen := (rs41DataLen + 1) / rs41RSInterleave
	if frame[rs41FlagOffset] == rs41FlagExtended {
		chunkLen = rs41RSDataLen
	}

	ok := true
	var codeword [rs41RSCodewordLen]byte
	for block := 0; block < rs41RSInterleave; block++ {
		for i := range codeword {
			codeword[i] = 0
		}

		// Deinterleave data and gather this block's parity.
		for i := 0; i < chunkLen; i++ {
			codeword[i] = coded[rs41RSInterleave*i+block]
		}
		for i := 0; i < rs41RSParity; i++ {
			codeword[rs41RSDataLen+i] = parity[rs41RSParity*block+i]
		}

		if _, err := d.rs.decode(codeword[:]); err != nil {
			ok = false
			continue
		}

		// Reinterleave the corrected symbols.
		for i := 0; i < chunkLen; i++ {
			coded[rs41RSInterleave*i+block] = codeword[i]
		}
		for i := 0; i < rs41RSParity; i++ {
			parity[rs41RSParity*block+i] = codeword[rs41RSDataLen+i]
		}
	}
	return ok
}
