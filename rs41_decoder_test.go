package main

import (
	"encoding/binary"
	"math"
	"math/bits"
	"testing"
)

// Frame construction helpers. Tests build plaintext frames, compute the
// Reed-Solomon parity the way the transmitter would, then apply the
// transmit-side scrambling (the exact inverse of descramble).

// appendTestSubrecord appends one sub-record with a valid checksum.
func appendTestSubrecord(data []byte, typ byte, payload []byte) []byte {
	data = append(data, typ, byte(len(payload)))
	data = append(data, payload...)
	data = binary.LittleEndian.AppendUint16(data, crc16(payload))
	return data
}

func testStatusPayload(seq uint16, serial string, fragIndex int, fragData []byte) []byte {
	payload := make([]byte, rs41StatusLen)
	binary.LittleEndian.PutUint16(payload[rs41StatusSeqOffset:], seq)
	copy(payload[rs41StatusSerialOff:], serial)
	payload[rs41StatusFragOffset] = byte(fragIndex)
	copy(payload[rs41StatusFragData:], fragData)
	return payload
}

func testGPSPosPayload(x, y, z, dx, dy, dz float64) []byte {
	payload := make([]byte, rs41GPSPosLen)
	binary.LittleEndian.PutUint32(payload[0:], uint32(int32(math.Round(x*100))))
	binary.LittleEndian.PutUint32(payload[4:], uint32(int32(math.Round(y*100))))
	binary.LittleEndian.PutUint32(payload[8:], uint32(int32(math.Round(z*100))))
	binary.LittleEndian.PutUint16(payload[12:], uint16(int16(math.Round(dx*100))))
	binary.LittleEndian.PutUint16(payload[14:], uint16(int16(math.Round(dy*100))))
	binary.LittleEndian.PutUint16(payload[16:], uint16(int16(math.Round(dz*100))))
	payload[18] = 8 // satellites used
	return payload
}

// buildTestFrame assembles a plaintext frame around the given data region,
// fills in the Reed-Solomon parity, and returns the scrambled frame ready
// for Decoder.Decode.
func buildTestFrame(t *testing.T, flag byte, data []byte) []byte {
	t.Helper()

	frame := make([]byte, rs41FrameLen)
	binary.BigEndian.PutUint64(frame[0:], rs41SyncWord)
	frame[rs41FlagOffset] = flag
	if len(data) > rs41DataLen+rs41XDataLen {
		t.Fatalf("data region too large: %d", len(data))
	}
	copy(frame[rs41DataOffset:], data)

	// Transmit-side FEC over the coded region (flag byte + data).
	rs, err := newReedSolomon(rs41RSPoly, rs41RSFirstRoot, rs41RSRootGap, rs41RSParity)
	if err != nil {
		t.Fatalf("failed to build codec: %v", err)
	}
	coded := frame[rs41FlagOffset:]
	chunkLen := (rs41DataLen + 1) / rs41RSInterleave
	if flag == rs41FlagExtended {
		chunkLen = rs41RSDataLen
	}
	var codeword [rs41RSCodewordLen]byte
	for block := 0; block < rs41RSInterleave; block++ {
		for i := range codeword {
			codeword[i] = 0
		}
		for i := 0; i < chunkLen; i++ {
			codeword[i] = coded[rs41RSInterleave*i+block]
		}
		rs.encode(codeword[:])
		for i := 0; i < rs41RSParity; i++ {
			frame[rs41ParityOffset+rs41RSParity*block+i] = codeword[rs41RSDataLen+i]
		}
	}

	scramble(frame)
	return frame
}

// scramble applies the transmit-side whitening, the inverse of descramble.
func scramble(frame []byte) {
	for i, b := range frame {
		frame[i] = bits.Reverse8(0xFF ^ b ^ rs41PRN[i%len(rs41PRN)])
	}
}

// collectRecords returns a decoder whose handler appends to the returned
// slice pointer.
func collectRecords() (*Decoder, *[]*Telemetry) {
	records := &[]*Telemetry{}
	d := NewDecoder(func(rec *Telemetry) {
		*records = append(*records, rec)
	})
	return d, records
}

func TestDescrambleInvolution(t *testing.T) {
	plain := make([]byte, rs41FrameLen)
	for i := range plain {
		plain[i] = byte(i * 13)
	}
	frame := append([]byte(nil), plain...)
	scramble(frame)
	descramble(frame)
	for i := range frame {
		if frame[i] != plain[i] {
			t.Fatalf("descramble mismatch at byte %d: got 0x%02X, want 0x%02X", i, frame[i], plain[i])
		}
	}
}

func TestDecodeStandardFrame(t *testing.T) {
	frag := make([]byte, rs41CalibFragSize)
	var data []byte
	data = appendTestSubrecord(data, rs41TypeStatus, testStatusPayload(1337, "T1230456", 3, frag))

	// 5 km above the equator at the prime meridian, drifting east and up.
	x, y, z := geodeticToECEF(0, 0, 5000)
	data = appendTestSubrecord(data, rs41TypeGPSPos, testGPSPosPayload(x, y, z, 1.5, 12.0, 0))

	d, records := collectRecords()
	d.Decode(buildTestFrame(t, rs41FlagStandard, data))

	if len(*records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(*records))
	}
	rec := (*records)[0]
	if rec.Serial != "T1230456" {
		t.Fatalf("serial: got %q", rec.Serial)
	}
	if rec.Seq != 1337 {
		t.Fatalf("seq: got %d, want 1337", rec.Seq)
	}
	if !rec.Corrected {
		t.Fatalf("clean frame flagged as uncorrected")
	}
	if !rec.HasFix {
		t.Fatalf("GPS position not decoded")
	}
	if math.Abs(rec.Latitude) > 1e-5 || math.Abs(rec.Longitude) > 1e-5 {
		t.Fatalf("position: got %f/%f, want 0/0", rec.Latitude, rec.Longitude)
	}
	if math.Abs(rec.Altitude-5000) > 1.0 {
		t.Fatalf("altitude: got %f, want 5000", rec.Altitude)
	}
	// At 0N 0E the ECEF Y axis points east and X up.
	if math.Abs(rec.Speed-12.0) > 0.1 {
		t.Fatalf("speed: got %f, want 12", rec.Speed)
	}
	if math.Abs(rec.Heading-90.0) > 0.5 {
		t.Fatalf("heading: got %f, want 90", rec.Heading)
	}
	if math.Abs(rec.Climb-1.5) > 0.1 {
		t.Fatalf("climb: got %f, want 1.5", rec.Climb)
	}
	if rec.Calibrated {
		t.Fatalf("calibrated after a single fragment")
	}
	if d.Calibration().FragmentsSeen() != 1 {
		t.Fatalf("expected 1 calibration fragment, got %d", d.Calibration().FragmentsSeen())
	}
}

func TestDecodeCorrectsChannelErrors(t *testing.T) {
	x, y, z := geodeticToECEF(0, 0, 5000)
	var data []byte
	data = appendTestSubrecord(data, rs41TypeGPSPos, testGPSPosPayload(x, y, z, 0, 5.0, 0))

	frame := buildTestFrame(t, rs41FlagStandard, data)
	// Flip a dozen bytes inside the coded region (but not the flag byte).
	for i := 0; i < 12; i++ {
		frame[rs41DataOffset+3+i] ^= 0x5A
	}

	d, records := collectRecords()
	d.Decode(frame)

	rec := (*records)[0]
	if !rec.Corrected {
		t.Fatalf("correctable frame flagged as uncorrected")
	}
	if !rec.HasFix {
		t.Fatalf("GPS position lost to correctable errors")
	}
	if math.Abs(rec.Altitude-5000) > 1.0 {
		t.Fatalf("altitude after correction: got %f", rec.Altitude)
	}
}

func TestDecodeFlagsUncorrectableFrame(t *testing.T) {
	x, y, z := geodeticToECEF(10, 20, 8000)
	var data []byte
	data = appendTestSubrecord(data, rs41TypeGPSPos, testGPSPosPayload(x, y, z, 0, 0, 0))

	frame := buildTestFrame(t, rs41FlagStandard, data)
	// Overwhelm block 0 with errors in the zero padding of the data
	// region, away from the sub-record bytes.
	for i := 0; i < 20; i++ {
		frame[rs41DataOffset+100+2*i] ^= 0xFF
	}

	d, records := collectRecords()
	d.Decode(frame)

	if len(*records) != 1 {
		t.Fatalf("uncorrectable frame must still produce a record")
	}
	rec := (*records)[0]
	if rec.Corrected {
		t.Fatalf("frame with >T errors reported as corrected")
	}
	// The sub-record bytes themselves were untouched, parsing proceeds
	// best-effort.
	if !rec.HasFix {
		t.Fatalf("intact sub-record discarded on FEC failure")
	}
}

func TestDecodeSkipsBadChecksum(t *testing.T) {
	frag := make([]byte, rs41CalibFragSize)
	var data []byte
	data = appendTestSubrecord(data, rs41TypeStatus, testStatusPayload(7, "T1230456", 0, frag))
	gpsStart := len(data)
	x, y, z := geodeticToECEF(0, 0, 1000)
	data = appendTestSubrecord(data, rs41TypeGPSPos, testGPSPosPayload(x, y, z, 0, 0, 0))
	// Corrupt the GPS sub-record's stored checksum.
	data[gpsStart+2+rs41GPSPosLen] ^= 0xFF

	d, records := collectRecords()
	d.Decode(buildTestFrame(t, rs41FlagStandard, data))

	rec := (*records)[0]
	if rec.HasFix {
		t.Fatalf("sub-record with bad checksum was dispatched")
	}
	if rec.Serial != "T1230456" {
		t.Fatalf("walk did not continue past bad checksum: serial=%q", rec.Serial)
	}
}

func TestDecodeStopsAtMalformedLength(t *testing.T) {
	frag := make([]byte, rs41CalibFragSize)
	var data []byte
	data = appendTestSubrecord(data, rs41TypeStatus, testStatusPayload(7, "T1230456", 0, frag))
	// A declared span that runs past the end of the data region.
	data = append(data, rs41TypeXData, 0xFF)

	d, records := collectRecords()
	d.Decode(buildTestFrame(t, rs41FlagStandard, data))

	rec := (*records)[0]
	if rec.Serial != "T1230456" {
		t.Fatalf("records before the malformed length were lost")
	}
}

func TestDecodeExtendedFrame(t *testing.T) {
	frag := make([]byte, rs41CalibFragSize)
	var data []byte
	data = appendTestSubrecord(data, rs41TypeStatus, testStatusPayload(9, "T1230456", 1, frag))
	// Pad past the standard data length so the GPS record lands in the
	// extended region.
	for len(data) < rs41DataLen+20 {
		data = appendTestSubrecord(data, rs41TypeXData, make([]byte, 124))
	}
	// At 0N 0E the ECEF X axis points up, so a descent is a negative X
	// velocity.
	x, y, z := geodeticToECEF(0, 0, 30000)
	data = appendTestSubrecord(data, rs41TypeGPSPos, testGPSPosPayload(x, y, z, -20.0, 0, 0))

	d, records := collectRecords()
	d.Decode(buildTestFrame(t, rs41FlagExtended, data))

	rec := (*records)[0]
	if !rec.Corrected {
		t.Fatalf("clean extended frame flagged as uncorrected")
	}
	if !rec.HasFix {
		t.Fatalf("sub-record in extended region not decoded")
	}
	if math.Abs(rec.Altitude-30000) > 1.0 {
		t.Fatalf("altitude: got %f, want 30000", rec.Altitude)
	}
	if math.Abs(rec.Climb+20.0) > 0.1 {
		t.Fatalf("climb: got %f, want -20", rec.Climb)
	}
}

func TestDecodeSerialPersistsAcrossFrames(t *testing.T) {
	frag := make([]byte, rs41CalibFragSize)
	var first []byte
	first = appendTestSubrecord(first, rs41TypeStatus, testStatusPayload(1, "T1230456", 0, frag))

	x, y, z := geodeticToECEF(0, 0, 2000)
	var second []byte
	second = appendTestSubrecord(second, rs41TypeGPSPos, testGPSPosPayload(x, y, z, 0, 0, 0))

	d, records := collectRecords()
	d.Decode(buildTestFrame(t, rs41FlagStandard, first))
	d.Decode(buildTestFrame(t, rs41FlagStandard, second))

	rec := (*records)[1]
	if rec.Serial != "T1230456" {
		t.Fatalf("serial did not persist: got %q", rec.Serial)
	}
	// Everything else is a per-frame snapshot.
	if rec.Seq != 0 {
		t.Fatalf("sequence carried over between frames: %d", rec.Seq)
	}
	if !rec.HasFix {
		t.Fatalf("GPS position not decoded in second frame")
	}
}

func TestDecodeAssemblesCalibration(t *testing.T) {
	d, records := collectRecords()

	burstFrag := rs41CalibBurstKillOffset / rs41CalibFragSize
	burstOff := rs41CalibBurstKillOffset % rs41CalibFragSize

	for i := 0; i < rs41CalibFragCount; i++ {
		frag := make([]byte, rs41CalibFragSize)
		if i == burstFrag {
			binary.LittleEndian.PutUint16(frag[burstOff:], 4200)
		}
		var data []byte
		data = appendTestSubrecord(data, rs41TypeStatus, testStatusPayload(uint16(i), "T1230456", i, frag))
		d.Decode(buildTestFrame(t, rs41FlagStandard, data))
	}

	if n := len(*records); n != rs41CalibFragCount {
		t.Fatalf("expected %d records, got %d", rs41CalibFragCount, n)
	}
	last := (*records)[rs41CalibFragCount-1]
	if !last.Calibrated {
		t.Fatalf("decoder not calibrated after all fragments")
	}
	if last.BurstKill != 4200 {
		t.Fatalf("burst-kill timer: got %d, want 4200", last.BurstKill)
	}
	if (*records)[10].Calibrated {
		t.Fatalf("calibrated too early")
	}
}

func TestDecodeRejectsWrongFrameLength(t *testing.T) {
	d, records := collectRecords()
	d.Decode(make([]byte, 100))
	if len(*records) != 0 {
		t.Fatalf("handler invoked for a wrong-length frame")
	}
}
