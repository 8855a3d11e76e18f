package main

import (
	"encoding/binary"
)

// RS41 Frame Format Documentation
// ===============================
//
// A Vaisala RS41 radiosonde transmits one fixed-length frame per second.
// After descrambling, every frame has the following layout. The framer
// always works with the maximum (extended) frame length; standard frames
// simply carry the tail of the next frame in the unused region.
//
// FRAME LAYOUT (518 bytes):
// -------------------------
// Offset | Size | Description
// -------|------|-----------------------------------------------------------
// 0      | 8    | Sync word: 0x086D53884469481F
// 8      | 48   | Reed-Solomon parity, 24 bytes per interleaved block
// 56     | 1    | Frame type: 0x0F = standard, 0xF0 = extended
// 57     | 263  | Data region (standard frames)
// 57     | 461  | Data region (extended frames, 263 + 198 XDATA bytes)
//
// The Reed-Solomon code protects the frame type byte plus the data region
// as two interleaved RS(255,231) codewords over GF(2^8) with polynomial
// 0x11D, first root 0 and root gap 1. Block b is made of every second coded
// byte starting at b. Standard frames fill only 132 symbols per block; the
// remaining data symbols are zero for decoding purposes.
//
// SUB-RECORD LAYOUT (inside the data region):
// -------------------------------------------
// Offset | Size | Description
// -------|------|-----------------------------------------------------------
// 0      | 1    | Type
// 1      | 1    | Payload length N
// 2      | N    | Payload
// 2+N    | 2    | CRC-16/CCITT-FALSE over the payload, little-endian

const (
	rs41SyncWord uint64 = 0x086D53884469481F
	rs41SyncLen         = 8
	rs41FrameLen        = 518

	rs41ParityOffset = 8
	rs41FlagOffset   = 56
	rs41DataOffset   = 57
	rs41DataLen      = 263
	rs41XDataLen     = 198

	rs41FlagStandard = 0x0F
	rs41FlagExtended = 0xF0

	// Reed-Solomon code parameters.
	rs41RSPoly        = 0x11D
	rs41RSFirstRoot   = 0
	rs41RSRootGap     = 1
	rs41RSParity      = 24 // parity symbols per block, corrects up to 12
	rs41RSInterleave  = 2
	rs41RSCodewordLen = 255
	rs41RSDataLen     = rs41RSCodewordLen - rs41RSParity // 231

	// Sub-record framing overhead: type + length + 2 CRC bytes.
	rs41SubrecordOverhead = 4
)

// Sub-record types
const (
	rs41TypeStatus  = 0x79
	rs41TypePTU     = 0x7A
	rs41TypeGPSPos  = 0x7B
	rs41TypeGPSInfo = 0x7C
	rs41TypeGPSRaw  = 0x7D
	rs41TypeXData   = 0x7E
	rs41TypeEmpty   = 0x76
)

// Calibration record parameters. The full record is transmitted as 51
// fragments of 16 bytes each, one per STATUS sub-record.
const (
	rs41CalibFragCount = 51
	rs41CalibFragSize  = 16
	rs41CalibLen       = rs41CalibFragCount * rs41CalibFragSize

	// Burst-kill frame countdown inside the assembled calibration record,
	// little-endian uint16, 0xFFFF when the burst-kill timer is disabled.
	rs41CalibBurstKillOffset = 0x316
	rs41BurstKillDisabled    = 0xFFFF
)

// STATUS sub-record payload layout (40 bytes)
// -------------------------------------------
// Offset | Size | Description
// -------|------|-----------------------------------------------------------
// 0      | 2    | Frame sequence number (little-endian)
// 2      | 8    | Serial number, ASCII
// 10     | 13   | Battery voltage, flight status, TX power (unused here)
// 23     | 1    | Calibration fragment index
// 24     | 16   | Calibration fragment data
const (
	rs41StatusLen        = 40
	rs41StatusSeqOffset  = 0
	rs41StatusSerialOff  = 2
	rs41StatusSerialLen  = 8
	rs41StatusFragOffset = 23
	rs41StatusFragData   = 24
)

// GPSPOS sub-record payload layout (21 bytes)
// -------------------------------------------
// Offset | Size | Description
// -------|------|-----------------------------------------------------------
// 0      | 4    | ECEF X, int32 little-endian, 1/100 m
// 4      | 4    | ECEF Y, int32 little-endian, 1/100 m
// 8      | 4    | ECEF Z, int32 little-endian, 1/100 m
// 12     | 2    | ECEF velocity X, int16 little-endian, 1/100 m/s
// 14     | 2    | ECEF velocity Y, int16 little-endian, 1/100 m/s
// 16     | 2    | ECEF velocity Z, int16 little-endian, 1/100 m/s
// 18     | 1    | Satellites used
// 19     | 2    | Velocity accuracy estimate, PDOP (unused here)
const (
	rs41GPSPosLen = 21
)

// subrecord is a bounds-checked view of one sub-record inside a decoded
// data region. The payload references the frame buffer, it is only valid
// until the next frame is decoded.
type subrecord struct {
	typ     byte
	payload []byte
	crc     uint16
}

// parseSubrecord reads the sub-record starting at data[offset]. It returns
// the record, the offset of the next record, and false when the declared
// span does not fit in the data region.
func parseSubrecord(data []byte, offset int) (subrecord, int, bool) {
	if offset+2 > len(data) {
		return subrecord{}, 0, false
	}
	length := int(data[offset+1])
	next := offset + length + rs41SubrecordOverhead
	if next > len(data) {
		return subrecord{}, 0, false
	}
	return subrecord{
		typ:     data[offset],
		payload: data[offset+2 : offset+2+length],
		crc:     binary.LittleEndian.Uint16(data[offset+2+length:]),
	}, next, true
}

// checksumOK verifies the trailing CRC-16/CCITT-FALSE of a sub-record.
func (s subrecord) checksumOK() bool {
	return crc16(s.payload) == s.crc
}

// statusSeq returns the frame sequence counter of a STATUS payload.
func statusSeq(payload []byte) uint16 {
	return binary.LittleEndian.Uint16(payload[rs41StatusSeqOffset:])
}

// statusSerial returns the sonde serial of a STATUS payload, trimmed of
// trailing NULs.
func statusSerial(payload []byte) string {
	raw := payload[rs41StatusSerialOff : rs41StatusSerialOff+rs41StatusSerialLen]
	end := len(raw)
	for end > 0 && raw[end-1] == 0 {
		end--
	}
	return string(raw[:end])
}

// statusFragment returns the calibration fragment index and data of a
// STATUS payload.
func statusFragment(payload []byte) (int, []byte) {
	return int(payload[rs41StatusFragOffset]), payload[rs41StatusFragData : rs41StatusFragData+rs41CalibFragSize]
}

// gpsPosECEF returns the six 1/100-scaled ECEF components of a GPSPOS
// payload in meters and meters per second.
func gpsPosECEF(payload []byte) (x, y, z, dx, dy, dz float64) {
	x = float64(int32(binary.LittleEndian.Uint32(payload[0:]))) / 100.0
	y = float64(int32(binary.LittleEndian.Uint32(payload[4:]))) / 100.0
	z = float64(int32(binary.LittleEndian.Uint32(payload[8:]))) / 100.0
	dx = float64(int16(binary.LittleEndian.Uint16(payload[12:]))) / 100.0
	dy = float64(int16(binary.LittleEndian.Uint16(payload[14:]))) / 100.0
	dz = float64(int16(binary.LittleEndian.Uint16(payload[16:]))) / 100.0
	return
}
