package main

import (
	"encoding/binary"
	"math/bits"
)

// CalibrationAssembler reassembles the RS41 calibration record from the
// 16-byte fragments carried one per STATUS sub-record. A full record takes
// 51 fragments, so completion typically needs close to a minute of
// reception. The assembler is owned by a single decoder instance and lives
// for its lifetime.
type CalibrationAssembler struct {
	data     [rs41CalibLen]byte
	missing  uint64 // one bit per fragment slot, set while missing
	complete bool
}

// NewCalibrationAssembler returns an assembler with every fragment slot
// marked missing.
func NewCalibrationAssembler() *CalibrationAssembler {
	return &CalibrationAssembler{
		missing: 1<<rs41CalibFragCount - 1,
	}
}

// ApplyFragment stores one calibration fragment. Out-of-range indices are
// ignored. Once every slot has been seen the record is complete, and stays
// complete for the lifetime of the assembler.
func (c *CalibrationAssembler) ApplyFragment(index int, data []byte) {
	if index < 0 || index >= rs41CalibFragCount || len(data) != rs41CalibFragSize {
		return
	}
	copy(c.data[index*rs41CalibFragSize:], data)
	c.missing &^= 1 << uint(index)
	if c.missing == 0 {
		c.complete = true
	}
}

// Complete reports whether every calibration fragment has been received.
func (c *CalibrationAssembler) Complete() bool {
	return c.complete
}

// FragmentsSeen returns how many of the fragment slots have been filled.
func (c *CalibrationAssembler) FragmentsSeen() int {
	return rs41CalibFragCount - bits.OnesCount64(c.missing)
}

// BurstKillTimer returns the burst-kill frame countdown from the assembled
// record, or -1 when the timer is disabled or its fragment has not been
// received yet.
func (c *CalibrationAssembler) BurstKillTimer() int {
	if c.missing&(1<<(rs41CalibBurstKillOffset/rs41CalibFragSize)) != 0 {
		return -1
	}
	v := binary.LittleEndian.Uint16(c.data[rs41CalibBurstKillOffset:])
	if v == rs41BurstKillDisabled {
		return -1
	}
	return int(v)
}

// Reset marks every fragment missing again, for reuse across flights.
func (c *CalibrationAssembler) Reset() {
	c.data = [rs41CalibLen]byte{}
	c.missing = 1<<rs41CalibFragCount - 1
	c.complete = false
}
