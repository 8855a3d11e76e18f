package main

import (
	"math/bits"
)

// Framer recovers byte-aligned fixed-length frames from an unaligned,
// possibly polarity-inverted bitstream. Bytes are pushed in with Submit in
// chunks of any size; the framer buffers partial frames between calls and
// never drops a bit. Each instance is a plain state machine, it must be
// driven by a single caller at a time.
//
// Frame boundaries are found by sliding the sync pattern across a buffered
// frame one bit at a time and keeping the offset with the smallest Hamming
// distance, checking both the pattern and its bitwise inverse to resolve
// the polarity ambiguity of FSK demodulators.

type framerState int

const (
	// framerRead accumulates bits until a full frame is buffered, then
	// correlates to find the sync offset.
	framerRead framerState = iota
	// framerDeoffset accumulates the extra bits needed to complete a frame
	// once shifted left by the sync offset, then emits it.
	framerDeoffset
)

type Framer struct {
	syncWord uint64
	syncLen  int // sync pattern length in bytes
	syncBits int
	frameLen int // frame length in bytes

	state    framerState
	raw      []byte // accumulator, 2*frameLen bytes plus shift spill
	bitCount int    // valid bits in raw
	offset   int    // winning sync offset in bits, valid in framerDeoffset
	inverted bool   // winning correlation was against the inverted pattern
}

// NewFramer creates a framer for frameLen-byte frames starting with the
// low syncLen bytes of syncWord.
func NewFramer(syncWord uint64, syncLen, frameLen int) *Framer {
	return &Framer{
		syncWord: syncWord,
		syncLen:  syncLen,
		syncBits: 8 * syncLen,
		frameLen: frameLen,
		raw:      make([]byte, 2*frameLen+1),
	}
}

// Reset drops all buffered bits and returns to the read state. Any
// in-flight partial frame is lost.
func (f *Framer) Reset() {
	f.state = framerRead
	f.bitCount = 0
	f.offset = 0
	f.inverted = false
}

// BufferedBits returns the number of bits currently held between calls.
func (f *Framer) BufferedBits() int {
	return f.bitCount
}

// LastSync returns the bit offset and inversion flag of the most recent
// sync correlation.
func (f *Framer) LastSync() (offset int, inverted bool) {
	return f.offset, f.inverted
}

// Submit appends p to the accumulator and returns the aligned frames that
// became available, in order. Frames are emitted in true polarity: if the
// sync matched the inverted pattern, the frame bits are flipped back.
func (f *Framer) Submit(p []byte) [][]byte {
	var frames [][]byte

	for {
		switch f.state {
		case framerRead:
			// Buffer a frame's worth of bits.
			if need := f.frameLen - f.bitCount/8; need > 0 {
				n := need
				if n > len(p) {
					n = len(p)
				}
				f.appendBytes(p[:n])
				p = p[n:]
			}
			if f.bitCount < 8*f.frameLen {
				return frames
			}
			f.offset, f.inverted = f.correlate(f.raw[:f.frameLen])
			f.state = framerDeoffset

		case framerDeoffset:
			// Buffer enough extra bits to undo the offset.
			if need := f.frameLen - (f.bitCount-f.offset)/8; need > 0 {
				n := need
				if n > len(p) {
					n = len(p)
				}
				f.appendBytes(p[:n])
				p = p[n:]
			}
			if f.bitCount-f.offset < 8*f.frameLen {
				return frames
			}

			frame := make([]byte, f.frameLen)
			copyBits(frame, f.raw, f.offset, 8*f.frameLen)
			if f.inverted {
				for i := range frame {
					frame[i] ^= 0xFF
				}
			}
			frames = append(frames, frame)

			// Keep the bits beyond the emitted frame as the seed of the
			// next read cycle.
			leftover := f.bitCount - f.offset - 8*f.frameLen
			copyBits(f.raw, f.raw, f.offset+8*f.frameLen, leftover)
			f.bitCount = leftover
			f.state = framerRead
		}
	}
}

// correlate slides an 8*syncLen-bit window across buf and returns the bit
// offset with the smallest Hamming distance to the sync pattern, together
// with whether the winner matched the bitwise-inverted pattern. Ties keep
// the earliest offset; an exact match at offset 0 short-circuits.
func (f *Framer) correlate(buf []byte) (int, bool) {
	mask := ^uint64(0)
	if f.syncLen < 8 {
		mask = 1<<uint(f.syncBits) - 1
	}
	sync := f.syncWord & mask

	var window uint64
	for i := 0; i < f.syncLen; i++ {
		window = window<<8 | uint64(buf[i])
	}

	best := bits.OnesCount64((window ^ sync) & mask)
	if best == 0 {
		return 0, false
	}
	bestOffset := 0
	inverted := false

	for i := 0; i < len(buf)-f.syncLen; i++ {
		b := buf[f.syncLen+i]
		for j := 0; j < 8; j++ {
			corr := bits.OnesCount64((window ^ sync) & mask)
			if corr < best {
				best = corr
				bestOffset = 8*i + j
				inverted = false
			}
			if inv := f.syncBits - corr; inv < best {
				best = inv
				bestOffset = 8*i + j
				inverted = true
			}
			if best == 0 {
				return bestOffset, inverted
			}
			window = window<<1 | uint64(b>>(7-j))&1
		}
	}
	return bestOffset, inverted
}

// appendBytes packs p into the accumulator at the current bit cursor.
func (f *Framer) appendBytes(p []byte) {
	byteOff := f.bitCount / 8
	shift := uint(f.bitCount % 8)
	if shift == 0 {
		copy(f.raw[byteOff:], p)
	} else {
		for _, b := range p {
			f.raw[byteOff] = f.raw[byteOff]&^(0xFF>>shift) | b>>shift
			f.raw[byteOff+1] = b << (8 - shift)
			byteOff++
		}
	}
	f.bitCount += 8 * len(p)
}

// copyBits copies n bits of src starting at bit srcOff into dst starting
// at bit 0. It is safe for dst and src to overlap when srcOff > 0 and dst
// begins at or before src.
func copyBits(dst, src []byte, srcOff, n int) {
	if n <= 0 {
		return
	}
	byteOff := srcOff / 8
	shift := uint(srcOff % 8)
	outLen := (n + 7) / 8
	if shift == 0 {
		copy(dst[:outLen], src[byteOff:byteOff+outLen])
		return
	}
	for i := 0; i < outLen; i++ {
		dst[i] = src[byteOff+i]<<shift | src[byteOff+i+1]>>(8-shift)
	}
}
