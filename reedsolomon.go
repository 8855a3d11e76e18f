package main

import (
	"errors"
	"fmt"
)

// Reed-Solomon codec over GF(2^8) with configurable generator, following
// the classic Berlekamp-Massey / Chien / Forney structure of Phil Karn's
// reference decoder. Codewords are always full-length (255 symbols); the
// caller zero-fills unused data positions of shortened codes.

var errRSUncorrectable = errors.New("reed-solomon: uncorrectable codeword")

type reedSolomon struct {
	nroots int // parity symbols per codeword
	fcr    int // first consecutive root, index form
	prim   int // primitive element, index form
	iprim  int // prim^-1 mod 255

	alphaTo [256]byte // index -> polynomial form
	indexOf [256]byte // polynomial -> index form
	genpoly []byte    // generator polynomial, index form
}

const (
	rsN  = 255
	rsA0 = 255 // index-form representation of zero
)

// newReedSolomon builds the codec tables for the field defined by gfpoly.
// nroots parity symbols correct up to nroots/2 symbol errors.
func newReedSolomon(gfpoly, fcr, prim, nroots int) (*reedSolomon, error) {
	if nroots <= 0 || nroots >= rsN {
		return nil, fmt.Errorf("reed-solomon: invalid parity count %d", nroots)
	}
	rs := &reedSolomon{nroots: nroots, fcr: fcr, prim: prim}

	// Generate the Galois field lookup tables.
	rs.indexOf[0] = rsA0
	rs.alphaTo[rsA0] = 0
	sr := 1
	for i := 0; i < rsN; i++ {
		rs.indexOf[sr] = byte(i)
		rs.alphaTo[i] = byte(sr)
		sr <<= 1
		if sr&0x100 != 0 {
			sr ^= gfpoly
		}
		sr &= 0xFF
	}
	if sr != 1 {
		return nil, fmt.Errorf("reed-solomon: 0x%x is not a primitive polynomial", gfpoly)
	}

	// Find prim-th root of 1, used in the Chien search to map roots back
	// to error locations.
	iprim := 1
	for ; iprim%prim != 0; iprim += rsN {
	}
	rs.iprim = iprim / prim

	// Form the generator polynomial, kept in index form.
	rs.genpoly = make([]byte, nroots+1)
	rs.genpoly[0] = 1
	for i, root := 0, fcr*prim; i < nroots; i, root = i+1, root+prim {
		rs.genpoly[i+1] = 1
		for j := i; j > 0; j-- {
			if rs.genpoly[j] != 0 {
				rs.genpoly[j] = rs.genpoly[j-1] ^ rs.alphaTo[rs.modN(int(rs.indexOf[rs.genpoly[j]])+root)]
			} else {
				rs.genpoly[j] = rs.genpoly[j-1]
			}
		}
		rs.genpoly[0] = rs.alphaTo[rs.modN(int(rs.indexOf[rs.genpoly[0]])+root)]
	}
	for i := range rs.genpoly {
		rs.genpoly[i] = rs.indexOf[rs.genpoly[i]]
	}
	return rs, nil
}

// modN reduces a non-negative integer modulo 255.
func (rs *reedSolomon) modN(x int) int {
	for x >= rsN {
		x -= rsN
		x = (x >> 8) + (x & rsN)
	}
	return x
}

// encode computes the parity of codeword[:255-nroots] and stores it in the
// trailing nroots bytes of codeword.
func (rs *reedSolomon) encode(codeword []byte) {
	data := codeword[:rsN-rs.nroots]
	parity := codeword[rsN-rs.nroots:]
	for i := range parity {
		parity[i] = 0
	}
	for _, d := range data {
		feedback := int(rs.indexOf[d^parity[0]])
		if feedback != rsA0 {
			for j := 1; j < rs.nroots; j++ {
				parity[j] ^= rs.alphaTo[rs.modN(feedback+int(rs.genpoly[rs.nroots-j]))]
			}
		}
		copy(parity, parity[1:])
		if feedback != rsA0 {
			parity[rs.nroots-1] = rs.alphaTo[rs.modN(feedback+int(rs.genpoly[0]))]
		} else {
			parity[rs.nroots-1] = 0
		}
	}
}

// decode corrects codeword (255 bytes, data followed by parity) in place
// and returns the number of corrected symbols. It returns
// errRSUncorrectable when more than nroots/2 symbols are in error.
func (rs *reedSolomon) decode(codeword []byte) (int, error) {
	if len(codeword) != rsN {
		return 0, fmt.Errorf("reed-solomon: codeword length %d, want %d", len(codeword), rsN)
	}
	nroots := rs.nroots
	syn := make([]int, nroots)

	// Form the syndromes, evaluating the received polynomial at the roots
	// of the generator.
	for i := range syn {
		syn[i] = int(codeword[0])
	}
	for j := 1; j < rsN; j++ {
		for i := 0; i < nroots; i++ {
			if syn[i] == 0 {
				syn[i] = int(codeword[j])
			} else {
				syn[i] = int(codeword[j]) ^ int(rs.alphaTo[rs.modN(int(rs.indexOf[syn[i]])+(rs.fcr+i)*rs.prim)])
			}
		}
	}
	synError := 0
	for i := range syn {
		synError |= syn[i]
		syn[i] = int(rs.indexOf[syn[i]])
	}
	if synError == 0 {
		return 0, nil
	}

	// Berlekamp-Massey: find the error locator polynomial lambda.
	lambda := make([]int, nroots+1) // polynomial form
	lambda[0] = 1
	b := make([]int, nroots+1) // index form
	t := make([]int, nroots+1)
	for i := range b {
		b[i] = int(rs.indexOf[lambda[i]])
	}
	el := 0
	for r := 1; r <= nroots; r++ {
		discr := 0
		for i := 0; i < r; i++ {
			if lambda[i] != 0 && syn[r-i-1] != rsA0 {
				discr ^= int(rs.alphaTo[rs.modN(int(rs.indexOf[lambda[i]])+syn[r-i-1])])
			}
		}
		if discr == 0 {
			copy(b[1:], b[:nroots])
			b[0] = rsA0
			continue
		}
		discrIdx := int(rs.indexOf[discr])
		t[0] = lambda[0]
		for i := 0; i < nroots; i++ {
			if b[i] != rsA0 {
				t[i+1] = lambda[i+1] ^ int(rs.alphaTo[rs.modN(discrIdx+b[i])])
			} else {
				t[i+1] = lambda[i+1]
			}
		}
		if 2*el <= r-1 {
			el = r - el
			for i := 0; i <= nroots; i++ {
				if lambda[i] == 0 {
					b[i] = rsA0
				} else {
					b[i] = rs.modN(int(rs.indexOf[lambda[i]]) - discrIdx + rsN)
				}
			}
		} else {
			copy(b[1:], b[:nroots])
			b[0] = rsA0
		}
		copy(lambda, t)
	}

	// Convert lambda to index form and compute its degree.
	degLambda := 0
	for i := range lambda {
		lambda[i] = int(rs.indexOf[lambda[i]])
		if lambda[i] != rsA0 {
			degLambda = i
		}
	}

	// Chien search: find the roots of lambda.
	reg := make([]int, nroots+1)
	copy(reg[1:], lambda[1:])
	roots := make([]int, 0, degLambda)
	locs := make([]int, 0, degLambda)
	for i, k := 1, rs.iprim-1; i <= rsN; i, k = i+1, rs.modN(k+rs.iprim) {
		q := 1
		for j := degLambda; j > 0; j-- {
			if reg[j] != rsA0 {
				reg[j] = rs.modN(reg[j] + j)
				q ^= int(rs.alphaTo[reg[j]])
			}
		}
		if q != 0 {
			continue
		}
		roots = append(roots, i)
		locs = append(locs, k)
		if len(roots) == degLambda {
			break
		}
	}
	if len(roots) != degLambda {
		return 0, errRSUncorrectable
	}

	// Compute the error evaluator polynomial omega = syn*lambda mod x^nroots.
	degOmega := degLambda - 1
	omega := make([]int, degOmega+1)
	for i := 0; i <= degOmega; i++ {
		tmp := 0
		for j := i; j >= 0; j-- {
			if syn[i-j] != rsA0 && lambda[j] != rsA0 {
				tmp ^= int(rs.alphaTo[rs.modN(syn[i-j]+lambda[j])])
			}
		}
		omega[i] = int(rs.indexOf[tmp])
	}

	// Forney: compute error magnitudes and apply them.
	for j := len(roots) - 1; j >= 0; j-- {
		num1 := 0
		for i := degOmega; i >= 0; i-- {
			if omega[i] != rsA0 {
				num1 ^= int(rs.alphaTo[rs.modN(omega[i]+i*roots[j])])
			}
		}
		num2 := int(rs.alphaTo[rs.modN(roots[j]*(rs.fcr-1)+rsN)])
		den := 0
		start := degLambda
		if start > nroots-1 {
			start = nroots - 1
		}
		for i := start &^ 1; i >= 0; i -= 2 {
			if lambda[i+1] != rsA0 {
				den ^= int(rs.alphaTo[rs.modN(lambda[i+1]+i*roots[j])])
			}
		}
		if den == 0 {
			return 0, errRSUncorrectable
		}
		if num1 != 0 {
			codeword[locs[j]] ^= rs.alphaTo[rs.modN(int(rs.indexOf[num1])+int(rs.indexOf[num2])+rsN-int(rs.indexOf[den]))]
		}
	}
	return len(roots), nil
}
