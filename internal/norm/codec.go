// Package norm encodes per-document field lengths into a single byte.
//
// Lengths below 24 are stored verbatim. Larger lengths are stored as a small
// float with an implicit leading bit, three stored mantissa bits and a five bit
// exponent, offset by 24 and rounded to the nearest representable value. The
// encoding is monotone and decodes within Tolerance of the true length up to
// MaxLength; anything longer saturates to the largest code.
package norm

import (
	"math"
	"math/bits"
)

const (
	// numFree is the number of codes that store a length verbatim.
	numFree = 24

	// maxInt4 is the largest small-float code that fits next to the free codes.
	maxInt4 = 255 - numFree

	// exactCodes is the number of codes that decode without loss.
	exactCodes = 40

	// Tolerance bounds the relative error of Decode(Encode(l, 1)) for l <= MaxLength.
	Tolerance = 1.0 / 16
)

// MaxLength is the longest length that still encodes within Tolerance.
var MaxLength = uint32(numFree + int4ToLong(maxInt4))

// decodeTable maps every code to its decoded length. Built once at init and
// read-only afterwards.
var decodeTable = buildDecodeTable()

func buildDecodeTable() [256]float32 {
	var table [256]float32
	for i := range table {
		table[i] = float32(decodeLength(byte(i)))
	}
	return table
}

// Encode maps a field length, scaled by 1/boost², to a norm byte.
// A boost that is not a positive number counts as 1.
func Encode(length uint32, boost float32) byte {
	scaled := uint64(length)
	switch {
	case math.IsInf(float64(boost), 1):
		scaled = 0
	case boost > 0 && boost != 1:
		v := math.Round(float64(length) / (float64(boost) * float64(boost)))
		if v >= math.MaxUint32 {
			scaled = math.MaxUint32
		} else {
			scaled = uint64(v)
		}
	}
	// a non-empty field never looks empty
	if length > 0 && scaled == 0 {
		scaled = 1
	}
	return encodeLength(scaled)
}

// Decode returns the approximate length stored in b.
func Decode(b byte) float32 {
	return decodeTable[b]
}

// DecodeLength returns the decoded length of b as an integer.
func DecodeLength(b byte) uint32 {
	return uint32(decodeLength(b))
}

// IsExact reports whether b decodes to exactly the length that produced it.
func IsExact(b byte) bool {
	return b < exactCodes
}

func encodeLength(v uint64) byte {
	if v < numFree {
		return byte(v)
	}
	code := longToInt4(v - numFree)
	if code > maxInt4 {
		code = maxInt4
	}
	return byte(numFree + code)
}

func decodeLength(b byte) uint64 {
	if b < numFree {
		return uint64(b)
	}
	return numFree + int4ToLong(int(b)-numFree)
}

// longToInt4 rounds x to the nearest value with four significant bits and
// returns its code. Ties round down. Codes above maxInt4 are returned as-is
// and clamped by the caller.
func longToInt4(x uint64) int {
	numBits := bits.Len64(x)
	if numBits < 4 {
		return int(x)
	}
	shift := numBits - 4
	mantissa := x >> shift
	if shift > 0 {
		rem := x & (1<<shift - 1)
		if rem<<1 > 1<<shift {
			mantissa++
			if mantissa == 16 {
				mantissa = 8
				shift++
			}
		}
	}
	return int(mantissa&0x07) | (shift+1)<<3
}

func int4ToLong(code int) uint64 {
	mantissa := uint64(code & 0x07)
	shift := code>>3 - 1
	if shift == -1 {
		return mantissa
	}
	return (mantissa | 0x08) << shift
}
