// Package field converts between strings, bytes and BN254 scalar field
// elements. Values that do not fit the field are rejected; nothing in here
// reduces modulo r.
package field

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/ethereum/go-ethereum/common/math"
)

// BytesPerElement is how many message bytes are packed into one element.
// 31 bytes always stay below the 254-bit modulus.
const BytesPerElement = 31

var (
	// ErrInvalidElement is wrapped by every parse failure.
	ErrInvalidElement = errors.New("invalid field element")
	// ErrTooWide is returned when a value needs more elements or limbs than
	// the caller allows.
	ErrTooWide = errors.New("value too wide")
)

// Parse reads a 0x-prefixed hex or a decimal string.
func Parse(s string) (fr.Element, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return fr.Element{}, fmt.Errorf("%w: empty string", ErrInvalidElement)
	}
	v, ok := math.ParseBig256(s)
	if !ok {
		return fr.Element{}, fmt.Errorf("%w: %q is not a hex or decimal integer", ErrInvalidElement, s)
	}
	return FromBig(v)
}

// FromBig converts v, failing when v is negative or not below the modulus.
func FromBig(v *big.Int) (fr.Element, error) {
	var e fr.Element
	if v.Sign() < 0 || v.Cmp(fr.Modulus()) >= 0 {
		return e, fmt.Errorf("%w: %s is outside the scalar field", ErrInvalidElement, v.String())
	}
	e.SetBigInt(v)
	return e, nil
}

// Equal compares the canonical big-endian encodings of a and b.
func Equal(a, b fr.Element) bool {
	ab, bb := a.Bytes(), b.Bytes()
	return ab == bb
}

// Decimal renders e as an unsigned decimal. fr.Element.String prints values
// close to the modulus as negatives, which input files must not contain.
func Decimal(e fr.Element) string {
	return e.BigInt(new(big.Int)).String()
}

// FromUint64 is a shorthand for small values such as lengths and indices.
func FromUint64(v uint64) fr.Element {
	var e fr.Element
	e.SetUint64(v)
	return e
}

// PackBytes packs b into exactly n elements, BytesPerElement bytes each,
// little-endian inside an element. Unused elements are zero.
func PackBytes(b []byte, n int) ([]fr.Element, error) {
	if len(b) > n*BytesPerElement {
		return nil, fmt.Errorf("%w: %d bytes do not fit %d elements", ErrTooWide, len(b), n)
	}
	out := make([]fr.Element, n)
	for i := 0; i < n; i++ {
		start := i * BytesPerElement
		if start >= len(b) {
			break
		}
		end := min(start+BytesPerElement, len(b))
		chunk := make([]byte, end-start)
		for j := range chunk {
			chunk[j] = b[end-1-j]
		}
		out[i].SetBytes(chunk)
	}
	return out, nil
}

// SplitLimbs splits v into n little-endian limbs of bits bits each.
func SplitLimbs(v *big.Int, bits, n int) ([]fr.Element, error) {
	if v.Sign() < 0 || v.BitLen() > bits*n {
		return nil, fmt.Errorf("%w: %d-bit value does not fit %d limbs of %d bits", ErrTooWide, v.BitLen(), n, bits)
	}
	mask := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), uint(bits)), big.NewInt(1))
	rest := new(big.Int).Set(v)
	out := make([]fr.Element, n)
	for i := 0; i < n; i++ {
		limb := new(big.Int).And(rest, mask)
		out[i].SetBigInt(limb)
		rest.Rsh(rest, uint(bits))
	}
	return out, nil
}

// SplitDigest splits a 32-byte digest into its high and low 128-bit halves.
func SplitDigest(d [32]byte) (hi, lo fr.Element) {
	hi.SetBytes(d[:16])
	lo.SetBytes(d[16:])
	return hi, lo
}

// Bytes converts a byte slice to one element per byte.
func Bytes(b []byte) []fr.Element {
	out := make([]fr.Element, len(b))
	for i, c := range b {
		out[i].SetUint64(uint64(c))
	}
	return out
}
