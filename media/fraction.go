package media

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrZeroDenominator is returned when a fraction would have a zero denominator.
var ErrZeroDenominator = errors.New("media: zero denominator")

// Fraction is an exact non-negative rational number, always kept in lowest
// terms. Frame rates are expressed as frames per second (Num/Den).
type Fraction struct {
	Num uint32
	Den uint32
}

// NewFraction returns num/den reduced to lowest terms.
func NewFraction(num, den uint32) (Fraction, error) {
	if den == 0 {
		return Fraction{}, ErrZeroDenominator
	}
	g := gcd(uint64(num), uint64(den))
	return Fraction{Num: num / uint32(g), Den: den / uint32(g)}, nil
}

// NewFraction64 reduces num/den and fails if the reduced terms do not fit in
// 32 bits.
func NewFraction64(num, den uint64) (Fraction, error) {
	if den == 0 {
		return Fraction{}, ErrZeroDenominator
	}
	g := gcd(num, den)
	num, den = num/g, den/g
	if num > 0xFFFFFFFF || den > 0xFFFFFFFF {
		return Fraction{}, fmt.Errorf("media: fraction %d/%d out of range", num, den)
	}
	return Fraction{Num: uint32(num), Den: uint32(den)}, nil
}

// gcd is Euclid's algorithm. gcd(0, n) is n.
func gcd(a, b uint64) uint64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// Float64 returns the value of the fraction.
func (f Fraction) Float64() float64 {
	if f.Den == 0 {
		return 0
	}
	return float64(f.Num) / float64(f.Den)
}

// String formats the fraction as its decimal value followed by the exact
// ratio, e.g. "29.97002997002997 (30000/1001)".
func (f Fraction) String() string {
	return fmt.Sprintf("%s (%d/%d)", strconv.FormatFloat(f.Float64(), 'f', -1, 64), f.Num, f.Den)
}

// Short formats the decimal value with at most four decimal places, e.g. "29.97".
func (f Fraction) Short() string {
	s := strconv.FormatFloat(f.Float64(), 'f', 4, 64)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
