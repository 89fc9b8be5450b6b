// Package convert is the conversion library linked into the ledger. It holds
// no state: every function is a pure mapping from a primary-unit balance to
// its secondary-unit equivalent.
package convert

import (
	"errors"
	"math/bits"

	"metacoin-ledger/internal/core/domain"
)

// DefaultRatio is the number of secondary units per primary unit.
const DefaultRatio uint64 = 2

var (
	// ErrOverflow is returned when a converted value does not fit in a Balance.
	ErrOverflow = errors.New("arithmetic overflow")

	// ErrZeroRatio is returned when constructing a converter with ratio 0.
	ErrZeroRatio = errors.New("conversion ratio must be positive")
)

// Convert multiplies amount by ratio, failing instead of wrapping around.
func Convert(amount domain.Balance, ratio uint64) (domain.Balance, error) {
	hi, lo := bits.Mul64(uint64(amount), ratio)
	if hi != 0 {
		return 0, ErrOverflow
	}
	return domain.Balance(lo), nil
}

// FixedRatio implements ports.Converter with a constant ratio.
type FixedRatio struct {
	ratio uint64
}

// NewFixedRatio creates a converter for the given ratio.
func NewFixedRatio(ratio uint64) (FixedRatio, error) {
	if ratio == 0 {
		return FixedRatio{}, ErrZeroRatio
	}
	return FixedRatio{ratio: ratio}, nil
}

// Default returns the converter with DefaultRatio.
func Default() FixedRatio {
	return FixedRatio{ratio: DefaultRatio}
}

// Ratio returns the configured multiplier.
func (f FixedRatio) Ratio() uint64 {
	return f.ratio
}

// ConvertToSecondaryUnit returns balance * ratio.
func (f FixedRatio) ConvertToSecondaryUnit(balance domain.Balance) (domain.Balance, error) {
	return Convert(balance, f.ratio)
}
