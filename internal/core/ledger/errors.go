package ledger

import (
	"errors"

	"metacoin-ledger/internal/core/convert"
)

var (
	// ErrInsufficientFunds means the sender holds less than the requested amount.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrArithmeticOverflow means a computed balance would not fit in a Balance.
	ErrArithmeticOverflow = convert.ErrOverflow

	// ErrStalePosting means a posting was staged against a different ledger state.
	ErrStalePosting = errors.New("stale posting")

	// ErrConservation means balances do not sum to the total supply.
	ErrConservation = errors.New("balances do not sum to total supply")

	// ErrInvalidGenesis means the genesis allocation exceeds the total supply.
	ErrInvalidGenesis = errors.New("genesis allocation exceeds total supply")
)

// RevertError is a failed call. State is untouched when it is returned.
type RevertError struct {
	Reason error
}

func (e *RevertError) Error() string {
	return "revert: " + e.Reason.Error()
}

func (e *RevertError) Unwrap() error {
	return e.Reason
}

func revert(reason error) error {
	return &RevertError{Reason: reason}
}

// IsRevert reports whether err is a reverted call.
func IsRevert(err error) bool {
	var r *RevertError
	return errors.As(err, &r)
}
