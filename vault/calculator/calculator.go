package calculator

import (
	"errors"

	"github.com/holiman/uint256"
)

var (
	// ErrNilAmount is returned when a nil pointer is passed for an amount.
	ErrNilAmount = errors.New("nil pointer passed as amount")
	// ErrInvalidState is returned for undefined exchange rates, like division by zero.
	ErrInvalidState = errors.New("invalid pool state")
	// ErrOverflow is returned when a result does not fit in 256 bits.
	ErrOverflow = errors.New("calculation overflow")
)

// MintAmount returns the number of shares minted for a deposit of amount into a
// pool holding poolBalance (before the deposit) against totalShares.
//
// An empty share supply bootstraps the pool at 1:1. Otherwise the result is
// floor(amount * totalShares / poolBalance): rounding always favours the pool.
func MintAmount(amount, poolBalance, totalShares *uint256.Int) (*uint256.Int, error) {
	if amount == nil || poolBalance == nil || totalShares == nil {
		return nil, ErrNilAmount
	}
	if totalShares.IsZero() {
		return amount.Clone(), nil
	}
	if poolBalance.IsZero() {
		return nil, ErrInvalidState
	}
	return mulDiv(amount, totalShares, poolBalance)
}

// PayoutAmount returns the underlying paid out for burning shares of a pool
// holding poolBalance against totalShares: floor(shares * poolBalance / totalShares).
func PayoutAmount(shares, poolBalance, totalShares *uint256.Int) (*uint256.Int, error) {
	if shares == nil || poolBalance == nil || totalShares == nil {
		return nil, ErrNilAmount
	}
	if totalShares.IsZero() {
		return nil, ErrInvalidState
	}
	return mulDiv(shares, poolBalance, totalShares)
}

// IsSolvent reports whether price * payAmount > borrowAmount, strictly.
// A product too large for 256 bits exceeds every representable borrow amount.
func IsSolvent(price, payAmount, borrowAmount *uint256.Int) (bool, error) {
	if price == nil || payAmount == nil || borrowAmount == nil {
		return false, ErrNilAmount
	}
	value, overflow := new(uint256.Int).MulOverflow(price, payAmount)
	if overflow {
		return true, nil
	}
	return value.Gt(borrowAmount), nil
}

// ConvertAmount values amount of one asset in units of another:
// floor(amount * priceFrom / priceTo).
func ConvertAmount(amount, priceFrom, priceTo *uint256.Int) (*uint256.Int, error) {
	if amount == nil || priceFrom == nil || priceTo == nil {
		return nil, ErrNilAmount
	}
	if priceTo.IsZero() {
		return nil, ErrInvalidState
	}
	return mulDiv(amount, priceFrom, priceTo)
}

// mulDiv computes floor(x * y / d) with a 512-bit intermediate product.
func mulDiv(x, y, d *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).MulDivOverflow(x, y, d)
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}
