package engine

// Error is a validation failure raised by the vault engine. Every error carries a
// stable code so that it survives a JSON-RPC round trip; see ErrorByCode.
type Error struct {
	code int
	msg  string
}

func (e *Error) Error() string { return e.msg }

// ErrorCode implements the go-ethereum rpc.Error interface.
func (e *Error) ErrorCode() int { return e.code }

var byCode = map[int]*Error{}

func newError(code int, msg string) *Error {
	if _, exists := byCode[code]; exists {
		panic("engine: duplicate error code")
	}
	e := &Error{code: code, msg: msg}
	byCode[code] = e
	return e
}

var (
	// ErrZeroAmount is returned when an amount that must be non-zero is zero.
	ErrZeroAmount = newError(-33001, "amount must be non-zero")
	// ErrInsufficientBalance is returned when a payer lacks funds for a transfer or burn.
	ErrInsufficientBalance = newError(-33002, "insufficient balance")
	// ErrExceedWithdrawAmount is returned when a payout or borrow exceeds what is available.
	ErrExceedWithdrawAmount = newError(-33003, "amount exceeds withdrawable balance")
	// ErrInsufficientSupply is returned when there are no outstanding shares to redeem against.
	ErrInsufficientSupply = newError(-33004, "no outstanding shares")
	// ErrNotRegistered is returned when an asset has no share asset mapping.
	ErrNotRegistered = newError(-33005, "asset not registered")
	// ErrNotLiquidator is returned when the caller is not the liquidator sovereign account.
	ErrNotLiquidator = newError(-33006, "caller is not the liquidator")
	// ErrBorrowExceedsLiquidation is returned when the solvency check fails.
	ErrBorrowExceedsLiquidation = newError(-33007, "borrow amount exceeds liquidation value")

	// ErrAlreadyRegistered is returned when an asset is re-registered with a different share asset.
	ErrAlreadyRegistered = newError(-33008, "asset already registered with a different share asset")
	// ErrShareAssetInUse is returned when a share asset is already bound to another underlying.
	ErrShareAssetInUse = newError(-33009, "share asset already in use")
	// ErrPoolDrained is returned when a pool has outstanding shares but no balance left to price them.
	ErrPoolDrained = newError(-33010, "pool has outstanding shares but zero balance")
	// ErrMaxLiquidatableExceeded is returned when a strategy seizes more than the caller allowed.
	ErrMaxLiquidatableExceeded = newError(-33011, "seized amount exceeds max liquidatable")
	// ErrNotFinder is returned when a liquidation caller is not on the finder allow-list.
	ErrNotFinder = newError(-33012, "caller is not an allowed finder")
	// ErrOverflow is returned when an amount does not fit in 256 bits.
	ErrOverflow = newError(-33013, "amount overflow")
	// ErrPriceUnavailable is returned when the oracle has no price for an asset.
	ErrPriceUnavailable = newError(-33014, "price unavailable")
	// ErrSovereignAccount is returned when a module account is used where a user account is expected.
	ErrSovereignAccount = newError(-33015, "sovereign account cannot act as a user")
)

// ErrorByCode maps a wire error code back to its sentinel.
func ErrorByCode(code int) (*Error, bool) {
	e, ok := byCode[code]
	return e, ok
}
