package amm

import "errors"

// AMM error kinds. All are user errors; a constant-product regression after
// a committed swap is an internal fault and panics instead.
var (
	ErrZeroAmount            = errors.New("amount must be positive")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	ErrSlippageExceeded      = errors.New("slippage exceeded")
	ErrInsufficientShares    = errors.New("insufficient shares")
	ErrPathNotFound          = errors.New("no swap path found")
	ErrPoolNotFound          = errors.New("pool not found")
	ErrInvalidFee            = errors.New("fee must be between 0 and 10000 basis points")
	ErrUnknownToken          = errors.New("token not in pool")
)
