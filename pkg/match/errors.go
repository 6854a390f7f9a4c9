package match

import "errors"

var (
	ErrMarketNotFound     = errors.New("market not found")
	ErrMarketExists       = errors.New("market already exists")
	ErrInvalidPrice       = errors.New("price must be positive")
	ErrInvalidQuantity    = errors.New("quantity must be positive")
	ErrOrderNotFound      = errors.New("order not found")
	ErrOrderAlreadyFilled = errors.New("order already filled")
	ErrSettlementFailure  = errors.New("settlement failure")
)
