package api

// Request and response types for REST endpoints and WebSocket messages.

// ---- requests ----

type DepositRequest struct {
	Account string `json:"account"`
	Token   string `json:"token"`
	Amount  int64  `json:"amount"`
}

type RegisterTokenRequest struct {
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

type CreatePoolRequest struct {
	TokenA string `json:"tokenA"`
	TokenB string `json:"tokenB"`
	FeeBps *int64 `json:"feeBps,omitempty"` // nil -> configured default
}

type LiquidityRequest struct {
	Pool      string `json:"pool"`
	Provider  string `json:"provider"`
	AmountA   int64  `json:"amountA"`
	AmountB   int64  `json:"amountB"`
	MinShares int64  `json:"minShares"`
	// For removes
	Shares int64 `json:"shares"`
	MinA   int64 `json:"minA"`
	MinB   int64 `json:"minB"`
}

type SwapRequest struct {
	Pool         string   `json:"pool,omitempty"` // direct pool swap
	Path         []string `json:"path,omitempty"` // explicit multi-hop path
	TokenIn      string   `json:"tokenIn,omitempty"`
	TokenOut     string   `json:"tokenOut,omitempty"` // with TokenIn: auto-routed
	Trader       string   `json:"trader"`
	AmountIn     int64    `json:"amountIn"`
	MinAmountOut int64    `json:"minAmountOut"`
}

type CreateMarketRequest struct {
	Base  string `json:"base"`
	Quote string `json:"quote"`
}

type SubmitOrderRequest struct {
	Market string `json:"market"`
	Owner  string `json:"owner"`
	Side   string `json:"side"` // "buy" | "sell"
	Type   string `json:"type"` // "limit" | "market"
	Price  int64  `json:"price"`
	Qty    int64  `json:"qty"`
}

type CancelOrderRequest struct {
	Market  string `json:"market"`
	OrderID uint64 `json:"orderId"`
}

// ---- responses ----

type SwapResponse struct {
	AmountOut int64    `json:"amountOut"`
	Path      []string `json:"path,omitempty"`
}

type LiquidityResponse struct {
	AmountA int64 `json:"amountA"`
	AmountB int64 `json:"amountB"`
	Shares  int64 `json:"shares"`
}

type BestBidAskResponse struct {
	Market string `json:"market"`
	Bid    *int64 `json:"bid,omitempty"`
	Ask    *int64 `json:"ask,omitempty"`
}

type BalanceResponse struct {
	Account string `json:"account"`
	Token   string `json:"token"`
	Amount  int64  `json:"amount"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// ---- websocket ----

// WSSubscribeRequest subscribes or unsubscribes channels. Channels are
// "trades:<market>", "swaps", "liquidity", "orders".
type WSSubscribeRequest struct {
	Op       string   `json:"op"` // "subscribe" | "unsubscribe"
	Channels []string `json:"channels"`
}

// WSMessage wraps a broadcast payload with its channel.
type WSMessage struct {
	Channel string `json:"channel"`
	Data    any    `json:"data"`
}
