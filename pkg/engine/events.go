package engine

import (
	"time"

	"github.com/verex-dex/verex/pkg/match"
)

// Event is a post-commit notification. Events are published strictly after
// the state change that produced them has committed, on a best-effort
// buffered channel; consumers (journal, websocket feed) run asynchronously
// and never block the core.
type Event struct {
	Type string `json:"type"` // "trade" | "swap" | "liquidity" | "order"
	Time int64  `json:"time"` // unix nanos
	Data any    `json:"data"`
}

// SwapEvent records a committed swap (single- or multi-hop).
type SwapEvent struct {
	Trader    string   `json:"trader"`
	Path      []string `json:"path"`
	AmountIn  int64    `json:"amountIn"`
	AmountOut int64    `json:"amountOut"`
}

// LiquidityEvent records an add or remove of pool liquidity.
type LiquidityEvent struct {
	Pool     string `json:"pool"`
	Provider string `json:"provider"`
	Action   string `json:"action"` // "add" | "remove"
	AmountA  int64  `json:"amountA"`
	AmountB  int64  `json:"amountB"`
	Shares   int64  `json:"shares"`
}

// OrderEvent records an accepted order submission or a cancellation.
type OrderEvent struct {
	Market  string `json:"market"`
	OrderID uint64 `json:"orderId"`
	Owner   string `json:"owner,omitempty"`
	Action  string `json:"action"` // "submit" | "cancel"
	Status  string `json:"status,omitempty"`
}

func (e *Engine) publish(typ string, data any) {
	if e.events == nil {
		return
	}
	ev := Event{Type: typ, Time: time.Now().UnixNano(), Data: data}
	select {
	case e.events <- ev:
	default:
		// Feed is full. Events are advisory; the state change already
		// committed, so dropping beats blocking the core.
	}
}

func (e *Engine) publishTrades(trades []match.Trade) {
	for _, t := range trades {
		e.publish("trade", t)
	}
}
