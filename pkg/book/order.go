// Package book implements a single market's limit order book: bid/ask price
// levels with FIFO queues, heap-tracked best prices, and an id index for
// O(1) cancellation.
//
// The book is a pure data structure. It does not lock and it does not match;
// the owning market serializes access and the matching engine drives the
// crossing loop through Best/Head/RemoveHead.
package book

import "fmt"

// Side of an order.
type Side int8

const (
	Buy  Side = 1
	Sell Side = -1
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return "unknown"
	}
}

// Opposite returns the other side.
func (s Side) Opposite() Side { return -s }

// Type distinguishes limit orders (rest when unfilled) from market orders
// (remainder discarded).
type Type int8

const (
	Limit Type = iota
	Market
)

func (t Type) String() string {
	if t == Market {
		return "market"
	}
	return "limit"
}

// Status is the order lifecycle state.
type Status int8

const (
	Open Status = iota
	PartiallyFilled
	Filled
	Cancelled
)

func (st Status) String() string {
	switch st {
	case Open:
		return "open"
	case PartiallyFilled:
		return "partially_filled"
	case Filled:
		return "filled"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Order is a limit or market order. ID is assigned from a process-wide
// monotonic sequence at submission, so it doubles as the arrival sequence
// for time priority. Price is immutable; Remaining and Status are mutated
// only by the matching engine and cancellation.
type Order struct {
	ID        uint64 `json:"id"`
	Market    string `json:"market"`
	Side      Side   `json:"side"`
	Type      Type   `json:"type"`
	Price     int64  `json:"price"` // quote units per lot; 0 for market orders
	Qty       int64  `json:"qty"`   // original quantity
	Remaining int64  `json:"remaining"`
	Owner     string `json:"owner"`
	Status    Status `json:"status"`
	CreatedAt int64  `json:"createdAt"` // unix nanos

	// EscrowRemaining tracks the funds still held for this order in the
	// market escrow account: quote units for escrowed buys, base units
	// for sells. Market buys are unescrowed and keep this at 0.
	EscrowRemaining int64 `json:"-"`
}

func (o *Order) String() string {
	return fmt.Sprintf("#%d %s %s %d@%d rem=%d %s", o.ID, o.Side, o.Type, o.Qty, o.Price, o.Remaining, o.Status)
}
