// Package match is the order matching engine: a catalog of markets, each
// with its own order book, matched under price-time priority and settled
// through the token ledger.
//
// Settlement uses an escrow model. Limit buys escrow qty*price of the quote
// token at submission, sells escrow the base quantity; every fill pays the
// counterparty out of escrow, so maker-side settlement cannot fail. Market
// buys are the one unescrowed path (their worst-case cost is unbounded) and
// settle from the taker's free balance fill by fill.
package match

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/verex-dex/verex/pkg/book"
	"github.com/verex-dex/verex/pkg/ledger"
	"github.com/verex-dex/verex/pkg/num"
)

// Market identifies a trading pair: quantities are in Base units, prices in
// Quote units per base lot.
type Market struct {
	Symbol string `json:"symbol"` // "BASE-QUOTE"
	Base   string `json:"base"`
	Quote  string `json:"quote"`
}

// EscrowAccount is the ledger account holding funds locked for open orders
// on this market.
func (m Market) EscrowAccount() string { return "escrow:" + m.Symbol }

// Trade is one execution. Price is always the resting order's price (no
// price improvement for the incoming order). Append-only.
type Trade struct {
	ID          uint64    `json:"id"`
	Market      string    `json:"market"`
	BuyOrderID  uint64    `json:"buyOrderId"`
	SellOrderID uint64    `json:"sellOrderId"`
	Price       int64     `json:"price"`
	Qty         int64     `json:"qty"`
	TakerSide   book.Side `json:"takerSide"`
	ExecutedAt  int64     `json:"executedAt"` // unix nanos
}

// Result reports what happened to a submitted order: the trades it
// generated, its terminal-or-resting status, and, for market orders, any
// remainder that was discarded (a result flag, not an error).
type Result struct {
	OrderID           uint64      `json:"orderId"`
	Status            book.Status `json:"status"`
	Remaining         int64       `json:"remaining"`
	UnfilledRemainder int64       `json:"unfilledRemainder,omitempty"`
	Trades            []Trade     `json:"trades"`
}

// marketState is one market's mutable state. The mutex is the single-writer
// boundary: match and cancel are sequenced by arrival at this lock, and
// whichever is sequenced first wins any race.
type marketState struct {
	mu     sync.Mutex
	market Market
	book   *book.Book
	orders map[uint64]*book.Order // every order ever accepted, terminal ones included
	trades []Trade                // recent trades, bounded
}

// Engine accepts orders for all markets. Markets are independent: operations
// on different markets run fully in parallel.
type Engine struct {
	mu      sync.RWMutex
	markets map[string]*marketState

	ledger       *ledger.Ledger
	seq          atomic.Uint64 // shared order/trade id sequence
	tradeHistory int
}

// NewEngine creates an engine settling through l, keeping up to tradeHistory
// recent trades per market for queries.
func NewEngine(l *ledger.Ledger, tradeHistory int) *Engine {
	if tradeHistory <= 0 {
		tradeHistory = 1024
	}
	return &Engine{
		markets:      make(map[string]*marketState),
		ledger:       l,
		tradeHistory: tradeHistory,
	}
}

// CreateMarket registers a new market for the base/quote pair.
func (e *Engine) CreateMarket(base, quote string) (Market, error) {
	if base == "" || quote == "" || base == quote {
		return Market{}, fmt.Errorf("invalid market pair %q/%q", base, quote)
	}
	m := Market{Symbol: base + "-" + quote, Base: base, Quote: quote}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.markets[m.Symbol]; ok {
		return Market{}, fmt.Errorf("market %s: %w", m.Symbol, ErrMarketExists)
	}
	e.markets[m.Symbol] = &marketState{
		market: m,
		book:   book.New(),
		orders: make(map[uint64]*book.Order),
	}
	return m, nil
}

// Market returns a registered market.
func (e *Engine) Market(symbol string) (Market, error) {
	ms, err := e.state(symbol)
	if err != nil {
		return Market{}, err
	}
	return ms.market, nil
}

// Markets lists all registered markets.
func (e *Engine) Markets() []Market {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Market, 0, len(e.markets))
	for _, ms := range e.markets {
		out = append(out, ms.market)
	}
	return out
}

func (e *Engine) state(symbol string) (*marketState, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ms, ok := e.markets[symbol]
	if !ok {
		return nil, fmt.Errorf("market %s: %w", symbol, ErrMarketNotFound)
	}
	return ms, nil
}

// Submit runs an incoming order through the matching loop and, for limit
// orders, rests any remainder in the book. The market's mutex is held for
// the whole submission: matching is pure in-memory work plus ledger batches.
func (e *Engine) Submit(symbol string, owner string, side book.Side, typ book.Type, price, qty int64) (*Result, error) {
	ms, err := e.state(symbol)
	if err != nil {
		return nil, err
	}
	if owner == "" {
		return nil, fmt.Errorf("order owner required")
	}
	if qty <= 0 {
		return nil, fmt.Errorf("qty %d: %w", qty, ErrInvalidQuantity)
	}
	if typ == book.Limit && price <= 0 {
		return nil, fmt.Errorf("price %d: %w", price, ErrInvalidPrice)
	}
	if typ == book.Market {
		price = 0
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	o := &book.Order{
		ID:        e.seq.Add(1),
		Market:    symbol,
		Side:      side,
		Type:      typ,
		Price:     price,
		Qty:       qty,
		Remaining: qty,
		Owner:     owner,
		Status:    book.Open,
		CreatedAt: time.Now().UnixNano(),
	}

	if err := e.escrowFor(ms, o); err != nil {
		return nil, err
	}
	ms.orders[o.ID] = o

	res := &Result{OrderID: o.ID}
	matchErr := e.matchLocked(ms, o, res)

	switch {
	case o.Remaining == 0:
		o.Status = book.Filled
	case o.Type == book.Limit:
		if len(res.Trades) > 0 {
			o.Status = book.PartiallyFilled
		}
		ms.book.Rest(o)
	default:
		// Market order remainder is discarded, never rested.
		res.UnfilledRemainder = o.Remaining
		e.releaseEscrow(ms, o)
		o.Status = book.Cancelled
	}

	res.Status = o.Status
	res.Remaining = o.Remaining
	if matchErr != nil {
		return res, matchErr
	}
	return res, nil
}

// escrowFor locks the funds backing a new order. Failing the lock
// (InsufficientBalance) rejects the order before it touches the book.
func (e *Engine) escrowFor(ms *marketState, o *book.Order) error {
	m := ms.market
	switch {
	case o.Side == book.Sell:
		if err := e.ledger.Transfer(o.Owner, m.EscrowAccount(), m.Base, o.Qty); err != nil {
			return err
		}
		o.EscrowRemaining = o.Qty
	case o.Type == book.Limit: // buy limit
		notional, err := num.CheckedMul(o.Price, o.Qty)
		if err != nil {
			return fmt.Errorf("order notional %d x %d: %w", o.Price, o.Qty, err)
		}
		if err := e.ledger.Transfer(o.Owner, m.EscrowAccount(), m.Quote, notional); err != nil {
			return err
		}
		o.EscrowRemaining = notional
	}
	// Market buys carry no escrow; they settle from free balance per fill.
	return nil
}

// releaseEscrow refunds whatever an order still holds in escrow.
func (e *Engine) releaseEscrow(ms *marketState, o *book.Order) {
	if o.EscrowRemaining <= 0 {
		return
	}
	m := ms.market
	token := m.Base
	if o.Side == book.Buy {
		token = m.Quote
	}
	// The escrow account always holds what orders recorded; a failure here
	// is engine-state corruption.
	if err := e.ledger.Transfer(m.EscrowAccount(), o.Owner, token, o.EscrowRemaining); err != nil {
		panic(fmt.Sprintf("escrow release for order %d: %v", o.ID, err))
	}
	o.EscrowRemaining = 0
}

// crosses reports whether the incoming order trades at the maker's price.
func crosses(o *book.Order, makerPrice int64) bool {
	if o.Type == book.Market {
		return true
	}
	if o.Side == book.Buy {
		return o.Price >= makerPrice
	}
	return o.Price <= makerPrice
}

// matchLocked is the matching loop: while the incoming order crosses the
// best opposite level, fill against its head (oldest first), settle each
// fill atomically, and emit the trade. Caller holds ms.mu.
func (e *Engine) matchLocked(ms *marketState, o *book.Order, res *Result) error {
	m := ms.market
	for o.Remaining > 0 {
		maker := ms.book.Head(o.Side.Opposite())
		if maker == nil || !crosses(o, maker.Price) {
			break
		}

		qty := min(o.Remaining, maker.Remaining)
		execPrice := maker.Price
		quoteAmt, err := num.CheckedMul(execPrice, qty)
		if err != nil {
			return fmt.Errorf("fill notional %d x %d: %w", execPrice, qty, err)
		}

		if err := e.settle(ms, o, maker, qty, quoteAmt); err != nil {
			// Prior fills are committed; this step leaves no trace.
			return fmt.Errorf("order %d vs %d: %w: %v", o.ID, maker.ID, ErrSettlementFailure, err)
		}

		o.Remaining -= qty
		maker.Remaining -= qty
		if maker.Remaining == 0 {
			maker.Status = book.Filled
			ms.book.RemoveHead(o.Side.Opposite())
		} else {
			maker.Status = book.PartiallyFilled
		}

		t := Trade{
			ID:         e.seq.Add(1),
			Market:     m.Symbol,
			Price:      execPrice,
			Qty:        qty,
			TakerSide:  o.Side,
			ExecutedAt: time.Now().UnixNano(),
		}
		if o.Side == book.Buy {
			t.BuyOrderID, t.SellOrderID = o.ID, maker.ID
		} else {
			t.BuyOrderID, t.SellOrderID = maker.ID, o.ID
		}
		res.Trades = append(res.Trades, t)
		ms.trades = append(ms.trades, t)
		if len(ms.trades) > e.tradeHistory {
			ms.trades = ms.trades[len(ms.trades)-e.tradeHistory:]
		}
	}
	return nil
}

// settle moves the tokens for one fill as a single atomic ledger batch and
// keeps the per-order escrow accounting in step.
func (e *Engine) settle(ms *marketState, taker, maker *book.Order, qty, quoteAmt int64) error {
	m := ms.market
	escrow := m.EscrowAccount()
	var movs []ledger.Movement

	if taker.Side == book.Buy {
		// Maker sold: its escrowed base goes to the buyer.
		movs = append(movs, ledger.Movement{From: escrow, To: taker.Owner, Token: m.Base, Amount: qty})
		if taker.Type == book.Limit {
			// Buyer escrowed at its limit price: pay the maker the execution
			// notional and refund the price improvement.
			movs = append(movs, ledger.Movement{From: escrow, To: maker.Owner, Token: m.Quote, Amount: quoteAmt})
			if refund := (taker.Price - maker.Price) * qty; refund > 0 {
				movs = append(movs, ledger.Movement{From: escrow, To: taker.Owner, Token: m.Quote, Amount: refund})
			}
		} else {
			movs = append(movs, ledger.Movement{From: taker.Owner, To: maker.Owner, Token: m.Quote, Amount: quoteAmt})
		}
	} else {
		// Taker sold: its escrowed base goes to the maker, whose escrowed
		// quote (locked at the maker's own price) pays the seller.
		movs = append(movs, ledger.Movement{From: escrow, To: maker.Owner, Token: m.Base, Amount: qty})
		movs = append(movs, ledger.Movement{From: escrow, To: taker.Owner, Token: m.Quote, Amount: quoteAmt})
	}

	if err := e.ledger.Apply(movs); err != nil {
		return err
	}

	// Escrow bookkeeping mirrors the movements above exactly.
	if taker.Side == book.Buy {
		maker.EscrowRemaining -= qty
		if taker.Type == book.Limit {
			taker.EscrowRemaining -= taker.Price * qty
		}
	} else {
		taker.EscrowRemaining -= qty
		maker.EscrowRemaining -= quoteAmt
	}
	return nil
}

// Cancel removes a resting order and refunds its escrow. An order that
// already fully filled fails ErrOrderAlreadyFilled; an unknown or
// already-cancelled id fails ErrOrderNotFound. The market lock totally
// orders cancels against matches: whichever arrives first wins.
func (e *Engine) Cancel(symbol string, id uint64) error {
	ms, err := e.state(symbol)
	if err != nil {
		return err
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	o, ok := ms.orders[id]
	if !ok {
		return fmt.Errorf("order %d: %w", id, ErrOrderNotFound)
	}
	switch o.Status {
	case book.Filled:
		return fmt.Errorf("order %d: %w", id, ErrOrderAlreadyFilled)
	case book.Cancelled:
		return fmt.Errorf("order %d already cancelled: %w", id, ErrOrderNotFound)
	}

	if removed := ms.book.Cancel(id); removed == nil {
		return fmt.Errorf("order %d: %w", id, ErrOrderNotFound)
	}
	e.releaseEscrow(ms, o)
	o.Status = book.Cancelled
	return nil
}

// Order returns a copy of an order by id.
func (e *Engine) Order(symbol string, id uint64) (book.Order, error) {
	ms, err := e.state(symbol)
	if err != nil {
		return book.Order{}, err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	o, ok := ms.orders[id]
	if !ok {
		return book.Order{}, fmt.Errorf("order %d: %w", id, ErrOrderNotFound)
	}
	return *o, nil
}

// BestBidAsk returns the top of book. ok flags report empty sides.
func (e *Engine) BestBidAsk(symbol string) (bid, ask int64, hasBid, hasAsk bool, err error) {
	ms, err := e.state(symbol)
	if err != nil {
		return 0, 0, false, false, err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	bid, hasBid = ms.book.BestBid()
	ask, hasAsk = ms.book.BestAsk()
	return bid, ask, hasBid, hasAsk, nil
}

// Levels returns aggregated bid and ask levels, best first.
func (e *Engine) Levels(symbol string) (bids, asks []book.Level, err error) {
	ms, err := e.state(symbol)
	if err != nil {
		return nil, nil, err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.book.BidLevels(), ms.book.AskLevels(), nil
}

// Trades returns up to n most recent trades, newest last.
func (e *Engine) Trades(symbol string, n int) ([]Trade, error) {
	ms, err := e.state(symbol)
	if err != nil {
		return nil, err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if n <= 0 || n > len(ms.trades) {
		n = len(ms.trades)
	}
	out := make([]Trade, n)
	copy(out, ms.trades[len(ms.trades)-n:])
	return out, nil
}
