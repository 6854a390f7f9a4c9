// Package engine wires the trading core together and exposes its call
// surface: token/deposit on-ramp, AMM pools and routing, and order-book
// markets, all settling through one ledger.
package engine

import (
	"errors"
	"fmt"

	"github.com/verex-dex/verex/pkg/amm"
	"github.com/verex-dex/verex/pkg/asset"
	"github.com/verex-dex/verex/pkg/book"
	"github.com/verex-dex/verex/pkg/ledger"
	"github.com/verex-dex/verex/pkg/match"
)

// ErrUnknownToken is returned when an operation references a token that was
// never registered.
var ErrUnknownToken = errors.New("unknown token")

// Options tune the engine. Zero values fall back to defaults.
type Options struct {
	MaxHops      int // route search bound for multi-hop swaps
	TradeHistory int // recent trades kept per market
	EventBuffer  int // post-commit event channel capacity; 0 disables events
}

// Engine is the root object owning all core state. Collaborators (API,
// journal) hold an *Engine and consume its event channel.
type Engine struct {
	ledger *ledger.Ledger
	assets *asset.Registry
	pools  *amm.Registry
	router *amm.Router
	match  *match.Engine

	events chan Event
}

func New(opts Options) *Engine {
	l := ledger.New()
	pools := amm.NewRegistry(l)

	e := &Engine{
		ledger: l,
		assets: asset.NewRegistry(),
		pools:  pools,
		router: amm.NewRouter(pools, l, opts.MaxHops),
		match:  match.NewEngine(l, opts.TradeHistory),
	}
	if opts.EventBuffer > 0 {
		e.events = make(chan Event, opts.EventBuffer)
	}
	return e
}

// Events returns the post-commit event stream, or nil when disabled.
func (e *Engine) Events() <-chan Event { return e.events }

// Ledger exposes the balance store for read-side collaborators and tests.
func (e *Engine) Ledger() *ledger.Ledger { return e.ledger }

// ---- tokens & balances ----

// RegisterToken registers a token identity. Idempotent for identical
// decimals; a token is immutable once registered.
func (e *Engine) RegisterToken(symbol string, decimals uint8) (asset.Token, error) {
	return e.assets.Register(symbol, decimals)
}

// Tokens lists registered tokens.
func (e *Engine) Tokens() []asset.Token { return e.assets.List() }

// Deposit credits externally sourced funds to an account. The on-ramp for
// the external custody collaborator.
func (e *Engine) Deposit(account, token string, amount int64) error {
	if _, ok := e.assets.Get(token); !ok {
		return fmt.Errorf("deposit %s: %w", token, ErrUnknownToken)
	}
	return e.ledger.Credit(account, token, amount)
}

// BalanceOf returns an account's balance of a token.
func (e *Engine) BalanceOf(account, token string) int64 {
	return e.ledger.BalanceOf(account, token)
}

// ---- AMM ----

// CreatePool returns the canonical pool id for the pair, creating the pool
// empty on first use. Both tokens must be registered.
func (e *Engine) CreatePool(tokenA, tokenB string, feeBps int64) (string, error) {
	for _, t := range []string{tokenA, tokenB} {
		if _, ok := e.assets.Get(t); !ok {
			return "", fmt.Errorf("create pool %s/%s: %s: %w", tokenA, tokenB, t, ErrUnknownToken)
		}
	}
	p, err := e.pools.GetOrCreate(tokenA, tokenB, feeBps)
	if err != nil {
		return "", err
	}
	return p.Pair().Key(), nil
}

// Pool returns a pool snapshot by id.
func (e *Engine) Pool(id string) (amm.State, error) {
	p, ok := e.pools.Lookup(id)
	if !ok {
		return amm.State{}, fmt.Errorf("pool %s: %w", id, amm.ErrPoolNotFound)
	}
	return p.Snapshot(), nil
}

// Pools lists all pool snapshots.
func (e *Engine) Pools() []amm.State { return e.pools.List() }

// SharesOf returns provider's LP shares in a pool.
func (e *Engine) SharesOf(poolID, provider string) (int64, error) {
	p, ok := e.pools.Lookup(poolID)
	if !ok {
		return 0, fmt.Errorf("pool %s: %w", poolID, amm.ErrPoolNotFound)
	}
	return p.SharesOf(provider), nil
}

// AddLiquidity deposits into a pool and mints LP shares.
func (e *Engine) AddLiquidity(poolID, provider string, amountADesired, amountBDesired, minShares int64) (usedA, usedB, shares int64, err error) {
	p, ok := e.pools.Lookup(poolID)
	if !ok {
		return 0, 0, 0, fmt.Errorf("pool %s: %w", poolID, amm.ErrPoolNotFound)
	}
	usedA, usedB, shares, err = p.AddLiquidity(provider, amountADesired, amountBDesired, minShares)
	if err != nil {
		return 0, 0, 0, err
	}
	e.publish("liquidity", LiquidityEvent{
		Pool: poolID, Provider: provider, Action: "add",
		AmountA: usedA, AmountB: usedB, Shares: shares,
	})
	return usedA, usedB, shares, nil
}

// RemoveLiquidity burns LP shares and withdraws the proportional reserves.
func (e *Engine) RemoveLiquidity(poolID, provider string, shares, minA, minB int64) (amountA, amountB int64, err error) {
	p, ok := e.pools.Lookup(poolID)
	if !ok {
		return 0, 0, fmt.Errorf("pool %s: %w", poolID, amm.ErrPoolNotFound)
	}
	amountA, amountB, err = p.RemoveLiquidity(provider, shares, minA, minB)
	if err != nil {
		return 0, 0, err
	}
	e.publish("liquidity", LiquidityEvent{
		Pool: poolID, Provider: provider, Action: "remove",
		AmountA: amountA, AmountB: amountB, Shares: shares,
	})
	return amountA, amountB, nil
}

// Swap trades within a single pool.
func (e *Engine) Swap(poolID, trader, tokenIn string, amountIn, minAmountOut int64) (int64, error) {
	p, ok := e.pools.Lookup(poolID)
	if !ok {
		return 0, fmt.Errorf("pool %s: %w", poolID, amm.ErrPoolNotFound)
	}
	out, err := p.Swap(trader, tokenIn, amountIn, minAmountOut)
	if err != nil {
		return 0, err
	}
	pair := p.Pair()
	tokenOut := pair.B
	if tokenIn == pair.B {
		tokenOut = pair.A
	}
	e.publish("swap", SwapEvent{
		Trader: trader, Path: []string{tokenIn, tokenOut},
		AmountIn: amountIn, AmountOut: out,
	})
	return out, nil
}

// MultiTokenSwap executes a swap along an explicit token path, atomically
// across every pool on the path.
func (e *Engine) MultiTokenSwap(trader string, path []string, amountIn, minAmountOut int64) (int64, error) {
	out, err := e.router.MultiTokenSwap(trader, path, amountIn, minAmountOut)
	if err != nil {
		return 0, err
	}
	e.publish("swap", SwapEvent{Trader: trader, Path: path, AmountIn: amountIn, AmountOut: out})
	return out, nil
}

// RouteSwap finds the shortest pool route between two tokens and executes it.
func (e *Engine) RouteSwap(trader, tokenIn, tokenOut string, amountIn, minAmountOut int64) (int64, []string, error) {
	out, path, err := e.router.RouteSwap(trader, tokenIn, tokenOut, amountIn, minAmountOut)
	if err != nil {
		return 0, nil, err
	}
	e.publish("swap", SwapEvent{Trader: trader, Path: path, AmountIn: amountIn, AmountOut: out})
	return out, path, nil
}

// QuotePath prices a path without executing.
func (e *Engine) QuotePath(path []string, amountIn int64) (int64, error) {
	return e.router.Quote(path, amountIn)
}

// ---- order book ----

// CreateMarket registers a base/quote market. Both tokens must be
// registered.
func (e *Engine) CreateMarket(base, quote string) (match.Market, error) {
	for _, t := range []string{base, quote} {
		if _, ok := e.assets.Get(t); !ok {
			return match.Market{}, fmt.Errorf("create market %s-%s: %s: %w", base, quote, t, ErrUnknownToken)
		}
	}
	return e.match.CreateMarket(base, quote)
}

// Markets lists registered markets.
func (e *Engine) Markets() []match.Market { return e.match.Markets() }

// SubmitOrder submits a limit or market order and returns its fills and
// resting status.
func (e *Engine) SubmitOrder(market, owner string, side book.Side, typ book.Type, price, qty int64) (*match.Result, error) {
	res, err := e.match.Submit(market, owner, side, typ, price, qty)
	if res != nil {
		e.publishTrades(res.Trades)
		e.publish("order", OrderEvent{
			Market: market, OrderID: res.OrderID, Owner: owner,
			Action: "submit", Status: res.Status.String(),
		})
	}
	return res, err
}

// CancelOrder cancels a resting order and refunds its escrow.
func (e *Engine) CancelOrder(market string, id uint64) error {
	if err := e.match.Cancel(market, id); err != nil {
		return err
	}
	e.publish("order", OrderEvent{Market: market, OrderID: id, Action: "cancel"})
	return nil
}

// BestBidAsk returns the top of book for a market.
func (e *Engine) BestBidAsk(market string) (bid, ask int64, hasBid, hasAsk bool, err error) {
	return e.match.BestBidAsk(market)
}

// OrderBook returns aggregated levels, best first on both sides.
func (e *Engine) OrderBook(market string) (bids, asks []book.Level, err error) {
	return e.match.Levels(market)
}

// Order returns an order by id.
func (e *Engine) Order(market string, id uint64) (book.Order, error) {
	return e.match.Order(market, id)
}

// Trades returns up to n recent trades for a market.
func (e *Engine) Trades(market string, n int) ([]match.Trade, error) {
	return e.match.Trades(market, n)
}
