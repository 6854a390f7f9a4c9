// Package amm implements constant-product liquidity pools, the pool
// registry/token graph, and the multi-hop swap router.
//
// Reserves are mirrored in the ledger: each pool owns the ledger account
// "pool:<pair>", and every pool mutation commits through a single atomic
// ledger batch, so pool reserves and ledger balances can never diverge.
package amm

import (
	"fmt"
	"sync"

	"github.com/verex-dex/verex/pkg/asset"
	"github.com/verex-dex/verex/pkg/ledger"
	"github.com/verex-dex/verex/pkg/num"
)

const bpsDenom = 10000

// Pool is a single token-pair constant-product pool.
// Operations against the same pool are serialized by its mutex; the router
// takes the same mutex externally when committing a multi-hop swap.
type Pool struct {
	mu sync.Mutex

	pair    asset.Pair
	feeBps  int64
	account string // ledger account holding the reserves

	reserveA    int64
	reserveB    int64
	totalShares int64
	positions   map[string]int64 // provider account -> LP shares

	ledger *ledger.Ledger
}

func newPool(pair asset.Pair, feeBps int64, l *ledger.Ledger) *Pool {
	return &Pool{
		pair:      pair,
		feeBps:    feeBps,
		account:   "pool:" + pair.Key(),
		positions: make(map[string]int64),
		ledger:    l,
	}
}

// Pair returns the canonical token pair.
func (p *Pool) Pair() asset.Pair { return p.pair }

// Account returns the pool's ledger account id.
func (p *Pool) Account() string { return p.account }

// FeeBps returns the swap fee in basis points.
func (p *Pool) FeeBps() int64 { return p.feeBps }

// State is a point-in-time snapshot of a pool.
type State struct {
	Pair        asset.Pair `json:"pair"`
	FeeBps      int64      `json:"feeBps"`
	ReserveA    int64      `json:"reserveA"`
	ReserveB    int64      `json:"reserveB"`
	TotalShares int64      `json:"totalShares"`
}

// Snapshot returns the current pool state.
func (p *Pool) Snapshot() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return State{
		Pair:        p.pair,
		FeeBps:      p.feeBps,
		ReserveA:    p.reserveA,
		ReserveB:    p.reserveB,
		TotalShares: p.totalShares,
	}
}

// SharesOf returns the LP shares held by provider.
func (p *Pool) SharesOf(provider string) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.positions[provider]
}

// AddLiquidity deposits tokens and mints LP shares.
//
// First deposit: reserves are set to the desired amounts exactly and
// shares = floor(sqrt(a*b)) (geometric mean, resistant to initial-share
// manipulation). Later deposits are scaled down to the largest amounts that
// preserve the reserve ratio, minting floor(totalShares * usedA / reserveA).
func (p *Pool) AddLiquidity(provider string, amountADesired, amountBDesired, minShares int64) (usedA, usedB, shares int64, err error) {
	if amountADesired <= 0 || amountBDesired <= 0 {
		return 0, 0, 0, fmt.Errorf("add liquidity to %s: %w", p.pair.Key(), ErrZeroAmount)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.totalShares == 0 {
		usedA, usedB = amountADesired, amountBDesired
		shares, err = num.SqrtProduct(usedA, usedB)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("initial shares for %s: %w", p.pair.Key(), err)
		}
		if shares == 0 {
			return 0, 0, 0, fmt.Errorf("initial amounts too small for %s: %w", p.pair.Key(), ErrZeroAmount)
		}
	} else {
		// Scale the desired amounts to the current ratio: try holding A and
		// computing the matching B, fall back to holding B.
		bOptimal, derr := num.MulDiv(amountADesired, p.reserveB, p.reserveA)
		if derr != nil {
			return 0, 0, 0, fmt.Errorf("add liquidity to %s: %w", p.pair.Key(), derr)
		}
		if bOptimal > 0 && bOptimal <= amountBDesired {
			usedA, usedB = amountADesired, bOptimal
		} else {
			aOptimal, derr := num.MulDiv(amountBDesired, p.reserveA, p.reserveB)
			if derr != nil {
				return 0, 0, 0, fmt.Errorf("add liquidity to %s: %w", p.pair.Key(), derr)
			}
			if aOptimal > amountADesired {
				return 0, 0, 0, fmt.Errorf("amounts too small for pool ratio %s: %w", p.pair.Key(), ErrZeroAmount)
			}
			usedA, usedB = aOptimal, amountBDesired
		}
		if usedA <= 0 || usedB <= 0 {
			return 0, 0, 0, fmt.Errorf("amounts too small for pool ratio %s: %w", p.pair.Key(), ErrZeroAmount)
		}
		shares, err = num.MulDiv(p.totalShares, usedA, p.reserveA)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("share mint for %s: %w", p.pair.Key(), err)
		}
		if shares == 0 {
			return 0, 0, 0, fmt.Errorf("deposit too small to mint shares in %s: %w", p.pair.Key(), ErrZeroAmount)
		}
	}

	if shares < minShares {
		return 0, 0, 0, fmt.Errorf("minted %d < min %d shares in %s: %w", shares, minShares, p.pair.Key(), ErrSlippageExceeded)
	}

	newReserveA, err := num.CheckedAdd(p.reserveA, usedA)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("reserve %s overflow: %w", p.pair.A, err)
	}
	newReserveB, err := num.CheckedAdd(p.reserveB, usedB)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("reserve %s overflow: %w", p.pair.B, err)
	}
	newTotal, err := num.CheckedAdd(p.totalShares, shares)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("total shares overflow: %w", err)
	}

	// Pull the deposit before mutating pool state; a failed debit leaves the
	// pool untouched.
	err = p.ledger.Apply([]ledger.Movement{
		{From: provider, To: p.account, Token: p.pair.A, Amount: usedA},
		{From: provider, To: p.account, Token: p.pair.B, Amount: usedB},
	})
	if err != nil {
		return 0, 0, 0, err
	}

	p.reserveA = newReserveA
	p.reserveB = newReserveB
	p.totalShares = newTotal
	p.positions[provider] += shares
	return usedA, usedB, shares, nil
}

// RemoveLiquidity burns shares and pays out the proportional reserves:
// floor(reserve * shares / totalShares) per token.
func (p *Pool) RemoveLiquidity(provider string, shares, minA, minB int64) (amountA, amountB int64, err error) {
	if shares <= 0 {
		return 0, 0, fmt.Errorf("remove liquidity from %s: %w", p.pair.Key(), ErrZeroAmount)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	held := p.positions[provider]
	if held < shares {
		return 0, 0, fmt.Errorf("%s holds %d < %d shares in %s: %w", provider, held, shares, p.pair.Key(), ErrInsufficientShares)
	}

	amountA, err = num.MulDiv(p.reserveA, shares, p.totalShares)
	if err != nil {
		return 0, 0, fmt.Errorf("withdraw %s: %w", p.pair.A, err)
	}
	amountB, err = num.MulDiv(p.reserveB, shares, p.totalShares)
	if err != nil {
		return 0, 0, fmt.Errorf("withdraw %s: %w", p.pair.B, err)
	}
	if amountA < minA || amountB < minB {
		return 0, 0, fmt.Errorf("withdraw (%d %s, %d %s) below minimum in %s: %w",
			amountA, p.pair.A, amountB, p.pair.B, p.pair.Key(), ErrSlippageExceeded)
	}

	var movs []ledger.Movement
	if amountA > 0 {
		movs = append(movs, ledger.Movement{From: p.account, To: provider, Token: p.pair.A, Amount: amountA})
	}
	if amountB > 0 {
		movs = append(movs, ledger.Movement{From: p.account, To: provider, Token: p.pair.B, Amount: amountB})
	}
	if err := p.ledger.Apply(movs); err != nil {
		return 0, 0, err
	}

	p.reserveA -= amountA
	p.reserveB -= amountB
	p.totalShares -= shares
	if held == shares {
		delete(p.positions, provider)
	} else {
		p.positions[provider] = held - shares
	}
	return amountA, amountB, nil
}

// Swap trades amountIn of tokenIn for the other token in the pair.
// The fee stays in the reserves, so reserveA*reserveB never decreases.
func (p *Pool) Swap(trader, tokenIn string, amountIn, minAmountOut int64) (amountOut int64, err error) {
	if tokenIn != p.pair.A && tokenIn != p.pair.B {
		return 0, fmt.Errorf("swap %s in pool %s: %w", tokenIn, p.pair.Key(), ErrUnknownToken)
	}
	if amountIn <= 0 {
		return 0, fmt.Errorf("swap in %s: %w", p.pair.Key(), ErrZeroAmount)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	reserveIn, reserveOut := p.reserveA, p.reserveB
	tokenOut := p.pair.B
	if tokenIn == p.pair.B {
		reserveIn, reserveOut = p.reserveB, p.reserveA
		tokenOut = p.pair.A
	}

	amountOut, err = swapOut(reserveIn, reserveOut, p.feeBps, amountIn)
	if err != nil {
		return 0, fmt.Errorf("swap in %s: %w", p.pair.Key(), err)
	}
	if amountOut < minAmountOut {
		return 0, fmt.Errorf("out %d < min %d in %s: %w", amountOut, minAmountOut, p.pair.Key(), ErrSlippageExceeded)
	}

	err = p.ledger.Apply([]ledger.Movement{
		{From: trader, To: p.account, Token: tokenIn, Amount: amountIn},
		{From: p.account, To: trader, Token: tokenOut, Amount: amountOut},
	})
	if err != nil {
		return 0, err
	}

	p.applyLocked(tokenIn, amountIn, amountOut)
	return amountOut, nil
}

// swapOut prices a swap against the given reserves:
//
//	net = floor(in * (10000-feeBps) / 10000)
//	out = floor(reserveOut * net / (reserveIn + net))
func swapOut(reserveIn, reserveOut, feeBps, amountIn int64) (int64, error) {
	if reserveIn == 0 || reserveOut == 0 {
		return 0, ErrInsufficientLiquidity
	}
	net, err := num.MulDiv(amountIn, bpsDenom-feeBps, bpsDenom)
	if err != nil {
		return 0, err
	}
	denom, err := num.CheckedAdd(reserveIn, net)
	if err != nil {
		return 0, err
	}
	out, err := num.MulDiv(reserveOut, net, denom)
	if err != nil {
		return 0, err
	}
	if out == 0 {
		return 0, ErrInsufficientLiquidity
	}
	// The committed input includes the fee; make sure the grown reserve fits.
	if _, err := num.CheckedAdd(reserveIn, amountIn); err != nil {
		return 0, err
	}
	return out, nil
}

// applyLocked commits a priced swap to the reserves. Caller holds p.mu and
// has already moved the tokens in the ledger. A constant-product regression
// here means the pricing math is broken, which is unrecoverable.
func (p *Pool) applyLocked(tokenIn string, amountIn, amountOut int64) {
	beforeA, beforeB := p.reserveA, p.reserveB
	if tokenIn == p.pair.A {
		p.reserveA += amountIn
		p.reserveB -= amountOut
	} else {
		p.reserveB += amountIn
		p.reserveA -= amountOut
	}
	if !num.ProductGrew(beforeA, beforeB, p.reserveA, p.reserveB) {
		panic(fmt.Sprintf("constant product regression in %s: (%d,%d) -> (%d,%d)",
			p.pair.Key(), beforeA, beforeB, p.reserveA, p.reserveB))
	}
}
