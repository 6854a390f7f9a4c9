package amm

import (
	"fmt"
	"sort"

	"github.com/verex-dex/verex/pkg/ledger"
)

// Router plans and executes multi-hop swaps across pools.
//
// A multi-hop swap is two-phase: the whole chain of outputs is priced
// against a working copy of the reserves first (no mutation), and only when
// the final output clears minAmountOut does the router commit the ledger
// movements and reserve deltas for every hop. All-or-nothing across pools.
type Router struct {
	reg     *Registry
	ledger  *ledger.Ledger
	maxHops int
}

func NewRouter(reg *Registry, l *ledger.Ledger, maxHops int) *Router {
	if maxHops <= 0 {
		maxHops = 4
	}
	return &Router{reg: reg, ledger: l, maxHops: maxHops}
}

// hop is one resolved leg of a path.
type hop struct {
	pool     *Pool
	tokenIn  string
	tokenOut string
}

// resolve maps a token path to its pools. Every consecutive pair must have
// an existing pool.
func (r *Router) resolve(path []string) ([]hop, error) {
	if len(path) < 2 {
		return nil, fmt.Errorf("path needs at least two tokens: %w", ErrPathNotFound)
	}
	if len(path)-1 > r.maxHops {
		return nil, fmt.Errorf("path of %d hops exceeds limit %d: %w", len(path)-1, r.maxHops, ErrPathNotFound)
	}
	hops := make([]hop, 0, len(path)-1)
	for i := 0; i+1 < len(path); i++ {
		p, ok := r.reg.Get(path[i], path[i+1])
		if !ok {
			return nil, fmt.Errorf("no pool for %s/%s: %w", path[i], path[i+1], ErrPathNotFound)
		}
		hops = append(hops, hop{pool: p, tokenIn: path[i], tokenOut: path[i+1]})
	}
	return hops, nil
}

// lockPools locks the distinct pools on the route in canonical key order, so
// concurrently routed swaps sharing pools cannot deadlock. Returns the
// unlock function.
func lockPools(hops []hop) func() {
	seen := make(map[*Pool]struct{}, len(hops))
	pools := make([]*Pool, 0, len(hops))
	for _, h := range hops {
		if _, ok := seen[h.pool]; ok {
			continue
		}
		seen[h.pool] = struct{}{}
		pools = append(pools, h.pool)
	}
	sort.Slice(pools, func(i, j int) bool { return pools[i].pair.Key() < pools[j].pair.Key() })
	for _, p := range pools {
		p.mu.Lock()
	}
	return func() {
		for _, p := range pools {
			p.mu.Unlock()
		}
	}
}

// dryRun prices the full chain against working reserves without mutating
// anything. Handles the same pool appearing on multiple hops. Caller holds
// the pool locks. Returns the per-hop outputs.
func dryRun(hops []hop, amountIn int64) ([]int64, error) {
	type reserves struct{ a, b int64 }
	working := make(map[*Pool]*reserves, len(hops))

	outs := make([]int64, len(hops))
	current := amountIn
	for i, h := range hops {
		w, ok := working[h.pool]
		if !ok {
			w = &reserves{a: h.pool.reserveA, b: h.pool.reserveB}
			working[h.pool] = w
		}
		rin, rout := w.a, w.b
		if h.tokenIn == h.pool.pair.B {
			rin, rout = w.b, w.a
		}
		out, err := swapOut(rin, rout, h.pool.feeBps, current)
		if err != nil {
			return nil, fmt.Errorf("hop %s -> %s: %w", h.tokenIn, h.tokenOut, err)
		}
		if h.tokenIn == h.pool.pair.A {
			w.a += current
			w.b -= out
		} else {
			w.b += current
			w.a -= out
		}
		outs[i] = out
		current = out
	}
	return outs, nil
}

// MultiTokenSwap executes a swap along an explicit token path.
// path[0] is spent by trader, path[len-1] is received.
func (r *Router) MultiTokenSwap(trader string, path []string, amountIn, minAmountOut int64) (int64, error) {
	if amountIn <= 0 {
		return 0, fmt.Errorf("multi-hop swap: %w", ErrZeroAmount)
	}
	hops, err := r.resolve(path)
	if err != nil {
		return 0, err
	}

	unlock := lockPools(hops)
	defer unlock()

	outs, err := dryRun(hops, amountIn)
	if err != nil {
		return 0, err
	}
	final := outs[len(outs)-1]
	if final < minAmountOut {
		return 0, fmt.Errorf("out %d < min %d along %v: %w", final, minAmountOut, path, ErrSlippageExceeded)
	}

	// Commit phase. Tokens flow trader -> pool1 -> ... -> poolN -> trader in
	// one atomic ledger batch, one movement per boundary, then each pool's
	// reserves are updated. The dry-run already validated every step, so the
	// batch cannot fail short of a programming error.
	movs := make([]ledger.Movement, 0, len(hops)+1)
	from := trader
	in := amountIn
	for i, h := range hops {
		movs = append(movs, ledger.Movement{From: from, To: h.pool.account, Token: h.tokenIn, Amount: in})
		from = h.pool.account
		in = outs[i]
	}
	last := hops[len(hops)-1]
	movs = append(movs, ledger.Movement{From: last.pool.account, To: trader, Token: last.tokenOut, Amount: final})
	if err := r.ledger.Apply(movs); err != nil {
		return 0, fmt.Errorf("multi-hop settlement: %w", err)
	}

	in = amountIn
	for i, h := range hops {
		h.pool.applyLocked(h.tokenIn, in, outs[i])
		in = outs[i]
	}
	return final, nil
}

// Quote prices a path without executing it.
func (r *Router) Quote(path []string, amountIn int64) (int64, error) {
	if amountIn <= 0 {
		return 0, fmt.Errorf("quote: %w", ErrZeroAmount)
	}
	hops, err := r.resolve(path)
	if err != nil {
		return 0, err
	}

	unlock := lockPools(hops)
	defer unlock()

	outs, err := dryRun(hops, amountIn)
	if err != nil {
		return 0, err
	}
	return outs[len(outs)-1], nil
}

// RouteSwap discovers the shortest route via the registry graph and executes
// it. Convenience for callers that only know the endpoints.
func (r *Router) RouteSwap(trader, tokenIn, tokenOut string, amountIn, minAmountOut int64) (out int64, path []string, err error) {
	path, err = r.reg.FindPath(tokenIn, tokenOut, r.maxHops)
	if err != nil {
		return 0, nil, err
	}
	out, err = r.MultiTokenSwap(trader, path, amountIn, minAmountOut)
	return out, path, err
}
