package amm

import (
	"fmt"
	"sync"

	"github.com/verex-dex/verex/pkg/asset"
	"github.com/verex-dex/verex/pkg/ledger"
)

// Registry is the catalog of pools keyed by canonical pair, and the graph of
// trading edges used for route discovery. One pool per unordered pair.
type Registry struct {
	mu     sync.RWMutex
	ledger *ledger.Ledger
	pools  map[string]*Pool    // pair key -> pool
	edges  map[string][]string // token -> neighbor tokens with an existing pool
}

func NewRegistry(l *ledger.Ledger) *Registry {
	return &Registry{
		ledger: l,
		pools:  make(map[string]*Pool),
		edges:  make(map[string][]string),
	}
}

// GetOrCreate returns the canonical pool for the unordered pair, creating it
// empty on first use. feeBps only applies at creation; an existing pool keeps
// its fee.
func (r *Registry) GetOrCreate(tokenA, tokenB string, feeBps int64) (*Pool, error) {
	if feeBps < 0 || feeBps >= bpsDenom {
		return nil, fmt.Errorf("fee %d bps: %w", feeBps, ErrInvalidFee)
	}
	pair, err := asset.NewPair(tokenA, tokenB)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.pools[pair.Key()]; ok {
		return p, nil
	}

	p := newPool(pair, feeBps, r.ledger)
	r.pools[pair.Key()] = p
	r.edges[pair.A] = append(r.edges[pair.A], pair.B)
	r.edges[pair.B] = append(r.edges[pair.B], pair.A)
	return p, nil
}

// Get returns the pool for the unordered pair, if it exists.
func (r *Registry) Get(tokenA, tokenB string) (*Pool, bool) {
	pair, err := asset.NewPair(tokenA, tokenB)
	if err != nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pools[pair.Key()]
	return p, ok
}

// Lookup returns a pool by its canonical "A/B" id.
func (r *Registry) Lookup(id string) (*Pool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pools[id]
	return p, ok
}

// List returns snapshots of every pool.
func (r *Registry) List() []State {
	r.mu.RLock()
	pools := make([]*Pool, 0, len(r.pools))
	for _, p := range r.pools {
		pools = append(pools, p)
	}
	r.mu.RUnlock()

	out := make([]State, 0, len(pools))
	for _, p := range pools {
		out = append(out, p.Snapshot())
	}
	return out
}

// FindPath runs a breadth-first search over the pool graph and returns the
// shortest token route from tokenIn to tokenOut using at most maxHops pools.
// Fails ErrPathNotFound when no route exists within the bound.
func (r *Registry) FindPath(tokenIn, tokenOut string, maxHops int) ([]string, error) {
	if tokenIn == tokenOut {
		return nil, fmt.Errorf("route %s -> %s: %w", tokenIn, tokenOut, ErrPathNotFound)
	}
	if maxHops <= 0 {
		maxHops = 1
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	type node struct {
		token string
		hops  int
	}
	parent := map[string]string{tokenIn: ""}
	queue := []node{{token: tokenIn, hops: 0}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.hops >= maxHops {
			continue
		}
		for _, next := range r.edges[cur.token] {
			if _, seen := parent[next]; seen {
				continue
			}
			parent[next] = cur.token
			if next == tokenOut {
				// Walk the parent chain back to tokenIn.
				path := []string{tokenOut}
				for t := cur.token; t != ""; t = parent[t] {
					path = append(path, t)
				}
				for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
					path[i], path[j] = path[j], path[i]
				}
				return path, nil
			}
			queue = append(queue, node{token: next, hops: cur.hops + 1})
		}
	}
	return nil, fmt.Errorf("route %s -> %s within %d hops: %w", tokenIn, tokenOut, maxHops, ErrPathNotFound)
}
