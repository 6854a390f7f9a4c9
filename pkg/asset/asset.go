// Package asset defines token identities and canonical token pairs.
package asset

import (
	"fmt"
	"sync"
)

// Token is a token identity with its fixed-point decimal scale.
// Immutable once registered.
type Token struct {
	Symbol   string
	Decimals uint8
}

// Pair is an unordered token pair canonicalized by symbol order.
// Construct through NewPair so A < B always holds.
type Pair struct {
	A string
	B string
}

// NewPair canonicalizes the pair: the lexicographically smaller symbol is A.
func NewPair(x, y string) (Pair, error) {
	if x == "" || y == "" {
		return Pair{}, fmt.Errorf("empty token symbol")
	}
	if x == y {
		return Pair{}, fmt.Errorf("pair requires two distinct tokens, got %s twice", x)
	}
	if x < y {
		return Pair{A: x, B: y}, nil
	}
	return Pair{A: y, B: x}, nil
}

// Key returns the canonical "A/B" identifier for the pair.
func (p Pair) Key() string { return p.A + "/" + p.B }

// Registry is a thread-safe token catalog.
// Registering the same symbol twice with identical decimals is a no-op;
// changing the decimals of a known token fails.
type Registry struct {
	mu     sync.RWMutex
	tokens map[string]Token
}

func NewRegistry() *Registry {
	return &Registry{tokens: make(map[string]Token)}
}

func (r *Registry) Register(symbol string, decimals uint8) (Token, error) {
	if symbol == "" {
		return Token{}, fmt.Errorf("empty token symbol")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.tokens[symbol]; ok {
		if t.Decimals != decimals {
			return Token{}, fmt.Errorf("token %s already registered with %d decimals", symbol, t.Decimals)
		}
		return t, nil
	}

	t := Token{Symbol: symbol, Decimals: decimals}
	r.tokens[symbol] = t
	return t, nil
}

func (r *Registry) Get(symbol string) (Token, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tokens[symbol]
	return t, ok
}

func (r *Registry) List() []Token {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Token, 0, len(r.tokens))
	for _, t := range r.tokens {
		out = append(out, t)
	}
	return out
}
