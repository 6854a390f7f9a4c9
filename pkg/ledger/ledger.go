// Package ledger is the token balance store: per-account, per-token
// non-negative fixed-point balances with atomic debit/credit/transfer.
//
// The ledger is the single source of truth for balances. AMM pool reserves
// and matching-engine escrows live here too, under reserved account ids
// ("pool:<pair>", "escrow:<market>"), so token conservation can be verified
// directly against ledger state.
package ledger

import (
	"errors"
	"fmt"
	"sync"

	"github.com/verex-dex/verex/pkg/num"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAmount       = errors.New("amount must be positive")
)

// Movement is one leg of an atomic batch: Amount of Token moves From -> To.
type Movement struct {
	From   string
	To     string
	Token  string
	Amount int64
}

// Ledger holds all balances behind a single RWMutex. Matching and swap
// critical sections are pure in-memory computation, so one lock is cheap
// and makes multi-leg settlement trivially atomic.
type Ledger struct {
	mu       sync.RWMutex
	balances map[string]map[string]int64 // account -> token -> balance
}

func New() *Ledger {
	return &Ledger{balances: make(map[string]map[string]int64)}
}

// Credit adds amount of token to account. Fails ErrInvalidAmount for
// non-positive amounts and ErrOverflow if the balance would exceed int64.
func (l *Ledger) Credit(account, token string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("credit %d %s to %s: %w", amount, token, account, ErrInvalidAmount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.creditLocked(account, token, amount)
}

// Debit removes amount of token from account.
// Fails ErrInsufficientBalance if the balance is smaller than amount.
func (l *Ledger) Debit(account, token string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("debit %d %s from %s: %w", amount, token, account, ErrInvalidAmount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.debitLocked(account, token, amount)
}

// Transfer moves amount of token from one account to another as a single
// atomic unit. If the debit fails, no state changes.
func (l *Ledger) Transfer(from, to, token string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("transfer %d %s: %w", amount, token, ErrInvalidAmount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.debitLocked(from, token, amount); err != nil {
		return err
	}
	if err := l.creditLocked(to, token, amount); err != nil {
		// Undo the debit so a credit-side overflow leaves no partial state.
		l.balances[from][token] += amount
		return err
	}
	return nil
}

// Apply executes a batch of movements atomically: every leg is validated
// against the pre-state plus earlier legs in the batch, and either all legs
// commit or none do. This is the settlement primitive for trades and swaps.
func (l *Ledger) Apply(movs []Movement) error {
	if len(movs) == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Dry-run against a delta overlay before touching real balances.
	deltas := make(map[string]map[string]int64)
	delta := func(account, token string) int64 {
		if m, ok := deltas[account]; ok {
			return m[token]
		}
		return 0
	}
	addDelta := func(account, token string, d int64) {
		m, ok := deltas[account]
		if !ok {
			m = make(map[string]int64)
			deltas[account] = m
		}
		m[token] += d
	}

	for _, mv := range movs {
		if mv.Amount <= 0 {
			return fmt.Errorf("movement %s->%s %d %s: %w", mv.From, mv.To, mv.Amount, mv.Token, ErrInvalidAmount)
		}
		have := l.balanceLocked(mv.From, mv.Token) + delta(mv.From, mv.Token)
		if have < mv.Amount {
			return fmt.Errorf("movement %s->%s %d %s (have %d): %w",
				mv.From, mv.To, mv.Amount, mv.Token, have, ErrInsufficientBalance)
		}
		if _, err := num.CheckedAdd(l.balanceLocked(mv.To, mv.Token)+delta(mv.To, mv.Token), mv.Amount); err != nil {
			return fmt.Errorf("movement %s->%s %d %s: %w", mv.From, mv.To, mv.Amount, mv.Token, err)
		}
		addDelta(mv.From, mv.Token, -mv.Amount)
		addDelta(mv.To, mv.Token, mv.Amount)
	}

	for account, tokens := range deltas {
		for token, d := range tokens {
			if d == 0 {
				continue
			}
			l.setLocked(account, token, l.balanceLocked(account, token)+d)
		}
	}
	return nil
}

// BalanceOf returns the balance of token held by account (0 if unknown).
func (l *Ledger) BalanceOf(account, token string) int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balanceLocked(account, token)
}

// TotalSupply sums a token's balance over every account, including pool and
// escrow accounts. Conservation means this is constant across swaps,
// liquidity operations, and trades.
func (l *Ledger) TotalSupply(token string) int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var total int64
	for _, tokens := range l.balances {
		total += tokens[token]
	}
	return total
}

func (l *Ledger) creditLocked(account, token string, amount int64) error {
	next, err := num.CheckedAdd(l.balanceLocked(account, token), amount)
	if err != nil {
		return fmt.Errorf("credit %d %s to %s: %w", amount, token, account, err)
	}
	l.setLocked(account, token, next)
	return nil
}

func (l *Ledger) debitLocked(account, token string, amount int64) error {
	have := l.balanceLocked(account, token)
	if have < amount {
		return fmt.Errorf("debit %d %s from %s (have %d): %w", amount, token, account, have, ErrInsufficientBalance)
	}
	l.setLocked(account, token, have-amount)
	return nil
}

func (l *Ledger) balanceLocked(account, token string) int64 {
	if m, ok := l.balances[account]; ok {
		return m[token]
	}
	return 0
}

func (l *Ledger) setLocked(account, token string, v int64) {
	m, ok := l.balances[account]
	if !ok {
		m = make(map[string]int64)
		l.balances[account] = m
	}
	m[token] = v
}
