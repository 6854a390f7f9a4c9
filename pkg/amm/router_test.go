package amm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/verex-dex/verex/pkg/ledger"
)

// testRouter builds ETH/USDC and BTC/USDC pools with zero fee so hop outputs
// are easy to compute, and funds lp and trader.
func testRouter(t *testing.T) (*Router, *Registry, *ledger.Ledger) {
	t.Helper()
	l := ledger.New()
	reg := NewRegistry(l)
	r := NewRouter(reg, l, 4)

	for _, tok := range []string{"ETH", "USDC", "BTC"} {
		require.NoError(t, l.Credit("lp", tok, 10_000_000))
	}
	require.NoError(t, l.Credit("trader", "ETH", 1_000_000))

	p1, err := reg.GetOrCreate("ETH", "USDC", 0)
	require.NoError(t, err)
	_, _, _, err = p1.AddLiquidity("lp", 100_000, 100_000, 0)
	require.NoError(t, err)

	p2, err := reg.GetOrCreate("BTC", "USDC", 0)
	require.NoError(t, err)
	_, _, _, err = p2.AddLiquidity("lp", 100_000, 100_000, 0)
	require.NoError(t, err)

	return r, reg, l
}

func TestMultiTokenSwap(t *testing.T) {
	r, reg, l := testRouter(t)

	// ETH -> USDC -> BTC across two pools.
	out, err := r.MultiTokenSwap("trader", []string{"ETH", "USDC", "BTC"}, 1000, 0)
	require.NoError(t, err)
	// Hop 1: floor(100000*1000/101000) = 990.
	// Hop 2: floor(100000*990/100990) = 980.
	require.Equal(t, int64(980), out)

	require.Equal(t, int64(999_000), l.BalanceOf("trader", "ETH"))
	require.Equal(t, int64(980), l.BalanceOf("trader", "BTC"))
	require.Equal(t, int64(0), l.BalanceOf("trader", "USDC")) // intermediate never touches the trader

	p1, _ := reg.Get("ETH", "USDC")
	st1 := p1.Snapshot()
	require.Equal(t, int64(101_000), st1.ReserveA) // ETH
	require.Equal(t, int64(99_010), st1.ReserveB)  // USDC

	p2, _ := reg.Get("BTC", "USDC")
	st2 := p2.Snapshot()
	require.Equal(t, int64(99_020), st2.ReserveA)  // BTC
	require.Equal(t, int64(100_990), st2.ReserveB) // USDC
}

func TestMultiTokenSwapPoolAccountsMatchReserves(t *testing.T) {
	r, reg, l := testRouter(t)

	// A path across two distinct pools moves the intermediate token between
	// the pool accounts exactly once, so each account stays equal to its
	// pool's reserves.
	_, err := r.MultiTokenSwap("trader", []string{"ETH", "USDC", "BTC"}, 1000, 0)
	require.NoError(t, err)

	p1, _ := reg.Get("ETH", "USDC")
	p2, _ := reg.Get("BTC", "USDC")
	st1, st2 := p1.Snapshot(), p2.Snapshot()
	require.Equal(t, st1.ReserveA, l.BalanceOf(p1.Account(), "ETH"))
	require.Equal(t, st1.ReserveB, l.BalanceOf(p1.Account(), "USDC"))
	require.Equal(t, st2.ReserveA, l.BalanceOf(p2.Account(), "BTC"))
	require.Equal(t, st2.ReserveB, l.BalanceOf(p2.Account(), "USDC"))

	// Large enough that a hop's output exceeds half the output reserve;
	// settlement must still clear from the pool accounts.
	out, err := r.MultiTokenSwap("trader", []string{"ETH", "USDC", "BTC"}, 200_000, 0)
	require.NoError(t, err)
	require.Positive(t, out)

	st1, st2 = p1.Snapshot(), p2.Snapshot()
	require.Equal(t, st1.ReserveA, l.BalanceOf(p1.Account(), "ETH"))
	require.Equal(t, st1.ReserveB, l.BalanceOf(p1.Account(), "USDC"))
	require.Equal(t, st2.ReserveA, l.BalanceOf(p2.Account(), "BTC"))
	require.Equal(t, st2.ReserveB, l.BalanceOf(p2.Account(), "USDC"))
}

func TestMultiTokenSwapSlippageLeavesNoTrace(t *testing.T) {
	r, reg, l := testRouter(t)

	p1, _ := reg.Get("ETH", "USDC")
	p2, _ := reg.Get("BTC", "USDC")
	before1, before2 := p1.Snapshot(), p2.Snapshot()

	_, err := r.MultiTokenSwap("trader", []string{"ETH", "USDC", "BTC"}, 1000, 981)
	require.ErrorIs(t, err, ErrSlippageExceeded)

	require.Equal(t, before1, p1.Snapshot())
	require.Equal(t, before2, p2.Snapshot())
	require.Equal(t, int64(1_000_000), l.BalanceOf("trader", "ETH"))
	require.Equal(t, int64(0), l.BalanceOf("trader", "BTC"))
}

func TestMultiTokenSwapValidation(t *testing.T) {
	r, _, _ := testRouter(t)

	_, err := r.MultiTokenSwap("trader", []string{"ETH", "USDC"}, 0, 0)
	require.ErrorIs(t, err, ErrZeroAmount)

	_, err = r.MultiTokenSwap("trader", []string{"ETH"}, 100, 0)
	require.ErrorIs(t, err, ErrPathNotFound)

	// No ETH/BTC pool exists.
	_, err = r.MultiTokenSwap("trader", []string{"ETH", "BTC"}, 100, 0)
	require.ErrorIs(t, err, ErrPathNotFound)

	// Path longer than the hop limit.
	long := []string{"ETH", "USDC", "BTC", "USDC", "ETH", "USDC"}
	_, err = r.MultiTokenSwap("trader", long, 100, 0)
	require.ErrorIs(t, err, ErrPathNotFound)
}

func TestMultiTokenSwapRevisitsPool(t *testing.T) {
	r, reg, l := testRouter(t)

	// ETH -> USDC -> ETH hits the same pool on both hops; the dry run must
	// price the second hop against the post-first-hop reserves.
	out, err := r.MultiTokenSwap("trader", []string{"ETH", "USDC", "ETH"}, 1000, 0)
	require.NoError(t, err)
	// Round trip through the same pool can only lose to rounding.
	require.LessOrEqual(t, out, int64(1000))
	require.Positive(t, out)

	// The trader ends flat in USDC and the pool account matches reserves.
	p, _ := reg.Get("ETH", "USDC")
	st := p.Snapshot()
	require.Equal(t, st.ReserveA, l.BalanceOf(p.Account(), "ETH"))
	require.Equal(t, st.ReserveB, l.BalanceOf(p.Account(), "USDC"))
}

func TestQuoteDoesNotMutate(t *testing.T) {
	r, reg, l := testRouter(t)

	out, err := r.Quote([]string{"ETH", "USDC", "BTC"}, 1000)
	require.NoError(t, err)
	require.Equal(t, int64(980), out)

	p1, _ := reg.Get("ETH", "USDC")
	require.Equal(t, int64(100_000), p1.Snapshot().ReserveA)
	require.Equal(t, int64(1_000_000), l.BalanceOf("trader", "ETH"))

	_, err = r.Quote([]string{"ETH", "USDC"}, 0)
	require.ErrorIs(t, err, ErrZeroAmount)
}

func TestRouteSwap(t *testing.T) {
	r, _, l := testRouter(t)

	out, path, err := r.RouteSwap("trader", "ETH", "BTC", 1000, 0)
	require.NoError(t, err)
	require.Equal(t, []string{"ETH", "USDC", "BTC"}, path)
	require.Equal(t, int64(980), out)
	require.Equal(t, int64(980), l.BalanceOf("trader", "BTC"))

	_, _, err = r.RouteSwap("trader", "ETH", "DOGE", 1000, 0)
	require.ErrorIs(t, err, ErrPathNotFound)
}

func TestRouterConservation(t *testing.T) {
	r, _, l := testRouter(t)

	before := map[string]int64{}
	for _, tok := range []string{"ETH", "USDC", "BTC"} {
		before[tok] = l.TotalSupply(tok)
	}

	_, err := r.MultiTokenSwap("trader", []string{"ETH", "USDC", "BTC"}, 12_345, 0)
	require.NoError(t, err)

	for tok, want := range before {
		require.Equal(t, want, l.TotalSupply(tok), "supply of %s changed", tok)
	}
}
