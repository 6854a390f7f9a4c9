package amm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/verex-dex/verex/pkg/ledger"
)

// testPool builds a funded ETH/USDC pool. lp holds 1M of each token.
func testPool(t *testing.T, feeBps int64) (*Pool, *ledger.Ledger) {
	t.Helper()
	l := ledger.New()
	reg := NewRegistry(l)
	p, err := reg.GetOrCreate("ETH", "USDC", feeBps)
	require.NoError(t, err)
	require.NoError(t, l.Credit("lp", "ETH", 1_000_000))
	require.NoError(t, l.Credit("lp", "USDC", 1_000_000))
	require.NoError(t, l.Credit("trader", "ETH", 1_000_000))
	require.NoError(t, l.Credit("trader", "USDC", 1_000_000))
	return p, l
}

func TestAddLiquidityInitial(t *testing.T) {
	p, l := testPool(t, 30)

	usedA, usedB, shares, err := p.AddLiquidity("lp", 1000, 4000, 0)
	require.NoError(t, err)
	require.Equal(t, int64(1000), usedA)
	require.Equal(t, int64(4000), usedB)
	require.Equal(t, int64(2000), shares) // sqrt(1000*4000)

	st := p.Snapshot()
	require.Equal(t, int64(1000), st.ReserveA)
	require.Equal(t, int64(4000), st.ReserveB)
	require.Equal(t, int64(2000), st.TotalShares)
	require.Equal(t, int64(2000), p.SharesOf("lp"))

	// Reserves are mirrored in the pool's ledger account.
	require.Equal(t, int64(1000), l.BalanceOf(p.Account(), "ETH"))
	require.Equal(t, int64(4000), l.BalanceOf(p.Account(), "USDC"))
	require.Equal(t, int64(999_000), l.BalanceOf("lp", "ETH"))
}

func TestAddLiquidityMatchesRatio(t *testing.T) {
	p, _ := testPool(t, 30)
	_, _, _, err := p.AddLiquidity("lp", 1000, 1000, 0)
	require.NoError(t, err)

	// B is over-supplied: scale B down to match A.
	usedA, usedB, shares, err := p.AddLiquidity("lp", 100, 200, 0)
	require.NoError(t, err)
	require.Equal(t, int64(100), usedA)
	require.Equal(t, int64(100), usedB)
	require.Equal(t, int64(100), shares)

	// A is over-supplied: scale A down to match B.
	usedA, usedB, shares, err = p.AddLiquidity("lp", 500, 50, 0)
	require.NoError(t, err)
	require.Equal(t, int64(50), usedA)
	require.Equal(t, int64(50), usedB)
	require.Equal(t, int64(50), shares)

	require.Equal(t, int64(1150), p.SharesOf("lp"))
}

func TestAddLiquidityNeverExceedsDesired(t *testing.T) {
	p, l := testPool(t, 30)
	_, _, _, err := p.AddLiquidity("lp", 1_000_000, 1, 0)
	require.NoError(t, err)

	// At this ratio the matching B for 500k A floors to zero, and matching
	// 5 B would need 5M A. Neither side fits the offer, so the deposit must
	// fail rather than debit more A than was offered.
	before := p.Snapshot()
	_, _, _, err = p.AddLiquidity("trader", 500_000, 5, 0)
	require.ErrorIs(t, err, ErrZeroAmount)
	require.Equal(t, before, p.Snapshot())
	require.Equal(t, int64(1_000_000), l.BalanceOf("trader", "ETH"))
	require.Equal(t, int64(0), p.SharesOf("trader"))
}

func TestAddLiquiditySlippage(t *testing.T) {
	p, l := testPool(t, 30)
	_, _, _, err := p.AddLiquidity("lp", 1000, 1000, 0)
	require.NoError(t, err)

	before := p.Snapshot()
	_, _, _, err = p.AddLiquidity("lp", 100, 100, 101)
	require.ErrorIs(t, err, ErrSlippageExceeded)
	require.Equal(t, before, p.Snapshot())
	require.Equal(t, int64(999_000), l.BalanceOf("lp", "ETH"))
}

func TestAddLiquidityErrors(t *testing.T) {
	p, _ := testPool(t, 30)

	_, _, _, err := p.AddLiquidity("lp", 0, 100, 0)
	require.ErrorIs(t, err, ErrZeroAmount)
	_, _, _, err = p.AddLiquidity("lp", 100, -1, 0)
	require.ErrorIs(t, err, ErrZeroAmount)

	// Poor account: deposit debit fails, pool stays empty.
	_, _, _, err = p.AddLiquidity("pauper", 1000, 1000, 0)
	require.ErrorIs(t, err, ledger.ErrInsufficientBalance)
	require.Equal(t, int64(0), p.Snapshot().TotalShares)
}

func TestRemoveLiquidity(t *testing.T) {
	p, l := testPool(t, 30)
	_, _, shares, err := p.AddLiquidity("lp", 1000, 4000, 0)
	require.NoError(t, err)
	require.Equal(t, int64(2000), shares)

	amountA, amountB, err := p.RemoveLiquidity("lp", 500, 0, 0)
	require.NoError(t, err)
	require.Equal(t, int64(250), amountA)  // 1000*500/2000
	require.Equal(t, int64(1000), amountB) // 4000*500/2000

	st := p.Snapshot()
	require.Equal(t, int64(750), st.ReserveA)
	require.Equal(t, int64(3000), st.ReserveB)
	require.Equal(t, int64(1500), st.TotalShares)
	require.Equal(t, int64(1500), p.SharesOf("lp"))
	require.Equal(t, int64(750), l.BalanceOf(p.Account(), "ETH"))

	// Burning the rest empties the position.
	_, _, err = p.RemoveLiquidity("lp", 1500, 0, 0)
	require.NoError(t, err)
	require.Equal(t, int64(0), p.SharesOf("lp"))
	require.Equal(t, int64(1_000_000), l.BalanceOf("lp", "ETH"))
	require.Equal(t, int64(1_000_000), l.BalanceOf("lp", "USDC"))
}

func TestRemoveLiquidityErrors(t *testing.T) {
	p, _ := testPool(t, 30)
	_, _, _, err := p.AddLiquidity("lp", 1000, 1000, 0)
	require.NoError(t, err)

	_, _, err = p.RemoveLiquidity("lp", 0, 0, 0)
	require.ErrorIs(t, err, ErrZeroAmount)

	_, _, err = p.RemoveLiquidity("lp", 1001, 0, 0)
	require.ErrorIs(t, err, ErrInsufficientShares)

	_, _, err = p.RemoveLiquidity("stranger", 1, 0, 0)
	require.ErrorIs(t, err, ErrInsufficientShares)

	before := p.Snapshot()
	_, _, err = p.RemoveLiquidity("lp", 100, 101, 0)
	require.ErrorIs(t, err, ErrSlippageExceeded)
	require.Equal(t, before, p.Snapshot())
}

func TestSwapPricing(t *testing.T) {
	// 30 bps fee on (1000,1000): 100 in nets 99, out = floor(1000*99/1099) = 90.
	p, l := testPool(t, 30)
	_, _, _, err := p.AddLiquidity("lp", 1000, 1000, 0)
	require.NoError(t, err)

	out, err := p.Swap("trader", "ETH", 100, 0)
	require.NoError(t, err)
	require.Equal(t, int64(90), out)

	st := p.Snapshot()
	require.Equal(t, int64(1100), st.ReserveA) // ETH, fee included
	require.Equal(t, int64(910), st.ReserveB)  // USDC
	require.Equal(t, int64(999_900), l.BalanceOf("trader", "ETH"))
	require.Equal(t, int64(1_000_090), l.BalanceOf("trader", "USDC"))
	require.Equal(t, int64(1100), l.BalanceOf(p.Account(), "ETH"))
	require.Equal(t, int64(910), l.BalanceOf(p.Account(), "USDC"))
}

func TestSwapBothDirections(t *testing.T) {
	p, _ := testPool(t, 0)
	_, _, _, err := p.AddLiquidity("lp", 10_000, 10_000, 0)
	require.NoError(t, err)

	out, err := p.Swap("trader", "USDC", 1000, 0)
	require.NoError(t, err)
	require.Equal(t, int64(909), out) // floor(10000*1000/11000)

	st := p.Snapshot()
	require.Equal(t, int64(9091), st.ReserveA)  // ETH drained
	require.Equal(t, int64(11_000), st.ReserveB)
}

func TestSwapRoundTripLosesToRounding(t *testing.T) {
	p, _ := testPool(t, 0)
	_, _, _, err := p.AddLiquidity("lp", 10_000, 10_000, 0)
	require.NoError(t, err)

	out, err := p.Swap("trader", "ETH", 100, 0)
	require.NoError(t, err)
	back, err := p.Swap("trader", "USDC", out, 0)
	require.NoError(t, err)

	// Zero fee: the round trip loses at most rounding dust, never gains.
	require.LessOrEqual(t, back, int64(100))
	require.GreaterOrEqual(t, back, int64(98))
}

func TestSwapConstantProductNeverDecreases(t *testing.T) {
	p, _ := testPool(t, 30)
	_, _, _, err := p.AddLiquidity("lp", 5000, 8000, 0)
	require.NoError(t, err)

	k := func() (int64, int64) {
		st := p.Snapshot()
		return st.ReserveA, st.ReserveB
	}
	prevA, prevB := k()
	swaps := []struct {
		token  string
		amount int64
	}{
		{"ETH", 100}, {"USDC", 250}, {"ETH", 1}, {"USDC", 3000}, {"ETH", 777},
	}
	for _, s := range swaps {
		_, err := p.Swap("trader", s.token, s.amount, 0)
		require.NoError(t, err)
		a, b := k()
		require.True(t, a*b >= prevA*prevB, "product shrank after %d %s in", s.amount, s.token)
		prevA, prevB = a, b
	}
}

func TestSwapErrors(t *testing.T) {
	p, l := testPool(t, 30)

	// Empty pool.
	_, err := p.Swap("trader", "ETH", 100, 0)
	require.ErrorIs(t, err, ErrInsufficientLiquidity)

	_, _, _, err = p.AddLiquidity("lp", 1000, 1000, 0)
	require.NoError(t, err)

	_, err = p.Swap("trader", "BTC", 100, 0)
	require.ErrorIs(t, err, ErrUnknownToken)

	_, err = p.Swap("trader", "ETH", 0, 0)
	require.ErrorIs(t, err, ErrZeroAmount)

	// Dust input prices to zero output.
	_, err = p.Swap("trader", "ETH", 1, 0)
	require.ErrorIs(t, err, ErrInsufficientLiquidity)

	// Slippage guard: nothing moves.
	before := p.Snapshot()
	_, err = p.Swap("trader", "ETH", 100, 91)
	require.ErrorIs(t, err, ErrSlippageExceeded)
	require.Equal(t, before, p.Snapshot())
	require.Equal(t, int64(1_000_000), l.BalanceOf("trader", "ETH"))
}

func TestSwapConservation(t *testing.T) {
	p, l := testPool(t, 30)
	_, _, _, err := p.AddLiquidity("lp", 1000, 1000, 0)
	require.NoError(t, err)

	ethBefore := l.TotalSupply("ETH")
	usdcBefore := l.TotalSupply("USDC")

	_, err = p.Swap("trader", "ETH", 100, 0)
	require.NoError(t, err)
	_, _, err = p.RemoveLiquidity("lp", 500, 0, 0)
	require.NoError(t, err)

	require.Equal(t, ethBefore, l.TotalSupply("ETH"))
	require.Equal(t, usdcBefore, l.TotalSupply("USDC"))
}

func TestFeeAccruesToLPs(t *testing.T) {
	p, _ := testPool(t, 30)
	_, _, shares, err := p.AddLiquidity("lp", 100_000, 100_000, 0)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		_, err = p.Swap("trader", "ETH", 1000, 0)
		require.NoError(t, err)
		out, err := p.Swap("trader", "USDC", 1000, 0)
		require.NoError(t, err)
		require.Positive(t, out)
	}

	// Burning all shares returns strictly more value than deposited.
	amountA, amountB, err := p.RemoveLiquidity("lp", shares, 0, 0)
	require.NoError(t, err)
	require.Greater(t, amountA+amountB, int64(200_000))
	require.Equal(t, int64(0), p.Snapshot().TotalShares)
}
