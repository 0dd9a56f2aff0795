package token

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, shopID uint64, cfg Config) *Engine {
	t.Helper()
	eng := NewEngine(NewMemStore())
	require.NoError(t, eng.ConfigureShop(shopID, cfg))
	return eng
}

func TestRewardOnPurchaseMintsProportionally(t *testing.T) {
	eng := newTestEngine(t, 1, Config{Enabled: true, RewardRateBps: 500, ExchangeRateBps: 1000})
	buyer := [20]byte{1}

	minted, err := eng.RewardOnPurchase(1, buyer, big.NewInt(10_000))
	require.NoError(t, err)
	require.Equal(t, int64(500), minted.Int64())

	bal, err := eng.store.GetBalance(1, buyer)
	require.NoError(t, err)
	require.Equal(t, int64(500), bal.Int64())
}

func TestRewardOnPurchaseNoopWhenDisabled(t *testing.T) {
	eng := newTestEngine(t, 1, Config{Enabled: false, RewardRateBps: 500})
	minted, err := eng.RewardOnPurchase(1, [20]byte{1}, big.NewInt(10_000))
	require.NoError(t, err)
	require.Equal(t, int64(0), minted.Int64())
}

func TestRedeemForDiscountEnforcesMinMax(t *testing.T) {
	eng := newTestEngine(t, 1, Config{
		Enabled: true, ExchangeRateBps: 1000,
		MinRedeem: big.NewInt(100), MaxRedeemPerOrder: big.NewInt(1000),
	})
	buyer := [20]byte{1}
	require.NoError(t, eng.store.SetBalance(1, buyer, big.NewInt(5000)))

	_, err := eng.RedeemForDiscount(1, buyer, big.NewInt(50))
	require.ErrorIs(t, err, ErrBelowMinRedeem)

	_, err = eng.RedeemForDiscount(1, buyer, big.NewInt(2000))
	require.ErrorIs(t, err, ErrAboveMaxRedeem)

	discount, err := eng.RedeemForDiscount(1, buyer, big.NewInt(500))
	require.NoError(t, err)
	require.Equal(t, int64(50), discount.Int64())

	bal, err := eng.store.GetBalance(1, buyer)
	require.NoError(t, err)
	require.Equal(t, int64(4500), bal.Int64())
}

func TestRedeemForDiscountRejectsInsufficientBalance(t *testing.T) {
	eng := newTestEngine(t, 1, Config{Enabled: true, ExchangeRateBps: 1000, MinRedeem: big.NewInt(1)})
	buyer := [20]byte{1}
	require.NoError(t, eng.store.SetBalance(1, buyer, big.NewInt(10)))

	_, err := eng.RedeemForDiscount(1, buyer, big.NewInt(100))
	require.ErrorIs(t, err, ErrInsufficientTokens)
}

func TestLockTokensMergesToLaterUnlockAt(t *testing.T) {
	eng := newTestEngine(t, 1, Config{Enabled: true, MaxSupply: big.NewInt(1_000_000)})
	holder := [20]byte{1}

	require.NoError(t, eng.LockTokens(1, holder, big.NewInt(100), 500))
	require.NoError(t, eng.LockTokens(1, holder, big.NewInt(50), 300)) // earlier unlock, should not regress

	lock, ok, err := eng.store.GetLock(1, holder)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(150), lock.Amount.Int64())
	require.EqualValues(t, 500, lock.UnlockAt)
}

func TestDistributeDividendRequiresEnabledAndElapsedPeriod(t *testing.T) {
	eng := newTestEngine(t, 1, Config{Enabled: true, Dividend: DividendConfig{Enabled: false}})
	err := eng.DistributeDividend(1, big.NewInt(1000), nil, 100)
	require.ErrorIs(t, err, ErrDividendDisabled)

	eng2 := newTestEngine(t, 1, Config{Enabled: true, Dividend: DividendConfig{Enabled: true, MinPeriodBlocks: 1000}})
	err = eng2.DistributeDividend(1, big.NewInt(1000), nil, 100)
	require.ErrorIs(t, err, ErrDividendTooSoon)
}

func TestDistributeAndClaimDividend(t *testing.T) {
	eng := newTestEngine(t, 1, Config{Enabled: true, Dividend: DividendConfig{Enabled: true, MinPeriodBlocks: 10}, MaxSupply: big.NewInt(1_000_000)})
	holderA := [20]byte{1}
	holderB := [20]byte{2}
	require.NoError(t, eng.store.SetBalance(1, holderA, big.NewInt(750)))
	require.NoError(t, eng.store.SetBalance(1, holderB, big.NewInt(250)))
	require.NoError(t, eng.store.SetSupply(1, big.NewInt(1000)))

	require.NoError(t, eng.DistributeDividend(1, big.NewInt(400), [][20]byte{holderA, holderB}, 20))

	paid, err := eng.ClaimDividend(1, holderA)
	require.NoError(t, err)
	require.Equal(t, int64(300), paid.Int64())

	paidB, err := eng.ClaimDividend(1, holderB)
	require.NoError(t, err)
	require.Equal(t, int64(100), paidB.Int64())

	_, err = eng.ClaimDividend(1, holderA)
	require.ErrorIs(t, err, ErrNoPendingDividend)
}

func TestRewardOnPurchaseRespectsMaxSupply(t *testing.T) {
	eng := newTestEngine(t, 1, Config{Enabled: true, RewardRateBps: 10_000, MaxSupply: big.NewInt(100)})
	_, err := eng.RewardOnPurchase(1, [20]byte{1}, big.NewInt(1000))
	require.ErrorIs(t, err, ErrMaxSupplyExceeded)
}
