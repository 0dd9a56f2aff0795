package entity

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"nexuschain/nexus/providers"
)

type fakeCurrency struct {
	balances map[[20]byte]*big.Int
}

func newFakeCurrency() *fakeCurrency {
	return &fakeCurrency{balances: make(map[[20]byte]*big.Int)}
}

func (c *fakeCurrency) bal(who [20]byte) *big.Int {
	b, ok := c.balances[who]
	if !ok {
		b = big.NewInt(0)
		c.balances[who] = b
	}
	return b
}

func (c *fakeCurrency) Transfer(from, to [20]byte, amount *big.Int, req providers.ExistenceRequirement) error {
	c.bal(from).Sub(c.bal(from), amount)
	c.bal(to).Add(c.bal(to), amount)
	return nil
}
func (c *fakeCurrency) Reserve(who [20]byte, amount *big.Int) error { return nil }
func (c *fakeCurrency) Unreserve(who [20]byte, amount *big.Int) (*big.Int, error) {
	return amount, nil
}
func (c *fakeCurrency) FreeBalance(who [20]byte) (*big.Int, error) { return new(big.Int).Set(c.bal(who)), nil }
func (c *fakeCurrency) ReservedBalance(who [20]byte) (*big.Int, error) { return big.NewInt(0), nil }
func (c *fakeCurrency) DepositCreating(who [20]byte, amount *big.Int) error {
	c.bal(who).Add(c.bal(who), amount)
	return nil
}
func (c *fakeCurrency) Slash(who [20]byte, amount *big.Int) (*big.Int, error) {
	bal := c.bal(who)
	if bal.Cmp(amount) < 0 {
		slashed := new(big.Int).Set(bal)
		bal.SetInt64(0)
		return slashed, nil
	}
	bal.Sub(bal, amount)
	return new(big.Int).Set(amount), nil
}

type fakePricing struct{ priceMicros uint64 }

func (p fakePricing) GetCosUsdtPrice() (uint64, error)  { return p.priceMicros, nil }
func (p fakePricing) GetDustToUsdRate() (uint64, error) { return 1_000_000, nil }

func newTestEngine(currency *fakeCurrency) *Engine {
	cfg := Config{
		InitialFundUsdt:   big.NewInt(100),
		MinInitialFundCos: big.NewInt(10),
		MaxInitialFundCos: big.NewInt(1_000_000),
		Thresholds: Thresholds{
			WarningThreshold:    big.NewInt(500),
			MinOperatingBalance: big.NewInt(100),
		},
	}
	return NewEngine(NewMemStore(), currency, fakePricing{priceMicros: 1_000_000}, cfg)
}

func TestCreateEntityFundsAccountFromOwner(t *testing.T) {
	currency := newFakeCurrency()
	owner := [20]byte{1}
	currency.bal(owner).SetInt64(1_000_000_000_000)

	eng := newTestEngine(currency)
	ent, err := eng.CreateEntity(owner, "acme", EntityTypeBusiness, GovernanceModeOwnerOnly)
	require.NoError(t, err)
	require.Equal(t, StatusPending, ent.Status)

	account := DeriveAccount(ent.ID)
	bal, err := currency.FreeBalance(account)
	require.NoError(t, err)
	require.True(t, bal.Sign() > 0)
}

func TestCreateEntityRejectsEmptyOrLongName(t *testing.T) {
	eng := newTestEngine(newFakeCurrency())
	_, err := eng.CreateEntity([20]byte{1}, "", EntityTypeIndividual, GovernanceModeOwnerOnly)
	require.ErrorIs(t, err, ErrNameEmpty)

	long := make([]byte, MaxNameLen+1)
	for i := range long {
		long[i] = 'a'
	}
	_, err = eng.CreateEntity([20]byte{1}, string(long), EntityTypeIndividual, GovernanceModeOwnerOnly)
	require.ErrorIs(t, err, ErrNameTooLong)
}

func TestStatusLifecycle(t *testing.T) {
	currency := newFakeCurrency()
	owner := [20]byte{2}
	currency.bal(owner).SetInt64(1_000_000_000_000)
	eng := newTestEngine(currency)

	ent, err := eng.CreateEntity(owner, "shop-co", EntityTypeBusiness, GovernanceModeOwnerOnly)
	require.NoError(t, err)

	require.NoError(t, eng.Approve(ent.ID))
	require.True(t, eng.IsEntityActive(ent.ID))

	require.NoError(t, eng.Suspend(ent.ID, "manual_review"))
	require.False(t, eng.IsEntityActive(ent.ID))

	// Fund the operating account above MinOperatingBalance before resuming.
	account := DeriveAccount(ent.ID)
	currency.bal(account).SetInt64(1_000_000)
	require.NoError(t, eng.Resume(ent.ID))
	require.True(t, eng.IsEntityActive(ent.ID))

	require.NoError(t, eng.RequestClose(ent.ID, owner))
	require.NoError(t, eng.ApproveClose(ent.ID))

	bal, err := currency.FreeBalance(account)
	require.NoError(t, err)
	require.Equal(t, int64(0), bal.Int64())

	require.NoError(t, eng.Reopen(ent.ID, owner))
}

func TestDeductOperatingFeeAutoSuspendsOnLowFund(t *testing.T) {
	currency := newFakeCurrency()
	owner := [20]byte{3}
	currency.bal(owner).SetInt64(1_000_000_000_000)
	eng := newTestEngine(currency)

	ent, err := eng.CreateEntity(owner, "low-fund-co", EntityTypeBusiness, GovernanceModeOwnerOnly)
	require.NoError(t, err)
	require.NoError(t, eng.Approve(ent.ID))

	account := DeriveAccount(ent.ID)
	currency.bal(account).SetInt64(150)

	require.NoError(t, eng.DeductOperatingFee(ent.ID, big.NewInt(100)))
	require.False(t, eng.IsEntityActive(ent.ID))
}

func TestBanSweepsBalanceToTreasuryWhenConfiscating(t *testing.T) {
	currency := newFakeCurrency()
	owner := [20]byte{4}
	treasury := [20]byte{9}
	currency.bal(owner).SetInt64(1_000_000_000_000)
	eng := newTestEngine(currency)

	ent, err := eng.CreateEntity(owner, "bad-actor", EntityTypeBusiness, GovernanceModeOwnerOnly)
	require.NoError(t, err)

	require.NoError(t, eng.Ban(ent.ID, treasury, true))
	bal, err := currency.FreeBalance(treasury)
	require.NoError(t, err)
	require.True(t, bal.Sign() > 0)
}
