package nexuschaind

import (
	"fmt"
	"math/big"
	"sync"

	"nexuschain/nexus/providers"
)

// ledger is an in-memory free/reserved balance sheet implementing
// providers.Currency. It settles every pallet's transfers, reserves, and
// slashes against the same account space, mirroring how a single balances
// pallet backs every other pallet in a real chain runtime.
type ledger struct {
	mu       sync.Mutex
	free     map[[20]byte]*big.Int
	reserved map[[20]byte]*big.Int
}

func newLedger() *ledger {
	return &ledger{free: make(map[[20]byte]*big.Int), reserved: make(map[[20]byte]*big.Int)}
}

func (l *ledger) balanceOf(m map[[20]byte]*big.Int, who [20]byte) *big.Int {
	if b, ok := m[who]; ok {
		return b
	}
	return big.NewInt(0)
}

// Mint credits who's free balance. Used only at genesis / admin seeding, not
// part of providers.Currency.
func (l *ledger) Mint(who [20]byte, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.free[who] = new(big.Int).Add(l.balanceOf(l.free, who), amount)
}

func (l *ledger) Transfer(from, to [20]byte, amount *big.Int, req providers.ExistenceRequirement) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	fromBal := l.balanceOf(l.free, from)
	if fromBal.Cmp(amount) < 0 {
		return fmt.Errorf("ledger: insufficient free balance")
	}
	remaining := new(big.Int).Sub(fromBal, amount)
	if req == providers.KeepAlive && remaining.Sign() == 0 && amount.Sign() > 0 {
		// KeepAlive only matters once an existential-deposit floor exists;
		// this ledger has none, so it is a no-op beyond documenting intent.
		_ = remaining
	}
	l.free[from] = remaining
	l.free[to] = new(big.Int).Add(l.balanceOf(l.free, to), amount)
	return nil
}

func (l *ledger) Reserve(who [20]byte, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	bal := l.balanceOf(l.free, who)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("ledger: insufficient free balance to reserve")
	}
	l.free[who] = new(big.Int).Sub(bal, amount)
	l.reserved[who] = new(big.Int).Add(l.balanceOf(l.reserved, who), amount)
	return nil
}

func (l *ledger) Unreserve(who [20]byte, amount *big.Int) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	reserved := l.balanceOf(l.reserved, who)
	actual := amount
	if reserved.Cmp(amount) < 0 {
		actual = reserved
	}
	l.reserved[who] = new(big.Int).Sub(reserved, actual)
	l.free[who] = new(big.Int).Add(l.balanceOf(l.free, who), actual)
	return actual, nil
}

func (l *ledger) FreeBalance(who [20]byte) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.balanceOf(l.free, who)), nil
}

func (l *ledger) ReservedBalance(who [20]byte) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.balanceOf(l.reserved, who)), nil
}

func (l *ledger) DepositCreating(who [20]byte, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.free[who] = new(big.Int).Add(l.balanceOf(l.free, who), amount)
	return nil
}

func (l *ledger) Slash(who [20]byte, amount *big.Int) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	reserved := l.balanceOf(l.reserved, who)
	slashed := amount
	if reserved.Cmp(amount) < 0 {
		slashed = reserved
	}
	l.reserved[who] = new(big.Int).Sub(reserved, slashed)
	return new(big.Int).Set(slashed), nil
}
