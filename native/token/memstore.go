package token

import (
	"math/big"
	"sync"
)

type balanceKey struct {
	shopID uint64
	holder [20]byte
}

// MemStore is a concurrency-safe in-memory Store for tests and runtimes
// without a wired persistent store yet.
type MemStore struct {
	mu         sync.Mutex
	configs    map[uint64]*Config
	balances   map[balanceKey]*big.Int
	supply     map[uint64]*big.Int
	locks      map[balanceKey]*Lock
	dividends  map[balanceKey]*big.Int
	lastDistro map[uint64]uint64
}

func NewMemStore() *MemStore {
	return &MemStore{
		configs:    make(map[uint64]*Config),
		balances:   make(map[balanceKey]*big.Int),
		supply:     make(map[uint64]*big.Int),
		locks:      make(map[balanceKey]*Lock),
		dividends:  make(map[balanceKey]*big.Int),
		lastDistro: make(map[uint64]uint64),
	}
}

func (m *MemStore) GetConfig(shopID uint64) (*Config, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg, ok := m.configs[shopID]
	if !ok {
		return nil, false, nil
	}
	cp := *cfg
	return &cp, true, nil
}

func (m *MemStore) PutConfig(shopID uint64, cfg *Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *cfg
	m.configs[shopID] = &cp
	return nil
}

func (m *MemStore) GetBalance(shopID uint64, holder [20]byte) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.balances[balanceKey{shopID, holder}]
	if !ok {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(b), nil
}

func (m *MemStore) SetBalance(shopID uint64, holder [20]byte, amount *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[balanceKey{shopID, holder}] = new(big.Int).Set(amount)
	return nil
}

func (m *MemStore) GetSupply(shopID uint64) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.supply[shopID]
	if !ok {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(s), nil
}

func (m *MemStore) SetSupply(shopID uint64, amount *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.supply[shopID] = new(big.Int).Set(amount)
	return nil
}

func (m *MemStore) GetLock(shopID uint64, holder [20]byte) (*Lock, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[balanceKey{shopID, holder}]
	if !ok {
		return nil, false, nil
	}
	cp := *l
	cp.Amount = new(big.Int).Set(l.Amount)
	return &cp, true, nil
}

func (m *MemStore) PutLock(shopID uint64, holder [20]byte, lock *Lock) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *lock
	cp.Amount = new(big.Int).Set(lock.Amount)
	m.locks[balanceKey{shopID, holder}] = &cp
	return nil
}

func (m *MemStore) GetPendingDividend(shopID uint64, holder [20]byte) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.dividends[balanceKey{shopID, holder}]
	if !ok {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(d), nil
}

func (m *MemStore) SetPendingDividend(shopID uint64, holder [20]byte, amount *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dividends[balanceKey{shopID, holder}] = new(big.Int).Set(amount)
	return nil
}

func (m *MemStore) GetLastDistribution(shopID uint64) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastDistro[shopID], nil
}

func (m *MemStore) SetLastDistribution(shopID uint64, block uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastDistro[shopID] = block
	return nil
}

var _ Store = (*MemStore)(nil)
