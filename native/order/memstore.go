package order

import (
	"math/big"
	"sync"

	"github.com/google/uuid"
)

// MemStore is a concurrency-safe in-memory Store. ExpiryQueue is kept as a
// block-number-keyed slice of order IDs so a drain touches only the orders
// due now, not every open order.
type MemStore struct {
	mu     sync.Mutex
	orders map[string]*Order
	expiry map[uint64][]string
}

func NewMemStore() *MemStore {
	return &MemStore{
		orders: make(map[string]*Order),
		expiry: make(map[uint64][]string),
	}
}

func (m *MemStore) NextOrderID() string {
	return uuid.NewString()
}

func (m *MemStore) GetOrder(id string) (*Order, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, false, nil
	}
	return cloneOrder(o), true, nil
}

func (m *MemStore) PutOrder(o *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = cloneOrder(o)
	return nil
}

func (m *MemStore) PushExpiry(atBlock uint64, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expiry[atBlock] = append(m.expiry[atBlock], orderID)
	return nil
}

// DrainExpiry removes and returns up to limit order IDs queued at atBlock.
// The block's queue entry is cleared regardless of how many IDs it held, so
// a partially-drained block is never revisited.
func (m *MemStore) DrainExpiry(atBlock uint64, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.expiry[atBlock]
	delete(m.expiry, atBlock)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]string, len(ids))
	copy(out, ids)
	return out, nil
}

func cloneOrder(o *Order) *Order {
	cp := *o
	if o.TotalAmount != nil {
		cp.TotalAmount = new(big.Int).Set(o.TotalAmount)
	}
	if o.Discount != nil {
		cp.Discount = new(big.Int).Set(o.Discount)
	}
	if o.FinalAmount != nil {
		cp.FinalAmount = new(big.Int).Set(o.FinalAmount)
	}
	if o.PlatformFee != nil {
		cp.PlatformFee = new(big.Int).Set(o.PlatformFee)
	}
	return &cp
}

var _ Store = (*MemStore)(nil)
