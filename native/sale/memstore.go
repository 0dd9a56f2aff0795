package sale

import (
	"math/big"
	"sync"
)

// MemStore is a concurrency-safe in-memory Store.
type MemStore struct {
	mu            sync.Mutex
	nextID        uint64
	rounds        map[uint64]*Round
	subscriptions map[string]*Subscription
	whitelist     map[uint64]map[[20]byte]bool
}

func NewMemStore() *MemStore {
	return &MemStore{
		rounds:        make(map[uint64]*Round),
		subscriptions: make(map[string]*Subscription),
		whitelist:     make(map[uint64]map[[20]byte]bool),
	}
}

func (m *MemStore) NextRoundID() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	return m.nextID
}

func (m *MemStore) GetRound(id uint64) (*Round, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rounds[id]
	if !ok {
		return nil, false, nil
	}
	return cloneRound(r), true, nil
}

func (m *MemStore) PutRound(r *Round) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rounds[r.ID] = cloneRound(r)
	return nil
}

func (m *MemStore) GetSubscription(roundID uint64, subscriber [20]byte) (*Subscription, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subscriptions[subKey(roundID, subscriber)]
	if !ok {
		return nil, false, nil
	}
	return cloneSubscription(s), true, nil
}

func (m *MemStore) PutSubscription(s *Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions[subKey(s.RoundID, s.Subscriber)] = cloneSubscription(s)
	return nil
}

func (m *MemStore) IsWhitelisted(roundID uint64, account [20]byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.whitelist[roundID][account], nil
}

func (m *MemStore) AddToWhitelist(roundID uint64, account [20]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.whitelist[roundID] == nil {
		m.whitelist[roundID] = make(map[[20]byte]bool)
	}
	m.whitelist[roundID][account] = true
	return nil
}

func cloneRound(r *Round) *Round {
	cp := *r
	cp.TotalSupply = cloneBig(r.TotalSupply)
	cp.SoldAmount = cloneBig(r.SoldAmount)
	cp.RemainingAmount = cloneBig(r.RemainingAmount)
	cp.DutchStartPrice = cloneBig(r.DutchStartPrice)
	cp.DutchEndPrice = cloneBig(r.DutchEndPrice)
	cp.MinPurchase = cloneBig(r.MinPurchase)
	cp.MaxPurchase = cloneBig(r.MaxPurchase)

	cp.PaymentOptions = append([]PaymentOption(nil), r.PaymentOptions...)
	cp.Participants = append([]string(nil), r.Participants...)

	cp.RaisedFunds = make(map[string]*big.Int, len(r.RaisedFunds))
	for asset, amount := range r.RaisedFunds {
		cp.RaisedFunds[asset] = cloneBig(amount)
	}
	return &cp
}

func cloneSubscription(s *Subscription) *Subscription {
	cp := *s
	cp.Amount = cloneBig(s.Amount)
	cp.PaymentAmount = cloneBig(s.PaymentAmount)
	cp.UnlockedAmount = cloneBig(s.UnlockedAmount)
	return &cp
}

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

var _ Store = (*MemStore)(nil)
