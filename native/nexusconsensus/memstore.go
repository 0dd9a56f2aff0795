package nexusconsensus

import (
	"math/big"
	"sync"
)

// MemStore is a concurrency-safe in-memory Store.
type MemStore struct {
	mu              sync.Mutex
	nextNodeID      uint64
	nodes           map[uint64]*Node
	activeList      []uint64
	confirmations   map[string]map[uint64]bool // msg_id -> node_id -> seen
	equivocations   map[[20]byte]map[uint64]*EquivocationEvidence
	subscriptions   map[[32]byte]*Subscription
	currentEra      uint64
	eraStartBlock   uint64
	eraRewards      map[uint64]*EraRewardInfo
}

func NewMemStore() *MemStore {
	return &MemStore{
		nodes:         make(map[uint64]*Node),
		confirmations: make(map[string]map[uint64]bool),
		equivocations: make(map[[20]byte]map[uint64]*EquivocationEvidence),
		subscriptions: make(map[[32]byte]*Subscription),
		eraRewards:    make(map[uint64]*EraRewardInfo),
	}
}

func (m *MemStore) NextNodeID() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextNodeID++
	return m.nextNodeID
}

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

func cloneNode(n *Node) *Node {
	if n == nil {
		return nil
	}
	cn := *n
	cn.Stake = cloneBig(n.Stake)
	cn.PendingReward = cloneBig(n.PendingReward)
	if n.PublicKey != nil {
		cn.PublicKey = append([]byte(nil), n.PublicKey...)
	}
	return &cn
}

func (m *MemStore) GetNode(id uint64) (*Node, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.nodes[id]
	return cloneNode(n), ok, nil
}

func (m *MemStore) PutNode(n *Node) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodes[n.ID] = cloneNode(n)
	return nil
}

func (m *MemStore) DeleteNode(id uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.nodes, id)
	return nil
}

func (m *MemStore) AllNodes() ([]*Node, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Node, 0, len(m.nodes))
	for _, n := range m.nodes {
		out = append(out, cloneNode(n))
	}
	return out, nil
}

func (m *MemStore) ActiveNodeList() ([]uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]uint64, len(m.activeList))
	copy(out, m.activeList)
	return out, nil
}

func (m *MemStore) PushActive(id uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activeList = append(m.activeList, id)
	return nil
}

func (m *MemStore) RemoveActive(id uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.activeList[:0]
	for _, v := range m.activeList {
		if v != id {
			out = append(out, v)
		}
	}
	m.activeList = out
	return nil
}

func (m *MemStore) HasConfirmation(msgID string, nodeID uint64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byNode, ok := m.confirmations[msgID]
	if !ok {
		return false, nil
	}
	return byNode[nodeID], nil
}

func (m *MemStore) PutConfirmation(msgID string, nodeID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byNode, ok := m.confirmations[msgID]
	if !ok {
		byNode = make(map[uint64]bool)
		m.confirmations[msgID] = byNode
	}
	byNode[nodeID] = true
	return nil
}

func (m *MemStore) GetEquivocation(owner [20]byte, seq uint64) (*EquivocationEvidence, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byOwner, ok := m.equivocations[owner]
	if !ok {
		return nil, false, nil
	}
	e, ok := byOwner[seq]
	return e, ok, nil
}

func (m *MemStore) PutEquivocation(e *EquivocationEvidence) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byOwner, ok := m.equivocations[e.Owner]
	if !ok {
		byOwner = make(map[uint64]*EquivocationEvidence)
		m.equivocations[e.Owner] = byOwner
	}
	byOwner[e.Seq] = e
	return nil
}

func cloneSubscription(s *Subscription) *Subscription {
	if s == nil {
		return nil
	}
	cs := *s
	cs.Escrow = cloneBig(s.Escrow)
	return &cs
}

func (m *MemStore) GetSubscription(botHash [32]byte) (*Subscription, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subscriptions[botHash]
	return cloneSubscription(s), ok, nil
}

func (m *MemStore) PutSubscription(s *Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions[s.BotHash] = cloneSubscription(s)
	return nil
}

func (m *MemStore) AllSubscriptions() ([]*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Subscription, 0, len(m.subscriptions))
	for _, s := range m.subscriptions {
		out = append(out, cloneSubscription(s))
	}
	return out, nil
}

func (m *MemStore) CurrentEra() (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentEra, nil
}

func (m *MemStore) EraStartBlock() (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.eraStartBlock, nil
}

func (m *MemStore) SetEra(era, startBlock uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentEra = era
	m.eraStartBlock = startBlock
	return nil
}

func (m *MemStore) PutEraRewardInfo(info *EraRewardInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *info
	cp.SubscriptionIncome = cloneBig(info.SubscriptionIncome)
	cp.InflationMint = cloneBig(info.InflationMint)
	cp.TotalDistributed = cloneBig(info.TotalDistributed)
	cp.TreasuryShare = cloneBig(info.TreasuryShare)
	m.eraRewards[info.Era] = &cp
	return nil
}

func (m *MemStore) GetEraRewardInfo(era uint64) (*EraRewardInfo, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.eraRewards[era]
	if !ok {
		return nil, false, nil
	}
	cp := *info
	return &cp, true, nil
}

var _ Store = (*MemStore)(nil)
