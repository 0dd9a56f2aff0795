package shopgov

import (
	"math/big"
	"sync"
)

// MemStore is a concurrency-safe in-memory Store.
type MemStore struct {
	mu         sync.Mutex
	nextID     uint64
	proposals  map[uint64]*Proposal
	votes      map[uint64]map[[20]byte]*Vote
	commission map[uint64]uint32
}

func NewMemStore() *MemStore {
	return &MemStore{
		proposals:  make(map[uint64]*Proposal),
		votes:      make(map[uint64]map[[20]byte]*Vote),
		commission: make(map[uint64]uint32),
	}
}

func (m *MemStore) NextProposalID() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	return m.nextID
}

func cloneTally(t Tally) Tally {
	return Tally{
		YesPower:     cloneBig(t.YesPower),
		NoPower:      cloneBig(t.NoPower),
		AbstainPower: cloneBig(t.AbstainPower),
	}
}

func cloneProposal(p *Proposal) *Proposal {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Tally = cloneTally(p.Tally)
	return &cp
}

func cloneVote(v *Vote) *Vote {
	if v == nil {
		return nil
	}
	cv := *v
	cv.Weight = cloneBig(v.Weight)
	return &cv
}

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

func (m *MemStore) GetProposal(id uint64) (*Proposal, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.proposals[id]
	return cloneProposal(p), ok, nil
}

func (m *MemStore) PutProposal(p *Proposal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.proposals[p.ID] = cloneProposal(p)
	return nil
}

func (m *MemStore) GetVote(proposalID uint64, voter [20]byte) (*Vote, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byVoter, ok := m.votes[proposalID]
	if !ok {
		return nil, false, nil
	}
	v, ok := byVoter[voter]
	return cloneVote(v), ok, nil
}

func (m *MemStore) PutVote(v *Vote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byVoter, ok := m.votes[v.ProposalID]
	if !ok {
		byVoter = make(map[[20]byte]*Vote)
		m.votes[v.ProposalID] = byVoter
	}
	byVoter[v.Voter] = cloneVote(v)
	return nil
}

func (m *MemStore) GetCommissionRateBps(shopID uint64) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commission[shopID], nil
}

func (m *MemStore) SetCommissionRateBps(shopID uint64, bps uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commission[shopID] = bps
	return nil
}

var _ Store = (*MemStore)(nil)
