package shopgov

import (
	"errors"
	"math/big"

	"nexuschain/core/events"
	"nexuschain/nexus/providers"
)

var (
	ErrShopNotFound        = errors.New("shopgov: shop not found")
	ErrBelowProposalThreshold = errors.New("shopgov: proposer's token balance is below the proposal threshold")
	ErrZeroTotalSupply     = errors.New("shopgov: shop has no token supply to govern with")
	ErrProposalNotFound    = errors.New("shopgov: proposal not found")
	ErrNotVotingPeriod     = errors.New("shopgov: proposal is not in its voting period")
	ErrVotingPeriodOver    = errors.New("shopgov: voting_end has already passed")
	ErrAlreadyVoted        = errors.New("shopgov: voter has already cast a ballot on this proposal")
	ErrVotingStillOpen     = errors.New("shopgov: voting_end has not yet passed")
	ErrNotPassed           = errors.New("shopgov: proposal has not passed")
	ErrExecutionTooEarly   = errors.New("shopgov: now is before execution_time")
	ErrNotCancellable      = errors.New("shopgov: proposal must be Created or Voting to cancel")
	ErrNotProposerOrOwner  = errors.New("shopgov: caller is neither the proposer nor the shop owner")
	ErrInvalidGovParams    = errors.New("shopgov: quorum/pass thresholds must be in (0, 100]")
)

const (
	EventTypeCreated    = "shopgov.proposal_created"
	EventTypeVoted      = "shopgov.voted"
	EventTypeFinalized  = "shopgov.finalized"
	EventTypeExecuted   = "shopgov.executed"
	EventTypeCancelled  = "shopgov.cancelled"
)

type Created struct{ Proposal *Proposal }

func (Created) EventType() string { return EventTypeCreated }

type Voted struct {
	Proposal *Proposal
	Vote     *Vote
}

func (Voted) EventType() string { return EventTypeVoted }

type Finalized struct{ Proposal *Proposal }

func (Finalized) EventType() string { return EventTypeFinalized }

type Executed struct{ Proposal *Proposal }

func (Executed) EventType() string { return EventTypeExecuted }

type Cancelled struct{ Proposal *Proposal }

func (Cancelled) EventType() string { return EventTypeCancelled }

// Store is the narrow persistence interface Engine depends on.
type Store interface {
	NextProposalID() uint64
	GetProposal(id uint64) (*Proposal, bool, error)
	PutProposal(p *Proposal) error

	GetVote(proposalID uint64, voter [20]byte) (*Vote, bool, error)
	PutVote(v *Vote) error

	GetCommissionRateBps(shopID uint64) (uint32, error)
	SetCommissionRateBps(shopID uint64, bps uint32) error
}

// Config is the pallet's governance-parameter knobs. A KindGovernanceParamUpdate
// proposal mutates QuorumThresholdPct/PassThresholdPct for the whole pallet;
// spec.md scopes every other parameter per-shop, but these two are
// necessarily global since they gate how every shop's own proposals are
// judged.
type Config struct {
	MinProposalThresholdBps uint32 // of total_supply, required to create a proposal
	VotingPeriodBlocks      uint64
	QuorumThresholdPct      uint32 // of total_supply that must have voted
	PassThresholdPct        uint32 // of total_votes that must be Yes
	ExecutionDelayBlocks    uint64
}

// Engine implements the shop governance pallet's transaction surface.
type Engine struct {
	store    Store
	shops    providers.ShopProvider
	tokens   providers.GovernanceTokenProvider
	rewarder providers.TokenRewardRateSetter
	verifier providers.EntityVerifier
	cfg      Config
	emitter  events.Emitter
}

// NewEngine wires a shopgov Engine. rewarder/verifier may be nil if the
// corresponding proposal kinds are never executed.
func NewEngine(store Store, shops providers.ShopProvider, tokens providers.GovernanceTokenProvider, rewarder providers.TokenRewardRateSetter, verifier providers.EntityVerifier, cfg Config) *Engine {
	return &Engine{
		store:    store,
		shops:    shops,
		tokens:   tokens,
		rewarder: rewarder,
		verifier: verifier,
		cfg:      cfg,
		emitter:  events.NoopEmitter{},
	}
}

func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

func (e *Engine) emit(ev events.Event) {
	if e.emitter != nil {
		e.emitter.Emit(ev)
	}
}

func (e *Engine) mustProposal(id uint64) (*Proposal, error) {
	p, ok, err := e.store.GetProposal(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrProposalNotFound
	}
	return p, nil
}

// CreateProposal requires the proposer's token balance on shopID to be at
// least total_supply*MinProposalThresholdBps/10000, and starts the proposal
// in its voting period immediately, ending at now+VotingPeriodBlocks.
func (e *Engine) CreateProposal(shopID uint64, proposer [20]byte, kind Kind, payload Payload, now uint64) (*Proposal, error) {
	if !e.shops.ShopExists(shopID) {
		return nil, ErrShopNotFound
	}
	totalSupply, err := e.tokens.TotalSupply(shopID)
	if err != nil {
		return nil, err
	}
	if totalSupply.Sign() == 0 {
		return nil, ErrZeroTotalSupply
	}
	balance, err := e.tokens.Balance(shopID, proposer)
	if err != nil {
		return nil, err
	}
	threshold := new(big.Int).Mul(totalSupply, big.NewInt(int64(e.cfg.MinProposalThresholdBps)))
	threshold.Quo(threshold, big.NewInt(10_000))
	if balance.Cmp(threshold) < 0 {
		return nil, ErrBelowProposalThreshold
	}

	p := &Proposal{
		ID:        e.store.NextProposalID(),
		ShopID:    shopID,
		Proposer:  proposer,
		Kind:      kind,
		Payload:   payload,
		Status:    StatusVoting,
		VotingStart: now,
		VotingEnd: now + e.cfg.VotingPeriodBlocks,
		Tally: Tally{
			YesPower:     big.NewInt(0),
			NoPower:      big.NewInt(0),
			AbstainPower: big.NewInt(0),
		},
	}
	if err := e.store.PutProposal(p); err != nil {
		return nil, err
	}
	e.emit(Created{Proposal: p})
	return p, nil
}

// Vote records one ballot, weighted by the voter's token balance at the
// time of voting, one per (proposal, voter).
func (e *Engine) Vote(proposalID uint64, voter [20]byte, choice Choice, now uint64) (*Vote, error) {
	p, err := e.mustProposal(proposalID)
	if err != nil {
		return nil, err
	}
	if p.Status != StatusVoting {
		return nil, ErrNotVotingPeriod
	}
	if now > p.VotingEnd {
		return nil, ErrVotingPeriodOver
	}
	if _, ok, err := e.store.GetVote(proposalID, voter); err != nil {
		return nil, err
	} else if ok {
		return nil, ErrAlreadyVoted
	}

	weight, err := e.tokens.Balance(p.ShopID, voter)
	if err != nil {
		return nil, err
	}

	switch choice {
	case ChoiceYes:
		p.Tally.YesPower.Add(p.Tally.YesPower, weight)
	case ChoiceNo:
		p.Tally.NoPower.Add(p.Tally.NoPower, weight)
	default:
		p.Tally.AbstainPower.Add(p.Tally.AbstainPower, weight)
	}
	if err := e.store.PutProposal(p); err != nil {
		return nil, err
	}

	v := &Vote{ProposalID: proposalID, Voter: voter, Choice: choice, Weight: weight, CastAt: now}
	if err := e.store.PutVote(v); err != nil {
		return nil, err
	}
	e.emit(Voted{Proposal: p, Vote: v})
	return v, nil
}

func totalVotes(p *Proposal) *big.Int {
	total := new(big.Int).Add(p.Tally.YesPower, p.Tally.NoPower)
	return total.Add(total, p.Tally.AbstainPower)
}

// FinalizeVoting is permissionless and runs after voting_end: it checks
// quorum (total votes >= total_supply*QuorumThresholdPct/100) and, if met,
// pass (yes > total_votes*PassThresholdPct/100). A pass sets execution_time
// = now+ExecutionDelayBlocks and status=Passed; otherwise status=Failed.
func (e *Engine) FinalizeVoting(proposalID uint64, now uint64) (*Proposal, error) {
	p, err := e.mustProposal(proposalID)
	if err != nil {
		return nil, err
	}
	if p.Status != StatusVoting {
		return nil, ErrNotVotingPeriod
	}
	if now <= p.VotingEnd {
		return nil, ErrVotingStillOpen
	}

	totalSupply, err := e.tokens.TotalSupply(p.ShopID)
	if err != nil {
		return nil, err
	}
	votes := totalVotes(p)

	quorum := new(big.Int).Mul(totalSupply, big.NewInt(int64(e.cfg.QuorumThresholdPct)))
	quorum.Quo(quorum, big.NewInt(100))

	if votes.Cmp(quorum) < 0 {
		p.Status = StatusFailed
	} else {
		passMark := new(big.Int).Mul(votes, big.NewInt(int64(e.cfg.PassThresholdPct)))
		passMark.Quo(passMark, big.NewInt(100))
		if p.Tally.YesPower.Cmp(passMark) > 0 {
			p.Status = StatusPassed
			p.ExecutionTime = now + e.cfg.ExecutionDelayBlocks
		} else {
			p.Status = StatusFailed
		}
	}
	if err := e.store.PutProposal(p); err != nil {
		return nil, err
	}
	e.emit(Finalized{Proposal: p})
	return p, nil
}

// ExecuteProposal is permissionless and requires status=Passed and
// now >= execution_time. It dispatches by Kind and marks the proposal
// Executed.
func (e *Engine) ExecuteProposal(proposalID uint64, now uint64) error {
	p, err := e.mustProposal(proposalID)
	if err != nil {
		return err
	}
	if p.Status != StatusPassed {
		return ErrNotPassed
	}
	if now < p.ExecutionTime {
		return ErrExecutionTooEarly
	}

	switch p.Kind {
	case KindTokenParamUpdate:
		if e.rewarder != nil {
			if err := e.rewarder.SetRewardRateBps(p.ShopID, p.Payload.TokenRewardRateBps); err != nil {
				return err
			}
		}
	case KindCommissionRateUpdate:
		if err := e.store.SetCommissionRateBps(p.ShopID, p.Payload.CommissionRateBps); err != nil {
			return err
		}
	case KindShopRatingReset:
		if err := e.shops.UpdateShopRating(p.ShopID, p.Payload.ShopRating); err != nil {
			return err
		}
	case KindEntityVerifiedUpdate:
		if e.verifier != nil {
			entityID := p.ShopID // shopgov proposals are scoped per shop; entity-level proposals target the shop's owning entity out-of-band via payload in a fuller model
			if err := e.verifier.SetVerified(entityID, p.Payload.EntityVerified); err != nil {
				return err
			}
		}
	case KindGovernanceParamUpdate:
		if p.Payload.QuorumThresholdPct == 0 || p.Payload.QuorumThresholdPct > 100 ||
			p.Payload.PassThresholdPct == 0 || p.Payload.PassThresholdPct > 100 {
			return ErrInvalidGovParams
		}
		e.cfg.QuorumThresholdPct = p.Payload.QuorumThresholdPct
		e.cfg.PassThresholdPct = p.Payload.PassThresholdPct
	}

	p.Status = StatusExecuted
	if err := e.store.PutProposal(p); err != nil {
		return err
	}
	e.emit(Executed{Proposal: p})
	return nil
}

// CancelProposal is callable by the proposer or the shop owner while the
// proposal is Created or Voting.
func (e *Engine) CancelProposal(caller [20]byte, proposalID uint64) error {
	p, err := e.mustProposal(proposalID)
	if err != nil {
		return err
	}
	if p.Status != StatusCreated && p.Status != StatusVoting {
		return ErrNotCancellable
	}
	owner, _ := e.shops.ShopOwner(p.ShopID)
	if caller != p.Proposer && caller != owner {
		return ErrNotProposerOrOwner
	}
	p.Status = StatusCancelled
	if err := e.store.PutProposal(p); err != nil {
		return err
	}
	e.emit(Cancelled{Proposal: p})
	return nil
}

// CommissionRateBps returns the shop's current governance-set commission
// rate (zero until a KindCommissionRateUpdate proposal has executed).
func (e *Engine) CommissionRateBps(shopID uint64) (uint32, error) {
	return e.store.GetCommissionRateBps(shopID)
}
