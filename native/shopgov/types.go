// Package shopgov implements token-weighted shop governance: proposal
// creation, voting, quorum/pass-threshold finalization, and execution-delay
// gated dispatch into the token, shop, and entity pallets.
package shopgov

import "math/big"

// Status is a proposal's lifecycle state.
type Status uint8

const (
	StatusCreated Status = iota
	StatusVoting
	StatusPassed
	StatusFailed
	StatusQueued
	StatusExecuted
	StatusCancelled
	StatusExpired
)

func (s Status) String() string {
	switch s {
	case StatusCreated:
		return "Created"
	case StatusVoting:
		return "Voting"
	case StatusPassed:
		return "Passed"
	case StatusFailed:
		return "Failed"
	case StatusQueued:
		return "Queued"
	case StatusExecuted:
		return "Executed"
	case StatusCancelled:
		return "Cancelled"
	case StatusExpired:
		return "Expired"
	default:
		return "Unknown"
	}
}

// Kind tags which concrete action a proposal dispatches on execution.
type Kind uint8

const (
	KindTokenParamUpdate Kind = iota
	KindCommissionRateUpdate
	KindShopRatingReset
	KindEntityVerifiedUpdate
	KindGovernanceParamUpdate
)

// Payload is the tagged-union body of a proposal. Exactly the field
// matching Kind is meaningful; the others are zero.
type Payload struct {
	TokenRewardRateBps uint32
	CommissionRateBps  uint32
	ShopRating         uint8
	EntityVerified     bool
	QuorumThresholdPct uint32
	PassThresholdPct   uint32
}

// Choice is a ballot selection.
type Choice uint8

const (
	ChoiceYes Choice = iota
	ChoiceNo
	ChoiceAbstain
)

// Tally accumulates token-weighted voting power per choice.
type Tally struct {
	YesPower     *big.Int
	NoPower      *big.Int
	AbstainPower *big.Int
}

// Proposal is one shop governance proposal.
type Proposal struct {
	ID       uint64
	ShopID   uint64
	Proposer [20]byte
	Kind     Kind
	Payload  Payload
	Status   Status

	VotingStart   uint64
	VotingEnd     uint64
	ExecutionTime uint64

	Tally Tally
}

// Vote is one voter's ballot on one proposal, recorded once per
// (proposal, voter) pair.
type Vote struct {
	ProposalID uint64
	Voter      [20]byte
	Choice     Choice
	Weight     *big.Int
	CastAt     uint64
}
