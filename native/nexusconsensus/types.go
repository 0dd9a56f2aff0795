// Package nexusconsensus implements the on-chain pallet that backs bot
// consensus: node registration and staking, confirmation batching,
// equivocation evidence, reputation/uptime bookkeeping, bot subscription
// billing, and per-era reward settlement.
package nexusconsensus

import "math/big"

// NodeStatus is a registered node's lifecycle state.
type NodeStatus uint8

const (
	NodeStatusProbation NodeStatus = iota
	NodeStatusActive
	NodeStatusSuspended
	NodeStatusExiting
)

func (s NodeStatus) String() string {
	switch s {
	case NodeStatusProbation:
		return "Probation"
	case NodeStatusActive:
		return "Active"
	case NodeStatusSuspended:
		return "Suspended"
	case NodeStatusExiting:
		return "Exiting"
	default:
		return "Unknown"
	}
}

// LeaderStats tracks a node's leader-election track record.
type LeaderStats struct {
	Successful       uint64
	Timeouts         uint64
	ConsecutiveMisses uint64
}

// UptimeStats tracks confirmation history used to gate era rewards.
type UptimeStats struct {
	Confirmed uint64
	Missed    uint64
}

// Node is one registered consensus participant.
type Node struct {
	ID           uint64
	Operator     [20]byte
	PublicKey    []byte
	EndpointHash [32]byte
	Status       NodeStatus
	Stake        *big.Int
	Reputation   uint32 // [0, 10000]
	ExitBlock    uint64
	PendingReward *big.Int
	Leader       LeaderStats
	Uptime       UptimeStats
}

// EquivocationEvidence records a proven double-sign for one (owner, seq).
type EquivocationEvidence struct {
	Owner     [20]byte
	Seq       uint64
	HashA     [32]byte
	SigA      []byte
	HashB     [32]byte
	SigB      []byte
	Reporter  [20]byte
	ReportedAt uint64
}

// Confirmation is one node's vouching for a gossip message, keyed by MsgID
// so that submit_confirmations is idempotent.
type Confirmation struct {
	MsgID     string
	NodeID    uint64
	Confirmed bool
}

// SubscriptionStatus is a bot subscription's billing lifecycle state.
type SubscriptionStatus uint8

const (
	SubStatusActive SubscriptionStatus = iota
	SubStatusPastDue
	SubStatusSuspended
	SubStatusCancelled
)

func (s SubscriptionStatus) String() string {
	switch s {
	case SubStatusActive:
		return "Active"
	case SubStatusPastDue:
		return "PastDue"
	case SubStatusSuspended:
		return "Suspended"
	case SubStatusCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// Tier is a billing tier for bot subscriptions.
type Tier uint8

const (
	TierFree Tier = iota
	TierBasic
	TierPro
	TierEnterprise
)

// Subscription is one bot's billing record.
type Subscription struct {
	BotHash      [32]byte
	Owner        [20]byte
	Tier         Tier
	Escrow       *big.Int
	Status       SubscriptionStatus
	PaidUntilEra uint64
}

// EraRewardInfo summarizes one era's settlement for later audit.
type EraRewardInfo struct {
	Era                uint64
	SubscriptionIncome *big.Int
	InflationMint      *big.Int
	TotalDistributed   *big.Int
	TreasuryShare      *big.Int
	NodeCount          uint64
}
