// Package sale implements the entity token sale pallet: fixed-price,
// Dutch-auction, whitelist, first-come-first-served, and lottery-allocation
// rounds over an entity's own token supply, with linear/cliff/custom vesting
// on claim.
package sale

import "math/big"

// Mode is how a round prices and allocates its supply.
type Mode uint8

const (
	ModeFixedPrice Mode = iota
	ModeDutchAuction
	ModeWhitelistAllocation
	ModeFCFS
	ModeLottery
)

func (m Mode) String() string {
	switch m {
	case ModeFixedPrice:
		return "FixedPrice"
	case ModeDutchAuction:
		return "DutchAuction"
	case ModeWhitelistAllocation:
		return "WhitelistAllocation"
	case ModeFCFS:
		return "FCFS"
	case ModeLottery:
		return "Lottery"
	default:
		return "Unknown"
	}
}

// Status is a sale round's lifecycle state.
type Status uint8

const (
	StatusNotStarted Status = iota
	StatusWhitelistOpen
	StatusActive
	StatusSoldOut
	StatusEnded
	StatusCancelled
	StatusSettling
	StatusCompleted
)

func (s Status) String() string {
	switch s {
	case StatusNotStarted:
		return "NotStarted"
	case StatusWhitelistOpen:
		return "WhitelistOpen"
	case StatusActive:
		return "Active"
	case StatusSoldOut:
		return "SoldOut"
	case StatusEnded:
		return "Ended"
	case StatusCancelled:
		return "Cancelled"
	case StatusSettling:
		return "Settling"
	case StatusCompleted:
		return "Completed"
	default:
		return "Unknown"
	}
}

// PaymentOption is one accepted payment asset and its fixed per-token price.
// DutchAuction rounds ignore Price in favor of the dutch start/end curve.
type PaymentOption struct {
	Asset string
	Price *big.Int
}

// VestingType selects how a subscriber's tokens unlock after purchase.
type VestingType uint8

const (
	VestingNone VestingType = iota
	VestingLinear
	VestingCliff
	VestingCustom
)

// VestingConfig governs calculate_initial_unlock / calculate_unlockable.
// InitialUnlockBps is out of 10000. TotalDuration must be >= CliffDuration.
type VestingConfig struct {
	Type             VestingType
	InitialUnlockBps uint32
	CliffDuration    uint64
	TotalDuration    uint64
	UnlockInterval   uint64
}

// Round is one entity token sale round.
type Round struct {
	ID     uint64
	EntityID uint64
	ShopID   uint64 // scopes the underlying token ledger (ShopTokenOffset + ShopID)

	Mode   Mode
	Status Status

	TotalSupply     *big.Int
	SoldAmount      *big.Int
	RemainingAmount *big.Int

	PaymentOptions []PaymentOption
	Vesting        VestingConfig

	KycRequired bool
	MinKycLevel uint8

	DutchStartPrice *big.Int
	DutchEndPrice   *big.Int

	StartBlock uint64
	EndBlock   uint64

	MinPurchase *big.Int
	MaxPurchase *big.Int

	FundsWithdrawn bool
	RaisedFunds    map[string]*big.Int // payment asset -> total raised

	Participants []string // subscription keys, in subscribe order
}

// Subscription is one subscriber's position in one round.
type Subscription struct {
	RoundID      uint64
	Subscriber   [20]byte
	Amount       *big.Int // tokens purchased
	PaymentAsset string
	PaymentAmount *big.Int

	SubscribedAt uint64
	Claimed      bool
	UnlockedAmount *big.Int
	LastUnlockAt   uint64
	Refunded       bool
}
