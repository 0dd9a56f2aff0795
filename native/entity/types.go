// Package entity implements the Entity Registry on-chain pallet: creation,
// the Pending/Active/Suspended/PendingClose/Closed/Banned status lattice,
// and the entity-scoped operating fund that backs shop and order flows
//.
package entity

import "math/big"

// Status is the entity lifecycle state.
type Status uint8

const (
	StatusPending Status = iota
	StatusActive
	StatusSuspended
	StatusPendingClose
	StatusClosed
	StatusBanned
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusActive:
		return "active"
	case StatusSuspended:
		return "suspended"
	case StatusPendingClose:
		return "pending_close"
	case StatusClosed:
		return "closed"
	case StatusBanned:
		return "banned"
	default:
		return "unknown"
	}
}

// FundHealth buckets an entity's operating balance relative to its
// configured thresholds.
type FundHealth uint8

const (
	FundHealthy FundHealth = iota
	FundWarning
	FundCritical
	FundDepleted
)

// Thresholds are the configured fund-health boundaries for one entity, in
// the chain's base unit.
type Thresholds struct {
	WarningThreshold    *big.Int
	MinOperatingBalance *big.Int
}

// Classify buckets balance against t.
func (t Thresholds) Classify(balance *big.Int) FundHealth {
	if balance.Sign() <= 0 {
		return FundDepleted
	}
	if balance.Cmp(t.MinOperatingBalance) <= 0 {
		return FundCritical
	}
	if balance.Cmp(t.WarningThreshold) <= 0 {
		return FundWarning
	}
	return FundHealthy
}

// EntityType enumerates the kinds of entity an owner can register.
type EntityType uint8

const (
	EntityTypeIndividual EntityType = iota
	EntityTypeBusiness
	EntityTypeDAO
)

// GovernanceMode selects how an entity's proposals are tallied.
type GovernanceMode uint8

const (
	GovernanceModeOwnerOnly GovernanceMode = iota
	GovernanceModeTokenWeighted
	GovernanceModeAdminCouncil
)

// Entity is one registry record.
type Entity struct {
	ID             uint64
	Owner          [20]byte
	Admins         [][20]byte
	Status         Status
	InitialFund    *big.Int
	EntityType     EntityType
	GovernanceMode GovernanceMode
	Verified       bool
	Name           string
	SuspendReason  string
}

// IsAdmin reports whether who is the owner or a registered admin.
func (e *Entity) IsAdmin(who [20]byte) bool {
	if who == e.Owner {
		return true
	}
	for _, a := range e.Admins {
		if a == who {
			return true
		}
	}
	return false
}
