// Package shop implements the Shop pallet: lifecycle mirrors Entity with a
// shop-scoped operating fund, plus the exact-rational rating accumulator
//.
package shop

import "math/big"

// Status is the shop lifecycle state.
type Status uint8

const (
	StatusActive Status = iota
	StatusPaused
	StatusFundDepleted
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusPaused:
		return "paused"
	case StatusFundDepleted:
		return "fund_depleted"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Shop is one registry record.
type Shop struct {
	ID        uint64
	EntityID  uint64
	Managers  [][20]byte
	Status    Status
	IsPrimary bool

	// RatingSum/RatingCount back an exact-rational running average:
	// average = RatingSum / RatingCount, computed on demand via big.Rat so
	// no precision is lost across thousands of accumulated ratings (unlike
	// an integer running average, which drifts as each new sample
	// truncates the updated mean).
	RatingSum   *big.Int
	RatingCount uint64

	TotalSalesAmount *big.Int
	TotalOrders      uint64
}

// IsManager reports whether who manages this shop.
func (s *Shop) IsManager(who [20]byte) bool {
	for _, m := range s.Managers {
		if m == who {
			return true
		}
	}
	return false
}

// AverageRating returns the exact current average rating as a big.Rat, or
// the zero rating if no ratings have been recorded yet.
func (s *Shop) AverageRating() *big.Rat {
	if s.RatingCount == 0 {
		return new(big.Rat)
	}
	return new(big.Rat).SetFrac(s.RatingSum, new(big.Int).SetUint64(s.RatingCount))
}
