// Package order implements the order state machine: place, ship, confirm,
// service, refund, and the block-indexed expiry queue that auto-resolves
// orders nobody manually progresses in time.
package order

import "math/big"

// Status is a position in the order lifecycle lattice:
// Created -> Paid -> {Shipped | Completed | Cancelled | Disputed -> {Refunded | Completed}}.
type Status uint8

const (
	StatusCreated Status = iota
	StatusPaid
	StatusShipped
	StatusCompleted
	StatusCancelled
	StatusDisputed
	StatusRefunded
)

func (s Status) String() string {
	switch s {
	case StatusCreated:
		return "created"
	case StatusPaid:
		return "paid"
	case StatusShipped:
		return "shipped"
	case StatusCompleted:
		return "completed"
	case StatusCancelled:
		return "cancelled"
	case StatusDisputed:
		return "disputed"
	case StatusRefunded:
		return "refunded"
	default:
		return "unknown"
	}
}

// Order is a single purchase against a shop's product catalogue.
type Order struct {
	ID                 string
	ShopID             uint64
	ProductID          uint64
	Buyer              [20]byte
	Seller             [20]byte
	Quantity           uint64
	TotalAmount        *big.Int
	Discount           *big.Int
	FinalAmount        *big.Int
	PlatformFee        *big.Int
	RequiresShipping   bool
	IsService          bool
	Status             Status
	TrackingCID        string
	ShippingCID        string
	ServiceStartedAt   int64
	ServiceCompletedAt int64
	CreatedAt          int64
	CompletedAt        int64
}
