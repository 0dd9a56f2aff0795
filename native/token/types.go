// Package token implements the entity-scoped fungible token pallet:
// purchase rewards, discount redemption, dividend distribution, and token
// locking.
package token

import "math/big"

const basisPointsDenominator = 10_000

// Type is the token's declared purpose.
type Type uint8

const (
	TypePoints Type = iota
	TypeGovernance
	TypeEquity
	TypeMembership
	TypeUtility
)

// DividendConfig gates distribute_dividend/claim_dividend.
type DividendConfig struct {
	Enabled  bool
	MinPeriodBlocks uint64
}

// Config is the per-shop token configuration.
type Config struct {
	Enabled            bool
	RewardRateBps      uint32
	ExchangeRateBps    uint32
	MinRedeem          *big.Int
	MaxRedeemPerOrder  *big.Int // nil means unbounded
	Transferable       bool
	TokenType          Type
	MaxSupply          *big.Int // nil means unbounded
	Dividend           DividendConfig
}

// Lock records a holder's locked balance and when it unlocks.
type Lock struct {
	Amount   *big.Int
	UnlockAt uint64
}
