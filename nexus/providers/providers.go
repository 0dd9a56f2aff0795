// Package providers declares the collaborator interfaces the on-chain
// commerce pallets depend on instead of owning each other directly. Entity,
// Shop, Order, Token, and Sale never import one another's concrete engines;
// each depends only on the narrow interface here, and the runtime wires the
// concrete implementations together at assembly time. This mirrors the
// teacher's own decoupling of native/governance from native/potso (the
// engine depends on a small proposalState/read interface, never the
// concrete epoch engine).
package providers

import "math/big"

// ExistenceRequirement mirrors typical Currency.transfer semantics:
// whether the sender may be left with a zero balance.
type ExistenceRequirement uint8

const (
	AllowDeath ExistenceRequirement = iota
	KeepAlive
)

// Currency is the balance ledger every pallet settles against.
type Currency interface {
	Transfer(from, to [20]byte, amount *big.Int, req ExistenceRequirement) error
	Reserve(who [20]byte, amount *big.Int) error
	Unreserve(who [20]byte, amount *big.Int) (*big.Int, error)
	FreeBalance(who [20]byte) (*big.Int, error)
	ReservedBalance(who [20]byte) (*big.Int, error)
	DepositCreating(who [20]byte, amount *big.Int) error
	Slash(who [20]byte, amount *big.Int) (*big.Int, error)
}

// Escrow exposes the four lock/release/refund/transfer primitives an
// order pallet needs. Implemented by native/order's escrow ledger.
type Escrow interface {
	LockFrom(payer [20]byte, escrowID string, amount *big.Int) error
	ReleaseAll(escrowID string, recipient [20]byte) (*big.Int, error)
	RefundAll(escrowID string, payer [20]byte) (*big.Int, error)
	TransferFromEscrow(escrowID string, recipient [20]byte, amount *big.Int) error
	Balance(escrowID string) (*big.Int, error)
}

// EntityProvider exposes read access to entity registry state.
type EntityProvider interface {
	EntityExists(id uint64) bool
	EntityOwner(id uint64) ([20]byte, bool)
	EntityAccount(id uint64) [20]byte
	IsEntityActive(id uint64) bool
	IsEntityAdmin(id uint64, who [20]byte) bool
}

// ShopProvider exposes read/update access to shop state.
type ShopProvider interface {
	ShopExists(id uint64) bool
	IsShopActive(id uint64) bool
	ShopOwner(id uint64) ([20]byte, bool)
	ShopAccount(id uint64) [20]byte
	UpdateShopStats(shopID uint64, salesAmount *big.Int, orders uint64) error
	UpdateShopRating(shopID uint64, rating uint8) error
}

// ProductProvider exposes product catalogue operations needed by orders.
type ProductProvider interface {
	ProductExists(id uint64) bool
	IsProductOnSale(id uint64) bool
	ProductShopID(id uint64) (uint64, bool)
	ProductPrice(id uint64) (*big.Int, bool)
	ProductStock(id uint64) (uint64, bool)
	ProductCategory(id uint64) (ProductCategory, bool)
	DeductStock(id uint64, qty uint64) error
	RestoreStock(id uint64, qty uint64) error
	AddSoldCount(id uint64, qty uint64) error
}

// ProductCategory enumerates the product categories a shop can list.
type ProductCategory uint8

const (
	ProductCategoryOther ProductCategory = iota
	ProductCategoryDigital
	ProductCategoryPhysical
	ProductCategoryService
)

func (c ProductCategory) RequiresShipping() bool {
	return c == ProductCategoryPhysical
}

// EntityTokenProvider exposes the entity-scoped token operations orders and
// sales redeem against (native/token.Engine implements this).
type EntityTokenProvider interface {
	RewardOnPurchase(shopID uint64, buyer [20]byte, amount *big.Int) (*big.Int, error)
	RedeemForDiscount(shopID uint64, buyer [20]byte, tokens *big.Int) (*big.Int, error)
}

// PricingProvider exposes offchain-fed price oracle reads.
type PricingProvider interface {
	GetCosUsdtPrice() (uint64, error)  // precision 10^6
	GetDustToUsdRate() (uint64, error) // precision 10^6
}

// KycChecker exposes offchain KYC level lookups.
type KycChecker interface {
	KycLevel(account [20]byte) (uint8, error)
}

// CommissionHandler is notified when an order completes. orderID is the
// order's uuid, matching the identifier native/order and its escrow ledger
// use throughout.
type CommissionHandler interface {
	OnOrderCompleted(shopID uint64, orderID string, buyer [20]byte, amount *big.Int) error
}

// SaleTokenProvider exposes the privileged balance movement native/sale
// needs to reserve an entity's token supply into its sale escrow and pay it
// out to subscribers and back, bypassing the transferable flag and any lock
// a user-initiated transfer would be subject to.
type SaleTokenProvider interface {
	AdminTransfer(shopID uint64, from, to [20]byte, amount *big.Int) error
}

// GovernanceTokenProvider exposes the token balance reads shopgov needs for
// proposal-threshold checks and vote weighting.
type GovernanceTokenProvider interface {
	Balance(shopID uint64, holder [20]byte) (*big.Int, error)
	TotalSupply(shopID uint64) (*big.Int, error)
}

// EntityVerifier lets shopgov flip an entity's verified flag when an
// entity-param governance proposal passes.
type EntityVerifier interface {
	SetVerified(id uint64, verified bool) error
}

// TokenRewardRateSetter lets shopgov retune a shop's token reward rate when
// a token-param governance proposal passes.
type TokenRewardRateSetter interface {
	SetRewardRateBps(shopID uint64, bps uint32) error
}

// BotRegistryProvider exposes bot ownership lookups for subscription billing.
type BotRegistryProvider interface {
	BotExists(botHash [32]byte) bool
	IsBotOwner(botHash [32]byte, who [20]byte) bool
}
