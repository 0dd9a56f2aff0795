package token

import (
	"errors"
	"fmt"
	"math/big"

	"nexuschain/core/events"
	"nexuschain/nexus/providers"
)

var (
	ErrConfigNotFound     = errors.New("token: shop has no token config")
	ErrTokenDisabled      = errors.New("token: token is disabled for this shop")
	ErrBelowMinRedeem     = errors.New("token: amount below MinRedeem")
	ErrAboveMaxRedeem     = errors.New("token: amount above MaxRedeemPerOrder")
	ErrInsufficientTokens = errors.New("token: insufficient available (unlocked) balance")
	ErrMaxSupplyExceeded  = errors.New("token: mint would exceed MaxSupply")
	ErrDividendDisabled   = errors.New("token: dividend distribution is disabled for this shop")
	ErrDividendTooSoon    = errors.New("token: dividend distribution period has not elapsed")
	ErrNoPendingDividend  = errors.New("token: no pending dividend to claim")
	ErrNotTransferable    = errors.New("token: token is not transferable")
)

const (
	EventTypeRewarded   = "token.rewarded"
	EventTypeRedeemed   = "token.redeemed"
	EventTypeDividend   = "token.dividend_distributed"
	EventTypeClaimed    = "token.dividend_claimed"
	EventTypeLocked     = "token.locked"
)

// Rewarded is emitted when purchase-reward tokens are minted.
type Rewarded struct {
	ShopID uint64
	Buyer  [20]byte
	Minted *big.Int
}

func (Rewarded) EventType() string { return EventTypeRewarded }

// Redeemed is emitted when tokens are burned for a discount.
type Redeemed struct {
	ShopID   uint64
	Buyer    [20]byte
	Burned   *big.Int
	Discount *big.Int
}

func (Redeemed) EventType() string { return EventTypeRedeemed }

// DividendDistributed is emitted when a dividend round is credited.
type DividendDistributed struct {
	ShopID      uint64
	TotalAmount *big.Int
	Recipients  int
}

func (DividendDistributed) EventType() string { return EventTypeDividend }

// DividendClaimed is emitted when a holder claims their pending dividend.
type DividendClaimed struct {
	ShopID uint64
	Holder [20]byte
	Amount *big.Int
}

func (DividendClaimed) EventType() string { return EventTypeClaimed }

// Locked is emitted when tokens are locked for a holder.
type Locked struct {
	ShopID   uint64
	Holder   [20]byte
	Amount   *big.Int
	UnlockAt uint64
}

func (Locked) EventType() string { return EventTypeLocked }

// Store is the narrow persistence interface Engine depends on. Every
// balance and supply figure is scoped by shopID, mirroring
// asset_id = ShopTokenOffset + shop_id.
type Store interface {
	GetConfig(shopID uint64) (*Config, bool, error)
	PutConfig(shopID uint64, cfg *Config) error

	GetBalance(shopID uint64, holder [20]byte) (*big.Int, error)
	SetBalance(shopID uint64, holder [20]byte, amount *big.Int) error

	GetSupply(shopID uint64) (*big.Int, error)
	SetSupply(shopID uint64, amount *big.Int) error

	GetLock(shopID uint64, holder [20]byte) (*Lock, bool, error)
	PutLock(shopID uint64, holder [20]byte, lock *Lock) error

	GetPendingDividend(shopID uint64, holder [20]byte) (*big.Int, error)
	SetPendingDividend(shopID uint64, holder [20]byte, amount *big.Int) error

	GetLastDistribution(shopID uint64) (uint64, error)
	SetLastDistribution(shopID uint64, block uint64) error
}

// Engine implements the token pallet transaction surface.
type Engine struct {
	store   Store
	emitter events.Emitter
}

// NewEngine wires a token Engine.
func NewEngine(store Store) *Engine {
	return &Engine{store: store, emitter: events.NoopEmitter{}}
}

// SetEmitter overrides the event emitter; nil resets to a no-op.
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

// ConfigureShop installs or replaces a shop's token configuration.
func (e *Engine) ConfigureShop(shopID uint64, cfg Config) error {
	return e.store.PutConfig(shopID, &cfg)
}

func (e *Engine) config(shopID uint64) (*Config, error) {
	cfg, ok, err := e.store.GetConfig(shopID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConfigNotFound
	}
	return cfg, nil
}

// RewardOnPurchase mints amount*reward_rate_bps/10000 tokens to buyer if
// the shop's token is enabled and its reward rate is nonzero. Returns the minted amount (zero if disabled or rate is zero).
func (e *Engine) RewardOnPurchase(shopID uint64, buyer [20]byte, amount *big.Int) (*big.Int, error) {
	cfg, err := e.config(shopID)
	if err != nil {
		if errors.Is(err, ErrConfigNotFound) {
			return big.NewInt(0), nil
		}
		return nil, err
	}
	if !cfg.Enabled || cfg.RewardRateBps == 0 {
		return big.NewInt(0), nil
	}

	minted := new(big.Int).Mul(amount, big.NewInt(int64(cfg.RewardRateBps)))
	minted.Quo(minted, big.NewInt(basisPointsDenominator))
	if minted.Sign() == 0 {
		return minted, nil
	}

	if err := e.mint(shopID, buyer, minted, cfg); err != nil {
		return nil, err
	}
	e.emit(Rewarded{ShopID: shopID, Buyer: buyer, Minted: minted})
	return minted, nil
}

func (e *Engine) mint(shopID uint64, to [20]byte, amount *big.Int, cfg *Config) error {
	if cfg.MaxSupply != nil {
		supply, err := e.store.GetSupply(shopID)
		if err != nil {
			return err
		}
		newSupply := new(big.Int).Add(supply, amount)
		if newSupply.Cmp(cfg.MaxSupply) > 0 {
			return ErrMaxSupplyExceeded
		}
		if err := e.store.SetSupply(shopID, newSupply); err != nil {
			return err
		}
	} else {
		supply, err := e.store.GetSupply(shopID)
		if err != nil {
			return err
		}
		if err := e.store.SetSupply(shopID, new(big.Int).Add(supply, amount)); err != nil {
			return err
		}
	}
	balance, err := e.store.GetBalance(shopID, to)
	if err != nil {
		return err
	}
	return e.store.SetBalance(shopID, to, new(big.Int).Add(balance, amount))
}

func (e *Engine) burn(shopID uint64, from [20]byte, amount *big.Int) error {
	supply, err := e.store.GetSupply(shopID)
	if err != nil {
		return err
	}
	if err := e.store.SetSupply(shopID, new(big.Int).Sub(supply, amount)); err != nil {
		return err
	}
	balance, err := e.store.GetBalance(shopID, from)
	if err != nil {
		return err
	}
	return e.store.SetBalance(shopID, from, new(big.Int).Sub(balance, amount))
}

// availableBalance returns balance minus any still-locked amount.
func (e *Engine) availableBalance(shopID uint64, holder [20]byte, now uint64) (*big.Int, error) {
	balance, err := e.store.GetBalance(shopID, holder)
	if err != nil {
		return nil, err
	}
	lock, ok, err := e.store.GetLock(shopID, holder)
	if err != nil {
		return nil, err
	}
	if !ok || lock.UnlockAt <= now {
		return balance, nil
	}
	return new(big.Int).Sub(balance, lock.Amount), nil
}

// RedeemForDiscount burns tokens from buyer and returns the discount
// amount = tokens*exchange_rate_bps/10000.
func (e *Engine) RedeemForDiscount(shopID uint64, buyer [20]byte, tokens *big.Int) (*big.Int, error) {
	cfg, err := e.config(shopID)
	if err != nil {
		return nil, err
	}
	if !cfg.Enabled {
		return nil, ErrTokenDisabled
	}
	if cfg.MinRedeem != nil && tokens.Cmp(cfg.MinRedeem) < 0 {
		return nil, ErrBelowMinRedeem
	}
	if cfg.MaxRedeemPerOrder != nil && tokens.Cmp(cfg.MaxRedeemPerOrder) > 0 {
		return nil, ErrAboveMaxRedeem
	}

	balance, err := e.store.GetBalance(shopID, buyer)
	if err != nil {
		return nil, err
	}
	if balance.Cmp(tokens) < 0 {
		return nil, ErrInsufficientTokens
	}

	if err := e.burn(shopID, buyer, tokens); err != nil {
		return nil, err
	}

	discount := new(big.Int).Mul(tokens, big.NewInt(int64(cfg.ExchangeRateBps)))
	discount.Quo(discount, big.NewInt(basisPointsDenominator))

	e.emit(Redeemed{ShopID: shopID, Buyer: buyer, Burned: tokens, Discount: discount})
	return discount, nil
}

// DistributeDividend credits PendingDividends[shop, holder] for every
// recipient, splitting totalAmount in proportion to each recipient's
// current balance. Requires dividend.enabled and
// now >= last_distribution + min_period.
func (e *Engine) DistributeDividend(shopID uint64, totalAmount *big.Int, recipients [][20]byte, now uint64) error {
	cfg, err := e.config(shopID)
	if err != nil {
		return err
	}
	if !cfg.Dividend.Enabled {
		return ErrDividendDisabled
	}
	last, err := e.store.GetLastDistribution(shopID)
	if err != nil {
		return err
	}
	if now < last+cfg.Dividend.MinPeriodBlocks {
		return ErrDividendTooSoon
	}

	supply, err := e.store.GetSupply(shopID)
	if err != nil {
		return err
	}
	if supply.Sign() == 0 {
		return fmt.Errorf("token: cannot distribute dividend against zero supply")
	}

	for _, holder := range recipients {
		balance, err := e.store.GetBalance(shopID, holder)
		if err != nil {
			return err
		}
		if balance.Sign() == 0 {
			continue
		}
		share := new(big.Int).Mul(totalAmount, balance)
		share.Quo(share, supply)
		if share.Sign() == 0 {
			continue
		}
		pending, err := e.store.GetPendingDividend(shopID, holder)
		if err != nil {
			return err
		}
		if err := e.store.SetPendingDividend(shopID, holder, new(big.Int).Add(pending, share)); err != nil {
			return err
		}
	}

	if err := e.store.SetLastDistribution(shopID, now); err != nil {
		return err
	}
	e.emit(DividendDistributed{ShopID: shopID, TotalAmount: totalAmount, Recipients: len(recipients)})
	return nil
}

// ClaimDividend pays a holder's pending dividend by minting it (dividends
// are paid from newly minted supply, not from an escrow pool.
func (e *Engine) ClaimDividend(shopID uint64, holder [20]byte) (*big.Int, error) {
	pending, err := e.store.GetPendingDividend(shopID, holder)
	if err != nil {
		return nil, err
	}
	if pending.Sign() == 0 {
		return nil, ErrNoPendingDividend
	}
	cfg, err := e.config(shopID)
	if err != nil {
		return nil, err
	}
	if err := e.mint(shopID, holder, pending, cfg); err != nil {
		return nil, err
	}
	if err := e.store.SetPendingDividend(shopID, holder, big.NewInt(0)); err != nil {
		return nil, err
	}
	e.emit(DividendClaimed{ShopID: shopID, Holder: holder, Amount: pending})
	return pending, nil
}

// LockTokens records a holder's locked amount and unlock block, merging
// with any existing lock using the later unlock_at.
func (e *Engine) LockTokens(shopID uint64, holder [20]byte, amount *big.Int, unlockAt uint64) error {
	existing, ok, err := e.store.GetLock(shopID, holder)
	if err != nil {
		return err
	}
	merged := &Lock{Amount: new(big.Int).Set(amount), UnlockAt: unlockAt}
	if ok {
		merged.Amount.Add(merged.Amount, existing.Amount)
		if existing.UnlockAt > unlockAt {
			merged.UnlockAt = existing.UnlockAt
		}
	}
	if err := e.store.PutLock(shopID, holder, merged); err != nil {
		return err
	}
	e.emit(Locked{ShopID: shopID, Holder: holder, Amount: amount, UnlockAt: merged.UnlockAt})
	return nil
}

// TransferAvailable moves amount from one holder to another, respecting
// the transferable flag and any active lock.
func (e *Engine) TransferAvailable(shopID uint64, from, to [20]byte, amount *big.Int, now uint64) error {
	cfg, err := e.config(shopID)
	if err != nil {
		return err
	}
	if !cfg.Transferable {
		return ErrNotTransferable
	}
	available, err := e.availableBalance(shopID, from, now)
	if err != nil {
		return err
	}
	if available.Cmp(amount) < 0 {
		return ErrInsufficientTokens
	}
	fromBal, err := e.store.GetBalance(shopID, from)
	if err != nil {
		return err
	}
	toBal, err := e.store.GetBalance(shopID, to)
	if err != nil {
		return err
	}
	if err := e.store.SetBalance(shopID, from, new(big.Int).Sub(fromBal, amount)); err != nil {
		return err
	}
	return e.store.SetBalance(shopID, to, new(big.Int).Add(toBal, amount))
}

// AdminTransfer moves amount from one holder to another without checking
// the Transferable flag or any lock. It is a privileged pallet-to-pallet
// operation, used by native/sale to reserve an entity's token supply into
// its sale escrow and to pay unlocked amounts out of that escrow.
func (e *Engine) AdminTransfer(shopID uint64, from, to [20]byte, amount *big.Int) error {
	fromBal, err := e.store.GetBalance(shopID, from)
	if err != nil {
		return err
	}
	if fromBal.Cmp(amount) < 0 {
		return ErrInsufficientTokens
	}
	toBal, err := e.store.GetBalance(shopID, to)
	if err != nil {
		return err
	}
	if err := e.store.SetBalance(shopID, from, new(big.Int).Sub(fromBal, amount)); err != nil {
		return err
	}
	return e.store.SetBalance(shopID, to, new(big.Int).Add(toBal, amount))
}

// Balance returns a holder's token balance for shopID.
func (e *Engine) Balance(shopID uint64, holder [20]byte) (*big.Int, error) {
	return e.store.GetBalance(shopID, holder)
}

// TotalSupply returns shopID's total token supply.
func (e *Engine) TotalSupply(shopID uint64) (*big.Int, error) {
	return e.store.GetSupply(shopID)
}

// SetRewardRateBps retunes a shop's purchase-reward rate. Used by shopgov
// to apply a passed token-param governance proposal.
func (e *Engine) SetRewardRateBps(shopID uint64, bps uint32) error {
	cfg, err := e.config(shopID)
	if err != nil {
		return err
	}
	cfg.RewardRateBps = bps
	return e.store.PutConfig(shopID, cfg)
}

var _ providers.EntityTokenProvider = (*Engine)(nil)
var _ providers.SaleTokenProvider = (*Engine)(nil)
var _ providers.TokenRewardRateSetter = (*Engine)(nil)
var _ providers.GovernanceTokenProvider = (*Engine)(nil)
