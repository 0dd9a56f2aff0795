package sale

import (
	"errors"
	"fmt"
	"math/big"

	"nexuschain/core/events"
	"nexuschain/nexus/providers"
)

var (
	ErrRoundNotFound        = errors.New("sale: round not found")
	ErrInvalidDutchPrices   = errors.New("sale: dutch_start_price must be greater than dutch_end_price")
	ErrInvalidDutchWindow   = errors.New("sale: end_block must be after start_block")
	ErrInvalidVesting       = errors.New("sale: total_duration must be >= cliff_duration and initial_unlock_bps <= 10000")
	ErrRoundNotActive       = errors.New("sale: round is not Active")
	ErrOutsideSaleWindow    = errors.New("sale: now is outside [start_block, end_block]")
	ErrBelowMinPurchase     = errors.New("sale: quantity below min_purchase")
	ErrAboveMaxPurchase     = errors.New("sale: quantity above max_purchase")
	ErrExceedsRemaining     = errors.New("sale: quantity exceeds remaining_amount")
	ErrKycTooLow            = errors.New("sale: buyer's kyc level is below min_kyc_level")
	ErrNotWhitelisted       = errors.New("sale: account is not on this round's whitelist")
	ErrUnknownPaymentAsset  = errors.New("sale: unknown payment asset for this round")
	ErrNotEntityAdmin       = errors.New("sale: caller is not an admin of this round's entity")
	ErrRoundNotCancellable  = errors.New("sale: round must be NotStarted, WhitelistOpen, or Active to cancel")
	ErrRoundNotCancelled    = errors.New("sale: round is not Cancelled")
	ErrSubscriptionNotFound = errors.New("sale: subscription not found")
	ErrAlreadyRefunded      = errors.New("sale: subscription already refunded")
	ErrRoundNotEndable      = errors.New("sale: round must be Active, WhitelistOpen, or SoldOut to end")
	ErrSaleWindowNotElapsed = errors.New("sale: end_block has not yet passed")
	ErrRoundNotWithdrawable = errors.New("sale: round must be Ended or Completed to withdraw funds")
	ErrFundsAlreadyWithdrawn = errors.New("sale: funds were already withdrawn for this round")
	ErrAlreadyClaimed       = errors.New("sale: initial tokens were already claimed")
	ErrNotYetClaimed        = errors.New("sale: claim_tokens must run before unlock_tokens")
	ErrNothingToUnlock      = errors.New("sale: no additional tokens are unlockable yet")
	ErrAlreadySubscribed    = errors.New("sale: subscriber already has a subscription for this round")
)

const (
	EventTypeCreated   = "sale.round_created"
	EventTypeSubscribed = "sale.subscribed"
	EventTypeCancelled = "sale.cancelled"
	EventTypeRefunded  = "sale.refunded"
	EventTypeEnded     = "sale.ended"
	EventTypeWithdrawn = "sale.funds_withdrawn"
	EventTypeClaimed   = "sale.tokens_claimed"
	EventTypeUnlocked  = "sale.tokens_unlocked"
)

type Created struct{ Round *Round }

func (Created) EventType() string { return EventTypeCreated }

type Subscribed struct {
	Round *Round
	Sub   *Subscription
}

func (Subscribed) EventType() string { return EventTypeSubscribed }

type Cancelled struct{ Round *Round }

func (Cancelled) EventType() string { return EventTypeCancelled }

type Refunded struct {
	RoundID    uint64
	Subscriber [20]byte
	Amount     *big.Int
}

func (Refunded) EventType() string { return EventTypeRefunded }

type Ended struct{ Round *Round }

func (Ended) EventType() string { return EventTypeEnded }

type Withdrawn struct {
	RoundID uint64
	Amount  *big.Int
}

func (Withdrawn) EventType() string { return EventTypeWithdrawn }

type TokensClaimed struct {
	RoundID    uint64
	Subscriber [20]byte
	Amount     *big.Int
}

func (TokensClaimed) EventType() string { return EventTypeClaimed }

type TokensUnlocked struct {
	RoundID    uint64
	Subscriber [20]byte
	Amount     *big.Int
}

func (TokensUnlocked) EventType() string { return EventTypeUnlocked }

// Store is the narrow persistence interface Engine depends on.
type Store interface {
	NextRoundID() uint64
	GetRound(id uint64) (*Round, bool, error)
	PutRound(r *Round) error

	GetSubscription(roundID uint64, subscriber [20]byte) (*Subscription, bool, error)
	PutSubscription(s *Subscription) error

	IsWhitelisted(roundID uint64, account [20]byte) (bool, error)
	AddToWhitelist(roundID uint64, account [20]byte) error
}

func subKey(roundID uint64, subscriber [20]byte) string {
	return fmt.Sprintf("%d:%x", roundID, subscriber)
}

// Config supplies the pallet's immutable knobs.
type Config struct {
	MinPurchaseFloor *big.Int // applied if a round's MinPurchase is nil
}

// Engine implements the sale pallet's transaction surface.
type Engine struct {
	store    Store
	currency providers.Currency
	entities providers.EntityProvider
	kyc      providers.KycChecker
	payment  *paymentEscrow
	tokenEsc *tokenEscrow
	cfg      Config
	emitter  events.Emitter
}

// NewEngine wires a sale Engine. kyc may be nil if no round ever sets
// KycRequired.
func NewEngine(store Store, currency providers.Currency, entities providers.EntityProvider, tokens providers.SaleTokenProvider, kyc providers.KycChecker, cfg Config) *Engine {
	return &Engine{
		store:    store,
		currency: currency,
		entities: entities,
		kyc:      kyc,
		payment:  newPaymentEscrow(currency),
		tokenEsc: newTokenEscrow(tokens),
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

// CreateSale reserves totalSupply out of the entity's token balance into
// the round's token escrow and persists a new round. WhitelistAllocation
// rounds start WhitelistOpen; every other mode starts Active immediately.
func (e *Engine) CreateSale(entityID, shopID uint64, mode Mode, totalSupply *big.Int, paymentOptions []PaymentOption, vesting VestingConfig, kycRequired bool, minKycLevel uint8, dutchStart, dutchEnd *big.Int, startBlock, endBlock uint64, minPurchase, maxPurchase *big.Int) (*Round, error) {
	if mode == ModeDutchAuction {
		if dutchStart == nil || dutchEnd == nil || dutchStart.Cmp(dutchEnd) <= 0 {
			return nil, ErrInvalidDutchPrices
		}
	}
	if endBlock <= startBlock {
		return nil, ErrInvalidDutchWindow
	}
	if vesting.Type != VestingNone {
		if vesting.TotalDuration < vesting.CliffDuration || vesting.InitialUnlockBps > bps {
			return nil, ErrInvalidVesting
		}
	}

	entityAccount := e.entities.EntityAccount(entityID)
	if err := e.tokenEsc.reserve(shopID, entityAccount, totalSupply); err != nil {
		return nil, err
	}

	status := StatusActive
	if mode == ModeWhitelistAllocation {
		status = StatusWhitelistOpen
	}

	r := &Round{
		ID:              e.store.NextRoundID(),
		EntityID:        entityID,
		ShopID:          shopID,
		Mode:            mode,
		Status:          status,
		TotalSupply:     new(big.Int).Set(totalSupply),
		SoldAmount:      big.NewInt(0),
		RemainingAmount: new(big.Int).Set(totalSupply),
		PaymentOptions:  paymentOptions,
		Vesting:         vesting,
		KycRequired:     kycRequired,
		MinKycLevel:     minKycLevel,
		DutchStartPrice: dutchStart,
		DutchEndPrice:   dutchEnd,
		StartBlock:      startBlock,
		EndBlock:        endBlock,
		MinPurchase:     minPurchase,
		MaxPurchase:     maxPurchase,
		RaisedFunds:     make(map[string]*big.Int),
	}
	if err := e.store.PutRound(r); err != nil {
		return nil, err
	}
	e.emit(Created{Round: r})
	return r, nil
}

// ActivateWhitelistSale transitions a WhitelistOpen round to Active once
// its whitelist phase is over.
func (e *Engine) ActivateWhitelistSale(roundID uint64) error {
	r, err := e.mustRound(roundID)
	if err != nil {
		return err
	}
	if r.Status != StatusWhitelistOpen {
		return ErrRoundNotActive
	}
	r.Status = StatusActive
	return e.store.PutRound(r)
}

func (e *Engine) AddToWhitelist(roundID uint64, account [20]byte) error {
	if _, err := e.mustRound(roundID); err != nil {
		return err
	}
	return e.store.AddToWhitelist(roundID, account)
}

func (e *Engine) mustRound(roundID uint64) (*Round, error) {
	r, ok, err := e.store.GetRound(roundID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrRoundNotFound
	}
	return r, nil
}

func (e *Engine) priceFor(r *Round, asset string, now uint64) (*big.Int, error) {
	if r.Mode == ModeDutchAuction {
		return DutchPrice(r.DutchStartPrice, r.DutchEndPrice, r.StartBlock, r.EndBlock, now), nil
	}
	for _, opt := range r.PaymentOptions {
		if opt.Asset == asset {
			return opt.Price, nil
		}
	}
	return nil, ErrUnknownPaymentAsset
}

// Subscribe validates and records a purchase, transferring payment into the
// round's payment escrow and reserved tokens out of the round's accounting
// (the tokens themselves stay in the token escrow until claim_tokens).
func (e *Engine) Subscribe(subscriber [20]byte, roundID uint64, quantity *big.Int, asset string, kycLevel uint8, now uint64) (*Subscription, error) {
	r, err := e.mustRound(roundID)
	if err != nil {
		return nil, err
	}
	if r.Status != StatusActive {
		return nil, ErrRoundNotActive
	}
	if now < r.StartBlock || now > r.EndBlock {
		return nil, ErrOutsideSaleWindow
	}
	minPurchase := r.MinPurchase
	if minPurchase == nil {
		minPurchase = e.cfg.MinPurchaseFloor
	}
	if minPurchase != nil && quantity.Cmp(minPurchase) < 0 {
		return nil, ErrBelowMinPurchase
	}
	if r.MaxPurchase != nil && quantity.Cmp(r.MaxPurchase) > 0 {
		return nil, ErrAboveMaxPurchase
	}
	if quantity.Cmp(r.RemainingAmount) > 0 {
		return nil, ErrExceedsRemaining
	}
	if r.KycRequired {
		if e.kyc == nil || kycLevel < r.MinKycLevel {
			return nil, ErrKycTooLow
		}
	}
	if r.Mode == ModeWhitelistAllocation {
		ok, err := e.store.IsWhitelisted(roundID, subscriber)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrNotWhitelisted
		}
	}

	if _, exists, err := e.store.GetSubscription(roundID, subscriber); err != nil {
		return nil, err
	} else if exists {
		return nil, ErrAlreadySubscribed
	}

	price, err := e.priceFor(r, asset, now)
	if err != nil {
		return nil, err
	}
	payment := new(big.Int).Mul(quantity, price)

	key := subKey(roundID, subscriber)
	if err := e.payment.lock(subscriber, key, payment); err != nil {
		return nil, err
	}

	r.SoldAmount.Add(r.SoldAmount, quantity)
	r.RemainingAmount.Sub(r.RemainingAmount, quantity)
	if raised, ok := r.RaisedFunds[asset]; ok {
		raised.Add(raised, payment)
	} else {
		r.RaisedFunds[asset] = new(big.Int).Set(payment)
	}
	if r.RemainingAmount.Sign() == 0 {
		r.Status = StatusSoldOut
	}
	r.Participants = append(r.Participants, key)
	if err := e.store.PutRound(r); err != nil {
		return nil, err
	}

	sub := &Subscription{
		RoundID:        roundID,
		Subscriber:     subscriber,
		Amount:         new(big.Int).Set(quantity),
		PaymentAsset:   asset,
		PaymentAmount:  payment,
		SubscribedAt:   now,
		UnlockedAmount: big.NewInt(0),
	}
	if err := e.store.PutSubscription(sub); err != nil {
		return nil, err
	}
	e.emit(Subscribed{Round: r, Sub: sub})
	return sub, nil
}

// CancelSale transitions a round to Cancelled, releasing the unsold token
// reserve back to the entity account. Subsequent subscribe calls fail;
// subscribers recover their payment via ClaimRefund.
func (e *Engine) CancelSale(caller [20]byte, roundID uint64) error {
	r, err := e.mustRound(roundID)
	if err != nil {
		return err
	}
	if !e.entities.IsEntityAdmin(r.EntityID, caller) {
		return ErrNotEntityAdmin
	}
	switch r.Status {
	case StatusNotStarted, StatusWhitelistOpen, StatusActive:
	default:
		return ErrRoundNotCancellable
	}

	entityAccount := e.entities.EntityAccount(r.EntityID)
	if r.RemainingAmount.Sign() > 0 {
		if err := e.tokenEsc.release(r.ShopID, entityAccount, r.RemainingAmount); err != nil {
			return err
		}
	}
	r.Status = StatusCancelled
	if err := e.store.PutRound(r); err != nil {
		return err
	}
	e.emit(Cancelled{Round: r})
	return nil
}

// ClaimRefund pays a subscriber's locked payment back out of escrow once a
// round has been cancelled.
func (e *Engine) ClaimRefund(subscriber [20]byte, roundID uint64) (*big.Int, error) {
	r, err := e.mustRound(roundID)
	if err != nil {
		return nil, err
	}
	if r.Status != StatusCancelled {
		return nil, ErrRoundNotCancelled
	}
	sub, ok, err := e.store.GetSubscription(roundID, subscriber)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	if sub.Refunded {
		return nil, ErrAlreadyRefunded
	}

	amount, err := e.payment.refund(subKey(roundID, subscriber), subscriber)
	if err != nil {
		return nil, err
	}
	sub.Refunded = true
	if err := e.store.PutSubscription(sub); err != nil {
		return nil, err
	}
	e.emit(Refunded{RoundID: roundID, Subscriber: subscriber, Amount: amount})
	return amount, nil
}

// EndSale transitions an Active/WhitelistOpen/SoldOut round to Ended once
// now has passed end_block (SoldOut rounds may end early).
func (e *Engine) EndSale(roundID uint64, now uint64) error {
	r, err := e.mustRound(roundID)
	if err != nil {
		return err
	}
	switch r.Status {
	case StatusActive, StatusWhitelistOpen, StatusSoldOut:
	default:
		return ErrRoundNotEndable
	}
	if r.Status != StatusSoldOut && now < r.EndBlock {
		return ErrSaleWindowNotElapsed
	}
	r.Status = StatusEnded
	if err := e.store.PutRound(r); err != nil {
		return err
	}
	e.emit(Ended{Round: r})
	return nil
}

// WithdrawFunds pays the round's total raised NXS funds to the entity
// account, once, after the round has ended.
func (e *Engine) WithdrawFunds(caller [20]byte, roundID uint64) (*big.Int, error) {
	r, err := e.mustRound(roundID)
	if err != nil {
		return nil, err
	}
	if !e.entities.IsEntityAdmin(r.EntityID, caller) {
		return nil, ErrNotEntityAdmin
	}
	if r.Status != StatusEnded && r.Status != StatusCompleted {
		return nil, ErrRoundNotWithdrawable
	}
	if r.FundsWithdrawn {
		return nil, ErrFundsAlreadyWithdrawn
	}

	total := big.NewInt(0)
	for _, amount := range r.RaisedFunds {
		total.Add(total, amount)
	}
	if total.Sign() > 0 {
		entityAccount := e.entities.EntityAccount(r.EntityID)
		if err := e.payment.withdraw(entityAccount, total); err != nil {
			return nil, err
		}
	}
	r.FundsWithdrawn = true
	if err := e.store.PutRound(r); err != nil {
		return nil, err
	}
	e.emit(Withdrawn{RoundID: roundID, Amount: total})
	return total, nil
}

// ClaimTokens pays a subscriber's immediately-vested initial unlock. Must
// run exactly once per subscription, before any unlock_tokens call.
func (e *Engine) ClaimTokens(subscriber [20]byte, roundID uint64) (*big.Int, error) {
	r, err := e.mustRound(roundID)
	if err != nil {
		return nil, err
	}
	sub, ok, err := e.store.GetSubscription(roundID, subscriber)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	if sub.Claimed {
		return nil, ErrAlreadyClaimed
	}

	initial := CalculateInitialUnlock(r.Vesting, sub.Amount)
	if initial.Sign() > 0 {
		if err := e.tokenEsc.payout(r.ShopID, subscriber, initial); err != nil {
			return nil, err
		}
	}
	sub.Claimed = true
	sub.UnlockedAmount = initial
	if err := e.store.PutSubscription(sub); err != nil {
		return nil, err
	}
	e.emit(TokensClaimed{RoundID: roundID, Subscriber: subscriber, Amount: initial})
	return initial, nil
}

// UnlockTokens pays the additional amount vested since the subscriber's
// last claim/unlock, per the round's vesting schedule.
func (e *Engine) UnlockTokens(subscriber [20]byte, roundID uint64, now uint64) (*big.Int, error) {
	r, err := e.mustRound(roundID)
	if err != nil {
		return nil, err
	}
	sub, ok, err := e.store.GetSubscription(roundID, subscriber)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	if !sub.Claimed {
		return nil, ErrNotYetClaimed
	}

	delta, err := CalculateUnlockable(r.Vesting, sub.Amount, sub.UnlockedAmount, sub.SubscribedAt, now)
	if err != nil {
		return nil, err
	}
	if delta.Sign() <= 0 {
		return nil, ErrNothingToUnlock
	}

	if err := e.tokenEsc.payout(r.ShopID, subscriber, delta); err != nil {
		return nil, err
	}
	sub.UnlockedAmount.Add(sub.UnlockedAmount, delta)
	sub.LastUnlockAt = now
	if err := e.store.PutSubscription(sub); err != nil {
		return nil, err
	}
	e.emit(TokensUnlocked{RoundID: roundID, Subscriber: subscriber, Amount: delta})
	return delta, nil
}
