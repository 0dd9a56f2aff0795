package entity

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"nexuschain/core/events"
	"nexuschain/nexus/providers"
)

var (
	ErrNameEmpty       = errors.New("entity: name must not be empty")
	ErrNameTooLong     = errors.New("entity: name exceeds max length")
	ErrEntityNotFound  = errors.New("entity: not found")
	ErrNotOwnerOrAdmin = errors.New("entity: caller is not owner or admin")
	ErrInvalidStatus   = errors.New("entity: invalid status for this transition")
	ErrPrimaryShopOpen = errors.New("entity: entity has an open primary shop")
)

const (
	// MaxNameLen bounds the entity display name.
	MaxNameLen = 64
	// usdtToCosScale expresses the 10^12 fixed-point factor applied when
	// converting a USDT-denominated initial fund into COS:
	// initial_fund = clamp(InitialFundUsdt * 10^12 / cos_usdt_price, [Min, Max]).
	usdtToCosScale = "1000000000000"
)

// EventTypeEntityCreated and friends name the events this engine emits.
const (
	EventTypeEntityCreated    = "entity.created"
	EventTypeEntityStatus     = "entity.status_changed"
	EventTypeEntityLowFund    = "entity.low_fund"
	EventTypeEntityFundWarned = "entity.fund_warning"
)

// StatusChanged is emitted on every entity status transition.
type StatusChanged struct {
	ID       uint64
	From, To Status
	Reason   string
}

func (StatusChanged) EventType() string { return EventTypeEntityStatus }

// Created is emitted when a new entity is registered.
type Created struct {
	ID          uint64
	Owner       [20]byte
	Account     [20]byte
	InitialFund *big.Int
}

func (Created) EventType() string { return EventTypeEntityCreated }

// LowFund is emitted when an entity auto-suspends for insufficient funds.
type LowFund struct {
	ID uint64
}

func (LowFund) EventType() string { return EventTypeEntityLowFund }

// FundWarning is emitted the first time an entity's balance crosses the
// warning threshold from above.
type FundWarning struct {
	ID uint64
}

func (FundWarning) EventType() string { return EventTypeEntityFundWarned }

// Store is the narrow persistence interface Engine depends on, mirroring
// a narrow collaborator-interface pattern: Engine never touches the
// underlying keyed store directly.
type Store interface {
	NextEntityID() (uint64, error)
	GetEntity(id uint64) (*Entity, bool, error)
	PutEntity(e *Entity) error
}

// Config captures runtime-tunable parameters for entity creation and fund
// health classification.
type Config struct {
	InitialFundUsdt     *big.Int // USDT cents, pre-conversion
	MinInitialFundCos   *big.Int
	MaxInitialFundCos   *big.Int
	Thresholds          Thresholds
	AutoActivateOnCreate bool
}

// Engine implements the entity registry transaction surface.
type Engine struct {
	store    Store
	currency providers.Currency
	pricing  providers.PricingProvider
	cfg      Config
	emitter  events.Emitter
}

// NewEngine wires an entity Engine. pricing may be nil only if callers never
// invoke CreateEntity with a USDT-denominated initial fund.
func NewEngine(store Store, currency providers.Currency, pricing providers.PricingProvider, cfg Config) *Engine {
	return &Engine{store: store, currency: currency, pricing: pricing, cfg: cfg, emitter: events.NoopEmitter{}}
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

// CreateEntity validates name, converts the configured USDT initial fund
// into COS using the live oracle rate, transfers it owner->entity_account,
// and registers the entity.
func (e *Engine) CreateEntity(owner [20]byte, name string, entityType EntityType, mode GovernanceMode) (*Entity, error) {
	if name == "" {
		return nil, ErrNameEmpty
	}
	if len(name) > MaxNameLen {
		return nil, ErrNameTooLong
	}

	initialFund, err := e.computeInitialFund()
	if err != nil {
		return nil, err
	}

	id, err := e.store.NextEntityID()
	if err != nil {
		return nil, fmt.Errorf("entity: allocate id: %w", err)
	}
	account := DeriveAccount(id)

	if initialFund.Sign() > 0 && e.currency != nil {
		if err := e.currency.Transfer(owner, account, initialFund, providers.KeepAlive); err != nil {
			return nil, fmt.Errorf("entity: fund entity account: %w", err)
		}
	}

	status := StatusPending
	if e.cfg.AutoActivateOnCreate {
		status = StatusActive
	}

	ent := &Entity{
		ID:             id,
		Owner:          owner,
		Status:         status,
		InitialFund:    initialFund,
		EntityType:     entityType,
		GovernanceMode: mode,
		Name:           name,
	}
	if err := e.store.PutEntity(ent); err != nil {
		return nil, fmt.Errorf("entity: persist: %w", err)
	}
	e.emit(Created{ID: id, Owner: owner, Account: account, InitialFund: initialFund})
	return ent, nil
}

// computeInitialFund converts the configured USDT initial fund to COS at the
// live oracle rate and clamps it to [MinInitialFundCos, MaxInitialFundCos].
func (e *Engine) computeInitialFund() (*big.Int, error) {
	if e.cfg.InitialFundUsdt == nil || e.cfg.InitialFundUsdt.Sign() == 0 {
		return big.NewInt(0), nil
	}
	if e.pricing == nil {
		return nil, errors.New("entity: pricing provider required for a nonzero initial fund")
	}
	priceMicros, err := e.pricing.GetCosUsdtPrice()
	if err != nil {
		return nil, fmt.Errorf("entity: read cos/usdt price: %w", err)
	}
	if priceMicros == 0 {
		return nil, errors.New("entity: cos/usdt price is zero")
	}

	usdt := decimal.NewFromBigInt(e.cfg.InitialFundUsdt, 0)
	scale, _ := decimal.NewFromString(usdtToCosScale)
	price := decimal.NewFromInt(int64(priceMicros))
	cos := usdt.Mul(scale).Div(price).Truncate(0)
	fund := cos.BigInt()

	if e.cfg.MinInitialFundCos != nil && fund.Cmp(e.cfg.MinInitialFundCos) < 0 {
		fund = new(big.Int).Set(e.cfg.MinInitialFundCos)
	}
	if e.cfg.MaxInitialFundCos != nil && fund.Cmp(e.cfg.MaxInitialFundCos) > 0 {
		fund = new(big.Int).Set(e.cfg.MaxInitialFundCos)
	}
	return fund, nil
}

// Approve transitions Pending -> Active (governance approval).
func (e *Engine) Approve(id uint64) error {
	return e.transition(id, StatusPending, StatusActive, "")
}

// Suspend transitions Active -> Suspended (governance action).
func (e *Engine) Suspend(id uint64, reason string) error {
	return e.transition(id, StatusActive, StatusSuspended, reason)
}

// Resume transitions Suspended -> Active, requiring the entity account
// balance to have recovered to at least MinOperatingBalance.
func (e *Engine) Resume(id uint64) error {
	ent, ok, err := e.store.GetEntity(id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrEntityNotFound
	}
	if ent.Status != StatusSuspended {
		return ErrInvalidStatus
	}
	if e.currency != nil {
		balance, err := e.currency.FreeBalance(DeriveAccount(id))
		if err != nil {
			return fmt.Errorf("entity: read balance: %w", err)
		}
		if e.cfg.Thresholds.MinOperatingBalance != nil && balance.Cmp(e.cfg.Thresholds.MinOperatingBalance) < 0 {
			return fmt.Errorf("entity: balance below MinOperatingBalance")
		}
	}
	return e.setStatus(ent, StatusActive, "")
}

// RequestClose transitions Active -> PendingClose (owner action).
func (e *Engine) RequestClose(id uint64, who [20]byte) error {
	ent, ok, err := e.store.GetEntity(id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrEntityNotFound
	}
	if ent.Owner != who {
		return ErrNotOwnerOrAdmin
	}
	if ent.Status != StatusActive {
		return ErrInvalidStatus
	}
	return e.setStatus(ent, StatusPendingClose, "")
}

// ApproveClose transitions PendingClose -> Closed and refunds the entire
// entity-account balance to the owner (governance approval).
func (e *Engine) ApproveClose(id uint64) error {
	ent, ok, err := e.store.GetEntity(id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrEntityNotFound
	}
	if ent.Status != StatusPendingClose {
		return ErrInvalidStatus
	}
	if e.currency != nil {
		account := DeriveAccount(id)
		balance, err := e.currency.FreeBalance(account)
		if err != nil {
			return fmt.Errorf("entity: read balance: %w", err)
		}
		if balance.Sign() > 0 {
			if err := e.currency.Transfer(account, ent.Owner, balance, providers.AllowDeath); err != nil {
				return fmt.Errorf("entity: refund on close: %w", err)
			}
		}
	}
	return e.setStatus(ent, StatusClosed, "")
}

// Reopen transitions Closed -> Pending (owner action).
func (e *Engine) Reopen(id uint64, who [20]byte) error {
	ent, ok, err := e.store.GetEntity(id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrEntityNotFound
	}
	if ent.Owner != who {
		return ErrNotOwnerOrAdmin
	}
	if ent.Status != StatusClosed {
		return ErrInvalidStatus
	}
	return e.setStatus(ent, StatusPending, "")
}

// Ban transitions any non-terminal status to Banned. confiscate selects
// whether the remaining entity-account balance is swept to treasury or
// refunded to the owner.
func (e *Engine) Ban(id uint64, treasury [20]byte, confiscate bool) error {
	ent, ok, err := e.store.GetEntity(id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrEntityNotFound
	}
	if ent.Status == StatusBanned || ent.Status == StatusClosed {
		return ErrInvalidStatus
	}
	if e.currency != nil {
		account := DeriveAccount(id)
		balance, err := e.currency.FreeBalance(account)
		if err != nil {
			return fmt.Errorf("entity: read balance: %w", err)
		}
		if balance.Sign() > 0 {
			dest := ent.Owner
			if confiscate {
				dest = treasury
			}
			if err := e.currency.Transfer(account, dest, balance, providers.AllowDeath); err != nil {
				return fmt.Errorf("entity: sweep on ban: %w", err)
			}
		}
	}
	return e.setStatus(ent, StatusBanned, "")
}

// DeductOperatingFee slashes amount from the entity's operating fund. If
// the post-deduction balance falls at or below MinOperatingBalance the
// entity auto-suspends with reason "low_fund"; crossing WarningThreshold
// emits a warning event without changing status.
func (e *Engine) DeductOperatingFee(id uint64, amount *big.Int) error {
	ent, ok, err := e.store.GetEntity(id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrEntityNotFound
	}
	account := DeriveAccount(id)
	before, err := e.currency.FreeBalance(account)
	if err != nil {
		return fmt.Errorf("entity: read balance: %w", err)
	}
	if _, err := e.currency.Slash(account, amount); err != nil {
		return fmt.Errorf("entity: deduct operating fee: %w", err)
	}
	after, err := e.currency.FreeBalance(account)
	if err != nil {
		return fmt.Errorf("entity: read balance after deduction: %w", err)
	}

	health := e.cfg.Thresholds.Classify(after)
	if health == FundCritical || health == FundDepleted {
		if ent.Status == StatusActive {
			if err := e.setStatus(ent, StatusSuspended, "low_fund"); err != nil {
				return err
			}
			e.emit(LowFund{ID: id})
		}
		return nil
	}
	if before.Cmp(e.cfg.Thresholds.WarningThreshold) > 0 && after.Cmp(e.cfg.Thresholds.WarningThreshold) <= 0 {
		e.emit(FundWarning{ID: id})
	}
	return nil
}

// FundHealth classifies an entity's current operating balance.
func (e *Engine) FundHealth(id uint64) (FundHealth, error) {
	balance, err := e.currency.FreeBalance(DeriveAccount(id))
	if err != nil {
		return 0, err
	}
	return e.cfg.Thresholds.Classify(balance), nil
}

func (e *Engine) transition(id uint64, from, to Status, reason string) error {
	ent, ok, err := e.store.GetEntity(id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrEntityNotFound
	}
	if ent.Status != from {
		return ErrInvalidStatus
	}
	return e.setStatus(ent, to, reason)
}

func (e *Engine) setStatus(ent *Entity, to Status, reason string) error {
	from := ent.Status
	ent.Status = to
	ent.SuspendReason = reason
	if err := e.store.PutEntity(ent); err != nil {
		return fmt.Errorf("entity: persist status change: %w", err)
	}
	e.emit(StatusChanged{ID: ent.ID, From: from, To: to, Reason: reason})
	return nil
}

// --- providers.EntityProvider ---

// EntityExists reports whether id is registered.
func (e *Engine) EntityExists(id uint64) bool {
	_, ok, _ := e.store.GetEntity(id)
	return ok
}

// EntityOwner returns the owner of an entity.
func (e *Engine) EntityOwner(id uint64) ([20]byte, bool) {
	ent, ok, _ := e.store.GetEntity(id)
	if !ok {
		return [20]byte{}, false
	}
	return ent.Owner, true
}

// EntityAccount returns the derived operating-fund sub-account for id.
func (e *Engine) EntityAccount(id uint64) [20]byte {
	return DeriveAccount(id)
}

// IsEntityActive reports whether the entity is in the Active status.
func (e *Engine) IsEntityActive(id uint64) bool {
	ent, ok, _ := e.store.GetEntity(id)
	return ok && ent.Status == StatusActive
}

// IsEntityAdmin reports whether who is the owner or a registered admin.
func (e *Engine) IsEntityAdmin(id uint64, who [20]byte) bool {
	ent, ok, _ := e.store.GetEntity(id)
	if !ok {
		return false
	}
	return ent.IsAdmin(who)
}

// SetVerified flips an entity's verified flag. Used by shopgov to apply a
// passed entity-param governance proposal.
func (e *Engine) SetVerified(id uint64, verified bool) error {
	ent, ok, err := e.store.GetEntity(id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrEntityNotFound
	}
	ent.Verified = verified
	return e.store.PutEntity(ent)
}

var _ providers.EntityProvider = (*Engine)(nil)
var _ providers.EntityVerifier = (*Engine)(nil)
