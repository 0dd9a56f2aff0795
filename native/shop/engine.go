package shop

import (
	"errors"
	"fmt"
	"math/big"

	"nexuschain/core/events"
	"nexuschain/nexus/providers"
)

var (
	ErrShopNotFound     = errors.New("shop: not found")
	ErrNotManager       = errors.New("shop: caller is not a manager")
	ErrInvalidStatus    = errors.New("shop: invalid status for this transition")
	ErrEntityNotActive  = errors.New("shop: owning entity is not active")
	ErrPrimaryShopClose = errors.New("shop: primary shop cannot be closed independently of its entity")
)

const (
	EventTypeShopCreated = "shop.created"
	EventTypeShopStatus  = "shop.status_changed"
	EventTypeShopRated   = "shop.rated"
)

// StatusChanged is emitted on every shop status transition.
type StatusChanged struct {
	ID       uint64
	From, To Status
}

func (StatusChanged) EventType() string { return EventTypeShopStatus }

// Created is emitted when a new shop is registered.
type Created struct {
	ID        uint64
	EntityID  uint64
	IsPrimary bool
}

func (Created) EventType() string { return EventTypeShopCreated }

// Rated is emitted when a new rating sample is accumulated.
type Rated struct {
	ID     uint64
	Sample uint8
}

func (Rated) EventType() string { return EventTypeShopRated }

// Store is the narrow persistence interface Engine depends on.
type Store interface {
	NextShopID() (uint64, error)
	GetShop(id uint64) (*Shop, bool, error)
	PutShop(s *Shop) error
}

// Engine implements the shop pallet transaction surface. It depends on
// providers.EntityProvider rather than the concrete entity.Engine, so
// shop and entity never import each other.
type Engine struct {
	store    Store
	entities providers.EntityProvider
	emitter  events.Emitter
}

// NewEngine wires a shop Engine.
func NewEngine(store Store, entities providers.EntityProvider) *Engine {
	return &Engine{store: store, entities: entities, emitter: events.NoopEmitter{}}
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

// CreateShop registers a new shop under entityID. isPrimary marks the
// entity's one primary shop, which cannot later be closed independently.
func (e *Engine) CreateShop(entityID uint64, creator [20]byte, isPrimary bool) (*Shop, error) {
	if !e.entities.EntityExists(entityID) {
		return nil, fmt.Errorf("shop: entity %d does not exist", entityID)
	}
	if !e.entities.IsEntityActive(entityID) {
		return nil, ErrEntityNotActive
	}
	if !e.entities.IsEntityAdmin(entityID, creator) {
		return nil, ErrNotManager
	}

	id, err := e.store.NextShopID()
	if err != nil {
		return nil, fmt.Errorf("shop: allocate id: %w", err)
	}
	s := &Shop{
		ID:               id,
		EntityID:         entityID,
		Managers:         [][20]byte{creator},
		Status:           StatusActive,
		IsPrimary:        isPrimary,
		RatingSum:        big.NewInt(0),
		TotalSalesAmount: big.NewInt(0),
	}
	if err := e.store.PutShop(s); err != nil {
		return nil, fmt.Errorf("shop: persist: %w", err)
	}
	e.emit(Created{ID: id, EntityID: entityID, IsPrimary: isPrimary})
	return s, nil
}

// Pause transitions Active -> Paused.
func (e *Engine) Pause(id uint64, who [20]byte) error {
	return e.managedTransition(id, who, StatusActive, StatusPaused)
}

// Resume transitions Paused -> Active.
func (e *Engine) Resume(id uint64, who [20]byte) error {
	return e.managedTransition(id, who, StatusPaused, StatusActive)
}

// Close transitions to Closed. Primary shops reject independent closure;
// they close only as part of their entity closing.
func (e *Engine) Close(id uint64, who [20]byte) error {
	s, ok, err := e.store.GetShop(id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrShopNotFound
	}
	if s.IsPrimary {
		return ErrPrimaryShopClose
	}
	if !s.IsManager(who) {
		return ErrNotManager
	}
	if s.Status == StatusClosed {
		return ErrInvalidStatus
	}
	return e.setStatus(s, StatusClosed)
}

// CloseWithEntity force-closes a shop regardless of primary status, for
// closing a shop together with its owning entity. The entity pallet does
// not call it.
func (e *Engine) CloseWithEntity(id uint64) error {
	s, ok, err := e.store.GetShop(id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrShopNotFound
	}
	return e.setStatus(s, StatusClosed)
}

// MarkFundDepleted transitions any non-Closed shop into FundDepleted. No
// other pallet calls it; the order pallet does not check shop balances.
func (e *Engine) MarkFundDepleted(id uint64) error {
	s, ok, err := e.store.GetShop(id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrShopNotFound
	}
	if s.Status == StatusClosed {
		return ErrInvalidStatus
	}
	return e.setStatus(s, StatusFundDepleted)
}

func (e *Engine) managedTransition(id uint64, who [20]byte, from, to Status) error {
	s, ok, err := e.store.GetShop(id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrShopNotFound
	}
	if !s.IsManager(who) {
		return ErrNotManager
	}
	if s.Status != from {
		return ErrInvalidStatus
	}
	return e.setStatus(s, to)
}

func (e *Engine) setStatus(s *Shop, to Status) error {
	from := s.Status
	s.Status = to
	if err := e.store.PutShop(s); err != nil {
		return fmt.Errorf("shop: persist status change: %w", err)
	}
	e.emit(StatusChanged{ID: s.ID, From: from, To: to})
	return nil
}

// --- providers.ShopProvider ---

func (e *Engine) ShopExists(id uint64) bool {
	_, ok, _ := e.store.GetShop(id)
	return ok
}

func (e *Engine) IsShopActive(id uint64) bool {
	s, ok, _ := e.store.GetShop(id)
	return ok && s.Status == StatusActive
}

func (e *Engine) ShopOwner(id uint64) ([20]byte, bool) {
	s, ok, _ := e.store.GetShop(id)
	if !ok || len(s.Managers) == 0 {
		return [20]byte{}, false
	}
	return s.Managers[0], true
}

func (e *Engine) ShopAccount(id uint64) [20]byte {
	return DeriveAccount(id)
}

// UpdateShopStats accumulates a completed order's sales amount and order
// count into the shop's running totals.
func (e *Engine) UpdateShopStats(shopID uint64, salesAmount *big.Int, orders uint64) error {
	s, ok, err := e.store.GetShop(shopID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrShopNotFound
	}
	s.TotalSalesAmount.Add(s.TotalSalesAmount, salesAmount)
	s.TotalOrders += orders
	return e.store.PutShop(s)
}

// UpdateShopRating folds one new 1-5 (or 1-100, caller-defined scale)
// rating sample into the shop's exact-rational running average
//: average = RatingSum / RatingCount computed
// via big.Rat, so no sample's contribution is ever rounded away.
func (e *Engine) UpdateShopRating(shopID uint64, rating uint8) error {
	s, ok, err := e.store.GetShop(shopID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrShopNotFound
	}
	s.RatingSum.Add(s.RatingSum, big.NewInt(int64(rating)))
	s.RatingCount++
	if err := e.store.PutShop(s); err != nil {
		return err
	}
	e.emit(Rated{ID: shopID, Sample: rating})
	return nil
}

var _ providers.ShopProvider = (*Engine)(nil)
