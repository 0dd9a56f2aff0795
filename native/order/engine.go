package order

import (
	"errors"
	"math/big"

	"nexuschain/core/events"
	"nexuschain/nexus/providers"
)

var (
	ErrProductNotFound   = errors.New("order: product not found")
	ErrProductNotOnSale  = errors.New("order: product not on sale")
	ErrInsufficientStock = errors.New("order: insufficient stock")
	ErrSellerIsBuyer     = errors.New("order: seller cannot buy their own product")
	ErrInvalidQuantity   = errors.New("order: quantity must be positive")
	ErrOrderNotFound     = errors.New("order: order not found")
	ErrNotBuyer          = errors.New("order: caller is not the buyer")
	ErrNotSeller         = errors.New("order: caller is not the seller")
	ErrInvalidStatus     = errors.New("order: invalid status for this operation")
	ErrNotPhysical       = errors.New("order: operation requires a shippable product")
	ErrNotService        = errors.New("order: operation requires a service product")
	ErrServiceNotStarted = errors.New("order: service has not been started")
)

// EventType* name every event the order engine emits.
const (
	EventTypeCreated   = "order.created"
	EventTypePaid      = "order.paid"
	EventTypeShipped   = "order.shipped"
	EventTypeCompleted = "order.completed"
	EventTypeDisputed  = "order.disputed"
	EventTypeRefunded  = "order.refunded"
)

type Created struct{ Order *Order }

func (Created) EventType() string { return EventTypeCreated }

type Paid struct{ Order *Order }

func (Paid) EventType() string { return EventTypePaid }

type Shipped struct{ Order *Order }

func (Shipped) EventType() string { return EventTypeShipped }

type Completed struct{ Order *Order }

func (Completed) EventType() string { return EventTypeCompleted }

type Disputed struct{ Order *Order }

func (Disputed) EventType() string { return EventTypeDisputed }

type Refunded struct{ Order *Order }

func (Refunded) EventType() string { return EventTypeRefunded }

// Store is the narrow persistence interface the order engine depends on.
// ExpiryQueue entries are keyed by the block number they should be
// re-examined at, so on_idle drains exactly the orders due now in O(K)
// rather than scanning every open order.
type Store interface {
	NextOrderID() string
	GetOrder(id string) (*Order, bool, error)
	PutOrder(o *Order) error

	PushExpiry(atBlock uint64, orderID string) error
	DrainExpiry(atBlock uint64, limit int) ([]string, error)
}

// Config holds the fixed, process-wide order parameters.
type Config struct {
	PlatformFeeRateBps    uint32
	PlatformAccount       [20]byte
	ShipTimeoutBlocks     uint64
	ConfirmTimeoutBlocks  uint64
	ServiceConfirmTimeout uint64
}

// Engine implements the order transaction surface. It depends only on the
// narrow providers.* collaborator interfaces, never on the concrete shop,
// entity, or token engines.
type Engine struct {
	store    Store
	escrow   providers.Escrow
	products providers.ProductProvider
	shops    providers.ShopProvider
	tokens   providers.EntityTokenProvider
	commish  providers.CommissionHandler
	cfg      Config
	emitter  events.Emitter
}

// NewEngine wires an order Engine. tokens and commish may be nil if the
// shop never configured a token or commission handler.
func NewEngine(store Store, escrow providers.Escrow, products providers.ProductProvider, shops providers.ShopProvider, tokens providers.EntityTokenProvider, commish providers.CommissionHandler, cfg Config) *Engine {
	return &Engine{
		store: store, escrow: escrow, products: products, shops: shops,
		tokens: tokens, commish: commish, cfg: cfg, emitter: events.NoopEmitter{},
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

func (e *Engine) feeOn(amount *big.Int) *big.Int {
	fee := new(big.Int).Mul(amount, big.NewInt(int64(e.cfg.PlatformFeeRateBps)))
	return fee.Quo(fee, big.NewInt(10_000))
}

// PlaceOrder implements place_order: validates the product, locks funds in
// escrow, deducts stock, and either completes synchronously (digital goods)
// or transitions to Paid and schedules the shipping deadline.
func (e *Engine) PlaceOrder(buyer [20]byte, productID uint64, quantity uint64, shippingCID string, useTokens *big.Int, now uint64) (*Order, error) {
	if quantity == 0 {
		return nil, ErrInvalidQuantity
	}
	if !e.products.ProductExists(productID) {
		return nil, ErrProductNotFound
	}
	if !e.products.IsProductOnSale(productID) {
		return nil, ErrProductNotOnSale
	}
	shopID, _ := e.products.ProductShopID(productID)
	seller, _ := e.shops.ShopOwner(shopID)
	if seller == buyer {
		return nil, ErrSellerIsBuyer
	}
	stock, _ := e.products.ProductStock(productID)
	if stock < quantity {
		return nil, ErrInsufficientStock
	}
	price, _ := e.products.ProductPrice(productID)
	category, _ := e.products.ProductCategory(productID)

	total := new(big.Int).Mul(price, big.NewInt(int64(quantity)))

	discount := big.NewInt(0)
	if useTokens != nil && useTokens.Sign() > 0 && e.tokens != nil {
		d, err := e.tokens.RedeemForDiscount(shopID, buyer, useTokens)
		if err != nil {
			return nil, err
		}
		discount = d
	}
	final := new(big.Int).Sub(total, discount)
	if final.Sign() < 0 {
		final = big.NewInt(0)
	}
	fee := e.feeOn(final)

	id := e.store.NextOrderID()
	if err := e.escrow.LockFrom(buyer, id, final); err != nil {
		return nil, err
	}
	if err := e.products.DeductStock(productID, quantity); err != nil {
		return nil, err
	}
	if err := e.products.AddSoldCount(productID, quantity); err != nil {
		return nil, err
	}

	o := &Order{
		ID: id, ShopID: shopID, ProductID: productID, Buyer: buyer, Seller: seller,
		Quantity: quantity, TotalAmount: total, Discount: discount, FinalAmount: final,
		PlatformFee: fee, RequiresShipping: category.RequiresShipping(),
		IsService: category == providers.ProductCategoryService,
		ShippingCID: shippingCID, Status: StatusPaid, CreatedAt: int64(now),
	}

	if category == providers.ProductCategoryDigital {
		o.Status = StatusCompleted
		if err := e.store.PutOrder(o); err != nil {
			return nil, err
		}
		e.emit(Created{Order: o})
		e.emit(Paid{Order: o})
		if err := e.completeOrder(o, now); err != nil {
			return nil, err
		}
		return o, nil
	}

	if err := e.store.PutOrder(o); err != nil {
		return nil, err
	}
	if err := e.store.PushExpiry(now+e.cfg.ShipTimeoutBlocks, id); err != nil {
		return nil, err
	}
	e.emit(Created{Order: o})
	e.emit(Paid{Order: o})
	return o, nil
}

func (e *Engine) mustGet(id string) (*Order, error) {
	o, ok, err := e.store.GetOrder(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrOrderNotFound
	}
	return o, nil
}

// ShipOrder implements ship_order: seller attaches a tracking reference and
// the order moves Paid -> Shipped, rescheduled against the confirm timeout.
func (e *Engine) ShipOrder(seller [20]byte, orderID string, trackingCID string, now uint64) error {
	o, err := e.mustGet(orderID)
	if err != nil {
		return err
	}
	if o.Seller != seller {
		return ErrNotSeller
	}
	if o.Status != StatusPaid {
		return ErrInvalidStatus
	}
	if !o.RequiresShipping {
		return ErrNotPhysical
	}
	o.TrackingCID = trackingCID
	o.Status = StatusShipped
	if err := e.store.PutOrder(o); err != nil {
		return err
	}
	if err := e.store.PushExpiry(now+e.cfg.ConfirmTimeoutBlocks, orderID); err != nil {
		return err
	}
	e.emit(Shipped{Order: o})
	return nil
}

// ConfirmReceipt implements confirm_receipt: buyer acknowledges a shipped
// order, running the completion sub-protocol.
func (e *Engine) ConfirmReceipt(buyer [20]byte, orderID string, now uint64) error {
	o, err := e.mustGet(orderID)
	if err != nil {
		return err
	}
	if o.Buyer != buyer {
		return ErrNotBuyer
	}
	if o.Status != StatusShipped {
		return ErrInvalidStatus
	}
	return e.completeOrder(o, now)
}

// StartService implements start_service: seller marks a service order as
// in progress.
func (e *Engine) StartService(seller [20]byte, orderID string, now uint64) error {
	o, err := e.mustGet(orderID)
	if err != nil {
		return err
	}
	if o.Seller != seller {
		return ErrNotSeller
	}
	if o.Status != StatusPaid {
		return ErrInvalidStatus
	}
	if !o.IsService {
		return ErrNotService
	}
	o.Status = StatusShipped
	o.ServiceStartedAt = int64(now)
	return e.store.PutOrder(o)
}

// CompleteService implements complete_service: seller marks a started
// service as finished and schedules the buyer's confirmation deadline.
func (e *Engine) CompleteService(seller [20]byte, orderID string, now uint64) error {
	o, err := e.mustGet(orderID)
	if err != nil {
		return err
	}
	if o.Seller != seller {
		return ErrNotSeller
	}
	if o.Status != StatusShipped || !o.IsService {
		return ErrInvalidStatus
	}
	if o.ServiceStartedAt == 0 {
		return ErrServiceNotStarted
	}
	o.ServiceCompletedAt = int64(now)
	if err := e.store.PutOrder(o); err != nil {
		return err
	}
	return e.store.PushExpiry(now+e.cfg.ServiceConfirmTimeout, orderID)
}

// ConfirmService implements confirm_service: buyer accepts completed work.
func (e *Engine) ConfirmService(buyer [20]byte, orderID string, now uint64) error {
	o, err := e.mustGet(orderID)
	if err != nil {
		return err
	}
	if o.Buyer != buyer {
		return ErrNotBuyer
	}
	if o.Status != StatusShipped || !o.IsService || o.ServiceCompletedAt == 0 {
		return ErrInvalidStatus
	}
	return e.completeOrder(o, now)
}

// RequestRefund implements request_refund: buyer disputes a non-digital
// order that has not yet completed.
func (e *Engine) RequestRefund(buyer [20]byte, orderID string) error {
	o, err := e.mustGet(orderID)
	if err != nil {
		return err
	}
	if o.Buyer != buyer {
		return ErrNotBuyer
	}
	if o.Status != StatusPaid && o.Status != StatusShipped {
		return ErrInvalidStatus
	}
	o.Status = StatusDisputed
	if err := e.store.PutOrder(o); err != nil {
		return err
	}
	e.emit(Disputed{Order: o})
	return nil
}

// ApproveRefund implements approve_refund: seller accepts a disputed
// order's refund, restoring stock and returning the full hold to the buyer.
func (e *Engine) ApproveRefund(seller [20]byte, orderID string) error {
	o, err := e.mustGet(orderID)
	if err != nil {
		return err
	}
	if o.Seller != seller {
		return ErrNotSeller
	}
	if o.Status != StatusDisputed {
		return ErrInvalidStatus
	}
	return e.refundOrder(o)
}

func (e *Engine) refundOrder(o *Order) error {
	if _, err := e.escrow.RefundAll(o.ID, o.Buyer); err != nil {
		return err
	}
	if err := e.products.RestoreStock(o.ProductID, o.Quantity); err != nil {
		return err
	}
	o.Status = StatusRefunded
	if err := e.store.PutOrder(o); err != nil {
		return err
	}
	e.emit(Refunded{Order: o})
	return nil
}

// completeOrder runs the seven-step completion sub-protocol: split the
// escrowed hold between seller and platform, mark the order Completed,
// update shop stats, notify the commission handler, and mint purchase
// rewards.
func (e *Engine) completeOrder(o *Order, now uint64) error {
	sellerAmount := new(big.Int).Sub(o.FinalAmount, o.PlatformFee)
	if sellerAmount.Sign() < 0 {
		sellerAmount = big.NewInt(0)
	}
	if sellerAmount.Sign() > 0 {
		if err := e.escrow.TransferFromEscrow(o.ID, o.Seller, sellerAmount); err != nil {
			return err
		}
	}
	if o.PlatformFee.Sign() > 0 {
		if err := e.escrow.TransferFromEscrow(o.ID, e.cfg.PlatformAccount, o.PlatformFee); err != nil {
			return err
		}
	}

	o.Status = StatusCompleted
	o.CompletedAt = int64(now)
	if err := e.store.PutOrder(o); err != nil {
		return err
	}

	if err := e.shops.UpdateShopStats(o.ShopID, o.TotalAmount, 1); err != nil {
		return err
	}
	if e.commish != nil {
		if err := e.commish.OnOrderCompleted(o.ShopID, o.ID, o.Buyer, o.TotalAmount); err != nil {
			return err
		}
	}
	if e.tokens != nil {
		if _, err := e.tokens.RewardOnPurchase(o.ShopID, o.Buyer, o.TotalAmount); err != nil {
			return err
		}
	}

	e.emit(Completed{Order: o})
	return nil
}

// OnIdle drains every order due for expiry re-examination at the given
// block, bounded by limit so a single block can never be forced to process
// an unbounded backlog. A due Paid order is refunded and a due Shipped
// order is completed, whichever of its queue entries (the one scheduled at
// payment or the one scheduled at shipment) comes due first; orders in any
// other status are skipped. The queue entry is always removed.
func (e *Engine) OnIdle(now uint64, limit int) error {
	ids, err := e.store.DrainExpiry(now, limit)
	if err != nil {
		return err
	}
	for _, id := range ids {
		o, ok, err := e.store.GetOrder(id)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		switch {
		case o.Status == StatusPaid && o.RequiresShipping:
			if err := e.refundOrder(o); err != nil {
				return err
			}
		case o.Status == StatusPaid && o.IsService && o.ServiceStartedAt == 0:
			if err := e.refundOrder(o); err != nil {
				return err
			}
		case o.Status == StatusShipped:
			if err := e.completeOrder(o, now); err != nil {
				return err
			}
		default:
			// already manually progressed (Completed/Cancelled/Disputed/Refunded); nothing to do.
		}
	}
	return nil
}
