package nexuschaind

import (
	"fmt"
	"math/big"
	"sync"

	"nexuschain/nexus/providers"
)

type product struct {
	shopID   uint64
	price    *big.Int
	stock    uint64
	sold     uint64
	category providers.ProductCategory
	onSale   bool
}

// catalog is the minimal in-memory ProductProvider an order pallet needs to
// validate and fulfil place_order: a product registry keyed by id, seeded
// through catalog.register_product before orders can reference it. It also implements
// CommissionHandler as a no-op ledger hook, since commission accounting
// itself is out of this entrypoint's scope.
type catalog struct {
	mu       sync.Mutex
	products map[uint64]*product
	nextID   uint64
}

func newCatalog() *catalog {
	return &catalog{products: make(map[uint64]*product)}
}

func (c *catalog) register(shopID uint64, price *big.Int, stock uint64, category providers.ProductCategory) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	c.products[id] = &product{shopID: shopID, price: new(big.Int).Set(price), stock: stock, category: category, onSale: true}
	return id
}

func (c *catalog) ProductExists(id uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.products[id]
	return ok
}

func (c *catalog) IsProductOnSale(id uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.products[id]
	return ok && p.onSale
}

func (c *catalog) ProductShopID(id uint64) (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.products[id]
	if !ok {
		return 0, false
	}
	return p.shopID, true
}

func (c *catalog) ProductPrice(id uint64) (*big.Int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.products[id]
	if !ok {
		return nil, false
	}
	return new(big.Int).Set(p.price), true
}

func (c *catalog) ProductStock(id uint64) (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.products[id]
	if !ok {
		return 0, false
	}
	return p.stock, true
}

func (c *catalog) ProductCategory(id uint64) (providers.ProductCategory, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.products[id]
	if !ok {
		return 0, false
	}
	return p.category, true
}

func (c *catalog) DeductStock(id uint64, qty uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.products[id]
	if !ok {
		return fmt.Errorf("catalog: unknown product %d", id)
	}
	if p.stock < qty {
		return fmt.Errorf("catalog: insufficient stock for product %d", id)
	}
	p.stock -= qty
	if p.stock == 0 {
		p.onSale = false
	}
	return nil
}

func (c *catalog) RestoreStock(id uint64, qty uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.products[id]
	if !ok {
		return fmt.Errorf("catalog: unknown product %d", id)
	}
	p.stock += qty
	p.onSale = true
	return nil
}

func (c *catalog) AddSoldCount(id uint64, qty uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.products[id]
	if !ok {
		return fmt.Errorf("catalog: unknown product %d", id)
	}
	p.sold += qty
	return nil
}

// OnOrderCompleted is the CommissionHandler hook; this entrypoint has no
// separate commission ledger, so the hook records nothing.
func (c *catalog) OnOrderCompleted(shopID uint64, orderID string, buyer [20]byte, amount *big.Int) error {
	return nil
}
