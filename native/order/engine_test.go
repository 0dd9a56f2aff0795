package order

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"nexuschain/nexus/providers"
)

type fakeCurrency struct {
	balances map[[20]byte]*big.Int
}

func newFakeCurrency() *fakeCurrency { return &fakeCurrency{balances: make(map[[20]byte]*big.Int)} }

func (c *fakeCurrency) bal(who [20]byte) *big.Int {
	b, ok := c.balances[who]
	if !ok {
		b = big.NewInt(0)
		c.balances[who] = b
	}
	return b
}

func (c *fakeCurrency) Transfer(from, to [20]byte, amount *big.Int, req providers.ExistenceRequirement) error {
	c.bal(from).Sub(c.bal(from), amount)
	c.bal(to).Add(c.bal(to), amount)
	return nil
}
func (c *fakeCurrency) Reserve(who [20]byte, amount *big.Int) error { return nil }
func (c *fakeCurrency) Unreserve(who [20]byte, amount *big.Int) (*big.Int, error) {
	return amount, nil
}
func (c *fakeCurrency) FreeBalance(who [20]byte) (*big.Int, error) {
	return new(big.Int).Set(c.bal(who)), nil
}
func (c *fakeCurrency) ReservedBalance(who [20]byte) (*big.Int, error) { return big.NewInt(0), nil }
func (c *fakeCurrency) DepositCreating(who [20]byte, amount *big.Int) error {
	c.bal(who).Add(c.bal(who), amount)
	return nil
}
func (c *fakeCurrency) Slash(who [20]byte, amount *big.Int) (*big.Int, error) {
	bal := c.bal(who)
	if bal.Cmp(amount) < 0 {
		slashed := new(big.Int).Set(bal)
		bal.SetInt64(0)
		return slashed, nil
	}
	bal.Sub(bal, amount)
	return new(big.Int).Set(amount), nil
}

type fakeProduct struct {
	shopID   uint64
	price    *big.Int
	stock    uint64
	sold     uint64
	onSale   bool
	category providers.ProductCategory
	exists   bool
}

type fakeProducts struct {
	products map[uint64]*fakeProduct
}

func newFakeProducts() *fakeProducts { return &fakeProducts{products: map[uint64]*fakeProduct{}} }

func (f *fakeProducts) ProductExists(id uint64) bool { return f.products[id] != nil && f.products[id].exists }
func (f *fakeProducts) IsProductOnSale(id uint64) bool { return f.products[id].onSale }
func (f *fakeProducts) ProductShopID(id uint64) (uint64, bool) { return f.products[id].shopID, true }
func (f *fakeProducts) ProductPrice(id uint64) (*big.Int, bool) { return f.products[id].price, true }
func (f *fakeProducts) ProductStock(id uint64) (uint64, bool) { return f.products[id].stock, true }
func (f *fakeProducts) ProductCategory(id uint64) (providers.ProductCategory, bool) {
	return f.products[id].category, true
}
func (f *fakeProducts) DeductStock(id uint64, qty uint64) error {
	f.products[id].stock -= qty
	return nil
}
func (f *fakeProducts) RestoreStock(id uint64, qty uint64) error {
	f.products[id].stock += qty
	return nil
}
func (f *fakeProducts) AddSoldCount(id uint64, qty uint64) error {
	f.products[id].sold += qty
	return nil
}

type fakeShops struct {
	owners map[uint64][20]byte
	sales  map[uint64]*big.Int
	orders map[uint64]uint64
}

func newFakeShops() *fakeShops {
	return &fakeShops{owners: map[uint64][20]byte{}, sales: map[uint64]*big.Int{}, orders: map[uint64]uint64{}}
}
func (f *fakeShops) ShopExists(id uint64) bool           { return true }
func (f *fakeShops) IsShopActive(id uint64) bool         { return true }
func (f *fakeShops) ShopOwner(id uint64) ([20]byte, bool) { return f.owners[id], true }
func (f *fakeShops) ShopAccount(id uint64) [20]byte       { return [20]byte{} }
func (f *fakeShops) UpdateShopStats(shopID uint64, salesAmount *big.Int, orders uint64) error {
	if f.sales[shopID] == nil {
		f.sales[shopID] = big.NewInt(0)
	}
	f.sales[shopID].Add(f.sales[shopID], salesAmount)
	f.orders[shopID] += orders
	return nil
}
func (f *fakeShops) UpdateShopRating(shopID uint64, rating uint8) error { return nil }

type fakeTokens struct {
	rewarded map[uint64]*big.Int
}

func newFakeTokens() *fakeTokens { return &fakeTokens{rewarded: map[uint64]*big.Int{}} }

func (f *fakeTokens) RewardOnPurchase(shopID uint64, buyer [20]byte, amount *big.Int) (*big.Int, error) {
	if f.rewarded[shopID] == nil {
		f.rewarded[shopID] = big.NewInt(0)
	}
	f.rewarded[shopID].Add(f.rewarded[shopID], amount)
	return big.NewInt(0), nil
}
func (f *fakeTokens) RedeemForDiscount(shopID uint64, buyer [20]byte, tokens *big.Int) (*big.Int, error) {
	return new(big.Int).Set(tokens), nil
}

type fakeCommission struct {
	calls int
}

func (f *fakeCommission) OnOrderCompleted(shopID uint64, orderID string, buyer [20]byte, amount *big.Int) error {
	f.calls++
	return nil
}

type testRig struct {
	engine   *Engine
	currency *fakeCurrency
	products *fakeProducts
	shops    *fakeShops
	tokens   *fakeTokens
	commish  *fakeCommission
	store    *MemStore
	platform [20]byte
}

func newTestRig() *testRig {
	currency := newFakeCurrency()
	products := newFakeProducts()
	shops := newFakeShops()
	tokens := newFakeTokens()
	commish := &fakeCommission{}
	store := NewMemStore()
	escrow := NewEscrowLedger(currency)
	platform := [20]byte{0xFF}

	cfg := Config{
		PlatformFeeRateBps: 500, PlatformAccount: platform,
		ShipTimeoutBlocks: 100, ConfirmTimeoutBlocks: 50, ServiceConfirmTimeout: 50,
	}
	eng := NewEngine(store, escrow, products, shops, tokens, commish, cfg)
	return &testRig{engine: eng, currency: currency, products: products, shops: shops, tokens: tokens, commish: commish, store: store, platform: platform}
}

func (r *testRig) addProduct(id, shopID uint64, seller [20]byte, price *big.Int, stock uint64, category providers.ProductCategory) {
	r.shops.owners[shopID] = seller
	r.products.products[id] = &fakeProduct{shopID: shopID, price: price, stock: stock, onSale: true, category: category, exists: true}
}

func TestPlaceOrderPhysicalLocksFundsAndDeductsStock(t *testing.T) {
	rig := newTestRig()
	seller := [20]byte{1}
	buyer := [20]byte{2}
	rig.currency.bal(buyer).Add(rig.currency.bal(buyer), big.NewInt(10_000))
	rig.addProduct(1, 1, seller, big.NewInt(100), 5, providers.ProductCategoryPhysical)

	o, err := rig.engine.PlaceOrder(buyer, 1, 2, "cid", nil, 10)
	require.NoError(t, err)
	require.Equal(t, StatusPaid, o.Status)
	require.Equal(t, int64(200), o.TotalAmount.Int64())
	require.EqualValues(t, 3, rig.products.products[1].stock)

	bal, err := rig.engine.escrow.Balance(o.ID)
	require.NoError(t, err)
	require.Equal(t, int64(200), bal.Int64())
}

func TestPlaceOrderDigitalCompletesSynchronously(t *testing.T) {
	rig := newTestRig()
	seller := [20]byte{1}
	buyer := [20]byte{2}
	rig.currency.bal(buyer).Add(rig.currency.bal(buyer), big.NewInt(10_000))
	rig.addProduct(1, 1, seller, big.NewInt(1000), 5, providers.ProductCategoryDigital)

	o, err := rig.engine.PlaceOrder(buyer, 1, 1, "", nil, 10)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, o.Status)
	require.Equal(t, 1, rig.commish.calls)

	sellerAmount := int64(1000 - 50) // 5% platform fee
	require.Equal(t, sellerAmount, rig.currency.bal(seller).Int64())
	require.Equal(t, int64(50), rig.currency.bal(rig.platform).Int64())
}

func TestPlaceOrderRejectsSellerBuyingOwnProduct(t *testing.T) {
	rig := newTestRig()
	seller := [20]byte{1}
	rig.addProduct(1, 1, seller, big.NewInt(100), 5, providers.ProductCategoryPhysical)
	_, err := rig.engine.PlaceOrder(seller, 1, 1, "", nil, 10)
	require.ErrorIs(t, err, ErrSellerIsBuyer)
}

func TestPlaceOrderRejectsInsufficientStock(t *testing.T) {
	rig := newTestRig()
	seller := [20]byte{1}
	buyer := [20]byte{2}
	rig.addProduct(1, 1, seller, big.NewInt(100), 1, providers.ProductCategoryPhysical)
	_, err := rig.engine.PlaceOrder(buyer, 1, 5, "", nil, 10)
	require.ErrorIs(t, err, ErrInsufficientStock)
}

func TestShipAndConfirmReceiptCompletesOrder(t *testing.T) {
	rig := newTestRig()
	seller := [20]byte{1}
	buyer := [20]byte{2}
	rig.currency.bal(buyer).Add(rig.currency.bal(buyer), big.NewInt(10_000))
	rig.addProduct(1, 1, seller, big.NewInt(1000), 5, providers.ProductCategoryPhysical)

	o, err := rig.engine.PlaceOrder(buyer, 1, 1, "cid", nil, 10)
	require.NoError(t, err)

	require.NoError(t, rig.engine.ShipOrder(seller, o.ID, "track-1", 20))
	got, _, _ := rig.store.GetOrder(o.ID)
	require.Equal(t, StatusShipped, got.Status)

	require.NoError(t, rig.engine.ConfirmReceipt(buyer, o.ID, 30))
	got, _, _ = rig.store.GetOrder(o.ID)
	require.Equal(t, StatusCompleted, got.Status)
	require.Equal(t, int64(950), rig.currency.bal(seller).Int64())
}

func TestRequestAndApproveRefundRestoresStock(t *testing.T) {
	rig := newTestRig()
	seller := [20]byte{1}
	buyer := [20]byte{2}
	rig.currency.bal(buyer).Add(rig.currency.bal(buyer), big.NewInt(10_000))
	rig.addProduct(1, 1, seller, big.NewInt(1000), 5, providers.ProductCategoryPhysical)

	o, err := rig.engine.PlaceOrder(buyer, 1, 1, "cid", nil, 10)
	require.NoError(t, err)

	require.NoError(t, rig.engine.RequestRefund(buyer, o.ID))
	require.NoError(t, rig.engine.ApproveRefund(seller, o.ID))

	got, _, _ := rig.store.GetOrder(o.ID)
	require.Equal(t, StatusRefunded, got.Status)
	require.EqualValues(t, 5, rig.products.products[1].stock)
	require.Equal(t, int64(10_000), rig.currency.bal(buyer).Int64())
}

func TestServiceFlowCompletesOnBuyerConfirmation(t *testing.T) {
	rig := newTestRig()
	seller := [20]byte{1}
	buyer := [20]byte{2}
	rig.currency.bal(buyer).Add(rig.currency.bal(buyer), big.NewInt(10_000))
	rig.addProduct(1, 1, seller, big.NewInt(1000), 5, providers.ProductCategoryService)

	o, err := rig.engine.PlaceOrder(buyer, 1, 1, "", nil, 10)
	require.NoError(t, err)
	require.Equal(t, StatusPaid, o.Status)

	require.NoError(t, rig.engine.StartService(seller, o.ID, 11))
	require.NoError(t, rig.engine.CompleteService(seller, o.ID, 12))
	require.NoError(t, rig.engine.ConfirmService(buyer, o.ID, 13))

	got, _, _ := rig.store.GetOrder(o.ID)
	require.Equal(t, StatusCompleted, got.Status)
}

func TestOnIdleRefundsUnshippedPaidOrderPastDeadline(t *testing.T) {
	rig := newTestRig()
	seller := [20]byte{1}
	buyer := [20]byte{2}
	rig.currency.bal(buyer).Add(rig.currency.bal(buyer), big.NewInt(10_000))
	rig.addProduct(1, 1, seller, big.NewInt(1000), 5, providers.ProductCategoryPhysical)

	o, err := rig.engine.PlaceOrder(buyer, 1, 1, "cid", nil, 10)
	require.NoError(t, err)

	require.NoError(t, rig.engine.OnIdle(10+rig.engine.cfg.ShipTimeoutBlocks, 100))

	got, _, _ := rig.store.GetOrder(o.ID)
	require.Equal(t, StatusRefunded, got.Status)
	require.EqualValues(t, 5, rig.products.products[1].stock)
}

func TestOnIdleSkipsOrdersAlreadyManuallyProgressed(t *testing.T) {
	rig := newTestRig()
	seller := [20]byte{1}
	buyer := [20]byte{2}
	rig.currency.bal(buyer).Add(rig.currency.bal(buyer), big.NewInt(10_000))
	rig.addProduct(1, 1, seller, big.NewInt(1000), 5, providers.ProductCategoryPhysical)

	o, err := rig.engine.PlaceOrder(buyer, 1, 1, "cid", nil, 10)
	require.NoError(t, err)
	require.NoError(t, rig.engine.ShipOrder(seller, o.ID, "track", 15))
	require.NoError(t, rig.engine.ConfirmReceipt(buyer, o.ID, 16))

	require.NoError(t, rig.engine.OnIdle(10+rig.engine.cfg.ShipTimeoutBlocks, 100))

	got, _, _ := rig.store.GetOrder(o.ID)
	require.Equal(t, StatusCompleted, got.Status)
}
