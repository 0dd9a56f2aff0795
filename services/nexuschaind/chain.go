// Package nexuschaind runs the on-chain commerce and consensus pallets
// behind a single HTTP transaction dispatch surface: entity, shop, order,
// token, sale, shopgov, and nexusconsensus. It plays the role core/ and
// rpc/ play in a full chain node, generalized down to the operations this
// deployment needs to exercise rather than a full state-transition engine.
package nexuschaind

import (
	"math/big"

	"nexuschain/native/entity"
	"nexuschain/native/nexusconsensus"
	"nexuschain/native/order"
	"nexuschain/native/sale"
	"nexuschain/native/shop"
	"nexuschain/native/shopgov"
	"nexuschain/native/token"
	"nexuschain/nexus/providers"
)

// Chain wires the seven on-chain pallets to one shared ledger and to each
// other via the providers.* collaborator interfaces, exactly as each
// pallet's own NewEngine already expects.
type Chain struct {
	Ledger  *ledger
	Catalog *catalog
	Oracle  *staticOracle

	Entity   *entity.Engine
	Shop     *shop.Engine
	Order    *order.Engine
	Token    *token.Engine
	Sale     *sale.Engine
	Shopgov  *shopgov.Engine
	Nexusconsensus *nexusconsensus.Engine
}

// NewChain assembles a running Chain from cfg. cfg.Treasury receives the
// nexusconsensus era treasury share and order platform fees go to
// cfg.PlatformAccount; every engine shares one ledger.
func NewChain(cfg ChainConfig) *Chain {
	led := newLedger()
	cat := newCatalog()
	oracle := newStaticOracle(cfg.CosUsdtPrice, cfg.DustToUsdRate)

	tokenEngine := token.NewEngine(token.NewMemStore())

	entityEngine := entity.NewEngine(entity.NewMemStore(), led, oracle, entity.Config{
		InitialFundUsdt:      cfg.EntityInitialFundUsdt,
		MinInitialFundCos:    cfg.EntityMinInitialFundCos,
		MaxInitialFundCos:    cfg.EntityMaxInitialFundCos,
		Thresholds:           entity.Thresholds{WarningThreshold: cfg.EntityWarningThreshold, MinOperatingBalance: cfg.EntityMinOperatingBalance},
		AutoActivateOnCreate: cfg.EntityAutoActivate,
	})

	shopEngine := shop.NewEngine(shop.NewMemStore(), entityEngine)

	orderEscrow := order.NewEscrowLedger(led)
	orderEngine := order.NewEngine(order.NewMemStore(), orderEscrow, cat, shopEngine, tokenEngine, cat, order.Config{
		PlatformFeeRateBps:    cfg.PlatformFeeRateBps,
		PlatformAccount:       cfg.PlatformAccount,
		ShipTimeoutBlocks:     cfg.ShipTimeoutBlocks,
		ConfirmTimeoutBlocks:  cfg.ConfirmTimeoutBlocks,
		ServiceConfirmTimeout: cfg.ServiceConfirmTimeout,
	})

	saleEngine := sale.NewEngine(sale.NewMemStore(), led, entityEngine, tokenEngine, oracle, sale.Config{
		MinPurchaseFloor: cfg.SaleMinPurchaseFloor,
	})

	shopgovEngine := shopgov.NewEngine(shopgov.NewMemStore(), shopEngine, tokenEngine, tokenEngine, entityEngine, shopgov.Config{
		MinProposalThresholdBps: cfg.GovMinProposalThresholdBps,
		VotingPeriodBlocks:      cfg.GovVotingPeriodBlocks,
		QuorumThresholdPct:      cfg.GovQuorumThresholdPct,
		PassThresholdPct:        cfg.GovPassThresholdPct,
		ExecutionDelayBlocks:    cfg.GovExecutionDelayBlocks,
	})

	consensusEngine := nexusconsensus.NewEngine(nexusconsensus.NewMemStore(), led, oracle, cfg.Treasury, cfg.Consensus)

	return &Chain{
		Ledger:         led,
		Catalog:        cat,
		Oracle:         oracle,
		Entity:         entityEngine,
		Shop:           shopEngine,
		Order:          orderEngine,
		Token:          tokenEngine,
		Sale:           saleEngine,
		Shopgov:        shopgovEngine,
		Nexusconsensus: consensusEngine,
	}
}

// ChainConfig captures the genesis-time parameters for every pallet this
// entrypoint wires. Zero-valued big.Int pointers are treated as zero by
// each pallet's own defaulting, matching how the unit tests construct them.
type ChainConfig struct {
	CosUsdtPrice  uint64
	DustToUsdRate uint64

	EntityInitialFundUsdt   *big.Int
	EntityMinInitialFundCos *big.Int
	EntityMaxInitialFundCos *big.Int
	EntityWarningThreshold  *big.Int
	EntityMinOperatingBalance *big.Int
	EntityAutoActivate      bool

	PlatformFeeRateBps    uint32
	PlatformAccount       [20]byte
	ShipTimeoutBlocks     uint64
	ConfirmTimeoutBlocks  uint64
	ServiceConfirmTimeout uint64

	SaleMinPurchaseFloor *big.Int

	GovMinProposalThresholdBps uint32
	GovVotingPeriodBlocks      uint64
	GovQuorumThresholdPct      uint32
	GovPassThresholdPct        uint32
	GovExecutionDelayBlocks    uint64

	Treasury  [20]byte
	Consensus nexusconsensus.Config
}

var _ providers.Escrow = (*order.EscrowLedger)(nil)
