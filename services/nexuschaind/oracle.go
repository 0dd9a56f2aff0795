package nexuschaind

import "sync"

// staticOracle serves the offchain-fed reads (price, KYC level, bot
// ownership) that entity, sale, and nexusconsensus need but that a real
// deployment would source from an oracle pallet or gateway attestation.
// Prices are seeded from config. No dispatch handler sets KYC levels; the
// nexusconsensus.subscribe handler records its caller as the owner of the
// bot hash it subscribes.
type staticOracle struct {
	mu           sync.Mutex
	cosUsdtPrice uint64
	dustToUsd    uint64
	kycLevels    map[[20]byte]uint8
	bots         map[[32]byte][20]byte // bot hash -> owner
}

func newStaticOracle(cosUsdtPrice, dustToUsd uint64) *staticOracle {
	return &staticOracle{
		cosUsdtPrice: cosUsdtPrice,
		dustToUsd:    dustToUsd,
		kycLevels:    make(map[[20]byte]uint8),
		bots:         make(map[[32]byte][20]byte),
	}
}

func (o *staticOracle) GetCosUsdtPrice() (uint64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cosUsdtPrice, nil
}

func (o *staticOracle) GetDustToUsdRate() (uint64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.dustToUsd, nil
}

func (o *staticOracle) KycLevel(account [20]byte) (uint8, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.kycLevels[account], nil
}

func (o *staticOracle) setKycLevel(account [20]byte, level uint8) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.kycLevels[account] = level
}

func (o *staticOracle) registerBot(hash [32]byte, owner [20]byte) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.bots[hash] = owner
}

func (o *staticOracle) BotExists(botHash [32]byte) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.bots[botHash]
	return ok
}

func (o *staticOracle) IsBotOwner(botHash [32]byte, who [20]byte) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	owner, ok := o.bots[botHash]
	return ok && owner == who
}
