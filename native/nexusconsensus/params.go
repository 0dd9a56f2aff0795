package nexusconsensus

import (
	"fmt"
	"math/big"
)

// Config controls runtime limits and economics for the consensus pallet.
type Config struct {
	MaxNodes                uint64
	MinStake                *big.Int
	ExitCooldownBlocks      uint64
	SuspendThreshold        uint32 // reputation floor before auto-suspend
	MinUptimeForRewardBps   uint32 // [0, 10000]
	MaxRewardSharePct       uint32 // cap on any single node's era share, percent of pool
	EraLengthBlocks         uint64
	InflationPerEra         *big.Int
	SlashPercentageBps      uint32 // of equivocator's stake
	ReporterRewardPercentageBps uint32 // of the slashed amount, paid to the reporter
	TierFees                map[Tier]*big.Int
}

// DefaultConfig returns conservative defaults suitable for a test network.
func DefaultConfig() Config {
	return Config{
		MaxNodes:              100,
		MinStake:              big.NewInt(1_000_000),
		ExitCooldownBlocks:    14_400, // ~1 day at 6s blocks
		SuspendThreshold:      2000,
		MinUptimeForRewardBps: 9000,
		MaxRewardSharePct:     20,
		EraLengthBlocks:       14_400,
		InflationPerEra:       big.NewInt(0),
		SlashPercentageBps:    1000,
		ReporterRewardPercentageBps: 1000,
		TierFees: map[Tier]*big.Int{
			TierFree:       big.NewInt(0),
			TierBasic:      big.NewInt(1_000),
			TierPro:        big.NewInt(10_000),
			TierEnterprise: big.NewInt(100_000),
		},
	}
}

// Validate ensures the configuration values fall within safe operating ranges.
func (c Config) Validate() error {
	if c.MaxNodes == 0 {
		return fmt.Errorf("nexusconsensus: max nodes must be positive")
	}
	if c.MinStake == nil || c.MinStake.Sign() <= 0 {
		return fmt.Errorf("nexusconsensus: min stake must be positive")
	}
	if c.MinUptimeForRewardBps > 10_000 {
		return fmt.Errorf("nexusconsensus: min uptime bps must be <= 10000")
	}
	if c.SlashPercentageBps > 10_000 || c.ReporterRewardPercentageBps > 10_000 {
		return fmt.Errorf("nexusconsensus: slash/reporter bps must each be <= 10000")
	}
	if c.EraLengthBlocks == 0 {
		return fmt.Errorf("nexusconsensus: era length must be positive")
	}
	return nil
}

// TierFee returns the configured fee for a tier, or zero if unconfigured.
func (c Config) TierFee(t Tier) *big.Int {
	if fee, ok := c.TierFees[t]; ok {
		return new(big.Int).Set(fee)
	}
	return big.NewInt(0)
}
