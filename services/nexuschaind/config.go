package nexuschaind

import (
	"encoding/json"
	"fmt"
	"os"

	"nexuschain/native/nexusconsensus"
)

// Config is the daemon's full runtime configuration, loaded from a JSON
// file at startup. Amounts are base-10 decimal strings and addresses are
// 0x-prefixed hex, the same wire shapes dispatch.go uses for tx params.
type Config struct {
	ListenAddr string `json:"listen_addr"`

	CosUsdtPrice  uint64 `json:"cos_usdt_price"`
	DustToUsdRate uint64 `json:"dust_to_usd_rate"`

	EntityInitialFundUsdt     string `json:"entity_initial_fund_usdt"`
	EntityMinInitialFundCos   string `json:"entity_min_initial_fund_cos"`
	EntityMaxInitialFundCos   string `json:"entity_max_initial_fund_cos"`
	EntityWarningThreshold    string `json:"entity_warning_threshold"`
	EntityMinOperatingBalance string `json:"entity_min_operating_balance"`
	EntityAutoActivate        bool   `json:"entity_auto_activate"`

	PlatformFeeRateBps    uint32 `json:"platform_fee_rate_bps"`
	PlatformAccount       string `json:"platform_account"`
	ShipTimeoutBlocks     uint64 `json:"ship_timeout_blocks"`
	ConfirmTimeoutBlocks  uint64 `json:"confirm_timeout_blocks"`
	ServiceConfirmTimeout uint64 `json:"service_confirm_timeout"`

	SaleMinPurchaseFloor string `json:"sale_min_purchase_floor"`

	GovMinProposalThresholdBps uint32 `json:"gov_min_proposal_threshold_bps"`
	GovVotingPeriodBlocks      uint64 `json:"gov_voting_period_blocks"`
	GovQuorumThresholdPct      uint32 `json:"gov_quorum_threshold_pct"`
	GovPassThresholdPct        uint32 `json:"gov_pass_threshold_pct"`
	GovExecutionDelayBlocks    uint64 `json:"gov_execution_delay_blocks"`

	Treasury string `json:"treasury"`

	ConsensusMaxNodes              uint64 `json:"consensus_max_nodes"`
	ConsensusMinStake              string `json:"consensus_min_stake"`
	ConsensusExitCooldownBlocks    uint64 `json:"consensus_exit_cooldown_blocks"`
	ConsensusSuspendThreshold      uint32 `json:"consensus_suspend_threshold"`
	ConsensusMinUptimeForRewardBps uint32 `json:"consensus_min_uptime_for_reward_bps"`
	ConsensusMaxRewardSharePct     uint32 `json:"consensus_max_reward_share_pct"`
	ConsensusEraLengthBlocks       uint64 `json:"consensus_era_length_blocks"`
	ConsensusInflationPerEra       string `json:"consensus_inflation_per_era"`
	ConsensusSlashPercentageBps    uint32 `json:"consensus_slash_percentage_bps"`
	ConsensusReporterRewardPercentageBps uint32 `json:"consensus_reporter_reward_percentage_bps"`
}

// LoadConfig reads a Config from a JSON file and applies defaults. It does no
// further validation; address and amount strings are checked when
// ToChainConfig parses them.
func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("nexuschaind: read config: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("nexuschaind: parse config: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":8090"
	}
	if c.CosUsdtPrice == 0 {
		c.CosUsdtPrice = 1
	}
	if c.DustToUsdRate == 0 {
		c.DustToUsdRate = 1
	}
	if c.ConsensusMaxNodes == 0 {
		c.ConsensusMaxNodes = 100
	}
	if c.ConsensusExitCooldownBlocks == 0 {
		c.ConsensusExitCooldownBlocks = 14_400
	}
	if c.ConsensusEraLengthBlocks == 0 {
		c.ConsensusEraLengthBlocks = 14_400
	}
	if c.ConsensusSuspendThreshold == 0 {
		c.ConsensusSuspendThreshold = 2000
	}
	if c.ConsensusMinUptimeForRewardBps == 0 {
		c.ConsensusMinUptimeForRewardBps = 9000
	}
	if c.ConsensusMaxRewardSharePct == 0 {
		c.ConsensusMaxRewardSharePct = 20
	}
	if c.ConsensusSlashPercentageBps == 0 {
		c.ConsensusSlashPercentageBps = 1000
	}
	if c.ConsensusReporterRewardPercentageBps == 0 {
		c.ConsensusReporterRewardPercentageBps = 1000
	}
}

// ToChainConfig decodes the wire-format Config into the ChainConfig NewChain
// expects, parsing decimal amounts and hex addresses.
func (c Config) ToChainConfig() (ChainConfig, error) {
	var out ChainConfig
	var err error

	if out.EntityInitialFundUsdt, err = parseBig(c.EntityInitialFundUsdt); err != nil {
		return out, err
	}
	if out.EntityMinInitialFundCos, err = parseBig(c.EntityMinInitialFundCos); err != nil {
		return out, err
	}
	if out.EntityMaxInitialFundCos, err = parseBig(c.EntityMaxInitialFundCos); err != nil {
		return out, err
	}
	if out.EntityWarningThreshold, err = parseBig(c.EntityWarningThreshold); err != nil {
		return out, err
	}
	if out.EntityMinOperatingBalance, err = parseBig(c.EntityMinOperatingBalance); err != nil {
		return out, err
	}
	out.EntityAutoActivate = c.EntityAutoActivate

	out.PlatformFeeRateBps = c.PlatformFeeRateBps
	if c.PlatformAccount != "" {
		if out.PlatformAccount, err = decodeAddr(c.PlatformAccount); err != nil {
			return out, err
		}
	}
	out.ShipTimeoutBlocks = c.ShipTimeoutBlocks
	out.ConfirmTimeoutBlocks = c.ConfirmTimeoutBlocks
	out.ServiceConfirmTimeout = c.ServiceConfirmTimeout

	if out.SaleMinPurchaseFloor, err = parseBig(c.SaleMinPurchaseFloor); err != nil {
		return out, err
	}

	out.GovMinProposalThresholdBps = c.GovMinProposalThresholdBps
	out.GovVotingPeriodBlocks = c.GovVotingPeriodBlocks
	out.GovQuorumThresholdPct = c.GovQuorumThresholdPct
	out.GovPassThresholdPct = c.GovPassThresholdPct
	out.GovExecutionDelayBlocks = c.GovExecutionDelayBlocks

	if c.Treasury != "" {
		if out.Treasury, err = decodeAddr(c.Treasury); err != nil {
			return out, err
		}
	}

	minStake, err := parseBig(c.ConsensusMinStake)
	if err != nil {
		return out, err
	}
	if minStake.Sign() == 0 {
		minStake = nexusconsensus.DefaultConfig().MinStake
	}
	inflation, err := parseBig(c.ConsensusInflationPerEra)
	if err != nil {
		return out, err
	}
	out.Consensus = nexusconsensus.Config{
		MaxNodes:                    c.ConsensusMaxNodes,
		MinStake:                    minStake,
		ExitCooldownBlocks:          c.ConsensusExitCooldownBlocks,
		SuspendThreshold:            c.ConsensusSuspendThreshold,
		MinUptimeForRewardBps:       c.ConsensusMinUptimeForRewardBps,
		MaxRewardSharePct:           c.ConsensusMaxRewardSharePct,
		EraLengthBlocks:             c.ConsensusEraLengthBlocks,
		InflationPerEra:             inflation,
		SlashPercentageBps:          c.ConsensusSlashPercentageBps,
		ReporterRewardPercentageBps: c.ConsensusReporterRewardPercentageBps,
		TierFees:                    nexusconsensus.DefaultConfig().TierFees,
	}

	return out, nil
}
