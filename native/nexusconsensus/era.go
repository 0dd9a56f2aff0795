package nexusconsensus

import (
	"math/big"
	"sort"
)

const bpsDenominator = 10_000

// NodeWeight is one eligible node's era reward weighting input.
type NodeWeight struct {
	NodeID uint64
	Weight *big.Rat
}

// uptimeBps computes confirmed/(confirmed+missed) in basis points. Nodes
// with no confirmation history yet pass eligibility with full uptime.
func uptimeBps(u UptimeStats) uint32 {
	total := u.Confirmed + u.Missed
	if total == 0 {
		return bpsDenominator
	}
	return uint32(u.Confirmed * bpsDenominator / total)
}

// leaderBonusBps computes 10000 + 5000*successful/total_leads, clamped to
// [10000, 15000]. Nodes with no leadership history get the floor bonus.
func leaderBonusBps(l LeaderStats) uint32 {
	total := l.Successful + l.Timeouts
	if total == 0 {
		return 10_000
	}
	bonus := 10_000 + (5_000*l.Successful)/total
	if bonus > 15_000 {
		bonus = 15_000
	}
	if bonus < 10_000 {
		bonus = 10_000
	}
	return uint32(bonus)
}

// eligibleWeight computes reputation * uptime_bps * leader_bonus_bps / 10^8
// for one node, or nil if the node fails the uptime floor.
func eligibleWeight(n *Node, minUptimeBps uint32) *big.Rat {
	ub := uptimeBps(n.Uptime)
	if ub < minUptimeBps {
		return nil
	}
	lb := leaderBonusBps(n.Leader)
	weight := new(big.Int).Mul(big.NewInt(int64(n.Reputation)), big.NewInt(int64(ub)))
	weight.Mul(weight, big.NewInt(int64(lb)))
	return new(big.Rat).SetFrac(weight, big.NewInt(100_000_000))
}

// EraSettlement is the full result of settling one era.
type EraSettlement struct {
	Info    EraRewardInfo
	Rewards map[uint64]*big.Int // node id -> reward credited this era
}

// settleEraRewards distributes pool across eligible active nodes weighted by
// reputation*uptime*leader_bonus, each capped at MaxRewardSharePct of pool.
// Remainder from capping is not redistributed, mirroring an era's pool being
// a hard ceiling rather than a guaranteed full payout.
func settleEraRewards(cfg Config, nodes []*Node, pool *big.Int) map[uint64]*big.Int {
	rewards := make(map[uint64]*big.Int, len(nodes))
	if pool == nil || pool.Sign() <= 0 {
		return rewards
	}

	weights := make([]NodeWeight, 0, len(nodes))
	total := new(big.Rat)
	for _, n := range nodes {
		if n.Status != NodeStatusActive {
			continue
		}
		w := eligibleWeight(n, cfg.MinUptimeForRewardBps)
		if w == nil || w.Sign() <= 0 {
			continue
		}
		weights = append(weights, NodeWeight{NodeID: n.ID, Weight: w})
		total.Add(total, w)
	}
	if len(weights) == 0 || total.Sign() <= 0 {
		return rewards
	}

	sort.Slice(weights, func(i, j int) bool { return weights[i].NodeID < weights[j].NodeID })

	maxShare := new(big.Rat).SetFrac(big.NewInt(int64(cfg.MaxRewardSharePct)), big.NewInt(100))
	shareCap := ratMulBig(maxShare, pool)

	for _, w := range weights {
		share := new(big.Rat).Quo(w.Weight, total)
		reward := ratMulBig(share, pool)
		if reward.Cmp(shareCap) > 0 {
			reward = shareCap
		}
		if reward.Sign() > 0 {
			rewards[w.NodeID] = reward
		}
	}
	return rewards
}

func ratMulBig(r *big.Rat, v *big.Int) *big.Int {
	if r == nil || v == nil {
		return big.NewInt(0)
	}
	product := new(big.Rat).Mul(r, new(big.Rat).SetInt(v))
	quotient := new(big.Int).Quo(product.Num(), product.Denom())
	if quotient.Sign() < 0 {
		return big.NewInt(0)
	}
	return quotient
}
