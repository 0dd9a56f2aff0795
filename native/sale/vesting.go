package sale

import (
	"errors"
	"math/big"
)

// ErrCliffNotReached is returned by CalculateUnlockable when now is still
// before start+CliffDuration for a Cliff/Linear/Custom schedule.
var ErrCliffNotReached = errors.New("sale: vesting cliff has not been reached")

const bps = 10_000

// CalculateInitialUnlock returns the amount immediately claimable on
// claim_tokens: amount*InitialUnlockBps/10000, or the full amount for
// VestingNone.
func CalculateInitialUnlock(cfg VestingConfig, amount *big.Int) *big.Int {
	if cfg.Type == VestingNone {
		return new(big.Int).Set(amount)
	}
	out := new(big.Int).Mul(amount, big.NewInt(int64(cfg.InitialUnlockBps)))
	return out.Quo(out, big.NewInt(bps))
}

// CalculateUnlockable returns the amount a subsequent unlock_tokens call
// should transfer now: the total vested-to-date minus alreadyUnlocked.
//
//   - VestingNone: amount - alreadyUnlocked (claim_tokens already took it
//     all, so this is normally zero).
//   - now < start+CliffDuration: ErrCliffNotReached.
//   - now >= start+TotalDuration: amount - alreadyUnlocked (fully vested).
//   - otherwise: initial share plus a linear share of the remaining
//     (10000-InitialUnlockBps)/10000 of amount over
//     (TotalDuration-CliffDuration), minus alreadyUnlocked.
func CalculateUnlockable(cfg VestingConfig, amount, alreadyUnlocked *big.Int, start, now uint64) (*big.Int, error) {
	if cfg.Type == VestingNone {
		return new(big.Int).Sub(amount, alreadyUnlocked), nil
	}
	if now < start+cfg.CliffDuration {
		return nil, ErrCliffNotReached
	}
	if now >= start+cfg.TotalDuration {
		return new(big.Int).Sub(amount, alreadyUnlocked), nil
	}

	initialShare := new(big.Int).Mul(amount, big.NewInt(int64(cfg.InitialUnlockBps)))
	initialShare.Quo(initialShare, big.NewInt(bps))

	remainingBps := int64(bps) - int64(cfg.InitialUnlockBps)
	elapsed := now - (start + cfg.CliffDuration)
	duration := cfg.TotalDuration - cfg.CliffDuration

	linearShare := new(big.Int).Mul(amount, big.NewInt(remainingBps))
	linearShare.Mul(linearShare, new(big.Int).SetUint64(elapsed))
	linearShare.Quo(linearShare, big.NewInt(bps))
	linearShare.Quo(linearShare, new(big.Int).SetUint64(duration))

	vested := new(big.Int).Add(initialShare, linearShare)
	return vested.Sub(vested, alreadyUnlocked), nil
}

// DutchPrice returns the linearly-descending Dutch-auction price at now,
// clamped to [end, start] at the endpoints. Requires start > end and
// endBlock > startBlock, checked at round-configuration time.
func DutchPrice(startPrice, endPrice *big.Int, startBlock, endBlock, now uint64) *big.Int {
	if now <= startBlock {
		return new(big.Int).Set(startPrice)
	}
	if now >= endBlock {
		return new(big.Int).Set(endPrice)
	}
	drop := new(big.Int).Sub(startPrice, endPrice)
	drop.Mul(drop, new(big.Int).SetUint64(now-startBlock))
	drop.Quo(drop, new(big.Int).SetUint64(endBlock-startBlock))
	return new(big.Int).Sub(startPrice, drop)
}
