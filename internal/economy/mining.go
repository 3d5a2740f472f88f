// Package economy holds the game rules as pure functions over domain.User.
// Every function returns a new value and leaves its input untouched.
package economy

import (
	"fmt"
	"time"

	"tree_ton/internal/domain"
)

const (
	// PointsPerCoin is the fixed conversion ratio.
	PointsPerCoin = 100

	// EnergyPerTap is spent by each mining tap.
	EnergyPerTap = 1

	// EnergyRegenInterval is the default regeneration cadence.
	EnergyRegenInterval = 30 * time.Second
)

// MiningReward is the number of points one tap yields.
func MiningReward(u domain.User) int64 {
	return u.MiningRate * int64(u.Level)
}

// ApplyTap spends one energy for MiningReward points.
// With no energy left it returns the user unchanged and ErrInsufficientResource.
func ApplyTap(u domain.User, now time.Time) (domain.User, error) {
	if u.Energy <= 0 {
		return u, domain.ErrInsufficientResource
	}

	reward := MiningReward(u)
	next := u.Clone()
	next.Points += reward
	next.Energy -= EnergyPerTap
	next.TotalMined += reward
	next.LastMining = &now
	return next, nil
}

// ConvertPoints exchanges points for coins at PointsPerCoin. The remainder of a
// non-multiple amount is spent without yielding a coin.
func ConvertPoints(u domain.User, points int64) (domain.User, error) {
	if points <= 0 {
		return u, fmt.Errorf("convert %d points: %w", points, domain.ErrInvalidAmount)
	}
	if points > u.Points {
		return u, domain.ErrInsufficientResource
	}

	next := u.Clone()
	next.Coins += points / PointsPerCoin
	next.Points -= points
	return next, nil
}

// ConvertibleAmount is the largest multiple of PointsPerCoin not above points.
func ConvertibleAmount(points int64) int64 {
	if points <= 0 {
		return 0
	}
	return points / PointsPerCoin * PointsPerCoin
}

// RegenerateEnergy adds one energy, capped at MaxEnergy. The bool is false when
// nothing changed.
func RegenerateEnergy(u domain.User) (domain.User, bool) {
	if u.Energy >= u.MaxEnergy {
		return u, false
	}
	next := u.Clone()
	next.Energy++
	if next.Energy > next.MaxEnergy {
		next.Energy = next.MaxEnergy
	}
	return next, true
}
