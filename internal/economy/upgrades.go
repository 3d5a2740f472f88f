package economy

import (
	"tree_ton/internal/domain"

	"github.com/shopspring/decimal"
)

const (
	UpgradeMiningRate     = "mining-rate"
	UpgradeEnergyCapacity = "energy-capacity"
	UpgradeAutoMiner      = "auto-miner"

	// AutoMinerLevel is the level that unlocks the auto miner.
	AutoMinerLevel = 5

	EnergyCapacityBonus = 50
)

var (
	miningRateCostPerLevel     = decimal.RequireFromString("0.1")
	energyCapacityCostPerLevel = decimal.RequireFromString("0.05")
	autoMinerCost              = decimal.RequireFromString("0.5")
)

// Upgrades returns the upgrade catalog priced for u.
func Upgrades(u domain.User) []domain.Upgrade {
	level := decimal.NewFromInt(int64(u.Level))

	autoLevel := AutoMinerLevel
	if u.Level >= AutoMinerLevel {
		autoLevel = u.Level + 1
	}

	return []domain.Upgrade{
		{
			ID:          UpgradeMiningRate,
			Name:        "Mining Speed",
			Description: "Increase mining rate by 1",
			Cost:        miningRateCostPerLevel.Mul(level),
			Level:       u.Level + 1,
			Unlocked:    true,
		},
		{
			ID:          UpgradeEnergyCapacity,
			Name:        "Energy Capacity",
			Description: "Increase max energy by 50",
			Cost:        energyCapacityCostPerLevel.Mul(level),
			Level:       u.Level + 1,
			Unlocked:    true,
		},
		{
			ID:          UpgradeAutoMiner,
			Name:        "Auto Miner",
			Description: "Unlock the auto miner",
			Cost:        autoMinerCost,
			Level:       autoLevel,
			Unlocked:    u.Level >= AutoMinerLevel,
		},
	}
}

// FindUpgrade prices upgrade id for u.
func FindUpgrade(u domain.User, id string) (domain.Upgrade, bool) {
	for _, up := range Upgrades(u) {
		if up.ID == id {
			return up, true
		}
	}
	return domain.Upgrade{}, false
}

// ApplyUpgrade buys upgrade id with the user's TON balance.
func ApplyUpgrade(u domain.User, id string) (domain.User, error) {
	up, ok := FindUpgrade(u, id)
	if !ok {
		return u, domain.ErrUnknownUpgrade
	}
	if !up.Unlocked {
		return u, domain.ErrUpgradeLocked
	}
	if !u.IsWalletConnected {
		return u, domain.ErrWalletNotConnected
	}
	if u.TonBalance.LessThan(up.Cost) {
		return u, domain.ErrInsufficientResource
	}

	next := u.Clone()
	next.TonBalance = next.TonBalance.Sub(up.Cost)
	next.Level = max(u.Level+1, up.Level)

	switch id {
	case UpgradeMiningRate:
		next.MiningRate++
	case UpgradeEnergyCapacity:
		next.MaxEnergy += EnergyCapacityBonus
		next.Energy += EnergyCapacityBonus
	}
	return next, nil
}
