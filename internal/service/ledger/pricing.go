package ledger

import (
	"math"

	"concord/internal/config"
	"concord/internal/domain/models"
)

// PricePlan returns the total token cost of an ordered step mixture. Each
// step contributes its task-type cost from the table; there is no volume
// discount or rounding, the sum is exact integer arithmetic.
func (s *Service) PricePlan(taskTypes []models.TaskType) int {
	total := 0
	for _, t := range taskTypes {
		total += s.costs.StepCost(string(t))
	}
	return total
}

// StepCost returns the configured cost of a single step.
func (s *Service) StepCost(taskType models.TaskType) int {
	return s.costs.StepCost(string(taskType))
}

// ComposeTokens converts a video duration into the token price of one
// composition. The admin-entered rate is the real cost per metered unit; the
// sell price marks it up to a 75% cost ratio and converts at the fixed
// tokens-per-USD rate, rounded up with a floor of one token. A zero rate
// means composition is free.
func (s *Service) ComposeTokens(durationSec int) int {
	rate := s.costs.Compose
	if rate.CostPerUnit <= 0 {
		return 0
	}
	if durationSec < 1 {
		durationSec = 1
	}

	units := composeUnits(durationSec, rate.Unit)
	realUSD := rate.CostPerUnit * units
	sellUSD := realUSD / config.CostRatio
	tokens := int(math.Ceil(sellUSD * config.TokensPerUSD))
	if tokens < 1 {
		tokens = 1
	}
	return tokens
}

func composeUnits(durationSec int, unit string) float64 {
	d := float64(durationSec)
	switch unit {
	case config.UnitPerSecond:
		return d
	case config.UnitPerMinute:
		return d / 60
	case config.UnitPer10Seconds:
		return d / 10
	case config.UnitPerVideo:
		return 1
	default:
		// Unknown units bill conservatively as a flat per-video rate.
		return 1
	}
}
