package credits

import (
	"github.com/angelmondragon/credits-backend/pkg/config"
	"github.com/angelmondragon/credits-backend/pkg/enums"
)

// Economics carries the plan allotments and auto top-up rules applied by the ledger.
type Economics struct {
	BasicMonthly       int
	PremiumMonthly     int
	TrialCredits       int
	AutoTopUpThreshold int
	AutoTopUpAmount    int
}

// DefaultEconomics mirrors the production price sheet.
func DefaultEconomics() Economics {
	return Economics{
		BasicMonthly:       100,
		PremiumMonthly:     200,
		TrialCredits:       5,
		AutoTopUpThreshold: 10,
		AutoTopUpAmount:    100,
	}
}

// EconomicsFromConfig converts loaded configuration into ledger economics.
func EconomicsFromConfig(cfg config.CreditsConfig) Economics {
	return Economics{
		BasicMonthly:       cfg.BasicMonthlyCredits,
		PremiumMonthly:     cfg.PremiumMonthlyCredits,
		TrialCredits:       cfg.TrialCredits,
		AutoTopUpThreshold: cfg.AutoTopUpThreshold,
		AutoTopUpAmount:    cfg.AutoTopUpAmount,
	}
}

// MonthlyBase returns the monthly allotment for paid plans and 0 otherwise.
func (e Economics) MonthlyBase(plan enums.Plan) int {
	switch plan {
	case enums.PlanBasic:
		return e.BasicMonthly
	case enums.PlanPremium:
		return e.PremiumMonthly
	default:
		return 0
	}
}
