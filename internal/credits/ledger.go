package credits

import (
	"time"

	"github.com/angelmondragon/credits-backend/pkg/db/models"
	"github.com/angelmondragon/credits-backend/pkg/enums"
)

const (
	ReasonTrialLimit   = "Trial limit reached."
	ReasonInsufficient = "Insufficient credits."
)

// Decision is the outcome of an admission check. A denial is not an error.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

func allow() Decision {
	return Decision{Allowed: true}
}

func deny(reason string) Decision {
	return Decision{Reason: reason}
}

// Limit describes a user's admission ceiling for the current month.
type Limit struct {
	Unlimited bool `json:"unlimited"`
	Base      int  `json:"base"`
	TopUp     int  `json:"top_up"`
	Total     int  `json:"total"`
}

// Ledger applies plan rules to a subscription snapshot. It performs no I/O.
type Ledger struct {
	econ Economics
}

// NewLedger returns a ledger bound to the given plan economics.
func NewLedger(econ Economics) Ledger {
	return Ledger{econ: econ}
}

// Economics returns the plan economics the ledger was built with.
func (l Ledger) Economics() Economics {
	return l.econ
}

// NewSubscription builds the record provisioned for a user seen for the first time.
func (l Ledger) NewSubscription(userID string, now time.Time) *models.Subscription {
	window := MonthWindow(now)
	return &models.Subscription{
		UserID:             userID,
		Plan:               enums.PlanTrial,
		TrialRemaining:     l.econ.TrialCredits,
		CurrentPeriodStart: window.Start,
		CurrentPeriodEnd:   window.End,
		IsActive:           true,
	}
}

// Evaluate decides whether amount credits may be consumed given used credits
// already logged in the current month. sub is not modified.
func (l Ledger) Evaluate(sub *models.Subscription, used, amount int) (Decision, error) {
	if amount <= 0 {
		return Decision{}, invalidAmount(amount)
	}
	switch sub.Plan {
	case enums.PlanFree:
		return allow(), nil
	case enums.PlanTrial:
		if sub.TrialRemaining >= amount {
			return allow(), nil
		}
		return deny(ReasonTrialLimit), nil
	case enums.PlanBasic, enums.PlanPremium:
		if used+amount <= l.econ.MonthlyBase(sub.Plan)+sub.TopUpCredits {
			return allow(), nil
		}
		return deny(ReasonInsufficient), nil
	default:
		return Decision{}, unknownPlan(sub.Plan)
	}
}

// ApplyCommit mutates sub to account for amount credits consumed on top of
// used. It never drives a balance negative.
func (l Ledger) ApplyCommit(sub *models.Subscription, used, amount int) error {
	if amount <= 0 {
		return invalidAmount(amount)
	}
	switch sub.Plan {
	case enums.PlanFree:
		return nil
	case enums.PlanTrial:
		if sub.TrialRemaining < amount {
			return underflow(sub.Plan, amount, sub.TrialRemaining)
		}
		sub.TrialRemaining -= amount
		return nil
	case enums.PlanBasic, enums.PlanPremium:
		overflow := l.Overflow(sub.Plan, used, amount)
		if overflow > sub.TopUpCredits {
			return underflow(sub.Plan, overflow, sub.TopUpCredits)
		}
		sub.TopUpCredits -= overflow
		l.RefreshIncluded(sub, used+amount)
		return nil
	default:
		return unknownPlan(sub.Plan)
	}
}

// Overflow returns the part of amount that falls beyond the monthly base.
func (l Ledger) Overflow(plan enums.Plan, used, amount int) int {
	base := l.econ.MonthlyBase(plan)
	over := used + amount - base
	if over <= 0 {
		return 0
	}
	if over > amount {
		return amount
	}
	return over
}

// RefreshIncluded stores the remaining monthly allotment on paid plans.
func (l Ledger) RefreshIncluded(sub *models.Subscription, used int) {
	if !sub.Plan.IsPaid() {
		return
	}
	remaining := l.econ.MonthlyBase(sub.Plan) - used
	if remaining < 0 {
		remaining = 0
	}
	sub.IncludedCredits = remaining
}

// MaybeAutoTopUp adds the configured increment when auto top-up is enabled
// and the combined balance has fallen to the threshold. It reports whether
// the subscription changed.
func (l Ledger) MaybeAutoTopUp(sub *models.Subscription) bool {
	if !sub.AutoTopUp || l.econ.AutoTopUpAmount <= 0 {
		return false
	}
	if sub.IncludedCredits+sub.TopUpCredits > l.econ.AutoTopUpThreshold {
		return false
	}
	sub.TopUpCredits += l.econ.AutoTopUpAmount
	return true
}

// MonthlyLimit reports the admission ceiling for sub.
func (l Ledger) MonthlyLimit(sub *models.Subscription) (Limit, error) {
	switch sub.Plan {
	case enums.PlanFree:
		return Limit{Unlimited: true}, nil
	case enums.PlanTrial:
		return Limit{Base: sub.TrialRemaining, TopUp: 0, Total: sub.TrialRemaining}, nil
	case enums.PlanBasic, enums.PlanPremium:
		base := l.econ.MonthlyBase(sub.Plan)
		return Limit{Base: base, TopUp: sub.TopUpCredits, Total: base + sub.TopUpCredits}, nil
	default:
		return Limit{}, unknownPlan(sub.Plan)
	}
}

// Draw admits and applies amount against the same snapshot in one step. A
// request Evaluate would deny fails with ErrInsufficientCredits and leaves sub
// untouched.
func (l Ledger) Draw(sub *models.Subscription, used, amount int) error {
	decision, err := l.Evaluate(sub, used, amount)
	if err != nil {
		return err
	}
	if !decision.Allowed {
		return insufficient(amount, l.remaining(sub, used))
	}
	return l.ApplyCommit(sub, used, amount)
}

func (l Ledger) remaining(sub *models.Subscription, used int) int {
	switch sub.Plan {
	case enums.PlanTrial:
		return sub.TrialRemaining
	case enums.PlanBasic, enums.PlanPremium:
		left := l.econ.MonthlyBase(sub.Plan) + sub.TopUpCredits - used
		if left < 0 {
			return 0
		}
		return left
	default:
		return 0
	}
}

// ConsumeCredit draws amount from top-up credits first and then from the
// stored included allotment. It only suits buckets that hold their allotment
// directly; no plan here does, so services account through Draw or
// Evaluate plus ApplyCommit instead.
//
// Deprecated: paid plans derive their monthly usage from the usage log.
func ConsumeCredit(sub *models.Subscription, amount int) error {
	if amount <= 0 {
		return invalidAmount(amount)
	}
	switch {
	case sub.TopUpCredits >= amount:
		sub.TopUpCredits -= amount
	case sub.IncludedCredits >= amount:
		sub.IncludedCredits -= amount
	default:
		return insufficient(amount, sub.TopUpCredits+sub.IncludedCredits)
	}
	return nil
}
