package enums

import (
	"fmt"
	"strings"
)

// Plan identifies the entitlement tier a user is billed under.
type Plan string

const (
	PlanFree    Plan = "free"
	PlanTrial   Plan = "trial"
	PlanBasic   Plan = "basic"
	PlanPremium Plan = "premium"
)

var validPlans = []Plan{
	PlanFree,
	PlanTrial,
	PlanBasic,
	PlanPremium,
}

// String implements fmt.Stringer.
func (p Plan) String() string {
	return string(p)
}

// IsValid reports whether the value is known.
func (p Plan) IsValid() bool {
	for _, candidate := range validPlans {
		if candidate == p {
			return true
		}
	}
	return false
}

// IsPaid reports whether the plan carries a monthly allotment.
func (p Plan) IsPaid() bool {
	return p == PlanBasic || p == PlanPremium
}

// ParsePlan converts raw input into a Plan. Input is case-insensitive.
func ParsePlan(value string) (Plan, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validPlans {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid plan %q", value)
}
