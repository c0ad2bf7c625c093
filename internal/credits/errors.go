package credits

import (
	"errors"
	"fmt"

	"github.com/angelmondragon/credits-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/credits-backend/pkg/errors"
)

var (
	// ErrInvalidAmount is returned for zero or negative credit amounts.
	ErrInvalidAmount = errors.New("credit amount must be positive")
	// ErrInsufficientCredits is returned when no bucket can cover a direct drawdown.
	ErrInsufficientCredits = errors.New("insufficient credits")
	// ErrCreditUnderflow is returned when a commit would drive a balance below zero.
	ErrCreditUnderflow = errors.New("credit balance underflow")
	// ErrUnknownPlan is returned for subscriptions carrying an unrecognised plan.
	ErrUnknownPlan = errors.New("unknown plan")
)

func invalidAmount(amount int) error {
	return pkgerrors.Wrap(pkgerrors.CodeValidation, ErrInvalidAmount, fmt.Sprintf("invalid credit amount %d", amount)).
		WithDetails(map[string]any{"amount": amount})
}

func underflow(plan enums.Plan, amount, available int) error {
	return pkgerrors.Wrap(pkgerrors.CodeStateConflict, ErrCreditUnderflow, "commit exceeds available balance").
		WithDetails(map[string]any{"plan": plan, "amount": amount, "available": available})
}

func insufficient(amount, available int) error {
	return pkgerrors.Wrap(pkgerrors.CodeQuota, ErrInsufficientCredits, "insufficient credits").
		WithDetails(map[string]any{"amount": amount, "available": available})
}

func unknownPlan(plan enums.Plan) error {
	return pkgerrors.Wrap(pkgerrors.CodeInternal, ErrUnknownPlan, fmt.Sprintf("unknown plan %q", plan))
}
