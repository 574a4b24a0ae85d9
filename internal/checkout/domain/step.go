package domain

import "fmt"

// Step is a position in the linear checkout wizard.
type Step int

const (
	StepShipping Step = iota + 1
	StepBilling
	StepPayment
	StepConfirmation
)

func (s Step) Valid() bool {
	return s >= StepShipping && s <= StepConfirmation
}

// String representation (for logging)
func (s Step) String() string {
	switch s {
	case StepShipping:
		return "SHIPPING"
	case StepBilling:
		return "BILLING"
	case StepPayment:
		return "PAYMENT"
	case StepConfirmation:
		return "CONFIRMATION"
	default:
		return fmt.Sprintf("STEP(%d)", int(s))
	}
}
