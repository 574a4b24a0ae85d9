package domain

// SetCurrentStep is unconditional; reachability is checked with CanProceedToStep by callers.
func (s Session) SetCurrentStep(step Step) Session {
	s.CurrentStep = step
	return s
}

func (s Session) UpdateShipping(a Address) Session {
	s.Data.Shipping = &a
	return s
}

func (s Session) UpdateBilling(b BillingAddress) Session {
	s.Data.Billing = &b
	return s
}

func (s Session) UpdatePayment(p PaymentMethod) Session {
	s.Data.Payment = &p
	return s
}

func (s Session) UpdateShippingMethod(m ShippingMethod) Session {
	s.Data.ShippingMethod = m
	return s
}

func (s Session) UpdateNotes(notes string) Session {
	s.Data.Notes = notes
	return s
}

func (s Session) SetLoading(loading bool) Session {
	s.IsLoading = loading
	return s
}

// Reset starts a new attempt with empty answers.
func (s Session) Reset(attemptID string) Session {
	return NewSession(attemptID)
}

func allSet(fields ...string) bool {
	for _, f := range fields {
		if f == "" {
			return false
		}
	}
	return true
}

// IsStepValid checks completeness of the answers a step collects.
// Billing does not require email and phone.
func (s Session) IsStepValid(step Step) bool {
	d := s.Data
	switch step {
	case StepShipping:
		a := d.Shipping
		return a != nil && allSet(a.FirstName, a.LastName, a.Email, a.Phone, a.Street, a.City, a.PostalCode, a.Country)
	case StepBilling:
		b := d.Billing
		if b == nil {
			return false
		}
		if b.SameAsShipping {
			return true
		}
		return allSet(b.FirstName, b.LastName, b.Street, b.City, b.PostalCode, b.Country)
	case StepPayment:
		return d.Payment != nil && d.Payment.Type != "" && d.ShippingMethod != ""
	default:
		return false
	}
}

// CanProceedToStep holds when every step before step is valid. It does not look at step itself.
func (s Session) CanProceedToStep(step Step) bool {
	for i := StepShipping; i < step; i++ {
		if !s.IsStepValid(i) {
			return false
		}
	}
	return true
}

// ResolvedBilling resolves the address to bill, falling back to shipping when
// SameAsShipping is set.
func (s Session) ResolvedBilling() (Address, bool) {
	b := s.Data.Billing
	if b == nil {
		return Address{}, false
	}
	if b.SameAsShipping {
		if s.Data.Shipping == nil {
			return Address{}, false
		}
		return *s.Data.Shipping, true
	}
	return b.Address, true
}

// ReadyToPlace holds when confirmation is reachable and the payment method carries
// everything its type needs, card details included.
func (s Session) ReadyToPlace() bool {
	return s.CanProceedToStep(StepConfirmation) && s.Data.Payment != nil && s.Data.Payment.Complete()
}
