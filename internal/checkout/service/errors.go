package service

import "errors"

var (
	ErrEmptyCart            = errors.New("cart is empty, nothing to checkout")
	ErrIncompleteCheckout   = errors.New("checkout steps are incomplete")
	ErrSubmissionInProgress = errors.New("order submission already in progress")
)
