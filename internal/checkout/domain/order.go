package domain

import (
	"time"

	cart "github.com/fjod/go_cart/internal/cart/domain"
	"github.com/shopspring/decimal"
)

// TaxRate is the VAT shown on the confirmation summary. It is never folded into
// the cart's own FinalTotal.
var TaxRate = decimal.RequireFromString("0.25")

const Currency = "EUR"

// Summary is the order overview displayed at confirmation.
type Summary struct {
	Items    []cart.LineItem `json:"items"`
	Subtotal decimal.Decimal `json:"subtotal"`
	Shipping decimal.Decimal `json:"shipping"`
	Savings  decimal.Decimal `json:"savings"`
	Tax      decimal.Decimal `json:"tax"`
	Total    decimal.Decimal `json:"total"`
	Currency string          `json:"currency"`
}

// NewSummary derives the confirmation figures from the cart: tax is charged on the
// subtotal and added on top of the cart final total.
func NewSummary(c cart.Cart) Summary {
	subtotal := c.TotalPrice()
	tax := subtotal.Mul(TaxRate)
	items := make([]cart.LineItem, len(c.Items))
	copy(items, c.Items)
	return Summary{
		Items:    items,
		Subtotal: subtotal,
		Shipping: c.ShippingCost(),
		Savings:  c.TotalSavings(),
		Tax:      tax,
		Total:    c.FinalTotal().Add(tax),
		Currency: Currency,
	}
}

// Order is what gets handed to the order submission collaborator.
type Order struct {
	ID             string    `json:"orderId"`
	IdempotencyKey string    `json:"idempotencyKey"`
	SessionID      string    `json:"sessionId"`
	Shipping       Address   `json:"shipping"`
	Billing        Address   `json:"billing"`
	Payment        Payment   `json:"payment"`
	ShippingMethod string    `json:"shippingMethod"`
	Notes          string    `json:"notes,omitempty"`
	Summary        Summary   `json:"summary"`
	PlacedAt       time.Time `json:"placedAt"`
}

// Payment is the order's view of the payment method; card secrets never leave the session.
type Payment struct {
	Type      PaymentType `json:"type"`
	CardLast4 string      `json:"cardLast4,omitempty"`
}

func maskPayment(p PaymentMethod) Payment {
	out := Payment{Type: p.Type}
	if p.Type == PaymentCard && len(p.CardNumber) >= 4 {
		out.CardLast4 = p.CardNumber[len(p.CardNumber)-4:]
	}
	return out
}

// NewOrder assembles an order from a session that can proceed to confirmation.
// The session's AttemptID becomes the idempotency key.
func NewOrder(id, sessionID string, s Session, c cart.Cart, now time.Time) Order {
	var shipping Address
	if s.Data.Shipping != nil {
		shipping = *s.Data.Shipping
	}
	billing, _ := s.ResolvedBilling()
	var payment Payment
	if s.Data.Payment != nil {
		payment = maskPayment(*s.Data.Payment)
	}

	return Order{
		ID:             id,
		IdempotencyKey: s.AttemptID,
		SessionID:      sessionID,
		Shipping:       shipping,
		Billing:        billing,
		Payment:        payment,
		ShippingMethod: string(s.Data.ShippingMethod),
		Notes:          s.Data.Notes,
		Summary:        NewSummary(c),
		PlacedAt:       now,
	}
}

// PlacedOrder is returned to the caller once submission succeeded.
type PlacedOrder struct {
	OrderID        string  `json:"orderId"`
	IdempotencyKey string  `json:"idempotencyKey"`
	Summary        Summary `json:"summary"`
}
