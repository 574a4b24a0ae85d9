package domain

// StorageName is the fixed key of the durable checkout partition.
const StorageName = "checkout-storage"

type Address struct {
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Company    string `json:"company,omitempty"`
	Street     string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

type BillingAddress struct {
	Address
	SameAsShipping bool `json:"sameAsShipping"`
}

type PaymentType string

const (
	PaymentCard   PaymentType = "card"
	PaymentPayPal PaymentType = "paypal"
	PaymentBank   PaymentType = "bank"
	PaymentCash   PaymentType = "cash"
)

func (t PaymentType) Valid() bool {
	switch t {
	case PaymentCard, PaymentPayPal, PaymentBank, PaymentCash:
		return true
	}
	return false
}

type PaymentMethod struct {
	Type           PaymentType `json:"type"`
	CardNumber     string      `json:"cardNumber,omitempty"`
	ExpiryDate     string      `json:"expiryDate,omitempty"`
	CVV            string      `json:"cvv,omitempty"`
	CardholderName string      `json:"cardholderName,omitempty"`
}

// Complete reports whether the method carries everything its type needs:
// card payments require all four card fields.
func (p PaymentMethod) Complete() bool {
	if !p.Type.Valid() {
		return false
	}
	if p.Type != PaymentCard {
		return true
	}
	return p.CardNumber != "" && p.ExpiryDate != "" && p.CVV != "" && p.CardholderName != ""
}

type ShippingMethod string

const (
	ShippingStandard ShippingMethod = "standard"
	ShippingExpress  ShippingMethod = "express"
)

func (m ShippingMethod) Valid() bool {
	return m == ShippingStandard || m == ShippingExpress
}

// Data is the partial set of answers collected by the wizard.
type Data struct {
	Shipping       *Address        `json:"shipping,omitempty"`
	Billing        *BillingAddress `json:"billing,omitempty"`
	Payment        *PaymentMethod  `json:"payment,omitempty"`
	ShippingMethod ShippingMethod  `json:"shippingMethod,omitempty"`
	Notes          string          `json:"notes,omitempty"`
}

// Session is one checkout attempt. CurrentStep and IsLoading are ephemeral;
// AttemptID doubles as the idempotency key of the order placed from it.
type Session struct {
	CurrentStep Step   `json:"currentStep"`
	Data        Data   `json:"checkoutData"`
	IsLoading   bool   `json:"isLoading"`
	AttemptID   string `json:"attemptId"`
}

// Persisted is the slice of session state written to the checkout partition.
type Persisted struct {
	CheckoutData Data   `json:"checkoutData"`
	AttemptID    string `json:"attemptId"`
}

func NewSession(attemptID string) Session {
	return Session{CurrentStep: StepShipping, AttemptID: attemptID}
}

func (s Session) Persisted() Persisted {
	return Persisted{CheckoutData: s.Data, AttemptID: s.AttemptID}
}

func FromPersisted(p Persisted) Session {
	return Session{CurrentStep: StepShipping, Data: p.CheckoutData, AttemptID: p.AttemptID}
}
