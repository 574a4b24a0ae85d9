package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/fjod/go_cart/internal/checkout/domain"
	"github.com/fjod/go_cart/internal/checkout/service"
	"github.com/go-chi/chi/v5"
)

// CheckoutAPI is what the checkout routes need from the checkout service.
type CheckoutAPI interface {
	Session(ctx context.Context, sessionID string) (domain.Session, error)
	SetCurrentStep(ctx context.Context, sessionID string, step domain.Step) (domain.Session, error)
	UpdateShipping(ctx context.Context, sessionID string, a domain.Address) (domain.Session, error)
	UpdateBilling(ctx context.Context, sessionID string, b domain.BillingAddress) (domain.Session, error)
	UpdatePaymentStep(ctx context.Context, sessionID string, d service.PaymentDetails) (domain.Session, error)
	UpdateNotes(ctx context.Context, sessionID, notes string) (domain.Session, error)
	ResetCheckout(ctx context.Context, sessionID string) (domain.Session, error)
	Summary(ctx context.Context, sessionID string) (domain.Summary, error)
	PlaceOrder(ctx context.Context, sessionID string) (*domain.PlacedOrder, error)
	Subscribe(sessionID string) (<-chan domain.Session, func())
}

type CheckoutHandler struct {
	checkout CheckoutAPI
	timeout  time.Duration
}

func NewCheckoutHandler(checkout CheckoutAPI, timeout time.Duration) *CheckoutHandler {
	return &CheckoutHandler{
		checkout: checkout,
		timeout:  timeout,
	}
}

type StepRequestDTO struct {
	Step int `json:"step" validate:"min=1,max=4"`
}

type ShippingFormDTO struct {
	FirstName  string `json:"firstName" validate:"required,min=2"`
	LastName   string `json:"lastName" validate:"required,min=2"`
	Email      string `json:"email" validate:"required,email"`
	Phone      string `json:"phone" validate:"required,min=8"`
	Company    string `json:"company"`
	Address    string `json:"address" validate:"required,min=5"`
	City       string `json:"city" validate:"required,min=2"`
	PostalCode string `json:"postalCode" validate:"required,min=4"`
	Country    string `json:"country" validate:"required"`
}

// BillingAddressDTO is only validated when the billing address differs from shipping.
type BillingAddressDTO struct {
	FirstName  string `json:"firstName" validate:"required,min=2"`
	LastName   string `json:"lastName" validate:"required,min=2"`
	Email      string `json:"email" validate:"omitempty,email"`
	Phone      string `json:"phone" validate:"omitempty,min=8"`
	Company    string `json:"company"`
	Address    string `json:"address" validate:"required,min=5"`
	City       string `json:"city" validate:"required,min=2"`
	PostalCode string `json:"postalCode" validate:"required,min=4"`
	Country    string `json:"country" validate:"required"`
}

type BillingFormDTO struct {
	SameAsShipping    bool `json:"sameAsShipping"`
	BillingAddressDTO `validate:"-"`
}

type PaymentFormDTO struct {
	Type           string `json:"type" validate:"required,oneof=card paypal bank cash"`
	CardNumber     string `json:"cardNumber" validate:"required_if=Type card"`
	ExpiryDate     string `json:"expiryDate" validate:"required_if=Type card"`
	CVV            string `json:"cvv" validate:"required_if=Type card"`
	CardholderName string `json:"cardholderName" validate:"required_if=Type card"`
	ShippingMethod string `json:"shippingMethod" validate:"required,oneof=standard express"`
	Notes          string `json:"notes" validate:"max=500"`
}

type NotesRequestDTO struct {
	Notes string `json:"notes" validate:"max=500"`
}

type StepStatusDTO struct {
	Step       int    `json:"step"`
	Name       string `json:"name"`
	Valid      bool   `json:"valid"`
	CanProceed bool   `json:"canProceed"`
}

type CheckoutResponseDTO struct {
	CurrentStep  int             `json:"currentStep"`
	CheckoutData domain.Data     `json:"checkoutData"`
	IsLoading    bool            `json:"isLoading"`
	AttemptID    string          `json:"attemptId"`
	Steps        []StepStatusDTO `json:"steps"`
}

func stepStatus(s domain.Session, step domain.Step) StepStatusDTO {
	return StepStatusDTO{
		Step:       int(step),
		Name:       step.String(),
		Valid:      s.IsStepValid(step),
		CanProceed: s.CanProceedToStep(step),
	}
}

func toCheckoutResponse(s domain.Session) CheckoutResponseDTO {
	steps := make([]StepStatusDTO, 0, int(domain.StepConfirmation))
	for step := domain.StepShipping; step <= domain.StepConfirmation; step++ {
		steps = append(steps, stepStatus(s, step))
	}
	return CheckoutResponseDTO{
		CurrentStep:  int(s.CurrentStep),
		CheckoutData: s.Data,
		IsLoading:    s.IsLoading,
		AttemptID:    s.AttemptID,
		Steps:        steps,
	}
}

func (h *CheckoutHandler) respondSession(ctx context.Context, w http.ResponseWriter, s domain.Session, err error) {
	if err != nil {
		handleServiceError(ctx, w, err)
		return
	}
	respondJSON(w, http.StatusOK, toCheckoutResponse(s))
}

// GET /api/v1/checkout
func (h *CheckoutHandler) GetCheckout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	s, err := h.checkout.Session(ctx, getSessionID(r.Context()))
	h.respondSession(ctx, w, s, err)
}

// PUT /api/v1/checkout/step
// Moving forward past an incomplete step is refused; going back is always allowed.
func (h *CheckoutHandler) SetStep(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req StepRequestDTO
	if !decode(w, r, &req) {
		return
	}

	sessionID := getSessionID(r.Context())
	current, err := h.checkout.Session(ctx, sessionID)
	if err != nil {
		handleServiceError(ctx, w, err)
		return
	}
	step := domain.Step(req.Step)
	if step > current.CurrentStep && !current.CanProceedToStep(step) {
		respondError(w, http.StatusUnprocessableEntity, "step_locked", "previous steps are incomplete")
		return
	}

	s, err := h.checkout.SetCurrentStep(ctx, sessionID, step)
	h.respondSession(ctx, w, s, err)
}

// PUT /api/v1/checkout/shipping
func (h *CheckoutHandler) UpdateShipping(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req ShippingFormDTO
	if !decode(w, r, &req) {
		return
	}

	s, err := h.checkout.UpdateShipping(ctx, getSessionID(r.Context()), domain.Address{
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		Email:      req.Email,
		Phone:      req.Phone,
		Company:    req.Company,
		Street:     req.Address,
		City:       req.City,
		PostalCode: req.PostalCode,
		Country:    req.Country,
	})
	h.respondSession(ctx, w, s, err)
}

// PUT /api/v1/checkout/billing
func (h *CheckoutHandler) UpdateBilling(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req BillingFormDTO
	if !decode(w, r, &req) {
		return
	}

	billing := domain.BillingAddress{SameAsShipping: req.SameAsShipping}
	if !req.SameAsShipping {
		if err := validate.Struct(req.BillingAddressDTO); err != nil {
			respondValidationError(w, err)
			return
		}
		a := req.BillingAddressDTO
		billing.Address = domain.Address{
			FirstName:  a.FirstName,
			LastName:   a.LastName,
			Email:      a.Email,
			Phone:      a.Phone,
			Company:    a.Company,
			Street:     a.Address,
			City:       a.City,
			PostalCode: a.PostalCode,
			Country:    a.Country,
		}
	}

	s, err := h.checkout.UpdateBilling(ctx, getSessionID(r.Context()), billing)
	h.respondSession(ctx, w, s, err)
}

// PUT /api/v1/checkout/payment
func (h *CheckoutHandler) UpdatePayment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req PaymentFormDTO
	if !decode(w, r, &req) {
		return
	}

	payment := domain.PaymentMethod{Type: domain.PaymentType(req.Type)}
	if payment.Type == domain.PaymentCard {
		payment.CardNumber = req.CardNumber
		payment.ExpiryDate = req.ExpiryDate
		payment.CVV = req.CVV
		payment.CardholderName = req.CardholderName
	}

	s, err := h.checkout.UpdatePaymentStep(ctx, getSessionID(r.Context()), service.PaymentDetails{
		Payment:        payment,
		ShippingMethod: domain.ShippingMethod(req.ShippingMethod),
		Notes:          req.Notes,
	})
	h.respondSession(ctx, w, s, err)
}

// PUT /api/v1/checkout/notes
func (h *CheckoutHandler) UpdateNotes(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req NotesRequestDTO
	if !decode(w, r, &req) {
		return
	}

	s, err := h.checkout.UpdateNotes(ctx, getSessionID(r.Context()), req.Notes)
	h.respondSession(ctx, w, s, err)
}

// GET /api/v1/checkout/steps/{step}
func (h *CheckoutHandler) GetStep(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	n, err := strconv.Atoi(chi.URLParam(r, "step"))
	if err != nil || !domain.Step(n).Valid() {
		respondError(w, http.StatusBadRequest, "invalid_step", "step must be between 1 and 4")
		return
	}

	s, err := h.checkout.Session(ctx, getSessionID(r.Context()))
	if err != nil {
		handleServiceError(ctx, w, err)
		return
	}
	respondJSON(w, http.StatusOK, stepStatus(s, domain.Step(n)))
}

// GET /api/v1/checkout/summary
func (h *CheckoutHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sum, err := h.checkout.Summary(ctx, getSessionID(r.Context()))
	if err != nil {
		handleServiceError(ctx, w, err)
		return
	}
	respondJSON(w, http.StatusOK, sum)
}

// POST /api/v1/checkout/orders
func (h *CheckoutHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	placed, err := h.checkout.PlaceOrder(ctx, getSessionID(r.Context()))
	if err != nil {
		handleServiceError(ctx, w, err)
		return
	}
	respondJSON(w, http.StatusCreated, placed)
}

// DELETE /api/v1/checkout
func (h *CheckoutHandler) ResetCheckout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	s, err := h.checkout.ResetCheckout(ctx, getSessionID(r.Context()))
	h.respondSession(ctx, w, s, err)
}

// GET /api/v1/checkout/events
func (h *CheckoutHandler) Events(w http.ResponseWriter, r *http.Request) {
	sessionID := getSessionID(r.Context())

	updates, unsubscribe := h.checkout.Subscribe(sessionID)
	defer unsubscribe()

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	initial, err := h.checkout.Session(ctx, sessionID)
	cancel()
	if err != nil {
		handleServiceError(r.Context(), w, err)
		return
	}

	views := make(chan CheckoutResponseDTO, 1)
	go func() {
		defer close(views)
		for s := range updates {
			select {
			case views <- toCheckoutResponse(s):
			case <-r.Context().Done():
				return
			}
		}
	}()
	streamEvents(w, r, "checkout", toCheckoutResponse(initial), views)
}
