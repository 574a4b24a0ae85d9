package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/fjod/go_cart/internal/cart/domain"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// CartAPI is what the cart routes need from the cart service.
type CartAPI interface {
	GetCart(ctx context.Context, sessionID string) (domain.Snapshot, error)
	AddItem(ctx context.Context, sessionID string, item domain.NewItem) (domain.Snapshot, error)
	RemoveItem(ctx context.Context, sessionID, itemID string) (domain.Snapshot, error)
	UpdateQuantity(ctx context.Context, sessionID, itemID string, quantity int) (domain.Snapshot, error)
	UpdateCustomization(ctx context.Context, sessionID, itemID string, cz domain.Customization) (domain.Snapshot, error)
	ClearCart(ctx context.Context, sessionID string) (domain.Snapshot, error)
	ToggleCart(ctx context.Context, sessionID string) (domain.Snapshot, error)
	SetVisibility(ctx context.Context, sessionID string, open bool) (domain.Snapshot, error)
	Subscribe(sessionID string) (<-chan domain.Snapshot, func())
}

type CartHandler struct {
	cart    CartAPI
	timeout time.Duration
}

func NewCartHandler(cart CartAPI, timeout time.Duration) *CartHandler {
	return &CartHandler{
		cart:    cart,
		timeout: timeout,
	}
}

// CategoryDTO accepts either a bare label or a {id, name, slug} object.
type CategoryDTO struct {
	domain.Category
}

func (c *CategoryDTO) UnmarshalJSON(b []byte) error {
	var label string
	if err := json.Unmarshal(b, &label); err == nil {
		c.Category = domain.Category{Name: label}
		return nil
	}
	return json.Unmarshal(b, &c.Category)
}

type MaterialDTO struct {
	Name  string          `json:"name" validate:"required"`
	Price decimal.Decimal `json:"price" validate:"gte=0"`
	Image string          `json:"image"`
}

type SizeDTO struct {
	Name       string          `json:"name" validate:"required"`
	Dimensions string          `json:"dimensions"`
	Price      decimal.Decimal `json:"price" validate:"gte=0"`
}

type AddItemRequestDTO struct {
	ProductID        string           `json:"productId" validate:"required"`
	Name             string           `json:"name" validate:"required"`
	Slug             string           `json:"slug"`
	Price            decimal.Decimal  `json:"price" validate:"gte=0"`
	OriginalPrice    *decimal.Decimal `json:"originalPrice" validate:"omitempty,gte=0"`
	Image            string           `json:"image"`
	Category         CategoryDTO      `json:"category"`
	Quantity         int              `json:"quantity" validate:"min=1,max=99"`
	SelectedMaterial *MaterialDTO     `json:"selectedMaterial"`
	SelectedSize     *SizeDTO         `json:"selectedSize"`
	CustomText       string           `json:"customText" validate:"max=200"`
}

// UpdateQuantityRequestDTO requires an explicit quantity; zero or less removes the item.
type UpdateQuantityRequestDTO struct {
	Quantity *int `json:"quantity" validate:"required,max=99"`
}

type CustomizationRequestDTO struct {
	SelectedMaterial *MaterialDTO `json:"selectedMaterial"`
	SelectedSize     *SizeDTO     `json:"selectedSize"`
	CustomText       *string      `json:"customText" validate:"omitempty,max=200"`
}

// VisibilityRequestDTO takes either an action or an explicit open flag; action wins.
type VisibilityRequestDTO struct {
	Action string `json:"action" validate:"omitempty,oneof=toggle open close"`
	Open   *bool  `json:"open" validate:"required_without=Action"`
}

func (m *MaterialDTO) toDomain() *domain.Material {
	if m == nil {
		return nil
	}
	return &domain.Material{Name: m.Name, Price: m.Price, Image: m.Image}
}

func (s *SizeDTO) toDomain() *domain.Size {
	if s == nil {
		return nil
	}
	return &domain.Size{Name: s.Name, Dimensions: s.Dimensions, Price: s.Price}
}

// GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	snap, err := h.cart.GetCart(ctx, getSessionID(r.Context()))
	if err != nil {
		handleServiceError(ctx, w, err)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

// POST /api/v1/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req AddItemRequestDTO
	if !decode(w, r, &req) {
		return
	}

	snap, err := h.cart.AddItem(ctx, getSessionID(r.Context()), domain.NewItem{
		ProductID:        req.ProductID,
		Name:             req.Name,
		Slug:             req.Slug,
		Price:            req.Price,
		OriginalPrice:    req.OriginalPrice,
		Image:            req.Image,
		Category:         req.Category.Category,
		Quantity:         req.Quantity,
		SelectedMaterial: req.SelectedMaterial.toDomain(),
		SelectedSize:     req.SelectedSize.toDomain(),
		CustomText:       req.CustomText,
	})
	if err != nil {
		handleServiceError(ctx, w, err)
		return
	}
	respondJSON(w, http.StatusCreated, snap)
}

// PATCH /api/v1/cart/items/{item_id}
// A quantity of zero removes the item.
func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req UpdateQuantityRequestDTO
	if !decode(w, r, &req) {
		return
	}

	snap, err := h.cart.UpdateQuantity(ctx, getSessionID(r.Context()), chi.URLParam(r, "item_id"), *req.Quantity)
	if err != nil {
		handleServiceError(ctx, w, err)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

// PATCH /api/v1/cart/items/{item_id}/customization
func (h *CartHandler) UpdateCustomization(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req CustomizationRequestDTO
	if !decode(w, r, &req) {
		return
	}

	snap, err := h.cart.UpdateCustomization(ctx, getSessionID(r.Context()), chi.URLParam(r, "item_id"), domain.Customization{
		SelectedMaterial: req.SelectedMaterial.toDomain(),
		SelectedSize:     req.SelectedSize.toDomain(),
		CustomText:       req.CustomText,
	})
	if err != nil {
		handleServiceError(ctx, w, err)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

// DELETE /api/v1/cart/items/{item_id}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	snap, err := h.cart.RemoveItem(ctx, getSessionID(r.Context()), chi.URLParam(r, "item_id"))
	if err != nil {
		handleServiceError(ctx, w, err)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

// DELETE /api/v1/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	snap, err := h.cart.ClearCart(ctx, getSessionID(r.Context()))
	if err != nil {
		handleServiceError(ctx, w, err)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

// POST /api/v1/cart/visibility
func (h *CartHandler) SetVisibility(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req VisibilityRequestDTO
	if !decode(w, r, &req) {
		return
	}

	sessionID := getSessionID(r.Context())
	var snap domain.Snapshot
	var err error
	switch req.Action {
	case "toggle":
		snap, err = h.cart.ToggleCart(ctx, sessionID)
	case "open", "close":
		snap, err = h.cart.SetVisibility(ctx, sessionID, req.Action == "open")
	default:
		snap, err = h.cart.SetVisibility(ctx, sessionID, *req.Open)
	}
	if err != nil {
		handleServiceError(ctx, w, err)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

// GET /api/v1/cart/events
func (h *CartHandler) Events(w http.ResponseWriter, r *http.Request) {
	sessionID := getSessionID(r.Context())

	// subscribe before reading so no mutation falls between the two
	updates, unsubscribe := h.cart.Subscribe(sessionID)
	defer unsubscribe()

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	initial, err := h.cart.GetCart(ctx, sessionID)
	cancel()
	if err != nil {
		handleServiceError(r.Context(), w, err)
		return
	}

	streamEvents(w, r, "cart", initial, updates)
}
