package domain

import "github.com/shopspring/decimal"

// StorageName is the fixed key of the durable cart partition.
const StorageName = "cart-storage"

var (
	FreeShippingThreshold = decimal.NewFromInt(100)
	StandardShippingCost  = decimal.NewFromInt(15)
)

// Category is resolved once at the boundary; a bare category label ends up in Name.
type Category struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
	Slug string `json:"slug,omitempty"`
}

type Material struct {
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
	Image string          `json:"image,omitempty"`
}

type Size struct {
	Name       string          `json:"name"`
	Dimensions string          `json:"dimensions"`
	Price      decimal.Decimal `json:"price"`
}

// LineItem is one configured unit of a product in the cart.
// ItemTotal and Savings are derived and recomputed on every mutation.
type LineItem struct {
	ID               string           `json:"id"`
	ProductID        string           `json:"productId"`
	Name             string           `json:"name"`
	Slug             string           `json:"slug"`
	Price            decimal.Decimal  `json:"price"`
	OriginalPrice    *decimal.Decimal `json:"originalPrice,omitempty"`
	Image            string           `json:"image"`
	Category         Category         `json:"category"`
	Quantity         int              `json:"quantity"`
	SelectedMaterial *Material        `json:"selectedMaterial,omitempty"`
	SelectedSize     *Size            `json:"selectedSize,omitempty"`
	CustomText       string           `json:"customText,omitempty"`

	ItemTotal decimal.Decimal  `json:"itemTotal"`
	Savings   *decimal.Decimal `json:"savings,omitempty"`
}

// NewItem is the add-to-cart candidate: a line item without identity and derived fields.
type NewItem struct {
	ProductID        string
	Name             string
	Slug             string
	Price            decimal.Decimal
	OriginalPrice    *decimal.Decimal
	Image            string
	Category         Category
	Quantity         int
	SelectedMaterial *Material
	SelectedSize     *Size
	CustomText       string
}

// Customization is a partial update; nil fields are left untouched.
type Customization struct {
	SelectedMaterial *Material
	SelectedSize     *Size
	CustomText       *string
}

// Cart holds the shopper's line items. IsOpen is presentation state and is never persisted.
type Cart struct {
	Items  []LineItem `json:"items"`
	IsOpen bool       `json:"-"`
}

// Persisted is the slice of cart state written to the cart partition.
type Persisted struct {
	Items []LineItem `json:"items"`
}

func (c Cart) Persisted() Persisted {
	items := c.Items
	if items == nil {
		items = []LineItem{}
	}
	return Persisted{Items: items}
}

func FromPersisted(p Persisted) Cart {
	return Cart{Items: p.Items}
}
