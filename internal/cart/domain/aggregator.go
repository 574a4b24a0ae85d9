package domain

import "github.com/shopspring/decimal"

// UnitPrice is base price plus material and size surcharges.
func UnitPrice(price decimal.Decimal, material *Material, size *Size) decimal.Decimal {
	unit := price
	if material != nil {
		unit = unit.Add(material.Price)
	}
	if size != nil {
		unit = unit.Add(size.Price)
	}
	return unit
}

func (li LineItem) UnitPrice() decimal.Decimal {
	return UnitPrice(li.Price, li.SelectedMaterial, li.SelectedSize)
}

// Recompute derives ItemTotal and Savings from price composition and quantity.
func (li LineItem) Recompute() LineItem {
	li.ItemTotal = li.UnitPrice().Mul(decimal.NewFromInt(int64(li.Quantity)))
	li.Savings = savings(li.OriginalPrice, li.Price, li.Quantity)
	return li
}

// savings is nil when there is no (non-zero) original price.
func savings(original *decimal.Decimal, price decimal.Decimal, quantity int) *decimal.Decimal {
	if original == nil || original.IsZero() {
		return nil
	}
	s := original.Sub(price).Mul(decimal.NewFromInt(int64(quantity)))
	return &s
}

func materialName(m *Material) (string, bool) {
	if m == nil {
		return "", false
	}
	return m.Name, true
}

func sizeName(s *Size) (string, bool) {
	if s == nil {
		return "", false
	}
	return s.Name, true
}

// SameConfiguration reports whether a line item and a candidate describe the
// same product configuration, in which case they are merged.
func SameConfiguration(li LineItem, candidate NewItem) bool {
	if li.ProductID != candidate.ProductID || li.CustomText != candidate.CustomText {
		return false
	}
	lm, lok := materialName(li.SelectedMaterial)
	cm, cok := materialName(candidate.SelectedMaterial)
	if lm != cm || lok != cok {
		return false
	}
	ls, lok := sizeName(li.SelectedSize)
	cs, cok := sizeName(candidate.SelectedSize)
	return ls == cs && lok == cok
}

func (c Cart) indexOf(itemID string) int {
	for i := range c.Items {
		if c.Items[i].ID == itemID {
			return i
		}
	}
	return -1
}

func (c Cart) cloneItems() []LineItem {
	items := make([]LineItem, len(c.Items))
	copy(items, c.Items)
	return items
}

// AddItem merges candidate into a line item with the same configuration or
// appends it under id. The cart is opened either way.
func (c Cart) AddItem(candidate NewItem, id string) Cart {
	items := c.cloneItems()

	merged := false
	for i := range items {
		if SameConfiguration(items[i], candidate) {
			// the latest price and discount apply to the whole line
			items[i].Price = candidate.Price
			items[i].OriginalPrice = candidate.OriginalPrice
			items[i].Quantity += candidate.Quantity
			items[i] = items[i].Recompute()
			merged = true
			break
		}
	}

	if !merged {
		li := LineItem{
			ID:               id,
			ProductID:        candidate.ProductID,
			Name:             candidate.Name,
			Slug:             candidate.Slug,
			Price:            candidate.Price,
			OriginalPrice:    candidate.OriginalPrice,
			Image:            candidate.Image,
			Category:         candidate.Category,
			Quantity:         candidate.Quantity,
			SelectedMaterial: candidate.SelectedMaterial,
			SelectedSize:     candidate.SelectedSize,
			CustomText:       candidate.CustomText,
		}
		items = append(items, li.Recompute())
	}

	return Cart{Items: items, IsOpen: true}
}

func (c Cart) RemoveItem(itemID string) Cart {
	i := c.indexOf(itemID)
	if i < 0 {
		return c
	}
	items := make([]LineItem, 0, len(c.Items)-1)
	items = append(items, c.Items[:i]...)
	items = append(items, c.Items[i+1:]...)
	return Cart{Items: items, IsOpen: c.IsOpen}
}

// UpdateQuantity removes the item when quantity <= 0.
func (c Cart) UpdateQuantity(itemID string, quantity int) Cart {
	if quantity <= 0 {
		return c.RemoveItem(itemID)
	}
	i := c.indexOf(itemID)
	if i < 0 {
		return c
	}
	items := c.cloneItems()
	items[i].Quantity = quantity
	items[i] = items[i].Recompute()
	return Cart{Items: items, IsOpen: c.IsOpen}
}

// UpdateCustomization applies the non-nil fields and recomputes total and savings.
func (c Cart) UpdateCustomization(itemID string, cz Customization) Cart {
	i := c.indexOf(itemID)
	if i < 0 {
		return c
	}
	items := c.cloneItems()
	if cz.SelectedMaterial != nil {
		items[i].SelectedMaterial = cz.SelectedMaterial
	}
	if cz.SelectedSize != nil {
		items[i].SelectedSize = cz.SelectedSize
	}
	if cz.CustomText != nil {
		items[i].CustomText = *cz.CustomText
	}
	items[i] = items[i].Recompute()
	return Cart{Items: items, IsOpen: c.IsOpen}
}

func (c Cart) Clear() Cart {
	return Cart{Items: []LineItem{}, IsOpen: false}
}

func (c Cart) Toggle() Cart {
	c.IsOpen = !c.IsOpen
	return c
}

func (c Cart) Open() Cart {
	c.IsOpen = true
	return c
}

func (c Cart) Close() Cart {
	c.IsOpen = false
	return c
}

func (c Cart) SetVisibility(open bool) Cart {
	c.IsOpen = open
	return c
}

// Item returns a copy of the line item with the given id.
func (c Cart) Item(itemID string) (LineItem, bool) {
	i := c.indexOf(itemID)
	if i < 0 {
		return LineItem{}, false
	}
	return c.Items[i], true
}

func (c Cart) IsEmpty() bool {
	return len(c.Items) == 0
}
