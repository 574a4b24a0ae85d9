package domain

import "github.com/shopspring/decimal"

// Derived values are computed on demand and never cached.

func (c Cart) TotalItems() int {
	total := 0
	for _, item := range c.Items {
		total += item.Quantity
	}
	return total
}

func (c Cart) TotalPrice() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.ItemTotal)
	}
	return total
}

func (c Cart) TotalSavings() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		if item.Savings != nil {
			total = total.Add(*item.Savings)
		}
	}
	return total
}

// ShippingCost is free at or above FreeShippingThreshold.
func (c Cart) ShippingCost() decimal.Decimal {
	if c.TotalPrice().GreaterThanOrEqual(FreeShippingThreshold) {
		return decimal.Zero
	}
	return StandardShippingCost
}

func (c Cart) FinalTotal() decimal.Decimal {
	return c.TotalPrice().Add(c.ShippingCost())
}

// Snapshot is a cart with every derived value materialized, used for transport
// and change notifications.
type Snapshot struct {
	Items        []LineItem      `json:"items"`
	IsOpen       bool            `json:"isOpen"`
	TotalItems   int             `json:"totalItems"`
	TotalPrice   decimal.Decimal `json:"totalPrice"`
	TotalSavings decimal.Decimal `json:"totalSavings"`
	ShippingCost decimal.Decimal `json:"shippingCost"`
	FinalTotal   decimal.Decimal `json:"finalTotal"`
}

func (c Cart) Snapshot() Snapshot {
	items := make([]LineItem, len(c.Items))
	copy(items, c.Items)
	return Snapshot{
		Items:        items,
		IsOpen:       c.IsOpen,
		TotalItems:   c.TotalItems(),
		TotalPrice:   c.TotalPrice(),
		TotalSavings: c.TotalSavings(),
		ShippingCost: c.ShippingCost(),
		FinalTotal:   c.FinalTotal(),
	}
}
