package domain

// PricingBreakdown captures the monetary results of pricing a cart.
// All amounts are VND.
type PricingBreakdown struct {
	Subtotal      int64
	Discount      int64
	PromotionCode string
	ShippingFee   int64
	Total         int64
	Items         []ItemPricingBreakdown
}

// ItemPricingBreakdown stores the per-line pricing outputs, with the
// unit price already frozen.
type ItemPricingBreakdown struct {
	SKU       string
	Quantity  int
	UnitPrice int64
	LineTotal int64
}

// DiscountAmount computes the discount a promotion yields for the
// given subtotal, clamped so it never exceeds the subtotal.
func (p Promotion) DiscountAmount(subtotal int64) int64 {
	var amount int64
	switch p.DiscountType {
	case DiscountTypePercentage:
		amount = subtotal * p.DiscountValue / 100
	case DiscountTypeFixed:
		amount = p.DiscountValue
	}
	if amount < 0 {
		amount = 0
	}
	if amount > subtotal {
		amount = subtotal
	}
	return amount
}
