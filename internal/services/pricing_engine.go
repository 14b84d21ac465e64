package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/gioia-jewelry/api/internal/domain"
)

var (
	// ErrCartPricingInvalidInput signals bad request data such as missing lines or non-positive quantities.
	ErrCartPricingInvalidInput = errors.New("cart pricing: invalid input")
)

// DefaultShippingFee is the flat delivery fee in VND. Shipping is a
// fixed constant, not computed from weight or distance.
const DefaultShippingFee int64 = 30_000

// promotionValidator is the slice of PromotionService the engine needs.
type promotionValidator interface {
	Validate(ctx context.Context, code string, subtotal int64, now time.Time) (Promotion, error)
}

// CartPricingEngine computes frozen unit prices, applies at most one
// promotion, and adds the flat shipping fee.
type CartPricingEngine struct {
	promotion   promotionValidator
	shippingFee int64
	now         func() time.Time
	logger      func(context.Context, string, map[string]any)
}

// CartPricingEngineDeps wires the pricing engine dependencies.
type CartPricingEngineDeps struct {
	Promotion   promotionValidator
	ShippingFee int64
	Now         func() time.Time
	Logger      func(context.Context, string, map[string]any)
}

// NewCartPricingEngine validates dependencies and constructs the engine.
func NewCartPricingEngine(deps CartPricingEngineDeps) (*CartPricingEngine, error) {
	if deps.Promotion == nil {
		return nil, errors.New("cart pricing engine: promotion validator is required")
	}
	fee := deps.ShippingFee
	if fee < 0 {
		return nil, errors.New("cart pricing engine: shipping fee cannot be negative")
	}
	if fee == 0 {
		fee = DefaultShippingFee
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &CartPricingEngine{
		promotion:   deps.Promotion,
		shippingFee: fee,
		now:         func() time.Time { return now().UTC() },
		logger:      logger,
	}, nil
}

// PriceCart prices the given lines. The unit price of each line is
// frozen here: discount price when present and positive, otherwise
// base price, plus the variant modifier. The promotion, when given,
// must pass temporal, usage, and minimum amount validation; its
// discount is clamped so the total never goes negative.
func (e *CartPricingEngine) PriceCart(ctx context.Context, cmd PriceCartCommand) (PricingResult, error) {
	if len(cmd.Lines) == 0 {
		return PricingResult{}, fmt.Errorf("%w: no lines", ErrCartPricingInvalidInput)
	}

	now := cmd.Now
	if now.IsZero() {
		now = e.now()
	}

	breakdown := PricingBreakdown{ShippingFee: e.shippingFee}
	for _, line := range cmd.Lines {
		if line.Quantity <= 0 {
			return PricingResult{}, fmt.Errorf("%w: quantity for %s must be positive", ErrCartPricingInvalidInput, line.Variant.SKU)
		}
		unit := line.Variant.UnitPrice()
		if unit < 0 {
			return PricingResult{}, fmt.Errorf("%w: negative unit price for %s", ErrCartPricingInvalidInput, line.Variant.SKU)
		}
		lineTotal := unit * int64(line.Quantity)
		breakdown.Items = append(breakdown.Items, ItemPricingBreakdown{
			SKU:       line.Variant.SKU,
			Quantity:  line.Quantity,
			UnitPrice: unit,
			LineTotal: lineTotal,
		})
		breakdown.Subtotal += lineTotal
	}

	var applied *Promotion
	if code := strings.TrimSpace(cmd.PromotionCode); code != "" {
		promo, err := e.promotion.Validate(ctx, code, breakdown.Subtotal, now)
		if err != nil {
			return PricingResult{}, err
		}
		discount := promo.DiscountAmount(breakdown.Subtotal)
		if promo.DiscountType == domain.DiscountTypeFixed && promo.DiscountValue > breakdown.Subtotal {
			e.logger(ctx, "pricing_discount_clamped", map[string]any{
				"code":     promo.Code,
				"subtotal": breakdown.Subtotal,
				"value":    promo.DiscountValue,
			})
		}
		breakdown.Discount = discount
		breakdown.PromotionCode = promo.Code
		applied = &promo
	}

	breakdown.Total = breakdown.Subtotal - breakdown.Discount + breakdown.ShippingFee
	return PricingResult{Breakdown: breakdown, Promotion: applied}, nil
}
