package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/gioia-jewelry/api/internal/domain"
)

type stubPromotionValidator struct {
	validate func(ctx context.Context, code string, subtotal int64, now time.Time) (Promotion, error)
}

func (s *stubPromotionValidator) Validate(ctx context.Context, code string, subtotal int64, now time.Time) (Promotion, error) {
	return s.validate(ctx, code, subtotal, now)
}

func ringVariant(sku string, base int64) ProductVariant {
	return ProductVariant{
		ID:        "variant-" + sku,
		SKU:       sku,
		Name:      "Gold Ring " + sku,
		BasePrice: base,
	}
}

func newTestPricingEngine(t *testing.T, validator promotionValidator) *CartPricingEngine {
	t.Helper()
	if validator == nil {
		validator = &stubPromotionValidator{
			validate: func(_ context.Context, code string, _ int64, _ time.Time) (Promotion, error) {
				return Promotion{}, ErrPromotionNotFound
			},
		}
	}
	engine, err := NewCartPricingEngine(CartPricingEngineDeps{
		Promotion: validator,
		Now:       testClock,
	})
	if err != nil {
		t.Fatalf("NewCartPricingEngine: %v", err)
	}
	return engine
}

func TestPriceCartWithoutPromotion(t *testing.T) {
	engine := newTestPricingEngine(t, nil)

	result, err := engine.PriceCart(context.Background(), PriceCartCommand{
		Lines: []PricingLine{
			{Variant: ringVariant("RING-1", 400_000), Quantity: 2},
			{Variant: ringVariant("NECK-1", 200_000), Quantity: 1},
		},
	})
	if err != nil {
		t.Fatalf("PriceCart: %v", err)
	}

	b := result.Breakdown
	if b.Subtotal != 1_000_000 {
		t.Fatalf("expected subtotal 1000000, got %d", b.Subtotal)
	}
	if b.Discount != 0 {
		t.Fatalf("expected no discount, got %d", b.Discount)
	}
	if b.ShippingFee != DefaultShippingFee {
		t.Fatalf("expected shipping fee %d, got %d", DefaultShippingFee, b.ShippingFee)
	}
	if b.Total != 1_030_000 {
		t.Fatalf("expected total 1030000, got %d", b.Total)
	}
	if result.Promotion != nil {
		t.Fatalf("expected no promotion, got %+v", result.Promotion)
	}
	if len(b.Items) != 2 {
		t.Fatalf("expected 2 item breakdowns, got %d", len(b.Items))
	}
	if b.Items[0].LineTotal != 800_000 {
		t.Fatalf("expected first line total 800000, got %d", b.Items[0].LineTotal)
	}
}

func TestPriceCartWithPercentagePromotion(t *testing.T) {
	promo := Promotion{
		ID:            "promo-1",
		Code:          "SALE10",
		DiscountType:  domain.DiscountTypePercentage,
		DiscountValue: 10,
	}
	validator := &stubPromotionValidator{
		validate: func(_ context.Context, code string, subtotal int64, _ time.Time) (Promotion, error) {
			if code != "SALE10" {
				t.Fatalf("unexpected code %q", code)
			}
			if subtotal != 1_000_000 {
				t.Fatalf("expected subtotal 1000000, got %d", subtotal)
			}
			return promo, nil
		},
	}
	engine := newTestPricingEngine(t, validator)

	result, err := engine.PriceCart(context.Background(), PriceCartCommand{
		Lines:         []PricingLine{{Variant: ringVariant("RING-1", 500_000), Quantity: 2}},
		PromotionCode: "SALE10",
	})
	if err != nil {
		t.Fatalf("PriceCart: %v", err)
	}

	b := result.Breakdown
	if b.Discount != 100_000 {
		t.Fatalf("expected discount 100000, got %d", b.Discount)
	}
	if b.Total != 930_000 {
		t.Fatalf("expected total 930000, got %d", b.Total)
	}
	if b.PromotionCode != "SALE10" {
		t.Fatalf("expected promotion code on breakdown, got %q", b.PromotionCode)
	}
	if result.Promotion == nil || result.Promotion.ID != "promo-1" {
		t.Fatalf("expected applied promotion, got %+v", result.Promotion)
	}
}

func TestPriceCartClampsFixedDiscount(t *testing.T) {
	promo := Promotion{
		ID:            "promo-2",
		Code:          "MEGA",
		DiscountType:  domain.DiscountTypeFixed,
		DiscountValue: 5_000_000,
	}
	validator := &stubPromotionValidator{
		validate: func(context.Context, string, int64, time.Time) (Promotion, error) {
			return promo, nil
		},
	}
	engine := newTestPricingEngine(t, validator)

	result, err := engine.PriceCart(context.Background(), PriceCartCommand{
		Lines:         []PricingLine{{Variant: ringVariant("RING-1", 300_000), Quantity: 1}},
		PromotionCode: "MEGA",
	})
	if err != nil {
		t.Fatalf("PriceCart: %v", err)
	}

	b := result.Breakdown
	if b.Discount != b.Subtotal {
		t.Fatalf("expected discount clamped to subtotal %d, got %d", b.Subtotal, b.Discount)
	}
	if b.Total != b.ShippingFee {
		t.Fatalf("expected total to collapse to shipping fee %d, got %d", b.ShippingFee, b.Total)
	}
}

func TestPriceCartUsesDiscountPriceAndModifier(t *testing.T) {
	engine := newTestPricingEngine(t, nil)

	variant := ringVariant("RING-XL", 500_000)
	variant.DiscountPrice = int64Ptr(450_000)
	variant.PriceModifier = 50_000

	result, err := engine.PriceCart(context.Background(), PriceCartCommand{
		Lines: []PricingLine{{Variant: variant, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("PriceCart: %v", err)
	}
	if got := result.Breakdown.Items[0].UnitPrice; got != 500_000 {
		t.Fatalf("expected unit price 500000 (discount plus modifier), got %d", got)
	}
}

func TestPriceCartRejectsInvalidInput(t *testing.T) {
	engine := newTestPricingEngine(t, nil)

	if _, err := engine.PriceCart(context.Background(), PriceCartCommand{}); !errors.Is(err, ErrCartPricingInvalidInput) {
		t.Fatalf("expected invalid input for empty lines, got %v", err)
	}

	_, err := engine.PriceCart(context.Background(), PriceCartCommand{
		Lines: []PricingLine{{Variant: ringVariant("RING-1", 100_000), Quantity: 0}},
	})
	if !errors.Is(err, ErrCartPricingInvalidInput) {
		t.Fatalf("expected invalid input for zero quantity, got %v", err)
	}
}

func TestPriceCartPropagatesPromotionError(t *testing.T) {
	validator := &stubPromotionValidator{
		validate: func(context.Context, string, int64, time.Time) (Promotion, error) {
			return Promotion{}, ErrPromotionExpired
		},
	}
	engine := newTestPricingEngine(t, validator)

	_, err := engine.PriceCart(context.Background(), PriceCartCommand{
		Lines:         []PricingLine{{Variant: ringVariant("RING-1", 100_000), Quantity: 1}},
		PromotionCode: "OLD",
	})
	if !errors.Is(err, ErrPromotionExpired) {
		t.Fatalf("expected promotion error to propagate, got %v", err)
	}
}
