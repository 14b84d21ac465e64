package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/gioia-jewelry/api/internal/domain"
)

func testPromotion() domain.Promotion {
	now := testClock()
	return domain.Promotion{
		ID:             "promo-1",
		Code:           "SALE10",
		DiscountType:   domain.DiscountTypePercentage,
		DiscountValue:  10,
		StartsAt:       now.Add(-24 * time.Hour),
		EndsAt:         now.Add(24 * time.Hour),
		MinOrderAmount: 500_000,
		MaxUsage:       100,
		CurrentUsage:   3,
	}
}

func newTestPromotionService(t *testing.T, repo *singlePromotionRepo) PromotionService {
	t.Helper()
	svc, err := NewPromotionService(PromotionServiceDeps{
		Promotions:  repo,
		IDGenerator: sequentialIDs("promo"),
		Clock:       testClock,
	})
	if err != nil {
		t.Fatalf("NewPromotionService: %v", err)
	}
	return svc
}

func TestPromotionValidateHappyPath(t *testing.T) {
	repo := newSinglePromotionRepo(testPromotion())
	svc := newTestPromotionService(t, repo)

	promo, err := svc.Validate(context.Background(), "sale10", 1_000_000, testClock())
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if promo.ID != "promo-1" {
		t.Fatalf("unexpected promotion %+v", promo)
	}
	if len(repo.redemptions) != 0 {
		t.Fatalf("validation must not record a redemption")
	}
}

func TestPromotionValidateFoldsCode(t *testing.T) {
	repo := newSinglePromotionRepo(testPromotion())
	svc := newTestPromotionService(t, repo)

	// Codes pasted with diacritics or full-width characters still
	// resolve against the stored ASCII code.
	for _, code := range []string{" sále10 ", "ＳＡＬＥ１０"} {
		promo, err := svc.Validate(context.Background(), code, 1_000_000, testClock())
		if err != nil {
			t.Fatalf("Validate(%q): %v", code, err)
		}
		if promo.Code != "SALE10" {
			t.Fatalf("expected folded lookup, got %+v", promo)
		}
	}
}

func TestPromotionValidateRejections(t *testing.T) {
	base := testPromotion()
	now := testClock()

	cases := []struct {
		name     string
		mutate   func(*domain.Promotion)
		code     string
		subtotal int64
		want     error
	}{
		{
			name: "empty code", code: "  ", subtotal: 1_000_000,
			want: ErrPromotionInvalidCode,
		},
		{
			name: "unknown code", code: "NOPE", subtotal: 1_000_000,
			want: ErrPromotionNotFound,
		},
		{
			name: "not started", code: "SALE10", subtotal: 1_000_000,
			mutate: func(p *domain.Promotion) { p.StartsAt = now.Add(time.Hour) },
			want:   ErrPromotionNotStarted,
		},
		{
			name: "expired", code: "SALE10", subtotal: 1_000_000,
			mutate: func(p *domain.Promotion) { p.EndsAt = now.Add(-time.Hour) },
			want:   ErrPromotionExpired,
		},
		{
			name: "exhausted", code: "SALE10", subtotal: 1_000_000,
			mutate: func(p *domain.Promotion) { p.CurrentUsage = p.MaxUsage },
			want:   ErrPromotionExhausted,
		},
		{
			name: "below minimum", code: "SALE10", subtotal: 400_000,
			want: ErrPromotionMinimumNotMet,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			promo := base
			if tc.mutate != nil {
				tc.mutate(&promo)
			}
			svc := newTestPromotionService(t, newSinglePromotionRepo(promo))
			if _, err := svc.Validate(context.Background(), tc.code, tc.subtotal, now); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestPromotionValidateAtExactBoundaries(t *testing.T) {
	now := testClock()
	promo := testPromotion()
	promo.StartsAt = now
	promo.EndsAt = now
	svc := newTestPromotionService(t, newSinglePromotionRepo(promo))

	// The window is inclusive on both ends.
	if _, err := svc.Validate(context.Background(), "SALE10", 1_000_000, now); err != nil {
		t.Fatalf("expected boundary instant to validate, got %v", err)
	}
}

func TestPromotionCreate(t *testing.T) {
	repo := newSinglePromotionRepo(testPromotion())
	var inserted domain.Promotion
	repo.insert = func(_ context.Context, promo domain.Promotion) error {
		inserted = promo
		return nil
	}
	svc := newTestPromotionService(t, repo)

	now := testClock()
	promo, err := svc.Create(context.Background(), PromotionCommand{
		Code:           "newyear25",
		Description:    "  Tet sale  ",
		DiscountType:   domain.DiscountTypeFixed,
		DiscountValue:  250_000,
		StartsAt:       now,
		EndsAt:         now.Add(72 * time.Hour),
		MinOrderAmount: 1_000_000,
		MaxUsage:       50,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if promo.Code != "NEWYEAR25" {
		t.Fatalf("expected uppercased code, got %q", promo.Code)
	}
	if promo.Description != "Tet sale" {
		t.Fatalf("expected trimmed description, got %q", promo.Description)
	}
	if promo.ID == "" || inserted.ID != promo.ID {
		t.Fatalf("expected generated id to be persisted, got %q / %q", promo.ID, inserted.ID)
	}
	if !promo.CreatedAt.Equal(now) {
		t.Fatalf("expected created at %v, got %v", now, promo.CreatedAt)
	}
}

func TestPromotionCreateDuplicateCode(t *testing.T) {
	repo := newSinglePromotionRepo(testPromotion())
	svc := newTestPromotionService(t, repo)

	now := testClock()
	_, err := svc.Create(context.Background(), PromotionCommand{
		Code:          "SALE10",
		DiscountType:  domain.DiscountTypePercentage,
		DiscountValue: 15,
		StartsAt:      now,
		EndsAt:        now.Add(time.Hour),
	})
	if !errors.Is(err, ErrPromotionDuplicateCode) {
		t.Fatalf("expected duplicate code error, got %v", err)
	}
}

func TestPromotionCreateValidation(t *testing.T) {
	repo := newSinglePromotionRepo(testPromotion())
	svc := newTestPromotionService(t, repo)
	now := testClock()

	cases := []struct {
		name string
		cmd  PromotionCommand
		want error
	}{
		{
			name: "missing code",
			cmd:  PromotionCommand{DiscountType: domain.DiscountTypeFixed, DiscountValue: 1, StartsAt: now, EndsAt: now.Add(time.Hour)},
			want: ErrPromotionInvalidCode,
		},
		{
			name: "inverted window",
			cmd:  PromotionCommand{Code: "X", DiscountType: domain.DiscountTypeFixed, DiscountValue: 1, StartsAt: now.Add(time.Hour), EndsAt: now},
			want: ErrPromotionInvalidWindow,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Create(context.Background(), tc.cmd); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	if _, err := svc.Create(context.Background(), PromotionCommand{
		Code: "X", DiscountType: domain.DiscountTypePercentage, DiscountValue: 120,
		StartsAt: now, EndsAt: now.Add(time.Hour),
	}); err == nil {
		t.Fatalf("expected error for percentage above 100")
	}
	if _, err := svc.Create(context.Background(), PromotionCommand{
		Code: "X", DiscountType: "bogus", DiscountValue: 5,
		StartsAt: now, EndsAt: now.Add(time.Hour),
	}); err == nil {
		t.Fatalf("expected error for unknown discount type")
	}
}

func TestPromotionUpdatePreservesUsage(t *testing.T) {
	repo := newSinglePromotionRepo(testPromotion())
	var updated domain.Promotion
	repo.update = func(_ context.Context, promo domain.Promotion) error {
		updated = promo
		return nil
	}
	svc := newTestPromotionService(t, repo)

	now := testClock()
	promo, err := svc.Update(context.Background(), "promo-1", PromotionCommand{
		Code:          "SALE10",
		DiscountType:  domain.DiscountTypePercentage,
		DiscountValue: 20,
		StartsAt:      now,
		EndsAt:        now.Add(48 * time.Hour),
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if promo.CurrentUsage != 3 {
		t.Fatalf("expected usage counter preserved, got %d", promo.CurrentUsage)
	}
	if promo.DiscountValue != 20 || updated.DiscountValue != 20 {
		t.Fatalf("expected discount value updated, got %d", promo.DiscountValue)
	}
}

func TestPromotionGetNotFound(t *testing.T) {
	repo := newSinglePromotionRepo(testPromotion())
	svc := newTestPromotionService(t, repo)

	if _, err := svc.Get(context.Background(), "missing"); !errors.Is(err, ErrPromotionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
