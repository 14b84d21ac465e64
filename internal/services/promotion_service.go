package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/gioia-jewelry/api/internal/domain"
	"github.com/gioia-jewelry/api/internal/platform/textutil"
	"github.com/gioia-jewelry/api/internal/repositories"
)

// promotionService validates promotion codes for checkout and exposes
// the admin CRUD surface.
type promotionService struct {
	promotions repositories.PromotionRepository
	idGen      func() string
	clock      func() time.Time
	logger     func(context.Context, string, map[string]any)
}

// PromotionServiceDeps wires the promotion service dependencies.
type PromotionServiceDeps struct {
	Promotions  repositories.PromotionRepository
	IDGenerator func() string
	Clock       func() time.Time
	Logger      func(context.Context, string, map[string]any)
}

// NewPromotionService validates dependencies and constructs the service.
func NewPromotionService(deps PromotionServiceDeps) (PromotionService, error) {
	if deps.Promotions == nil {
		return nil, errors.New("promotion service: promotions repository is required")
	}
	if deps.IDGenerator == nil {
		return nil, errors.New("promotion service: id generator is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &promotionService{
		promotions: deps.Promotions,
		idGen:      deps.IDGenerator,
		clock:      func() time.Time { return clock().UTC() },
		logger:     logger,
	}, nil
}

// Validate resolves the code and checks its temporal window, usage
// cap, and minimum order amount against the supplied subtotal. It
// never mutates the usage counter; redemption is recorded by the
// transaction that commits the order.
func (s *promotionService) Validate(ctx context.Context, code string, subtotal int64, now time.Time) (Promotion, error) {
	normalised := textutil.FoldCode(code)
	if normalised == "" {
		return Promotion{}, ErrPromotionInvalidCode
	}
	if now.IsZero() {
		now = s.clock()
	}

	promo, err := s.promotions.FindByCode(ctx, normalised)
	if err != nil {
		return Promotion{}, s.translateError("promotion_validate", err)
	}

	if now.Before(promo.StartsAt) {
		return Promotion{}, fmt.Errorf("%w: %s", ErrPromotionNotStarted, normalised)
	}
	if now.After(promo.EndsAt) {
		return Promotion{}, fmt.Errorf("%w: %s", ErrPromotionExpired, normalised)
	}
	if promo.MaxUsage > 0 && promo.CurrentUsage >= promo.MaxUsage {
		return Promotion{}, fmt.Errorf("%w: %s", ErrPromotionExhausted, normalised)
	}
	if subtotal < promo.MinOrderAmount {
		return Promotion{}, fmt.Errorf("%w: %s requires %d", ErrPromotionMinimumNotMet, normalised, promo.MinOrderAmount)
	}
	return promo, nil
}

// Create registers a new promotion after checking code uniqueness.
func (s *promotionService) Create(ctx context.Context, cmd PromotionCommand) (Promotion, error) {
	promo, err := s.buildPromotion(ctx, cmd, "")
	if err != nil {
		return Promotion{}, err
	}

	promo.ID = s.idGen()
	now := s.clock()
	promo.CreatedAt = now
	promo.UpdatedAt = now

	if err := s.promotions.Insert(ctx, promo); err != nil {
		return Promotion{}, s.translateError("promotion_create", err)
	}
	s.logger(ctx, "promotion_created", map[string]any{"promotion_id": promo.ID, "code": promo.Code})
	return promo, nil
}

// Update rewrites an existing promotion, preserving its usage counter.
func (s *promotionService) Update(ctx context.Context, promotionID string, cmd PromotionCommand) (Promotion, error) {
	id := strings.TrimSpace(promotionID)
	if id == "" {
		return Promotion{}, errors.New("promotion service: promotion id is required")
	}

	existing, err := s.promotions.FindByID(ctx, id)
	if err != nil {
		return Promotion{}, s.translateError("promotion_update", err)
	}

	promo, err := s.buildPromotion(ctx, cmd, id)
	if err != nil {
		return Promotion{}, err
	}

	promo.ID = existing.ID
	promo.CurrentUsage = existing.CurrentUsage
	promo.CreatedAt = existing.CreatedAt
	promo.UpdatedAt = s.clock()

	if err := s.promotions.Update(ctx, promo); err != nil {
		return Promotion{}, s.translateError("promotion_update", err)
	}
	return promo, nil
}

// Delete removes a promotion. Active promotions may be deleted; open
// orders keep their frozen discount amounts.
func (s *promotionService) Delete(ctx context.Context, promotionID string) error {
	id := strings.TrimSpace(promotionID)
	if id == "" {
		return errors.New("promotion service: promotion id is required")
	}
	if err := s.promotions.Delete(ctx, id); err != nil {
		return s.translateError("promotion_delete", err)
	}
	s.logger(ctx, "promotion_deleted", map[string]any{"promotion_id": id})
	return nil
}

// Get loads one promotion by ID.
func (s *promotionService) Get(ctx context.Context, promotionID string) (Promotion, error) {
	id := strings.TrimSpace(promotionID)
	if id == "" {
		return Promotion{}, errors.New("promotion service: promotion id is required")
	}
	promo, err := s.promotions.FindByID(ctx, id)
	if err != nil {
		return Promotion{}, s.translateError("promotion_get", err)
	}
	return promo, nil
}

// List pages through promotions.
func (s *promotionService) List(ctx context.Context, filter PromotionListFilter) (PromotionPage, error) {
	page, err := s.promotions.List(ctx, filter)
	if err != nil {
		return PromotionPage{}, s.translateError("promotion_list", err)
	}
	return page, nil
}

func (s *promotionService) buildPromotion(ctx context.Context, cmd PromotionCommand, selfID string) (Promotion, error) {
	code := textutil.FoldCode(cmd.Code)
	if code == "" {
		return Promotion{}, ErrPromotionInvalidCode
	}
	switch cmd.DiscountType {
	case domain.DiscountTypePercentage, domain.DiscountTypeFixed:
	default:
		return Promotion{}, fmt.Errorf("promotion service: unknown discount type %q", cmd.DiscountType)
	}
	if cmd.DiscountValue <= 0 {
		return Promotion{}, errors.New("promotion service: discount value must be positive")
	}
	if cmd.DiscountType == domain.DiscountTypePercentage && cmd.DiscountValue > 100 {
		return Promotion{}, errors.New("promotion service: percentage discount cannot exceed 100")
	}
	if !cmd.StartsAt.Before(cmd.EndsAt) {
		return Promotion{}, ErrPromotionInvalidWindow
	}
	if cmd.MinOrderAmount < 0 {
		return Promotion{}, errors.New("promotion service: minimum order amount cannot be negative")
	}
	if cmd.MaxUsage < 0 {
		return Promotion{}, errors.New("promotion service: max usage cannot be negative")
	}

	if existing, err := s.promotions.FindByCode(ctx, code); err == nil {
		if existing.ID != selfID {
			return Promotion{}, fmt.Errorf("%w: %s", ErrPromotionDuplicateCode, code)
		}
	} else {
		var repoErr repositories.RepositoryError
		if !errors.As(err, &repoErr) || !repoErr.IsNotFound() {
			return Promotion{}, s.translateError("promotion_code_check", err)
		}
	}

	return Promotion{
		Code:           code,
		Description:    strings.TrimSpace(cmd.Description),
		DiscountType:   cmd.DiscountType,
		DiscountValue:  cmd.DiscountValue,
		StartsAt:       cmd.StartsAt.UTC(),
		EndsAt:         cmd.EndsAt.UTC(),
		MinOrderAmount: cmd.MinOrderAmount,
		MaxUsage:       cmd.MaxUsage,
	}, nil
}

func (s *promotionService) translateError(op string, err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrPromotionNotFound
		case repoErr.IsConflict():
			return ErrPromotionDuplicateCode
		}
	}
	return fmt.Errorf("promotion service: %s: %w", op, err)
}
