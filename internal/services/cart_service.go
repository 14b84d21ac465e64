package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/gioia-jewelry/api/internal/domain"
	"github.com/gioia-jewelry/api/internal/repositories"
)

// maxCartLineQuantity caps a single cart line. Jewelry orders are
// small; anything larger is a client bug or abuse.
const maxCartLineQuantity = 20

var (
	// ErrCartInvalidInput signals malformed cart mutation parameters.
	ErrCartInvalidInput = errors.New("cart: invalid input")
	// ErrCartItemNotFound indicates the SKU is not present in the cart.
	ErrCartItemNotFound = errors.New("cart: item not found")
	// ErrCartVariantNotFound indicates the SKU does not exist in the catalog.
	ErrCartVariantNotFound = errors.New("cart: variant not found")
)

// cartService manages cart state. Mutations are last-writer-wins since
// only the owning user edits their own cart.
type cartService struct {
	carts    repositories.CartRepository
	variants repositories.VariantRepository
	clock    func() time.Time
	logger   func(context.Context, string, map[string]any)
}

// CartServiceDeps wires the cart service dependencies.
type CartServiceDeps struct {
	Carts    repositories.CartRepository
	Variants repositories.VariantRepository
	Clock    func() time.Time
	Logger   func(context.Context, string, map[string]any)
}

// NewCartService validates dependencies and constructs the service.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Carts == nil {
		return nil, errors.New("cart service: cart repository is required")
	}
	if deps.Variants == nil {
		return nil, errors.New("cart service: variant repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &cartService{
		carts:    deps.Carts,
		variants: deps.Variants,
		clock:    func() time.Time { return clock().UTC() },
		logger:   logger,
	}, nil
}

// GetCart returns the user's cart, empty when none was persisted yet.
func (s *cartService) GetCart(ctx context.Context, userID string) (Cart, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return Cart{}, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}
	cart, err := s.carts.GetCart(ctx, uid)
	if err != nil {
		return Cart{}, err
	}
	return cart, nil
}

// AddItem adds a line or increases the quantity of an existing line.
func (s *cartService) AddItem(ctx context.Context, cmd UpsertCartItemCommand) (Cart, error) {
	return s.upsertItem(ctx, cmd, true)
}

// UpdateItem sets the absolute quantity of an existing line. A zero
// quantity removes the line.
func (s *cartService) UpdateItem(ctx context.Context, cmd UpsertCartItemCommand) (Cart, error) {
	if cmd.Quantity == 0 {
		return s.RemoveItem(ctx, cmd.UserID, cmd.SKU)
	}
	return s.upsertItem(ctx, cmd, false)
}

// RemoveItem deletes one line from the cart.
func (s *cartService) RemoveItem(ctx context.Context, userID, sku string) (Cart, error) {
	uid := strings.TrimSpace(userID)
	trimmed := strings.TrimSpace(sku)
	if uid == "" || trimmed == "" {
		return Cart{}, fmt.Errorf("%w: user id and sku are required", ErrCartInvalidInput)
	}

	cart, err := s.carts.GetCart(ctx, uid)
	if err != nil {
		return Cart{}, err
	}

	items := make([]domain.CartItem, 0, len(cart.Items))
	found := false
	for _, item := range cart.Items {
		if item.SKU == trimmed {
			found = true
			continue
		}
		items = append(items, item)
	}
	if !found {
		return Cart{}, fmt.Errorf("%w: %s", ErrCartItemNotFound, trimmed)
	}

	updated, err := s.carts.ReplaceItems(ctx, uid, items)
	if err != nil {
		return Cart{}, err
	}
	s.logger(ctx, "cart_item_removed", map[string]any{"user_id": uid, "sku": trimmed})
	return updated, nil
}

func (s *cartService) upsertItem(ctx context.Context, cmd UpsertCartItemCommand, additive bool) (Cart, error) {
	uid := strings.TrimSpace(cmd.UserID)
	sku := strings.TrimSpace(cmd.SKU)
	if uid == "" || sku == "" {
		return Cart{}, fmt.Errorf("%w: user id and sku are required", ErrCartInvalidInput)
	}
	if cmd.Quantity <= 0 {
		return Cart{}, fmt.Errorf("%w: quantity must be positive", ErrCartInvalidInput)
	}

	variant, err := s.variants.FindBySKU(ctx, sku)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return Cart{}, fmt.Errorf("%w: %s", ErrCartVariantNotFound, sku)
		}
		return Cart{}, err
	}

	cart, err := s.carts.GetCart(ctx, uid)
	if err != nil {
		return Cart{}, err
	}

	now := s.clock()
	items := cart.Items
	found := false
	for i := range items {
		if items[i].SKU != sku {
			continue
		}
		found = true
		if additive {
			items[i].Quantity += cmd.Quantity
		} else {
			items[i].Quantity = cmd.Quantity
		}
		if items[i].Quantity > maxCartLineQuantity {
			return Cart{}, fmt.Errorf("%w: quantity for %s exceeds %d", ErrCartInvalidInput, sku, maxCartLineQuantity)
		}
		break
	}
	if !found {
		if !additive {
			return Cart{}, fmt.Errorf("%w: %s", ErrCartItemNotFound, sku)
		}
		if cmd.Quantity > maxCartLineQuantity {
			return Cart{}, fmt.Errorf("%w: quantity for %s exceeds %d", ErrCartInvalidInput, sku, maxCartLineQuantity)
		}
		items = append(items, domain.CartItem{
			SKU:       sku,
			VariantID: variant.ID,
			Quantity:  cmd.Quantity,
			AddedAt:   now,
		})
	}

	updated, err := s.carts.ReplaceItems(ctx, uid, items)
	if err != nil {
		return Cart{}, err
	}
	s.logger(ctx, "cart_item_upserted", map[string]any{"user_id": uid, "sku": sku})
	return updated, nil
}
