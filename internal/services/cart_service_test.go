package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/gioia-jewelry/api/internal/domain"
)

func newTestCartService(t *testing.T, carts *memoryCartRepo) CartService {
	t.Helper()
	svc, err := NewCartService(CartServiceDeps{
		Carts:    carts,
		Variants: variantMapRepo(checkoutVariants()),
		Clock:    testClock,
	})
	if err != nil {
		t.Fatalf("NewCartService: %v", err)
	}
	return svc
}

func TestCartAddItemNewLine(t *testing.T) {
	carts := newMemoryCartRepo()
	svc := newTestCartService(t, carts)

	cart, err := svc.AddItem(context.Background(), UpsertCartItemCommand{
		UserID:   "user-1",
		SKU:      "RING-1",
		Quantity: 2,
	})
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if len(cart.Items) != 1 {
		t.Fatalf("expected 1 line, got %d", len(cart.Items))
	}
	line := cart.Items[0]
	if line.SKU != "RING-1" || line.Quantity != 2 {
		t.Fatalf("unexpected line %+v", line)
	}
	if line.VariantID != "variant-RING-1" {
		t.Fatalf("expected variant id from catalog, got %q", line.VariantID)
	}
	if !line.AddedAt.Equal(testClock()) {
		t.Fatalf("unexpected added timestamp %v", line.AddedAt)
	}
}

func TestCartAddItemIncrementsExistingLine(t *testing.T) {
	carts := newMemoryCartRepo(checkoutCart("user-1"))
	svc := newTestCartService(t, carts)

	cart, err := svc.AddItem(context.Background(), UpsertCartItemCommand{
		UserID:   "user-1",
		SKU:      "RING-1",
		Quantity: 3,
	})
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	for _, line := range cart.Items {
		if line.SKU == "RING-1" && line.Quantity != 5 {
			t.Fatalf("expected quantity 5 after increment, got %d", line.Quantity)
		}
	}
}

func TestCartAddItemEnforcesLineCap(t *testing.T) {
	carts := newMemoryCartRepo(checkoutCart("user-1"))
	svc := newTestCartService(t, carts)

	// 2 already in the cart, 19 more breaks the cap of 20.
	_, err := svc.AddItem(context.Background(), UpsertCartItemCommand{
		UserID:   "user-1",
		SKU:      "RING-1",
		Quantity: 19,
	})
	if !errors.Is(err, ErrCartInvalidInput) {
		t.Fatalf("expected invalid input above line cap, got %v", err)
	}

	_, err = svc.AddItem(context.Background(), UpsertCartItemCommand{
		UserID:   "user-1",
		SKU:      "NECK-1",
		Quantity: 21,
	})
	if !errors.Is(err, ErrCartInvalidInput) {
		t.Fatalf("expected invalid input for oversized new line, got %v", err)
	}
}

func TestCartAddItemUnknownVariant(t *testing.T) {
	svc := newTestCartService(t, newMemoryCartRepo())

	_, err := svc.AddItem(context.Background(), UpsertCartItemCommand{
		UserID:   "user-1",
		SKU:      "GHOST",
		Quantity: 1,
	})
	if !errors.Is(err, ErrCartVariantNotFound) {
		t.Fatalf("expected variant not found, got %v", err)
	}
}

func TestCartUpdateItemSetsAbsoluteQuantity(t *testing.T) {
	carts := newMemoryCartRepo(checkoutCart("user-1"))
	svc := newTestCartService(t, carts)

	cart, err := svc.UpdateItem(context.Background(), UpsertCartItemCommand{
		UserID:   "user-1",
		SKU:      "RING-1",
		Quantity: 7,
	})
	if err != nil {
		t.Fatalf("UpdateItem: %v", err)
	}
	for _, line := range cart.Items {
		if line.SKU == "RING-1" && line.Quantity != 7 {
			t.Fatalf("expected absolute quantity 7, got %d", line.Quantity)
		}
	}
}

func TestCartUpdateItemZeroRemovesLine(t *testing.T) {
	carts := newMemoryCartRepo(checkoutCart("user-1"))
	svc := newTestCartService(t, carts)

	cart, err := svc.UpdateItem(context.Background(), UpsertCartItemCommand{
		UserID:   "user-1",
		SKU:      "RING-1",
		Quantity: 0,
	})
	if err != nil {
		t.Fatalf("UpdateItem: %v", err)
	}
	if len(cart.Items) != 1 || cart.Items[0].SKU != "NECK-1" {
		t.Fatalf("expected RING-1 removed, got %+v", cart.Items)
	}
}

func TestCartUpdateItemMissingLine(t *testing.T) {
	// NECK-1 is in the catalog but updating a SKU absent from the cart
	// must not create it.
	svc := newTestCartService(t, newMemoryCartRepo(domain.Cart{UserID: "user-1"}))

	_, err := svc.UpdateItem(context.Background(), UpsertCartItemCommand{
		UserID:   "user-1",
		SKU:      "NECK-1",
		Quantity: 2,
	})
	if !errors.Is(err, ErrCartItemNotFound) {
		t.Fatalf("expected item not found, got %v", err)
	}
}

func TestCartRemoveItem(t *testing.T) {
	carts := newMemoryCartRepo(checkoutCart("user-1"))
	svc := newTestCartService(t, carts)

	cart, err := svc.RemoveItem(context.Background(), "user-1", "NECK-1")
	if err != nil {
		t.Fatalf("RemoveItem: %v", err)
	}
	if len(cart.Items) != 1 || cart.Items[0].SKU != "RING-1" {
		t.Fatalf("expected only RING-1 left, got %+v", cart.Items)
	}

	if _, err := svc.RemoveItem(context.Background(), "user-1", "NECK-1"); !errors.Is(err, ErrCartItemNotFound) {
		t.Fatalf("expected item not found on repeat removal, got %v", err)
	}
}

func TestCartGetCartEmptyForNewUser(t *testing.T) {
	svc := newTestCartService(t, newMemoryCartRepo())

	cart, err := svc.GetCart(context.Background(), "user-9")
	if err != nil {
		t.Fatalf("GetCart: %v", err)
	}
	if !cart.IsEmpty() {
		t.Fatalf("expected empty cart, got %+v", cart)
	}

	if _, err := svc.GetCart(context.Background(), "  "); !errors.Is(err, ErrCartInvalidInput) {
		t.Fatalf("expected invalid input for blank user, got %v", err)
	}
}

func TestCartValidatesQuantity(t *testing.T) {
	svc := newTestCartService(t, newMemoryCartRepo())

	_, err := svc.AddItem(context.Background(), UpsertCartItemCommand{
		UserID:   "user-1",
		SKU:      "RING-1",
		Quantity: -1,
	})
	if !errors.Is(err, ErrCartInvalidInput) {
		t.Fatalf("expected invalid input for negative quantity, got %v", err)
	}
}
