package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/gioia-jewelry/api/internal/domain"
	pfirestore "github.com/gioia-jewelry/api/internal/platform/firestore"
	"github.com/gioia-jewelry/api/internal/repositories"
)

const cartCollection = "carts"

type cartItemDocument struct {
	SKU       string    `firestore:"sku"`
	VariantID string    `firestore:"variantId"`
	Quantity  int       `firestore:"quantity"`
	AddedAt   time.Time `firestore:"addedAt"`
}

type cartDocument struct {
	Items     []cartItemDocument `firestore:"items"`
	UpdatedAt time.Time          `firestore:"updatedAt"`
}

// CartRepository persists carts in Firestore, one document per user.
type CartRepository struct {
	base     *pfirestore.BaseRepository[cartDocument]
	provider *pfirestore.Provider
}

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[cartDocument](provider, cartCollection, nil, nil)
	return &CartRepository{
		base:     base,
		provider: provider,
	}, nil
}

// GetCart loads the cart owned by the given user. A missing document
// is returned as an empty cart; carts are created lazily on first add.
func (r *CartRepository) GetCart(ctx context.Context, userID string) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}

	ref, err := r.base.DocumentRef(ctx, uid)
	if err != nil {
		return domain.Cart{}, err
	}

	var snap *firestore.DocumentSnapshot
	if tx, ok := pfirestore.TransactionFrom(ctx); ok {
		snap, err = tx.Get(ref)
	} else {
		snap, err = ref.Get(ctx)
	}
	if err != nil {
		wrapped := pfirestore.WrapError("carts.get", err)
		var repoErr repositories.RepositoryError
		if errors.As(wrapped, &repoErr) && repoErr.IsNotFound() {
			return domain.Cart{UserID: uid, Items: []domain.CartItem{}}, nil
		}
		return domain.Cart{}, wrapped
	}

	var doc cartDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Cart{}, pfirestore.WrapError("carts.decode", err)
	}
	return cartFromDocument(uid, doc), nil
}

// UpsertCart writes the full cart document. Last writer wins; only the
// owning user mutates their own cart.
func (r *CartRepository) UpsertCart(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	uid := strings.TrimSpace(cart.UserID)
	if uid == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}

	now := cart.UpdatedAt.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}
	doc := cartToDocument(cart, now)

	if tx, ok := pfirestore.TransactionFrom(ctx); ok {
		ref, err := r.base.DocumentRef(ctx, uid)
		if err != nil {
			return domain.Cart{}, err
		}
		if err := tx.Set(ref, doc); err != nil {
			return domain.Cart{}, pfirestore.WrapError("carts.set", err)
		}
		return cartFromDocument(uid, doc), nil
	}

	if _, err := r.base.Set(ctx, uid, doc); err != nil {
		return domain.Cart{}, err
	}
	return cartFromDocument(uid, doc), nil
}

// ReplaceItems swaps the cart's item list, clearing the cart when the
// slice is empty. Participates in an ambient transaction so order
// creation clears the cart atomically with the order insert.
func (r *CartRepository) ReplaceItems(ctx context.Context, userID string, items []domain.CartItem) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}

	cart := domain.Cart{UserID: uid, Items: items, UpdatedAt: time.Now().UTC()}
	return r.UpsertCart(ctx, cart)
}

func cartToDocument(cart domain.Cart, updatedAt time.Time) cartDocument {
	doc := cartDocument{UpdatedAt: updatedAt}
	for _, item := range cart.Items {
		if item.Quantity <= 0 {
			continue
		}
		doc.Items = append(doc.Items, cartItemDocument{
			SKU:       strings.TrimSpace(item.SKU),
			VariantID: strings.TrimSpace(item.VariantID),
			Quantity:  item.Quantity,
			AddedAt:   item.AddedAt.UTC(),
		})
	}
	return doc
}

func cartFromDocument(userID string, doc cartDocument) domain.Cart {
	cart := domain.Cart{
		UserID:    userID,
		Items:     make([]domain.CartItem, 0, len(doc.Items)),
		UpdatedAt: doc.UpdatedAt,
	}
	for _, item := range doc.Items {
		cart.Items = append(cart.Items, domain.CartItem{
			SKU:       item.SKU,
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
			AddedAt:   item.AddedAt,
		})
	}
	return cart
}

var _ repositories.CartRepository = (*CartRepository)(nil)
