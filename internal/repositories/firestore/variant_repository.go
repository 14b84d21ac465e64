package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/gioia-jewelry/api/internal/domain"
	pfirestore "github.com/gioia-jewelry/api/internal/platform/firestore"
	"github.com/gioia-jewelry/api/internal/repositories"
)

const variantCollection = "variants"

type variantDocument struct {
	ProductID     string    `firestore:"productId"`
	SKU           string    `firestore:"sku"`
	Name          string    `firestore:"name"`
	Material      string    `firestore:"material,omitempty"`
	Gemstone      string    `firestore:"gemstone,omitempty"`
	Size          string    `firestore:"size,omitempty"`
	Color         string    `firestore:"color,omitempty"`
	BasePrice     int64     `firestore:"basePrice"`
	DiscountPrice *int64    `firestore:"discountPrice,omitempty"`
	PriceModifier int64     `firestore:"priceModifier"`
	ImageURL      string    `firestore:"imageUrl,omitempty"`
	CreatedAt     time.Time `firestore:"createdAt"`
	UpdatedAt     time.Time `firestore:"updatedAt"`
}

// VariantRepository reads catalog variants keyed by SKU. Fulfillment
// only looks variants up; catalog maintenance happens elsewhere.
type VariantRepository struct {
	base     *pfirestore.BaseRepository[variantDocument]
	provider *pfirestore.Provider
}

// NewVariantRepository constructs a Firestore-backed variant repository.
func NewVariantRepository(provider *pfirestore.Provider) (*VariantRepository, error) {
	if provider == nil {
		return nil, errors.New("variant repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[variantDocument](provider, variantCollection, nil, nil)
	return &VariantRepository{
		base:     base,
		provider: provider,
	}, nil
}

// FindBySKU loads one variant.
func (r *VariantRepository) FindBySKU(ctx context.Context, sku string) (domain.ProductVariant, error) {
	variants, err := r.FindBySKUs(ctx, []string{sku})
	if err != nil {
		return domain.ProductVariant{}, err
	}
	if len(variants) == 0 {
		return domain.ProductVariant{}, pfirestore.WrapError("variants.get", status.Error(codes.NotFound, fmt.Sprintf("variant %s not found", sku)))
	}
	return variants[0], nil
}

// FindBySKUs loads the given variants, failing when any is missing.
func (r *VariantRepository) FindBySKUs(ctx context.Context, skus []string) ([]domain.ProductVariant, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("variant repository not initialised")
	}

	refs := make([]*firestore.DocumentRef, 0, len(skus))
	trimmed := make([]string, 0, len(skus))
	for _, sku := range skus {
		s := strings.TrimSpace(sku)
		if s == "" {
			return nil, errors.New("variant repository: sku is required")
		}
		ref, err := r.base.DocumentRef(ctx, s)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
		trimmed = append(trimmed, s)
	}
	if len(refs) == 0 {
		return nil, nil
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	snaps, err := client.GetAll(ctx, refs)
	if err != nil {
		return nil, pfirestore.WrapError("variants.get", err)
	}

	variants := make([]domain.ProductVariant, 0, len(snaps))
	for i, snap := range snaps {
		if snap == nil || !snap.Exists() {
			return nil, pfirestore.WrapError("variants.get", status.Error(codes.NotFound, fmt.Sprintf("variant %s not found", trimmed[i])))
		}
		var doc variantDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, pfirestore.WrapError("variants.decode", err)
		}
		variants = append(variants, variantFromDocument(snap.Ref.ID, doc))
	}
	return variants, nil
}

// Upsert seeds a variant document. Used by catalog tooling and tests.
func (r *VariantRepository) Upsert(ctx context.Context, variant domain.ProductVariant) error {
	if r == nil || r.base == nil {
		return errors.New("variant repository not initialised")
	}
	sku := strings.TrimSpace(variant.SKU)
	if sku == "" {
		return errors.New("variant repository: sku is required")
	}
	doc := variantDocument{
		ProductID:     strings.TrimSpace(variant.ProductID),
		SKU:           sku,
		Name:          strings.TrimSpace(variant.Name),
		Material:      strings.TrimSpace(variant.Material),
		Gemstone:      strings.TrimSpace(variant.Gemstone),
		Size:          strings.TrimSpace(variant.Size),
		Color:         strings.TrimSpace(variant.Color),
		BasePrice:     variant.BasePrice,
		DiscountPrice: variant.DiscountPrice,
		PriceModifier: variant.PriceModifier,
		ImageURL:      strings.TrimSpace(variant.ImageURL),
		CreatedAt:     variant.CreatedAt.UTC(),
		UpdatedAt:     time.Now().UTC(),
	}
	_, err := r.base.Set(ctx, sku, doc)
	return err
}

func variantFromDocument(id string, doc variantDocument) domain.ProductVariant {
	sku := doc.SKU
	if strings.TrimSpace(sku) == "" {
		sku = id
	}
	return domain.ProductVariant{
		ID:            id,
		ProductID:     doc.ProductID,
		SKU:           sku,
		Name:          doc.Name,
		Material:      doc.Material,
		Gemstone:      doc.Gemstone,
		Size:          doc.Size,
		Color:         doc.Color,
		BasePrice:     doc.BasePrice,
		DiscountPrice: doc.DiscountPrice,
		PriceModifier: doc.PriceModifier,
		ImageURL:      doc.ImageURL,
		CreatedAt:     doc.CreatedAt,
		UpdatedAt:     doc.UpdatedAt,
	}
}

var _ repositories.VariantRepository = (*VariantRepository)(nil)
