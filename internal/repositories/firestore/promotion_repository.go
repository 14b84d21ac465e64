package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/gioia-jewelry/api/internal/domain"
	pfirestore "github.com/gioia-jewelry/api/internal/platform/firestore"
	"github.com/gioia-jewelry/api/internal/platform/pagination"
	"github.com/gioia-jewelry/api/internal/repositories"
)

const (
	promotionCollection  = "promotions"
	defaultPromotionPage = 20
)

type promotionDocument struct {
	Code           string    `firestore:"code"`
	Description    string    `firestore:"description,omitempty"`
	DiscountType   string    `firestore:"discountType"`
	DiscountValue  int64     `firestore:"discountValue"`
	StartsAt       time.Time `firestore:"startsAt"`
	EndsAt         time.Time `firestore:"endsAt"`
	MinOrderAmount int64     `firestore:"minOrderAmount"`
	MaxUsage       int       `firestore:"maxUsage"`
	CurrentUsage   int       `firestore:"currentUsage"`
	CreatedAt      time.Time `firestore:"createdAt"`
	UpdatedAt      time.Time `firestore:"updatedAt"`
}

// PromotionRepository persists promotion codes in Firestore. Codes are
// stored uppercase; lookups normalise the same way.
type PromotionRepository struct {
	base     *pfirestore.BaseRepository[promotionDocument]
	provider *pfirestore.Provider
}

// NewPromotionRepository constructs a Firestore-backed promotion repository.
func NewPromotionRepository(provider *pfirestore.Provider) (*PromotionRepository, error) {
	if provider == nil {
		return nil, errors.New("promotion repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[promotionDocument](provider, promotionCollection, nil, nil)
	return &PromotionRepository{
		base:     base,
		provider: provider,
	}, nil
}

// Insert creates the promotion, failing on duplicate IDs.
func (r *PromotionRepository) Insert(ctx context.Context, promo domain.Promotion) error {
	if r == nil || r.base == nil {
		return errors.New("promotion repository not initialised")
	}
	id := strings.TrimSpace(promo.ID)
	if id == "" {
		return errors.New("promotion repository: promotion id is required")
	}
	ref, err := r.base.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	_, err = ref.Create(ctx, promotionToDocument(promo))
	return pfirestore.WrapError("promotions.insert", err)
}

// Update rewrites the promotion document.
func (r *PromotionRepository) Update(ctx context.Context, promo domain.Promotion) error {
	if r == nil || r.base == nil {
		return errors.New("promotion repository not initialised")
	}
	id := strings.TrimSpace(promo.ID)
	if id == "" {
		return errors.New("promotion repository: promotion id is required")
	}
	_, err := r.base.Set(ctx, id, promotionToDocument(promo))
	return err
}

// Delete removes the promotion document.
func (r *PromotionRepository) Delete(ctx context.Context, promotionID string) error {
	if r == nil || r.base == nil {
		return errors.New("promotion repository not initialised")
	}
	ref, err := r.base.DocumentRef(ctx, strings.TrimSpace(promotionID))
	if err != nil {
		return err
	}
	_, err = ref.Delete(ctx, firestore.Exists)
	return pfirestore.WrapError("promotions.delete", err)
}

// FindByID loads one promotion.
func (r *PromotionRepository) FindByID(ctx context.Context, promotionID string) (domain.Promotion, error) {
	if r == nil || r.base == nil {
		return domain.Promotion{}, errors.New("promotion repository not initialised")
	}
	doc, err := r.base.Get(ctx, strings.TrimSpace(promotionID))
	if err != nil {
		return domain.Promotion{}, err
	}
	return promotionFromDocument(doc.ID, doc.Data), nil
}

// FindByCode resolves a promotion by its code. Inside an ambient
// transaction the code query runs through the transaction so the
// usage counter read is part of the serialised read set.
func (r *PromotionRepository) FindByCode(ctx context.Context, code string) (domain.Promotion, error) {
	if r == nil || r.provider == nil {
		return domain.Promotion{}, errors.New("promotion repository not initialised")
	}
	normalised := strings.ToUpper(strings.TrimSpace(code))
	if normalised == "" {
		return domain.Promotion{}, errors.New("promotion repository: code is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Promotion{}, err
	}
	query := client.Collection(promotionCollection).Where("code", "==", normalised).Limit(1)

	var snaps []*firestore.DocumentSnapshot
	if tx, ok := pfirestore.TransactionFrom(ctx); ok {
		snaps, err = collectDocuments(tx.Documents(query))
	} else {
		snaps, err = collectDocuments(query.Documents(ctx))
	}
	if err != nil {
		return domain.Promotion{}, pfirestore.WrapError("promotions.find_by_code", err)
	}
	if len(snaps) == 0 {
		return domain.Promotion{}, pfirestore.WrapError("promotions.find_by_code", status.Error(codes.NotFound, fmt.Sprintf("promotion %s not found", normalised)))
	}

	var doc promotionDocument
	if err := snaps[0].DataTo(&doc); err != nil {
		return domain.Promotion{}, pfirestore.WrapError("promotions.decode", err)
	}
	return promotionFromDocument(snaps[0].Ref.ID, doc), nil
}

// RecordRedemption writes the post-redemption usage count. Inside an
// ambient transaction the write commits with the order; outside, it
// runs its own read-modify-write transaction.
func (r *PromotionRepository) RecordRedemption(ctx context.Context, promotionID string, usage int) error {
	if r == nil || r.base == nil {
		return errors.New("promotion repository not initialised")
	}
	id := strings.TrimSpace(promotionID)
	if id == "" {
		return errors.New("promotion repository: promotion id is required")
	}
	if usage < 0 {
		return errors.New("promotion repository: usage must not be negative")
	}

	ref, err := r.base.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	updates := []firestore.Update{
		{Path: "currentUsage", Value: usage},
		{Path: "updatedAt", Value: time.Now().UTC()},
	}

	if tx, ok := pfirestore.TransactionFrom(ctx); ok {
		return pfirestore.WrapError("promotions.redeem", tx.Update(ref, updates))
	}

	return r.provider.RunTransaction(ctx, func(txCtx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(ref); err != nil {
			return err
		}
		return tx.Update(ref, updates)
	})
}

// List returns promotions ordered by creation time, newest first.
func (r *PromotionRepository) List(ctx context.Context, filter repositories.PromotionListFilter) (repositories.PromotionPage, error) {
	if r == nil || r.provider == nil {
		return repositories.PromotionPage{}, errors.New("promotion repository not initialised")
	}

	limit := filter.PageSize
	if limit <= 0 || limit > 100 {
		limit = defaultPromotionPage
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return repositories.PromotionPage{}, err
	}

	q := client.Collection(promotionCollection).Query
	if filter.ActiveAt != nil {
		q = q.Where("endsAt", ">=", filter.ActiveAt.UTC())
	}
	q = q.OrderBy("createdAt", firestore.Desc).
		OrderBy(firestore.DocumentID, firestore.Desc).
		Limit(limit + 1)

	if token := strings.TrimSpace(filter.PageToken); token != "" {
		cursor, err := decodePromotionPageToken(token)
		if err != nil {
			return repositories.PromotionPage{}, err
		}
		q = q.StartAfter(cursor.CreatedAt, cursor.ID)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	var (
		page  repositories.PromotionPage
		last  promotionPageCursor
		count int
	)
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return repositories.PromotionPage{}, pfirestore.WrapError("promotions.list", err)
		}
		if count == limit {
			page.NextPageToken = encodePromotionPageToken(last)
			break
		}
		var doc promotionDocument
		if err := snap.DataTo(&doc); err != nil {
			return repositories.PromotionPage{}, pfirestore.WrapError("promotions.decode", err)
		}
		page.Promotions = append(page.Promotions, promotionFromDocument(snap.Ref.ID, doc))
		last = promotionPageCursor{CreatedAt: doc.CreatedAt, ID: snap.Ref.ID}
		count++
	}
	return page, nil
}

type promotionPageCursor struct {
	CreatedAt time.Time
	ID        string
}

func encodePromotionPageToken(cursor promotionPageCursor) string {
	token, err := pagination.EncodeToken(pagination.Cursor{
		StartAfter: []any{cursor.CreatedAt.UTC().Format(time.RFC3339Nano), cursor.ID},
	})
	if err != nil {
		return ""
	}
	return token
}

func decodePromotionPageToken(token string) (promotionPageCursor, error) {
	cursor, err := pagination.DecodeToken(token)
	if err != nil {
		return promotionPageCursor{}, fmt.Errorf("promotion repository: invalid page token: %w", err)
	}
	if len(cursor.StartAfter) != 2 {
		return promotionPageCursor{}, errors.New("promotion repository: invalid page token")
	}
	rawCreatedAt, okCreatedAt := cursor.StartAfter[0].(string)
	id, okID := cursor.StartAfter[1].(string)
	if !okCreatedAt || !okID {
		return promotionPageCursor{}, errors.New("promotion repository: invalid page token")
	}
	createdAt, err := time.Parse(time.RFC3339Nano, rawCreatedAt)
	if err != nil {
		return promotionPageCursor{}, fmt.Errorf("promotion repository: invalid page token: %w", err)
	}
	return promotionPageCursor{CreatedAt: createdAt, ID: id}, nil
}

func promotionToDocument(promo domain.Promotion) promotionDocument {
	return promotionDocument{
		Code:           strings.ToUpper(strings.TrimSpace(promo.Code)),
		Description:    strings.TrimSpace(promo.Description),
		DiscountType:   string(promo.DiscountType),
		DiscountValue:  promo.DiscountValue,
		StartsAt:       promo.StartsAt.UTC(),
		EndsAt:         promo.EndsAt.UTC(),
		MinOrderAmount: promo.MinOrderAmount,
		MaxUsage:       promo.MaxUsage,
		CurrentUsage:   promo.CurrentUsage,
		CreatedAt:      promo.CreatedAt.UTC(),
		UpdatedAt:      promo.UpdatedAt.UTC(),
	}
}

func promotionFromDocument(id string, doc promotionDocument) domain.Promotion {
	return domain.Promotion{
		ID:             id,
		Code:           doc.Code,
		Description:    doc.Description,
		DiscountType:   domain.DiscountType(doc.DiscountType),
		DiscountValue:  doc.DiscountValue,
		StartsAt:       doc.StartsAt,
		EndsAt:         doc.EndsAt,
		MinOrderAmount: doc.MinOrderAmount,
		MaxUsage:       doc.MaxUsage,
		CurrentUsage:   doc.CurrentUsage,
		CreatedAt:      doc.CreatedAt,
		UpdatedAt:      doc.UpdatedAt,
	}
}

func collectDocuments(iter *firestore.DocumentIterator) ([]*firestore.DocumentSnapshot, error) {
	defer iter.Stop()
	var snaps []*firestore.DocumentSnapshot
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return snaps, nil
		}
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
}

var _ repositories.PromotionRepository = (*PromotionRepository)(nil)
