package firestore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	domain "github.com/gioia-jewelry/api/internal/domain"
	pfirestore "github.com/gioia-jewelry/api/internal/platform/firestore"
	"github.com/gioia-jewelry/api/internal/platform/pagination"
	"github.com/gioia-jewelry/api/internal/repositories"
)

const (
	stockCollection       = "stocks"
	defaultLowStockLimit  = 50
	lowStockDeltaFieldKey = "lowStockDelta"
)

// stockDocument is the Firestore shape of one SKU's stock counter.
// LowStockDelta is denormalised (quantity - threshold) because
// Firestore cannot compare two fields inside a query.
type stockDocument struct {
	SKU               string     `firestore:"sku"`
	VariantID         string     `firestore:"variantId"`
	Quantity          int        `firestore:"quantity"`
	LowStockThreshold int        `firestore:"lowStockThreshold"`
	LowStockDelta     int        `firestore:"lowStockDelta"`
	LastRestockedAt   *time.Time `firestore:"lastRestockedAt,omitempty"`
	UpdatedAt         time.Time  `firestore:"updatedAt"`
}

func (d *stockDocument) recalculate() {
	d.LowStockDelta = d.Quantity - d.LowStockThreshold
}

// InventoryRepository stores per-SKU stock counters in Firestore.
// Reads and writes go through the ambient transaction when one is
// present; Firestore's transactions then serialise competing
// checkouts touching the same SKU.
type InventoryRepository struct {
	base     *pfirestore.BaseRepository[stockDocument]
	provider *pfirestore.Provider
}

// NewInventoryRepository constructs a Firestore-backed inventory repository.
func NewInventoryRepository(provider *pfirestore.Provider) (*InventoryRepository, error) {
	if provider == nil {
		return nil, errors.New("inventory repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[stockDocument](provider, stockCollection, nil, nil)
	return &InventoryRepository{
		base:     base,
		provider: provider,
	}, nil
}

// GetStock loads one SKU's stock record.
func (r *InventoryRepository) GetStock(ctx context.Context, sku string) (domain.Stock, error) {
	stocks, err := r.GetStocks(ctx, []string{sku})
	if err != nil {
		return domain.Stock{}, err
	}
	if len(stocks) == 0 {
		return domain.Stock{}, &repositories.InventoryError{
			Op:      "stocks.get",
			Code:    repositories.InventoryErrorStockNotFound,
			SKU:     sku,
			Message: fmt.Sprintf("stock %s not found", sku),
		}
	}
	return stocks[0], nil
}

// GetStocks loads stock records for the given SKUs. SKUs are fetched
// in ascending order so concurrent transactions acquire documents in
// a canonical order.
func (r *InventoryRepository) GetStocks(ctx context.Context, skus []string) ([]domain.Stock, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("inventory repository not initialised")
	}

	ordered, err := normaliseSKUs(skus)
	if err != nil {
		return nil, err
	}
	if len(ordered) == 0 {
		return nil, nil
	}

	refs := make([]*firestore.DocumentRef, 0, len(ordered))
	for _, sku := range ordered {
		ref, err := r.base.DocumentRef(ctx, sku)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}

	var snaps []*firestore.DocumentSnapshot
	if tx, ok := pfirestore.TransactionFrom(ctx); ok {
		snaps, err = tx.GetAll(refs)
	} else {
		client, clientErr := r.provider.Client(ctx)
		if clientErr != nil {
			return nil, clientErr
		}
		snaps, err = client.GetAll(ctx, refs)
	}
	if err != nil {
		return nil, pfirestore.WrapError("stocks.get", err)
	}

	stocks := make([]domain.Stock, 0, len(snaps))
	for i, snap := range snaps {
		if snap == nil || !snap.Exists() {
			return nil, &repositories.InventoryError{
				Op:      "stocks.get",
				Code:    repositories.InventoryErrorStockNotFound,
				SKU:     ordered[i],
				Message: fmt.Sprintf("stock %s not found", ordered[i]),
			}
		}
		var doc stockDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, pfirestore.WrapError("stocks.decode", err)
		}
		stocks = append(stocks, stockFromDocument(snap.Ref.ID, doc))
	}
	return stocks, nil
}

// SetQuantities persists absolute quantities for the given SKUs.
// Negative quantities are rejected so the non-negativity invariant
// cannot be violated by a buggy caller. Outside an ambient
// transaction the writes run in their own transaction to stay
// read-modify-write safe.
func (r *InventoryRepository) SetQuantities(ctx context.Context, writes []repositories.StockWrite) error {
	if r == nil || r.base == nil {
		return errors.New("inventory repository not initialised")
	}
	if len(writes) == 0 {
		return nil
	}

	for _, w := range writes {
		if strings.TrimSpace(w.SKU) == "" {
			return errors.New("inventory repository: sku is required")
		}
		if w.Quantity < 0 {
			return &repositories.InventoryError{
				Op:      "stocks.set",
				Code:    repositories.InventoryErrorNegativeQuantity,
				SKU:     w.SKU,
				Message: fmt.Sprintf("stock %s would become negative", w.SKU),
			}
		}
	}

	if tx, ok := pfirestore.TransactionFrom(ctx); ok {
		return r.applyWrites(ctx, tx, writes)
	}

	return r.provider.RunTransaction(ctx, func(txCtx context.Context, tx *firestore.Transaction) error {
		// Reads must precede writes inside a Firestore transaction.
		skus := make([]string, 0, len(writes))
		for _, w := range writes {
			skus = append(skus, w.SKU)
		}
		if _, err := r.GetStocks(pfirestore.WithTransaction(txCtx, tx), skus); err != nil {
			return err
		}
		return r.applyWrites(txCtx, tx, writes)
	})
}

func (r *InventoryRepository) applyWrites(ctx context.Context, tx *firestore.Transaction, writes []repositories.StockWrite) error {
	now := time.Now().UTC()
	for _, w := range writes {
		ref, err := r.base.DocumentRef(ctx, strings.TrimSpace(w.SKU))
		if err != nil {
			return err
		}
		updates := []firestore.Update{
			{Path: "quantity", Value: w.Quantity},
			{Path: lowStockDeltaFieldKey, Value: w.Quantity - w.LowStockThreshold},
			{Path: "updatedAt", Value: now},
		}
		if err := tx.Update(ref, updates); err != nil {
			return pfirestore.WrapError("stocks.set", err)
		}
	}
	return nil
}

// UpsertStock seeds or replaces one SKU's stock record, keeping the
// denormalised low stock delta consistent. Used by catalog tooling
// and integration tests, not by checkout.
func (r *InventoryRepository) UpsertStock(ctx context.Context, stock domain.Stock) error {
	if r == nil || r.base == nil {
		return errors.New("inventory repository not initialised")
	}
	sku := strings.TrimSpace(stock.SKU)
	if sku == "" {
		return errors.New("inventory repository: sku is required")
	}
	doc := stockDocument{
		SKU:               sku,
		VariantID:         strings.TrimSpace(stock.VariantID),
		Quantity:          stock.Quantity,
		LowStockThreshold: stock.LowStockThreshold,
		LastRestockedAt:   stock.LastRestockedAt,
		UpdatedAt:         time.Now().UTC(),
	}
	doc.recalculate()
	_, err := r.base.Set(ctx, sku, doc)
	return err
}

// ListLowStock returns stock records at or below their threshold.
func (r *InventoryRepository) ListLowStock(ctx context.Context, query repositories.InventoryLowStockQuery) (repositories.StockPage, error) {
	if r == nil || r.provider == nil {
		return repositories.StockPage{}, errors.New("inventory repository not initialised")
	}

	limit := query.Limit
	if limit <= 0 || limit > 200 {
		limit = defaultLowStockLimit
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return repositories.StockPage{}, err
	}

	q := client.Collection(stockCollection).
		Where(lowStockDeltaFieldKey, "<=", 0).
		OrderBy(lowStockDeltaFieldKey, firestore.Asc).
		OrderBy(firestore.DocumentID, firestore.Asc).
		Limit(limit + 1)

	if token := strings.TrimSpace(query.PageToken); token != "" {
		cursor, err := decodeStockPageToken(token)
		if err != nil {
			return repositories.StockPage{}, err
		}
		q = q.StartAfter(cursor.Delta, cursor.SKU)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	var (
		page  repositories.StockPage
		last  stockPageCursor
		count int
	)
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return repositories.StockPage{}, pfirestore.WrapError("stocks.list_low", err)
		}
		if count == limit {
			page.NextPageToken = encodeStockPageToken(last)
			break
		}
		var doc stockDocument
		if err := snap.DataTo(&doc); err != nil {
			return repositories.StockPage{}, pfirestore.WrapError("stocks.decode", err)
		}
		page.Stocks = append(page.Stocks, stockFromDocument(snap.Ref.ID, doc))
		last = stockPageCursor{Delta: doc.LowStockDelta, SKU: snap.Ref.ID}
		count++
	}
	return page, nil
}

type stockPageCursor struct {
	Delta int
	SKU   string
}

func encodeStockPageToken(cursor stockPageCursor) string {
	token, err := pagination.EncodeToken(pagination.Cursor{
		StartAfter: []any{cursor.Delta, cursor.SKU},
	})
	if err != nil {
		return ""
	}
	return token
}

func decodeStockPageToken(token string) (stockPageCursor, error) {
	cursor, err := pagination.DecodeToken(token)
	if err != nil {
		return stockPageCursor{}, fmt.Errorf("inventory repository: invalid page token: %w", err)
	}
	if len(cursor.StartAfter) != 2 {
		return stockPageCursor{}, errors.New("inventory repository: invalid page token")
	}
	rawDelta, okDelta := cursor.StartAfter[0].(float64)
	sku, okSKU := cursor.StartAfter[1].(string)
	if !okDelta || !okSKU {
		return stockPageCursor{}, errors.New("inventory repository: invalid page token")
	}
	return stockPageCursor{Delta: int(rawDelta), SKU: sku}, nil
}

func normaliseSKUs(skus []string) ([]string, error) {
	seen := make(map[string]struct{}, len(skus))
	out := make([]string, 0, len(skus))
	for _, sku := range skus {
		trimmed := strings.TrimSpace(sku)
		if trimmed == "" {
			return nil, errors.New("inventory repository: sku is required")
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	sort.Strings(out)
	return out, nil
}

func stockFromDocument(id string, doc stockDocument) domain.Stock {
	sku := doc.SKU
	if strings.TrimSpace(sku) == "" {
		sku = id
	}
	return domain.Stock{
		SKU:               sku,
		VariantID:         doc.VariantID,
		Quantity:          doc.Quantity,
		LowStockThreshold: doc.LowStockThreshold,
		LastRestockedAt:   doc.LastRestockedAt,
		UpdatedAt:         doc.UpdatedAt,
	}
}

var _ repositories.InventoryRepository = (*InventoryRepository)(nil)
