package firestore

import (
	"context"
	"errors"
	"fmt"
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
	orderCollection  = "orders"
	defaultOrderPage = 20
	maxOrderPage     = 100
)

type orderItemDocument struct {
	SKU         string `firestore:"sku"`
	VariantID   string `firestore:"variantId"`
	ProductName string `firestore:"productName"`
	Quantity    int    `firestore:"quantity"`
	UnitPrice   int64  `firestore:"unitPrice"`
	LineTotal   int64  `firestore:"lineTotal"`
}

type orderAddressDocument struct {
	ID        string `firestore:"id"`
	Recipient string `firestore:"recipient"`
	Phone     string `firestore:"phone"`
	Line1     string `firestore:"line1"`
	Line2     string `firestore:"line2,omitempty"`
	Ward      string `firestore:"ward,omitempty"`
	District  string `firestore:"district,omitempty"`
	City      string `firestore:"city"`
}

type orderDocument struct {
	Number        string               `firestore:"number"`
	UserID        string               `firestore:"userId"`
	Items         []orderItemDocument  `firestore:"items"`
	Address       orderAddressDocument `firestore:"shippingAddress"`
	Subtotal      int64                `firestore:"subtotal"`
	Discount      int64                `firestore:"discount"`
	PromotionCode string               `firestore:"promotionCode,omitempty"`
	ShippingFee   int64                `firestore:"shippingFee"`
	Total         int64                `firestore:"total"`
	Status        string               `firestore:"status"`
	PaymentStatus string               `firestore:"paymentStatus"`
	PaymentMethod string               `firestore:"paymentMethod,omitempty"`
	Notes         string               `firestore:"notes,omitempty"`
	CreatedAt     time.Time            `firestore:"createdAt"`
	UpdatedAt     time.Time            `firestore:"updatedAt"`
	PaidAt        *time.Time           `firestore:"paidAt,omitempty"`
	ShippedAt     *time.Time           `firestore:"shippedAt,omitempty"`
	DeliveredAt   *time.Time           `firestore:"deliveredAt,omitempty"`
	CancelledAt   *time.Time           `firestore:"cancelledAt,omitempty"`
}

// OrderRepository persists order aggregates in Firestore. Orders are
// never deleted; lifecycle transitions rewrite the document inside
// the transaction that validated them.
type OrderRepository struct {
	base     *pfirestore.BaseRepository[orderDocument]
	provider *pfirestore.Provider
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[orderDocument](provider, orderCollection, nil, nil)
	return &OrderRepository{
		base:     base,
		provider: provider,
	}, nil
}

// Insert creates the order document, failing on duplicate IDs.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(order.ID)
	if id == "" {
		return errors.New("order repository: order id is required")
	}

	ref, err := r.base.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	doc := orderToDocument(order)

	if tx, ok := pfirestore.TransactionFrom(ctx); ok {
		return pfirestore.WrapError("orders.insert", tx.Create(ref, doc))
	}
	_, err = ref.Create(ctx, doc)
	return pfirestore.WrapError("orders.insert", err)
}

// Update rewrites the order document.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(order.ID)
	if id == "" {
		return errors.New("order repository: order id is required")
	}

	ref, err := r.base.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	doc := orderToDocument(order)

	if tx, ok := pfirestore.TransactionFrom(ctx); ok {
		return pfirestore.WrapError("orders.update", tx.Set(ref, doc))
	}
	_, err = ref.Set(ctx, doc)
	return pfirestore.WrapError("orders.update", err)
}

// FindByID loads one order.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}

	ref, err := r.base.DocumentRef(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}

	var snap *firestore.DocumentSnapshot
	if tx, ok := pfirestore.TransactionFrom(ctx); ok {
		snap, err = tx.Get(ref)
	} else {
		snap, err = ref.Get(ctx)
	}
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.get", err)
	}

	var doc orderDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.decode", err)
	}
	return orderFromDocument(snap.Ref.ID, doc), nil
}

// List returns orders newest first, optionally scoped to one user and
// one status.
func (r *OrderRepository) List(ctx context.Context, filter domain.OrderListFilter) (domain.OrderPage, error) {
	if r == nil || r.provider == nil {
		return domain.OrderPage{}, errors.New("order repository not initialised")
	}

	limit := filter.PageSize
	if limit <= 0 {
		limit = defaultOrderPage
	}
	if limit > maxOrderPage {
		limit = maxOrderPage
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.OrderPage{}, err
	}

	q := client.Collection(orderCollection).Query
	if uid := strings.TrimSpace(filter.UserID); uid != "" {
		q = q.Where("userId", "==", uid)
	}
	if filter.Status != nil {
		q = q.Where("status", "==", string(*filter.Status))
	}
	q = q.OrderBy("createdAt", firestore.Desc).
		OrderBy(firestore.DocumentID, firestore.Desc).
		Limit(limit + 1)

	if token := strings.TrimSpace(filter.PageToken); token != "" {
		cursor, err := decodeOrderPageToken(token)
		if err != nil {
			return domain.OrderPage{}, err
		}
		q = q.StartAfter(cursor.CreatedAt, cursor.ID)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	var (
		page  domain.OrderPage
		last  orderPageCursor
		count int
	)
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.OrderPage{}, pfirestore.WrapError("orders.list", err)
		}
		if count == limit {
			page.NextPageToken = encodeOrderPageToken(last)
			break
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.OrderPage{}, pfirestore.WrapError("orders.decode", err)
		}
		page.Orders = append(page.Orders, orderFromDocument(snap.Ref.ID, doc))
		last = orderPageCursor{CreatedAt: doc.CreatedAt, ID: snap.Ref.ID}
		count++
	}
	return page, nil
}

type orderPageCursor struct {
	CreatedAt time.Time
	ID        string
}

func encodeOrderPageToken(cursor orderPageCursor) string {
	token, err := pagination.EncodeToken(pagination.Cursor{
		StartAfter: []any{cursor.CreatedAt.UTC().Format(time.RFC3339Nano), cursor.ID},
	})
	if err != nil {
		return ""
	}
	return token
}

func decodeOrderPageToken(token string) (orderPageCursor, error) {
	cursor, err := pagination.DecodeToken(token)
	if err != nil {
		return orderPageCursor{}, fmt.Errorf("order repository: invalid page token: %w", err)
	}
	if len(cursor.StartAfter) != 2 {
		return orderPageCursor{}, errors.New("order repository: invalid page token")
	}
	rawCreatedAt, okCreatedAt := cursor.StartAfter[0].(string)
	id, okID := cursor.StartAfter[1].(string)
	if !okCreatedAt || !okID {
		return orderPageCursor{}, errors.New("order repository: invalid page token")
	}
	createdAt, err := time.Parse(time.RFC3339Nano, rawCreatedAt)
	if err != nil {
		return orderPageCursor{}, fmt.Errorf("order repository: invalid page token: %w", err)
	}
	return orderPageCursor{CreatedAt: createdAt, ID: id}, nil
}

func orderToDocument(order domain.Order) orderDocument {
	doc := orderDocument{
		Number:        strings.TrimSpace(order.Number),
		UserID:        strings.TrimSpace(order.UserID),
		Subtotal:      order.Subtotal,
		Discount:      order.Discount,
		PromotionCode: strings.TrimSpace(order.PromotionCode),
		ShippingFee:   order.ShippingFee,
		Total:         order.Total,
		Status:        string(order.Status),
		PaymentStatus: string(order.PaymentStatus),
		PaymentMethod: strings.TrimSpace(order.PaymentMethod),
		Notes:         order.Notes,
		CreatedAt:     order.CreatedAt.UTC(),
		UpdatedAt:     order.UpdatedAt.UTC(),
		PaidAt:        order.PaidAt,
		ShippedAt:     order.ShippedAt,
		DeliveredAt:   order.DeliveredAt,
		CancelledAt:   order.CancelledAt,
		Address: orderAddressDocument{
			ID:        order.ShippingAddress.ID,
			Recipient: order.ShippingAddress.Recipient,
			Phone:     order.ShippingAddress.Phone,
			Line1:     order.ShippingAddress.Line1,
			Line2:     order.ShippingAddress.Line2,
			Ward:      order.ShippingAddress.Ward,
			District:  order.ShippingAddress.District,
			City:      order.ShippingAddress.City,
		},
	}
	for _, item := range order.Items {
		doc.Items = append(doc.Items, orderItemDocument{
			SKU:         item.SKU,
			VariantID:   item.VariantID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			LineTotal:   item.LineTotal,
		})
	}
	return doc
}

func orderFromDocument(id string, doc orderDocument) domain.Order {
	order := domain.Order{
		ID:            id,
		Number:        doc.Number,
		UserID:        doc.UserID,
		Subtotal:      doc.Subtotal,
		Discount:      doc.Discount,
		PromotionCode: doc.PromotionCode,
		ShippingFee:   doc.ShippingFee,
		Total:         doc.Total,
		Status:        domain.OrderStatus(doc.Status),
		PaymentStatus: domain.PaymentStatus(doc.PaymentStatus),
		PaymentMethod: doc.PaymentMethod,
		Notes:         doc.Notes,
		CreatedAt:     doc.CreatedAt,
		UpdatedAt:     doc.UpdatedAt,
		PaidAt:        doc.PaidAt,
		ShippedAt:     doc.ShippedAt,
		DeliveredAt:   doc.DeliveredAt,
		CancelledAt:   doc.CancelledAt,
		ShippingAddress: domain.Address{
			ID:        doc.Address.ID,
			Recipient: doc.Address.Recipient,
			Phone:     doc.Address.Phone,
			Line1:     doc.Address.Line1,
			Line2:     doc.Address.Line2,
			Ward:      doc.Address.Ward,
			District:  doc.Address.District,
			City:      doc.Address.City,
		},
	}
	for _, item := range doc.Items {
		order.Items = append(order.Items, domain.OrderItem{
			SKU:         item.SKU,
			VariantID:   item.VariantID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			LineTotal:   item.LineTotal,
		})
	}
	return order
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)
