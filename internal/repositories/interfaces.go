package repositories

import (
	"context"
	"time"

	domain "github.com/gioia-jewelry/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Carts() CartRepository
	Variants() VariantRepository
	Inventory() InventoryRepository
	Orders() OrderRepository
	Promotions() PromotionRepository
	Addresses() AddressRepository
	Payments() PaymentRepository
	Users() UserRepository
	Counters() CounterRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork groups repository operations in a transactional boundary.
// Repository methods invoked inside the callback observe and mutate
// state through the same transaction; the whole callback commits or
// aborts as a unit.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// CartRepository owns cart persistence. Cart mutation is last-writer-wins;
// only the owning user mutates their own cart.
type CartRepository interface {
	GetCart(ctx context.Context, userID string) (domain.Cart, error)
	UpsertCart(ctx context.Context, cart domain.Cart) (domain.Cart, error)
	ReplaceItems(ctx context.Context, userID string, items []domain.CartItem) (domain.Cart, error)
}

// VariantRepository reads catalog variants. The catalog itself is
// maintained elsewhere; fulfillment only needs lookups.
type VariantRepository interface {
	FindBySKU(ctx context.Context, sku string) (domain.ProductVariant, error)
	FindBySKUs(ctx context.Context, skus []string) ([]domain.ProductVariant, error)
}

// StockWrite carries the absolute quantity to persist for one SKU.
// The threshold is echoed back from the read so denormalised low
// stock markers stay consistent.
type StockWrite struct {
	SKU               string
	Quantity          int
	LowStockThreshold int
}

// InventoryLowStockQuery filters the low stock listing.
type InventoryLowStockQuery struct {
	Limit     int
	PageToken string
}

// StockPage is one page of stock records.
type StockPage struct {
	Stocks        []domain.Stock
	NextPageToken string
}

// InventoryRepository manages per-SKU stock counters. GetStocks and
// SetQuantities participate in an ambient transaction when one is
// present, which is how order creation serializes competing writers
// on the same SKU.
type InventoryRepository interface {
	GetStock(ctx context.Context, sku string) (domain.Stock, error)
	GetStocks(ctx context.Context, skus []string) ([]domain.Stock, error)
	SetQuantities(ctx context.Context, writes []StockWrite) error
	ListLowStock(ctx context.Context, query InventoryLowStockQuery) (StockPage, error)
}

// OrderRepository persists order aggregates. Orders are never deleted.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, filter domain.OrderListFilter) (domain.OrderPage, error)
}

// PromotionListFilter narrows promotion listings.
type PromotionListFilter struct {
	ActiveAt  *time.Time
	PageSize  int
	PageToken string
}

// PromotionPage is one page of promotions.
type PromotionPage struct {
	Promotions    []domain.Promotion
	NextPageToken string
}

// PromotionRepository persists promotion codes and their shared usage
// counters. RecordRedemption writes the post-redemption usage count
// and participates in an ambient transaction so over-redemption
// cannot survive a concurrent checkout.
type PromotionRepository interface {
	Insert(ctx context.Context, promo domain.Promotion) error
	Update(ctx context.Context, promo domain.Promotion) error
	Delete(ctx context.Context, promotionID string) error
	FindByID(ctx context.Context, promotionID string) (domain.Promotion, error)
	FindByCode(ctx context.Context, code string) (domain.Promotion, error)
	RecordRedemption(ctx context.Context, promotionID string, usage int) error
	List(ctx context.Context, filter PromotionListFilter) (PromotionPage, error)
}

// AddressRepository stores customer shipping addresses scoped by user.
type AddressRepository interface {
	Get(ctx context.Context, userID, addressID string) (domain.Address, error)
	List(ctx context.Context, userID string) ([]domain.Address, error)
	Upsert(ctx context.Context, address domain.Address) (domain.Address, error)
	Delete(ctx context.Context, userID, addressID string) error
}

// PaymentRepository records gateway payment attempts keyed by the
// per-request transaction reference.
type PaymentRepository interface {
	InsertAttempt(ctx context.Context, attempt domain.PaymentAttempt) error
	FindAttemptByTxnRef(ctx context.Context, txnRef string) (domain.PaymentAttempt, error)
	ListAttemptsByOrder(ctx context.Context, orderID string) ([]domain.PaymentAttempt, error)
}

// UserRepository resolves customer accounts for the login flow.
type UserRepository interface {
	FindByEmail(ctx context.Context, email string) (domain.User, error)
	EnsureByEmail(ctx context.Context, email string, now time.Time) (domain.User, error)
	RecordLogin(ctx context.Context, userID string, at time.Time) error
}

// CounterConfig tunes sequence allocation.
type CounterConfig struct {
	Step         int64
	MaxValue     *int64
	InitialValue *int64
}

// CounterRepository allocates monotonic sequence numbers, used for
// human-facing order numbers.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
	Configure(ctx context.Context, counterID string, cfg CounterConfig) error
}

// HealthRepository reports backing-store connectivity for readiness
// probes.
type HealthRepository interface {
	Check(ctx context.Context) error
}
