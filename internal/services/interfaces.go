package services

import (
	"context"
	"net/url"
	"time"

	domain "github.com/gioia-jewelry/api/internal/domain"
	"github.com/gioia-jewelry/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination           = domain.Pagination
	Cart                 = domain.Cart
	CartItem             = domain.CartItem
	ProductVariant       = domain.ProductVariant
	Stock                = domain.Stock
	Address              = domain.Address
	Order                = domain.Order
	OrderItem            = domain.OrderItem
	OrderStatus          = domain.OrderStatus
	PaymentStatus        = domain.PaymentStatus
	OrderListFilter      = domain.OrderListFilter
	OrderPage            = domain.OrderPage
	Promotion            = domain.Promotion
	PricingBreakdown     = domain.PricingBreakdown
	ItemPricingBreakdown = domain.ItemPricingBreakdown
	PaymentAttempt       = domain.PaymentAttempt
	User                 = domain.User
)

// CartService manages mutable cart state. Mutation is last-writer-wins
// because only the owning user edits their own cart.
type CartService interface {
	GetCart(ctx context.Context, userID string) (Cart, error)
	AddItem(ctx context.Context, cmd UpsertCartItemCommand) (Cart, error)
	UpdateItem(ctx context.Context, cmd UpsertCartItemCommand) (Cart, error)
	RemoveItem(ctx context.Context, userID, sku string) (Cart, error)
}

// UpsertCartItemCommand adds or updates one cart line.
type UpsertCartItemCommand struct {
	UserID   string
	SKU      string
	Quantity int
}

// InventoryService owns the per-SKU stock counters. Deduct and
// Restock are expected to run inside the caller's unit of work so the
// quantity changes commit together with the order mutation that
// caused them.
type InventoryService interface {
	Deduct(ctx context.Context, lines []InventoryLine) ([]Stock, error)
	Restock(ctx context.Context, lines []InventoryLine) error
	GetStock(ctx context.Context, sku string) (Stock, error)
	ListLowStock(ctx context.Context, query LowStockQuery) (LowStockPage, error)
}

// InventoryLine names one SKU and a positive quantity.
type InventoryLine struct {
	SKU      string
	Quantity int
}

// LowStockQuery pages through stock records at or below threshold.
type LowStockQuery struct {
	Limit     int
	PageToken string
}

// LowStockPage is one page of low stock records.
type LowStockPage struct {
	Stocks        []Stock
	NextPageToken string
}

// PricingEngine freezes unit prices and computes cart totals,
// including promotion validation.
type PricingEngine interface {
	PriceCart(ctx context.Context, cmd PriceCartCommand) (PricingResult, error)
}

// PriceCartCommand carries the inputs needed to price a cart.
type PriceCartCommand struct {
	Lines         []PricingLine
	PromotionCode string
	Now           time.Time
}

// PricingLine pairs a variant with the requested quantity.
type PricingLine struct {
	Variant  ProductVariant
	Quantity int
}

// PricingResult is the priced cart plus the promotion that produced
// the discount, when one was applied.
type PricingResult struct {
	Breakdown PricingBreakdown
	Promotion *Promotion
}

// PromotionService validates promotion codes and exposes the admin
// CRUD surface.
type PromotionService interface {
	Validate(ctx context.Context, code string, subtotal int64, now time.Time) (Promotion, error)
	Create(ctx context.Context, cmd PromotionCommand) (Promotion, error)
	Update(ctx context.Context, promotionID string, cmd PromotionCommand) (Promotion, error)
	Delete(ctx context.Context, promotionID string) error
	Get(ctx context.Context, promotionID string) (Promotion, error)
	List(ctx context.Context, filter PromotionListFilter) (PromotionPage, error)
}

// PromotionCommand carries the writable promotion fields.
type PromotionCommand struct {
	Code           string
	Description    string
	DiscountType   domain.DiscountType
	DiscountValue  int64
	StartsAt       time.Time
	EndsAt         time.Time
	MinOrderAmount int64
	MaxUsage       int
}

// PromotionListFilter narrows promotion listings.
type PromotionListFilter = repositories.PromotionListFilter

// PromotionPage is one page of promotions.
type PromotionPage = repositories.PromotionPage

// OrderService governs the order state machine after creation and the
// read surface for customers and admins.
type OrderService interface {
	Get(ctx context.Context, cmd GetOrderCommand) (Order, error)
	List(ctx context.Context, filter OrderListFilter) (OrderPage, error)
	TransitionStatus(ctx context.Context, cmd TransitionOrderCommand) (Order, error)
	MarkPaid(ctx context.Context, orderID string, paidAt time.Time) (Order, error)
	MarkPaymentFailed(ctx context.Context, orderID string) (Order, error)
}

// GetOrderCommand loads one order, optionally enforcing ownership.
type GetOrderCommand struct {
	OrderID string
	UserID  string
}

// TransitionOrderCommand moves an order to a new status.
type TransitionOrderCommand struct {
	OrderID        string
	NextStatus     OrderStatus
	ExpectedStatus *OrderStatus
	Actor          string
}

// FulfillmentService converts a cart into a persisted, priced,
// stock-deducted order in one atomic transaction.
type FulfillmentService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error)
}

// CreateOrderCommand carries the checkout inputs. UserID comes from
// the authenticated caller, never from the request body.
type CreateOrderCommand struct {
	UserID        string
	AddressID     string
	PaymentMethod string
	Notes         string
	PromotionCode string
}

// PaymentService builds signed gateway redirects and reconciles
// gateway callbacks with the order lifecycle.
type PaymentService interface {
	CreatePayment(ctx context.Context, cmd CreatePaymentCommand) (PaymentRedirect, error)
	HandleVNPayReturn(ctx context.Context, params url.Values) (CallbackOutcome, error)
}

// CreatePaymentCommand describes one gateway redirect request.
type CreatePaymentCommand struct {
	OrderID  string
	UserID   string
	ClientIP string
	BankCode string
	Locale   string
	Method   string
}

// PaymentRedirect is the signed URL the client is sent to.
type PaymentRedirect struct {
	RedirectURL string
	Provider    string
	TxnRef      string
	ExpiresAt   time.Time
}

// CallbackStatus classifies a processed gateway callback.
type CallbackStatus string

const (
	// CallbackSuccess means the payment was verified and applied.
	CallbackSuccess CallbackStatus = "success"
	// CallbackAlreadyConfirmed means a verified callback was replayed
	// after the order left pending; nothing changed.
	CallbackAlreadyConfirmed CallbackStatus = "already_confirmed"
	// CallbackFailed means the gateway reported a non-success code.
	CallbackFailed CallbackStatus = "failed"
	// CallbackInvalid means the signature did not verify; no side
	// effect was applied.
	CallbackInvalid CallbackStatus = "invalid"
)

// CallbackOutcome reports what a gateway callback did.
type CallbackOutcome struct {
	Status       CallbackStatus
	OrderID      string
	ResponseCode string
}

// LoginService implements the OTP login flow.
type LoginService interface {
	RequestOTP(ctx context.Context, email string) error
	VerifyOTP(ctx context.Context, email, code string) (Session, error)
}

// Session is an authenticated customer session.
type Session struct {
	Token     string
	ExpiresAt time.Time
	User      User
}

// OrderEvent is published after order lifecycle changes commit.
type OrderEvent struct {
	Name       string    `json:"event"`
	OrderID    string    `json:"orderId"`
	UserID     string    `json:"userId"`
	Status     string    `json:"status"`
	Total      int64     `json:"total,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// OrderEventPublisher delivers order events to downstream consumers.
// Publishing is best effort; failures are logged, not surfaced.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) (string, error)
}
