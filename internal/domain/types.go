package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// ProductVariant is a concrete purchasable SKU of a catalog product,
// distinguished by material, gemstone, and size. Prices are stored in
// VND, which has no minor unit, so all amounts are plain int64 dong.
type ProductVariant struct {
	ID            string
	ProductID     string
	SKU           string
	Name          string
	Material      string
	Gemstone      string
	Size          string
	Color         string
	BasePrice     int64
	DiscountPrice *int64
	PriceModifier int64
	ImageURL      string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// UnitPrice returns the price frozen into an order line at purchase
// time: the discount price when present and positive, otherwise the
// base price, plus the variant modifier.
func (v ProductVariant) UnitPrice() int64 {
	price := v.BasePrice
	if v.DiscountPrice != nil && *v.DiscountPrice > 0 {
		price = *v.DiscountPrice
	}
	return price + v.PriceModifier
}

// Stock is the mutable inventory record owned by exactly one variant.
type Stock struct {
	SKU               string
	VariantID         string
	Quantity          int
	LowStockThreshold int
	LastRestockedAt   *time.Time
	UpdatedAt         time.Time
}

// CartItem is a single line of a customer's cart.
type CartItem struct {
	SKU       string
	VariantID string
	Quantity  int
	AddedAt   time.Time
}

// Cart is owned 1:1 by a user and holds an ordered collection of
// items. Cleared atomically when an order is created from it.
type Cart struct {
	UserID    string
	Items     []CartItem
	UpdatedAt time.Time
}

// IsEmpty reports whether the cart has no purchasable lines.
func (c Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// Address is a customer shipping address. Orders snapshot it by value
// so later edits never rewrite order history.
type Address struct {
	ID        string
	UserID    string
	Recipient string
	Phone     string
	Line1     string
	Line2     string
	Ward      string
	District  string
	City      string
	IsDefault bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// OrderStatus enumerates the fulfillment states of an order.
type OrderStatus string

const (
	// OrderStatusPending is the initial state set at creation.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusProcessing means payment was confirmed and the order
	// is being prepared.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped means the parcel was handed to the carrier.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered is terminal.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled is terminal and returns stock to inventory.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// PaymentStatus tracks the payment axis independently of fulfillment.
type PaymentStatus string

const (
	// PaymentStatusUnpaid is the initial payment state.
	PaymentStatusUnpaid PaymentStatus = "unpaid"
	// PaymentStatusPaid is set exactly once by a verified gateway
	// callback.
	PaymentStatusPaid PaymentStatus = "paid"
	// PaymentStatusFailed records a gateway-reported failure.
	PaymentStatusFailed PaymentStatus = "failed"
)

// OrderItem is one line of an order with the price frozen at purchase
// time, decoupled from later catalog changes.
type OrderItem struct {
	SKU         string
	VariantID   string
	ProductName string
	Quantity    int
	UnitPrice   int64
	LineTotal   int64
}

// Order is the aggregate root of fulfillment. Created once in state
// pending; mutated afterwards only through lifecycle transitions.
type Order struct {
	ID              string
	Number          string
	UserID          string
	Items           []OrderItem
	ShippingAddress Address
	Subtotal        int64
	Discount        int64
	PromotionCode   string
	ShippingFee     int64
	Total           int64
	Status          OrderStatus
	PaymentStatus   PaymentStatus
	PaymentMethod   string
	Notes           string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	PaidAt          *time.Time
	ShippedAt       *time.Time
	DeliveredAt     *time.Time
	CancelledAt     *time.Time
}

// DiscountType selects how a promotion's value is interpreted.
type DiscountType string

const (
	// DiscountTypePercentage discounts a percentage of the subtotal.
	DiscountTypePercentage DiscountType = "percentage"
	// DiscountTypeFixed discounts a flat amount.
	DiscountTypeFixed DiscountType = "fixed"
)

// Promotion is a discount code with a validity window and usage cap.
// CurrentUsage is a shared counter incremented transactionally with
// the order that redeems it.
type Promotion struct {
	ID             string
	Code           string
	Description    string
	DiscountType   DiscountType
	DiscountValue  int64
	StartsAt       time.Time
	EndsAt         time.Time
	MinOrderAmount int64
	MaxUsage       int
	CurrentUsage   int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// PaymentAttempt records one redirect to an external gateway for an
// order, keyed by the gateway transaction reference.
type PaymentAttempt struct {
	ID        string
	OrderID   string
	Provider  string
	TxnRef    string
	Amount    int64
	BankCode  string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// User is a storefront customer account resolved by the OTP login
// flow.
type User struct {
	ID          string
	Email       string
	DisplayName string
	Role        string
	CreatedAt   time.Time
	LastLoginAt *time.Time
}

// OrderListFilter narrows order listings.
type OrderListFilter struct {
	UserID string
	Status *OrderStatus
	Pagination
}

// OrderPage is one page of an order listing.
type OrderPage struct {
	Orders        []Order
	NextPageToken string
}
