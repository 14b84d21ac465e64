package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	domain "github.com/gioia-jewelry/api/internal/domain"
	"github.com/gioia-jewelry/api/internal/repositories"
)

const orderNumberCounterID = "orders"

var (
	// ErrFulfillmentInvalidInput indicates the caller supplied invalid checkout parameters.
	ErrFulfillmentInvalidInput = errors.New("fulfillment: invalid input")
	// ErrFulfillmentEmptyCart indicates the cart has no purchasable lines.
	ErrFulfillmentEmptyCart = errors.New("fulfillment: cart is empty")
	// ErrFulfillmentAddressNotFound indicates the shipping address does not exist.
	ErrFulfillmentAddressNotFound = errors.New("fulfillment: address not found")
	// ErrFulfillmentAddressForbidden indicates the shipping address belongs to another user.
	ErrFulfillmentAddressForbidden = errors.New("fulfillment: address belongs to another user")
	// ErrFulfillmentVariantNotFound indicates a cart line references a SKU missing from the catalog.
	ErrFulfillmentVariantNotFound = errors.New("fulfillment: variant not found")
	// ErrFulfillmentUnavailable indicates checkout dependencies are currently unavailable.
	ErrFulfillmentUnavailable = errors.New("fulfillment: unavailable")
)

// paymentMethods lists the accepted values of CreateOrderCommand.PaymentMethod.
var paymentMethods = map[string]struct{}{
	"cod":   {},
	"vnpay": {},
	"card":  {},
}

// notesPolicy strips all markup from free-text order notes.
var notesPolicy = bluemonday.StrictPolicy()

// fulfillmentService converts a cart into a persisted order. The cart
// read, stock deduction, promotion redemption, order insert, and cart
// clear share one transaction, so checkout either fully commits or
// leaves no trace.
type fulfillmentService struct {
	carts      repositories.CartRepository
	variants   repositories.VariantRepository
	addresses  repositories.AddressRepository
	promotions repositories.PromotionRepository
	orders     repositories.OrderRepository
	counters   repositories.CounterRepository
	inventory  InventoryService
	pricing    PricingEngine
	unitOfWork repositories.UnitOfWork
	events     OrderEventPublisher
	idGen      func() string
	clock      func() time.Time
	logger     func(context.Context, string, map[string]any)
}

// FulfillmentServiceDeps wires the fulfillment service dependencies.
type FulfillmentServiceDeps struct {
	Carts       repositories.CartRepository
	Variants    repositories.VariantRepository
	Addresses   repositories.AddressRepository
	Promotions  repositories.PromotionRepository
	Orders      repositories.OrderRepository
	Counters    repositories.CounterRepository
	Inventory   InventoryService
	Pricing     PricingEngine
	UnitOfWork  repositories.UnitOfWork
	Events      OrderEventPublisher
	IDGenerator func() string
	Clock       func() time.Time
	Logger      func(context.Context, string, map[string]any)
}

// NewFulfillmentService validates dependencies and constructs the service.
func NewFulfillmentService(deps FulfillmentServiceDeps) (FulfillmentService, error) {
	if deps.Carts == nil {
		return nil, errors.New("fulfillment service: cart repository is required")
	}
	if deps.Variants == nil {
		return nil, errors.New("fulfillment service: variant repository is required")
	}
	if deps.Addresses == nil {
		return nil, errors.New("fulfillment service: address repository is required")
	}
	if deps.Promotions == nil {
		return nil, errors.New("fulfillment service: promotion repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("fulfillment service: order repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("fulfillment service: counter repository is required")
	}
	if deps.Inventory == nil {
		return nil, errors.New("fulfillment service: inventory service is required")
	}
	if deps.Pricing == nil {
		return nil, errors.New("fulfillment service: pricing engine is required")
	}
	if deps.IDGenerator == nil {
		return nil, errors.New("fulfillment service: id generator is required")
	}
	uow := deps.UnitOfWork
	if uow == nil {
		uow = noopUnitOfWork{}
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &fulfillmentService{
		carts:      deps.Carts,
		variants:   deps.Variants,
		addresses:  deps.Addresses,
		promotions: deps.Promotions,
		orders:     deps.Orders,
		counters:   deps.Counters,
		inventory:  deps.Inventory,
		pricing:    deps.Pricing,
		unitOfWork: uow,
		events:     deps.Events,
		idGen:      deps.IDGenerator,
		clock:      func() time.Time { return clock().UTC() },
		logger:     logger,
	}, nil
}

// CreateOrder turns the caller's cart into a pending order. The unit
// price of every line is frozen from the catalog at this moment, stock
// is deducted, the promotion redemption is recorded, and the cart is
// cleared, all inside one transaction. Any failure aborts the whole
// checkout and leaves stock, promotion usage, and the cart untouched.
func (s *fulfillmentService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return Order{}, fmt.Errorf("%w: user id is required", ErrFulfillmentInvalidInput)
	}
	addressID := strings.TrimSpace(cmd.AddressID)
	if addressID == "" {
		return Order{}, fmt.Errorf("%w: address id is required", ErrFulfillmentInvalidInput)
	}
	method := strings.ToLower(strings.TrimSpace(cmd.PaymentMethod))
	if _, ok := paymentMethods[method]; !ok {
		return Order{}, fmt.Errorf("%w: unsupported payment method %q", ErrFulfillmentInvalidInput, cmd.PaymentMethod)
	}
	notes := strings.TrimSpace(notesPolicy.Sanitize(cmd.Notes))

	// The address is immutable for the duration of checkout and is
	// snapshotted by value, so it is read outside the transaction.
	address, err := s.addresses.Get(ctx, userID, addressID)
	if err != nil {
		return Order{}, s.translateAddressError(err)
	}
	if address.UserID != userID {
		return Order{}, ErrFulfillmentAddressForbidden
	}

	// Order numbers come from a transactional counter. Allocation runs
	// before the checkout transaction; an aborted checkout leaves a gap
	// in the sequence, which is acceptable for a display number.
	seq, err := s.counters.Next(ctx, orderNumberCounterID, 1)
	if err != nil {
		return Order{}, fmt.Errorf("%w: order number allocation: %v", ErrFulfillmentUnavailable, err)
	}
	number := fmt.Sprintf("ORD-%06d", seq)

	var result Order
	err = s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		cart, err := s.carts.GetCart(txCtx, userID)
		if err != nil {
			return s.translateRepoError(err)
		}
		if cart.IsEmpty() {
			return ErrFulfillmentEmptyCart
		}

		skus := make([]string, 0, len(cart.Items))
		for _, item := range cart.Items {
			skus = append(skus, item.SKU)
		}
		variants, err := s.variants.FindBySKUs(txCtx, skus)
		if err != nil {
			return s.translateVariantError(err)
		}
		variantBySKU := make(map[string]ProductVariant, len(variants))
		for _, variant := range variants {
			variantBySKU[variant.SKU] = variant
		}

		now := s.clock()
		lines := make([]PricingLine, 0, len(cart.Items))
		deductions := make([]InventoryLine, 0, len(cart.Items))
		for _, item := range cart.Items {
			variant, ok := variantBySKU[item.SKU]
			if !ok {
				return fmt.Errorf("%w: %s", ErrFulfillmentVariantNotFound, item.SKU)
			}
			if item.Quantity <= 0 {
				return fmt.Errorf("%w: quantity for %s must be positive", ErrFulfillmentInvalidInput, item.SKU)
			}
			lines = append(lines, PricingLine{Variant: variant, Quantity: item.Quantity})
			deductions = append(deductions, InventoryLine{SKU: item.SKU, Quantity: item.Quantity})
		}

		priced, err := s.pricing.PriceCart(txCtx, PriceCartCommand{
			Lines:         lines,
			PromotionCode: cmd.PromotionCode,
			Now:           now,
		})
		if err != nil {
			return err
		}

		if _, err := s.inventory.Deduct(txCtx, deductions); err != nil {
			return err
		}

		if priced.Promotion != nil {
			usage := priced.Promotion.CurrentUsage + 1
			if err := s.promotions.RecordRedemption(txCtx, priced.Promotion.ID, usage); err != nil {
				return s.translateRepoError(err)
			}
		}

		order := s.buildOrder(cmd, cart, variantBySKU, priced.Breakdown, address, number, notes, method, now)
		if err := s.orders.Insert(txCtx, order); err != nil {
			return s.translateRepoError(err)
		}

		if _, err := s.carts.ReplaceItems(txCtx, userID, nil); err != nil {
			return s.translateRepoError(err)
		}

		result = order
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.logger(ctx, "order_created", map[string]any{
		"order_id":     result.ID,
		"order_number": result.Number,
		"user_id":      result.UserID,
		"total":        result.Total,
	})
	s.publishCreated(ctx, result)
	return result, nil
}

func (s *fulfillmentService) buildOrder(cmd CreateOrderCommand, cart Cart, variants map[string]ProductVariant, breakdown PricingBreakdown, address Address, number, notes, method string, now time.Time) Order {
	items := make([]OrderItem, 0, len(breakdown.Items))
	for _, line := range breakdown.Items {
		variant := variants[line.SKU]
		items = append(items, OrderItem{
			SKU:         line.SKU,
			VariantID:   variant.ID,
			ProductName: variant.Name,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			LineTotal:   line.LineTotal,
		})
	}
	return Order{
		ID:              s.idGen(),
		Number:          number,
		UserID:          cart.UserID,
		Items:           items,
		ShippingAddress: address,
		Subtotal:        breakdown.Subtotal,
		Discount:        breakdown.Discount,
		PromotionCode:   breakdown.PromotionCode,
		ShippingFee:     breakdown.ShippingFee,
		Total:           breakdown.Total,
		Status:          domain.OrderStatusPending,
		PaymentStatus:   domain.PaymentStatusUnpaid,
		PaymentMethod:   method,
		Notes:           notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func (s *fulfillmentService) publishCreated(ctx context.Context, order Order) {
	if s.events == nil {
		return
	}
	event := OrderEvent{
		Name:       "order.created",
		OrderID:    order.ID,
		UserID:     order.UserID,
		Status:     string(order.Status),
		Total:      order.Total,
		OccurredAt: s.clock(),
	}
	if _, err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order_event_publish_failed", map[string]any{
			"order_id": order.ID,
			"event":    event.Name,
			"error":    err.Error(),
		})
	}
}

func (s *fulfillmentService) translateAddressError(err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return ErrFulfillmentAddressNotFound
	}
	return s.translateRepoError(err)
}

func (s *fulfillmentService) translateVariantError(err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return fmt.Errorf("%w: %v", ErrFulfillmentVariantNotFound, err)
	}
	return s.translateRepoError(err)
}

func (s *fulfillmentService) translateRepoError(err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsUnavailable() {
		return fmt.Errorf("%w: %v", ErrFulfillmentUnavailable, err)
	}
	return err
}
