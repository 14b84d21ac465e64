package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/gioia-jewelry/api/internal/domain"
	"github.com/gioia-jewelry/api/internal/repositories"
)

var (
	// ErrOrderInvalidInput signals malformed command data.
	ErrOrderInvalidInput = errors.New("order service: invalid input")
	// ErrOrderNotFound indicates the order does not exist.
	ErrOrderNotFound = errors.New("order service: order not found")
	// ErrOrderForbidden indicates the order belongs to a different user.
	ErrOrderForbidden = errors.New("order service: order belongs to another user")
	// ErrOrderInvalidTransition indicates the requested status change is not legal.
	ErrOrderInvalidTransition = errors.New("order service: invalid status transition")
	// ErrOrderStatusConflict indicates the order moved away from the expected status.
	ErrOrderStatusConflict = errors.New("order service: order status changed concurrently")
	// ErrOrderAlreadyConfirmed indicates a payment confirmation replay; the
	// order already left pending and nothing was changed.
	ErrOrderAlreadyConfirmed = errors.New("order service: order already confirmed")
)

// orderStateTransitions lists the legal next statuses per current
// status. Delivered and cancelled are terminal; cancellation is only
// reachable while the order has not shipped.
var orderStateTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPending:    {domain.OrderStatusProcessing, domain.OrderStatusShipped, domain.OrderStatusDelivered, domain.OrderStatusCancelled},
	domain.OrderStatusProcessing: {domain.OrderStatusPending, domain.OrderStatusShipped, domain.OrderStatusDelivered, domain.OrderStatusCancelled},
	domain.OrderStatusShipped:    {domain.OrderStatusPending, domain.OrderStatusProcessing, domain.OrderStatusDelivered},
	domain.OrderStatusDelivered:  {},
	domain.OrderStatusCancelled:  {},
}

func canTransition(from, to domain.OrderStatus) bool {
	for _, next := range orderStateTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// orderService governs the order state machine after creation,
// including the compensating restock on cancellation.
type orderService struct {
	orders     repositories.OrderRepository
	inventory  InventoryService
	unitOfWork repositories.UnitOfWork
	events     OrderEventPublisher
	clock      func() time.Time
	logger     func(context.Context, string, map[string]any)
}

// OrderServiceDeps wires the order service dependencies.
type OrderServiceDeps struct {
	Orders     repositories.OrderRepository
	Inventory  InventoryService
	UnitOfWork repositories.UnitOfWork
	Events     OrderEventPublisher
	Clock      func() time.Time
	Logger     func(context.Context, string, map[string]any)
}

// NewOrderService validates dependencies and constructs the service.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: orders repository is required")
	}
	if deps.Inventory == nil {
		return nil, errors.New("order service: inventory service is required")
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
	return &orderService{
		orders:     deps.Orders,
		inventory:  deps.Inventory,
		unitOfWork: uow,
		events:     deps.Events,
		clock:      func() time.Time { return clock().UTC() },
		logger:     logger,
	}, nil
}

// Get loads one order. When a user ID is supplied, an order owned by a
// different user is rejected as forbidden.
func (s *orderService) Get(ctx context.Context, cmd GetOrderCommand) (Order, error) {
	id := strings.TrimSpace(cmd.OrderID)
	if id == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return Order{}, s.translateError(err)
	}
	if uid := strings.TrimSpace(cmd.UserID); uid != "" && order.UserID != uid {
		return Order{}, ErrOrderForbidden
	}
	return order, nil
}

// List pages through orders matching the filter.
func (s *orderService) List(ctx context.Context, filter OrderListFilter) (OrderPage, error) {
	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return OrderPage{}, s.translateError(err)
	}
	return page, nil
}

// TransitionStatus moves an order to a new status, applying the
// compensating restock when the order enters cancelled. The read,
// the restock, and the status write share one transaction, so a
// cancellation restocks exactly once even under concurrent retries.
func (s *orderService) TransitionStatus(ctx context.Context, cmd TransitionOrderCommand) (Order, error) {
	id := strings.TrimSpace(cmd.OrderID)
	if id == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if _, ok := orderStateTransitions[cmd.NextStatus]; !ok {
		return Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, cmd.NextStatus)
	}

	var (
		result  Order
		changed bool
	)
	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		order, err := s.orders.FindByID(txCtx, id)
		if err != nil {
			return s.translateError(err)
		}
		if cmd.ExpectedStatus != nil && order.Status != *cmd.ExpectedStatus {
			return fmt.Errorf("%w: expected %s, found %s", ErrOrderStatusConflict, *cmd.ExpectedStatus, order.Status)
		}

		// Re-cancelling a cancelled order is a guarded no-op; the
		// restock must not repeat.
		if order.Status == domain.OrderStatusCancelled && cmd.NextStatus == domain.OrderStatusCancelled {
			result = order
			return nil
		}
		if order.Status == cmd.NextStatus {
			result = order
			return nil
		}
		if !canTransition(order.Status, cmd.NextStatus) {
			return fmt.Errorf("%w: %s -> %s", ErrOrderInvalidTransition, order.Status, cmd.NextStatus)
		}

		if cmd.NextStatus == domain.OrderStatusCancelled {
			lines := make([]InventoryLine, 0, len(order.Items))
			for _, item := range order.Items {
				lines = append(lines, InventoryLine{SKU: item.SKU, Quantity: item.Quantity})
			}
			if err := s.inventory.Restock(txCtx, lines); err != nil {
				return err
			}
		}

		now := s.clock()
		applyStatusTransition(&order, cmd.NextStatus, now)
		if err := s.orders.Update(txCtx, order); err != nil {
			return s.translateError(err)
		}
		result = order
		changed = true
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.logger(ctx, "order_status_changed", map[string]any{
		"order_id": result.ID,
		"status":   string(result.Status),
		"actor":    cmd.Actor,
	})
	if changed && result.Status == domain.OrderStatusCancelled {
		s.publishEvent(ctx, "order.cancelled", result)
	}
	return result, nil
}

// MarkPaid applies a verified payment confirmation. Only a pending
// order transitions; a replayed confirmation returns
// ErrOrderAlreadyConfirmed and changes nothing.
func (s *orderService) MarkPaid(ctx context.Context, orderID string, paidAt time.Time) (Order, error) {
	id := strings.TrimSpace(orderID)
	if id == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if paidAt.IsZero() {
		paidAt = s.clock()
	}

	var result Order
	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		order, err := s.orders.FindByID(txCtx, id)
		if err != nil {
			return s.translateError(err)
		}
		if order.Status != domain.OrderStatusPending {
			result = order
			return ErrOrderAlreadyConfirmed
		}

		ts := paidAt.UTC()
		order.Status = domain.OrderStatusProcessing
		order.PaymentStatus = domain.PaymentStatusPaid
		order.PaidAt = &ts
		order.UpdatedAt = s.clock()
		if err := s.orders.Update(txCtx, order); err != nil {
			return s.translateError(err)
		}
		result = order
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrOrderAlreadyConfirmed) {
			return result, ErrOrderAlreadyConfirmed
		}
		return Order{}, err
	}

	s.logger(ctx, "order_paid", map[string]any{"order_id": result.ID})
	s.publishEvent(ctx, "order.paid", result)
	return result, nil
}

// MarkPaymentFailed records a gateway-reported failure on a pending,
// unpaid order. Fulfillment status is untouched; the customer can
// retry payment.
func (s *orderService) MarkPaymentFailed(ctx context.Context, orderID string) (Order, error) {
	id := strings.TrimSpace(orderID)
	if id == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	var result Order
	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		order, err := s.orders.FindByID(txCtx, id)
		if err != nil {
			return s.translateError(err)
		}
		if order.Status != domain.OrderStatusPending || order.PaymentStatus == domain.PaymentStatusPaid {
			result = order
			return ErrOrderAlreadyConfirmed
		}

		order.PaymentStatus = domain.PaymentStatusFailed
		order.UpdatedAt = s.clock()
		if err := s.orders.Update(txCtx, order); err != nil {
			return s.translateError(err)
		}
		result = order
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrOrderAlreadyConfirmed) {
			return result, ErrOrderAlreadyConfirmed
		}
		return Order{}, err
	}

	s.logger(ctx, "order_payment_failed", map[string]any{"order_id": result.ID})
	return result, nil
}

func applyStatusTransition(order *domain.Order, next domain.OrderStatus, now time.Time) {
	order.Status = next
	order.UpdatedAt = now
	switch next {
	case domain.OrderStatusShipped:
		ts := now
		order.ShippedAt = &ts
	case domain.OrderStatusDelivered:
		ts := now
		order.DeliveredAt = &ts
	case domain.OrderStatusCancelled:
		ts := now
		order.CancelledAt = &ts
	}
}

func (s *orderService) publishEvent(ctx context.Context, name string, order Order) {
	if s.events == nil {
		return
	}
	event := OrderEvent{
		Name:       name,
		OrderID:    order.ID,
		UserID:     order.UserID,
		Status:     string(order.Status),
		Total:      order.Total,
		OccurredAt: s.clock(),
	}
	if _, err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order_event_publish_failed", map[string]any{
			"order_id": order.ID,
			"event":    name,
			"error":    err.Error(),
		})
	}
}

func (s *orderService) translateError(err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return ErrOrderNotFound
	}
	return err
}

// noopUnitOfWork executes the callback without transactional
// guarantees. Used in tests and wiring paths that do not need
// atomicity across repositories.
type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if fn == nil {
		return errors.New("unit of work: callback is required")
	}
	return fn(ctx)
}
