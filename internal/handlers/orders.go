package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/gioia-jewelry/api/internal/domain"
	"github.com/gioia-jewelry/api/internal/platform/auth"
	"github.com/gioia-jewelry/api/internal/platform/httpx"
	"github.com/gioia-jewelry/api/internal/services"
)

const (
	maxOrderBodySize     = 8 * 1024
	defaultOrderPageSize = 20
	maxOrderPageSize     = 100
)

// OrderHandlers exposes the customer-facing order endpoints: checkout,
// listing, detail and cancellation.
type OrderHandlers struct {
	authn       *auth.SessionAuthenticator
	fulfillment services.FulfillmentService
	orders      services.OrderService
}

// NewOrderHandlers constructs handlers over the fulfillment and order services.
func NewOrderHandlers(authn *auth.SessionAuthenticator, fulfillment services.FulfillmentService, orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{authn: authn, fulfillment: fulfillment, orders: orders}
}

// Routes wires the /orders endpoints onto the provided router.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireSession())
	}
	r.Post("/", h.createOrder)
	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
	r.Post("/{orderID}/cancel", h.cancelOrder)
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req struct {
		AddressID     string `json:"address_id"`
		PaymentMethod string `json:"payment_method"`
		Notes         string `json:"notes"`
		PromotionCode string `json:"promotion_code"`
	}
	if err := decodeJSONBody(r, maxOrderBodySize, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	order, err := h.fulfillment.CreateOrder(ctx, services.CreateOrderCommand{
		UserID:        identity.UserID,
		AddressID:     req.AddressID,
		PaymentMethod: req.PaymentMethod,
		Notes:         req.Notes,
		PromotionCode: req.PromotionCode,
	})
	if err != nil {
		h.writeCheckoutError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireIdentity(ctx, w)
	if !ok {
		return
	}

	filter := services.OrderListFilter{UserID: identity.UserID}
	filter.PageSize = clampPageSize(queryInt(r, "page_size", defaultOrderPageSize))
	filter.PageToken = strings.TrimSpace(r.URL.Query().Get("page_token"))
	if status := strings.TrimSpace(r.URL.Query().Get("status")); status != "" {
		parsed, err := parseOrderStatus(status)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
			return
		}
		filter.Status = &parsed
	}

	page, err := h.orders.List(ctx, filter)
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildOrderPageResponse(page))
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireIdentity(ctx, w)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	order, err := h.orders.Get(ctx, services.GetOrderCommand{OrderID: orderID, UserID: identity.UserID})
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireIdentity(ctx, w)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	// Ownership is checked via the scoped read before any transition.
	if _, err := h.orders.Get(ctx, services.GetOrderCommand{OrderID: orderID, UserID: identity.UserID}); err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}

	order, err := h.orders.TransitionStatus(ctx, services.TransitionOrderCommand{
		OrderID:    orderID,
		NextStatus: domain.OrderStatusCancelled,
		Actor:      identity.UserID,
	})
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) requireIdentity(ctx context.Context, w http.ResponseWriter) (*auth.Identity, bool) {
	if h.fulfillment == nil || h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return nil, false
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || strings.TrimSpace(identity.UserID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

func (h *OrderHandlers) writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrFulfillmentInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrFulfillmentEmptyCart):
		httpx.WriteError(ctx, w, httpx.NewError("empty_cart", "the cart is empty", http.StatusBadRequest))
	case errors.Is(err, services.ErrFulfillmentAddressNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("address_not_found", "shipping address not found", http.StatusNotFound))
	case errors.Is(err, services.ErrFulfillmentAddressForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("address_forbidden", "shipping address belongs to another user", http.StatusForbidden))
	case errors.Is(err, services.ErrFulfillmentVariantNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("variant_not_found", "a cart item no longer exists", http.StatusNotFound))
	case errors.Is(err, services.ErrInventoryInsufficientStock):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrPromotionNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("promotion_not_found", "promotion code not found", http.StatusNotFound))
	case errors.Is(err, services.ErrPromotionInvalidCode),
		errors.Is(err, services.ErrPromotionNotStarted),
		errors.Is(err, services.ErrPromotionExpired),
		errors.Is(err, services.ErrPromotionExhausted),
		errors.Is(err, services.ErrPromotionMinimumNotMet):
		httpx.WriteError(ctx, w, httpx.NewError("promotion_rejected", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrFulfillmentUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout is temporarily unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("checkout_error", "failed to create order", http.StatusInternalServerError))
	}
}

func (h *OrderHandlers) writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("order_forbidden", "order belongs to another user", http.StatusForbidden))
	case errors.Is(err, services.ErrOrderInvalidTransition), errors.Is(err, services.ErrOrderStatusConflict):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_transition", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "order operation failed", http.StatusInternalServerError))
	}
}

func parseOrderStatus(raw string) (services.OrderStatus, error) {
	status := services.OrderStatus(strings.ToLower(strings.TrimSpace(raw)))
	switch status {
	case domain.OrderStatusPending, domain.OrderStatusProcessing, domain.OrderStatusShipped,
		domain.OrderStatusDelivered, domain.OrderStatusCancelled:
		return status, nil
	}
	return "", errors.New("status must be one of pending, processing, shipped, delivered, cancelled")
}

func clampPageSize(size int) int {
	if size <= 0 {
		return defaultOrderPageSize
	}
	if size > maxOrderPageSize {
		return maxOrderPageSize
	}
	return size
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type orderPageResponse struct {
	Orders        []orderPayload `json:"orders"`
	NextPageToken string         `json:"next_page_token,omitempty"`
}

func buildOrderPageResponse(page services.OrderPage) orderPageResponse {
	orders := make([]orderPayload, 0, len(page.Orders))
	for _, order := range page.Orders {
		orders = append(orders, buildOrderPayload(order))
	}
	return orderPageResponse{Orders: orders, NextPageToken: page.NextPageToken}
}
