package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/gioia-jewelry/api/internal/domain"
	"github.com/gioia-jewelry/api/internal/platform/auth"
	"github.com/gioia-jewelry/api/internal/services"
)

func testOrder(id, userID string, status services.OrderStatus) services.Order {
	return services.Order{
		ID:     id,
		Number: "ORD-000042",
		UserID: userID,
		Items: []services.OrderItem{
			{SKU: "RING-1", ProductName: "Gold Ring", Quantity: 2, UnitPrice: 400_000, LineTotal: 800_000},
		},
		Subtotal:      800_000,
		ShippingFee:   30_000,
		Total:         830_000,
		Status:        status,
		PaymentStatus: domain.PaymentStatusUnpaid,
		PaymentMethod: "cod",
		CreatedAt:     handlerClock(),
		UpdatedAt:     handlerClock(),
	}
}

func newOrderRouter(t *testing.T, fulfillment services.FulfillmentService, orders services.OrderService) (http.Handler, string) {
	t.Helper()
	authn := newHandlerAuthenticator(t)
	router := NewRouter(WithOrderRoutes(NewOrderHandlers(authn, fulfillment, orders).Routes))
	return router, sessionToken(t, authn, "user-1", auth.RoleCustomer)
}

func noopFulfillment(t *testing.T) services.FulfillmentService {
	return &stubFulfillmentService{
		createOrder: func(context.Context, services.CreateOrderCommand) (services.Order, error) {
			t.Fatalf("fulfillment must not be reached")
			return services.Order{}, nil
		},
	}
}

func TestOrdersRequireSession(t *testing.T) {
	router, _ := newOrderRouter(t, noopFulfillment(t), &stubOrderService{})

	rec := doRequest(router, jsonRequest(t, http.MethodGet, "/v1/orders/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestOrdersCreate(t *testing.T) {
	var got services.CreateOrderCommand
	fulfillment := &stubFulfillmentService{
		createOrder: func(_ context.Context, cmd services.CreateOrderCommand) (services.Order, error) {
			got = cmd
			return testOrder("order-1", cmd.UserID, domain.OrderStatusPending), nil
		},
	}
	router, token := newOrderRouter(t, fulfillment, &stubOrderService{})

	req := jsonRequest(t, http.MethodPost, "/v1/orders/", map[string]string{
		"address_id":     "addr-1",
		"payment_method": "vnpay",
		"promotion_code": "SALE10",
		"notes":          "gift wrap please",
	})
	req.Header.Set("Authorization", "Bearer "+token)
	rec := doRequest(router, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	// The user always comes from the session, never the body.
	if got.UserID != "user-1" || got.AddressID != "addr-1" || got.PromotionCode != "SALE10" {
		t.Fatalf("unexpected command %+v", got)
	}

	var resp struct {
		Order struct {
			Number string `json:"number"`
			Status string `json:"status"`
			Total  int64  `json:"total"`
		} `json:"order"`
	}
	decodeBody(t, rec, &resp)
	if resp.Order.Number != "ORD-000042" || resp.Order.Status != "pending" || resp.Order.Total != 830_000 {
		t.Fatalf("unexpected order payload %+v", resp.Order)
	}
}

func TestOrdersCreateErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{name: "empty cart", err: services.ErrFulfillmentEmptyCart, want: http.StatusBadRequest},
		{name: "address not found", err: services.ErrFulfillmentAddressNotFound, want: http.StatusNotFound},
		{name: "foreign address", err: services.ErrFulfillmentAddressForbidden, want: http.StatusForbidden},
		{name: "variant gone", err: services.ErrFulfillmentVariantNotFound, want: http.StatusNotFound},
		{name: "insufficient stock", err: services.ErrInventoryInsufficientStock, want: http.StatusBadRequest},
		{name: "promotion not found", err: services.ErrPromotionNotFound, want: http.StatusNotFound},
		{name: "promotion expired", err: services.ErrPromotionExpired, want: http.StatusBadRequest},
		{name: "promotion exhausted", err: services.ErrPromotionExhausted, want: http.StatusBadRequest},
		{name: "invalid input", err: services.ErrFulfillmentInvalidInput, want: http.StatusBadRequest},
		{name: "unavailable", err: services.ErrFulfillmentUnavailable, want: http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fulfillment := &stubFulfillmentService{
				createOrder: func(context.Context, services.CreateOrderCommand) (services.Order, error) {
					return services.Order{}, tc.err
				},
			}
			router, token := newOrderRouter(t, fulfillment, &stubOrderService{})

			req := jsonRequest(t, http.MethodPost, "/v1/orders/", map[string]string{
				"address_id":     "addr-1",
				"payment_method": "cod",
			})
			req.Header.Set("Authorization", "Bearer "+token)
			rec := doRequest(router, req)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestOrdersList(t *testing.T) {
	var gotFilter services.OrderListFilter
	orders := &stubOrderService{
		list: func(_ context.Context, filter services.OrderListFilter) (services.OrderPage, error) {
			gotFilter = filter
			return services.OrderPage{
				Orders:        []services.Order{testOrder("order-1", filter.UserID, domain.OrderStatusPending)},
				NextPageToken: "next",
			}, nil
		},
	}
	router, token := newOrderRouter(t, noopFulfillment(t), orders)

	req := jsonRequest(t, http.MethodGet, "/v1/orders/?status=pending&page_size=5", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := doRequest(router, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	if gotFilter.UserID != "user-1" || gotFilter.PageSize != 5 {
		t.Fatalf("unexpected filter %+v", gotFilter)
	}
	if gotFilter.Status == nil || *gotFilter.Status != domain.OrderStatusPending {
		t.Fatalf("expected pending status filter, got %v", gotFilter.Status)
	}

	var resp struct {
		Orders        []struct{ ID string `json:"id"` } `json:"orders"`
		NextPageToken string                            `json:"next_page_token"`
	}
	decodeBody(t, rec, &resp)
	if len(resp.Orders) != 1 || resp.NextPageToken != "next" {
		t.Fatalf("unexpected page %+v", resp)
	}
}

func TestOrdersListRejectsUnknownStatus(t *testing.T) {
	router, token := newOrderRouter(t, noopFulfillment(t), &stubOrderService{
		list: func(context.Context, services.OrderListFilter) (services.OrderPage, error) {
			t.Fatalf("service must not be called with a bad status")
			return services.OrderPage{}, nil
		},
	})

	req := jsonRequest(t, http.MethodGet, "/v1/orders/?status=bogus", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := doRequest(router, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestOrdersGetNotFound(t *testing.T) {
	orders := &stubOrderService{
		get: func(context.Context, services.GetOrderCommand) (services.Order, error) {
			return services.Order{}, services.ErrOrderNotFound
		},
	}
	router, token := newOrderRouter(t, noopFulfillment(t), orders)

	req := jsonRequest(t, http.MethodGet, "/v1/orders/order-9", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := doRequest(router, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestOrdersGetForeignOrderForbidden(t *testing.T) {
	orders := &stubOrderService{
		get: func(context.Context, services.GetOrderCommand) (services.Order, error) {
			return services.Order{}, services.ErrOrderForbidden
		},
	}
	router, token := newOrderRouter(t, noopFulfillment(t), orders)

	req := jsonRequest(t, http.MethodGet, "/v1/orders/order-9", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := doRequest(router, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestOrdersCancel(t *testing.T) {
	var gotCmd services.TransitionOrderCommand
	orders := &stubOrderService{
		get: func(_ context.Context, cmd services.GetOrderCommand) (services.Order, error) {
			if cmd.UserID != "user-1" {
				t.Fatalf("ownership check must use the session user, got %q", cmd.UserID)
			}
			return testOrder(cmd.OrderID, cmd.UserID, domain.OrderStatusPending), nil
		},
		transitionStatus: func(_ context.Context, cmd services.TransitionOrderCommand) (services.Order, error) {
			gotCmd = cmd
			return testOrder(cmd.OrderID, "user-1", domain.OrderStatusCancelled), nil
		},
	}
	router, token := newOrderRouter(t, noopFulfillment(t), orders)

	req := jsonRequest(t, http.MethodPost, "/v1/orders/order-1/cancel", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := doRequest(router, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if gotCmd.NextStatus != domain.OrderStatusCancelled || gotCmd.Actor != "user-1" {
		t.Fatalf("unexpected transition %+v", gotCmd)
	}
}

func TestOrdersCancelShippedConflict(t *testing.T) {
	orders := &stubOrderService{
		get: func(_ context.Context, cmd services.GetOrderCommand) (services.Order, error) {
			return testOrder(cmd.OrderID, cmd.UserID, domain.OrderStatusShipped), nil
		},
		transitionStatus: func(context.Context, services.TransitionOrderCommand) (services.Order, error) {
			return services.Order{}, services.ErrOrderInvalidTransition
		},
	}
	router, token := newOrderRouter(t, noopFulfillment(t), orders)

	req := jsonRequest(t, http.MethodPost, "/v1/orders/order-1/cancel", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := doRequest(router, req)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}
