package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gioia-jewelry/api/internal/platform/auth"
	"github.com/gioia-jewelry/api/internal/services"
)

var handlerClock = func() time.Time {
	return time.Date(2024, time.June, 15, 9, 30, 0, 0, time.UTC)
}

func newHandlerAuthenticator(t *testing.T) *auth.SessionAuthenticator {
	t.Helper()
	authn, err := auth.NewSessionAuthenticator("handler-test-secret", "gioia-test",
		auth.WithSessionClock(handlerClock),
		auth.WithSessionTTL(time.Hour),
	)
	if err != nil {
		t.Fatalf("NewSessionAuthenticator: %v", err)
	}
	return authn
}

func sessionToken(t *testing.T, authn *auth.SessionAuthenticator, userID, role string) string {
	t.Helper()
	token, _, err := authn.Issue(auth.Identity{UserID: userID, Email: userID + "@example.com", Role: role})
	if err != nil {
		t.Fatalf("issue session: %v", err)
	}
	return token
}

func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func doRequest(router http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

type stubLoginService struct {
	requestOTP func(ctx context.Context, email string) error
	verifyOTP  func(ctx context.Context, email, code string) (services.Session, error)
}

func (s *stubLoginService) RequestOTP(ctx context.Context, email string) error {
	return s.requestOTP(ctx, email)
}

func (s *stubLoginService) VerifyOTP(ctx context.Context, email, code string) (services.Session, error) {
	return s.verifyOTP(ctx, email, code)
}

type stubCartService struct {
	getCart    func(ctx context.Context, userID string) (services.Cart, error)
	addItem    func(ctx context.Context, cmd services.UpsertCartItemCommand) (services.Cart, error)
	updateItem func(ctx context.Context, cmd services.UpsertCartItemCommand) (services.Cart, error)
	removeItem func(ctx context.Context, userID, sku string) (services.Cart, error)
}

func (s *stubCartService) GetCart(ctx context.Context, userID string) (services.Cart, error) {
	return s.getCart(ctx, userID)
}

func (s *stubCartService) AddItem(ctx context.Context, cmd services.UpsertCartItemCommand) (services.Cart, error) {
	return s.addItem(ctx, cmd)
}

func (s *stubCartService) UpdateItem(ctx context.Context, cmd services.UpsertCartItemCommand) (services.Cart, error) {
	return s.updateItem(ctx, cmd)
}

func (s *stubCartService) RemoveItem(ctx context.Context, userID, sku string) (services.Cart, error) {
	return s.removeItem(ctx, userID, sku)
}

type stubFulfillmentService struct {
	createOrder func(ctx context.Context, cmd services.CreateOrderCommand) (services.Order, error)
}

func (s *stubFulfillmentService) CreateOrder(ctx context.Context, cmd services.CreateOrderCommand) (services.Order, error) {
	return s.createOrder(ctx, cmd)
}

type stubOrderService struct {
	get               func(ctx context.Context, cmd services.GetOrderCommand) (services.Order, error)
	list              func(ctx context.Context, filter services.OrderListFilter) (services.OrderPage, error)
	transitionStatus  func(ctx context.Context, cmd services.TransitionOrderCommand) (services.Order, error)
	markPaid          func(ctx context.Context, orderID string, paidAt time.Time) (services.Order, error)
	markPaymentFailed func(ctx context.Context, orderID string) (services.Order, error)
}

func (s *stubOrderService) Get(ctx context.Context, cmd services.GetOrderCommand) (services.Order, error) {
	return s.get(ctx, cmd)
}

func (s *stubOrderService) List(ctx context.Context, filter services.OrderListFilter) (services.OrderPage, error) {
	return s.list(ctx, filter)
}

func (s *stubOrderService) TransitionStatus(ctx context.Context, cmd services.TransitionOrderCommand) (services.Order, error) {
	return s.transitionStatus(ctx, cmd)
}

func (s *stubOrderService) MarkPaid(ctx context.Context, orderID string, paidAt time.Time) (services.Order, error) {
	return s.markPaid(ctx, orderID, paidAt)
}

func (s *stubOrderService) MarkPaymentFailed(ctx context.Context, orderID string) (services.Order, error) {
	return s.markPaymentFailed(ctx, orderID)
}

type stubPromotionService struct {
	validate func(ctx context.Context, code string, subtotal int64, now time.Time) (services.Promotion, error)
	create   func(ctx context.Context, cmd services.PromotionCommand) (services.Promotion, error)
	update   func(ctx context.Context, promotionID string, cmd services.PromotionCommand) (services.Promotion, error)
	remove   func(ctx context.Context, promotionID string) error
	get      func(ctx context.Context, promotionID string) (services.Promotion, error)
	list     func(ctx context.Context, filter services.PromotionListFilter) (services.PromotionPage, error)
}

func (s *stubPromotionService) Validate(ctx context.Context, code string, subtotal int64, now time.Time) (services.Promotion, error) {
	return s.validate(ctx, code, subtotal, now)
}

func (s *stubPromotionService) Create(ctx context.Context, cmd services.PromotionCommand) (services.Promotion, error) {
	return s.create(ctx, cmd)
}

func (s *stubPromotionService) Update(ctx context.Context, promotionID string, cmd services.PromotionCommand) (services.Promotion, error) {
	return s.update(ctx, promotionID, cmd)
}

func (s *stubPromotionService) Delete(ctx context.Context, promotionID string) error {
	return s.remove(ctx, promotionID)
}

func (s *stubPromotionService) Get(ctx context.Context, promotionID string) (services.Promotion, error) {
	return s.get(ctx, promotionID)
}

func (s *stubPromotionService) List(ctx context.Context, filter services.PromotionListFilter) (services.PromotionPage, error) {
	return s.list(ctx, filter)
}

type stubInventoryService struct {
	deduct       func(ctx context.Context, lines []services.InventoryLine) ([]services.Stock, error)
	restock      func(ctx context.Context, lines []services.InventoryLine) error
	getStock     func(ctx context.Context, sku string) (services.Stock, error)
	listLowStock func(ctx context.Context, query services.LowStockQuery) (services.LowStockPage, error)
}

func (s *stubInventoryService) Deduct(ctx context.Context, lines []services.InventoryLine) ([]services.Stock, error) {
	return s.deduct(ctx, lines)
}

func (s *stubInventoryService) Restock(ctx context.Context, lines []services.InventoryLine) error {
	return s.restock(ctx, lines)
}

func (s *stubInventoryService) GetStock(ctx context.Context, sku string) (services.Stock, error) {
	return s.getStock(ctx, sku)
}

func (s *stubInventoryService) ListLowStock(ctx context.Context, query services.LowStockQuery) (services.LowStockPage, error) {
	return s.listLowStock(ctx, query)
}

type stubPaymentService struct {
	createPayment     func(ctx context.Context, cmd services.CreatePaymentCommand) (services.PaymentRedirect, error)
	handleVNPayReturn func(ctx context.Context, params url.Values) (services.CallbackOutcome, error)
}

func (s *stubPaymentService) CreatePayment(ctx context.Context, cmd services.CreatePaymentCommand) (services.PaymentRedirect, error) {
	return s.createPayment(ctx, cmd)
}

func (s *stubPaymentService) HandleVNPayReturn(ctx context.Context, params url.Values) (services.CallbackOutcome, error) {
	return s.handleVNPayReturn(ctx, params)
}
