package services

import (
	"context"
	"fmt"
	"time"

	domain "github.com/gioia-jewelry/api/internal/domain"
	"github.com/gioia-jewelry/api/internal/repositories"
)

var testClock = func() time.Time {
	return time.Date(2024, time.June, 15, 9, 30, 0, 0, time.UTC)
}

// stubRepoError implements repositories.RepositoryError for tests.
type stubRepoError struct {
	msg         string
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *stubRepoError) Error() string       { return e.msg }
func (e *stubRepoError) IsNotFound() bool    { return e.notFound }
func (e *stubRepoError) IsConflict() bool    { return e.conflict }
func (e *stubRepoError) IsUnavailable() bool { return e.unavailable }

func notFoundErr(what string) error {
	return &stubRepoError{msg: what + " not found", notFound: true}
}

type stubCartRepo struct {
	getCart      func(ctx context.Context, userID string) (domain.Cart, error)
	upsertCart   func(ctx context.Context, cart domain.Cart) (domain.Cart, error)
	replaceItems func(ctx context.Context, userID string, items []domain.CartItem) (domain.Cart, error)
}

func (s *stubCartRepo) GetCart(ctx context.Context, userID string) (domain.Cart, error) {
	return s.getCart(ctx, userID)
}

func (s *stubCartRepo) UpsertCart(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	return s.upsertCart(ctx, cart)
}

func (s *stubCartRepo) ReplaceItems(ctx context.Context, userID string, items []domain.CartItem) (domain.Cart, error) {
	return s.replaceItems(ctx, userID, items)
}

type stubVariantRepo struct {
	findBySKU  func(ctx context.Context, sku string) (domain.ProductVariant, error)
	findBySKUs func(ctx context.Context, skus []string) ([]domain.ProductVariant, error)
}

func (s *stubVariantRepo) FindBySKU(ctx context.Context, sku string) (domain.ProductVariant, error) {
	return s.findBySKU(ctx, sku)
}

func (s *stubVariantRepo) FindBySKUs(ctx context.Context, skus []string) ([]domain.ProductVariant, error) {
	return s.findBySKUs(ctx, skus)
}

// variantMapRepo backs the variant repository with a fixed map.
func variantMapRepo(variants map[string]domain.ProductVariant) *stubVariantRepo {
	return &stubVariantRepo{
		findBySKU: func(_ context.Context, sku string) (domain.ProductVariant, error) {
			v, ok := variants[sku]
			if !ok {
				return domain.ProductVariant{}, notFoundErr("variant " + sku)
			}
			return v, nil
		},
		findBySKUs: func(_ context.Context, skus []string) ([]domain.ProductVariant, error) {
			out := make([]domain.ProductVariant, 0, len(skus))
			for _, sku := range skus {
				if v, ok := variants[sku]; ok {
					out = append(out, v)
				}
			}
			return out, nil
		},
	}
}

// memoryInventoryRepo is an in-memory inventory backend keyed by SKU.
type memoryInventoryRepo struct {
	stocks map[string]domain.Stock
}

func newMemoryInventoryRepo(stocks ...domain.Stock) *memoryInventoryRepo {
	m := &memoryInventoryRepo{stocks: make(map[string]domain.Stock, len(stocks))}
	for _, stock := range stocks {
		m.stocks[stock.SKU] = stock
	}
	return m
}

func (m *memoryInventoryRepo) GetStock(_ context.Context, sku string) (domain.Stock, error) {
	stock, ok := m.stocks[sku]
	if !ok {
		return domain.Stock{}, notFoundErr("stock " + sku)
	}
	return stock, nil
}

func (m *memoryInventoryRepo) GetStocks(_ context.Context, skus []string) ([]domain.Stock, error) {
	out := make([]domain.Stock, 0, len(skus))
	for _, sku := range skus {
		stock, ok := m.stocks[sku]
		if !ok {
			return nil, notFoundErr("stock " + sku)
		}
		out = append(out, stock)
	}
	return out, nil
}

func (m *memoryInventoryRepo) SetQuantities(_ context.Context, writes []repositories.StockWrite) error {
	for _, w := range writes {
		if w.Quantity < 0 {
			return fmt.Errorf("negative quantity for %s", w.SKU)
		}
		stock := m.stocks[w.SKU]
		stock.SKU = w.SKU
		stock.Quantity = w.Quantity
		stock.LowStockThreshold = w.LowStockThreshold
		m.stocks[w.SKU] = stock
	}
	return nil
}

func (m *memoryInventoryRepo) ListLowStock(_ context.Context, _ repositories.InventoryLowStockQuery) (repositories.StockPage, error) {
	var page repositories.StockPage
	for _, stock := range m.stocks {
		if stock.Quantity <= stock.LowStockThreshold {
			page.Stocks = append(page.Stocks, stock)
		}
	}
	return page, nil
}

// memoryOrderRepo persists orders in a map.
type memoryOrderRepo struct {
	orders  map[string]domain.Order
	inserts int
	updates int
}

func newMemoryOrderRepo(orders ...domain.Order) *memoryOrderRepo {
	m := &memoryOrderRepo{orders: make(map[string]domain.Order, len(orders))}
	for _, order := range orders {
		m.orders[order.ID] = order
	}
	return m
}

func (m *memoryOrderRepo) Insert(_ context.Context, order domain.Order) error {
	if _, ok := m.orders[order.ID]; ok {
		return &stubRepoError{msg: "order exists", conflict: true}
	}
	m.orders[order.ID] = order
	m.inserts++
	return nil
}

func (m *memoryOrderRepo) Update(_ context.Context, order domain.Order) error {
	if _, ok := m.orders[order.ID]; !ok {
		return notFoundErr("order " + order.ID)
	}
	m.orders[order.ID] = order
	m.updates++
	return nil
}

func (m *memoryOrderRepo) FindByID(_ context.Context, orderID string) (domain.Order, error) {
	order, ok := m.orders[orderID]
	if !ok {
		return domain.Order{}, notFoundErr("order " + orderID)
	}
	return order, nil
}

func (m *memoryOrderRepo) List(_ context.Context, filter domain.OrderListFilter) (domain.OrderPage, error) {
	var page domain.OrderPage
	for _, order := range m.orders {
		if filter.UserID != "" && order.UserID != filter.UserID {
			continue
		}
		if filter.Status != nil && order.Status != *filter.Status {
			continue
		}
		page.Orders = append(page.Orders, order)
	}
	return page, nil
}

type stubPromotionRepo struct {
	insert           func(ctx context.Context, promo domain.Promotion) error
	update           func(ctx context.Context, promo domain.Promotion) error
	remove           func(ctx context.Context, promotionID string) error
	findByID         func(ctx context.Context, promotionID string) (domain.Promotion, error)
	findByCode       func(ctx context.Context, code string) (domain.Promotion, error)
	recordRedemption func(ctx context.Context, promotionID string, usage int) error
	list             func(ctx context.Context, filter repositories.PromotionListFilter) (repositories.PromotionPage, error)
}

func (s *stubPromotionRepo) Insert(ctx context.Context, promo domain.Promotion) error {
	return s.insert(ctx, promo)
}

func (s *stubPromotionRepo) Update(ctx context.Context, promo domain.Promotion) error {
	return s.update(ctx, promo)
}

func (s *stubPromotionRepo) Delete(ctx context.Context, promotionID string) error {
	return s.remove(ctx, promotionID)
}

func (s *stubPromotionRepo) FindByID(ctx context.Context, promotionID string) (domain.Promotion, error) {
	return s.findByID(ctx, promotionID)
}

func (s *stubPromotionRepo) FindByCode(ctx context.Context, code string) (domain.Promotion, error) {
	return s.findByCode(ctx, code)
}

func (s *stubPromotionRepo) RecordRedemption(ctx context.Context, promotionID string, usage int) error {
	return s.recordRedemption(ctx, promotionID, usage)
}

func (s *stubPromotionRepo) List(ctx context.Context, filter repositories.PromotionListFilter) (repositories.PromotionPage, error) {
	return s.list(ctx, filter)
}

// singlePromotionRepo serves one promotion by code and records
// redemptions.
type singlePromotionRepo struct {
	stubPromotionRepo
	promo       domain.Promotion
	redemptions []int
}

func newSinglePromotionRepo(promo domain.Promotion) *singlePromotionRepo {
	r := &singlePromotionRepo{promo: promo}
	r.findByCode = func(_ context.Context, code string) (domain.Promotion, error) {
		if code == promo.Code {
			return r.promo, nil
		}
		return domain.Promotion{}, notFoundErr("promotion " + code)
	}
	r.findByID = func(_ context.Context, id string) (domain.Promotion, error) {
		if id == promo.ID {
			return r.promo, nil
		}
		return domain.Promotion{}, notFoundErr("promotion " + id)
	}
	r.recordRedemption = func(_ context.Context, id string, usage int) error {
		if id != r.promo.ID {
			return notFoundErr("promotion " + id)
		}
		r.redemptions = append(r.redemptions, usage)
		r.promo.CurrentUsage = usage
		return nil
	}
	return r
}

type stubAddressRepo struct {
	get func(ctx context.Context, userID, addressID string) (domain.Address, error)
}

func (s *stubAddressRepo) Get(ctx context.Context, userID, addressID string) (domain.Address, error) {
	return s.get(ctx, userID, addressID)
}

func (s *stubAddressRepo) List(context.Context, string) ([]domain.Address, error) {
	return nil, nil
}

func (s *stubAddressRepo) Upsert(_ context.Context, address domain.Address) (domain.Address, error) {
	return address, nil
}

func (s *stubAddressRepo) Delete(context.Context, string, string) error {
	return nil
}

type stubCounterRepo struct {
	next func(ctx context.Context, counterID string, step int64) (int64, error)
}

func (s *stubCounterRepo) Next(ctx context.Context, counterID string, step int64) (int64, error) {
	return s.next(ctx, counterID, step)
}

func (s *stubCounterRepo) Configure(context.Context, string, repositories.CounterConfig) error {
	return nil
}

type stubPaymentRepo struct {
	insertAttempt        func(ctx context.Context, attempt domain.PaymentAttempt) error
	findAttemptByTxnRef  func(ctx context.Context, txnRef string) (domain.PaymentAttempt, error)
	listAttemptsByOrder  func(ctx context.Context, orderID string) ([]domain.PaymentAttempt, error)
}

func (s *stubPaymentRepo) InsertAttempt(ctx context.Context, attempt domain.PaymentAttempt) error {
	return s.insertAttempt(ctx, attempt)
}

func (s *stubPaymentRepo) FindAttemptByTxnRef(ctx context.Context, txnRef string) (domain.PaymentAttempt, error) {
	return s.findAttemptByTxnRef(ctx, txnRef)
}

func (s *stubPaymentRepo) ListAttemptsByOrder(ctx context.Context, orderID string) ([]domain.PaymentAttempt, error) {
	return s.listAttemptsByOrder(ctx, orderID)
}

type stubUserRepo struct {
	findByEmail   func(ctx context.Context, email string) (domain.User, error)
	ensureByEmail func(ctx context.Context, email string, now time.Time) (domain.User, error)
	recordLogin   func(ctx context.Context, userID string, at time.Time) error
}

func (s *stubUserRepo) FindByEmail(ctx context.Context, email string) (domain.User, error) {
	return s.findByEmail(ctx, email)
}

func (s *stubUserRepo) EnsureByEmail(ctx context.Context, email string, now time.Time) (domain.User, error) {
	return s.ensureByEmail(ctx, email, now)
}

func (s *stubUserRepo) RecordLogin(ctx context.Context, userID string, at time.Time) error {
	return s.recordLogin(ctx, userID, at)
}

// recordingPublisher captures published order events.
type recordingPublisher struct {
	events []OrderEvent
	err    error
}

func (p *recordingPublisher) PublishOrderEvent(_ context.Context, event OrderEvent) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	p.events = append(p.events, event)
	return fmt.Sprintf("msg-%d", len(p.events)), nil
}

// countingUnitOfWork runs callbacks inline and counts invocations.
type countingUnitOfWork struct {
	runs int
}

func (u *countingUnitOfWork) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	u.runs++
	return fn(ctx)
}

func sequentialIDs(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func int64Ptr(v int64) *int64 { return &v }
