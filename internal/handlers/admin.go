package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gioia-jewelry/api/internal/domain"
	"github.com/gioia-jewelry/api/internal/platform/auth"
	"github.com/gioia-jewelry/api/internal/platform/httpx"
	"github.com/gioia-jewelry/api/internal/services"
)

const maxAdminBodySize = 16 * 1024

// AdminHandlers exposes the staff surface: order management,
// promotion CRUD and inventory monitoring.
type AdminHandlers struct {
	authn      *auth.SessionAuthenticator
	orders     services.OrderService
	promotions services.PromotionService
	inventory  services.InventoryService
	clock      func() time.Time
}

// AdminOption customises AdminHandlers behaviour.
type AdminOption func(*AdminHandlers)

// WithAdminClock injects a custom clock, primarily for tests.
func WithAdminClock(clock func() time.Time) AdminOption {
	return func(h *AdminHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// NewAdminHandlers constructs the staff handlers.
func NewAdminHandlers(authn *auth.SessionAuthenticator, orders services.OrderService, promotions services.PromotionService, inventory services.InventoryService, opts ...AdminOption) *AdminHandlers {
	h := &AdminHandlers{
		authn:      authn,
		orders:     orders,
		promotions: promotions,
		inventory:  inventory,
		clock:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes wires the /admin endpoints onto the provided router.
func (h *AdminHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireSession(auth.RoleStaff, auth.RoleAdmin))
	}

	r.Get("/orders", h.listOrders)
	r.Get("/orders/{orderID}", h.getOrder)
	r.Patch("/orders/{orderID}/status", h.updateOrderStatus)

	r.Get("/promotions", h.listPromotions)
	r.Post("/promotions", h.createPromotion)
	r.Get("/promotions/{promotionID}", h.getPromotion)
	r.Put("/promotions/{promotionID}", h.updatePromotion)
	r.Delete("/promotions/{promotionID}", h.deletePromotion)

	r.Get("/inventory/low-stock", h.listLowStock)
	r.Get("/inventory/{sku}", h.getStock)
}

func (h *AdminHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeAdminUnavailable(ctx, w)
		return
	}

	filter := services.OrderListFilter{UserID: strings.TrimSpace(r.URL.Query().Get("user_id"))}
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
		h.writeAdminOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPageResponse(page))
}

func (h *AdminHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeAdminUnavailable(ctx, w)
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	order, err := h.orders.Get(ctx, services.GetOrderCommand{OrderID: orderID})
	if err != nil {
		h.writeAdminOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *AdminHandlers) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeAdminUnavailable(ctx, w)
		return
	}

	var req struct {
		Status         string `json:"status"`
		ExpectedStatus string `json:"expected_status"`
	}
	if err := decodeJSONBody(r, maxAdminBodySize, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	next, err := parseOrderStatus(req.Status)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	cmd := services.TransitionOrderCommand{
		OrderID:    strings.TrimSpace(chi.URLParam(r, "orderID")),
		NextStatus: next,
		Actor:      actorFromContext(ctx),
	}
	if req.ExpectedStatus != "" {
		expected, err := parseOrderStatus(req.ExpectedStatus)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
			return
		}
		cmd.ExpectedStatus = &expected
	}

	order, err := h.orders.TransitionStatus(ctx, cmd)
	if err != nil {
		h.writeAdminOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *AdminHandlers) listPromotions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.promotions == nil {
		writeAdminUnavailable(ctx, w)
		return
	}

	filter := services.PromotionListFilter{
		PageSize:  clampPageSize(queryInt(r, "page_size", defaultOrderPageSize)),
		PageToken: strings.TrimSpace(r.URL.Query().Get("page_token")),
	}
	if strings.EqualFold(strings.TrimSpace(r.URL.Query().Get("active")), "true") {
		now := h.clock().UTC()
		filter.ActiveAt = &now
	}

	page, err := h.promotions.List(ctx, filter)
	if err != nil {
		h.writePromotionError(ctx, w, err)
		return
	}

	promos := make([]promotionPayload, 0, len(page.Promotions))
	for _, promo := range page.Promotions {
		promos = append(promos, buildPromotionPayload(promo))
	}
	writeJSONResponse(w, http.StatusOK, promotionPageResponse{
		Promotions:    promos,
		NextPageToken: page.NextPageToken,
	})
}

func (h *AdminHandlers) createPromotion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.promotions == nil {
		writeAdminUnavailable(ctx, w)
		return
	}

	cmd, err := decodePromotionCommand(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	promo, err := h.promotions.Create(ctx, cmd)
	if err != nil {
		h.writePromotionError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, promotionResponse{Promotion: buildPromotionPayload(promo)})
}

func (h *AdminHandlers) getPromotion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.promotions == nil {
		writeAdminUnavailable(ctx, w)
		return
	}

	promo, err := h.promotions.Get(ctx, strings.TrimSpace(chi.URLParam(r, "promotionID")))
	if err != nil {
		h.writePromotionError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, promotionResponse{Promotion: buildPromotionPayload(promo)})
}

func (h *AdminHandlers) updatePromotion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.promotions == nil {
		writeAdminUnavailable(ctx, w)
		return
	}

	cmd, err := decodePromotionCommand(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	promo, err := h.promotions.Update(ctx, strings.TrimSpace(chi.URLParam(r, "promotionID")), cmd)
	if err != nil {
		h.writePromotionError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, promotionResponse{Promotion: buildPromotionPayload(promo)})
}

func (h *AdminHandlers) deletePromotion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.promotions == nil {
		writeAdminUnavailable(ctx, w)
		return
	}

	if err := h.promotions.Delete(ctx, strings.TrimSpace(chi.URLParam(r, "promotionID"))); err != nil {
		h.writePromotionError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandlers) listLowStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.inventory == nil {
		writeAdminUnavailable(ctx, w)
		return
	}

	page, err := h.inventory.ListLowStock(ctx, services.LowStockQuery{
		Limit:     clampPageSize(queryInt(r, "page_size", defaultOrderPageSize)),
		PageToken: strings.TrimSpace(r.URL.Query().Get("page_token")),
	})
	if err != nil {
		h.writeInventoryError(ctx, w, err)
		return
	}

	stocks := make([]stockPayload, 0, len(page.Stocks))
	for _, stock := range page.Stocks {
		stocks = append(stocks, buildStockPayload(stock))
	}
	writeJSONResponse(w, http.StatusOK, stockPageResponse{
		Stocks:        stocks,
		NextPageToken: page.NextPageToken,
	})
}

func (h *AdminHandlers) getStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.inventory == nil {
		writeAdminUnavailable(ctx, w)
		return
	}

	stock, err := h.inventory.GetStock(ctx, strings.TrimSpace(chi.URLParam(r, "sku")))
	if err != nil {
		h.writeInventoryError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, stockResponse{Stock: buildStockPayload(stock)})
}

func (h *AdminHandlers) writeAdminOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderInvalidTransition), errors.Is(err, services.ErrOrderStatusConflict):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_transition", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "order operation failed", http.StatusInternalServerError))
	}
}

func (h *AdminHandlers) writePromotionError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrPromotionInvalidCode), errors.Is(err, services.ErrPromotionInvalidWindow):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrPromotionNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("promotion_not_found", "promotion not found", http.StatusNotFound))
	case errors.Is(err, services.ErrPromotionDuplicateCode):
		httpx.WriteError(ctx, w, httpx.NewError("duplicate_code", "a promotion with this code already exists", http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("promotion_error", "promotion operation failed", http.StatusInternalServerError))
	}
}

func (h *AdminHandlers) writeInventoryError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrInventoryInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrInventoryStockNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("stock_not_found", "no stock record for sku", http.StatusNotFound))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("inventory_error", "inventory operation failed", http.StatusInternalServerError))
	}
}

func writeAdminUnavailable(ctx context.Context, w http.ResponseWriter) {
	httpx.WriteError(ctx, w, httpx.NewError("admin_service_unavailable", "admin services are unavailable", http.StatusServiceUnavailable))
}

func actorFromContext(ctx context.Context) string {
	if identity, ok := auth.IdentityFromContext(ctx); ok {
		return identity.UserID
	}
	return ""
}

type promotionCommandRequest struct {
	Code           string `json:"code"`
	Description    string `json:"description"`
	DiscountType   string `json:"discount_type"`
	DiscountValue  int64  `json:"discount_value"`
	StartsAt       string `json:"starts_at"`
	EndsAt         string `json:"ends_at"`
	MinOrderAmount int64  `json:"min_order_amount"`
	MaxUsage       int    `json:"max_usage"`
}

func decodePromotionCommand(r *http.Request) (services.PromotionCommand, error) {
	var req promotionCommandRequest
	if err := decodeJSONBody(r, maxAdminBodySize, &req); err != nil {
		return services.PromotionCommand{}, err
	}

	discountType := domain.DiscountType(strings.ToLower(strings.TrimSpace(req.DiscountType)))
	switch discountType {
	case domain.DiscountTypePercentage, domain.DiscountTypeFixed:
	default:
		return services.PromotionCommand{}, errors.New("discount_type must be percentage or fixed")
	}

	startsAt, err := time.Parse(time.RFC3339, strings.TrimSpace(req.StartsAt))
	if err != nil {
		return services.PromotionCommand{}, errors.New("starts_at must be an RFC3339 timestamp")
	}
	endsAt, err := time.Parse(time.RFC3339, strings.TrimSpace(req.EndsAt))
	if err != nil {
		return services.PromotionCommand{}, errors.New("ends_at must be an RFC3339 timestamp")
	}

	return services.PromotionCommand{
		Code:           req.Code,
		Description:    req.Description,
		DiscountType:   discountType,
		DiscountValue:  req.DiscountValue,
		StartsAt:       startsAt,
		EndsAt:         endsAt,
		MinOrderAmount: req.MinOrderAmount,
		MaxUsage:       req.MaxUsage,
	}, nil
}

type promotionResponse struct {
	Promotion promotionPayload `json:"promotion"`
}

type promotionPageResponse struct {
	Promotions    []promotionPayload `json:"promotions"`
	NextPageToken string             `json:"next_page_token,omitempty"`
}

type stockResponse struct {
	Stock stockPayload `json:"stock"`
}

type stockPageResponse struct {
	Stocks        []stockPayload `json:"stocks"`
	NextPageToken string         `json:"next_page_token,omitempty"`
}
