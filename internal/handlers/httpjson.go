package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gioia-jewelry/api/internal/services"
)

const defaultMaxBodySize = 16 * 1024

var (
	errEmptyBody    = errors.New("request body is empty")
	errBodyTooLarge = errors.New("request body too large")
)

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = defaultMaxBodySize
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

func decodeJSONBody(r *http.Request, limit int64, dst any) error {
	data, err := readLimitedBody(r, limit)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return errors.New("invalid JSON payload")
	}
	return nil
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return formatTime(*t)
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback
	}
	if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
		return parsed
	}
	return fallback
}

type addressPayload struct {
	ID        string `json:"id"`
	Recipient string `json:"recipient"`
	Phone     string `json:"phone"`
	Line1     string `json:"line1"`
	Line2     string `json:"line2,omitempty"`
	Ward      string `json:"ward,omitempty"`
	District  string `json:"district,omitempty"`
	City      string `json:"city"`
	IsDefault bool   `json:"is_default"`
}

func buildAddressPayload(addr services.Address) addressPayload {
	return addressPayload{
		ID:        addr.ID,
		Recipient: addr.Recipient,
		Phone:     addr.Phone,
		Line1:     addr.Line1,
		Line2:     addr.Line2,
		Ward:      addr.Ward,
		District:  addr.District,
		City:      addr.City,
		IsDefault: addr.IsDefault,
	}
}

type orderItemPayload struct {
	SKU         string `json:"sku"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	UnitPrice   int64  `json:"unit_price"`
	LineTotal   int64  `json:"line_total"`
}

type orderPayload struct {
	ID              string             `json:"id"`
	Number          string             `json:"number"`
	UserID          string             `json:"user_id"`
	Items           []orderItemPayload `json:"items"`
	ShippingAddress addressPayload     `json:"shipping_address"`
	Subtotal        int64              `json:"subtotal"`
	Discount        int64              `json:"discount"`
	PromotionCode   string             `json:"promotion_code,omitempty"`
	ShippingFee     int64              `json:"shipping_fee"`
	Total           int64              `json:"total"`
	Status          string             `json:"status"`
	PaymentStatus   string             `json:"payment_status"`
	PaymentMethod   string             `json:"payment_method"`
	Notes           string             `json:"notes,omitempty"`
	CreatedAt       string             `json:"created_at"`
	UpdatedAt       string             `json:"updated_at"`
	PaidAt          string             `json:"paid_at,omitempty"`
	ShippedAt       string             `json:"shipped_at,omitempty"`
	DeliveredAt     string             `json:"delivered_at,omitempty"`
	CancelledAt     string             `json:"cancelled_at,omitempty"`
}

func buildOrderPayload(order services.Order) orderPayload {
	items := make([]orderItemPayload, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemPayload{
			SKU:         item.SKU,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			LineTotal:   item.LineTotal,
		})
	}
	return orderPayload{
		ID:              order.ID,
		Number:          order.Number,
		UserID:          order.UserID,
		Items:           items,
		ShippingAddress: buildAddressPayload(order.ShippingAddress),
		Subtotal:        order.Subtotal,
		Discount:        order.Discount,
		PromotionCode:   order.PromotionCode,
		ShippingFee:     order.ShippingFee,
		Total:           order.Total,
		Status:          string(order.Status),
		PaymentStatus:   string(order.PaymentStatus),
		PaymentMethod:   order.PaymentMethod,
		Notes:           order.Notes,
		CreatedAt:       formatTime(order.CreatedAt),
		UpdatedAt:       formatTime(order.UpdatedAt),
		PaidAt:          formatTimePtr(order.PaidAt),
		ShippedAt:       formatTimePtr(order.ShippedAt),
		DeliveredAt:     formatTimePtr(order.DeliveredAt),
		CancelledAt:     formatTimePtr(order.CancelledAt),
	}
}

type cartItemPayload struct {
	SKU       string `json:"sku"`
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`
	AddedAt   string `json:"added_at,omitempty"`
}

type cartPayload struct {
	UserID     string            `json:"user_id"`
	Items      []cartItemPayload `json:"items"`
	ItemsCount int               `json:"items_count"`
	UpdatedAt  string            `json:"updated_at,omitempty"`
}

func buildCartPayload(cart services.Cart) cartPayload {
	items := make([]cartItemPayload, 0, len(cart.Items))
	for _, item := range cart.Items {
		entry := cartItemPayload{
			SKU:       item.SKU,
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
		}
		if !item.AddedAt.IsZero() {
			entry.AddedAt = formatTime(item.AddedAt)
		}
		items = append(items, entry)
	}
	payload := cartPayload{
		UserID:     cart.UserID,
		Items:      items,
		ItemsCount: len(items),
	}
	if !cart.UpdatedAt.IsZero() {
		payload.UpdatedAt = formatTime(cart.UpdatedAt)
	}
	return payload
}

type promotionPayload struct {
	ID             string `json:"id"`
	Code           string `json:"code"`
	Description    string `json:"description,omitempty"`
	DiscountType   string `json:"discount_type"`
	DiscountValue  int64  `json:"discount_value"`
	StartsAt       string `json:"starts_at"`
	EndsAt         string `json:"ends_at"`
	MinOrderAmount int64  `json:"min_order_amount"`
	MaxUsage       int    `json:"max_usage"`
	CurrentUsage   int    `json:"current_usage"`
}

func buildPromotionPayload(promo services.Promotion) promotionPayload {
	return promotionPayload{
		ID:             promo.ID,
		Code:           promo.Code,
		Description:    promo.Description,
		DiscountType:   string(promo.DiscountType),
		DiscountValue:  promo.DiscountValue,
		StartsAt:       formatTime(promo.StartsAt),
		EndsAt:         formatTime(promo.EndsAt),
		MinOrderAmount: promo.MinOrderAmount,
		MaxUsage:       promo.MaxUsage,
		CurrentUsage:   promo.CurrentUsage,
	}
}

type stockPayload struct {
	SKU               string `json:"sku"`
	VariantID         string `json:"variant_id,omitempty"`
	Quantity          int    `json:"quantity"`
	LowStockThreshold int    `json:"low_stock_threshold"`
	LastRestockedAt   string `json:"last_restocked_at,omitempty"`
	UpdatedAt         string `json:"updated_at,omitempty"`
}

func buildStockPayload(stock services.Stock) stockPayload {
	payload := stockPayload{
		SKU:               stock.SKU,
		VariantID:         stock.VariantID,
		Quantity:          stock.Quantity,
		LowStockThreshold: stock.LowStockThreshold,
		LastRestockedAt:   formatTimePtr(stock.LastRestockedAt),
	}
	if !stock.UpdatedAt.IsZero() {
		payload.UpdatedAt = formatTime(stock.UpdatedAt)
	}
	return payload
}
