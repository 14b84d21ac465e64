package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/gioia-jewelry/api/internal/platform/auth"
	"github.com/gioia-jewelry/api/internal/platform/httpx"
	"github.com/gioia-jewelry/api/internal/services"
)

const maxPaymentBodySize = 4 * 1024

// PaymentHandlers exposes gateway redirect creation and the VNPay
// return endpoint. The return endpoint is unauthenticated because the
// gateway redirects the customer's browser to it; the request proves
// itself through the HMAC signature the service verifies.
type PaymentHandlers struct {
	authn     *auth.SessionAuthenticator
	payments  services.PaymentService
	resultURL string
}

// PaymentOption customises the payment handlers.
type PaymentOption func(*PaymentHandlers)

// WithVNPayResultURL sets the storefront result page. When configured,
// the VNPay return endpoint redirects the browser there with a status
// query parameter instead of rendering JSON.
func WithVNPayResultURL(u string) PaymentOption {
	return func(h *PaymentHandlers) {
		h.resultURL = strings.TrimSpace(u)
	}
}

// NewPaymentHandlers constructs handlers over the payment service.
func NewPaymentHandlers(authn *auth.SessionAuthenticator, payments services.PaymentService, opts ...PaymentOption) *PaymentHandlers {
	h := &PaymentHandlers{authn: authn, payments: payments}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes wires the /payment endpoints onto the provided router.
func (h *PaymentHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/vnpay-return", h.vnpayReturn)
	r.Group(func(authd chi.Router) {
		if h.authn != nil {
			authd.Use(h.authn.RequireSession())
		}
		authd.Post("/create", h.createPayment)
	})
}

func (h *PaymentHandlers) createPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || strings.TrimSpace(identity.UserID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	var req struct {
		OrderID  string `json:"order_id"`
		Method   string `json:"method"`
		BankCode string `json:"bank_code"`
		Locale   string `json:"locale"`
	}
	if err := decodeJSONBody(r, maxPaymentBodySize, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	redirect, err := h.payments.CreatePayment(ctx, services.CreatePaymentCommand{
		OrderID:  req.OrderID,
		UserID:   identity.UserID,
		ClientIP: clientIP(r),
		BankCode: req.BankCode,
		Locale:   req.Locale,
		Method:   req.Method,
	})
	if err != nil {
		h.writePaymentError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, paymentRedirectResponse{
		RedirectURL: redirect.RedirectURL,
		Provider:    redirect.Provider,
		TxnRef:      redirect.TxnRef,
		ExpiresAt:   formatTime(redirect.ExpiresAt),
	})
}

func (h *PaymentHandlers) vnpayReturn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment service is unavailable", http.StatusServiceUnavailable))
		return
	}

	outcome, err := h.payments.HandleVNPayReturn(ctx, r.URL.Query())
	if err != nil {
		if h.resultURL != "" {
			h.redirectToResult(w, r, "error", "")
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("payment_error", "failed to process payment callback", http.StatusInternalServerError))
		return
	}

	if h.resultURL != "" {
		h.redirectToResult(w, r, resultStatus(outcome.Status), outcome.OrderID)
		return
	}

	status := http.StatusOK
	if outcome.Status == services.CallbackInvalid {
		status = http.StatusBadRequest
	}
	writeJSONResponse(w, status, callbackResponse{
		Status:       string(outcome.Status),
		OrderID:      outcome.OrderID,
		ResponseCode: outcome.ResponseCode,
	})
}

// redirectToResult sends the browser to the storefront result page.
// Only the coarse status and order id are exposed; raw gateway
// parameters never reach the frontend.
func (h *PaymentHandlers) redirectToResult(w http.ResponseWriter, r *http.Request, status, orderID string) {
	target, err := url.Parse(h.resultURL)
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("payment_error", "result page is misconfigured", http.StatusInternalServerError))
		return
	}
	q := target.Query()
	q.Set("status", status)
	if orderID != "" {
		q.Set("order_id", orderID)
	}
	target.RawQuery = q.Encode()
	http.Redirect(w, r, target.String(), http.StatusFound)
}

func resultStatus(status services.CallbackStatus) string {
	switch status {
	case services.CallbackSuccess, services.CallbackAlreadyConfirmed:
		return "success"
	case services.CallbackFailed:
		return "failed"
	default:
		return "error"
	}
}

func (h *PaymentHandlers) writePaymentError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrPaymentInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrPaymentOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrPaymentOrderNotPayable):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_payable", "order is not awaiting payment", http.StatusConflict))
	case errors.Is(err, services.ErrPaymentUnsupportedMethod):
		httpx.WriteError(ctx, w, httpx.NewError("unsupported_method", "payment method is not supported", http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("payment_error", "failed to create payment", http.StatusInternalServerError))
	}
}

func clientIP(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if idx := strings.LastIndex(host, ":"); idx > 0 && !strings.HasSuffix(host, "]") {
		host = host[:idx]
	}
	return strings.Trim(host, "[]")
}

type paymentRedirectResponse struct {
	RedirectURL string `json:"redirect_url"`
	Provider    string `json:"provider"`
	TxnRef      string `json:"txn_ref"`
	ExpiresAt   string `json:"expires_at"`
}

type callbackResponse struct {
	Status       string `json:"status"`
	OrderID      string `json:"order_id,omitempty"`
	ResponseCode string `json:"response_code,omitempty"`
}
