package handlers

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/gioia-jewelry/api/internal/platform/auth"
	"github.com/gioia-jewelry/api/internal/services"
)

func newPaymentRouter(t *testing.T, payments services.PaymentService) (http.Handler, string) {
	t.Helper()
	authn := newHandlerAuthenticator(t)
	router := NewRouter(WithPaymentRoutes(NewPaymentHandlers(authn, payments).Routes))
	return router, sessionToken(t, authn, "user-1", auth.RoleCustomer)
}

func TestPaymentCreateRequiresSession(t *testing.T) {
	router, _ := newPaymentRouter(t, &stubPaymentService{
		createPayment: func(context.Context, services.CreatePaymentCommand) (services.PaymentRedirect, error) {
			t.Fatalf("service must not be reached without a session")
			return services.PaymentRedirect{}, nil
		},
	})

	rec := doRequest(router, jsonRequest(t, http.MethodPost, "/v1/payment/create", map[string]string{
		"order_id": "order-1",
	}))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestPaymentCreate(t *testing.T) {
	var got services.CreatePaymentCommand
	payments := &stubPaymentService{
		createPayment: func(_ context.Context, cmd services.CreatePaymentCommand) (services.PaymentRedirect, error) {
			got = cmd
			return services.PaymentRedirect{
				RedirectURL: "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html?vnp_TxnRef=txn-1",
				Provider:    "vnpay",
				TxnRef:      "txn-1",
				ExpiresAt:   handlerClock().Add(15 * time.Minute),
			}, nil
		},
	}
	router, token := newPaymentRouter(t, payments)

	req := jsonRequest(t, http.MethodPost, "/v1/payment/create", map[string]string{
		"order_id":  "order-1",
		"method":    "vnpay",
		"bank_code": "NCB",
	})
	req.Header.Set("Authorization", "Bearer "+token)
	rec := doRequest(router, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	if got.OrderID != "order-1" || got.UserID != "user-1" || got.BankCode != "NCB" {
		t.Fatalf("unexpected command %+v", got)
	}
	if got.ClientIP == "" {
		t.Fatalf("expected client ip derived from the request")
	}

	var resp struct {
		RedirectURL string `json:"redirect_url"`
		Provider    string `json:"provider"`
		TxnRef      string `json:"txn_ref"`
	}
	decodeBody(t, rec, &resp)
	if resp.Provider != "vnpay" || resp.TxnRef != "txn-1" || resp.RedirectURL == "" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestPaymentCreateErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{name: "order not found", err: services.ErrPaymentOrderNotFound, want: http.StatusNotFound},
		{name: "not payable", err: services.ErrPaymentOrderNotPayable, want: http.StatusConflict},
		{name: "unsupported method", err: services.ErrPaymentUnsupportedMethod, want: http.StatusBadRequest},
		{name: "invalid input", err: services.ErrPaymentInvalidInput, want: http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			payments := &stubPaymentService{
				createPayment: func(context.Context, services.CreatePaymentCommand) (services.PaymentRedirect, error) {
					return services.PaymentRedirect{}, tc.err
				},
			}
			router, token := newPaymentRouter(t, payments)

			req := jsonRequest(t, http.MethodPost, "/v1/payment/create", map[string]string{
				"order_id": "order-1",
			})
			req.Header.Set("Authorization", "Bearer "+token)
			rec := doRequest(router, req)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rec.Code)
			}
		})
	}
}

func TestPaymentVNPayReturnIsUnauthenticated(t *testing.T) {
	var gotParams url.Values
	payments := &stubPaymentService{
		handleVNPayReturn: func(_ context.Context, params url.Values) (services.CallbackOutcome, error) {
			gotParams = params
			return services.CallbackOutcome{
				Status:       services.CallbackSuccess,
				OrderID:      "order-1",
				ResponseCode: "00",
			}, nil
		},
	}
	router, _ := newPaymentRouter(t, payments)

	rec := doRequest(router, jsonRequest(t, http.MethodGet,
		"/v1/payment/vnpay-return?vnp_TxnRef=txn-1&vnp_ResponseCode=00", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if gotParams.Get("vnp_TxnRef") != "txn-1" {
		t.Fatalf("expected query forwarded, got %v", gotParams)
	}

	var resp struct {
		Status  string `json:"status"`
		OrderID string `json:"order_id"`
	}
	decodeBody(t, rec, &resp)
	if resp.Status != "success" || resp.OrderID != "order-1" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestPaymentVNPayReturnRedirectsToResultPage(t *testing.T) {
	cases := []struct {
		name    string
		outcome services.CallbackOutcome
		want    string
	}{
		{name: "success", outcome: services.CallbackOutcome{Status: services.CallbackSuccess, OrderID: "order-1"}, want: "https://shop.example.com/checkout/result?order_id=order-1&status=success"},
		{name: "replay reads as success", outcome: services.CallbackOutcome{Status: services.CallbackAlreadyConfirmed, OrderID: "order-1"}, want: "https://shop.example.com/checkout/result?order_id=order-1&status=success"},
		{name: "failed", outcome: services.CallbackOutcome{Status: services.CallbackFailed, OrderID: "order-1", ResponseCode: "24"}, want: "https://shop.example.com/checkout/result?order_id=order-1&status=failed"},
		{name: "invalid signature", outcome: services.CallbackOutcome{Status: services.CallbackInvalid}, want: "https://shop.example.com/checkout/result?status=error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			payments := &stubPaymentService{
				handleVNPayReturn: func(context.Context, url.Values) (services.CallbackOutcome, error) {
					return tc.outcome, nil
				},
			}
			authn := newHandlerAuthenticator(t)
			router := NewRouter(WithPaymentRoutes(NewPaymentHandlers(authn, payments,
				WithVNPayResultURL("https://shop.example.com/checkout/result")).Routes))

			rec := doRequest(router, jsonRequest(t, http.MethodGet, "/v1/payment/vnpay-return", nil))
			if rec.Code != http.StatusFound {
				t.Fatalf("expected 302, got %d", rec.Code)
			}
			if got := rec.Header().Get("Location"); got != tc.want {
				t.Fatalf("expected redirect to %q, got %q", tc.want, got)
			}
		})
	}
}

func TestPaymentVNPayReturnStatuses(t *testing.T) {
	cases := []struct {
		name    string
		outcome services.CallbackOutcome
		want    int
	}{
		{name: "failed", outcome: services.CallbackOutcome{Status: services.CallbackFailed, ResponseCode: "24"}, want: http.StatusOK},
		{name: "already confirmed", outcome: services.CallbackOutcome{Status: services.CallbackAlreadyConfirmed}, want: http.StatusOK},
		{name: "invalid signature", outcome: services.CallbackOutcome{Status: services.CallbackInvalid}, want: http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			payments := &stubPaymentService{
				handleVNPayReturn: func(context.Context, url.Values) (services.CallbackOutcome, error) {
					return tc.outcome, nil
				},
			}
			router, _ := newPaymentRouter(t, payments)

			rec := doRequest(router, jsonRequest(t, http.MethodGet, "/v1/payment/vnpay-return", nil))
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rec.Code)
			}
		})
	}
}
