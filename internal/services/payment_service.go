package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	domain "github.com/gioia-jewelry/api/internal/domain"
	"github.com/gioia-jewelry/api/internal/payments"
	"github.com/gioia-jewelry/api/internal/repositories"
)

var (
	// ErrPaymentInvalidInput signals malformed payment request parameters.
	ErrPaymentInvalidInput = errors.New("payment: invalid input")
	// ErrPaymentOrderNotFound indicates the order does not exist or belongs to another user.
	ErrPaymentOrderNotFound = errors.New("payment: order not found")
	// ErrPaymentOrderNotPayable indicates the order already left the payable state.
	ErrPaymentOrderNotPayable = errors.New("payment: order is not payable")
	// ErrPaymentUnsupportedMethod indicates no gateway is registered for the method.
	ErrPaymentUnsupportedMethod = errors.New("payment: unsupported method")
)

// callbackVerifier is the slice of the VNPay provider the reconciler
// needs.
type callbackVerifier interface {
	VerifyCallback(params url.Values) (payments.VNPayCallback, error)
}

// redirectManager abstracts payments.Manager for easier testing.
type redirectManager interface {
	CreateRedirect(ctx context.Context, method string, req payments.RedirectRequest) (payments.Redirect, error)
}

// paymentService builds signed gateway redirects and reconciles
// gateway callbacks with the order lifecycle.
type paymentService struct {
	orders   OrderService
	attempts repositories.PaymentRepository
	gateways redirectManager
	vnpay    callbackVerifier
	idGen    func() string
	clock    func() time.Time
	logger   func(context.Context, string, map[string]any)
}

// PaymentServiceDeps wires the payment service dependencies.
type PaymentServiceDeps struct {
	Orders      OrderService
	Attempts    repositories.PaymentRepository
	Gateways    redirectManager
	VNPay       callbackVerifier
	IDGenerator func() string
	Clock       func() time.Time
	Logger      func(context.Context, string, map[string]any)
}

// NewPaymentService validates dependencies and constructs the service.
func NewPaymentService(deps PaymentServiceDeps) (PaymentService, error) {
	if deps.Orders == nil {
		return nil, errors.New("payment service: order service is required")
	}
	if deps.Attempts == nil {
		return nil, errors.New("payment service: payment repository is required")
	}
	if deps.Gateways == nil {
		return nil, errors.New("payment service: gateway manager is required")
	}
	if deps.VNPay == nil {
		return nil, errors.New("payment service: vnpay verifier is required")
	}
	if deps.IDGenerator == nil {
		return nil, errors.New("payment service: id generator is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &paymentService{
		orders:   deps.Orders,
		attempts: deps.Attempts,
		gateways: deps.Gateways,
		vnpay:    deps.VNPay,
		idGen:    deps.IDGenerator,
		clock:    func() time.Time { return clock().UTC() },
		logger:   logger,
	}, nil
}

// CreatePayment builds a signed redirect for a pending, unpaid order
// and records the attempt keyed by its transaction reference. Each
// call mints a fresh reference, so a retried payment never collides
// with an earlier redirect.
func (s *paymentService) CreatePayment(ctx context.Context, cmd CreatePaymentCommand) (PaymentRedirect, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return PaymentRedirect{}, fmt.Errorf("%w: order id is required", ErrPaymentInvalidInput)
	}

	order, err := s.orders.Get(ctx, GetOrderCommand{OrderID: orderID, UserID: cmd.UserID})
	if err != nil {
		// A foreign order is hidden from the payer, not revealed as
		// forbidden.
		if errors.Is(err, ErrOrderNotFound) || errors.Is(err, ErrOrderForbidden) {
			return PaymentRedirect{}, ErrPaymentOrderNotFound
		}
		return PaymentRedirect{}, err
	}
	if order.Status != domain.OrderStatusPending || order.PaymentStatus == domain.PaymentStatusPaid {
		return PaymentRedirect{}, fmt.Errorf("%w: status %s", ErrPaymentOrderNotPayable, order.Status)
	}

	txnRef := s.idGen()
	redirect, err := s.gateways.CreateRedirect(ctx, cmd.Method, payments.RedirectRequest{
		OrderID:     order.ID,
		OrderNumber: order.Number,
		TxnRef:      txnRef,
		Amount:      order.Total,
		ClientIP:    cmd.ClientIP,
		BankCode:    cmd.BankCode,
		Locale:      cmd.Locale,
	})
	if err != nil {
		if errors.Is(err, payments.ErrUnsupportedProvider) {
			return PaymentRedirect{}, fmt.Errorf("%w: %s", ErrPaymentUnsupportedMethod, cmd.Method)
		}
		return PaymentRedirect{}, err
	}

	attempt := PaymentAttempt{
		ID:        s.idGen(),
		OrderID:   order.ID,
		Provider:  redirect.Provider,
		TxnRef:    redirect.TxnRef,
		Amount:    order.Total,
		BankCode:  strings.TrimSpace(cmd.BankCode),
		CreatedAt: s.clock(),
		ExpiresAt: redirect.ExpiresAt,
	}
	if err := s.attempts.InsertAttempt(ctx, attempt); err != nil {
		return PaymentRedirect{}, err
	}

	s.logger(ctx, "payment_redirect_created", map[string]any{
		"order_id": order.ID,
		"provider": redirect.Provider,
		"txn_ref":  redirect.TxnRef,
	})
	return PaymentRedirect{
		RedirectURL: redirect.URL,
		Provider:    redirect.Provider,
		TxnRef:      redirect.TxnRef,
		ExpiresAt:   redirect.ExpiresAt,
	}, nil
}

// HandleVNPayReturn verifies the callback signature, resolves the
// payment attempt, and applies the outcome to the order. Signature or
// amount failures produce no side effect. A replayed success callback
// is reported as already confirmed and changes nothing, so the
// endpoint is safe to retry.
func (s *paymentService) HandleVNPayReturn(ctx context.Context, params url.Values) (CallbackOutcome, error) {
	callback, err := s.vnpay.VerifyCallback(params)
	if err != nil {
		s.logger(ctx, "payment_callback_rejected", map[string]any{"error": err.Error()})
		return CallbackOutcome{Status: CallbackInvalid}, nil
	}

	attempt, err := s.attempts.FindAttemptByTxnRef(ctx, callback.TxnRef)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			s.logger(ctx, "payment_callback_unknown_ref", map[string]any{"txn_ref": callback.TxnRef})
			return CallbackOutcome{Status: CallbackInvalid, ResponseCode: callback.ResponseCode}, nil
		}
		return CallbackOutcome{}, err
	}

	if callback.Amount != attempt.Amount {
		s.logger(ctx, "payment_callback_amount_mismatch", map[string]any{
			"txn_ref":  callback.TxnRef,
			"expected": attempt.Amount,
			"received": callback.Amount,
		})
		return CallbackOutcome{Status: CallbackInvalid, OrderID: attempt.OrderID, ResponseCode: callback.ResponseCode}, nil
	}

	if !callback.Success() {
		if _, err := s.orders.MarkPaymentFailed(ctx, attempt.OrderID); err != nil && !errors.Is(err, ErrOrderAlreadyConfirmed) {
			return CallbackOutcome{}, err
		}
		s.logger(ctx, "payment_callback_failed", map[string]any{
			"order_id":      attempt.OrderID,
			"response_code": callback.ResponseCode,
		})
		return CallbackOutcome{Status: CallbackFailed, OrderID: attempt.OrderID, ResponseCode: callback.ResponseCode}, nil
	}

	if _, err := s.orders.MarkPaid(ctx, attempt.OrderID, s.clock()); err != nil {
		if errors.Is(err, ErrOrderAlreadyConfirmed) {
			return CallbackOutcome{Status: CallbackAlreadyConfirmed, OrderID: attempt.OrderID, ResponseCode: callback.ResponseCode}, nil
		}
		return CallbackOutcome{}, err
	}

	s.logger(ctx, "payment_confirmed", map[string]any{
		"order_id": attempt.OrderID,
		"txn_ref":  callback.TxnRef,
	})
	return CallbackOutcome{Status: CallbackSuccess, OrderID: attempt.OrderID, ResponseCode: callback.ResponseCode}, nil
}
