package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

// StripeLogger defines the logging contract for Stripe provider operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripeSessionAPI interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// StripeProviderConfig configures the StripeProvider.
type StripeProviderConfig struct {
	APIKey     string
	SuccessURL string
	CancelURL  string
	Logger     StripeLogger
	Clock      func() time.Time
	Sessions   stripeSessionAPI
}

// StripeProvider implements the Provider interface over Stripe hosted
// Checkout, used for the card payment method.
type StripeProvider struct {
	sessions   stripeSessionAPI
	successURL string
	cancelURL  string
	clock      func() time.Time
	logger     StripeLogger
}

// NewStripeProvider constructs a Stripe Provider using the given configuration.
func NewStripeProvider(cfg StripeProviderConfig) (*StripeProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.Sessions == nil {
		return nil, errors.New("stripe: api key is required")
	}
	successURL := strings.TrimSpace(cfg.SuccessURL)
	cancelURL := strings.TrimSpace(cfg.CancelURL)
	if successURL == "" || cancelURL == "" {
		return nil, errors.New("stripe: success and cancel urls are required")
	}

	sessions := cfg.Sessions
	if sessions == nil {
		sc := client.New(apiKey, nil)
		sessions = sc.CheckoutSessions
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &StripeProvider{
		sessions:   sessions,
		successURL: successURL,
		cancelURL:  cancelURL,
		clock:      func() time.Time { return clock().UTC() },
		logger:     logger,
	}, nil
}

// CreateRedirect creates a Stripe Checkout session for the order and
// returns its hosted URL. VND is a zero-decimal currency on Stripe, so
// the amount passes through unscaled.
func (p *StripeProvider) CreateRedirect(ctx context.Context, req RedirectRequest) (Redirect, error) {
	if p == nil {
		return Redirect{}, errors.New("stripe: provider is nil")
	}
	if req.Amount <= 0 {
		return Redirect{}, errors.New("stripe: amount must be positive")
	}

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(p.successURL),
		CancelURL:  stripe.String(p.cancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Quantity: stripe.Int64(1),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String("vnd"),
					UnitAmount: stripe.Int64(req.Amount),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String("Order " + req.OrderNumber),
					},
				},
			},
		},
		Metadata: map[string]string{
			"order_id": req.OrderID,
			"txn_ref":  req.TxnRef,
		},
	}
	params.Context = ctx
	if ref := strings.TrimSpace(req.TxnRef); ref != "" {
		params.SetIdempotencyKey(ref)
		params.ClientReferenceID = stripe.String(ref)
	}

	session, err := p.sessions.New(params)
	if err != nil {
		return Redirect{}, fmt.Errorf("stripe: create checkout session: %w", err)
	}

	expiresAt := p.clock().Add(30 * time.Minute)
	if session.ExpiresAt != 0 {
		expiresAt = time.Unix(session.ExpiresAt, 0).UTC()
	}

	p.logger(ctx, "stripe_session_created", map[string]any{
		"session_id": session.ID,
		"order_id":   req.OrderID,
	})

	return Redirect{
		URL:       session.URL,
		Provider:  "stripe",
		TxnRef:    req.TxnRef,
		ExpiresAt: expiresAt,
	}, nil
}
