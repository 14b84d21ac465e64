package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnsupportedProvider is returned when no provider is registered
// for the requested payment method.
var ErrUnsupportedProvider = errors.New("payments: unsupported provider")

// RedirectRequest captures the payload required to start a payment at
// an external gateway. Amount is in VND.
type RedirectRequest struct {
	OrderID     string
	OrderNumber string
	TxnRef      string
	Amount      int64
	ClientIP    string
	BankCode    string
	Locale      string
}

// Redirect is the signed gateway URL the client is sent to.
type Redirect struct {
	URL       string
	Provider  string
	TxnRef    string
	ExpiresAt time.Time
}

// Provider is a gateway adapter that turns an order into a hosted
// payment redirect.
type Provider interface {
	CreateRedirect(ctx context.Context, req RedirectRequest) (Redirect, error)
}

// Manager routes redirect requests to the provider registered for the
// requested method.
type Manager struct {
	providers       map[string]Provider
	defaultProvider string
}

// ManagerOption configures optional behaviour when building a Manager.
type ManagerOption func(*Manager)

// WithDefaultProvider overrides the provider used when the request
// names no method.
func WithDefaultProvider(provider string) ManagerOption {
	return func(m *Manager) {
		m.defaultProvider = strings.ToLower(strings.TrimSpace(provider))
	}
}

// NewManager constructs a Manager over the supplied providers.
func NewManager(providers map[string]Provider, opts ...ManagerOption) (*Manager, error) {
	if len(providers) == 0 {
		return nil, errors.New("payments: at least one provider is required")
	}
	copyMap := make(map[string]Provider, len(providers))
	for k, v := range providers {
		key := strings.ToLower(strings.TrimSpace(k))
		if key == "" || v == nil {
			return nil, fmt.Errorf("payments: invalid provider registration for key %q", k)
		}
		copyMap[key] = v
	}
	m := &Manager{providers: copyMap}
	if _, ok := copyMap["vnpay"]; ok {
		m.defaultProvider = "vnpay"
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Resolve returns the provider registered for the method, falling back
// to the default.
func (m *Manager) Resolve(method string) (string, Provider, error) {
	if m == nil || len(m.providers) == 0 {
		return "", nil, errors.New("payments: no providers registered")
	}
	if key := strings.ToLower(strings.TrimSpace(method)); key != "" {
		if p, ok := m.providers[key]; ok {
			return key, p, nil
		}
		return "", nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, key)
	}
	if m.defaultProvider != "" {
		if p, ok := m.providers[m.defaultProvider]; ok {
			return m.defaultProvider, p, nil
		}
	}
	if len(m.providers) == 1 {
		for key, p := range m.providers {
			return key, p, nil
		}
	}
	return "", nil, ErrUnsupportedProvider
}

// CreateRedirect delegates to the provider resolved for the method.
func (m *Manager) CreateRedirect(ctx context.Context, method string, req RedirectRequest) (Redirect, error) {
	key, provider, err := m.Resolve(method)
	if err != nil {
		return Redirect{}, err
	}
	redirect, err := provider.CreateRedirect(ctx, req)
	if err != nil {
		return Redirect{}, err
	}
	redirect.Provider = key
	return redirect, nil
}
